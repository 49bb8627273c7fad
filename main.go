// The main package for the npidb-crawler executable.
package main

import (
	"github.com/agencyatlas/npidb-crawler/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
