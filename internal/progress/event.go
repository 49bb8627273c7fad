package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StagePageDone   Stage = "PAGE_DONE"
	StageDetailDone Stage = "DETAIL_DONE"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
)

// Event captures one milestone of a jurisdiction run.
type Event struct {
	// RunID identifies the jurisdiction run the event belongs to.
	RunID string `json:"run_id"`
	// Stage denotes which milestone occurred.
	Stage Stage `json:"stage"`
	// State and Location identify the jurisdiction being scraped.
	State    string `json:"state"`
	Location string `json:"location"`
	// Method is the fetch method the run used.
	Method string `json:"method,omitempty"`
	// Page is the listing page number for page events, and the total
	// pages visited for terminal events.
	Page int `json:"page,omitempty"`
	// Agencies is the number of records assembled so far.
	Agencies int `json:"agencies,omitempty"`
	// Err carries the failure text on RUN_ERROR events.
	Err string `json:"error,omitempty"`
	// Timestamp is recorded by the emitter.
	Timestamp time.Time `json:"timestamp"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageDetailDone:
	case StagePageDone:
		if e.Page <= 0 {
			return errors.New("page events require a page number")
		}
	case StageRunError:
		if e.Err == "" {
			return errors.New("error events require error text")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}

// Terminal reports whether the event ends its run.
func (e Event) Terminal() bool {
	return e.Stage == StageRunDone || e.Stage == StageRunError
}
