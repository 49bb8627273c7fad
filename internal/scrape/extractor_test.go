package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	archivemem "github.com/agencyatlas/npidb-crawler/internal/archive/memory"
	"github.com/agencyatlas/npidb-crawler/internal/hash/sha256"
)

const testDetailURL = "https://npidb.org/doctors/home-health_251e00000x/smith-home-care-llc_1234567893.aspx"

const detailPageHTML = `<html>
<head><title>SMITH HOME CARE LLC; NPI #1234567893 - npidb.org</title></head>
<body>
<h1>SMITH HOME CARE LLC</h1>
<div class="profile">
<p>NPI: 1234567893</p>
<p>Organization Name: SMITH HOME CARE LLC</p>
<p>Address: 12 Oak St, Raleigh, NC 27601</p>
<p>Telephone: (919) 555-0123</p>
<p>Authorized Official: JANE SMITH - OWNER</p>
<p>Enumeration Date: 05/21/2007</p>
</div>
<p>Home health agencies provide part-time skilled nursing and other
therapeutic services in the patient's place of residence.</p>
</body>
</html>`

const challengePageHTML = `<html>
<head><title>Just a moment...</title></head>
<body><div id="cf-challenge-running">Checking your browser before accessing npidb.org.</div></body>
</html>`

func newTestExtractor() *Extractor {
	return NewExtractor(NewStepRunner(2*time.Second, zap.NewNop()), nil, zap.NewNop())
}

func TestExtractDetailMatchesAllFields(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(map[string]fakePage{
		testDetailURL: {title: "SMITH HOME CARE LLC; NPI #1234567893 - npidb.org", html: detailPageHTML},
	})
	ext := newTestExtractor()

	fields, err := ext.ExtractDetail(context.Background(), sess, ResultStub{DetailURL: testDetailURL})
	require.NoError(t, err)
	require.Equal(t, []string{testDetailURL}, sess.visits())

	require.Equal(t, "1234567893", fields.NPI)
	require.Equal(t, "SMITH HOME CARE LLC", fields.ProviderName)
	require.Equal(t, "SMITH HOME CARE LLC", fields.AgencyName)
	require.Equal(t, "(919) 555-0123", fields.Phone)
	require.Equal(t, "05/21/2007", fields.EnumerationDate)
	require.Equal(t, &Address{Street: "12 Oak St", City: "Raleigh", State: "NC", Zip: "27601"}, fields.Address)
	require.Equal(t, &Official{Name: "JANE SMITH", Title: "OWNER"}, fields.Official)
}

func TestExtractDetailArchivesPage(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(map[string]fakePage{
		testDetailURL: {html: detailPageHTML},
	})
	snaps := archivemem.New()
	ext := newTestExtractor()
	ext.Archive = NewPageArchiver(snaps, sha256.New(), newSteppingClock(), zap.NewNop())

	_, err := ext.ExtractDetail(context.Background(), sess, ResultStub{DetailURL: testDetailURL})
	require.NoError(t, err)

	digest, err := sha256.New().Hash([]byte(detailPageHTML))
	require.NoError(t, err)
	stored, ok := snaps.Object("pages/2025-06-01/detail/" + digest + ".html")
	require.True(t, ok)
	require.Equal(t, detailPageHTML, string(stored))
	require.Equal(t, 1, snaps.Len())
}

func TestExtractDetailChallengeBlocks(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(map[string]fakePage{
		testDetailURL: {title: "Just a moment...", html: challengePageHTML},
	})
	snaps := archivemem.New()
	ext := newTestExtractor()
	ext.Archive = NewPageArchiver(snaps, sha256.New(), newSteppingClock(), zap.NewNop())

	fields, err := ext.ExtractDetail(context.Background(), sess, ResultStub{DetailURL: testDetailURL})
	require.ErrorIs(t, err, ErrBlockedByDefense)
	require.True(t, fields.empty())
	// challenge pages are never archived
	require.Equal(t, 0, snaps.Len())
}

func TestExtractDetailUnrecognizedTinyPage(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(map[string]fakePage{
		testDetailURL: {html: "<html><body><p>nothing here</p></body></html>"},
	})
	ext := newTestExtractor()

	_, err := ext.ExtractDetail(context.Background(), sess, ResultStub{DetailURL: testDetailURL})
	require.ErrorIs(t, err, ErrSelectorNotFound)
}

func TestExtractDetailKeepsSparseFields(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(map[string]fakePage{
		testDetailURL: {html: "<html><body><p>Phone: 919-555-0123</p></body></html>"},
	})
	ext := newTestExtractor()

	fields, err := ext.ExtractDetail(context.Background(), sess, ResultStub{DetailURL: testDetailURL})
	require.NoError(t, err)
	require.Equal(t, "919-555-0123", fields.Phone)
	require.Empty(t, fields.NPI)
	require.Nil(t, fields.Address)
}

func TestExtractDetailNavigateFailure(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(nil)
	sess.failNavigate(testDetailURL, errors.New("connection refused"))
	ext := newTestExtractor()

	_, err := ext.ExtractDetail(context.Background(), sess, ResultStub{DetailURL: testDetailURL})
	require.ErrorContains(t, err, "detail "+testDetailURL)
	require.ErrorContains(t, err, "connection refused")
	require.False(t, IsRetryable(err))
}

func TestExtractDetailTimeoutAfterRetry(t *testing.T) {
	t.Parallel()

	sess := newFakeSession(nil)
	sess.failNavigate(testDetailURL, timeoutErr{}, timeoutErr{})
	ext := newTestExtractor()

	_, err := ext.ExtractDetail(context.Background(), sess, ResultStub{DetailURL: testDetailURL})
	require.ErrorIs(t, err, ErrNavigationTimeout)
	require.Empty(t, sess.visits())
}
