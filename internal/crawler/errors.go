package crawler

import (
	"errors"
	"fmt"

	"github.com/transitops/notice-crawler/internal/notice"
)

// ErrSessionUnavailable indicates the automation engine could not start a
// browser session (missing binary, allocator failure). Never retried: it
// signals environment misconfiguration, not a transient hiccup.
var ErrSessionUnavailable = errors.New("browser session unavailable")

// permanent is implemented by errors the retry policy must not retry.
type permanent interface {
	Permanent() bool
}

// IsPermanent reports whether err is classified as non-retryable.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}

// PageFetchError wraps a listing page navigation or extraction failure.
type PageFetchError struct {
	Site notice.Site
	Page int
	Err  error
}

func (e *PageFetchError) Error() string {
	return fmt.Sprintf("%s: fetch listing page %d: %v", e.Site, e.Page, e.Err)
}

func (e *PageFetchError) Unwrap() error { return e.Err }

// DetailFetchError wraps a single-record content fetch failure.
type DetailFetchError struct {
	Site notice.Site
	ID   string
	Err  error
}

func (e *DetailFetchError) Error() string {
	return fmt.Sprintf("%s: fetch detail %s: %v", e.Site, e.ID, e.Err)
}

func (e *DetailFetchError) Unwrap() error { return e.Err }

// ParseError indicates the page layout no longer matches the adapter's
// selectors, or a required field is unrecoverably missing. Always permanent:
// retrying cannot fix a structural mismatch.
type ParseError struct {
	Site   notice.Site
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse: %s", e.Site, e.Reason)
}

// Permanent marks parse failures as non-retryable.
func (e *ParseError) Permanent() bool { return true }

// ExhaustedRetriesError is returned after the retry wrapper has used up its
// attempt budget on a transient failure.
type ExhaustedRetriesError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Cause }
