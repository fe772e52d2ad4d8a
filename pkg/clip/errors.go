// ABOUTME: Error taxonomy for load and playback failures
// ABOUTME: Stable codes plus source URL for diagnostics
package clip

import "fmt"

// Code identifies a failure class with a stable string value.
type Code string

const (
	// CodeCouldNotLoad marks transport failures: network errors or
	// non-success responses. Fatal to the in-progress load; retryable.
	CodeCouldNotLoad Code = "COULD_NOT_LOAD"

	// CodeCouldNotDecode marks a chunk that failed to decode after
	// exhausting the byte-offset retry search. Fatal to that chunk only.
	CodeCouldNotDecode Code = "COULD_NOT_DECODE"

	// CodeCouldNotStartPlayback marks a failure to produce or schedule a
	// playable buffer at playback time.
	CodeCouldNotStartPlayback Code = "COULD_NOT_START_PLAYBACK"

	// CodeInvalidOperation marks a no-op misuse, such as playing an
	// already-playing clip. Logged as a warning, never fatal.
	CodeInvalidOperation Code = "INVALID_OPERATION"

	// CodeDisposed rejects waiters that were still pending when the clip
	// was disposed.
	CodeDisposed Code = "DISPOSED"
)

// Error is a tagged failure carrying a stable code, a human message, and
// the source URL of the clip it belongs to.
type Error struct {
	Code    Code
	Message string
	URL     string
	Err     error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.URL)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches errors by code, so callers can compare against sentinel
// &Error{Code: ...} values with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, url string, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		URL:     url,
		Err:     cause,
	}
}
