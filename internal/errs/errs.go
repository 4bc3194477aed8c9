// Package errs defines the error taxonomy shared by the archive client, the
// object store adapter, and the origin pipeline: ValidationError, NotFound,
// Transient, Permanent, Oversized, and NoUsableData. Callers distinguish
// them with errors.As, never string matching.
package errs

import "fmt"

// ValidationError means the caller's request was malformed; no retry, no
// stream is opened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NotFound means a path or record does not exist. It is never fatal on its
// own; callers decide whether absence means "treat as missing range" or
// similar.
type NotFound struct {
	Path string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// Transient means the operation may succeed if retried: throttling,
// timeouts, 5xx from the store or archive.
type Transient struct {
	Op  string
	Err error
}

func (e *Transient) Error() string {
	return fmt.Sprintf("transient error during %s: %v", e.Op, e.Err)
}

func (e *Transient) Unwrap() error { return e.Err }

// Permanent means the operation will never succeed as given: non-429 4xx
// from the store/archive, malformed payloads.
type Permanent struct {
	Op  string
	Err error
}

func (e *Permanent) Error() string {
	return fmt.Sprintf("permanent error during %s: %v", e.Op, e.Err)
}

func (e *Permanent) Unwrap() error { return e.Err }

// Oversized means the archive refused a range outright; the caller must
// bisect the interval and recurse.
type Oversized struct {
	Seconds float64
}

func (e *Oversized) Error() string {
	return fmt.Sprintf("archive rejected oversized range of %.0fs", e.Seconds)
}

// NoUsableData means the normalizer produced zero samples after trimming to
// a second boundary. It is not necessarily fatal to the whole request; the
// caller decides whether to surface an empty range or abort entirely.
type NoUsableData struct {
	Reason string
}

func (e *NoUsableData) Error() string {
	return fmt.Sprintf("no usable data: %s", e.Reason)
}

// NoData means the archive had no samples at all for the requested range.
// Unlike NoUsableData (produced after normalization), this comes straight
// from the archive client and is treated as an all-gap interval rather than
// a failure — the range is still chunked, fully interpolated.
type NoData struct {
	Reason string
}

func (e *NoData) Error() string {
	return fmt.Sprintf("no data: %s", e.Reason)
}
