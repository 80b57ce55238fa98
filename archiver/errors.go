// Package archiver defines the typed failure taxonomy shared by the sync
// pipeline. Inner components surface these types instead of opaque errors so
// the orchestrator can tell "retry later" from "skip and move on" from
// "degrade and continue".
package archiver

import (
	"errors"
	"fmt"
)

const (
	ErrorClassValidation             = "validation"
	ErrorClassSourceUnavailable      = "source_unavailable"
	ErrorClassConcurrentModification = "concurrent_modification"
	ErrorClassThreadUnavailable      = "thread_unavailable"
	ErrorClassCheckpoint             = "checkpoint"
	ErrorClassInternal               = "internal"
)

// ValidationError flags a malformed inbound event or a missing required
// field. Never retried, the payload is discarded with a log entry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid inbound event: field %s %s", e.Field, e.Reason)
}

// SourceUnavailableError flags an upstream fetch that failed after bounded
// retries. Isolated to the affected mapping.
type SourceUnavailableError struct {
	ChannelId string
	Attempts  int
	Cause     error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source unavailable for channel %s after %d attempts: %v", e.ChannelId, e.Attempts, e.Cause)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Cause }

// ConcurrentModificationError flags an archive write that lost the
// optimistic concurrency race beyond its retry budget, or a checkpoint
// conditional update that found the cursor moved by an overlapping
// invocation. The checkpoint is not advanced so the next cycle retries
// from the same point.
type ConcurrentModificationError struct {
	Target   string
	Attempts int
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("concurrent modification on %s after %d attempts", e.Target, e.Attempts)
}

// ThreadUnavailableError flags a failed thread context fetch. Non fatal, the
// message is archived alone with a marker.
type ThreadUnavailableError struct {
	ChannelId    string
	ThreadRootId string
	Cause        error
}

func (e *ThreadUnavailableError) Error() string {
	return fmt.Sprintf("thread %s unavailable in channel %s: %v", e.ThreadRootId, e.ChannelId, e.Cause)
}

func (e *ThreadUnavailableError) Unwrap() error { return e.Cause }

// ClassOf buckets any error into the taxonomy for reporting. Unrecognized
// errors are internal, they are still caught at the mapping boundary.
func ClassOf(err error) string {
	var validation *ValidationError
	var source *SourceUnavailableError
	var concurrent *ConcurrentModificationError
	var thread *ThreadUnavailableError
	switch {
	case errors.As(err, &validation):
		return ErrorClassValidation
	case errors.As(err, &source):
		return ErrorClassSourceUnavailable
	case errors.As(err, &concurrent):
		return ErrorClassConcurrentModification
	case errors.As(err, &thread):
		return ErrorClassThreadUnavailable
	default:
		return ErrorClassInternal
	}
}
