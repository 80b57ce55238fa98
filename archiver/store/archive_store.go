// Package store persists archive documents to the destination repository
// with optimistic concurrency. The version token is opaque to everything
// above the ArchiveStore interface; the GitHub implementation uses the blob
// SHA.
package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ErrFileNotFound signals the target path does not exist yet. The writer
// takes the Create branch on it.
var ErrFileNotFound = errors.New("archive file not found")

// ErrWriteConflict signals the destination rejected the write because the
// version token was stale. The writer re-reads and retries.
var ErrWriteConflict = errors.New("archive write conflict")

// UnknownOutcomeError wraps a write failure where the destination may or may
// not have committed (timeouts, connection resets, 5xx). The writer must
// re-check destination state before retrying, blind retry would duplicate
// content when the original write landed server side.
type UnknownOutcomeError struct {
	Cause error
}

func (e *UnknownOutcomeError) Error() string {
	return fmt.Sprintf("archive write outcome unknown: %v", e.Cause)
}

func (e *UnknownOutcomeError) Unwrap() error { return e.Cause }

// File is the current state of a remote archive file.
type File struct {
	Body         string
	VersionToken string
}

// ArchiveStore is the narrow interface to the destination file store.
//
// WriteFile with an empty expectedToken creates the file and must fail with
// ErrWriteConflict if the path came into existence concurrently. A non-empty
// expectedToken updates the file and must fail with ErrWriteConflict when
// the token is stale. On success the new version token is returned, which is
// the durable-commit confirmation the checkpoint advance waits for.
type ArchiveStore interface {
	ReadFile(ctx context.Context, repo, branch, path string) (*File, error)
	WriteFile(ctx context.Context, repo, branch, path, body, expectedToken string) (string, error)
}
