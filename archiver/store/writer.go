package store

import (
	"context"

	"github.com/chanvault/chanvault/archiver"
	"github.com/chanvault/chanvault/archiver/render"
	Logger "github.com/chanvault/chanvault/utils/log"
	"github.com/pkg/errors"
)

const defaultWriteAttempts = 3

// Writer runs the Check/Create/Update cycle against an ArchiveStore with
// optimistic concurrency. Updates are append-by-replace: the previously
// committed block set is read back, unioned with the new batch and the full
// document is rewritten, so no prior content is ever lost.
type Writer struct {
	store       ArchiveStore
	maxAttempts int
}

func NewWriter(store ArchiveStore) *Writer {
	return &Writer{store: store, maxAttempts: defaultWriteAttempts}
}

// Commit durably writes the union of the existing document and the new
// blocks, returning how many blocks were genuinely new. Zero with a nil
// error means everything was already committed and no write was issued.
//
// Losing the version token race transitions back to Check (re-read,
// re-merge, retry) up to the attempt budget, then fails with a
// ConcurrentModificationError for this mapping only.
func (w *Writer) Commit(ctx context.Context, repo, branch, path, channelName, date string, blocks []render.Block) (int, error) {
	if len(blocks) == 0 {
		return 0, nil
	}

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		// Check: current state of the target path.
		var existing []render.Block
		token := ""
		current, err := w.store.ReadFile(ctx, repo, branch, path)
		if err != nil && err != ErrFileNotFound {
			return 0, errors.Wrap(err, "fail to check archive state for "+path)
		}
		if current != nil {
			existing = render.SplitDocument(current.Body)
			token = current.VersionToken
		}

		merged, added := render.MergeBlocks(existing, blocks)
		if added == 0 && current != nil {
			// Everything in this batch is already committed, idempotent
			// re-delivery. Nothing to write.
			return 0, nil
		}
		body := render.ComposeDocument(channelName, date, merged)

		// Create or Update depending on what Check found.
		_, err = w.store.WriteFile(ctx, repo, branch, path, body, token)
		if err == nil {
			return added, nil
		}

		if err == ErrWriteConflict {
			Logger.Log.Warnf("archive write conflict on %s (attempt %d/%d), re-reading", path, attempt, w.maxAttempts)
			continue
		}

		var unknown *UnknownOutcomeError
		if errors.As(err, &unknown) {
			// The write may have landed. Re-check before retrying to avoid
			// double-committing the same content.
			after, readErr := w.store.ReadFile(ctx, repo, branch, path)
			if readErr == nil && render.ContainsKeys(after.Body, blocks) {
				Logger.Log.Warnf("archive write on %s reported unknown outcome but landed, continuing", path)
				return added, nil
			}
			Logger.Log.Warnf("archive write on %s has unknown outcome (attempt %d/%d): %v", path, attempt, w.maxAttempts, unknown.Cause)
			continue
		}

		return 0, err
	}

	return 0, &archiver.ConcurrentModificationError{Target: path, Attempts: w.maxAttempts}
}
