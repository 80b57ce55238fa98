// Package checkpoint persists the per-channel sync cursor. The cursor is
// the only cross-invocation shared mutable state of the pipeline and is
// mutated through a single conditional update per mapping per cycle, which
// prevents lost updates from overlapping invocations.
package checkpoint

import (
	"context"

	"github.com/chanvault/chanvault/model"
	"github.com/pkg/errors"
)

// ErrCheckpointConflict signals the conditional update found a cursor that
// no longer matches what this invocation read. Another invocation advanced
// it; the archive content itself is safe because writes are idempotent.
var ErrCheckpointConflict = errors.New("checkpoint compare-and-set conflict")

// Store is the narrow interface to the external key-value table.
type Store interface {
	// Get returns the current cursor for a channel. A channel that was
	// never synced yields the zero SyncCheckpoint.
	Get(ctx context.Context, channelId string) (model.SyncCheckpoint, error)

	// CompareAndSet advances the cursor only if the stored value still
	// equals expected, returning ErrCheckpointConflict otherwise.
	CompareAndSet(ctx context.Context, channelId string, expected, next model.SyncCheckpoint) error
}
