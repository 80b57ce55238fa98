package checkpoint

import (
	"context"
	"sync"

	"github.com/chanvault/chanvault/model"
)

// FakeStore is an in-memory checkpoint store for tests, with the same
// compare-and-set semantics as the DynamoDB implementation.
type FakeStore struct {
	mu      sync.Mutex
	cursors map[string]model.SyncCheckpoint

	// GetErr, when set, is returned by every Get call.
	GetErr error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{cursors: map[string]model.SyncCheckpoint{}}
}

func (s *FakeStore) Get(ctx context.Context, channelId string) (model.SyncCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return model.SyncCheckpoint{}, s.GetErr
	}
	return s.cursors[channelId], nil
}

func (s *FakeStore) CompareAndSet(ctx context.Context, channelId string, expected, next model.SyncCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursors[channelId].Checkpoint != expected.Checkpoint {
		return ErrCheckpointConflict
	}
	s.cursors[channelId] = next
	return nil
}

// Seed installs a cursor directly.
func (s *FakeStore) Seed(channelId string, cp model.SyncCheckpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[channelId] = cp
}
