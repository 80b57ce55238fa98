package sync

import (
	"context"

	"github.com/chanvault/chanvault/model"
)

// MappingProvider is the orchestrator's view of channel mapping storage.
// Implemented by mappingstore.GormStore in production.
type MappingProvider interface {
	ListActive(ctx context.Context) ([]model.ChannelMapping, error)
	FindActiveByChannel(ctx context.Context, channelId string) (*model.ChannelMapping, error)
	RecordSyncState(ctx context.Context, mappingId string, checkpoint string, archivedCount int64) error
}
