// Package mappingstore reads and mutates channel mapping rows. Mappings are
// created and edited by the administrative dashboard; the sync pipeline only
// snapshots the active set and refreshes the denormalized sync columns.
package mappingstore

import (
	"context"

	"github.com/chanvault/chanvault/model"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// ListActive snapshots all active mappings once per sweep, so a mapping
// edited mid-run does not shift the batch under us.
func (s *GormStore) ListActive(ctx context.Context) ([]model.ChannelMapping, error) {
	var mappings []model.ChannelMapping
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at asc").
		Find(&mappings).Error
	if err != nil {
		return nil, errors.Wrap(err, "fail to list active channel mappings")
	}
	return mappings, nil
}

// FindActiveByChannel returns the single authoritative mapping for a
// channel, or nil when the channel is not mapped.
func (s *GormStore) FindActiveByChannel(ctx context.Context, channelId string) (*model.ChannelMapping, error) {
	var mapping model.ChannelMapping
	err := s.db.WithContext(ctx).
		Where("source_channel_id = ? AND active = ?", channelId, true).
		First(&mapping).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "fail to look up mapping for channel "+channelId)
	}
	return &mapping, nil
}

// RecordSyncState refreshes the denormalized cursor columns after a
// successful sweep. Best effort, the checkpoint store stays authoritative.
func (s *GormStore) RecordSyncState(ctx context.Context, mappingId string, checkpoint string, archivedCount int64) error {
	return s.db.WithContext(ctx).
		Model(&model.ChannelMapping{}).
		Where("id = ?", mappingId).
		Updates(map[string]interface{}{
			"last_sync_checkpoint":   checkpoint,
			"archived_message_count": archivedCount,
		}).Error
}

// Create inserts a new mapping with a generated id. Used by administrative
// tooling and tests.
func (s *GormStore) Create(ctx context.Context, mapping *model.ChannelMapping) error {
	if mapping.Id == "" {
		mapping.Id = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(mapping).Error
}
