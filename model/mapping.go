package model

import (
	"time"
)

/*

ChannelMapping is a data model binding one Slack channel to one archive
destination in GitHub.

Id: primary key, use to identify a mapping
CreatedAt: time when entity is created
UpdatedAt: time when entity is updated
SourceChannelId: the channel ID provided by Slack
SourceChannelName: the channel's Slack name, used to derive archive paths
DestinationRepo: "owner/name" of the GitHub repository to archive into
DestinationBranch: branch to commit archive documents to
DestinationFolder: folder prefix inside the repository
Active: whether the sync pipeline should process this mapping. Mappings are
never deleted, deactivation is a flag flip.

LastSyncCheckpoint and ArchivedMessageCount are a denormalized view of the
durable sync cursor for dashboard consumption. The authoritative cursor
lives in the checkpoint store and is advanced with a conditional update.

*/
type ChannelMapping struct {
	Id                string    `gorm:"primaryKey"`
	CreatedAt         time.Time `gorm:"<-:create"`
	UpdatedAt         time.Time
	SourceChannelId   string `gorm:"index:idx_active_channel,unique,where:active"`
	SourceChannelName string
	DestinationRepo   string
	DestinationBranch string
	DestinationFolder string
	Active            bool `gorm:"index:idx_active_channel,unique,where:active"`

	LastSyncCheckpoint   string
	ArchivedMessageCount int64
}
