package model

// SyncCheckpoint is the durable cursor per channel. Checkpoint is the Slack
// timestamp below which (inclusive) all messages are considered archived;
// empty string means nothing has been archived yet. Counter is the running
// number of distinct messages committed into the archive.
//
// The checkpoint is monotonically non-decreasing and only advanced after the
// corresponding archive write is confirmed durable.
type SyncCheckpoint struct {
	Checkpoint string
	Counter    int64
}
