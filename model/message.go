package model

// Attachment is a lightweight reference to a file shared in a message. The
// pipeline never downloads the file, it only records name and remote locator.
type Attachment struct {
	Name string
	Url  string
}

// Reaction is an aggregated emoji reaction on a message.
type Reaction struct {
	Label string
	Count int
}

/*

RawMessage is the normalized unit of conversation content, independent of
whether it arrived through the push webhook or the poll adapter.

SourceChannelId: Slack channel the message belongs to
AuthorId: opaque Slack user id, resolved to a display name at render time
Text: message body, may be empty for file-only messages
SentAt: Slack native timestamp ("1629484800.000400"). Unique within a
channel, so (SourceChannelId, SentAt) is the natural key for idempotence
and ordering.
ThreadRootId: timestamp of the thread root when this message is a reply.
Empty when the message is not part of a thread or is the root itself.
IsThreadRoot: set when the source marks this message as rooting a thread.
ThreadBroken: set when thread context could not be fetched, rendered as a
"thread context unavailable" marker instead of failing the sync.

*/
type RawMessage struct {
	SourceChannelId string
	AuthorId        string
	Text            string
	SentAt          string
	ThreadRootId    string
	IsThreadRoot    bool
	ThreadBroken    bool
	Attachments     []Attachment
	Reactions       []Reaction
}

// MessageKey returns the natural key of the message within its channel.
func (m *RawMessage) MessageKey() string {
	return m.SentAt
}

// InThread returns true iff the message is a thread reply or roots a thread.
func (m *RawMessage) InThread() bool {
	return m.ThreadRootId != "" || m.IsThreadRoot
}

// ThreadKey returns the timestamp identifying the thread this message
// belongs to, falling back to the message's own timestamp for roots.
func (m *RawMessage) ThreadKey() string {
	if m.ThreadRootId != "" {
		return m.ThreadRootId
	}
	return m.SentAt
}
