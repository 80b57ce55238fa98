// Package source normalizes the two Slack delivery modes, pull polling and
// push webhook events, into the same RawMessage shape. Both modes exclude
// messages at or below a channel checkpoint, the checkpoint is an exclusive
// lower bound.
package source

import (
	"context"

	"github.com/chanvault/chanvault/model"
	"github.com/chanvault/chanvault/utils"
)

// MessageSource produces the normalized messages of a channel strictly newer
// than the since timestamp. An empty since means the full available history.
// partial is true when the poller hit its page cap and returned only a
// prefix of the backlog, the caller must not treat the result as complete.
type MessageSource interface {
	FetchSince(ctx context.Context, channelId string, since string) (msgs []model.RawMessage, partial bool, err error)
}

// ThreadSource fetches all messages of one thread, root included, in the
// source's own reply order.
type ThreadSource interface {
	FetchThread(ctx context.Context, channelId string, threadRootId string) ([]model.RawMessage, error)
}

// IdentitySource resolves an opaque author id into a display name.
type IdentitySource interface {
	Resolve(ctx context.Context, authorId string) (string, error)
}

// contentSubTypes are the Slack message subtypes that carry conversation
// content. Everything else (channel_join, channel_topic, ...) is noise for
// the archive and gets filtered before normalization.
var contentSubTypes = []string{
	"",
	"bot_message",
	"file_share",
	"me_message",
	"thread_broadcast",
}

func isContentSubType(subType string) bool {
	return utils.ContainsString(contentSubTypes, subType)
}
