package source

import (
	"context"
	"time"

	"github.com/chanvault/chanvault/archiver"
	"github.com/chanvault/chanvault/model"
	"github.com/chanvault/chanvault/utils"
	Logger "github.com/chanvault/chanvault/utils/log"
	"github.com/slack-go/slack"
)

const (
	// Safety cap on paged history calls per invocation. Hitting the cap is
	// reported as a partial result, never silently truncated.
	maxHistoryPages = 50
	historyPageSize = 200

	fetchAttempts = 3
	retryBaseWait = 500 * time.Millisecond
)

// conversationAPI is the slice of the Slack client the poller needs. A thin
// interface so tests can script paged responses without the network.
type conversationAPI interface {
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
}

// SlackPoller is the pull variant of the message source. It pages through
// conversations.history accumulating only messages strictly newer than the
// checkpoint, and serves thread context through conversations.replies.
type SlackPoller struct {
	api conversationAPI
}

func NewSlackPoller(api conversationAPI) *SlackPoller {
	return &SlackPoller{api: api}
}

// NewSlackPollerFromToken builds a poller with its own Slack client.
func NewSlackPollerFromToken(token string) *SlackPoller {
	return NewSlackPoller(slack.New(token))
}

// FetchSince implements MessageSource. Pages are requested in Slack's native
// order (newest first) and the loop stops as soon as a page runs past the
// checkpoint, there is nothing older left to archive.
func (p *SlackPoller) FetchSince(ctx context.Context, channelId string, since string) ([]model.RawMessage, bool, error) {
	var collected []model.RawMessage
	cursor := ""
	partial := false

	for page := 0; page < maxHistoryPages; page++ {
		resp, err := p.historyPage(ctx, channelId, since, cursor)
		if err != nil {
			return nil, false, &archiver.SourceUnavailableError{ChannelId: channelId, Attempts: fetchAttempts, Cause: err}
		}

		reachedCheckpoint := false
		for _, msg := range resp.Messages {
			if !utils.TimestampNewer(msg.Timestamp, since) {
				reachedCheckpoint = true
				continue
			}
			raw, ok := normalizeSlackMessage(channelId, msg)
			if !ok {
				continue
			}
			collected = append(collected, raw)
		}

		if reachedCheckpoint || !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			return collected, false, nil
		}
		cursor = resp.ResponseMetaData.NextCursor

		if page == maxHistoryPages-1 {
			partial = true
		}
	}

	Logger.Log.Warnf("channel %s hit the %d page cap, returning partial backlog of %d messages", channelId, maxHistoryPages, len(collected))
	return collected, partial, nil
}

// FetchThread implements ThreadSource. Replies come back oldest first from
// Slack, the resolver re-sorts anyway so we only normalize here.
func (p *SlackPoller) FetchThread(ctx context.Context, channelId string, threadRootId string) ([]model.RawMessage, error) {
	var collected []model.RawMessage
	cursor := ""

	for page := 0; page < maxHistoryPages; page++ {
		msgs, hasMore, nextCursor, err := p.repliesPage(ctx, channelId, threadRootId, cursor)
		if err != nil {
			return nil, &archiver.ThreadUnavailableError{ChannelId: channelId, ThreadRootId: threadRootId, Cause: err}
		}
		for _, msg := range msgs {
			raw, ok := normalizeSlackMessage(channelId, msg)
			if !ok {
				continue
			}
			collected = append(collected, raw)
		}
		if !hasMore || nextCursor == "" {
			return collected, nil
		}
		cursor = nextCursor
	}

	Logger.Log.Warnf("thread %s in channel %s hit the %d page cap, archiving truncated context of %d messages", threadRootId, channelId, maxHistoryPages, len(collected))
	return collected, nil
}

func (p *SlackPoller) historyPage(ctx context.Context, channelId, since, cursor string) (*slack.GetConversationHistoryResponse, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelId,
		Oldest:    since,
		Limit:     historyPageSize,
		Cursor:    cursor,
	}

	var resp *slack.GetConversationHistoryResponse
	var err error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		resp, err = p.api.GetConversationHistoryContext(ctx, params)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		Logger.Log.Warnf("conversations.history failed for channel %s (attempt %d/%d): %v", channelId, attempt, fetchAttempts, err)
		if attempt < fetchAttempts {
			time.Sleep(retryBaseWait * time.Duration(attempt))
		}
	}
	return nil, err
}

func (p *SlackPoller) repliesPage(ctx context.Context, channelId, threadRootId, cursor string) ([]slack.Message, bool, string, error) {
	params := &slack.GetConversationRepliesParameters{
		ChannelID: channelId,
		Timestamp: threadRootId,
		Limit:     historyPageSize,
		Cursor:    cursor,
	}

	var msgs []slack.Message
	var hasMore bool
	var nextCursor string
	var err error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		msgs, hasMore, nextCursor, err = p.api.GetConversationRepliesContext(ctx, params)
		if err == nil {
			return msgs, hasMore, nextCursor, nil
		}
		if ctx.Err() != nil {
			return nil, false, "", ctx.Err()
		}
		Logger.Log.Warnf("conversations.replies failed for thread %s (attempt %d/%d): %v", threadRootId, attempt, fetchAttempts, err)
		if attempt < fetchAttempts {
			time.Sleep(retryBaseWait * time.Duration(attempt))
		}
	}
	return nil, false, "", err
}

// normalizeSlackMessage maps one Slack API message into the RawMessage
// shape. Returns false for non-content events.
func normalizeSlackMessage(channelId string, msg slack.Message) (model.RawMessage, bool) {
	if !isContentSubType(msg.SubType) {
		return model.RawMessage{}, false
	}

	author := msg.User
	if author == "" {
		author = msg.BotID
	}
	if author == "" || msg.Timestamp == "" {
		return model.RawMessage{}, false
	}

	raw := model.RawMessage{
		SourceChannelId: channelId,
		AuthorId:        author,
		Text:            msg.Text,
		SentAt:          msg.Timestamp,
	}
	if msg.ThreadTimestamp != "" && msg.ThreadTimestamp != msg.Timestamp {
		raw.ThreadRootId = msg.ThreadTimestamp
	}
	if msg.ThreadTimestamp == msg.Timestamp && msg.ReplyCount > 0 {
		raw.IsThreadRoot = true
	}
	for _, f := range msg.Files {
		raw.Attachments = append(raw.Attachments, model.Attachment{Name: f.Name, Url: f.URLPrivate})
	}
	for _, r := range msg.Reactions {
		raw.Reactions = append(raw.Reactions, model.Reaction{Label: r.Name, Count: r.Count})
	}
	return raw, true
}
