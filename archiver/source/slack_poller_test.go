package source

import (
	"context"
	"testing"

	"github.com/chanvault/chanvault/archiver"
	"github.com/pkg/errors"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConversationAPI scripts paged history responses, newest first like the
// real endpoint.
type fakeConversationAPI struct {
	pages       []*slack.GetConversationHistoryResponse
	historyErr  error
	historyCall int

	replies    []slack.Message
	repliesErr error

	// replyPages, when set, overrides replies with one scripted page per
	// call, each claiming more pages remain.
	replyPages  [][]slack.Message
	repliesCall int
}

func (f *fakeConversationAPI) GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	page := f.historyCall
	f.historyCall++
	if page >= len(f.pages) {
		return &slack.GetConversationHistoryResponse{}, nil
	}
	return f.pages[page], nil
}

func (f *fakeConversationAPI) GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
	if f.repliesErr != nil {
		return nil, false, "", f.repliesErr
	}
	if f.replyPages != nil {
		page := f.repliesCall
		f.repliesCall++
		if page >= len(f.replyPages) {
			return nil, false, "", nil
		}
		return f.replyPages[page], true, "next", nil
	}
	return f.replies, false, "", nil
}

func historyMessage(ts, user, text string) slack.Message {
	return slack.Message{Msg: slack.Msg{Timestamp: ts, User: user, Text: text, Type: "message"}}
}

func historyPage(hasMore bool, cursor string, msgs ...slack.Message) *slack.GetConversationHistoryResponse {
	resp := &slack.GetConversationHistoryResponse{HasMore: hasMore, Messages: msgs}
	resp.ResponseMetaData.NextCursor = cursor
	return resp
}

func TestFetchSinceExcludesCheckpoint(t *testing.T) {
	api := &fakeConversationAPI{pages: []*slack.GetConversationHistoryResponse{
		historyPage(false, "",
			historyMessage("300", "U1", "newest"),
			historyMessage("200", "U1", "middle"),
			historyMessage("100", "U1", "oldest"),
		),
	}}
	poller := NewSlackPoller(api)

	msgs, partial, err := poller.FetchSince(context.Background(), "C1", "200")
	require.NoError(t, err)
	assert.False(t, partial)
	require.Len(t, msgs, 1)
	assert.Equal(t, "300", msgs[0].SentAt)
	assert.Equal(t, "C1", msgs[0].SourceChannelId)
}

func TestFetchSinceStopsPagingAtCheckpoint(t *testing.T) {
	api := &fakeConversationAPI{pages: []*slack.GetConversationHistoryResponse{
		historyPage(true, "cursor-1",
			historyMessage("400", "U1", "a"),
			historyMessage("300", "U1", "b"),
		),
		historyPage(true, "cursor-2",
			historyMessage("200", "U1", "c"),
			historyMessage("100", "U1", "d"),
		),
		historyPage(true, "cursor-3",
			historyMessage("50", "U1", "should never be fetched"),
		),
	}}
	poller := NewSlackPoller(api)

	msgs, partial, err := poller.FetchSince(context.Background(), "C1", "150")
	require.NoError(t, err)
	assert.False(t, partial)
	require.Len(t, msgs, 3)
	// second page contained a message at the checkpoint boundary, the third
	// page must not be requested
	assert.Equal(t, 2, api.historyCall)
}

func TestFetchSincePageCapIsPartial(t *testing.T) {
	var pages []*slack.GetConversationHistoryResponse
	for i := 0; i < maxHistoryPages+10; i++ {
		pages = append(pages, historyPage(true, "next", historyMessage("999", "U1", "x")))
	}
	api := &fakeConversationAPI{pages: pages}
	poller := NewSlackPoller(api)

	msgs, partial, err := poller.FetchSince(context.Background(), "C1", "")
	require.NoError(t, err)
	assert.True(t, partial)
	assert.Equal(t, maxHistoryPages, api.historyCall)
	assert.NotEmpty(t, msgs)
}

func TestFetchSinceFiltersNonContentEvents(t *testing.T) {
	join := slack.Message{Msg: slack.Msg{Timestamp: "300", User: "U1", SubType: "channel_join", Text: "joined"}}
	api := &fakeConversationAPI{pages: []*slack.GetConversationHistoryResponse{
		historyPage(false, "", join, historyMessage("200", "U1", "hello")),
	}}
	poller := NewSlackPoller(api)

	msgs, _, err := poller.FetchSince(context.Background(), "C1", "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "200", msgs[0].SentAt)
}

func TestFetchSinceSourceUnavailable(t *testing.T) {
	api := &fakeConversationAPI{historyErr: errors.New("slack is down")}
	poller := NewSlackPoller(api)

	_, _, err := poller.FetchSince(context.Background(), "C1", "")
	require.Error(t, err)
	assert.Equal(t, archiver.ErrorClassSourceUnavailable, archiver.ClassOf(err))
}

func TestFetchThreadNormalizes(t *testing.T) {
	root := slack.Message{Msg: slack.Msg{Timestamp: "100", ThreadTimestamp: "100", User: "U1", Text: "root", ReplyCount: 1}}
	reply := slack.Message{Msg: slack.Msg{Timestamp: "150", ThreadTimestamp: "100", User: "U2", Text: "reply"}}
	api := &fakeConversationAPI{replies: []slack.Message{root, reply}}
	poller := NewSlackPoller(api)

	msgs, err := poller.FetchThread(context.Background(), "C1", "100")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsThreadRoot)
	assert.Equal(t, "", msgs[0].ThreadRootId)
	assert.Equal(t, "100", msgs[1].ThreadRootId)
}

func TestFetchThreadPageCapReturnsTruncatedContext(t *testing.T) {
	var pages [][]slack.Message
	for i := 0; i < maxHistoryPages+5; i++ {
		pages = append(pages, []slack.Message{historyMessage("999", "U1", "x")})
	}
	api := &fakeConversationAPI{replyPages: pages}
	poller := NewSlackPoller(api)

	msgs, err := poller.FetchThread(context.Background(), "C1", "100")
	require.NoError(t, err)
	assert.Len(t, msgs, maxHistoryPages)
	assert.Equal(t, maxHistoryPages, api.repliesCall)
}

func TestFetchThreadUnavailable(t *testing.T) {
	api := &fakeConversationAPI{repliesErr: errors.New("nope")}
	poller := NewSlackPoller(api)

	_, err := poller.FetchThread(context.Background(), "C1", "100")
	require.Error(t, err)
	assert.Equal(t, archiver.ErrorClassThreadUnavailable, archiver.ClassOf(err))
}
