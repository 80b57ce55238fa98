package sync

import (
	"context"
	"testing"

	"github.com/chanvault/chanvault/archiver"
	"github.com/chanvault/chanvault/archiver/checkpoint"
	"github.com/chanvault/chanvault/archiver/store"
	"github.com/chanvault/chanvault/archiver/thread"
	"github.com/chanvault/chanvault/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMappingProvider struct {
	mappings []model.ChannelMapping
	listErr  error

	recordedCheckpoint string
	recordedCount      int64
	recordErr          error
}

func (f *fakeMappingProvider) ListActive(ctx context.Context) ([]model.ChannelMapping, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.mappings, nil
}

func (f *fakeMappingProvider) FindActiveByChannel(ctx context.Context, channelId string) (*model.ChannelMapping, error) {
	for i := range f.mappings {
		if f.mappings[i].SourceChannelId == channelId && f.mappings[i].Active {
			return &f.mappings[i], nil
		}
	}
	return nil, nil
}

func (f *fakeMappingProvider) RecordSyncState(ctx context.Context, mappingId string, cp string, archivedCount int64) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recordedCheckpoint = cp
	f.recordedCount = archivedCount
	return nil
}

// fakeMessageSource serves scripted backlogs keyed by channel and also acts
// as the thread and identity source so one fake covers the whole pipeline.
type fakeMessageSource struct {
	backlogs map[string][]model.RawMessage
	fetchErr map[string]error

	// partialOnce, when set, is served by the next FetchSince call with the
	// partial flag raised, mimicking a page-capped fetch that returned only
	// the newest slice of the backlog.
	partialOnce []model.RawMessage

	threads   map[string][]model.RawMessage
	threadErr error

	names map[string]string
}

func newFakeMessageSource() *fakeMessageSource {
	return &fakeMessageSource{
		backlogs: map[string][]model.RawMessage{},
		fetchErr: map[string]error{},
		threads:  map[string][]model.RawMessage{},
		names:    map[string]string{},
	}
}

func (f *fakeMessageSource) FetchSince(ctx context.Context, channelId, since string) ([]model.RawMessage, bool, error) {
	if err := f.fetchErr[channelId]; err != nil {
		return nil, false, err
	}
	if f.partialOnce != nil {
		out := f.partialOnce
		f.partialOnce = nil
		return out, true, nil
	}
	var out []model.RawMessage
	for _, msg := range f.backlogs[channelId] {
		if since == "" || newer(msg.SentAt, since) {
			out = append(out, msg)
		}
	}
	return out, false, nil
}

func (f *fakeMessageSource) FetchThread(ctx context.Context, channelId, threadRootId string) ([]model.RawMessage, error) {
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return f.threads[threadRootId], nil
}

func (f *fakeMessageSource) Resolve(ctx context.Context, authorId string) (string, error) {
	name, ok := f.names[authorId]
	if !ok {
		return "", errors.New("unknown user")
	}
	return name, nil
}

func newer(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

// the test fixture timestamps are whole seconds inside 2021-08-20 UTC
const (
	ts1 = "1629487200.000100"
	ts2 = "1629487300.000100"
	ts3 = "1629487400.000100"
)

func mapping() model.ChannelMapping {
	return model.ChannelMapping{
		Id:                "m1",
		SourceChannelId:   "C1",
		SourceChannelName: "general",
		DestinationRepo:   "acme/archive",
		DestinationBranch: "main",
		DestinationFolder: "archives",
		Active:            true,
	}
}

func channelMsg(ts, author, text string) model.RawMessage {
	return model.RawMessage{SourceChannelId: "C1", AuthorId: author, Text: text, SentAt: ts}
}

type harness struct {
	orchestrator *Orchestrator
	mappings     *fakeMappingProvider
	src          *fakeMessageSource
	archive      *store.FakeArchiveStore
	checkpoints  *checkpoint.FakeStore
}

func newHarness(mappings ...model.ChannelMapping) *harness {
	src := newFakeMessageSource()
	src.names["U1"] = "Jane"
	archive := store.NewFakeArchiveStore()
	checkpoints := checkpoint.NewFakeStore()
	provider := &fakeMappingProvider{mappings: mappings}
	orchestrator := NewOrchestrator(
		provider, src, thread.NewResolver(src), src, nil,
		store.NewWriter(archive), checkpoints, nil)
	return &harness{orchestrator, provider, src, archive, checkpoints}
}

func TestSweepArchivesBacklogAndAdvancesCheckpoint(t *testing.T) {
	h := newHarness(mapping())
	h.src.backlogs["C1"] = []model.RawMessage{
		channelMsg(ts1, "U1", "one"),
		channelMsg(ts2, "U1", "two"),
		channelMsg(ts3, "U1", "three"),
	}

	report, err := h.orchestrator.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, int64(3), report.Outcomes[0].ArchivedCount)

	cp, _ := h.checkpoints.Get(context.Background(), "C1")
	assert.Equal(t, ts3, cp.Checkpoint)
	assert.Equal(t, int64(3), cp.Counter)

	file := h.archive.Current("acme/archive", "main", "archives/general-2021-08-20.md")
	require.NotNil(t, file)
	assert.Contains(t, file.Body, "one")
	assert.Contains(t, file.Body, "three")
	assert.Contains(t, file.Body, "Jane")

	// denormalized view follows the cursor
	assert.Equal(t, ts3, h.mappings.recordedCheckpoint)
	assert.Equal(t, int64(3), h.mappings.recordedCount)
}

func TestSweepSecondRunArchivesNothing(t *testing.T) {
	h := newHarness(mapping())
	h.src.backlogs["C1"] = []model.RawMessage{channelMsg(ts1, "U1", "one")}

	ctx := context.Background()
	_, err := h.orchestrator.RunSweep(ctx)
	require.NoError(t, err)
	writesAfterFirst := h.archive.WriteCalls

	report, err := h.orchestrator.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, int64(0), report.Outcomes[0].ArchivedCount)
	assert.Equal(t, writesAfterFirst, h.archive.WriteCalls)

	cp, _ := h.checkpoints.Get(ctx, "C1")
	assert.Equal(t, int64(1), cp.Counter)
}

func TestSweepIsolatesFailingMapping(t *testing.T) {
	broken := mapping()
	broken.Id = "m0"
	broken.SourceChannelId = "C0"
	h := newHarness(broken, mapping())
	h.src.fetchErr["C0"] = errors.New("slack is down")
	h.src.backlogs["C1"] = []model.RawMessage{channelMsg(ts1, "U1", "one")}

	report, err := h.orchestrator.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.Outcomes[0].Success)
	assert.True(t, report.Outcomes[1].Success)
	assert.Equal(t, int64(1), report.Outcomes[1].ArchivedCount)
}

func TestSweepLeavesCheckpointOnWriteFailure(t *testing.T) {
	h := newHarness(mapping())
	h.src.backlogs["C1"] = []model.RawMessage{channelMsg(ts1, "U1", "one")}
	h.archive.WriteFaults = []*store.WriteFault{
		{Err: store.ErrWriteConflict},
		{Err: store.ErrWriteConflict},
		{Err: store.ErrWriteConflict},
	}

	ctx := context.Background()
	report, err := h.orchestrator.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, archiver.ErrorClassConcurrentModification, report.Outcomes[0].ErrorClass)

	// the cursor must not move past unarchived messages
	cp, _ := h.checkpoints.Get(ctx, "C1")
	assert.Equal(t, "", cp.Checkpoint)
}

func TestSweepCheckpointConflictIsReported(t *testing.T) {
	h := newHarness(mapping())
	ctx := context.Background()

	// another invocation advanced the cursor after this one read it
	h.checkpoints.Seed("C1", model.SyncCheckpoint{Checkpoint: ts1, Counter: 1})
	staleCursor := model.SyncCheckpoint{}

	outcome := h.orchestrator.archiveBatch(ctx, mapping(), staleCursor,
		[]model.RawMessage{channelMsg(ts2, "U1", "racing write")}, false, true)
	assert.False(t, outcome.Success)
	assert.Equal(t, archiver.ErrorClassConcurrentModification, outcome.ErrorClass)

	// the document write landed before the conflict, idempotent merges make
	// the re-fetch next cycle harmless; the winner's cursor is untouched
	file := h.archive.Current("acme/archive", "main", "archives/general-2021-08-20.md")
	require.NotNil(t, file)
	assert.Contains(t, file.Body, "racing write")
	cp, _ := h.checkpoints.Get(ctx, "C1")
	assert.Equal(t, ts1, cp.Checkpoint)
	assert.Equal(t, int64(1), cp.Counter)
}

func TestSweepThreadDegradationStillSucceeds(t *testing.T) {
	h := newHarness(mapping())
	reply := channelMsg(ts2, "U1", "a reply")
	reply.ThreadRootId = ts1
	h.src.backlogs["C1"] = []model.RawMessage{reply}
	h.src.threadErr = errors.New("replies endpoint down")

	report, err := h.orchestrator.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	file := h.archive.Current("acme/archive", "main", "archives/general-2021-08-20.md")
	require.NotNil(t, file)
	assert.Contains(t, file.Body, "a reply")
	assert.Contains(t, file.Body, "_thread context unavailable_")
}

func TestSweepPullsThreadContext(t *testing.T) {
	h := newHarness(mapping())
	root := channelMsg(ts1, "U1", "thread root")
	root.IsThreadRoot = true
	reply := channelMsg(ts2, "U1", "a reply")
	reply.ThreadRootId = ts1
	h.src.backlogs["C1"] = []model.RawMessage{reply}
	h.src.threads[ts1] = []model.RawMessage{root, reply}

	report, err := h.orchestrator.RunSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	// the root came from the thread fetch, both land in the document
	assert.Equal(t, int64(2), report.Outcomes[0].ArchivedCount)

	// the checkpoint tracks the fetched reply, not the older sibling
	cp, _ := h.checkpoints.Get(context.Background(), "C1")
	assert.Equal(t, ts2, cp.Checkpoint)
}

func TestSweepSplitsDocumentsByDate(t *testing.T) {
	h := newHarness(mapping())
	// 1629504000 is 2021-08-21 00:00:00 UTC
	h.src.backlogs["C1"] = []model.RawMessage{
		channelMsg(ts1, "U1", "friday"),
		channelMsg("1629504000.000100", "U1", "saturday"),
	}

	report, err := h.orchestrator.RunSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	assert.Equal(t, int64(2), report.Outcomes[0].ArchivedCount)

	friday := h.archive.Current("acme/archive", "main", "archives/general-2021-08-20.md")
	saturday := h.archive.Current("acme/archive", "main", "archives/general-2021-08-21.md")
	require.NotNil(t, friday)
	require.NotNil(t, saturday)
	assert.Contains(t, friday.Body, "friday")
	assert.Contains(t, saturday.Body, "saturday")
}

func TestSweepPartialFetchHoldsCheckpoint(t *testing.T) {
	h := newHarness(mapping())
	h.src.backlogs["C1"] = []model.RawMessage{
		channelMsg(ts1, "U1", "oldest, beyond the page cap"),
		channelMsg(ts2, "U1", "two"),
		channelMsg(ts3, "U1", "three"),
	}
	// the capped fetch returns only the newest slice; advancing the cursor
	// to ts3 here would exclude the oldest message forever
	h.src.partialOnce = []model.RawMessage{
		channelMsg(ts2, "U1", "two"),
		channelMsg(ts3, "U1", "three"),
	}

	ctx := context.Background()
	report, err := h.orchestrator.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	assert.True(t, report.Outcomes[0].Partial)
	assert.Equal(t, int64(2), report.Outcomes[0].ArchivedCount)

	cp, _ := h.checkpoints.Get(ctx, "C1")
	assert.Equal(t, "", cp.Checkpoint)
	assert.Equal(t, int64(2), cp.Counter)

	// the next full fetch picks up the remainder and only then advances
	report, err = h.orchestrator.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	assert.Equal(t, int64(1), report.Outcomes[0].ArchivedCount)

	cp, _ = h.checkpoints.Get(ctx, "C1")
	assert.Equal(t, ts3, cp.Checkpoint)
	assert.Equal(t, int64(3), cp.Counter)
	assert.Contains(t, h.archive.Current("acme/archive", "main", "archives/general-2021-08-20.md").Body,
		"oldest, beyond the page cap")
}

func TestSweepCheckpointStoreUnavailable(t *testing.T) {
	h := newHarness(mapping())
	h.checkpoints.GetErr = errors.New("table offline")

	report, err := h.orchestrator.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, archiver.ErrorClassCheckpoint, report.Outcomes[0].ErrorClass)
}

func TestInboundMessageArchived(t *testing.T) {
	h := newHarness(mapping())
	msg := channelMsg(ts1, "U1", "pushed")

	outcome, err := h.orchestrator.HandleInboundMessage(context.Background(), &msg)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, int64(1), outcome.ArchivedCount)

	file := h.archive.Current("acme/archive", "main", "archives/general-2021-08-20.md")
	require.NotNil(t, file)
	assert.Contains(t, file.Body, "pushed")

	// the sweep owns the cursor, a push delivery only counts its blocks
	cp, _ := h.checkpoints.Get(context.Background(), "C1")
	assert.Equal(t, "", cp.Checkpoint)
	assert.Equal(t, int64(1), cp.Counter)
}

func TestInboundMessageDoesNotAdvancePastUnsweptBacklog(t *testing.T) {
	h := newHarness(mapping())
	h.src.backlogs["C1"] = []model.RawMessage{
		channelMsg(ts1, "U1", "older one"),
		channelMsg(ts2, "U1", "older two"),
		channelMsg(ts3, "U1", "pushed first"),
	}

	// the newest message arrives by push before the older two were ever
	// swept (their events were dropped while the webhook was down)
	ctx := context.Background()
	pushed := channelMsg(ts3, "U1", "pushed first")
	outcome, err := h.orchestrator.HandleInboundMessage(ctx, &pushed)
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	report, err := h.orchestrator.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	assert.Equal(t, int64(2), report.Outcomes[0].ArchivedCount)

	body := h.archive.Current("acme/archive", "main", "archives/general-2021-08-20.md").Body
	assert.Contains(t, body, "older one")
	assert.Contains(t, body, "older two")
	assert.Contains(t, body, "pushed first")

	cp, _ := h.checkpoints.Get(ctx, "C1")
	assert.Equal(t, ts3, cp.Checkpoint)
	assert.Equal(t, int64(3), cp.Counter)
}

func TestInboundMessageUnmappedChannelIgnored(t *testing.T) {
	h := newHarness(mapping())
	msg := channelMsg(ts1, "U1", "hello")
	msg.SourceChannelId = "C_UNKNOWN"

	outcome, err := h.orchestrator.HandleInboundMessage(context.Background(), &msg)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, int64(0), outcome.ArchivedCount)
	assert.Equal(t, 0, h.archive.WriteCalls)
}

func TestInboundMessageBelowCheckpointIgnored(t *testing.T) {
	h := newHarness(mapping())
	h.checkpoints.Seed("C1", model.SyncCheckpoint{Checkpoint: ts2, Counter: 2})
	msg := channelMsg(ts1, "U1", "late re-delivery")

	outcome, err := h.orchestrator.HandleInboundMessage(context.Background(), &msg)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, int64(0), outcome.ArchivedCount)
	assert.Equal(t, 0, h.archive.WriteCalls)

	cp, _ := h.checkpoints.Get(context.Background(), "C1")
	assert.Equal(t, int64(2), cp.Counter)
}

func TestInboundThenSweepDoesNotDoubleCount(t *testing.T) {
	h := newHarness(mapping())
	msg := channelMsg(ts1, "U1", "pushed first")
	h.src.backlogs["C1"] = []model.RawMessage{msg}

	ctx := context.Background()
	_, err := h.orchestrator.HandleInboundMessage(ctx, &msg)
	require.NoError(t, err)

	report, err := h.orchestrator.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Outcomes[0].ArchivedCount)

	cp, _ := h.checkpoints.Get(ctx, "C1")
	assert.Equal(t, int64(1), cp.Counter)
	assert.Contains(t, h.archive.Current("acme/archive", "main", "archives/general-2021-08-20.md").Body, "_1 messages archived_")
}
