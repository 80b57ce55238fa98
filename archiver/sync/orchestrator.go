// Package sync drives one full archive cycle across all active channel
// mappings with per-mapping failure isolation: one bad mapping never aborts
// the batch, and the checkpoint of a failed mapping is left untouched so the
// next cycle retries from the same point.
package sync

import (
	"context"
	"sort"
	"time"

	"github.com/chanvault/chanvault/archiver"
	"github.com/chanvault/chanvault/archiver/checkpoint"
	"github.com/chanvault/chanvault/archiver/identity"
	"github.com/chanvault/chanvault/archiver/render"
	"github.com/chanvault/chanvault/archiver/source"
	"github.com/chanvault/chanvault/archiver/store"
	"github.com/chanvault/chanvault/archiver/thread"
	"github.com/chanvault/chanvault/model"
	"github.com/chanvault/chanvault/utils"
	Logger "github.com/chanvault/chanvault/utils/log"
)

type Orchestrator struct {
	mappings       MappingProvider
	messageSource  source.MessageSource
	threads        *thread.Resolver
	identitySource source.IdentitySource
	identityCache  identity.SharedCache
	writer         *store.Writer
	checkpoints    checkpoint.Store
	reporter       *Reporter
}

func NewOrchestrator(
	mappings MappingProvider,
	messageSource source.MessageSource,
	threads *thread.Resolver,
	identitySource source.IdentitySource,
	identityCache identity.SharedCache,
	writer *store.Writer,
	checkpoints checkpoint.Store,
	reporter *Reporter,
) *Orchestrator {
	return &Orchestrator{
		mappings:       mappings,
		messageSource:  messageSource,
		threads:        threads,
		identitySource: identitySource,
		identityCache:  identityCache,
		writer:         writer,
		checkpoints:    checkpoints,
		reporter:       reporter,
	}
}

// RunSweep executes one archive cycle over a snapshot of the active
// mappings. Mappings are processed in order, each inside its own isolation
// boundary, so being cut off at mapping i leaves mappings 1..i-1 fully
// committed and mapping i untouched.
func (o *Orchestrator) RunSweep(ctx context.Context) (*model.SweepReport, error) {
	mappings, err := o.mappings.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	report := &model.SweepReport{StartedAt: time.Now()}
	for i := range mappings {
		report.Add(o.SyncMapping(ctx, mappings[i]))
	}
	report.FinishedAt = time.Now()

	if o.reporter != nil {
		o.reporter.ReportSweep(report)
	}
	Logger.Log.Infof("sweep finished: %d succeeded, %d failed", report.Succeeded, report.Failed)
	return report, nil
}

// SyncMapping runs the pipeline for one mapping: fetch since checkpoint,
// enrich, render, write, advance checkpoint. All failures, including
// panics, are captured into the outcome and never propagate.
func (o *Orchestrator) SyncMapping(ctx context.Context, mapping model.ChannelMapping) (outcome model.MappingOutcome) {
	outcome = model.MappingOutcome{MappingId: mapping.Id, ChannelId: mapping.SourceChannelId}

	defer func() {
		if r := recover(); r != nil {
			Logger.Log.Errorf("panic while syncing mapping %s: %v", mapping.Id, r)
			outcome.Success = false
			outcome.ErrorClass = archiver.ErrorClassInternal
			outcome.Error = "panic during sync"
		}
	}()

	cursor, err := o.checkpoints.Get(ctx, mapping.SourceChannelId)
	if err != nil {
		return o.failed(outcome, archiver.ErrorClassCheckpoint, err)
	}

	msgs, partial, err := o.messageSource.FetchSince(ctx, mapping.SourceChannelId, cursor.Checkpoint)
	if err != nil {
		return o.failed(outcome, archiver.ClassOf(err), err)
	}

	// A page-capped fetch covers only the newest slice of the backlog, so it
	// is not anchored to the cursor and must not advance it.
	return o.archiveBatch(ctx, mapping, cursor, msgs, partial, !partial)
}

// HandleInboundMessage archives one push-delivered message through the same
// pipeline. A message for an unmapped channel, or one at or below the
// channel checkpoint (idempotent re-delivery), is a success no-op.
func (o *Orchestrator) HandleInboundMessage(ctx context.Context, raw *model.RawMessage) (model.MappingOutcome, error) {
	mapping, err := o.mappings.FindActiveByChannel(ctx, raw.SourceChannelId)
	if err != nil {
		return model.MappingOutcome{}, err
	}
	if mapping == nil {
		Logger.Log.Infof("discarding message for unmapped channel %s", raw.SourceChannelId)
		return model.MappingOutcome{ChannelId: raw.SourceChannelId, Success: true}, nil
	}

	outcome := model.MappingOutcome{MappingId: mapping.Id, ChannelId: mapping.SourceChannelId}
	cursor, err := o.checkpoints.Get(ctx, mapping.SourceChannelId)
	if err != nil {
		return o.failed(outcome, archiver.ErrorClassCheckpoint, err), nil
	}
	if !utils.TimestampNewer(raw.SentAt, cursor.Checkpoint) {
		outcome.Success = true
		return outcome, nil
	}

	// A single pushed message says nothing about older messages between the
	// cursor and its timestamp (events dropped while the webhook was down),
	// so the batch is not anchored and the sweep keeps ownership of the
	// cursor.
	result := o.archiveBatch(ctx, *mapping, cursor, []model.RawMessage{*raw}, false, false)
	if o.reporter != nil {
		o.reporter.ReportOutcome(&result)
	}
	return result, nil
}

// archiveBatch is the shared tail of both delivery modes. The checkpoint
// advances only after every affected document write is confirmed durable,
// and only through a conditional update against the cursor we read.
//
// anchored reports whether msgs cover the whole backlog between the cursor
// and the newest message in the batch. Only an anchored batch may advance
// the cursor: advancing on a gapped batch would exclude the unfetched
// remainder below the new cursor forever. Unanchored batches still commit
// their documents and update the counter, the cursor just holds position
// until a full fetch catches up (idempotent merges make the re-read free).
func (o *Orchestrator) archiveBatch(ctx context.Context, mapping model.ChannelMapping, cursor model.SyncCheckpoint, msgs []model.RawMessage, partial bool, anchored bool) model.MappingOutcome {
	outcome := model.MappingOutcome{MappingId: mapping.Id, ChannelId: mapping.SourceChannelId, Partial: partial}

	if len(msgs) == 0 {
		// Empty batch: no write, no checkpoint change, success with count 0.
		outcome.Success = true
		return outcome
	}

	// The next checkpoint is the newest timestamp among the fetched
	// messages. Thread siblings pulled in below may be newer still, but
	// advancing past them could skip a channel message that arrived between
	// the history fetch and the thread fetch; re-reading a sibling next
	// cycle is harmless because document merges are idempotent.
	nextCheckpoint := cursor.Checkpoint
	for _, msg := range msgs {
		if utils.TimestampNewer(msg.SentAt, nextCheckpoint) {
			nextCheckpoint = msg.SentAt
		}
	}

	enriched := o.threads.Enrich(ctx, mapping.SourceChannelId, msgs)

	resolver := identity.NewResolver(o.identitySource, o.identityCache)
	identities := resolver.ResolveAll(ctx, distinctAuthors(enriched))

	totalAdded := int64(0)
	for _, date := range archiveDates(enriched) {
		var batch []model.RawMessage
		for _, msg := range enriched {
			if utils.ArchiveDateOf(msg.SentAt) == date {
				batch = append(batch, msg)
			}
		}

		blocks := render.MessageBlocks(batch, identities)
		path := utils.ArchivePath(mapping.DestinationFolder, mapping.SourceChannelName, date)
		added, err := o.writer.Commit(ctx, mapping.DestinationRepo, mapping.DestinationBranch, path, mapping.SourceChannelName, date, blocks)
		if err != nil {
			return o.failed(outcome, archiver.ClassOf(err), err)
		}
		totalAdded += int64(added)
	}

	next := model.SyncCheckpoint{Checkpoint: cursor.Checkpoint, Counter: cursor.Counter + totalAdded}
	if anchored {
		next.Checkpoint = nextCheckpoint
	}
	if next == cursor {
		outcome.Success = true
		outcome.ArchivedCount = totalAdded
		return outcome
	}
	if err := o.checkpoints.CompareAndSet(ctx, mapping.SourceChannelId, cursor, next); err != nil {
		if err == checkpoint.ErrCheckpointConflict {
			// An overlapping invocation advanced the cursor. The documents
			// are committed and merges are idempotent, so nothing is lost;
			// surface the contention instead of guessing a winner.
			return o.failed(outcome, archiver.ErrorClassConcurrentModification, err)
		}
		return o.failed(outcome, archiver.ErrorClassCheckpoint, err)
	}

	if err := o.mappings.RecordSyncState(ctx, mapping.Id, next.Checkpoint, next.Counter); err != nil {
		// Denormalized view only, the authoritative cursor already moved.
		Logger.Log.Warnf("fail to record sync state for mapping %s: %v", mapping.Id, err)
	}

	outcome.Success = true
	outcome.ArchivedCount = totalAdded
	return outcome
}

func (o *Orchestrator) failed(outcome model.MappingOutcome, class string, err error) model.MappingOutcome {
	Logger.Log.Errorf("mapping %s (channel %s) failed with class %s: %v", outcome.MappingId, outcome.ChannelId, class, err)
	outcome.Success = false
	outcome.ErrorClass = class
	outcome.Error = err.Error()
	return outcome
}

func distinctAuthors(msgs []model.RawMessage) []string {
	seen := map[string]bool{}
	var authors []string
	for _, msg := range msgs {
		if seen[msg.AuthorId] {
			continue
		}
		seen[msg.AuthorId] = true
		authors = append(authors, msg.AuthorId)
	}
	return authors
}

func archiveDates(msgs []model.RawMessage) []string {
	seen := map[string]bool{}
	var dates []string
	for _, msg := range msgs {
		date := utils.ArchiveDateOf(msg.SentAt)
		if seen[date] {
			continue
		}
		seen[date] = true
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}
