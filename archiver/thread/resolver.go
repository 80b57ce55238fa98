// Package thread pulls full reply chains into the archive batch so a
// rendered document presents the whole exchange together.
package thread

import (
	"context"
	"sort"

	"github.com/chanvault/chanvault/archiver/source"
	"github.com/chanvault/chanvault/model"
	"github.com/chanvault/chanvault/utils"
	Logger "github.com/chanvault/chanvault/utils/log"
)

type Resolver struct {
	source source.ThreadSource
}

func NewResolver(src source.ThreadSource) *Resolver {
	return &Resolver{source: src}
}

// Enrich expands every threaded message in msgs with its sibling replies and
// returns the union, ordered by sentAt ascending. Messages sharing a sentAt
// (should not happen, Slack timestamps are unique per channel) keep their
// source order, the sort is stable and no secondary key is invented.
//
// A failed thread fetch never aborts the batch: the affected messages are
// kept, marked so the renderer can annotate them as missing context.
func (r *Resolver) Enrich(ctx context.Context, channelId string, msgs []model.RawMessage) []model.RawMessage {
	byKey := make(map[string]int, len(msgs))
	merged := make([]model.RawMessage, 0, len(msgs))
	for _, msg := range msgs {
		if _, ok := byKey[msg.MessageKey()]; ok {
			continue
		}
		byKey[msg.MessageKey()] = len(merged)
		merged = append(merged, msg)
	}

	brokenThreads := map[string]bool{}
	fetchedThreads := map[string]bool{}
	for _, msg := range msgs {
		if !msg.InThread() {
			continue
		}
		rootId := msg.ThreadKey()
		if fetchedThreads[rootId] || brokenThreads[rootId] {
			continue
		}

		siblings, err := r.source.FetchThread(ctx, channelId, rootId)
		if err != nil {
			Logger.Log.Warnf("fail to fetch thread %s in channel %s, archiving without context: %v", rootId, channelId, err)
			brokenThreads[rootId] = true
			continue
		}
		fetchedThreads[rootId] = true

		for _, sibling := range siblings {
			if _, ok := byKey[sibling.MessageKey()]; ok {
				continue
			}
			byKey[sibling.MessageKey()] = len(merged)
			merged = append(merged, sibling)
		}
	}

	if len(brokenThreads) > 0 {
		for i := range merged {
			if merged[i].InThread() && brokenThreads[merged[i].ThreadKey()] {
				merged[i].ThreadBroken = true
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return utils.CompareTimestamps(merged[i].SentAt, merged[j].SentAt) < 0
	})
	return merged
}
