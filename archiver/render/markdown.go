// Package render turns ordered messages into the canonical Markdown archive
// document. Everything here is pure: same input, byte-identical output. No
// clock reads, no randomness.
//
// Each message is preceded by a machine-readable marker comment carrying its
// natural key, so a previously committed document can be split back into
// blocks and merged with a new batch without re-parsing prose. That is what
// makes append-by-replace updates lossless.
package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/chanvault/chanvault/model"
	"github.com/chanvault/chanvault/utils"
)

const (
	// EmptyTextPlaceholder keeps the document structure well-formed when a
	// message carries no text (file-only messages).
	EmptyTextPlaceholder = "[no text content]"

	ThreadBrokenMarker = "_thread context unavailable_"

	humanTimestampLayout = "2006-01-02 15:04:05 MST"
)

var blockMarkerRe = regexp.MustCompile(`^<!-- msg:(\S+) -->$`)

// Block is one rendered message, addressable by its natural key (the
// source timestamp, unique within a channel).
type Block struct {
	Key  string
	Body string
}

func blockMarker(key string) string {
	return fmt.Sprintf("<!-- msg:%s -->", key)
}

// MessageBlock renders a single message into its block form.
func MessageBlock(msg model.RawMessage, displayName string) Block {
	var lines []string

	when := utils.TimestampTime(msg.SentAt).Format(humanTimestampLayout)
	lines = append(lines, fmt.Sprintf("**%s** (%s)", displayName, when))
	lines = append(lines, "")

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = EmptyTextPlaceholder
	}
	lines = append(lines, text)

	if msg.ThreadRootId != "" {
		lines = append(lines, "", fmt.Sprintf("_in reply to thread %s_", msg.ThreadRootId))
	}
	if msg.ThreadBroken {
		lines = append(lines, "", ThreadBrokenMarker)
	}

	if len(msg.Attachments) > 0 {
		lines = append(lines, "", "Attachments:")
		for _, a := range msg.Attachments {
			lines = append(lines, fmt.Sprintf("- [%s](%s)", a.Name, a.Url))
		}
	}

	if len(msg.Reactions) > 0 {
		parts := make([]string, 0, len(msg.Reactions))
		for _, r := range msg.Reactions {
			parts = append(parts, fmt.Sprintf("%s (%d)", r.Label, r.Count))
		}
		lines = append(lines, "", "Reactions: "+strings.Join(parts, ", "))
	}

	return Block{Key: msg.MessageKey(), Body: strings.Join(lines, "\n")}
}

// MessageBlocks renders a batch, resolving display names through the given
// identity map. Unknown authors use the deterministic fallback form.
func MessageBlocks(msgs []model.RawMessage, identities map[string]string) []Block {
	blocks := make([]Block, 0, len(msgs))
	for _, msg := range msgs {
		name, ok := identities[msg.AuthorId]
		if !ok || name == "" {
			name = "User " + msg.AuthorId
		}
		blocks = append(blocks, MessageBlock(msg, name))
	}
	return blocks
}

// ComposeDocument assembles the full archive document for one channel-day.
// Blocks are ordered by sentAt ascending regardless of input order; equal
// keys keep input order (stable sort, no invented tie-break).
func ComposeDocument(channelName, date string, blocks []Block) string {
	ordered := make([]Block, len(blocks))
	copy(ordered, blocks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return utils.CompareTimestamps(ordered[i].Key, ordered[j].Key) < 0
	})

	var b strings.Builder
	b.WriteString(fmt.Sprintf("# #%s - %s\n\n", channelName, date))
	b.WriteString(fmt.Sprintf("_%d messages archived_\n", len(ordered)))
	for _, blk := range ordered {
		b.WriteString("\n")
		b.WriteString(blockMarker(blk.Key))
		b.WriteString("\n")
		b.WriteString(blk.Body)
		b.WriteString("\n")
	}
	return b.String()
}

// SplitDocument recovers the committed block set from a document body. The
// header is regenerated on compose, only marker-delimited blocks survive
// the round trip.
func SplitDocument(body string) []Block {
	var blocks []Block
	var current *Block
	var buf []string

	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimRight(strings.Join(buf, "\n"), "\n")
		blocks = append(blocks, *current)
		current = nil
		buf = nil
	}

	for _, line := range strings.Split(body, "\n") {
		if m := blockMarkerRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &Block{Key: m[1]}
			continue
		}
		if current != nil {
			buf = append(buf, line)
		}
	}
	flush()
	return blocks
}

// MergeBlocks unions a previously committed block set with a new batch,
// keyed by message timestamp. Existing blocks win so prior content is never
// rewritten, and the returned count is the number of blocks that are
// genuinely new. Re-merging the same batch yields zero.
func MergeBlocks(existing, incoming []Block) ([]Block, int) {
	seen := make(map[string]bool, len(existing))
	merged := make([]Block, 0, len(existing)+len(incoming))
	for _, blk := range existing {
		if seen[blk.Key] {
			continue
		}
		seen[blk.Key] = true
		merged = append(merged, blk)
	}

	added := 0
	for _, blk := range incoming {
		if seen[blk.Key] {
			continue
		}
		seen[blk.Key] = true
		merged = append(merged, blk)
		added++
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return utils.CompareTimestamps(merged[i].Key, merged[j].Key) < 0
	})
	return merged, added
}

// ContainsKeys reports whether the document body already carries every key
// of the given blocks. Used by the archive writer to re-check destination
// state after a write with unknown outcome.
func ContainsKeys(body string, blocks []Block) bool {
	committed := map[string]bool{}
	for _, blk := range SplitDocument(body) {
		committed[blk.Key] = true
	}
	for _, blk := range blocks {
		if !committed[blk.Key] {
			return false
		}
	}
	return true
}
