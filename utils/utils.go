package utils

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ContainsString returns true iff the provided string slice hay contains
// string needle.
func ContainsString(hay []string, needle string) bool {
	for _, str := range hay {
		if str == needle {
			return true
		}
	}
	return false
}

// RandomAlphabetString generates a random lowercase string of given length.
func RandomAlphabetString(length int) string {
	letters := []rune("abcdefghijklmnopqrstuvwxyz")
	b := make([]rune, length)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

// ParseTimestamp splits a Slack native timestamp ("1629484800.000400") into
// whole seconds and microseconds. The fractional part is optional.
func ParseTimestamp(ts string) (int64, int64, bool) {
	parts := strings.SplitN(ts, ".", 2)
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if len(parts) == 1 || parts[1] == "" {
		return sec, 0, true
	}
	frac := parts[1]
	if len(frac) > 6 {
		frac = frac[:6]
	}
	for len(frac) < 6 {
		frac += "0"
	}
	micro, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return sec, micro, true
}

// CompareTimestamps orders two Slack timestamps numerically, returning a
// negative value when a < b, zero when equal and positive when a > b.
// Malformed timestamps fall back to lexicographic comparison so the order
// stays total and deterministic.
func CompareTimestamps(a, b string) int {
	aSec, aMicro, aOk := ParseTimestamp(a)
	bSec, bMicro, bOk := ParseTimestamp(b)
	if !aOk || !bOk {
		return strings.Compare(a, b)
	}
	if aSec != bSec {
		if aSec < bSec {
			return -1
		}
		return 1
	}
	if aMicro != bMicro {
		if aMicro < bMicro {
			return -1
		}
		return 1
	}
	return 0
}

// TimestampNewer returns true iff a is strictly newer than b. An empty b is
// the "never archived" checkpoint, every valid timestamp is newer than it.
func TimestampNewer(a, b string) bool {
	if a == "" {
		return false
	}
	if b == "" {
		return true
	}
	return CompareTimestamps(a, b) > 0
}

// TimestampTime converts a Slack timestamp into a UTC time. Malformed input
// maps to the zero time.
func TimestampTime(ts string) time.Time {
	sec, micro, ok := ParseTimestamp(ts)
	if !ok {
		return time.Time{}
	}
	return time.Unix(sec, micro*1000).UTC()
}

// ArchiveDateOf returns the UTC calendar date of a message timestamp, used
// to bucket messages into per-day archive documents.
func ArchiveDateOf(ts string) string {
	return TimestampTime(ts).Format("2006-01-02")
}

// SanitizeChannelToken turns a channel name into a filesystem safe token by
// replacing every non-alphanumeric character with '-'. The mapping must stay
// bit-exact across runs, archive paths are derived from it.
func SanitizeChannelToken(name string) string {
	return nonAlphanumeric.ReplaceAllString(name, "-")
}

// ArchivePath derives the destination file path for a channel and archive
// date: {folder}/{channel}-{YYYY-MM-DD}.md. Pure function, repeated runs on
// the same day target the same file.
func ArchivePath(folder, channelName, date string) string {
	name := SanitizeChannelToken(channelName) + "-" + date + ".md"
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
