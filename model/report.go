package model

import "time"

// MappingOutcome is the per-mapping result of one sweep cycle.
type MappingOutcome struct {
	MappingId     string `json:"mapping_id"`
	ChannelId     string `json:"channel_id"`
	Success       bool   `json:"success"`
	ArchivedCount int64  `json:"archived_count"`
	// Partial is set when the poller hit its page cap and returned only the
	// newest slice of the unarchived backlog. The checkpoint holds position
	// on a partial cycle so the remainder is still reachable next cycle.
	Partial    bool   `json:"partial"`
	ErrorClass string `json:"error_class,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SweepReport aggregates the outcome of one sweep across all active
// mappings. It is the externally observable result of a cycle, there is no
// all-or-nothing result for a multi-mapping run.
type SweepReport struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Outcomes   []MappingOutcome `json:"outcomes"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
}

// Add records one mapping outcome into the report.
func (r *SweepReport) Add(outcome MappingOutcome) {
	r.Outcomes = append(r.Outcomes, outcome)
	if outcome.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
}
