package auction

import "time"

// Resolution outcomes reported to Metrics.
const (
	OutcomeSold    = "sold"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics collects engine counters. See the metrics package for the
// Prometheus implementation.
type Metrics interface {
	RecordBid(outcome string)
	RecordResolution(outcome string, duration time.Duration)
	RecordAdminAction(action string, code string)
	RecordAdminSilence()
	SetActiveRooms(n int)
}

// NoOpMetrics is used when metrics aren't needed.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordBid(string)                       {}
func (NoOpMetrics) RecordResolution(string, time.Duration) {}
func (NoOpMetrics) RecordAdminAction(string, string)       {}
func (NoOpMetrics) RecordAdminSilence()                    {}
func (NoOpMetrics) SetActiveRooms(int)                     {}
