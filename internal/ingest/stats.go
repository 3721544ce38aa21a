package ingest

import (
	"sync"
	"sync/atomic"
)

// Stats holds the pipeline counters. Counter updates come from the
// dispatcher and from worker goroutines concurrently.
type Stats struct {
	observed atomic.Uint64
	ingested atomic.Uint64
	deduped  atomic.Uint64
	failed   atomic.Uint64

	mu            sync.Mutex
	failedByStage map[string]uint64
}

// StatsSnapshot is a point-in-time copy of the pipeline counters.
type StatsSnapshot struct {
	Observed      uint64            `json:"observed"`
	Ingested      uint64            `json:"ingested"`
	Deduped       uint64            `json:"deduped"`
	Failed        uint64            `json:"failed"`
	FailedByStage map[string]uint64 `json:"failed_by_stage"`
}

func (s *Stats) recordFailure(stage string) {
	s.failed.Add(1)
	s.mu.Lock()
	if s.failedByStage == nil {
		s.failedByStage = make(map[string]uint64)
	}
	s.failedByStage[stage]++
	s.mu.Unlock()
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Observed:      s.observed.Load(),
		Ingested:      s.ingested.Load(),
		Deduped:       s.deduped.Load(),
		Failed:        s.failed.Load(),
		FailedByStage: make(map[string]uint64),
	}
	s.mu.Lock()
	for stage, n := range s.failedByStage {
		snap.FailedByStage[stage] = n
	}
	s.mu.Unlock()
	return snap
}
