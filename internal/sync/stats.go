package sync

import (
	"sync"

	"github.com/anyamene/pamojastore/internal/models"
)

// Stats accumulates merge outcomes across batches. Safe for concurrent use.
type Stats struct {
	mu        sync.Mutex
	created   int64
	updated   int64
	noOps     int64
	conflicts int64
	deleted   int64
}

// NewStats creates zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// Record counts one outcome.
func (s *Stats) Record(outcome models.MergeOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch outcome.Kind {
	case models.OutcomeCreated:
		s.created++
	case models.OutcomeUpdated:
		s.updated++
	case models.OutcomeNoOp:
		s.noOps++
	case models.OutcomeConflictDetected:
		s.conflicts++
	case models.OutcomeHardDeleted:
		s.deleted++
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Created     int64
	Updated     int64
	NoOps       int64
	Conflicts   int64
	HardDeleted int64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Created:     s.created,
		Updated:     s.updated,
		NoOps:       s.noOps,
		Conflicts:   s.conflicts,
		HardDeleted: s.deleted,
	}
}
