// Package models provides data model definitions for the PamojaStore core.
package models

import "fmt"

// OutcomeKind classifies the result of applying a remote change or tombstone.
type OutcomeKind string

const (
	OutcomeCreated          OutcomeKind = "created"
	OutcomeUpdated          OutcomeKind = "updated"
	OutcomeNoOp             OutcomeKind = "noop"
	OutcomeConflictDetected OutcomeKind = "conflict_detected"
	OutcomeHardDeleted      OutcomeKind = "hard_deleted"
)

// MergeOutcome is the uniform vocabulary every entity merger speaks,
// regardless of entity type. Callers switch on Kind; the remaining fields
// are populated per kind.
type MergeOutcome struct {
	Kind     OutcomeKind
	EntityID UUID
	// Reason explains NoOp and ConflictDetected outcomes.
	Reason string
	// LosingValue records the overwritten (or rejected) serialized value
	// when a conflict was resolved, for audit.
	LosingValue *string
}

// Created reports a row materialized from a remote change.
func Created(id UUID) MergeOutcome {
	return MergeOutcome{Kind: OutcomeCreated, EntityID: id}
}

// Updated reports a local row overwritten by a newer remote value.
func Updated(id UUID) MergeOutcome {
	return MergeOutcome{Kind: OutcomeUpdated, EntityID: id}
}

// NoOp reports a change that was deliberately not applied.
func NoOp(reason string) MergeOutcome {
	return MergeOutcome{Kind: OutcomeNoOp, Reason: reason}
}

// ConflictDetected reports an equal-timestamp tie resolved deterministically.
// The losing value is recorded even though a winner was chosen.
func ConflictDetected(id UUID, reason string, losing *string) MergeOutcome {
	return MergeOutcome{Kind: OutcomeConflictDetected, EntityID: id, Reason: reason, LosingValue: losing}
}

// HardDeleted reports a row physically removed by a tombstone.
func HardDeleted(id UUID) MergeOutcome {
	return MergeOutcome{Kind: OutcomeHardDeleted, EntityID: id}
}

// String renders the outcome for log lines.
func (m MergeOutcome) String() string {
	switch m.Kind {
	case OutcomeNoOp:
		return fmt.Sprintf("noop (%s)", m.Reason)
	case OutcomeConflictDetected:
		return fmt.Sprintf("conflict_detected for %s (%s)", m.EntityID, m.Reason)
	default:
		return fmt.Sprintf("%s %s", m.Kind, m.EntityID)
	}
}
