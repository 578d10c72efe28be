package sync

import (
	"context"
	"database/sql"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/anyamene/pamojastore/internal/auth"
	"github.com/anyamene/pamojastore/internal/db"
	"github.com/anyamene/pamojastore/internal/errors"
	"github.com/anyamene/pamojastore/internal/models"
)

// BatchError records one change that failed to apply.
type BatchError struct {
	OperationID models.UUID
	EntityTable string
	Err         error
}

// BatchSummary reports what a batch application did.
type BatchSummary struct {
	Total       int
	Created     int
	Updated     int
	NoOps       int
	Conflicts   int
	HardDeleted int
	Failed      int
	Errors      []BatchError
}

// Applied is the number of changes that landed in some form.
func (s BatchSummary) Applied() int {
	return s.Created + s.Updated + s.Conflicts + s.HardDeleted
}

// Orchestrator drives batch application of remote changes and tombstones.
//
// The default mode applies each change in its own transaction: one bad
// change is recorded and skipped while the rest of the batch lands, which
// matters when devices sync rarely and batches are large. Strict mode wraps
// the whole batch in a single transaction and rolls everything back on the
// first failure.
type Orchestrator struct {
	db       *db.DB
	registry *Registry
	stats    *Stats
	log      *logrus.Entry
	strict   bool
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(database *db.DB, registry *Registry, strict bool, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		db:       database,
		registry: registry,
		stats:    NewStats(),
		log:      log,
		strict:   strict,
	}
}

// Stats returns the running outcome counters.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// ApplyBatch applies remote changes, then remote tombstones. Changes are
// replayed in (timestamp, operation_id) order so every device folds the same
// batch identically. Tombstones go last: a delete must win over any change
// for the same entity that rode in the same batch.
//
// Cancellation is honored between changes; a cancelled batch returns the
// partial summary alongside the context error.
func (o *Orchestrator) ApplyBatch(ctx context.Context, authCtx auth.Context, changes []models.ChangeLogEntry, tombstones []models.Tombstone) (BatchSummary, error) {
	ordered := make([]models.ChangeLogEntry, len(changes))
	copy(ordered, changes)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Timestamp != ordered[j].Timestamp {
			return ordered[i].Timestamp < ordered[j].Timestamp
		}
		return ordered[i].OperationID < ordered[j].OperationID
	})

	summary := BatchSummary{Total: len(ordered) + len(tombstones)}

	if o.strict {
		err := db.WithTx(ctx, o.db, func(tx *sql.Tx) error {
			for i := range ordered {
				if err := ctx.Err(); err != nil {
					return errors.Wrap(errors.ErrBatchCancelled, "batch cancelled", err)
				}
				outcome, err := o.applyChangeTx(tx, authCtx, &ordered[i])
				if err != nil {
					return err
				}
				o.record(&summary, &ordered[i], outcome)
			}
			for i := range tombstones {
				outcome, err := o.applyTombstoneTx(tx, authCtx, &tombstones[i])
				if err != nil {
					return err
				}
				o.recordTombstone(&summary, &tombstones[i], outcome)
			}
			return nil
		})
		if err != nil {
			// All-or-nothing: the partial counts never committed.
			return BatchSummary{Total: summary.Total, Failed: summary.Total,
				Errors: []BatchError{{Err: err}}}, err
		}
		return summary, nil
	}

	for i := range ordered {
		if err := ctx.Err(); err != nil {
			return summary, errors.Wrap(errors.ErrBatchCancelled, "batch cancelled", err)
		}
		change := &ordered[i]
		var outcome models.MergeOutcome
		err := db.WithTx(ctx, o.db, func(tx *sql.Tx) error {
			var err error
			outcome, err = o.applyChangeTx(tx, authCtx, change)
			return err
		})
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, BatchError{
				OperationID: change.OperationID,
				EntityTable: change.EntityTable,
				Err:         err,
			})
			o.log.WithFields(logrus.Fields{
				"operation_id": change.OperationID,
				"entity_table": change.EntityTable,
				"entity_id":    change.EntityID,
			}).WithError(err).Warn("change failed to apply")
			continue
		}
		o.record(&summary, change, outcome)
	}

	for i := range tombstones {
		if err := ctx.Err(); err != nil {
			return summary, errors.Wrap(errors.ErrBatchCancelled, "batch cancelled", err)
		}
		t := &tombstones[i]
		var outcome models.MergeOutcome
		err := db.WithTx(ctx, o.db, func(tx *sql.Tx) error {
			var err error
			outcome, err = o.applyTombstoneTx(tx, authCtx, t)
			return err
		})
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, BatchError{
				OperationID: t.OperationID,
				EntityTable: t.EntityType,
				Err:         err,
			})
			o.log.WithFields(logrus.Fields{
				"entity_type": t.EntityType,
				"entity_id":   t.EntityID,
			}).WithError(err).Warn("tombstone failed to apply")
			continue
		}
		o.recordTombstone(&summary, t, outcome)
	}

	o.log.WithFields(logrus.Fields{
		"total":     summary.Total,
		"created":   summary.Created,
		"updated":   summary.Updated,
		"noops":     summary.NoOps,
		"conflicts": summary.Conflicts,
		"deleted":   summary.HardDeleted,
		"failed":    summary.Failed,
	}).Info("batch applied")
	return summary, nil
}

func (o *Orchestrator) applyChangeTx(tx *sql.Tx, authCtx auth.Context, change *models.ChangeLogEntry) (models.MergeOutcome, error) {
	merger, err := o.registry.ForTable(change.EntityTable)
	if err != nil {
		return models.MergeOutcome{}, err
	}
	outcome, err := merger.ApplyChange(tx, authCtx, change)
	if err != nil {
		return models.MergeOutcome{}, errors.Wrap(errors.ErrMergeFailed, "apply change", err)
	}
	return outcome, nil
}

func (o *Orchestrator) applyTombstoneTx(tx *sql.Tx, authCtx auth.Context, t *models.Tombstone) (models.MergeOutcome, error) {
	merger, err := o.registry.ForTable(t.EntityType)
	if err != nil {
		return models.MergeOutcome{}, err
	}
	outcome, err := merger.ApplyTombstone(tx, authCtx, t)
	if err != nil {
		return models.MergeOutcome{}, errors.Wrap(errors.ErrMergeFailed, "apply tombstone", err)
	}
	return outcome, nil
}

func (o *Orchestrator) record(summary *BatchSummary, change *models.ChangeLogEntry, outcome models.MergeOutcome) {
	o.stats.Record(outcome)
	switch outcome.Kind {
	case models.OutcomeCreated:
		summary.Created++
	case models.OutcomeUpdated:
		summary.Updated++
	case models.OutcomeNoOp:
		summary.NoOps++
	case models.OutcomeConflictDetected:
		summary.Conflicts++
		o.log.WithFields(logrus.Fields{
			"operation_id": change.OperationID,
			"entity_table": change.EntityTable,
			"entity_id":    change.EntityID,
			"reason":       outcome.Reason,
		}).Info("conflict resolved")
	case models.OutcomeHardDeleted:
		summary.HardDeleted++
	}
}

func (o *Orchestrator) recordTombstone(summary *BatchSummary, t *models.Tombstone, outcome models.MergeOutcome) {
	o.stats.Record(outcome)
	switch outcome.Kind {
	case models.OutcomeHardDeleted:
		summary.HardDeleted++
	case models.OutcomeNoOp:
		summary.NoOps++
	default:
		summary.NoOps++
	}
}
