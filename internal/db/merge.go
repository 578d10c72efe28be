package db

import (
	"database/sql"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/anyamene/pamojastore/internal/auth"
	"github.com/anyamene/pamojastore/internal/errors"
	"github.com/anyamene/pamojastore/internal/models"
)

// mergeRemoteChange applies one remote change log entry to a shadow-mapped
// table. The sequence is the same for every entity type:
//
//  1. A tombstone for the entity wins over everything; the change is dropped.
//  2. Self-echoes (changes this device originated) are dropped.
//  3. Creates materialize the row, then fold the payload field by field.
//  4. Updates go through the per-field last-write-wins gate.
//  5. Soft deletes are a local workflow state and never replicate.
//
// Hard deletes are not handled here: the sync layer routes them through the
// delete service so remote and local deletion share one cascade.
func mergeRemoteChange(tx *sql.Tx, tombstones *TombstoneStore, spec tableSpec, authCtx auth.Context, change *models.ChangeLogEntry) (models.MergeOutcome, error) {
	if change.EntityTable != spec.name {
		return models.MergeOutcome{}, errors.Newf(errors.ErrMergeRouting,
			"change targets %s, merger handles %s", change.EntityTable, spec.name)
	}
	if authCtx.IsLocalChange(change) {
		logrus.WithFields(logrus.Fields{
			"operation_id": change.OperationID,
			"entity_table": spec.name,
			"entity_id":    change.EntityID,
		}).Debug("skipping change originated on this device")
		return models.NoOp("change originated on this device"), nil
	}

	if _, err := tombstones.FindByEntityTx(tx, spec.name, change.EntityID); err == nil {
		logrus.WithFields(logrus.Fields{
			"operation_id": change.OperationID,
			"entity_table": spec.name,
			"entity_id":    change.EntityID,
		}).Debug("dropping change for tombstoned entity")
		return models.NoOp(fmt.Sprintf("%s %s is tombstoned", spec.name, change.EntityID)), nil
	} else if !errors.IsNotFound(err) {
		return models.MergeOutcome{}, err
	}

	switch change.OperationType {
	case models.OpCreate:
		return mergeRemoteCreate(tx, spec, change)
	case models.OpUpdate:
		if change.FieldName == nil {
			return mergeFullState(tx, spec, change)
		}
		return mergeFieldLWW(tx, spec, change)
	case models.OpDelete:
		// Soft deletes reflect a device-local review workflow and are
		// intentionally not replicated.
		logrus.WithFields(logrus.Fields{
			"operation_id": change.OperationID,
			"entity_table": spec.name,
			"entity_id":    change.EntityID,
		}).Debug("ignoring remote soft delete")
		return models.NoOp("soft deletes do not replicate"), nil
	case models.OpHardDelete:
		return models.MergeOutcome{}, errors.Newf(errors.ErrMergeRouting,
			"hard deletes for %s go through the delete service", spec.name)
	default:
		return models.MergeOutcome{}, errors.Newf(errors.ErrMergeRouting,
			"unknown operation type %q", change.OperationType)
	}
}

// mergeRemoteCreate lands a remote create. A create for a row that already
// exists is folded field by field instead of rejected, which makes replayed
// creates idempotent and converges devices that both created the same entity.
func mergeRemoteCreate(tx *sql.Tx, spec tableSpec, change *models.ChangeLogEntry) (models.MergeOutcome, error) {
	existed, err := rowExists(tx, spec, change.EntityID)
	if err != nil {
		return models.MergeOutcome{}, err
	}
	if err := materializeRow(tx, spec, change.EntityID, change); err != nil {
		return models.MergeOutcome{}, err
	}
	if change.NewValue != nil {
		outcome, err := mergeFullState(tx, spec, change)
		if err != nil {
			return models.MergeOutcome{}, err
		}
		if existed {
			return outcome, nil
		}
	} else if existed {
		return models.NoOp("create replay for existing row"), nil
	}
	return models.Created(change.EntityID), nil
}

func rowExists(tx *sql.Tx, spec tableSpec, id models.UUID) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)", spec.name)
	var exists bool
	if err := tx.QueryRow(query, id).Scan(&exists); err != nil {
		return false, pkgerrors.Wrapf(err, "check %s existence", spec.name)
	}
	return exists, nil
}
