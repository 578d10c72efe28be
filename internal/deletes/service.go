package deletes

import (
	"context"
	"database/sql"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/anyamene/pamojastore/internal/auth"
	"github.com/anyamene/pamojastore/internal/db"
	"github.com/anyamene/pamojastore/internal/errors"
	"github.com/anyamene/pamojastore/internal/models"
	"github.com/anyamene/pamojastore/internal/uuid"
)

// Status is the outcome of a delete request.
type Status string

const (
	StatusSoftDeleted Status = "soft_deleted"
	StatusHardDeleted Status = "hard_deleted"
	StatusBlocked     Status = "blocked"
)

// Options steers a delete request.
type Options struct {
	// AllowHardDelete permits physical removal. Without it the service
	// only ever soft-deletes.
	AllowHardDelete bool
	// FallbackToSoftDelete soft-deletes instead of failing when a hard
	// delete is blocked by dependencies.
	FallbackToSoftDelete bool
	// Force skips the dependency check entirely.
	Force bool
	// Origin, when set, marks the delete as enforcement of a remote
	// tombstone: its provenance is stored verbatim and no change log
	// entry is appended, since the deleting device already announced it.
	Origin *models.Tombstone
}

// Result reports what a delete request did.
type Result struct {
	Status       Status
	Dependencies []Dependency
}

// Service coordinates entity deletion. Hard deletes remove the row, queue
// attached files for physical removal, and record a tombstone, all in one
// transaction.
type Service struct {
	db         *db.DB
	changes    *db.ChangeLogStore
	tombstones *db.TombstoneStore
	documents  *db.DocumentStore
	checker    *DependencyChecker
	log        *logrus.Entry
}

// NewService creates a delete Service.
func NewService(database *db.DB, changes *db.ChangeLogStore, tombstones *db.TombstoneStore, documents *db.DocumentStore, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		db:         database,
		changes:    changes,
		tombstones: tombstones,
		documents:  documents,
		checker:    NewDependencyChecker(),
		log:        log,
	}
}

// Delete removes an entity according to opts. Hard deletes and forced
// deletes require an administrator; everyone else gets soft delete at most.
func (s *Service) Delete(ctx context.Context, authCtx auth.Context, entityTable string, entityID models.UUID, opts Options) (Result, error) {
	var result Result
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var txErr error
		result, txErr = s.DeleteTx(tx, authCtx, entityTable, entityID, opts)
		return txErr
	})
	if err != nil {
		return Result{}, err
	}

	s.log.WithFields(logrus.Fields{
		"entity_table": entityTable,
		"entity_id":    entityID,
		"status":       result.Status,
		"forced":       opts.Force,
	}).Info("delete request handled")
	return result, nil
}

// DeleteTx is Delete inside a caller-owned transaction. The entity mergers
// use it to enforce remote hard deletes alongside the rest of a change,
// passing the remote provenance through Options.Origin.
func (s *Service) DeleteTx(tx *sql.Tx, authCtx auth.Context, entityTable string, entityID models.UUID, opts Options) (Result, error) {
	if !isDeletable(entityTable) {
		return Result{}, errors.Newf(errors.ErrInvalid, "table %q is not deletable", entityTable)
	}
	// Remote enforcement carries the deleting device's authority in the
	// tombstone; the role gate applies to locally initiated deletes only.
	if opts.Origin == nil && (opts.AllowHardDelete || opts.Force) && !authCtx.IsAdmin() {
		return Result{}, errors.New(errors.ErrPermission, "hard delete requires administrator role")
	}

	exists, err := rowExists(tx, entityTable, entityID)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		// Hard deletes are idempotent on absent rows; the tombstone
		// still gets recorded so the delete outlives the row.
		if opts.AllowHardDelete {
			if err := s.recordTombstone(tx, authCtx, entityTable, entityID, opts); err != nil {
				return Result{}, err
			}
			return Result{Status: StatusHardDeleted}, nil
		}
		return Result{}, errors.Newf(errors.ErrNotFound, "%s %s not found", entityTable, entityID)
	}

	if !opts.AllowHardDelete {
		if err := s.softDelete(tx, authCtx, entityTable, entityID); err != nil {
			return Result{}, err
		}
		return Result{Status: StatusSoftDeleted}, nil
	}

	if !opts.Force {
		deps, err := s.checker.Check(tx, entityTable, entityID)
		if err != nil {
			return Result{}, err
		}
		if len(deps) > 0 {
			if opts.FallbackToSoftDelete {
				if err := s.softDelete(tx, authCtx, entityTable, entityID); err != nil {
					return Result{}, err
				}
				return Result{Status: StatusSoftDeleted, Dependencies: deps}, nil
			}
			return Result{Status: StatusBlocked, Dependencies: deps}, nil
		}
	}

	if err := s.hardDelete(tx, authCtx, entityTable, entityID, opts); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusHardDeleted}, nil
}

func (s *Service) softDelete(tx *sql.Tx, authCtx auth.Context, entityTable string, entityID models.UUID) error {
	now := models.NowMillis()
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = ?, deleted_by_user_id = ?, updated_at = MAX(updated_at, ?)
		WHERE id = ? AND deleted_at IS NULL`, entityTable)
	if _, err := tx.Exec(query, now, authCtx.UserID, now, entityID); err != nil {
		return pkgerrors.Wrapf(err, "soft delete %s", entityTable)
	}
	return s.changes.Append(tx, &models.ChangeLogEntry{
		OperationID:   models.UUID(uuid.New()),
		EntityTable:   entityTable,
		EntityID:      entityID,
		OperationType: models.OpDelete,
		Timestamp:     now,
		UserID:        authCtx.UserID,
		DeviceID:      authCtx.DeviceID,
	})
}

func (s *Service) hardDelete(tx *sql.Tx, authCtx auth.Context, entityTable string, entityID models.UUID, opts Options) error {
	docs, err := s.documents.ListByEntityTx(tx, entityTable, entityID)
	if err != nil {
		return err
	}
	for i := range docs {
		if err := s.documents.QueueDeletionTx(tx, &docs[i]); err != nil {
			return err
		}
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", entityTable)
	if _, err := tx.Exec(query, entityID); err != nil {
		return pkgerrors.Wrapf(err, "hard delete %s", entityTable)
	}

	return s.recordTombstone(tx, authCtx, entityTable, entityID, opts)
}

// recordTombstone stores the delete marker and, for locally initiated
// deletes, announces the operation on the change log.
func (s *Service) recordTombstone(tx *sql.Tx, authCtx auth.Context, entityTable string, entityID models.UUID, opts Options) error {
	if opts.Origin != nil {
		stored := *opts.Origin
		if stored.ID.IsZero() {
			stored.ID = models.UUID(uuid.New())
		}
		return s.tombstones.Create(tx, &stored)
	}

	now := models.NowMillis()
	operationID := models.UUID(uuid.New())
	t := &models.Tombstone{
		ID:                models.UUID(uuid.New()),
		EntityID:          entityID,
		EntityType:        entityTable,
		DeletedBy:         authCtx.UserID,
		DeletedByDeviceID: authCtx.DeviceID,
		DeletedAt:         now,
		OperationID:       operationID,
	}
	if err := s.tombstones.Create(tx, t); err != nil {
		return err
	}
	return s.changes.Append(tx, &models.ChangeLogEntry{
		OperationID:   operationID,
		EntityTable:   entityTable,
		EntityID:      entityID,
		OperationType: models.OpHardDelete,
		Timestamp:     now,
		UserID:        authCtx.UserID,
		DeviceID:      authCtx.DeviceID,
	})
}

func rowExists(tx *sql.Tx, table string, id models.UUID) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)", table)
	var exists bool
	if err := tx.QueryRow(query, id).Scan(&exists); err != nil {
		return false, pkgerrors.Wrapf(err, "check %s existence", table)
	}
	return exists, nil
}
