package db

import (
	"context"
	"database/sql"
	"encoding/json"

	pkgerrors "github.com/pkg/errors"

	"github.com/anyamene/pamojastore/internal/auth"
	"github.com/anyamene/pamojastore/internal/errors"
	"github.com/anyamene/pamojastore/internal/models"
	"github.com/anyamene/pamojastore/internal/uuid"
)

// WorkshopRepo stores training workshop records.
type WorkshopRepo struct {
	db         *DB
	changes    *ChangeLogStore
	tombstones *TombstoneStore
}

// NewWorkshopRepo creates a WorkshopRepo.
func NewWorkshopRepo(db *DB, changes *ChangeLogStore, tombstones *TombstoneStore) *WorkshopRepo {
	return &WorkshopRepo{db: db, changes: changes, tombstones: tombstones}
}

const workshopColumns = `id,
	project_id, project_id_updated_at, project_id_updated_by, project_id_updated_by_device_id,
	purpose, purpose_updated_at, purpose_updated_by, purpose_updated_by_device_id,
	event_date, event_date_updated_at, event_date_updated_by, event_date_updated_by_device_id,
	location, location_updated_at, location_updated_by, location_updated_by_device_id,
	budget, budget_updated_at, budget_updated_by, budget_updated_by_device_id,
	participant_count, participant_count_updated_at, participant_count_updated_by, participant_count_updated_by_device_id,
	created_at, updated_at, created_by_user_id, updated_by_user_id,
	created_by_device_id, updated_by_device_id, deleted_at, deleted_by_user_id`

// Create inserts a workshop and announces it on the change log.
func (r *WorkshopRepo) Create(ctx context.Context, authCtx auth.Context, w *models.Workshop) error {
	if w.ProjectID == nil || w.ProjectID.IsZero() {
		return errors.New(errors.ErrValidation, "project_id is required")
	}
	if w.ID.IsZero() {
		w.ID = models.UUID(uuid.New())
	}
	now := models.NowMillis()
	w.CreatedAt = now
	w.UpdatedAt = now
	w.CreatedByUserID = &authCtx.UserID
	w.UpdatedByUserID = &authCtx.UserID
	w.CreatedByDeviceID = &authCtx.DeviceID
	w.UpdatedByDeviceID = &authCtx.DeviceID

	payload, err := json.Marshal(map[string]interface{}{
		"project_id": w.ProjectID, "purpose": w.Purpose, "event_date": w.EventDate,
		"location": w.Location, "budget": w.Budget, "participant_count": w.ParticipantCount,
	})
	if err != nil {
		return pkgerrors.Wrap(err, "encode workshop payload")
	}
	state := string(payload)

	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO workshops (id, project_id, purpose, event_date, location, budget, participant_count,
				created_at, updated_at, created_by_user_id, updated_by_user_id,
				created_by_device_id, updated_by_device_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, w.ProjectID, w.Purpose, w.EventDate, w.Location, w.Budget, w.ParticipantCount,
			w.CreatedAt, w.UpdatedAt, w.CreatedByUserID, w.UpdatedByUserID,
			w.CreatedByDeviceID, w.UpdatedByDeviceID,
		)
		if err != nil {
			return pkgerrors.Wrap(err, "insert workshop")
		}
		return r.changes.Append(tx, &models.ChangeLogEntry{
			OperationID:   models.UUID(uuid.New()),
			EntityTable:   workshopSpec.name,
			EntityID:      w.ID,
			OperationType: models.OpCreate,
			NewValue:      &state,
			Timestamp:     now,
			UserID:        authCtx.UserID,
			DeviceID:      authCtx.DeviceID,
		})
	})
}

// UpdateField applies one local field write with change log announcement.
func (r *WorkshopRepo) UpdateField(ctx context.Context, authCtx auth.Context, id models.UUID, field string, value interface{}) error {
	if !workshopSpec.allows(field) {
		return errors.Newf(errors.ErrInvalid, "field %q is not updatable", field)
	}
	now := models.NowMillis()
	newValue, err := encodeScalar(value)
	if err != nil {
		return err
	}
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, current, _, _, err := readFieldShadow(tx, workshopSpec, field, id)
		if err == sql.ErrNoRows {
			return errors.Newf(errors.ErrNotFound, "workshop %s not found", id)
		}
		if err != nil {
			return pkgerrors.Wrap(err, "read current value")
		}
		var oldValue *string
		if current.Valid {
			s := current.String
			oldValue = &s
		}
		if err := writeField(tx, workshopSpec, field, id, value, now, authCtx.UserID, authCtx.DeviceID); err != nil {
			return err
		}
		return r.changes.Append(tx, &models.ChangeLogEntry{
			OperationID:   models.UUID(uuid.New()),
			EntityTable:   workshopSpec.name,
			EntityID:      id,
			OperationType: models.OpUpdate,
			FieldName:     &field,
			OldValue:      oldValue,
			NewValue:      newValue,
			Timestamp:     now,
			UserID:        authCtx.UserID,
			DeviceID:      authCtx.DeviceID,
		})
	})
}

// SoftDelete marks a workshop deleted on this device only.
func (r *WorkshopRepo) SoftDelete(ctx context.Context, authCtx auth.Context, id models.UUID) error {
	now := models.NowMillis()
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE workshops
			SET deleted_at = ?, deleted_by_user_id = ?, updated_at = MAX(updated_at, ?)
			WHERE id = ? AND deleted_at IS NULL`,
			now, authCtx.UserID, now, id)
		if err != nil {
			return pkgerrors.Wrap(err, "soft delete workshop")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return pkgerrors.Wrap(err, "soft delete rows affected")
		}
		if n == 0 {
			return errors.Newf(errors.ErrNotFound, "workshop %s not found or already deleted", id)
		}
		return r.changes.Append(tx, &models.ChangeLogEntry{
			OperationID:   models.UUID(uuid.New()),
			EntityTable:   workshopSpec.name,
			EntityID:      id,
			OperationType: models.OpDelete,
			Timestamp:     now,
			UserID:        authCtx.UserID,
			DeviceID:      authCtx.DeviceID,
		})
	})
}

// Get returns a workshop by ID, including soft-deleted rows.
func (r *WorkshopRepo) Get(id models.UUID) (*models.Workshop, error) {
	row := r.db.QueryRow(`SELECT `+workshopColumns+` FROM workshops WHERE id = ?`, id)
	w, err := scanWorkshop(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrNotFound, "workshop not found")
	}
	return w, err
}

// ListByProject returns live workshops for one project.
func (r *WorkshopRepo) ListByProject(projectID models.UUID) ([]models.Workshop, error) {
	rows, err := r.db.Query(`SELECT `+workshopColumns+` FROM workshops
		WHERE project_id = ? AND deleted_at IS NULL ORDER BY created_at`, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list workshops")
	}
	defer rows.Close()

	var out []models.Workshop
	for rows.Next() {
		w, err := scanWorkshop(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// MergeRemoteChange folds a change from another device into local state.
func (r *WorkshopRepo) MergeRemoteChange(tx *sql.Tx, authCtx auth.Context, change *models.ChangeLogEntry) (models.MergeOutcome, error) {
	return mergeRemoteChange(tx, r.tombstones, workshopSpec, authCtx, change)
}

func scanWorkshop(s rowScanner) (*models.Workshop, error) {
	var w models.Workshop
	err := s.Scan(
		&w.ID,
		&w.ProjectID, &w.ProjectIDUpdatedAt, &w.ProjectIDUpdatedBy, &w.ProjectIDUpdatedByDeviceID,
		&w.Purpose, &w.PurposeUpdatedAt, &w.PurposeUpdatedBy, &w.PurposeUpdatedByDeviceID,
		&w.EventDate, &w.EventDateUpdatedAt, &w.EventDateUpdatedBy, &w.EventDateUpdatedByDeviceID,
		&w.Location, &w.LocationUpdatedAt, &w.LocationUpdatedBy, &w.LocationUpdatedByDeviceID,
		&w.Budget, &w.BudgetUpdatedAt, &w.BudgetUpdatedBy, &w.BudgetUpdatedByDeviceID,
		&w.ParticipantCount, &w.ParticipantCountUpdatedAt, &w.ParticipantCountUpdatedBy, &w.ParticipantCountUpdatedByDeviceID,
		&w.CreatedAt, &w.UpdatedAt, &w.CreatedByUserID, &w.UpdatedByUserID,
		&w.CreatedByDeviceID, &w.UpdatedByDeviceID, &w.DeletedAt, &w.DeletedByUserID,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "scan workshop row")
	}
	return &w, nil
}
