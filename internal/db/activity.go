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

// ActivityRepo stores program activity records.
type ActivityRepo struct {
	db         *DB
	changes    *ChangeLogStore
	tombstones *TombstoneStore
}

// NewActivityRepo creates an ActivityRepo.
func NewActivityRepo(db *DB, changes *ChangeLogStore, tombstones *TombstoneStore) *ActivityRepo {
	return &ActivityRepo{db: db, changes: changes, tombstones: tombstones}
}

const activityColumns = `id,
	project_id, project_id_updated_at, project_id_updated_by, project_id_updated_by_device_id,
	description, description_updated_at, description_updated_by, description_updated_by_device_id,
	kpi, kpi_updated_at, kpi_updated_by, kpi_updated_by_device_id,
	target_value, target_value_updated_at, target_value_updated_by, target_value_updated_by_device_id,
	actual_value, actual_value_updated_at, actual_value_updated_by, actual_value_updated_by_device_id,
	status, status_updated_at, status_updated_by, status_updated_by_device_id,
	created_at, updated_at, created_by_user_id, updated_by_user_id,
	created_by_device_id, updated_by_device_id, deleted_at, deleted_by_user_id`

// Create inserts an activity and announces it on the change log.
func (r *ActivityRepo) Create(ctx context.Context, authCtx auth.Context, a *models.Activity) error {
	if a.ProjectID == nil || a.ProjectID.IsZero() {
		return errors.New(errors.ErrValidation, "project_id is required")
	}
	if a.ID.IsZero() {
		a.ID = models.UUID(uuid.New())
	}
	now := models.NowMillis()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.CreatedByUserID = &authCtx.UserID
	a.UpdatedByUserID = &authCtx.UserID
	a.CreatedByDeviceID = &authCtx.DeviceID
	a.UpdatedByDeviceID = &authCtx.DeviceID
	if a.Status == "" {
		a.Status = "planned"
	}

	payload, err := json.Marshal(map[string]interface{}{
		"project_id": a.ProjectID, "description": a.Description, "kpi": a.KPI,
		"target_value": a.TargetValue, "actual_value": a.ActualValue, "status": a.Status,
	})
	if err != nil {
		return pkgerrors.Wrap(err, "encode activity payload")
	}
	state := string(payload)

	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO activities (id, project_id, description, kpi, target_value, actual_value, status,
				created_at, updated_at, created_by_user_id, updated_by_user_id,
				created_by_device_id, updated_by_device_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.ProjectID, a.Description, a.KPI, a.TargetValue, a.ActualValue, a.Status,
			a.CreatedAt, a.UpdatedAt, a.CreatedByUserID, a.UpdatedByUserID,
			a.CreatedByDeviceID, a.UpdatedByDeviceID,
		)
		if err != nil {
			return pkgerrors.Wrap(err, "insert activity")
		}
		return r.changes.Append(tx, &models.ChangeLogEntry{
			OperationID:   models.UUID(uuid.New()),
			EntityTable:   activitySpec.name,
			EntityID:      a.ID,
			OperationType: models.OpCreate,
			NewValue:      &state,
			Timestamp:     now,
			UserID:        authCtx.UserID,
			DeviceID:      authCtx.DeviceID,
		})
	})
}

// UpdateField applies one local field write with change log announcement.
func (r *ActivityRepo) UpdateField(ctx context.Context, authCtx auth.Context, id models.UUID, field string, value interface{}) error {
	if !activitySpec.allows(field) {
		return errors.Newf(errors.ErrInvalid, "field %q is not updatable", field)
	}
	now := models.NowMillis()
	newValue, err := encodeScalar(value)
	if err != nil {
		return err
	}
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, current, _, _, err := readFieldShadow(tx, activitySpec, field, id)
		if err == sql.ErrNoRows {
			return errors.Newf(errors.ErrNotFound, "activity %s not found", id)
		}
		if err != nil {
			return pkgerrors.Wrap(err, "read current value")
		}
		var oldValue *string
		if current.Valid {
			s := current.String
			oldValue = &s
		}
		if err := writeField(tx, activitySpec, field, id, value, now, authCtx.UserID, authCtx.DeviceID); err != nil {
			return err
		}
		return r.changes.Append(tx, &models.ChangeLogEntry{
			OperationID:   models.UUID(uuid.New()),
			EntityTable:   activitySpec.name,
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

// SoftDelete marks an activity deleted on this device only.
func (r *ActivityRepo) SoftDelete(ctx context.Context, authCtx auth.Context, id models.UUID) error {
	now := models.NowMillis()
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE activities
			SET deleted_at = ?, deleted_by_user_id = ?, updated_at = MAX(updated_at, ?)
			WHERE id = ? AND deleted_at IS NULL`,
			now, authCtx.UserID, now, id)
		if err != nil {
			return pkgerrors.Wrap(err, "soft delete activity")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return pkgerrors.Wrap(err, "soft delete rows affected")
		}
		if n == 0 {
			return errors.Newf(errors.ErrNotFound, "activity %s not found or already deleted", id)
		}
		return r.changes.Append(tx, &models.ChangeLogEntry{
			OperationID:   models.UUID(uuid.New()),
			EntityTable:   activitySpec.name,
			EntityID:      id,
			OperationType: models.OpDelete,
			Timestamp:     now,
			UserID:        authCtx.UserID,
			DeviceID:      authCtx.DeviceID,
		})
	})
}

// Get returns an activity by ID, including soft-deleted rows.
func (r *ActivityRepo) Get(id models.UUID) (*models.Activity, error) {
	row := r.db.QueryRow(`SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrNotFound, "activity not found")
	}
	return a, err
}

// ListByProject returns live activities for one project.
func (r *ActivityRepo) ListByProject(projectID models.UUID) ([]models.Activity, error) {
	rows, err := r.db.Query(`SELECT `+activityColumns+` FROM activities
		WHERE project_id = ? AND deleted_at IS NULL ORDER BY created_at`, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list activities")
	}
	defer rows.Close()

	var out []models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// MergeRemoteChange folds a change from another device into local state.
func (r *ActivityRepo) MergeRemoteChange(tx *sql.Tx, authCtx auth.Context, change *models.ChangeLogEntry) (models.MergeOutcome, error) {
	return mergeRemoteChange(tx, r.tombstones, activitySpec, authCtx, change)
}

func scanActivity(s rowScanner) (*models.Activity, error) {
	var a models.Activity
	err := s.Scan(
		&a.ID,
		&a.ProjectID, &a.ProjectIDUpdatedAt, &a.ProjectIDUpdatedBy, &a.ProjectIDUpdatedByDeviceID,
		&a.Description, &a.DescriptionUpdatedAt, &a.DescriptionUpdatedBy, &a.DescriptionUpdatedByDeviceID,
		&a.KPI, &a.KPIUpdatedAt, &a.KPIUpdatedBy, &a.KPIUpdatedByDeviceID,
		&a.TargetValue, &a.TargetValueUpdatedAt, &a.TargetValueUpdatedBy, &a.TargetValueUpdatedByDeviceID,
		&a.ActualValue, &a.ActualValueUpdatedAt, &a.ActualValueUpdatedBy, &a.ActualValueUpdatedByDeviceID,
		&a.Status, &a.StatusUpdatedAt, &a.StatusUpdatedBy, &a.StatusUpdatedByDeviceID,
		&a.CreatedAt, &a.UpdatedAt, &a.CreatedByUserID, &a.UpdatedByUserID,
		&a.CreatedByDeviceID, &a.UpdatedByDeviceID, &a.DeletedAt, &a.DeletedByUserID,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "scan activity row")
	}
	return &a, nil
}
