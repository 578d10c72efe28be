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

// FundingRepo stores project funding records. Local mutations stamp shadow
// metadata and append to the change log in the same transaction; remote
// changes come in through MergeRemoteChange.
type FundingRepo struct {
	db         *DB
	changes    *ChangeLogStore
	tombstones *TombstoneStore
}

// NewFundingRepo creates a FundingRepo.
func NewFundingRepo(db *DB, changes *ChangeLogStore, tombstones *TombstoneStore) *FundingRepo {
	return &FundingRepo{db: db, changes: changes, tombstones: tombstones}
}

const fundingColumns = `id,
	project_id, project_id_updated_at, project_id_updated_by, project_id_updated_by_device_id,
	donor_name, donor_name_updated_at, donor_name_updated_by, donor_name_updated_by_device_id,
	grant_id, grant_id_updated_at, grant_id_updated_by, grant_id_updated_by_device_id,
	amount, amount_updated_at, amount_updated_by, amount_updated_by_device_id,
	currency, currency_updated_at, currency_updated_by, currency_updated_by_device_id,
	start_date, start_date_updated_at, start_date_updated_by, start_date_updated_by_device_id,
	end_date, end_date_updated_at, end_date_updated_by, end_date_updated_by_device_id,
	status, status_updated_at, status_updated_by, status_updated_by_device_id,
	notes, notes_updated_at, notes_updated_by, notes_updated_by_device_id,
	created_at, updated_at, created_by_user_id, updated_by_user_id,
	created_by_device_id, updated_by_device_id, deleted_at, deleted_by_user_id`

// Create inserts a funding record and announces it on the change log. The
// announcement carries the full mergeable state so peers can materialize the
// row from the log alone.
func (r *FundingRepo) Create(ctx context.Context, authCtx auth.Context, f *models.ProjectFunding) error {
	if f.ProjectID.IsZero() {
		return errors.New(errors.ErrValidation, "project_id is required")
	}
	if f.DonorName == "" {
		return errors.New(errors.ErrValidation, "donor_name is required")
	}
	if f.ID.IsZero() {
		f.ID = models.UUID(uuid.New())
	}
	now := models.NowMillis()
	f.CreatedAt = now
	f.UpdatedAt = now
	f.CreatedByUserID = &authCtx.UserID
	f.UpdatedByUserID = &authCtx.UserID
	f.CreatedByDeviceID = &authCtx.DeviceID
	f.UpdatedByDeviceID = &authCtx.DeviceID
	if f.Currency == "" {
		f.Currency = "USD"
	}
	if f.Status == "" {
		f.Status = "proposed"
	}

	payload, err := json.Marshal(map[string]interface{}{
		"project_id": f.ProjectID, "donor_name": f.DonorName, "grant_id": f.GrantID,
		"amount": f.Amount, "currency": f.Currency, "start_date": f.StartDate,
		"end_date": f.EndDate, "status": f.Status, "notes": f.Notes,
	})
	if err != nil {
		return pkgerrors.Wrap(err, "encode funding payload")
	}
	state := string(payload)

	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO project_funding (id, project_id, donor_name, grant_id, amount, currency,
				start_date, end_date, status, notes,
				created_at, updated_at, created_by_user_id, updated_by_user_id,
				created_by_device_id, updated_by_device_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.ProjectID, f.DonorName, f.GrantID, f.Amount, f.Currency,
			f.StartDate, f.EndDate, f.Status, f.Notes,
			f.CreatedAt, f.UpdatedAt, f.CreatedByUserID, f.UpdatedByUserID,
			f.CreatedByDeviceID, f.UpdatedByDeviceID,
		)
		if err != nil {
			return pkgerrors.Wrap(err, "insert funding")
		}
		return r.changes.Append(tx, &models.ChangeLogEntry{
			OperationID:   models.UUID(uuid.New()),
			EntityTable:   fundingSpec.name,
			EntityID:      f.ID,
			OperationType: models.OpCreate,
			NewValue:      &state,
			Timestamp:     now,
			UserID:        authCtx.UserID,
			DeviceID:      authCtx.DeviceID,
		})
	})
}

// UpdateField applies one local field write: the value, its shadow metadata,
// and the change log entry all commit together.
func (r *FundingRepo) UpdateField(ctx context.Context, authCtx auth.Context, id models.UUID, field string, value interface{}) error {
	if !fundingSpec.allows(field) {
		return errors.Newf(errors.ErrInvalid, "field %q is not updatable", field)
	}
	now := models.NowMillis()
	newValue, err := encodeScalar(value)
	if err != nil {
		return err
	}
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, current, _, _, err := readFieldShadow(tx, fundingSpec, field, id)
		if err == sql.ErrNoRows {
			return errors.Newf(errors.ErrNotFound, "funding %s not found", id)
		}
		if err != nil {
			return pkgerrors.Wrap(err, "read current value")
		}
		var oldValue *string
		if current.Valid {
			s := current.String
			oldValue = &s
		}
		if err := writeField(tx, fundingSpec, field, id, value, now, authCtx.UserID, authCtx.DeviceID); err != nil {
			return err
		}
		return r.changes.Append(tx, &models.ChangeLogEntry{
			OperationID:   models.UUID(uuid.New()),
			EntityTable:   fundingSpec.name,
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

// SoftDelete marks a record deleted on this device. The marker is a local
// workflow state; the change log entry it appends is never applied by peers.
func (r *FundingRepo) SoftDelete(ctx context.Context, authCtx auth.Context, id models.UUID) error {
	now := models.NowMillis()
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE project_funding
			SET deleted_at = ?, deleted_by_user_id = ?, updated_at = MAX(updated_at, ?)
			WHERE id = ? AND deleted_at IS NULL`,
			now, authCtx.UserID, now, id)
		if err != nil {
			return pkgerrors.Wrap(err, "soft delete funding")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return pkgerrors.Wrap(err, "soft delete rows affected")
		}
		if n == 0 {
			return errors.Newf(errors.ErrNotFound, "funding %s not found or already deleted", id)
		}
		return r.changes.Append(tx, &models.ChangeLogEntry{
			OperationID:   models.UUID(uuid.New()),
			EntityTable:   fundingSpec.name,
			EntityID:      id,
			OperationType: models.OpDelete,
			Timestamp:     now,
			UserID:        authCtx.UserID,
			DeviceID:      authCtx.DeviceID,
		})
	})
}

// Restore clears a soft-delete marker.
func (r *FundingRepo) Restore(ctx context.Context, authCtx auth.Context, id models.UUID) error {
	now := models.NowMillis()
	res, err := r.db.ExecContext(ctx, `UPDATE project_funding
		SET deleted_at = NULL, deleted_by_user_id = NULL, updated_at = MAX(updated_at, ?)
		WHERE id = ? AND deleted_at IS NOT NULL`, now, id)
	if err != nil {
		return pkgerrors.Wrap(err, "restore funding")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrap(err, "restore rows affected")
	}
	if n == 0 {
		return errors.Newf(errors.ErrNotFound, "funding %s not found or not deleted", id)
	}
	return nil
}

// Get returns a funding record by ID, including soft-deleted rows.
func (r *FundingRepo) Get(id models.UUID) (*models.ProjectFunding, error) {
	row := r.db.QueryRow(`SELECT `+fundingColumns+` FROM project_funding WHERE id = ?`, id)
	return scanFunding(row)
}

// GetTx is Get inside an existing transaction.
func (r *FundingRepo) GetTx(tx *sql.Tx, id models.UUID) (*models.ProjectFunding, error) {
	row := tx.QueryRow(`SELECT `+fundingColumns+` FROM project_funding WHERE id = ?`, id)
	return scanFunding(row)
}

// ListByProject returns live funding records for one project.
func (r *FundingRepo) ListByProject(projectID models.UUID) ([]models.ProjectFunding, error) {
	rows, err := r.db.Query(`SELECT `+fundingColumns+` FROM project_funding
		WHERE project_id = ? AND deleted_at IS NULL ORDER BY created_at`, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list funding")
	}
	defer rows.Close()

	var out []models.ProjectFunding
	for rows.Next() {
		f, err := scanFundingRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// MergeRemoteChange folds a change from another device into local state.
func (r *FundingRepo) MergeRemoteChange(tx *sql.Tx, authCtx auth.Context, change *models.ChangeLogEntry) (models.MergeOutcome, error) {
	return mergeRemoteChange(tx, r.tombstones, fundingSpec, authCtx, change)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFunding(row *sql.Row) (*models.ProjectFunding, error) {
	f, err := scanFundingScanner(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrNotFound, "funding not found")
	}
	return f, err
}

func scanFundingRows(rows *sql.Rows) (*models.ProjectFunding, error) {
	return scanFundingScanner(rows)
}

func scanFundingScanner(s rowScanner) (*models.ProjectFunding, error) {
	var f models.ProjectFunding
	err := s.Scan(
		&f.ID,
		&f.ProjectID, &f.ProjectIDUpdatedAt, &f.ProjectIDUpdatedBy, &f.ProjectIDUpdatedByDeviceID,
		&f.DonorName, &f.DonorNameUpdatedAt, &f.DonorNameUpdatedBy, &f.DonorNameUpdatedByDeviceID,
		&f.GrantID, &f.GrantIDUpdatedAt, &f.GrantIDUpdatedBy, &f.GrantIDUpdatedByDeviceID,
		&f.Amount, &f.AmountUpdatedAt, &f.AmountUpdatedBy, &f.AmountUpdatedByDeviceID,
		&f.Currency, &f.CurrencyUpdatedAt, &f.CurrencyUpdatedBy, &f.CurrencyUpdatedByDeviceID,
		&f.StartDate, &f.StartDateUpdatedAt, &f.StartDateUpdatedBy, &f.StartDateUpdatedByDeviceID,
		&f.EndDate, &f.EndDateUpdatedAt, &f.EndDateUpdatedBy, &f.EndDateUpdatedByDeviceID,
		&f.Status, &f.StatusUpdatedAt, &f.StatusUpdatedBy, &f.StatusUpdatedByDeviceID,
		&f.Notes, &f.NotesUpdatedAt, &f.NotesUpdatedBy, &f.NotesUpdatedByDeviceID,
		&f.CreatedAt, &f.UpdatedAt, &f.CreatedByUserID, &f.UpdatedByUserID,
		&f.CreatedByDeviceID, &f.UpdatedByDeviceID, &f.DeletedAt, &f.DeletedByUserID,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "scan funding row")
	}
	return &f, nil
}
