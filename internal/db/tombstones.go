package db

import (
	"database/sql"

	pkgerrors "github.com/pkg/errors"

	"github.com/anyamene/pamojastore/internal/errors"
	"github.com/anyamene/pamojastore/internal/models"
)

// TombstoneStore persists permanent hard-delete markers. One tombstone per
// (entity_type, entity_id); a second delete for the same entity keeps
// whichever record carries the newest deleted_at.
type TombstoneStore struct {
	db *DB
}

// NewTombstoneStore creates a TombstoneStore.
func NewTombstoneStore(db *DB) *TombstoneStore {
	return &TombstoneStore{db: db}
}

const tombstoneColumns = `id, entity_id, entity_type, deleted_by, deleted_by_device_id,
	deleted_at, operation_id, pushed_at`

// Create upserts a tombstone inside the caller's transaction, so the marker
// commits atomically with the row removal it records.
func (s *TombstoneStore) Create(tx *sql.Tx, t *models.Tombstone) error {
	_, err := tx.Exec(`
		INSERT INTO tombstones (`+tombstoneColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			deleted_by = excluded.deleted_by,
			deleted_by_device_id = excluded.deleted_by_device_id,
			deleted_at = excluded.deleted_at,
			operation_id = excluded.operation_id,
			pushed_at = excluded.pushed_at
		WHERE excluded.deleted_at > tombstones.deleted_at`,
		t.ID, t.EntityID, t.EntityType, t.DeletedBy, t.DeletedByDeviceID,
		t.DeletedAt, t.OperationID, t.PushedAt,
	)
	return pkgerrors.Wrap(err, "create tombstone")
}

// FindByEntityTx looks up a tombstone inside a transaction. Mergers call this
// before applying any remote change to keep deleted entities from coming back.
func (s *TombstoneStore) FindByEntityTx(tx *sql.Tx, entityType string, entityID models.UUID) (*models.Tombstone, error) {
	row := tx.QueryRow(`SELECT `+tombstoneColumns+` FROM tombstones
		WHERE entity_type = ? AND entity_id = ?`, entityType, entityID)
	return scanTombstone(row)
}

// FindByEntity looks up a tombstone outside any transaction.
func (s *TombstoneStore) FindByEntity(entityType string, entityID models.UUID) (*models.Tombstone, error) {
	row := s.db.QueryRow(`SELECT `+tombstoneColumns+` FROM tombstones
		WHERE entity_type = ? AND entity_id = ?`, entityType, entityID)
	return scanTombstone(row)
}

// ListByType returns all tombstones for one entity type, newest first.
func (s *TombstoneStore) ListByType(entityType string) ([]models.Tombstone, error) {
	rows, err := s.db.Query(`SELECT `+tombstoneColumns+` FROM tombstones
		WHERE entity_type = ? ORDER BY deleted_at DESC`, entityType)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list tombstones")
	}
	defer rows.Close()

	var out []models.Tombstone
	for rows.Next() {
		var t models.Tombstone
		var device sql.NullString
		if err := rows.Scan(&t.ID, &t.EntityID, &t.EntityType, &t.DeletedBy, &device,
			&t.DeletedAt, &t.OperationID, &t.PushedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "scan tombstone")
		}
		if device.Valid {
			t.DeletedByDeviceID = models.UUID(device.String)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Count returns the number of tombstones.
func (s *TombstoneStore) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM tombstones").Scan(&n)
	return n, pkgerrors.Wrap(err, "count tombstones")
}

// PurgeBefore removes tombstones older than cutoff. Tombstones never expire
// on their own; this runs only when an operator decides every device has
// synced past the cutoff.
func (s *TombstoneStore) PurgeBefore(cutoff int64) (int64, error) {
	res, err := s.db.Exec("DELETE FROM tombstones WHERE deleted_at < ?", cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "purge tombstones")
	}
	n, err := res.RowsAffected()
	return n, pkgerrors.Wrap(err, "purge tombstones rows affected")
}

func scanTombstone(row *sql.Row) (*models.Tombstone, error) {
	var t models.Tombstone
	var device sql.NullString
	err := row.Scan(&t.ID, &t.EntityID, &t.EntityType, &t.DeletedBy, &device,
		&t.DeletedAt, &t.OperationID, &t.PushedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrNotFound, "no tombstone")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "scan tombstone")
	}
	if device.Valid {
		t.DeletedByDeviceID = models.UUID(device.String)
	}
	return &t, nil
}
