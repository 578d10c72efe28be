package db

import (
	"database/sql"

	pkgerrors "github.com/pkg/errors"

	"github.com/anyamene/pamojastore/internal/models"
)

// ChangeLogStore persists the append-only change log. Every entry is keyed
// by operation_id, so replaying the same entry is always a no-op and peers
// can re-send batches freely.
type ChangeLogStore struct {
	db *DB
}

// NewChangeLogStore creates a ChangeLogStore.
func NewChangeLogStore(db *DB) *ChangeLogStore {
	return &ChangeLogStore{db: db}
}

const changeLogColumns = `operation_id, entity_table, entity_id, operation_type, field_name,
	old_value, new_value, timestamp, user_id, device_id, sync_batch_id, processed_at, sync_error`

// Append inserts an entry inside the caller's transaction. Appends ride the
// same transaction as the mutation they describe, so the log never names a
// change that didn't commit. Duplicate operation IDs are silently ignored.
func (s *ChangeLogStore) Append(tx *sql.Tx, entry *models.ChangeLogEntry) error {
	if !entry.OperationType.Valid() {
		return pkgerrors.Errorf("invalid operation type %q", entry.OperationType)
	}
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO change_log (`+changeLogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.OperationID, entry.EntityTable, entry.EntityID, entry.OperationType,
		entry.FieldName, entry.OldValue, entry.NewValue, entry.Timestamp,
		entry.UserID, entry.DeviceID, entry.SyncBatchID, entry.ProcessedAt, entry.SyncError,
	)
	return pkgerrors.Wrap(err, "append change log entry")
}

// EntriesSince returns entries with timestamp >= watermark in deterministic
// replay order. limit <= 0 means no limit.
func (s *ChangeLogStore) EntriesSince(watermark int64, limit int) ([]models.ChangeLogEntry, error) {
	query := `SELECT ` + changeLogColumns + ` FROM change_log
		WHERE timestamp >= ? ORDER BY timestamp, operation_id`
	args := []interface{}{watermark}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query change log")
	}
	defer rows.Close()
	return scanChangeLogRows(rows)
}

// FindByEntity returns the full history for one entity, oldest first.
func (s *ChangeLogStore) FindByEntity(entityTable string, entityID models.UUID) ([]models.ChangeLogEntry, error) {
	rows, err := s.db.Query(`SELECT `+changeLogColumns+` FROM change_log
		WHERE entity_table = ? AND entity_id = ? ORDER BY timestamp, operation_id`,
		entityTable, entityID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query entity history")
	}
	defer rows.Close()
	return scanChangeLogRows(rows)
}

// Unprocessed returns entries not yet pushed to a peer, oldest first.
func (s *ChangeLogStore) Unprocessed(limit int) ([]models.ChangeLogEntry, error) {
	query := `SELECT ` + changeLogColumns + ` FROM change_log
		WHERE processed_at IS NULL ORDER BY timestamp, operation_id`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query unprocessed entries")
	}
	defer rows.Close()
	return scanChangeLogRows(rows)
}

// MarkProcessed stamps entries as pushed in the given batch.
func (s *ChangeLogStore) MarkProcessed(operationIDs []models.UUID, batchID string, at int64) error {
	if len(operationIDs) == 0 {
		return nil
	}
	return WithTxNoContext(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("UPDATE change_log SET processed_at = ?, sync_batch_id = ? WHERE operation_id = ?")
		if err != nil {
			return pkgerrors.Wrap(err, "prepare mark processed")
		}
		defer stmt.Close()
		for _, id := range operationIDs {
			if _, err := stmt.Exec(at, batchID, id); err != nil {
				return pkgerrors.Wrapf(err, "mark %s processed", id)
			}
		}
		return nil
	})
}

// RecordSyncError stamps a failure message on an entry so operators can see
// which changes a peer rejected.
func (s *ChangeLogStore) RecordSyncError(operationID models.UUID, message string) error {
	_, err := s.db.Exec("UPDATE change_log SET sync_error = ? WHERE operation_id = ?", message, operationID)
	return pkgerrors.Wrap(err, "record sync error")
}

// Count returns the number of change log entries.
func (s *ChangeLogStore) Count() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM change_log").Scan(&n)
	return n, pkgerrors.Wrap(err, "count change log")
}

func scanChangeLogRows(rows *sql.Rows) ([]models.ChangeLogEntry, error) {
	var entries []models.ChangeLogEntry
	for rows.Next() {
		var e models.ChangeLogEntry
		var deviceID sql.NullString
		if err := rows.Scan(
			&e.OperationID, &e.EntityTable, &e.EntityID, &e.OperationType,
			&e.FieldName, &e.OldValue, &e.NewValue, &e.Timestamp,
			&e.UserID, &deviceID, &e.SyncBatchID, &e.ProcessedAt, &e.SyncError,
		); err != nil {
			return nil, pkgerrors.Wrap(err, "scan change log row")
		}
		if deviceID.Valid {
			e.DeviceID = models.UUID(deviceID.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
