package db

import (
	"database/sql"

	pkgerrors "github.com/pkg/errors"

	"github.com/anyamene/pamojastore/internal/models"
	"github.com/anyamene/pamojastore/internal/uuid"
)

// Document is a file attached to a synced entity. The row holds paths only;
// bytes live on disk outside the database.
type Document struct {
	ID                 models.UUID
	EntityTable        string
	EntityID           models.UUID
	FilePath           string
	CompressedFilePath *string
	MimeType           *string
	CreatedAt          int64
}

// PendingFileDeletion is a queued request to remove a document's bytes from
// disk after its row is gone.
type PendingFileDeletion struct {
	ID       models.UUID
	FilePath string
	QueuedAt int64
	Attempts int64
}

// DocumentStore tracks entity attachments and the deletion queue the file
// worker drains.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a DocumentStore.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Attach records a document for an entity.
func (s *DocumentStore) Attach(doc *Document) error {
	if doc.ID.IsZero() {
		doc.ID = models.UUID(uuid.New())
	}
	if doc.CreatedAt == 0 {
		doc.CreatedAt = models.NowMillis()
	}
	_, err := s.db.Exec(`
		INSERT INTO entity_documents (id, entity_table, entity_id, file_path, compressed_file_path, mime_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.EntityTable, doc.EntityID, doc.FilePath, doc.CompressedFilePath, doc.MimeType, doc.CreatedAt)
	return pkgerrors.Wrap(err, "attach document")
}

// ListByEntity returns documents attached to one entity.
func (s *DocumentStore) ListByEntity(entityTable string, entityID models.UUID) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, entity_table, entity_id, file_path, compressed_file_path, mime_type, created_at
		FROM entity_documents WHERE entity_table = ? AND entity_id = ? ORDER BY created_at`,
		entityTable, entityID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list documents")
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListByEntityTx is ListByEntity inside an existing transaction.
func (s *DocumentStore) ListByEntityTx(tx *sql.Tx, entityTable string, entityID models.UUID) ([]Document, error) {
	rows, err := tx.Query(`
		SELECT id, entity_table, entity_id, file_path, compressed_file_path, mime_type, created_at
		FROM entity_documents WHERE entity_table = ? AND entity_id = ? ORDER BY created_at`,
		entityTable, entityID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list documents")
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// QueueDeletionTx removes a document row and queues its files for physical
// removal, inside the caller's transaction. The files themselves are deleted
// later by the file worker so a rolled-back transaction never loses bytes.
func (s *DocumentStore) QueueDeletionTx(tx *sql.Tx, doc *Document) error {
	if _, err := tx.Exec("DELETE FROM entity_documents WHERE id = ?", doc.ID); err != nil {
		return pkgerrors.Wrap(err, "delete document row")
	}
	now := models.NowMillis()
	paths := []string{doc.FilePath}
	if doc.CompressedFilePath != nil && *doc.CompressedFilePath != "" {
		paths = append(paths, *doc.CompressedFilePath)
	}
	for _, p := range paths {
		if _, err := tx.Exec(`
			INSERT INTO pending_file_deletions (id, file_path, queued_at, attempts)
			VALUES (?, ?, ?, 0)`,
			uuid.New(), p, now); err != nil {
			return pkgerrors.Wrap(err, "queue file deletion")
		}
	}
	return nil
}

// PendingDeletions returns queued file deletions, oldest first.
func (s *DocumentStore) PendingDeletions(limit int) ([]PendingFileDeletion, error) {
	query := `SELECT id, file_path, queued_at, attempts FROM pending_file_deletions ORDER BY queued_at`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list pending deletions")
	}
	defer rows.Close()

	var out []PendingFileDeletion
	for rows.Next() {
		var p PendingFileDeletion
		if err := rows.Scan(&p.ID, &p.FilePath, &p.QueuedAt, &p.Attempts); err != nil {
			return nil, pkgerrors.Wrap(err, "scan pending deletion")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPending returns the size of the file deletion queue.
func (s *DocumentStore) CountPending() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM pending_file_deletions").Scan(&n)
	return n, pkgerrors.Wrap(err, "count pending deletions")
}

// ResolveDeletion removes a completed entry from the queue.
func (s *DocumentStore) ResolveDeletion(id models.UUID) error {
	_, err := s.db.Exec("DELETE FROM pending_file_deletions WHERE id = ?", id)
	return pkgerrors.Wrap(err, "resolve pending deletion")
}

// BumpDeletionAttempt counts a failed removal so operators can spot stuck
// entries.
func (s *DocumentStore) BumpDeletionAttempt(id models.UUID) error {
	_, err := s.db.Exec("UPDATE pending_file_deletions SET attempts = attempts + 1 WHERE id = ?", id)
	return pkgerrors.Wrap(err, "bump deletion attempt")
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.EntityTable, &d.EntityID, &d.FilePath,
			&d.CompressedFilePath, &d.MimeType, &d.CreatedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "scan document")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
