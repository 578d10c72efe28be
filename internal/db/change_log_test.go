package db

import (
	"database/sql"
	"testing"

	"github.com/anyamene/pamojastore/internal/models"
	"github.com/anyamene/pamojastore/internal/uuid"
)

func appendEntry(t *testing.T, database *DB, store *ChangeLogStore, entry *models.ChangeLogEntry) {
	t.Helper()
	err := WithTxNoContext(database, func(tx *sql.Tx) error {
		return store.Append(tx, entry)
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
}

func testEntry(timestamp int64) *models.ChangeLogEntry {
	return &models.ChangeLogEntry{
		OperationID:   models.UUID(uuid.New()),
		EntityTable:   "project_funding",
		EntityID:      models.UUID(uuid.New()),
		OperationType: models.OpUpdate,
		Timestamp:     timestamp,
		UserID:        models.UUID(uuid.New()),
		DeviceID:      models.UUID(uuid.New()),
	}
}

func TestChangeLogAppendIsIdempotent(t *testing.T) {
	database := setupTestDB(t)
	store := NewChangeLogStore(database)

	entry := testEntry(100)
	appendEntry(t, database, store, entry)
	appendEntry(t, database, store, entry)

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 entry after duplicate append, got %d", count)
	}
}

func TestChangeLogRejectsInvalidOperation(t *testing.T) {
	database := setupTestDB(t)
	store := NewChangeLogStore(database)

	entry := testEntry(100)
	entry.OperationType = "upsert"
	err := WithTxNoContext(database, func(tx *sql.Tx) error {
		return store.Append(tx, entry)
	})
	if err == nil {
		t.Fatal("expected error for invalid operation type")
	}
}

func TestChangeLogEntriesSinceOrder(t *testing.T) {
	database := setupTestDB(t)
	store := NewChangeLogStore(database)

	// Same timestamp: operation_id breaks the tie. Appended out of order.
	a := testEntry(200)
	a.OperationID = "b1111111-1111-4111-8111-111111111111"
	b := testEntry(200)
	b.OperationID = "a1111111-1111-4111-8111-111111111111"
	c := testEntry(100)
	for _, e := range []*models.ChangeLogEntry{a, b, c} {
		appendEntry(t, database, store, e)
	}

	entries, err := store.EntriesSince(0, 0)
	if err != nil {
		t.Fatalf("EntriesSince failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].OperationID != c.OperationID {
		t.Errorf("expected oldest entry first, got %s", entries[0].OperationID)
	}
	if entries[1].OperationID != b.OperationID || entries[2].OperationID != a.OperationID {
		t.Errorf("tie not broken by operation_id: got %s then %s",
			entries[1].OperationID, entries[2].OperationID)
	}

	since, err := store.EntriesSince(200, 0)
	if err != nil {
		t.Fatalf("EntriesSince failed: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("expected 2 entries at watermark 200, got %d", len(since))
	}
}

func TestChangeLogMarkProcessed(t *testing.T) {
	database := setupTestDB(t)
	store := NewChangeLogStore(database)

	a := testEntry(100)
	b := testEntry(200)
	appendEntry(t, database, store, a)
	appendEntry(t, database, store, b)

	pending, err := store.Unprocessed(0)
	if err != nil {
		t.Fatalf("Unprocessed failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 unprocessed entries, got %d", len(pending))
	}

	if err := store.MarkProcessed([]models.UUID{a.OperationID}, "batch-1", 500); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	pending, err = store.Unprocessed(0)
	if err != nil {
		t.Fatalf("Unprocessed failed: %v", err)
	}
	if len(pending) != 1 || pending[0].OperationID != b.OperationID {
		t.Errorf("expected only %s pending, got %d entries", b.OperationID, len(pending))
	}
}

func TestChangeLogFindByEntity(t *testing.T) {
	database := setupTestDB(t)
	store := NewChangeLogStore(database)

	entityID := models.UUID(uuid.New())
	a := testEntry(100)
	a.EntityID = entityID
	b := testEntry(200)
	b.EntityID = entityID
	other := testEntry(150)
	for _, e := range []*models.ChangeLogEntry{b, a, other} {
		appendEntry(t, database, store, e)
	}

	history, err := store.FindByEntity("project_funding", entityID)
	if err != nil {
		t.Fatalf("FindByEntity failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Timestamp != 100 || history[1].Timestamp != 200 {
		t.Error("history not in timestamp order")
	}
}
