package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/anyamene/pamojastore/internal/auth"
	"github.com/anyamene/pamojastore/internal/errors"
	"github.com/anyamene/pamojastore/internal/models"
	"github.com/anyamene/pamojastore/internal/uuid"
)

var (
	deviceLow  = models.UUID("11111111-1111-4111-8111-111111111111")
	deviceHigh = models.UUID("ffffffff-ffff-4fff-8fff-ffffffffffff")
)

func testAuth(device models.UUID) auth.Context {
	return auth.New(models.UUID(uuid.New()), auth.RoleFieldTeam, device, true)
}

func newFundingFixture(t *testing.T) (*DB, *FundingRepo, *ChangeLogStore, *TombstoneStore) {
	t.Helper()
	database := setupTestDB(t)
	changes := NewChangeLogStore(database)
	tombstones := NewTombstoneStore(database)
	repo := NewFundingRepo(database, changes, tombstones)
	return database, repo, changes, tombstones
}

func createFunding(t *testing.T, repo *FundingRepo, authCtx auth.Context) *models.ProjectFunding {
	t.Helper()
	f := &models.ProjectFunding{
		ProjectID: models.UUID(uuid.New()),
		DonorName: "Hewlett Foundation",
		Amount:    25000,
	}
	if err := repo.Create(context.Background(), authCtx, f); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return f
}

func mergeChange(t *testing.T, database *DB, repo *FundingRepo, authCtx auth.Context, change *models.ChangeLogEntry) models.MergeOutcome {
	t.Helper()
	var outcome models.MergeOutcome
	err := WithTxNoContext(database, func(tx *sql.Tx) error {
		var err error
		outcome, err = repo.MergeRemoteChange(tx, authCtx, change)
		return err
	})
	if err != nil {
		t.Fatalf("MergeRemoteChange failed: %v", err)
	}
	return outcome
}

func fieldChange(entityID models.UUID, field, jsonValue string, timestamp int64, device models.UUID) *models.ChangeLogEntry {
	return &models.ChangeLogEntry{
		OperationID:   models.UUID(uuid.New()),
		EntityTable:   "project_funding",
		EntityID:      entityID,
		OperationType: models.OpUpdate,
		FieldName:     &field,
		NewValue:      &jsonValue,
		Timestamp:     timestamp,
		UserID:        models.UUID(uuid.New()),
		DeviceID:      device,
	}
}

func TestFundingCreateAnnouncesOnChangeLog(t *testing.T) {
	_, repo, changes, _ := newFundingFixture(t)
	authCtx := testAuth(deviceLow)

	f := createFunding(t, repo, authCtx)

	got, err := repo.Get(f.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.DonorName != "Hewlett Foundation" || got.Amount != 25000 {
		t.Error("created row fields not persisted")
	}
	if got.Currency != "USD" || got.Status != "proposed" {
		t.Error("defaults not applied")
	}

	history, err := changes.FindByEntity("project_funding", f.ID)
	if err != nil {
		t.Fatalf("FindByEntity failed: %v", err)
	}
	if len(history) != 1 || history[0].OperationType != models.OpCreate {
		t.Fatalf("expected one create entry, got %d entries", len(history))
	}
	if history[0].NewValue == nil {
		t.Error("create entry must carry the full state payload")
	}
	if history[0].DeviceID != deviceLow {
		t.Error("create entry must carry the writing device")
	}
}

func TestFundingUpdateFieldStampsShadow(t *testing.T) {
	_, repo, changes, _ := newFundingFixture(t)
	authCtx := testAuth(deviceLow)
	f := createFunding(t, repo, authCtx)

	if err := repo.UpdateField(context.Background(), authCtx, f.ID, "amount", 32000.0); err != nil {
		t.Fatalf("UpdateField failed: %v", err)
	}

	got, err := repo.Get(f.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Amount != 32000 {
		t.Errorf("expected amount 32000, got %v", got.Amount)
	}
	if got.AmountUpdatedAt == nil || got.AmountUpdatedBy == nil || got.AmountUpdatedByDeviceID == nil {
		t.Fatal("shadow metadata not stamped")
	}
	if *got.AmountUpdatedByDeviceID != deviceLow {
		t.Error("shadow device id mismatch")
	}
	if got.DonorNameUpdatedAt != nil {
		t.Error("untouched field must keep a clean shadow")
	}

	history, err := changes.FindByEntity("project_funding", f.ID)
	if err != nil {
		t.Fatalf("FindByEntity failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected create + update entries, got %d", len(history))
	}
	update := history[1]
	if update.FieldName == nil || *update.FieldName != "amount" {
		t.Error("update entry must name the field")
	}
	if update.OldValue == nil || *update.OldValue != "25000.0" && *update.OldValue != "25000" {
		t.Errorf("update entry must carry the prior value, got %v", update.OldValue)
	}
}

func TestFundingUpdateFieldRejectsUnknownColumn(t *testing.T) {
	_, repo, _, _ := newFundingFixture(t)
	authCtx := testAuth(deviceLow)
	f := createFunding(t, repo, authCtx)

	err := repo.UpdateField(context.Background(), authCtx, f.ID, "created_at", 0)
	if !errors.Is(err, errors.ErrInvalid) {
		t.Errorf("expected invalid-input error, got %v", err)
	}
}

func TestFundingSoftDeleteIsLocal(t *testing.T) {
	database, repo, changes, _ := newFundingFixture(t)
	authCtx := testAuth(deviceLow)
	f := createFunding(t, repo, authCtx)

	// A remote soft delete against a live row must not touch it: soft
	// deletes are a device-local workflow state.
	remoteLive := &models.ChangeLogEntry{
		OperationID:   models.UUID(uuid.New()),
		EntityTable:   "project_funding",
		EntityID:      f.ID,
		OperationType: models.OpDelete,
		Timestamp:     models.NowMillis() + 1000,
		UserID:        models.UUID(uuid.New()),
		DeviceID:      deviceHigh,
	}
	outcome := mergeChange(t, database, repo, authCtx, remoteLive)
	if outcome.Kind != models.OutcomeNoOp {
		t.Fatalf("remote soft delete must be a no-op, got %s", outcome.Kind)
	}
	got, err := repo.Get(f.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.DeletedAt != nil {
		t.Fatal("remote soft delete must never set deleted_at on a live row")
	}

	if err := repo.SoftDelete(context.Background(), authCtx, f.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	got, err = repo.Get(f.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.IsDeleted() {
		t.Fatal("row should be soft-deleted")
	}

	history, err := changes.FindByEntity("project_funding", f.ID)
	if err != nil {
		t.Fatalf("FindByEntity failed: %v", err)
	}
	if history[len(history)-1].OperationType != models.OpDelete {
		t.Error("soft delete must append a delete entry")
	}
}

func TestFundingMergeNewerRemoteWins(t *testing.T) {
	database, repo, _, _ := newFundingFixture(t)
	authCtx := testAuth(deviceLow)
	f := createFunding(t, repo, authCtx)

	outcome := mergeChange(t, database, repo, authCtx,
		fieldChange(f.ID, "amount", "500.0", 10, deviceHigh))
	if outcome.Kind != models.OutcomeUpdated {
		t.Fatalf("expected updated, got %s", outcome.Kind)
	}

	got, _ := repo.Get(f.ID)
	if got.Amount != 500 {
		t.Errorf("expected amount 500, got %v", got.Amount)
	}
	if got.AmountUpdatedAt == nil || *got.AmountUpdatedAt != 10 {
		t.Error("shadow timestamp must follow the remote change")
	}
}

func TestFundingMergeOlderRemoteIsNoOp(t *testing.T) {
	database, repo, _, _ := newFundingFixture(t)
	authCtx := testAuth(deviceLow)
	f := createFunding(t, repo, authCtx)

	first := mergeChange(t, database, repo, authCtx,
		fieldChange(f.ID, "amount", "500.0", 10, deviceHigh))
	if first.Kind != models.OutcomeUpdated {
		t.Fatalf("setup merge should apply, got %s", first.Kind)
	}

	// Older write for the same field arrives late and must lose.
	late := mergeChange(t, database, repo, authCtx,
		fieldChange(f.ID, "amount", "750.0", 8, deviceHigh))
	if late.Kind != models.OutcomeNoOp {
		t.Fatalf("expected noop, got %s", late.Kind)
	}

	got, _ := repo.Get(f.ID)
	if got.Amount != 500 {
		t.Errorf("late older write must not land, amount = %v", got.Amount)
	}
}

func TestFundingMergeEqualTimestampConflict(t *testing.T) {
	database, repo, _, _ := newFundingFixture(t)
	authCtx := testAuth(deviceLow)
	f := createFunding(t, repo, authCtx)

	mergeChange(t, database, repo, authCtx,
		fieldChange(f.ID, "status", `"active"`, 30, deviceLow2()))

	// Same timestamp from a greater device id: deterministic winner, conflict reported.
	outcome := mergeChange(t, database, repo, authCtx,
		fieldChange(f.ID, "status", `"closed"`, 30, deviceHigh))
	if outcome.Kind != models.OutcomeConflictDetected {
		t.Fatalf("expected conflict, got %s", outcome.Kind)
	}
	if outcome.LosingValue == nil || *outcome.LosingValue != `"active"` {
		t.Errorf("losing value must be recorded as change-log JSON, got %v", outcome.LosingValue)
	}
	loserSideLosing := *outcome.LosingValue

	got, _ := repo.Get(f.ID)
	if got.Status != "closed" {
		t.Errorf("greater device must win the tie, status = %q", got.Status)
	}

	// The mirror image: lesser device arrives second, local value holds.
	outcome = mergeChange(t, database, repo, authCtx,
		fieldChange(f.ID, "status", `"active"`, 30, deviceLow2()))
	if outcome.Kind != models.OutcomeConflictDetected {
		t.Fatalf("expected conflict on losing side too, got %s", outcome.Kind)
	}
	// Both devices see the same tie and must record the identical losing
	// value, regardless of which side of it they sit on.
	if outcome.LosingValue == nil || *outcome.LosingValue != loserSideLosing {
		t.Errorf("losing value must match across devices, got %v vs %q", outcome.LosingValue, loserSideLosing)
	}
	got, _ = repo.Get(f.ID)
	if got.Status != "closed" {
		t.Errorf("both orders must converge on the same winner, status = %q", got.Status)
	}

	// Numeric ties canonicalize too: a peer that logged "750.0" and the
	// local REAL column both come out as the same JSON number.
	mergeChange(t, database, repo, authCtx,
		fieldChange(f.ID, "amount", "750.0", 40, deviceLow2()))
	win := mergeChange(t, database, repo, authCtx,
		fieldChange(f.ID, "amount", "900.0", 40, deviceHigh))
	mirror := mergeChange(t, database, repo, authCtx,
		fieldChange(f.ID, "amount", "750.0", 40, deviceLow2()))
	if win.LosingValue == nil || mirror.LosingValue == nil {
		t.Fatal("numeric tie must record losing values on both sides")
	}
	if *win.LosingValue != *mirror.LosingValue {
		t.Errorf("numeric losing value must match across devices, got %q vs %q", *win.LosingValue, *mirror.LosingValue)
	}
	if *win.LosingValue != "750" {
		t.Errorf("numeric losing value must be canonical JSON, got %q", *win.LosingValue)
	}
}

// deviceLow2 is a second field device distinct from the fixture writer.
func deviceLow2() models.UUID {
	return models.UUID("22222222-2222-4222-8222-222222222222")
}

func TestFundingMergeUpdateBeforeCreateMaterializes(t *testing.T) {
	database, repo, _, _ := newFundingFixture(t)
	authCtx := testAuth(deviceLow)
	orphanID := models.UUID(uuid.New())

	outcome := mergeChange(t, database, repo, authCtx,
		fieldChange(orphanID, "donor_name", `"Ford Foundation"`, 50, deviceHigh))
	if outcome.Kind != models.OutcomeUpdated {
		t.Fatalf("expected updated, got %s", outcome.Kind)
	}

	got, err := repo.Get(orphanID)
	if err != nil {
		t.Fatalf("materialized row should exist: %v", err)
	}
	if got.DonorName != "Ford Foundation" {
		t.Errorf("field must land on the materialized row, got %q", got.DonorName)
	}
}

func TestFundingMergeSelfEchoSkipped(t *testing.T) {
	database, repo, _, _ := newFundingFixture(t)
	authCtx := testAuth(deviceLow)
	f := createFunding(t, repo, authCtx)

	outcome := mergeChange(t, database, repo, authCtx,
		fieldChange(f.ID, "amount", "999.0", models.NowMillis()+1000, deviceLow))
	if outcome.Kind != models.OutcomeNoOp {
		t.Fatalf("own change must never re-apply, got %s", outcome.Kind)
	}
	got, _ := repo.Get(f.ID)
	if got.Amount != 25000 {
		t.Errorf("self-echo must not change state, amount = %v", got.Amount)
	}
}

func TestFundingMergeRoutesHardDeletesToDeleteService(t *testing.T) {
	database, repo, _, _ := newFundingFixture(t)
	authCtx := testAuth(deviceLow)
	f := createFunding(t, repo, authCtx)

	// Hard deletes belong to the delete service; the field merger must
	// refuse them instead of running its own cascade.
	hardDelete := &models.ChangeLogEntry{
		OperationID:   models.UUID(uuid.New()),
		EntityTable:   "project_funding",
		EntityID:      f.ID,
		OperationType: models.OpHardDelete,
		Timestamp:     models.NowMillis() + 1000,
		UserID:        models.UUID(uuid.New()),
		DeviceID:      deviceHigh,
	}
	err := WithTxNoContext(database, func(tx *sql.Tx) error {
		_, mergeErr := repo.MergeRemoteChange(tx, authCtx, hardDelete)
		return mergeErr
	})
	if !errors.Is(err, errors.ErrMergeRouting) {
		t.Fatalf("expected routing error for hard delete, got %v", err)
	}
	if _, getErr := repo.Get(f.ID); getErr != nil {
		t.Fatal("refused hard delete must leave the row untouched")
	}
}

func TestFundingMergeCreateAfterTombstoneStaysDead(t *testing.T) {
	database, repo, _, tombstones := newFundingFixture(t)
	authCtx := testAuth(deviceLow)
	f := createFunding(t, repo, authCtx)

	deletedAt := models.NowMillis() + 1000
	err := WithTxNoContext(database, func(tx *sql.Tx) error {
		if _, execErr := tx.Exec("DELETE FROM project_funding WHERE id = ?", f.ID); execErr != nil {
			return execErr
		}
		return tombstones.Create(tx, &models.Tombstone{
			ID:                models.UUID(uuid.New()),
			EntityID:          f.ID,
			EntityType:        "project_funding",
			DeletedBy:         models.UUID(uuid.New()),
			DeletedByDeviceID: deviceHigh,
			DeletedAt:         deletedAt,
			OperationID:       models.UUID(uuid.New()),
		})
	})
	if err != nil {
		t.Fatalf("seeding tombstone failed: %v", err)
	}

	// A replayed create for the tombstoned entity must not resurrect it.
	payload := `{"donor_name": "Hewlett Foundation", "amount": 25000}`
	replay := &models.ChangeLogEntry{
		OperationID:   models.UUID(uuid.New()),
		EntityTable:   "project_funding",
		EntityID:      f.ID,
		OperationType: models.OpCreate,
		NewValue:      &payload,
		Timestamp:     deletedAt + 1000,
		UserID:        models.UUID(uuid.New()),
		DeviceID:      deviceHigh,
	}
	outcome := mergeChange(t, database, repo, authCtx, replay)
	if outcome.Kind != models.OutcomeNoOp {
		t.Fatalf("tombstoned entity must stay dead, got %s", outcome.Kind)
	}
	if _, err := repo.Get(f.ID); !errors.IsNotFound(err) {
		t.Fatal("tombstoned row must not come back")
	}
}

func TestFundingMergeCreateReplayIsIdempotent(t *testing.T) {
	database, repo, _, _ := newFundingFixture(t)
	authCtx := testAuth(deviceLow)
	remoteID := models.UUID(uuid.New())
	projectID := uuid.New()

	payload := `{"project_id": "` + projectID + `", "donor_name": "GIZ", "amount": 12000, "currency": "EUR", "status": "approved"}`
	create := &models.ChangeLogEntry{
		OperationID:   models.UUID(uuid.New()),
		EntityTable:   "project_funding",
		EntityID:      remoteID,
		OperationType: models.OpCreate,
		NewValue:      &payload,
		Timestamp:     100,
		UserID:        models.UUID(uuid.New()),
		DeviceID:      deviceHigh,
	}

	first := mergeChange(t, database, repo, authCtx, create)
	if first.Kind != models.OutcomeCreated {
		t.Fatalf("expected created, got %s", first.Kind)
	}
	got, err := repo.Get(remoteID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.DonorName != "GIZ" || got.Amount != 12000 || got.Currency != "EUR" {
		t.Error("payload fields not applied on create")
	}

	replayCopy := *create
	second := mergeChange(t, database, repo, authCtx, &replayCopy)
	if second.Kind == models.OutcomeCreated {
		t.Errorf("replayed create must not report created again, got %s", second.Kind)
	}
	got, _ = repo.Get(remoteID)
	if got.DonorName != "GIZ" || got.Amount != 12000 {
		t.Error("replay must leave state unchanged")
	}
}
