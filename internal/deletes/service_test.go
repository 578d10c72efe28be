package deletes

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyamene/pamojastore/internal/auth"
	"github.com/anyamene/pamojastore/internal/db"
	"github.com/anyamene/pamojastore/internal/errors"
	"github.com/anyamene/pamojastore/internal/models"
	"github.com/anyamene/pamojastore/internal/uuid"
)

var adminDevice = models.UUID("33333333-3333-4333-8333-333333333333")

type deleteEnv struct {
	db         *db.DB
	service    *Service
	changes    *db.ChangeLogStore
	tombstones *db.TombstoneStore
	documents  *db.DocumentStore
	projects   *db.ProjectRepo
	funding    *db.FundingRepo
}

func newDeleteEnv(t *testing.T) *deleteEnv {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.NewMigrator(database).Up())

	changes := db.NewChangeLogStore(database)
	tombstones := db.NewTombstoneStore(database)
	documents := db.NewDocumentStore(database)
	return &deleteEnv{
		db:         database,
		service:    NewService(database, changes, tombstones, documents, nil),
		changes:    changes,
		tombstones: tombstones,
		documents:  documents,
		projects:   db.NewProjectRepo(database),
		funding:    db.NewFundingRepo(database, changes, tombstones),
	}
}

func adminAuth() auth.Context {
	return auth.New(models.UUID(uuid.New()), auth.RoleAdmin, adminDevice, false)
}

func fieldAuth() auth.Context {
	return auth.New(models.UUID(uuid.New()), auth.RoleFieldTeam, adminDevice, true)
}

// seedProject creates a project, optionally with a live funding record
// hanging off it.
func (e *deleteEnv) seedProject(t *testing.T, withFunding bool) *models.Project {
	t.Helper()
	p := &models.Project{Name: "Water Access"}
	require.NoError(t, e.projects.Create(context.Background(), adminAuth(), p))
	if withFunding {
		f := &models.ProjectFunding{ProjectID: p.ID, DonorName: "SIDA", Amount: 80000}
		require.NoError(t, e.funding.Create(context.Background(), adminAuth(), f))
	}
	return p
}

func TestDeleteSoftByDefault(t *testing.T) {
	env := newDeleteEnv(t)
	p := env.seedProject(t, false)

	result, err := env.service.Delete(context.Background(), fieldAuth(), "projects", p.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSoftDeleted, result.Status)

	got, err := env.projects.Get(p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())

	// Soft deletes are announced but never tombstoned.
	_, err = env.tombstones.FindByEntity("projects", p.ID)
	assert.True(t, errors.IsNotFound(err))
	history, err := env.changes.FindByEntity("projects", p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.OpDelete, history[0].OperationType)
}

func TestDeleteHardRequiresAdmin(t *testing.T) {
	env := newDeleteEnv(t)
	p := env.seedProject(t, false)

	_, err := env.service.Delete(context.Background(), fieldAuth(), "projects", p.ID,
		Options{AllowHardDelete: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPermission))

	_, err = env.service.Delete(context.Background(), fieldAuth(), "projects", p.ID,
		Options{Force: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPermission))
}

func TestDeleteBlockedByDependencies(t *testing.T) {
	env := newDeleteEnv(t)
	p := env.seedProject(t, true)

	result, err := env.service.Delete(context.Background(), adminAuth(), "projects", p.ID,
		Options{AllowHardDelete: true})
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, result.Status)
	require.Len(t, result.Dependencies, 1)
	assert.Equal(t, "project_funding", result.Dependencies[0].Table)
	assert.Equal(t, int64(1), result.Dependencies[0].Count)

	// Row untouched, no tombstone.
	_, err = env.projects.Get(p.ID)
	require.NoError(t, err)
	_, err = env.tombstones.FindByEntity("projects", p.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteFallsBackToSoft(t *testing.T) {
	env := newDeleteEnv(t)
	p := env.seedProject(t, true)

	result, err := env.service.Delete(context.Background(), adminAuth(), "projects", p.ID,
		Options{AllowHardDelete: true, FallbackToSoftDelete: true})
	require.NoError(t, err)
	assert.Equal(t, StatusSoftDeleted, result.Status)
	assert.NotEmpty(t, result.Dependencies, "fallback result still names the blockers")

	got, err := env.projects.Get(p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())
}

func TestDeleteForceSkipsDependencyCheck(t *testing.T) {
	env := newDeleteEnv(t)
	p := env.seedProject(t, true)

	result, err := env.service.Delete(context.Background(), adminAuth(), "projects", p.ID,
		Options{AllowHardDelete: true, Force: true})
	require.NoError(t, err)
	assert.Equal(t, StatusHardDeleted, result.Status)

	_, err = env.projects.Get(p.ID)
	assert.True(t, errors.IsNotFound(err))

	ts, err := env.tombstones.FindByEntity("projects", p.ID)
	require.NoError(t, err)
	assert.Equal(t, adminDevice, ts.DeletedByDeviceID)

	history, err := env.changes.FindByEntity("projects", p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.OpHardDelete, history[0].OperationType)
	assert.Equal(t, ts.OperationID, history[0].OperationID)
}

func TestDeleteHardIsIdempotentOnAbsentRows(t *testing.T) {
	env := newDeleteEnv(t)
	ghostID := models.UUID(uuid.New())

	result, err := env.service.Delete(context.Background(), adminAuth(), "workshops", ghostID,
		Options{AllowHardDelete: true})
	require.NoError(t, err)
	assert.Equal(t, StatusHardDeleted, result.Status)

	// The tombstone still lands so the delete outlives the missing row.
	_, err = env.tombstones.FindByEntity("workshops", ghostID)
	require.NoError(t, err)
}

func TestDeleteWithOriginPreservesProvenance(t *testing.T) {
	env := newDeleteEnv(t)
	p := env.seedProject(t, false)

	remoteDevice := models.UUID("77777777-7777-4777-8777-777777777777")
	origin := &models.Tombstone{
		EntityID:          p.ID,
		EntityType:        "projects",
		DeletedBy:         models.UUID(uuid.New()),
		DeletedByDeviceID: remoteDevice,
		DeletedAt:         4242,
		OperationID:       models.UUID(uuid.New()),
	}

	result, err := env.service.Delete(context.Background(), adminAuth(), "projects", p.ID,
		Options{AllowHardDelete: true, Origin: origin})
	require.NoError(t, err)
	assert.Equal(t, StatusHardDeleted, result.Status)

	ts, err := env.tombstones.FindByEntity("projects", p.ID)
	require.NoError(t, err)
	assert.Equal(t, remoteDevice, ts.DeletedByDeviceID, "remote provenance must survive")
	assert.Equal(t, int64(4242), ts.DeletedAt)
	assert.Equal(t, origin.OperationID, ts.OperationID)

	// The originating device already announced this delete; re-announcing
	// it here would echo forever between devices.
	history, err := env.changes.FindByEntity("projects", p.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDeleteTxEnforcesRemoteDeleteWithoutAdminRole(t *testing.T) {
	env := newDeleteEnv(t)
	p := env.seedProject(t, false)

	origin := &models.Tombstone{
		EntityID:          p.ID,
		EntityType:        "projects",
		DeletedBy:         models.UUID(uuid.New()),
		DeletedByDeviceID: models.UUID("77777777-7777-4777-8777-777777777777"),
		DeletedAt:         9000,
		OperationID:       models.UUID(uuid.New()),
	}

	// Remote enforcement runs under whatever role pulled the batch; the
	// authority travels with the tombstone, not the local session.
	var result Result
	err := db.WithTxNoContext(env.db, func(tx *sql.Tx) error {
		var txErr error
		result, txErr = env.service.DeleteTx(tx, fieldAuth(), "projects", p.ID,
			Options{AllowHardDelete: true, Force: true, Origin: origin})
		return txErr
	})
	require.NoError(t, err)
	assert.Equal(t, StatusHardDeleted, result.Status)

	ts, err := env.tombstones.FindByEntity("projects", p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), ts.DeletedAt)

	// Without the remote provenance the same role is still refused.
	ghost := models.UUID(uuid.New())
	err = db.WithTxNoContext(env.db, func(tx *sql.Tx) error {
		_, txErr := env.service.DeleteTx(tx, fieldAuth(), "projects", ghost,
			Options{AllowHardDelete: true})
		return txErr
	})
	assert.True(t, errors.Is(err, errors.ErrPermission))
}

func TestDeleteCascadesDocumentsToFileQueue(t *testing.T) {
	env := newDeleteEnv(t)
	p := env.seedProject(t, false)

	compressed := "/data/files/report.pdf.gz"
	require.NoError(t, env.documents.Attach(&db.Document{
		EntityTable:        "projects",
		EntityID:           p.ID,
		FilePath:           "/data/files/report.pdf",
		CompressedFilePath: &compressed,
	}))

	result, err := env.service.Delete(context.Background(), adminAuth(), "projects", p.ID,
		Options{AllowHardDelete: true})
	require.NoError(t, err)
	assert.Equal(t, StatusHardDeleted, result.Status)

	docs, err := env.documents.ListByEntity("projects", p.ID)
	require.NoError(t, err)
	assert.Empty(t, docs, "document rows go with the entity")

	pending, err := env.documents.PendingDeletions(0)
	require.NoError(t, err)
	require.Len(t, pending, 2, "both the file and its compressed copy are queued")
	paths := []string{pending[0].FilePath, pending[1].FilePath}
	assert.ElementsMatch(t, []string{"/data/files/report.pdf", compressed}, paths)
}

func TestDeleteRejectsUnknownTable(t *testing.T) {
	env := newDeleteEnv(t)
	_, err := env.service.Delete(context.Background(), adminAuth(), "change_log", models.UUID(uuid.New()), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalid))
}
