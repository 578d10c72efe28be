// Package sync routes remote changes and tombstones to per-entity mergers
// and orchestrates batch application.
package sync

import (
	"database/sql"

	"github.com/anyamene/pamojastore/internal/auth"
	"github.com/anyamene/pamojastore/internal/db"
	"github.com/anyamene/pamojastore/internal/deletes"
	"github.com/anyamene/pamojastore/internal/errors"
	"github.com/anyamene/pamojastore/internal/models"
	"github.com/anyamene/pamojastore/internal/uuid"
)

// EntityMerger folds remote changes for one entity table into local state.
// Implementations run inside the caller's transaction and must be safe to
// replay: applying the same change twice yields the same state.
type EntityMerger interface {
	// EntityTable names the table this merger handles.
	EntityTable() string
	// ApplyChange applies one remote change log entry.
	ApplyChange(tx *sql.Tx, authCtx auth.Context, change *models.ChangeLogEntry) (models.MergeOutcome, error)
	// ApplyTombstone enforces a remote hard-delete marker.
	ApplyTombstone(tx *sql.Tx, authCtx auth.Context, t *models.Tombstone) (models.MergeOutcome, error)
}

// remoteMerger is the method set every entity repository exposes for sync.
type remoteMerger interface {
	MergeRemoteChange(tx *sql.Tx, authCtx auth.Context, change *models.ChangeLogEntry) (models.MergeOutcome, error)
}

// repoMerger adapts an entity repository to the merger interface. Creates
// and updates go to the repository's last-write-wins gate; hard deletes and
// tombstones are delegated to the delete service so every deletion, local or
// remote, runs through the same cascade.
type repoMerger struct {
	table      string
	repo       remoteMerger
	tombstones *db.TombstoneStore
	deletes    *deletes.Service
}

func (m *repoMerger) EntityTable() string { return m.table }

func (m *repoMerger) ApplyChange(tx *sql.Tx, authCtx auth.Context, change *models.ChangeLogEntry) (models.MergeOutcome, error) {
	if change.EntityTable != m.table {
		return models.MergeOutcome{}, errors.Newf(errors.ErrMergeRouting,
			"change targets %s, merger handles %s", change.EntityTable, m.table)
	}
	if change.OperationType == models.OpHardDelete {
		return m.applyHardDelete(tx, authCtx, change)
	}
	return m.repo.MergeRemoteChange(tx, authCtx, change)
}

// applyHardDelete enforces a remote hard delete by delegating to the delete
// service with the deleting device's provenance as Origin. The service owns
// the cascade: queue attached files, remove the row, record the tombstone.
func (m *repoMerger) applyHardDelete(tx *sql.Tx, authCtx auth.Context, change *models.ChangeLogEntry) (models.MergeOutcome, error) {
	if authCtx.IsLocalChange(change) {
		return models.NoOp("change originated on this device"), nil
	}
	existing, err := m.tombstones.FindByEntityTx(tx, m.table, change.EntityID)
	if err == nil && existing.DeletedAt >= change.Timestamp {
		return models.NoOp("tombstone already recorded"), nil
	}
	if err != nil && !errors.IsNotFound(err) {
		return models.MergeOutcome{}, err
	}

	origin := &models.Tombstone{
		ID:                models.UUID(uuid.New()),
		EntityID:          change.EntityID,
		EntityType:        m.table,
		DeletedBy:         change.UserID,
		DeletedByDeviceID: change.DeviceID,
		DeletedAt:         change.Timestamp,
		OperationID:       change.OperationID,
	}
	res, err := m.deletes.DeleteTx(tx, authCtx, m.table, change.EntityID, deletes.Options{
		AllowHardDelete: true,
		Force:           true,
		Origin:          origin,
	})
	if err != nil {
		return models.MergeOutcome{}, err
	}
	if res.Status != deletes.StatusHardDeleted {
		return models.MergeOutcome{}, errors.Newf(errors.ErrMergeFailed,
			"remote hard delete of %s %s ended %s", m.table, change.EntityID, res.Status)
	}
	return models.HardDeleted(change.EntityID), nil
}

// ApplyTombstone enforces a tombstone exchanged during sync. The tombstone is
// stored with its original provenance and the row removed through the delete
// service. Re-applying a known tombstone is a no-op.
func (m *repoMerger) ApplyTombstone(tx *sql.Tx, authCtx auth.Context, t *models.Tombstone) (models.MergeOutcome, error) {
	if t.EntityType != m.table {
		return models.MergeOutcome{}, errors.Newf(errors.ErrMergeRouting,
			"tombstone targets %s, merger handles %s", t.EntityType, m.table)
	}
	existing, err := m.tombstones.FindByEntityTx(tx, m.table, t.EntityID)
	if err == nil && existing.DeletedAt >= t.DeletedAt {
		return models.NoOp("tombstone already recorded"), nil
	}
	if err != nil && !errors.IsNotFound(err) {
		return models.MergeOutcome{}, err
	}

	res, err := m.deletes.DeleteTx(tx, authCtx, m.table, t.EntityID, deletes.Options{
		AllowHardDelete: true,
		Force:           true,
		Origin:          t,
	})
	if err != nil {
		return models.MergeOutcome{}, err
	}
	if res.Status != deletes.StatusHardDeleted {
		return models.MergeOutcome{}, errors.Newf(errors.ErrMergeFailed,
			"tombstone enforcement on %s %s ended %s", m.table, t.EntityID, res.Status)
	}
	return models.HardDeleted(t.EntityID), nil
}

// NewFundingMerger adapts the funding repository to the merger interface.
func NewFundingMerger(repo *db.FundingRepo, tombstones *db.TombstoneStore, svc *deletes.Service) EntityMerger {
	return &repoMerger{table: models.ProjectFunding{}.TableName(), repo: repo, tombstones: tombstones, deletes: svc}
}

// NewWorkshopMerger adapts the workshop repository to the merger interface.
func NewWorkshopMerger(repo *db.WorkshopRepo, tombstones *db.TombstoneStore, svc *deletes.Service) EntityMerger {
	return &repoMerger{table: models.Workshop{}.TableName(), repo: repo, tombstones: tombstones, deletes: svc}
}

// NewActivityMerger adapts the activity repository to the merger interface.
func NewActivityMerger(repo *db.ActivityRepo, tombstones *db.TombstoneStore, svc *deletes.Service) EntityMerger {
	return &repoMerger{table: models.Activity{}.TableName(), repo: repo, tombstones: tombstones, deletes: svc}
}

// Registry maps entity tables to their mergers. Routing a change to a table
// with no registered merger is an error, not a skip: silently dropping
// changes would fork device state.
type Registry struct {
	mergers map[string]EntityMerger
}

// NewRegistry creates a Registry holding the given mergers.
func NewRegistry(mergers ...EntityMerger) *Registry {
	r := &Registry{mergers: make(map[string]EntityMerger, len(mergers))}
	for _, m := range mergers {
		r.mergers[m.EntityTable()] = m
	}
	return r
}

// Register adds or replaces the merger for one table.
func (r *Registry) Register(m EntityMerger) {
	r.mergers[m.EntityTable()] = m
}

// ForTable returns the merger for a table.
func (r *Registry) ForTable(table string) (EntityMerger, error) {
	m, ok := r.mergers[table]
	if !ok {
		return nil, errors.Newf(errors.ErrMergeRouting, "no merger registered for table %q", table)
	}
	return m, nil
}

// Tables returns the registered table names.
func (r *Registry) Tables() []string {
	out := make([]string, 0, len(r.mergers))
	for t := range r.mergers {
		out = append(out, t)
	}
	return out
}
