package db

import (
	"context"
	"database/sql"

	pkgerrors "github.com/pkg/errors"

	"github.com/anyamene/pamojastore/internal/auth"
	"github.com/anyamene/pamojastore/internal/errors"
	"github.com/anyamene/pamojastore/internal/models"
	"github.com/anyamene/pamojastore/internal/uuid"
)

// ProjectRepo stores projects. Projects are device-local scaffolding that
// funding, workshops, and activities hang off; they do not merge.
type ProjectRepo struct {
	db *DB
}

// NewProjectRepo creates a ProjectRepo.
func NewProjectRepo(db *DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

// Create inserts a project.
func (r *ProjectRepo) Create(ctx context.Context, authCtx auth.Context, p *models.Project) error {
	if p.Name == "" {
		return errors.New(errors.ErrValidation, "name is required")
	}
	if p.ID.IsZero() {
		p.ID = models.UUID(uuid.New())
	}
	now := models.NowMillis()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.CreatedByUserID = &authCtx.UserID
	p.CreatedByDeviceID = &authCtx.DeviceID
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, created_at, updated_at, created_by_user_id, created_by_device_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.CreatedAt, p.UpdatedAt, p.CreatedByUserID, p.CreatedByDeviceID)
	return pkgerrors.Wrap(err, "insert project")
}

// Get returns a project by ID.
func (r *ProjectRepo) Get(id models.UUID) (*models.Project, error) {
	var p models.Project
	err := r.db.QueryRow(`
		SELECT id, name, created_at, updated_at, created_by_user_id, updated_by_user_id,
			created_by_device_id, updated_by_device_id, deleted_at, deleted_by_user_id
		FROM projects WHERE id = ?`, id).Scan(
		&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt, &p.CreatedByUserID, &p.UpdatedByUserID,
		&p.CreatedByDeviceID, &p.UpdatedByDeviceID, &p.DeletedAt, &p.DeletedByUserID)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrNotFound, "project %s not found", id)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "get project")
	}
	return &p, nil
}

// List returns all live projects.
func (r *ProjectRepo) List() ([]models.Project, error) {
	rows, err := r.db.Query(`
		SELECT id, name, created_at, updated_at, created_by_user_id, updated_by_user_id,
			created_by_device_id, updated_by_device_id, deleted_at, deleted_by_user_id
		FROM projects WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list projects")
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt,
			&p.CreatedByUserID, &p.UpdatedByUserID, &p.CreatedByDeviceID,
			&p.UpdatedByDeviceID, &p.DeletedAt, &p.DeletedByUserID); err != nil {
			return nil, pkgerrors.Wrap(err, "scan project row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
