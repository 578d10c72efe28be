// Package deletes implements the entity deletion workflow: dependency
// checks, soft-delete fallback, hard deletes with tombstones, and the
// background removal of attached files.
package deletes

import (
	"database/sql"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/anyamene/pamojastore/internal/models"
)

// Dependency names a reference that blocks a hard delete.
type Dependency struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Count  int64  `json:"count"`
}

func (d Dependency) String() string {
	return fmt.Sprintf("%d row(s) in %s.%s", d.Count, d.Table, d.Column)
}

// reference is one foreign-key-like edge checked before a hard delete.
type reference struct {
	table  string
	column string
}

// deletableTables maps each table the delete service accepts to the
// references that must be empty before its rows can be hard-deleted.
// Soft-deleted referrers do not block: they are already on their way out.
var deletableTables = map[string][]reference{
	"projects": {
		{table: "project_funding", column: "project_id"},
		{table: "workshops", column: "project_id"},
		{table: "activities", column: "project_id"},
	},
	"project_funding": nil,
	"workshops":       nil,
	"activities":      nil,
}

// DependencyChecker counts live references to an entity.
type DependencyChecker struct{}

// NewDependencyChecker creates a DependencyChecker.
func NewDependencyChecker() *DependencyChecker {
	return &DependencyChecker{}
}

// Check returns the blocking dependencies for an entity, inside the caller's
// transaction so the counts and the delete see the same state.
func (c *DependencyChecker) Check(tx *sql.Tx, entityTable string, entityID models.UUID) ([]Dependency, error) {
	refs, ok := deletableTables[entityTable]
	if !ok {
		return nil, pkgerrors.Errorf("table %q is not deletable", entityTable)
	}

	var blocking []Dependency
	for _, ref := range refs {
		query := fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE %s = ? AND deleted_at IS NULL",
			ref.table, ref.column,
		)
		var n int64
		if err := tx.QueryRow(query, entityID).Scan(&n); err != nil {
			return nil, pkgerrors.Wrapf(err, "count %s.%s references", ref.table, ref.column)
		}
		if n > 0 {
			blocking = append(blocking, Dependency{Table: ref.table, Column: ref.column, Count: n})
		}
	}
	return blocking, nil
}

// isDeletable reports whether the delete service accepts the table.
func isDeletable(entityTable string) bool {
	_, ok := deletableTables[entityTable]
	return ok
}
