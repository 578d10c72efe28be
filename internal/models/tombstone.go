// Package models provides data model definitions for the PamojaStore core.
package models

import "time"

// Tombstone marks an entity as hard-deleted. Once a tombstone exists for
// (EntityType, EntityID) no remote create may resurrect the row. Tombstones
// are never removed automatically; see the purge-tombstones command.
type Tombstone struct {
	ID                UUID   `db:"id" json:"id"`
	EntityID          UUID   `db:"entity_id" json:"entity_id"`
	EntityType        string `db:"entity_type" json:"entity_type"`
	DeletedBy         UUID   `db:"deleted_by" json:"deleted_by"`
	DeletedByDeviceID UUID   `db:"deleted_by_device_id" json:"deleted_by_device_id,omitempty"`
	DeletedAt         int64  `db:"deleted_at" json:"deleted_at"`
	OperationID       UUID   `db:"operation_id" json:"operation_id"`
	PushedAt          *int64 `db:"pushed_at" json:"pushed_at,omitempty"`
}

// TableName returns the table name for Tombstone.
func (Tombstone) TableName() string {
	return "tombstones"
}

// Time returns the deletion timestamp as time.Time.
func (t *Tombstone) Time() time.Time {
	return MillisToTime(t.DeletedAt)
}
