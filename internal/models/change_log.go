// Package models provides data model definitions for the PamojaStore core.
package models

import "time"

// OperationType is the kind of mutation a change log entry records.
type OperationType string

const (
	OpCreate     OperationType = "create"
	OpUpdate     OperationType = "update"
	OpDelete     OperationType = "delete"
	OpHardDelete OperationType = "hard_delete"
)

// Valid reports whether the operation type is one of the known values.
func (o OperationType) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete, OpHardDelete:
		return true
	}
	return false
}

// ChangeLogEntry records a single mutation applied to an entity. Entries are
// append-only and are the unit of exchange between devices during sync.
//
// FieldName is nil for whole-row operations (creates carry the full entity
// state in NewValue); for field-level updates it names the mutated column and
// NewValue holds the JSON-serialized field value.
type ChangeLogEntry struct {
	OperationID   UUID          `db:"operation_id" json:"operation_id"`
	EntityTable   string        `db:"entity_table" json:"entity_table"`
	EntityID      UUID          `db:"entity_id" json:"entity_id"`
	OperationType OperationType `db:"operation_type" json:"operation_type"`
	FieldName     *string       `db:"field_name" json:"field_name,omitempty"`
	OldValue      *string       `db:"old_value" json:"old_value,omitempty"`
	NewValue      *string       `db:"new_value" json:"new_value,omitempty"`
	Timestamp     int64         `db:"timestamp" json:"timestamp"`
	UserID        UUID          `db:"user_id" json:"user_id"`
	DeviceID      UUID          `db:"device_id" json:"device_id,omitempty"`
	SyncBatchID   *string       `db:"sync_batch_id" json:"sync_batch_id,omitempty"`
	ProcessedAt   *int64        `db:"processed_at" json:"processed_at,omitempty"`
	SyncError     *string       `db:"sync_error" json:"sync_error,omitempty"`
}

// TableName returns the table name for ChangeLogEntry.
func (ChangeLogEntry) TableName() string {
	return "change_log"
}

// Time returns the entry timestamp as time.Time.
func (c *ChangeLogEntry) Time() time.Time {
	return MillisToTime(c.Timestamp)
}
