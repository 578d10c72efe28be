// Package models provides data model definitions for the PamojaStore core.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// IsZero reports whether the UUID is unset.
func (u UUID) IsZero() bool {
	return u == ""
}

// NowMillis returns the current time as Unix milliseconds, the timestamp
// representation used throughout the store. Millisecond resolution keeps
// field-level last-write-wins comparisons meaningful across devices.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// MillisToTime converts a stored Unix-millisecond timestamp to time.Time.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// Audit carries the entity-level bookkeeping columns every synced entity
// shares. Field-level shadow metadata lives on the entities themselves.
type Audit struct {
	CreatedAt         int64  `db:"created_at" json:"created_at"`
	UpdatedAt         int64  `db:"updated_at" json:"updated_at"`
	CreatedByUserID   *UUID  `db:"created_by_user_id" json:"created_by_user_id,omitempty"`
	UpdatedByUserID   *UUID  `db:"updated_by_user_id" json:"updated_by_user_id,omitempty"`
	CreatedByDeviceID *UUID  `db:"created_by_device_id" json:"created_by_device_id,omitempty"`
	UpdatedByDeviceID *UUID  `db:"updated_by_device_id" json:"updated_by_device_id,omitempty"`
	DeletedAt         *int64 `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletedByUserID   *UUID  `db:"deleted_by_user_id" json:"deleted_by_user_id,omitempty"`
}

// IsDeleted reports whether the entity is soft-deleted locally.
func (a *Audit) IsDeleted() bool {
	return a.DeletedAt != nil
}

// Touch bumps the entity-level UpdatedAt timestamp.
func (a *Audit) Touch(at int64) {
	a.UpdatedAt = at
}
