// Package auth carries the authentication context stamped onto local writes.
// Token issuance and verification live outside this module; the merge core
// only consumes the resolved context values.
package auth

import "github.com/anyamene/pamojastore/internal/models"

// Role is the coarse permission level of the acting user.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleFieldTeam Role = "field_team"
	RoleViewer    Role = "viewer"
)

// Context identifies who is acting, from which device, and whether the app
// is currently offline. It is passed by value through the merge core.
type Context struct {
	UserID      models.UUID
	Role        Role
	DeviceID    models.UUID
	OfflineMode bool
}

// New creates an authentication context.
func New(userID models.UUID, role Role, deviceID models.UUID, offline bool) Context {
	return Context{UserID: userID, Role: role, DeviceID: deviceID, OfflineMode: offline}
}

// SystemContext returns the context used for internal operations such as
// tombstone application driven by the sync orchestrator.
func SystemContext(deviceID models.UUID) Context {
	return Context{
		UserID:   models.UUID("00000000-0000-0000-0000-000000000000"),
		Role:     RoleAdmin,
		DeviceID: deviceID,
	}
}

// IsAdmin reports whether the acting user has administrator privileges.
func (c Context) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// IsLocalChange reports whether a change log entry originated from this
// device. Self-echoes must never be re-applied.
func (c Context) IsLocalChange(change *models.ChangeLogEntry) bool {
	return !change.DeviceID.IsZero() && change.DeviceID == c.DeviceID
}
