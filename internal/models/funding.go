// Package models provides data model definitions for the PamojaStore core.
package models

// ProjectFunding is a funding agreement attached to a project. Every
// independently mutable field carries last-write-wins shadow metadata:
// the timestamp, user, and device of its most recent explicit write.
// An unset *_updated_at means the field still holds its creation-time value.
type ProjectFunding struct {
	ID UUID `db:"id" json:"id"`

	ProjectID                  UUID   `db:"project_id" json:"project_id"`
	ProjectIDUpdatedAt         *int64 `db:"project_id_updated_at" json:"project_id_updated_at,omitempty"`
	ProjectIDUpdatedBy         *UUID  `db:"project_id_updated_by" json:"project_id_updated_by,omitempty"`
	ProjectIDUpdatedByDeviceID *UUID  `db:"project_id_updated_by_device_id" json:"project_id_updated_by_device_id,omitempty"`

	DonorName                  string `db:"donor_name" json:"donor_name"`
	DonorNameUpdatedAt         *int64 `db:"donor_name_updated_at" json:"donor_name_updated_at,omitempty"`
	DonorNameUpdatedBy         *UUID  `db:"donor_name_updated_by" json:"donor_name_updated_by,omitempty"`
	DonorNameUpdatedByDeviceID *UUID  `db:"donor_name_updated_by_device_id" json:"donor_name_updated_by_device_id,omitempty"`

	GrantID                  *string `db:"grant_id" json:"grant_id,omitempty"`
	GrantIDUpdatedAt         *int64  `db:"grant_id_updated_at" json:"grant_id_updated_at,omitempty"`
	GrantIDUpdatedBy         *UUID   `db:"grant_id_updated_by" json:"grant_id_updated_by,omitempty"`
	GrantIDUpdatedByDeviceID *UUID   `db:"grant_id_updated_by_device_id" json:"grant_id_updated_by_device_id,omitempty"`

	Amount                  float64 `db:"amount" json:"amount"`
	AmountUpdatedAt         *int64  `db:"amount_updated_at" json:"amount_updated_at,omitempty"`
	AmountUpdatedBy         *UUID   `db:"amount_updated_by" json:"amount_updated_by,omitempty"`
	AmountUpdatedByDeviceID *UUID   `db:"amount_updated_by_device_id" json:"amount_updated_by_device_id,omitempty"`

	Currency                  string `db:"currency" json:"currency"`
	CurrencyUpdatedAt         *int64 `db:"currency_updated_at" json:"currency_updated_at,omitempty"`
	CurrencyUpdatedBy         *UUID  `db:"currency_updated_by" json:"currency_updated_by,omitempty"`
	CurrencyUpdatedByDeviceID *UUID  `db:"currency_updated_by_device_id" json:"currency_updated_by_device_id,omitempty"`

	StartDate                  *string `db:"start_date" json:"start_date,omitempty"`
	StartDateUpdatedAt         *int64  `db:"start_date_updated_at" json:"start_date_updated_at,omitempty"`
	StartDateUpdatedBy         *UUID   `db:"start_date_updated_by" json:"start_date_updated_by,omitempty"`
	StartDateUpdatedByDeviceID *UUID   `db:"start_date_updated_by_device_id" json:"start_date_updated_by_device_id,omitempty"`

	EndDate                  *string `db:"end_date" json:"end_date,omitempty"`
	EndDateUpdatedAt         *int64  `db:"end_date_updated_at" json:"end_date_updated_at,omitempty"`
	EndDateUpdatedBy         *UUID   `db:"end_date_updated_by" json:"end_date_updated_by,omitempty"`
	EndDateUpdatedByDeviceID *UUID   `db:"end_date_updated_by_device_id" json:"end_date_updated_by_device_id,omitempty"`

	Status                  string `db:"status" json:"status"`
	StatusUpdatedAt         *int64 `db:"status_updated_at" json:"status_updated_at,omitempty"`
	StatusUpdatedBy         *UUID  `db:"status_updated_by" json:"status_updated_by,omitempty"`
	StatusUpdatedByDeviceID *UUID  `db:"status_updated_by_device_id" json:"status_updated_by_device_id,omitempty"`

	Notes                  *string `db:"notes" json:"notes,omitempty"`
	NotesUpdatedAt         *int64  `db:"notes_updated_at" json:"notes_updated_at,omitempty"`
	NotesUpdatedBy         *UUID   `db:"notes_updated_by" json:"notes_updated_by,omitempty"`
	NotesUpdatedByDeviceID *UUID   `db:"notes_updated_by_device_id" json:"notes_updated_by_device_id,omitempty"`

	Audit
}

// TableName returns the table name for ProjectFunding.
func (ProjectFunding) TableName() string {
	return "project_funding"
}
