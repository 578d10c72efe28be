// Package models provides data model definitions for the PamojaStore core.
package models

// Workshop is a training event run under a project. Same LWW shadow-field
// pattern as ProjectFunding.
type Workshop struct {
	ID UUID `db:"id" json:"id"`

	ProjectID                  *UUID  `db:"project_id" json:"project_id,omitempty"`
	ProjectIDUpdatedAt         *int64 `db:"project_id_updated_at" json:"project_id_updated_at,omitempty"`
	ProjectIDUpdatedBy         *UUID  `db:"project_id_updated_by" json:"project_id_updated_by,omitempty"`
	ProjectIDUpdatedByDeviceID *UUID  `db:"project_id_updated_by_device_id" json:"project_id_updated_by_device_id,omitempty"`

	Purpose                  *string `db:"purpose" json:"purpose,omitempty"`
	PurposeUpdatedAt         *int64  `db:"purpose_updated_at" json:"purpose_updated_at,omitempty"`
	PurposeUpdatedBy         *UUID   `db:"purpose_updated_by" json:"purpose_updated_by,omitempty"`
	PurposeUpdatedByDeviceID *UUID   `db:"purpose_updated_by_device_id" json:"purpose_updated_by_device_id,omitempty"`

	EventDate                  *string `db:"event_date" json:"event_date,omitempty"`
	EventDateUpdatedAt         *int64  `db:"event_date_updated_at" json:"event_date_updated_at,omitempty"`
	EventDateUpdatedBy         *UUID   `db:"event_date_updated_by" json:"event_date_updated_by,omitempty"`
	EventDateUpdatedByDeviceID *UUID   `db:"event_date_updated_by_device_id" json:"event_date_updated_by_device_id,omitempty"`

	Location                  *string `db:"location" json:"location,omitempty"`
	LocationUpdatedAt         *int64  `db:"location_updated_at" json:"location_updated_at,omitempty"`
	LocationUpdatedBy         *UUID   `db:"location_updated_by" json:"location_updated_by,omitempty"`
	LocationUpdatedByDeviceID *UUID   `db:"location_updated_by_device_id" json:"location_updated_by_device_id,omitempty"`

	Budget                  *float64 `db:"budget" json:"budget,omitempty"`
	BudgetUpdatedAt         *int64   `db:"budget_updated_at" json:"budget_updated_at,omitempty"`
	BudgetUpdatedBy         *UUID    `db:"budget_updated_by" json:"budget_updated_by,omitempty"`
	BudgetUpdatedByDeviceID *UUID    `db:"budget_updated_by_device_id" json:"budget_updated_by_device_id,omitempty"`

	ParticipantCount                  *int64 `db:"participant_count" json:"participant_count,omitempty"`
	ParticipantCountUpdatedAt         *int64 `db:"participant_count_updated_at" json:"participant_count_updated_at,omitempty"`
	ParticipantCountUpdatedBy         *UUID  `db:"participant_count_updated_by" json:"participant_count_updated_by,omitempty"`
	ParticipantCountUpdatedByDeviceID *UUID  `db:"participant_count_updated_by_device_id" json:"participant_count_updated_by_device_id,omitempty"`

	Audit
}

// TableName returns the table name for Workshop.
func (Workshop) TableName() string {
	return "workshops"
}
