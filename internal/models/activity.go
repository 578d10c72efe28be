// Package models provides data model definitions for the PamojaStore core.
package models

// Activity is a program activity tracked against a project KPI. Same LWW
// shadow-field pattern as ProjectFunding.
type Activity struct {
	ID UUID `db:"id" json:"id"`

	ProjectID                  *UUID  `db:"project_id" json:"project_id,omitempty"`
	ProjectIDUpdatedAt         *int64 `db:"project_id_updated_at" json:"project_id_updated_at,omitempty"`
	ProjectIDUpdatedBy         *UUID  `db:"project_id_updated_by" json:"project_id_updated_by,omitempty"`
	ProjectIDUpdatedByDeviceID *UUID  `db:"project_id_updated_by_device_id" json:"project_id_updated_by_device_id,omitempty"`

	Description                  *string `db:"description" json:"description,omitempty"`
	DescriptionUpdatedAt         *int64  `db:"description_updated_at" json:"description_updated_at,omitempty"`
	DescriptionUpdatedBy         *UUID   `db:"description_updated_by" json:"description_updated_by,omitempty"`
	DescriptionUpdatedByDeviceID *UUID   `db:"description_updated_by_device_id" json:"description_updated_by_device_id,omitempty"`

	KPI                  *string `db:"kpi" json:"kpi,omitempty"`
	KPIUpdatedAt         *int64  `db:"kpi_updated_at" json:"kpi_updated_at,omitempty"`
	KPIUpdatedBy         *UUID   `db:"kpi_updated_by" json:"kpi_updated_by,omitempty"`
	KPIUpdatedByDeviceID *UUID   `db:"kpi_updated_by_device_id" json:"kpi_updated_by_device_id,omitempty"`

	TargetValue                  *float64 `db:"target_value" json:"target_value,omitempty"`
	TargetValueUpdatedAt         *int64   `db:"target_value_updated_at" json:"target_value_updated_at,omitempty"`
	TargetValueUpdatedBy         *UUID    `db:"target_value_updated_by" json:"target_value_updated_by,omitempty"`
	TargetValueUpdatedByDeviceID *UUID    `db:"target_value_updated_by_device_id" json:"target_value_updated_by_device_id,omitempty"`

	ActualValue                  *float64 `db:"actual_value" json:"actual_value,omitempty"`
	ActualValueUpdatedAt         *int64   `db:"actual_value_updated_at" json:"actual_value_updated_at,omitempty"`
	ActualValueUpdatedBy         *UUID    `db:"actual_value_updated_by" json:"actual_value_updated_by,omitempty"`
	ActualValueUpdatedByDeviceID *UUID    `db:"actual_value_updated_by_device_id" json:"actual_value_updated_by_device_id,omitempty"`

	Status                  string `db:"status" json:"status"`
	StatusUpdatedAt         *int64 `db:"status_updated_at" json:"status_updated_at,omitempty"`
	StatusUpdatedBy         *UUID  `db:"status_updated_by" json:"status_updated_by,omitempty"`
	StatusUpdatedByDeviceID *UUID  `db:"status_updated_by_device_id" json:"status_updated_by_device_id,omitempty"`

	Audit
}

// TableName returns the table name for Activity.
func (Activity) TableName() string {
	return "activities"
}

// Project is a plain local entity the synced entities reference. It is not
// merged across devices in this build; it exists so delete-dependency checks
// have something real to count.
type Project struct {
	ID   UUID   `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Audit
}

// TableName returns the table name for Project.
func (Project) TableName() string {
	return "projects"
}
