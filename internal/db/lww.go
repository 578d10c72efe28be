package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/anyamene/pamojastore/internal/errors"
	"github.com/anyamene/pamojastore/internal/models"
)

// tableSpec names a syncable table and the set of columns that carry
// per-field shadow metadata. Column names are interpolated into SQL, so
// everything outside this allowlist is rejected before any query is built.
type tableSpec struct {
	name    string
	columns map[string]bool
}

func (s tableSpec) allows(column string) bool {
	return s.columns[column]
}

var (
	fundingSpec = tableSpec{
		name: "project_funding",
		columns: map[string]bool{
			"project_id": true, "donor_name": true, "grant_id": true,
			"amount": true, "currency": true, "start_date": true,
			"end_date": true, "status": true, "notes": true,
		},
	}
	workshopSpec = tableSpec{
		name: "workshops",
		columns: map[string]bool{
			"project_id": true, "purpose": true, "event_date": true,
			"location": true, "budget": true, "participant_count": true,
		},
	}
	activitySpec = tableSpec{
		name: "activities",
		columns: map[string]bool{
			"project_id": true, "description": true, "kpi": true,
			"target_value": true, "actual_value": true, "status": true,
		},
	}
)

// remoteWins decides whether a remote write at (remoteAt, remoteDevice)
// beats the local shadow. A missing shadow always loses to the remote.
// Equal timestamps are broken by the lexicographically greater device ID so
// every replica picks the same winner.
func remoteWins(localAt *int64, localDevice *models.UUID, remoteAt int64, remoteDevice models.UUID) bool {
	if localAt == nil {
		return true
	}
	if remoteAt != *localAt {
		return remoteAt > *localAt
	}
	var local string
	if localDevice != nil {
		local = localDevice.String()
	}
	return remoteDevice.String() > local
}

// decodeScalar turns a change-log JSON value into a driver-bindable scalar.
// A nil pointer means SQL NULL. Values that fail to parse as JSON are bound
// as the raw string, which tolerates older peers that logged bare text.
func decodeScalar(raw *string) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(*raw), &v); err != nil {
		return *raw, nil
	}
	switch val := v.(type) {
	case nil, bool, float64, string:
		return val, nil
	default:
		return nil, errors.Newf(errors.ErrInvalid, "value %q is not a scalar", *raw)
	}
}

// encodeScalar is the inverse companion used when stamping the change log
// from local writes.
func encodeScalar(v interface{}) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode change value")
	}
	s := string(b)
	return &s, nil
}

// readFieldShadow loads the current value and shadow metadata for one column.
// raw carries the driver-typed value, current its TEXT rendering for the
// change log. A sql.ErrNoRows result means the row has not been materialized
// yet.
func readFieldShadow(tx *sql.Tx, spec tableSpec, column string, id models.UUID) (raw interface{}, current sql.NullString, at *int64, device *models.UUID, err error) {
	if !spec.allows(column) {
		return nil, current, nil, nil, errors.Newf(errors.ErrMergeRouting, "column %q is not mergeable on %s", column, spec.name)
	}
	query := fmt.Sprintf(
		"SELECT %s, CAST(%s AS TEXT), %s_updated_at, %s_updated_by_device_id FROM %s WHERE id = ?",
		column, column, column, column, spec.name,
	)
	var dev sql.NullString
	err = tx.QueryRow(query, id).Scan(&raw, &current, &at, &dev)
	if err != nil {
		return nil, current, nil, nil, err
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if dev.Valid {
		d := models.UUID(dev.String)
		device = &d
	}
	return raw, current, at, device, nil
}

// materializeRow inserts a minimal row so that field merges arriving ahead of
// the create operation have something to land on. Existing rows are left
// untouched.
func materializeRow(tx *sql.Tx, spec tableSpec, id models.UUID, change *models.ChangeLogEntry) error {
	query := fmt.Sprintf(
		"INSERT OR IGNORE INTO %s (id, created_at, updated_at, created_by_user_id, created_by_device_id) VALUES (?, ?, ?, ?, ?)",
		spec.name,
	)
	_, err := tx.Exec(query, id, change.Timestamp, change.Timestamp, change.UserID, change.DeviceID)
	return pkgerrors.Wrapf(err, "materialize %s row", spec.name)
}

// writeField stamps a column with a new value and shadow metadata inside the
// caller's transaction. The row-level updated_at only moves forward.
func writeField(tx *sql.Tx, spec tableSpec, column string, id models.UUID, value interface{}, at int64, userID, deviceID models.UUID) error {
	if !spec.allows(column) {
		return errors.Newf(errors.ErrMergeRouting, "column %q is not mergeable on %s", column, spec.name)
	}
	query := fmt.Sprintf(
		`UPDATE %s SET %s = ?, %s_updated_at = ?, %s_updated_by = ?, %s_updated_by_device_id = ?,
			updated_at = MAX(updated_at, ?), updated_by_user_id = ?, updated_by_device_id = ?
		WHERE id = ?`,
		spec.name, column, column, column, column,
	)
	_, err := tx.Exec(query, value, at, userID, deviceID, at, userID, deviceID, id)
	return pkgerrors.Wrapf(err, "write %s.%s", spec.name, column)
}

// mergeFieldLWW applies one remote field write under last-write-wins rules.
// Strictly newer remote values replace the local field. Strictly older ones
// are dropped as a no-op. Equal timestamps are a true conflict: the greater
// device ID wins and the outcome reports the losing value either way, in the
// same canonical JSON encoding so both devices record identical conflicts.
func mergeFieldLWW(tx *sql.Tx, spec tableSpec, change *models.ChangeLogEntry) (models.MergeOutcome, error) {
	column := *change.FieldName
	local, _, localAt, localDevice, err := readFieldShadow(tx, spec, column, change.EntityID)
	if err == sql.ErrNoRows {
		logrus.WithFields(logrus.Fields{
			"operation_id": change.OperationID,
			"entity_table": spec.name,
			"entity_id":    change.EntityID,
			"field":        column,
		}).Warn("materializing row for field write delivered ahead of its create")
		if err := materializeRow(tx, spec, change.EntityID, change); err != nil {
			return models.MergeOutcome{}, err
		}
		local, _, localAt, localDevice, err = readFieldShadow(tx, spec, column, change.EntityID)
	}
	if err != nil {
		return models.MergeOutcome{}, pkgerrors.Wrapf(err, "read %s.%s shadow", spec.name, column)
	}

	value, err := decodeScalar(change.NewValue)
	if err != nil {
		return models.MergeOutcome{}, err
	}

	equal := localAt != nil && *localAt == change.Timestamp

	// An exact replay: the shadow already carries this write.
	if equal && localDevice != nil && *localDevice == change.DeviceID {
		logrus.WithFields(logrus.Fields{
			"operation_id": change.OperationID,
			"entity_table": spec.name,
			"entity_id":    change.EntityID,
			"field":        column,
		}).Debug("skipping replayed field write")
		return models.NoOp(fmt.Sprintf("%s.%s: write at %d from %s already applied", spec.name, column, change.Timestamp, change.DeviceID)), nil
	}

	if !remoteWins(localAt, localDevice, change.Timestamp, change.DeviceID) {
		if equal {
			// The remote value loses; re-encode it so the recorded losing
			// value matches what the remote device records for the same tie.
			losing, lerr := encodeScalar(value)
			if lerr != nil {
				return models.MergeOutcome{}, lerr
			}
			logConflict(spec, column, change, "local")
			return models.ConflictDetected(change.EntityID,
				fmt.Sprintf("%s.%s: local write at %d kept over remote device %s", spec.name, column, *localAt, change.DeviceID),
				losing), nil
		}
		logrus.WithFields(logrus.Fields{
			"operation_id": change.OperationID,
			"entity_table": spec.name,
			"entity_id":    change.EntityID,
			"field":        column,
			"remote_at":    change.Timestamp,
			"local_at":     *localAt,
		}).Debug("dropping remote field write older than local")
		return models.NoOp(fmt.Sprintf("%s.%s: remote write at %d is older than local %d", spec.name, column, change.Timestamp, *localAt)), nil
	}

	if err := writeField(tx, spec, column, change.EntityID, value, change.Timestamp, change.UserID, change.DeviceID); err != nil {
		return models.MergeOutcome{}, err
	}

	if equal {
		// The overwritten local value loses; encode it the same way change
		// log payloads are encoded.
		losing, lerr := encodeScalar(local)
		if lerr != nil {
			return models.MergeOutcome{}, lerr
		}
		logConflict(spec, column, change, "remote")
		return models.ConflictDetected(change.EntityID,
			fmt.Sprintf("%s.%s: remote device %s won equal-timestamp write at %d", spec.name, column, change.DeviceID, change.Timestamp),
			losing), nil
	}
	return models.Updated(change.EntityID), nil
}

func logConflict(spec tableSpec, column string, change *models.ChangeLogEntry, winner string) {
	logrus.WithFields(logrus.Fields{
		"operation_id": change.OperationID,
		"entity_table": spec.name,
		"entity_id":    change.EntityID,
		"field":        column,
		"timestamp":    change.Timestamp,
		"winner":       winner,
	}).Info("equal-timestamp conflict resolved by device tie-break")
}

// mergeFullState applies a change whose payload is a whole-record JSON object
// rather than a single field. Each known column goes through the same
// last-write-wins gate with the change timestamp standing in for every field.
// Unknown keys are skipped so newer peers with wider schemas stay mergeable.
func mergeFullState(tx *sql.Tx, spec tableSpec, change *models.ChangeLogEntry) (models.MergeOutcome, error) {
	if change.NewValue == nil {
		return models.NoOp("full-state change carried no payload"), nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*change.NewValue), &fields); err != nil {
		return models.MergeOutcome{}, errors.Wrap(errors.ErrInvalid, "decode full-state payload", err)
	}

	applied := 0
	conflicts := 0
	var lastConflict models.MergeOutcome
	for column := range spec.columns {
		raw, ok := fields[column]
		if !ok {
			continue
		}
		s := string(raw)
		fieldChange := *change
		fieldChange.FieldName = &column
		fieldChange.NewValue = &s
		outcome, err := mergeFieldLWW(tx, spec, &fieldChange)
		if err != nil {
			return models.MergeOutcome{}, err
		}
		switch outcome.Kind {
		case models.OutcomeUpdated:
			applied++
		case models.OutcomeConflictDetected:
			conflicts++
			lastConflict = outcome
		}
	}

	if conflicts > 0 {
		return lastConflict, nil
	}
	if applied > 0 {
		return models.Updated(change.EntityID), nil
	}
	return models.NoOp("full-state payload carried no newer fields"), nil
}
