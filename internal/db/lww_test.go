package db

import (
	"testing"

	"github.com/anyamene/pamojastore/internal/models"
)

func TestRemoteWins(t *testing.T) {
	devA := models.UUID("aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa")
	devB := models.UUID("bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb")
	ts := func(v int64) *int64 { return &v }

	tests := []struct {
		name         string
		localAt      *int64
		localDevice  *models.UUID
		remoteAt     int64
		remoteDevice models.UUID
		want         bool
	}{
		{"no local shadow", nil, nil, 100, devA, true},
		{"remote newer", ts(100), &devA, 200, devB, true},
		{"remote older", ts(200), &devA, 100, devB, false},
		{"tie, remote device greater", ts(100), &devA, 100, devB, true},
		{"tie, local device greater", ts(100), &devB, 100, devA, false},
		{"tie, no local device", ts(100), nil, 100, devA, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := remoteWins(tt.localAt, tt.localDevice, tt.remoteAt, tt.remoteDevice)
			if got != tt.want {
				t.Errorf("remoteWins = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeScalar(t *testing.T) {
	str := func(s string) *string { return &s }

	tests := []struct {
		name string
		raw  *string
		want interface{}
	}{
		{"nil is NULL", nil, nil},
		{"json string", str(`"Nairobi"`), "Nairobi"},
		{"json number", str(`750.5`), 750.5},
		{"json bool", str(`true`), true},
		{"json null", str(`null`), nil},
		{"bare text falls through", str(`not json at all`), "not json at all"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeScalar(tt.raw)
			if err != nil {
				t.Fatalf("decodeScalar failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("decodeScalar = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}

	if _, err := decodeScalar(str(`{"nested": 1}`)); err == nil {
		t.Error("expected error for non-scalar value")
	}
}

func TestTableSpecAllows(t *testing.T) {
	if !fundingSpec.allows("amount") {
		t.Error("amount should be mergeable on project_funding")
	}
	if fundingSpec.allows("id") {
		t.Error("id must never be mergeable")
	}
	if fundingSpec.allows("amount; DROP TABLE project_funding") {
		t.Error("allowlist must reject unknown column strings")
	}
}
