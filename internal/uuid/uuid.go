// Package uuid provides UUID v4 generation and validation utilities.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// IsValid checks whether s is a valid UUID v4 string.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// NewFromString parses s as a UUID, returning an error when it is not a
// valid UUID v4.
func NewFromString(s string) (uuid.UUID, error) {
	if !IsValid(s) {
		return uuid.UUID{}, fmt.Errorf("invalid UUID v4: %q", s)
	}
	return uuid.Parse(s)
}
