// Package id provides identifier generation for field settings.
//
// Persisted identifiers are UUIDv7 strings issued by the store. Identifiers
// created on the client side before the first save carry TempPrefix so the
// save path can find and exchange them.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempPrefix marks identifiers that have not been persisted yet.
const TempPrefix = "temp_"

const tempGroupPrefix = TempPrefix + "group_"

// ID is a type alias for UUID, used for persisted entities.
type ID = uuid.UUID

// New generates a new UUIDv7 (time-ordered UUID).
func New() ID {
	v7, err := uuid.NewV7()
	if err != nil {
		// Fallback to V4 if V7 fails (should never happen)
		return uuid.New()
	}
	return v7
}

// NewString returns a new persisted identifier in its string form.
func NewString() string {
	return New().String()
}

// NewTemp returns a temporary field identifier.
func NewTemp() string {
	return TempPrefix + uuid.NewString()
}

// NewTempGroup returns a temporary group identifier with a time and random suffix.
func NewTempGroup() string {
	return fmt.Sprintf("%s%d_%s", tempGroupPrefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// IsTemp reports whether s is a not-yet-persisted identifier.
func IsTemp(s string) bool {
	return strings.HasPrefix(s, TempPrefix)
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
