// Package ids generates the time-ordered identifiers the catalog store
// relies on for stable created_at-ascending ordering within a batch, as
// required by the data model's identifier invariant.
package ids

import "github.com/google/uuid"

// New returns a UUIDv7 string: monotonically increasing in time, so
// ORDER BY created_at ASC agrees with ORDER BY id ASC within a batch.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the global random source is broken; fall back
		// to a random v4 rather than panicking the caller's batch insert.
		return uuid.NewString()
	}
	return id.String()
}
