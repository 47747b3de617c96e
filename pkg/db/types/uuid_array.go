package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UUIDArray is a uuid[] column. The array literal is encoded by lib/pq, so
// SQLite can keep the same text in a plain column.
type UUIDArray []uuid.UUID

func (a UUIDArray) Contains(id uuid.UUID) bool { return slices.Contains(a, id) }

// Set indexes the ids for repeated lookups.
func (a UUIDArray) Set() map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	return set
}

func (a *UUIDArray) Scan(src any) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("uuid array: %w", err)
	}
	ids := make(UUIDArray, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("uuid array: element %d: %w", i, err)
		}
		ids[i] = id
	}
	*a = ids
	return nil
}

func (a UUIDArray) Value() (driver.Value, error) {
	raw := make(pq.StringArray, len(a))
	for i, id := range a {
		raw[i] = id.String()
	}
	return raw.Value()
}
