package dbtypes

import (
	"database/sql/driver"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UUIDArray maps a postgres uuid[] column. On sqlite the same array literal
// is stored as text, so both drivers round-trip through pq's array codec.
type UUIDArray []uuid.UUID

func (a *UUIDArray) Scan(src any) error {
	ids := []uuid.UUID{}
	if err := (pq.GenericArray{A: &ids}).Scan(src); err != nil {
		return err
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	*a = ids
	return nil
}

func (a UUIDArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	return pq.GenericArray{A: []uuid.UUID(a)}.Value()
}

// Contains reports whether id is an element of a.
func (a UUIDArray) Contains(id uuid.UUID) bool {
	for _, candidate := range a {
		if candidate == id {
			return true
		}
	}
	return false
}
