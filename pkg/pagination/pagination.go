// Package pagination implements newest-first keyset pages over (timestamp,
// id) pairs with opaque cursors.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

const cursorSep = "|"

var errCursorFormat = errors.New("cursor is not a page token")

// Params are the caller-supplied page inputs.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the key of the last row on a page. The next page holds rows
// strictly below it.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

// NormalizeLimit clamps limit to (0, MaxLimit], using DefaultLimit for
// non-positive values.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// LimitWithBuffer is the normalized limit plus one, so a fetch reveals
// whether another page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Encode renders the cursor as a URL-safe token.
func (c Cursor) Encode() string {
	raw := c.At.UTC().Format(time.RFC3339Nano) + cursorSep + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a token from Cursor.Encode. A blank token is the first
// page and yields nil.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCursorFormat, err)
	}
	at, id, ok := strings.Cut(string(raw), cursorSep)
	if !ok {
		return nil, errCursorFormat
	}
	c := &Cursor{}
	if c.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", errCursorFormat, err)
	}
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: id: %v", errCursorFormat, err)
	}
	return c, nil
}

// Keyset is a gorm scope ordering by column then id, newest first, resuming
// below after when it is set. column must be a trusted identifier.
func Keyset(column string, after *Cursor) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Order(column + " DESC").Order("id DESC")
		if after == nil {
			return db
		}
		return db.Where(column+" < ? OR ("+column+" = ? AND id < ?)", after.At, after.At, after.ID)
	}
}

// Trim cuts rows fetched with LimitWithBuffer to the page size and returns
// the next page's token, or "" on the last page.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, key(rows[len(rows)-1]).Encode()
}
