// Package pagination implements the opaque cursor format shared by every
// list endpoint on the web API surface.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultLimit and MaxLimit bound every list endpoint's page size.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor identifies the last row seen by a previous page: the pair
// (id, created_at) the spec mandates, opaque to the client.
type Cursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Encode renders a cursor as the base64 token returned to clients.
func Encode(c Cursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a client-supplied cursor token. An empty token decodes to
// the zero Cursor, meaning "start from the beginning."
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor: %w", err)
	}
	return c, nil
}

// ClampLimit normalizes a client-supplied limit to (0, MaxLimit], defaulting
// to DefaultLimit when unset or non-positive.
func ClampLimit(requested int) int32 {
	if requested <= 0 {
		return DefaultLimit
	}
	if requested > MaxLimit {
		return MaxLimit
	}
	return int32(requested)
}
