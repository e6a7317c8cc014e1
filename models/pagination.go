package models

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// PageRequest is page/limit pagination over a stable id ordering. Limit 0 means unpaged.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize clamps page to >= 1 and limit to [0, MaxPageLimit].
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 0 {
		p.Limit = 0
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p PageRequest) Offset() int {
	if p.Limit == 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Paginate slices an already ordered list.
func Paginate[T any](all []T, p PageRequest) []T {
	p = p.Normalize()
	if p.Limit == 0 {
		return all
	}
	start := p.Offset()
	if start >= len(all) {
		return []T{}
	}
	end := min(start+p.Limit, len(all))
	return all[start:end]
}

// Encode renders the cursor as an opaque, URL-safe token.
func (c IssueCursor) Encode() string {
	cursor := fmt.Sprintf("%s|%d", c.At.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(cursor))
}

func DecodeIssueCursor(cursor string) (*IssueCursor, error) {
	if cursor == "" {
		return nil, nil
	}
	invalid := NewValidationError("invalid cursor", map[string]string{"cursor": "cursor"})

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, invalid
	}
	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, invalid
	}
	at, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, invalid
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, invalid
	}
	return &IssueCursor{At: at, ID: id}, nil
}
