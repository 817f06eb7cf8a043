package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"progression-engine/pkg/db/option"

	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 250
)

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=20"`
}

// Normalize clamps Limit into [1, MaxLimit].
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

type Cursor struct {
	CreatedAt string `json:"created_at,omitempty"`
	ID        string `json:"id,omitempty"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// NewestFirst returns the keyset options for a newest-first page after cursor.
// One extra row is fetched so BuildCursorPageInfo can tell whether more exist.
func NewestFirst(p Pagination) ([]option.QueryOption, error) {
	p = p.Normalize()
	opts := []option.QueryOption{
		func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC").Order("id DESC") },
		option.WithLimit(p.Limit + 1),
	}

	if p.Cursor == "" {
		return opts, nil
	}

	c, err := DecodeCursor(p.Cursor)
	if err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
	if err != nil {
		return nil, err
	}

	opts = append(opts, func(db *gorm.DB) *gorm.DB {
		return db.Where("created_at < ? OR (created_at = ? AND id < ?)", at, at, c.ID)
	})
	return opts, nil
}

// BuildCursorPageInfo trims data to limit and reports the cursor of the last kept row.
func BuildCursorPageInfo[T any](data []*T, limit int, extractCursor func(*T) Cursor) ([]*T, *PageInfo) {
	if len(data) == 0 {
		return data, &PageInfo{HasMore: false}
	}

	hasMore := false
	if len(data) > limit {
		hasMore = true
		data = data[:limit]
	}

	info := &PageInfo{HasMore: hasMore}
	if hasMore {
		info.NextCursor, _ = EncodeCursor(extractCursor(data[len(data)-1]))
	}

	return data, info
}
