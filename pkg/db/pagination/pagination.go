package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"strings"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250

	// MaxCursorOffset bounds decoded offsets so the next offset cannot overflow.
	MaxCursorOffset = math.MaxInt32
)

var ErrInvalidCursor = errors.New("invalid_cursor")

// Pagination is the forward connection window: first rows after the After cursor.
type Pagination struct {
	First int    `form:"first"`
	After string `form:"after"`
}

// Cursor is the opaque position of an edge. Offsets are zero based.
type Cursor struct {
	Offset int `json:"o"`
}

type PageInfo struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor,omitempty"`
}

type Edge[T any] struct {
	Cursor string `json:"cursor"`
	Node   T      `json:"node"`
}

// Connection is a page of results with its total size.
type Connection[T any] struct {
	TotalCount int64     `json:"total_count"`
	Edges      []Edge[T] `json:"edges"`
	PageInfo   PageInfo  `json:"page_info"`
}

func EncodeCursor(data Cursor) string {
	b, _ := json.Marshal(data)
	return base64.StdEncoding.EncodeToString(b)
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil || cursor.Offset < 0 || cursor.Offset >= MaxCursorOffset {
		return nil, ErrInvalidCursor
	}
	return &cursor, nil
}

// Window resolves the offset and limit for p. The limit is one more than the page
// size so the caller can tell whether another page exists.
func (p Pagination) Window() (offset, limit int, err error) {
	size := p.First
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if strings.TrimSpace(p.After) != "" {
		cursor, err := DecodeCursor(p.After)
		if err != nil {
			return 0, 0, err
		}
		offset = cursor.Offset + 1
	}
	return offset, size + 1, nil
}

// BuildConnection trims the look-ahead row fetched by Window and numbers the edges.
func BuildConnection[T any](items []T, offset, limit int, total int64) Connection[T] {
	size := limit - 1
	hasNext := len(items) > size
	if hasNext {
		items = items[:size]
	}

	conn := Connection[T]{
		TotalCount: total,
		Edges:      make([]Edge[T], 0, len(items)),
		PageInfo:   PageInfo{HasNextPage: hasNext},
	}
	for i, item := range items {
		conn.Edges = append(conn.Edges, Edge[T]{
			Cursor: EncodeCursor(Cursor{Offset: offset + i}),
			Node:   item,
		})
	}
	if n := len(conn.Edges); n > 0 {
		conn.PageInfo.EndCursor = conn.Edges[n-1].Cursor
	}
	return conn
}

// Nodes returns the nodes of c in edge order.
func (c Connection[T]) Nodes() []T {
	nodes := make([]T, 0, len(c.Edges))
	for _, edge := range c.Edges {
		nodes = append(nodes, edge.Node)
	}
	return nodes
}
