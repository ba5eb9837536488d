package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflicts with an existing record")
)

// Page is one node of the tree. Slug is the public address; Path is the
// materialized hierarchy used for ancestor and descendant queries.
type Page struct {
	ID        string            `json:"id"`
	Slug      string            `json:"slug"`
	Path      string            `json:"path"`
	Level     int               `json:"level"`
	Rank      int               `json:"rank"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Areas     map[string]string `json:"areas,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Light returns a copy without the areas payload, the shape returned by
// ancestor and descendant queries.
func (p Page) Light() Page {
	p.Areas = nil
	return p
}

type Redirect struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PageQuery selects pages whose path lies in [PathFrom, PathTo) and whose
// level lies in (LevelAbove, LevelAtMost]. Results are ordered by level, then rank.
type PageQuery struct {
	PathFrom    string
	PathTo      string
	LevelAbove  int
	LevelAtMost int
}

// SearchQuery matches a term against titles (case-insensitive) and slugs,
// optionally narrowed to one page type.
type SearchQuery struct {
	Term  string
	Type  string
	Limit int
}

func (q PageQuery) matches(p Page) bool {
	return p.Path >= q.PathFrom && p.Path < q.PathTo && p.Level > q.LevelAbove && p.Level <= q.LevelAtMost
}

func copyAreas(areas map[string]string) map[string]string {
	if areas == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(areas))
	for k, v := range areas {
		out[k] = v
	}
	return out
}
