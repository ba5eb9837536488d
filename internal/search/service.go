package search

import (
	"context"
	"log"
	"strings"

	"pagetree/internal/store"
)

// Service tries Meilisearch first and falls back to the store's title search.
type Service struct {
	meili    *Meili
	fallback Fallback
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Fallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return Response{Results: []Result{}, Query: q.Text}
	}
	if s.indexing() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to store: %v", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	pages, err := s.fallback.SearchPages(ctx, store.SearchQuery{Term: q.Text, Type: q.Type, Limit: limit + max(q.Offset, 0)})
	if err != nil {
		log.Printf("search: store search error: %v", err)
		return Response{Results: []Result{}, Query: q.Text}
	}
	results := make([]Result, 0, len(pages))
	for _, page := range pages {
		results = append(results, Result{
			ID:      page.ID,
			Slug:    page.Slug,
			Title:   page.Title,
			Type:    page.Type,
			Snippet: Excerpt(Markdown(page.Areas)),
		})
	}
	total := len(results)
	if q.Offset > 0 {
		results = results[min(q.Offset, len(results)):]
	}
	return Response{Results: results, Total: total, Query: q.Text}
}

// Healthy reports whether searches are served by the index.
func (s *Service) Healthy() bool {
	return s.indexing()
}

// IndexPages pushes pages to the index in the background.
func (s *Service) IndexPages(pages ...store.Page) {
	if !s.indexing() || len(pages) == 0 {
		return
	}
	records := make([]PageRecord, len(pages))
	for i, page := range pages {
		records[i] = Record(page)
	}
	go func() {
		if err := s.meili.IndexPages(records); err != nil {
			log.Printf("search: index %d pages: %v", len(records), err)
		}
	}()
}

// DeletePage removes a page from the index in the background.
func (s *Service) DeletePage(id string) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.DeletePage(id); err != nil {
			log.Printf("search: delete page %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes every page synchronously. It returns the number indexed.
func (s *Service) ReindexAll(ctx context.Context, pages []store.Page) (int, error) {
	if !s.indexing() {
		return 0, nil
	}
	const batch = 500
	indexed := 0
	for start := 0; start < len(pages); start += batch {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		end := min(start+batch, len(pages))
		records := make([]PageRecord, 0, end-start)
		for _, page := range pages[start:end] {
			records = append(records, Record(page))
		}
		if err := s.meili.IndexPages(records); err != nil {
			return indexed, err
		}
		indexed += len(records)
	}
	return indexed, nil
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func (s *Service) indexing() bool {
	return s.meili != nil && s.meili.Healthy()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
