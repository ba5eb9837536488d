package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps pages in process. It enforces the same uniqueness rules as
// the database backends and is used for tests and local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	pages     map[string]Page
	redirects map[string]Redirect
	counters  map[string]int
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pages:     map[string]Page{},
		redirects: map[string]Redirect{},
		counters:  map[string]int{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) FindPageBySlug(_ context.Context, slug string) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, page := range s.pages {
		if page.Slug == slug {
			page.Areas = copyAreas(page.Areas)
			return page, nil
		}
	}
	return Page{}, ErrNotFound
}

func (s *MemoryStore) FindPagesBySlugs(_ context.Context, slugs []string) ([]Page, error) {
	wanted := toSet(slugs)
	return s.filter(func(p Page) bool {
		_, ok := wanted[p.Slug]
		return ok
	}, false), nil
}

func (s *MemoryStore) FindPagesByPaths(_ context.Context, paths []string) ([]Page, error) {
	wanted := toSet(paths)
	return s.filter(func(p Page) bool {
		_, ok := wanted[p.Path]
		return ok && p.Path != ""
	}, false), nil
}

func (s *MemoryStore) FindPages(_ context.Context, q PageQuery) ([]Page, error) {
	return s.filter(func(p Page) bool {
		return p.Path != "" && q.matches(p)
	}, false), nil
}

func (s *MemoryStore) ListPages(context.Context) ([]Page, error) {
	return s.filter(func(Page) bool { return true }, true), nil
}

func (s *MemoryStore) SearchPages(_ context.Context, q SearchQuery) ([]Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(strings.TrimSpace(q.Term))
	out := s.filter(func(p Page) bool {
		if q.Type != "" && p.Type != q.Type {
			return false
		}
		return strings.Contains(strings.ToLower(p.Title), needle) || strings.Contains(p.Slug, needle)
	}, true)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountPages(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages), nil
}

func (s *MemoryStore) InsertPage(_ context.Context, page Page) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pages[page.ID]; exists {
		return Page{}, fmt.Errorf("insert page %s: %w", page.Slug, ErrConflict)
	}
	if s.addressTaken(page.ID, page.Slug, page.Path) {
		return Page{}, fmt.Errorf("insert page %s: %w", page.Slug, ErrConflict)
	}
	now := s.now()
	page.CreatedAt, page.UpdatedAt = now, now
	page.Areas = copyAreas(page.Areas)
	s.pages[page.ID] = page
	page.Areas = copyAreas(page.Areas)
	return page, nil
}

func (s *MemoryStore) UpdatePage(_ context.Context, page Page) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.pages[page.ID]
	if !ok {
		return Page{}, fmt.Errorf("update page: %w", ErrNotFound)
	}
	if s.addressTaken(page.ID, page.Slug, page.Path) {
		return Page{}, fmt.Errorf("update page %s: %w", page.Slug, ErrConflict)
	}
	current.Slug = page.Slug
	current.Path = page.Path
	current.Level = page.Level
	current.Type = page.Type
	current.Title = page.Title
	current.Areas = copyAreas(page.Areas)
	current.UpdatedAt = s.now()
	s.pages[page.ID] = current
	current.Areas = copyAreas(current.Areas)
	return current, nil
}

func (s *MemoryStore) UpdatePageAddress(_ context.Context, id, slug, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.pages[id]
	if !ok {
		return fmt.Errorf("update page address: %w", ErrNotFound)
	}
	if s.addressTaken(id, slug, path) {
		return fmt.Errorf("update page address %s: %w", slug, ErrConflict)
	}
	current.Slug = slug
	current.Path = path
	current.UpdatedAt = s.now()
	s.pages[id] = current
	return nil
}

func (s *MemoryStore) DeletePage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[id]; !ok {
		return fmt.Errorf("delete page: %w", ErrNotFound)
	}
	delete(s.pages, id)
	return nil
}

func (s *MemoryStore) LookupRedirect(_ context.Context, from string) (Redirect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.redirects[from]
	if !ok {
		return Redirect{}, ErrNotFound
	}
	return item, nil
}

func (s *MemoryStore) UpsertRedirect(_ context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects[from] = Redirect{From: from, To: to, UpdatedAt: s.now()}
	return nil
}

func (s *MemoryStore) NextRank(_ context.Context, parentID string, floor int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.counters[parentID]
	if current < floor {
		current = floor
	}
	current++
	s.counters[parentID] = current
	return current, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}

// addressTaken must be called with the lock held.
func (s *MemoryStore) addressTaken(id, slug, path string) bool {
	for otherID, other := range s.pages {
		if otherID == id {
			continue
		}
		if other.Slug == slug {
			return true
		}
		if path != "" && other.Path == path {
			return true
		}
	}
	return false
}

func (s *MemoryStore) filter(keep func(Page) bool, withAreas bool) []Page {
	s.mu.RLock()
	out := make([]Page, 0)
	for _, page := range s.pages {
		if !keep(page) {
			continue
		}
		if withAreas {
			page.Areas = copyAreas(page.Areas)
		} else {
			page.Areas = nil
		}
		out = append(out, page)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
