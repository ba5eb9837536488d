package tree

import (
	"context"
	"errors"
	"math"
	"sort"

	"pagetree/internal/pagepath"
	"pagetree/internal/store"
)

// Match is the outcome of best-match addressing. Page is set only on an exact
// slug match; Best is the page with the longest slug that prefixes the
// requested address at a '/' boundary.
type Match struct {
	Requested string
	Page      *store.Page
	Best      *store.Page
	Remainder string
}

// Node is a page with its nested children.
type Node struct {
	store.Page
	Children []*Node `json:"children"`
}

// Page returns a page with its areas.
func (e *Engine) Page(ctx context.Context, slug string) (store.Page, error) {
	slug = pagepath.Normalize(slug)
	page, err := e.store.FindPageBySlug(ctx, slug)
	if err != nil {
		return store.Page{}, storeError("get page", slug, err)
	}
	return page, nil
}

func (e *Engine) ResolveBestMatch(ctx context.Context, requested string) (Match, error) {
	requested = pagepath.Normalize(requested)
	match := Match{Requested: requested}

	page, err := e.store.FindPageBySlug(ctx, requested)
	switch {
	case err == nil:
		match.Page = &page
		match.Best = &page
		return match, nil
	case !errors.Is(err, store.ErrNotFound):
		return match, newError(ErrStore, "resolve", requested, err)
	}

	candidates := pagepath.PrefixCandidates(requested)
	if len(candidates) > 0 && candidates[0] == requested {
		candidates = candidates[1:]
	}
	if len(candidates) == 0 {
		return match, nil
	}
	found, err := e.store.FindPagesBySlugs(ctx, candidates)
	if err != nil {
		return match, newError(ErrStore, "resolve", requested, err)
	}
	for i := range found {
		if match.Best == nil || len(found[i].Slug) > len(match.Best.Slug) {
			best := found[i]
			match.Best = &best
		}
	}
	if match.Best != nil {
		match.Remainder = pagepath.Remainder(match.Best.Slug, requested)
	}
	return match, nil
}

// Ancestors returns the chain from the root down to the page's parent,
// without areas.
func (e *Engine) Ancestors(ctx context.Context, page store.Page) ([]store.Page, error) {
	paths, err := pagepath.AncestorPaths(hierarchyPath(page))
	if err != nil {
		return nil, newError(ErrValidation, "ancestors", page.Slug, err)
	}
	if len(paths) == 0 {
		return []store.Page{}, nil
	}
	found, err := e.store.FindPagesByPaths(ctx, paths)
	if err != nil {
		return nil, newError(ErrStore, "ancestors", page.Slug, err)
	}
	out := make([]store.Page, len(found))
	for i, p := range found {
		out[i] = p.Light()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

// Descendants returns the subtree below page down to depth levels, nested by
// parent path. A depth below 1 is treated as 1.
func (e *Engine) Descendants(ctx context.Context, page store.Page, depth int) ([]*Node, error) {
	found, err := e.descendantPages(ctx, page, depth)
	if err != nil {
		return nil, newError(ErrStore, "descendants", page.Slug, err)
	}
	return Nest(found), nil
}

// Children returns the depth-1 descendants in rank order.
func (e *Engine) Children(ctx context.Context, page store.Page) ([]store.Page, error) {
	found, err := e.descendantPages(ctx, page, 1)
	if err != nil {
		return nil, newError(ErrStore, "children", page.Slug, err)
	}
	return found, nil
}

func (e *Engine) descendantPages(ctx context.Context, page store.Page, depth int) ([]store.Page, error) {
	if depth < 1 {
		depth = 1
	}
	maxLevel := math.MaxInt32
	if page.Level < math.MaxInt32-depth {
		maxLevel = page.Level + depth
	}
	prefix := pagepath.DescendantPrefix(hierarchyPath(page))
	found, err := e.store.FindPages(ctx, store.PageQuery{
		PathFrom:    prefix,
		PathTo:      pagepath.RangeUpperBound(prefix),
		LevelAbove:  page.Level,
		LevelAtMost: maxLevel,
	})
	if err != nil {
		return nil, err
	}
	for i := range found {
		found[i] = found[i].Light()
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Level != found[j].Level {
			return found[i].Level < found[j].Level
		}
		return found[i].Rank < found[j].Rank
	})
	return found, nil
}

// Nest builds a forest from pages sorted by level in a single pass. A page
// whose parent path is not in the set becomes a top-level node.
func Nest(pages []store.Page) []*Node {
	roots := make([]*Node, 0)
	byPath := make(map[string]*Node, len(pages))
	for _, p := range pages {
		node := &Node{Page: p, Children: []*Node{}}
		if parent, ok := byPath[pagepath.Parent(p.Path)]; ok && p.Path != pagepath.Root {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
		byPath[p.Path] = node
	}
	return roots
}

// hierarchyPath is the page's path, or its slug when the path is absent.
func hierarchyPath(page store.Page) string {
	if page.Path != "" {
		return page.Path
	}
	return pagepath.Normalize(page.Slug)
}
