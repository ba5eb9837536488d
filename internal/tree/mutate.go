package tree

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"pagetree/internal/pagepath"
	"pagetree/internal/pagetype"
	"pagetree/internal/rbac"
	"pagetree/internal/store"
)

// NextRank returns the rank for a new child of parent. The floor passed to the
// counter is the highest rank already stored, so counters that were lost or
// never created catch up with existing data.
func (e *Engine) NextRank(ctx context.Context, parent store.Page) (int, error) {
	children, err := e.Children(ctx, parent)
	if err != nil {
		return 0, err
	}
	floor := 0
	for _, child := range children {
		if child.Rank > floor {
			floor = child.Rank
		}
	}
	rank, err := e.ranks.NextRank(ctx, parent.ID, floor)
	if err != nil {
		return 0, newError(ErrStore, "next rank", parent.Slug, err)
	}
	return rank, nil
}

type InsertInput struct {
	ParentSlug string            `json:"parentSlug"`
	Title      string            `json:"title"`
	Type       string            `json:"type"`
	Areas      map[string]string `json:"areas"`
}

func (e *Engine) Insert(ctx context.Context, in InsertInput, requester rbac.Requester) (store.Page, error) {
	const op = "insert"
	parentSlug := pagepath.Normalize(in.ParentSlug)
	parent, err := e.store.FindPageBySlug(ctx, parentSlug)
	if err != nil {
		return store.Page{}, storeError(op, parentSlug, err)
	}
	if !e.authz.Allow(ctx, requester, rbac.ActionAddPage, parent) {
		return store.Page{}, newError(ErrPermissionDenied, op, parent.Slug, nil)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return store.Page{}, newError(ErrValidation, op, parent.Slug, errors.New("title is required"))
	}
	segment := pagepath.Slugify(title)
	path, err := pagepath.ChildPath(hierarchyPath(parent), segment)
	if err != nil {
		return store.Page{}, newError(ErrValidation, op, parent.Slug, err)
	}
	slug, err := pagepath.ChildPath(parent.Slug, segment)
	if err != nil {
		return store.Page{}, newError(ErrValidation, op, parent.Slug, err)
	}

	typ := e.types.Resolve(in.Type)
	areas, err := typ.Sanitize(in.Areas)
	if err != nil {
		return store.Page{}, newError(ErrValidation, op, slug, err)
	}

	rank, err := e.NextRank(ctx, parent)
	if err != nil {
		return store.Page{}, err
	}

	created, err := e.store.InsertPage(ctx, store.Page{
		ID:    e.newID(),
		Slug:  slug,
		Path:  path,
		Level: parent.Level + 1,
		Rank:  rank,
		Type:  typ.Name,
		Title: title,
		Areas: areas,
	})
	if err != nil {
		return store.Page{}, storeError(op, slug, err)
	}
	return created, nil
}

type RenameInput struct {
	OriginalSlug string `json:"originalSlug"`
	Title        string `json:"title"`
	// Slug is the requested new address. Empty keeps the current slug.
	Slug  string            `json:"slug"`
	Type  string            `json:"type"`
	Areas map[string]string `json:"areas"`
}

type RenameResult struct {
	Page     store.Page     `json:"page"`
	Previous store.Page     `json:"-"`
	Redirect store.Redirect `json:"redirect"`
	// Cascaded lists descendants whose address was rewritten.
	Cascaded []store.Page `json:"cascaded"`
}

// Rename rewrites a page's title, type, content and address. When the address
// changes, every descendant selected by path prefix is rewritten too. A
// cascade failure is returned together with the partial result; writes that
// landed stay in place.
func (e *Engine) Rename(ctx context.Context, in RenameInput, requester rbac.Requester) (RenameResult, error) {
	const op = "rename"
	originalSlug := pagepath.Normalize(in.OriginalSlug)
	page, err := e.store.FindPageBySlug(ctx, originalSlug)
	if err != nil {
		return RenameResult{}, storeError(op, originalSlug, err)
	}
	if !e.authz.Allow(ctx, requester, rbac.ActionEdit, page) {
		return RenameResult{}, newError(ErrPermissionDenied, op, page.Slug, nil)
	}

	newSlug := page.Slug
	if strings.TrimSpace(in.Slug) != "" {
		newSlug = pagepath.Normalize(in.Slug)
	}
	if page.Slug == pagepath.Root && newSlug != pagepath.Root {
		return RenameResult{}, newError(ErrImmutableRoot, op, page.Slug, nil)
	}
	if page.Slug != pagepath.Root && newSlug == pagepath.Root {
		return RenameResult{}, newError(ErrValidation, op, page.Slug, errors.New("only the root page may use the root address"))
	}

	typ := e.types.Resolve(page.Type)
	if in.Type != "" {
		typ = e.types.Resolve(in.Type)
	}
	areas := page.Areas
	if in.Areas != nil {
		areas = in.Areas
	}
	areas, err = typ.Sanitize(areas)
	if err != nil {
		return RenameResult{}, newError(ErrValidation, op, page.Slug, err)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = page.Title
	}

	oldPath := hierarchyPath(page)
	newPath := oldPath
	if newSlug != page.Slug && oldPath != pagepath.Root {
		newPath, err = pagepath.ChildPath(pagepath.Parent(oldPath), pagepath.LastSegment(newSlug))
		if err != nil {
			return RenameResult{}, newError(ErrValidation, op, page.Slug, err)
		}
	}

	updated, err := e.store.UpdatePage(ctx, store.Page{
		ID:    page.ID,
		Slug:  newSlug,
		Path:  newPath,
		Level: pagepath.Level(newPath),
		Type:  typ.Name,
		Title: title,
		Areas: areas,
	})
	if err != nil {
		return RenameResult{}, storeError(op, page.Slug, err)
	}
	result := RenameResult{Page: updated, Previous: page, Cascaded: []store.Page{}}

	if err := e.redirects.UpsertRedirect(ctx, originalSlug, newSlug); err != nil {
		return result, newError(ErrStore, op, page.Slug, fmt.Errorf("upsert redirect: %w", err))
	}
	result.Redirect = store.Redirect{From: originalSlug, To: newSlug}

	if newSlug == page.Slug && newPath == oldPath {
		return result, nil
	}
	cascaded, err := e.cascade(ctx, page, originalSlug, newSlug, oldPath, newPath)
	result.Cascaded = cascaded
	if err != nil {
		return result, newError(ErrStore, op, page.Slug, err)
	}
	return result, nil
}

// Edit changes title, type and content without touching the address.
func (e *Engine) Edit(ctx context.Context, slug, title, pageType string, areas map[string]string, requester rbac.Requester) (store.Page, error) {
	result, err := e.Rename(ctx, RenameInput{OriginalSlug: slug, Title: title, Type: pageType, Areas: areas}, requester)
	if err != nil {
		return store.Page{}, err
	}
	return result.Page, nil
}

func (e *Engine) cascade(ctx context.Context, page store.Page, oldSlug, newSlug, oldPath, newPath string) ([]store.Page, error) {
	prefix := pagepath.DescendantPrefix(oldPath)
	descendants, err := e.store.FindPages(ctx, store.PageQuery{
		PathFrom:    prefix,
		PathTo:      pagepath.RangeUpperBound(prefix),
		LevelAbove:  page.Level,
		LevelAtMost: math.MaxInt32,
	})
	if err != nil {
		return []store.Page{}, &CascadeError{From: oldSlug, To: newSlug, Err: fmt.Errorf("find descendants: %w", err)}
	}

	var (
		mu      sync.Mutex
		applied = make([]store.Page, 0, len(descendants))
		failed  string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fanout)
	for _, d := range descendants {
		g.Go(func() error {
			path, _ := pagepath.ReplacePrefix(d.Path, oldPath, newPath)
			slug, _ := pagepath.ReplacePrefix(d.Slug, oldSlug, newSlug)
			if err := e.store.UpdatePageAddress(gctx, d.ID, slug, path); err != nil {
				mu.Lock()
				if failed == "" {
					failed = d.Slug
				}
				mu.Unlock()
				return fmt.Errorf("rewrite %s: %w", d.Slug, err)
			}
			d.Slug, d.Path = slug, path
			mu.Lock()
			applied = append(applied, d.Light())
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slugs := make([]string, len(applied))
		for i, p := range applied {
			slugs[i] = p.Slug
		}
		return applied, &CascadeError{From: oldSlug, To: newSlug, Applied: slugs, Failed: failed, Err: err}
	}
	return applied, nil
}

// Remove deletes a leaf page and returns its parent's slug.
func (e *Engine) Remove(ctx context.Context, slug string, requester rbac.Requester) (string, error) {
	const op = "remove"
	slug = pagepath.Normalize(slug)
	page, err := e.store.FindPageBySlug(ctx, slug)
	if err != nil {
		return "", storeError(op, slug, err)
	}

	ancestors, err := e.Ancestors(ctx, page)
	if err != nil {
		return "", err
	}
	subject := page
	parentSlug := pagepath.Parent(page.Slug)
	if len(ancestors) > 0 {
		subject = ancestors[len(ancestors)-1]
		parentSlug = subject.Slug
	}
	if !e.authz.Allow(ctx, requester, rbac.ActionAddPage, subject) {
		return "", newError(ErrPermissionDenied, op, page.Slug, nil)
	}
	if page.Slug == pagepath.Root || hierarchyPath(page) == pagepath.Root {
		return "", newError(ErrImmutableRoot, op, page.Slug, nil)
	}

	children, err := e.Children(ctx, page)
	if err != nil {
		return "", err
	}
	if len(children) > 0 {
		return "", newError(ErrHasChildren, op, page.Slug, fmt.Errorf("%d children", len(children)))
	}

	if err := e.store.DeletePage(ctx, page.ID); err != nil {
		return "", storeError(op, page.Slug, err)
	}
	return parentSlug, nil
}

// EnsureRoot creates the root page when the store has none.
func (e *Engine) EnsureRoot(ctx context.Context, title string) (store.Page, bool, error) {
	root, err := e.store.FindPageBySlug(ctx, pagepath.Root)
	if err == nil {
		return root, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Page{}, false, newError(ErrStore, "ensure root", pagepath.Root, err)
	}
	if strings.TrimSpace(title) == "" {
		title = "Home"
	}
	typ := e.types.Resolve(pagetype.HomeTypeName)
	created, err := e.store.InsertPage(ctx, store.Page{
		ID:    e.newID(),
		Slug:  pagepath.Root,
		Path:  pagepath.Root,
		Level: 0,
		Type:  typ.Name,
		Title: title,
		Areas: map[string]string{},
	})
	if errors.Is(err, store.ErrConflict) {
		// another process bootstrapped first
		root, err = e.store.FindPageBySlug(ctx, pagepath.Root)
		if err != nil {
			return store.Page{}, false, storeError("ensure root", pagepath.Root, err)
		}
		return root, false, nil
	}
	if err != nil {
		return store.Page{}, false, storeError("ensure root", pagepath.Root, err)
	}
	return created, true, nil
}
