// Package tree implements tree semantics over a flat page store: best-match
// addressing, ancestor and descendant queries, sibling ranks, and the
// insert, rename and remove mutations that keep slugs and paths consistent.
//
// The engine holds no locks. Every store call is a suspension point and
// concurrent requests interleave freely; the store's per-record atomicity and
// uniqueness constraints are the only guards.
package tree

import (
	"context"
	"errors"

	"pagetree/internal/pagetype"
	"pagetree/internal/rbac"
	"pagetree/internal/store"
	"pagetree/internal/util"
)

// Store is the flat document store the engine reads and writes.
type Store interface {
	FindPageBySlug(ctx context.Context, slug string) (store.Page, error)
	FindPagesBySlugs(ctx context.Context, slugs []string) ([]store.Page, error)
	FindPagesByPaths(ctx context.Context, paths []string) ([]store.Page, error)
	FindPages(ctx context.Context, q store.PageQuery) ([]store.Page, error)
	InsertPage(ctx context.Context, page store.Page) (store.Page, error)
	UpdatePage(ctx context.Context, page store.Page) (store.Page, error)
	UpdatePageAddress(ctx context.Context, id, slug, path string) error
	DeletePage(ctx context.Context, id string) error
}

type Redirects interface {
	LookupRedirect(ctx context.Context, from string) (store.Redirect, error)
	UpsertRedirect(ctx context.Context, from, to string) error
}

// RankCounter atomically raises a parent's counter to floor and increments it.
type RankCounter interface {
	NextRank(ctx context.Context, parentID string, floor int) (int, error)
}

type Authorizer interface {
	Allow(ctx context.Context, requester rbac.Requester, action rbac.Action, page store.Page) bool
}

type AuthorizerFunc func(ctx context.Context, requester rbac.Requester, action rbac.Action, page store.Page) bool

func (f AuthorizerFunc) Allow(ctx context.Context, requester rbac.Requester, action rbac.Action, page store.Page) bool {
	return f(ctx, requester, action, page)
}

const defaultCascadeConcurrency = 8

type Config struct {
	Store      Store
	Redirects  Redirects
	Ranks      RankCounter
	Authorizer Authorizer
	Types      *pagetype.Registry
	// CascadeConcurrency bounds the parallel descendant writes of a rename.
	CascadeConcurrency int
	NewID              func() string
}

type Engine struct {
	store     Store
	redirects Redirects
	ranks     RankCounter
	authz     Authorizer
	types     *pagetype.Registry
	fanout    int
	newID     func() string
}

func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("tree: store is required")
	}
	if cfg.Redirects == nil {
		return nil, errors.New("tree: redirect store is required")
	}
	if cfg.Ranks == nil {
		return nil, errors.New("tree: rank counter is required")
	}
	if cfg.Authorizer == nil {
		return nil, errors.New("tree: authorizer is required")
	}
	if cfg.Types == nil {
		cfg.Types = pagetype.Builtin()
	}
	if cfg.CascadeConcurrency <= 0 {
		cfg.CascadeConcurrency = defaultCascadeConcurrency
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return util.NewID("pg") }
	}
	return &Engine{
		store:     cfg.Store,
		redirects: cfg.Redirects,
		ranks:     cfg.Ranks,
		authz:     cfg.Authorizer,
		types:     cfg.Types,
		fanout:    cfg.CascadeConcurrency,
		newID:     cfg.NewID,
	}, nil
}

func (e *Engine) Types() *pagetype.Registry {
	return e.types
}

func (e *Engine) Allow(ctx context.Context, requester rbac.Requester, action rbac.Action, page store.Page) bool {
	return e.authz.Allow(ctx, requester, action, page)
}

func (e *Engine) LookupRedirect(ctx context.Context, from string) (store.Redirect, bool, error) {
	item, err := e.redirects.LookupRedirect(ctx, from)
	if errors.Is(err, store.ErrNotFound) {
		return store.Redirect{}, false, nil
	}
	if err != nil {
		return store.Redirect{}, false, newError(ErrStore, "lookup redirect", from, err)
	}
	return item, true, nil
}

// storeError classifies a store failure into the engine's taxonomy.
func storeError(op, slug string, err error) *Error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newError(ErrNotFound, op, slug, err)
	case errors.Is(err, store.ErrConflict):
		return newError(ErrConflict, op, slug, err)
	default:
		return newError(ErrStore, op, slug, err)
	}
}
