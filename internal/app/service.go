package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"pagetree/internal/auth"
	"pagetree/internal/config"
	"pagetree/internal/metrics"
	"pagetree/internal/pagepath"
	"pagetree/internal/pagetype"
	"pagetree/internal/rbac"
	"pagetree/internal/render"
	"pagetree/internal/resolve"
	"pagetree/internal/revision"
	"pagetree/internal/search"
	"pagetree/internal/store"
	"pagetree/internal/tree"
)

const (
	maxTreeDepth   = 16
	defaultHistory = 50
)

// Deps are the collaborators a Service is assembled from. Only Store is
// required.
type Deps struct {
	Store store.Pages
	// Ranks defaults to the store's own counter.
	Ranks      tree.RankCounter
	Authorizer tree.Authorizer
	Types      *pagetype.Registry
	Renderer   render.Renderer
	Search     *search.Service
	Revisions  *revision.Archive
	Metrics    *metrics.Metrics
	Loaders    []resolve.Loader
	NotFound   resolve.NotFoundHandler
}

type Service struct {
	config    config.Config
	pages     store.Pages
	engine    *tree.Engine
	resolver  *resolve.Resolver
	renderer  render.Renderer
	search    *search.Service
	revisions *revision.Archive
	metrics   *metrics.Metrics
	counter   pinger
	secret    []byte
}

type pinger interface {
	Ping(ctx context.Context) error
}

func New(cfg config.Config, deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("app: store is required")
	}
	var counter pinger
	if deps.Ranks == nil {
		deps.Ranks = deps.Store
	} else if p, ok := deps.Ranks.(pinger); ok {
		counter = p
	}
	if deps.Authorizer == nil {
		deps.Authorizer = rbac.Policy{PublicRead: cfg.PublicRead}
	}
	if deps.Renderer == nil {
		deps.Renderer = render.JSON{}
	}
	if deps.Search == nil {
		deps.Search = search.NewService(nil, deps.Store)
	}

	engine, err := tree.New(tree.Config{
		Store:              deps.Store,
		Redirects:          deps.Store,
		Ranks:              deps.Ranks,
		Authorizer:         deps.Authorizer,
		Types:              deps.Types,
		CascadeConcurrency: cfg.CascadeConcurrency,
	})
	if err != nil {
		return nil, err
	}
	resolver := resolve.New(resolve.Config{
		Tree:          engine,
		Loaders:       deps.Loaders,
		NotFound:      deps.NotFound,
		ChildrenDepth: cfg.ChildrenDepth,
	})

	return &Service{
		config:    cfg,
		pages:     deps.Store,
		engine:    engine,
		resolver:  resolver,
		renderer:  deps.Renderer,
		search:    deps.Search,
		revisions: deps.Revisions,
		metrics:   deps.Metrics,
		counter:   counter,
		secret:    []byte(cfg.TokenSecret),
	}, nil
}

func (s *Service) Engine() *tree.Engine {
	return s.engine
}

// Bootstrap creates the root page of an empty tree.
func (s *Service) Bootstrap(ctx context.Context) error {
	root, created, err := s.engine.EnsureRoot(ctx, "Home")
	if err != nil {
		return fmt.Errorf("ensure root page: %w", err)
	}
	if created {
		log.Printf("bootstrap: created root page %s", root.ID)
		s.recordRevision(root, "system", "Create root page")
		s.search.IndexPages(root)
		return nil
	}
	n, err := s.CountPages(ctx)
	if err != nil {
		return err
	}
	log.Printf("bootstrap: tree has %d pages", n)
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.pages.Ping(ctx)
}

// PingCounter checks a rank counter that lives outside the store. It is nil
// when ranks come from the store itself.
func (s *Service) PingCounter(ctx context.Context) (bool, error) {
	if s.counter == nil {
		return false, nil
	}
	return true, s.counter.Ping(ctx)
}

func (s *Service) CountPages(ctx context.Context) (int, error) {
	n, err := s.pages.CountPages(ctx)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// Requester identifies the caller from an Authorization header value. A
// missing header is an anonymous guest.
func (s *Service) Requester(header string) (rbac.Requester, error) {
	claims, err := auth.ParseBearer(s.secret, header)
	if errors.Is(err, auth.ErrMissingToken) {
		return rbac.Guest(), nil
	}
	if err != nil {
		return rbac.Requester{}, err
	}
	return claims.Requester(), nil
}

func (s *Service) IssueToken(userID, name, role string) (string, auth.Claims, error) {
	return auth.Issue(s.secret, userID, name, role, s.config.AccessTTL)
}

func (s *Service) Resolve(ctx context.Context, slug string, requester rbac.Requester) *resolve.Context {
	c := s.resolver.Resolve(ctx, slug, requester)
	s.metrics.ObserveResolve(string(c.Outcome))
	if c.Err != nil {
		log.Printf("resolve %s: %v", c.Requested, c.Err)
	}
	return c
}

func (s *Service) Renderer() render.Renderer {
	return s.renderer
}

func (s *Service) Page(ctx context.Context, slug string, requester rbac.Requester) (store.Page, error) {
	page, err := s.engine.Page(ctx, slug)
	if err != nil {
		return store.Page{}, err
	}
	if !s.engine.Allow(ctx, requester, rbac.ActionViewPage, page) {
		return store.Page{}, &tree.Error{Kind: tree.ErrPermissionDenied, Op: "get page", Slug: page.Slug}
	}
	return page, nil
}

// Tree returns the page at slug with its descendants nested depth levels deep.
func (s *Service) Tree(ctx context.Context, slug string, depth int, requester rbac.Requester) (*tree.Node, error) {
	page, err := s.Page(ctx, slug, requester)
	if err != nil {
		return nil, err
	}
	depth = min(max(depth, 1), maxTreeDepth)
	children, err := s.engine.Descendants(ctx, page, depth)
	if err != nil {
		return nil, err
	}
	return &tree.Node{Page: page.Light(), Children: children}, nil
}

func (s *Service) InsertPage(ctx context.Context, in tree.InsertInput, requester rbac.Requester) (store.Page, error) {
	page, err := s.engine.Insert(ctx, in, requester)
	s.metrics.ObserveMutation("insert", errorKind(err))
	if err != nil {
		return store.Page{}, err
	}
	s.recordRevision(page, requester.Name, fmt.Sprintf("Insert %s", page.Slug))
	s.search.IndexPages(page)
	return page, nil
}

// EditPage applies a rename or in-place edit. When the descendant cascade
// fails part way, the partial result is returned alongside the error and the
// pages that did move are still archived and reindexed.
func (s *Service) EditPage(ctx context.Context, in tree.RenameInput, requester rbac.Requester) (tree.RenameResult, error) {
	result, err := s.engine.Rename(ctx, in, requester)
	s.metrics.ObserveMutation("rename", errorKind(err))
	if result.Page.ID == "" {
		return result, err
	}

	message := fmt.Sprintf("Edit %s", result.Page.Slug)
	if result.Previous.Slug != result.Page.Slug {
		message = fmt.Sprintf("Rename %s to %s", result.Previous.Slug, result.Page.Slug)
		s.metrics.ObserveCascade(len(result.Cascaded))
	}
	s.recordRevision(result.Page, requester.Name, message)
	touched := []store.Page{result.Page}
	for _, moved := range result.Cascaded {
		// cascaded pages come back without areas
		full, findErr := s.pages.FindPageBySlug(ctx, moved.Slug)
		if findErr != nil {
			log.Printf("rename: reload %s: %v", moved.Slug, findErr)
			continue
		}
		s.recordRevision(full, requester.Name, fmt.Sprintf("Move to %s (%s)", full.Slug, message))
		touched = append(touched, full)
	}
	s.search.IndexPages(touched...)
	return result, err
}

// RemovePage deletes a leaf page and returns its parent's slug.
func (s *Service) RemovePage(ctx context.Context, slug string, requester rbac.Requester) (string, error) {
	page, lookupErr := s.engine.Page(ctx, slug)
	parent, err := s.engine.Remove(ctx, slug, requester)
	s.metrics.ObserveMutation("remove", errorKind(err))
	if err != nil {
		return "", err
	}
	if lookupErr == nil {
		s.search.DeletePage(page.ID)
		if s.revisions != nil {
			if _, err := s.revisions.RecordRemoval(page, requester.Name); err != nil {
				log.Printf("revision: record removal of %s: %v", page.ID, err)
			}
		}
	}
	return parent, nil
}

func (s *Service) History(ctx context.Context, slug string, limit int, requester rbac.Requester) ([]revision.Commit, error) {
	if s.revisions == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_DISABLED", "Revision history is not configured", nil)
	}
	page, err := s.Page(ctx, slug, requester)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistory
	}
	commits, err := s.revisions.History(page.ID, limit)
	if errors.Is(err, revision.ErrNoHistory) {
		return []revision.Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return commits, nil
}

// Revision returns the page at slug as it was committed at hash.
func (s *Service) Revision(ctx context.Context, slug, hash string, requester rbac.Requester) (revision.Snapshot, error) {
	if s.revisions == nil {
		return revision.Snapshot{}, domainError(http.StatusServiceUnavailable, "HISTORY_DISABLED", "Revision history is not configured", nil)
	}
	page, err := s.Page(ctx, slug, requester)
	if err != nil {
		return revision.Snapshot{}, err
	}
	snap, err := s.revisions.Snapshot(page.ID, hash)
	if errors.Is(err, revision.ErrNoHistory) || errors.Is(err, revision.ErrUnknownRevision) {
		return revision.Snapshot{}, domainError(http.StatusNotFound, "REVISION_NOT_FOUND", "No such revision", map[string]any{"hash": hash})
	}
	if err != nil {
		return revision.Snapshot{}, fmt.Errorf("read revision: %w", err)
	}
	return snap, nil
}

// Search runs a query and drops hits the requester may not view.
func (s *Service) Search(ctx context.Context, q search.Query, requester rbac.Requester) search.Response {
	resp := s.search.Search(ctx, q)
	visible := make([]search.Result, 0, len(resp.Results))
	for _, result := range resp.Results {
		page := store.Page{ID: result.ID, Slug: result.Slug, Path: result.Slug, Type: result.Type, Title: result.Title}
		if s.engine.Allow(ctx, requester, rbac.ActionViewPage, page) {
			visible = append(visible, result)
		}
	}
	resp.Total -= len(resp.Results) - len(visible)
	resp.Results = visible
	return resp
}

// Reindex pushes every stored page to the search index.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	pages, err := s.pages.ListPages(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pages: %w", err)
	}
	started := time.Now()
	n, err := s.search.ReindexAll(ctx, pages)
	if err != nil {
		return n, fmt.Errorf("reindex: %w", err)
	}
	log.Printf("search: reindexed %d pages in %s", n, time.Since(started).Round(time.Millisecond))
	return n, nil
}

// SlugFor maps a request path under the mount point to a page slug.
func (s *Service) SlugFor(requestPath string) string {
	mount := strings.TrimSuffix(s.mount(), "/")
	return pagepath.Normalize(strings.TrimPrefix(requestPath, mount))
}

// URLFor maps a slug to its public URL under the mount point.
func (s *Service) URLFor(slug string) string {
	mount := strings.TrimSuffix(s.mount(), "/")
	if slug == pagepath.Root && mount != "" {
		return mount
	}
	return mount + slug
}

func (s *Service) mount() string {
	mount := strings.TrimSpace(s.config.Mount)
	if mount == "" {
		return "/"
	}
	return pagepath.Normalize(mount)
}

func (s *Service) recordRevision(page store.Page, author, message string) {
	if s.revisions == nil {
		return
	}
	if _, err := s.revisions.Record(page, author, message); err != nil {
		log.Printf("revision: record %s: %v", page.ID, err)
	}
}
