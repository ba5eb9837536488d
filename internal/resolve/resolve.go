// Package resolve turns a requested address into everything a renderer needs:
// the matched page, its surroundings, auxiliary loaded data and an outcome.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"pagetree/internal/pagepath"
	"pagetree/internal/pagetype"
	"pagetree/internal/rbac"
	"pagetree/internal/store"
	"pagetree/internal/tree"
)

type Outcome string

const (
	OutcomeRender        Outcome = "render"
	OutcomeRedirect      Outcome = "redirect"
	OutcomeNotFound      Outcome = "not-found"
	OutcomeLoginRequired Outcome = "login-required"
	OutcomeForbidden     Outcome = "forbidden"
	OutcomeError         Outcome = "error"
)

const (
	TemplateDefault       = "pages/default"
	TemplateNotFound      = "notfound"
	TemplateLoginRequired = "login-required"
	TemplateForbidden     = "insufficient"
	TemplateError         = "error"
)

// Context is the per-request resolution result handed to the renderer.
// RedirectTo is only set for OutcomeRedirect.
type Context struct {
	Requested  string         `json:"requested"`
	Requester  rbac.Requester `json:"requester"`
	Page       *store.Page    `json:"page,omitempty"`
	BestPage   *store.Page    `json:"bestPage,omitempty"`
	Remainder  string         `json:"remainder"`
	Ancestors  []store.Page   `json:"ancestors"`
	Children   []*tree.Node   `json:"children"`
	Editable   bool           `json:"editable"`
	Extras     map[string]any `json:"extras"`
	Outcome    Outcome        `json:"outcome"`
	Template   string         `json:"template"`
	RedirectTo string         `json:"redirectTo,omitempty"`
	Type       pagetype.Type  `json:"-"`
	Err        error          `json:"-"`
}

// Request is the read-only view load steps and not-found handlers receive.
type Request struct {
	Requested string
	Requester rbac.Requester
	Page      *store.Page
	BestPage  *store.Page
	Remainder string
}

type LoadResult struct {
	Name  string
	Value any
	// Template, when set, overrides the template the resolver would select.
	Template string
}

type Loader interface {
	Load(ctx context.Context, req Request) (LoadResult, error)
}

type LoaderFunc func(ctx context.Context, req Request) (LoadResult, error)

func (f LoaderFunc) Load(ctx context.Context, req Request) (LoadResult, error) {
	return f(ctx, req)
}

type PageFetcher interface {
	Page(ctx context.Context, slug string) (store.Page, error)
}

// SlugLoader loads a named page by its address.
type SlugLoader struct {
	Name  string
	Slug  string
	Pages PageFetcher
	// Optional turns a missing page into a nil value instead of a failure.
	Optional bool
}

func (l SlugLoader) Load(ctx context.Context, _ Request) (LoadResult, error) {
	page, err := l.Pages.Page(ctx, l.Slug)
	if err != nil {
		if l.Optional && errors.Is(err, tree.ErrNotFound) {
			return LoadResult{Name: l.Name}, nil
		}
		return LoadResult{}, fmt.Errorf("load %s: %w", l.Name, err)
	}
	return LoadResult{Name: l.Name, Value: page}, nil
}

// NotFoundHandler may synthesize a page for an address nothing matched.
// Returning nil keeps the not-found outcome.
type NotFoundHandler interface {
	HandleNotFound(ctx context.Context, req Request) (*store.Page, error)
}

type NotFoundFunc func(ctx context.Context, req Request) (*store.Page, error)

func (f NotFoundFunc) HandleNotFound(ctx context.Context, req Request) (*store.Page, error) {
	return f(ctx, req)
}

// Tree is the engine surface the resolver reads through.
type Tree interface {
	ResolveBestMatch(ctx context.Context, requested string) (tree.Match, error)
	Ancestors(ctx context.Context, page store.Page) ([]store.Page, error)
	Descendants(ctx context.Context, page store.Page, depth int) ([]*tree.Node, error)
	LookupRedirect(ctx context.Context, from string) (store.Redirect, bool, error)
	Allow(ctx context.Context, requester rbac.Requester, action rbac.Action, page store.Page) bool
	Types() *pagetype.Registry
}

type Config struct {
	Tree          Tree
	Loaders       []Loader
	NotFound      NotFoundHandler
	ChildrenDepth int
}

type Resolver struct {
	tree          Tree
	loaders       []Loader
	notFound      NotFoundHandler
	childrenDepth int
}

func New(cfg Config) *Resolver {
	depth := cfg.ChildrenDepth
	if depth < 1 {
		depth = 1
	}
	loaders := make([]Loader, len(cfg.Loaders))
	copy(loaders, cfg.Loaders)
	return &Resolver{tree: cfg.Tree, loaders: loaders, notFound: cfg.NotFound, childrenDepth: depth}
}

func (r *Resolver) Resolve(ctx context.Context, requested string, requester rbac.Requester) *Context {
	c := &Context{
		Requested: pagepath.Normalize(requested),
		Requester: requester,
		Ancestors: []store.Page{},
		Children:  []*tree.Node{},
		Extras:    map[string]any{},
	}

	match, err := r.tree.ResolveBestMatch(ctx, c.Requested)
	if err != nil {
		return c.fail(err, "")
	}
	c.Page, c.BestPage, c.Remainder = match.Page, match.Best, match.Remainder

	// a denial is applied after the loaders ran; their template override
	// applies to it like any other outcome
	var denied Outcome
	if c.BestPage != nil {
		switch {
		case r.tree.Allow(ctx, requester, rbac.ActionViewPage, *c.BestPage):
			c.Editable = r.tree.Allow(ctx, requester, rbac.ActionEditPage, *c.BestPage)
			ancestors, err := r.tree.Ancestors(ctx, *c.BestPage)
			if err != nil {
				return c.fail(err, "")
			}
			children, err := r.tree.Descendants(ctx, *c.BestPage, r.childrenDepth)
			if err != nil {
				return c.fail(err, "")
			}
			c.Ancestors, c.Children = ancestors, children
		case requester.Authenticated():
			denied = OutcomeForbidden
		default:
			denied = OutcomeLoginRequired
		}
	}

	override, err := r.load(ctx, c)
	if err != nil {
		return c.fail(err, "")
	}

	switch denied {
	case OutcomeForbidden:
		return c.finish(OutcomeForbidden, TemplateForbidden, override)
	case OutcomeLoginRequired:
		return c.finish(OutcomeLoginRequired, TemplateLoginRequired, override)
	}

	if c.Page == nil {
		redirect, ok, err := r.tree.LookupRedirect(ctx, c.Requested)
		if err != nil {
			return c.fail(err, override)
		}
		// a redirect onto itself would loop once the page is gone
		if ok && redirect.To != c.Requested {
			c.RedirectTo = redirect.To
			return c.finish(OutcomeRedirect, "", override)
		}
		if r.notFound != nil {
			page, err := r.notFound.HandleNotFound(ctx, c.request())
			if err != nil {
				return c.fail(err, override)
			}
			c.Page = page
		}
	}

	if c.Page == nil {
		return c.finish(OutcomeNotFound, TemplateNotFound, override)
	}
	c.Type = r.tree.Types().Resolve(c.Page.Type)
	template := c.Type.Template
	if template == "" {
		template = TemplateDefault
	}
	return c.finish(OutcomeRender, template, override)
}

// load runs every registered loader concurrently and merges results in
// registration order. It returns the last template override, if any.
func (r *Resolver) load(ctx context.Context, c *Context) (string, error) {
	if len(r.loaders) == 0 {
		return "", nil
	}
	req := c.request()
	results := make([]LoadResult, len(r.loaders))
	g, gctx := errgroup.WithContext(ctx)
	for i, loader := range r.loaders {
		g.Go(func() error {
			res, err := loader.Load(gctx, req)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	override := ""
	for _, res := range results {
		if res.Name != "" {
			c.Extras[res.Name] = res.Value
		}
		if res.Template != "" {
			override = res.Template
		}
	}
	return override, nil
}

func (c *Context) request() Request {
	return Request{
		Requested: c.Requested,
		Requester: c.Requester,
		Page:      c.Page,
		BestPage:  c.BestPage,
		Remainder: c.Remainder,
	}
}

func (c *Context) finish(outcome Outcome, template, override string) *Context {
	c.Outcome = outcome
	c.Template = template
	if override != "" {
		c.Template = override
	}
	return c
}

func (c *Context) fail(err error, override string) *Context {
	c.Err = err
	return c.finish(OutcomeError, TemplateError, override)
}

// Status maps the outcome onto an HTTP status code.
func (c *Context) Status() int {
	switch c.Outcome {
	case OutcomeRender:
		return http.StatusOK
	case OutcomeRedirect:
		return http.StatusFound
	case OutcomeLoginRequired:
		return http.StatusUnauthorized
	case OutcomeForbidden:
		return http.StatusForbidden
	case OutcomeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
