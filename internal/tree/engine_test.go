package tree

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"pagetree/internal/pagepath"
	"pagetree/internal/pagetype"
	"pagetree/internal/rbac"
	"pagetree/internal/store"
)

var editor = rbac.Requester{ID: "u_editor", Name: "Editor", Role: rbac.RoleEditor}

type fixture struct {
	engine *Engine
	store  *store.MemoryStore
}

func newFixture(t *testing.T, opts ...func(*Config)) fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	cfg := Config{
		Store:      mem,
		Redirects:  mem,
		Ranks:      mem,
		Authorizer: rbac.Policy{PublicRead: true},
		Types:      pagetype.Builtin(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, created, err := engine.EnsureRoot(context.Background(), "Home")
	if err != nil || !created {
		t.Fatalf("EnsureRoot() = created %v, %v; want a fresh root", created, err)
	}
	return fixture{engine: engine, store: mem}
}

func (f fixture) insert(t *testing.T, parent, title string) store.Page {
	t.Helper()
	page, err := f.engine.Insert(context.Background(), InsertInput{ParentSlug: parent, Title: title}, editor)
	if err != nil {
		t.Fatalf("Insert(%q under %s) error = %v", title, parent, err)
	}
	return page
}

func (f fixture) page(t *testing.T, slug string) store.Page {
	t.Helper()
	page, err := f.engine.Page(context.Background(), slug)
	if err != nil {
		t.Fatalf("Page(%s) error = %v", slug, err)
	}
	return page
}

func (f fixture) allPages(t *testing.T) []store.Page {
	t.Helper()
	pages, err := f.store.ListPages(context.Background())
	if err != nil {
		t.Fatalf("ListPages() error = %v", err)
	}
	return pages
}

func nodeSlugs(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Slug
	}
	return out
}

func wantKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want %v", err, kind)
	}
}

// scenario builds: / -> about (1), contact (2); about -> team -> alice
func scenario(t *testing.T, f fixture) {
	t.Helper()
	f.insert(t, "/", "About")
	f.insert(t, "/", "Contact")
	f.insert(t, "/about", "Team")
	f.insert(t, "/about/team", "Alice")
}

func assertInvariants(t *testing.T, f fixture) {
	t.Helper()
	pages := f.allPages(t)
	byPath := map[string]store.Page{}
	slugs := map[string]bool{}
	for _, p := range pages {
		if got := len(pagepath.Segments(p.Path)); got != p.Level {
			t.Errorf("level of %s = %d, want %d", p.Path, p.Level, got)
		}
		if slugs[p.Slug] {
			t.Errorf("duplicate slug %s", p.Slug)
		}
		slugs[p.Slug] = true
		if _, dup := byPath[p.Path]; dup {
			t.Errorf("duplicate path %s", p.Path)
		}
		byPath[p.Path] = p
	}
	for _, p := range pages {
		if p.Path == pagepath.Root {
			continue
		}
		parent, ok := byPath[pagepath.Parent(p.Path)]
		if !ok {
			t.Errorf("parent of %s missing", p.Path)
			continue
		}
		want, err := pagepath.ChildPath(parent.Path, pagepath.LastSegment(p.Path))
		if err != nil || want != p.Path {
			t.Errorf("path %s, want %s (%v)", p.Path, want, err)
		}
	}
}

func TestScenarioRenameCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scenario(t, f)

	children, err := f.engine.Descendants(ctx, f.page(t, "/"), 1)
	if err != nil {
		t.Fatalf("Descendants() error = %v", err)
	}
	if got := nodeSlugs(children); !reflect.DeepEqual(got, []string{"/about", "/contact"}) {
		t.Fatalf("root children = %v", got)
	}
	if children[0].Rank != 1 || children[1].Rank != 2 {
		t.Fatalf("ranks = %d, %d; want 1, 2", children[0].Rank, children[1].Rank)
	}

	result, err := f.engine.Rename(ctx, RenameInput{OriginalSlug: "/about", Slug: "/company"}, editor)
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if result.Page.Slug != "/company" || result.Page.Path != "/company" {
		t.Fatalf("renamed page = %s (%s)", result.Page.Slug, result.Page.Path)
	}
	if len(result.Cascaded) != 2 {
		t.Fatalf("cascaded = %d pages, want 2", len(result.Cascaded))
	}

	if team := f.page(t, "/company/team"); team.Path != "/company/team" {
		t.Fatalf("team path = %s", team.Path)
	}
	if alice := f.page(t, "/company/team/alice"); alice.Path != "/company/team/alice" {
		t.Fatalf("alice path = %s", alice.Path)
	}

	redirect, ok, err := f.engine.LookupRedirect(ctx, "/about")
	if err != nil || !ok || redirect.To != "/company" {
		t.Fatalf("LookupRedirect(/about) = %+v, %v, %v", redirect, ok, err)
	}

	// cascaded descendants are rewritten, not redirected
	if _, ok, err := f.engine.LookupRedirect(ctx, "/about/team"); err != nil || ok {
		t.Fatalf("LookupRedirect(/about/team) = %v, %v; want none", ok, err)
	}

	match, err := f.engine.ResolveBestMatch(ctx, "/about/team")
	if err != nil {
		t.Fatalf("ResolveBestMatch() error = %v", err)
	}
	if match.Page != nil || match.Best == nil || match.Best.Slug != "/" || match.Remainder != "about/team" {
		t.Fatalf("match = %+v", match)
	}

	assertInvariants(t, f)
}

func TestAncestorsOrderedByLevel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scenario(t, f)

	ancestors, err := f.engine.Ancestors(ctx, f.page(t, "/about/team/alice"))
	if err != nil {
		t.Fatalf("Ancestors() error = %v", err)
	}
	want := []string{"/", "/about", "/about/team"}
	if len(ancestors) != len(want) {
		t.Fatalf("ancestors = %d, want %d", len(ancestors), len(want))
	}
	for i, slug := range want {
		if ancestors[i].Slug != slug || ancestors[i].Level != i {
			t.Fatalf("ancestor %d = %s level %d, want %s level %d", i, ancestors[i].Slug, ancestors[i].Level, slug, i)
		}
		if ancestors[i].Areas != nil {
			t.Fatalf("ancestor %s carries areas", ancestors[i].Slug)
		}
	}

	none, err := f.engine.Ancestors(ctx, f.page(t, "/"))
	if err != nil || len(none) != 0 {
		t.Fatalf("root ancestors = %v, %v; want none", none, err)
	}
}

func TestDescendantsRespectDepthAndNesting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scenario(t, f)
	f.insert(t, "/about", "History")
	f.insert(t, "/", "Aboutus")

	about := f.page(t, "/about")

	cases := []struct {
		depth    int
		maxLevel int
		total    int
	}{
		{depth: 0, maxLevel: 2, total: 2},
		{depth: 1, maxLevel: 2, total: 2},
		{depth: 2, maxLevel: 3, total: 3},
		{depth: 5, maxLevel: 3, total: 3},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("depth %d", tc.depth), func(t *testing.T) {
			nodes, err := f.engine.Descendants(ctx, about, tc.depth)
			if err != nil {
				t.Fatalf("Descendants() error = %v", err)
			}
			if got := nodeSlugs(nodes); !reflect.DeepEqual(got, []string{"/about/team", "/about/history"}) {
				t.Fatalf("top level = %v", got)
			}

			total := 0
			var walk func(parent string, nodes []*Node)
			walk = func(parent string, nodes []*Node) {
				for _, n := range nodes {
					total++
					if !strings.HasPrefix(n.Path, "/about/") {
						t.Errorf("%s escapes the subtree", n.Path)
					}
					if n.Level <= about.Level || n.Level > tc.maxLevel {
						t.Errorf("%s level %d outside (%d, %d]", n.Path, n.Level, about.Level, tc.maxLevel)
					}
					if parent != "" && pagepath.Parent(n.Path) != parent {
						t.Errorf("%s nested under %s", n.Path, parent)
					}
					walk(n.Path, n.Children)
				}
			}
			walk("", nodes)
			if total != tc.total {
				t.Fatalf("total nodes = %d, want %d", total, tc.total)
			}
		})
	}
}

func TestNestPromotesOrphans(t *testing.T) {
	nodes := Nest([]store.Page{
		{Slug: "/a", Path: "/a", Level: 1},
		{Slug: "/a/b", Path: "/a/b", Level: 2},
		{Slug: "/x/y", Path: "/x/y", Level: 2},
		{Slug: "/a/b/c", Path: "/a/b/c", Level: 3},
	})
	if got := nodeSlugs(nodes); !reflect.DeepEqual(got, []string{"/a", "/x/y"}) {
		t.Fatalf("roots = %v", got)
	}
	if len(nodes[0].Children) != 1 || len(nodes[0].Children[0].Children) != 1 {
		t.Fatalf("/a subtree not nested: %+v", nodes[0])
	}
	if got := nodes[0].Children[0].Children[0].Slug; got != "/a/b/c" {
		t.Fatalf("grandchild = %s", got)
	}
}

func TestResolveBestMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scenario(t, f)

	cases := []struct {
		requested string
		exact     bool
		best      string
		remainder string
	}{
		{requested: "/about/team", exact: true, best: "/about/team"},
		{requested: "/about/team/", exact: true, best: "/about/team"},
		{requested: "/about/team/bob/cv", best: "/about/team", remainder: "bob/cv"},
		{requested: "/aboutx", best: "/", remainder: "aboutx"},
		{requested: "/", exact: true, best: "/"},
	}
	for _, tc := range cases {
		t.Run(tc.requested, func(t *testing.T) {
			match, err := f.engine.ResolveBestMatch(ctx, tc.requested)
			if err != nil {
				t.Fatalf("ResolveBestMatch() error = %v", err)
			}
			if (match.Page != nil) != tc.exact {
				t.Fatalf("exact = %v, want %v", match.Page != nil, tc.exact)
			}
			if match.Best == nil || match.Best.Slug != tc.best {
				t.Fatalf("best = %+v, want %s", match.Best, tc.best)
			}
			if match.Remainder != tc.remainder {
				t.Fatalf("remainder = %q, want %q", match.Remainder, tc.remainder)
			}
		})
	}
}

func TestSequentialInsertsGetConsecutiveRanks(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 6; i++ {
		if page := f.insert(t, "/", fmt.Sprintf("Child %d", i)); page.Rank != i {
			t.Fatalf("rank of child %d = %d", i, page.Rank)
		}
	}
}

func TestConcurrentInsertsGetDistinctRanks(t *testing.T) {
	f := newFixture(t)
	const n = 20
	var wg sync.WaitGroup
	ranks := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			page, err := f.engine.Insert(context.Background(), InsertInput{ParentSlug: "/", Title: fmt.Sprintf("Sibling %02d", i)}, editor)
			ranks[i], errs[i] = page.Rank, err
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("insert %d error = %v", i, err)
		}
	}
	sort.Ints(ranks)
	for i := 1; i < n; i++ {
		if ranks[i-1] == ranks[i] {
			t.Fatalf("rank %d allocated twice", ranks[i])
		}
	}
}

func TestRankFloorFollowsExistingChildren(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.store.InsertPage(ctx, store.Page{ID: "pg_imported", Slug: "/imported", Path: "/imported", Level: 1, Rank: 40, Type: "default", Title: "Imported"})
	if err != nil {
		t.Fatal(err)
	}

	rank, err := f.engine.NextRank(ctx, f.page(t, "/"))
	if err != nil || rank != 41 {
		t.Fatalf("NextRank() = %d, %v; want 41", rank, err)
	}
}

func TestRemovedRanksAreNotReused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.insert(t, "/", "A")
	f.insert(t, "/", "B")
	f.insert(t, "/", "C")

	if _, err := f.engine.Remove(ctx, "/c", editor); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if d := f.insert(t, "/", "D"); d.Rank != 4 {
		t.Fatalf("rank after removing the last sibling = %d, want 4", d.Rank)
	}
}

func TestRenameAndBackIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scenario(t, f)

	shape := func() []string {
		var out []string
		for _, p := range f.allPages(t) {
			out = append(out, fmt.Sprintf("%s|%s|%d", p.Slug, p.Path, p.Rank))
		}
		sort.Strings(out)
		return out
	}
	before := shape()

	if _, err := f.engine.Rename(ctx, RenameInput{OriginalSlug: "/about", Slug: "/company"}, editor); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Rename(ctx, RenameInput{OriginalSlug: "/company", Slug: "/about"}, editor); err != nil {
		t.Fatal(err)
	}
	if after := shape(); !reflect.DeepEqual(before, after) {
		t.Fatalf("tree changed after rename and back:\n%v\n%v", before, after)
	}

	// intermediate redirects persist; the live page shadows them
	for from, to := range map[string]string{"/about": "/company", "/company": "/about"} {
		redirect, ok, err := f.engine.LookupRedirect(ctx, from)
		if err != nil || !ok || redirect.To != to {
			t.Fatalf("LookupRedirect(%s) = %+v, %v, %v; want %s", from, redirect, ok, err, to)
		}
	}
}

func TestRenameKeepsCustomDescendantSlug(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scenario(t, f)

	team := f.page(t, "/about/team")
	if err := f.store.UpdatePageAddress(ctx, team.ID, "/people", team.Path); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Rename(ctx, RenameInput{OriginalSlug: "/about", Slug: "/company"}, editor); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	if people := f.page(t, "/people"); people.Path != "/company/team" {
		t.Fatalf("custom slug path = %s, want /company/team", people.Path)
	}
	if alice := f.page(t, "/company/team/alice"); alice.Path != "/company/team/alice" {
		t.Fatalf("alice path = %s", alice.Path)
	}
}

func TestRenameRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scenario(t, f)

	_, err := f.engine.Rename(ctx, RenameInput{OriginalSlug: "/", Slug: "/home"}, editor)
	wantKind(t, err, ErrImmutableRoot)

	result, err := f.engine.Rename(ctx, RenameInput{OriginalSlug: "/", Title: "Start"}, editor)
	if err != nil || result.Page.Title != "Start" || result.Page.Slug != "/" {
		t.Fatalf("retitle root = %+v, %v", result.Page, err)
	}

	_, err = f.engine.Rename(ctx, RenameInput{OriginalSlug: "/missing", Slug: "/x"}, editor)
	wantKind(t, err, ErrNotFound)

	_, err = f.engine.Rename(ctx, RenameInput{OriginalSlug: "/about", Slug: "/x"}, rbac.Requester{ID: "u_v", Role: rbac.RoleViewer})
	wantKind(t, err, ErrPermissionDenied)

	_, err = f.engine.Rename(ctx, RenameInput{OriginalSlug: "/about", Slug: "/contact"}, editor)
	wantKind(t, err, ErrConflict)

	_, err = f.engine.Rename(ctx, RenameInput{OriginalSlug: "/about", Slug: "/"}, editor)
	wantKind(t, err, ErrValidation)

	result, err = f.engine.Rename(ctx, RenameInput{OriginalSlug: "/contact", Slug: "//reach-us//"}, editor)
	if err != nil || result.Page.Slug != "/reach-us" {
		t.Fatalf("normalized rename = %s, %v; want /reach-us", result.Page.Slug, err)
	}
}

func TestEditUpsertsSelfRedirect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scenario(t, f)

	page, err := f.engine.Edit(ctx, "/contact", "Contact Us", "", map[string]string{"body": "<p>write</p>"}, editor)
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if page.Title != "Contact Us" || page.Slug != "/contact" || page.Rank != 2 {
		t.Fatalf("edited page = %+v", page)
	}

	redirect, ok, err := f.engine.LookupRedirect(ctx, "/contact")
	if err != nil || !ok || redirect.To != "/contact" {
		t.Fatalf("LookupRedirect() = %+v, %v, %v; want self redirect", redirect, ok, err)
	}
}

type failingStore struct {
	*store.MemoryStore
	failOn string
	mu     sync.Mutex
	calls  int
}

func (s *failingStore) UpdatePageAddress(ctx context.Context, id, slug, path string) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if strings.HasSuffix(path, s.failOn) {
		return errors.New("disk full")
	}
	return s.MemoryStore.UpdatePageAddress(ctx, id, slug, path)
}

func TestCascadeFailureReportsWithoutRollback(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{failOn: "/alice"}
	f := newFixture(t, func(cfg *Config) {
		fs.MemoryStore = cfg.Store.(*store.MemoryStore)
		cfg.Store = fs
		cfg.CascadeConcurrency = 1
	})
	scenario(t, f)
	f.insert(t, "/about", "History")

	result, err := f.engine.Rename(ctx, RenameInput{OriginalSlug: "/about", Slug: "/company"}, editor)
	wantKind(t, err, ErrStore)
	var cascadeErr *CascadeError
	if !errors.As(err, &cascadeErr) {
		t.Fatalf("error = %v, want *CascadeError", err)
	}
	if cascadeErr.Failed != "/about/team/alice" {
		t.Fatalf("failed = %s, want /about/team/alice", cascadeErr.Failed)
	}

	if result.Page.Slug != "/company" {
		t.Fatalf("partial result page = %s, want /company", result.Page.Slug)
	}
	// the renamed page stays renamed; the failed descendant keeps its old address
	f.page(t, "/company")
	f.page(t, "/about/team/alice")
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scenario(t, f)

	before := len(f.allPages(t))
	_, err := f.engine.Remove(ctx, "/about", editor)
	wantKind(t, err, ErrHasChildren)
	if got := len(f.allPages(t)); got != before {
		t.Fatalf("refused removal changed page count %d -> %d", before, got)
	}

	_, err = f.engine.Remove(ctx, "/", editor)
	wantKind(t, err, ErrImmutableRoot)

	_, err = f.engine.Remove(ctx, "/about/team/alice", rbac.Requester{ID: "u_v", Role: rbac.RoleViewer})
	wantKind(t, err, ErrPermissionDenied)

	_, err = f.engine.Remove(ctx, "/nope", editor)
	wantKind(t, err, ErrNotFound)

	if parent, err := f.engine.Remove(ctx, "/about/team/alice", editor); err != nil || parent != "/about/team" {
		t.Fatalf("Remove(alice) = %q, %v", parent, err)
	}
	if parent, err := f.engine.Remove(ctx, "/about/team", editor); err != nil || parent != "/about" {
		t.Fatalf("Remove(team) = %q, %v", parent, err)
	}
	assertInvariants(t, f)
}

func TestRemoveAuthorizesAgainstParent(t *testing.T) {
	ctx := context.Background()
	var subjects []string
	f := newFixture(t, func(cfg *Config) {
		cfg.Authorizer = AuthorizerFunc(func(_ context.Context, _ rbac.Requester, action rbac.Action, page store.Page) bool {
			if action == rbac.ActionAddPage {
				subjects = append(subjects, page.Slug)
			}
			return true
		})
	})
	scenario(t, f)
	subjects = nil

	if _, err := f.engine.Remove(ctx, "/about/team/alice", editor); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !reflect.DeepEqual(subjects, []string{"/about/team"}) {
		t.Fatalf("authorized against %v, want [/about/team]", subjects)
	}
}

func TestInsertRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scenario(t, f)

	_, err := f.engine.Insert(ctx, InsertInput{ParentSlug: "/missing", Title: "X"}, editor)
	wantKind(t, err, ErrNotFound)

	_, err = f.engine.Insert(ctx, InsertInput{ParentSlug: "/", Title: "X"}, rbac.Guest())
	wantKind(t, err, ErrPermissionDenied)

	_, err = f.engine.Insert(ctx, InsertInput{ParentSlug: "/", Title: "X", Areas: map[string]string{"footer": "x"}}, editor)
	wantKind(t, err, ErrValidation)

	_, err = f.engine.Insert(ctx, InsertInput{ParentSlug: "/", Title: "   "}, editor)
	wantKind(t, err, ErrValidation)

	_, err = f.engine.Insert(ctx, InsertInput{ParentSlug: "/", Title: "About!"}, editor)
	wantKind(t, err, ErrConflict)

	page, err := f.engine.Insert(ctx, InsertInput{
		ParentSlug: "/about/team",
		Title:      "Zoë Smith",
		Type:       "unregistered",
		Areas:      map[string]string{"body": `<p onmouseover="x()">Hi</p>`},
	}, editor)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if page.Slug != "/about/team/zoe-smith" || page.Path != "/about/team/zoe-smith" {
		t.Fatalf("address = %s (%s)", page.Slug, page.Path)
	}
	if page.Level != 3 || page.Rank != 2 {
		t.Fatalf("level = %d rank = %d, want 3 and 2", page.Level, page.Rank)
	}
	if page.Type != pagetype.DefaultTypeName {
		t.Fatalf("type = %q, want %q", page.Type, pagetype.DefaultTypeName)
	}
	if page.Areas["body"] != "<p>Hi</p>" {
		t.Fatalf("body = %q, want sanitized markup", page.Areas["body"])
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(ErrHasChildren, "remove", "/a", nil))
	if KindOf(err) != ErrHasChildren {
		t.Fatalf("KindOf() = %v, want ErrHasChildren", KindOf(err))
	}
	if KindOf(errors.New("plain")) != nil {
		t.Fatal("plain errors have no kind")
	}
	if !strings.Contains(err.Error(), "remove /a: page has children") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestScenarioOnSQLite(t *testing.T) {
	ctx := context.Background()
	backend, err := store.Connect(ctx, "sqlite::memory:", "../../db/migrations")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = backend.Close(ctx) })

	engine, err := New(Config{Store: backend, Redirects: backend, Ranks: backend, Authorizer: rbac.Policy{}})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := engine.EnsureRoot(ctx, "Home"); err != nil {
		t.Fatal(err)
	}
	for _, in := range []InsertInput{
		{ParentSlug: "/", Title: "About"},
		{ParentSlug: "/", Title: "Contact"},
		{ParentSlug: "/about", Title: "Team"},
	} {
		if _, err := engine.Insert(ctx, in, editor); err != nil {
			t.Fatalf("Insert(%s) error = %v", in.Title, err)
		}
	}

	if _, err := engine.Rename(ctx, RenameInput{OriginalSlug: "/about", Slug: "/company"}, editor); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	team, err := engine.Page(ctx, "/company/team")
	if err != nil {
		t.Fatal(err)
	}
	if team.Path != "/company/team" || team.Rank != 1 {
		t.Fatalf("team = %s rank %d", team.Path, team.Rank)
	}
	if _, ok, err := engine.LookupRedirect(ctx, "/about/team"); err != nil || ok {
		t.Fatalf("LookupRedirect(/about/team) = %v, %v; want none", ok, err)
	}
}
