package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"pagetree/internal/pagetype"
	"pagetree/internal/resolve"
	"pagetree/internal/store"
)

func templatesFS() fstest.MapFS {
	return fstest.MapFS{
		"_partials/crumbs.html": {Data: []byte(`{{define "crumbs"}}{{range .Ancestors}}<a href="{{.Slug}}">{{.Title}}</a>/{{end}}{{end}}`)},
		"pages/default.html":    {Data: []byte(`{{template "crumbs" .}}<h1>{{.Page.Title}}</h1>{{.Area "body"}}`)},
		"pages/home.html":       {Data: []byte(`home:{{.Page.Title}}:{{.Extra "motd"}}`)},
		"notfound.html":         {Data: []byte(`missing {{.Requested}}`)},
		"README.md":             {Data: []byte(`ignored`)},
	}
}

func renderContext(t *testing.T, typeName string, areas map[string]string) *resolve.Context {
	t.Helper()
	reg := pagetype.Builtin()
	return &resolve.Context{
		Requested: "/about",
		Outcome:   resolve.OutcomeRender,
		Page:      &store.Page{Slug: "/about", Title: "About <us>", Type: typeName, Areas: areas},
		Ancestors: []store.Page{{Slug: "/", Title: "Home"}},
		Extras:    map[string]any{"motd": "hi"},
		Type:      reg.Resolve(typeName),
	}
}

func TestHTMLRendersWithPartialsAndAreas(t *testing.T) {
	h, err := NewHTMLFS(templatesFS())
	if err != nil {
		t.Fatalf("NewHTMLFS() error = %v", err)
	}
	if !h.Has("pages/default") || !h.Has("notfound") || h.Has("_partials/crumbs") {
		t.Fatalf("unexpected template set %v", h.templates)
	}

	c := renderContext(t, "default", map[string]string{"body": "<p>Hello</p>"})
	var buf bytes.Buffer
	if err := h.Render(&buf, "pages/default", c); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := `<a href="/">Home</a>/<h1>About &lt;us&gt;</h1><p>Hello</p>`
	if buf.String() != want {
		t.Fatalf("got %q\nwant %q", buf.String(), want)
	}
}

func TestHTMLEscapesNonHTMLAreas(t *testing.T) {
	h, err := NewHTMLFS(templatesFS())
	if err != nil {
		t.Fatal(err)
	}
	c := renderContext(t, "default", map[string]string{"body": "<b>x</b>"})
	c.Type = pagetype.Type{Name: "plain"}
	var buf bytes.Buffer
	if err := h.Render(&buf, "pages/default", c); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(buf.String(), "&lt;b&gt;x&lt;/b&gt;") {
		t.Fatalf("expected escaped area, got %q", buf.String())
	}
}

func TestHTMLFallsBackToDefaultPageTemplate(t *testing.T) {
	h, err := NewHTMLFS(templatesFS())
	if err != nil {
		t.Fatal(err)
	}
	c := renderContext(t, "default", nil)
	var buf bytes.Buffer
	if err := h.Render(&buf, "pages/landing", c); err != nil {
		t.Fatalf("expected fallback, got %v", err)
	}

	c.Outcome = resolve.OutcomeForbidden
	err = h.Render(&buf, resolve.TemplateForbidden, c)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestHTMLRequiresTemplates(t *testing.T) {
	if _, err := NewHTMLFS(fstest.MapFS{"a.txt": {Data: []byte("x")}}); err == nil {
		t.Fatal("expected error for empty template set")
	}
	if _, err := NewHTMLFS(fstest.MapFS{"broken.html": {Data: []byte("{{if}")}}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestJSONRenderer(t *testing.T) {
	c := renderContext(t, "home", nil)
	c.Err = errors.New("secret internals")
	var buf bytes.Buffer
	if err := (JSON{}).Render(&buf, "pages/home", c); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["template"] != "pages/home" || decoded["outcome"] != "render" {
		t.Fatalf("unexpected payload %v", decoded)
	}
	if decoded["status"] != float64(200) {
		t.Fatalf("status = %v", decoded["status"])
	}
	if strings.Contains(buf.String(), "secret internals") {
		t.Fatal("internal error leaked into output")
	}
}
