// Package render writes a resolved request as a response body.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"pagetree/internal/resolve"
	"pagetree/internal/sanitize"
)

var ErrTemplateNotFound = errors.New("template not found")

type Renderer interface {
	ContentType() string
	Render(w io.Writer, name string, c *resolve.Context) error
}

// JSON writes the resolution context itself.
type JSON struct{}

func (JSON) ContentType() string {
	return "application/json"
}

func (JSON) Render(w io.Writer, name string, c *resolve.Context) error {
	payload := struct {
		*resolve.Context
		Template string `json:"template"`
		Status   int    `json:"status"`
		Error    string `json:"error,omitempty"`
	}{Context: c, Template: name, Status: c.Status()}
	if c.Err != nil {
		payload.Error = "Server error"
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	return nil
}

// HTML renders html/template files loaded from a directory. Templates are
// named by their path relative to the directory, without extension, so
// pages/default.html is "pages/default".
type HTML struct {
	templates map[string]*template.Template
}

func NewHTML(dir string) (*HTML, error) {
	return NewHTMLFS(os.DirFS(dir))
}

func NewHTMLFS(fsys fs.FS) (*HTML, error) {
	// partials live under _partials and are shared by every page template
	partials, err := fs.Glob(fsys, "_partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("glob partials: %w", err)
	}

	h := &HTML{templates: map[string]*template.Template{}}
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") {
				return fs.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".html" {
			return nil
		}
		name := strings.TrimSuffix(filepath.ToSlash(path), ".html")
		files := append([]string{path}, partials...)
		tmpl, err := template.New(filepath.Base(path)).ParseFS(fsys, files...)
		if err != nil {
			return fmt.Errorf("parse template %s: %w", name, err)
		}
		h.templates[name] = tmpl
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(h.templates) == 0 {
		return nil, errors.New("render: no templates found")
	}
	return h, nil
}

func (h *HTML) ContentType() string {
	return "text/html; charset=utf-8"
}

func (h *HTML) Has(name string) bool {
	_, ok := h.templates[name]
	return ok
}

// Render executes name, falling back to the default page template for page
// renders whose type template is missing.
func (h *HTML) Render(w io.Writer, name string, c *resolve.Context) error {
	tmpl, ok := h.templates[name]
	if !ok && c.Outcome == resolve.OutcomeRender {
		tmpl, ok = h.templates[resolve.TemplateDefault]
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, View{Context: c}); err != nil {
		return fmt.Errorf("execute template %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// View is the value templates execute against.
type View struct {
	*resolve.Context
}

// Area returns a content area ready for output. Content that went through
// the HTML sanitizer is emitted as markup; everything else is escaped.
func (v View) Area(name string) template.HTML {
	if v.Page == nil {
		return ""
	}
	content := v.Page.Areas[name]
	if strings.EqualFold(v.Type.SanitizerName(), sanitize.ModeHTML) {
		return template.HTML(content)
	}
	return template.HTML(template.HTMLEscapeString(content))
}

func (v View) Extra(name string) any {
	return v.Extras[name]
}
