package search

import (
	"context"
	"sort"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"pagetree/internal/store"
)

const (
	defaultLimit   = 20
	excerptRunes   = 280
	ellipsisSuffix = "…"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	Snippet string `json:"snippet"`
}

type Query struct {
	Text   string
	Type   string // empty = all page types
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Fallback is the store-side title search used when the index is unavailable.
type Fallback interface {
	SearchPages(ctx context.Context, q store.SearchQuery) ([]store.Page, error)
}

// PageRecord is the data we index for a page.
type PageRecord struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Path  string `json:"path"`
	Level int    `json:"level"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Record flattens a page into its index record. Area content is converted
// to markdown so highlights and excerpts never carry markup.
func Record(page store.Page) PageRecord {
	return PageRecord{
		ID:    page.ID,
		Slug:  page.Slug,
		Path:  page.Path,
		Level: page.Level,
		Type:  page.Type,
		Title: page.Title,
		Text:  Markdown(page.Areas),
	}
}

// Markdown joins a page's areas, in the order body, aside, then the rest
// alphabetically, as markdown text.
func Markdown(areas map[string]string) string {
	var parts []string
	for _, name := range areaOrder(areas) {
		html := strings.TrimSpace(areas[name])
		if html == "" {
			continue
		}
		md, err := htmltomarkdown.ConvertString(html)
		if err != nil {
			md = html
		}
		if md = strings.TrimSpace(md); md != "" {
			parts = append(parts, md)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Excerpt shortens text to a display snippet on a rune boundary.
func Excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= excerptRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:excerptRunes])) + ellipsisSuffix
}

func areaOrder(areas map[string]string) []string {
	names := make([]string, 0, len(areas))
	for _, first := range []string{"body", "aside"} {
		if _, ok := areas[first]; ok {
			names = append(names, first)
		}
	}
	rest := make([]string, 0, len(areas))
	for name := range areas {
		if name != "body" && name != "aside" {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
