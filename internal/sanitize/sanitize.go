// Package sanitize cleans the content areas of a page before they are stored.
package sanitize

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var ErrRejected = errors.New("content rejected")

// Sanitizer cleans area content keyed by zone name. It may rewrite content
// or reject it outright.
type Sanitizer interface {
	Sanitize(areas map[string]string) (map[string]string, error)
}

type RejectError struct {
	Area   string
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("area %q: %s", e.Area, e.Reason)
}

func (e *RejectError) Unwrap() error {
	return ErrRejected
}

const (
	ModeHTML = "html"
	ModeText = "text"
)

// New builds the sanitizer named by mode. An empty mode means no sanitizer.
func New(mode string, areas []string, maxAreaBytes int) (Sanitizer, error) {
	allowed := make(map[string]struct{}, len(areas))
	for _, area := range areas {
		allowed[area] = struct{}{}
	}
	base := policy{allowed: allowed, maxBytes: maxAreaBytes}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "":
		return nil, nil
	case ModeHTML:
		return &HTML{policy: base}, nil
	case ModeText:
		return &Text{policy: base}, nil
	default:
		return nil, fmt.Errorf("unknown sanitizer %q", mode)
	}
}

type policy struct {
	allowed  map[string]struct{}
	maxBytes int
}

func (p policy) check(area, content string) error {
	if len(p.allowed) > 0 {
		if _, ok := p.allowed[area]; !ok {
			return &RejectError{Area: area, Reason: "area is not declared by the page type"}
		}
	}
	if p.maxBytes > 0 && len(content) > p.maxBytes {
		return &RejectError{Area: area, Reason: fmt.Sprintf("content exceeds %d bytes", p.maxBytes)}
	}
	return nil
}

// each visits areas in a stable order so the first rejection is deterministic.
func (p policy) each(areas map[string]string, clean func(string) (string, error)) (map[string]string, error) {
	names := make([]string, 0, len(areas))
	for name := range areas {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(areas))
	for _, name := range names {
		content := areas[name]
		if err := p.check(name, content); err != nil {
			return nil, err
		}
		cleaned, err := clean(content)
		if err != nil {
			return nil, &RejectError{Area: name, Reason: err.Error()}
		}
		out[name] = cleaned
	}
	return out, nil
}

var strippedElements = "script,style,iframe,object,embed,link,meta,base,form"

// HTML keeps markup but removes active content: scripting elements, event
// handler attributes and javascript: URLs.
type HTML struct {
	policy
}

func (h *HTML) Sanitize(areas map[string]string) (map[string]string, error) {
	return h.each(areas, cleanHTML)
}

func cleanHTML(content string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(strippedElements).Remove()
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if node == nil {
			return
		}
		var drop []string
		for _, attr := range node.Attr {
			key := strings.ToLower(attr.Key)
			value := strings.ToLower(strings.TrimSpace(attr.Val))
			if strings.HasPrefix(key, "on") {
				drop = append(drop, attr.Key)
				continue
			}
			if (key == "href" || key == "src" || key == "action") && strings.HasPrefix(value, "javascript:") {
				drop = append(drop, attr.Key)
			}
		}
		for _, key := range drop {
			s.RemoveAttr(key)
		}
	})
	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return strings.TrimSpace(body), nil
}

// Text reduces every area to its plain text.
type Text struct {
	policy
}

func (t *Text) Sanitize(areas map[string]string) (map[string]string, error) {
	return t.each(areas, func(content string) (string, error) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
		return strings.TrimSpace(doc.Find("body").Text()), nil
	})
}
