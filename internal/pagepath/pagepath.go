// Package pagepath converts titles to slug segments and derives tree paths.
//
// Paths and slugs are absolute, '/'-separated and never end in '/', except the
// root which is exactly "/". A path's level is its number of non-empty segments.
package pagepath

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const Root = "/"

var ErrNotAbsolute = errors.New("path is not anchored at the root")

const untitled = "untitled"

// Slugify turns a title into a single URL-safe segment. Slugify(Slugify(x)) == Slugify(x).
func Slugify(title string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), title)
	if err != nil {
		folded = title
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	pendingDash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	if b.Len() == 0 {
		return untitled
	}
	return b.String()
}

// Normalize forces a leading '/', collapses repeated separators and strips a
// trailing '/' unless the result is the root.
func Normalize(slug string) string {
	slug = strings.TrimSpace(slug)
	var b strings.Builder
	b.Grow(len(slug) + 1)
	b.WriteByte('/')
	prevSlash := true
	for i := 0; i < len(slug); i++ {
		c := slug[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
			b.WriteByte(c)
			continue
		}
		prevSlash = false
		b.WriteByte(c)
	}
	out := b.String()
	if len(out) > 1 {
		out = strings.TrimSuffix(out, "/")
	}
	return out
}

func Validate(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%q: %w", path, ErrNotAbsolute)
	}
	return nil
}

// ChildPath joins a parent path and a segment with a single separator.
func ChildPath(parent, segment string) (string, error) {
	if err := Validate(parent); err != nil {
		return "", err
	}
	return Normalize(parent + "/" + segment), nil
}

// AncestorPaths returns every proper ancestor of path, root first.
func AncestorPaths(path string) ([]string, error) {
	if err := Validate(path); err != nil {
		return nil, err
	}
	segments := Segments(path)
	if len(segments) == 0 {
		return []string{}, nil
	}
	out := make([]string, 0, len(segments))
	out = append(out, Root)
	prefix := ""
	for _, segment := range segments[:len(segments)-1] {
		prefix += "/" + segment
		out = append(out, prefix)
	}
	return out, nil
}

func Segments(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Level(path string) int {
	return len(Segments(path))
}

// Parent strips the last segment. The root is its own parent.
func Parent(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return Root
	}
	return path[:idx]
}

func LastSegment(path string) string {
	segments := Segments(path)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// DescendantPrefix is the string every strict descendant path starts with.
func DescendantPrefix(path string) string {
	if path == Root {
		return Root
	}
	return path + "/"
}

// IsDescendant reports whether candidate lies strictly below path.
func IsDescendant(path, candidate string) bool {
	if candidate == path {
		return false
	}
	return strings.HasPrefix(candidate, DescendantPrefix(path))
}

// PrefixCandidates lists every '/'-boundary prefix of slug, longest first,
// ending with the root. The slug itself is included.
func PrefixCandidates(slug string) []string {
	segments := Segments(slug)
	out := make([]string, 0, len(segments)+1)
	for i := len(segments); i > 0; i-- {
		out = append(out, "/"+strings.Join(segments[:i], "/"))
	}
	return append(out, Root)
}

// Remainder returns what is left of requested after best and its separator.
func Remainder(best, requested string) string {
	if best == requested {
		return ""
	}
	return strings.TrimPrefix(strings.TrimPrefix(requested, best), "/")
}

// ReplacePrefix swaps oldPrefix for newPrefix at the start of value when
// value equals oldPrefix or lies below it.
func ReplacePrefix(value, oldPrefix, newPrefix string) (string, bool) {
	if value == oldPrefix {
		return newPrefix, true
	}
	if !IsDescendant(oldPrefix, value) {
		return value, false
	}
	rest := strings.TrimPrefix(value, DescendantPrefix(oldPrefix))
	if newPrefix == Root {
		return Root + rest, true
	}
	return newPrefix + "/" + rest, true
}

// RangeUpperBound is the smallest string greater than every string starting
// with prefix, for prefix ending in '/'. It lets stores answer prefix queries
// with an index range scan.
func RangeUpperBound(prefix string) string {
	if prefix == "" {
		return ""
	}
	last := prefix[len(prefix)-1]
	return prefix[:len(prefix)-1] + string(last+1)
}
