package sanitize

import (
	"errors"
	"strings"
	"testing"
)

func TestNewModes(t *testing.T) {
	s, err := New("", nil, 0)
	if err != nil || s != nil {
		t.Fatalf("empty mode should yield no sanitizer, got %v %v", s, err)
	}
	if _, err := New("HTML", nil, 0); err != nil {
		t.Fatalf("mode lookup should be case-insensitive: %v", err)
	}
	if _, err := New("wiki", nil, 0); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestHTMLStripsActiveContent(t *testing.T) {
	s, err := New(ModeHTML, nil, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "script removed", input: `<p>hello</p><script>alert(1)</script>`, want: `<p>hello</p>`},
		{name: "event handler removed", input: `<a href="/x" onclick="steal()">x</a>`, want: `<a href="/x">x</a>`},
		{name: "javascript url removed", input: `<a href=" JavaScript:alert(1)">x</a>`, want: `<a>x</a>`},
		{name: "iframe removed", input: `<div><iframe src="https://evil"></iframe>ok</div>`, want: `<div>ok</div>`},
		{name: "plain markup kept", input: `<h2>Title</h2><ul><li>one</li></ul>`, want: `<h2>Title</h2><ul><li>one</li></ul>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := s.Sanitize(map[string]string{"body": tc.input})
			if err != nil {
				t.Fatalf("Sanitize() error = %v", err)
			}
			if out["body"] != tc.want {
				t.Fatalf("Sanitize() = %q, want %q", out["body"], tc.want)
			}
		})
	}
}

func TestPolicyRejections(t *testing.T) {
	s, err := New(ModeHTML, []string{"body"}, 16)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = s.Sanitize(map[string]string{"sidebar": "x"})
	var reject *RejectError
	if !errors.As(err, &reject) || reject.Area != "sidebar" {
		t.Fatalf("expected rejection for undeclared area, got %v", err)
	}

	_, err = s.Sanitize(map[string]string{"body": strings.Repeat("a", 17)})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected for oversize content, got %v", err)
	}
}

func TestTextFlattensMarkup(t *testing.T) {
	s, err := New(ModeText, nil, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	out, err := s.Sanitize(map[string]string{"body": "<p>Hello <b>world</b></p>"})
	if err != nil {
		t.Fatalf("Sanitize() error = %v", err)
	}
	if out["body"] != "Hello world" {
		t.Fatalf("unexpected text %q", out["body"])
	}
}
