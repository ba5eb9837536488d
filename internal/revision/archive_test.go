package revision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pagetree/internal/store"
)

func TestArchiveLifecycle(t *testing.T) {
	dir := t.TempDir()
	archive := New(dir)

	page := store.Page{ID: "pg_1", Slug: "/about", Path: "/about", Level: 1, Rank: 1, Type: "default", Title: "About", Areas: map[string]string{"body": "<p>v1</p>"}}
	first, err := archive.Record(page, "Avery Stone", "Insert /about")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(first.Hash) != 7 || first.Author != "Avery Stone" {
		t.Fatalf("unexpected commit %+v", first)
	}
	if _, err := os.Stat(filepath.Join(dir, "pg_1", snapshotFile)); err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}

	page.Slug, page.Path, page.Title = "/company", "/company", "Company"
	if _, err := archive.Record(page, "Avery Stone", "Rename /about to /company"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := archive.RecordRemoval(page, ""); err != nil {
		t.Fatalf("RecordRemoval() error = %v", err)
	}

	history, err := archive.History("pg_1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(history))
	}
	if history[0].Message != "Remove /company" || history[0].Author != "system" {
		t.Fatalf("expected newest commit first, got %+v", history[0])
	}
	if history[2].Hash != first.Hash {
		t.Fatalf("expected oldest commit %s, got %s", first.Hash, history[2].Hash)
	}

	limited, err := archive.History("pg_1", 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("expected 2 limited commits, got %d (%v)", len(limited), err)
	}

	snap, err := archive.Snapshot("pg_1", first.Hash)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Slug != "/about" || snap.Areas["body"] != "<p>v1</p>" || snap.Removed {
		t.Fatalf("unexpected first snapshot %+v", snap)
	}
	latest, err := archive.Snapshot("pg_1", history[0].Hash)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if !latest.Removed || latest.Slug != "/company" {
		t.Fatalf("expected removal tombstone, got %+v", latest)
	}

	if _, err := archive.Snapshot("pg_1", strings.Repeat("0", 40)); !errors.Is(err, ErrUnknownRevision) {
		t.Fatalf("expected ErrUnknownRevision for a missing commit, got %v", err)
	}
	if _, err := archive.Snapshot("pg_1", "does-not-exist"); !errors.Is(err, ErrUnknownRevision) {
		t.Fatalf("expected ErrUnknownRevision for an unknown name, got %v", err)
	}
}

func TestArchiveWithoutHistory(t *testing.T) {
	archive := New(t.TempDir())
	if _, err := archive.History("pg_missing", 10); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
	if _, err := archive.Record(store.Page{Slug: "/x"}, "a", "m"); err == nil {
		t.Fatal("expected error for page without id")
	}
}

func TestArchiveConcurrentRecords(t *testing.T) {
	archive := New(t.TempDir())
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("pg_%d", i%4)
			_, err := archive.Record(store.Page{ID: id, Slug: "/p", Title: fmt.Sprint(i)}, "editor", "edit")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		history, err := archive.History(fmt.Sprintf("pg_%d", i), 0)
		if err != nil || len(history) != 5 {
			t.Fatalf("pg_%d: expected 5 commits, got %d (%v)", i, len(history), err)
		}
	}
}

func TestSanitizeEmail(t *testing.T) {
	cases := map[string]string{
		"Avery Stone": "Avery.Stone",
		"ünïcode":     "ncode",
		"":            "user",
		"a_b-c":       "a.b.c",
	}
	for in, want := range cases {
		if got := sanitizeEmail(in); got != want {
			t.Fatalf("sanitizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
