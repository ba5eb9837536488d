package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore persists pages in Postgres or SQLite. Queries are written with '?'
// placeholders and rebound for the dialect.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

const (
	lightColumns = `id, slug, path, level, rank, type, title, created_at, updated_at`
	fullColumns  = `id, slug, path, level, rank, type, title, created_at, updated_at, areas`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner, withAreas bool) (Page, error) {
	var (
		page  Page
		path  sql.NullString
		areas []byte
	)
	dest := []any{&page.ID, &page.Slug, &path, &page.Level, &page.Rank, &page.Type, &page.Title, &page.CreatedAt, &page.UpdatedAt}
	if withAreas {
		dest = append(dest, &areas)
	}
	if err := row.Scan(dest...); err != nil {
		return Page{}, err
	}
	page.Path = path.String
	if withAreas {
		page.Areas = map[string]string{}
		if len(areas) > 0 {
			if err := json.Unmarshal(areas, &page.Areas); err != nil {
				return Page{}, fmt.Errorf("decode areas for %s: %w", page.Slug, err)
			}
		}
	}
	return page, nil
}

func (s *SQLStore) queryPages(ctx context.Context, op string, withAreas bool, query string, args ...any) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, rebind(s.dialect, query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]Page, 0)
	for rows.Next() {
		item, err := scanPage(rows, withAreas)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return items, nil
}

func (s *SQLStore) FindPageBySlug(ctx context.Context, slug string) (Page, error) {
	row := s.db.QueryRowContext(ctx, rebind(s.dialect, `SELECT `+fullColumns+` FROM pages WHERE slug=?`), slug)
	page, err := scanPage(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, ErrNotFound
	}
	if err != nil {
		return Page{}, fmt.Errorf("find page by slug: %w", err)
	}
	return page, nil
}

func (s *SQLStore) FindPagesBySlugs(ctx context.Context, slugs []string) ([]Page, error) {
	if len(slugs) == 0 {
		return []Page{}, nil
	}
	query := `SELECT ` + lightColumns + ` FROM pages WHERE slug IN (` + placeholders(len(slugs)) + `)`
	return s.queryPages(ctx, "find pages by slugs", false, query, stringArgs(slugs)...)
}

func (s *SQLStore) FindPagesByPaths(ctx context.Context, paths []string) ([]Page, error) {
	if len(paths) == 0 {
		return []Page{}, nil
	}
	query := `SELECT ` + lightColumns + ` FROM pages WHERE path IN (` + placeholders(len(paths)) + `) ORDER BY level`
	return s.queryPages(ctx, "find pages by paths", false, query, stringArgs(paths)...)
}

func (s *SQLStore) FindPages(ctx context.Context, q PageQuery) ([]Page, error) {
	const query = `
		SELECT ` + lightColumns + `
		FROM pages
		WHERE path >= ? AND path < ? AND level > ? AND level <= ?
		ORDER BY level, rank, path
	`
	return s.queryPages(ctx, "find pages", false, query, q.PathFrom, q.PathTo, q.LevelAbove, q.LevelAtMost)
}

func (s *SQLStore) ListPages(ctx context.Context) ([]Page, error) {
	return s.queryPages(ctx, "list pages", true, `SELECT `+fullColumns+` FROM pages ORDER BY level, path`)
}

// SearchPages returns matching pages with their areas.
func (s *SQLStore) SearchPages(ctx context.Context, q SearchQuery) ([]Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(q.Term))) + "%"
	args := []any{pattern, pattern}
	typeClause := ""
	if q.Type != "" {
		typeClause = "AND type = ?"
		args = append(args, q.Type)
	}
	args = append(args, limit)
	query := `
		SELECT ` + fullColumns + `
		FROM pages
		WHERE (LOWER(title) LIKE ? ESCAPE '\' OR slug LIKE ? ESCAPE '\') ` + typeClause + `
		ORDER BY level, rank
		LIMIT ?
	`
	return s.queryPages(ctx, "search pages", true, query, args...)
}

func (s *SQLStore) CountPages(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM pages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

func (s *SQLStore) InsertPage(ctx context.Context, page Page) (Page, error) {
	now := time.Now().UTC()
	page.CreatedAt, page.UpdatedAt = now, now
	page.Areas = copyAreas(page.Areas)
	areas, err := json.Marshal(page.Areas)
	if err != nil {
		return Page{}, fmt.Errorf("encode areas: %w", err)
	}
	_, err = s.db.ExecContext(ctx, rebind(s.dialect, `
		INSERT INTO pages (id, slug, path, level, rank, type, title, areas, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), page.ID, page.Slug, nullIfEmpty(page.Path), page.Level, page.Rank, page.Type, page.Title, string(areas), now, now)
	if isUniqueViolation(err) {
		return Page{}, fmt.Errorf("insert page %s: %w", page.Slug, ErrConflict)
	}
	if err != nil {
		return Page{}, fmt.Errorf("insert page: %w", err)
	}
	return page, nil
}

// UpdatePage overwrites the mutable fields of the page identified by page.ID.
// Rank and creation time are left untouched.
func (s *SQLStore) UpdatePage(ctx context.Context, page Page) (Page, error) {
	now := time.Now().UTC()
	areas, err := json.Marshal(copyAreas(page.Areas))
	if err != nil {
		return Page{}, fmt.Errorf("encode areas: %w", err)
	}
	result, err := s.db.ExecContext(ctx, rebind(s.dialect, `
		UPDATE pages
		SET slug=?, path=?, level=?, type=?, title=?, areas=?, updated_at=?
		WHERE id=?
	`), page.Slug, nullIfEmpty(page.Path), page.Level, page.Type, page.Title, string(areas), now, page.ID)
	if isUniqueViolation(err) {
		return Page{}, fmt.Errorf("update page %s: %w", page.Slug, ErrConflict)
	}
	if err != nil {
		return Page{}, fmt.Errorf("update page: %w", err)
	}
	if err := expectOneRow(result, "update page"); err != nil {
		return Page{}, err
	}
	return s.FindPageBySlug(ctx, page.Slug)
}

func (s *SQLStore) UpdatePageAddress(ctx context.Context, id, slug, path string) error {
	result, err := s.db.ExecContext(ctx, rebind(s.dialect, `UPDATE pages SET slug=?, path=?, updated_at=? WHERE id=?`),
		slug, nullIfEmpty(path), time.Now().UTC(), id)
	if isUniqueViolation(err) {
		return fmt.Errorf("update page address %s: %w", slug, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update page address: %w", err)
	}
	return expectOneRow(result, "update page address")
}

func (s *SQLStore) DeletePage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, rebind(s.dialect, `DELETE FROM pages WHERE id=?`), id)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	return expectOneRow(result, "delete page")
}

func (s *SQLStore) LookupRedirect(ctx context.Context, from string) (Redirect, error) {
	var item Redirect
	err := s.db.QueryRowContext(ctx, rebind(s.dialect, `SELECT from_slug, to_slug, updated_at FROM redirects WHERE from_slug=?`), from).
		Scan(&item.From, &item.To, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Redirect{}, ErrNotFound
	}
	if err != nil {
		return Redirect{}, fmt.Errorf("lookup redirect: %w", err)
	}
	return item, nil
}

func (s *SQLStore) UpsertRedirect(ctx context.Context, from, to string) error {
	_, err := s.db.ExecContext(ctx, rebind(s.dialect, `
		INSERT INTO redirects (from_slug, to_slug, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (from_slug) DO UPDATE SET to_slug=excluded.to_slug, updated_at=excluded.updated_at
	`), from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert redirect: %w", err)
	}
	return nil
}

// NextRank raises the parent's counter to at least floor and increments it in
// a single statement.
func (s *SQLStore) NextRank(ctx context.Context, parentID string, floor int) (int, error) {
	greatest := "GREATEST"
	if s.dialect == DialectSQLite {
		greatest = "MAX"
	}
	query := `
		INSERT INTO rank_counters (parent_id, last_rank)
		VALUES (?, ? + 1)
		ON CONFLICT (parent_id) DO UPDATE SET last_rank = ` + greatest + `(rank_counters.last_rank, ?) + 1
		RETURNING last_rank
	`
	var rank int
	if err := s.db.QueryRowContext(ctx, rebind(s.dialect, query), parentID, floor, floor).Scan(&rank); err != nil {
		return 0, fmt.Errorf("next rank: %w", err)
	}
	return rank, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

func (s *SQLStore) Close(context.Context) error {
	return s.db.Close()
}

func expectOneRow(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func stringArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
