package store

import (
	"context"
	"fmt"
)

// Pages is the full capability set every backend provides.
type Pages interface {
	FindPageBySlug(ctx context.Context, slug string) (Page, error)
	FindPagesBySlugs(ctx context.Context, slugs []string) ([]Page, error)
	FindPagesByPaths(ctx context.Context, paths []string) ([]Page, error)
	FindPages(ctx context.Context, q PageQuery) ([]Page, error)
	ListPages(ctx context.Context) ([]Page, error)
	SearchPages(ctx context.Context, q SearchQuery) ([]Page, error)
	CountPages(ctx context.Context) (int, error)
	InsertPage(ctx context.Context, page Page) (Page, error)
	UpdatePage(ctx context.Context, page Page) (Page, error)
	UpdatePageAddress(ctx context.Context, id, slug, path string) error
	DeletePage(ctx context.Context, id string) error
	LookupRedirect(ctx context.Context, from string) (Redirect, error)
	UpsertRedirect(ctx context.Context, from, to string) error
	NextRank(ctx context.Context, parentID string, floor int) (int, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var (
	_ Pages = (*SQLStore)(nil)
	_ Pages = (*MongoStore)(nil)
	_ Pages = (*MemoryStore)(nil)
)

// Connect opens the backend selected by the URL scheme. SQL backends have
// their migrations applied from migrationsRoot/<dialect>.
func Connect(ctx context.Context, databaseURL, migrationsRoot string) (Pages, error) {
	backend, err := BackendFor(databaseURL)
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendMongo:
		return OpenMongo(ctx, databaseURL)
	default:
		db, dialect, err := Open(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		if migrationsRoot != "" {
			if err := ApplyMigrations(ctx, db, dialect, MigrationsPath(migrationsRoot, dialect)); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		return NewSQLStore(db, dialect), nil
	}
}
