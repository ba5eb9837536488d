package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Backend names the storage engine selected by a DATABASE_URL scheme.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
	BackendMongo    Backend = "mongodb"
	BackendMemory   Backend = "memory"
)

func BackendFor(databaseURL string) (Backend, error) {
	lower := strings.ToLower(strings.TrimSpace(databaseURL))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return BackendPostgres, nil
	case strings.HasPrefix(lower, "sqlite:"):
		return BackendSQLite, nil
	case strings.HasPrefix(lower, "mongodb://"), strings.HasPrefix(lower, "mongodb+srv://"):
		return BackendMongo, nil
	case strings.HasPrefix(lower, "memory:"):
		return BackendMemory, nil
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", databaseURL)
	}
}

// Open opens and pings a SQL database for a postgres:// or sqlite: URL.
func Open(ctx context.Context, databaseURL string) (*sql.DB, Dialect, error) {
	backend, err := BackendFor(databaseURL)
	if err != nil {
		return nil, "", err
	}

	var db *sql.DB
	var dialect Dialect
	switch backend {
	case BackendPostgres:
		db, err = sql.Open("pgx", databaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("open db: %w", err)
		}
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
		dialect = DialectPostgres
	case BackendSQLite:
		dsn := sqliteDSN(databaseURL)
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, "", err
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, "", fmt.Errorf("open db: %w", err)
		}
		// every connection to :memory: is a separate database
		if strings.Contains(dsn, ":memory:") {
			db.SetMaxOpenConns(1)
		}
		dialect = DialectSQLite
	default:
		return nil, "", fmt.Errorf("%s is not a sql backend", backend)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping db: %w", err)
	}
	return db, dialect, nil
}

func sqliteDSN(databaseURL string) string {
	dsn := strings.TrimSpace(databaseURL)
	dsn = dsn[len("sqlite:"):]
	dsn = strings.TrimPrefix(dsn, "//")
	if dsn == "" {
		return ":memory:"
	}
	return dsn
}

func ensureSQLiteDir(dsn string) error {
	if strings.Contains(dsn, ":memory:") {
		return nil
	}
	file := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(file, '?'); i >= 0 {
		file = file[:i]
	}
	dir := filepath.Dir(file)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite dir: %w", err)
	}
	return nil
}

// rebind rewrites '?' placeholders into the dialect's form.
func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
