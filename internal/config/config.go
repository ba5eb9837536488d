package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	MigrationsDir string
	RedisURL      string
	// Search is disabled when MeiliURL is empty.
	MeiliURL       string
	MeiliMasterKey string
	TypesFile      string
	TemplatesDir   string
	RevisionsDir   string
	TokenSecret    string
	AccessTTL      time.Duration
	CORSOrigin     string
	Mount          string
	ChildrenDepth  int
	PublicRead     bool
	// CascadeConcurrency bounds parallel descendant rewrites during a rename.
	CascadeConcurrency int
}

// Load reads an optional .env file and then the environment. Variables that
// are already set win over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	return Config{
		Addr:               getenv("API_ADDR", ":8787"),
		DatabaseURL:        getenv("DATABASE_URL", "sqlite:./data/pagetree.db"),
		MigrationsDir:      getenv("PAGETREE_MIGRATIONS_DIR", "./db/migrations"),
		RedisURL:           getenv("REDIS_URL", ""),
		MeiliURL:           getenv("MEILI_URL", ""),
		MeiliMasterKey:     getenv("MEILI_MASTER_KEY", ""),
		TypesFile:          getenv("PAGETREE_TYPES_FILE", ""),
		TemplatesDir:       getenv("PAGETREE_TEMPLATES_DIR", ""),
		RevisionsDir:       getenv("PAGETREE_REVISIONS_DIR", "./data/revisions"),
		TokenSecret:        getenv("PAGETREE_TOKEN_SECRET", "pagetree-dev-secret"),
		AccessTTL:          time.Duration(getenvInt("PAGETREE_ACCESS_TTL_SECONDS", 3600)) * time.Second,
		CORSOrigin:         getenv("PAGETREE_CORS_ORIGIN", "*"),
		Mount:              getenv("PAGETREE_MOUNT", "/"),
		ChildrenDepth:      getenvInt("PAGETREE_CHILDREN_DEPTH", 1),
		PublicRead:         getenvBool("PAGETREE_PUBLIC_READ", true),
		CascadeConcurrency: getenvInt("PAGETREE_CASCADE_CONCURRENCY", 8),
	}
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
