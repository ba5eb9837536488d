package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"pagetree/internal/app"
	"pagetree/internal/config"
	"pagetree/internal/counter"
	"pagetree/internal/metrics"
	"pagetree/internal/pagetype"
	"pagetree/internal/render"
	"pagetree/internal/revision"
	"pagetree/internal/search"
	"pagetree/internal/store"
)

// runtime owns every external connection a command opens.
type runtime struct {
	config  config.Config
	service *app.Service
	meili   *search.Meili
	closers []func()
}

func loadConfig(c *cli.Context) (config.Config, error) {
	return config.Load(c.String("env-file"))
}

func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	ctx := c.Context
	rt := &runtime{config: cfg}

	pages, err := store.Connect(ctx, cfg.DatabaseURL, cfg.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.closers = append(rt.closers, func() { _ = pages.Close(context.Background()) })

	deps := app.Deps{
		Store:   pages,
		Metrics: metrics.New(nil),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for sibling rank counters")
		ranks, err := counter.NewRedisCounter(cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = ranks.Close() })
		deps.Ranks = ranks
	}

	if cfg.TypesFile != "" {
		types, err := pagetype.Load(cfg.TypesFile)
		if err != nil {
			rt.Close()
			return nil, err
		}
		deps.Types = types
	}

	if cfg.TemplatesDir != "" {
		renderer, err := render.NewHTML(cfg.TemplatesDir)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("load templates: %w", err)
		}
		deps.Renderer = renderer
	}

	if cfg.RevisionsDir != "" {
		if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
			rt.Close()
			return nil, fmt.Errorf("create revisions dir: %w", err)
		}
		deps.Revisions = revision.New(cfg.RevisionsDir)
	}

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		rt.meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(rt.meili, pages)
	rt.closers = append(rt.closers, searchService.Close)
	deps.Search = searchService

	service, err := app.New(cfg, deps)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.service = service
	return rt, nil
}

// Close releases connections in reverse order of opening.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
