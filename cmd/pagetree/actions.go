package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v2"

	"pagetree/internal/app"
	"pagetree/internal/mcp"
	"pagetree/internal/rbac"
	"pagetree/internal/store"
	"pagetree/internal/tree"
)

func serveAction(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.service.Bootstrap(c.Context); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(rt.service, rt.config.CORSOrigin)
	srv := &http.Server{
		Addr:              rt.config.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("pagetree listening on %s (mount %s)", rt.config.Addr, rt.config.Mount)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-sigCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}

func migrateAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	backend, err := store.BackendFor(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	if steps := c.Int("rollback"); steps > 0 {
		if backend != store.BackendPostgres && backend != store.BackendSQLite {
			return fmt.Errorf("rollback is only supported for SQL backends, not %s", backend)
		}
		db, dialect, err := store.Open(c.Context, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		reverted, err := store.RollbackMigrations(c.Context, db, dialect, store.MigrationsPath(cfg.MigrationsDir, dialect), steps)
		for _, name := range reverted {
			fmt.Printf("reverted %s\n", name)
		}
		return err
	}

	pages, err := store.Connect(c.Context, cfg.DatabaseURL, cfg.MigrationsDir)
	if err != nil {
		return err
	}
	defer pages.Close(context.Background())
	fmt.Printf("%s schema is up to date\n", backend)
	return nil
}

func tokenAction(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	name := c.String("name")
	if name == "" {
		name = c.String("user")
	}
	token, claims, err := rt.service.IssueToken(c.String("user"), name, c.String("role"))
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "role=%s expires=%s\n", claims.Role, time.Unix(claims.Exp, 0).Format(time.RFC3339))
	return nil
}

func treeAction(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	admin := rbac.Requester{ID: "cli", Name: "cli", Role: rbac.RoleAdmin}
	root, err := rt.service.Tree(c.Context, c.String("slug"), c.Int("depth"), admin)
	if err != nil {
		return err
	}
	printNode(root, 0)
	return nil
}

func printNode(node *tree.Node, indent int) {
	fmt.Printf("%s%s  %s (rank %d, %s)\n", strings.Repeat("  ", indent), node.Slug, node.Title, node.Rank, node.Type)
	for _, child := range node.Children {
		printNode(child, indent+1)
	}
}

func reindexAction(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.meili == nil {
		return errors.New("MEILI_URL is not configured")
	}
	if !rt.meili.Healthy() {
		return fmt.Errorf("meilisearch at %s is not reachable", rt.config.MeiliURL)
	}
	n, err := rt.service.Reindex(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d pages\n", n)
	return nil
}

func mcpAction(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	requester := rbac.Guest()
	if token := c.String("token"); token != "" {
		requester, err = rt.service.Requester("Bearer " + token)
		if err != nil {
			return fmt.Errorf("mcp token: %w", err)
		}
	}

	s := mcp.NewServer(rt.service, requester)
	if addr := c.String("http"); addr != "" {
		log.Printf("pagetree MCP listening on %s", addr)
		return server.NewStreamableHTTPServer(s).Start(addr)
	}
	return server.ServeStdio(s)
}
