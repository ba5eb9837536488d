package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "pagetree",
		Usage: "hierarchical page tree service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "optional dotenv file loaded before the environment is read",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server",
				Action: serveAction,
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations (SQL) or ensure indexes (MongoDB)",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "rollback", Usage: "revert the newest N SQL migrations instead of applying"},
				},
				Action: migrateAction,
			},
			{
				Name:  "token",
				Usage: "print a signed bearer token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true, Usage: "user id"},
					&cli.StringFlag{Name: "name", Usage: "display name (defaults to the user id)"},
					&cli.StringFlag{Name: "role", Value: "viewer", Usage: "guest, viewer, editor or admin"},
				},
				Action: tokenAction,
			},
			{
				Name:  "tree",
				Usage: "print the page tree",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "slug", Value: "/", Usage: "subtree root"},
					&cli.IntFlag{Name: "depth", Value: 3, Usage: "levels to print"},
				},
				Action: treeAction,
			},
			{
				Name:   "reindex",
				Usage:  "push every page to the search index",
				Action: reindexAction,
			},
			{
				Name:  "mcp",
				Usage: "serve read-only MCP tools over stdio or HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "http", Usage: "listen address for streamable HTTP (stdio when empty)"},
					&cli.StringFlag{Name: "token", Usage: "bearer token identifying the tool caller (guest when empty)"},
				},
				Action: mcpAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
