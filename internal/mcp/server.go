// Package mcp exposes a read-only view of the page tree as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"pagetree/internal/rbac"
	"pagetree/internal/search"
	"pagetree/internal/store"
	"pagetree/internal/tree"
)

const Version = "0.1.0"

// Source is the tree surface the tools read through. Every call carries the
// requester the server was created for.
type Source interface {
	Page(ctx context.Context, slug string, requester rbac.Requester) (store.Page, error)
	Tree(ctx context.Context, slug string, depth int, requester rbac.Requester) (*tree.Node, error)
	Search(ctx context.Context, q search.Query, requester rbac.Requester) search.Response
}

type GetPageRequest struct {
	Slug string `json:"slug"`
}

type GetPageResponse struct {
	Page     store.Page `json:"page"`
	Markdown string     `json:"markdown"`
}

type ListChildrenRequest struct {
	Slug  string `json:"slug"`
	Depth int    `json:"depth"`
}

type SearchPagesRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func NewServer(source Source, requester rbac.Requester) *server.MCPServer {
	s := server.NewMCPServer(
		"Page Tree MCP",
		Version,
		server.WithToolCapabilities(false),
	)

	getPage := mcp.NewTool("get_page",
		mcp.WithDescription("Get a page by its address, with its content areas converted to markdown"),
		mcp.WithString("slug",
			mcp.Required(),
			mcp.Description("The page address, e.g. /about/team"),
		),
	)
	s.AddTool(getPage, mcp.NewTypedToolHandler(getPageHandler(source, requester)))

	listChildren := mcp.NewTool("list_children",
		mcp.WithDescription("List the pages below an address as a nested tree in rank order"),
		mcp.WithString("slug",
			mcp.Required(),
			mcp.Description("The parent page address"),
		),
		mcp.WithNumber("depth",
			mcp.Description("How many levels to include (default 1)"),
		),
	)
	s.AddTool(listChildren, mcp.NewTypedToolHandler(listChildrenHandler(source, requester)))

	searchPages := mcp.NewTool("search_pages",
		mcp.WithDescription("Full-text search over page titles and content"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search terms"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default 20)"),
		),
	)
	s.AddTool(searchPages, mcp.NewTypedToolHandler(searchPagesHandler(source, requester)))

	return s
}

func getPageHandler(source Source, requester rbac.Requester) func(ctx context.Context, request mcp.CallToolRequest, args GetPageRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args GetPageRequest) (*mcp.CallToolResult, error) {
		if args.Slug == "" {
			return mcp.NewToolResultError("slug is required"), nil
		}
		page, err := source.Page(ctx, args.Slug, requester)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get page: %v", err)), nil
		}
		return jsonResult(GetPageResponse{Page: page, Markdown: search.Markdown(page.Areas)})
	}
}

func listChildrenHandler(source Source, requester rbac.Requester) func(ctx context.Context, request mcp.CallToolRequest, args ListChildrenRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args ListChildrenRequest) (*mcp.CallToolResult, error) {
		if args.Slug == "" {
			return mcp.NewToolResultError("slug is required"), nil
		}
		node, err := source.Tree(ctx, args.Slug, max(args.Depth, 1), requester)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list children: %v", err)), nil
		}
		return jsonResult(node)
	}
}

func searchPagesHandler(source Source, requester rbac.Requester) func(ctx context.Context, request mcp.CallToolRequest, args SearchPagesRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args SearchPagesRequest) (*mcp.CallToolResult, error) {
		if args.Query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		return jsonResult(source.Search(ctx, search.Query{Text: args.Query, Limit: args.Limit}, requester))
	}
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}
