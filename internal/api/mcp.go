package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/docchat/internal/composer"
	"github.com/kalambet/docchat/internal/library"
	"github.com/kalambet/docchat/internal/retrieval"
	"github.com/kalambet/docchat/internal/storage"
)

// MCPGenerator abstracts text generation for the MCP ask tool.
type MCPGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// MCPAssembler abstracts context assembly for the MCP layer.
type MCPAssembler interface {
	Assemble(ctx context.Context, scope retrieval.Scope, query string, budget int) (string, error)
}

// MCPSearcher runs raw similarity search for the search_library tool.
type MCPSearcher interface {
	Search(ctx context.Context, query string, topK int, fileIDs []string) ([]retrieval.ScoredRecord, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store         *storage.Store
	Library       *library.Manager
	Searcher      MCPSearcher
	Assembler     MCPAssembler
	Generator     MCPGenerator // optional; if nil, the ask tool returns an error
	ContextBudget int
}

// NewMCPServer creates an MCP server exposing the document library over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docchat",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("docchat: local document library with semantic search and grounded question answering."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_library",
			mcp.WithDescription("Semantically search the document library and return the most relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
			mcp.WithString("file_id", mcp.Description("Restrict the search to a single file")),
		),
		mcpSearchLibrary(deps),
	)

	s.AddTool(
		mcp.NewTool("list_files",
			mcp.WithDescription("List the files in the document library with their ingestion status."),
		),
		mcpListFiles(deps),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question grounded in the whole document library. Does not create a conversation."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"library://files",
			"Library Files",
			mcp.WithResourceDescription("Current library file metadata as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceFiles(deps),
	)

	return s
}

func mcpSearchLibrary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		var fileIDs []string
		if fileID := req.GetString("file_id", ""); fileID != "" {
			if _, err := deps.Library.Get(fileID); err != nil {
				return mcpError(fmt.Sprintf("unknown file %s", fileID)), nil
			}
			fileIDs = []string{fileID}
		}

		matches, err := deps.Searcher.Search(ctx, query, limit, fileIDs)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if len(matches) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			ChunkID  string  `json:"chunk_id"`
			FileID   string  `json:"file_id"`
			Filename string  `json:"filename"`
			Position int     `json:"position"`
			Text     string  `json:"text"`
			Score    float32 `json:"score"`
		}

		results := make([]chunkResult, len(matches))
		for i, m := range matches {
			name, err := deps.Library.Filename(m.FileID)
			if err != nil {
				name = m.FileID
			}
			results[i] = chunkResult{
				ChunkID:  m.ChunkID,
				FileID:   m.FileID,
				Filename: name,
				Position: m.Position,
				Text:     m.Text,
				Score:    m.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListFiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		files, err := deps.Store.ListFiles()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list files: %v", err)), nil
		}
		if files == nil {
			files = []storage.File{}
		}
		b, err := json.Marshal(files)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal files: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Generator == nil {
			return mcpError("answering not available: no generation model configured"), nil
		}

		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		contextBlock, err := deps.Assembler.Assemble(ctx, retrieval.LibraryScope(), question, deps.ContextBudget)
		if err != nil {
			return mcpError(fmt.Sprintf("retrieval failed: %v", err)), nil
		}

		prompt := composer.New().Compose(nil, "", contextBlock, question)
		answer, err := deps.Generator.Generate(ctx, prompt)
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}
		return mcpText(answer), nil
	}
}

func mcpResourceFiles(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		files, err := deps.Store.ListFiles()
		if err != nil {
			return nil, fmt.Errorf("failed to list files: %w", err)
		}

		type fileSummary struct {
			ID         string `json:"id"`
			Filename   string `json:"filename"`
			Status     string `json:"status"`
			ChunkCount int    `json:"chunk_count"`
			CreatedAt  string `json:"created_at"`
		}

		summaries := make([]fileSummary, len(files))
		for i, f := range files {
			summaries[i] = fileSummary{
				ID:         f.ID,
				Filename:   f.Filename,
				Status:     f.Status,
				ChunkCount: f.ChunkCount,
				CreatedAt:  f.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal files: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
