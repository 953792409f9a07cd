// Package mcptools exposes the research orchestrator as MCP tools.
package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// version is set by the linker at build time.
var version = "dev"

// NewResearchMCPServer creates an MCP server with the research tools registered.
func NewResearchMCPServer(svc *ResearchService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "deepresearch",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "conduct_research",
		Description: "Research a topic end to end: decompose it into subtopics, research them in parallel with web search, synthesize a cited report and verify every citation against the retrieved sources. Returns the final report.",
	}, svc.ConductResearch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cache",
		Description: "Delete every cached web search result. Returns the number of entries removed.",
	}, svc.ClearCache)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_job",
		Description: "Return the state of a research job: subtopics, per-subtopic outcome, citations and review findings.",
	}, svc.GetJob)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_jobs",
		Description: "List research jobs known to this server and its archive, optionally filtered by status.",
	}, svc.ListJobs)

	return server
}

// RunStdio serves the research tools over stdin/stdout until ctx is
// cancelled or the client disconnects.
func RunStdio(ctx context.Context, svc *ResearchService) error {
	return NewResearchMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP starts an HTTP server exposing the research tools using the
// streamable HTTP transport.
func RunHTTP(ctx context.Context, svc *ResearchService, addr string) error {
	server := NewResearchMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			svc.logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	svc.logger.Info("serving MCP over HTTP", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
