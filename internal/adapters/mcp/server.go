package mcpadapter

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/movie-search-assistant/internal/core/ports"
)

const (
	ServerName    = "movie-search-assistant"
	ServerVersion = "1.0.0"
)

// Server exposes movie search and answering as MCP tools.
type Server struct {
	mcp      *server.MCPServer
	service  ports.MovieSearchService
	sessions ports.SessionStore
}

func NewServer(service ports.MovieSearchService, sessions ports.SessionStore) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		service:  service,
		sessions: sessions,
	}
	s.mcp.AddTool(searchMoviesTool(), s.handleSearchMovies)
	s.mcp.AddTool(askMoviesTool(), s.handleAskMovies)
	return s
}

// ServeStdio blocks until stdin closes.
func (s *Server) ServeStdio(_ context.Context) error {
	return server.ServeStdio(s.mcp)
}
