package mcp

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/detectd/internal/detect"
	"github.com/fyrsmithlabs/detectd/internal/logging"
	"github.com/fyrsmithlabs/detectd/internal/telemetry"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server is an MCP server backed by a detect.Service.
type Server struct {
	mcp     *mcp.Server
	svc     *detect.Service
	metrics *Metrics
	logger  *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "detectd")
	Name string

	// Version is the server version (default: "dev")
	Version string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "detectd",
		Version: "dev",
	}
}

// NewServer creates an MCP server with all tools registered. tel and logger
// may be nil.
func NewServer(cfg *Config, svc *detect.Service, tel *telemetry.Telemetry, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if svc == nil {
		return nil, fmt.Errorf("detect service is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		svc:     svc,
		metrics: NewMetrics(tel.Meter(instrumentationName), logger.Underlying()),
		logger:  logger.Named("mcp"),
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
