package server

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ironsheep/imagecell/internal/codec"
	"github.com/ironsheep/imagecell/internal/config"
	"github.com/ironsheep/imagecell/internal/imagecell"
	"github.com/ironsheep/imagecell/internal/imaging"
	"github.com/ironsheep/imagecell/internal/store"
)

// Version is reported in the initialize response.
var Version = "0.1.0"

// Server handles MCP protocol communication
type Server struct {
	cache      *imaging.ImageCache
	store      *store.Store
	placements *store.Placements
	cells      config.CellsConfig
	logger     *slog.Logger

	dbMu   sync.Mutex
	db     *sql.DB
	dbPath func() (string, error)
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a new MCP server instance. A nil cfg uses defaults and a nil
// logger uses slog.Default().
func New(cfg *config.Config, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	sc := cfg.GetStoreConfig()
	decoder := imagecell.NewDecoder(codec.New(codec.WithMaxPixels(sc.MaxPixels)), logger)
	st := store.New(decoder,
		store.WithBudget(sc.BudgetBytes),
		store.WithMaxInputBytes(sc.MaxInputBytes),
		store.WithWorkers(sc.Workers),
		store.WithLogger(logger),
	)

	return &Server{
		cache:      imaging.NewImageCache(int64(sc.MaxInputBytes)),
		store:      st,
		placements: store.NewPlacements(st),
		cells:      cfg.GetCellsConfig(),
		logger:     logger,
		dbPath:     cfg.SnapshotPath,
	}
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve processes newline-delimited JSON-RPC requests from r until r is
// exhausted or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Requests may carry base64 image data.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 96*1024*1024)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("failed to parse request", "error", err)
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.logger.Error("failed to encode response", "error", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// Close drops cached files and releases the snapshot database, if it was
// opened.
func (s *Server) Close() error {
	s.cache.Clear()

	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// snapshotDB opens the snapshot database on first use.
func (s *Server) snapshotDB() (*sql.DB, error) {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	path, err := s.dbPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve snapshot path: %w", err)
	}
	db, err := store.OpenDB(path)
	if err != nil {
		return nil, err
	}
	s.logger.Info("snapshot database opened", "path", path)
	s.db = db
	return db, nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "imagecell",
				"version": Version,
			},
		},
	}
}
