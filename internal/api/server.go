package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/boardd/internal/audit"
	"github.com/nerrad567/boardd/internal/daemon"
	"github.com/nerrad567/boardd/internal/device"
	"github.com/nerrad567/boardd/internal/infrastructure/config"
	"github.com/nerrad567/boardd/internal/infrastructure/logging"
)

const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// requests during shutdown.
	gracefulShutdownTimeout = 10 * time.Second

	defaultCommandTimeout = 5 * time.Second
)

// Controller is the subset of *daemon.Client the API drives.
type Controller interface {
	KeymapSet(ctx context.Context, board daemon.BoardID, layer, output, input uint8, value uint16) error
	SetColor(ctx context.Context, board daemon.BoardID, index uint8, color daemon.RGB) error
	SetBrightness(ctx context.Context, board daemon.BoardID, index uint8, brightness int32) error
	SetMode(ctx context.Context, board daemon.BoardID, layer, mode, speed uint8) error
	LedSave(ctx context.Context, board daemon.BoardID) error
	SetMatrixGetRate(ctx context.Context, rate time.Duration) error
	Refresh(ctx context.Context) error
}

// HistoryReader reads recorded board history.
// Satisfied by *device.SQLiteHistoryRepository.
type HistoryReader interface {
	GetHistory(ctx context.Context, board daemon.BoardID, limit int) ([]device.HistoryEntry, error)
}

// AuditLog records and lists configuration commands.
// Satisfied by *audit.SQLiteRepository.
type AuditLog interface {
	Create(ctx context.Context, e *audit.Entry) error
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Controller Controller
	History    HistoryReader // Optional; history endpoints return 503 without it
	Audit      AuditLog      // Optional; commands are not recorded without it
	Version    string

	// CommandTimeout bounds each command request. Default: 5s.
	CommandTimeout time.Duration
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, the WebSocket hub and
// the board view fed by HandleEvent and HandleMatrix.
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	cfg            config.APIConfig
	wsCfg          config.WebSocketConfig
	secCfg         config.SecurityConfig
	logger         *logging.Logger
	controller     Controller
	history        HistoryReader
	audit          AuditLog
	version        string
	commandTimeout time.Duration

	boards  *boardSet
	hub     *Hub
	tickets *ticketStore

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates an API server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	timeout := deps.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	logger := deps.Logger.Component("api")
	return &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		secCfg:         deps.Security,
		logger:         logger,
		controller:     deps.Controller,
		history:        deps.History,
		audit:          deps.Audit,
		version:        deps.Version,
		commandTimeout: timeout,
		boards:         newBoardSet(),
		hub:            NewHub(deps.WS, logger),
		tickets:        newTicketStore(),
	}, nil
}

// Start binds the listener and serves in the background. Bind errors such as
// a port already in use are returned directly.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// HandleEvent updates the board view and broadcasts the event to WebSocket
// subscribers.
func (s *Server) HandleEvent(ev daemon.Event) {
	switch ev.Kind {
	case daemon.EventBoardAdded:
		view := s.boards.add(ev.BoardID, ev.Board)
		s.hub.Broadcast(ChannelBoardAdded, view)
	case daemon.EventBoardRemoved:
		s.boards.remove(ev.BoardID)
		s.hub.Broadcast(ChannelBoardRemoved, map[string]any{"board_id": ev.BoardID})
	}
}

// HandleMatrix records the latest matrix and broadcasts it. Matrices for a
// removed board are dropped until it is added again.
func (s *Server) HandleMatrix(id daemon.BoardID, m daemon.Matrix) {
	if !s.boards.setMatrix(id, m) {
		return
	}
	s.hub.Broadcast(ChannelBoardMatrix, matrixPayload{
		BoardID: id,
		Matrix:  m,
		Pressed: m.Pressed(),
	})
}
