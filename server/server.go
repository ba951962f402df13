package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/resilience-core/logger"
	"github.com/kbukum/resilience-core/server/middleware"
)

// Server is an HTTP server backed by Gin, served over HTTP/1.1 and h2c.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	mux        *http.ServeMux
	h2s        *http2.Server
	config     Config
	log        *logger.Logger
	addr       atomic.Value
	serving    atomic.Bool
}

// New creates a Server. Call ApplyMiddleware before registering routes.
func New(cfg Config, log *logger.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	mux := http.NewServeMux()
	mux.Handle("/", engine)

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          120 * time.Second,
	}

	s := &Server{
		engine: engine,
		mux:    mux,
		h2s:    h2s,
		config: cfg,
		log:    log.WithComponent("server"),
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           h2c.NewHandler(mux, h2s),
			ReadTimeout:       time.Duration(cfg.ReadTimeout) * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:       time.Duration(cfg.IdleTimeout) * time.Second,
		},
	}
	s.addr.Store(s.httpServer.Addr)
	return s
}

// GinEngine returns the Gin engine for route registration.
func (s *Server) GinEngine() *gin.Engine {
	return s.engine
}

// Handler returns the root handler including server-level middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ApplyMiddleware wraps every route in recovery, request ids, request
// logging, CORS and the body size limit.
func (s *Server) ApplyMiddleware() {
	chain := middleware.Chain(
		middleware.Recovery(s.log),
		middleware.RequestID(),
		middleware.RequestLogger(s.log),
		middleware.CORS(&s.config.CORS),
		middleware.BodySizeLimit(s.config.MaxBodySize),
	)
	s.httpServer.Handler = h2c.NewHandler(chain(s.mux), s.h2s)
}

// Start binds the port and serves in a goroutine. It returns once the
// listener is bound.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.addr.Store(listener.Addr().String())
	s.serving.Store(true)

	go func() {
		defer s.serving.Store(false)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	s.log.Info("HTTP server started", logger.Fields("addr", s.Addr()))
	return nil
}

// Stop gracefully shuts down the server within ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("Server shutdown error", logger.Fields(logger.FieldError, err.Error()))
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.log.Info("HTTP server shut down")
	return nil
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	return s.addr.Load().(string)
}
