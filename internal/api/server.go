package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"newsroom/internal/config"
	"newsroom/internal/digest"
	"newsroom/internal/scrape"
	"newsroom/internal/storage"
)

// Server holds the dependencies for the HTTP trigger surface.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	runner     *scrape.Runner
	digester   *digest.Generator
	pgStore    *storage.PostgresStore
	redisStore *storage.RedisStore
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, runner *scrape.Runner, digester *digest.Generator, ps *storage.PostgresStore, rs *storage.RedisStore, logger *zap.Logger) *Server {
	s := &Server{
		config:     cfg,
		runner:     runner,
		digester:   digester,
		pgStore:    ps,
		redisStore: rs,
		logger:     logger,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Minute, // scrape runs are synchronous
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
