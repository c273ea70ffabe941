package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forgeci/forgeci/pkg/config"
	"github.com/forgeci/forgeci/pkg/dispatch"
	"github.com/forgeci/forgeci/pkg/store"
	"github.com/forgeci/forgeci/pkg/webhook"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the webhook gateway HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log            logrus.FieldLogger
	cfg            *config.Config
	store          store.Store
	publisher      dispatch.Publisher
	githubVerifier *webhook.GitHubVerifier
	gitlabVerifier *webhook.GitLabVerifier
	httpServer     *http.Server
	wg             sync.WaitGroup
}

// NewServer creates a new gateway server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
) Server {
	return &server{
		log: log.WithField("component", "api"),
		cfg: cfg,
	}
}

// Start opens the store, connects the dispatch queue, and starts the
// HTTP server.
func (s *server) Start(ctx context.Context) error {
	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	publisher, err := dispatch.NewPublisher(s.log, &s.cfg.Queue)
	if err != nil {
		return fmt.Errorf("creating dispatch publisher: %w", err)
	}

	s.publisher = publisher

	s.githubVerifier = webhook.NewGitHubVerifier(
		s.log, s.cfg.Webhooks.GitHubSecret, s.cfg.Webhooks.Validate,
	)
	s.gitlabVerifier = webhook.NewGitLabVerifier(
		s.log, s.cfg.Webhooks.GitLabToken, s.cfg.Webhooks.Validate,
	)

	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("Gateway server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server, the dispatch queue, and
// the store.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.log.WithError(err).Warn("Dispatch publisher close error")
		}
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("Gateway server stopped")

	return nil
}
