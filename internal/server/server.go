package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/queryhawk/queryhawk/internal/config"
)

type Server struct {
	cfg     *config.Config
	http    *http.Server
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func New(cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	router, err := s.setupRoutes()
	if err != nil {
		return nil, fmt.Errorf("setup routes: %w", err)
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := s.http.Shutdown(shutdownCtx)

		for _, c := range s.closers {
			if closeErr := c.close(); closeErr != nil {
				log.Warn().Err(closeErr).Str("component", c.name).Msg("error during close")
			} else {
				log.Info().Str("component", c.name).Msg("closed")
			}
		}

		return err
	case err := <-errCh:
		return err
	}
}

func (s *Server) onShutdown(name string, close func() error) {
	s.closers = append(s.closers, namedCloser{name: name, close: close})
}
