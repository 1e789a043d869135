// Package server exposes the lookup engine over HTTP. The API surface is
// small: single lookup, batch lookup, stats and a health probe. Successful
// single-lookup responses are memoized in a short TTL cache keyed by the
// rounded coordinates.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/jellydator/ttlcache/v3"

	"github.com/edgemaps/districtd/internal/engine"
)

type Server struct {
	log *slog.Logger
	cfg Config

	handler *Handler

	httpSrv      *http.Server
	shutdownOnce sync.Once
}

func New(log *slog.Logger, cfg Config) (*Server, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var respCache *ttlcache.Cache[string, engine.Result]
	if cfg.ResponseCacheTTL > 0 {
		respCache = ttlcache.New(
			ttlcache.WithTTL[string, engine.Result](cfg.ResponseCacheTTL),
		)
	}

	h, err := NewHandler(log, cfg, respCache)
	if err != nil {
		return nil, err
	}

	return &Server{
		log:     log,
		cfg:     cfg,
		handler: h,
	}, nil
}

// Serve runs the HTTP listener until ctx is cancelled, then drains within
// the shutdown timeout. The engine itself is shut down by the caller.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.httpSrv = &http.Server{Handler: s.handler.Router()}

	if s.handler.respCache != nil {
		go s.handler.respCache.Start()
	}

	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	s.log.Info("http server listening", "addr", listener.Addr().String())
	err := s.httpSrv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) shutdown() {
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if s.httpSrv != nil {
			_ = s.httpSrv.Shutdown(ctx)
		}
		if s.handler.respCache != nil {
			s.handler.respCache.Stop()
		}
	})
}
