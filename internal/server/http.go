package server

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

const shutdownTimeout = 5 * time.Second

// HTTPServer serves a handler on a TCP address.
type HTTPServer struct {
	name   string
	server *http.Server
	logger logging.Logger
}

func NewHTTPServer(name, listenAddress string, handler http.Handler, logger logging.Logger) *HTTPServer {
	return &HTTPServer{
		name: name,
		server: &http.Server{
			Addr:              listenAddress,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", name),
	}
}

func (s *HTTPServer) Name() string { return s.name }

func (s *HTTPServer) Start() error {
	s.logger.With("listener", s.server.Addr).Info("http server running")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Stop() error {
	s.logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
