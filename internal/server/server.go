package server

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

// Server is a long running listener. Start blocks until the server stops,
// Stop makes it return.
type Server interface {
	Name() string
	Start() error
	Stop() error
}

type ServerManager struct {
	servers []Server
	logger  logging.Logger
}

func NewServerManager(logger logging.Logger, servers ...Server) *ServerManager {
	return &ServerManager{
		servers: servers,
		logger:  logger,
	}
}

// Run starts every server and blocks until ctx is cancelled or one of them
// fails, then stops them all. A server failing to start takes the others
// down with it.
func (n *ServerManager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range n.servers {
		g.Go(func() error {
			if err := s.Start(); err != nil {
				n.logger.Errorf("error running %s server: %v", s.Name(), err)
				return errors.Wrapf(err, "%s server", s.Name())
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		n.logger.Info("shutting down servers")
		return n.stopAll()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (n *ServerManager) stopAll() error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range n.servers {
		wg.Add(1)
		go func(s Server) {
			defer wg.Done()
			if err := s.Stop(); err != nil {
				n.logger.Errorf("error stopping %s server: %v", s.Name(), err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	if len(errs) > 0 {
		return errors.Errorf("errors occurred while stopping servers: %v", errs)
	}
	return nil
}
