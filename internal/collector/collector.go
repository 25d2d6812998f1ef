// Package collector gathers the route tables, interface counters and
// interface addresses of a node and uploads them to the ALTO server.
package collector

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DrC0ns0le/net-alto/internal/system"
	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

type Config struct {
	Device   string
	Interval time.Duration
	// Vtysh enables uploading the routing daemon table.
	Vtysh bool
}

type Collector struct {
	cfg      Config
	host     Host
	uploader Uploader
	logger   logging.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, host Host, uploader Uploader, logger logging.Logger) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		cfg:      cfg,
		host:     host,
		uploader: uploader,
		logger:   logger.With("component", "collector", "device", cfg.Device),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Collector) Name() string { return "collector" }

// Start runs Collect every interval until Stop.
func (c *Collector) Start() error {
	return c.Run(c.ctx)
}

func (c *Collector) Stop() error {
	c.cancel()
	return nil
}

// Run collects immediately and then every interval until ctx is done.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Infof("collecting every %s", c.cfg.Interval)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := c.Collect(ctx); err != nil {
			c.logger.Warnf("collection incomplete: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Collect reads and uploads every kind of node state once. A failing
// upload does not hold back the others, the first error is returned after
// all of them finished.
func (c *Collector) Collect(ctx context.Context) error {
	var g errgroup.Group

	c.run(ctx, &g, system.UploadKernelRoutes, func() (any, error) {
		lines, err := c.host.KernelRoutes()
		if err != nil {
			return nil, err
		}
		return system.RouteUpload{ByteOrder: system.HostByteOrder(), Lines: lines}, nil
	})

	if c.cfg.Vtysh {
		c.run(ctx, &g, system.UploadRouterRoutes, func() (any, error) {
			lines, err := c.host.RouterRoutes(ctx)
			if err != nil {
				return nil, err
			}
			return system.RouteUpload{Lines: lines}, nil
		})
	}

	c.run(ctx, &g, system.UploadAdapterStats, func() (any, error) {
		adapters, err := c.host.Counters()
		if err != nil {
			return nil, err
		}
		return system.AdapterStatsUpload{Timestamp: c.now(), Adapters: adapters}, nil
	})

	c.run(ctx, &g, system.UploadAddresses, func() (any, error) {
		return c.host.Addresses()
	})

	return g.Wait()
}

func (c *Collector) run(ctx context.Context, g *errgroup.Group, kind string, read func() (any, error)) {
	g.Go(func() error {
		payload, err := read()
		if err == nil {
			err = c.uploader.Upload(ctx, c.cfg.Device, kind, payload)
		}
		if err != nil {
			c.logger.Errorf("%s: %v", kind, err)
			return err
		}
		c.logger.Debugf("%s uploaded", kind)
		return nil
	})
}
