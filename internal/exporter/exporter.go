// Package exporter periodically records, for every pair of devices, the
// path the route tables select next to the shortest topology path.
package exporter

import (
	"context"
	"net/netip"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/DrC0ns0le/net-alto/internal/metrics"
	"github.com/DrC0ns0le/net-alto/internal/route/finder"
	"github.com/DrC0ns0le/net-alto/internal/system"
	"github.com/DrC0ns0le/net-alto/internal/topology"
	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

// LiveSource provides the route tables and reported addresses of devices.
type LiveSource interface {
	finder.RouteSource
	Snapshot(device string) (system.Snapshot, bool)
}

type Exporter struct {
	topology *topology.Holder
	live     LiveSource
	indexer  Indexer
	interval time.Duration
	logger   logging.Logger
	now      func() time.Time

	mu   sync.Mutex
	prev map[string][]string

	ctx    context.Context
	cancel context.CancelFunc
}

func New(holder *topology.Holder, live LiveSource, indexer Indexer, interval time.Duration, logger logging.Logger) *Exporter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Exporter{
		topology: holder,
		live:     live,
		indexer:  indexer,
		interval: interval,
		logger:   logger.With("component", "exporter"),
		now:      time.Now,
		prev:     make(map[string][]string),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (e *Exporter) Name() string { return "exporter" }

// Start seeds the previous route paths from the index and exports every
// interval until Stop.
func (e *Exporter) Start() error {
	if err := e.Seed(e.ctx); err != nil {
		e.logger.Warnf("starting without route history: %v", err)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := e.Export(e.ctx); err != nil {
				e.logger.Errorf("route export failed: %v", err)
			}
		}
	}
}

func (e *Exporter) Stop() error {
	e.cancel()
	return nil
}

// Seed loads the last recorded route path per pair.
func (e *Exporter) Seed(ctx context.Context) error {
	paths, err := e.indexer.LatestPaths(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for key, path := range paths {
		if _, ok := e.prev[key]; !ok {
			e.prev[key] = path
		}
	}
	e.logger.Infof("seeded %d route paths", len(paths))
	return nil
}

// Export builds a record for every ordered device pair whose route path
// reaches the destination and sends them to the indexer.
func (e *Exporter) Export(ctx context.Context) ([]RouteRecord, error) {
	t := e.topology.Load()
	if t == nil {
		return nil, errors.Wrap(topology.ErrTopologyInvalid, "no topology loaded")
	}

	records := e.build(t)
	if len(records) == 0 {
		return nil, nil
	}

	failed, err := e.indexer.Index(ctx, records)
	metrics.ExportedRecords.WithLabelValues(metrics.OutcomeSuccess).Add(float64(len(records) - failed))
	metrics.ExportedRecords.WithLabelValues(metrics.OutcomeFailure).Add(float64(failed))
	if err != nil {
		return records, err
	}

	e.logger.Infof("exported %d route records, %d failed", len(records), failed)
	return records, nil
}

func (e *Exporter) build(t *topology.Topology) []RouteRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolver := finder.NewResolver(t, e.live)
	at := e.now()
	devices := t.Devices()

	var records []RouteRecord
	for _, src := range devices {
		for _, dst := range devices {
			if src == dst {
				continue
			}

			addr, ok := e.targetAddr(t, dst)
			if !ok {
				e.logger.Debugf("no address known for %s", dst)
				continue
			}
			routePath, ok := resolver.Path(src, finder.Target{Device: dst, Addr: addr})
			if !ok {
				e.logger.Debugf("route from %s does not reach %s: %v", src, dst, routePath)
				continue
			}
			topoPath, ok := t.ShortestPath(src, dst)
			if !ok {
				continue
			}

			key := pairKey(src, dst)
			records = append(records, newRecord(at, routePath, topoPath, e.prev[key]))
			e.prev[key] = slices.Clone(routePath)
		}
	}
	return records
}

// targetAddr picks the address a device is reached at: the first one it
// reported, else the first one of its description.
func (e *Exporter) targetAddr(t *topology.Topology, device string) (netip.Addr, bool) {
	if snap, ok := e.live.Snapshot(device); ok && len(snap.Addresses) > 0 {
		locals := make([]string, 0, len(snap.Addresses))
		for local := range snap.Addresses {
			locals = append(locals, local)
		}
		sort.Strings(locals)
		for _, local := range locals {
			if prefixes := snap.Addresses[local]; len(prefixes) > 0 {
				return prefixes[0].Addr(), true
			}
		}
	}

	d, ok := t.Device(device)
	if !ok {
		return netip.Addr{}, false
	}
	for _, a := range d.Adapters {
		if len(a.Addresses) > 0 {
			return a.Addresses[0].Addr(), true
		}
	}
	return netip.Addr{}, false
}
