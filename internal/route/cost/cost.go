// Package cost turns resolved paths into ALTO cost values. Each cost metric
// is a Provider, looked up by metric name in a Registry.
package cost

import (
	"net/netip"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/DrC0ns0le/net-alto/internal/metrics"
	"github.com/DrC0ns0le/net-alto/internal/route/finder"
	"github.com/DrC0ns0le/net-alto/internal/topology"
	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

var (
	ErrUnknownMetric   = errors.New("unknown cost metric")
	ErrUnsupportedMode = errors.New("unsupported cost mode")
)

// Mode is the ALTO cost mode.
type Mode string

const (
	ModeNumerical Mode = "numerical"
	ModeOrdinal   Mode = "ordinal"
)

// Endpoint is a query endpoint already mapped to the device owning it.
// ID is the string the client used and keys the result.
type Endpoint struct {
	ID     string
	Device string
	Addr   netip.Addr
}

func (e Endpoint) target() finder.Target {
	return finder.Target{Device: e.Device, Addr: e.Addr}
}

// Result maps source ID to destination ID to cost. Pairs without a cost are
// absent, as are sources without any destination.
type Result map[string]map[string]float64

// LoadSource provides live interface throughput in bytes per second.
type LoadSource interface {
	TxLoad(device, local string) (float64, bool)
	RxLoad(device, local string) (float64, bool)
}

// Query is the state one cost request is computed against. The topology
// must be valid.
type Query struct {
	Topology *topology.Topology
	Routes   finder.RouteSource
	Loads    LoadSource
	Logger   logging.Logger
}

func (q Query) resolver() *finder.Resolver {
	return finder.NewResolver(q.Topology, q.Routes)
}

func (q Query) logger() logging.Logger {
	if q.Logger == nil {
		return logging.Discard()
	}
	return q.Logger
}

// Provider computes one cost metric.
type Provider interface {
	Metric() string
	Mode() Mode
	Cost(q Query, srcs, dsts []Endpoint) Result
}

// pairFunc computes the cost of a single pair, ok false omits it.
type pairFunc func(src, dst Endpoint) (float64, bool)

// pairwise evaluates fn for every source and destination and assembles the
// result.
func pairwise(q Query, metric string, srcs, dsts []Endpoint, fn pairFunc) Result {
	start := time.Now()
	defer func() {
		metrics.CostDuration.WithLabelValues(metric).Observe(time.Since(start).Seconds())
	}()

	log := q.logger().With("metric", metric)
	computed := metrics.CostPairs.WithLabelValues(metric, metrics.OutcomeComputed)
	omitted := metrics.CostPairs.WithLabelValues(metric, metrics.OutcomeOmitted)

	result := make(Result, len(srcs))
	for _, src := range srcs {
		row := make(map[string]float64, len(dsts))
		for _, dst := range dsts {
			v, ok := fn(src, dst)
			if !ok {
				omitted.Inc()
				log.Debugf("no cost from %s (%s) to %s (%s)", src.ID, src.Device, dst.ID, dst.Device)
				continue
			}
			computed.Inc()
			row[dst.ID] = v
		}
		if len(row) > 0 {
			result[src.ID] = row
		}
	}
	return result
}

// Ordinal ranks each source's destinations by cost, 1 being the cheapest.
// Equal costs share a rank.
func Ordinal(r Result) Result {
	out := make(Result, len(r))
	for src, row := range r {
		dsts := make([]string, 0, len(row))
		for dst := range row {
			dsts = append(dsts, dst)
		}
		sort.Slice(dsts, func(i, j int) bool {
			if row[dsts[i]] != row[dsts[j]] {
				return row[dsts[i]] < row[dsts[j]]
			}
			return dsts[i] < dsts[j]
		})

		ranked := make(map[string]float64, len(dsts))
		rank := 0
		for i, dst := range dsts {
			if i == 0 || row[dst] != row[dsts[i-1]] {
				rank = i + 1
			}
			ranked[dst] = float64(rank)
		}
		out[src] = ranked
	}
	return out
}

// Registry is the table of known cost metrics.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry holds the four built in metrics.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(PathHops{}, RouteHops{}, OSPF{}, ResidualBandwidth{})
	return r
}

func (r *Registry) Register(p Provider) error {
	if _, ok := r.providers[p.Metric()]; ok {
		return errors.Errorf("cost metric %s already registered", p.Metric())
	}
	r.providers[p.Metric()] = p
	return nil
}

// Lookup returns the provider for metric.
func (r *Registry) Lookup(metric string) (Provider, error) {
	p, ok := r.providers[metric]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMetric, "%q", metric)
	}
	return p, nil
}

// Metrics returns the registered metric names, sorted.
func (r *Registry) Metrics() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Compute runs the provider for metric in the requested mode. Numerical
// providers also answer ordinal requests by ranking their costs.
func (r *Registry) Compute(q Query, metric string, mode Mode, srcs, dsts []Endpoint) (Result, error) {
	p, err := r.Lookup(metric)
	if err != nil {
		return nil, err
	}

	switch {
	case mode == p.Mode():
		metrics.CostRequests.WithLabelValues(metric).Inc()
		return p.Cost(q, srcs, dsts), nil
	case mode == ModeOrdinal && p.Mode() == ModeNumerical:
		metrics.CostRequests.WithLabelValues(metric).Inc()
		return Ordinal(p.Cost(q, srcs, dsts)), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedMode, "metric %s does not support mode %q", metric, mode)
}
