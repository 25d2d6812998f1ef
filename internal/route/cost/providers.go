package cost

import (
	"math"

	"github.com/DrC0ns0le/net-alto/internal/route/finder"
	"github.com/DrC0ns0le/net-alto/internal/topology"
)

// Registered metric names.
const (
	MetricPathHops          = "pathhops"
	MetricRouteHops         = "routehops"
	MetricOSPF              = "ospf"
	MetricResidualBandwidth = "residual-pathbandwidth"
)

// PathHops counts the links on the shortest topology path.
type PathHops struct{}

func (PathHops) Metric() string { return MetricPathHops }
func (PathHops) Mode() Mode     { return ModeNumerical }

func (p PathHops) Cost(q Query, srcs, dsts []Endpoint) Result {
	return pairwise(q, p.Metric(), srcs, dsts, func(src, dst Endpoint) (float64, bool) {
		n, ok := q.Topology.HopCount(src.Device, dst.Device)
		return float64(n), ok
	})
}

// RouteHops counts the forwarding decisions taken when replaying the route
// tables. It differs from PathHops when routing and topology disagree.
type RouteHops struct{}

func (RouteHops) Metric() string { return MetricRouteHops }
func (RouteHops) Mode() Mode     { return ModeNumerical }

func (p RouteHops) Cost(q Query, srcs, dsts []Endpoint) Result {
	r := q.resolver()
	return pairwise(q, p.Metric(), srcs, dsts, func(src, dst Endpoint) (float64, bool) {
		hops, ok := r.Decisions(src.Device, dst.target())
		return float64(len(hops)), ok
	})
}

// OSPF sums the configured metric of every link the routed traffic leaves
// through. The link is taken from the egress interface of each decision, so
// parallel links between two devices are told apart. One link without a
// metric leaves the pair without a cost.
type OSPF struct{}

func (OSPF) Metric() string { return MetricOSPF }
func (OSPF) Mode() Mode     { return ModeNumerical }

func (p OSPF) Cost(q Query, srcs, dsts []Endpoint) Result {
	r := q.resolver()
	log := q.logger()
	return pairwise(q, p.Metric(), srcs, dsts, func(src, dst Endpoint) (float64, bool) {
		hops, ok := r.Decisions(src.Device, dst.target())
		if !ok {
			return 0, false
		}

		total := 0
		for _, hop := range hops {
			link, ok := egressLink(q, hop)
			if !ok || !link.HasMetric {
				log.Debugf("no link metric from %s via %s", hop.Device, hop.Route.Interface)
				return 0, false
			}
			total += link.Metric
		}
		return float64(total), true
	})
}

func egressLink(q Query, hop finder.Hop) (topology.Link, bool) {
	global, ok := q.Topology.ResolveGlobalName(hop.Device, hop.Route.Interface)
	if !ok {
		return topology.Link{}, false
	}
	return q.Topology.AdapterLink(global)
}

// ResidualBandwidth is the bottleneck of capacity minus live load along the
// routed path, in Mbps.
type ResidualBandwidth struct{}

func (ResidualBandwidth) Metric() string { return MetricResidualBandwidth }
func (ResidualBandwidth) Mode() Mode     { return ModeNumerical }

func (p ResidualBandwidth) Cost(q Query, srcs, dsts []Endpoint) Result {
	r := q.resolver()
	return pairwise(q, p.Metric(), srcs, dsts, func(src, dst Endpoint) (float64, bool) {
		path, ok := r.Path(src.Device, dst.target())
		if !ok {
			return 0, false
		}
		return p.pathResidual(q, path)
	})
}

// pathResidual returns the smallest segment residual. A path without
// segments has no bottleneck and no cost.
func (p ResidualBandwidth) pathResidual(q Query, path []string) (float64, bool) {
	if len(path) < 2 {
		return 0, false
	}

	bottleneck := math.Inf(1)
	for i := 0; i+1 < len(path); i++ {
		residual, ok := p.segmentResidual(q, path[i], path[i+1])
		if !ok {
			return 0, false
		}
		bottleneck = min(bottleneck, residual)
	}
	return bottleneck, true
}

// segmentResidual is the spare capacity from a to b. Traffic towards a user
// device is measured as the sender's transmit load, anything else as the
// receiver's receive load. Links between two user devices and adapters
// without a load sample count as idle.
func (p ResidualBandwidth) segmentResidual(q Query, a, b string) (float64, bool) {
	log := q.logger()

	conn, ok := q.Topology.FindConnectingAdapters(a, b)
	if !ok {
		log.Warnf("unable to find adapters connecting %s to %s", a, b)
		return 0, false
	}
	if !conn.Link.HasCapacity {
		log.Warnf("no known capacity from %s to %s", a, b)
		return 0, false
	}
	capacity := conn.Link.Capacity

	devA, _ := q.Topology.Device(a)
	devB, _ := q.Topology.Device(b)
	if devA.IsUser() && devB.IsUser() {
		return capacity, true
	}
	if q.Loads == nil {
		return capacity, true
	}

	var (
		load    float64
		sampled bool
	)
	if devB.IsUser() {
		load, sampled = q.Loads.TxLoad(a, conn.From.Local)
	} else {
		load, sampled = q.Loads.RxLoad(b, conn.To.Local)
	}
	if !sampled {
		return capacity, true
	}

	return max(0, capacity-bytesToMbps(load)), true
}

func bytesToMbps(bytesPerSecond float64) float64 {
	return bytesPerSecond * 8 / 1e6
}
