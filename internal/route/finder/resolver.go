// Package finder replays forwarding decisions through the device route
// tables to find the path traffic takes between two devices.
package finder

import (
	"iter"
	"net/netip"

	"github.com/DrC0ns0le/net-alto/internal/route"
	"github.com/DrC0ns0le/net-alto/internal/topology"
)

// RouteSource provides the current route table of a device.
type RouteSource interface {
	Routes(device string) route.Table
}

// Target is the destination of a path: the device owning Addr.
type Target struct {
	Device string
	Addr   netip.Addr
}

// Resolver walks route tables over one topology snapshot.
type Resolver struct {
	topo   *topology.Topology
	routes RouteSource
}

func NewResolver(topo *topology.Topology, routes RouteSource) *Resolver {
	return &Resolver{topo: topo, routes: routes}
}

// Hop is one forwarding decision: the route used on Device and the device
// it leads to.
type Hop struct {
	Device string
	Route  route.Record
	Next   string
}

// next applies the route table of device to addr. The next device is found
// through the egress interface: its global name, the adapter on the other
// end of that link and the device owning it.
func (r *Resolver) next(device string, addr netip.Addr) (Hop, bool) {
	rec, ok := r.routes.Routes(device).Lookup(addr)
	if !ok {
		return Hop{}, false
	}

	global, ok := r.topo.ResolveGlobalName(device, rec.Interface)
	if !ok {
		return Hop{}, false
	}
	peer, ok := r.topo.FindPeerAdapter(global)
	if !ok {
		return Hop{}, false
	}
	nextDevice, _, ok := r.topo.FindOwningDevice(peer)
	if !ok {
		return Hop{}, false
	}

	return Hop{Device: device, Route: rec, Next: nextDevice}, true
}

// ResolvePath yields the devices from src to the target, both inclusive.
// The sequence ends early when a device has no route to the target or a
// device would be visited twice, so it never yields more devices than the
// topology has. src equal to the target device yields just src.
func (r *Resolver) ResolvePath(src string, dst Target) iter.Seq[string] {
	return func(yield func(string) bool) {
		if !yield(src) {
			return
		}
		if src == dst.Device {
			return
		}

		visited := map[string]bool{src: true}
		current := src
		for len(visited) < r.topo.Len() {
			hop, ok := r.next(current, dst.Addr)
			if !ok || visited[hop.Next] {
				return
			}
			visited[hop.Next] = true
			if !yield(hop.Next) {
				return
			}
			if hop.Next == dst.Device {
				return
			}
			current = hop.Next
		}
	}
}

// Path collects ResolvePath. ok is false when the target was not reached.
func (r *Resolver) Path(src string, dst Target) (path []string, ok bool) {
	for device := range r.ResolvePath(src, dst) {
		path = append(path, device)
	}
	return path, len(path) > 0 && path[len(path)-1] == dst.Device
}

// Decisions replays route lookups from src until the target is reached,
// revisiting devices if the tables say so. At most twice the device count
// decisions are taken, a walk that runs longer is a forwarding loop and ok
// is false, as is a dead end.
func (r *Resolver) Decisions(src string, dst Target) (hops []Hop, ok bool) {
	if src == dst.Device {
		return nil, true
	}

	limit := 2 * r.topo.Len()
	current := src
	for len(hops) < limit {
		hop, ok := r.next(current, dst.Addr)
		if !ok {
			return hops, false
		}
		hops = append(hops, hop)
		if hop.Next == dst.Device {
			return hops, true
		}
		current = hop.Next
	}
	return hops, false
}
