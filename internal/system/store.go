// Package system keeps the live state reported by the nodes: route tables,
// interface loads and interface addresses, keyed by device hostname.
package system

import (
	"maps"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DrC0ns0le/net-alto/internal/route"
)

// Load is the interface throughput derived from two counter samples.
type Load struct {
	TxBps float64 // bytes per second
	RxBps float64
	At    time.Time
}

// Counters is a raw interface byte counter sample.
type Counters struct {
	Interface string
	TxBytes   uint64
	RxBytes   uint64
}

// Snapshot is the immutable live state of one device. KernelRoutes and
// RouterRoutes are kept apart since nodes upload them independently.
type Snapshot struct {
	Device       string
	KernelRoutes route.Table
	RouterRoutes route.Table
	Loads        map[string]Load
	Addresses    map[string][]netip.Prefix
	Updated      time.Time

	counters  map[string]Counters
	countedAt time.Time
}

// Routes returns RouterRoutes if it holds any route, else KernelRoutes.
func (snap Snapshot) Routes() route.Table {
	if snap.RouterRoutes.Len() > 0 {
		return snap.RouterRoutes
	}
	return snap.KernelRoutes
}

type owner struct {
	device string
	local  string
}

type state struct {
	devices map[string]*Snapshot
	owners  map[netip.Addr]owner
}

// Store holds the latest snapshot of every device. Writers build a new
// state and publish it with a single atomic store, readers never lock.
type Store struct {
	current atomic.Pointer[state]
	mu      sync.Mutex // serialises writers

	maxAge time.Duration
	now    func() time.Time
}

// NewStore returns an empty store. Loads older than maxAge are ignored by
// TxLoad and RxLoad, zero disables the check.
func NewStore(maxAge time.Duration) *Store {
	s := &Store{maxAge: maxAge, now: time.Now}
	s.current.Store(&state{
		devices: map[string]*Snapshot{},
		owners:  map[netip.Addr]owner{},
	})
	return s
}

// update applies fn to a copy of the device snapshot and publishes it.
func (s *Store) update(device string, fn func(snap *Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load()
	next := &state{
		devices: maps.Clone(old.devices),
		owners:  old.owners,
	}

	snap := &Snapshot{Device: device}
	if prev, ok := old.devices[device]; ok {
		*snap = *prev
	}
	fn(snap)
	snap.Updated = s.now()
	next.devices[device] = snap

	if !maps.EqualFunc(snap.Addresses, old.addressesOf(device), equalPrefixes) {
		next.owners = buildOwners(next.devices)
	}

	s.current.Store(next)
}

func (st *state) addressesOf(device string) map[string][]netip.Prefix {
	if snap, ok := st.devices[device]; ok {
		return snap.Addresses
	}
	return nil
}

func equalPrefixes(a, b []netip.Prefix) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// buildOwners indexes every reported address. An address reported twice
// belongs to the device and interface whose names sort first.
func buildOwners(devices map[string]*Snapshot) map[netip.Addr]owner {
	owners := make(map[netip.Addr]owner)
	for _, device := range slices.Sorted(maps.Keys(devices)) {
		addresses := devices[device].Addresses
		for _, local := range slices.Sorted(maps.Keys(addresses)) {
			for _, p := range addresses[local] {
				addr := p.Addr().Unmap()
				if _, taken := owners[addr]; !taken {
					owners[addr] = owner{device: device, local: local}
				}
			}
		}
	}
	return owners
}

// UpdateKernelRoutes replaces the kernel route table of a device. It
// reports false when the table is identical to the current one and nothing
// was published.
func (s *Store) UpdateKernelRoutes(device string, table route.Table) bool {
	return s.updateRoutes(device, table, func(snap *Snapshot) *route.Table { return &snap.KernelRoutes })
}

// UpdateRouterRoutes replaces the routing daemon table of a device, see
// UpdateKernelRoutes.
func (s *Store) UpdateRouterRoutes(device string, table route.Table) bool {
	return s.updateRoutes(device, table, func(snap *Snapshot) *route.Table { return &snap.RouterRoutes })
}

func (s *Store) updateRoutes(device string, table route.Table, field func(*Snapshot) *route.Table) bool {
	if snap, ok := s.current.Load().devices[device]; ok {
		if cur := field(snap); cur.Len() == table.Len() && cur.Hash() == table.Hash() {
			return false
		}
	}
	s.update(device, func(snap *Snapshot) {
		*field(snap) = table
	})
	return true
}

// UpdateCounters records a counter sample taken at the given time and
// derives loads from the previous one. Interfaces seen for the first time,
// or whose counters went backwards, get no load until the next sample.
func (s *Store) UpdateCounters(device string, samples []Counters, at time.Time) {
	s.update(device, func(snap *Snapshot) {
		elapsed := at.Sub(snap.countedAt).Seconds()

		counters := make(map[string]Counters, len(samples))
		loads := make(map[string]Load, len(samples))
		for _, c := range samples {
			counters[c.Interface] = c

			prev, ok := snap.counters[c.Interface]
			if !ok || elapsed <= 0 || c.TxBytes < prev.TxBytes || c.RxBytes < prev.RxBytes {
				continue
			}
			loads[c.Interface] = Load{
				TxBps: float64(c.TxBytes-prev.TxBytes) / elapsed,
				RxBps: float64(c.RxBytes-prev.RxBytes) / elapsed,
				At:    at,
			}
		}

		snap.counters = counters
		snap.countedAt = at
		snap.Loads = loads
	})
}

// UpdateAddresses replaces the interface addresses of a device.
func (s *Store) UpdateAddresses(device string, addresses map[string][]netip.Prefix) {
	s.update(device, func(snap *Snapshot) {
		snap.Addresses = maps.Clone(addresses)
	})
}

// Snapshot returns the current state of a device. The maps it carries must
// not be modified.
func (s *Store) Snapshot(device string) (Snapshot, bool) {
	snap, ok := s.current.Load().devices[device]
	if !ok {
		return Snapshot{}, false
	}
	return *snap, true
}

// Routes returns the table forwarding decisions are made with: the routing
// daemon table when the device uploaded a non-empty one, the kernel table
// otherwise. It is empty if neither was uploaded.
func (s *Store) Routes(device string) route.Table {
	snap, ok := s.current.Load().devices[device]
	if !ok {
		return route.Table{}
	}
	return snap.Routes()
}

// Devices returns the hostnames that reported anything.
func (s *Store) Devices() []string {
	devices := s.current.Load().devices
	out := make([]string, 0, len(devices))
	for device := range devices {
		out = append(out, device)
	}
	return out
}

func (s *Store) load(device, local string) (Load, bool) {
	snap, ok := s.current.Load().devices[device]
	if !ok {
		return Load{}, false
	}
	l, ok := snap.Loads[local]
	if !ok {
		return Load{}, false
	}
	if s.maxAge > 0 && s.now().Sub(l.At) > s.maxAge {
		return Load{}, false
	}
	return l, true
}

// TxLoad returns the transmit rate of an interface in bytes per second.
func (s *Store) TxLoad(device, local string) (float64, bool) {
	l, ok := s.load(device, local)
	return l.TxBps, ok
}

// RxLoad returns the receive rate of an interface in bytes per second.
func (s *Store) RxLoad(device, local string) (float64, bool) {
	l, ok := s.load(device, local)
	return l.RxBps, ok
}

// Owner returns the device and interface reporting addr.
func (s *Store) Owner(addr netip.Addr) (device, local string, ok bool) {
	o, ok := s.current.Load().owners[addr.Unmap()]
	return o.device, o.local, ok
}

// Addresses returns every reported interface prefix per device.
func (s *Store) Addresses() map[string][]netip.Prefix {
	out := make(map[string][]netip.Prefix)
	for device, snap := range s.current.Load().devices {
		for _, prefixes := range snap.Addresses {
			out[device] = append(out[device], prefixes...)
		}
	}
	return out
}
