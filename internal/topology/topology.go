// Package topology holds the device, adapter and link graph of the network
// the ALTO server describes.
package topology

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/simple"
)

// ErrTopologyInvalid is returned when a description references adapters no
// device owns, or is otherwise structurally broken.
var ErrTopologyInvalid = errors.New("topology invalid")

// DeviceClass changes how costs treat a device. User devices are traffic
// endpoints that report no live load.
type DeviceClass string

const (
	ClassRouter DeviceClass = "router"
	ClassUser   DeviceClass = "user"
)

type Adapter struct {
	Global    string
	Local     string
	Addresses []netip.Prefix
}

type Device struct {
	Hostname string
	Class    DeviceClass
	Adapters []Adapter
}

// IsUser reports whether the device is a traffic endpoint.
func (d Device) IsUser() bool { return d.Class == ClassUser }

// Link is a point to point connection between two global adapters.
type Link struct {
	Name        string
	A, B        string
	Capacity    float64
	HasCapacity bool
	Metric      int
	HasMetric   bool
}

// Peer returns the other end of the link.
func (l Link) Peer(global string) (string, bool) {
	switch global {
	case l.A:
		return l.B, true
	case l.B:
		return l.A, true
	}
	return "", false
}

// Endpoint is one side of a link as seen from a device.
type Endpoint struct {
	Device string
	Global string
	Local  string
}

// Connection describes the direct link between two devices.
type Connection struct {
	From Endpoint
	To   Endpoint
	Link Link
}

type owner struct {
	device string
	local  string
}

// Topology is an immutable snapshot built from a Description. Readers may
// share it freely, a reload builds a new one.
type Topology struct {
	devices   map[string]*Device
	hostnames []string
	links     []Link

	owners  map[string]owner
	linkIdx map[string]int
	addrs   map[netip.Addr]owner

	graph *simple.UndirectedGraph
	ids   map[string]int64

	problems []string
	hash     uint64
}

// New builds a topology from a description. If the description is broken
// the returned topology is marked invalid and the error wraps
// ErrTopologyInvalid.
func New(desc Description) (*Topology, error) {
	t := &Topology{
		devices: make(map[string]*Device, len(desc.Names)),
		owners:  make(map[string]owner),
		linkIdx: make(map[string]int),
		addrs:   make(map[netip.Addr]owner),
		ids:     make(map[string]int64, len(desc.Names)),
	}

	t.buildDevices(desc)
	t.buildLinks(desc)
	t.buildAddresses(desc)
	t.buildGraph()
	t.hash = hashDescription(desc)

	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t *Topology) invalid(format string, args ...any) {
	t.problems = append(t.problems, fmt.Sprintf(format, args...))
}

func (t *Topology) buildDevices(desc Description) {
	for hostname := range desc.Names {
		t.hostnames = append(t.hostnames, hostname)
	}
	sort.Strings(t.hostnames)

	for _, hostname := range t.hostnames {
		class := ClassRouter
		if c, ok := desc.Types[hostname]; ok {
			class = c
		}
		if class != ClassRouter && class != ClassUser {
			t.invalid("device %s: unknown type %q", hostname, class)
		}

		dev := &Device{Hostname: hostname, Class: class}
		locals := make(map[string]bool)
		for _, pair := range desc.Names[hostname] {
			if len(pair) != 2 {
				t.invalid("device %s: adapter entry %v is not a [global, local] pair", hostname, pair)
				continue
			}
			global, local := pair[0], pair[1]
			if locals[local] {
				t.invalid("device %s: duplicate local adapter %s", hostname, local)
			}
			locals[local] = true
			if prev, ok := t.owners[global]; ok {
				t.invalid("adapter %s owned by both %s and %s", global, prev.device, hostname)
			} else {
				t.owners[global] = owner{device: hostname, local: local}
			}
			dev.Adapters = append(dev.Adapters, Adapter{Global: global, Local: local})
		}
		t.devices[hostname] = dev
	}

	for hostname := range desc.Types {
		if _, ok := t.devices[hostname]; !ok {
			t.invalid("type given for unknown device %s", hostname)
		}
	}
}

func (t *Topology) buildLinks(desc Description) {
	names := make([]string, 0, len(desc.Links))
	for name := range desc.Links {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ends := desc.Links[name]
		if len(ends) != 2 {
			t.invalid("link %s: expected 2 adapters, got %d", name, len(ends))
			continue
		}

		link := Link{Name: name, A: ends[0], B: ends[1]}
		if p, ok := desc.Params[name]; ok {
			if p.Capacity != nil {
				link.Capacity, link.HasCapacity = *p.Capacity, true
			}
			if p.Metric != nil {
				link.Metric, link.HasMetric = *p.Metric, true
			}
		}

		idx := len(t.links)
		t.links = append(t.links, link)
		for _, global := range ends {
			if _, ok := t.linkIdx[global]; ok {
				t.invalid("adapter %s is on more than one link", global)
				continue
			}
			t.linkIdx[global] = idx
		}
	}

	for name := range desc.Params {
		if _, ok := desc.Links[name]; !ok {
			t.invalid("params given for unknown link %s", name)
		}
	}
}

func (t *Topology) buildAddresses(desc Description) {
	for hostname, adapters := range desc.Addresses {
		dev, ok := t.devices[hostname]
		if !ok {
			t.invalid("addresses given for unknown device %s", hostname)
			continue
		}
		for local, cidrs := range adapters {
			i := dev.adapterIndex(local)
			if i < 0 {
				t.invalid("device %s: addresses given for unknown adapter %s", hostname, local)
				continue
			}
			for _, cidr := range cidrs {
				prefix, err := netip.ParsePrefix(cidr)
				if err != nil {
					t.invalid("device %s adapter %s: %v", hostname, local, err)
					continue
				}
				dev.Adapters[i].Addresses = append(dev.Adapters[i].Addresses, prefix)
				t.addrs[prefix.Addr()] = owner{device: hostname, local: local}
			}
		}
	}
}

func (t *Topology) buildGraph() {
	t.graph = simple.NewUndirectedGraph()
	for i, hostname := range t.hostnames {
		t.ids[hostname] = int64(i)
		t.graph.AddNode(simple.Node(i))
	}

	for _, link := range t.links {
		a, okA := t.owners[link.A]
		b, okB := t.owners[link.B]
		if !okA || !okB || a.device == b.device {
			continue
		}
		t.graph.SetEdge(simple.Edge{F: simple.Node(t.ids[a.device]), T: simple.Node(t.ids[b.device])})
	}
}

func (d *Device) adapterIndex(local string) int {
	for i, a := range d.Adapters {
		if a.Local == local {
			return i
		}
	}
	return -1
}

// Validate checks that every link endpoint is owned by a known device, along
// with the other structural rules enforced while building.
func (t *Topology) Validate() error {
	problems := append([]string(nil), t.problems...)
	for _, link := range t.links {
		for _, global := range []string{link.A, link.B} {
			if _, ok := t.owners[global]; !ok {
				problems = append(problems, fmt.Sprintf("link %s: adapter %s is not owned by any device", link.Name, global))
			}
		}
	}

	if len(problems) > 0 {
		return errors.Wrap(ErrTopologyInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Valid reports whether the topology may be queried for paths and costs.
func (t *Topology) Valid() bool {
	return t != nil && t.Validate() == nil
}

// Hash fingerprints the description the topology was built from.
func (t *Topology) Hash() uint64 { return t.hash }

func hashDescription(desc Description) uint64 {
	// map keys are sorted by encoding/json, so equal descriptions hash equally
	raw, err := json.Marshal(desc)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(raw)
}

// ResolveLocalName maps a global adapter name to the device local one.
func (t *Topology) ResolveLocalName(device, global string) (string, bool) {
	dev, ok := t.devices[device]
	if !ok {
		return "", false
	}
	for _, a := range dev.Adapters {
		if a.Global == global {
			return a.Local, true
		}
	}
	return "", false
}

// ResolveGlobalName maps a device local adapter name to its global one.
func (t *Topology) ResolveGlobalName(device, local string) (string, bool) {
	dev, ok := t.devices[device]
	if !ok {
		return "", false
	}
	if i := dev.adapterIndex(local); i >= 0 {
		return dev.Adapters[i].Global, true
	}
	return "", false
}

// FindPeerAdapter returns the adapter at the other end of the link the given
// adapter is on.
func (t *Topology) FindPeerAdapter(global string) (string, bool) {
	link, ok := t.AdapterLink(global)
	if !ok {
		return "", false
	}
	return link.Peer(global)
}

// FindOwningDevice returns the device holding a global adapter and the
// adapter's local name there.
func (t *Topology) FindOwningDevice(global string) (device, local string, ok bool) {
	o, ok := t.owners[global]
	return o.device, o.local, ok
}

// FindConnectingAdapters returns the adapters of a direct link from device a
// to device b. Parallel links resolve to the first adapter of a in
// description order.
func (t *Topology) FindConnectingAdapters(a, b string) (Connection, bool) {
	dev, ok := t.devices[a]
	if !ok {
		return Connection{}, false
	}

	for _, adapter := range dev.Adapters {
		link, ok := t.AdapterLink(adapter.Global)
		if !ok {
			continue
		}
		peer, _ := link.Peer(adapter.Global)
		o, ok := t.owners[peer]
		if !ok || o.device != b {
			continue
		}
		return Connection{
			From: Endpoint{Device: a, Global: adapter.Global, Local: adapter.Local},
			To:   Endpoint{Device: b, Global: peer, Local: o.local},
			Link: link,
		}, true
	}
	return Connection{}, false
}

// LinkBetween returns the link directly connecting two devices.
func (t *Topology) LinkBetween(a, b string) (Link, bool) {
	conn, ok := t.FindConnectingAdapters(a, b)
	return conn.Link, ok
}

// AdapterLink returns the link a global adapter is on.
func (t *Topology) AdapterLink(global string) (Link, bool) {
	idx, ok := t.linkIdx[global]
	if !ok {
		return Link{}, false
	}
	return t.links[idx], true
}

func (t *Topology) Device(hostname string) (Device, bool) {
	dev, ok := t.devices[hostname]
	if !ok {
		return Device{}, false
	}
	return *dev, true
}

// Devices returns the hostnames in sorted order.
func (t *Topology) Devices() []string {
	return append([]string(nil), t.hostnames...)
}

// Links returns the links sorted by name.
func (t *Topology) Links() []Link {
	return append([]Link(nil), t.links...)
}

func (t *Topology) Len() int { return len(t.hostnames) }

// Neighbors returns the sorted hostnames directly linked to device.
func (t *Topology) Neighbors(device string) []string {
	id, ok := t.ids[device]
	if !ok {
		return nil
	}
	var out []string
	nodes := t.graph.From(id)
	for nodes.Next() {
		out = append(out, t.hostnames[nodes.Node().ID()])
	}
	sort.Strings(out)
	return out
}

// StaticOwner returns the device and local adapter configured with addr in
// the description.
func (t *Topology) StaticOwner(addr netip.Addr) (device, local string, ok bool) {
	o, ok := t.addrs[addr.Unmap()]
	return o.device, o.local, ok
}
