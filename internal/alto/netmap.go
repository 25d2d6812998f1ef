package alto

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	"go4.org/netipx"

	"github.com/DrC0ns0le/net-alto/internal/topology"
)

const pidPrefix = "pid-"

// PIDName is the network map PID of a device.
func PIDName(device string) string { return pidPrefix + device }

// networkMap holds one PID per device, made of the host prefixes of its
// interface addresses. An address reported by more than one device goes
// to the device endpoint resolution picks, so PIDs never overlap.
type networkMap struct {
	pids   map[string]*netipx.IPSet
	owners map[netip.Addr]string
	tag    string
}

func (s *Service) buildNetworkMap(t *topology.Topology) (*networkMap, error) {
	var candidates []netip.Addr
	for _, device := range t.Devices() {
		dev, _ := t.Device(device)
		for _, a := range dev.Adapters {
			for _, p := range a.Addresses {
				candidates = append(candidates, p.Addr().Unmap())
			}
		}
	}
	for _, prefixes := range s.live.Addresses() {
		for _, p := range prefixes {
			candidates = append(candidates, p.Addr().Unmap())
		}
	}

	nm := &networkMap{
		pids:   make(map[string]*netipx.IPSet),
		owners: make(map[netip.Addr]string, len(candidates)),
	}

	hosts := make(map[string][]netip.Addr)
	for _, addr := range candidates {
		if _, done := nm.owners[addr]; done {
			continue
		}
		device, err := s.owner(t, addr)
		if err != nil {
			continue
		}
		nm.owners[addr] = PIDName(device)
		hosts[device] = append(hosts[device], addr)
	}

	h := xxhash.New()
	binary.Write(h, binary.LittleEndian, t.Hash())

	devices := make([]string, 0, len(hosts))
	for device := range hosts {
		devices = append(devices, device)
	}
	sort.Strings(devices)

	for _, device := range devices {
		var b netipx.IPSetBuilder
		for _, addr := range hosts[device] {
			b.AddPrefix(netip.PrefixFrom(addr, addr.BitLen()))
		}
		set, err := b.IPSet()
		if err != nil {
			return nil, errors.Wrapf(err, "error building prefixes of %s", device)
		}

		pid := PIDName(device)
		nm.pids[pid] = set

		h.Write([]byte(pid))
		for _, p := range set.Prefixes() {
			h.Write([]byte(p.String()))
		}
	}

	nm.tag = fmt.Sprintf("%016x", h.Sum64())
	return nm, nil
}

// pidOf returns the PID holding addr.
func (nm *networkMap) pidOf(addr netip.Addr) (string, bool) {
	pid, ok := nm.owners[addr.Unmap()]
	return pid, ok
}

func (nm *networkMap) vtag() VersionTag {
	return VersionTag{ResourceID: NetworkMapResourceID, Tag: nm.tag}
}

// NetworkMap returns the default network map (RFC 7285 section 11.2.1).
func (s *Service) NetworkMap() (*NetworkMapResponse, error) {
	t, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	nm, err := s.buildNetworkMap(t)
	if err != nil {
		return nil, err
	}

	out := make(map[string]AddressGroup, len(nm.pids))
	for pid, set := range nm.pids {
		group := AddressGroup{}
		for _, p := range set.Prefixes() {
			family := familyIPv6
			if p.Addr().Is4() {
				family = familyIPv4
			}
			group[family] = append(group[family], p.String())
		}
		out[pid] = group
	}

	return &NetworkMapResponse{
		Meta:       NetworkMapMeta{VTag: nm.vtag()},
		NetworkMap: out,
	}, nil
}

// property names may be qualified with the resource they come from, as in
// "default-networkmap.pid"
func propertyName(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i+1:]
	}
	return p
}

const (
	propertyPID      = "pid"
	propertyHostname = "hostname"
)

// EndpointProperties answers an endpoint property query (RFC 7285 section
// 11.4.1). Endpoints that cannot be resolved are left out.
func (s *Service) EndpointProperties(req EndpointPropertyRequest) (*EndpointPropertyResponse, error) {
	if len(req.Properties) == 0 {
		return nil, missingField("properties")
	}
	if len(req.Endpoints) == 0 {
		return nil, missingField("endpoints")
	}
	for _, p := range req.Properties {
		if name := propertyName(p); name != propertyPID && name != propertyHostname {
			return nil, invalidValue("properties", p)
		}
	}

	t, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	nm, err := s.buildNetworkMap(t)
	if err != nil {
		return nil, err
	}

	resp := &EndpointPropertyResponse{
		Meta:       PropertyMeta{DependentVTags: []VersionTag{nm.vtag()}},
		Properties: make(map[string]map[string]string, len(req.Endpoints)),
	}

	for _, e := range req.Endpoints {
		typed, err := ParseTypedAddress(e)
		if err != nil {
			s.logger.Warnf("dropping endpoint: %v", err)
			continue
		}

		values := make(map[string]string, len(req.Properties))
		for _, p := range req.Properties {
			switch propertyName(p) {
			case propertyPID:
				if pid, ok := nm.pidOf(typed.Addr); ok {
					values[p] = pid
				}
			case propertyHostname:
				if ep, err := s.ResolveEndpoint(t, e); err == nil {
					values[p] = ep.Device
				}
			}
		}
		if len(values) > 0 {
			resp.Properties[typed.String()] = values
		}
	}

	return resp, nil
}
