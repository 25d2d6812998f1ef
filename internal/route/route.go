package route

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// Protocol is the origin code of a route as printed by the router CLI.
type Protocol string

const (
	ProtocolKernel    Protocol = "K"
	ProtocolConnected Protocol = "C"
	ProtocolStatic    Protocol = "S"
	ProtocolRIP       Protocol = "R"
	ProtocolOSPF      Protocol = "O"
	ProtocolISIS      Protocol = "I"
	ProtocolBGP       Protocol = "B"
)

var protocolNames = map[Protocol]string{
	ProtocolKernel:    "kernel",
	ProtocolConnected: "directly-connected",
	ProtocolStatic:    "static",
	ProtocolRIP:       "rip",
	ProtocolOSPF:      "ospf",
	ProtocolISIS:      "isis",
	ProtocolBGP:       "bgp",
}

// Name returns the long form of the protocol code, or the code itself when
// it is not a known one.
func (p Protocol) Name() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return string(p)
}

// Flags mirror the kernel RTF_* bits for the low byte. The CLI selection
// markers live above them.
type Flags uint16

const (
	FlagUp       Flags = 0x0001
	FlagGateway  Flags = 0x0002
	FlagSelected Flags = 0x0100
	FlagFIB      Flags = 0x0200
)

func (f Flags) Has(flag Flags) bool { return f&flag == flag }

func (f Flags) String() string {
	var b strings.Builder
	for _, fl := range []struct {
		flag Flags
		code byte
	}{{FlagUp, 'U'}, {FlagGateway, 'G'}, {FlagSelected, '>'}, {FlagFIB, '*'}} {
		if f.Has(fl.flag) {
			b.WriteByte(fl.code)
		}
	}
	return b.String()
}

// Record is a single routing table entry, produced either from the kernel
// table or from router CLI output. Records are never modified after parsing.
type Record struct {
	Destination netip.Prefix
	Gateway     netip.Addr
	Interface   string
	Flags       Flags
	Protocol    Protocol

	// AdminDistance and Metric are the [AD/RD] pair of CLI routes. For kernel
	// routes Metric carries the metric column and HasDistance is false.
	AdminDistance int
	Metric        int
	HasDistance   bool

	// Kernel only columns.
	RefCnt int
	Use    int
	MTU    int
	Window int
	IRTT   int
}

// NextHop returns the gateway if the route has one.
func (r Record) NextHop() (netip.Addr, bool) {
	if !r.Gateway.IsValid() || r.Gateway.IsUnspecified() {
		return netip.Addr{}, false
	}
	return r.Gateway, true
}

// Active reports whether the route takes part in forwarding decisions.
func (r Record) Active() bool {
	return r.Flags.Has(FlagUp)
}

// Mask returns the destination netmask in dotted form.
func (r Record) Mask() string {
	bits := r.Destination.Bits()
	if bits < 0 {
		return ""
	}
	return net.IP(net.CIDRMask(bits, r.Destination.Addr().BitLen())).String()
}

func (r Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", r.Protocol, r.Destination)
	if r.HasDistance {
		fmt.Fprintf(&b, " [%d/%d]", r.AdminDistance, r.Metric)
	}
	if gw, ok := r.NextHop(); ok {
		fmt.Fprintf(&b, " via %s", gw)
	}
	fmt.Fprintf(&b, " dev %s flags %s", r.Interface, r.Flags)
	return b.String()
}
