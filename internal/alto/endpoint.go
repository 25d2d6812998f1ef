package alto

import (
	"net/netip"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnresolvedEndpoint is returned for an endpoint that cannot be parsed or
// is not owned by any device.
var ErrUnresolvedEndpoint = errors.New("unresolved endpoint")

const (
	familyIPv4 = "ipv4"
	familyIPv6 = "ipv6"
)

// TypedAddress is an ALTO typed endpoint address such as "ipv4:192.0.2.1".
type TypedAddress struct {
	Addr netip.Addr
}

// ParseTypedAddress accepts "ipv4:<addr>", "ipv6:<addr>" and bare
// addresses. The family prefix must match the address.
func ParseTypedAddress(s string) (TypedAddress, error) {
	family, raw, typed := strings.Cut(s, ":")
	if !typed || (family != familyIPv4 && family != familyIPv6) {
		// bare address, IPv6 ones contain colons too
		family, raw = "", s
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return TypedAddress{}, errors.Wrapf(ErrUnresolvedEndpoint, "bad address %q", s)
	}
	addr = addr.Unmap()

	switch {
	case family == familyIPv4 && !addr.Is4():
		return TypedAddress{}, errors.Wrapf(ErrUnresolvedEndpoint, "%q is not an ipv4 address", s)
	case family == familyIPv6 && !addr.Is6():
		return TypedAddress{}, errors.Wrapf(ErrUnresolvedEndpoint, "%q is not an ipv6 address", s)
	}
	return TypedAddress{Addr: addr}, nil
}

func (a TypedAddress) Family() string {
	if a.Addr.Is4() {
		return familyIPv4
	}
	return familyIPv6
}

func (a TypedAddress) String() string {
	return a.Family() + ":" + a.Addr.String()
}
