package system

import (
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/pkg/errors"
)

// Payloads exchanged between the node collector and the server upload
// endpoints, posted to /upload/<device>/<kind>.

const (
	UploadAdapterStats = "adapter_stats"
	UploadKernelRoutes = "rtable"
	UploadRouterRoutes = "quagga_rt"
	UploadAddresses    = "addresses"
)

// AdapterStats is the statistics block of one interface, keyed like the
// files under /sys/class/net/<iface>/statistics.
type AdapterStats struct {
	Name  string            `json:"name"`
	Stats map[string]uint64 `json:"stats"`
}

type AdapterStatsUpload struct {
	Timestamp time.Time      `json:"timestamp"`
	Adapters  []AdapterStats `json:"adapters"`
}

// Counters extracts the byte counters.
func (u AdapterStatsUpload) Counters() []Counters {
	out := make([]Counters, 0, len(u.Adapters))
	for _, a := range u.Adapters {
		out = append(out, Counters{
			Interface: a.Name,
			TxBytes:   a.Stats["tx_bytes"],
			RxBytes:   a.Stats["rx_bytes"],
		})
	}
	return out
}

// RouteUpload carries raw route table output, parsed on the server.
// ByteOrder only matters for kernel tables and names the byte order of the
// reporting host.
type RouteUpload struct {
	ByteOrder string   `json:"byte_order,omitempty"`
	Lines     []string `json:"lines"`
}

const (
	ByteOrderLittle = "little"
	ByteOrderBig    = "big"
)

// HostByteOrder names the byte order of the running platform.
func HostByteOrder() string {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 1)
	if probe[0] == 1 {
		return ByteOrderLittle
	}
	return ByteOrderBig
}

// Order resolves ByteOrder, little endian when unset.
func (u RouteUpload) Order() (binary.ByteOrder, error) {
	switch u.ByteOrder {
	case "", ByteOrderLittle:
		return binary.LittleEndian, nil
	case ByteOrderBig:
		return binary.BigEndian, nil
	}
	return nil, errors.Errorf("unknown byte order %q", u.ByteOrder)
}

// AddressUpload maps local interface names to their CIDR addresses.
type AddressUpload map[string][]string

// Prefixes parses the upload.
func (u AddressUpload) Prefixes() (map[string][]netip.Prefix, error) {
	out := make(map[string][]netip.Prefix, len(u))
	for local, cidrs := range u {
		for _, cidr := range cidrs {
			p, err := netip.ParsePrefix(cidr)
			if err != nil {
				return nil, errors.Wrapf(err, "interface %s", local)
			}
			out[local] = append(out[local], p)
		}
	}
	return out, nil
}
