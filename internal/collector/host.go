package collector

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	"github.com/vishvananda/netlink"

	"github.com/DrC0ns0le/net-alto/internal/route/vtysh"
	"github.com/DrC0ns0le/net-alto/internal/system"
)

const loopback = "lo"

// Host is where the collector reads node state from.
type Host interface {
	KernelRoutes() ([]string, error)
	RouterRoutes(ctx context.Context) ([]string, error)
	Counters() ([]system.AdapterStats, error)
	Addresses() (system.AddressUpload, error)
}

// LocalHost reads the state of the machine the collector runs on.
type LocalHost struct {
	procPath string
	fs       procfs.FS
}

// NewLocalHost reads from the proc filesystem mounted at procPath.
func NewLocalHost(procPath string) (*LocalHost, error) {
	fs, err := procfs.NewFS(procPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening procfs at %s", procPath)
	}
	return &LocalHost{procPath: procPath, fs: fs}, nil
}

// KernelRoutes returns the lines of /proc/net/route, header included.
func (h *LocalHost) KernelRoutes() ([]string, error) {
	raw, err := os.ReadFile(filepath.Join(h.procPath, "net", "route"))
	if err != nil {
		return nil, errors.Wrap(err, "error reading kernel route table")
	}
	return splitLines(string(raw)), nil
}

// RouterRoutes returns the output of the routing daemon CLI.
func (h *LocalHost) RouterRoutes(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, vtysh.Command[0], vtysh.Command[1:]...).Output()
	if err != nil {
		return nil, errors.Wrapf(err, "error running %s", strings.Join(vtysh.Command, " "))
	}
	return splitLines(string(out)), nil
}

// Counters returns the interface statistics of /proc/net/dev, loopback
// excluded.
func (h *LocalHost) Counters() ([]system.AdapterStats, error) {
	netDev, err := h.fs.NetDev()
	if err != nil {
		return nil, errors.Wrap(err, "error reading interface counters")
	}

	out := make([]system.AdapterStats, 0, len(netDev))
	for name, line := range netDev {
		if name == loopback {
			continue
		}
		out = append(out, system.AdapterStats{
			Name: name,
			Stats: map[string]uint64{
				"rx_bytes":   line.RxBytes,
				"rx_packets": line.RxPackets,
				"rx_errors":  line.RxErrors,
				"rx_dropped": line.RxDropped,
				"tx_bytes":   line.TxBytes,
				"tx_packets": line.TxPackets,
				"tx_errors":  line.TxErrors,
				"tx_dropped": line.TxDropped,
			},
		})
	}
	return out, nil
}

// Addresses lists the global unicast addresses of every interface.
func (h *LocalHost) Addresses() (system.AddressUpload, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, errors.Wrap(err, "error listing links")
	}

	out := make(system.AddressUpload, len(links))
	for _, link := range links {
		name := link.Attrs().Name
		if name == loopback {
			continue
		}
		addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			return nil, errors.Wrapf(err, "error listing addresses of %s", name)
		}
		for _, addr := range addrs {
			if addr.IPNet == nil || !addr.IP.IsGlobalUnicast() {
				continue
			}
			out[name] = append(out[name], addr.IPNet.String())
		}
	}
	return out, nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
