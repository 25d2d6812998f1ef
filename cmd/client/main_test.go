package main

import (
	"bytes"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrC0ns0le/net-alto/internal/alto"
	"github.com/DrC0ns0le/net-alto/internal/route"
	"github.com/DrC0ns0le/net-alto/internal/route/cost"
	"github.com/DrC0ns0le/net-alto/internal/server"
	"github.com/DrC0ns0le/net-alto/internal/system"
	"github.com/DrC0ns0le/net-alto/internal/topology"
	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

type staticReloader struct{ topo *topology.Topology }

func (s staticReloader) Reload() (*topology.Topology, error) { return s.topo, nil }

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	topo, err := topology.New(topology.Description{
		Links: map[string][]string{"ab": {"a0", "b0"}},
		Names: map[string][][]string{
			"A": {{"a0", "eth0"}},
			"B": {{"b0", "eth0"}},
		},
		Addresses: map[string]map[string][]string{
			"A": {"eth0": {"10.0.0.1/24"}},
			"B": {"eth0": {"10.0.0.2/24"}},
		},
	})
	require.NoError(t, err)

	store := system.NewStore(time.Minute)
	for _, device := range []string{"A", "B"} {
		store.UpdateKernelRoutes(device, route.NewTable([]route.Record{{
			Destination: netip.MustParsePrefix("10.0.0.0/24"),
			Interface:   "eth0",
			Flags:       route.FlagUp,
		}}))
	}

	holder := topology.NewHolder(topo)
	logger := logging.Discard()
	api := server.NewAPI(alto.NewService(holder, store, cost.DefaultRegistry(), logger), holder, store, staticReloader{topo}, logger)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestCostCommand(t *testing.T) {
	srv := newServer(t)

	out, err := execute(t, "cost", "--server", srv.URL, "--metric", cost.MetricRouteHops, "--src", "ipv4:10.0.0.1", "--dst", "ipv4:10.0.0.2")
	require.NoError(t, err)
	assert.Contains(t, out, "routehops (numerical)")
	assert.Contains(t, out, "ipv4:10.0.0.1")
	assert.Contains(t, out, "ipv4:10.0.0.2")
	assert.Regexp(t, `\|\s+1\s+\|`, out)
}

func TestCostCommandServerError(t *testing.T) {
	srv := newServer(t)

	_, err := execute(t, "cost", "--server", srv.URL, "--metric", "latency", "--src", "ipv4:10.0.0.1", "--dst", "ipv4:10.0.0.2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), alto.ErrCodeInvalidValue)
	assert.Contains(t, err.Error(), "cost-type/cost-metric")

	_, err = execute(t, "cost", "--server", srv.URL, "--src", "ipv4:10.0.0.1")
	assert.Error(t, err)
}

func TestNetworkMapCommand(t *testing.T) {
	srv := newServer(t)

	out, err := execute(t, "networkmap", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, alto.NetworkMapResourceID+" vtag ")
	assert.Contains(t, out, alto.PIDName("A"))
	assert.Contains(t, out, "10.0.0.2/32")
}

func TestPropertiesAndReload(t *testing.T) {
	srv := newServer(t)

	out, err := execute(t, "properties", "--server", srv.URL, "--endpoint", "ipv4:10.0.0.2")
	require.NoError(t, err)
	assert.Contains(t, out, alto.PIDName("B"))

	out, err = execute(t, "reload", "--server", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "topology reloaded: 2 devices, 1 links\n", out)
}
