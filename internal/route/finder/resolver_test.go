package finder_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrC0ns0le/net-alto/internal/route"
	"github.com/DrC0ns0le/net-alto/internal/route/finder"
	"github.com/DrC0ns0le/net-alto/internal/topology"
)

type tables map[string]route.Table

func (t tables) Routes(device string) route.Table { return t[device] }

func table(entries ...string) route.Table {
	var records []route.Record
	for i := 0; i+1 < len(entries); i += 2 {
		records = append(records, route.Record{
			Destination: netip.MustParsePrefix(entries[i]),
			Interface:   entries[i+1],
			Flags:       route.FlagUp,
		})
	}
	return route.NewTable(records)
}

// A - B - C - D
func line(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.New(topology.Description{
		Links: map[string][]string{
			"ab": {"a0", "b0"},
			"bc": {"b1", "c0"},
			"cd": {"c1", "d0"},
		},
		Names: map[string][][]string{
			"A": {{"a0", "eth0"}},
			"B": {{"b0", "eth0"}, {"b1", "eth1"}},
			"C": {{"c0", "eth0"}, {"c1", "eth1"}},
			"D": {{"d0", "eth0"}},
		},
	})
	require.NoError(t, err)
	return topo
}

var toD = finder.Target{Device: "D", Addr: netip.MustParseAddr("10.0.3.2")}

func forwarding() tables {
	return tables{
		"A": table("0.0.0.0/0", "eth0"),
		"B": table("10.0.1.0/24", "eth0", "0.0.0.0/0", "eth1"),
		"C": table("10.0.3.0/24", "eth1", "0.0.0.0/0", "eth0"),
		"D": table("0.0.0.0/0", "eth0"),
	}
}

func TestResolvePath(t *testing.T) {
	r := finder.NewResolver(line(t), forwarding())

	path, ok := r.Path("A", toD)
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C", "D"}, path)

	hops, ok := r.Decisions("A", toD)
	require.True(t, ok)
	require.Len(t, hops, 3)
	assert.Equal(t, "B", hops[0].Next)
	assert.Equal(t, "10.0.3.0/24", hops[2].Route.Destination.String())
}

func TestResolvePathSelf(t *testing.T) {
	r := finder.NewResolver(line(t), tables{})

	path, ok := r.Path("C", finder.Target{Device: "C", Addr: netip.MustParseAddr("10.0.2.2")})
	require.True(t, ok)
	assert.Equal(t, []string{"C"}, path)

	hops, ok := r.Decisions("C", finder.Target{Device: "C"})
	assert.True(t, ok)
	assert.Empty(t, hops)
}

func TestResolvePathUnreachable(t *testing.T) {
	routes := forwarding()
	routes["C"] = table("10.0.1.0/24", "eth0")

	r := finder.NewResolver(line(t), routes)
	path, ok := r.Path("A", toD)
	assert.False(t, ok)
	assert.Equal(t, []string{"A", "B", "C"}, path)

	_, ok = r.Decisions("A", toD)
	assert.False(t, ok)
}

func TestResolvePathLoopTerminates(t *testing.T) {
	routes := forwarding()
	// C sends everything back to B
	routes["C"] = table("0.0.0.0/0", "eth0")

	topo := line(t)
	r := finder.NewResolver(topo, routes)

	var path []string
	for device := range r.ResolvePath("A", toD) {
		path = append(path, device)
		require.LessOrEqual(t, len(path), topo.Len())
	}
	assert.Equal(t, []string{"A", "B", "C"}, path)

	hops, ok := r.Decisions("A", toD)
	assert.False(t, ok)
	assert.Len(t, hops, 2*topo.Len())
}

func TestResolvePathStopsOnBreak(t *testing.T) {
	r := finder.NewResolver(line(t), forwarding())

	var seen []string
	for device := range r.ResolvePath("A", toD) {
		seen = append(seen, device)
		if device == "B" {
			break
		}
	}
	assert.Equal(t, []string{"A", "B"}, seen)
}

func TestResolvePathUnknownInterface(t *testing.T) {
	routes := forwarding()
	routes["B"] = table("0.0.0.0/0", "wg0")

	_, ok := finder.NewResolver(line(t), routes).Path("A", toD)
	assert.False(t, ok)
}
