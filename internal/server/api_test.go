package server_test

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrC0ns0le/net-alto/internal/alto"
	"github.com/DrC0ns0le/net-alto/internal/route/cost"
	"github.com/DrC0ns0le/net-alto/internal/route/kernel"
	"github.com/DrC0ns0le/net-alto/internal/server"
	"github.com/DrC0ns0le/net-alto/internal/system"
	"github.com/DrC0ns0le/net-alto/internal/topology"
	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

func ptr[T any](v T) *T { return &v }

// A 10.0.1.2 - B 10.0.1.1/10.0.2.1 - C 10.0.2.2
func chain(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.New(topology.Description{
		Links: map[string][]string{
			"ab": {"a0", "b0"},
			"bc": {"b1", "c0"},
		},
		Names: map[string][][]string{
			"A": {{"a0", "eth0"}},
			"B": {{"b0", "eth0"}, {"b1", "eth1"}},
			"C": {{"c0", "eth0"}},
		},
		Params: map[string]topology.LinkParams{
			"ab": {Capacity: ptr(100.0), Metric: ptr(10)},
			"bc": {Capacity: ptr(50.0), Metric: ptr(5)},
		},
		Addresses: map[string]map[string][]string{
			"A": {"eth0": {"10.0.1.2/24"}},
			"B": {"eth0": {"10.0.1.1/24"}, "eth1": {"10.0.2.1/24"}},
			"C": {"eth0": {"10.0.2.2/24"}},
		},
	})
	require.NoError(t, err)
	return topo
}

type fakeReloader struct {
	topo *topology.Topology
	err  error
}

func (f *fakeReloader) Reload() (*topology.Topology, error) { return f.topo, f.err }

type harness struct {
	handler  http.Handler
	store    *system.Store
	reloader *fakeReloader
}

func newHarness(t *testing.T, topo *topology.Topology) harness {
	t.Helper()
	holder := topology.NewHolder(topo)
	store := system.NewStore(time.Minute)
	logger := logging.Discard()
	reloader := &fakeReloader{topo: topo}
	svc := alto.NewService(holder, store, cost.DefaultRegistry(), logger)
	return harness{
		handler:  server.NewAPI(svc, holder, store, reloader, logger).Handler(),
		store:    store,
		reloader: reloader,
	}
}

func (h harness) do(method, path, contentType string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func kernelLine(iface, dst, mask string) string {
	return fmt.Sprintf("%s\t%s\t00000000\t0001\t0\t0\t0\t%s\t0\t0\t0",
		iface,
		kernel.EncodeAddr(netip.MustParseAddr(dst), binary.LittleEndian),
		kernel.EncodeAddr(netip.MustParseAddr(mask), binary.LittleEndian),
	)
}

func routeUpload(lines ...string) system.RouteUpload {
	return system.RouteUpload{
		ByteOrder: system.ByteOrderLittle,
		Lines:     append([]string{"Iface\tDestination\tGateway\tFlags\tRefCnt\tUse\tMetric\tMask\tMTU\tWindow\tIRTT"}, lines...),
	}
}

func (h harness) uploadChainRoutes(t *testing.T) {
	t.Helper()
	uploads := map[string]system.RouteUpload{
		"A": routeUpload(kernelLine("eth0", "0.0.0.0", "0.0.0.0")),
		"B": routeUpload(
			kernelLine("eth0", "10.0.1.0", "255.255.255.0"),
			kernelLine("eth1", "10.0.2.0", "255.255.255.0"),
		),
		"C": routeUpload(kernelLine("eth0", "0.0.0.0", "0.0.0.0")),
	}
	for device, body := range uploads {
		rec := h.do(http.MethodPost, "/upload/"+device+"/rtable", "application/json", body)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) alto.ErrorMeta {
	t.Helper()
	assert.Equal(t, alto.MediaTypeError, rec.Header().Get("Content-Type"))
	var resp alto.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Meta
}

func TestEndpointCostLookup(t *testing.T) {
	h := newHarness(t, chain(t))
	h.uploadChainRoutes(t)

	for metric, want := range map[string]float64{
		cost.MetricRouteHops:         2,
		cost.MetricPathHops:          2,
		cost.MetricOSPF:              15,
		cost.MetricResidualBandwidth: 50,
	} {
		t.Run(metric, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/endpointcost/lookup", alto.MediaTypeCostParam, alto.EndpointCostRequest{
				CostType:  &alto.CostType{Mode: cost.ModeNumerical, Metric: metric},
				Endpoints: &alto.EndpointFilter{Srcs: []string{"ipv4:10.0.1.2"}, Dsts: []string{"ipv4:10.0.2.2"}},
			})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, alto.MediaTypeEndpointCost, rec.Header().Get("Content-Type"))

			var resp alto.EndpointCostResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, metric, resp.Meta.CostType.Metric)
			assert.Equal(t, cost.Result{"ipv4:10.0.1.2": {"ipv4:10.0.2.2": want}}, resp.EndpointCostMap)
		})
	}
}

func TestEndpointCostErrors(t *testing.T) {
	h := newHarness(t, chain(t))

	t.Run("not json", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/endpointcost/lookup", "text/plain", "hello")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, alto.ErrCodeSyntax, decodeError(t, rec).Code)
	})

	t.Run("broken body", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/endpointcost/lookup", "application/json", `{"cost-type": `)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		meta := decodeError(t, rec)
		assert.Equal(t, alto.ErrCodeSyntax, meta.Code)
		assert.NotEmpty(t, meta.SyntaxError)
	})

	t.Run("missing cost type", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/endpointcost/lookup", "application/json", alto.EndpointCostRequest{
			Endpoints: &alto.EndpointFilter{Srcs: []string{"ipv4:10.0.1.2"}, Dsts: []string{"ipv4:10.0.2.2"}},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		meta := decodeError(t, rec)
		assert.Equal(t, alto.ErrCodeMissingField, meta.Code)
		assert.Equal(t, "cost-type", meta.Field)
	})

	t.Run("unknown metric", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/endpointcost/lookup", "application/json", alto.EndpointCostRequest{
			CostType:  &alto.CostType{Mode: cost.ModeNumerical, Metric: "latency"},
			Endpoints: &alto.EndpointFilter{Srcs: []string{"ipv4:10.0.1.2"}, Dsts: []string{"ipv4:10.0.2.2"}},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		meta := decodeError(t, rec)
		assert.Equal(t, alto.ErrCodeInvalidValue, meta.Code)
		assert.Equal(t, "cost-type/cost-metric", meta.Field)
	})

	t.Run("unknown mode", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/endpointcost/lookup", "application/json", alto.EndpointCostRequest{
			CostType:  &alto.CostType{Mode: "percentile", Metric: cost.MetricPathHops},
			Endpoints: &alto.EndpointFilter{Srcs: []string{"ipv4:10.0.1.2"}, Dsts: []string{"ipv4:10.0.2.2"}},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "cost-type/cost-mode", decodeError(t, rec).Field)
	})

	t.Run("no resolvable endpoints", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/endpointcost/lookup", "application/json", alto.EndpointCostRequest{
			CostType:  &alto.CostType{Mode: cost.ModeNumerical, Metric: cost.MetricPathHops},
			Endpoints: &alto.EndpointFilter{Srcs: []string{"ipv4:192.0.2.1"}, Dsts: []string{"ipv4:10.0.2.2"}},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "endpoints", decodeError(t, rec).Field)
	})
}

func TestNoTopology(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/endpointcost/lookup", "application/json", alto.EndpointCostRequest{
		CostType:  &alto.CostType{Mode: cost.ModeNumerical, Metric: cost.MetricPathHops},
		Endpoints: &alto.EndpointFilter{Srcs: []string{"ipv4:10.0.1.2"}, Dsts: []string{"ipv4:10.0.2.2"}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = h.do(http.MethodGet, "/networkmap", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNetworkMapAndProperties(t *testing.T) {
	h := newHarness(t, chain(t))

	rec := h.do(http.MethodGet, "/networkmap", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alto.MediaTypeNetworkMap, rec.Header().Get("Content-Type"))

	var nm alto.NetworkMapResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&nm))
	assert.Equal(t, alto.NetworkMapResourceID, nm.Meta.VTag.ResourceID)
	assert.NotEmpty(t, nm.Meta.VTag.Tag)
	assert.Equal(t, alto.AddressGroup{"ipv4": {"10.0.1.2/32"}}, nm.NetworkMap[alto.PIDName("A")])

	rec = h.do(http.MethodPost, "/endpointprop/lookup", alto.MediaTypePropertyParam, alto.EndpointPropertyRequest{
		Properties: []string{"hostname", alto.NetworkMapResourceID + ".pid"},
		Endpoints:  []string{"ipv4:10.0.2.2"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, alto.MediaTypeEndpointProp, rec.Header().Get("Content-Type"))

	var props alto.EndpointPropertyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&props))
	assert.Equal(t, map[string]string{
		"hostname":                         "C",
		alto.NetworkMapResourceID + ".pid": alto.PIDName("C"),
	}, props.Properties["ipv4:10.0.2.2"])
}

func TestUploads(t *testing.T) {
	h := newHarness(t, chain(t))

	t.Run("adapter stats", func(t *testing.T) {
		at := time.Now().Add(-10 * time.Second)
		for i, tx := range []uint64{1000, 11000} {
			rec := h.do(http.MethodPost, "/upload/B/adapter_stats", "application/json", system.AdapterStatsUpload{
				Timestamp: at.Add(time.Duration(i) * 5 * time.Second),
				Adapters:  []system.AdapterStats{{Name: "eth1", Stats: map[string]uint64{"tx_bytes": tx, "rx_bytes": 0}}},
			})
			require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		}
		load, ok := h.store.TxLoad("B", "eth1")
		require.True(t, ok)
		assert.InDelta(t, 2000, load, 0.001)
	})

	t.Run("addresses", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/upload/C/addresses", "application/json", system.AddressUpload{"eth0": {"10.0.2.3/24"}})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		device, _, ok := h.store.Owner(netip.MustParseAddr("10.0.2.3"))
		require.True(t, ok)
		assert.Equal(t, "C", device)
	})

	t.Run("router routes", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/upload/B/quagga_rt", "application/json", system.RouteUpload{Lines: []string{
			"Codes: K - kernel route, C - connected, S - static, R - RIP,",
			"       O - OSPF, I - IS-IS, B - BGP, A - Babel,",
			"       > - selected route, * - FIB route",
			"",
			"C>* 10.0.1.0/24 is directly connected, eth0",
			"O>* 10.0.2.0/24 [110/20] via 10.0.1.9, eth1, 00:01:02",
		}})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		assert.Equal(t, 2, h.store.Routes("B").Len())
	})

	t.Run("short router output keeps table", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/upload/B/quagga_rt", "application/json", system.RouteUpload{Lines: []string{"Codes:"}})
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 2, h.store.Routes("B").Len())
	})

	tests := map[string]struct {
		path string
		body any
	}{
		"kernel garbage":    {"/upload/A/rtable", system.RouteUpload{Lines: []string{"header", "eth0\tzz"}}},
		"kernel byte order": {"/upload/A/rtable", system.RouteUpload{ByteOrder: "middle"}},
		"router garbage":    {"/upload/A/quagga_rt", system.RouteUpload{Lines: []string{"a", "b", "c", "d", "K>* nonsense"}}},
		"bad address":       {"/upload/A/addresses", system.AddressUpload{"eth0": {"10.0.1.300/24"}}},
		"undecodable":       {"/upload/A/adapter_stats", `{"adapters": 3}`},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			rec := h.do(http.MethodPost, tc.path, "application/json", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}

	t.Run("not json", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/upload/A/addresses", "text/plain", "eth0 10.0.0.1/24")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRouterTableWinsInAnyOrder(t *testing.T) {
	kernelB := routeUpload(kernelLine("eth0", "10.0.1.0", "255.255.255.0"))
	routerB := system.RouteUpload{Lines: []string{
		"Codes: K - kernel route, C - connected, S - static, R - RIP,",
		"       O - OSPF, I - IS-IS, B - BGP, A - Babel,",
		"       > - selected route, * - FIB route",
		"",
		"C>* 10.0.1.0/24 is directly connected, eth0",
		"C>* 10.0.2.0/24 is directly connected, eth1",
	}}

	orders := map[string][]string{
		"kernel last": {"quagga_rt", "rtable"},
		"router last": {"rtable", "quagga_rt"},
	}
	for name, kinds := range orders {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, chain(t))
			h.uploadChainRoutes(t)
			for _, kind := range kinds {
				body := kernelB
				if kind == "quagga_rt" {
					body = routerB
				}
				rec := h.do(http.MethodPost, "/upload/B/"+kind, "application/json", body)
				require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
			}

			snap, ok := h.store.Snapshot("B")
			require.True(t, ok)
			assert.Equal(t, 1, snap.KernelRoutes.Len())
			assert.Equal(t, 2, snap.RouterRoutes.Len())

			rec := h.do(http.MethodPost, "/endpointcost/lookup", alto.MediaTypeCostParam, alto.EndpointCostRequest{
				CostType:  &alto.CostType{Mode: cost.ModeNumerical, Metric: cost.MetricRouteHops},
				Endpoints: &alto.EndpointFilter{Srcs: []string{"ipv4:10.0.1.2"}, Dsts: []string{"ipv4:10.0.2.2"}},
			})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var resp alto.EndpointCostResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, cost.Result{"ipv4:10.0.1.2": {"ipv4:10.0.2.2": 2}}, resp.EndpointCostMap)
		})
	}
}

func TestUploadRejectsGet(t *testing.T) {
	h := newHarness(t, chain(t))

	for _, kind := range []string{system.UploadAdapterStats, system.UploadKernelRoutes, system.UploadRouterRoutes, system.UploadAddresses} {
		rec := h.do(http.MethodGet, "/upload/A/"+kind, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, kind)
		assert.JSONEq(t, `{"error":"GET not allowed"}`, rec.Body.String())
	}
}

func TestReloadAndHealth(t *testing.T) {
	h := newHarness(t, chain(t))

	rec := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/topology/reload", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"devices":3,"links":2}`, rec.Body.String())

	h.reloader.err = errors.Wrap(topology.ErrTopologyInvalid, "link ab has 1 adapter")
	rec = h.do(http.MethodPost, "/topology/reload", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.reloader.err = errors.New("open topology.json: no such file or directory")
	rec = h.do(http.MethodPost, "/topology/reload", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
