// Package alto answers ALTO endpoint cost, endpoint property and network
// map queries over the current topology and live node state.
package alto

import (
	"fmt"
	"net/netip"

	"github.com/pkg/errors"

	"github.com/DrC0ns0le/net-alto/internal/route/cost"
	"github.com/DrC0ns0le/net-alto/internal/system"
	"github.com/DrC0ns0le/net-alto/internal/topology"
	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

// ErrNoEndpoints is returned when every source or every destination of a
// request is unresolved.
var ErrNoEndpoints = errors.New("no resolvable endpoints")

// RequestError is a malformed request, reported to the client with the
// RFC 7285 code and the offending field.
type RequestError struct {
	Code  string
	Field string
	Value string
}

func (e *RequestError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: field %s value %q", e.Code, e.Field, e.Value)
	}
	return fmt.Sprintf("%s: field %s", e.Code, e.Field)
}

func missingField(field string) error {
	return &RequestError{Code: ErrCodeMissingField, Field: field}
}

func invalidValue(field, value string) error {
	return &RequestError{Code: ErrCodeInvalidValue, Field: field, Value: value}
}

type Service struct {
	topology *topology.Holder
	live     *system.Store
	costs    *cost.Registry
	logger   logging.Logger
}

func NewService(topo *topology.Holder, live *system.Store, costs *cost.Registry, logger logging.Logger) *Service {
	return &Service{
		topology: topo,
		live:     live,
		costs:    costs,
		logger:   logger.With("component", "alto"),
	}
}

// snapshot returns the topology to answer one request with.
func (s *Service) snapshot() (*topology.Topology, error) {
	t := s.topology.Load()
	if t == nil {
		return nil, errors.Wrap(topology.ErrTopologyInvalid, "no topology loaded")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// ResolveEndpoint maps an endpoint string to the device owning the address.
// Addresses reported live by the nodes win over the static description.
func (s *Service) ResolveEndpoint(t *topology.Topology, endpoint string) (cost.Endpoint, error) {
	typed, err := ParseTypedAddress(endpoint)
	if err != nil {
		return cost.Endpoint{}, err
	}

	device, err := s.owner(t, typed.Addr)
	if err != nil {
		return cost.Endpoint{}, errors.Wrapf(err, "endpoint %s", typed)
	}

	return cost.Endpoint{ID: typed.String(), Device: device, Addr: typed.Addr}, nil
}

// owner returns the device owning addr, live reports first. The device
// must be part of t.
func (s *Service) owner(t *topology.Topology, addr netip.Addr) (string, error) {
	device, _, ok := s.live.Owner(addr)
	if !ok {
		device, _, ok = t.StaticOwner(addr)
	}
	if !ok {
		return "", errors.Wrap(ErrUnresolvedEndpoint, "no device owns the address")
	}
	if _, known := t.Device(device); !known {
		return "", errors.Wrapf(ErrUnresolvedEndpoint, "owned by %s which is not in the topology", device)
	}
	return device, nil
}

// resolveAll drops unresolved endpoints and duplicates.
func (s *Service) resolveAll(t *topology.Topology, endpoints []string) []cost.Endpoint {
	out := make([]cost.Endpoint, 0, len(endpoints))
	seen := make(map[string]bool, len(endpoints))
	for _, e := range endpoints {
		ep, err := s.ResolveEndpoint(t, e)
		if err != nil {
			s.logger.Warnf("dropping endpoint: %v", err)
			continue
		}
		if seen[ep.ID] {
			continue
		}
		seen[ep.ID] = true
		out = append(out, ep)
	}
	return out
}

func (s *Service) query(t *topology.Topology) cost.Query {
	return cost.Query{
		Topology: t,
		Routes:   s.live,
		Loads:    s.live,
		Logger:   s.logger,
	}
}

// EndpointCost answers an endpoint cost query (RFC 7285 section 11.5).
func (s *Service) EndpointCost(req EndpointCostRequest) (*EndpointCostResponse, error) {
	switch {
	case req.CostType == nil:
		return nil, missingField("cost-type")
	case req.CostType.Mode == "":
		return nil, missingField("cost-type/cost-mode")
	case req.CostType.Metric == "":
		return nil, missingField("cost-type/cost-metric")
	case req.Endpoints == nil:
		return nil, missingField("endpoints")
	case len(req.Endpoints.Srcs) == 0:
		return nil, missingField("endpoints/srcs")
	case len(req.Endpoints.Dsts) == 0:
		return nil, missingField("endpoints/dsts")
	}

	if _, err := s.costs.Lookup(req.CostType.Metric); err != nil {
		return nil, err
	}

	t, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	srcs := s.resolveAll(t, req.Endpoints.Srcs)
	if len(srcs) == 0 {
		return nil, errors.Wrap(ErrNoEndpoints, "sources")
	}
	dsts := s.resolveAll(t, req.Endpoints.Dsts)
	if len(dsts) == 0 {
		return nil, errors.Wrap(ErrNoEndpoints, "destinations")
	}

	result, err := s.costs.Compute(s.query(t), req.CostType.Metric, req.CostType.Mode, srcs, dsts)
	if err != nil {
		return nil, err
	}

	return &EndpointCostResponse{
		Meta:            CostMeta{CostType: *req.CostType},
		EndpointCostMap: result,
	}, nil
}
