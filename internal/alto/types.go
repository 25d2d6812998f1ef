package alto

import (
	"github.com/DrC0ns0le/net-alto/internal/route/cost"
)

// Media types of RFC 7285 section 8.
const (
	MediaTypeNetworkMap    = "application/alto-networkmap+json"
	MediaTypeEndpointProp  = "application/alto-endpointprop+json"
	MediaTypeEndpointCost  = "application/alto-endpointcost+json"
	MediaTypeError         = "application/alto-error+json"
	MediaTypePropertyParam = "application/alto-endpointpropparams+json"
	MediaTypeCostParam     = "application/alto-endpointcostparams+json"
)

const NetworkMapResourceID = "default-networkmap"

type CostType struct {
	Mode   cost.Mode `json:"cost-mode"`
	Metric string    `json:"cost-metric"`
}

type EndpointFilter struct {
	Srcs []string `json:"srcs"`
	Dsts []string `json:"dsts"`
}

type EndpointCostRequest struct {
	CostType  *CostType       `json:"cost-type"`
	Endpoints *EndpointFilter `json:"endpoints"`
}

type CostMeta struct {
	CostType CostType `json:"cost-type"`
}

type EndpointCostResponse struct {
	Meta            CostMeta    `json:"meta"`
	EndpointCostMap cost.Result `json:"endpoint-cost-map"`
}

type EndpointPropertyRequest struct {
	Properties []string `json:"properties"`
	Endpoints  []string `json:"endpoints"`
}

type VersionTag struct {
	ResourceID string `json:"resource-id"`
	Tag        string `json:"tag"`
}

type PropertyMeta struct {
	DependentVTags []VersionTag `json:"dependent-vtags,omitempty"`
}

type EndpointPropertyResponse struct {
	Meta       PropertyMeta                 `json:"meta"`
	Properties map[string]map[string]string `json:"endpoint-properties"`
}

type NetworkMapMeta struct {
	VTag VersionTag `json:"vtag"`
}

// AddressGroup lists the prefixes of one PID per address family.
type AddressGroup map[string][]string

type NetworkMapResponse struct {
	Meta       NetworkMapMeta          `json:"meta"`
	NetworkMap map[string]AddressGroup `json:"network-map"`
}

// ErrorMeta is the RFC 7285 error body.
type ErrorMeta struct {
	Code        string `json:"code"`
	Field       string `json:"field,omitempty"`
	Value       string `json:"value,omitempty"`
	SyntaxError string `json:"syntax-error,omitempty"`
	Message     string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Meta ErrorMeta `json:"meta"`
}

// RFC 7285 section 8.5.2 error codes.
const (
	ErrCodeSyntax           = "E_SYNTAX"
	ErrCodeMissingField     = "E_MISSING_FIELD"
	ErrCodeInvalidFieldType = "E_INVALID_FIELD_TYPE"
	ErrCodeInvalidValue     = "E_INVALID_FIELD_VALUE"
)
