package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"github.com/DrC0ns0le/net-alto/internal/alto"
	"github.com/DrC0ns0le/net-alto/internal/route/cost"
	"github.com/DrC0ns0le/net-alto/internal/system"
	"github.com/DrC0ns0le/net-alto/internal/topology"
	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

const maxBodyBytes = 4 << 20

// Reloader re-reads the topology description on demand.
type Reloader interface {
	Reload() (*topology.Topology, error)
}

// API maps the ALTO and upload REST endpoints onto the service core.
type API struct {
	service  *alto.Service
	topology *topology.Holder
	live     *system.Store
	reloader Reloader
	logger   logging.Logger
}

func NewAPI(service *alto.Service, holder *topology.Holder, live *system.Store, reloader Reloader, logger logging.Logger) *API {
	return &API{
		service:  service,
		topology: holder,
		live:     live,
		reloader: reloader,
		logger:   logger.With("component", "api"),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.Get("/networkmap", a.handleNetworkMap)
	r.Post("/endpointprop/lookup", a.handleEndpointProperties)
	r.Post("/endpointcost/lookup", a.handleEndpointCost)

	r.Route("/upload/{device}", func(r chi.Router) {
		for path, h := range map[string]http.HandlerFunc{
			"/" + system.UploadAdapterStats: a.handleAdapterStats,
			"/" + system.UploadKernelRoutes: a.handleKernelRoutes,
			"/" + system.UploadRouterRoutes: a.handleRouterRoutes,
			"/" + system.UploadAddresses:    a.handleAddresses,
		} {
			r.Post(path, h)
			r.Get(path, getNotAllowed)
		}
	})

	r.Post("/topology/reload", a.handleReload)
	r.Get("/healthz", a.handleHealth)

	return r
}

func writeJSON(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeALTOError(w http.ResponseWriter, status int, meta alto.ErrorMeta) {
	writeJSON(w, status, alto.MediaTypeError, alto.ErrorResponse{Meta: meta})
}

// writeServiceError translates service errors into RFC 7285 responses.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var reqErr *alto.RequestError
	switch {
	case errors.As(err, &reqErr):
		writeALTOError(w, http.StatusBadRequest, alto.ErrorMeta{Code: reqErr.Code, Field: reqErr.Field, Value: reqErr.Value})
	case errors.Is(err, cost.ErrUnknownMetric):
		writeALTOError(w, http.StatusBadRequest, alto.ErrorMeta{Code: alto.ErrCodeInvalidValue, Field: "cost-type/cost-metric", Message: err.Error()})
	case errors.Is(err, cost.ErrUnsupportedMode):
		writeALTOError(w, http.StatusBadRequest, alto.ErrorMeta{Code: alto.ErrCodeInvalidValue, Field: "cost-type/cost-mode", Message: err.Error()})
	case errors.Is(err, alto.ErrNoEndpoints):
		writeALTOError(w, http.StatusBadRequest, alto.ErrorMeta{Code: alto.ErrCodeInvalidValue, Field: "endpoints", Message: err.Error()})
	case errors.Is(err, topology.ErrTopologyInvalid):
		a.logger.Warnf("request refused: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, "application/json", map[string]string{"error": err.Error()})
	default:
		a.logger.Errorf("request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, "application/json", map[string]string{"error": "internal error"})
	}
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// decodeALTO reads a JSON request body, answering E_SYNTAX on failure.
func decodeALTO(w http.ResponseWriter, r *http.Request, v any) bool {
	if !isJSON(r) {
		writeALTOError(w, http.StatusBadRequest, alto.ErrorMeta{Code: alto.ErrCodeSyntax, Message: "expected a JSON body"})
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeALTOError(w, http.StatusBadRequest, alto.ErrorMeta{Code: alto.ErrCodeSyntax, SyntaxError: err.Error()})
		return false
	}
	return true
}

func (a *API) handleNetworkMap(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.NetworkMap()
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alto.MediaTypeNetworkMap, resp)
}

func (a *API) handleEndpointProperties(w http.ResponseWriter, r *http.Request) {
	var req alto.EndpointPropertyRequest
	if !decodeALTO(w, r, &req) {
		return
	}
	resp, err := a.service.EndpointProperties(req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alto.MediaTypeEndpointProp, resp)
}

func (a *API) handleEndpointCost(w http.ResponseWriter, r *http.Request) {
	var req alto.EndpointCostRequest
	if !decodeALTO(w, r, &req) {
		return
	}
	resp, err := a.service.EndpointCost(req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alto.MediaTypeEndpointCost, resp)
}

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	t, err := a.reloader.Reload()
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "application/json", map[string]any{
		"devices": t.Len(),
		"links":   len(t.Links()),
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !a.topology.Ready() {
		http.Error(w, "no topology loaded", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok\n"))
}
