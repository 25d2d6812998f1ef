package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/DrC0ns0le/net-alto/internal/metrics"
	"github.com/DrC0ns0le/net-alto/internal/route"
	"github.com/DrC0ns0le/net-alto/internal/route/kernel"
	"github.com/DrC0ns0le/net-alto/internal/route/vtysh"
	"github.com/DrC0ns0le/net-alto/internal/system"
)

func getNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, "application/json", map[string]string{"error": "GET not allowed"})
}

// upload decodes the body of an upload into v and runs apply with the
// device from the path. Failures are answered with a JSON error.
func (a *API) upload(w http.ResponseWriter, r *http.Request, kind string, v any, apply func(device string) error) {
	device := chi.URLParam(r, "device")
	log := a.logger.With("device", device, "kind", kind)

	fail := func(status int, err error) {
		metrics.Uploads.WithLabelValues(kind, metrics.OutcomeFailure).Inc()
		log.Warnf("upload rejected: %v", err)
		writeJSON(w, status, "application/json", map[string]string{"error": err.Error()})
	}

	if !isJSON(r) {
		fail(http.StatusBadRequest, errors.New("expected a JSON body"))
		return
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		fail(http.StatusBadRequest, errors.Wrap(err, "error decoding body"))
		return
	}
	if t := a.topology.Load(); t != nil {
		if _, ok := t.Device(device); !ok {
			log.Debug("upload from device outside the topology")
		}
	}
	if err := apply(device); err != nil {
		fail(http.StatusBadRequest, err)
		return
	}

	metrics.Uploads.WithLabelValues(kind, metrics.OutcomeSuccess).Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAdapterStats(w http.ResponseWriter, r *http.Request) {
	var body system.AdapterStatsUpload
	a.upload(w, r, system.UploadAdapterStats, &body, func(device string) error {
		at := body.Timestamp
		if at.IsZero() {
			at = time.Now()
		}
		a.live.UpdateCounters(device, body.Counters(), at)
		return nil
	})
}

func (a *API) handleKernelRoutes(w http.ResponseWriter, r *http.Request) {
	var body system.RouteUpload
	a.upload(w, r, system.UploadKernelRoutes, &body, func(device string) error {
		order, err := body.Order()
		if err != nil {
			return err
		}
		records, err := kernel.ParseLines(body.Lines, order)
		if err != nil {
			return err
		}
		a.live.UpdateKernelRoutes(device, route.NewTable(records))
		return nil
	})
}

func (a *API) handleRouterRoutes(w http.ResponseWriter, r *http.Request) {
	var body system.RouteUpload
	a.upload(w, r, system.UploadRouterRoutes, &body, func(device string) error {
		records, err := vtysh.ParseLines(body.Lines)
		if err != nil {
			return err
		}
		if records == nil {
			// router had nothing to report, keep what we have
			return nil
		}
		a.live.UpdateRouterRoutes(device, route.NewTable(records))
		return nil
	})
}

func (a *API) handleAddresses(w http.ResponseWriter, r *http.Request) {
	var body system.AddressUpload
	a.upload(w, r, system.UploadAddresses, &body, func(device string) error {
		prefixes, err := body.Prefixes()
		if err != nil {
			return err
		}
		a.live.UpdateAddresses(device, prefixes)
		return nil
	})
}
