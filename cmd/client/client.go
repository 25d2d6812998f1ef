package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/DrC0ns0le/net-alto/internal/alto"
)

// client queries the ALTO REST API.
type client struct {
	base string
	http *http.Client
}

func newClient(server string, timeout time.Duration) *client {
	return &client{
		base: strings.TrimRight(server, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *client) do(ctx context.Context, method, path, contentType string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "error encoding request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.Wrap(err, "error building request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "error decoding response")
}

// responseError turns an error response into a readable error, RFC 7285
// error bodies included.
func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var altoErr alto.ErrorResponse
	if json.Unmarshal(raw, &altoErr) == nil && altoErr.Meta.Code != "" {
		m := altoErr.Meta
		msg := m.Code
		if m.Field != "" {
			msg += " field " + m.Field
		}
		if m.Value != "" {
			msg += fmt.Sprintf(" value %q", m.Value)
		}
		if m.Message != "" {
			msg += ": " + m.Message
		}
		if m.SyntaxError != "" {
			msg += ": " + m.SyntaxError
		}
		return errors.Errorf("server answered %s: %s", resp.Status, msg)
	}
	return errors.Errorf("server answered %s: %s", resp.Status, strings.TrimSpace(string(raw)))
}

func (c *client) endpointCost(ctx context.Context, req alto.EndpointCostRequest) (*alto.EndpointCostResponse, error) {
	var resp alto.EndpointCostResponse
	if err := c.do(ctx, http.MethodPost, "/endpointcost/lookup", alto.MediaTypeCostParam, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) endpointProperties(ctx context.Context, req alto.EndpointPropertyRequest) (*alto.EndpointPropertyResponse, error) {
	var resp alto.EndpointPropertyResponse
	if err := c.do(ctx, http.MethodPost, "/endpointprop/lookup", alto.MediaTypePropertyParam, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) networkMap(ctx context.Context) (*alto.NetworkMapResponse, error) {
	var resp alto.NetworkMapResponse
	if err := c.do(ctx, http.MethodGet, "/networkmap", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type reloadResult struct {
	Devices int `json:"devices"`
	Links   int `json:"links"`
}

func (c *client) reload(ctx context.Context) (*reloadResult, error) {
	var resp reloadResult
	if err := c.do(ctx, http.MethodPost, "/topology/reload", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
