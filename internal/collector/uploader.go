package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Uploader delivers one payload of the given kind for a device.
type Uploader interface {
	Upload(ctx context.Context, device, kind string, payload any) error
}

// HTTPUploader posts payloads to the server upload endpoints.
type HTTPUploader struct {
	base   string
	client *http.Client
}

func NewHTTPUploader(server string, timeout time.Duration) *HTTPUploader {
	return &HTTPUploader{
		base:   strings.TrimRight(server, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, device, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "error encoding %s", kind)
	}

	endpoint := u.base + "/upload/" + url.PathEscape(device) + "/" + kind
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "error building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "error uploading %s", kind)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("upload %s rejected with %s: %s", kind, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
