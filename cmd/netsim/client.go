package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"netsim/internal/netsimconfig"
)

// client is a thin wrapper over the daemon's /v1 HTTP surface. It is the
// CLI's only way to reach netsimd - the daemon's internal packages are not
// imported here, mirroring the teacher's command/device separation where
// cmd/blim talks to devices only through the device.Device interface.
type client struct {
	baseURL string
	http    *http.Client
}

// newClient resolves the running daemon's address from its discovery file
// (spec.md §6) and returns a client bound to it.
func newClient(instance string) (*client, error) {
	d, err := netsimconfig.LoadDiscovery(instance)
	if err != nil {
		return nil, fmt.Errorf("netsim: load discovery file: %w", err)
	}
	if !d.HasWebPort {
		return nil, fmt.Errorf("netsim: no running netsimd instance found (discovery file missing web.port)")
	}
	return &client{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d/v1", d.WebPort),
		http:    &http.Client{Timeout: 20 * time.Second},
	}, nil
}

func (c *client) do(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("netsim: %s", errBody.Error)
		}
		return fmt.Errorf("netsim: request failed with status %d", resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) getCaptureFile(chipID uint32) (filename string, body io.ReadCloser, err error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/captures/%d", c.baseURL, chipID), nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return "", nil, fmt.Errorf("netsim: request failed with status %d", resp.StatusCode)
	}
	return parseCaptureFilename(resp.Header.Get("Content-Disposition")), resp.Body, nil
}

func parseCaptureFilename(contentDisposition string) string {
	const prefix = `attachment; filename="`
	if len(contentDisposition) > len(prefix)+1 && contentDisposition[:len(prefix)] == prefix {
		return contentDisposition[len(prefix) : len(contentDisposition)-1]
	}
	return "capture.bin"
}
