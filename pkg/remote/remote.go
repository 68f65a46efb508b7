// Package remote holds the HTTP plumbing shared by the compile and edit
// service clients.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang/glog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// maxResponseBytes bounds a service response; compiled PDFs arrive base64 encoded
const maxResponseBytes = 64 << 20

// TransportError is a failure to reach a service or to read its reply.
// It says nothing about whether the document compiles.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client posts JSON bodies to a service base URL
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: httpClient,
	}
}

// Body builds a flat JSON object from alternating key/value pairs
func Body(pairs ...string) ([]byte, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("odd number of body fields")
	}
	body := []byte(`{}`)
	for i := 0; i < len(pairs); i += 2 {
		var err error
		body, err = sjson.SetBytes(body, pairs[i], pairs[i+1])
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", pairs[i], err)
		}
	}
	return body, nil
}

// PostJSON posts body to path and returns the parsed reply.
// Any failure before a well formed JSON reply is a *TransportError.
func (c *Client) PostJSON(ctx context.Context, path string, body []byte) (gjson.Result, error) {
	op := "POST " + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return gjson.Result{}, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, &TransportError{Op: op, Err: err}
	}
	glog.V(2).Infof("[remote]%s status=%d len=%d", op, resp.StatusCode, len(data))

	if !gjson.ValidBytes(data) {
		return gjson.Result{}, &TransportError{
			Op:  op,
			Err: fmt.Errorf("status %d: invalid JSON reply", resp.StatusCode),
		}
	}
	reply := gjson.ParseBytes(data)
	if resp.StatusCode >= 300 {
		// FastAPI style errors carry the reason in "detail"
		msg := reply.Get("detail").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return reply, &TransportError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, msg)}
	}
	return reply, nil
}
