package web

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

	"github.com/actionsum/securetoggle/internal/service"
	"github.com/actionsum/securetoggle/pkg/gesture"
)

// Client talks to a running `securetoggle serve` over its HTTP API
type Client struct {
	baseURL string
	http    *http.Client
}

var _ gesture.Publisher = (*Client)(nil)

// NewClient accepts host:port or a full http:// URL
func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) Status(ctx context.Context) (*service.Status, error) {
	var status service.Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Publish posts one gesture phase. The ID the daemon assigned to a
// receive is copied back into ev.
func (c *Client) Publish(ctx context.Context, ev *gesture.Event) error {
	body, err := json.Marshal(gestureRequest{
		ID:         ev.ID,
		Identifier: ev.Identifier,
		Phase:      ev.Phase.String(),
		Source:     ev.Source,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode gesture")
	}

	var accepted gesture.Event
	if err := c.do(ctx, http.MethodPost, "/api/gestures", body, &accepted); err != nil {
		return err
	}
	ev.ID = accepted.ID
	if ev.Identifier == "" {
		ev.Identifier = accepted.Identifier
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}

	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "failed to decode response")
}
