package reservations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/kilianp07/groundsched/core/schedule"
)

// Client sends mutations to a running service so that it stays the only
// writer of its storage.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient targets the API listening on addr ("host:port"). An empty or
// unspecified host means the local machine.
func NewClient(addr, token string) (*Client, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("api addr %q: %w", addr, err)
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return &Client{
		base:  "http://" + net.JoinHostPort(host, port),
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Append posts reqs as one batch.
func (c *Client) Append(ctx context.Context, reqs []schedule.Request) (MutationResponse, error) {
	body, err := json.Marshal(reqs)
	if err != nil {
		return MutationResponse{}, err
	}
	return c.mutate(ctx, http.MethodPost, "/api/reservations", bytes.NewReader(body))
}

// Remove withdraws ids in one mutation.
func (c *Client) Remove(ctx context.Context, ids ...string) (MutationResponse, error) {
	q := url.Values{"id": ids}
	return c.mutate(ctx, http.MethodDelete, "/api/reservations?"+q.Encode(), nil)
}

func (c *Client) mutate(ctx context.Context, method, path string, body io.Reader) (MutationResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return MutationResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return MutationResponse{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return MutationResponse{}, statusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var m MutationResponse
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return MutationResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return m, nil
}

// statusError maps API status codes back to the store error taxonomy.
func statusError(code int, msg string) error {
	switch code {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", schedule.ErrValidation, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", schedule.ErrNotFound, msg)
	default:
		return fmt.Errorf("api status %d: %s", code, msg)
	}
}

// Unreachable reports whether err means no service is listening.
func Unreachable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
