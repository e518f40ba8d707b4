package client

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

	"github.com/golang/glog"

	"github.com/itiky/resource-sync/dashboard"
	"github.com/itiky/resource-sync/model"
)

type (
	// Client is the CI HTTP API client.
	Client struct {
		baseUrl    *url.URL
		httpClient *http.Client
	}

	// StatusError is a non-2xx API response.
	StatusError struct {
		Code    int
		Message string
	}
)

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

// IsNotFound checks if err is a 404 API response.
func IsNotFound(err error) bool {
	var sErr *StatusError
	return errors.As(err, &sErr) && sErr.Code == http.StatusNotFound
}

// String implements the stringer interface.
func (c *Client) String() string {
	return fmt.Sprintf("Client (%s)", c.baseUrl)
}

// Api returns the dashboard network layers.
func (c *Client) Api() dashboard.Api {
	return dashboard.Api{
		Builds:   &BuildsApi{c: c},
		Branches: &BranchesApi{c: c},
		Members:  &MembersApi{c: c},
		Plans:    &PlansApi{c: c},
	}
}

// Apps lists the apps.
func (c *Client) Apps(ctx context.Context) ([]model.App, error) {
	var list []model.App
	if err := c.do(ctx, http.MethodGet, "/apps", nil, nil, &list); err != nil {
		return nil, err
	}

	return list, nil
}

// Ping waits for the server to accept connections.
func (c *Client) Ping(ctx context.Context, retries int, fallback time.Duration) error {
	for retry := 0; ; retry++ {
		err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
		if err == nil {
			return nil
		}
		if !errors.Is(err, syscall.ECONNREFUSED) || retry >= retries {
			return fmt.Errorf("ping (%d retries): %w", retry, err)
		}

		glog.V(1).Infof("%s: connection refused, retrying in %v", c, fallback)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(fallback):
		}
	}
}

// do sends the JSON request and decodes the JSON response into res (if not nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, res interface{}) error {
	u := c.baseUrl.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("JSON marshal: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var errRes model.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errRes); err != nil || errRes.Error == "" {
			errRes.Error = strings.ToLower(http.StatusText(resp.StatusCode))
		}
		return fmt.Errorf("%s %s: %w", method, path, &StatusError{Code: resp.StatusCode, Message: errRes.Error})
	}

	if res == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
		return fmt.Errorf("%s %s: JSON unmarshal: %w", method, path, err)
	}

	return nil
}

// NewClient creates a new Client object.
func NewClient(serverUrl string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%s: must be GT 0", "timeout")
	}
	if !strings.Contains(serverUrl, "://") {
		serverUrl = "http://" + serverUrl
	}

	u, err := url.Parse(serverUrl)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid: %w", "serverUrl", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%s: host: empty", "serverUrl")
	}

	return &Client{
		baseUrl: u,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: timeout}).DialContext,
			},
		},
	}, nil
}
