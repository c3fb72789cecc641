// Package client is a small client for the oidcstore admin API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"go.pilab.hu/oidcstore/domain"
)

// APIError is a non-2xx answer of the admin API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin api: %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Unwrap maps the status back onto the store error it was rendered from.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConcurrency
	case http.StatusNotImplemented:
		return domain.ErrUnsupported
	default:
		return nil
	}
}

// Client talks to a running oidcstore server.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// New returns a client for the admin API at endpoint. A nil httpClient uses a
// traced default client.
func New(endpoint string, httpClient *http.Client) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("server endpoint is required")
	}
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server endpoint %q: %w", endpoint, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server endpoint %q: scheme must be http or https", endpoint)
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Client{base: base, http: httpClient}, nil
}

// WithToken sets the bearer token sent with every request.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.base.JoinPath(path)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func paging(count, offset int) url.Values {
	v := url.Values{}
	if count > 0 {
		v.Set("count", strconv.Itoa(count))
	}
	if offset > 0 {
		v.Set("offset", strconv.Itoa(offset))
	}
	return v
}

func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	return out, c.get(ctx, "healthz", nil, &out)
}

func (c *Client) ListApplications(ctx context.Context, count, offset int) ([]domain.Application, error) {
	var out []domain.Application
	return out, c.get(ctx, "applications", paging(count, offset), &out)
}

func (c *Client) GetApplication(ctx context.Context, clientID string) (*domain.Application, error) {
	var out domain.Application
	if err := c.get(ctx, "applications/"+url.PathEscape(clientID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListScopes(ctx context.Context, count, offset int) ([]domain.Scope, error) {
	var out []domain.Scope
	return out, c.get(ctx, "scopes", paging(count, offset), &out)
}

func (c *Client) GetScope(ctx context.Context, name string) (*domain.Scope, error) {
	var out domain.Scope
	if err := c.get(ctx, "scopes/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindAuthorizations lists the authorizations of subject on clientID that
// grant at least scopes.
func (c *Client) FindAuthorizations(ctx context.Context, subject, clientID string, scopes []string) ([]domain.Authorization, error) {
	params := url.Values{}
	params.Set("subject", subject)
	params.Set("client", clientID)
	for _, s := range scopes {
		params.Add("scope", s)
	}
	var out []domain.Authorization
	return out, c.get(ctx, "authorizations", params, &out)
}

func (c *Client) GetToken(ctx context.Context, id string) (*domain.Token, error) {
	var out domain.Token
	if err := c.get(ctx, "tokens/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
