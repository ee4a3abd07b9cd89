// Package sparql is a minimal SPARQL 1.1 protocol client for the triple
// store sinks. Queries and updates are sent as form-encoded POSTs.
package sparql

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/clients"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
)

const (
	resultsContentType = "application/sparql-results+json"
	formContentType    = "application/x-www-form-urlencoded"
	// response bodies quoted in errors are truncated to this length
	maxErrorBody = 512
)

// Config configures a Client
type Config struct {
	QueryURL  string
	UpdateURL string
	Username  string
	Password  string
	HTTP      *clients.HTTPConfig
}

// RepositoryEndpoints returns the query and update endpoints of a GraphDB
// (RDF4J protocol) repository
func RepositoryEndpoints(baseURL, repository string) (query, update string) {
	query = strings.TrimRight(baseURL, "/") + "/repositories/" + url.PathEscape(repository)
	return query, query + "/statements"
}

// Client sends SPARQL queries and updates
type Client struct {
	config Config
	http   *clients.HTTPClient
	logger *zap.Logger
}

// NewClient creates a client. No request is made until the first call.
func NewClient(cfg Config, l *zap.Logger) (*Client, error) {
	if cfg.QueryURL == "" || cfg.UpdateURL == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "sparql client requires query and update endpoints")
	}
	for _, raw := range []string{cfg.QueryURL, cfg.UpdateURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "invalid sparql endpoint").WithDetail("url", raw)
		}
	}

	l = logger.OrDefault(l)
	return &Client{
		config: cfg,
		http:   clients.NewHTTPClient(cfg.HTTP, l),
		logger: l.With(zap.String("component", "sparql_client")),
	}, nil
}

// Update executes a SPARQL update request
func (c *Client) Update(ctx context.Context, update string) error {
	resp, err := c.post(ctx, c.config.UpdateURL, url.Values{"update": {update}}, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Query executes a SELECT or ASK query and decodes the JSON results
func (c *Client) Query(ctx context.Context, query string) (*Results, error) {
	resp, err := c.post(ctx, c.config.QueryURL, url.Values{"query": {query}}, resultsContentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var results Results
	if err := gojson.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to decode query results")
	}
	return &results, nil
}

// Ask executes an ASK query
func (c *Client) Ask(ctx context.Context, query string) (bool, error) {
	results, err := c.Query(ctx, query)
	if err != nil {
		return false, err
	}
	return results.Boolean, nil
}

// Ping checks that the query endpoint answers
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Ask(ctx, "ASK {}")
	return err
}

// Close releases idle connections
func (c *Client) Close() error {
	return c.http.Close()
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid sparql request")
	}
	req.Header.Set("Content-Type", formContentType)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode/100 == 2 {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	return nil, errors.New(statusErrorType(resp.StatusCode), "sparql endpoint returned an error").
		WithDetail("status", resp.StatusCode).
		WithDetail("endpoint", endpoint).
		WithDetail("body", string(body))
}

func statusErrorType(status int) errors.ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return errors.ErrorTypeRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return errors.ErrorTypeTimeout
	case status >= http.StatusInternalServerError:
		return errors.ErrorTypeConnection
	default:
		return errors.ErrorTypeQuery
	}
}
