// Package graphdb provides the SPARQL triple store connectors: a direct
// writer, a queued batch writer and a version materializing writer, all
// speaking the SPARQL 1.1 protocol to a GraphDB (RDF4J) repository.
package graphdb

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/clients"
	"github.com/ajitpratap0/ldes-replicator/pkg/config"
	"github.com/ajitpratap0/ldes-replicator/pkg/sparql"
)

// Setting defaults
const (
	DefaultBaseURL     = "http://localhost:7200"
	DefaultRepository  = "Test"
	DefaultGraphPrefix = "http://localhost/graph/"

	// versionsGraphSuffix names the history graph of the materializing
	// connector
	versionsGraphSuffix = "/versions"
)

// Settings are the graphdb specific connector settings
type Settings struct {
	BaseURL    string
	Repository string
	// QueryEndpoint and UpdateEndpoint override the repository endpoints
	QueryEndpoint  string
	UpdateEndpoint string
	// GraphPrefix is prepended to the stream name to form the named graph
	GraphPrefix string
	Username    string
	Password    string
	// LuceneLabel is a comma separated property chain indexed by a GraphDB
	// Lucene connector. Empty disables the index.
	LuceneLabel string
}

// ParseSettings reads the settings section of a connector
func ParseSettings(cfg *config.ConnectorConfig) Settings {
	s := Settings{
		BaseURL:        cfg.Setting("base_url", DefaultBaseURL),
		Repository:     cfg.Setting("repository", DefaultRepository),
		QueryEndpoint:  cfg.Setting("query_endpoint", ""),
		UpdateEndpoint: cfg.Setting("update_endpoint", ""),
		GraphPrefix:    cfg.Setting("graph_prefix", DefaultGraphPrefix),
		Username:       cfg.Setting("username", ""),
		Password:       cfg.Setting("password", ""),
		LuceneLabel:    cfg.Setting("lucene_label", ""),
	}
	query, update := sparql.RepositoryEndpoints(s.BaseURL, s.Repository)
	if s.QueryEndpoint == "" {
		s.QueryEndpoint = query
	}
	if s.UpdateEndpoint == "" {
		s.UpdateEndpoint = update
	}
	return s
}

// Graph returns the named graph a stream is written to
func (s Settings) Graph(stream string) string {
	return s.GraphPrefix + stream
}

// LucenePropertyChain splits LuceneLabel
func (s Settings) LucenePropertyChain() []string {
	var chain []string
	for _, p := range strings.Split(s.LuceneLabel, ",") {
		if p = strings.TrimSpace(p); p != "" {
			chain = append(chain, p)
		}
	}
	return chain
}

func newSPARQLClient(s Settings, cfg *config.ConnectorConfig, l *zap.Logger) (*sparql.Client, error) {
	httpCfg := clients.DefaultHTTPConfig()
	httpCfg.RequestTimeout = cfg.Timeouts.Request
	httpCfg.DialTimeout = cfg.Timeouts.Connection
	httpCfg.RateLimit = cfg.Reliability.RateLimitPerSec
	httpCfg.CircuitBreakerEnabled = cfg.Reliability.CircuitBreaker

	return sparql.NewClient(sparql.Config{
		QueryURL:  s.QueryEndpoint,
		UpdateURL: s.UpdateEndpoint,
		Username:  s.Username,
		Password:  s.Password,
		HTTP:      httpCfg,
	}, l)
}
