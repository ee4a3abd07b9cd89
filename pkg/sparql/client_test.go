package sparql

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/ldes-replicator/pkg/clients"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/testutil"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	query, update := RepositoryEndpoints(server.URL, "Test")
	httpCfg := clients.DefaultHTTPConfig()
	httpCfg.CircuitBreakerEnabled = false

	c, err := NewClient(Config{QueryURL: query, UpdateURL: update, Username: "admin", Password: "secret", HTTP: httpCfg}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRepositoryEndpoints(t *testing.T) {
	q, u := RepositoryEndpoints("http://localhost:7200/", "Test")
	assert.Equal(t, "http://localhost:7200/repositories/Test", q)
	assert.Equal(t, "http://localhost:7200/repositories/Test/statements", u)
}

func TestNewClient_InvalidEndpoints(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = NewClient(Config{QueryURL: "not a url", UpdateURL: "http://localhost/x"}, nil)
	require.Error(t, err)
}

func TestClient_Update(t *testing.T) {
	var got string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repositories/Test/statements", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		got = r.PostForm.Get("update")
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.Update(testutil.TestContext(t), "INSERT DATA { <a> <b> <c> }")
	require.NoError(t, err)
	assert.Equal(t, "INSERT DATA { <a> <b> <c> }", got)
}

func TestClient_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repositories/Test", r.URL.Path)
		assert.Equal(t, resultsContentType, r.Header.Get("Accept"))
		w.Header().Set("Content-Type", resultsContentType)
		_, _ = w.Write([]byte(`{
		  "head": {"vars": ["entity"]},
		  "results": {"bindings": [
		    {"entity": {"type": "uri", "value": "http://example.org/e1"}},
		    {"other": {"type": "literal", "value": "x", "xml:lang": "en"}},
		    {"entity": {"type": "uri", "value": "http://example.org/e2"}}
		  ]}
		}`))
	})

	res, err := c.Query(testutil.TestContext(t), "SELECT ?entity WHERE { ?entity ?p ?o }")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Len())
	assert.Equal(t, []string{"entity"}, res.Head.Vars)
	assert.Equal(t, []string{"http://example.org/e1", "http://example.org/e2"}, res.Column("entity"))
	assert.Equal(t, "en", res.Results.Bindings[1]["other"].Lang)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		errType   errors.ErrorType
		retryable bool
	}{
		{http.StatusBadRequest, errors.ErrorTypeQuery, false},
		{http.StatusTooManyRequests, errors.ErrorTypeRateLimit, true},
		{http.StatusGatewayTimeout, errors.ErrorTypeTimeout, true},
		{http.StatusServiceUnavailable, errors.ErrorTypeConnection, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "MALFORMED QUERY", tt.status)
			})

			err := c.Update(testutil.TestContext(t), "bogus")
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.errType))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestClient_Ask(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ASK {}", r.PostForm.Get("query"))
		w.Header().Set("Content-Type", resultsContentType)
		_, _ = w.Write([]byte(`{"head":{},"boolean":true}`))
	})

	ok, err := c.Ask(testutil.TestContext(t), "ASK {}")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, c.Ping(testutil.TestContext(t)))
}
