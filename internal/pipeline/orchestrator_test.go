package pipeline

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/config"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/base"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/registry"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
	"github.com/ajitpratap0/ldes-replicator/pkg/state"
	"github.com/ajitpratap0/ldes-replicator/pkg/testutil"
)

const twoPages = `{"pages":[
  {"url":"P1","members":[{"@id":"v1"},{"@id":"v2"}]},
  {"url":"P2","members":[{"@id":"v3"}]}
]}`

// recorder collects what the test connectors receive, per connector name
type recorder struct {
	mu       sync.Mutex
	received map[string][]string
	stopped  map[string]int
}

func newRecorder() *recorder {
	return &recorder{received: make(map[string][]string), stopped: make(map[string]int)}
}

func (r *recorder) add(name string, m ldes.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received[name] = append(r.received[name], string(m))
}

func (r *recorder) seen(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.received[name]...)
}

func (r *recorder) stops(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped[name]
}

type recordingConnector struct {
	name     string
	rec      *recorder
	delay    func() time.Duration
	failOn   string
	provErr  error
	inFlight *atomic.Int32
}

func (c *recordingConnector) Provision(context.Context) error { return c.provErr }

func (c *recordingConnector) WriteVersion(_ context.Context, m ldes.Member) error {
	if c.inFlight != nil {
		c.inFlight.Add(1)
		defer c.inFlight.Add(-1)
	}
	if c.delay != nil {
		time.Sleep(c.delay())
	}
	if c.failOn != "" && string(m) == c.failOn {
		return errors.New(errors.ErrorTypeQuery, "rejected")
	}
	// the member is owned by this connector
	m[0] = '#'
	c.rec.add(c.name, m)
	return nil
}

func (c *recordingConnector) Stop(context.Context) error {
	c.rec.mu.Lock()
	c.rec.stopped[c.name]++
	c.rec.mu.Unlock()
	return nil
}

type harness struct {
	rec     *recorder
	reg     *registry.Registry
	backend *state.MemoryBackend
	cfg     *config.ReplicatorConfig

	mu         sync.Mutex
	connectors map[string]*recordingConnector
	// configure is applied to every connector the registry creates
	configure func(c *recordingConnector)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rec:        newRecorder(),
		reg:        registry.NewRegistry(),
		backend:    state.NewMemoryBackend(),
		cfg:        config.NewReplicatorConfig("test"),
		connectors: make(map[string]*recordingConnector),
	}
	require.NoError(t, h.reg.Register("recording", func(p core.Params) (core.Connector, error) {
		c := &recordingConnector{name: p.Name, rec: h.rec}
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.configure != nil {
			h.configure(c)
		}
		h.connectors[p.Name] = c
		return c, nil
	}, nil))
	return h
}

func (h *harness) addConnector(name string) {
	h.cfg.Connectors[name] = config.NewConnectorConfig("recording")
}

func (h *harness) addStream(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	h.cfg.Streams = append(h.cfg.Streams, config.StreamConfig{Name: name, URL: "file://" + path})
	return "file://" + path
}

func (h *harness) stateFactory(_ config.StateConfig, identity string, _ *zap.Logger) (state.Store, error) {
	return h.backend.Store(identity), nil
}

func (h *harness) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{
		WithRegistry(h.reg),
		WithStateFactory(h.stateFactory),
		WithRetryPolicy(base.NewRetryPolicy(2, time.Millisecond)),
		WithLogger(testutil.TestLogger(t)),
	}, opts...)
	o, err := New(h.cfg, opts...)
	require.NoError(t, err)
	return o
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t)
	h.addConnector("direct")
	url := h.addStream(t, "museum", twoPages)

	o := h.orchestrator(t)
	assert.Equal(t, StatusUnprovisioned, o.Status()["museum"])

	require.NoError(t, o.Provision(ctx))
	assert.Equal(t, StatusProvisioned, o.Status()["museum"])

	require.NoError(t, o.Run(ctx))
	assert.Equal(t, StatusEnded, o.Status()["museum"])
	assert.Equal(t, []string{`#"@id":"v1"}`, `#"@id":"v2"}`, `#"@id":"v3"}`}, h.rec.seen("direct"))

	store := h.backend.Store(state.Identity(h.cfg.State.ID, url))
	processed, err := store.ProcessedPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, processed)
	latest, err := store.LatestPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "P2", latest)

	require.NoError(t, o.Stop(ctx))
	require.NoError(t, o.Stop(ctx))
	assert.Equal(t, 1, h.rec.stops("direct"))
}

func TestOrchestrator_ResumesFromLatestPage(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t)
	h.addConnector("direct")
	h.addStream(t, "museum", twoPages)

	first := h.orchestrator(t)
	require.NoError(t, first.Provision(ctx))
	require.NoError(t, first.Run(ctx))
	require.NoError(t, first.Stop(ctx))

	second := h.orchestrator(t)
	require.NoError(t, second.Provision(ctx))
	require.NoError(t, second.Run(ctx))
	require.NoError(t, second.Stop(ctx))

	// the latest page is read again, earlier pages are skipped
	assert.Equal(t, []string{
		`#"@id":"v1"}`, `#"@id":"v2"}`, `#"@id":"v3"}`,
		`#"@id":"v3"}`,
	}, h.rec.seen("direct"))

	require.NoError(t, second.Reset(ctx))
	third := h.orchestrator(t)
	require.NoError(t, third.Provision(ctx))
	require.NoError(t, third.Run(ctx))
	require.NoError(t, third.Stop(ctx))
	assert.Len(t, h.rec.seen("direct"), 7)
}

func TestOrchestrator_SlowConnectorKeepsOrder(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t)
	h.addConnector("fast")
	h.addConnector("slow")

	content := `{"pages":[{"url":"P1","members":[`
	var want []string
	for i := 0; i < 20; i++ {
		if i > 0 {
			content += ","
		}
		id := string(rune('a' + i))
		content += `{"@id":"` + id + `"}`
		want = append(want, `#"@id":"`+id+`"}`)
	}
	content += `]}]}`
	h.addStream(t, "museum", content)

	var inFlight atomic.Int32
	var overlap atomic.Bool
	rng := rand.New(rand.NewSource(1))
	var rngMu sync.Mutex
	h.configure = func(c *recordingConnector) {
		c.inFlight = &inFlight
		if c.name == "slow" {
			c.delay = func() time.Duration {
				rngMu.Lock()
				defer rngMu.Unlock()
				return time.Duration(rng.Intn(3)) * time.Millisecond
			}
		}
	}
	// at most one member per connector may be in flight
	h.reg = registryWithCheck(t, h, &inFlight, &overlap)

	o := h.orchestrator(t)
	require.NoError(t, o.Provision(ctx))
	require.NoError(t, o.Run(ctx))
	require.NoError(t, o.Stop(ctx))

	assert.Equal(t, want, h.rec.seen("fast"))
	assert.Equal(t, want, h.rec.seen("slow"))
	assert.False(t, overlap.Load(), "a member was dispatched before the previous one completed")
}

// registryWithCheck wraps the harness factory so that every write checks
// no more than one write per connector is in flight
func registryWithCheck(t *testing.T, h *harness, inFlight *atomic.Int32, overlap *atomic.Bool) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register("recording", func(p core.Params) (core.Connector, error) {
		inner := &recordingConnector{name: p.Name, rec: h.rec}
		h.configure(inner)
		inner.inFlight = nil
		return &checkedConnector{inner: inner, inFlight: inFlight, overlap: overlap, connectors: len(h.cfg.Connectors)}, nil
	}, nil))
	return reg
}

type checkedConnector struct {
	inner      *recordingConnector
	inFlight   *atomic.Int32
	overlap    *atomic.Bool
	connectors int
}

func (c *checkedConnector) Provision(ctx context.Context) error { return c.inner.Provision(ctx) }
func (c *checkedConnector) Stop(ctx context.Context) error      { return c.inner.Stop(ctx) }

func (c *checkedConnector) WriteVersion(ctx context.Context, m ldes.Member) error {
	if n := c.inFlight.Add(1); int(n) > c.connectors {
		c.overlap.Store(true)
	}
	defer c.inFlight.Add(-1)
	return c.inner.WriteVersion(ctx, m)
}

func TestOrchestrator_ConnectorErrorsAreIsolated(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t)
	h.addConnector("flaky")
	h.addConnector("steady")
	h.addStream(t, "museum", twoPages)
	h.configure = func(c *recordingConnector) {
		if c.name == "flaky" {
			c.failOn = `{"@id":"v2"}`
		}
	}

	o := h.orchestrator(t)
	require.NoError(t, o.Provision(ctx))
	require.NoError(t, o.Run(ctx))
	require.NoError(t, o.Stop(ctx))

	assert.Equal(t, []string{`#"@id":"v1"}`, `#"@id":"v3"}`}, h.rec.seen("flaky"))
	assert.Equal(t, []string{`#"@id":"v1"}`, `#"@id":"v2"}`, `#"@id":"v3"}`}, h.rec.seen("steady"))
}

func TestOrchestrator_SiblingStreamsAreIsolated(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t)
	h.addConnector("direct")
	h.addStream(t, "good", twoPages)
	h.cfg.Streams = append(h.cfg.Streams, config.StreamConfig{
		Name: "missing",
		URL:  "file://" + filepath.Join(t.TempDir(), "absent.json"),
	})

	o := h.orchestrator(t)
	err := o.Provision(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeReader))
	assert.Contains(t, err.Error(), "failed to open stream reader")

	assert.Equal(t, StatusProvisioned, o.Status()["good"])
	assert.Equal(t, StatusErrored, o.Status()["missing"])
	require.Error(t, o.Err("missing"))

	require.NoError(t, o.Run(ctx))
	assert.Len(t, h.rec.seen("direct"), 3)
	require.NoError(t, o.Stop(ctx))
}

func TestOrchestrator_ReaderErrorFailsOnlyItsStream(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t)
	h.addConnector("direct")
	h.addStream(t, "good", twoPages)
	badURL := h.addStream(t, "bad", `{"pages":[{"url":"P1","members":[]}]}`)

	o := h.orchestrator(t)
	require.NoError(t, o.Provision(ctx))

	// corrupt the snapshot after provisioning so the read fails
	require.NoError(t, os.WriteFile(badURL[len("file://"):], []byte("{"), 0o600))

	err := o.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeReader))

	assert.Equal(t, StatusEnded, o.Status()["good"])
	assert.Equal(t, StatusErrored, o.Status()["bad"])
	assert.Len(t, h.rec.seen("direct"), 3)
	require.NoError(t, o.Stop(ctx))
}

func TestOrchestrator_UnknownConnectorTypeFailsFast(t *testing.T) {
	h := newHarness(t)
	h.cfg.Connectors["graph"] = config.NewConnectorConfig("no-such-type")
	h.addStream(t, "museum", twoPages)

	opened := false
	_, err := New(h.cfg,
		WithRegistry(h.reg),
		WithReaderFactory(func(context.Context, ldes.ReaderOptions) (ldes.Reader, error) {
			opened = true
			return nil, nil
		}),
		WithLogger(testutil.TestLogger(t)))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "no-such-type")
	assert.False(t, opened)
}

func TestOrchestrator_ConnectorProvisioningFailure(t *testing.T) {
	ctx := testutil.TestContext(t)
	h := newHarness(t)
	h.addConnector("broken")
	h.addConnector("fine")
	h.addStream(t, "museum", twoPages)
	h.configure = func(c *recordingConnector) {
		if c.name == "broken" {
			c.provErr = errors.New(errors.ErrorTypeConfig, "versions.identifier is required")
		}
	}

	o := h.orchestrator(t)
	err := o.Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connector broken")
	assert.Equal(t, StatusErrored, o.Status()["museum"])

	err = o.Run(ctx)
	require.Error(t, err)

	require.NoError(t, o.Stop(ctx))
	assert.Equal(t, 1, h.rec.stops("broken"))
	assert.Equal(t, 1, h.rec.stops("fine"))
}

func TestOrchestrator_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.addConnector("direct")
	h.addStream(t, "museum", twoPages)
	h.cfg.Streams[0].PollingInterval = 10 * time.Millisecond

	o := h.orchestrator(t)
	require.NoError(t, o.Provision(testutil.TestContext(t)))

	ctx, cancel := context.WithCancel(testutil.TestContext(t))
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	testutil.AssertEventually(t, func() bool { return len(h.rec.seen("direct")) == 3 }, 5*time.Second, "members replicated")
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, StatusEnded, o.Status()["museum"])
	require.NoError(t, o.Stop(testutil.TestContext(t)))
}
