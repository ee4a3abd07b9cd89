package base

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/testutil"
)

// memoryVersions keeps versions per entity, already ordered oldest first
type memoryVersions struct {
	mu       sync.Mutex
	entities map[string][]string

	block       chan struct{}
	listCalls   atomic.Int32
	failDeletes int
}

func newMemoryVersions() *memoryVersions {
	return &memoryVersions{entities: make(map[string][]string)}
}

func (m *memoryVersions) add(entity string, n int) {
	for i := 0; i < n; i++ {
		m.entities[entity] = append(m.entities[entity], fmt.Sprintf("%s/v%d", entity, i))
	}
}

func (m *memoryVersions) OverLimit(_ context.Context, limit int) ([]string, error) {
	m.listCalls.Add(1)
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for e, v := range m.entities {
		if len(v) > limit {
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryVersions) Versions(_ context.Context, entity string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.entities[entity]...), nil
}

func (m *memoryVersions) DeleteVersions(_ context.Context, entity string, versions []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeletes > 0 {
		m.failDeletes--
		return errors.New(errors.ErrorTypeTimeout, "delete timed out")
	}
	drop := make(map[string]bool, len(versions))
	for _, v := range versions {
		drop[v] = true
	}
	kept := m.entities[entity][:0]
	for _, v := range m.entities[entity] {
		if !drop[v] {
			kept = append(kept, v)
		}
	}
	m.entities[entity] = kept
	return nil
}

func TestRetentionEnforcer_KeepsNewestVersions(t *testing.T) {
	store := newMemoryVersions()
	store.add("e1", 5)
	store.add("e2", 2)
	store.add("e3", 3)

	r := NewRetentionEnforcer("graph", store, 2, NewRetryPolicy(3, time.Millisecond), testutil.TestLogger(t))
	result, err := r.Enforce(testutil.TestContext(t))
	require.NoError(t, err)

	assert.Equal(t, RetentionResult{Entities: 2, Deleted: 4}, result)
	assert.Equal(t, []string{"e1/v3", "e1/v4"}, store.entities["e1"])
	assert.Equal(t, []string{"e2/v0", "e2/v1"}, store.entities["e2"])
	assert.Equal(t, []string{"e3/v1", "e3/v2"}, store.entities["e3"])
}

func TestRetentionEnforcer_RetriesTransientFailures(t *testing.T) {
	store := newMemoryVersions()
	store.add("e1", 3)
	store.failDeletes = 1

	r := NewRetentionEnforcer("graph", store, 1, NewRetryPolicy(3, time.Millisecond), testutil.TestLogger(t))
	result, err := r.Enforce(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, []string{"e1/v2"}, store.entities["e1"])
}

func TestRetentionEnforcer_AbandonsAfterBoundedRetries(t *testing.T) {
	store := newMemoryVersions()
	store.add("e1", 3)
	store.failDeletes = 10

	r := NewRetentionEnforcer("graph", store, 1, NewRetryPolicy(2, time.Millisecond), testutil.TestLogger(t))
	result, err := r.Enforce(testutil.TestContext(t))
	require.Error(t, err)
	assert.Zero(t, result.Deleted)
	assert.Equal(t, 8, store.failDeletes)

	// the guard is released after a failed pass
	store.failDeletes = 0
	result, err = r.Enforce(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
}

func TestRetentionEnforcer_SingleFlight(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := newMemoryVersions()
	store.add("e1", 4)
	store.block = make(chan struct{})

	r := NewRetentionEnforcer("graph", store, 1, nil, testutil.TestLogger(t))

	first := make(chan RetentionResult, 1)
	go func() {
		res, _ := r.Enforce(ctx)
		first <- res
	}()
	testutil.AssertEventually(t, func() bool { return store.listCalls.Load() == 1 }, time.Second, "first pass did not start")

	for i := 0; i < 3; i++ {
		res, err := r.Enforce(ctx)
		require.NoError(t, err)
		assert.True(t, res.Skipped)
	}
	assert.Equal(t, int32(1), store.listCalls.Load())

	close(store.block)
	res := <-first
	assert.False(t, res.Skipped)
	assert.Equal(t, 3, res.Deleted)
}

func TestRetentionEnforcer_DisabledWithoutLimit(t *testing.T) {
	store := newMemoryVersions()
	store.add("e1", 4)

	r := NewRetentionEnforcer("graph", store, 0, nil, testutil.TestLogger(t))
	result, err := r.Enforce(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, RetentionResult{}, result)
	assert.Zero(t, store.listCalls.Load())
}

func TestPeriodicTask(t *testing.T) {
	var runs atomic.Int32
	task := NewPeriodicTask("tick", 2*time.Millisecond, func(context.Context) { runs.Add(1) }, testutil.TestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	task.Start(ctx)
	task.Start(ctx)
	cancel()
	assert.True(t, task.Running())

	testutil.AssertEventually(t, func() bool { return runs.Load() >= 2 }, time.Second, "task did not tick")
	task.Stop()
	task.Stop()
	assert.False(t, task.Running())

	stopped := runs.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())

	// never started
	NewPeriodicTask("idle", time.Second, func(context.Context) {}, nil).Stop()
}
