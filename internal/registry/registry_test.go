package registry_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sufyanAbbasi/efflux/internal/address"
	"github.com/sufyanAbbasi/efflux/internal/models"
	"github.com/sufyanAbbasi/efflux/internal/registry"
)

func newRegistry() *registry.Registry {
	return registry.New(address.Normalizer{}, zap.NewNop())
}

func TestResolveReturnsSamePeerForEquivalentAddresses(t *testing.T) {
	r := newRegistry()
	var discovered []string
	r.OnDiscover(func(p *registry.Peer) { discovered = append(discovered, p.Address()) })

	a := r.Resolve("localhost:8000")
	b := r.Resolve("ws://localhost:8000/")
	c := r.Resolve("http://LOCALHOST:8000/status")

	assert.Same(t, a, b)
	assert.Same(t, a, c)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"ws://localhost:8000"}, discovered)
}

func TestNewPeerHasPlaceholderName(t *testing.T) {
	p := newRegistry().Resolve("localhost:8001")
	assert.Equal(t, "8001", p.DerivedID())
	assert.Equal(t, "Unknown-8001", p.DisplayName())
	assert.False(t, p.HasStatus())
	assert.Nil(t, p.LastStatus())
}

func TestDerivedIDsStayUnique(t *testing.T) {
	r := newRegistry()
	a := r.Resolve("10.0.0.1:80")
	b := r.Resolve("10.0.0.18:0")
	require.NotEqual(t, a.Address(), b.Address())
	assert.Equal(t, "1000180", a.DerivedID())
	assert.Equal(t, "1000180-2", b.DerivedID())

	got, ok := r.LookupID("1000180-2")
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestIngestStatusGrowsGraph(t *testing.T) {
	r := newRegistry()
	root := r.Resolve("localhost:8000")

	r.IngestStatus(root, &models.Status{
		Name:        "Heart",
		Connections: []string{"localhost:8001", "localhost:8002", "ws://localhost:8001"},
	})

	assert.Equal(t, "Heart", root.DisplayName())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"ws://localhost:8001", "ws://localhost:8002"}, root.Neighbors())

	_, ok := r.Lookup("localhost:8002")
	assert.True(t, ok)
}

func TestEdgesAreNeverRetracted(t *testing.T) {
	r := newRegistry()
	root := r.Resolve("localhost:8000")

	r.IngestStatus(root, &models.Status{Name: "Heart", Connections: []string{"localhost:8001"}})
	r.IngestStatus(root, &models.Status{Name: "Heart", Connections: []string{"localhost:8002"}})
	r.IngestStatus(root, &models.Status{})

	assert.Equal(t, []string{"ws://localhost:8001", "ws://localhost:8002"}, root.Neighbors())
	// Status is replaced, not merged.
	st := root.LastStatus()
	require.NotNil(t, st)
	assert.Empty(t, st.Connections)
	// An empty name keeps the best-known one.
	assert.Equal(t, "Heart", root.DisplayName())
}

func TestSelfLoopIsRecorded(t *testing.T) {
	r := newRegistry()
	root := r.Resolve("localhost:8000")
	r.IngestStatus(root, &models.Status{Connections: []string{"localhost:8000"}})

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"ws://localhost:8000"}, root.Neighbors())
	assert.Equal(t, []registry.Edge{{From: "ws://localhost:8000", To: "ws://localhost:8000"}}, r.Edges())
}

func TestLastStatusIsACopy(t *testing.T) {
	r := newRegistry()
	p := r.Resolve("localhost:8000")
	in := &models.Status{Connections: []string{"localhost:8001"}}
	r.IngestStatus(p, in)
	in.Connections[0] = "mutated"

	got := p.LastStatus()
	got.Name = "also mutated"
	assert.Equal(t, []string{"localhost:8001"}, p.LastStatus().Connections)
	assert.Empty(t, p.LastStatus().Name)
}

func TestConcurrentResolveRegistersOnce(t *testing.T) {
	r := newRegistry()
	var mu sync.Mutex
	count := 0
	r.OnDiscover(func(*registry.Peer) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve("localhost:9000")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, count)
	assert.Equal(t, 1, r.Len())
}
