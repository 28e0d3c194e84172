package router_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphite-tools/graphite-proxy/aggregator"
	"github.com/graphite-tools/graphite-proxy/buffer"
	"github.com/graphite-tools/graphite-proxy/persistence"
	"github.com/graphite-tools/graphite-proxy/router"
	"github.com/graphite-tools/graphite-proxy/stats"
)

func newGlobalBuffer() *buffer.GlobalBuffer {
	return buffer.New(100, false, nil)
}

func TestRoutePassThroughWithoutPipeline(t *testing.T) {
	gb := newGlobalBuffer()
	r := router.New(gb, nil, &persistence.Store{}, nil, stats.New())

	assert.True(t, r.RouteLine("a.b 1 100", 0))
	assert.Equal(t, uint64(1), gb.BufferSizes()["a.b"])
}

func TestRouteBadSyntaxDropsAndCounts(t *testing.T) {
	gb := newGlobalBuffer()
	registry := stats.New()
	r := router.New(gb, nil, &persistence.Store{}, nil, registry)

	assert.False(t, r.RouteLine("not a valid line with too many fields", 0))
	snap := registry.Snapshot()
	assert.Equal(t, int64(1), snap[stats.RequestsDropped])
}

func TestRouteToPipelineWhenWanted(t *testing.T) {
	gb := newGlobalBuffer()
	xmlDoc := `<maths><category name="app\..*"><sum>10</sum></category></maths>`
	p, err := aggregator.New(strings.NewReader(xmlDoc), 100, gb, nil)
	require.NoError(t, err)

	r := router.New(gb, p, &persistence.Store{}, nil, stats.New())
	assert.True(t, r.RouteLine("app.x 1 100", 0))

	assert.Empty(t, gb.BufferSizes())
	handles := p.TrackableBuffers()
	require.Len(t, handles, 1)
	assert.Equal(t, uint64(1), handles[0].Size)
}

func TestSerializeAndLoadPendingRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ptPath := filepath.Join(dir, "pt.txt")
	mathPath := filepath.Join(dir, "math.txt")

	gb := newGlobalBuffer()
	xmlDoc := `<maths><category name="app\..*"><sum>10</sum><average>10</average></category></maths>`
	p, err := aggregator.New(strings.NewReader(xmlDoc), 100, gb, nil)
	require.NoError(t, err)

	store := &persistence.Store{}
	r := router.New(gb, p, store, nil, stats.New())

	require.True(t, r.RouteLine("pt.one 1 1", 0))
	require.True(t, r.RouteLine("pt.two 2 2", 0))
	require.True(t, r.RouteLine("app.x 1 10", 0))
	require.True(t, r.RouteLine("app.x 2 20", 0))

	saved := r.SerializePending(ptPath, mathPath)
	assert.Equal(t, 6, saved)

	gb2 := newGlobalBuffer()
	p2, err := aggregator.New(strings.NewReader(xmlDoc), 100, gb2, nil)
	require.NoError(t, err)
	r2 := router.New(gb2, p2, store, nil, stats.New())

	loaded := r2.LoadPending(ptPath, mathPath, 0)
	assert.Equal(t, 6, loaded)
	assert.Len(t, gb2.TakeAll(), 2)

	handles := p2.TrackableBuffers()
	var total uint64
	for _, h := range handles {
		total += h.Size
	}
	assert.Equal(t, uint64(4), total)
}
