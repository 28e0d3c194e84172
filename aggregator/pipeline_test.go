package aggregator

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphite-tools/graphite-proxy/message"
)

type fakeSink struct {
	messages []message.Message
}

func (f *fakeSink) Add(msg message.Message) bool {
	f.messages = append(f.messages, msg)
	return true
}

func fixedNow(t time.Time) clockNowFunc {
	return func() time.Time { return t }
}

type clockNowFunc = func() time.Time

func TestAggregationEndToEnd(t *testing.T) {
	xmlDoc := `<maths>
  <category name="ads_server\..+\..+">
    <sum>2</sum>
    <average>2</average>
  </category>
</maths>`

	sink := &fakeSink{}
	start := time.Unix(1000, 0)
	p, err := newPipeline(strings.NewReader(xmlDoc), 100, sink, nil, fixedNow(start))
	require.NoError(t, err)

	for _, line := range []string{
		"ads_server.1.nbr 1 1000",
		"ads_server.1.nbr 1 1001",
		"ads_server.2.nbr 1 1000",
		"ads_server.2.nbr 1 1001",
	} {
		m, ok := message.ParseLine(line, 0)
		require.True(t, ok)
		assert.True(t, p.Add(m, ""))
	}

	p.Tick(start)

	require.Len(t, sink.messages, 4)

	byName := map[string][]float64{}
	for _, m := range sink.messages {
		byName[m.Name()] = append(byName[m.Name()], m.Value())
	}
	assert.ElementsMatch(t, []float64{2, 1}, byName["ads_server.1.nbr"])
	assert.ElementsMatch(t, []float64{2, 1}, byName["ads_server.2.nbr"])
}

func TestIsWantedFirstMatchWins(t *testing.T) {
	xmlDoc := `<maths>
  <category name="app\.a.*">
    <sum>5</sum>
  </category>
  <category name="app\..*">
    <sum>5</sum>
  </category>
</maths>`

	p, err := newPipeline(strings.NewReader(xmlDoc), 100, &fakeSink{}, nil, time.Now)
	require.NoError(t, err)

	assert.True(t, p.IsWanted("app.a.thing"))
	assert.True(t, p.IsWanted("app.b.thing"))
	assert.False(t, p.IsWanted("other.thing"))

	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotNil(t, p.isWanted("app.a.thing"))
	assert.Equal(t, `app\.a.*`, p.isWanted("app.a.thing").Filter, "both categories match; the first one configured wins")
	require.NotNil(t, p.isWanted("app.b.thing"))
	assert.Equal(t, `app\..*`, p.isWanted("app.b.thing").Filter)
}

func TestAddRejectsUnmatchedMetric(t *testing.T) {
	xmlDoc := `<maths><category name="app\..*"><sum>5</sum></category></maths>`
	p, err := newPipeline(strings.NewReader(xmlDoc), 100, &fakeSink{}, nil, time.Now)
	require.NoError(t, err)

	m, _ := message.ParseLine("other.thing 1 1", 0)
	assert.False(t, p.Add(m, ""))
}

func TestDrainAllTagsKind(t *testing.T) {
	xmlDoc := `<maths>
  <category name="app\..*">
    <sum>10</sum>
    <average>10</average>
  </category>
</maths>`
	p, err := newPipeline(strings.NewReader(xmlDoc), 100, &fakeSink{}, nil, time.Now)
	require.NoError(t, err)

	m, _ := message.ParseLine("app.x 1 1", 0)
	p.Add(m, "")

	pending := p.DrainAll()
	require.Len(t, pending, 2)
	kinds := []string{pending[0].Kind, pending[1].Kind}
	assert.ElementsMatch(t, []string{"sum", "average"}, kinds)
}

func TestAddWithFilterRoutesToSingleOperation(t *testing.T) {
	xmlDoc := `<maths>
  <category name="app\..*">
    <sum>10</sum>
    <average>10</average>
  </category>
</maths>`
	p, err := newPipeline(strings.NewReader(xmlDoc), 100, &fakeSink{}, nil, time.Now)
	require.NoError(t, err)

	m, _ := message.ParseLine("app.x 1 1", 0)
	assert.True(t, p.Add(m, "sum"))

	pending := p.DrainAll()
	require.Len(t, pending, 1)
	assert.Equal(t, "sum", pending[0].Kind)
}

func TestTrackableBuffersAndRemove(t *testing.T) {
	xmlDoc := `<maths><category name="app\..*"><sum>10</sum></category></maths>`
	p, err := newPipeline(strings.NewReader(xmlDoc), 100, &fakeSink{}, nil, time.Now)
	require.NoError(t, err)

	m, _ := message.ParseLine("app.x 1 1", 0)
	p.Add(m, "")

	handles := p.TrackableBuffers()
	require.Len(t, handles, 1)
	assert.Equal(t, "app.x sum", handles[0].Name)

	p.Remove(handles[0].Name)
	assert.Empty(t, p.TrackableBuffers())
}

func TestReloadKeepsExistingOperations(t *testing.T) {
	xmlDoc := `<maths><category name="app\..*"><sum>10</sum></category></maths>`
	p, err := newPipeline(strings.NewReader(xmlDoc), 100, &fakeSink{}, nil, time.Now)
	require.NoError(t, err)

	m, _ := message.ParseLine("app.x 1 1", 0)
	p.Add(m, "")

	newXML := `<maths><category name="other\..*"><sum>10</sum></category></maths>`
	require.NoError(t, p.Reload(strings.NewReader(newXML)))

	assert.False(t, p.IsWanted("app.x"))
	assert.Len(t, p.TrackableBuffers(), 1, "existing operation buffer survives reload until reaped")
}

func TestTickOnTimeSkipsEmptyWindowWithoutBackfill(t *testing.T) {
	xmlDoc := `<maths><category name="app\..*"><sum>10s</sum></category></maths>`
	start := time.Unix(1000, 0)
	p, err := newPipeline(strings.NewReader(xmlDoc), 100, &fakeSink{}, nil, fixedNow(start))
	require.NoError(t, err)

	m, _ := message.ParseLine("app.x 1 1005", 0)
	p.Add(m, "")

	p.Tick(time.Unix(1005, 0))
	handles := p.TrackableBuffers()
	require.Len(t, handles, 1)
	assert.Equal(t, uint64(1), handles[0].Size, "window not yet due")

	sink := &fakeSink{}
	p.sink = sink
	p.Tick(time.Unix(1011, 0))
	require.Len(t, sink.messages, 1)
	assert.Equal(t, 1.0, sink.messages[0].Value())

	// Windows 1010-1020 .. 1090-1100 hold no data: nothing is emitted for
	// them, and the window alignment jumps to now instead of catching up.
	p.Tick(time.Unix(1100, 0))
	assert.Len(t, sink.messages, 1)
	assert.Equal(t, uint64(1100), p.operations["app.x"][0].Computation.LastFired())
}
