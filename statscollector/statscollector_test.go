package statscollector_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphite-tools/graphite-proxy/message"
	"github.com/graphite-tools/graphite-proxy/procstats"
	"github.com/graphite-tools/graphite-proxy/statscollector"
	"github.com/graphite-tools/graphite-proxy/stats"
)

type fakeRouter struct {
	routed []message.Message
}

func (f *fakeRouter) Route(msg message.Message) bool {
	f.routed = append(f.routed, msg)
	return true
}

type fakeHWM struct{ v uint64 }

func (f fakeHWM) HighWaterMark() uint64 { return f.v }

type fakeAlerter struct {
	alerts []string
}

func (f *fakeAlerter) PublishAlert(body string) error {
	f.alerts = append(f.alerts, body)
	return nil
}

func TestTickEmitsPrefixedMessagesAndClearsRegistry(t *testing.T) {
	reg := stats.New()
	reg.Counter(stats.MessagesCreated).Inc(5)

	router := &fakeRouter{}
	c := statscollector.New(reg, fakeHWM{v: 10}, fakeHWM{v: 3}, nil, router, "host1", nil, nil)

	c.Tick(time.Unix(1000, 0))

	require.NotEmpty(t, router.routed)
	var found bool
	for _, m := range router.routed {
		if m.Name() == "graphite_proxy.host1.stats."+stats.MessagesCreated {
			found = true
			assert.Equal(t, float64(5), m.Value())
		}
	}
	assert.True(t, found)

	// Second tick should see the registry cleared (messages.created back to 0).
	router.routed = nil
	c.Tick(time.Unix(1001, 0))
	for _, m := range router.routed {
		if m.Name() == "graphite_proxy.host1.stats."+stats.MessagesCreated {
			assert.Equal(t, float64(0), m.Value())
		}
	}
}

func TestTickIncludesProcessSamplesWhenConfigured(t *testing.T) {
	reg := stats.New()
	router := &fakeRouter{}
	sampler := fakeSampler{procstats.Sample{ResidentBytes: 4096, OpenFDs: 7}}
	c := statscollector.New(reg, fakeHWM{}, fakeHWM{}, sampler, router, "host1", nil, nil)

	c.Tick(time.Unix(1000, 0))

	var sawFDs bool
	for _, m := range router.routed {
		if m.Name() == "graphite_proxy.host1.stats.process.open_fds" {
			sawFDs = true
			assert.Equal(t, float64(7), m.Value())
		}
	}
	assert.True(t, sawFDs)
}

type fakeSampler struct{ s procstats.Sample }

func (f fakeSampler) Sample() procstats.Sample { return f.s }

func TestTickFiresAlertOnThresholdBreach(t *testing.T) {
	reg := stats.New()
	reg.Counter(stats.RequestsDropped).Inc(100)

	router := &fakeRouter{}
	alerter := &fakeAlerter{}
	thresholds := []statscollector.Threshold{{MetricKey: stats.RequestsDropped, Above: 10}}
	c := statscollector.New(reg, fakeHWM{}, fakeHWM{}, nil, router, "host1", alerter, thresholds)

	c.Tick(time.Unix(1000, 0))

	require.Len(t, alerter.alerts, 1)
	assert.Contains(t, alerter.alerts[0], stats.RequestsDropped)
}
