// Package statscollector periodically snapshots internal counters and
// buffer high-water marks, emits them as "graphite_proxy.<host>.stats.*"
// messages back through the Router, and optionally raises an AMQP alert
// when a configured threshold is breached. Grounded on
// original_source/.../models/statistics/statistics.cpp's iteration/raise
// contract: accumulate between ticks, emit-then-clear each tick, prefixed
// "graphite_proxy.<hostname>.stats.".
package statscollector

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/graphite-tools/graphite-proxy/message"
	"github.com/graphite-tools/graphite-proxy/procstats"
	"github.com/graphite-tools/graphite-proxy/stats"
)

// Router is the capability the collector needs to emit generated stat
// messages, named locally to avoid an import cycle with package router.
type Router interface {
	Route(msg message.Message) bool
}

// GlobalBuffer is the capability the collector needs from the
// pass-through buffer layer.
type GlobalBuffer interface {
	HighWaterMark() uint64
}

// ProcessSampler is the capability the collector needs from package
// procstats. Nil disables process gauges entirely.
type ProcessSampler interface {
	Sample() procstats.Sample
}

// Alerter publishes a threshold-breach notice. Nil disables alerting.
type Alerter interface {
	PublishAlert(body string) error
}

// Threshold names a single metric key and the value above which an alert
// fires.
type Threshold struct {
	MetricKey string
	Above     uint64
}

// Collector periodically snapshots stats.Registry plus buffer/process
// gauges and routes them as messages.
type Collector struct {
	registry     *stats.Registry
	global       GlobalBuffer
	pipeline     GlobalBuffer // aggregation buffer high-water, same shape
	sampler      ProcessSampler
	router       Router
	hostname     string
	alerter      Alerter
	thresholds   []Threshold
}

// New creates a Collector. pipeline and sampler and alerter may be nil to
// disable their respective optional gauges/alerts.
func New(registry *stats.Registry, global GlobalBuffer, pipeline GlobalBuffer, sampler ProcessSampler, router Router, hostname string, alerter Alerter, thresholds []Threshold) *Collector {
	return &Collector{
		registry:   registry,
		global:     global,
		pipeline:   pipeline,
		sampler:    sampler,
		router:     router,
		hostname:   hostname,
		alerter:    alerter,
		thresholds: thresholds,
	}
}

// Tick runs one collection cycle: read and clear the registry, add
// buffer/process gauges, emit one message per metric, and check
// thresholds.
func (c *Collector) Tick(now time.Time) {
	ts := uint64(now.Unix())

	metrics := c.registry.Snapshot()
	metrics[globalBufferMax] = int64(c.global.HighWaterMark())
	if c.pipeline != nil {
		metrics[mathBufferMax] = int64(c.pipeline.HighWaterMark())
	}
	if c.sampler != nil {
		sample := c.sampler.Sample()
		metrics[processResidentBytes] = int64(sample.ResidentBytes)
		metrics[processOpenFDs] = int64(sample.OpenFDs)
	}
	metrics[statsMessages] = int64(len(metrics) + 1)

	prefix := fmt.Sprintf("graphite_proxy.%s.stats.", c.hostname)
	for key, value := range metrics {
		c.router.Route(message.New(prefix+key, float64(value), ts, ts))
		c.checkThreshold(key, value)
	}
}

func (c *Collector) checkThreshold(key string, value int64) {
	if c.alerter == nil || value < 0 {
		return
	}
	for _, th := range c.thresholds {
		if th.MetricKey == key && uint64(value) > th.Above {
			body := fmt.Sprintf("%s exceeded threshold: %d > %d", key, value, th.Above)
			if err := c.alerter.PublishAlert(body); err != nil {
				log.WithField("metric", key).WithError(err).Warn("statscollector: alert publish failed")
			}
		}
	}
}

const (
	globalBufferMax      = "global_buffer.messages.max"
	mathBufferMax         = "math_buffer.messages.max"
	processResidentBytes = "process.resident_bytes"
	processOpenFDs        = "process.open_fds"
	statsMessages         = "stats.messages"
)
