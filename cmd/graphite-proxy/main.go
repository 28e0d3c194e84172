// Command graphite-proxy wires every package in this module into one
// running process: ingress listeners, the routing/aggregation/buffering
// core, the downstream client, persistence, and the optional sinks/admin
// surface. Grounded on original_source/src/server/main.cpp's construction
// order and signal-handling contract (SIGINT/SIGTERM/SIGQUIT save-then-
// exit with a second-signal force quit, SIGUSR1 reload aggregation rules,
// SIGUSR2 dump current state), reworked from the original's global
// pointers into one process struct built and threaded explicitly by main
// (see DESIGN.md's ProcessContext decision).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/graphite-tools/graphite-proxy/admin"
	"github.com/graphite-tools/graphite-proxy/aggregator"
	"github.com/graphite-tools/graphite-proxy/badmetrics"
	"github.com/graphite-tools/graphite-proxy/buffer"
	"github.com/graphite-tools/graphite-proxy/config"
	"github.com/graphite-tools/graphite-proxy/destination"
	"github.com/graphite-tools/graphite-proxy/flusher"
	"github.com/graphite-tools/graphite-proxy/listener"
	"github.com/graphite-tools/graphite-proxy/logging"
	"github.com/graphite-tools/graphite-proxy/periodic"
	"github.com/graphite-tools/graphite-proxy/persistence"
	"github.com/graphite-tools/graphite-proxy/procstats"
	"github.com/graphite-tools/graphite-proxy/reaper"
	"github.com/graphite-tools/graphite-proxy/router"
	"github.com/graphite-tools/graphite-proxy/sinks"
	"github.com/graphite-tools/graphite-proxy/statscollector"
	"github.com/graphite-tools/graphite-proxy/stats"
)

const version = "1.0.0"

// exit codes mirror original_source/src/server/exit_status.hpp.
const (
	exitSuccess         = 0
	exitBadConfiguration = 1
	exitForceQuit        = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configDir := flag.String("c", "", "configuration directory")
	flag.StringVar(configDir, "config-dir", "", "configuration directory")
	showVersion := flag.Bool("v", false, "show version")
	flag.BoolVar(showVersion, "version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Println("graphite-proxy " + version)
		return exitSuccess
	}

	if *configDir == "" {
		fmt.Println("No argument -c or --config-dir found. Run 'graphite-proxy --help' to show the help")
		return exitBadConfiguration
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad configuration:", err)
		return exitBadConfiguration
	}

	logs, err := logging.New(cfg.Logs.Level, cfg.Logs.Colors)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad logging configuration:", err)
		return exitBadConfiguration
	}
	if cfg.Logs.Destination != "" {
		if err := logs.SetDestination(cfg.Logs.Destination); err != nil {
			log.WithError(err).Warn("main: can't set log destination, staying on stdout")
		}
	}

	log.WithField("pid", os.Getpid()).Info("starting graphite-proxy")

	p, err := newProcess(cfg, *configDir)
	if err != nil {
		log.WithError(err).Error("main: startup failed")
		return exitBadConfiguration
	}

	return p.runUntilSignal()
}

// process holds every live component for one run of the proxy, threaded
// explicitly instead of through package-level globals (see DESIGN.md).
type process struct {
	cfg       *config.Config
	configDir string

	registry *stats.Registry
	global   *buffer.GlobalBuffer
	pipeline *aggregator.Pipeline
	tap      *badmetrics.Tap
	store    *persistence.Store
	rtr      *router.Router
	client   *destination.Client

	flushTask *periodic.Task
	reapTask  *periodic.Task
	statsTask *periodic.Task
	mathsTick *periodic.Task

	admin *admin.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newProcess(cfg *config.Config, configDir string) (*process, error) {
	registry := stats.New()

	client := destination.New(cfg.Client.Address, cfg.Client.Port, 5*time.Second, registry)
	global := buffer.New(cfg.Buffer.FlushSize, cfg.Buffer.DropOldest, client)

	var pipeline *aggregator.Pipeline
	if cfg.Maths.Enabled {
		f, err := os.Open(cfg.MathsPath(configDir))
		if err != nil {
			return nil, fmt.Errorf("open maths file: %w", err)
		}
		defer f.Close()

		pipeline, err = aggregator.New(f, cfg.Maths.MaxItems, global, registry)
		if err != nil {
			return nil, fmt.Errorf("load maths file: %w", err)
		}
	} else {
		log.Info("maths module disabled")
	}

	tap := badmetrics.New()

	store := &persistence.Store{Compress: cfg.Persistence.Compress}
	if cfg.Sinks.S3.Enabled {
		mirror, err := sinks.NewS3Mirror(cfg.Sinks.S3.Bucket, cfg.Sinks.S3.Prefix, cfg.Sinks.S3.Region)
		if err != nil {
			log.WithError(err).Warn("main: s3 mirror disabled, session setup failed")
		} else {
			store.Uploader = mirror
		}
	}

	rtr := router.New(global, pipeline, store, tap, registry)

	ctx, cancel := context.WithCancel(context.Background())

	p := &process{
		cfg:       cfg,
		configDir: configDir,
		registry:  registry,
		global:    global,
		pipeline:  pipeline,
		tap:       tap,
		store:     store,
		rtr:       rtr,
		client:    client,
		ctx:       ctx,
		cancel:    cancel,
	}

	var kafkaAudit *sinks.KafkaAudit
	if cfg.Sinks.Kafka.Enabled {
		var err error
		kafkaAudit, err = sinks.NewKafkaAudit(cfg.Sinks.Kafka.Brokers, cfg.Sinks.Kafka.Topic, cfg.Sinks.Kafka.SampleRate)
		if err != nil {
			log.WithError(err).Warn("main: kafka audit disabled, producer setup failed")
			kafkaAudit = nil
		}
	}

	p.flushTask = periodic.New(time.Duration(cfg.Buffer.FlushTime)*time.Second, func(time.Time) {
		flusher.New(global, client, kafkaAuditOrNil(kafkaAudit)).Tick(time.Now())
	})

	if cfg.Buffer.CleaningOn {
		var reapPipeline reaper.Pipeline
		if pipeline != nil {
			reapPipeline = pipeline
		}
		rp := reaper.New(global, reapPipeline, cfg.Buffer.CleaningMaths, cfg.Buffer.CleaningMaxEmptyStreak, registry)
		p.reapTask = periodic.New(time.Duration(cfg.Buffer.CleaningTime)*time.Second, func(time.Time) {
			rp.Sweep()
		})
	}

	if cfg.Stats.Enabled {
		sampler, err := procstats.New()
		if err != nil {
			log.WithError(err).Warn("main: process gauges unavailable")
		}
		hostname, _ := os.Hostname()

		var alerter *sinks.AMQPAlert
		var thresholds []statscollector.Threshold
		if cfg.Sinks.AMQP.Enabled {
			alerter, err = sinks.NewAMQPAlert(cfg.Sinks.AMQP.URL, cfg.Sinks.AMQP.Exchange, cfg.Sinks.AMQP.RoutingKey)
			if err != nil {
				log.WithError(err).Warn("main: amqp alerting disabled, dial failed")
				alerter = nil
			} else {
				thresholds = []statscollector.Threshold{{MetricKey: stats.RequestsDropped, Above: cfg.Sinks.AMQP.DroppedThreshold}}
			}
		}

		p.statsTask = periodic.New(time.Duration(cfg.Stats.Time)*time.Second, func(now time.Time) {
			statscollector.New(registry, global, pipelineOrNil(pipeline), procstatsOrNil(sampler), rtr, hostname, alerterOrNil(alerter), thresholds).Tick(now)
		})
	}

	if pipeline != nil {
		p.mathsTick = periodic.New(time.Duration(cfg.Maths.Time)*time.Second, func(now time.Time) {
			pipeline.Tick(now)
		})
	}

	if cfg.Admin.Enabled {
		p.admin = admin.New(fmt.Sprintf("%s:%d", cfg.Admin.Address, cfg.Admin.Port), adminSource{p}, p.dumpState)
	}

	return p, nil
}

// adminSource adapts process to admin.StatusSource.
type adminSource struct{ p *process }

func (a adminSource) BufferSizes() map[string]uint64 { return a.p.global.BufferSizes() }
func (a adminSource) Registry() *stats.Registry       { return a.p.registry }

// pipelineOrNil avoids handing statscollector a typed-nil interface value
// (a *aggregator.Pipeline(nil) wrapped in an interface is non-nil to a
// `!= nil` check, so a direct conversion would later panic on method
// dispatch).
func pipelineOrNil(p *aggregator.Pipeline) statscollector.GlobalBuffer {
	if p == nil {
		return nil
	}
	return p
}

func procstatsOrNil(c *procstats.Collector) statscollector.ProcessSampler {
	if c == nil {
		return nil
	}
	return c
}

func kafkaAuditOrNil(k *sinks.KafkaAudit) flusher.Auditor {
	if k == nil {
		return nil
	}
	return k
}

func alerterOrNil(a *sinks.AMQPAlert) statscollector.Alerter {
	if a == nil {
		return nil
	}
	return a
}

func (p *process) dumpState() (string, error) {
	path := p.cfg.Signals.CurrentStateFile
	if p.configDir != "" {
		path = p.configDir + "/" + path
	}
	n := p.rtr.SerializePending(p.configDir+"/"+p.cfg.Router.PassThroughFile, p.configDir+"/"+p.cfg.Router.MathsFile)
	log.WithField("messages", n).Info("main: dumped current state")
	return path, nil
}

func (p *process) runUntilSignal() int {
	p.flushTask.Start(p.ctx)
	if p.reapTask != nil {
		p.reapTask.Start(p.ctx)
	}
	if p.statsTask != nil {
		p.statsTask.Start(p.ctx)
	}
	if p.mathsTick != nil {
		p.mathsTick.Start(p.ctx)
	}

	if p.cfg.Router.SaveOnClose {
		n := p.rtr.LoadPending(
			p.configDir+"/"+p.cfg.Router.PassThroughFile,
			p.configDir+"/"+p.cfg.Router.MathsFile,
			uint64(time.Now().Unix()),
		)
		log.WithField("messages", n).Info("main: loaded pending state")
	}

	now := func() uint64 { return uint64(time.Now().Unix()) }
	tcpListener := listener.NewTCP(p.rtr, now, p.registry)
	udpListener := listener.NewUDP(p.rtr, now, p.registry)

	go tcpListener.Serve(p.ctx, fmt.Sprintf("%s:%d", p.cfg.Server.Address, p.cfg.Server.Port))
	go udpListener.Serve(p.ctx, fmt.Sprintf("%s:%d", p.cfg.Server.Address, p.cfg.Server.UDPPort))

	if p.admin != nil {
		go p.admin.Serve(p.ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGUSR1, syscall.SIGUSR2)

	quitting := false
	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR1:
			p.reloadMaths()
		case syscall.SIGUSR2:
			if _, err := p.dumpState(); err != nil {
				log.WithError(err).Error("main: dump state failed")
			}
		default:
			if quitting {
				log.Warn("main: force quit")
				return exitForceQuit
			}
			quitting = true
			log.WithField("signal", sig.String()).Info("main: shutting down")

			if p.cfg.Router.SaveOnClose {
				p.rtr.SerializePending(
					p.configDir+"/"+p.cfg.Router.PassThroughFile,
					p.configDir+"/"+p.cfg.Router.MathsFile,
				)
			}

			p.cancel()
			p.flushTask.Stop()
			if p.reapTask != nil {
				p.reapTask.Stop()
			}
			if p.statsTask != nil {
				p.statsTask.Stop()
			}
			if p.mathsTick != nil {
				p.mathsTick.Stop()
			}
			return exitSuccess
		}
	}

	return exitSuccess
}

func (p *process) reloadMaths() {
	if p.pipeline == nil {
		log.Info("main: maths module disabled, nothing to reload")
		return
	}

	f, err := os.Open(p.cfg.MathsPath(p.configDir))
	if err != nil {
		log.WithError(err).Error("main: can't open maths file for reload")
		return
	}
	defer f.Close()

	if err := p.pipeline.Reload(f); err != nil {
		log.WithError(err).Error("main: maths reload failed")
		return
	}
	log.Info("main: maths configuration reloaded")
}
