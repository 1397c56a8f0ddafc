// File: supervisor/supervisor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Supervisor owns the DomainMap and the worker pool: it starts every
// WorkerThread sequentially, tearing down whatever already started on the
// first failure, fans routing-table changes out to every live worker, and
// turns SIGINT/SIGTERM/SIGHUP into the same dispatch ProcessQuit already
// describes for a single worker, just routed through the Supervisor's own
// tiny control loop instead of a proxy worker's.

package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/gripcore/adapters"
	"github.com/momentics/gripcore/api"
	"github.com/momentics/gripcore/control"
	"github.com/momentics/gripcore/domainmap"
	"github.com/momentics/gripcore/engine"
	"github.com/momentics/gripcore/internal/defercall"
	"github.com/momentics/gripcore/internal/eventloop"
	"github.com/momentics/gripcore/internal/signalquit"
	"github.com/momentics/gripcore/internal/workerpool"
)

// controlLoopCapacity bounds the Supervisor's own registration table; it
// only ever hosts the signal-dispatch DeferCall's readiness token plus a
// handful of timers, so a small ceiling is intentional.
const controlLoopCapacity = 16

// metricsAddr is where the Prometheus exporter listens. It is process-wide
// rather than per-worker since metrics are aggregated across all workers.
const metricsAddr = ":9091"

// Worker loop capacity heuristic, reproduced verbatim from the original
// implementation's engine.h rather than guessed: each session can arm up to
// 10 timers, each zroute up to 10, plus a fixed 100-slot margin.
const (
	timersPerSession = 10
	timersPerZRoute  = 10
	zRoutesMax       = 100
)

// workerLoopCapacity applies the heuristic to one worker's share of the
// configured session budget.
func workerLoopCapacity(sessionsMax int) int {
	return sessionsMax*timersPerSession + zRoutesMax*timersPerZRoute + 100
}

// Config is everything the Supervisor needs to start the worker pool.
type Config struct {
	Settings  *control.Settings
	DomainMap *domainmap.DomainMap
	Info      api.ServiceInfo
	Logger    *zap.Logger

	// LogRotator, if non-nil, is reopened by handleHup alongside the route
	// reload, giving SIGHUP its documented log-rotation behavior. Nil when
	// logging to stderr, since there is nothing there to rotate.
	LogRotator *control.RotatingFile
}

// Supervisor is the process-level orchestrator described in the package
// doc comment.
type Supervisor struct {
	cfg Config
	log *zap.Logger

	ctrlLoop *eventloop.EventLoop
	ctrlMgr  *defercall.Manager
	ctrlDC   *defercall.DeferCall

	workers []*workerpool.Handle

	ctrl       *adapters.ControlAdapter
	promExp    *control.PromExporter
	metricsSrv *http.Server

	doneCh   chan struct{}
	exitCode int
}

// New constructs a Supervisor. Call Run to start workers and block until
// shutdown.
func New(cfg Config) *Supervisor {
	ctrl := adapters.NewControlAdapter()
	return &Supervisor{
		cfg:     cfg,
		log:     cfg.Logger,
		ctrl:    ctrl,
		promExp: control.NewPromExporter(ctrl.Metrics(), "gripcore"),
		doneCh:  make(chan struct{}),
	}
}

// Run starts the control loop, the worker pool, and the signal wiring, then
// blocks until shutdown completes. It returns the process exit code: 0 for
// a clean shutdown, 1 if any worker failed to start or exited abnormally.
func (s *Supervisor) Run() int {
	loop, err := eventloop.NewEventLoop(controlLoopCapacity)
	if err != nil {
		s.log.Error("supervisor: control loop init failed", zap.Error(err))
		return 1
	}
	mgr, err := defercall.NewManager(loop)
	if err != nil {
		s.log.Error("supervisor: control loop manager init failed", zap.Error(err))
		loop.Close()
		return 1
	}
	s.ctrlLoop = loop
	s.ctrlMgr = mgr
	s.ctrlDC = defercall.New(mgr)
	defercall.InstallMainManager(mgr)
	go loop.Exec()

	s.registerProbes()
	s.startMetricsServer()

	if !s.startWorkers() {
		s.stopAll()
		s.shutdownControlLoop()
		return 1
	}

	signalquit.Instance().OnQuit(s.ctrlDC, s.handleQuit)
	signalquit.Instance().OnHup(s.ctrlDC, s.handleHup)
	go s.watchRoutes()

	<-s.doneCh
	return s.exitCode
}

// startWorkers launches every configured worker sequentially. On the first
// failure it tears down every worker already running and returns false.
func (s *Supervisor) startWorkers() bool {
	n := s.cfg.Settings.Workers
	if n < 1 {
		n = 1
	}
	if !s.cfg.Settings.NewEventLoop {
		s.log.Warn("supervisor: proxy.new_event_loop=false has no effect; using the in-tree event loop")
	}
	perWorkerSessionsMax := s.cfg.Settings.SessionsMax / n
	for i := 0; i < n; i++ {
		workerID := i
		h, err := workerpool.Start(workerpool.Config{
			ID:       workerID,
			CPUID:    -1,
			NUMAID:   -1,
			Capacity: workerLoopCapacity(perWorkerSessionsMax),
			Log:      s.log,
			NewEngine: func(id int, loop *eventloop.EventLoop, dc *defercall.DeferCall) api.Engine {
				ec := engine.Configuration{
					WorkerID:    id,
					ListenAddr:  s.cfg.Settings.ListenAddr,
					SessionsMax: perWorkerSessionsMax,
					DomainMap:   s.cfg.DomainMap,
					Debug:       s.cfg.Settings.Verbose,
					QuietCheck:  s.cfg.Settings.QuietCheck,
					IPCSpecs:    suffixServiceSpecs(s.cfg.Settings.Services, id),
					Logger:      s.log,
				}
				return engine.New(ec, loop, dc)
			},
		})
		if err != nil {
			s.log.Error("supervisor: worker start failed", zap.Int("worker", workerID), zap.Error(err))
			return false
		}
		s.workers = append(s.workers, h)
		s.log.Info("supervisor: worker started", zap.Int("worker", workerID))
	}
	return true
}

// suffixServiceSpecs applies control.SuffixIPCSpec to every ipc:-scheme spec
// in services, per workerID, so concurrent workers never share a socket.
func suffixServiceSpecs(services map[string]control.ServiceSpecs, workerID int) map[string]control.ServiceSpecs {
	out := make(map[string]control.ServiceSpecs, len(services))
	for name, specs := range services {
		out[name] = control.ServiceSpecs{
			InSpecs:       suffixSpecs(specs.InSpecs, workerID),
			OutSpecs:      suffixSpecs(specs.OutSpecs, workerID),
			InStreamSpecs: suffixSpecs(specs.InStreamSpecs, workerID),
		}
	}
	return out
}

func suffixSpecs(specs []string, workerID int) []string {
	if specs == nil {
		return nil
	}
	out := make([]string, len(specs))
	for i, spec := range specs {
		out[i] = control.SuffixIPCSpec(spec, workerID)
	}
	return out
}

// watchRoutes fans every DomainMap change out to every live worker's
// RoutesChanged, which each worker dispatches onto its own thread.
func (s *Supervisor) watchRoutes() {
	for range s.cfg.DomainMap.Changed() {
		for _, w := range s.workers {
			w.RoutesChanged()
		}
	}
}

// handleQuit begins graceful shutdown of every worker and the control loop.
func (s *Supervisor) handleQuit() {
	s.log.Info("supervisor: quit signal received")
	s.stopAll()
	s.shutdownControlLoop()
}

// handleHup rotates the log file, if any, and reloads the routing table,
// without restarting any worker.
func (s *Supervisor) handleHup() {
	s.log.Info("supervisor: hup signal received, rotating logs and reloading routes")
	if s.cfg.LogRotator != nil {
		if err := s.cfg.LogRotator.Reopen(); err != nil {
			s.log.Warn("supervisor: log rotate failed", zap.Error(err))
		}
	}
	if err := s.cfg.DomainMap.Reload(); err != nil {
		s.log.Warn("supervisor: route reload failed", zap.Error(err))
	}
}

func (s *Supervisor) stopAll() {
	for _, w := range s.workers {
		w.Stop()
	}
	code := 0
	for _, w := range s.workers {
		if w.Join() != 0 {
			code = 1
		}
	}
	s.exitCode = code
}

func (s *Supervisor) shutdownControlLoop() {
	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.metricsSrv.Shutdown(ctx)
		cancel()
	}
	signalquit.Instance().Cleanup()
	s.ctrlDC.Cleanup()
	s.ctrlLoop.Exit(0)
	close(s.doneCh)
}

func (s *Supervisor) registerProbes() {
	s.ctrl.RegisterDebugProbe("workers", func() any { return len(s.workers) })
	s.ctrl.RegisterDebugProbe("worker_occupancy", func() any {
		occ := make(map[int]string, len(s.workers))
		for _, w := range s.workers {
			used, capacity := w.Occupancy()
			occ[w.ID()] = fmt.Sprintf("%d/%d", used, capacity)
		}
		return occ
	})
	s.ctrl.RegisterDebugProbe("routes", func() any { return s.cfg.DomainMap.RouteCount() })
	s.ctrl.SetMetric("workers_configured", s.cfg.Settings.Workers)
}

func (s *Supervisor) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.promExp.Handler())
	mux.HandleFunc("/debug/vars", func(w http.ResponseWriter, r *http.Request) {
		for k, v := range s.ctrl.Stats() {
			fmt.Fprintf(w, "%s=%v\n", k, v)
		}
	})
	s.metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Warn("supervisor: metrics server exited", zap.Error(err))
		}
	}()
}
