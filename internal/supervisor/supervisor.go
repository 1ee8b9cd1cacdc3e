package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/dag"
	"github.com/Capitalisk/ldem/internal/ipc"
	"github.com/Capitalisk/ldem/internal/metrics"
	"github.com/Capitalisk/ldem/internal/scheduler"
	"github.com/Capitalisk/ldem/internal/update"
)

// Options configures a Supervisor.
type Options struct {
	App     *config.Model
	Spawner Spawner
	// Store records update transitions. Defaults to update.NopStore.
	Store   update.Store
	Metrics *metrics.Collector
}

// Supervisor owns the module processes of an application.
type Supervisor struct {
	opts   Options
	app    *config.Model
	logger *slog.Logger
	table  *ProcessTable

	// ctx outlives Start and bounds respawns.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	booting      bool
	closing      bool
	cancelBoot   context.CancelCauseFunc
	dependentMap map[string][]string
	order        []string

	wg sync.WaitGroup
}

// New returns a supervisor with one table entry per launchable module.
func New(ctx context.Context, opts Options) *Supervisor {
	logger := ctxlog.FromContext(ctx).With("component", "supervisor")
	if opts.Store == nil {
		opts.Store = update.NopStore{}
	}
	opts.App.ApplyDefaults()

	sctx, cancel := context.WithCancel(ctxlog.WithLogger(ctx, logger))
	s := &Supervisor{
		opts:   opts,
		app:    opts.App,
		logger: logger,
		table:  NewProcessTable(),
		ctx:    sctx,
		cancel: cancel,
	}
	for _, alias := range opts.App.Aliases() {
		s.table.Set(newModuleProcess(opts.App.Modules[alias]))
	}
	return s
}

// Table returns the process table.
func (s *Supervisor) Table() *ProcessTable { return s.table }

// Order returns the topological order computed at startup.
func (s *Supervisor) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start launches every module, resolves the dependency graph from the
// workers' handshakes and completes the handshake of each module in
// topological order. Any failure is fatal: the processes already started
// are stopped and the error is returned.
func (s *Supervisor) Start(ctx context.Context) error {
	entries := s.table.Snapshot()
	if len(entries) == 0 {
		s.logger.Warn("No launchable modules found.")
		return nil
	}

	bootCtx, cancelBoot := context.WithCancelCause(ctx)
	defer cancelBoot(nil)
	s.mu.Lock()
	s.booting = true
	s.cancelBoot = cancelBoot
	s.mu.Unlock()

	err := s.boot(bootCtx, entries)
	if cause := context.Cause(bootCtx); err != nil && cause != nil && !errors.Is(cause, context.Canceled) {
		err = cause
	}

	s.mu.Lock()
	s.booting = false
	s.cancelBoot = nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Startup failed.", "error", err)
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.app.IPCTimeout)
		defer cancel()
		s.Stop(stopCtx)
		return err
	}
	return nil
}

func (s *Supervisor) boot(ctx context.Context, entries []*ModuleProcess) error {
	s.logger.Info("Launching modules.", "modules", len(entries))

	var wg sync.WaitGroup
	errs := make([]error, len(entries))
	for i, mp := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.launchModuleProcess(ctx, mp, false)
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return err
	}

	infos := make([]dag.ModuleInfo, 0, len(entries))
	for _, mp := range entries {
		declared, hasDeclared := mp.info()
		infos = append(infos, dag.ModuleInfo{Alias: mp.Alias, Dependencies: declared, Declared: hasDeclared})
	}
	res, err := dag.Build(ctx, infos, s.app.Redirects)
	if err != nil {
		return err
	}
	for _, mp := range entries {
		mp.setResolution(res.Dependencies[mp.Alias], res.TargetDependencies[mp.Alias], res.Dependents[mp.Alias])
	}
	sched := scheduler.Order(ctx, res.Graph)

	s.mu.Lock()
	s.dependentMap = res.Dependents
	s.order = sched.Order
	s.mu.Unlock()

	for _, alias := range sched.Order {
		mp, _ := s.table.Get(alias)
		if err := s.completeHandshake(ctx, mp); err != nil {
			return err
		}
	}

	if d := s.app.StartupDelay; d > 0 {
		s.logger.Debug("Waiting before announcing readiness.", "delay", d)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}

	for _, alias := range sched.Order {
		mp, _ := s.table.Get(alias)
		s.sendAppReady(mp)
	}
	s.logger.Info("All modules are ready.", "order", sched.Order)
	return nil
}

// launchModuleProcess starts a process for mp and waits for its worker
// handshake. On a respawn the master handshake is completed right away with
// the resolution computed at startup.
func (s *Supervisor) launchModuleProcess(ctx context.Context, mp *ModuleProcess, respawn bool) error {
	logger := s.logger.With("module", mp.Alias)

	proc, err := s.opts.Spawner.Spawn(ctx, SpawnRequest{
		Alias:      mp.Alias,
		Descriptor: &mp.Descriptor,
		IPCTimeout: s.app.IPCTimeout,
		AckTimeout: s.app.AckTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to spawn module %s: %w", mp.Alias, err)
	}
	s.opts.Metrics.ObserveSpawn(mp.Alias)

	mp.mu.Lock()
	mp.process = proc
	mp.ready = false
	mp.down = false
	mp.controlled = false
	mp.startedAt = time.Now()
	if respawn {
		mp.restarts++
	}
	cfg := config.CloneMap(mp.config)
	mp.mu.Unlock()
	logger.Debug("Module process spawned.", "pid", proc.Pid(), "respawn", respawn)

	// The exit observer is attached before anything else can fail.
	s.wg.Add(1)
	go s.watch(mp, proc)

	conn := proc.Conn()
	s.handleControl(mp, conn)
	conn.Start()

	mi := ipc.MasterInit{
		AppConfig:    s.app,
		ModuleConfig: cfg,
		Updates:      mp.Tracker.Pending(),
	}
	if u, ok := mp.Tracker.Active(); ok {
		mi.ActiveUpdate = &u
	}
	if err := conn.Send(ipc.EventMasterInit, mi); err != nil {
		s.abandon(mp, proc)
		return fmt.Errorf("module %s: %w", mp.Alias, err)
	}

	started := time.Now()
	msg, err := conn.Await(ctx, ipc.EventWorkerHandshake, s.app.IPCTimeout)
	if err != nil {
		s.abandon(mp, proc)
		return s.handshakeError(mp.Alias, ipc.EventWorkerHandshake, err)
	}
	s.opts.Metrics.ObserveHandshake(mp.Alias, ipc.EventWorkerHandshake, time.Since(started))

	var hs ipc.WorkerHandshake
	if err := msg.Decode(&hs); err != nil {
		s.abandon(mp, proc)
		return fmt.Errorf("module %s: %w", mp.Alias, err)
	}
	mp.mu.Lock()
	mp.declared = hs.Dependencies
	mp.hasDeclared = hs.Declared
	mp.actions = hs.Actions
	mp.mu.Unlock()
	logger.Debug("Worker handshake received.", "dependencies", hs.Dependencies, "declared", hs.Declared, "actions", hs.Actions)

	if !respawn {
		return nil
	}
	if err := s.completeHandshake(ctx, mp); err != nil {
		s.abandon(mp, proc)
		return err
	}
	s.sendAppReady(mp)
	return nil
}

// completeHandshake sends the master handshake and waits for moduleReady.
func (s *Supervisor) completeHandshake(ctx context.Context, mp *ModuleProcess) error {
	proc := mp.Process()
	if proc == nil {
		return fmt.Errorf("module %s has no running process", mp.Alias)
	}
	conn := proc.Conn()

	s.mu.Lock()
	dependentMap := s.dependentMap
	s.mu.Unlock()

	if err := conn.Send(ipc.EventMasterHandshake, mp.masterHandshake(dependentMap)); err != nil {
		return fmt.Errorf("module %s: %w", mp.Alias, err)
	}

	started := time.Now()
	if _, err := conn.Await(ctx, ipc.EventModuleReady, s.app.IPCTimeout); err != nil {
		return s.handshakeError(mp.Alias, ipc.EventModuleReady, err)
	}
	s.opts.Metrics.ObserveHandshake(mp.Alias, ipc.EventModuleReady, time.Since(started))

	mp.mu.Lock()
	if mp.process == proc {
		mp.ready = true
	}
	mp.mu.Unlock()
	s.opts.Metrics.SetReady(mp.Alias)
	s.logger.Info("Module is ready.", "module", mp.Alias, "pid", proc.Pid())
	return nil
}

func (s *Supervisor) sendAppReady(mp *ModuleProcess) {
	proc := mp.Process()
	if proc == nil {
		return
	}
	if err := proc.Conn().Send(ipc.EventAppReady, nil); err != nil {
		s.logger.Warn("Failed to send appReady.", "module", mp.Alias, "error", err)
	}
}

func (s *Supervisor) handshakeError(alias, event string, err error) error {
	var timeout *ipc.TimeoutError
	if errors.As(err, &timeout) {
		return &HandshakeTimeoutError{Module: alias, Event: event, Timeout: timeout.Timeout}
	}
	return fmt.Errorf("module %s failed during %s: %w", alias, event, err)
}

// abandon kills proc and leaves the module down.
func (s *Supervisor) abandon(mp *ModuleProcess, proc Process) {
	mp.mu.Lock()
	if mp.process == proc {
		mp.down = true
	}
	mp.mu.Unlock()
	if err := proc.Kill(); err != nil {
		s.logger.Debug("Failed to kill module process.", "module", mp.Alias, "error", err)
	}
}

// watch consumes the exit of proc.
func (s *Supervisor) watch(mp *ModuleProcess, proc Process) {
	defer s.wg.Done()
	err := proc.Wait()
	proc.Conn().Close()
	s.onExit(mp, proc, err)
}

func (s *Supervisor) onExit(mp *ModuleProcess, proc Process, exitErr error) {
	logger := s.logger.With("module", mp.Alias, "pid", proc.Pid())

	mp.mu.Lock()
	if mp.process != proc {
		mp.mu.Unlock()
		logger.Debug("Ignoring exit of a replaced process.")
		return
	}
	controlled := mp.controlled
	down := mp.down
	mp.process = nil
	mp.ready = false
	mp.controlled = false
	mp.mu.Unlock()
	s.opts.Metrics.ObserveExit(mp.Alias, controlled)

	s.mu.Lock()
	closing, booting, cancelBoot := s.closing, s.booting, s.cancelBoot
	s.mu.Unlock()

	switch {
	case closing:
		logger.Debug("Module process exited.", "error", exitErr)
		return
	case down:
		logger.Warn("Module process exited and stays down.", "error", exitErr)
		return
	case booting:
		cancelBoot(fmt.Errorf("module %s exited during startup: %v", mp.Alias, exitErr))
		return
	}

	delay := time.Duration(0)
	if controlled {
		logger.Info("Restarting module.")
	} else {
		logger.Warn("Module process exited unexpectedly.", "error", exitErr)
		if u, snapshot, err := mp.Tracker.Revert(); err == nil {
			mp.setConfig(snapshot)
			s.recordUpdate(s.ctx, update.EventRevert, mp, u)
			logger.Warn("Reverted the active update of a crashed module.", "update_id", u.ID)
		}
		delay = mp.Descriptor.RespawnDelay
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}
	}
	if s.isClosing() {
		return
	}

	err := s.launchModuleProcess(s.ctx, mp, true)
	s.opts.Metrics.ObserveRespawn(mp.Alias, err)
	if err != nil {
		mp.mu.Lock()
		if mp.process == nil {
			mp.down = true
		}
		mp.mu.Unlock()
		logger.Error("Failed to respawn module.", "error", err)
	}
}

func (s *Supervisor) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Stop closes every control-plane connection, which asks the workers to
// unload and exit, and kills the processes still running when ctx ends.
// Exits observed after Stop are not respawned.
func (s *Supervisor) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.mu.Unlock()
	s.cancel()

	entries := s.table.Snapshot()
	for _, mp := range entries {
		if proc := mp.Process(); proc != nil {
			proc.Conn().Close()
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("All module processes exited.")
		return
	case <-ctx.Done():
	}

	for _, mp := range entries {
		if proc := mp.Process(); proc != nil {
			s.logger.Warn("Killing module process.", "module", mp.Alias, "pid", proc.Pid())
			if err := proc.Kill(); err != nil {
				s.logger.Debug("Failed to kill module process.", "module", mp.Alias, "error", err)
			}
		}
	}
	<-done
}

// Wait blocks until every process exited and no respawn is pending.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
