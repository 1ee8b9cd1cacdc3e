package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/Capitalisk/ldem/internal/ipc"
	"github.com/Capitalisk/ldem/internal/update"
)

// handleControl registers the handlers for the requests a worker sends on
// its own behalf. Handlers run on the connection's read goroutine, so every
// request that may restart the process is served asynchronously.
func (s *Supervisor) handleControl(mp *ModuleProcess, conn *ipc.Conn) {
	conn.Handle(ipc.EventActivateUpdate, func(msg ipc.Message) {
		var p ipc.UpdatePacket
		if err := msg.Decode(&p); err != nil {
			s.replyFailure(mp, conn, err)
			return
		}
		go func() {
			if err := s.ActivateUpdate(s.ctx, mp.Alias, p.Update); err != nil {
				s.replyFailure(mp, conn, err)
			}
		}()
	})
	conn.Handle(ipc.EventMergeActiveUpdate, func(ipc.Message) {
		go func() {
			if err := s.MergeActiveUpdate(s.ctx, mp.Alias); err != nil {
				s.replyFailure(mp, conn, err)
			}
		}()
	})
	conn.Handle(ipc.EventRevertActiveUpdate, func(ipc.Message) {
		go func() {
			if err := s.RevertActiveUpdate(s.ctx, mp.Alias); err != nil {
				s.replyFailure(mp, conn, err)
			}
		}()
	})
	conn.Handle(ipc.EventModuleUpdates, func(ipc.Message) {
		if err := conn.Send(ipc.EventModuleUpdates, mp.moduleUpdates()); err != nil {
			s.logger.Debug("Failed to send module updates.", "module", mp.Alias, "error", err)
		}
	})
}

func (s *Supervisor) replyFailure(mp *ModuleProcess, conn *ipc.Conn, err error) {
	var conflict *update.ActiveUpdateConflictError
	if errors.As(err, &conflict) {
		s.logger.Warn("Update activation rejected.", "module", mp.Alias, "active", conflict.Active, "requested", conflict.Requested)
	} else {
		s.logger.Warn("Update request failed.", "module", mp.Alias, "error", err)
	}
	if sendErr := conn.Send(ipc.EventModuleUpdatesFailure, ipc.Failure{Error: err.Error()}); sendErr != nil {
		s.logger.Debug("Failed to report update failure.", "module", mp.Alias, "error", sendErr)
	}
}

func (s *Supervisor) entry(alias string) (*ModuleProcess, error) {
	mp, ok := s.table.Get(alias)
	if !ok {
		return nil, fmt.Errorf("unknown module %s", alias)
	}
	return mp, nil
}

// EnqueueUpdate queues u for its module and pushes the new update list to
// the running worker.
func (s *Supervisor) EnqueueUpdate(ctx context.Context, u update.Update) error {
	mp, err := s.entry(u.Module)
	if err != nil {
		return err
	}
	mp.Tracker.Enqueue(u)
	s.opts.Metrics.SetPending(mp.Alias, len(mp.Tracker.Pending()))
	s.logger.Info("Update queued.", "module", mp.Alias, "update_id", u.ID)
	s.pushUpdates(mp)
	return nil
}

// ActivateUpdate applies u to the config of the module and restarts it. It
// fails with *update.ActiveUpdateConflictError, leaving everything as it
// was, while another update is active.
func (s *Supervisor) ActivateUpdate(ctx context.Context, alias string, u update.Update) error {
	mp, err := s.entry(alias)
	if err != nil {
		return err
	}
	patched, err := mp.Tracker.Activate(u, mp.Config())
	if err != nil {
		return err
	}
	mp.setConfig(patched)
	active, _ := mp.Tracker.Active()
	s.recordUpdate(ctx, update.EventActivate, mp, active)
	return s.restart(mp)
}

// MergeActiveUpdate commits the active update of the module. The module
// keeps running.
func (s *Supervisor) MergeActiveUpdate(ctx context.Context, alias string) error {
	mp, err := s.entry(alias)
	if err != nil {
		return err
	}
	u, err := mp.Tracker.Merge()
	if err != nil {
		return fmt.Errorf("module %s: %w", alias, err)
	}
	s.recordUpdate(ctx, update.EventMerge, mp, u)
	s.pushUpdates(mp)
	return nil
}

// RevertActiveUpdate restores the config the module had before its active
// update and restarts it.
func (s *Supervisor) RevertActiveUpdate(ctx context.Context, alias string) error {
	mp, err := s.entry(alias)
	if err != nil {
		return err
	}
	u, snapshot, err := mp.Tracker.Revert()
	if err != nil {
		return fmt.Errorf("module %s: %w", alias, err)
	}
	mp.setConfig(snapshot)
	s.recordUpdate(ctx, update.EventRevert, mp, u)
	return s.restart(mp)
}

// restart kills the live process as a controlled exit; the exit observer
// relaunches it. A module that is down is relaunched directly.
func (s *Supervisor) restart(mp *ModuleProcess) error {
	mp.mu.Lock()
	proc := mp.process
	down := mp.down
	if proc != nil {
		mp.controlled = true
	}
	mp.mu.Unlock()

	if proc != nil {
		return proc.Kill()
	}
	if down && !s.isClosing() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			err := s.launchModuleProcess(s.ctx, mp, true)
			s.opts.Metrics.ObserveRespawn(mp.Alias, err)
			if err != nil {
				s.logger.Error("Failed to relaunch module.", "module", mp.Alias, "error", err)
			}
		}()
	}
	return nil
}

func (s *Supervisor) pushUpdates(mp *ModuleProcess) {
	proc := mp.Process()
	if proc == nil {
		return
	}
	if err := proc.Conn().Send(ipc.EventModuleUpdates, mp.moduleUpdates()); err != nil {
		s.logger.Debug("Failed to push module updates.", "module", mp.Alias, "error", err)
	}
}

func (s *Supervisor) recordUpdate(ctx context.Context, kind update.EventKind, mp *ModuleProcess, u update.Update) {
	s.opts.Metrics.ObserveUpdate(mp.Alias, string(kind), len(mp.Tracker.Pending()))
	ev := update.Event{Kind: kind, Module: mp.Alias, Update: u, Config: mp.Config()}
	if err := s.opts.Store.Record(ctx, ev); err != nil {
		s.logger.Error("Failed to record update event.", "module", mp.Alias, "event", kind, "update_id", u.ID, "error", err)
	}
}
