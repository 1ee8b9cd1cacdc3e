package worker

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Capitalisk/ldem/internal/ipc"
	"github.com/Capitalisk/ldem/internal/update"
)

// updater forwards a module's update requests to the master. Activation and
// reversion restart the process, so they are fire-and-forget.
type updater struct {
	conn    *ipc.Conn
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	updates []update.Update
	active  *update.Update
	// refreshed is signalled by every update list the master sends.
	refreshed []chan struct{}
}

func newUpdater(conn *ipc.Conn, timeout time.Duration, logger *slog.Logger, updates []update.Update, active *update.Update) *updater {
	u := &updater{conn: conn, timeout: timeout, logger: logger}
	u.set(ipc.ModuleUpdates{Updates: updates, ActiveUpdate: active})

	conn.Handle(ipc.EventModuleUpdates, func(msg ipc.Message) {
		var list ipc.ModuleUpdates
		if err := msg.Decode(&list); err != nil {
			logger.Warn("Ignoring malformed update list.", "error", err)
			return
		}
		u.set(list)
		logger.Debug("Update list refreshed.", "updates", len(list.Updates))
	})
	conn.Handle(ipc.EventModuleUpdatesFailure, func(msg ipc.Message) {
		var f ipc.Failure
		if err := msg.Decode(&f); err != nil {
			logger.Warn("Update request failed.")
			return
		}
		logger.Warn("Update request failed.", "error", f.Error)
	})
	return u
}

func (u *updater) set(list ipc.ModuleUpdates) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.updates = slices.Clone(list.Updates)
	u.active = list.ActiveUpdate
	for _, ch := range u.refreshed {
		close(ch)
	}
	u.refreshed = nil
}

func (u *updater) Updates() []update.Update {
	u.mu.Lock()
	defer u.mu.Unlock()
	return slices.Clone(u.updates)
}

func (u *updater) ActiveUpdate() (update.Update, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.active == nil {
		return update.Update{}, false
	}
	return *u.active, true
}

func (u *updater) Refresh(ctx context.Context) ([]update.Update, error) {
	ch := make(chan struct{})
	u.mu.Lock()
	u.refreshed = append(u.refreshed, ch)
	u.mu.Unlock()

	if err := u.conn.Send(ipc.EventModuleUpdates, nil); err != nil {
		return nil, err
	}
	timer := time.NewTimer(u.timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return u.Updates(), nil
	case <-timer.C:
		return nil, &ipc.TimeoutError{Event: ipc.EventModuleUpdates, Timeout: u.timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-u.conn.Done():
		return nil, ipc.ErrClosed
	}
}

func (u *updater) ActivateUpdate(_ context.Context, up update.Update) error {
	u.logger.Info("Requesting update activation.", "update_id", up.ID)
	return u.conn.Send(ipc.EventActivateUpdate, ipc.UpdatePacket{Update: up})
}

func (u *updater) MergeActiveUpdate(context.Context) error {
	if err := u.conn.Send(ipc.EventMergeActiveUpdate, nil); err != nil {
		return err
	}
	u.mu.Lock()
	u.active = nil
	u.mu.Unlock()
	return nil
}

func (u *updater) RevertActiveUpdate(context.Context) error {
	return u.conn.Send(ipc.EventRevertActiveUpdate, nil)
}
