package worker

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/Capitalisk/ldem/internal/ctxlog"
	"github.com/Capitalisk/ldem/internal/ipc"
	"github.com/Capitalisk/ldem/internal/registry"
	"github.com/Capitalisk/ldem/internal/supervisor"
)

// errKilled is the exit error of a killed in-process worker.
var errKilled = errors.New("worker killed")

// InProcessSpawner runs each module as a goroutine of the master process,
// connected through in-memory pipes. Modules share the master's address
// space, so a panicking module takes the whole application down.
type InProcessSpawner struct {
	Registry *registry.Registry
}

// Spawn implements supervisor.Spawner.
func (s *InProcessSpawner) Spawn(ctx context.Context, req supervisor.SpawnRequest) (supervisor.Process, error) {
	toWorkerR, toWorkerW := io.Pipe()
	toMasterR, toMasterW := io.Pipe()

	// The process outlives the spawn request.
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &inProcess{
		conn:   ipc.NewConn(toMasterR, toWorkerW, closers{toMasterR, toWorkerW}),
		cancel: cancel,
		pipes:  closers{toWorkerR, toWorkerW, toMasterR, toMasterW},
		done:   make(chan struct{}),
	}

	go func() {
		err := Run(wctx, Options{
			Alias:      req.Alias,
			Conn:       ipc.NewConn(toWorkerR, toMasterW, nil),
			Registry:   s.Registry,
			IPCTimeout: req.IPCTimeout,
			AckTimeout: req.AckTimeout,
		})
		if err != nil {
			ctxlog.FromContext(wctx).Error("Worker stopped.", "module", req.Alias, "error", err)
		}
		p.finish(err)
	}()
	return p, nil
}

type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for _, cl := range c {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}

type inProcess struct {
	conn   *ipc.Conn
	cancel context.CancelFunc
	pipes  closers

	mu     sync.Mutex
	killed bool
	err    error
	once   sync.Once
	done   chan struct{}
}

func (p *inProcess) Pid() int        { return os.Getpid() }
func (p *inProcess) Conn() *ipc.Conn { return p.conn }

func (p *inProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.cancel()
	return nil
}

func (p *inProcess) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killed {
		return errKilled
	}
	return p.err
}

func (p *inProcess) finish(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		p.pipes.Close()
		p.cancel()
		close(p.done)
	})
}
