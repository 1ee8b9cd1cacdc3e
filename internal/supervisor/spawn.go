package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/Capitalisk/ldem/internal/config"
	"github.com/Capitalisk/ldem/internal/ipc"
)

// Process is a running module process.
type Process interface {
	Pid() int
	// Conn is the control-plane connection to the worker. It is not started.
	Conn() *ipc.Conn
	Kill() error
	// Wait blocks until the process exits. It is called exactly once.
	Wait() error
}

// SpawnRequest describes the process to start for a module.
type SpawnRequest struct {
	Alias      string
	Descriptor *config.ModuleDescriptor
	IPCTimeout time.Duration
	AckTimeout time.Duration
}

// Spawner starts module processes.
type Spawner interface {
	Spawn(ctx context.Context, req SpawnRequest) (Process, error)
}

// ExecSpawner starts each module as a child process running the worker
// command. The control plane travels over two extra pipes: the child reads
// from fd 3 and writes to fd 4.
type ExecSpawner struct {
	// Executable runs modules that have no entry of their own. Empty means
	// the current executable.
	Executable string
	LogLevel   string
	LogFormat  string
	Stdout     io.Writer
	Stderr     io.Writer
}

// Spawn implements Spawner.
func (s *ExecSpawner) Spawn(ctx context.Context, req SpawnRequest) (Process, error) {
	path := req.Descriptor.Entry
	if path == "" {
		path = s.Executable
	}
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate the worker executable: %w", err)
		}
		path = exe
	}

	args := []string{
		"worker",
		"--alias", req.Alias,
		"--ipc-timeout", req.IPCTimeout.String(),
		"--ack-timeout", req.AckTimeout.String(),
	}
	if s.LogLevel != "" {
		args = append(args, "--log-level", s.LogLevel)
	}
	if s.LogFormat != "" {
		args = append(args, "--log-format", s.LogFormat)
	}

	childR, parentW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create control pipe: %w", err)
	}
	parentR, childW, err := os.Pipe()
	if err != nil {
		childR.Close()
		parentW.Close()
		return nil, fmt.Errorf("failed to create control pipe: %w", err)
	}

	cmd := exec.Command(path, args...)
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	cmd.ExtraFiles = []*os.File{childR, childW}

	startErr := cmd.Start()
	// The child holds its own copies now.
	childR.Close()
	childW.Close()
	if startErr != nil {
		parentR.Close()
		parentW.Close()
		return nil, fmt.Errorf("failed to start %s: %w", path, startErr)
	}

	return &execProcess{
		cmd:  cmd,
		conn: ipc.NewConn(parentR, parentW, pipeCloser{parentR, parentW}),
	}, nil
}

type pipeCloser struct {
	r, w *os.File
}

func (p pipeCloser) Close() error {
	return errors.Join(p.w.Close(), p.r.Close())
}

type execProcess struct {
	cmd  *exec.Cmd
	conn *ipc.Conn
}

func (p *execProcess) Pid() int        { return p.cmd.Process.Pid }
func (p *execProcess) Conn() *ipc.Conn { return p.conn }

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	p.conn.Close()
	return err
}
