package worker

import (
	"errors"
	"fmt"
	"os"

	"github.com/Capitalisk/ldem/internal/ipc"
)

// Control-plane descriptors inherited from the master.
const (
	controlInFD  = 3
	controlOutFD = 4
)

// ErrNoControlPlane is returned when the process was not started by an ldem
// master.
var ErrNoControlPlane = errors.New("no control plane: workers are started by the ldem master")

// ControlPlane opens the control-plane connection on the descriptors set
// up by the master's spawner. The connection is not started.
func ControlPlane() (*ipc.Conn, error) {
	in := os.NewFile(controlInFD, "ldem-control-in")
	out := os.NewFile(controlOutFD, "ldem-control-out")
	for _, f := range []*os.File{in, out} {
		if _, err := f.Stat(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoControlPlane, err)
		}
	}
	return ipc.NewConn(in, out, closers{out, in}), nil
}
