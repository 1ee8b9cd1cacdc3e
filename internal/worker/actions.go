package worker

import (
	"context"
	"os"
	"time"

	"github.com/Capitalisk/ldem/internal/transport"
)

// PingResult is the answer of the built-in ping worker action.
type PingResult struct {
	Alias  string `json:"alias"`
	Pid    int    `json:"pid"`
	Source string `json:"source"`
	Uptime string `json:"uptime"`
}

// workerActions are served by every worker regardless of its module and
// reached through InvokeOnWorker.
func workerActions(alias string, started time.Time) map[string]transport.Procedure {
	return map[string]transport.Procedure{
		"ping": {
			Handler: func(_ context.Context, req *transport.Request) (any, error) {
				return PingResult{
					Alias:  alias,
					Pid:    os.Getpid(),
					Source: req.Source,
					Uptime: time.Since(started).Round(time.Millisecond).String(),
				}, nil
			},
		},
	}
}
