// Package process supervises the GraphDB server process.
package process

import (
	"context"
	"time"
)

// Spec describes the command to launch.
type Spec struct {
	Command []string
	Dir     string
	// Env entries (KEY=value) are appended to the current environment.
	Env []string
	// LogFile receives stdout and stderr when set; otherwise output is
	// logged line by line at debug level.
	LogFile string
}

// Handle controls a running process.
type Handle interface {
	PID() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Wait blocks until exit. It returns nil after a requested Stop and a
	// PRC-002 error for any other exit.
	Wait() error
	// Stop terminates the process group, escalating to SIGKILL after the
	// stop timeout or when ctx ends.
	Stop(ctx context.Context) error
}

// Executor abstracts process creation to ease testing.
type Executor interface {
	Start(ctx context.Context, spec Spec) (Handle, error)
}

// DefaultStopTimeout applies when no stop timeout is configured.
const DefaultStopTimeout = 30 * time.Second
