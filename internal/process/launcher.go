package process

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "graphseed/internal/errors"
	"graphseed/internal/logger"
)

// Launcher starts processes on the local OS.
type Launcher struct {
	log         logger.Logger
	stopTimeout time.Duration
}

// NewLauncher returns a Launcher. A zero stopTimeout selects DefaultStopTimeout.
func NewLauncher(log logger.Logger, stopTimeout time.Duration) *Launcher {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Launcher{log: log, stopTimeout: stopTimeout}
}

// Start launches spec in its own process group.
func (l *Launcher) Start(ctx context.Context, spec Spec) (Handle, error) {
	if len(spec.Command) == 0 || strings.TrimSpace(spec.Command[0]) == "" {
		return nil, apperrors.New(apperrors.ErrCategoryProcess, apperrors.CodeProcessStart, "no server command configured", nil).
			WithModule("process").
			WithOperation("Start")
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Interrupted("process", "Start", err)
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	setProcessGroup(cmd)

	var closers []io.Closer
	if spec.LogFile != "" {
		f, err := openLogFile(spec.LogFile)
		if err != nil {
			return nil, startError(spec, "failed to open server log file", err).WithField("log_file", spec.LogFile)
		}
		cmd.Stdout = f
		cmd.Stderr = f
		closers = append(closers, f)
	} else {
		stdout := newLineWriter(l.log, "stdout")
		stderr := newLineWriter(l.log, "stderr")
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		closers = append(closers, stdout, stderr)
	}

	if err := cmd.Start(); err != nil {
		closeAll(closers)
		return nil, startError(spec, "failed to start server process", err)
	}

	p := &proc{
		cmd:         cmd,
		log:         l.log,
		stopTimeout: l.stopTimeout,
		done:        make(chan struct{}),
		command:     strings.Join(spec.Command, " "),
	}
	l.log.InfoContext(ctx, "Started server process",
		logger.String("command", p.command),
		logger.Int("pid", cmd.Process.Pid),
	)

	go func() {
		err := cmd.Wait()
		closeAll(closers)
		p.finish(err)
	}()

	return p, nil
}

type proc struct {
	cmd         *exec.Cmd
	log         logger.Logger
	stopTimeout time.Duration
	command     string

	done chan struct{}

	mu      sync.Mutex
	err     error
	stopped bool
}

func (p *proc) PID() int {
	return p.cmd.Process.Pid
}

func (p *proc) Done() <-chan struct{} {
	return p.done
}

func (p *proc) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *proc) finish(waitErr error) {
	p.mu.Lock()
	if waitErr != nil && !p.stopped {
		appErr := apperrors.New(apperrors.ErrCategoryProcess, apperrors.CodeProcessExited, "server process exited", waitErr).
			WithModule("process").
			WithOperation("Wait").
			WithField("command", p.command)
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			appErr.WithField("exit_code", exitErr.ExitCode())
		}
		p.err = appErr
	} else if waitErr == nil && !p.stopped {
		p.err = apperrors.New(apperrors.ErrCategoryProcess, apperrors.CodeProcessExited, "server process exited", nil).
			WithModule("process").
			WithOperation("Wait").
			WithField("command", p.command).
			WithField("exit_code", 0)
	}
	p.mu.Unlock()
	close(p.done)
}

func (p *proc) Stop(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	pid := p.PID()
	p.log.InfoContext(ctx, "Stopping server process", logger.Int("pid", pid))
	if err := terminate(p.cmd); err != nil && !isFinished(err) {
		p.log.WarnContext(ctx, "Failed to signal server process", logger.Int("pid", pid), logger.Error(err))
	}

	timer := time.NewTimer(p.stopTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	p.log.WarnContext(ctx, "Server process did not stop in time, killing", logger.Int("pid", pid))
	if err := kill(p.cmd); err != nil && !isFinished(err) {
		return apperrors.New(apperrors.ErrCategoryProcess, apperrors.CodeProcessStop, "failed to kill server process", err).
			WithModule("process").
			WithOperation("Stop").
			WithField("pid", pid)
	}
	<-p.done
	return nil
}

func startError(spec Spec, message string, err error) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCategoryProcess, apperrors.CodeProcessStart, message, err).
		WithModule("process").
		WithOperation("Start").
		WithField("command", strings.Join(spec.Command, " "))
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

func isFinished(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
