// Package ui renders terminal output for graphseed commands.
package ui

import (
	"fmt"
	"io"
	"os"

	"graphseed/internal/logger"
)

// Console couples the logger, a progress indicator and plain text output.
type Console struct {
	logger   logger.Logger
	progress logger.Progress
	output   io.Writer
}

// NewConsole builds a Console. The spinner is only used on terminals.
func NewConsole(log logger.Logger, output io.Writer) *Console {
	if output == nil {
		output = os.Stdout
	}
	c := &Console{logger: log, output: output}
	if IsTerminal(output) {
		c.progress = logger.NewSpinnerProgress(output)
	} else {
		c.progress = logger.NoopProgress{}
	}
	return c
}

// WithProgress replaces the progress indicator.
func (c *Console) WithProgress(p logger.Progress) *Console {
	c.progress = p
	return c
}

// Logger exposes the underlying logger.
func (c *Console) Logger() logger.Logger {
	return c.logger
}

// Output exposes the writer used for plain output.
func (c *Console) Output() io.Writer {
	return c.output
}

// Success logs a success message with a consistent prefix.
func (c *Console) Success(format string, args ...interface{}) {
	if c.logger == nil {
		return
	}
	c.logger.Info("✓ "+format, args...)
}

// StartProgress starts the progress indicator.
func (c *Console) StartProgress(operation string) {
	c.progress.Start(operation)
}

// StopProgress marks the current operation as done.
func (c *Console) StopProgress(operation string) {
	c.progress.Stop(operation)
}

// FailProgress marks the current operation as failed.
func (c *Console) FailProgress(operation string) {
	c.progress.Fail(operation)
}

// WriteLine outputs formatted text without involving the logger.
func (c *Console) WriteLine(format string, args ...interface{}) {
	fmt.Fprintf(c.output, format+"\n", args...)
}
