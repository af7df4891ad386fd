package logger

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress describes progress indicators that can be started and stopped.
type Progress interface {
	Start(operation string)
	Stop(operation string)
	Fail(operation string)
}

// SpinnerProgress renders a spinner-style progress indicator. One operation
// spins at a time; starting a new one stops the previous spinner.
type SpinnerProgress struct {
	mu      sync.Mutex
	output  io.Writer
	frames  []string
	stopCh  chan struct{}
	stopped chan struct{}
}

// NewSpinnerProgress creates a progress spinner writing to the provided output.
func NewSpinnerProgress(output io.Writer) *SpinnerProgress {
	if output == nil {
		output = io.Discard
	}

	return &SpinnerProgress{
		output: output,
		frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	}
}

// Start begins rendering the progress spinner with the specified message.
func (p *SpinnerProgress) Start(message string) {
	p.halt()

	p.mu.Lock()
	stopCh := make(chan struct{})
	stopped := make(chan struct{})
	p.stopCh = stopCh
	p.stopped = stopped
	p.mu.Unlock()

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for index := 0; ; index++ {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				p.mu.Lock()
				fmt.Fprintf(p.output, "\r%s %s", p.frames[index%len(p.frames)], message)
				p.mu.Unlock()
			}
		}
	}()
}

// Stop terminates the spinner and prints a completion marker.
func (p *SpinnerProgress) Stop(message string) {
	p.finish("✓", message)
}

// Fail terminates the spinner and prints a failure marker.
func (p *SpinnerProgress) Fail(message string) {
	p.finish("✗", message)
}

func (p *SpinnerProgress) finish(marker, message string) {
	p.halt()

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.output, "\r%s %s\n", marker, message)
}

func (p *SpinnerProgress) halt() {
	p.mu.Lock()
	stopCh, stopped := p.stopCh, p.stopped
	p.stopCh, p.stopped = nil, nil
	p.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-stopped
}

// NoopProgress discards progress updates.
type NoopProgress struct{}

func (NoopProgress) Start(string) {}
func (NoopProgress) Stop(string)  {}
func (NoopProgress) Fail(string)  {}
