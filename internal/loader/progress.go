package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"graphseed/internal/logger"
)

// ProgressReporter receives upload progress updates.
type ProgressReporter interface {
	OnStart(fileName string, totalSize int64)
	OnProgress(fileName string, current, total int64, speed float64)
	OnComplete(fileName string, totalSize int64, elapsed time.Duration)
}

// NoopProgressReporter discards all progress events.
type NoopProgressReporter struct{}

func (NoopProgressReporter) OnStart(string, int64)                    {}
func (NoopProgressReporter) OnProgress(string, int64, int64, float64) {}
func (NoopProgressReporter) OnComplete(string, int64, time.Duration)  {}

// ConsoleProgressReporter renders a progress bar; suitable for a single
// upload stream on a terminal.
type ConsoleProgressReporter struct {
	mu         sync.Mutex
	writer     io.Writer
	lastUpdate time.Time
}

// NewConsoleProgressReporter constructs a ConsoleProgressReporter (stderr by default).
func NewConsoleProgressReporter(w io.Writer) *ConsoleProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgressReporter{writer: w}
}

func (c *ConsoleProgressReporter) OnStart(fileName string, totalSize int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.writer, "  %s: uploading %s\n", fileName, humanBytes(totalSize))
	c.lastUpdate = time.Now()
}

func (c *ConsoleProgressReporter) OnProgress(fileName string, current, total int64, speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastUpdate) < 200*time.Millisecond {
		return
	}
	c.lastUpdate = now

	if total <= 0 {
		fmt.Fprintf(c.writer, "\r  %s: %s sent", fileName, humanBytes(current))
		return
	}
	fmt.Fprintf(c.writer, "\r  %s: [%s] %5.1f%% %.2f MB/s", fileName, bar(current, total, 30), percent(current, total), speed)
}

func (c *ConsoleProgressReporter) OnComplete(fileName string, totalSize int64, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	speed := 0.0
	if elapsed > 0 {
		speed = float64(totalSize) / elapsed.Seconds() / 1024 / 1024
	}
	fmt.Fprintf(c.writer, "\r  %s: [%s] 100.0%% %.2f MB/s\n", fileName, strings.Repeat("=", 30), speed)
}

// LogProgressReporter reports start and completion through the logger;
// used when uploads run in parallel or output is not a terminal.
type LogProgressReporter struct {
	Log logger.Logger
}

func (r LogProgressReporter) OnStart(fileName string, totalSize int64) {
	r.Log.DebugContext(context.Background(), "Upload started",
		logger.String("file", fileName),
		logger.Int64("bytes", totalSize),
	)
}

func (LogProgressReporter) OnProgress(string, int64, int64, float64) {}

func (r LogProgressReporter) OnComplete(fileName string, totalSize int64, elapsed time.Duration) {
	r.Log.DebugContext(context.Background(), "Upload body sent",
		logger.String("file", fileName),
		logger.Int64("bytes", totalSize),
		logger.Duration("elapsed", elapsed),
	)
}

// ProgressReader wraps a reader to emit progress updates.
type ProgressReader struct {
	reader    io.Reader
	total     int64
	current   int64
	reporter  ProgressReporter
	fileName  string
	startTime time.Time
	finished  bool
}

// NewProgressReader constructs a progress tracking reader.
func NewProgressReader(reader io.Reader, total int64, reporter ProgressReporter, fileName string) *ProgressReader {
	if reporter == nil {
		reporter = NoopProgressReporter{}
	}

	pr := &ProgressReader{
		reader:    reader,
		total:     total,
		reporter:  reporter,
		fileName:  fileName,
		startTime: time.Now(),
	}
	reporter.OnStart(fileName, total)
	return pr
}

// Read implements io.Reader and relays progress. Completion is reported
// once, when the underlying reader hits EOF.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.current += int64(n)
		elapsed := time.Since(pr.startTime).Seconds()
		if elapsed <= 0 {
			elapsed = 0.001
		}
		speed := float64(pr.current) / elapsed / 1024 / 1024
		pr.reporter.OnProgress(pr.fileName, pr.current, pr.total, speed)
	}
	if err == io.EOF && !pr.finished {
		pr.finished = true
		pr.reporter.OnComplete(pr.fileName, pr.current, time.Since(pr.startTime))
	}
	return n, err
}

// Current returns the number of bytes read so far.
func (pr *ProgressReader) Current() int64 {
	return pr.current
}

func bar(current, total int64, width int) string {
	filled := int(float64(width) * float64(current) / float64(total))
	if filled > width {
		filled = width
	}
	if filled == width {
		return strings.Repeat("=", width)
	}
	return strings.Repeat("=", filled) + ">" + strings.Repeat(" ", width-filled-1)
}

func percent(current, total int64) float64 {
	p := float64(current) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
