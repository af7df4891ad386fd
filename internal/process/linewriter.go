package process

import (
	"bytes"
	"context"
	"sync"

	"graphseed/internal/logger"
)

const maxLine = 64 * 1024

// lineWriter forwards process output to the logger one line at a time.
type lineWriter struct {
	log    logger.Logger
	stream string

	mu  sync.Mutex
	buf bytes.Buffer
}

func newLineWriter(log logger.Logger, stream string) *lineWriter {
	return &lineWriter{log: log, stream: stream}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			if w.buf.Len() > maxLine {
				w.emit(w.buf.String())
				w.buf.Reset()
			}
			return len(p), nil
		}
		w.emit(string(data[:idx]))
		w.buf.Next(idx + 1)
	}
}

func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
	return nil
}

func (w *lineWriter) emit(line string) {
	line = string(bytes.TrimRight([]byte(line), "\r"))
	if line == "" {
		return
	}
	w.log.DebugContext(context.Background(), line, logger.String("stream", w.stream))
}
