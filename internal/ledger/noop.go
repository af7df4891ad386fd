package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Noop satisfies Store when the ledger is disabled. Nothing is remembered,
// so every file is always uploaded.
type Noop struct{}

func (Noop) BeginRun(_ context.Context, command string) (Run, error) {
	return Run{ID: uuid.NewString(), Command: command, Status: RunRunning, StartedAt: time.Now().UTC()}, nil
}

func (Noop) FinishRun(context.Context, string, string) error { return nil }

func (Noop) RecordLoad(context.Context, LoadRecord) error { return nil }

func (Noop) LastLoad(context.Context, Key) (LoadRecord, bool, error) {
	return LoadRecord{}, false, nil
}

func (Noop) History(context.Context, int) ([]LoadRecord, error) { return nil, nil }

func (Noop) Forget(context.Context, string) (int64, error) { return 0, nil }

func (Noop) Close() error { return nil }

var _ Store = Noop{}
