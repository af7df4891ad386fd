package readiness

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"testing"
	"time"

	apperrors "graphseed/internal/errors"
	"graphseed/internal/graphdb"
	"graphseed/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

type scriptedLister struct {
	results []error
	calls   int
	paths   []string
}

func (l *scriptedLister) ListRepositoriesAt(ctx context.Context, path string) ([]graphdb.Repository, error) {
	l.paths = append(l.paths, path)
	idx := l.calls
	l.calls++
	if idx < len(l.results) && l.results[idx] != nil {
		return nil, l.results[idx]
	}
	return []graphdb.Repository{{ID: "langchain"}}, nil
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{Attempts: 5, InitialDelay: 30 * time.Second, Multiplier: 1}
	assert.Equal(t, time.Duration(0), p.Delay(1, nil))
	for attempt := 2; attempt <= 5; attempt++ {
		assert.Equal(t, 30*time.Second, p.Delay(attempt, nil), "attempt %d", attempt)
	}

	exp := Policy{InitialDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, exp.Delay(2, nil))
	assert.Equal(t, 2*time.Second, exp.Delay(3, nil))
	assert.Equal(t, 4*time.Second, exp.Delay(4, nil))
	assert.Equal(t, 5*time.Second, exp.Delay(5, nil))

	jitter := Policy{InitialDelay: time.Second, Multiplier: 1, Jitter: true}
	assert.Equal(t, 500*time.Millisecond, jitter.Delay(2, nil))
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		d := jitter.Delay(2, rng)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 1500*time.Millisecond)
	}

	assert.Equal(t, time.Duration(0), Policy{Multiplier: 2}.Delay(3, nil))
}

func TestRetryStopsOnSuccess(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0
	err := Retry(context.Background(), Policy{Attempts: 4, InitialDelay: time.Second, Multiplier: 2}, Options{Sleep: sleeper.Sleep},
		func(ctx context.Context, attempt int) error {
			calls++
			if attempt < 3 {
				return errors.New("not yet")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
}

func TestRetryPermanentAndExhausted(t *testing.T) {
	sleeper := &recordingSleeper{}
	boom := errors.New("forbidden")
	err := Retry(context.Background(), Policy{Attempts: 3}, Options{
		Sleep:       sleeper.Sleep,
		IsTransient: func(err error) bool { return !errors.Is(err, boom) },
	}, func(ctx context.Context, attempt int) error {
		return boom
	})
	var permanent *PermanentError
	require.ErrorAs(t, err, &permanent)
	assert.Equal(t, 1, permanent.Attempt)
	assert.ErrorIs(t, err, boom)

	var retried []int
	err = Retry(context.Background(), Policy{Attempts: 3}, Options{
		Sleep:   sleeper.Sleep,
		OnRetry: func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) },
	}, func(ctx context.Context, attempt int) error {
		return errors.New("refused")
	})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, []int{2, 3}, retried)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Retry(ctx, Policy{Attempts: 5, InitialDelay: time.Hour}, Options{}, func(ctx context.Context, attempt int) error {
		cancel()
		return errors.New("refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitReadySucceedsAfterTransientFailures(t *testing.T) {
	lister := &scriptedLister{results: []error{
		&graphdb.StatusError{StatusCode: http.StatusServiceUnavailable},
		context.DeadlineExceeded,
	}}
	sleeper := &recordingSleeper{}
	log := logger.NewMockLogger()

	p := NewProber(lister, "/rest/repositories", Policy{Attempts: 5, InitialDelay: 30 * time.Second, Multiplier: 1}, log, WithSleeper(sleeper.Sleep))
	repos, err := p.WaitReady(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 1)

	assert.Equal(t, 3, lister.calls)
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, sleeper.delays)
	assert.Equal(t, 2, log.CountEntries(logger.LevelWarn))
	assert.True(t, log.HasEntry(logger.LevelInfo, "GraphDB is ready"))
	assert.Equal(t, "/rest/repositories", lister.paths[0])
}

func TestWaitReadyExhausted(t *testing.T) {
	refused := &graphdb.StatusError{StatusCode: http.StatusBadGateway}
	lister := &scriptedLister{results: []error{refused, refused, refused}}
	p := NewProber(lister, "/rest/repositories", Policy{Attempts: 3, InitialDelay: time.Second, Multiplier: 1}, logger.NewMockLogger(), WithSleeper((&recordingSleeper{}).Sleep))

	_, err := p.WaitReady(context.Background())
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeNotReady, appErr.Code)
	assert.Equal(t, 3, appErr.Metadata["attempts"])
	assert.Contains(t, appErr.Metadata["last_error"], "502")
	assert.Equal(t, 3, lister.calls)
}

func TestWaitReadyPermanentFailureAbortsAtOnce(t *testing.T) {
	lister := &scriptedLister{results: []error{&graphdb.StatusError{StatusCode: http.StatusUnauthorized}}}
	p := NewProber(lister, "/rest/repositories", Policy{Attempts: 5, InitialDelay: time.Second}, logger.NewMockLogger(), WithSleeper((&recordingSleeper{}).Sleep))

	_, err := p.WaitReady(context.Background())
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeProbeRejected, appErr.Code)
	assert.Equal(t, 1, lister.calls)
}

func TestWaitReadyInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewProber(&scriptedLister{}, "/rest/repositories", Policy{Attempts: 5}, logger.NewMockLogger())
	_, err := p.WaitReady(ctx)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInterrupted, appErr.Code)
	assert.True(t, apperrors.IsCancelled(err))
}

func TestCheckWrapsFailure(t *testing.T) {
	lister := &scriptedLister{results: []error{errors.New("dial tcp: connection refused")}}
	p := NewProber(lister, "/rest/repositories", Policy{Attempts: 1}, logger.NewMockLogger())

	_, err := p.Check(context.Background())
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeRequestFailed, appErr.Code)
	assert.Equal(t, "readiness", appErr.Module)
}
