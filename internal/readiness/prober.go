package readiness

import (
	"context"
	"errors"
	"time"

	apperrors "graphseed/internal/errors"
	"graphseed/internal/graphdb"
	"graphseed/internal/logger"
)

// RepositoryLister is the slice of the GraphDB client the prober needs.
type RepositoryLister interface {
	ListRepositoriesAt(ctx context.Context, path string) ([]graphdb.Repository, error)
}

// Prober polls the repository listing until the server answers.
type Prober struct {
	client RepositoryLister
	path   string
	policy Policy
	log    logger.Logger
	opts   Options
}

// ProberOption customises a Prober.
type ProberOption func(*Prober)

// WithSleeper replaces the sleep function, mainly for tests.
func WithSleeper(s Sleeper) ProberOption {
	return func(p *Prober) {
		p.opts.Sleep = s
	}
}

// WithRetryOptions replaces all retry options at once.
func WithRetryOptions(opts Options) ProberOption {
	return func(p *Prober) {
		p.opts = opts
	}
}

// NewProber builds a prober for path (usually /rest/repositories).
func NewProber(client RepositoryLister, path string, policy Policy, log logger.Logger, opts ...ProberOption) *Prober {
	p := &Prober{
		client: client,
		path:   path,
		policy: policy,
		log:    log,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.opts.IsTransient == nil {
		p.opts.IsTransient = graphdb.Transient
	}
	return p
}

// Check sends a single probe.
func (p *Prober) Check(ctx context.Context) ([]graphdb.Repository, error) {
	repos, err := p.client.ListRepositoriesAt(ctx, p.path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCategoryNetwork, apperrors.CodeRequestFailed,
			"readiness probe failed", "readiness", "Check")
	}
	return repos, nil
}

// WaitReady probes until the server answers. Exhausting the attempts yields
// NET-001, a permanent failure NET-002, and cancellation SYS-001.
func (p *Prober) WaitReady(ctx context.Context) ([]graphdb.Repository, error) {
	start := time.Now()
	total := p.policy.attempts()

	opts := p.opts
	userHook := opts.OnRetry
	opts.OnRetry = func(attempt int, delay time.Duration, err error) {
		p.log.WarnContext(ctx, "GraphDB not ready, retrying",
			logger.Int("attempt", attempt-1),
			logger.Int("max_attempts", total),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
		if userHook != nil {
			userHook(attempt, delay, err)
		}
	}

	var repos []graphdb.Repository
	err := Retry(ctx, p.policy, opts, func(ctx context.Context, attempt int) error {
		p.log.DebugContext(ctx, "Probing GraphDB",
			logger.String("path", p.path),
			logger.Int("attempt", attempt),
		)
		var err error
		repos, err = p.client.ListRepositoriesAt(ctx, p.path)
		return err
	})
	if err == nil {
		p.log.InfoContext(ctx, "GraphDB is ready",
			logger.Int("repositories", len(repos)),
			logger.Duration("elapsed", time.Since(start)),
		)
		return repos, nil
	}

	var exhausted *ExhaustedError
	var permanent *PermanentError
	switch {
	case errors.As(err, &exhausted):
		return nil, apperrors.New(apperrors.ErrCategoryNetwork, apperrors.CodeNotReady, "GraphDB did not become ready", exhausted.Err).
			WithModule("readiness").
			WithOperation("WaitReady").
			WithField("attempts", exhausted.Attempts).
			WithField("last_error", errorText(exhausted.Err)).
			WithField("elapsed", time.Since(start).String())
	case errors.As(err, &permanent):
		return nil, apperrors.New(apperrors.ErrCategoryNetwork, apperrors.CodeProbeRejected, "GraphDB rejected the readiness probe", permanent.Err).
			WithModule("readiness").
			WithOperation("WaitReady").
			WithField("attempts", permanent.Attempt)
	default:
		return nil, apperrors.Interrupted("readiness", "WaitReady", err)
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
