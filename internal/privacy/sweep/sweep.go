// Package sweep runs the periodic expiry pass over data requests. One pass
// expires every pending request past its legal due date.
//
// Multiple replicas may run the sweeper. A Redis lock elects one runner per
// tick; without Redis every replica runs, which is still correct because the
// per-request commit is compare-and-swap and losses are skipped.
package sweep

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"lastmile/internal/privacy/metrics"
	"lastmile/pkg/requestcontext"
)

const (
	lockKey          = "privacy:sweep:lock"
	DefaultInterval  = 5 * time.Minute
	DefaultBatchSize = 100
)

// Expirer is the slice of the privacy service the sweeper needs.
type Expirer interface {
	ExpireDue(ctx context.Context, batchSize int) (int, error)
}

type Sweeper struct {
	service   Expirer
	redis     *goredis.Client
	interval  time.Duration
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Sweeper)

func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) { s.interval = interval }
}

func WithBatchSize(size int) Option {
	return func(s *Sweeper) { s.batchSize = size }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// NewSweeper builds a sweeper. redis may be nil; the sweep then runs on every
// replica without leader election.
func NewSweeper(service Expirer, redis *goredis.Client, opts ...Option) *Sweeper {
	s := &Sweeper{
		service:   service,
		redis:     redis,
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes sweep passes until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "expiry sweeper started",
		"interval", s.interval,
		"batch_size", s.batchSize,
	)
	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "expiry sweeper stopped")
			return ctx.Err()
		}
	}
}

// RunOnce executes a single sweep pass. Exported so tests and admin tooling
// can trigger a pass without the ticker.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if !s.acquireLock(ctx) {
		return
	}
	defer s.releaseLock(ctx)

	start := time.Now()
	ctx = requestcontext.WithActor(ctx, requestcontext.SystemActor)

	expired, err := s.service.ExpireDue(ctx, s.batchSize)
	if s.metrics != nil {
		s.metrics.SweepRuns.Inc()
		s.metrics.ObserveSweep(start)
		s.metrics.SweepExpired.Add(float64(expired))
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed",
			"expired", expired,
			"error", err,
		)
		return
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expiry sweep completed",
			"expired", expired,
		)
	}
}

// acquireLock takes the sweep leader lock for this tick. The TTL covers a
// slow pass; the lock is released explicitly on the happy path.
func (s *Sweeper) acquireLock(ctx context.Context) bool {
	if s.redis == nil {
		return true
	}
	ok, err := s.redis.SetNX(ctx, lockKey, "1", s.interval).Result()
	if err != nil {
		// Degrade to running unlocked; CAS commits keep replicas safe.
		s.logger.WarnContext(ctx, "sweep lock unavailable, running unlocked",
			"error", err,
		)
		return true
	}
	return ok
}

func (s *Sweeper) releaseLock(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, lockKey).Err(); err != nil {
		s.logger.WarnContext(ctx, "sweep lock release failed",
			"error", err,
		)
	}
}
