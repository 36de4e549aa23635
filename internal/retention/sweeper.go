package retention

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ResponseStore is the slice of storage the sweeper needs.
type ResponseStore interface {
	DeleteResponsesBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper purges raw responses older than the retention window on a cron
// schedule. Results are kept; only the per-question response rows age out.
type Sweeper struct {
	store    ResponseStore
	window   time.Duration
	schedule cron.Schedule
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New parses the cron spec (standard 5-field format) and returns a sweeper.
func New(store ResponseStore, window time.Duration, spec string, logger *zap.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, err
	}
	return &Sweeper{
		store:    store,
		window:   window,
		schedule: schedule,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start runs the sweep loop until Stop or context cancellation. A zero
// retention window disables the sweeper.
func (s *Sweeper) Start(ctx context.Context) {
	if s.window <= 0 {
		s.logger.Info("response retention disabled")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.window)
	removed, err := s.store.DeleteResponsesBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("retention sweep",
		zap.Time("cutoff", cutoff),
		zap.Int("responses_removed", removed))
}
