package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Expirer is the sweep entry point, one pass per call.
type Expirer interface {
	Expire(ctx context.Context) (int64, error)
}

// Sweeper periodically reclaims inventory held by lapsed reservations. It is
// a safety net behind the lazy expiry on the request paths; running several
// instances at once is fine because the underlying transition is conditional.
type Sweeper struct {
	svc      Expirer
	interval time.Duration
	logger   *slog.Logger
}

func New(svc Expirer, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		svc:      svc,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	released, err := s.svc.Expire(ctx)
	if err != nil {
		s.logger.Error("sweep failed", slog.Any("error", err))
		return
	}

	if released > 0 {
		s.logger.Info("sweep released expired reservations", slog.Int64("released", released))
	}
}
