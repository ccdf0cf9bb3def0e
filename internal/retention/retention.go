// Package retention prunes saved reading paths past a maximum age. It is off
// unless history.retention_hours is set.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/manpreetbhatti/readtrail/internal/history"
	"github.com/manpreetbhatti/readtrail/internal/logging"
)

type Config struct {
	Interval time.Duration
	MaxAge   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Minute,
		MaxAge:   24 * time.Hour,
	}
}

type Service struct {
	pruner history.Pruner
	config Config
	logger *slog.Logger
	now    func() time.Time

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func New(pruner history.Pruner, config Config, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	return &Service{
		pruner: pruner,
		config: config,
		logger: logging.OrDiscard(logger).With("component", "retention"),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("retention service started", "interval", s.config.Interval, "max_age", s.config.MaxAge)
}

// Stop waits for an in-flight sweep to finish. It is safe to call more than once.
func (s *Service) Stop() {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
		s.logger.Info("retention service stopped")
	})
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.SweepNow(ctx); err != nil {
		s.logger.Error("prune saved paths", "error", err)
	}
}

// SweepNow deletes every record last updated before now minus MaxAge and
// returns how many were removed.
func (s *Service) SweepNow(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.MaxAge)
	removed, err := s.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("pruned saved paths", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}
