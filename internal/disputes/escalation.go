package disputes

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultStaleAfter is how long a dispute may sit awaiting review before the
// sweeper escalates it to mediation.
const DefaultStaleAfter = 48 * time.Hour

// Sweeper periodically escalates disputes stuck in review past the deadline,
// covering disputes whose re-assessment never completed.
type Sweeper struct {
	repo       Repository
	mediator   Mediator
	auditor    Auditor
	logger     *zap.Logger
	cron       *cron.Cron
	staleAfter time.Duration
}

func NewSweeper(repo Repository, mediator Mediator, auditor Auditor, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		repo:       repo,
		mediator:   mediator,
		auditor:    auditor,
		logger:     logger,
		cron:       cron.New(),
		staleAfter: DefaultStaleAfter,
	}
}

// Start schedules the sweep.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc("@every 15m", s.sweep); err != nil {
		return fmt.Errorf("failed to schedule dispute sweeper: %w", err)
	}
	s.cron.Start()
	s.logger.Info("dispute escalation sweeper started",
		zap.Duration("stale_after", s.staleAfter))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stale, err := s.repo.ListStale(ctx, time.Now().Add(-s.staleAfter))
	if err != nil {
		s.logger.Error("dispute sweep failed", zap.Error(err))
		return
	}

	for i := range stale {
		dispute := &stale[i]
		dispute.Status = StatusEscalated
		dispute.UpdatedAt = time.Now()
		if err := s.repo.Update(ctx, dispute); err != nil {
			s.logger.Error("failed to escalate stale dispute",
				zap.String("dispute_id", dispute.ID.String()), zap.Error(err))
			continue
		}
		s.auditor.Record(ctx, "dispute", dispute.ID, "escalated by sweeper after review deadline", dispute.FiledBy)

		if s.mediator != nil {
			if err := s.mediator.Escalate(ctx, dispute); err != nil {
				s.logger.Warn("failed to hand stale dispute to mediation",
					zap.String("dispute_id", dispute.ID.String()), zap.Error(err))
			}
		}
	}

	if len(stale) > 0 {
		s.logger.Info("escalated stale disputes", zap.Int("count", len(stale)))
	}
}
