package newsbot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// runTimeout bounds a scheduled run so a hanging feed cannot pile up jobs.
const runTimeout = 2 * time.Minute

// Scheduler runs the bot on a cron spec such as "@every 30m".
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler validates spec and registers the job. Call Start to begin.
func NewScheduler(bot *Bot, spec string, logger *slog.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		// Run logs and counts its own failures.
		_, _ = bot.Run(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("newsbot: invalid schedule %q: %w", spec, err)
	}

	return &Scheduler{cron: c, logger: logger}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("news bot scheduled", slog.Time("next", e.Next))
	}
}

// Stop stops scheduling and waits for a running job, up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("news bot run still in progress at shutdown")
	}
}
