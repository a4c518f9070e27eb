package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tapiocalabs/clinagenda/services/console-service/internal/syncer"
)

// Scheduler re-pulls the appointment set on a cron schedule so the console
// converges even when no agenda events arrive.
type Scheduler struct {
	cron        *cron.Cron
	coordinator *syncer.Coordinator
	logger      *slog.Logger
	timeout     time.Duration
}

func NewScheduler(coordinator *syncer.Coordinator, logger *slog.Logger, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Scheduler{
		cron:        cron.New(),
		coordinator: coordinator,
		logger:      logger,
		timeout:     timeout,
	}
}

// Start registers the refresh job and starts the cron loop. The spec string
// uses the standard five-field cron format.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.coordinator.Refresh(ctx); err != nil {
			s.logger.Warn("scheduled refresh failed", "err", err)
			return
		}
		s.logger.Debug("scheduled refresh done")
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
