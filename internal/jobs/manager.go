package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"ledgerfund/internal/loader"
)

// Manager schedules background maintenance jobs.
type Manager struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
}

// NewManager builds the job scheduler.
func NewManager(logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Manager{scheduler: scheduler, logger: logger}, nil
}

// RegisterProposalRefresh schedules a periodic full reload of the
// proposal snapshot. Singleton mode skips a run while one is in flight,
// which lines up with the loader's own single-flight join.
func (m *Manager) RegisterProposalRefresh(ldr *loader.Loader, interval time.Duration) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if err := ldr.LoadAll(ctx); err != nil {
				m.logger.Warn("scheduled proposal refresh failed", zap.Error(err))
			}
		}),
		gocron.WithName("proposal_refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}

// Start launches the scheduler.
func (m *Manager) Start() {
	m.scheduler.Start()
	m.logger.Info("job scheduler started")
}

// Stop shuts the scheduler down.
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		m.logger.Warn("job scheduler shutdown failed", zap.Error(err))
	}
}
