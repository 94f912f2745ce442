package scheduler

import (
	"context"
	"time"

	"github.com/janicogyle/ccs-membership-sub001/pkg/logger"
	"github.com/robfig/cron/v3"
)

// GrantPurger clears reset grants that expired at or before now.
type GrantPurger interface {
	ClearExpiredGrants(ctx context.Context, now time.Time) (int64, error)
}

// ResetGrantScheduler periodically nulls expired reset grants. Expiry is
// already enforced on every read; this only keeps stale columns from piling up.
type ResetGrantScheduler struct {
	cron    *cron.Cron
	spec    string
	purger  GrantPurger
	timeout time.Duration
}

func NewResetGrantScheduler(purger GrantPurger, spec string) *ResetGrantScheduler {
	return &ResetGrantScheduler{
		cron:    cron.New(),
		spec:    spec,
		purger:  purger,
		timeout: 30 * time.Second,
	}
}

// Start registers the purge job and starts the cron runner.
func (s *ResetGrantScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.RunOnce); err != nil {
		logger.Error("Failed to add cron job for reset grant purge", err, map[string]interface{}{
			"spec": s.spec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Reset grant scheduler started", map[string]interface{}{
		"spec": s.spec,
	})
	return nil
}

// RunOnce performs a single purge.
func (s *ResetGrantScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	cleared, err := s.purger.ClearExpiredGrants(ctx, time.Now())
	if err != nil {
		logger.Error("Failed to purge expired reset grants", err)
		return
	}

	logger.Info("Expired reset grants purged", map[string]interface{}{
		"cleared": cleared,
	})
}

// Stop waits for a running purge to finish.
func (s *ResetGrantScheduler) Stop() {
	logger.Info("Stopping reset grant scheduler...", nil)
	<-s.cron.Stop().Done()
	logger.Info("Reset grant scheduler stopped", nil)
}
