package trades

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler periodically syncs the journal for every active account, so
// dashboards read fresh fills without each request hitting the
// rate-limited brokerage API.
type Scheduler struct {
	service   *Service
	syncDelay time.Duration
}

func NewScheduler(service *Service) *Scheduler {
	return &Scheduler{
		service:   service,
		syncDelay: 15 * time.Minute,
	}
}

// Start begins the sync loop and blocks until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	logger := log.With().Str("component", "sync_scheduler").Logger()
	logger.Info().Dur("interval", s.syncDelay).Msg("starting journal sync scheduler")

	ticker := time.NewTicker(s.syncDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down journal sync scheduler")
			return
		case <-ticker.C:
			if err := s.syncActiveAccounts(ctx); err != nil {
				logger.Error().Err(err).Msg("journal sync run failed")
			}
		}
	}
}

func (s *Scheduler) syncActiveAccounts(ctx context.Context) error {
	logger := log.With().Str("component", "sync_scheduler").Logger()

	active, err := s.service.accounts.ListActiveAccounts()
	if err != nil {
		return err
	}
	logger.Info().Int("account_count", len(active)).Msg("syncing active accounts")

	for _, account := range active {
		// One failing account must not starve the rest.
		if _, err := s.service.SyncFills(ctx, account.AccountID); err != nil {
			logger.Warn().
				Err(err).
				Str("account_id", account.AccountID).
				Msg("account sync failed, continuing")
		}
	}
	return nil
}
