// Command backfill syncs journaled fills for every active account
// directly against the database and prints a realized P&L report. It is
// meant for operational catch-up after downtime and for sanity-checking
// the dashboard numbers from a terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/foliopulse/pnl-api/internal/accounts"
	"github.com/foliopulse/pnl-api/internal/brokerage"
	"github.com/foliopulse/pnl-api/internal/config"
	"github.com/foliopulse/pnl-api/internal/database"
	"github.com/foliopulse/pnl-api/internal/performance"
	"github.com/foliopulse/pnl-api/internal/pnl"
	"github.com/foliopulse/pnl-api/internal/trades"
	"github.com/foliopulse/pnl-api/pkg/crypto"
)

// init configures the logger with pretty printing and timestamps.
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func main() {
	var (
		accountID = flag.String("account", "", "backfill a single account instead of all active ones")
		skipSync  = flag.Bool("skip-sync", false, "report from the existing journal without hitting the brokerage")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	cipher, err := crypto.NewCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize credential cipher")
	}

	broker := brokerage.NewClient(cfg.BrokerageBaseURL)
	accountsService := accounts.NewService(db, cipher)
	tradesService := trades.NewService(db, broker, accountsService)
	performanceService := performance.NewService(broker, accountsService, cfg.DepositJumpThreshold)

	targets, err := resolveTargets(accountsService, *accountID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve accounts")
	}

	ctx := context.Background()
	for _, target := range targets {
		if err := backfillAccount(ctx, tradesService, performanceService, target, *skipSync); err != nil {
			log.Error().Err(err).Str("account_id", target).Msg("backfill failed")
		}
	}
}

func resolveTargets(accountsService *accounts.Service, accountID string) ([]string, error) {
	if accountID != "" {
		if _, err := accountsService.GetAccount(accountID); err != nil {
			return nil, err
		}
		return []string{accountID}, nil
	}

	active, err := accountsService.ListActiveAccounts()
	if err != nil {
		return nil, err
	}
	targets := make([]string, len(active))
	for i, account := range active {
		targets[i] = account.AccountID
	}
	return targets, nil
}

func backfillAccount(
	ctx context.Context,
	tradesService *trades.Service,
	performanceService *performance.Service,
	accountID string,
	skipSync bool,
) error {
	if !skipSync {
		result, err := tradesService.SyncFills(ctx, accountID)
		if err != nil {
			return err
		}
		log.Info().
			Str("account_id", accountID).
			Int("fills_seen", result.FillsSeen).
			Int("fills_added", result.FillsAdded).
			Msg("journal synced")
	}

	symbols, err := tradesService.Symbols(accountID)
	if err != nil {
		return err
	}

	fmt.Printf("\nAccount %s\n", accountID)
	for _, symbol := range symbols {
		match, err := tradesService.PositionPnL(accountID, symbol)
		if err != nil {
			if errors.Is(err, pnl.ErrNoFills) {
				continue
			}
			return err
		}
		fmt.Printf("  %-8s realized %10.2f on qty %10.4f (open %10.4f)\n",
			symbol, match.RealizedPnL, match.RealizedQuantity, match.OpenQuantity)
	}

	perf, err := performanceService.AccountPerformance(ctx, accountID)
	if err != nil {
		log.Warn().Err(err).Str("account_id", accountID).Msg("performance unavailable")
		return nil
	}
	fmt.Printf("  trading P&L %.2f on base %.2f (%.2f%%), ending equity %.2f\n",
		perf.TradingPnL, perf.BaseValue, perf.GrowthPercent, perf.EndingEquity)
	return nil
}
