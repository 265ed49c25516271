// Package performance answers "how much of this account's growth came
// from trading" by running the equity-curve extractor over brokerage
// portfolio history.
package performance

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/foliopulse/pnl-api/internal/accounts"
	"github.com/foliopulse/pnl-api/internal/brokerage"
	"github.com/foliopulse/pnl-api/internal/pnl"
	"github.com/foliopulse/pnl-api/pkg/response"
)

// Service computes account-level trading performance.
type Service struct {
	broker    *brokerage.Client
	accounts  *accounts.Service
	extractor pnl.Extractor
}

// NewService creates a performance service. depositJumpThreshold tunes
// the deposit-inference heuristic for accounts without cashflow
// telemetry; zero keeps the extractor default.
func NewService(broker *brokerage.Client, accountsService *accounts.Service, depositJumpThreshold float64) *Service {
	return &Service{
		broker:    broker,
		accounts:  accountsService,
		extractor: pnl.Extractor{DepositJumpThreshold: depositJumpThreshold},
	}
}

// AccountPerformance fetches the account's equity history and extracts
// the trading-attributable P&L and growth from it.
func (s *Service) AccountPerformance(ctx context.Context, accountID string) (*pnl.TradingPnLResult, error) {
	logger := log.With().
		Str("account_id", accountID).
		Str("service", "performance").
		Logger()

	creds, err := s.accounts.Credentials(accountID)
	if err != nil {
		return nil, err
	}

	series, err := s.broker.GetEquityHistory(ctx, creds)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch equity history")
		return nil, err
	}

	result := s.extractor.Extract(series)

	logger.Info().
		Int("samples", len(series)).
		Float64("trading_pnl", result.TradingPnL).
		Float64("base_value", result.BaseValue).
		Float64("growth_percent", result.GrowthPercent).
		Msg("extracted trading performance")

	return &result, nil
}

// GinHandlers contains HTTP handlers for performance endpoints.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for performance
// endpoints.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// AccountPerformanceHandler handles GET requests for account trading
// performance. URL parameter: account_id
func (h *GinHandlers) AccountPerformanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.AccountPerformance(c.Request.Context(), c.Param("account_id"))
		if errors.Is(err, accounts.ErrAccountNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, result, err)
	}
}
