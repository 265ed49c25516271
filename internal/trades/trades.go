// Package trades journals brokerage fills and answers position-level
// P&L questions over them.
package trades

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/foliopulse/pnl-api/internal/accounts"
	"github.com/foliopulse/pnl-api/internal/brokerage"
	"github.com/foliopulse/pnl-api/internal/pnl"
	"github.com/foliopulse/pnl-api/internal/types"
	"github.com/foliopulse/pnl-api/pkg/response"
)

// Service syncs fills from the brokerage into the trade journal and
// computes realized P&L over them.
type Service struct {
	db       *Database
	broker   *brokerage.Client
	accounts *accounts.Service
}

// NewService creates a trades service.
func NewService(gormDB *gorm.DB, broker *brokerage.Client, accountsService *accounts.Service) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		broker:   broker,
		accounts: accountsService,
	}
}

// SyncResult summarizes one journal sync run.
type SyncResult struct {
	SyncID     string `json:"sync_id"`
	AccountID  string `json:"account_id"`
	FillsSeen  int    `json:"fills_seen"`
	FillsAdded int    `json:"fills_added"`
}

// SyncFills pulls the account's fill activities from the brokerage and
// journals them. Re-running is idempotent: fills are keyed by the
// brokerage activity ID.
func (s *Service) SyncFills(ctx context.Context, accountID string) (*SyncResult, error) {
	logger := log.With().
		Str("account_id", accountID).
		Str("service", "trades").
		Logger()

	creds, err := s.accounts.Credentials(accountID)
	if err != nil {
		return nil, err
	}

	fills, err := s.broker.GetFills(ctx, creds, "")
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch fills from brokerage")
		return nil, err
	}

	result := &SyncResult{
		SyncID:    uuid.New().String(),
		AccountID: accountID,
		FillsSeen: len(fills),
	}
	for _, f := range fills {
		record := &types.TradeFill{
			FillID:          f.FillID,
			AccountID:       accountID,
			OrderID:         f.OrderID,
			Symbol:          f.Symbol,
			Side:            strings.ToLower(f.Side),
			Quantity:        f.Quantity,
			Price:           f.Price,
			TransactionTime: f.TransactionTime,
			CreatedAt:       time.Now(),
		}
		added, err := s.db.UpsertFill(record)
		if err != nil {
			logger.Error().Err(err).Str("fill_id", f.FillID).Msg("failed to journal fill")
			return nil, err
		}
		if added {
			result.FillsAdded++
		}
	}

	logger.Info().
		Int("fills_seen", result.FillsSeen).
		Int("fills_added", result.FillsAdded).
		Msg("journal sync completed")

	return result, nil
}

// Symbols lists the symbols with journaled fills for an account.
func (s *Service) Symbols(accountID string) ([]string, error) {
	return s.db.GetSymbols(accountID)
}

// PositionPnL runs FIFO matching over the account's journaled fills for
// one symbol.
func (s *Service) PositionPnL(accountID, symbol string) (*pnl.RealizedMatch, error) {
	fills, err := s.db.GetFillsBySymbol(accountID, symbol)
	if err != nil {
		return nil, err
	}
	return pnl.Match(toPnLFills(fills))
}

// OrderPnL validates the fills of one order group as a closed round trip
// and returns its net P&L.
func (s *Service) OrderPnL(accountID, orderID string, tol pnl.Tolerance) (*pnl.ClosedTradeResult, error) {
	fills, err := s.db.GetFillsByOrder(accountID, orderID)
	if err != nil {
		return nil, err
	}
	return pnl.ValidateClosed(toPnLFills(fills), tol)
}

func toPnLFills(records []types.TradeFill) []pnl.Fill {
	fills := make([]pnl.Fill, len(records))
	for i, r := range records {
		fills[i] = pnl.Fill{
			Symbol:          r.Symbol,
			Side:            r.Side,
			Quantity:        r.Quantity,
			Price:           r.Price,
			TransactionTime: r.TransactionTime,
		}
	}
	return fills
}

// GinHandlers contains HTTP handlers for journal and P&L endpoints.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for journal and P&L
// endpoints.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// SyncHandler handles POST requests to sync an account's fills into the
// journal. URL parameter: account_id
func (h *GinHandlers) SyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.SyncFills(c.Request.Context(), c.Param("account_id"))
		if errors.Is(err, accounts.ErrAccountNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, result, err)
	}
}

// PositionPnLHandler handles GET requests for FIFO realized P&L on one
// symbol. URL parameters: account_id, symbol
func (h *GinHandlers) PositionPnLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.PositionPnL(c.Param("account_id"), c.Param("symbol"))
		if errors.Is(err, pnl.ErrNoFills) {
			response.NotFound(c, "no fills journaled for symbol")
			return
		}
		var invalid *pnl.InvalidFillError
		if errors.As(err, &invalid) {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		response.Handle(c, result, err)
	}
}

// OrderPnLHandler handles GET requests for closed-trade P&L on one order
// group. The loose tolerance regime is the default; strict is selected
// with ?strict=true. URL parameters: account_id, order_id
func (h *GinHandlers) OrderPnLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tol := pnl.ToleranceLoose
		if c.Query("strict") == "true" {
			tol = pnl.ToleranceStrict
		}

		result, err := h.service.OrderPnL(c.Param("account_id"), c.Param("order_id"), tol)
		if errors.Is(err, pnl.ErrNoFills) {
			response.NotFound(c, "no fills journaled for order")
			return
		}
		var unclosed *pnl.UnclosedPositionError
		if errors.As(err, &unclosed) {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		var invalid *pnl.InvalidFillError
		if errors.As(err, &invalid) {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		response.Handle(c, result, err)
	}
}
