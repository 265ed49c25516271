package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/foliopulse/pnl-api/internal/accounts"
	"github.com/foliopulse/pnl-api/internal/auth"
	"github.com/foliopulse/pnl-api/internal/brokerage"
	"github.com/foliopulse/pnl-api/internal/config"
	"github.com/foliopulse/pnl-api/internal/database"
	"github.com/foliopulse/pnl-api/internal/performance"
	"github.com/foliopulse/pnl-api/internal/trades"
	"github.com/foliopulse/pnl-api/pkg/crypto"
	"github.com/foliopulse/pnl-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings.
// In development mode, it enables pretty printing with timestamps.
// Debug logging can be enabled via DEBUG environment variable.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the P&L dashboard API with graceful shutdown
// support.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	cipher, err := crypto.NewCipher(cfg.EncryptionKey)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize credential cipher")
	}

	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	if cfg.DashboardAPIKey != "" {
		authService.RegisterAPICredentials(cfg.DashboardAPIKey, cfg.DashboardAPISecret)
	}

	broker := brokerage.NewClient(cfg.BrokerageBaseURL)

	accountsService := accounts.NewService(db, cipher)
	accountsHandlers := accounts.NewGinHandlers(accountsService)

	tradesService := trades.NewService(db, broker, accountsService)
	tradesHandlers := trades.NewGinHandlers(tradesService)

	performanceService := performance.NewService(broker, accountsService, cfg.DepositJumpThreshold)
	performanceHandlers := performance.NewGinHandlers(performanceService)

	// Keep journals fresh in the background
	scheduler := trades.NewScheduler(tradesService)
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	defer schedulerCancel()

	go scheduler.Start(schedulerCtx)

	router.Use(middleware.RateLimit())

	setupRoutes(router, authService, authHandlers, accountsHandlers, tradesHandlers, performanceHandlers)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers:
// - Auth routes: public token exchange
// - Account routes: JWT-protected account management, journal syncing,
//   and P&L queries
func setupRoutes(
	router *gin.Engine,
	authService *auth.Service,
	authHandlers *auth.GinHandlers,
	accountsHandlers *accounts.GinHandlers,
	tradesHandlers *trades.GinHandlers,
	performanceHandlers *performance.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Account routes
		accountsGroup := v1.Group("/accounts")
		accountsGroup.Use(middleware.JWTAuth(authService))
		{
			accountsGroup.POST("", accountsHandlers.LinkAccountHandler())
			accountsGroup.GET("", accountsHandlers.ListAccountsHandler())
			accountsGroup.GET("/:account_id", accountsHandlers.GetAccountHandler())
			accountsGroup.PUT("/:account_id/credentials", accountsHandlers.RotateCredentialsHandler())
			accountsGroup.DELETE("/:account_id", accountsHandlers.UnlinkAccountHandler())

			accountsGroup.POST("/:account_id/sync", tradesHandlers.SyncHandler())
			accountsGroup.GET("/:account_id/positions/:symbol/pnl", tradesHandlers.PositionPnLHandler())
			accountsGroup.GET("/:account_id/orders/:order_id/pnl", tradesHandlers.OrderPnLHandler())
			accountsGroup.GET("/:account_id/performance", performanceHandlers.AccountPerformanceHandler())
		}
	}
}
