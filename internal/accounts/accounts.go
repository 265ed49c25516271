// Package accounts manages linked brokerage accounts and their
// encrypted API credentials.
package accounts

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/foliopulse/pnl-api/internal/auth"
	"github.com/foliopulse/pnl-api/internal/brokerage"
	"github.com/foliopulse/pnl-api/internal/types"
	"github.com/foliopulse/pnl-api/pkg/crypto"
	"github.com/foliopulse/pnl-api/pkg/response"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already linked")
)

// Service handles account registration and credential access.
type Service struct {
	db     *Database
	cipher *crypto.Cipher
}

// NewService creates an accounts service backed by the given database
// connection and credential cipher.
func NewService(gormDB *gorm.DB, cipher *crypto.Cipher) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		cipher: cipher,
	}
}

// LinkRequest is the payload for linking a brokerage account.
type LinkRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email"`
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
}

// LinkAccount registers a brokerage account, encrypting its credentials
// before they are stored.
func (s *Service) LinkAccount(req LinkRequest) (*types.Account, error) {
	existing, err := s.db.GetAccount(req.AccountID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	encryptedKey, err := s.cipher.Encrypt(req.APIKey)
	if err != nil {
		return nil, err
	}
	encryptedSecret, err := s.cipher.Encrypt(req.APISecret)
	if err != nil {
		return nil, err
	}

	account := &types.Account{
		AccountID:          req.AccountID,
		Name:               req.Name,
		Email:              req.Email,
		EncryptedAPIKey:    encryptedKey,
		EncryptedAPISecret: encryptedSecret,
		IsActive:           true,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	if err := s.db.CreateAccount(account); err != nil {
		return nil, err
	}

	log.Info().
		Str("account_id", account.AccountID).
		Str("name", account.Name).
		Msg("linked brokerage account")

	return account, nil
}

// GetAccount retrieves one linked account.
func (s *Service) GetAccount(accountID string) (*types.Account, error) {
	account, err := s.db.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// ListAccounts returns all linked accounts.
func (s *Service) ListAccounts() ([]types.Account, error) {
	return s.db.ListAccounts(false)
}

// ListActiveAccounts returns the accounts eligible for syncing.
func (s *Service) ListActiveAccounts() ([]types.Account, error) {
	return s.db.ListAccounts(true)
}

// RotateRequest is the payload for replacing an account's stored API
// key pair.
type RotateRequest struct {
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
}

// RotateCredentials replaces the account's brokerage API key pair,
// encrypting the new pair before it is stored. Brokerages expire key
// pairs, so rotation keeps the background sync alive without relinking.
func (s *Service) RotateCredentials(accountID string, req RotateRequest) (*types.Account, error) {
	account, err := s.GetAccount(accountID)
	if err != nil {
		return nil, err
	}

	encryptedKey, err := s.cipher.Encrypt(req.APIKey)
	if err != nil {
		return nil, err
	}
	encryptedSecret, err := s.cipher.Encrypt(req.APISecret)
	if err != nil {
		return nil, err
	}

	account.EncryptedAPIKey = encryptedKey
	account.EncryptedAPISecret = encryptedSecret
	account.UpdatedAt = time.Now()
	if err := s.db.UpdateAccount(account); err != nil {
		return nil, err
	}

	log.Info().
		Str("account_id", account.AccountID).
		Msg("rotated account credentials")

	return account, nil
}

// UnlinkAccount deactivates an account. Journaled fills are kept for
// audit purposes.
func (s *Service) UnlinkAccount(accountID string) error {
	if err := s.db.DeactivateAccount(accountID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	log.Info().Str("account_id", accountID).Msg("unlinked brokerage account")
	return nil
}

// Credentials decrypts the account's brokerage API key pair. The
// plaintext only ever lives in memory for the duration of a request.
func (s *Service) Credentials(accountID string) (brokerage.Credentials, error) {
	account, err := s.GetAccount(accountID)
	if err != nil {
		return brokerage.Credentials{}, err
	}

	apiKey, err := s.cipher.Decrypt(account.EncryptedAPIKey)
	if err != nil {
		return brokerage.Credentials{}, err
	}
	apiSecret, err := s.cipher.Decrypt(account.EncryptedAPISecret)
	if err != nil {
		return brokerage.Credentials{}, err
	}
	return brokerage.Credentials{APIKey: apiKey, APISecret: apiSecret}, nil
}

// GinHandlers contains HTTP handlers for account management endpoints.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for account
// management endpoints.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// LinkAccountHandler handles POST requests to link a brokerage account.
// Requires a valid JWT token.
func (h *GinHandlers) LinkAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, ok := requireClient(c)
		if !ok {
			return
		}

		var req LinkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		account, err := h.service.LinkAccount(req)
		if errors.Is(err, ErrAccountExists) {
			response.Conflict(c, err.Error())
			return
		}
		if err == nil {
			log.Info().
				Str("account_id", req.AccountID).
				Str("client_id", clientID).
				Msg("account linked by dashboard client")
		}
		response.Handle(c, account, err)
	}
}

// requireClient reads the authenticated client's ID from the request
// claims, rejecting requests that arrived without them.
func requireClient(c *gin.Context) (string, bool) {
	claims, exists := c.Get("claims")
	if !exists {
		response.Unauthorized(c, "Missing authentication claims")
		return "", false
	}

	clientID := auth.GetClientID(claims)
	if clientID == "" {
		response.Unauthorized(c, "Invalid client ID in token")
		return "", false
	}
	return clientID, true
}

// ListAccountsHandler handles GET requests for all linked accounts.
func (h *GinHandlers) ListAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accounts, err := h.service.ListAccounts()
		response.Handle(c, accounts, err)
	}
}

// GetAccountHandler handles GET requests for one linked account.
// URL parameter: account_id
func (h *GinHandlers) GetAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := h.service.GetAccount(c.Param("account_id"))
		if errors.Is(err, ErrAccountNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, account, err)
	}
}

// RotateCredentialsHandler handles PUT requests to replace an account's
// API key pair. Requires a valid JWT token. URL parameter: account_id
func (h *GinHandlers) RotateCredentialsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, ok := requireClient(c)
		if !ok {
			return
		}

		var req RotateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		accountID := c.Param("account_id")
		account, err := h.service.RotateCredentials(accountID, req)
		if errors.Is(err, ErrAccountNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		if err == nil {
			log.Info().
				Str("account_id", accountID).
				Str("client_id", clientID).
				Msg("credentials rotated by dashboard client")
		}
		response.Handle(c, account, err)
	}
}

// UnlinkAccountHandler handles DELETE requests to deactivate an account.
// Requires a valid JWT token. URL parameter: account_id
func (h *GinHandlers) UnlinkAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, ok := requireClient(c)
		if !ok {
			return
		}

		accountID := c.Param("account_id")
		err := h.service.UnlinkAccount(accountID)
		if errors.Is(err, ErrAccountNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		if err == nil {
			log.Info().
				Str("account_id", accountID).
				Str("client_id", clientID).
				Msg("account unlinked by dashboard client")
		}
		response.Handle(c, gin.H{"account_id": accountID, "is_active": false}, err)
	}
}
