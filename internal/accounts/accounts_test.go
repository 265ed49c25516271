package accounts

import (
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/foliopulse/pnl-api/internal/types"
	"github.com/foliopulse/pnl-api/pkg/crypto"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&types.Account{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	cipher, err := crypto.NewCipher("test-secret")
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}
	return NewService(db, cipher)
}

func linkTestAccount(t *testing.T, service *Service) {
	t.Helper()
	if _, err := service.LinkAccount(LinkRequest{
		AccountID: "acct1",
		Name:      "Test Account",
		APIKey:    "old-key",
		APISecret: "old-secret",
	}); err != nil {
		t.Fatalf("LinkAccount() error = %v", err)
	}
}

func TestLinkAccountRejectsDuplicates(t *testing.T) {
	service := newTestService(t)
	linkTestAccount(t, service)

	_, err := service.LinkAccount(LinkRequest{
		AccountID: "acct1",
		Name:      "Again",
		APIKey:    "k",
		APISecret: "s",
	})
	if !errors.Is(err, ErrAccountExists) {
		t.Errorf("LinkAccount(duplicate) error = %v, want ErrAccountExists", err)
	}
}

func TestRotateCredentials(t *testing.T) {
	service := newTestService(t)
	linkTestAccount(t, service)

	before, err := service.Credentials("acct1")
	if err != nil {
		t.Fatalf("Credentials() error = %v", err)
	}
	if before.APIKey != "old-key" || before.APISecret != "old-secret" {
		t.Fatalf("Credentials() = %+v, want the linked pair", before)
	}

	if _, err := service.RotateCredentials("acct1", RotateRequest{
		APIKey:    "new-key",
		APISecret: "new-secret",
	}); err != nil {
		t.Fatalf("RotateCredentials() error = %v", err)
	}

	after, err := service.Credentials("acct1")
	if err != nil {
		t.Fatalf("Credentials() after rotation error = %v", err)
	}
	if after.APIKey != "new-key" || after.APISecret != "new-secret" {
		t.Errorf("Credentials() = %+v, want the rotated pair", after)
	}
}

func TestRotateCredentialsUnknownAccount(t *testing.T) {
	service := newTestService(t)

	_, err := service.RotateCredentials("missing", RotateRequest{APIKey: "k", APISecret: "s"})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("RotateCredentials(missing) error = %v, want ErrAccountNotFound", err)
	}
}

func TestUnlinkAccountStopsSyncEligibility(t *testing.T) {
	service := newTestService(t)
	linkTestAccount(t, service)

	if err := service.UnlinkAccount("acct1"); err != nil {
		t.Fatalf("UnlinkAccount() error = %v", err)
	}

	active, err := service.ListActiveAccounts()
	if err != nil {
		t.Fatalf("ListActiveAccounts() error = %v", err)
	}
	if len(active) != 0 {
		t.Errorf("ListActiveAccounts() returned %d accounts, want 0", len(active))
	}
}
