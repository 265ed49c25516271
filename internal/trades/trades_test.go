package trades

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/foliopulse/pnl-api/internal/accounts"
	"github.com/foliopulse/pnl-api/internal/brokerage"
	"github.com/foliopulse/pnl-api/internal/pnl"
	"github.com/foliopulse/pnl-api/internal/types"
	"github.com/foliopulse/pnl-api/pkg/crypto"
	"github.com/foliopulse/pnl-api/pkg/response"
)

const activitiesBody = `[
	{"id":"f1","activity_type":"FILL","transaction_time":"2024-03-01T14:30:00Z",
	 "symbol":"AAPL","side":"buy","qty":"10","price":"100","order_id":"ord1"},
	{"id":"f2","activity_type":"FILL","transaction_time":"2024-03-01T15:00:00Z",
	 "symbol":"AAPL","side":"sell","qty":"10","price":"110","order_id":"ord1"},
	{"id":"f3","activity_type":"FILL","transaction_time":"2024-03-02T10:00:00Z",
	 "symbol":"TSLA","side":"buy","qty":"5","price":"200","order_id":"ord2"}
]`

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&types.Account{}, &types.TradeFill{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(activitiesBody))
	}))
	t.Cleanup(server.Close)

	cipher, err := crypto.NewCipher("test-secret")
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}
	accountsService := accounts.NewService(db, cipher)
	if _, err := accountsService.LinkAccount(accounts.LinkRequest{
		AccountID: "acct1",
		Name:      "Test Account",
		APIKey:    "key",
		APISecret: "secret",
	}); err != nil {
		t.Fatalf("failed to link account: %v", err)
	}

	return NewService(db, brokerage.NewClient(server.URL), accountsService), db
}

func TestSyncFillsIsIdempotent(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	first, err := service.SyncFills(ctx, "acct1")
	if err != nil {
		t.Fatalf("SyncFills() error = %v", err)
	}
	if first.FillsSeen != 3 || first.FillsAdded != 3 {
		t.Errorf("first sync = %+v, want 3 seen and 3 added", first)
	}

	second, err := service.SyncFills(ctx, "acct1")
	if err != nil {
		t.Fatalf("SyncFills() second run error = %v", err)
	}
	if second.FillsSeen != 3 || second.FillsAdded != 0 {
		t.Errorf("second sync = %+v, want 3 seen and 0 added", second)
	}
}

func TestSyncFillsUnknownAccount(t *testing.T) {
	service, _ := newTestService(t)

	if _, err := service.SyncFills(context.Background(), "missing"); !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Errorf("SyncFills(missing) error = %v, want ErrAccountNotFound", err)
	}
}

func TestPositionPnLOverJournal(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.SyncFills(context.Background(), "acct1"); err != nil {
		t.Fatalf("SyncFills() error = %v", err)
	}

	match, err := service.PositionPnL("acct1", "AAPL")
	if err != nil {
		t.Fatalf("PositionPnL() error = %v", err)
	}
	if match.RealizedPnL != 100 || match.OpenQuantity != 0 {
		t.Errorf("PositionPnL() = %+v, want realized 100 and open 0", match)
	}

	if _, err := service.PositionPnL("acct1", "NVDA"); !errors.Is(err, pnl.ErrNoFills) {
		t.Errorf("PositionPnL(NVDA) error = %v, want ErrNoFills", err)
	}
}

func TestOrderPnL(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.SyncFills(context.Background(), "acct1"); err != nil {
		t.Fatalf("SyncFills() error = %v", err)
	}

	closed, err := service.OrderPnL("acct1", "ord1", pnl.ToleranceLoose)
	if err != nil {
		t.Fatalf("OrderPnL(ord1) error = %v", err)
	}
	if closed.RealizedPnL != 100 || closed.Quantity != 10 {
		t.Errorf("OrderPnL(ord1) = %+v, want pnl 100 on qty 10", closed)
	}

	// ord2 is a lone buy: not a closed round trip.
	_, err = service.OrderPnL("acct1", "ord2", pnl.ToleranceLoose)
	var unclosed *pnl.UnclosedPositionError
	if !errors.As(err, &unclosed) {
		t.Fatalf("OrderPnL(ord2) error = %v, want UnclosedPositionError", err)
	}
	if unclosed.BuyQuantity != 5 || unclosed.SellQuantity != 0 {
		t.Errorf("UnclosedPositionError = %+v, want buy 5 sell 0", unclosed)
	}
}

func TestPnLHandlersRejectMalformedFills(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service, db := newTestService(t)

	// A journaled fill with a non-positive quantity cannot be matched.
	bad := &types.TradeFill{
		FillID:          "bad1",
		AccountID:       "acct1",
		OrderID:         "ord9",
		Symbol:          "MSFT",
		Side:            "buy",
		Quantity:        0,
		Price:           100,
		TransactionTime: time.Now(),
	}
	if err := db.Create(bad).Error; err != nil {
		t.Fatalf("failed to journal fill: %v", err)
	}

	handlers := NewGinHandlers(service)
	router := gin.New()
	router.GET("/positions/:account_id/:symbol", handlers.PositionPnLHandler())
	router.GET("/orders/:account_id/:order_id", handlers.OrderPnLHandler())

	for _, path := range []string{"/positions/acct1/MSFT", "/orders/acct1/ord9"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("GET %s status = %d, want 422", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), response.ErrCodePnLUnavailable) {
			t.Errorf("GET %s body = %s, want error code %s", path, w.Body.String(), response.ErrCodePnLUnavailable)
		}
	}
}

func TestSymbols(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.SyncFills(context.Background(), "acct1"); err != nil {
		t.Fatalf("SyncFills() error = %v", err)
	}

	symbols, err := service.Symbols("acct1")
	if err != nil {
		t.Fatalf("Symbols() error = %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "TSLA" {
		t.Errorf("Symbols() = %v, want [AAPL TSLA]", symbols)
	}
}
