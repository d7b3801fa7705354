package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/paylink/internal/database"
	"github.com/example/paylink/internal/gateway"
	"github.com/example/paylink/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single pooled connection keeps every goroutine on the same
	// in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	return db
}

func createTestMerchant(t *testing.T, db *gorm.DB) *models.Merchant {
	t.Helper()

	merchant := &models.Merchant{
		StoreName:    "Loja do Teste",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "irrelevant",
		AccessToken:  "TEST-access-token-1234567890",
		PublicKey:    "TEST-public-key-1234567890",
	}
	require.NoError(t, db.Create(merchant).Error)
	return merchant
}

func createTestLink(t *testing.T, db *gorm.DB, merchantID uuid.UUID, amount string) *models.PaymentLink {
	t.Helper()

	link := &models.PaymentLink{
		MerchantID:  merchantID,
		Description: "Pedido de teste",
		Amount:      decimal.RequireFromString(amount),
		Status:      models.LinkStatusPending,
	}
	require.NoError(t, db.Create(link).Error)
	return link
}

func reloadLink(t *testing.T, db *gorm.DB, id uuid.UUID) *models.PaymentLink {
	t.Helper()

	var link models.PaymentLink
	require.NoError(t, db.First(&link, "id = ?", id).Error)
	return &link
}

func countNotifications(t *testing.T, db *gorm.DB, linkID uuid.UUID) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.PaymentNotification{}).Where("link_id = ?", linkID).Count(&count).Error)
	return count
}

// fakeGateway scripts gateway responses for the bridge and watcher tests.
type fakeGateway struct {
	mu sync.Mutex

	createResp *gateway.Payment
	createErr  error
	getResp    *gateway.Payment
	getErr     error
	getQueue   []*gateway.Payment

	createCalls int
	getCalls    int
}

func (f *fakeGateway) CreatePayment(ctx context.Context, accessToken string, req *gateway.PaymentRequest) (*gateway.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResp, nil
}

func (f *fakeGateway) GetPayment(ctx context.Context, accessToken, paymentID string) (*gateway.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if len(f.getQueue) > 0 {
		next := f.getQueue[0]
		if len(f.getQueue) > 1 {
			f.getQueue = f.getQueue[1:]
		}
		return next, nil
	}
	return f.getResp, nil
}

func (f *fakeGateway) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.getCalls
}

func approvedPayment(id string) *gateway.Payment {
	return &gateway.Payment{
		ID:              jsonNumber(id),
		Status:          GatewayStatusApproved,
		StatusDetail:    "accredited",
		PaymentMethodID: "visa",
		PaymentTypeID:   "credit_card",
		Payer:           gateway.Payer{Email: "payer@example.com"},
	}
}

func pendingPixPayment(id string) *gateway.Payment {
	return &gateway.Payment{
		ID:              jsonNumber(id),
		Status:          GatewayStatusPending,
		StatusDetail:    "pending_waiting_transfer",
		PaymentMethodID: "pix",
		PaymentTypeID:   "bank_transfer",
		Payer:           gateway.Payer{Email: "payer@example.com"},
		PointOfInteraction: &gateway.PointOfInteraction{
			TransactionData: &gateway.TransactionData{
				QRCode:       "00020126pixcode",
				QRCodeBase64: "aW1hZ2U=",
				TicketURL:    "https://mercadopago.com/pix/ticket",
			},
		},
	}
}

func rejectedPayment(id, detail string) *gateway.Payment {
	return &gateway.Payment{
		ID:              jsonNumber(id),
		Status:          GatewayStatusRejected,
		StatusDetail:    detail,
		PaymentMethodID: "master",
		PaymentTypeID:   "credit_card",
	}
}

func jsonNumber(s string) json.Number { return json.Number(s) }
