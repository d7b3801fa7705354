package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/paylink/internal/models"
)

// LinkService is the sole authority over the payment link lifecycle.
// Every status mutation is a conditional single-row update keyed on the
// current status; zero affected rows means the transition already happened
// in a concurrent request and is resolved from the re-read row.
type LinkService struct {
	db           *gorm.DB
	expiryWindow time.Duration
}

// NewLinkService creates a LinkService with the given expiry window in days.
func NewLinkService(db *gorm.DB, expiryDays int) *LinkService {
	return &LinkService{
		db:           db,
		expiryWindow: time.Duration(expiryDays) * 24 * time.Hour,
	}
}

// LinkStats aggregates a merchant's links for the dashboard.
type LinkStats struct {
	TotalLinks    int64           `json:"total_links"`
	PaidLinks     int64           `json:"paid_links"`
	PendingLinks  int64           `json:"pending_links"`
	TotalReceived decimal.Decimal `json:"total_received"`
}

// CreateLink persists a new pending link for the merchant.
func (s *LinkService) CreateLink(ctx context.Context, merchantID uuid.UUID, description string, amount decimal.Decimal) (*models.PaymentLink, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}

	var merchant models.Merchant
	if err := s.db.WithContext(ctx).Select("id").First(&merchant, "id = ?", merchantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMerchantNotFound
		}
		return nil, &StorageError{Op: "lookup merchant", Err: err}
	}

	link := models.PaymentLink{
		MerchantID:  merchantID,
		Description: description,
		Amount:      amount,
		Status:      models.LinkStatusPending,
	}

	if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
		return nil, &StorageError{Op: "create link", Err: err}
	}

	return &link, nil
}

// GetLink returns the link by id, lazily expiring stale pending links first.
// Expiry is persisted on read so no background sweep is needed; the trade-off
// is that a stale link stays pending in storage until somebody reads it.
func (s *LinkService) GetLink(ctx context.Context, linkID uuid.UUID) (*models.PaymentLink, error) {
	var link models.PaymentLink
	if err := s.db.WithContext(ctx).First(&link, "id = ?", linkID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, &StorageError{Op: "lookup link", Err: err}
	}

	if link.Status == models.LinkStatusPending && time.Since(link.CreatedAt) > s.expiryWindow {
		res := s.db.WithContext(ctx).
			Model(&models.PaymentLink{}).
			Where("id = ? AND status = ?", linkID, models.LinkStatusPending).
			Update("status", models.LinkStatusExpired)
		if res.Error != nil {
			return nil, &StorageError{Op: "expire link", Err: res.Error}
		}
		if res.RowsAffected == 1 {
			link.Status = models.LinkStatusExpired
		} else {
			// A concurrent request already moved the link out of pending.
			if err := s.db.WithContext(ctx).First(&link, "id = ?", linkID).Error; err != nil {
				return nil, &StorageError{Op: "reload link", Err: err}
			}
		}
	}

	return &link, nil
}

// CancelLink transitions a non-paid link to cancelled on behalf of its owner.
// Cancelling an already cancelled link is an idempotent success.
func (s *LinkService) CancelLink(ctx context.Context, linkID, requesterMerchantID uuid.UUID) error {
	link, err := s.GetLink(ctx, linkID)
	if err != nil {
		return err
	}

	if link.MerchantID != requesterMerchantID {
		return ErrPermission
	}

	switch link.Status {
	case models.LinkStatusCancelled:
		return nil
	case models.LinkStatusPaid, models.LinkStatusExpired:
		return ErrInvalidState
	}

	res := s.db.WithContext(ctx).
		Model(&models.PaymentLink{}).
		Where("id = ? AND status = ?", linkID, models.LinkStatusPending).
		Update("status", models.LinkStatusCancelled)
	if res.Error != nil {
		return &StorageError{Op: "cancel link", Err: res.Error}
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// Lost the race: somebody else left pending first. The re-read status
	// decides between idempotent success and an illegal transition.
	current, err := s.GetLink(ctx, linkID)
	if err != nil {
		return err
	}
	if current.Status == models.LinkStatusCancelled {
		return nil
	}
	return ErrInvalidState
}

// ListLinks returns the merchant's links newest first along with aggregate
// stats. Stale pending links are expired in one bulk conditional update
// before reading so the returned rows and stats reflect expiry.
func (s *LinkService) ListLinks(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]models.PaymentLink, *LinkStats, error) {
	var merchant models.Merchant
	if err := s.db.WithContext(ctx).Select("id").First(&merchant, "id = ?", merchantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrMerchantNotFound
		}
		return nil, nil, &StorageError{Op: "lookup merchant", Err: err}
	}

	cutoff := time.Now().Add(-s.expiryWindow)
	if err := s.db.WithContext(ctx).
		Model(&models.PaymentLink{}).
		Where("merchant_id = ? AND status = ? AND created_at < ?", merchantID, models.LinkStatusPending, cutoff).
		Update("status", models.LinkStatusExpired).Error; err != nil {
		return nil, nil, &StorageError{Op: "expire stale links", Err: err}
	}

	query := s.db.WithContext(ctx).
		Model(&models.PaymentLink{}).
		Where("merchant_id = ?", merchantID)

	stats := &LinkStats{TotalReceived: decimal.Zero}
	if err := query.Session(&gorm.Session{}).Count(&stats.TotalLinks).Error; err != nil {
		return nil, nil, &StorageError{Op: "count links", Err: err}
	}
	if err := query.Session(&gorm.Session{}).Where("status = ?", models.LinkStatusPaid).Count(&stats.PaidLinks).Error; err != nil {
		return nil, nil, &StorageError{Op: "count paid links", Err: err}
	}
	if err := query.Session(&gorm.Session{}).Where("status = ?", models.LinkStatusPending).Count(&stats.PendingLinks).Error; err != nil {
		return nil, nil, &StorageError{Op: "count pending links", Err: err}
	}

	row := s.db.WithContext(ctx).
		Model(&models.PaymentLink{}).
		Where("merchant_id = ? AND status = ?", merchantID, models.LinkStatusPaid).
		Select("COALESCE(SUM(amount), 0)").
		Row()
	if err := row.Scan(&stats.TotalReceived); err != nil {
		return nil, nil, &StorageError{Op: "sum paid amounts", Err: err}
	}

	var links []models.PaymentLink
	q := s.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&links).Error; err != nil {
		return nil, nil, &StorageError{Op: "list links", Err: err}
	}

	return links, stats, nil
}
