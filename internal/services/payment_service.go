package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/paylink/internal/gateway"
	"github.com/example/paylink/internal/models"
)

// Gateway is the payment processor capability the bridge depends on.
type Gateway interface {
	CreatePayment(ctx context.Context, accessToken string, req *gateway.PaymentRequest) (*gateway.Payment, error)
	GetPayment(ctx context.Context, accessToken, paymentID string) (*gateway.Payment, error)
}

// Gateway payment statuses the bridge reacts to.
const (
	GatewayStatusApproved  = "approved"
	GatewayStatusPending   = "pending"
	GatewayStatusInProcess = "in_process"
	GatewayStatusRejected  = "rejected"
)

const (
	unknownPayerEmail        = "Não informado"
	statementDescriptorLimit = 22
)

// amountTolerance absorbs rounding differences between the checkout widget
// and the stored link amount. A difference of a full cent or more is a
// mismatch.
var amountTolerance = decimal.New(1, -2)

// rejectionMessages maps gateway rejection detail codes to payer-facing text.
var rejectionMessages = map[string]string{
	"cc_rejected_bad_filled_card_number":   "Número do cartão inválido",
	"cc_rejected_bad_filled_date":          "Data de validade inválida",
	"cc_rejected_bad_filled_security_code": "Código de segurança inválido",
	"cc_rejected_blacklist":                "Cartão não autorizado",
	"cc_rejected_call_for_authorize":       "Pagamento não autorizado. Entre em contato com seu banco",
	"cc_rejected_card_disabled":            "Cartão desabilitado",
	"cc_rejected_card_error":               "Erro no cartão. Tente outro método de pagamento",
	"cc_rejected_duplicated_payment":       "Pagamento duplicado",
	"cc_rejected_high_risk":                "Pagamento recusado por segurança",
	"cc_rejected_insufficient_amount":      "Saldo insuficiente",
	"cc_rejected_invalid_installments":     "Número de parcelas inválido",
	"cc_rejected_max_attempts":             "Limite de tentativas excedido",
	"cc_rejected_other_reason":             "Pagamento recusado. Tente outro cartão",
}

const rejectionFallback = "Pagamento não autorizado. Por favor, tente novamente ou use outro método de pagamento."

// RejectionMessage maps a gateway status detail to a payer-facing message.
func RejectionMessage(statusDetail string) string {
	if msg, ok := rejectionMessages[statusDetail]; ok {
		return msg
	}
	return rejectionFallback
}

// PaymentService funnels payment outcome signals from all channels
// (synchronous response, polling, webhook) through a single conditional
// update so a link is marked paid at most once.
type PaymentService struct {
	db         *gorm.DB
	links      *LinkService
	gateway    Gateway
	webhookURL string
}

// NewPaymentService wires the confirmation bridge.
func NewPaymentService(db *gorm.DB, links *LinkService, gw Gateway, webhookURL string) *PaymentService {
	return &PaymentService{db: db, links: links, gateway: gw, webhookURL: webhookURL}
}

// PaymentAttempt is the payer-submitted payment form data.
type PaymentAttempt struct {
	Amount          decimal.Decimal
	PaymentMethodID string
	Token           string
	Installments    int
	IssuerID        string
	PayerEmail      string
	PayerFirstName  string
	PayerLastName   string
}

// PaymentResult is the channel-independent outcome of a confirmation attempt.
type PaymentResult struct {
	Status          string `json:"status"`
	StatusDetail    string `json:"detail,omitempty"`
	PaymentID       string `json:"payment_id,omitempty"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	PixQRCode       string `json:"pix_qr_code,omitempty"`
	PixQRCodeBase64 string `json:"pix_qr_code_base64,omitempty"`
	PixTicketURL    string `json:"pix_ticket_url,omitempty"`
}

// IsAsync reports whether the outcome still needs asynchronous confirmation.
func (r *PaymentResult) IsAsync() bool {
	return r.Status == GatewayStatusPending || r.Status == GatewayStatusInProcess
}

// StatusResult is the stateless poll read for the payer's browser.
type StatusResult struct {
	Status        string `json:"status"`
	PaymentID     string `json:"payment_id,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	IsPaid        bool   `json:"is_paid"`
}

// ProcessPayment validates the attempt locally, submits it to the gateway and
// applies the synchronous verdict. Local rejections (already paid, terminal
// status, amount mismatch) never reach the gateway.
func (s *PaymentService) ProcessPayment(ctx context.Context, linkID uuid.UUID, attempt *PaymentAttempt) (*PaymentResult, error) {
	link, err := s.links.GetLink(ctx, linkID)
	if err != nil {
		return nil, err
	}

	switch link.Status {
	case models.LinkStatusPaid:
		return nil, ErrAlreadyPaid
	case models.LinkStatusExpired, models.LinkStatusCancelled:
		return nil, ErrInvalidState
	}

	if attempt.Amount.Sub(link.Amount).Abs().GreaterThanOrEqual(amountTolerance) {
		return nil, ErrAmountMismatch
	}

	merchant, err := s.merchantFor(ctx, link)
	if err != nil {
		return nil, err
	}

	req := &gateway.PaymentRequest{
		TransactionAmount: link.Amount.InexactFloat64(),
		Description:       link.Description,
		PaymentMethodID:   attempt.PaymentMethodID,
		Token:             attempt.Token,
		Installments:      attempt.Installments,
		IssuerID:          attempt.IssuerID,
		Payer: gateway.Payer{
			Email:     attempt.PayerEmail,
			FirstName: attempt.PayerFirstName,
			LastName:  attempt.PayerLastName,
		},
		ExternalReference:   link.ID.String(),
		StatementDescriptor: truncate(merchant.StoreName, statementDescriptorLimit),
		NotificationURL:     s.webhookURL,
		Metadata: map[string]any{
			"link_id":     link.ID.String(),
			"merchant_id": link.MerchantID.String(),
		},
	}
	if req.Installments == 0 && req.Token != "" {
		req.Installments = 1
	}

	payment, err := s.gateway.CreatePayment(ctx, merchant.AccessToken, req)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}

	result, err := s.applyGatewayStatus(ctx, link, payment)
	if err != nil {
		return nil, err
	}

	if poi := payment.PointOfInteraction; poi != nil && poi.TransactionData != nil {
		result.PixQRCode = poi.TransactionData.QRCode
		result.PixQRCodeBase64 = poi.TransactionData.QRCodeBase64
		result.PixTicketURL = poi.TransactionData.TicketURL
	}

	return result, nil
}

// CheckStatus is the stateless poll read; lazy expiry applies through GetLink.
func (s *PaymentService) CheckStatus(ctx context.Context, linkID uuid.UUID) (*StatusResult, error) {
	link, err := s.links.GetLink(ctx, linkID)
	if err != nil {
		return nil, err
	}

	return &StatusResult{
		Status:        link.Status,
		PaymentID:     link.PaymentID,
		PaymentMethod: link.PaymentMethod,
		IsPaid:        link.Status == models.LinkStatusPaid,
	}, nil
}

// WebhookEnvelope is the gateway's push notification body. Its payload is
// attacker-reachable and never trusted beyond the payment id used for the
// authoritative re-fetch.
type WebhookEnvelope struct {
	Type string `json:"type"`
	Data struct {
		ID WebhookID `json:"id"`
	} `json:"data"`
}

// WebhookID is a payment id as delivered in a webhook. The gateway encodes it
// as a JSON string in webhook bodies but as a number in the payments API, so
// both forms decode.
type WebhookID string

func (id *WebhookID) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		*id = WebhookID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	*id = WebhookID(n.String())
	return nil
}

func (id WebhookID) String() string { return string(id) }

// HandleWebhook correlates the notification with a link and re-applies the
// authoritative gateway status. Errors are returned for logging only; the
// HTTP layer acknowledges regardless.
func (s *PaymentService) HandleWebhook(ctx context.Context, envelope *WebhookEnvelope) error {
	if envelope.Type != "payment" {
		return nil
	}

	paymentID := envelope.Data.ID.String()
	if paymentID == "" {
		return nil
	}

	var link models.PaymentLink
	if err := s.db.WithContext(ctx).First(&link, "payment_id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Debug().Str("payment_id", paymentID).Msg("webhook for unknown payment")
			return nil
		}
		return &StorageError{Op: "correlate webhook", Err: err}
	}

	if link.Status == models.LinkStatusPaid {
		return nil
	}

	merchant, err := s.merchantFor(ctx, &link)
	if err != nil {
		return err
	}

	payment, err := s.gateway.GetPayment(ctx, merchant.AccessToken, paymentID)
	if err != nil {
		return &GatewayError{Err: err}
	}

	if _, err := s.applyGatewayStatus(ctx, &link, payment); err != nil {
		return err
	}

	if payment.Status == GatewayStatusApproved {
		log.Info().Str("link_id", link.ID.String()).Msg("link marked paid via webhook")
	}
	return nil
}

// RefreshStatus re-fetches the authoritative gateway status for a tracked
// payment and applies it. It reports whether the link reached a terminal
// state so callers can stop polling.
func (s *PaymentService) RefreshStatus(ctx context.Context, linkID uuid.UUID, paymentID string) (bool, error) {
	link, err := s.links.GetLink(ctx, linkID)
	if err != nil {
		return false, err
	}
	if link.IsTerminal() {
		return true, nil
	}

	merchant, err := s.merchantFor(ctx, link)
	if err != nil {
		return false, err
	}

	payment, err := s.gateway.GetPayment(ctx, merchant.AccessToken, paymentID)
	if err != nil {
		return false, &GatewayError{Err: err}
	}

	if _, err := s.applyGatewayStatus(ctx, link, payment); err != nil {
		return false, err
	}

	return payment.Status == GatewayStatusApproved, nil
}

// applyGatewayStatus is the single confirmation entry point shared by every
// channel. The conditional update keyed on the pending status is the sole
// arbiter under concurrent confirmations: zero affected rows on an approved
// payment means another channel already marked the link paid, which is a
// success no-op and appends no duplicate audit record.
func (s *PaymentService) applyGatewayStatus(ctx context.Context, link *models.PaymentLink, payment *gateway.Payment) (*PaymentResult, error) {
	result := &PaymentResult{
		Status:        payment.Status,
		StatusDetail:  payment.StatusDetail,
		PaymentID:     payment.ID.String(),
		PaymentMethod: normalizePaymentMethod(payment),
	}

	switch payment.Status {
	case GatewayStatusApproved:
		now := time.Now()
		res := s.db.WithContext(ctx).
			Model(&models.PaymentLink{}).
			Where("id = ? AND status = ?", link.ID, models.LinkStatusPending).
			Updates(map[string]any{
				"status":         models.LinkStatusPaid,
				"payment_id":     payment.ID.String(),
				"payer_email":    payerEmail(payment),
				"payment_method": result.PaymentMethod,
				"paid_at":        now,
			})
		if res.Error != nil {
			return nil, &StorageError{Op: "mark link paid", Err: res.Error}
		}
		if res.RowsAffected == 1 {
			if err := s.appendNotification(ctx, link.ID, payment); err != nil {
				return nil, err
			}
		}

	case GatewayStatusPending, GatewayStatusInProcess:
		res := s.db.WithContext(ctx).
			Model(&models.PaymentLink{}).
			Where("id = ? AND status = ?", link.ID, models.LinkStatusPending).
			Updates(map[string]any{
				"payment_id":  payment.ID.String(),
				"payer_email": payerEmail(payment),
			})
		if res.Error != nil {
			return nil, &StorageError{Op: "track pending payment", Err: res.Error}
		}

	case GatewayStatusRejected:
		result.RejectionReason = RejectionMessage(payment.StatusDetail)
	}

	return result, nil
}

func (s *PaymentService) appendNotification(ctx context.Context, linkID uuid.UUID, payment *gateway.Payment) error {
	payload, err := json.Marshal(payment)
	if err != nil {
		payload = nil
	}

	notification := models.PaymentNotification{
		LinkID:    linkID,
		GatewayID: payment.ID.String(),
		Status:    payment.Status,
		Payload:   payload,
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return &StorageError{Op: "append notification", Err: err}
	}
	return nil
}

func (s *PaymentService) merchantFor(ctx context.Context, link *models.PaymentLink) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := s.db.WithContext(ctx).First(&merchant, "id = ?", link.MerchantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMerchantNotFound
		}
		return nil, &StorageError{Op: "lookup merchant", Err: err}
	}
	return &merchant, nil
}

func normalizePaymentMethod(payment *gateway.Payment) string {
	switch payment.PaymentTypeID {
	case "bank_transfer":
		return "pix"
	case "credit_card":
		return "credit_card"
	case "debit_card":
		return "debit_card"
	}
	return payment.PaymentMethodID
}

func payerEmail(payment *gateway.Payment) string {
	if payment.Payer.Email != "" {
		return payment.Payer.Email
	}
	return unknownPayerEmail
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
