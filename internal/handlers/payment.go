package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/paylink/internal/models"
	"github.com/example/paylink/internal/services"
)

// PaymentHandler manages the public checkout endpoints: link payload,
// payment processing, status polling and the gateway webhook.
type PaymentHandler struct {
	db       *gorm.DB
	links    *services.LinkService
	payments *services.PaymentService
	watcher  *services.StatusWatcher
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(db *gorm.DB, links *services.LinkService, payments *services.PaymentService, watcher *services.StatusWatcher) *PaymentHandler {
	return &PaymentHandler{db: db, links: links, payments: payments, watcher: watcher}
}

// GetPaymentLink returns the public checkout payload for a link. The
// merchant's secret credential is never included; the public key is what the
// checkout widget needs.
func (h *PaymentHandler) GetPaymentLink(c *fiber.Ctx) error {
	linkID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid link id")
	}

	link, err := h.links.GetLink(c.Context(), linkID)
	if err != nil {
		return respondServiceError(c, err)
	}

	if link.Status != models.LinkStatusPending {
		message := "Link expirou"
		switch link.Status {
		case models.LinkStatusPaid:
			message = "Link já foi pago"
		case models.LinkStatusCancelled:
			message = "Link foi cancelado"
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   message,
			"status":  link.Status,
		})
	}

	var merchant models.Merchant
	if err := h.db.First(&merchant, "id = ?", link.MerchantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondServiceError(c, services.ErrMerchantNotFound)
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"link": fiber.Map{
			"id":          link.ID,
			"description": link.Description,
			"amount":      link.Amount,
			"status":      link.Status,
			"store_name":  merchant.StoreName,
			"public_key":  merchant.PublicKey,
			"created_at":  link.CreatedAt,
		},
	})
}

type payerRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type processPaymentRequest struct {
	LinkID      string          `json:"link_id" validate:"required,uuid4"`
	Amount      decimal.Decimal `json:"transaction_amount"`
	MethodID    string          `json:"payment_method_id" validate:"required"`
	Token       string          `json:"token"`
	Installment int             `json:"installments"`
	IssuerID    string          `json:"issuer_id"`
	Payer       payerRequest    `json:"payer"`
}

// ProcessPayment submits a payment attempt for a link and reports the
// synchronous verdict. PIX attempts additionally start a server-side status
// watch so confirmation does not depend on the payer keeping the tab open.
func (h *PaymentHandler) ProcessPayment(c *fiber.Ctx) error {
	var req processPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Dados de pagamento incompletos")
	}

	linkID, err := uuid.Parse(req.LinkID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid link id")
	}

	attempt := &services.PaymentAttempt{
		Amount:          req.Amount,
		PaymentMethodID: req.MethodID,
		Token:           req.Token,
		Installments:    req.Installment,
		IssuerID:        req.IssuerID,
		PayerEmail:      req.Payer.Email,
		PayerFirstName:  req.Payer.FirstName,
		PayerLastName:   req.Payer.LastName,
	}

	result, err := h.payments.ProcessPayment(c.Context(), linkID, attempt)
	if err != nil {
		return respondServiceError(c, err)
	}

	if result.IsAsync() && result.PaymentMethod == "pix" {
		h.watcher.Watch(linkID, result.PaymentID)
	}

	return c.JSON(fiber.Map{
		"success":            true,
		"status":             result.Status,
		"detail":             result.StatusDetail,
		"payment_id":         result.PaymentID,
		"payment_method":     result.PaymentMethod,
		"rejection_reason":   result.RejectionReason,
		"pix_qr_code":        result.PixQRCode,
		"pix_qr_code_base64": result.PixQRCodeBase64,
		"pix_ticket_url":     result.PixTicketURL,
	})
}

// PaymentStatus is the stateless poll read used by the payer's browser.
func (h *PaymentHandler) PaymentStatus(c *fiber.Ctx) error {
	linkID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid link id")
	}

	status, err := h.payments.CheckStatus(c.Context(), linkID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":         status.Status,
		"payment_id":     status.PaymentID,
		"payment_method": status.PaymentMethod,
		"is_paid":        status.IsPaid,
	})
}

// Webhook receives gateway notifications. The gateway is always acknowledged
// with 200 regardless of processing outcome; internal failures are logged so
// a delivery retry storm is never triggered.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	var envelope services.WebhookEnvelope
	if err := c.BodyParser(&envelope); err != nil {
		log.Warn().Err(err).Msg("unparseable webhook body")
		return c.SendString("OK")
	}

	if err := h.payments.HandleWebhook(c.Context(), &envelope); err != nil {
		log.Error().Err(err).Str("type", envelope.Type).Msg("webhook processing failed")
	}

	return c.SendString("OK")
}
