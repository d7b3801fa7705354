package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://api.mercadopago.com"

// Client is a thin REST client for the Mercado Pago payments API. Each call
// is authenticated with the access token of the merchant on whose behalf the
// payment is processed.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Mercado Pago client. An empty baseURL selects the
// production API endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Payer identifies the paying customer.
type Payer struct {
	Email          string            `json:"email,omitempty"`
	FirstName      string            `json:"first_name,omitempty"`
	LastName       string            `json:"last_name,omitempty"`
	Identification map[string]string `json:"identification,omitempty"`
}

// PaymentRequest is the payload for POST /v1/payments.
type PaymentRequest struct {
	TransactionAmount   float64        `json:"transaction_amount"`
	Description         string         `json:"description,omitempty"`
	PaymentMethodID     string         `json:"payment_method_id,omitempty"`
	Token               string         `json:"token,omitempty"`
	Installments        int            `json:"installments,omitempty"`
	IssuerID            string         `json:"issuer_id,omitempty"`
	Payer               Payer          `json:"payer"`
	ExternalReference   string         `json:"external_reference,omitempty"`
	StatementDescriptor string         `json:"statement_descriptor,omitempty"`
	NotificationURL     string         `json:"notification_url,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// TransactionData carries the PIX settlement artifacts.
type TransactionData struct {
	QRCode       string `json:"qr_code,omitempty"`
	QRCodeBase64 string `json:"qr_code_base64,omitempty"`
	TicketURL    string `json:"ticket_url,omitempty"`
}

type PointOfInteraction struct {
	TransactionData *TransactionData `json:"transaction_data,omitempty"`
}

// Payment is the gateway's view of a payment attempt.
type Payment struct {
	ID                 json.Number         `json:"id"`
	Status             string              `json:"status"`
	StatusDetail       string              `json:"status_detail"`
	PaymentMethodID    string              `json:"payment_method_id"`
	PaymentTypeID      string              `json:"payment_type_id"`
	Payer              Payer               `json:"payer"`
	PointOfInteraction *PointOfInteraction `json:"point_of_interaction,omitempty"`
}

// Error is a failed gateway call translated into a caller-facing message.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("mercadopago: %s (status %d)", e.Message, e.StatusCode)
}

type apiError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Cause   []struct {
		Code        json.Number `json:"code"`
		Description string      `json:"description"`
	} `json:"cause"`
}

// CreatePayment submits a payment attempt and returns the gateway's
// immediate verdict. PIX attempts carry no card token or installments.
func (c *Client) CreatePayment(ctx context.Context, accessToken string, req *PaymentRequest) (*Payment, error) {
	payload := *req
	if payload.PaymentMethodID == "pix" {
		payload.Token = ""
		payload.Installments = 0
	}

	body, err := json.Marshal(&payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	if payload.ExternalReference != "" {
		httpReq.Header.Set("X-Idempotency-Key", payload.ExternalReference)
	}

	log.Debug().
		Float64("amount", payload.TransactionAmount).
		Str("method", payload.PaymentMethodID).
		Msg("submitting payment to gateway")

	return c.do(httpReq)
}

// GetPayment fetches the authoritative state of a payment by gateway id.
func (c *Client) GetPayment(ctx context.Context, accessToken, paymentID string) (*Payment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+paymentID, nil)
	if err != nil {
		return nil, fmt.Errorf("create payment lookup request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) (*Payment, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call mercadopago: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read mercadopago response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, translateError(resp.StatusCode, raw)
	}

	var payment Payment
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("decode mercadopago response: %w", err)
	}
	if payment.ID.String() == "" {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "resposta inválida do Mercado Pago"}
	}

	return &payment, nil
}

func translateError(status int, raw []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)

	message := "Erro ao processar pagamento"
	switch status {
	case http.StatusBadRequest:
		message = "Dados de pagamento inválidos"
		if len(apiErr.Cause) > 0 && apiErr.Cause[0].Description != "" {
			message = apiErr.Cause[0].Description
		}
	case http.StatusUnauthorized:
		message = "Credenciais do Mercado Pago inválidas"
	case http.StatusNotFound:
		message = "Método de pagamento não encontrado"
	case http.StatusTooManyRequests:
		message = "Muitas tentativas. Aguarde um momento"
	default:
		if apiErr.Message != "" {
			message = apiErr.Message
		}
	}

	log.Error().
		Int("status", status).
		Str("message", apiErr.Message).
		Msg("mercadopago call failed")

	return &Error{StatusCode: status, Message: message}
}
