package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/example/paylink/internal/gateway"
	"github.com/example/paylink/internal/services"
)

// validate is shared by all request DTOs.
var validate = validator.New()

// respondServiceError translates domain errors into the JSON error contract.
func respondServiceError(c *fiber.Ctx, err error) error {
	var validationErr *services.ValidationError
	var gatewayErr *services.GatewayError

	switch {
	case errors.As(err, &validationErr):
		return respondError(c, fiber.StatusBadRequest, validationErr.Error())
	case errors.Is(err, services.ErrLinkNotFound):
		return respondError(c, fiber.StatusNotFound, "Link de pagamento não encontrado")
	case errors.Is(err, services.ErrMerchantNotFound):
		return respondError(c, fiber.StatusNotFound, "Usuário não encontrado")
	case errors.Is(err, services.ErrPermission):
		return respondError(c, fiber.StatusForbidden, "Sem permissão para acessar este link")
	case errors.Is(err, services.ErrAlreadyPaid):
		return respondError(c, fiber.StatusBadRequest, "Este link já foi pago")
	case errors.Is(err, services.ErrInvalidState):
		return respondError(c, fiber.StatusBadRequest, "O link não está mais disponível para esta operação")
	case errors.Is(err, services.ErrAmountMismatch):
		return respondError(c, fiber.StatusBadRequest, "O valor do pagamento não corresponde ao valor do link")
	case errors.As(err, &gatewayErr):
		return respondError(c, fiber.StatusBadGateway, gatewayMessage(gatewayErr))
	}

	return err
}

// gatewayMessage surfaces the gateway client's payer-facing message when one
// exists; transport-level failures get a generic one.
func gatewayMessage(err *services.GatewayError) string {
	var apiErr *gateway.Error
	if errors.As(err.Err, &apiErr) {
		return apiErr.Message
	}
	return "Erro ao processar pagamento"
}

func respondError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}
