package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/paylink/internal/middleware"
	"github.com/example/paylink/internal/services"
	"github.com/example/paylink/internal/utils"
)

// LinkHandler manages merchant-facing payment link endpoints.
type LinkHandler struct {
	links *services.LinkService
}

// NewLinkHandler constructs a LinkHandler.
func NewLinkHandler(links *services.LinkService) *LinkHandler {
	return &LinkHandler{links: links}
}

type createLinkRequest struct {
	Description string          `json:"description" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
}

// CreateLink creates a new pending payment link for the authenticated merchant.
func (h *LinkHandler) CreateLink(c *fiber.Ctx) error {
	merchantID, ok := middleware.GetCurrentMerchantID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	link, err := h.links.CreateLink(c.Context(), merchantID, req.Description, req.Amount)
	if err != nil {
		return respondServiceError(c, err)
	}

	paymentURL := "/pay/" + link.ID.String()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":     true,
		"link_id":     link.ID,
		"payment_url": paymentURL,
		"full_url":    fmt.Sprintf("%s://%s%s", c.Protocol(), c.Hostname(), paymentURL),
	})
}

// ListLinks returns the merchant's links newest first plus dashboard stats.
func (h *LinkHandler) ListLinks(c *fiber.Ctx) error {
	merchantID, ok := middleware.GetCurrentMerchantID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)

	links, stats, err := h.links.ListLinks(c.Context(), merchantID, pg.Limit, pg.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"stats":   stats,
		"links":   links,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
		},
	})
}

// CancelLink cancels a link owned by the authenticated merchant.
func (h *LinkHandler) CancelLink(c *fiber.Ctx) error {
	merchantID, ok := middleware.GetCurrentMerchantID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	linkID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid link id")
	}

	if err := h.links.CancelLink(c.Context(), linkID, merchantID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Link cancelado com sucesso",
	})
}
