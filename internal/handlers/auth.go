package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/paylink/internal/config"
	"github.com/example/paylink/internal/models"
	"github.com/example/paylink/internal/utils"
)

// AuthHandler bundles dependencies for merchant account endpoints.
type AuthHandler struct {
	db  *gorm.DB
	cfg *config.Config
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg}
}

type registerRequest struct {
	StoreName   string `json:"store_name" validate:"required,min=3"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	AccessToken string `json:"access_token" validate:"required,min=10"`
	PublicKey   string `json:"public_key" validate:"required,min=10"`
}

// Register creates a new merchant account with its gateway credentials.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req.StoreName = strings.TrimSpace(req.StoreName)
	req.AccessToken = strings.TrimSpace(req.AccessToken)
	req.PublicKey = strings.TrimSpace(req.PublicKey)

	if err := validate.Struct(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Todos os campos são obrigatórios e devem ser válidos")
	}

	var existing models.Merchant
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return respondError(c, fiber.StatusConflict, "Já existe uma conta com este email")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	merchant := models.Merchant{
		StoreName:    req.StoreName,
		Email:        req.Email,
		PasswordHash: passwordHash,
		AccessToken:  req.AccessToken,
		PublicKey:    req.PublicKey,
	}

	if err := h.db.Create(&merchant).Error; err != nil {
		return err
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, merchant.ID, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"merchant": fiber.Map{
			"id":         merchant.ID,
			"store_name": merchant.StoreName,
			"email":      merchant.Email,
			"public_key": merchant.PublicKey,
		},
		"token": token,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates an existing merchant.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Email e senha são obrigatórios")
	}

	var merchant models.Merchant
	if err := h.db.Where("email = ?", req.Email).First(&merchant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, fiber.StatusUnauthorized, "Credenciais inválidas")
		}
		return err
	}

	if !utils.CheckPassword(merchant.PasswordHash, req.Password) {
		return respondError(c, fiber.StatusUnauthorized, "Credenciais inválidas")
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, merchant.ID, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"merchant": fiber.Map{
			"id":         merchant.ID,
			"store_name": merchant.StoreName,
			"email":      merchant.Email,
		},
		"token": token,
	})
}
