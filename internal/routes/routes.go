package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/paylink/internal/config"
	"github.com/example/paylink/internal/gateway"
	"github.com/example/paylink/internal/handlers"
	"github.com/example/paylink/internal/middleware"
	"github.com/example/paylink/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL)

	linkService := services.NewLinkService(db, cfg.LinkExpiryDays)
	paymentService := services.NewPaymentService(db, linkService, gatewayClient, cfg.WebhookURL)
	watcher := services.NewStatusWatcher(paymentService, cfg.PixPollInterval, cfg.PixPollTimeout)

	authHandler := handlers.NewAuthHandler(db, cfg)
	linkHandler := handlers.NewLinkHandler(linkService)
	paymentHandler := handlers.NewPaymentHandler(db, linkService, paymentService, watcher)

	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Merchant account routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Public checkout routes
	api.Get("/payment-link/:id", paymentHandler.GetPaymentLink)
	api.Post("/process-payment", paymentHandler.ProcessPayment)
	api.Get("/payment-status/:id", paymentHandler.PaymentStatus)
	api.Post("/webhook/mercadopago", paymentHandler.Webhook)

	// Protected merchant routes
	links := api.Group("/links", middleware.AuthMiddleware(cfg))
	links.Post("/", linkHandler.CreateLink)
	links.Get("/", linkHandler.ListLinks)
	links.Delete("/:id", linkHandler.CancelLink)
}
