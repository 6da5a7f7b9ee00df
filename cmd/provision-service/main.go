package main

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mgoulart/shortlinks/internal"
	"github.com/mgoulart/shortlinks/internal/apperrors"
	"github.com/mgoulart/shortlinks/internal/config"
	"github.com/mgoulart/shortlinks/internal/events"
	"github.com/mgoulart/shortlinks/internal/logger"
	"github.com/mgoulart/shortlinks/internal/metrics"
	"github.com/mgoulart/shortlinks/internal/quota"
	"github.com/mgoulart/shortlinks/internal/shortlinks"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		slog.Warn(".env file not found, relying on env vars", "error", err)
	}
	log := logger.InitFromEnv()
	cfg := config.LoadProvision()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.NewGormLogger(cfg.GormLogLevel),
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(&internal.Link{}); err != nil {
		log.Error("failed to auto-migrate database", "error", err)
		os.Exit(1)
	}

	conn, err := amqp091.Dial(cfg.RabbitURL)
	if err != nil {
		log.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		log.Error("failed to open rabbitmq channel", "error", err)
		os.Exit(1)
	}
	defer ch.Close()
	publisher, err := events.NewPublisher(ch, cfg.EventExchange)
	if err != nil {
		log.Error("failed to declare event exchange", "error", err)
		os.Exit(1)
	}

	service := shortlinks.NewService(
		shortlinks.NewGormStore(db),
		quota.NewClient(cfg.QuotaServiceURL),
		publisher,
		cfg.PublicBaseURL,
	)

	app := fiber.New()
	app.Use(logger.RequestID())
	app.Use(logger.FiberMiddleware())
	app.Use(cors.New())

	app.Get("/metrics", metrics.Handler())
	app.Post("/shortlinks", handleCreate(service))
	app.Post("/shortlinks/bulk", handleCreateBulk(service))
	app.Get("/shortlinks", handleList(service))
	app.Get("/shortlinks/:shortcode", handleFindOne(service))
	app.Patch("/shortlinks/:shortcode", handleUpdate(service))
	app.Delete("/shortlinks/:shortcode", handleDelete(service))
	app.Get("/internal/users/:userID/usage", handleUsage(service))

	log.Info("starting provision service", "port", cfg.Port)
	if err := app.Listen(cfg.Port); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// linkRequest is the wire shape for create and bulk create bodies.
type linkRequest struct {
	OriginalURL string  `json:"original_url"`
	ShortCode   string  `json:"shortcode"`
	ExpiresAt   *string `json:"expires_at"`
}

func (r linkRequest) toItem() (shortlinks.CreateItem, error) {
	item := shortlinks.CreateItem{
		OriginalURL: r.OriginalURL,
		ShortCode:   r.ShortCode,
	}
	if r.ExpiresAt != nil {
		parsed, err := time.Parse(time.RFC3339, *r.ExpiresAt)
		if err != nil {
			return shortlinks.CreateItem{}, apperrors.InvalidArgument("expires_at must be an RFC 3339 timestamp.")
		}
		item.ExpiresAt = &parsed
	}
	return item, nil
}

func handleCreate(service *shortlinks.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := callerID(c)
		if err != nil {
			return respondError(c, err)
		}
		var req linkRequest
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, apperrors.InvalidArgument("Invalid request body."))
		}
		item, err := req.toItem()
		if err != nil {
			return respondError(c, err)
		}
		link, err := service.Create(c.UserContext(), ownerID, item)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(link)
	}
}

func handleCreateBulk(service *shortlinks.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := callerID(c)
		if err != nil {
			return respondError(c, err)
		}
		var body struct {
			Links []linkRequest `json:"links"`
		}
		if err := c.BodyParser(&body); err != nil {
			return respondError(c, apperrors.InvalidArgument("Invalid request body."))
		}
		items := make([]shortlinks.CreateItem, 0, len(body.Links))
		for _, req := range body.Links {
			item, err := req.toItem()
			if err != nil {
				return respondError(c, err)
			}
			items = append(items, item)
		}
		links, err := service.CreateBatch(c.UserContext(), ownerID, items)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": links})
	}
}

func handleList(service *shortlinks.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := callerID(c)
		if err != nil {
			return respondError(c, err)
		}
		page, err := service.List(c.UserContext(), ownerID, c.QueryInt("limit"), c.QueryInt("offset"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(page)
	}
}

func handleFindOne(service *shortlinks.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := callerID(c)
		if err != nil {
			return respondError(c, err)
		}
		link, err := service.FindOne(c.UserContext(), ownerID, c.Params("shortcode"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(link)
	}
}

func handleUpdate(service *shortlinks.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := callerID(c)
		if err != nil {
			return respondError(c, err)
		}
		var req struct {
			OriginalURL *string `json:"original_url"`
			ShortCode   *string `json:"shortcode"`
			ExpiresAt   *string `json:"expires_at"`
		}
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, apperrors.InvalidArgument("Invalid request body."))
		}
		patch := shortlinks.UpdatePatch{
			OriginalURL: req.OriginalURL,
			ShortCode:   req.ShortCode,
		}
		if req.ExpiresAt != nil {
			parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
			if err != nil {
				return respondError(c, apperrors.InvalidArgument("expires_at must be an RFC 3339 timestamp."))
			}
			patch.ExpiresAt = &parsed
		}
		link, err := service.Update(c.UserContext(), ownerID, c.Params("shortcode"), patch)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(link)
	}
}

func handleDelete(service *shortlinks.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := callerID(c)
		if err != nil {
			return respondError(c, err)
		}
		if err := service.Delete(c.UserContext(), ownerID, c.Params("shortcode")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func handleUsage(service *shortlinks.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := strconv.ParseInt(c.Params("userID"), 10, 64)
		if err != nil {
			return respondError(c, apperrors.InvalidArgument("User id must be numeric."))
		}
		usage, err := service.Usage(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(usage)
	}
}

// callerID reads the authenticated user from the X-User-ID header. The
// gateway in front of this service is responsible for populating it.
func callerID(c *fiber.Ctx) (int64, error) {
	raw := c.Get("X-User-ID")
	if raw == "" {
		return 0, apperrors.InvalidArgument("Missing X-User-ID header.")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperrors.InvalidArgument("X-User-ID must be numeric.")
	}
	return id, nil
}

func respondError(c *fiber.Ctx, err error) error {
	status := apperrors.HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		logger.FromContext(c.UserContext()).Error("request failed", "error", err)
		return c.Status(status).JSON(fiber.Map{"error": "Internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
