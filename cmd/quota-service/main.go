package main

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mgoulart/shortlinks/internal"
	"github.com/mgoulart/shortlinks/internal/apperrors"
	"github.com/mgoulart/shortlinks/internal/config"
	"github.com/mgoulart/shortlinks/internal/logger"
	"github.com/mgoulart/shortlinks/internal/metrics"
	"github.com/mgoulart/shortlinks/internal/quota"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		slog.Warn(".env file not found, relying on env vars", "error", err)
	}
	log := logger.InitFromEnv()
	cfg := config.LoadQuota()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.NewGormLogger(cfg.GormLogLevel),
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(&internal.UserAccount{}); err != nil {
		log.Error("failed to auto-migrate database", "error", err)
		os.Exit(1)
	}

	authority := quota.NewAuthority(db)

	app := fiber.New()
	app.Use(logger.RequestID())
	app.Use(logger.FiberMiddleware())

	app.Get("/metrics", metrics.Handler())
	app.Get("/subscriptions/:userID", handleGetSubscription(authority))
	app.Post("/subscriptions/:userID/subscribe", handleSetTier(authority, internal.TierPro))
	app.Post("/subscriptions/:userID/unsubscribe", handleSetTier(authority, internal.TierFree))
	app.Post("/users", handleCreateUser(authority))

	log.Info("starting quota service", "port", cfg.Port)
	if err := app.Listen(cfg.Port); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func handleGetSubscription(authority *quota.Authority) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := strconv.ParseInt(c.Params("userID"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "User id must be numeric."})
		}
		sub, err := authority.GetSubscription(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(sub)
	}
}

func handleSetTier(authority *quota.Authority, tier internal.Tier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := strconv.ParseInt(c.Params("userID"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "User id must be numeric."})
		}
		sub, err := authority.SetTier(c.UserContext(), userID, tier)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(sub)
	}
}

func handleCreateUser(authority *quota.Authority) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Email string `json:"email"`
		}
		if err := c.BodyParser(&req); err != nil || req.Email == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "email is required."})
		}
		user, err := authority.CreateUser(c.UserContext(), req.Email)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(user)
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status := apperrors.HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		logger.FromContext(c.UserContext()).Error("request failed", "error", err)
		return c.Status(status).JSON(fiber.Map{"error": "Internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
