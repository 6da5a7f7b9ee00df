package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mgoulart/shortlinks/internal"
	"github.com/mgoulart/shortlinks/internal/analytics"
	"github.com/mgoulart/shortlinks/internal/apperrors"
	"github.com/mgoulart/shortlinks/internal/config"
	"github.com/mgoulart/shortlinks/internal/events"
	"github.com/mgoulart/shortlinks/internal/logger"
	"github.com/mgoulart/shortlinks/internal/metrics"
	"github.com/mgoulart/shortlinks/internal/quota"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		slog.Warn(".env file not found, relying on env vars", "error", err)
	}
	log := logger.InitFromEnv()
	cfg := config.LoadAnalytics()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.NewGormLogger(cfg.GormLogLevel),
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(&internal.Reflection{}, &internal.ClickFact{}); err != nil {
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

	store := analytics.NewGormStore(db)
	reflector := analytics.NewReflector(store, store)
	consumer := events.NewConsumer(ch, cfg.EventExchange, cfg.EventQueue, cfg.Prefetch, reflector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "error", err)
			stop()
		}
	}()

	query := analytics.NewQueryService(quota.NewClient(cfg.QuotaServiceURL), store, store)

	app := fiber.New()
	app.Use(logger.RequestID())
	app.Use(logger.FiberMiddleware())

	app.Get("/metrics", metrics.Handler())
	app.Get("/analytics/:shortcode", handleGetAnalytics(query))

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()

	log.Info("starting analytics service", "port", cfg.Port)
	if err := app.Listen(cfg.Port); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func handleGetAnalytics(query *analytics.QueryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id must be numeric."})
		}
		report, err := query.GetAnalytics(c.UserContext(), userID, c.Params("shortcode"), c.QueryInt("limit"), c.QueryInt("offset"))
		if err != nil {
			status := apperrors.HTTPStatus(err)
			if status == fiber.StatusInternalServerError {
				logger.FromContext(c.UserContext()).Error("analytics query failed", "error", err)
				return c.Status(status).JSON(fiber.Map{"error": "Internal server error"})
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(report)
	}
}
