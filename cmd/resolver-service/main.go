package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mgoulart/shortlinks/internal/apperrors"
	"github.com/mgoulart/shortlinks/internal/config"
	"github.com/mgoulart/shortlinks/internal/events"
	"github.com/mgoulart/shortlinks/internal/logger"
	"github.com/mgoulart/shortlinks/internal/metrics"
	"github.com/mgoulart/shortlinks/internal/resolver"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		slog.Warn(".env file not found, relying on env vars", "error", err)
	}
	log := logger.InitFromEnv()
	cfg := config.LoadResolver()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.NewGormLogger(cfg.GormLogLevel),
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
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

	cache := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer cache.Close()

	service := resolver.NewService(resolver.NewGormLinkSource(db), cache, cfg.CacheTTL, cfg.NegativeTTL, publisher)
	// Close only after Listen has returned, so no request can race the drain.
	defer service.Close()

	// Consume on a dedicated channel; ch stays publish-only for click events.
	consumeCh, err := conn.Channel()
	if err != nil {
		log.Error("failed to open rabbitmq channel", "error", err)
		os.Exit(1)
	}
	defer consumeCh.Close()
	invalidator := resolver.NewInvalidator(cache)
	consumer := events.NewConsumer(consumeCh, cfg.EventExchange, cfg.InvalidationQueue, 1, invalidator)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("invalidation consumer stopped", "error", err)
			stop()
		}
	}()

	app := fiber.New()
	app.Use(logger.RequestID())
	app.Use(logger.FiberMiddleware())

	app.Get("/metrics", metrics.Handler())
	app.Get("/r/:shortcode", handleRedirect(service))

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()

	log.Info("starting resolver service", "port", cfg.Port)
	if err := app.Listen(cfg.Port); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func handleRedirect(service *resolver.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		click := resolver.ClickContext{
			IPAddress: resolver.ClientAddress(c.Get("X-Forwarded-For"), c.IP()),
			UserAgent: c.Get("User-Agent"),
		}
		redirect, err := service.Resolve(c.UserContext(), c.Params("shortcode"), click)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
			}
			logger.FromContext(c.UserContext()).Error("redirect failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
		}
		return c.Redirect(redirect.URL, redirect.Status)
	}
}
