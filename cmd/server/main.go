package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bibekshah220/app-server/internal/gateway"
	"github.com/bibekshah220/app-server/internal/repository"
	"github.com/bibekshah220/app-server/internal/service"
	transportHTTP "github.com/bibekshah220/app-server/internal/transport/http"
	"github.com/bibekshah220/app-server/internal/transport/http/handler"
	transportKafka "github.com/bibekshah220/app-server/internal/transport/kafka"
	"github.com/bibekshah220/app-server/pkg/config"
	"github.com/bibekshah220/app-server/pkg/db"
	pkgKafka "github.com/bibekshah220/app-server/pkg/kafka"
	"github.com/bibekshah220/app-server/pkg/mylogger"
	outboxRepository "github.com/bibekshah220/app-server/pkg/outbox/repository"
	"github.com/bibekshah220/app-server/pkg/outbox/worker"
	"github.com/bibekshah220/app-server/pkg/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	tp, err := utils.InitTracer(ctx, "marketplace-service")
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	pool, err := db.NewPostgresDB(cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}

	loggerCfg := config.LoggerConfig{
		Level: "info",
		Env:   cfg.Env,
	}
	logger, err := config.NewLogger(loggerCfg)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})

	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	walletRepo := repository.NewWalletRepository(pool, logger)
	txRepo := repository.NewTransactionRepository(pool, logger)
	sellerRepo := repository.NewSellerRepository(pool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)

	payoutClient := gateway.NewPayoutClient(cfg.Payout.URL, cfg.Payout.Timeout, logger)

	checkoutService := service.NewCheckoutService(pool, logger, productRepo, orderRepo, outboxRepo, cfg.Kafka.OrderTopic)
	settlementService := service.NewSettlementService(
		pool, logger, orderRepo, walletRepo, txRepo, sellerRepo, productRepo, outboxRepo, cfg.Kafka.OrderTopic,
	)
	walletService := service.NewWalletService(pool, logger, walletRepo, txRepo, payoutClient)
	orderQueryService := service.NewOrderQueryService(logger, orderRepo)
	productService := service.NewCachedProductService(
		service.NewProductService(pool, logger, productRepo),
		redisClient,
	)

	kafkaProducer, err := pkgKafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger)
	go outboxProcessor.Start(ctx)

	consumer := transportKafka.NewConsumer(
		settlementService,
		pool,
		logger,
		cfg.Kafka.ConsumerGroup,
		[]string{cfg.Kafka.PaymentTopic},
	)
	go consumer.Start(ctx, cfg.Kafka.Brokers)

	app := fiber.New()
	app.Use(otelfiber.Middleware())

	handlers := &transportHTTP.Handlers{
		Checkout: handler.NewCheckoutHandler(checkoutService, logger),
		Order:    handler.NewOrderHandler(orderQueryService, settlementService, logger),
		Wallet:   handler.NewWalletHandler(walletService, logger),
		Product:  handler.NewProductHandler(productService, logger),
		Payment:  handler.NewPaymentHandler(settlementService, logger),
	}

	transportHTTP.RegisterRoutes(app, handlers, cfg.Auth.JWTSecret)

	go func() {
		log.Println("HTTP service listening on: " + cfg.HTTP.Port)
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening on HTTP port %v: %v\n", cfg.HTTP.Port, err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down marketplace service")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP app: %v\n", err)
	}

	if err := kafkaProducer.Close(); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to close kafka producer", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to close redis client", zap.Error(err))
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}

	pool.Close()
}
