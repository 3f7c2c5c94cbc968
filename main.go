package main

import (
	"context"
	"log"
	"strings"
	"time"

	"rewards-service/cache"
	"rewards-service/config"
	"rewards-service/controllers"
	"rewards-service/database"
	"rewards-service/kafka"
	"rewards-service/middleware"
	"rewards-service/models"
	awspkg "rewards-service/pkg/aws"
	"rewards-service/repository"
	"rewards-service/routes"
	"rewards-service/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("[RewardsService] Failed to load config:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("[RewardsService] Failed to initialize logger:", err)
	}
	defer logger.Sync()

	db, err := database.ConnectPostgres(cfg, logger,
		&models.WebhookEvent{},
		&models.Order{},
		&models.FinancialTransaction{},
		&models.FraudSignal{},
		&models.LoyaltyAccount{},
		&models.LoyaltyLedgerEntry{},
	)
	if err != nil {
		log.Fatal("[RewardsService] Failed to connect to DB:", err)
	}
	defer database.Close(db)

	eventStore := repository.NewGormWebhookEventStore(db)
	orderStore := repository.NewGormOrderStore(db)
	ledgerStore := repository.NewGormLedgerStore(db)

	guard := services.NewReplayGuard(eventStore, logger)
	stripeSvc := services.NewStripeService(cfg.StripeWebhookKey)

	var audit services.AuditPublisher
	if cfg.KafkaBrokers != "" {
		producer := kafka.NewAuditEventProducer(strings.Split(cfg.KafkaBrokers, ","), cfg.AuditTopic)
		defer producer.Close()
		audit = producer
	}

	var fraud *services.FraudChecker
	if cfg.CatalogServiceURL != "" {
		catalog := services.NewHTTPCatalogClient(cfg.CatalogServiceURL)
		priceCache := cache.NewTTLCache(2 * time.Minute)
		fraud = services.NewFraudChecker(catalog, priceCache, orderStore, audit, cfg.FraudToleranceMinor, logger)
	}

	var sns awspkg.SNSPublisher
	if cfg.PaymentSNSTopicARN != "" {
		awsCfg, err := awspkg.LoadAWSConfig(context.Background())
		if err != nil {
			log.Fatal("[RewardsService] Failed to load AWS config:", err)
		}
		sns = awspkg.NewSNSClient(awsCfg)
	}

	orderSvc := services.NewOrderService(orderStore, fraud, sns, cfg.PaymentSNSTopicARN, cfg.Currency, logger)
	ledgerSvc := services.NewLedgerService(ledgerStore, services.NoopCreditIssuer{}, cfg.MinorUnitsPerPoint, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	wc := &controllers.WebhookController{
		Verifier: stripeSvc,
		Guard:    guard,
		Orders:   orderSvc,
		Logger:   logger,
	}
	lc := &controllers.LoyaltyController{
		Service: ledgerSvc,
		Logger:  logger,
	}
	oc := &controllers.OrderController{
		Orders: orderSvc,
		Logger: logger,
	}
	routes.RegisterRoutes(r, cfg.JWTSecret, wc, lc, oc)

	log.Println("[RewardsService] Running on port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("[RewardsService] Server failed:", err)
	}
}
