package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/invoicing"
	"storefront/internal/payment"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/taskqueue"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
)

const transmissionPollInterval = 5 * time.Second

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer("storefront", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	queue, err := taskqueue.NewQueue(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, taskqueue.DefaultKey)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer queue.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	paymentClient := payment.NewClient(cfg.Payment.BaseURL, cfg.Payment.SecretKey, cfg.Payment.Timeout)
	invoicingClient := invoicing.NewClient(cfg.Invoicing.BaseURL, cfg.Invoicing.ClientID, cfg.Invoicing.ClientSecret, cfg.Invoicing.Timeout)

	taxCalc := service.NewTaxCalculator(cfg.Business.TaxRateNumerator, cfg.Business.TaxRateDenominator, cfg.Business.TaxRatePercent)

	reservationEngine := service.NewReservationEngine(db, eventPublisher, cfg.Business.DefaultStock, cfg.Business.ReservationTTL)
	orderService := service.NewOrderService(db, taxCalc, paymentClient, cfg.Payment.Currency)
	capacityEngine := service.NewCapacityEngine(db)
	invoicePipeline := service.NewInvoicePipeline(db, invoicingClient, queue, eventPublisher, cfg.Invoicing, cfg.Payment.Currency)
	webhookProcessor := service.NewWebhookProcessor(db, reservationEngine, invoicePipeline, eventPublisher, cfg.Payment.WebhookSecret)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	transmissionWorker := worker.NewTransmissionWorker(queue, invoicePipeline, transmissionPollInterval)
	go func() {
		if err := transmissionWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Transmission worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(db, reservationEngine, orderService, capacityEngine, webhookProcessor)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()

	log.Println("Server exited")
}
