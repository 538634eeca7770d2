// Command sweeper runs the maintenance sweeps once and exits. Intended to
// be invoked from cron or a scheduled job runner.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"storefront/config"
	"storefront/internal/broker"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/taskqueue"
	"storefront/internal/util"
)

func main() {
	reservations := flag.Bool("reservations", true, "release expired reservation groups")
	invoices := flag.Bool("invoices", true, "re-enqueue stuck draft invoices")
	flag.Parse()

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	queue, err := taskqueue.NewQueue(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, taskqueue.DefaultKey)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer queue.Close()

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()

	eventPublisher := broker.NewEventPublisher(producer)
	reservationEngine := service.NewReservationEngine(db, eventPublisher, cfg.Business.DefaultStock, cfg.Business.ReservationTTL)
	sweeper := service.NewSweeper(db, reservationEngine, queue, cfg.Business.StuckInvoiceThreshold)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *reservations {
		released, err := sweeper.ReleaseExpired(ctx)
		if err != nil {
			log.Fatalf("Reservation sweep failed: %v", err)
		}
		log.Printf("Reservation sweep done: %d groups released", released)
	}

	if *invoices {
		retried, err := sweeper.RetryStuckInvoices(ctx)
		if err != nil {
			log.Fatalf("Invoice sweep failed: %v", err)
		}
		log.Printf("Invoice sweep done: %d invoices re-enqueued", retried)
	}
}
