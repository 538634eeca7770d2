package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_created_total",
		Help: "Total number of reservation groups created",
	})

	ReservationsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_confirmed_total",
		Help: "Total number of reservation groups committed to stock",
	})

	ReservationsReleasedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_released_total",
		Help: "Total number of reservation groups released",
	}, []string{"reason"})

	ReservationsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_rejected_total",
		Help: "Total number of rejected reservation attempts",
	}, []string{"reason"})

	ReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reservation_reserve_latency_seconds",
		Help:    "Latency of reservation creation",
		Buckets: prometheus.DefBuckets,
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of draft orders created",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders confirmed paid",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of payment webhook deliveries",
	}, []string{"result"})

	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of session bookings created",
	})

	InvoiceTransmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_transmissions_total",
		Help: "Total number of invoice transmission attempts",
	}, []string{"result"})

	InvoiceTransmissionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "invoice_transmission_latency_seconds",
		Help:    "Latency of invoice gateway calls",
		Buckets: prometheus.DefBuckets,
	})

	SweepReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_reservations_released_total",
		Help: "Total number of expired reservation groups released by the sweep",
	})

	SweepInvoicesRetriedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_invoices_retried_total",
		Help: "Total number of stuck invoices re-enqueued by the sweep",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
