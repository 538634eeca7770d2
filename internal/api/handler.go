package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/payment"
	"storefront/internal/port"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	store        port.Store
	reservations *service.ReservationEngine
	orders       *service.OrderService
	capacity     *service.CapacityEngine
	webhooks     *service.WebhookProcessor
}

// NewHandler creates a new HTTP handler
func NewHandler(store port.Store, reservations *service.ReservationEngine, orders *service.OrderService, capacity *service.CapacityEngine, webhooks *service.WebhookProcessor) *Handler {
	return &Handler{
		store:        store,
		reservations: reservations,
		orders:       orders,
		capacity:     capacity,
		webhooks:     webhooks,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:sku", h.getProduct)

		v1.POST("/reservations", h.createReservation)
		v1.DELETE("/reservations/:id", h.releaseReservation)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)

		v1.GET("/sessions", h.listSessions)
		v1.POST("/bookings", h.createBooking)

		v1.POST("/webhooks/payment", h.paymentWebhook)

		admin := v1.Group("/admin")
		{
			admin.POST("/inventory/:sku/adjust", h.adjustStock)
			admin.GET("/orders", h.listOrders)
			admin.GET("/orders/:id", h.getAdminOrder)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listProducts returns the active catalog
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.store.ActiveProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load products",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getProduct returns one catalog product by SKU
func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.store.ProductBySKU(c.Request.Context(), c.Param("sku"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load product",
		})
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Product not found",
		})
		return
	}

	c.JSON(http.StatusOK, product)
}

type createReservationRequest struct {
	Items []service.ReserveItem `json:"items" binding:"required,min=1,dive"`
}

// createReservation places holds for a cart's worth of items
func (h *Handler) createReservation(c *gin.Context) {
	var req createReservationRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.reservations.Reserve(c.Request.Context(), req.Items)
	if err != nil {
		var stockErr *service.InsufficientStockError
		if errors.As(err, &stockErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": "Insufficient stock",
				"sku":   stockErr.SKU,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create reservation",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, result)
}

// releaseReservation cancels a reservation group explicitly
func (h *Handler) releaseReservation(c *gin.Context) {
	if err := h.reservations.Release(c.Request.Context(), c.Param("id"), "cancelled"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to release reservation",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "released"})
}

type createOrderRequest struct {
	ReservationID string `json:"reservation_id" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
}

// createOrder turns an active reservation into a draft order with a
// payment intent
func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.orders.CreateDraftOrder(c.Request.Context(), req.ReservationID, req.Email)
	if err != nil {
		if errors.Is(err, service.ErrReservationInvalid) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": "Reservation expired or invalid",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, result)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, items, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Order not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// listSessions returns upcoming event sessions
func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.store.UpcomingSessions(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load sessions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

type createBookingRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// createBooking books seats on an event session
func (h *Handler) createBooking(c *gin.Context) {
	var req createBookingRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	booking, err := h.capacity.ReserveSeats(c.Request.Context(), req.SessionID, req.Email, req.Quantity)
	if err != nil {
		if errors.Is(err, service.ErrInsufficientCapacity) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": "Not enough seats available",
			})
			return
		}
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Session not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create booking",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// paymentWebhook receives signed payment processor notifications. The raw
// body is verified before any parsing, so it is read directly rather than
// bound.
func (h *Handler) paymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read body",
		})
		return
	}

	err = h.webhooks.Handle(c.Request.Context(), body, c.GetHeader(payment.SignatureHeader))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid signature",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to process event",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

type adjustStockRequest struct {
	QuantityChange int    `json:"quantity_change" binding:"required"`
	Reason         string `json:"reason" binding:"required"`
	ActorID        string `json:"actor_id"`
}

// adjustStock applies an admin stock correction
func (h *Handler) adjustStock(c *gin.Context) {
	var req adjustStockRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	rec, err := h.reservations.Adjust(c.Request.Context(), c.Param("sku"), req.QuantityChange, req.Reason, req.ActorID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Unknown SKU",
			})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Adjustment rejected",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// listOrders returns recent orders for the admin view
func (h *Handler) listOrders(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	orders, err := h.store.Orders(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load orders",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getAdminOrder returns an order with its payment, invoice and delivery
// history
func (h *Handler) getAdminOrder(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := c.Param("id")

	order, items, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Order not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load order",
		})
		return
	}

	resp := gin.H{
		"order": order,
		"items": items,
	}

	if pay, err := h.store.PaymentByOrderID(ctx, orderID); err == nil && pay != nil {
		resp["payment"] = pay
	}
	if inv, err := h.store.InvoiceByOrderID(ctx, orderID); err == nil && inv != nil {
		resp["invoice"] = inv
		if attempts, err := h.store.AttemptsByInvoiceID(ctx, inv.ID); err == nil {
			resp["transmission_attempts"] = attempts
		}
	}

	c.JSON(http.StatusOK, resp)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
