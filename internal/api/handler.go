package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"booking-service/internal/gateway"
	"booking-service/internal/models"
	"booking-service/internal/service"
	"booking-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxWebhookBody = 64 << 10

// BookingAPI is the enrollment surface
type BookingAPI interface {
	CreateBooking(ctx context.Context, req *service.CreateBookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ListUserBookings(ctx context.Context, userID string) ([]models.Booking, error)
}

// PaymentAPI is the initiate and reconcile surface
type PaymentAPI interface {
	Initiate(ctx context.Context, req *service.InitiatePaymentRequest) (*service.InitiatePaymentResponse, error)
	Reconcile(ctx context.Context, cb service.Callback) (*service.ReconcileResult, error)
	HandleStripeEvent(ctx context.Context, event *gateway.WebhookEvent) (*service.ReconcileResult, error)
}

// AdminAPI is the operator payment surface
type AdminAPI interface {
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID, status string) (*models.Payment, error)
	DeletePayment(ctx context.Context, paymentID string) error
}

// WebhookVerifier authenticates provider webhook deliveries
type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	bookings    BookingAPI
	payments    PaymentAPI
	admin       AdminAPI
	webhooks    WebhookVerifier
	checks      map[string]Pinger
	frontendURL string
}

// NewHandler creates a new HTTP handler. Gateway redirects are forwarded to
// frontendURL when it is set.
func NewHandler(
	bookings BookingAPI,
	payments PaymentAPI,
	admin AdminAPI,
	webhooks WebhookVerifier,
	checks map[string]Pinger,
	frontendURL string,
) *Handler {
	return &Handler{
		bookings:    bookings,
		payments:    payments,
		admin:       admin,
		webhooks:    webhooks,
		checks:      checks,
		frontendURL: strings.TrimRight(frontendURL, "/"),
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
		v1.POST("/bookings", h.createBooking)
		v1.GET("/bookings/:id", h.getBooking)
		v1.GET("/users/:id/bookings", h.listUserBookings)

		payments := v1.Group("/payments")
		payments.POST("/initiate", h.initiatePayment)
		payments.POST("/stripe/webhook", h.stripeWebhook)
		payments.GET("/stripe/success", h.stripeSuccess)
		payments.GET("/gateway/:status", h.gatewayRedirect)
		payments.POST("/gateway/:status", h.gatewayRedirect)

		admin := v1.Group("/admin")
		admin.GET("/payments", h.listPayments)
		admin.GET("/payments/:id", h.getPayment)
		admin.PATCH("/payments/:id/status", h.updatePaymentStatus)
		admin.DELETE("/payments/:id", h.deletePayment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": deps,
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

func (h *Handler) getBooking(c *gin.Context) {
	booking, err := h.bookings.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) listUserBookings(c *gin.Context) {
	bookings, err := h.bookings.ListUserBookings(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// initiatePayment opens a provider session for a booking
func (h *Handler) initiatePayment(c *gin.Context) {
	var req service.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.payments.Initiate(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// stripeWebhook verifies and reconciles a Stripe event. Unhandled and
// already-processed events are acknowledged with 200.
func (h *Handler) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	event, err := h.webhooks.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.payments.HandleStripeEvent(c.Request.Context(), event)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"received": true}
	if result != nil {
		resp["outcome"] = result.Outcome
	}
	c.JSON(http.StatusOK, resp)
}

// stripeSuccess reconciles a checkout session the payer returned from
func (h *Handler) stripeSuccess(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	result, err := h.payments.Reconcile(c.Request.Context(), service.CheckoutSessionCallback{
		SessionID:     sessionID,
		TransactionID: c.Query("transaction_id"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// gatewayRedirect handles the regional gateway's success, fail and cancel
// redirects, which arrive as a query string or a form post
func (h *Handler) gatewayRedirect(c *gin.Context) {
	status := c.Param("status")
	switch status {
	case service.RedirectSuccess, service.RedirectFail, service.RedirectCancel:
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown gateway status"})
		return
	}

	field := func(key string) string {
		return c.DefaultPostForm(key, c.Query(key))
	}

	tranID := field("tran_id")
	if tranID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tran_id is required"})
		return
	}

	params := map[string]string{}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	if err := c.Request.ParseForm(); err == nil {
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
	}

	result, err := h.payments.Reconcile(c.Request.Context(), service.GatewayRedirect{
		TransactionID: tranID,
		Status:        status,
		Amount:        field("amount"),
		ValID:         field("val_id"),
		Params:        params,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if h.frontendURL != "" {
		q := url.Values{}
		q.Set("transaction_id", tranID)
		q.Set("status", strings.ToLower(string(result.Outcome)))
		c.Redirect(http.StatusSeeOther, h.frontendURL+"/payment/result?"+q.Encode())
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) listPayments(c *gin.Context) {
	filter := models.PaymentFilter{
		BookingID: c.Query("booking_id"),
		EventID:   c.Query("event_id"),
		UserID:    c.Query("user_id"),
		Status:    strings.ToUpper(c.Query("status")),
	}

	var err error
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}

	payments, err := h.admin.ListPayments(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payments": payments,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (h *Handler) getPayment(c *gin.Context) {
	payment, err := h.admin.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

type updatePaymentStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updatePaymentStatus(c *gin.Context) {
	var req updatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	payment, err := h.admin.UpdatePaymentStatus(c.Request.Context(), c.Param("id"), strings.ToUpper(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *Handler) deletePayment(c *gin.Context) {
	if err := h.admin.DeletePayment(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func intQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
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
