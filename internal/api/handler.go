package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/khillon-makwana/CampusEventHub-sub000/internal/gateway"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/models"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/service"
	"github.com/khillon-makwana/CampusEventHub-sub000/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CheckoutService opens payment intents and initiates gateway pushes
type CheckoutService interface {
	CreateIntent(ctx context.Context, req *service.CreateIntentRequest) (*models.Payment, error)
	InitiatePush(ctx context.Context, userID, paymentID int64) (*models.Payment, error)
}

// Reconciler applies gateway verdicts to payments
type Reconciler interface {
	Reconcile(ctx context.Context, target service.Target, result *gateway.Result) (*service.Outcome, error)
	PollStatus(ctx context.Context, userID, paymentID int64) (*service.Outcome, error)
}

// RSVPDispatcher handles free RSVP actions
type RSVPDispatcher interface {
	Dispatch(ctx context.Context, userID, eventID int64, action service.Action) (*models.Attendee, error)
}

// AvailabilityReader reads event availability
type AvailabilityReader interface {
	Availability(ctx context.Context, eventID int64) (total, available int, err error)
}

// Handler contains HTTP handlers
type Handler struct {
	checkout     CheckoutService
	reconciler   Reconciler
	rsvp         RSVPDispatcher
	availability AvailabilityReader
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(checkout CheckoutService, reconciler Reconciler, rsvp RSVPDispatcher, availability AvailabilityReader) *Handler {
	return &Handler{
		checkout:     checkout,
		reconciler:   reconciler,
		rsvp:         rsvp,
		availability: availability,
		logger:       util.GetLogger(),
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
		// the gateway posts here; no session identity on this route
		v1.POST("/payments/callback", h.paymentCallback)
		v1.GET("/events/:id/availability", h.eventAvailability)

		authed := v1.Group("", identityMiddleware())
		{
			authed.POST("/events/:id/checkout", h.checkoutEvent)
			authed.POST("/events/:id/rsvp", h.rsvpEvent)
			authed.POST("/payments/:id/push", h.retryPush)
			authed.GET("/payments/:id/status", h.paymentStatus)
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

// checkoutRequest is the body of a paid checkout
type checkoutRequest struct {
	Quantity int    `json:"quantity" binding:"required,min=1"`
	Phone    string `json:"phone" binding:"required"`
}

// checkoutEvent creates a payment intent and initiates the STK push. A
// gateway outage still returns the payment id so the client can retry the
// push against the same pending intent.
func (h *Handler) checkoutEvent(c *gin.Context) {
	userID := currentUser(c)
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	payment, err := h.checkout.CreateIntent(c.Request.Context(), &service.CreateIntentRequest{
		UserID:   userID,
		EventID:  eventID,
		Quantity: req.Quantity,
		Phone:    req.Phone,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	pushed, err := h.checkout.InitiatePush(c.Request.Context(), userID, payment.ID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"payment_id": payment.ID,
			"status":     payment.Status,
			"error":      "Payment prompt could not be sent, please retry",
			"retryable":  true,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"payment_id": pushed.ID,
		"status":     pushed.Status,
		"amount":     pushed.Amount,
	})
}

// retryPush re-initiates the STK push for an existing pending payment
func (h *Handler) retryPush(c *gin.Context) {
	userID := currentUser(c)
	paymentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	payment, err := h.checkout.InitiatePush(c.Request.Context(), userID, paymentID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_id": payment.ID,
		"status":     payment.Status,
	})
}

// paymentCallback receives the gateway webhook. The gateway delivers
// at-least-once and treats anything but 200 as undelivered, so this
// endpoint acknowledges success in every case, including parse failures
// and rolled-back reconciliations; an unreconciled payment is settled by a
// later redelivery or poll.
func (h *Handler) paymentCallback(c *gin.Context) {
	result, err := gateway.ParseCallback(c.Request.Body)
	if err != nil {
		h.logger.Warn("Unparseable payment callback", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	outcome, err := h.reconciler.Reconcile(c.Request.Context(),
		service.Target{CheckoutRequestID: result.CheckoutRequestID}, result)
	if err != nil {
		h.logger.Error("Callback reconciliation failed",
			zap.String("checkout_request_id", result.CheckoutRequestID),
			zap.Error(err))
	} else if outcome.Disposition == service.DispositionIgnored {
		h.logger.Warn("Callback matched no payment",
			zap.String("checkout_request_id", result.CheckoutRequestID))
	}

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// paymentStatus polls the payment's state, driving reconciliation when the
// callback has not arrived yet
func (h *Handler) paymentStatus(c *gin.Context) {
	userID := currentUser(c)
	paymentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	outcome, err := h.reconciler.PollStatus(c.Request.Context(), userID, paymentID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{"payment_id": paymentID}
	switch outcome.Disposition {
	case service.DispositionCompleted, service.DispositionAlreadySettled:
		resp["status"] = outcome.Payment.Status
		if outcome.Payment.Status == models.PaymentStatusCompleted {
			resp["receipt"] = outcome.Payment.Receipt
		}
	case service.DispositionFailed:
		resp["status"] = models.PaymentStatusFailed
		resp["reason"] = outcome.Payment.ResultDesc
	default:
		resp["status"] = models.PaymentStatusPending
		resp["message"] = "Payment is still processing"
	}

	c.JSON(http.StatusOK, resp)
}

// rsvpRequest is the body of an RSVP action
type rsvpRequest struct {
	Action string `json:"action" binding:"required"`
}

// rsvpEvent dispatches a free RSVP action
func (h *Handler) rsvpEvent(c *gin.Context) {
	userID := currentUser(c)
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req rsvpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	attendee, err := h.rsvp.Dispatch(c.Request.Context(), userID, eventID, service.Action(req.Action))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if attendee == nil {
		c.JSON(http.StatusOK, gin.H{"event_id": eventID, "status": "removed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"event_id": attendee.EventID,
		"status":   attendee.Status,
		"quantity": attendee.Quantity,
	})
}

// eventAvailability reports the live ticket counters for an event
func (h *Handler) eventAvailability(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	total, available, err := h.availability.Availability(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":          eventID,
		"total_tickets":     total,
		"available_tickets": available,
		"sold_out":          total > 0 && available <= 0,
	})
}

// writeError maps the service error taxonomy to HTTP responses. Inventory
// conflicts are permanent for the attempt; gateway errors are retryable.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, service.ErrUnknownAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, service.ErrPaymentRequired):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error(), "redirect": "checkout"})
	case errors.Is(err, service.ErrPaymentNotRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "redirect": "rsvp"})
	case errors.Is(err, service.ErrSoldOut), errors.Is(err, service.ErrInsufficientInventory),
		errors.Is(err, service.ErrPaymentSettled), errors.Is(err, service.ErrEventClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, gateway.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable", "retryable": true})
	default:
		h.logger.Error("Unhandled request error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

const userIDKey = "userID"

// identityMiddleware trusts the authenticated user id supplied by the
// session layer in front of this service
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
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
