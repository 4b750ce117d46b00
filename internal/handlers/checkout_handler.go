package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stayhub/checkout-gateway/internal/checkout"
	"github.com/stayhub/checkout-gateway/internal/database"
	"github.com/stayhub/checkout-gateway/internal/middleware"
	"github.com/stayhub/checkout-gateway/internal/services"
	"github.com/stayhub/checkout-gateway/internal/utils"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// CheckoutHandler handles checkout session endpoints
type CheckoutHandler struct {
	service *services.CheckoutService
	logger  *logrus.Logger
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(service *services.CheckoutService, logger *logrus.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes mounts the checkout endpoints on an authenticated group.
// paymentLimiter guards the endpoints that reach coupon and payment APIs.
func (h *CheckoutHandler) RegisterRoutes(api *gin.RouterGroup, paymentLimiter gin.HandlerFunc) {
	sessions := api.Group("/checkout/sessions")
	{
		sessions.POST("", h.StartSession)
		sessions.GET("/:id", h.GetSession)
		sessions.POST("/:id/focus", h.FocusSession)
		sessions.POST("/:id/coupon", paymentLimiter, h.ApplyCoupon)
		sessions.DELETE("/:id/coupon", h.RemoveCoupon)
		sessions.POST("/:id/pay", paymentLimiter, h.Pay)
		sessions.POST("/:id/link-opened", h.LinkOpened)
		sessions.GET("/:id/events", h.GetEvents)
	}

	api.GET("/coupons/:service_type/:service_id", h.ListCoupons)
	api.GET("/wallet", h.GetWallet)
}

type applyCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

// StartSession handles POST /api/v1/checkout/sessions
func (h *CheckoutHandler) StartSession(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req services.StartCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "service_type and booking_id are required",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	view, err := h.service.Start(c.Request.Context(), user.UserID, req, requestMeta(c, user))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

// GetSession handles GET /api/v1/checkout/sessions/:id
func (h *CheckoutHandler) GetSession(c *gin.Context) {
	user, sessionID, ok := h.sessionRequest(c)
	if !ok {
		return
	}

	view, err := h.service.Get(c.Request.Context(), user.UserID, sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// FocusSession handles POST /api/v1/checkout/sessions/:id/focus
func (h *CheckoutHandler) FocusSession(c *gin.Context) {
	user, sessionID, ok := h.sessionRequest(c)
	if !ok {
		return
	}

	view, err := h.service.Focus(c.Request.Context(), user.UserID, sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// ApplyCoupon handles POST /api/v1/checkout/sessions/:id/coupon
func (h *CheckoutHandler) ApplyCoupon(c *gin.Context) {
	user, sessionID, ok := h.sessionRequest(c)
	if !ok {
		return
	}

	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Please enter a coupon code.",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	view, err := h.service.ApplyCoupon(c.Request.Context(), user.UserID, sessionID, req.Code, requestMeta(c, user))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// RemoveCoupon handles DELETE /api/v1/checkout/sessions/:id/coupon
func (h *CheckoutHandler) RemoveCoupon(c *gin.Context) {
	user, sessionID, ok := h.sessionRequest(c)
	if !ok {
		return
	}

	view, err := h.service.RemoveCoupon(c.Request.Context(), user.UserID, sessionID, requestMeta(c, user))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// Pay handles POST /api/v1/checkout/sessions/:id/pay
func (h *CheckoutHandler) Pay(c *gin.Context) {
	user, sessionID, ok := h.sessionRequest(c)
	if !ok {
		return
	}

	var req services.PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Please choose a payment method.",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	resp, hint, err := h.service.Pay(c.Request.Context(), user.UserID, sessionID, req, requestMeta(c, user))
	if err != nil {
		if hint != nil {
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":   "insufficient_balance",
				"message": checkout.UserMessage(err),
				"code":    "INSUFFICIENT_BALANCE",
				"top_up":  hint,
			})
			return
		}
		h.respondError(c, err)
		return
	}

	// an online payment waits for the device to open its link
	if resp.Result.Confirmation == nil {
		c.JSON(http.StatusAccepted, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// LinkOpened handles POST /api/v1/checkout/sessions/:id/link-opened
func (h *CheckoutHandler) LinkOpened(c *gin.Context) {
	user, sessionID, ok := h.sessionRequest(c)
	if !ok {
		return
	}

	var req services.LinkOpenedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Report whether the payment page opened.",
			Code:    "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.service.LinkOpened(c.Request.Context(), user.UserID, sessionID, req, requestMeta(c, user))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetEvents handles GET /api/v1/checkout/sessions/:id/events
func (h *CheckoutHandler) GetEvents(c *gin.Context) {
	user, sessionID, ok := h.sessionRequest(c)
	if !ok {
		return
	}

	events, err := h.service.Events(c.Request.Context(), user.UserID, sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// ListCoupons handles GET /api/v1/coupons/:service_type/:service_id
func (h *CheckoutHandler) ListCoupons(c *gin.Context) {
	coupons, err := h.service.Coupons(c.Request.Context(), c.Param("service_type"), c.Param("service_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"coupons": coupons,
		"count":   len(coupons),
	})
}

// GetWallet handles GET /api/v1/wallet
func (h *CheckoutHandler) GetWallet(c *gin.Context) {
	balance, err := h.service.Wallet(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallet_amount": balance})
}

func (h *CheckoutHandler) requireUser(c *gin.Context) (middleware.UserContext, bool) {
	user, ok := middleware.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User not authenticated",
			Code:    "UNAUTHORIZED",
		})
		return middleware.UserContext{}, false
	}
	return user, true
}

func (h *CheckoutHandler) sessionRequest(c *gin.Context) (middleware.UserContext, uuid.UUID, bool) {
	user, ok := h.requireUser(c)
	if !ok {
		return user, uuid.Nil, false
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_session_id",
			Message: "Invalid checkout session ID format",
			Code:    "INVALID_SESSION_ID",
		})
		return user, uuid.Nil, false
	}
	return user, sessionID, true
}

func requestMeta(c *gin.Context, user middleware.UserContext) services.RequestMeta {
	return services.RequestMeta{
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
		Token:     user.Token,
	}
}

// respondError maps checkout errors onto HTTP statuses
func (h *CheckoutHandler) respondError(c *gin.Context, err error) {
	status, errCode, code := http.StatusInternalServerError, "internal_error", "INTERNAL_ERROR"
	message := checkout.UserMessage(err)

	var mismatch *services.AmountMismatchError
	switch {
	case errors.Is(err, database.ErrSessionNotFound):
		status, errCode, code = http.StatusNotFound, "not_found", "SESSION_NOT_FOUND"
		message = "Checkout session not found or expired"
	case errors.As(err, &mismatch):
		c.JSON(http.StatusConflict, gin.H{
			"error":          "amount_mismatch",
			"message":        "The amount to pay has changed. Please review your booking.",
			"code":           "AMOUNT_MISMATCH",
			"current_amount": mismatch.Actual,
		})
		return
	case errors.Is(err, services.ErrCouponAlreadyApplied):
		status, errCode, code = http.StatusConflict, "coupon_already_applied", "COUPON_ALREADY_APPLIED"
		message = "Remove the current coupon before applying another one."
	case errors.Is(err, checkout.ErrInvalidAmount):
		status, errCode, code = http.StatusBadRequest, "invalid_amount", "INVALID_AMOUNT"
	case errors.Is(err, checkout.ErrValidation):
		status, errCode, code = http.StatusBadRequest, "validation_error", "VALIDATION_ERROR"
	case errors.Is(err, checkout.ErrMissingCredential):
		status, errCode, code = http.StatusUnauthorized, "missing_credential", "MISSING_CREDENTIAL"
	case errors.Is(err, checkout.ErrInsufficientBalance):
		status, errCode, code = http.StatusPaymentRequired, "insufficient_balance", "INSUFFICIENT_BALANCE"
	case errors.Is(err, checkout.ErrServerRejection):
		status, errCode, code = http.StatusUnprocessableEntity, "rejected", "MARKETPLACE_REJECTED"
	case errors.Is(err, services.ErrPaymentPageNotOpened):
		status, errCode, code = http.StatusUnprocessableEntity, "payment_page_not_opened", "PAYMENT_PAGE_NOT_OPENED"
	case errors.Is(err, checkout.ErrNetworkFailure):
		status, errCode, code = http.StatusBadGateway, "network_failure", "MARKETPLACE_UNAVAILABLE"
	default:
		message = "Something went wrong. Please try again."
	}

	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("Checkout request failed")
	}

	c.JSON(status, ErrorResponse{
		Error:   errCode,
		Message: message,
		Code:    code,
	})
}
