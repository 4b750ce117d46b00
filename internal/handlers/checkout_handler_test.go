package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayhub/checkout-gateway/internal/checkout"
	"github.com/stayhub/checkout-gateway/internal/database"
	"github.com/stayhub/checkout-gateway/internal/middleware"
	"github.com/stayhub/checkout-gateway/internal/services"
	"github.com/stayhub/checkout-gateway/pkg/jwt"
	"github.com/stayhub/checkout-gateway/pkg/marketplace/marketplacetest"
)

type checkoutTestEnv struct {
	router  *gin.Engine
	backend *marketplacetest.Server
	token   string
}

func setupCheckoutRouter(t *testing.T) *checkoutTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	backend := marketplacetest.NewServer(t)
	backend.OK(http.MethodGet, "tiffinServices/getTiffinBookingByIdbeforePayment/tf-42", map[string]interface{}{
		"tiffinServiceName": "Home Meals",
		"price":             120,
		"planType":          "perMeal",
		"numberOfTiffin":    4,
	})
	backend.OK(http.MethodGet, "wallet/getWalletAmount", map[string]interface{}{"walletAmount": 100})

	jwtService := jwt.NewService("test-secret", "", time.Hour)
	token, err := jwtService.GenerateAccessToken(uuid.New(), "", "0771234567", []string{"user"})
	require.NoError(t, err)

	engine := checkout.NewEngine(backend.Client(), checkout.Config{}, logger)
	service := services.NewCheckoutService(engine, database.NewMemorySessionStore(time.Hour), nil, logger)
	handler := NewCheckoutHandler(service, logger)

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtService, logger))
	handler.RegisterRoutes(api, func(c *gin.Context) { c.Next() })

	return &checkoutTestEnv{router: router, backend: backend, token: token}
}

func (e *checkoutTestEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("User-Agent", "okhttp/4.9.2")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *checkoutTestEnv) startTiffin(t *testing.T) checkout.View {
	t.Helper()
	w := e.do(http.MethodPost, "/api/v1/checkout/sessions", map[string]interface{}{
		"service_type": "tiffin",
		"booking_id":   "tf-42",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var view checkout.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	return view
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCheckoutHandler_StartAndGet(t *testing.T) {
	env := setupCheckoutRouter(t)
	view := env.startTiffin(t)

	assert.Equal(t, int64(480), view.Breakdown.TotalPayable)
	assert.Equal(t, int64(100), view.WalletBalance)

	calls := env.backend.Calls("tiffinServices/getTiffinBookingByIdbeforePayment/tf-42")
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer "+env.token, calls[0].Auth)

	w := env.do(http.MethodGet, "/api/v1/checkout/sessions/"+view.SessionID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckoutHandler_StartInvalidRequest(t *testing.T) {
	env := setupCheckoutRouter(t)

	w := env.do(http.MethodPost, "/api/v1/checkout/sessions", map[string]interface{}{"service_type": "tiffin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, w).Code)

	w = env.do(http.MethodPost, "/api/v1/checkout/sessions", map[string]interface{}{
		"service_type": "laundry",
		"booking_id":   "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, w).Code)
}

func TestCheckoutHandler_Unauthenticated(t *testing.T) {
	env := setupCheckoutRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, env.backend.Calls("wallet/getWalletAmount"))
}

func TestCheckoutHandler_SessionNotFound(t *testing.T) {
	env := setupCheckoutRouter(t)

	w := env.do(http.MethodGet, "/api/v1/checkout/sessions/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decodeError(t, w).Code)

	w = env.do(http.MethodGet, "/api/v1/checkout/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_SESSION_ID", decodeError(t, w).Code)
}

func TestCheckoutHandler_CouponFlow(t *testing.T) {
	env := setupCheckoutRouter(t)
	view := env.startTiffin(t)
	couponURL := "/api/v1/checkout/sessions/" + view.SessionID.String() + "/coupon"

	w := env.do(http.MethodPost, couponURL, map[string]interface{}{"code": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.backend.Reject(http.MethodPost, "tiffinServices/AppliedCoupon/tf-42", "Invalid coupon")
	w = env.do(http.MethodPost, couponURL, map[string]interface{}{"code": "NOPE"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Invalid coupon", decodeError(t, w).Message)

	env.backend.OK(http.MethodPost, "tiffinServices/AppliedCoupon/tf-42", map[string]interface{}{"discountValue": 10, "finalPrice": 110})
	w = env.do(http.MethodPost, couponURL, map[string]interface{}{"code": "TEN"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var applied checkout.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &applied))
	require.NotNil(t, applied.Coupon)
	assert.Equal(t, int64(480), applied.Breakdown.TotalPayable)

	w = env.do(http.MethodPost, couponURL, map[string]interface{}{"code": "TEN"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "COUPON_ALREADY_APPLIED", decodeError(t, w).Code)

	w = env.do(http.MethodDelete, couponURL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var removed checkout.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &removed))
	assert.Nil(t, removed.Coupon)
}

func TestCheckoutHandler_PayInsufficientBalance(t *testing.T) {
	env := setupCheckoutRouter(t)
	view := env.startTiffin(t)

	w := env.do(http.MethodPost, "/api/v1/checkout/sessions/"+view.SessionID.String()+"/pay", map[string]interface{}{"method": "wallet"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var resp struct {
		Code  string             `json:"code"`
		TopUp services.TopUpHint `json:"top_up"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INSUFFICIENT_BALANCE", resp.Code)
	assert.Equal(t, int64(380), resp.TopUp.Shortfall)
	assert.Empty(t, env.backend.Calls("tiffinServices/payByWallet/tf-42"))
}

func TestCheckoutHandler_PayOnline(t *testing.T) {
	env := setupCheckoutRouter(t)
	view := env.startTiffin(t)
	sessionURL := "/api/v1/checkout/sessions/" + view.SessionID.String()

	w := env.do(http.MethodPost, sessionURL+"/pay", map[string]interface{}{"method": "online", "expected_amount": 400})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, env.backend.Calls("tiffinServices/paymentByBank/tf-42"))

	env.backend.OK(http.MethodPost, "tiffinServices/paymentByBank/tf-42", map[string]interface{}{"paymentLinkUrl": "https://pay.example.com/l/1"})
	w = env.do(http.MethodPost, sessionURL+"/pay", map[string]interface{}{"method": "online", "expected_amount": 480})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var pending services.PayResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Equal(t, "https://pay.example.com/l/1", pending.Result.PaymentLinkURL)
	assert.Nil(t, pending.Result.Confirmation)
	assert.False(t, pending.View.Completed)

	w = env.do(http.MethodPost, sessionURL+"/link-opened", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, sessionURL+"/link-opened", map[string]interface{}{"opened": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp services.PayResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result.Confirmation)
	assert.True(t, resp.Result.Confirmation.Optimistic)
	assert.True(t, resp.View.Completed)

	w = env.do(http.MethodPost, sessionURL+"/pay", map[string]interface{}{"method": "online"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, env.backend.Calls("tiffinServices/paymentByBank/tf-42"), 1)
}

func TestCheckoutHandler_LinkNotOpened(t *testing.T) {
	env := setupCheckoutRouter(t)
	view := env.startTiffin(t)
	sessionURL := "/api/v1/checkout/sessions/" + view.SessionID.String()
	env.backend.OK(http.MethodPost, "tiffinServices/paymentByBank/tf-42", map[string]interface{}{"paymentLinkUrl": "https://pay.example.com/l/1"})

	w := env.do(http.MethodPost, sessionURL+"/pay", map[string]interface{}{"method": "online"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = env.do(http.MethodPost, sessionURL+"/link-opened", map[string]interface{}{"opened": false, "error": "no browser"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "PAYMENT_PAGE_NOT_OPENED", resp.Code)
	assert.Equal(t, "Unable to open the payment page.", resp.Message)

	w = env.do(http.MethodPost, sessionURL+"/pay", map[string]interface{}{"method": "online"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Len(t, env.backend.Calls("tiffinServices/paymentByBank/tf-42"), 2)
}

func TestCheckoutHandler_PayNetworkFailure(t *testing.T) {
	env := setupCheckoutRouter(t)
	view := env.startTiffin(t)
	env.backend.Respond(http.MethodPost, "tiffinServices/paymentByBank/tf-42", http.StatusBadGateway, "<html>502</html>")

	w := env.do(http.MethodPost, "/api/v1/checkout/sessions/"+view.SessionID.String()+"/pay", map[string]interface{}{"method": "online"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "MARKETPLACE_UNAVAILABLE", decodeError(t, w).Code)
}

func TestCheckoutHandler_CouponsAndWallet(t *testing.T) {
	env := setupCheckoutRouter(t)
	env.backend.OK(http.MethodGet, "hostelServices/getCouponCodeForHostel/h-1", []map[string]interface{}{
		{"couponCode": "STAY10", "discountValue": "10"},
	})

	w := env.do(http.MethodGet, "/api/v1/coupons/hostel/h-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var coupons struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &coupons))
	assert.Equal(t, 1, coupons.Count)

	w = env.do(http.MethodGet, "/api/v1/wallet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"wallet_amount":100}`, w.Body.String())
}

func TestCheckoutHandler_Events(t *testing.T) {
	env := setupCheckoutRouter(t)
	view := env.startTiffin(t)

	w := env.do(http.MethodGet, "/api/v1/checkout/sessions/"+view.SessionID.String()+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"events":[],"count":0}`, w.Body.String())
}
