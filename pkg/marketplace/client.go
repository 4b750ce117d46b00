package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// APIError is returned when the backend answers with success=false
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend rejected request (status %d)", e.StatusCode)
	}
	return e.Message
}

// RequestError is returned when the request could not be completed or the
// backend answered with something other than the standard envelope
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d: %v", e.Method, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Config holds the settings for a backend client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the marketplace backend REST API
type Client struct {
	baseURL     string
	client      *http.Client
	credentials CredentialProvider
	logger      *logrus.Logger
}

// NewClient creates a new backend client
func NewClient(cfg Config, credentials CredentialProvider, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		credentials: credentials,
		logger:      logger,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func servicePrefix(st ServiceType) string {
	if st == ServiceHostel {
		return "hostelServices"
	}
	return "tiffinServices"
}

// GetTiffinBooking fetches the pending tiffin booking before payment
func (c *Client) GetTiffinBooking(ctx context.Context, bookingID string) (*TiffinBooking, error) {
	var booking TiffinBooking
	path := "tiffinServices/getTiffinBookingByIdbeforePayment/" + url.PathEscape(bookingID)
	if err := c.do(ctx, http.MethodGet, path, nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetHostelBooking fetches the pending hostel booking before payment
func (c *Client) GetHostelBooking(ctx context.Context, bookingID string) (*HostelBooking, error) {
	var booking HostelBooking
	path := "hostelServices/gethostelBookingByIdbeforePayment/" + url.PathEscape(bookingID)
	if err := c.do(ctx, http.MethodGet, path, nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

// ApplyCoupon applies (or, with a nil code, clears) a coupon on a booking
func (c *Client) ApplyCoupon(ctx context.Context, st ServiceType, bookingID string, code *string) (*CouponResult, error) {
	var result CouponResult
	path := servicePrefix(st) + "/AppliedCoupon/" + url.PathEscape(bookingID)
	if err := c.do(ctx, http.MethodPost, path, CouponRequest{Coupon: code}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreatePaymentLink requests an online payment link for a booking
func (c *Client) CreatePaymentLink(ctx context.Context, st ServiceType, bookingID string, amount int64) (*PaymentLink, error) {
	endpoint := "paymentByBank"
	if st == ServiceHostel {
		endpoint = "createPaymentLink"
	}
	var link PaymentLink
	path := servicePrefix(st) + "/" + endpoint + "/" + url.PathEscape(bookingID)
	if err := c.do(ctx, http.MethodPost, path, PaymentRequest{Amount: amount}, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// PayByWallet debits the user's wallet for a booking
func (c *Client) PayByWallet(ctx context.Context, st ServiceType, bookingID string, amount int64) (*WalletDebit, error) {
	endpoint := "payByWallet"
	if st == ServiceHostel {
		endpoint = "createBookingBywallet"
	}
	var debit WalletDebit
	path := servicePrefix(st) + "/" + endpoint + "/" + url.PathEscape(bookingID)
	if err := c.do(ctx, http.MethodPost, path, PaymentRequest{Amount: amount}, &debit); err != nil {
		return nil, err
	}
	return &debit, nil
}

// GetWalletAmount returns the user's current wallet balance
func (c *Client) GetWalletAmount(ctx context.Context) (int64, error) {
	var wallet WalletAmount
	if err := c.do(ctx, http.MethodGet, "wallet/getWalletAmount", nil, &wallet); err != nil {
		return 0, err
	}
	return wallet.WalletAmount.Int64(), nil
}

// ListCoupons returns the coupon catalog of a tiffin or hostel service
func (c *Client) ListCoupons(ctx context.Context, st ServiceType, serviceID string) ([]Coupon, error) {
	endpoint := "getCouponForTiffinService"
	if st == ServiceHostel {
		endpoint = "getCouponCodeForHostel"
	}
	var coupons []Coupon
	path := servicePrefix(st) + "/" + endpoint + "/" + url.PathEscape(serviceID)
	if err := c.do(ctx, http.MethodGet, path, nil, &coupons); err != nil {
		return nil, err
	}
	return coupons, nil
}

// do sends one request and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	token, err := c.credentials.Token(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNoCredential
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method": method,
			"path":   path,
		}).Error("Marketplace request failed")
		return &RequestError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": resp.StatusCode,
		"latency_ms":  time.Since(start).Milliseconds(),
	}).Debug("Marketplace response received")

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		}
		return &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if !envelope.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Message}
	}

	if out == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse data: %w", err)}
	}
	return nil
}
