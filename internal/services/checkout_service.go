package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stayhub/checkout-gateway/internal/checkout"
	"github.com/stayhub/checkout-gateway/internal/database"
	"github.com/stayhub/checkout-gateway/internal/models"
	"github.com/stayhub/checkout-gateway/internal/utils"
	"github.com/stayhub/checkout-gateway/pkg/marketplace"
)

var (
	// ErrCouponAlreadyApplied is returned when a session already holds a coupon
	ErrCouponAlreadyApplied = errors.New("a coupon is already applied")
	// ErrAmountMismatch is returned when the client confirmed a different total
	ErrAmountMismatch = errors.New("payable amount changed")
	// ErrPaymentPageNotOpened is returned when the device reports a link it could not open
	ErrPaymentPageNotOpened = errors.New("payment page not opened")
)

// AmountMismatchError carries the total the client saw and the current one
type AmountMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("payable amount changed: expected %d, now %d", e.Expected, e.Actual)
}

func (e *AmountMismatchError) Is(target error) bool {
	return target == ErrAmountMismatch
}

// RequestMeta describes the caller of a checkout operation
type RequestMeta struct {
	IPAddress string
	UserAgent string
	Token     string
}

// StartCheckoutRequest opens a checkout session
type StartCheckoutRequest struct {
	ServiceType string               `json:"service_type" binding:"required"`
	BookingID   string               `json:"booking_id" binding:"required"`
	Params      checkout.RouteParams `json:"params"`
}

// PayRequest dispatches the session's payable total
type PayRequest struct {
	Method         string `json:"method" binding:"required"`
	ExpectedAmount *int64 `json:"expected_amount,omitempty"`
}

// LinkOpenedRequest is the device's report on opening a payment link
type LinkOpenedRequest struct {
	Opened *bool  `json:"opened" binding:"required"`
	Error  string `json:"error,omitempty"`
}

// TopUpHint tells the client how much to add to the wallet
type TopUpHint struct {
	Required  int64 `json:"required"`
	Available int64 `json:"available"`
	Shortfall int64 `json:"shortfall"`
}

// PayResponse is the outcome of a payment dispatch
type PayResponse struct {
	Result *checkout.PaymentResult `json:"result"`
	View   checkout.View           `json:"session"`
}

// capturedHandoff records what the engine asks the client to do. The
// gateway cannot open a page on the device, so the link travels back in the
// response and the device reports through LinkOpened.
type capturedHandoff struct {
	url          string
	confirmation *checkout.Confirmation
	topUp        *TopUpHint
}

func (h *capturedHandoff) OpenURL(_ context.Context, url string) error {
	h.url = url
	return nil
}

func (h *capturedHandoff) Confirm(c checkout.Confirmation) {
	h.confirmation = &c
}

func (h *capturedHandoff) OfferTopUp(required, available int64) {
	h.topUp = &TopUpHint{Required: required, Available: available, Shortfall: required - available}
}

// CheckoutService owns checkout sessions: it loads them from the store, runs
// the engine and records an audit trail.
type CheckoutService struct {
	engine   *checkout.Engine
	sessions database.SessionStore
	audits   database.AuditStore
	locks    [64]sync.Mutex
	logger   *logrus.Logger
}

// NewCheckoutService creates a new checkout service. A nil audit store
// disables the audit trail.
func NewCheckoutService(
	engine *checkout.Engine,
	sessions database.SessionStore,
	audits database.AuditStore,
	logger *logrus.Logger,
) *CheckoutService {
	if audits == nil {
		audits = database.NoopAuditStore{}
	}
	return &CheckoutService{
		engine:   engine,
		sessions: sessions,
		audits:   audits,
		logger:   logger,
	}
}

// lock serializes operations on one session within this process
func (s *CheckoutService) lock(id uuid.UUID) func() {
	m := &s.locks[int(id[0])%len(s.locks)]
	m.Lock()
	return m.Unlock
}

// Start opens a new checkout session for the user
func (s *CheckoutService) Start(ctx context.Context, userID uuid.UUID, req StartCheckoutRequest, meta RequestMeta) (*checkout.View, error) {
	st, err := marketplace.ParseServiceType(req.ServiceType)
	if err != nil {
		return nil, &checkout.Error{Kind: checkout.ErrValidation, Message: "Unknown service type."}
	}

	started := time.Now()
	state, err := s.engine.Start(ctx, userID, st, req.BookingID, req.Params)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to store checkout session: %w", err)
	}

	entry := s.newAudit(models.CheckoutEventSessionStarted, models.CheckoutSourceUser, state, meta).
		SetProcessingTime(started)
	if state.RecordError != "" {
		entry.SetError(state.RecordError, "record_fetch")
	}
	s.logAudit(ctx, entry)

	s.logger.WithFields(logrus.Fields{
		"session_id":   state.SessionID,
		"user_id":      userID,
		"booking_id":   state.BookingID,
		"service_type": state.ServiceType,
	}).Info("Checkout session started")

	view := s.engine.View(state)
	return &view, nil
}

// Get returns the current checkout view
func (s *CheckoutService) Get(ctx context.Context, userID, sessionID uuid.UUID) (*checkout.View, error) {
	state, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	view := s.engine.View(state)
	return &view, nil
}

// Focus refreshes the wallet balance when the checkout screen regains focus
func (s *CheckoutService) Focus(ctx context.Context, userID, sessionID uuid.UUID) (*checkout.View, error) {
	defer s.lock(sessionID)()

	state, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if s.engine.RefreshWallet(ctx, state) {
		if err := s.sessions.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("failed to store checkout session: %w", err)
		}
	}
	view := s.engine.View(state)
	return &view, nil
}

// ApplyCoupon validates a coupon code against the marketplace
func (s *CheckoutService) ApplyCoupon(ctx context.Context, userID, sessionID uuid.UUID, code string, meta RequestMeta) (*checkout.View, error) {
	defer s.lock(sessionID)()

	state, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Coupon != nil {
		return nil, ErrCouponAlreadyApplied
	}

	code = strings.TrimSpace(code)
	applied, err := s.engine.Coupons().Apply(ctx, state, code)
	if err != nil {
		if code != "" {
			s.logAudit(ctx, s.newAudit(models.CheckoutEventCouponRejected, models.CheckoutSourceMarketplace, state, meta).
				SetCoupon(code, nil).
				SetError(checkout.UserMessage(err), errorKind(err)))
		}
		return nil, err
	}

	if err := s.sessions.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to store checkout session: %w", err)
	}

	discount := applied.DiscountValue
	s.logAudit(ctx, s.newAudit(models.CheckoutEventCouponApplied, models.CheckoutSourceMarketplace, state, meta).
		SetCoupon(applied.Code, &discount).
		SetDetails(map[string]interface{}{"after_discount": applied.AfterDiscount}))

	view := s.engine.View(state)
	return &view, nil
}

// RemoveCoupon drops the session's coupon. A failed hostel re-fetch is
// reported as a notice on the view, the coupon is gone either way.
func (s *CheckoutService) RemoveCoupon(ctx context.Context, userID, sessionID uuid.UUID, meta RequestMeta) (*checkout.View, error) {
	defer s.lock(sessionID)()

	state, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	var code string
	if state.Coupon != nil {
		code = state.Coupon.Code
	}

	if err := s.engine.Coupons().Remove(ctx, state); err != nil {
		state.RecordError = checkout.UserMessage(err)
	}

	if err := s.sessions.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to store checkout session: %w", err)
	}

	if code != "" {
		s.logAudit(ctx, s.newAudit(models.CheckoutEventCouponRemoved, models.CheckoutSourceUser, state, meta).
			SetCoupon(code, nil))
	}

	view := s.engine.View(state)
	return &view, nil
}

// Pay charges the session's displayed total through the chosen method.
// The returned hint is set when the wallet could not cover the total.
func (s *CheckoutService) Pay(ctx context.Context, userID, sessionID uuid.UUID, req PayRequest, meta RequestMeta) (*PayResponse, *TopUpHint, error) {
	defer s.lock(sessionID)()

	state, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}

	started := time.Now()
	method := checkout.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	total := checkout.Price(state).TotalPayable

	if req.ExpectedAmount != nil && *req.ExpectedAmount != total {
		s.logAudit(ctx, s.newAudit(models.CheckoutEventAmountMismatch, models.CheckoutSourceGateway, state, meta).
			SetPayment(string(method), *req.ExpectedAmount).
			SetDetails(map[string]interface{}{"current_total": total}))
		return nil, nil, &AmountMismatchError{Expected: *req.ExpectedAmount, Actual: total}
	}

	s.logAudit(ctx, s.newAudit(models.CheckoutEventPaymentInitiated, models.CheckoutSourceUser, state, meta).
		SetPayment(string(method), total))

	handoff := &capturedHandoff{}
	result, err := s.engine.Pay(ctx, state, method, handoff)
	if err != nil {
		var insufficient *checkout.InsufficientBalanceError
		if errors.As(err, &insufficient) {
			s.logAudit(ctx, s.newAudit(models.CheckoutEventInsufficientBalance, models.CheckoutSourceGateway, state, meta).
				SetPayment(string(method), total).
				SetDetails(map[string]interface{}{"available": insufficient.Available}))
			return nil, handoff.topUp, err
		}

		s.logAudit(ctx, s.newAudit(models.CheckoutEventPaymentFailed, models.CheckoutSourceMarketplace, state, meta).
			SetPayment(string(method), total).
			SetError(checkout.UserMessage(err), errorKind(err)).
			SetProcessingTime(started))
		return nil, nil, err
	}

	if result.Method == checkout.MethodOnline {
		if err := s.sessions.Save(ctx, state); err != nil {
			return nil, nil, fmt.Errorf("failed to store checkout session: %w", err)
		}
		s.logAudit(ctx, s.newAudit(models.CheckoutEventPaymentLinkCreated, models.CheckoutSourceMarketplace, state, meta).
			SetPayment(string(method), total).
			SetDetails(map[string]interface{}{"payment_link": result.PaymentLinkURL}).
			SetProcessingTime(started))

		s.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"booking_id": state.BookingID,
			"amount":     total,
		}).Info("Payment link issued")
		return &PayResponse{Result: result, View: s.engine.View(state)}, nil, nil
	}

	// the marketplace has taken the payment, a store failure must not hide it
	if err := s.sessions.Save(ctx, state); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to store completed checkout session")
	}

	entry := s.newAudit(models.CheckoutEventWalletDebited, models.CheckoutSourceMarketplace, state, meta).
		SetPayment(string(method), total).
		SetCharged(total)
	if result.RemainingWallet != nil {
		entry.SetRemainingWallet(*result.RemainingWallet)
	}
	s.logAudit(ctx, entry)

	s.logAudit(ctx, s.newAudit(models.CheckoutEventBookingConfirmed, models.CheckoutSourceGateway, state, meta).
		SetPayment(string(method), total).
		SetCharged(total).
		SetProcessingTime(started))

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"booking_id": state.BookingID,
		"method":     result.Method,
		"amount":     total,
	}).Info("Checkout completed")

	return &PayResponse{Result: result, View: s.engine.View(state)}, nil, nil
}

// LinkOpened takes the device's report on the payment link. A failed open
// drops the link and leaves the session payable. A successful open is
// confirmed optimistically after the confirmation delay, which runs without
// holding the session lock.
func (s *CheckoutService) LinkOpened(ctx context.Context, userID, sessionID uuid.UUID, req LinkOpenedRequest, meta RequestMeta) (*PayResponse, error) {
	started := time.Now()
	payments := s.engine.Payments()
	opened := req.Opened == nil || *req.Opened

	unlock := s.lock(sessionID)
	state, err := s.load(ctx, userID, sessionID)
	if err == nil {
		err = payments.CheckLinkPending(state)
	}
	if err != nil {
		unlock()
		return nil, err
	}

	if !opened {
		link := state.PendingLink
		failure := payments.LinkOpenFailed(state, strings.TrimSpace(req.Error))
		saveErr := s.sessions.Save(ctx, state)
		unlock()
		if saveErr != nil {
			return nil, fmt.Errorf("failed to store checkout session: %w", saveErr)
		}
		s.logAudit(ctx, s.newAudit(models.CheckoutEventPaymentFailed, models.CheckoutSourceUser, state, meta).
			SetPayment(string(checkout.MethodOnline), link.Amount).
			SetError(checkout.UserMessage(failure), errorKind(failure)).
			SetDetails(map[string]interface{}{"payment_link": link.URL, "reason": req.Error}))
		return nil, fmt.Errorf("%w: %w", ErrPaymentPageNotOpened, failure)
	}
	unlock()

	if err := payments.AwaitConfirmation(ctx); err != nil {
		return nil, err
	}

	defer s.lock(sessionID)()

	// reload: the session may have been paid or re-linked during the delay
	state, err = s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	handoff := &capturedHandoff{}
	result, err := payments.ConfirmOnline(state, handoff)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Save(ctx, state); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to store completed checkout session")
	}

	amount := result.Confirmation.Amount
	s.logAudit(ctx, s.newAudit(models.CheckoutEventPaymentLinkOpened, models.CheckoutSourceUser, state, meta).
		SetPayment(string(checkout.MethodOnline), amount).
		MarkOptimistic().
		SetDetails(map[string]interface{}{"payment_link": result.PaymentLinkURL}))
	s.logAudit(ctx, s.newAudit(models.CheckoutEventBookingConfirmed, models.CheckoutSourceGateway, state, meta).
		SetPayment(string(checkout.MethodOnline), amount).
		SetCharged(amount).
		MarkOptimistic().
		SetProcessingTime(started))

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"booking_id": state.BookingID,
		"method":     checkout.MethodOnline,
		"amount":     amount,
		"optimistic": true,
	}).Info("Checkout completed")

	return &PayResponse{Result: result, View: s.engine.View(state)}, nil
}

// Coupons lists the coupons offered for a service
func (s *CheckoutService) Coupons(ctx context.Context, serviceType, serviceID string) ([]marketplace.Coupon, error) {
	st, err := marketplace.ParseServiceType(serviceType)
	if err != nil {
		return nil, &checkout.Error{Kind: checkout.ErrValidation, Message: "Unknown service type."}
	}
	return s.engine.ListCoupons(ctx, st, serviceID)
}

// Wallet returns the caller's wallet balance
func (s *CheckoutService) Wallet(ctx context.Context) (int64, error) {
	return s.engine.WalletAmount(ctx)
}

// Events returns the audit trail of a session
func (s *CheckoutService) Events(ctx context.Context, userID, sessionID uuid.UUID) ([]*models.CheckoutAudit, error) {
	if _, err := s.load(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.audits.ListBySession(ctx, sessionID)
}

// load fetches a session owned by userID. Sessions of other users are
// reported as not found.
func (s *CheckoutService) load(ctx context.Context, userID, sessionID uuid.UUID) (*checkout.State, error) {
	state, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.UserID != userID {
		s.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"user_id":    userID,
		}).Warn("Checkout session requested by another user")
		return nil, database.ErrSessionNotFound
	}
	return state, nil
}

func (s *CheckoutService) newAudit(event models.CheckoutEventType, source models.CheckoutEventSource, state *checkout.State, meta RequestMeta) *models.CheckoutAudit {
	device := utils.ParseUserAgent(meta.UserAgent)
	return models.NewCheckoutAudit(event, source, state.BookingID, string(state.ServiceType)).
		SetSession(state.SessionID, state.UserID).
		SetMetadata(meta.IPAddress, meta.UserAgent, device.DeviceType, device.Platform, utils.CredentialFingerprint(meta.Token))
}

// logAudit records an entry without failing the request
func (s *CheckoutService) logAudit(ctx context.Context, entry *models.CheckoutAudit) {
	if err := s.audits.Log(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.WithError(err).WithField("event_type", entry.EventType).Warn("Checkout audit not recorded")
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, checkout.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, checkout.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, checkout.ErrValidation):
		return "validation"
	case errors.Is(err, checkout.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, checkout.ErrServerRejection):
		return "server_rejection"
	case errors.Is(err, checkout.ErrNetworkFailure):
		return "network_failure"
	}
	return "unknown"
}
