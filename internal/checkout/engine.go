package checkout

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stayhub/checkout-gateway/pkg/marketplace"
)

// Backend is the part of the marketplace API the checkout engine calls.
// *marketplace.Client satisfies it.
type Backend interface {
	GetTiffinBooking(ctx context.Context, bookingID string) (*marketplace.TiffinBooking, error)
	GetHostelBooking(ctx context.Context, bookingID string) (*marketplace.HostelBooking, error)
	ApplyCoupon(ctx context.Context, st marketplace.ServiceType, bookingID string, code *string) (*marketplace.CouponResult, error)
	CreatePaymentLink(ctx context.Context, st marketplace.ServiceType, bookingID string, amount int64) (*marketplace.PaymentLink, error)
	PayByWallet(ctx context.Context, st marketplace.ServiceType, bookingID string, amount int64) (*marketplace.WalletDebit, error)
	GetWalletAmount(ctx context.Context) (int64, error)
	ListCoupons(ctx context.Context, st marketplace.ServiceType, serviceID string) ([]marketplace.Coupon, error)
}

// Config holds engine settings
type Config struct {
	// ConfirmDelay is how long the online path waits after the payment page
	// opened before it confirms the booking.
	ConfirmDelay time.Duration
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{ConfirmDelay: 2 * time.Second}
}

// Engine runs a checkout session: fetch, reconcile, price, coupon, pay.
type Engine struct {
	backend  Backend
	coupons  *CouponController
	payments *PaymentDispatcher
	logger   *logrus.Logger
}

// NewEngine wires the checkout components around one backend
func NewEngine(backend Backend, cfg Config, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = discardLogger()
	}
	return &Engine{
		backend:  backend,
		coupons:  NewCouponController(backend, logger),
		payments: NewPaymentDispatcher(backend, cfg.ConfirmDelay, logger),
		logger:   logger,
	}
}

// Coupons exposes the coupon controller
func (e *Engine) Coupons() *CouponController { return e.coupons }

// Payments exposes the payment dispatcher
func (e *Engine) Payments() *PaymentDispatcher { return e.payments }

// Start opens a checkout session. The booking record and wallet balance are
// loaded once; a failed record fetch leaves the session on route parameters
// and fallbacks and is reported through State.RecordError.
func (e *Engine) Start(ctx context.Context, userID uuid.UUID, st marketplace.ServiceType, bookingID string, params RouteParams) (*State, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return nil, newError(ErrMissingCredential, "Booking id is missing.", nil)
	}
	if st != marketplace.ServiceTiffin && st != marketplace.ServiceHostel {
		return nil, newError(ErrValidation, "Unknown service type.", nil)
	}

	s := NewState(userID, st, bookingID, params)
	if err := e.FetchRecord(ctx, s); err != nil {
		if errors.Is(err, ErrMissingCredential) {
			return nil, err
		}
	}
	e.RefreshWallet(ctx, s)
	return s, nil
}

// FetchRecord loads the authoritative booking record into the session.
func (e *Engine) FetchRecord(ctx context.Context, s *State) error {
	err := fetchRecord(ctx, e.backend, s)
	if err != nil {
		s.RecordError = UserMessage(err)
		e.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id":   s.BookingID,
			"service_type": s.ServiceType,
		}).Warn("Failed to fetch booking record")
		return err
	}
	s.RecordError = ""
	return nil
}

func fetchRecord(ctx context.Context, backend Backend, s *State) error {
	if s.BookingID == "" {
		return newError(ErrMissingCredential, "Booking id is missing.", nil)
	}
	switch s.ServiceType {
	case marketplace.ServiceHostel:
		booking, err := backend.GetHostelBooking(ctx, s.BookingID)
		if err != nil {
			return classify(err, "Failed to load booking details.")
		}
		s.Record.Hostel = booking
	default:
		booking, err := backend.GetTiffinBooking(ctx, s.BookingID)
		if err != nil {
			return classify(err, "Failed to load booking details.")
		}
		s.Record.Tiffin = booking
	}
	s.touch()
	return nil
}

// RefreshWallet reloads the cached wallet balance. It runs on session start
// and on every focus event. Failures keep the previous value.
func (e *Engine) RefreshWallet(ctx context.Context, s *State) bool {
	balance, err := e.backend.GetWalletAmount(ctx)
	if err != nil {
		e.logger.WithError(err).WithField("session_id", s.SessionID).Debug("Wallet refresh failed, keeping cached balance")
		return false
	}
	s.WalletBalance = nonNegative(balance)
	s.WalletLoaded = true
	s.touch()
	return true
}

// View reconciles and prices the session as it stands.
func (e *Engine) View(s *State) View {
	v := View{
		SessionID:     s.SessionID,
		ServiceType:   s.ServiceType,
		BookingID:     s.BookingID,
		Breakdown:     Price(s),
		Coupon:        s.Coupon,
		CouponState:   s.CouponState,
		WalletBalance: s.WalletBalance,
		Completed:     s.Completed,
		PendingLink:   s.PendingLink,
		Notice:        s.RecordError,
	}
	if s.ServiceType == marketplace.ServiceHostel {
		d := ReconcileHostel(s.Record.Hostel, s.Params)
		v.Hostel = &d
	} else {
		d := ReconcileTiffin(s.Record.Tiffin, s.Params)
		v.Tiffin = &d
	}
	return v
}

// Pay charges exactly the total the session displays.
func (e *Engine) Pay(ctx context.Context, s *State, method PaymentMethod, h Handoff) (*PaymentResult, error) {
	return e.payments.Pay(ctx, s, Price(s).TotalPayable, method, h)
}

// LinkOpened confirms an online payment once its page has opened, after the
// confirmation delay. It holds s for the whole delay.
func (e *Engine) LinkOpened(ctx context.Context, s *State, n Navigator) (*PaymentResult, error) {
	if err := e.payments.CheckLinkPending(s); err != nil {
		return nil, err
	}
	if err := e.payments.AwaitConfirmation(ctx); err != nil {
		return nil, err
	}
	return e.payments.ConfirmOnline(s, n)
}

// ListCoupons returns the coupon catalog for a service
func (e *Engine) ListCoupons(ctx context.Context, st marketplace.ServiceType, serviceID string) ([]marketplace.Coupon, error) {
	if strings.TrimSpace(serviceID) == "" {
		return nil, newError(ErrValidation, "Service id is required.", nil)
	}
	coupons, err := e.backend.ListCoupons(ctx, st, serviceID)
	if err != nil {
		return nil, classify(err, "Failed to load coupons.")
	}
	return coupons, nil
}

// WalletAmount fetches the user's balance without a session
func (e *Engine) WalletAmount(ctx context.Context) (int64, error) {
	balance, err := e.backend.GetWalletAmount(ctx)
	if err != nil {
		return 0, classify(err, "Failed to load wallet balance.")
	}
	return nonNegative(balance), nil
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// classify maps backend client errors onto checkout error kinds.
func classify(err error, fallback string) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, marketplace.ErrNoCredential) {
		return newError(ErrMissingCredential, "Please log in again to continue.", err)
	}
	var apiErr *marketplace.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = fallback
		}
		return newError(ErrServerRejection, msg, nil)
	}
	return newError(ErrNetworkFailure, fallback, err)
}
