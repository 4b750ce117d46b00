package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stayhub/checkout-gateway/pkg/marketplace"
)

// LinkOpener opens a payment page on the user's device.
type LinkOpener interface {
	OpenURL(ctx context.Context, url string) error
}

// Navigator moves the user on after a payment attempt.
type Navigator interface {
	Confirm(c Confirmation)
	OfferTopUp(required, available int64)
}

// Handoff is the UI side of a payment: it opens links and navigates.
type Handoff interface {
	LinkOpener
	Navigator
}

// PaymentResult describes a successful payment dispatch. Confirmation is nil
// while an online payment waits for its link to open.
type PaymentResult struct {
	Method          PaymentMethod `json:"method"`
	PaymentLinkURL  string        `json:"paymentLinkUrl,omitempty"`
	RemainingWallet *int64        `json:"remainingWallet,omitempty"`
	Confirmation    *Confirmation `json:"confirmation,omitempty"`
}

// PaymentDispatcher sends a payable amount down exactly one payment channel.
type PaymentDispatcher struct {
	backend      Backend
	confirmDelay time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *logrus.Logger
}

// NewPaymentDispatcher creates a payment dispatcher
func NewPaymentDispatcher(backend Backend, confirmDelay time.Duration, logger *logrus.Logger) *PaymentDispatcher {
	if logger == nil {
		logger = discardLogger()
	}
	return &PaymentDispatcher{
		backend:      backend,
		confirmDelay: confirmDelay,
		sleep:        sleepContext,
		logger:       logger,
	}
}

// Pay dispatches amount through method. Validation failures and the
// insufficient-balance path never reach the network.
func (d *PaymentDispatcher) Pay(ctx context.Context, s *State, amount int64, method PaymentMethod, h Handoff) (*PaymentResult, error) {
	if amount <= 0 {
		return nil, newError(ErrInvalidAmount, "Amount to pay must be greater than zero.", nil)
	}
	if !method.Valid() {
		return nil, newError(ErrValidation, "Please choose a payment method.", nil)
	}
	if s.Completed {
		return nil, newError(ErrValidation, "This booking has already been paid.", nil)
	}
	if strings.TrimSpace(s.BookingID) == "" {
		return nil, newError(ErrMissingCredential, "Booking id is missing.", nil)
	}

	logger := d.logger.WithFields(logrus.Fields{
		"booking_id":   s.BookingID,
		"service_type": s.ServiceType,
		"method":       method,
		"amount":       amount,
	})

	if method == MethodWallet {
		return d.payByWallet(ctx, s, amount, h, logger)
	}
	return d.payOnline(ctx, s, amount, h, logger)
}

// payOnline creates a payment link and hands it to the device. The session
// stays open until the device reports the link as opened, so a link that
// never opened can be retried.
func (d *PaymentDispatcher) payOnline(ctx context.Context, s *State, amount int64, h Handoff, logger *logrus.Entry) (*PaymentResult, error) {
	link, err := d.backend.CreatePaymentLink(ctx, s.ServiceType, s.BookingID, amount)
	if err != nil {
		logger.WithError(err).Warn("Payment link request failed")
		return nil, classify(err, "Failed to create payment link.")
	}
	if link == nil || strings.TrimSpace(link.PaymentLinkURL) == "" {
		logger.Warn("Payment link missing from response")
		return nil, newError(ErrServerRejection, "Payment link not received. Please try again.", nil)
	}

	if err := h.OpenURL(ctx, link.PaymentLinkURL); err != nil {
		logger.WithError(err).Warn("Unable to open payment page")
		return nil, newError(ErrNetworkFailure, "Unable to open the payment page.", err)
	}

	s.PendingLink = &PendingLink{
		URL:      link.PaymentLinkURL,
		Amount:   amount,
		IssuedAt: time.Now(),
	}
	s.touch()

	logger.WithField("payment_link", link.PaymentLinkURL).Info("Payment link issued, awaiting page open")
	return &PaymentResult{
		Method:         MethodOnline,
		PaymentLinkURL: link.PaymentLinkURL,
	}, nil
}

// CheckLinkPending reports whether the session has an issued link that can
// still be acknowledged.
func (d *PaymentDispatcher) CheckLinkPending(s *State) error {
	if s.Completed {
		return newError(ErrValidation, "This booking has already been paid.", nil)
	}
	if s.PendingLink == nil {
		return newError(ErrValidation, "No payment link is awaiting confirmation.", nil)
	}
	return nil
}

// AwaitConfirmation waits out the confirmation delay after the page opened.
// No gateway callback reaches the app, so the confirmation that follows is
// optimistic.
func (d *PaymentDispatcher) AwaitConfirmation(ctx context.Context) error {
	if err := d.sleep(ctx, d.confirmDelay); err != nil {
		return newError(ErrNetworkFailure, "Payment confirmation was interrupted.", err)
	}
	return nil
}

// ConfirmOnline completes a session whose payment page has opened. It does
// not wait; callers run AwaitConfirmation first.
func (d *PaymentDispatcher) ConfirmOnline(s *State, n Navigator) (*PaymentResult, error) {
	if err := d.CheckLinkPending(s); err != nil {
		return nil, err
	}

	link := s.PendingLink
	conf := confirmationFor(s, link.Amount, MethodOnline)
	conf.Optimistic = true
	s.PendingLink = nil
	s.Completed = true
	s.touch()
	n.Confirm(conf)

	d.logger.WithFields(logrus.Fields{
		"booking_id":   s.BookingID,
		"service_type": s.ServiceType,
		"amount":       link.Amount,
		"payment_link": link.URL,
	}).Info("Payment page opened, booking confirmed optimistically")
	return &PaymentResult{
		Method:         MethodOnline,
		PaymentLinkURL: link.URL,
		Confirmation:   &conf,
	}, nil
}

// LinkOpenFailed drops the pending link after the device could not open it.
// The session stays payable.
func (d *PaymentDispatcher) LinkOpenFailed(s *State, reason string) error {
	if err := d.CheckLinkPending(s); err != nil {
		return err
	}

	d.logger.WithFields(logrus.Fields{
		"booking_id":   s.BookingID,
		"payment_link": s.PendingLink.URL,
		"reason":       reason,
	}).Warn("Device could not open payment page")

	s.PendingLink = nil
	s.touch()

	var cause error
	if reason != "" {
		cause = errors.New(reason)
	}
	return newError(ErrNetworkFailure, "Unable to open the payment page.", cause)
}

func (d *PaymentDispatcher) payByWallet(ctx context.Context, s *State, amount int64, h Handoff, logger *logrus.Entry) (*PaymentResult, error) {
	if amount > s.WalletBalance {
		logger.WithField("wallet_balance", s.WalletBalance).Info("Insufficient wallet balance")
		h.OfferTopUp(amount, s.WalletBalance)
		return nil, &InsufficientBalanceError{Required: amount, Available: s.WalletBalance}
	}

	debit, err := d.backend.PayByWallet(ctx, s.ServiceType, s.BookingID, amount)
	if err != nil {
		logger.WithError(err).Warn("Wallet payment failed")
		return nil, classify(err, "Wallet payment failed.")
	}

	result := &PaymentResult{Method: MethodWallet}
	if debit != nil && debit.RemainingWallet != nil {
		remaining := nonNegative(debit.RemainingWallet.Int64())
		s.WalletBalance = remaining
		result.RemainingWallet = &remaining
	}

	conf := confirmationFor(s, amount, MethodWallet)
	s.PendingLink = nil
	s.Completed = true
	s.touch()
	h.Confirm(conf)
	result.Confirmation = &conf

	logger.WithField("remaining_wallet", s.WalletBalance).Info("Wallet payment succeeded")
	return result, nil
}

// confirmationFor always carries the session's own booking id, never one
// returned by a payment endpoint.
func confirmationFor(s *State, amount int64, method PaymentMethod) Confirmation {
	conf := Confirmation{
		BookingID:   s.BookingID,
		ServiceType: s.ServiceType,
		Method:      method,
		Amount:      amount,
	}
	if s.ServiceType == marketplace.ServiceHostel {
		d := ReconcileHostel(s.Record.Hostel, s.Params)
		conf.ServiceName = d.HostelName
		conf.GuestName = d.GuestName
		conf.StartDate = d.CheckInDate
		conf.EndDate = d.CheckOutDate
		return conf
	}
	d := ReconcileTiffin(s.Record.Tiffin, s.Params)
	conf.ServiceName = d.ServiceName
	conf.GuestName = d.GuestName
	conf.StartDate = d.StartDate
	conf.EndDate = d.EndDate
	return conf
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
