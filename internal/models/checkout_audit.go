package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutEventType represents the type of checkout event
type CheckoutEventType string

const (
	CheckoutEventSessionStarted      CheckoutEventType = "session_started"
	CheckoutEventCouponApplied       CheckoutEventType = "coupon_applied"
	CheckoutEventCouponRejected      CheckoutEventType = "coupon_rejected"
	CheckoutEventCouponRemoved       CheckoutEventType = "coupon_removed"
	CheckoutEventPaymentInitiated    CheckoutEventType = "payment_initiated"
	CheckoutEventPaymentLinkCreated  CheckoutEventType = "payment_link_created"
	CheckoutEventPaymentLinkOpened   CheckoutEventType = "payment_link_opened"
	CheckoutEventWalletDebited       CheckoutEventType = "wallet_debited"
	CheckoutEventInsufficientBalance CheckoutEventType = "insufficient_balance"
	CheckoutEventPaymentFailed       CheckoutEventType = "payment_failed"
	CheckoutEventBookingConfirmed    CheckoutEventType = "booking_confirmed"
	CheckoutEventAmountMismatch      CheckoutEventType = "amount_mismatch"
)

// CheckoutEventSource identifies where the event originated
type CheckoutEventSource string

const (
	CheckoutSourceUser        CheckoutEventSource = "user"
	CheckoutSourceMarketplace CheckoutEventSource = "marketplace"
	CheckoutSourceGateway     CheckoutEventSource = "gateway"
)

// CheckoutAudit is an immutable audit log entry for a checkout session
type CheckoutAudit struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	SessionID   *uuid.UUID `json:"session_id,omitempty" db:"session_id"`
	UserID      *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	BookingID   string     `json:"booking_id" db:"booking_id"`
	ServiceType string     `json:"service_type" db:"service_type"`

	EventType   CheckoutEventType   `json:"event_type" db:"event_type"`
	EventSource CheckoutEventSource `json:"event_source" db:"event_source"`

	// Amounts in whole currency units
	PaymentMethod   *string `json:"payment_method,omitempty" db:"payment_method"`
	CouponCode      *string `json:"coupon_code,omitempty" db:"coupon_code"`
	ExpectedAmount  *int64  `json:"expected_amount,omitempty" db:"expected_amount"`
	ChargedAmount   *int64  `json:"charged_amount,omitempty" db:"charged_amount"`
	DiscountValue   *int64  `json:"discount_value,omitempty" db:"discount_value"`
	RemainingWallet *int64  `json:"remaining_wallet,omitempty" db:"remaining_wallet"`
	Optimistic      bool    `json:"optimistic" db:"optimistic"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
	ErrorKind    *string `json:"error_kind,omitempty" db:"error_kind"`
	Details      JSONB   `json:"details,omitempty" db:"details"`

	// Caller metadata
	IPAddress             *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent             *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceType            *string `json:"device_type,omitempty" db:"device_type"`
	Platform              *string `json:"platform,omitempty" db:"platform"`
	CredentialFingerprint *string `json:"credential_fingerprint,omitempty" db:"credential_fingerprint"`

	ProcessingTimeMs *int     `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// NewCheckoutAudit creates a new audit entry with required fields
func NewCheckoutAudit(eventType CheckoutEventType, source CheckoutEventSource, bookingID, serviceType string) *CheckoutAudit {
	return &CheckoutAudit{
		ID:          uuid.New(),
		BookingID:   bookingID,
		ServiceType: serviceType,
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetSession links the entry to a checkout session and its user
func (a *CheckoutAudit) SetSession(sessionID, userID uuid.UUID) *CheckoutAudit {
	a.SessionID = &sessionID
	a.UserID = &userID
	return a
}

// SetPayment records the method and the amount the session displayed
func (a *CheckoutAudit) SetPayment(method string, expected int64) *CheckoutAudit {
	a.PaymentMethod = &method
	a.ExpectedAmount = &expected
	return a
}

// SetCharged records the amount actually sent to the marketplace
func (a *CheckoutAudit) SetCharged(amount int64) *CheckoutAudit {
	a.ChargedAmount = &amount
	return a
}

// SetCoupon records a coupon code and the discount it produced
func (a *CheckoutAudit) SetCoupon(code string, discount *int64) *CheckoutAudit {
	a.CouponCode = &code
	a.DiscountValue = discount
	return a
}

// SetRemainingWallet records the wallet balance after a debit
func (a *CheckoutAudit) SetRemainingWallet(remaining int64) *CheckoutAudit {
	a.RemainingWallet = &remaining
	return a
}

// MarkOptimistic flags a confirmation inferred from a payment page opening
func (a *CheckoutAudit) MarkOptimistic() *CheckoutAudit {
	a.Optimistic = true
	return a
}

// SetError sets error information
func (a *CheckoutAudit) SetError(message, kind string) *CheckoutAudit {
	a.ErrorMessage = &message
	if kind != "" {
		a.ErrorKind = &kind
	}
	return a
}

// SetDetails attaches extra structured data
func (a *CheckoutAudit) SetDetails(details map[string]interface{}) *CheckoutAudit {
	a.Details = JSONB(details)
	return a
}

// SetMetadata sets request metadata
func (a *CheckoutAudit) SetMetadata(ip, userAgent, deviceType, platform, fingerprint string) *CheckoutAudit {
	a.IPAddress = optional(ip)
	a.UserAgent = optional(userAgent)
	a.DeviceType = optional(deviceType)
	a.Platform = optional(platform)
	a.CredentialFingerprint = optional(fingerprint)
	return a
}

// SetProcessingTime calculates and sets processing time
func (a *CheckoutAudit) SetProcessingTime(startTime time.Time) *CheckoutAudit {
	durationMs := int(time.Since(startTime).Milliseconds())
	a.ProcessingTimeMs = &durationMs
	return a
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
