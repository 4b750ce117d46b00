package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/stayhub/checkout-gateway/pkg/marketplace"
)

// NotSpecified is rendered for dates that no source provides.
const NotSpecified = "N/A"

// Plan units understood by the tiffin calculator.
const (
	PlanPerMeal = "perMeal"
	PlanDaily   = "daily"
	PlanWeekly  = "weekly"
	PlanMonthly = "monthly"
)

// Payment methods accepted by the dispatcher.
type PaymentMethod string

const (
	MethodOnline PaymentMethod = "online"
	MethodWallet PaymentMethod = "wallet"
)

// Valid reports whether m is one of the supported methods.
func (m PaymentMethod) Valid() bool {
	return m == MethodOnline || m == MethodWallet
}

// BookingRecord is the server-authoritative pending booking. Exactly one of
// Tiffin or Hostel is set once the record has been fetched.
type BookingRecord struct {
	Tiffin *marketplace.TiffinBooking `json:"tiffin,omitempty"`
	Hostel *marketplace.HostelBooking `json:"hostel,omitempty"`
}

// Loaded reports whether a record for the given service type is present.
func (r BookingRecord) Loaded(st marketplace.ServiceType) bool {
	switch st {
	case marketplace.ServiceTiffin:
		return r.Tiffin != nil
	case marketplace.ServiceHostel:
		return r.Hostel != nil
	}
	return false
}

// RouteParams are the values the app navigated to checkout with. Any of them
// may be absent.
type RouteParams struct {
	ServiceID      *string              `json:"serviceId,omitempty"`
	ServiceName    *string              `json:"serviceName,omitempty"`
	GuestName      *string              `json:"guestName,omitempty"`
	MarketplaceFee *marketplace.FlexInt `json:"marketplaceFee,omitempty"`

	// tiffin
	Price       *marketplace.FlexInt `json:"price,omitempty"`
	PlanType    *string              `json:"planType,omitempty"`
	TiffinCount *marketplace.FlexInt `json:"tiffinCount,omitempty"`
	StartDate   *string              `json:"startDate,omitempty"`
	EndDate     *string              `json:"endDate,omitempty"`

	// hostel
	PlanName      *string              `json:"planName,omitempty"`
	PlanUnit      *string              `json:"planUnit,omitempty"`
	PlanPrice     *marketplace.FlexInt `json:"planPrice,omitempty"`
	DepositAmount *marketplace.FlexInt `json:"depositAmount,omitempty"`
	CheckInDate   *string              `json:"checkInDate,omitempty"`
	CheckOutDate  *string              `json:"checkOutDate,omitempty"`
	BedCount      *marketplace.FlexInt `json:"bedCount,omitempty"`
}

// TiffinDisplay is the reconciled view of a tiffin checkout.
type TiffinDisplay struct {
	ServiceName    string `json:"serviceName"`
	GuestName      string `json:"guestName"`
	PlanType       string `json:"planType"`
	Price          int64  `json:"price"`
	TiffinCount    int64  `json:"tiffinCount"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	MarketplaceFee int64  `json:"marketplaceFee"`
}

// HostelDisplay is the reconciled view of a hostel checkout.
type HostelDisplay struct {
	HostelName     string `json:"hostelName"`
	GuestName      string `json:"guestName"`
	PlanName       string `json:"planName"`
	PlanUnit       string `json:"planUnit"`
	PlanPrice      int64  `json:"planPrice"`
	DepositAmount  int64  `json:"depositAmount"`
	CheckInDate    string `json:"checkInDate"`
	CheckOutDate   string `json:"checkOutDate"`
	BedCount       int64  `json:"bedCount"`
	MarketplaceFee int64  `json:"marketplaceFee"`
}

// PriceBreakdown holds the line items shown on the checkout screen.
// TotalPayable is the only amount ever sent to a payment endpoint.
type PriceBreakdown struct {
	ServiceType         marketplace.ServiceType `json:"serviceType"`
	Plan                string                  `json:"plan"`
	BaseAmount          int64                   `json:"baseAmount"`
	UnitMultiplier      int64                   `json:"unitMultiplier"`
	Months              int64                   `json:"months,omitempty"`
	TotalBeforeDiscount int64                   `json:"totalBeforeDiscount"`
	DiscountValue       *int64                  `json:"discountValue,omitempty"`
	AfterDiscount       *int64                  `json:"afterDiscount,omitempty"`
	MarketplaceFee      int64                   `json:"marketplaceFee"`
	DepositAmount       int64                   `json:"depositAmount"`
	TotalPayable        int64                   `json:"totalPayable"`
}

// AppliedCoupon is the single coupon held by a checkout session.
type AppliedCoupon struct {
	Code           string `json:"code"`
	DiscountValue  int64  `json:"discountValue"`
	AfterDiscount  int64  `json:"afterDiscount"`
	MarketplaceFee *int64 `json:"marketplaceFee,omitempty"`
}

// CouponState tracks the coupon controller's state machine.
type CouponState string

const (
	CouponNone     CouponState = "none"
	CouponApplying CouponState = "applying"
	CouponApplied  CouponState = "applied"
	CouponRemoving CouponState = "removing"
)

// State is everything a checkout session remembers between user actions.
type State struct {
	SessionID     uuid.UUID               `json:"sessionId"`
	UserID        uuid.UUID               `json:"userId"`
	ServiceType   marketplace.ServiceType `json:"serviceType"`
	BookingID     string                  `json:"bookingId"`
	Params        RouteParams             `json:"params"`
	Record        BookingRecord           `json:"record"`
	Coupon        *AppliedCoupon          `json:"coupon,omitempty"`
	CouponState   CouponState             `json:"couponState"`
	WalletBalance int64                   `json:"walletBalance"`
	WalletLoaded  bool                    `json:"walletLoaded"`
	Completed     bool                    `json:"completed"`
	PendingLink   *PendingLink            `json:"pendingLink,omitempty"`
	RecordError   string                  `json:"recordError,omitempty"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

// NewState starts a fresh session for a booking. A new session never carries
// a coupon from a previous one.
func NewState(userID uuid.UUID, st marketplace.ServiceType, bookingID string, params RouteParams) *State {
	now := time.Now()
	return &State{
		SessionID:   uuid.New(),
		UserID:      userID,
		ServiceType: st,
		BookingID:   bookingID,
		Params:      params,
		CouponState: CouponNone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *State) touch() {
	s.UpdatedAt = time.Now()
}

// PendingLink is a payment link handed to the device and not yet
// acknowledged as opened.
type PendingLink struct {
	URL      string    `json:"url"`
	Amount   int64     `json:"amount"`
	IssuedAt time.Time `json:"issuedAt"`
}

// Confirmation is handed to the navigator after a successful payment.
type Confirmation struct {
	BookingID   string                  `json:"bookingId"`
	ServiceType marketplace.ServiceType `json:"serviceType"`
	Method      PaymentMethod           `json:"method"`
	ServiceName string                  `json:"serviceName"`
	GuestName   string                  `json:"guestName"`
	Amount      int64                   `json:"amount"`
	StartDate   string                  `json:"startDate"`
	EndDate     string                  `json:"endDate"`
	// Optimistic is set when success was inferred from the payment link
	// opening rather than from the backend.
	Optimistic bool `json:"optimistic"`
}

// View is the full checkout screen model.
type View struct {
	SessionID     uuid.UUID               `json:"sessionId"`
	ServiceType   marketplace.ServiceType `json:"serviceType"`
	BookingID     string                  `json:"bookingId"`
	Tiffin        *TiffinDisplay          `json:"tiffin,omitempty"`
	Hostel        *HostelDisplay          `json:"hostel,omitempty"`
	Breakdown     PriceBreakdown          `json:"breakdown"`
	Coupon        *AppliedCoupon          `json:"coupon,omitempty"`
	CouponState   CouponState             `json:"couponState"`
	WalletBalance int64                   `json:"walletBalance"`
	Completed     bool                    `json:"completed"`
	PendingLink   *PendingLink            `json:"pendingLink,omitempty"`
	Notice        string                  `json:"notice,omitempty"`
}
