package marketplace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ServiceType selects which family of backend endpoints a call goes to
type ServiceType string

const (
	ServiceTiffin ServiceType = "tiffin"
	ServiceHostel ServiceType = "hostel"
)

// ParseServiceType validates a service type coming from a request
func ParseServiceType(s string) (ServiceType, error) {
	switch ServiceType(strings.ToLower(strings.TrimSpace(s))) {
	case ServiceTiffin:
		return ServiceTiffin, nil
	case ServiceHostel:
		return ServiceHostel, nil
	}
	return "", fmt.Errorf("unknown service type %q (must be 'tiffin' or 'hostel')", s)
}

// FlexInt is a whole-currency integer that the backend may send either as a
// JSON number or as a numeric string. Fractions are rounded.
type FlexInt int64

// UnmarshalJSON accepts 120, 120.0, "120" and null
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		data = []byte(s)
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", string(data), err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		*f = 0
		return nil
	}
	*f = FlexInt(math.Round(v))
	return nil
}

// Int64 returns the value, treating nil as 0
func (f *FlexInt) Int64() int64 {
	if f == nil {
		return 0
	}
	return int64(*f)
}

// Envelope is the response shape shared by every backend endpoint
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// TiffinBooking is the pending tiffin booking returned before payment
type TiffinBooking struct {
	ID                        *string  `json:"_id,omitempty"`
	ServiceName               *string  `json:"tiffinServiceName,omitempty"`
	GuestName                 *string  `json:"userName,omitempty"`
	Price                     *FlexInt `json:"price,omitempty"`
	PlanType                  *string  `json:"planType,omitempty"`
	StartDate                 *string  `json:"startDate,omitempty"`
	EndDate                   *string  `json:"endDate,omitempty"`
	NumberOfTiffin            *FlexInt `json:"numberOfTiffin,omitempty"`
	MarketplaceFee            *FlexInt `json:"marketplaceFee,omitempty"`
	TotalAmountBeforeDiscount *FlexInt `json:"totalAmountBeforeDiscount,omitempty"`
}

// HostelPlan is the plan the guest selected on the hostel booking form
type HostelPlan struct {
	Name  *string  `json:"name,omitempty"`
	Unit  *string  `json:"unit,omitempty"`
	Price *FlexInt `json:"price,omitempty"`
}

// HostelBooking is the pending hostel booking returned before payment
type HostelBooking struct {
	ID                        *string     `json:"_id,omitempty"`
	HostelName                *string     `json:"hostelName,omitempty"`
	GuestName                 *string     `json:"guestName,omitempty"`
	SelectedPlan              *HostelPlan `json:"selectedPlan,omitempty"`
	DepositAmount             *FlexInt    `json:"depositAmount,omitempty"`
	CheckInDate               *string     `json:"checkInDate,omitempty"`
	CheckOutDate              *string     `json:"checkOutDate,omitempty"`
	BedCount                  *FlexInt    `json:"bedCount,omitempty"`
	RoomCount                 *FlexInt    `json:"roomCount,omitempty"`
	MarketplaceFee            *FlexInt    `json:"marketplaceFee,omitempty"`
	TotalAmountBeforeDiscount *FlexInt    `json:"totalAmountBeforeDiscount,omitempty"`
}

// PlanPrice returns the selected plan price, or nil if absent
func (h *HostelBooking) PlanPrice() *FlexInt {
	if h == nil || h.SelectedPlan == nil {
		return nil
	}
	return h.SelectedPlan.Price
}

// CouponRequest is the body of the AppliedCoupon endpoints. A nil Coupon
// clears the coupon on the booking.
type CouponRequest struct {
	Coupon *string `json:"coupon"`
}

// CouponResult is the data returned when a coupon is applied
type CouponResult struct {
	DiscountValue  *FlexInt `json:"discountValue,omitempty"`
	AfterDiscount  *FlexInt `json:"afterDiscount,omitempty"`
	FinalPrice     *FlexInt `json:"finalPrice,omitempty"`
	MarketplaceFee *FlexInt `json:"marketplaceFee,omitempty"`
}

// PaymentRequest is the body sent to the payment endpoints
type PaymentRequest struct {
	Amount int64 `json:"amount"`
}

// PaymentLink is returned by the online payment endpoints
type PaymentLink struct {
	PaymentLinkURL string `json:"paymentLinkUrl"`
	BookingID      string `json:"bookingId,omitempty"`
}

// WalletDebit is returned by the wallet payment endpoints
type WalletDebit struct {
	RemainingWallet *FlexInt `json:"remainingWallet,omitempty"`
	BookingID       string   `json:"bookingId,omitempty"`
}

// WalletAmount is returned by the wallet balance endpoint
type WalletAmount struct {
	WalletAmount *FlexInt `json:"walletAmount,omitempty"`
}

// Coupon is an entry of a service's coupon catalog
type Coupon struct {
	ID            string   `json:"_id,omitempty"`
	Code          string   `json:"couponCode"`
	Description   string   `json:"description,omitempty"`
	DiscountType  string   `json:"discountType,omitempty"`
	DiscountValue *FlexInt `json:"discountValue,omitempty"`
	MinAmount     *FlexInt `json:"minAmount,omitempty"`
	ExpiryDate    string   `json:"expiryDate,omitempty"`
}
