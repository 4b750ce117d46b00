package checkout

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stayhub/checkout-gateway/pkg/marketplace"
)

// CouponController applies and removes the session's coupon.
//
// It does not refuse a second Apply while a coupon is held: the caller hides
// the coupon input once one is applied and is responsible for exclusivity.
// A successful Apply always replaces the held coupon, so a session never
// holds more than one.
type CouponController struct {
	backend Backend
	logger  *logrus.Logger
}

// NewCouponController creates a coupon controller
func NewCouponController(backend Backend, logger *logrus.Logger) *CouponController {
	if logger == nil {
		logger = discardLogger()
	}
	return &CouponController{backend: backend, logger: logger}
}

// Apply validates code against the backend and stores the discount on success.
// On failure the session's coupon state is left as it was.
func (c *CouponController) Apply(ctx context.Context, s *State, code string) (*AppliedCoupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, newError(ErrValidation, "Please enter a coupon code.", nil)
	}
	if s.BookingID == "" {
		return nil, newError(ErrMissingCredential, "Booking id is missing.", nil)
	}

	previous := s.CouponState
	s.CouponState = CouponApplying

	result, err := c.backend.ApplyCoupon(ctx, s.ServiceType, s.BookingID, &code)
	if err != nil {
		s.CouponState = previous
		c.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": s.BookingID,
			"coupon":     code,
		}).Info("Coupon rejected")
		return nil, classify(err, "Failed to apply coupon.")
	}

	applied := couponFromResult(code, result, Price(withoutCoupon(s)).TotalBeforeDiscount)
	s.Coupon = applied
	s.CouponState = CouponApplied
	s.touch()

	c.logger.WithFields(logrus.Fields{
		"booking_id":     s.BookingID,
		"coupon":         code,
		"discount_value": applied.DiscountValue,
		"after_discount": applied.AfterDiscount,
	}).Info("Coupon applied")
	return applied, nil
}

// Remove clears the coupon. Hostel sessions re-fetch the booking record,
// since the discount lives on the server-side booking and has no undo
// endpoint. Tiffin sessions only clear local state.
func (c *CouponController) Remove(ctx context.Context, s *State) error {
	s.CouponState = CouponRemoving
	s.Coupon = nil
	s.touch()

	if s.ServiceType != marketplace.ServiceHostel {
		s.CouponState = CouponNone
		return nil
	}

	err := fetchRecord(ctx, c.backend, s)
	s.CouponState = CouponNone
	if err != nil {
		c.logger.WithError(err).WithField("booking_id", s.BookingID).Warn("Failed to re-fetch booking after coupon removal")
		return err
	}
	return nil
}

// couponFromResult reads the server's discount. Hostel responses carry
// afterDiscount, tiffin responses finalPrice; if neither is sent the
// discount is taken off the undiscounted total.
func couponFromResult(code string, result *marketplace.CouponResult, totalBeforeDiscount int64) *AppliedCoupon {
	if result == nil {
		result = &marketplace.CouponResult{}
	}
	discount := nonNegative(result.DiscountValue.Int64())
	applied := &AppliedCoupon{
		Code:          code,
		DiscountValue: discount,
	}
	after := First(result.AfterDiscount, result.FinalPrice)
	if after != 0 {
		applied.AfterDiscount = nonNegative(int64(after))
	} else {
		applied.AfterDiscount = nonNegative(totalBeforeDiscount - discount)
	}
	if result.MarketplaceFee != nil {
		applied.MarketplaceFee = ptr(nonNegative(result.MarketplaceFee.Int64()))
	}
	return applied
}

func withoutCoupon(s *State) *State {
	clone := *s
	clone.Coupon = nil
	return &clone
}
