package checkout

import (
	"strings"
	"time"

	"github.com/stayhub/checkout-gateway/pkg/marketplace"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"02/01/2006",
}

// ParseDate reads a booking date. Only the calendar day is kept.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == NotSpecified {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	if len(s) > 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// planPeriodDays is the number of days one unit of a duration plan covers.
var planPeriodDays = map[string]int64{
	PlanDaily:   1,
	PlanWeekly:  7,
	PlanMonthly: 30,
}

// UnitMultiplier returns how many priced units a tiffin booking covers.
// Per-meal plans multiply by the tiffin count only. Duration plans count the
// inclusive day span in plan periods, rounded up, and multiply that by the
// tiffin count as well.
func UnitMultiplier(plan string, tiffinCount int64, startDate, endDate string) int64 {
	count := atLeastOne(tiffinCount)
	period, ok := planPeriodDays[NormalizePlan(plan)]
	if !ok {
		return count
	}
	start, okStart := ParseDate(startDate)
	end, okEnd := ParseDate(endDate)
	if !okStart || !okEnd {
		return count
	}
	days := int64(end.Sub(start).Hours()/24) + 1
	units := (days + period - 1) / period
	if units < 1 {
		units = 1
	}
	return units * count
}

// MonthsBetween counts calendar months between check-in and check-out using
// year*12+month arithmetic. The result is never below 1.
func MonthsBetween(checkIn, checkOut string) int64 {
	in, okIn := ParseDate(checkIn)
	out, okOut := ParseDate(checkOut)
	if !okIn || !okOut {
		return 1
	}
	months := int64(out.Year()*12+int(out.Month())) - int64(in.Year()*12+int(in.Month()))
	if months < 1 {
		return 1
	}
	return months
}

// PriceTiffin derives the tiffin breakdown.
func PriceTiffin(record *marketplace.TiffinBooking, params RouteParams, coupon *AppliedCoupon) PriceBreakdown {
	display := ReconcileTiffin(record, params)
	if record == nil {
		record = &marketplace.TiffinBooking{}
	}

	var couponTotal *marketplace.FlexInt
	if coupon != nil {
		couponTotal = ptr(marketplace.FlexInt(coupon.AfterDiscount))
	}
	rawPrice := nonNegative(int64(First(record.Price, couponTotal, params.Price)))

	plan := NormalizePlan(Resolve(record.PlanType, nil, display.PlanType))
	multiplier := UnitMultiplier(plan, display.TiffinCount, display.StartDate, display.EndDate)
	total := rawPrice * multiplier

	breakdown := PriceBreakdown{
		ServiceType:         marketplace.ServiceTiffin,
		Plan:                plan,
		BaseAmount:          rawPrice,
		UnitMultiplier:      multiplier,
		TotalBeforeDiscount: total,
		TotalPayable:        total,
	}
	if coupon != nil {
		breakdown.DiscountValue = ptr(nonNegative(coupon.DiscountValue))
		breakdown.AfterDiscount = ptr(nonNegative(coupon.AfterDiscount))
		if coupon.MarketplaceFee != nil {
			breakdown.MarketplaceFee = nonNegative(*coupon.MarketplaceFee)
			breakdown.TotalPayable += breakdown.MarketplaceFee
		}
	}
	return breakdown
}

// PriceHostel derives the hostel breakdown. The deposit is reported but never
// part of the payable amount; it is collected at the property.
func PriceHostel(record *marketplace.HostelBooking, params RouteParams, coupon *AppliedCoupon) PriceBreakdown {
	display := ReconcileHostel(record, params)
	months := MonthsBetween(display.CheckInDate, display.CheckOutDate)
	totalRent := display.PlanPrice * months

	breakdown := PriceBreakdown{
		ServiceType:         marketplace.ServiceHostel,
		Plan:                display.PlanName,
		BaseAmount:          display.PlanPrice,
		UnitMultiplier:      months,
		Months:              months,
		TotalBeforeDiscount: totalRent,
		MarketplaceFee:      display.MarketplaceFee,
		DepositAmount:       display.DepositAmount,
	}

	payable := totalRent
	if coupon != nil {
		breakdown.DiscountValue = ptr(nonNegative(coupon.DiscountValue))
		breakdown.AfterDiscount = ptr(nonNegative(coupon.AfterDiscount))
		payable = *breakdown.AfterDiscount
		if coupon.MarketplaceFee != nil {
			breakdown.MarketplaceFee = nonNegative(*coupon.MarketplaceFee)
		}
	}
	breakdown.TotalPayable = payable + breakdown.MarketplaceFee
	return breakdown
}

// Price computes the breakdown for whatever service the session is for.
func Price(s *State) PriceBreakdown {
	if s.ServiceType == marketplace.ServiceHostel {
		return PriceHostel(s.Record.Hostel, s.Params, s.Coupon)
	}
	return PriceTiffin(s.Record.Tiffin, s.Params, s.Coupon)
}
