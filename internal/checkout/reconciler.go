package checkout

import (
	"strings"

	"github.com/stayhub/checkout-gateway/pkg/marketplace"
)

// Fallback values used when neither the booking record nor the route
// parameters provide a field.
const (
	DefaultTiffinServiceName = "Tiffin Service"
	DefaultHostelName        = "Hostel"
	DefaultGuestName         = "Guest"
	DefaultHostelPlanName    = "Monthly Plan"
	DefaultHostelPlanUnit    = "month"
)

// ReconcileTiffin builds the tiffin display model field by field. A record
// that carries only some fields still wins for those fields.
func ReconcileTiffin(record *marketplace.TiffinBooking, params RouteParams) TiffinDisplay {
	if record == nil {
		record = &marketplace.TiffinBooking{}
	}
	return TiffinDisplay{
		ServiceName:    Resolve(record.ServiceName, params.ServiceName, DefaultTiffinServiceName),
		GuestName:      Resolve(record.GuestName, params.GuestName, DefaultGuestName),
		PlanType:       NormalizePlan(Resolve(record.PlanType, params.PlanType, PlanPerMeal)),
		Price:          nonNegative(int64(Resolve(record.Price, params.Price, 0))),
		TiffinCount:    atLeastOne(int64(Resolve(record.NumberOfTiffin, params.TiffinCount, 1))),
		StartDate:      Resolve(record.StartDate, params.StartDate, NotSpecified),
		EndDate:        Resolve(record.EndDate, params.EndDate, NotSpecified),
		MarketplaceFee: nonNegative(int64(Resolve(record.MarketplaceFee, params.MarketplaceFee, 0))),
	}
}

// ReconcileHostel builds the hostel display model field by field.
func ReconcileHostel(record *marketplace.HostelBooking, params RouteParams) HostelDisplay {
	if record == nil {
		record = &marketplace.HostelBooking{}
	}
	plan := record.SelectedPlan
	if plan == nil {
		plan = &marketplace.HostelPlan{}
	}
	return HostelDisplay{
		HostelName:     Resolve(record.HostelName, params.ServiceName, DefaultHostelName),
		GuestName:      Resolve(record.GuestName, params.GuestName, DefaultGuestName),
		PlanName:       Resolve(plan.Name, params.PlanName, DefaultHostelPlanName),
		PlanUnit:       Resolve(plan.Unit, params.PlanUnit, DefaultHostelPlanUnit),
		PlanPrice:      nonNegative(int64(Resolve(plan.Price, params.PlanPrice, 0))),
		DepositAmount:  nonNegative(int64(Resolve(record.DepositAmount, params.DepositAmount, 0))),
		CheckInDate:    Resolve(record.CheckInDate, params.CheckInDate, NotSpecified),
		CheckOutDate:   Resolve(record.CheckOutDate, params.CheckOutDate, NotSpecified),
		BedCount:       atLeastOne(int64(Resolve(record.BedCount, params.BedCount, 1))),
		MarketplaceFee: nonNegative(int64(Resolve(record.MarketplaceFee, params.MarketplaceFee, 0))),
	}
}

// NormalizePlan maps the plan spellings used across the app ("per meal",
// "Per_Meal", "MONTHLY", ...) onto the calculator's plan constants. Unknown
// plans are returned unchanged.
func NormalizePlan(plan string) string {
	key := strings.ToLower(strings.TrimSpace(plan))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	switch key {
	case "permeal", "meal":
		return PlanPerMeal
	case "daily", "day", "perday":
		return PlanDaily
	case "weekly", "week", "perweek":
		return PlanWeekly
	case "monthly", "month", "permonth":
		return PlanMonthly
	}
	return strings.TrimSpace(plan)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func atLeastOne(v int64) int64 {
	if v < 1 {
		return 1
	}
	return v
}
