package checkout

import (
	"context"
	"sync"

	"github.com/stayhub/checkout-gateway/pkg/marketplace"
)

// fakeBackend records every call and answers from canned values.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	tiffin    *marketplace.TiffinBooking
	hostel    *marketplace.HostelBooking
	bookErr   error
	coupon    *marketplace.CouponResult
	couponErr error
	link      *marketplace.PaymentLink
	linkErr   error
	debit     *marketplace.WalletDebit
	debitErr  error
	wallet    int64
	walletErr error
	coupons   []marketplace.Coupon

	lastAmount int64
	lastCoupon *string
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) GetTiffinBooking(_ context.Context, _ string) (*marketplace.TiffinBooking, error) {
	f.record("getTiffin")
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	if f.tiffin == nil {
		return &marketplace.TiffinBooking{}, nil
	}
	copied := *f.tiffin
	return &copied, nil
}

func (f *fakeBackend) GetHostelBooking(_ context.Context, _ string) (*marketplace.HostelBooking, error) {
	f.record("getHostel")
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	if f.hostel == nil {
		return &marketplace.HostelBooking{}, nil
	}
	copied := *f.hostel
	return &copied, nil
}

func (f *fakeBackend) ApplyCoupon(_ context.Context, _ marketplace.ServiceType, _ string, code *string) (*marketplace.CouponResult, error) {
	f.record("applyCoupon")
	f.lastCoupon = code
	if f.couponErr != nil {
		return nil, f.couponErr
	}
	return f.coupon, nil
}

func (f *fakeBackend) CreatePaymentLink(_ context.Context, _ marketplace.ServiceType, _ string, amount int64) (*marketplace.PaymentLink, error) {
	f.record("paymentLink")
	f.lastAmount = amount
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	return f.link, nil
}

func (f *fakeBackend) PayByWallet(_ context.Context, _ marketplace.ServiceType, _ string, amount int64) (*marketplace.WalletDebit, error) {
	f.record("payByWallet")
	f.lastAmount = amount
	if f.debitErr != nil {
		return nil, f.debitErr
	}
	return f.debit, nil
}

func (f *fakeBackend) GetWalletAmount(_ context.Context) (int64, error) {
	f.record("wallet")
	if f.walletErr != nil {
		return 0, f.walletErr
	}
	return f.wallet, nil
}

func (f *fakeBackend) ListCoupons(_ context.Context, _ marketplace.ServiceType, _ string) ([]marketplace.Coupon, error) {
	f.record("listCoupons")
	return f.coupons, nil
}

// fakeHandoff captures what the dispatcher asked the UI to do.
type fakeHandoff struct {
	opened       []string
	openErr      error
	confirmed    []Confirmation
	topUpOffered bool
	required     int64
	available    int64
}

func (h *fakeHandoff) OpenURL(_ context.Context, url string) error {
	if h.openErr != nil {
		return h.openErr
	}
	h.opened = append(h.opened, url)
	return nil
}

func (h *fakeHandoff) Confirm(c Confirmation) {
	h.confirmed = append(h.confirmed, c)
}

func (h *fakeHandoff) OfferTopUp(required, available int64) {
	h.topUpOffered = true
	h.required = required
	h.available = available
}

func fi(v int64) *marketplace.FlexInt {
	f := marketplace.FlexInt(v)
	return &f
}

func str(v string) *string {
	return &v
}
