package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayhub/checkout-gateway/internal/checkout"
	"github.com/stayhub/checkout-gateway/pkg/marketplace"
)

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(30 * time.Minute)

	price := marketplace.FlexInt(120)
	state := checkout.NewState(uuid.New(), marketplace.ServiceTiffin, "tf-42", checkout.RouteParams{Price: &price})
	state.Coupon = &checkout.AppliedCoupon{Code: "SAVE50", DiscountValue: 50, AfterDiscount: 430}
	state.CouponState = checkout.CouponApplied

	t.Run("Save and Get", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, state))

		loaded, err := store.Get(ctx, state.SessionID)
		require.NoError(t, err)
		assert.Equal(t, state.BookingID, loaded.BookingID)
		assert.Equal(t, state.UserID, loaded.UserID)
		assert.Equal(t, int64(120), loaded.Params.Price.Int64())
		require.NotNil(t, loaded.Coupon)
		assert.Equal(t, int64(430), loaded.Coupon.AfterDiscount)
	})

	t.Run("Loaded copies are independent", func(t *testing.T) {
		loaded, err := store.Get(ctx, state.SessionID)
		require.NoError(t, err)
		loaded.Completed = true

		again, err := store.Get(ctx, state.SessionID)
		require.NoError(t, err)
		assert.False(t, again.Completed)
	})

	t.Run("Unknown session", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, state.SessionID))
		_, err := store.Get(ctx, state.SessionID)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	store := NewMemorySessionStore(time.Minute)
	store.now = func() time.Time { return now }

	state := checkout.NewState(uuid.New(), marketplace.ServiceHostel, "hs-7", checkout.RouteParams{})
	require.NoError(t, store.Save(ctx, state))

	now = now.Add(30 * time.Second)
	_, err := store.Get(ctx, state.SessionID)
	require.NoError(t, err)

	// saving slides the expiry forward
	require.NoError(t, store.Save(ctx, state))
	now = now.Add(45 * time.Second)
	_, err = store.Get(ctx, state.SessionID)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, state.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Equal(t, 1, store.Cleanup())
	assert.Equal(t, 0, store.Cleanup())
}

func TestRedisSessionStoreKey(t *testing.T) {
	store := NewRedisSessionStore(nil, "checkout:session:", time.Minute)
	id := uuid.MustParse("7b3f8c1e-2a4d-4e5f-9a6b-1c2d3e4f5a6b")
	assert.Equal(t, "checkout:session:7b3f8c1e-2a4d-4e5f-9a6b-1c2d3e4f5a6b", store.key(id))
}
