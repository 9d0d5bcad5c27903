package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
	"github.com/Mindburn-Labs/returns-core/pkg/store"
)

func TestApplyPopulatesStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, Apply(ctx, st, now))

	n, err := st.CountOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(Orders(now)), n)

	policies, err := st.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Len(t, policies, 5)

	fraud, err := st.GetCustomer(ctx, "nathan.fraud@example.com")
	require.NoError(t, err)
	assert.True(t, fraud.FraudFlag)

	o, err := st.GetOrder(ctx, "ORD-10004")
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	assert.True(t, o.Items[1].FinalSale)
	assert.False(t, o.Items[1].Returnable)
	assert.Equal(t, int64(8999+14999), o.TotalAmountCents)
}

func TestApplyIdempotentForReferenceData(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Now()

	require.NoError(t, Apply(ctx, st, now))
	// Policies and customers upsert cleanly on a second run.
	for _, p := range Policies() {
		require.NoError(t, st.PutPolicy(ctx, p))
	}
	for _, c := range Customers() {
		customer := c
		require.NoError(t, st.PutCustomer(ctx, &customer))
	}
}

func TestSeedCoversEligibilityOutcomes(t *testing.T) {
	now := time.Now()
	orders := Orders(now)

	var young, expired, finalSale bool
	for _, o := range orders {
		age := int(now.Sub(o.OrderDate).Hours() / 24)
		if age <= 30 {
			young = true
		}
		if age > 120 {
			expired = true
		}
		for _, it := range o.Items {
			if it.FinalSale {
				finalSale = true
			}
		}
	}
	assert.True(t, young, "need an order inside every window")
	assert.True(t, expired, "need an order outside every window")
	assert.True(t, finalSale, "need a final-sale item")

	var vip bool
	for _, c := range Customers() {
		if c.LoyaltyTier == contracts.TierPlatinum || c.LoyaltyTier == contracts.TierGold {
			vip = true
		}
	}
	assert.True(t, vip)
}
