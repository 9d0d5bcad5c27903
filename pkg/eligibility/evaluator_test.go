package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
	"github.com/Mindburn-Labs/returns-core/pkg/policy"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func testPolicies(t *testing.T) *policy.Repository {
	t.Helper()
	repo, err := policy.NewRepository()
	require.NoError(t, err)
	require.NoError(t, repo.Load([]contracts.ReturnPolicy{
		{PolicyID: "POL-GEN", Name: "General Return Policy", Category: contracts.PolicyGeneral, WindowDays: 30, Active: true},
		{PolicyID: "POL-ELEC", Name: "Electronics Return Policy", Category: contracts.PolicyElectronics, WindowDays: 90, RestockingFeeBps: 1500, Active: true},
		{PolicyID: "POL-CLOTH", Name: "Clothing Return Policy", Category: contracts.PolicyClothing, WindowDays: 30, Active: true},
		{PolicyID: "POL-FINAL", Name: "Final Sale Policy", Category: contracts.PolicyFinalSale, WindowDays: 0, Active: true},
		{PolicyID: "POL-VIP", Name: "VIP Extended Policy", Category: contracts.PolicyVIPExtended, WindowDays: 120, Active: true},
	}))
	return repo
}

func testOrder(daysAgo int) *contracts.Order {
	return &contracts.Order{
		OrderNumber:   "ORD-1001",
		CustomerEmail: "jane@example.com",
		OrderDate:     testNow.AddDate(0, 0, -daysAgo),
		Status:        contracts.OrderDelivered,
		Items: []contracts.OrderItem{
			{ItemID: "ITM-1", ProductName: "Wool Sweater", Category: contracts.CategoryClothing, Quantity: 1, UnitPriceCents: 4999, Returnable: true},
			{ItemID: "ITM-2", ProductName: "Noise-Canceling Headphones", Category: contracts.CategoryElectronics, Quantity: 1, UnitPriceCents: 19999, Returnable: true},
			{ItemID: "ITM-3", ProductName: "Clearance Scarf", Category: contracts.CategoryClothing, Quantity: 2, UnitPriceCents: 1299, Returnable: true, FinalSale: true},
		},
	}
}

func testCustomer() *contracts.Customer {
	return &contracts.Customer{
		Email:       "jane@example.com",
		FirstName:   "Jane",
		LoyaltyTier: contracts.TierStandard,
	}
}

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	return NewEvaluator(testPolicies(t)).WithClock(func() time.Time { return testNow })
}

func TestEvaluateApprovedWithinWindow(t *testing.T) {
	ev := newTestEvaluator(t)

	v := ev.Evaluate(testOrder(10), []string{"ITM-1"}, "wrong size", testCustomer())
	assert.True(t, v.Eligible)
	assert.Equal(t, contracts.ReasonApproved, v.ReasonCode)
	assert.Equal(t, "POL-CLOTH", v.PolicyID)
	assert.Equal(t, 10, v.ElapsedDays)
	assert.False(t, v.ManualReview)
}

func TestEvaluateWindowBoundaryInclusive(t *testing.T) {
	ev := newTestEvaluator(t)

	onBoundary := ev.Evaluate(testOrder(30), []string{"ITM-1"}, "changed my mind", testCustomer())
	assert.True(t, onBoundary.Eligible, "exactly window days elapsed is still eligible")

	past := ev.Evaluate(testOrder(31), []string{"ITM-1"}, "changed my mind", testCustomer())
	assert.False(t, past.Eligible)
	assert.Equal(t, contracts.ReasonTimeExpired, past.ReasonCode)
	assert.Equal(t, 31, past.ElapsedDays)
}

func TestEvaluateDamageVocabularyForcesManualReview(t *testing.T) {
	ev := newTestEvaluator(t)

	for _, reason := range []string{
		"arrived DAMAGED in the box",
		"the screen is cracked",
		"seams are torn",
		"item is faulty and will not power on",
	} {
		v := ev.Evaluate(testOrder(5), []string{"ITM-1"}, reason, testCustomer())
		assert.Equal(t, contracts.ReasonDamagedManual, v.ReasonCode, reason)
		assert.True(t, v.ManualReview, reason)
		assert.False(t, v.Eligible, reason)
	}
}

func TestEvaluateDamageBeatsEveryOtherRule(t *testing.T) {
	ev := newTestEvaluator(t)

	// Fraud-flagged customer, final-sale item, and an expired window: the
	// damage rule still decides because it runs first.
	c := testCustomer()
	c.FraudFlag = true
	v := ev.Evaluate(testOrder(400), []string{"ITM-3"}, "box arrived shattered", c)
	assert.Equal(t, contracts.ReasonDamagedManual, v.ReasonCode)
}

func TestEvaluateFraudFlagRoutesToManualReview(t *testing.T) {
	ev := newTestEvaluator(t)

	c := testCustomer()
	c.FraudFlag = true
	v := ev.Evaluate(testOrder(5), []string{"ITM-1"}, "no longer needed", c)
	assert.Equal(t, contracts.ReasonRiskManual, v.ReasonCode)
	assert.True(t, v.ManualReview)
}

func TestEvaluateReturnCountThreshold(t *testing.T) {
	ev := newTestEvaluator(t)

	c := testCustomer()
	c.ReturnCount30 = 3
	v := ev.Evaluate(testOrder(5), []string{"ITM-1"}, "no longer needed", c)
	assert.Equal(t, contracts.ReasonRiskManual, v.ReasonCode)

	c.ReturnCount30 = 2
	v = ev.Evaluate(testOrder(5), []string{"ITM-1"}, "no longer needed", c)
	assert.Equal(t, contracts.ReasonApproved, v.ReasonCode)
}

func TestEvaluateConfigurableRiskThreshold(t *testing.T) {
	ev := newTestEvaluator(t).WithRiskThreshold(5)

	c := testCustomer()
	c.ReturnCount30 = 4
	v := ev.Evaluate(testOrder(5), []string{"ITM-1"}, "no longer needed", c)
	assert.Equal(t, contracts.ReasonApproved, v.ReasonCode)
}

func TestEvaluateFinalSaleExcluded(t *testing.T) {
	ev := newTestEvaluator(t)

	v := ev.Evaluate(testOrder(5), []string{"ITM-3"}, "changed my mind", testCustomer())
	assert.Equal(t, contracts.ReasonItemExcluded, v.ReasonCode)
	assert.False(t, v.ManualReview)
}

func TestEvaluateNonReturnableExcluded(t *testing.T) {
	ev := newTestEvaluator(t)

	o := testOrder(5)
	o.Items[0].Returnable = false
	v := ev.Evaluate(o, []string{"ITM-1"}, "changed my mind", testCustomer())
	assert.Equal(t, contracts.ReasonItemExcluded, v.ReasonCode)
}

func TestEvaluateVIPPolicyWins(t *testing.T) {
	ev := newTestEvaluator(t)

	c := testCustomer()
	c.LoyaltyTier = contracts.TierPlatinum
	v := ev.Evaluate(testOrder(100), []string{"ITM-1"}, "changed my mind", c)
	assert.True(t, v.Eligible)
	assert.Equal(t, "POL-VIP", v.PolicyID)
	assert.Equal(t, 120, v.WindowDays)
}

func TestEvaluateSilverIsNotVIP(t *testing.T) {
	ev := newTestEvaluator(t)

	c := testCustomer()
	c.LoyaltyTier = contracts.TierSilver
	v := ev.Evaluate(testOrder(100), []string{"ITM-1"}, "changed my mind", c)
	assert.Equal(t, contracts.ReasonTimeExpired, v.ReasonCode)
}

func TestEvaluateCategoryPolicyBeatsGeneral(t *testing.T) {
	ev := newTestEvaluator(t)

	// Electronics carries a 90-day window; 60 days elapsed is expired for
	// the general policy but approved for electronics.
	v := ev.Evaluate(testOrder(60), []string{"ITM-2"}, "changed my mind", testCustomer())
	assert.True(t, v.Eligible)
	assert.Equal(t, "POL-ELEC", v.PolicyID)
}

func TestEvaluateDataErrors(t *testing.T) {
	ev := newTestEvaluator(t)

	v := ev.Evaluate(nil, []string{"ITM-1"}, "x", testCustomer())
	assert.Equal(t, contracts.ReasonDataError, v.ReasonCode)

	v = ev.Evaluate(testOrder(5), nil, "x", testCustomer())
	assert.Equal(t, contracts.ReasonDataError, v.ReasonCode)

	v = ev.Evaluate(testOrder(5), []string{"ITM-99"}, "x", testCustomer())
	assert.Equal(t, contracts.ReasonDataError, v.ReasonCode)

	v = ev.Evaluate(testOrder(5), []string{"ITM-1"}, "x", nil)
	assert.Equal(t, contracts.ReasonDataError, v.ReasonCode)
}

func TestRefundAppliesRestockingFee(t *testing.T) {
	o := testOrder(5)

	elec := &contracts.ReturnPolicy{PolicyID: "POL-ELEC", RestockingFeeBps: 1500}
	got, err := Refund(o, []string{"ITM-2"}, elec)
	require.NoError(t, err)
	// 19999 minus 15% restocking fee, truncated to whole cents.
	assert.Equal(t, int64(17000), got)

	gen := &contracts.ReturnPolicy{PolicyID: "POL-GEN"}
	got, err = Refund(o, []string{"ITM-1", "ITM-3"}, gen)
	require.NoError(t, err)
	assert.Equal(t, int64(4999+2*1299), got)

	_, err = Refund(o, []string{"ITM-99"}, gen)
	require.Error(t, err)
}
