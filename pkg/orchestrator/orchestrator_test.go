package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/returns-core/pkg/audit"
	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
	"github.com/Mindburn-Labs/returns-core/pkg/eligibility"
	"github.com/Mindburn-Labs/returns-core/pkg/policy"
	"github.com/Mindburn-Labs/returns-core/pkg/store"
)

var testNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	orch  *Orchestrator
	store *store.MemoryStore
	audit *audit.MemoryLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	repo, err := policy.NewRepository()
	require.NoError(t, err)
	require.NoError(t, repo.Load([]contracts.ReturnPolicy{
		{PolicyID: "POL-GEN", Name: "General Return Policy", Category: contracts.PolicyGeneral, WindowDays: 30, Active: true},
		{PolicyID: "POL-ELEC", Name: "Electronics Return Policy", Category: contracts.PolicyElectronics, WindowDays: 90, RestockingFeeBps: 1500, Active: true},
		{PolicyID: "POL-VIP", Name: "VIP Extended Policy", Category: contracts.PolicyVIPExtended, WindowDays: 120, Active: true},
	}))

	st := store.NewMemoryStore()
	log := audit.NewMemoryLog()

	require.NoError(t, st.PutCustomer(ctx, &contracts.Customer{
		Email: "jane@example.com", FirstName: "Jane", LoyaltyTier: contracts.TierStandard,
	}))
	require.NoError(t, st.PutCustomer(ctx, &contracts.Customer{
		Email: "rick@example.com", FirstName: "Rick", LoyaltyTier: contracts.TierStandard, FraudFlag: true,
	}))

	orders := []*contracts.Order{
		{
			OrderNumber: "ORD-1001", CustomerEmail: "jane@example.com",
			OrderDate: testNow.AddDate(0, 0, -15), Status: contracts.OrderDelivered,
			Items: []contracts.OrderItem{
				{ItemID: "ITM-1", ProductName: "Wool Sweater", Category: contracts.CategoryClothing, Quantity: 2, UnitPriceCents: 4999, Returnable: true},
				{ItemID: "ITM-2", ProductName: "Clearance Scarf", Category: contracts.CategoryClothing, Quantity: 1, UnitPriceCents: 1299, Returnable: true, FinalSale: true},
			},
		},
		{
			OrderNumber: "ORD-1002", CustomerEmail: "jane@example.com",
			OrderDate: testNow.AddDate(0, 0, -185), Status: contracts.OrderDelivered,
			Items: []contracts.OrderItem{
				{ItemID: "ITM-1", ProductName: "Desk Lamp", Category: contracts.CategoryHomeGoods, Quantity: 1, UnitPriceCents: 3499, Returnable: true},
			},
		},
		{
			OrderNumber: "ORD-2001", CustomerEmail: "rick@example.com",
			OrderDate: testNow.AddDate(0, 0, -5), Status: contracts.OrderDelivered,
			Items: []contracts.OrderItem{
				{ItemID: "ITM-1", ProductName: "Headphones", Category: contracts.CategoryElectronics, Quantity: 1, UnitPriceCents: 19999, Returnable: true},
			},
		},
	}
	for _, o := range orders {
		require.NoError(t, st.PutOrder(ctx, o))
	}

	ev := eligibility.NewEvaluator(repo).WithClock(func() time.Time { return testNow })
	orch, err := New(Config{
		Store:     st,
		AuditLog:  log,
		Policies:  repo,
		Evaluator: ev,
		Seed:      1,
	})
	require.NoError(t, err)
	return &fixture{orch: orch, store: st, audit: log}
}

func step(t *testing.T, f *fixture, sessionID string, op contracts.StepOp, args any) *contracts.StepResult {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	res, err := f.orch.Execute(context.Background(), contracts.StepRequest{
		SessionID: sessionID, Op: op, Args: raw,
	})
	require.NoError(t, err)
	return res
}

func TestFullReturnFlow(t *testing.T) {
	f := newFixture(t)
	sess := "sess-flow"

	res := step(t, f, sess, contracts.OpLookupOrder, contracts.LookupOrderArgs{OrderNumber: "ORD-1001"})
	require.True(t, res.OK)
	require.NotNil(t, res.Order)
	assert.Equal(t, "jane@example.com", res.Order.CustomerEmail)

	res = step(t, f, sess, contracts.OpCheckEligibility, contracts.CheckEligibilityArgs{
		OrderNumber: "ORD-1001", ItemIDs: []string{"ITM-1"}, ReturnReason: "too small",
	})
	require.True(t, res.OK)
	require.NotNil(t, res.Verdict)
	assert.Equal(t, contracts.ReasonApproved, res.Verdict.ReasonCode)
	assert.Equal(t, 15, res.Verdict.ElapsedDays)

	res = step(t, f, sess, contracts.OpCreateRMA, contracts.CreateRMAArgs{
		OrderNumber: "ORD-1001", ItemIDs: []string{"ITM-1"}, ReturnReason: "too small",
		VerdictCode: contracts.ReasonApproved,
	})
	require.True(t, res.OK)
	require.NotNil(t, res.RMA)
	assert.Regexp(t, `^RMA-\d+-[A-Z]{4}$`, res.RMA.RMANumber)
	assert.Equal(t, int64(2*4999), res.RMA.RefundCents, "refund is price times quantity with no restocking fee")
	rmaNumber := res.RMA.RMANumber

	// RMA creation flips the order atomically.
	order, err := f.store.GetOrder(context.Background(), "ORD-1001")
	require.NoError(t, err)
	assert.Equal(t, contracts.OrderReturnInitiated, order.Status)

	res = step(t, f, sess, contracts.OpIssueLabel, contracts.IssueLabelArgs{RMANumber: rmaNumber})
	require.True(t, res.OK)
	require.NotNil(t, res.Label)
	assert.Regexp(t, `^(USPS|UPS|FEDEX)-\d{12}$`, res.Label.TrackingNumber)
	assert.Equal(t, contracts.RMALabelSent, res.RMA.Status)

	res = step(t, f, sess, contracts.OpNotifyCustomer, contracts.NotifyCustomerArgs{
		Recipient: "jane@example.com", Scenario: "return_approved",
		Context: map[string]any{"customer_name": "Jane", "order_number": "ORD-1001", "rma_number": rmaNumber},
	})
	require.True(t, res.OK)
	require.NotNil(t, res.Delivery)
	assert.Regexp(t, `^MSG-\d+-\d{4}$`, res.Delivery.MessageID)

	// One audit entry per attempted step, no escalation.
	entries, err := f.audit.Session(context.Background(), sess)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
	for _, e := range entries {
		assert.Equal(t, contracts.AuditStepResult, e.Type)
	}
	require.NoError(t, f.audit.VerifyChain(context.Background(), sess))
}

func TestExpiredWindowBlocksAuthorization(t *testing.T) {
	f := newFixture(t)
	sess := "sess-expired"

	res := step(t, f, sess, contracts.OpCheckEligibility, contracts.CheckEligibilityArgs{
		OrderNumber: "ORD-1002", ItemIDs: []string{"ITM-1"}, ReturnReason: "changed my mind",
	})
	require.True(t, res.OK)
	assert.Equal(t, contracts.ReasonTimeExpired, res.Verdict.ReasonCode)

	res = step(t, f, sess, contracts.OpCreateRMA, contracts.CreateRMAArgs{
		OrderNumber: "ORD-1002", ItemIDs: []string{"ITM-1"}, ReturnReason: "changed my mind",
		VerdictCode: contracts.ReasonApproved,
	})
	require.False(t, res.OK)
	assert.Equal(t, contracts.FailurePrecondition, res.Failure.Kind)
	assert.Equal(t, contracts.CodeVerdictRequired, res.Failure.Code)
	assert.Nil(t, res.RMA)
}

func TestDamageReasonAutoEscalatesHigh(t *testing.T) {
	f := newFixture(t)
	sess := "sess-damage"

	res := step(t, f, sess, contracts.OpCheckEligibility, contracts.CheckEligibilityArgs{
		OrderNumber: "ORD-1002", ItemIDs: []string{"ITM-1"}, ReturnReason: "arrived shattered",
	})
	require.True(t, res.OK)
	assert.Equal(t, contracts.ReasonDamagedManual, res.Verdict.ReasonCode, "damage pre-empts the expired window")
	require.NotNil(t, res.AutoEscalate)
	assert.Equal(t, contracts.PriorityHigh, res.AutoEscalate.Priority)

	// The escalated session accepts no further steps.
	res = step(t, f, sess, contracts.OpLookupOrder, contracts.LookupOrderArgs{OrderNumber: "ORD-1002"})
	require.False(t, res.OK)
	assert.Equal(t, contracts.CodeSessionEscalated, res.Failure.Code)

	entries, err := f.audit.Session(context.Background(), sess)
	require.NoError(t, err)
	// check + escalation + rejected lookup.
	require.Len(t, entries, 3)
	assert.Equal(t, contracts.AuditEscalation, entries[1].Type)
}

func TestFraudFlagAutoEscalatesUrgent(t *testing.T) {
	f := newFixture(t)
	sess := "sess-fraud"

	res := step(t, f, sess, contracts.OpCheckEligibility, contracts.CheckEligibilityArgs{
		OrderNumber: "ORD-2001", ItemIDs: []string{"ITM-1"}, ReturnReason: "no longer needed",
	})
	require.True(t, res.OK)
	assert.Equal(t, contracts.ReasonRiskManual, res.Verdict.ReasonCode)
	require.NotNil(t, res.AutoEscalate)
	assert.Equal(t, contracts.PriorityUrgent, res.AutoEscalate.Priority)
}

func TestMixedSelectionExcludedAsWhole(t *testing.T) {
	f := newFixture(t)

	res := step(t, f, "sess-mixed", contracts.OpCheckEligibility, contracts.CheckEligibilityArgs{
		OrderNumber: "ORD-1001", ItemIDs: []string{"ITM-1", "ITM-2"}, ReturnReason: "wrong color",
	})
	require.True(t, res.OK)
	assert.Equal(t, contracts.ReasonItemExcluded, res.Verdict.ReasonCode)
	assert.Nil(t, res.AutoEscalate)
}

func TestCreateRMAWithoutVerdict(t *testing.T) {
	f := newFixture(t)

	res := step(t, f, "sess-noverdict", contracts.OpCreateRMA, contracts.CreateRMAArgs{
		OrderNumber: "ORD-1001", ItemIDs: []string{"ITM-1"}, ReturnReason: "too small",
		VerdictCode: contracts.ReasonApproved,
	})
	require.False(t, res.OK)
	assert.Equal(t, contracts.CodeVerdictRequired, res.Failure.Code)

	_, err := f.store.GetRMA(context.Background(), "any")
	assert.Error(t, err, "no RMA row may exist")
}

func TestCreateRMAItemMismatch(t *testing.T) {
	f := newFixture(t)
	sess := "sess-mismatch"

	step(t, f, sess, contracts.OpCheckEligibility, contracts.CheckEligibilityArgs{
		OrderNumber: "ORD-1001", ItemIDs: []string{"ITM-1"}, ReturnReason: "too small",
	})
	res := step(t, f, sess, contracts.OpCreateRMA, contracts.CreateRMAArgs{
		OrderNumber: "ORD-1001", ItemIDs: []string{"ITM-1", "ITM-2"}, ReturnReason: "too small",
		VerdictCode: contracts.ReasonApproved,
	})
	require.False(t, res.OK)
	assert.Equal(t, contracts.CodeVerdictRequired, res.Failure.Code)
}

func TestIssueLabelWrongState(t *testing.T) {
	f := newFixture(t)
	sess := "sess-label"

	step(t, f, sess, contracts.OpCheckEligibility, contracts.CheckEligibilityArgs{
		OrderNumber: "ORD-1001", ItemIDs: []string{"ITM-1"}, ReturnReason: "too small",
	})
	created := step(t, f, sess, contracts.OpCreateRMA, contracts.CreateRMAArgs{
		OrderNumber: "ORD-1001", ItemIDs: []string{"ITM-1"}, ReturnReason: "too small",
		VerdictCode: contracts.ReasonApproved,
	})
	require.True(t, created.OK)

	first := step(t, f, sess, contracts.OpIssueLabel, contracts.IssueLabelArgs{RMANumber: created.RMA.RMANumber})
	require.True(t, first.OK)

	second := step(t, f, sess, contracts.OpIssueLabel, contracts.IssueLabelArgs{RMANumber: created.RMA.RMANumber})
	require.False(t, second.OK)
	assert.Equal(t, contracts.FailurePrecondition, second.Failure.Kind)
	assert.Equal(t, contracts.CodeWrongRMAState, second.Failure.Code)
}

func TestIssueLabelUnknownRMA(t *testing.T) {
	f := newFixture(t)

	res := step(t, f, "sess-norma", contracts.OpIssueLabel, contracts.IssueLabelArgs{RMANumber: "RMA-0-XXXX"})
	require.False(t, res.OK)
	assert.Equal(t, contracts.FailureData, res.Failure.Kind)
	assert.Equal(t, contracts.CodeRMANotFound, res.Failure.Code)
}

func TestSchemaRejectsBadArgs(t *testing.T) {
	f := newFixture(t)

	res := step(t, f, "sess-args", contracts.OpCheckEligibility, map[string]any{
		"order_number":  "ORD-1001",
		"item_ids":      []string{},
		"return_reason": "x",
	})
	require.False(t, res.OK)
	assert.Equal(t, contracts.CodeInvalidArgs, res.Failure.Code)

	res = step(t, f, "sess-args", contracts.OpLookupOrder, map[string]any{})
	require.False(t, res.OK)
	assert.Equal(t, contracts.CodeInvalidArgs, res.Failure.Code)
}

func TestUnknownOperation(t *testing.T) {
	f := newFixture(t)

	res := step(t, f, "sess-op", contracts.StepOp("drop_tables"), map[string]any{"x": 1})
	require.False(t, res.OK)
	assert.Equal(t, contracts.CodeInvalidArgs, res.Failure.Code)
}

func TestStepBudgetForcesEscalation(t *testing.T) {
	f := newFixture(t)
	sess := "sess-budget"

	for i := 0; i < DefaultMaxSteps; i++ {
		res := step(t, f, sess, contracts.OpLookupOrder, contracts.LookupOrderArgs{OrderNumber: "ORD-1001"})
		require.True(t, res.OK)
	}

	res := step(t, f, sess, contracts.OpLookupOrder, contracts.LookupOrderArgs{OrderNumber: "ORD-1001"})
	require.False(t, res.OK)
	assert.Equal(t, contracts.FailureFatal, res.Failure.Kind)
	assert.Equal(t, contracts.CodeStepBudgetExceeded, res.Failure.Code)
	require.NotNil(t, res.AutoEscalate)

	entries, err := f.audit.Session(context.Background(), sess)
	require.NoError(t, err)
	// 16 attempted steps plus the terminal escalation entry.
	assert.Len(t, entries, DefaultMaxSteps+2)
	assert.Equal(t, contracts.AuditEscalation, entries[len(entries)-1].Type)
}

func TestRepeatedFailuresForceEscalation(t *testing.T) {
	f := newFixture(t)
	sess := "sess-failures"

	for i := 0; i < 2; i++ {
		res := step(t, f, sess, contracts.OpLookupOrder, contracts.LookupOrderArgs{OrderNumber: "ORD-9999"})
		require.False(t, res.OK)
		assert.Nil(t, res.AutoEscalate)
	}

	res := step(t, f, sess, contracts.OpLookupOrder, contracts.LookupOrderArgs{OrderNumber: "ORD-9999"})
	require.False(t, res.OK)
	require.NotNil(t, res.AutoEscalate, "third cumulative failure escalates")

	next := step(t, f, sess, contracts.OpLookupOrder, contracts.LookupOrderArgs{OrderNumber: "ORD-1001"})
	assert.Equal(t, contracts.CodeSessionEscalated, next.Failure.Code)
}

func TestLookupByEmail(t *testing.T) {
	f := newFixture(t)

	res := step(t, f, "sess-email", contracts.OpLookupOrder, contracts.LookupOrderArgs{Email: "rick@example.com"})
	require.True(t, res.OK)
	assert.Equal(t, "ORD-2001", res.Order.OrderNumber)

	res = step(t, f, "sess-email", contracts.OpLookupOrder, contracts.LookupOrderArgs{Email: "jane@example.com"})
	require.False(t, res.OK)
	assert.Equal(t, contracts.CodeAmbiguousLookup, res.Failure.Code)
	assert.Len(t, res.Orders, 2, "candidates ride along for disambiguation")

	res = step(t, f, "sess-email", contracts.OpLookupOrder, contracts.LookupOrderArgs{Email: "ghost@example.com"})
	require.False(t, res.OK)
	assert.Equal(t, contracts.CodeOrderNotFound, res.Failure.Code)
}

func TestNotifyUnknownScenario(t *testing.T) {
	f := newFixture(t)

	res := step(t, f, "sess-notify", contracts.OpNotifyCustomer, contracts.NotifyCustomerArgs{
		Recipient: "jane@example.com", Scenario: "order_shipped",
	})
	require.False(t, res.OK)
	assert.Equal(t, contracts.FailureData, res.Failure.Kind)
	assert.Equal(t, contracts.CodeUnknownScenario, res.Failure.Code)
}

func TestExplicitEscalateStep(t *testing.T) {
	f := newFixture(t)
	sess := "sess-explicit"

	step(t, f, sess, contracts.OpLookupOrder, contracts.LookupOrderArgs{OrderNumber: "ORD-1001"})
	res := step(t, f, sess, contracts.OpEscalate, contracts.EscalateArgs{Reason: "customer asked for a person"})
	require.True(t, res.OK)
	require.NotNil(t, res.Ticket)
	assert.Equal(t, contracts.PriorityMedium, res.Ticket.Priority)
	assert.Contains(t, res.Ticket.Summary, "STEPS EXECUTED")

	entries, err := f.audit.Session(context.Background(), sess)
	require.NoError(t, err)
	// lookup + escalation entry (from the handler) + the escalate step's
	// own step-result entry.
	assert.Len(t, entries, 3)
}

func TestConcurrentSessionsIndependent(t *testing.T) {
	f := newFixture(t)

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		sess := string(rune('a' + i))
		go func(sess string) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 5; j++ {
				step(t, f, "sess-conc-"+sess, contracts.OpLookupOrder, contracts.LookupOrderArgs{OrderNumber: "ORD-1001"})
			}
		}(sess)
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	for i := 0; i < 4; i++ {
		sess := "sess-conc-" + string(rune('a'+i))
		entries, err := f.audit.Session(context.Background(), sess)
		require.NoError(t, err)
		assert.Len(t, entries, 5)
		require.NoError(t, f.audit.VerifyChain(context.Background(), sess))
	}
}
