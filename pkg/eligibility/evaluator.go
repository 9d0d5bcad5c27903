// Package eligibility implements the return-eligibility evaluator: an
// ordered decision sequence over an order snapshot, the selected line
// items, the stated reason, and the customer's risk attributes. The first
// matching rule wins and no later rule runs. Ambiguity routes to manual
// review, never to auto-approval.
package eligibility

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
	"github.com/Mindburn-Labs/returns-core/pkg/policy"
)

// DefaultRiskReturnThreshold is the rolling 30-day return count at which
// a customer is routed to manual review.
const DefaultRiskReturnThreshold = 3

// damageTerms is the fixed vocabulary that forces manual review when it
// appears anywhere in the stated reason, regardless of any other rule.
var damageTerms = []string{
	"damaged",
	"defective",
	"broken",
	"shattered",
	"torn",
	"cracked",
	"ripped",
	"faulty",
	"malfunctioning",
}

// Evaluator resolves verdicts against a policy repository. It performs no
// writes and no I/O of its own; callers hand it fully loaded snapshots.
type Evaluator struct {
	policies      *policy.Repository
	riskThreshold int
	clock         func() time.Time
}

// NewEvaluator builds an evaluator over the given policy repository with
// the default risk threshold.
func NewEvaluator(policies *policy.Repository) *Evaluator {
	return &Evaluator{
		policies:      policies,
		riskThreshold: DefaultRiskReturnThreshold,
		clock:         time.Now,
	}
}

// WithRiskThreshold overrides the 30-day return count threshold.
func (e *Evaluator) WithRiskThreshold(n int) *Evaluator {
	if n > 0 {
		e.riskThreshold = n
	}
	return e
}

// WithClock overrides the time source for deterministic testing.
func (e *Evaluator) WithClock(clock func() time.Time) *Evaluator {
	e.clock = clock
	return e
}

// Evaluate runs the ordered decision sequence. It never returns an error:
// unresolvable input is itself a verdict (DATA_ERR).
func (e *Evaluator) Evaluate(order *contracts.Order, itemIDs []string, reason string, customer *contracts.Customer) contracts.Verdict {
	if order == nil {
		return dataErr("order not found")
	}
	if customer == nil {
		return dataErr("customer record missing for order " + order.OrderNumber)
	}
	if len(itemIDs) == 0 {
		return dataErr("no items selected")
	}

	items := make([]contracts.OrderItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		item := order.Item(id)
		if item == nil {
			return dataErr(fmt.Sprintf("item %s does not belong to order %s", id, order.OrderNumber))
		}
		items = append(items, *item)
	}

	elapsed := elapsedDays(order.OrderDate, e.clock())

	if term, ok := matchDamage(reason); ok {
		return contracts.Verdict{
			ReasonCode:   contracts.ReasonDamagedManual,
			ElapsedDays:  elapsed,
			ManualReview: true,
			Detail:       fmt.Sprintf("reason mentions %q; inspection required before refund", term),
		}
	}

	if customer.FraudFlag {
		return contracts.Verdict{
			ReasonCode:   contracts.ReasonRiskManual,
			ElapsedDays:  elapsed,
			ManualReview: true,
			Detail:       "account flagged for fraud review",
		}
	}

	if customer.ReturnCount30 >= e.riskThreshold {
		return contracts.Verdict{
			ReasonCode:   contracts.ReasonRiskManual,
			ElapsedDays:  elapsed,
			ManualReview: true,
			Detail:       fmt.Sprintf("%d returns in the last 30 days", customer.ReturnCount30),
		}
	}

	for _, item := range items {
		if !item.Returnable || item.FinalSale {
			return contracts.Verdict{
				ReasonCode:  contracts.ReasonItemExcluded,
				ElapsedDays: elapsed,
				Detail:      fmt.Sprintf("item %s (%s) is not returnable", item.ItemID, item.ProductName),
			}
		}
	}

	matched, ok := e.policies.Match(policy.MatchInput{
		Tier:        customer.LoyaltyTier,
		Categories:  categories(items),
		ElapsedDays: elapsed,
	})
	if !ok {
		return dataErr("no active return policy applies")
	}

	if elapsed > matched.WindowDays {
		return contracts.Verdict{
			ReasonCode:  contracts.ReasonTimeExpired,
			PolicyID:    matched.PolicyID,
			PolicyName:  matched.Name,
			WindowDays:  matched.WindowDays,
			ElapsedDays: elapsed,
			Detail:      fmt.Sprintf("%d days elapsed exceeds the %d-day window", elapsed, matched.WindowDays),
		}
	}

	return contracts.Verdict{
		Eligible:    true,
		ReasonCode:  contracts.ReasonApproved,
		PolicyID:    matched.PolicyID,
		PolicyName:  matched.Name,
		WindowDays:  matched.WindowDays,
		ElapsedDays: elapsed,
	}
}

// Refund computes the refund for the selected items under the matched
// policy: sum of unit price times quantity, minus the policy's restocking
// fee. This is the only place the amount is derived.
func Refund(order *contracts.Order, itemIDs []string, p *contracts.ReturnPolicy) (int64, error) {
	var subtotal int64
	for _, id := range itemIDs {
		item := order.Item(id)
		if item == nil {
			return 0, fmt.Errorf("item %s does not belong to order %s", id, order.OrderNumber)
		}
		subtotal += item.UnitPriceCents * int64(item.Quantity)
	}
	if p != nil && p.RestockingFeeBps > 0 {
		subtotal -= subtotal * int64(p.RestockingFeeBps) / 10000
	}
	return subtotal, nil
}

// elapsedDays counts whole calendar days from the order date, which is
// the window origin (never the delivery date).
func elapsedDays(orderDate, now time.Time) int {
	d := int(now.Sub(orderDate).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func matchDamage(reason string) (string, bool) {
	lowered := strings.ToLower(reason)
	for _, term := range damageTerms {
		if strings.Contains(lowered, term) {
			return term, true
		}
	}
	return "", false
}

func categories(items []contracts.OrderItem) []contracts.ProductCategory {
	out := make([]contracts.ProductCategory, 0, len(items))
	seen := make(map[contracts.ProductCategory]bool, len(items))
	for _, item := range items {
		if !seen[item.Category] {
			seen[item.Category] = true
			out = append(out, item.Category)
		}
	}
	return out
}

func dataErr(detail string) contracts.Verdict {
	return contracts.Verdict{
		ReasonCode: contracts.ReasonDataError,
		Detail:     detail,
	}
}
