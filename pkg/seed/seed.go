// Package seed loads deterministic development data: the standard policy
// set, a spread of customers across loyalty tiers and risk profiles, and
// delivered orders old and young enough to exercise every eligibility
// outcome.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
	"github.com/Mindburn-Labs/returns-core/pkg/store"
)

// Policies returns the built-in return policy set.
func Policies() []contracts.ReturnPolicy {
	return []contracts.ReturnPolicy{
		{
			PolicyID:   "POL-GENERAL",
			Name:       "General Return Policy",
			Category:   contracts.PolicyGeneral,
			WindowDays: 30,
			Active:     true,
		},
		{
			PolicyID:          "POL-ELECTRONICS",
			Name:              "Electronics Return Policy",
			Category:          contracts.PolicyElectronics,
			WindowDays:        90,
			RequiresPackaging: true,
			RestockingFeeBps:  1500,
			Active:            true,
		},
		{
			PolicyID:   "POL-CLOTHING",
			Name:       "Clothing Return Policy",
			Category:   contracts.PolicyClothing,
			WindowDays: 30,
			Active:     true,
		},
		{
			PolicyID:   "POL-FINAL-SALE",
			Name:       "Final Sale - No Returns",
			Category:   contracts.PolicyFinalSale,
			WindowDays: 0,
			Active:     true,
		},
		{
			PolicyID:   "POL-VIP-EXTENDED",
			Name:       "VIP Extended Return Policy",
			Category:   contracts.PolicyVIPExtended,
			WindowDays: 120,
			Active:     true,
		},
	}
}

// Customers returns the development customer set: standard accounts, VIP
// tiers, a fraud-flagged account, and a high-frequency returner.
func Customers() []contracts.Customer {
	return []contracts.Customer{
		{Email: "john.doe@example.com", FirstName: "John", LastName: "Doe", Phone: "555-0101", LoyaltyTier: contracts.TierStandard},
		{Email: "jane.smith@example.com", FirstName: "Jane", LastName: "Smith", Phone: "555-0102", LoyaltyTier: contracts.TierStandard, ReturnCount30: 1},
		{Email: "david.miller@example.com", FirstName: "David", LastName: "Miller", Phone: "555-0201", LoyaltyTier: contracts.TierSilver, ReturnCount30: 1},
		{Email: "grace.gold@example.com", FirstName: "Grace", LastName: "Gold", Phone: "555-0301", LoyaltyTier: contracts.TierGold},
		{Email: "paula.platinum@example.com", FirstName: "Paula", LastName: "Platinum", Phone: "555-0401", LoyaltyTier: contracts.TierPlatinum},
		{Email: "nathan.fraud@example.com", FirstName: "Nathan", LastName: "Fraud", Phone: "555-0501", LoyaltyTier: contracts.TierStandard, FraudFlag: true, ReturnCount30: 5},
		{Email: "peter.returns@example.com", FirstName: "Peter", LastName: "Returns", Phone: "555-0601", LoyaltyTier: contracts.TierStandard, ReturnCount30: 4},
		{Email: "rachel.often@example.com", FirstName: "Rachel", LastName: "Often", Phone: "555-0603", LoyaltyTier: contracts.TierGold, ReturnCount30: 3},
	}
}

// Orders returns delivered orders spread across ages, categories, and
// final-sale flags, dated relative to now.
func Orders(now time.Time) []contracts.Order {
	return []contracts.Order{
		order("ORD-10001", "john.doe@example.com", now, 10,
			item("ITM-1", "Red T-Shirt", "CLO-001", contracts.CategoryClothing, 1, 2999, false),
			item("ITM-2", "Blue Jeans", "CLO-002", contracts.CategoryClothing, 1, 5999, false),
		),
		order("ORD-10002", "jane.smith@example.com", now, 45,
			item("ITM-1", "Wireless Headphones", "ELE-002", contracts.CategoryElectronics, 1, 14999, false),
		),
		order("ORD-10003", "jane.smith@example.com", now, 185,
			item("ITM-1", "Coffee Maker", "HOME-003", contracts.CategoryHomeGoods, 1, 9999, false),
		),
		order("ORD-10004", "david.miller@example.com", now, 25,
			item("ITM-1", "Black Jacket", "CLO-003", contracts.CategoryClothing, 1, 8999, false),
			item("ITM-2", "Limited Edition Vinyl", "SPE-001", contracts.CategorySpecialEdition, 1, 14999, true),
		),
		order("ORD-10005", "grace.gold@example.com", now, 100,
			item("ITM-1", "Smart Watch", "ELE-001", contracts.CategoryElectronics, 1, 29999, false),
		),
		order("ORD-10006", "paula.platinum@example.com", now, 60,
			item("ITM-1", "Hiking Boots", "FOO-002", contracts.CategoryFootwear, 1, 12999, false),
		),
		order("ORD-10007", "nathan.fraud@example.com", now, 5,
			item("ITM-1", "Laptop", "ELE-003", contracts.CategoryElectronics, 1, 99999, false),
		),
		order("ORD-10008", "peter.returns@example.com", now, 3,
			item("ITM-1", "Toaster", "HOME-001", contracts.CategoryHomeGoods, 2, 4999, false),
		),
	}
}

// Apply writes the full seed set. It is idempotent for customers and
// policies (upserts) but expects an empty order table; callers gate it
// with Store.CountOrders.
func Apply(ctx context.Context, st store.Store, now time.Time) error {
	for _, p := range Policies() {
		if err := st.PutPolicy(ctx, p); err != nil {
			return fmt.Errorf("seed policy %s: %w", p.PolicyID, err)
		}
	}
	for _, c := range Customers() {
		customer := c
		if err := st.PutCustomer(ctx, &customer); err != nil {
			return fmt.Errorf("seed customer %s: %w", c.Email, err)
		}
	}
	for _, o := range Orders(now) {
		ord := o
		if err := st.PutOrder(ctx, &ord); err != nil {
			return fmt.Errorf("seed order %s: %w", o.OrderNumber, err)
		}
	}
	return nil
}

func order(number, email string, now time.Time, daysAgo int, items ...contracts.OrderItem) contracts.Order {
	var total int64
	for _, it := range items {
		total += it.UnitPriceCents * int64(it.Quantity)
	}
	return contracts.Order{
		OrderNumber:      number,
		CustomerEmail:    email,
		OrderDate:        now.AddDate(0, 0, -daysAgo),
		TotalAmountCents: total,
		Status:           contracts.OrderDelivered,
		ShippingAddress:  "123 Main St, City, ST 12345",
		Items:            items,
	}
}

func item(id, name, sku string, cat contracts.ProductCategory, qty int, priceCents int64, finalSale bool) contracts.OrderItem {
	return contracts.OrderItem{
		ItemID:         id,
		ProductName:    name,
		Category:       cat,
		SKU:            sku,
		Quantity:       qty,
		UnitPriceCents: priceCents,
		FinalSale:      finalSale,
		Returnable:     !finalSale,
	}
}
