package contracts

import "time"

// Customer is read-only to the core; accounts are created and maintained by
// an external system.
type Customer struct {
	Email         string        `json:"email"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	Phone         string        `json:"phone,omitempty"`
	LoyaltyTier   LoyaltyTier   `json:"loyalty_tier"`
	AccountStatus AccountStatus `json:"account_status"`
	FraudFlag     bool          `json:"fraud_flag"`
	ReturnCount30 int           `json:"return_count_30d"`
}

// OrderItem is a single line on an order. Immutable after order creation.
type OrderItem struct {
	ItemID      string          `json:"item_id"`
	ProductName string          `json:"product_name"`
	Category    ProductCategory `json:"product_category,omitempty"`
	SKU         string          `json:"sku,omitempty"`
	Quantity    int             `json:"quantity"`
	// UnitPriceCents is the per-unit price in cents. Monetary amounts are
	// integer cents throughout the core; callers render currency.
	UnitPriceCents int64 `json:"unit_price_cents"`
	FinalSale      bool  `json:"is_final_sale"`
	Returnable     bool  `json:"is_returnable"`
}

// Order is keyed by its business order number everywhere; internal row
// identity never crosses a package boundary.
type Order struct {
	OrderNumber      string      `json:"order_number"`
	CustomerEmail    string      `json:"customer_email"`
	OrderDate        time.Time   `json:"order_date"`
	TotalAmountCents int64       `json:"total_amount_cents"`
	Status           OrderStatus `json:"status"`
	ShippingAddress  string      `json:"shipping_address,omitempty"`
	Items            []OrderItem `json:"items"`

	// Customer is populated on reads that join the owning customer.
	Customer *Customer `json:"customer,omitempty"`
}

// Item returns the line item with the given id, or nil.
func (o *Order) Item(itemID string) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ItemID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

// ReturnPolicy is read-only configuration. Multiple policies may apply to a
// request; selection is by priority, never by merging.
type ReturnPolicy struct {
	PolicyID          string         `json:"policy_id" yaml:"policy_id"`
	Name              string         `json:"name" yaml:"name"`
	Category          PolicyCategory `json:"category" yaml:"category"`
	WindowDays        int            `json:"return_window_days" yaml:"return_window_days"`
	RequiresPackaging bool           `json:"requires_original_packaging" yaml:"requires_original_packaging"`
	// RestockingFeeBps is the restocking fee in basis points (1500 = 15%).
	RestockingFeeBps int64 `json:"restocking_fee_bps" yaml:"restocking_fee_bps"`
	// Condition is an optional CEL expression gating applicability.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Active    bool   `json:"is_active" yaml:"is_active"`
}

// RMA is a return authorization governing one return transaction for a
// subset of an order's items.
type RMA struct {
	RMANumber        string             `json:"rma_number"`
	OrderNumber      string             `json:"order_number"`
	CustomerEmail    string             `json:"customer_email"`
	ItemIDs          []string           `json:"item_ids"`
	ReturnReason     string             `json:"return_reason"`
	ReasonCode       ReasonCode         `json:"reason_code"`
	Status           RMAStatus          `json:"status"`
	RefundCents      int64              `json:"refund_cents"`
	LabelURL         string             `json:"label_url,omitempty"`
	TrackingNumber   string             `json:"tracking_number,omitempty"`
	Escalated        bool               `json:"escalated"`
	EscalationReason string             `json:"escalation_reason,omitempty"`
	Priority         EscalationPriority `json:"priority,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Verdict is the eligibility evaluator's output. It is a plain value; the
// evaluator never returns an error for expected outcomes.
type Verdict struct {
	Eligible     bool       `json:"eligible"`
	ReasonCode   ReasonCode `json:"reason_code"`
	PolicyID     string     `json:"policy_id,omitempty"`
	PolicyName   string     `json:"policy_applied"`
	WindowDays   int        `json:"window_days,omitempty"`
	ElapsedDays  int        `json:"days_since_order"`
	ManualReview bool       `json:"requires_manual_review"`
	Detail       string     `json:"detail,omitempty"`
}
