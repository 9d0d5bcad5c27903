// Package contracts defines the shared domain types and tool-call contracts
// for the return-request decision core. All other packages depend on these
// types; this package depends on nothing but the standard library.
package contracts

// LoyaltyTier is a customer's loyalty program level.
type LoyaltyTier string

const (
	TierStandard LoyaltyTier = "Standard"
	TierSilver   LoyaltyTier = "Silver"
	TierGold     LoyaltyTier = "Gold"
	TierPlatinum LoyaltyTier = "Platinum"
)

// VIP reports whether the tier qualifies for the VIP-extended return policy.
// Silver deliberately does not qualify.
func (t LoyaltyTier) VIP() bool {
	return t == TierGold || t == TierPlatinum
}

// AccountStatus is a customer account state.
type AccountStatus string

const (
	AccountActive    AccountStatus = "Active"
	AccountSuspended AccountStatus = "Suspended"
	AccountClosed    AccountStatus = "Closed"
)

// OrderStatus is an order lifecycle state. Legal transitions are encoded in
// the lifecycle package; nothing else may mutate an order's status.
type OrderStatus string

const (
	OrderPending         OrderStatus = "Pending"
	OrderShipped         OrderStatus = "Shipped"
	OrderDelivered       OrderStatus = "Delivered"
	OrderReturnInitiated OrderStatus = "Return_Initiated"
	OrderReturned        OrderStatus = "Returned"
)

// RMAStatus is a return-authorization lifecycle state.
type RMAStatus string

const (
	RMAInitiated RMAStatus = "Initiated"
	RMALabelSent RMAStatus = "Label_Sent"
	RMAInTransit RMAStatus = "In_Transit"
	RMAReceived  RMAStatus = "Received"
	RMAInspected RMAStatus = "Inspected"
	RMAApproved  RMAStatus = "Approved"
	RMARejected  RMAStatus = "Rejected"
	RMARefunded  RMAStatus = "Refunded"
	RMAProcessed RMAStatus = "Processed"
)

// ProductCategory classifies order line items.
type ProductCategory string

const (
	CategoryClothing       ProductCategory = "Clothing"
	CategoryElectronics    ProductCategory = "Electronics"
	CategoryHomeGoods      ProductCategory = "Home Goods"
	CategorySpecialEdition ProductCategory = "Special Edition"
	CategoryFootwear       ProductCategory = "Footwear"
	CategoryAccessories    ProductCategory = "Accessories"
)

// PolicyCategory selects which return policy applies to a request.
type PolicyCategory string

const (
	PolicyGeneral     PolicyCategory = "General"
	PolicyElectronics PolicyCategory = "Electronics"
	PolicyClothing    PolicyCategory = "Clothing"
	PolicyFinalSale   PolicyCategory = "Final Sale"
	PolicyVIPExtended PolicyCategory = "VIP Extended"
)

// ReasonCode is the enumerated outcome of an eligibility evaluation.
type ReasonCode string

const (
	ReasonApproved      ReasonCode = "APPROVED"
	ReasonTimeExpired   ReasonCode = "TIME_EXP"
	ReasonItemExcluded  ReasonCode = "ITEM_EXCL"
	ReasonDataError     ReasonCode = "DATA_ERR"
	ReasonRiskManual    ReasonCode = "RISK_MANUAL"
	ReasonDamagedManual ReasonCode = "DAMAGED_MANUAL"
)

// EscalationPriority is the recommended urgency of a human hand-off.
type EscalationPriority string

const (
	PriorityLow    EscalationPriority = "LOW"
	PriorityMedium EscalationPriority = "MEDIUM"
	PriorityHigh   EscalationPriority = "HIGH"
	PriorityUrgent EscalationPriority = "URGENT"
)

// ActorRole identifies who produced an audit entry.
type ActorRole string

const (
	ActorCaller ActorRole = "caller"
	ActorSystem ActorRole = "system"
)

// AuditEntryType categorizes audit entries.
type AuditEntryType string

const (
	AuditRequest    AuditEntryType = "request"
	AuditStepResult AuditEntryType = "step-result"
	AuditEscalation AuditEntryType = "escalation"
)
