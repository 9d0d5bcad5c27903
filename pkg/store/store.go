// Package store provides persistent records for customers, orders, line
// items, return policies and return authorizations.
//
// Every operation is keyed by a stable business identifier (order number,
// RMA number, customer email); internal row identity never crosses this
// package's boundary. Writes that touch more than one entity — RMA creation
// together with the order status change, escalation flag together with the
// escalation reason — commit in a single transaction or not at all.
package store

import (
	"context"
	"errors"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrRMANotFound      = errors.New("rma not found")
	ErrDuplicateOrder   = errors.New("order already exists")
	ErrDuplicateRMA     = errors.New("rma already exists")
)

// Store is the repository interface the core depends on. Two durable
// implementations (SQLite, Postgres) and one in-memory implementation
// honor the same transactional contract.
type Store interface {
	// GetOrder returns the order with its items and owning customer.
	GetOrder(ctx context.Context, orderNumber string) (*contracts.Order, error)

	// ListOrdersByEmail returns up to limit most recent orders for a
	// customer, newest first, each with items and customer attached.
	ListOrdersByEmail(ctx context.Context, email string, limit int) ([]contracts.Order, error)

	GetCustomer(ctx context.Context, email string) (*contracts.Customer, error)
	GetRMA(ctx context.Context, rmaNumber string) (*contracts.RMA, error)
	ListPolicies(ctx context.Context) ([]contracts.ReturnPolicy, error)

	// CountOrders supports seed-if-empty startup.
	CountOrders(ctx context.Context) (int, error)

	// Seeding/administrative writes. PutOrder stores the order and its
	// items; it does not go through the lifecycle machine because it
	// records externally-created history, not a transition.
	PutCustomer(ctx context.Context, c *contracts.Customer) error
	PutOrder(ctx context.Context, o *contracts.Order) error
	PutPolicy(ctx context.Context, p contracts.ReturnPolicy) error

	// CreateRMA inserts the authorization and moves the owning order from
	// Delivered to Return_Initiated as one atomic pair. The order row and
	// the RMA row commit together or neither commits.
	CreateRMA(ctx context.Context, rma *contracts.RMA) error

	// TransitionRMA advances the authorization along its legal chain.
	TransitionRMA(ctx context.Context, rmaNumber string, to contracts.RMAStatus) (*contracts.RMA, error)

	// AttachLabel records tracking number and label reference and moves
	// the RMA from Initiated to Label_Sent atomically.
	AttachLabel(ctx context.Context, rmaNumber, tracking, labelURL string) (*contracts.RMA, error)

	// MarkRMAEscalated sets the monotonic escalation flag with its reason.
	// The flag is never cleared by this interface.
	MarkRMAEscalated(ctx context.Context, rmaNumber, reason string) error
}
