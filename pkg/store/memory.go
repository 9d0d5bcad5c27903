package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
	"github.com/Mindburn-Labs/returns-core/pkg/lifecycle"
)

// MemoryStore is the in-memory Store used by tests and development runs.
// It holds the whole-store lock for the duration of each multi-entity
// write, which gives it the same atomicity the SQL backends get from
// transactions.
type MemoryStore struct {
	mu        sync.RWMutex
	customers map[string]contracts.Customer
	orders    map[string]contracts.Order
	rmas      map[string]contracts.RMA
	policies  []contracts.ReturnPolicy
	clock     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: make(map[string]contracts.Customer),
		orders:    make(map[string]contracts.Order),
		rmas:      make(map[string]contracts.RMA),
		clock:     time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

func (s *MemoryStore) GetOrder(ctx context.Context, orderNumber string) (*contracts.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderNumber]
	if !ok {
		return nil, ErrOrderNotFound
	}
	out := copyOrder(o)
	if c, ok := s.customers[o.CustomerEmail]; ok {
		cc := c
		out.Customer = &cc
	}
	return &out, nil
}

func (s *MemoryStore) ListOrdersByEmail(ctx context.Context, email string, limit int) ([]contracts.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []contracts.Order
	for _, o := range s.orders {
		if o.CustomerEmail != email {
			continue
		}
		oc := copyOrder(o)
		if c, ok := s.customers[email]; ok {
			cc := c
			oc.Customer = &cc
		}
		out = append(out, oc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.After(out[j].OrderDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetCustomer(ctx context.Context, email string) (*contracts.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[email]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	cc := c
	return &cc, nil
}

func (s *MemoryStore) GetRMA(ctx context.Context, rmaNumber string) (*contracts.RMA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rmas[rmaNumber]
	if !ok {
		return nil, ErrRMANotFound
	}
	rc := copyRMA(r)
	return &rc, nil
}

func (s *MemoryStore) ListPolicies(ctx context.Context) ([]contracts.ReturnPolicy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.ReturnPolicy, len(s.policies))
	copy(out, s.policies)
	return out, nil
}

func (s *MemoryStore) CountOrders(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders), nil
}

func (s *MemoryStore) PutCustomer(ctx context.Context, c *contracts.Customer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.Email] = *c
	return nil
}

func (s *MemoryStore) PutOrder(ctx context.Context, o *contracts.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.OrderNumber]; exists {
		return ErrDuplicateOrder
	}
	oc := copyOrder(*o)
	oc.Customer = nil
	s.orders[o.OrderNumber] = oc
	return nil
}

func (s *MemoryStore) PutPolicy(ctx context.Context, p contracts.ReturnPolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.policies {
		if s.policies[i].PolicyID == p.PolicyID {
			s.policies[i] = p
			return nil
		}
	}
	s.policies = append(s.policies, p)
	return nil
}

func (s *MemoryStore) CreateRMA(ctx context.Context, rma *contracts.RMA) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rmas[rma.RMANumber]; exists {
		return ErrDuplicateRMA
	}
	order, ok := s.orders[rma.OrderNumber]
	if !ok {
		return ErrOrderNotFound
	}
	if err := lifecycle.CheckOrderTransition(order.Status, contracts.OrderReturnInitiated); err != nil {
		return err
	}

	now := s.clock().UTC()
	rc := copyRMA(*rma)
	rc.Status = contracts.RMAInitiated
	rc.CreatedAt = now
	rc.UpdatedAt = now

	order.Status = contracts.OrderReturnInitiated
	s.orders[rma.OrderNumber] = order
	s.rmas[rc.RMANumber] = rc

	rma.Status = rc.Status
	rma.CreatedAt = rc.CreatedAt
	rma.UpdatedAt = rc.UpdatedAt
	return nil
}

func (s *MemoryStore) TransitionRMA(ctx context.Context, rmaNumber string, to contracts.RMAStatus) (*contracts.RMA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rmas[rmaNumber]
	if !ok {
		return nil, ErrRMANotFound
	}
	if err := lifecycle.CheckRMATransition(&r, to); err != nil {
		return nil, err
	}
	r.Status = to
	r.UpdatedAt = s.clock().UTC()
	s.rmas[rmaNumber] = r
	rc := copyRMA(r)
	return &rc, nil
}

func (s *MemoryStore) AttachLabel(ctx context.Context, rmaNumber, tracking, labelURL string) (*contracts.RMA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rmas[rmaNumber]
	if !ok {
		return nil, ErrRMANotFound
	}
	if err := lifecycle.CheckRMATransition(&r, contracts.RMALabelSent); err != nil {
		return nil, err
	}
	r.TrackingNumber = tracking
	r.LabelURL = labelURL
	r.Status = contracts.RMALabelSent
	r.UpdatedAt = s.clock().UTC()
	s.rmas[rmaNumber] = r
	rc := copyRMA(r)
	return &rc, nil
}

func (s *MemoryStore) MarkRMAEscalated(ctx context.Context, rmaNumber, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rmas[rmaNumber]
	if !ok {
		return ErrRMANotFound
	}
	r.Escalated = true
	r.EscalationReason = reason
	r.UpdatedAt = s.clock().UTC()
	s.rmas[rmaNumber] = r
	return nil
}

func copyOrder(o contracts.Order) contracts.Order {
	out := o
	out.Items = make([]contracts.OrderItem, len(o.Items))
	copy(out.Items, o.Items)
	return out
}

func copyRMA(r contracts.RMA) contracts.RMA {
	out := r
	out.ItemIDs = make([]string, len(r.ItemIDs))
	copy(out.ItemIDs, r.ItemIDs)
	return out
}
