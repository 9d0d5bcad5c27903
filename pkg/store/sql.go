package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
	"github.com/Mindburn-Labs/returns-core/pkg/lifecycle"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore implements Store on database/sql. The SQLite and Postgres
// constructors share this implementation; queries are written with ?
// placeholders and rebound for Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	clock   func() time.Time
}

// WithClock overrides the clock for deterministic testing.
func (s *SQLStore) WithClock(clock func() time.Time) *SQLStore {
	s.clock = clock
	return s
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) GetOrder(ctx context.Context, orderNumber string) (*contracts.Order, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT order_number, customer_email, order_date, total_amount_cents, status, shipping_address
		FROM orders WHERE order_number = ?`), orderNumber)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", orderNumber, err)
	}
	if err := s.loadItems(ctx, o); err != nil {
		return nil, err
	}
	c, err := s.GetCustomer(ctx, o.CustomerEmail)
	if err != nil && !errors.Is(err, ErrCustomerNotFound) {
		return nil, err
	}
	o.Customer = c
	return o, nil
}

func (s *SQLStore) ListOrdersByEmail(ctx context.Context, email string, limit int) ([]contracts.Order, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT order_number, customer_email, order_date, total_amount_cents, status, shipping_address
		FROM orders WHERE customer_email = ?
		ORDER BY order_date DESC LIMIT ?`), email, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders for %s: %w", email, err)
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	customer, err := s.GetCustomer(ctx, email)
	if err != nil && !errors.Is(err, ErrCustomerNotFound) {
		return nil, err
	}
	for i := range out {
		if err := s.loadItems(ctx, &out[i]); err != nil {
			return nil, err
		}
		out[i].Customer = customer
	}
	return out, nil
}

func (s *SQLStore) loadItems(ctx context.Context, o *contracts.Order) error {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT item_id, product_name, product_category, sku, quantity, unit_price_cents, is_final_sale, is_returnable
		FROM order_items WHERE order_number = ? ORDER BY item_id`), o.OrderNumber)
	if err != nil {
		return fmt.Errorf("load items for %s: %w", o.OrderNumber, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var it contracts.OrderItem
		var category, sku sql.NullString
		if err := rows.Scan(&it.ItemID, &it.ProductName, &category, &sku, &it.Quantity, &it.UnitPriceCents, &it.FinalSale, &it.Returnable); err != nil {
			return err
		}
		it.Category = contracts.ProductCategory(category.String)
		it.SKU = sku.String
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (s *SQLStore) GetCustomer(ctx context.Context, email string) (*contracts.Customer, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT email, first_name, last_name, phone, loyalty_tier, account_status, fraud_flag, return_count_30d
		FROM customers WHERE email = ?`), email)
	var c contracts.Customer
	var phone sql.NullString
	err := row.Scan(&c.Email, &c.FirstName, &c.LastName, &phone, &c.LoyaltyTier, &c.AccountStatus, &c.FraudFlag, &c.ReturnCount30)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer %s: %w", email, err)
	}
	c.Phone = phone.String
	return &c, nil
}

func (s *SQLStore) GetRMA(ctx context.Context, rmaNumber string) (*contracts.RMA, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(rmaSelect+` WHERE rma_number = ?`), rmaNumber)
	r, err := scanRMA(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRMANotFound
		}
		return nil, fmt.Errorf("get rma %s: %w", rmaNumber, err)
	}
	return r, nil
}

func (s *SQLStore) ListPolicies(ctx context.Context) ([]contracts.ReturnPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_id, name, category, return_window_days, requires_packaging, restocking_fee_bps, condition, is_active
		FROM return_policies`)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.ReturnPolicy
	for rows.Next() {
		var p contracts.ReturnPolicy
		var condition sql.NullString
		if err := rows.Scan(&p.PolicyID, &p.Name, &p.Category, &p.WindowDays, &p.RequiresPackaging, &p.RestockingFeeBps, &condition, &p.Active); err != nil {
			return nil, err
		}
		p.Condition = condition.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountOrders(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

func (s *SQLStore) PutCustomer(ctx context.Context, c *contracts.Customer) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO customers (email, first_name, last_name, phone, loyalty_tier, account_status, fraud_flag, return_count_30d)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			phone = excluded.phone,
			loyalty_tier = excluded.loyalty_tier,
			account_status = excluded.account_status,
			fraud_flag = excluded.fraud_flag,
			return_count_30d = excluded.return_count_30d`),
		c.Email, c.FirstName, c.LastName, c.Phone, c.LoyaltyTier, c.AccountStatus, c.FraudFlag, c.ReturnCount30)
	if err != nil {
		return fmt.Errorf("put customer %s: %w", c.Email, err)
	}
	return nil
}

func (s *SQLStore) PutOrder(ctx context.Context, o *contracts.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put order %s: begin: %w", o.OrderNumber, err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM orders WHERE order_number = ?`), o.OrderNumber).Scan(&exists)
	if err != nil {
		return fmt.Errorf("put order %s: %w", o.OrderNumber, err)
	}
	if exists > 0 {
		return ErrDuplicateOrder
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO orders (order_number, customer_email, order_date, total_amount_cents, status, shipping_address)
		VALUES (?, ?, ?, ?, ?, ?)`),
		o.OrderNumber, o.CustomerEmail, formatTime(o.OrderDate), o.TotalAmountCents, o.Status, o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("put order %s: %w", o.OrderNumber, err)
	}
	for _, it := range o.Items {
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO order_items (order_number, item_id, product_name, product_category, sku, quantity, unit_price_cents, is_final_sale, is_returnable)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			o.OrderNumber, it.ItemID, it.ProductName, string(it.Category), it.SKU, it.Quantity, it.UnitPriceCents, it.FinalSale, it.Returnable)
		if err != nil {
			return fmt.Errorf("put order %s item %s: %w", o.OrderNumber, it.ItemID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) PutPolicy(ctx context.Context, p contracts.ReturnPolicy) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO return_policies (policy_id, name, category, return_window_days, requires_packaging, restocking_fee_bps, condition, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (policy_id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			return_window_days = excluded.return_window_days,
			requires_packaging = excluded.requires_packaging,
			restocking_fee_bps = excluded.restocking_fee_bps,
			condition = excluded.condition,
			is_active = excluded.is_active`),
		p.PolicyID, p.Name, string(p.Category), p.WindowDays, p.RequiresPackaging, p.RestockingFeeBps, p.Condition, p.Active)
	if err != nil {
		return fmt.Errorf("put policy %s: %w", p.PolicyID, err)
	}
	return nil
}

func (s *SQLStore) CreateRMA(ctx context.Context, rma *contracts.RMA) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create rma: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status contracts.OrderStatus
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT status FROM orders WHERE order_number = ?`), rma.OrderNumber).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("create rma: read order %s: %w", rma.OrderNumber, err)
	}
	if err := lifecycle.CheckOrderTransition(status, contracts.OrderReturnInitiated); err != nil {
		return err
	}

	var dup int
	if err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM rmas WHERE rma_number = ?`), rma.RMANumber).Scan(&dup); err != nil {
		return fmt.Errorf("create rma: %w", err)
	}
	if dup > 0 {
		return ErrDuplicateRMA
	}

	now := s.clock().UTC()
	itemsJSON, err := json.Marshal(rma.ItemIDs)
	if err != nil {
		return fmt.Errorf("create rma: encode items: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO rmas (rma_number, order_number, customer_email, item_ids, return_reason, reason_code, status,
			refund_cents, label_url, tracking_number, escalated, escalation_reason, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rma.RMANumber, rma.OrderNumber, rma.CustomerEmail, string(itemsJSON), rma.ReturnReason, string(rma.ReasonCode),
		string(contracts.RMAInitiated), rma.RefundCents, "", "", false, "", string(rma.Priority),
		formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("create rma %s: %w", rma.RMANumber, err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`UPDATE orders SET status = ? WHERE order_number = ?`),
		string(contracts.OrderReturnInitiated), rma.OrderNumber)
	if err != nil {
		return fmt.Errorf("create rma %s: update order: %w", rma.RMANumber, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create rma %s: commit: %w", rma.RMANumber, err)
	}
	rma.Status = contracts.RMAInitiated
	rma.CreatedAt = now
	rma.UpdatedAt = now
	return nil
}

func (s *SQLStore) TransitionRMA(ctx context.Context, rmaNumber string, to contracts.RMAStatus) (*contracts.RMA, error) {
	return s.updateRMA(ctx, rmaNumber, to, func(tx *sql.Tx, r *contracts.RMA, now time.Time) error {
		_, err := tx.ExecContext(ctx, s.rebind(`UPDATE rmas SET status = ?, updated_at = ? WHERE rma_number = ?`),
			string(to), formatTime(now), rmaNumber)
		return err
	})
}

func (s *SQLStore) AttachLabel(ctx context.Context, rmaNumber, tracking, labelURL string) (*contracts.RMA, error) {
	r, err := s.updateRMA(ctx, rmaNumber, contracts.RMALabelSent, func(tx *sql.Tx, r *contracts.RMA, now time.Time) error {
		_, err := tx.ExecContext(ctx, s.rebind(`
			UPDATE rmas SET status = ?, tracking_number = ?, label_url = ?, updated_at = ? WHERE rma_number = ?`),
			string(contracts.RMALabelSent), tracking, labelURL, formatTime(now), rmaNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.TrackingNumber = tracking
	r.LabelURL = labelURL
	return r, nil
}

// updateRMA wraps a lifecycle-checked status change in a transaction.
func (s *SQLStore) updateRMA(ctx context.Context, rmaNumber string, to contracts.RMAStatus, apply func(*sql.Tx, *contracts.RMA, time.Time) error) (*contracts.RMA, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update rma: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, s.rebind(rmaSelect+` WHERE rma_number = ?`), rmaNumber)
	r, err := scanRMA(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRMANotFound
		}
		return nil, fmt.Errorf("update rma %s: %w", rmaNumber, err)
	}
	if err := lifecycle.CheckRMATransition(r, to); err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	if err := apply(tx, r, now); err != nil {
		return nil, fmt.Errorf("update rma %s: %w", rmaNumber, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update rma %s: commit: %w", rmaNumber, err)
	}
	r.Status = to
	r.UpdatedAt = now
	return r, nil
}

func (s *SQLStore) MarkRMAEscalated(ctx context.Context, rmaNumber, reason string) error {
	now := s.clock().UTC()
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE rmas SET escalated = ?, escalation_reason = ?, updated_at = ? WHERE rma_number = ?`),
		true, reason, formatTime(now), rmaNumber)
	if err != nil {
		return fmt.Errorf("escalate rma %s: %w", rmaNumber, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("escalate rma %s: %w", rmaNumber, err)
	}
	if n == 0 {
		return ErrRMANotFound
	}
	return nil
}

const rmaSelect = `
	SELECT rma_number, order_number, customer_email, item_ids, return_reason, reason_code, status,
		refund_cents, label_url, tracking_number, escalated, escalation_reason, priority, created_at, updated_at
	FROM rmas`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*contracts.Order, error) {
	var o contracts.Order
	var orderDate string
	var address sql.NullString
	if err := row.Scan(&o.OrderNumber, &o.CustomerEmail, &orderDate, &o.TotalAmountCents, &o.Status, &address); err != nil {
		return nil, err
	}
	o.OrderDate = parseTime(orderDate)
	o.ShippingAddress = address.String
	return &o, nil
}

func scanRMA(row rowScanner) (*contracts.RMA, error) {
	var r contracts.RMA
	var itemsJSON string
	var labelURL, tracking, escReason, priority sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&r.RMANumber, &r.OrderNumber, &r.CustomerEmail, &itemsJSON, &r.ReturnReason, &r.ReasonCode,
		&r.Status, &r.RefundCents, &labelURL, &tracking, &r.Escalated, &escReason, &priority, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &r.ItemIDs); err != nil {
			return nil, fmt.Errorf("decode rma %s items: %w", r.RMANumber, err)
		}
	}
	r.LabelURL = labelURL.String
	r.TrackingNumber = tracking.String
	r.EscalationReason = escReason.String
	r.Priority = contracts.EscalationPriority(priority.String)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
