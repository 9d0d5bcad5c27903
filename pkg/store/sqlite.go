package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS customers (
	email TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	phone TEXT,
	loyalty_tier TEXT NOT NULL DEFAULT 'Standard',
	account_status TEXT NOT NULL DEFAULT 'Active',
	fraud_flag INTEGER NOT NULL DEFAULT 0,
	return_count_30d INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS orders (
	order_number TEXT PRIMARY KEY,
	customer_email TEXT NOT NULL REFERENCES customers(email),
	order_date TEXT NOT NULL,
	total_amount_cents INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'Delivered',
	shipping_address TEXT
);
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_email);

CREATE TABLE IF NOT EXISTS order_items (
	order_number TEXT NOT NULL REFERENCES orders(order_number),
	item_id TEXT NOT NULL,
	product_name TEXT NOT NULL,
	product_category TEXT,
	sku TEXT,
	quantity INTEGER NOT NULL DEFAULT 1,
	unit_price_cents INTEGER NOT NULL,
	is_final_sale INTEGER NOT NULL DEFAULT 0,
	is_returnable INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (order_number, item_id)
);

CREATE TABLE IF NOT EXISTS return_policies (
	policy_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT,
	return_window_days INTEGER NOT NULL,
	requires_packaging INTEGER NOT NULL DEFAULT 0,
	restocking_fee_bps INTEGER NOT NULL DEFAULT 0,
	condition TEXT,
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS rmas (
	rma_number TEXT PRIMARY KEY,
	order_number TEXT NOT NULL REFERENCES orders(order_number),
	customer_email TEXT NOT NULL,
	item_ids TEXT NOT NULL,
	return_reason TEXT NOT NULL,
	reason_code TEXT,
	status TEXT NOT NULL DEFAULT 'Initiated',
	refund_cents INTEGER NOT NULL DEFAULT 0,
	label_url TEXT,
	tracking_number TEXT,
	escalated INTEGER NOT NULL DEFAULT 0,
	escalation_reason TEXT,
	priority TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rmas_order ON rmas(order_number);
`

// NewSQLiteStore opens (or creates) a SQLite-backed store at path and runs
// the schema migration. The connection pool is limited to one writer to
// match SQLite's locking model.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLStore{db: db, dialect: dialectSQLite, clock: time.Now}
	if err := s.migrateSQLite(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing connection (used by tests).
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialectSQLite, clock: time.Now}
	if err := s.migrateSQLite(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrateSQLite(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
