package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS customers (
	email TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	phone TEXT,
	loyalty_tier TEXT NOT NULL DEFAULT 'Standard',
	account_status TEXT NOT NULL DEFAULT 'Active',
	fraud_flag BOOLEAN NOT NULL DEFAULT FALSE,
	return_count_30d INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS orders (
	order_number TEXT PRIMARY KEY,
	customer_email TEXT NOT NULL REFERENCES customers(email),
	order_date TEXT NOT NULL,
	total_amount_cents BIGINT NOT NULL,
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
	unit_price_cents BIGINT NOT NULL,
	is_final_sale BOOLEAN NOT NULL DEFAULT FALSE,
	is_returnable BOOLEAN NOT NULL DEFAULT TRUE,
	PRIMARY KEY (order_number, item_id)
);

CREATE TABLE IF NOT EXISTS return_policies (
	policy_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT,
	return_window_days INTEGER NOT NULL,
	requires_packaging BOOLEAN NOT NULL DEFAULT FALSE,
	restocking_fee_bps BIGINT NOT NULL DEFAULT 0,
	condition TEXT,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS rmas (
	rma_number TEXT PRIMARY KEY,
	order_number TEXT NOT NULL REFERENCES orders(order_number),
	customer_email TEXT NOT NULL,
	item_ids TEXT NOT NULL,
	return_reason TEXT NOT NULL,
	reason_code TEXT,
	status TEXT NOT NULL DEFAULT 'Initiated',
	refund_cents BIGINT NOT NULL DEFAULT 0,
	label_url TEXT,
	tracking_number TEXT,
	escalated BOOLEAN NOT NULL DEFAULT FALSE,
	escalation_reason TEXT,
	priority TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rmas_order ON rmas(order_number);
`

// NewPostgresStoreFromDB wraps an existing connection without migrating.
// Callers own the *sql.DB: the server shares it with the audit log and
// runs MigratePostgres explicitly.
func NewPostgresStoreFromDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: dialectPostgres, clock: time.Now}
}

// MigratePostgres creates the schema on an already-wrapped connection.
func (s *SQLStore) MigratePostgres(ctx context.Context) error {
	return s.migratePostgres(ctx)
}

func (s *SQLStore) migratePostgres(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}
