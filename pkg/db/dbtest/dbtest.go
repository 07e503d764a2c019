// Package dbtest opens throwaway sqlite databases with the service schema.
// The production schema lives in migrations/; this DDL mirrors it minus the
// postgres-only defaults.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  delivery_method TEXT NOT NULL DEFAULT 'seller_fulfilled',
  stock_qty INTEGER NOT NULL DEFAULT 0,
  has_variants INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS product_variants (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  size TEXT NOT NULL,
  color TEXT NOT NULL,
  age_group TEXT NOT NULL,
  stock_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME,
  UNIQUE (product_id, size, color, age_group)
);`,
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  buyer_name TEXT NOT NULL,
  buyer_email TEXT NOT NULL,
  shipping_address TEXT,
  payment_method TEXT NOT NULL DEFAULT 'card',
  status TEXT NOT NULL DEFAULT 'pending',
  is_paid INTEGER NOT NULL DEFAULT 0,
  is_delivered INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  stock_reservation_expires_at DATETIME,
  external_order_id TEXT UNIQUE,
  sales_ref_code TEXT,
  cancel_reason TEXT,
  paid_at DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT,
  seller_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  qty INTEGER NOT NULL,
  size TEXT,
  color TEXT,
  age_group TEXT,
  delivery_method TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS seller_balances (
  seller_id TEXT PRIMARY KEY,
  available_cents INTEGER NOT NULL DEFAULT 0,
  pending_cents INTEGER NOT NULL DEFAULT 0,
  total_withdrawn_cents INTEGER NOT NULL DEFAULT 0,
  total_earnings_cents INTEGER NOT NULL DEFAULT 0,
  bank_code TEXT,
  bank_account_no TEXT,
  account_holder TEXT,
  tax_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS referrers (
  id TEXT PRIMARY KEY,
  ref_code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  commission_percent TEXT,
  available_cents INTEGER NOT NULL DEFAULT 0,
  pending_cents INTEGER NOT NULL DEFAULT 0,
  total_withdrawn_cents INTEGER NOT NULL DEFAULT 0,
  bank_code TEXT,
  bank_account_no TEXT,
  account_holder TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS balance_transactions (
  id TEXT PRIMARY KEY,
  account_type TEXT NOT NULL,
  account_id TEXT NOT NULL,
  order_id TEXT,
  amount_cents INTEGER NOT NULL,
  kind TEXT NOT NULL,
  description TEXT NOT NULL,
  transfer_document_key TEXT,
  failure_reason TEXT,
  created_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_tx_sale_credit
  ON balance_transactions (account_id, order_id, kind)
  WHERE kind = 'sale_credit';`,
	`CREATE TABLE IF NOT EXISTS commissions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  referrer_id TEXT NOT NULL,
  ref_code TEXT NOT NULL,
  percent TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  approved_at DATETIME,
  paid_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns an isolated in-memory database with the full schema applied.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:dbtest_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}
