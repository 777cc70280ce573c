//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"fmt"
)

// Schema names.
const (
	StagingSchema = "staging"
	MartsSchema   = "marts"
)

// StagingTables lists the staging tables in load order.
var StagingTables = []string{"customers", "products", "orders", "order_items"}

// MartTables lists the mart tables in load order.
var MartTables = []string{"dim_customers", "dim_products", "dim_date", "fact_orders", "fact_order_items"}

// createSchemaSQL creates both warehouse schemas. Staging tables mirror the
// input files plus load provenance; nothing beyond column types is enforced
// there. Mart tables carry the star-schema keys.
const createSchemaSQL = `
CREATE SCHEMA IF NOT EXISTS staging;
CREATE SCHEMA IF NOT EXISTS marts;

-- Staging: raw landing tables
CREATE TABLE IF NOT EXISTS staging.customers (
    load_seq          BIGSERIAL PRIMARY KEY,
    customer_id       INTEGER,
    first_name        TEXT,
    last_name         TEXT,
    email             TEXT,
    registration_date DATE,
    country           TEXT,
    load_timestamp    TIMESTAMP NOT NULL,
    source_file       TEXT,
    load_run_id       TEXT
);

CREATE TABLE IF NOT EXISTS staging.products (
    load_seq          BIGSERIAL PRIMARY KEY,
    product_id        INTEGER,
    product_name      TEXT,
    category          TEXT,
    price             NUMERIC(12,2),
    cost              NUMERIC(12,2),
    load_timestamp    TIMESTAMP NOT NULL,
    source_file       TEXT,
    load_run_id       TEXT
);

CREATE TABLE IF NOT EXISTS staging.orders (
    load_seq          BIGSERIAL PRIMARY KEY,
    order_id          INTEGER,
    customer_id       INTEGER,
    order_date        TIMESTAMP,
    status            TEXT,
    load_timestamp    TIMESTAMP NOT NULL,
    source_file       TEXT,
    load_run_id       TEXT
);

CREATE TABLE IF NOT EXISTS staging.order_items (
    order_item_id     BIGSERIAL PRIMARY KEY,
    order_id          INTEGER,
    product_id        INTEGER,
    quantity          INTEGER,
    unit_price        NUMERIC(12,2),
    load_timestamp    TIMESTAMP NOT NULL,
    source_file       TEXT,
    load_run_id       TEXT
);

-- Marts: dimensions
CREATE TABLE IF NOT EXISTS marts.dim_customers (
    customer_key      SERIAL PRIMARY KEY,
    customer_id       INTEGER NOT NULL,
    first_name        TEXT,
    last_name         TEXT,
    full_name         TEXT,
    email             TEXT,
    country           TEXT,
    registration_date DATE,
    customer_segment  VARCHAR(10) NOT NULL,
    is_active         BOOLEAN NOT NULL DEFAULT TRUE,
    valid_from        TIMESTAMP NOT NULL,
    is_current        BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS marts.dim_products (
    product_key       SERIAL PRIMARY KEY,
    product_id        INTEGER NOT NULL,
    product_name      TEXT,
    category          TEXT,
    price             NUMERIC(12,2),
    cost              NUMERIC(12,2),
    margin_percent    NUMERIC(8,2),
    valid_from        TIMESTAMP NOT NULL,
    is_current        BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS marts.dim_date (
    date_key          INTEGER PRIMARY KEY,
    date              DATE NOT NULL UNIQUE,
    year              INTEGER NOT NULL,
    quarter           INTEGER NOT NULL,
    month             INTEGER NOT NULL,
    month_name        VARCHAR(10) NOT NULL,
    week              INTEGER NOT NULL,
    day_of_month      INTEGER NOT NULL,
    day_of_week       INTEGER NOT NULL,
    day_name          VARCHAR(10) NOT NULL,
    is_weekend        BOOLEAN NOT NULL,
    is_holiday        BOOLEAN NOT NULL DEFAULT FALSE
);

-- Marts: facts
CREATE TABLE IF NOT EXISTS marts.fact_orders (
    order_key         SERIAL PRIMARY KEY,
    order_id          INTEGER NOT NULL,
    customer_key      INTEGER REFERENCES marts.dim_customers(customer_key),
    order_date_key    INTEGER REFERENCES marts.dim_date(date_key),
    order_date        TIMESTAMP,
    status            TEXT,
    total_items       INTEGER NOT NULL DEFAULT 0,
    total_amount      NUMERIC(14,2) NOT NULL DEFAULT 0,
    total_cost        NUMERIC(14,2) NOT NULL DEFAULT 0,
    profit            NUMERIC(14,2) NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS marts.fact_order_items (
    order_item_key    SERIAL PRIMARY KEY,
    order_key         INTEGER NOT NULL REFERENCES marts.fact_orders(order_key),
    product_key       INTEGER NOT NULL REFERENCES marts.dim_products(product_key),
    order_id          INTEGER NOT NULL,
    product_id        INTEGER NOT NULL,
    quantity          INTEGER NOT NULL,
    unit_price        NUMERIC(12,2) NOT NULL,
    total_price       NUMERIC(14,2) NOT NULL,
    unit_cost         NUMERIC(12,2),
    total_cost        NUMERIC(14,2),
    profit            NUMERIC(14,2)
);

-- Indexes for the transformation joins and dashboard filters
CREATE INDEX IF NOT EXISTS idx_stg_customers_id ON staging.customers(customer_id);
CREATE INDEX IF NOT EXISTS idx_stg_products_id ON staging.products(product_id);
CREATE INDEX IF NOT EXISTS idx_stg_orders_id ON staging.orders(order_id);
CREATE INDEX IF NOT EXISTS idx_stg_order_items_order ON staging.order_items(order_id);
CREATE INDEX IF NOT EXISTS idx_dim_customers_id ON marts.dim_customers(customer_id);
CREATE INDEX IF NOT EXISTS idx_dim_products_id ON marts.dim_products(product_id);
CREATE INDEX IF NOT EXISTS idx_fact_orders_id ON marts.fact_orders(order_id);
CREATE INDEX IF NOT EXISTS idx_fact_orders_date ON marts.fact_orders(order_date);
CREATE INDEX IF NOT EXISTS idx_fact_orders_status ON marts.fact_orders(status);
CREATE INDEX IF NOT EXISTS idx_fact_order_items_order ON marts.fact_order_items(order_key);
CREATE INDEX IF NOT EXISTS idx_fact_order_items_product ON marts.fact_order_items(product_key);
`

// Drop schema SQL
const dropSchemaSQL = `
DROP SCHEMA IF EXISTS marts CASCADE;
DROP SCHEMA IF EXISTS staging CASCADE;
`

// CreateSchema creates the staging and marts schemas. It is idempotent.
func CreateSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("failed to create warehouse schema: %w", err)
	}
	return nil
}

// DropSchema drops both warehouse schemas and everything in them.
func DropSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, dropSchemaSQL); err != nil {
		return fmt.Errorf("failed to drop warehouse schema: %w", err)
	}
	return nil
}

// SchemaExists reports whether every staging and mart table exists.
func SchemaExists(ctx context.Context, db DB) (bool, error) {
	var n int
	err := db.QueryRow(ctx, `
        SELECT COUNT(*)
        FROM information_schema.tables
        WHERE (table_schema::text = $1 AND table_name::text = ANY($2::text[]))
           OR (table_schema::text = $3 AND table_name::text = ANY($4::text[]))
    `, StagingSchema, StagingTables, MartsSchema, MartTables).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == len(StagingTables)+len(MartTables), nil
}
