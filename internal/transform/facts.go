//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package transform

import (
	"context"
	"fmt"

	"github.com/pgEdge/pgedge-dwload/internal/config"
	"github.com/pgEdge/pgedge-dwload/internal/db"
	"github.com/pgEdge/pgedge-dwload/internal/logging"
)

const (
	truncateFactOrdersSQL     = `TRUNCATE TABLE marts.fact_orders RESTART IDENTITY CASCADE`
	truncateFactOrderItemsSQL = `TRUNCATE TABLE marts.fact_order_items RESTART IDENTITY`
)

// latestOrdersSQL keeps one staged row per order id. With the replace
// policy there is only ever one.
const latestOrdersSQL = `
    SELECT DISTINCT ON (order_id)
        order_id, customer_id, order_date, status
    FROM staging.orders
    WHERE order_id IS NOT NULL
    ORDER BY order_id, load_timestamp DESC, load_seq DESC`

// matchedItemsSQL is the set of staged items that can be costed. Both fact
// tables draw from it, so order totals always equal the sum of their lines.
const matchedItemsSQL = `
    SELECT oi.order_item_id, oi.order_id, oi.product_id, oi.quantity, oi.unit_price,
           dp.product_key, dp.cost
    FROM staging.order_items oi
    JOIN marts.dim_products dp ON dp.product_id = oi.product_id
    WHERE oi.quantity IS NOT NULL AND oi.unit_price IS NOT NULL`

// insertFactOrdersSQL has one placeholder for the customer join type.
const insertFactOrdersSQL = `
WITH orders AS (` + latestOrdersSQL + `
),
items AS (` + matchedItemsSQL + `
),
per_order AS (
    SELECT
        order_id,
        SUM(quantity)              AS total_items,
        SUM(quantity * unit_price) AS total_amount,
        SUM(quantity * cost)       AS total_cost
    FROM items
    GROUP BY order_id
)
INSERT INTO marts.fact_orders (
    order_id, customer_key, order_date_key, order_date, status,
    total_items, total_amount, total_cost, profit
)
SELECT
    o.order_id,
    dc.customer_key,
    TO_CHAR(o.order_date::date, 'YYYYMMDD')::integer,
    o.order_date,
    o.status,
    COALESCE(po.total_items, 0),
    COALESCE(po.total_amount, 0),
    COALESCE(po.total_cost, 0),
    COALESCE(po.total_amount - po.total_cost, 0)
FROM orders o
%s JOIN marts.dim_customers dc ON dc.customer_id = o.customer_id
LEFT JOIN per_order po ON po.order_id = o.order_id
ORDER BY o.order_id`

const unmatchedCustomersSQL = `
WITH orders AS (` + latestOrdersSQL + `
)
SELECT COUNT(*)
FROM orders o
WHERE NOT EXISTS (
    SELECT 1 FROM marts.dim_customers dc WHERE dc.customer_id = o.customer_id
)`

const insertFactOrderItemsSQL = `
WITH items AS (` + matchedItemsSQL + `
)
INSERT INTO marts.fact_order_items (
    order_key, product_key, order_id, product_id, quantity, unit_price,
    total_price, unit_cost, total_cost, profit
)
SELECT
    fo.order_key,
    i.product_key,
    i.order_id,
    i.product_id,
    i.quantity,
    i.unit_price,
    i.quantity * i.unit_price,
    i.cost,
    i.quantity * i.cost,
    (i.quantity * i.unit_price) - (i.quantity * i.cost)
FROM items i
JOIN marts.fact_orders fo ON fo.order_id = i.order_id
ORDER BY i.order_item_id`

// Facts loads the order and order item fact tables.
type Facts struct {
	db        db.DB
	unmatched string
	atomic    bool
}

// NewFacts creates a fact transformer.
func NewFacts(database db.DB, cfg config.ETLConfig) *Facts {
	return &Facts{
		db:        database,
		unmatched: cfg.UnmatchedCustomer,
		atomic:    cfg.AtomicSteps,
	}
}

// factOrdersSQL returns the order fact insert for the unmatched customer
// policy.
func factOrdersSQL(unmatched string) string {
	join := "LEFT"
	if unmatched == config.UnmatchedReject {
		join = "INNER"
	}
	return fmt.Sprintf(insertFactOrdersSQL, join)
}

// LoadFactOrders rebuilds marts.fact_orders and returns its row count.
// Orders without a known customer are kept with a NULL customer_key or
// dropped, depending on the unmatched customer policy.
func (f *Facts) LoadFactOrders(ctx context.Context) (int64, error) {
	var unmatched int64
	if err := f.db.QueryRow(ctx, unmatchedCustomersSQL).Scan(&unmatched); err != nil {
		return 0, fmt.Errorf("failed to count unmatched customers: %w", err)
	}

	var n int64
	err := db.RunStep(ctx, f.db, f.atomic, func(conn db.DB) error {
		if _, err := conn.Exec(ctx, truncateFactOrdersSQL); err != nil {
			return fmt.Errorf("failed to truncate fact_orders: %w", err)
		}
		tag, err := conn.Exec(ctx, factOrdersSQL(f.unmatched))
		if err != nil {
			return fmt.Errorf("failed to load fact_orders: %w", err)
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	if unmatched > 0 {
		action := "kept with no customer"
		if f.unmatched == config.UnmatchedReject {
			action = "dropped"
		}
		logging.Warn().
			Int64("orders", unmatched).
			Str("policy", f.unmatched).
			Msgf("Orders with unknown customer %s", action)
	}

	logging.Info().Int64("rows", n).Msg("Loaded fact_orders")
	return n, nil
}

// LoadFactOrderItems rebuilds marts.fact_order_items from the current
// fact_orders, so it must run after LoadFactOrders.
func (f *Facts) LoadFactOrderItems(ctx context.Context) (int64, error) {
	var n int64
	err := db.RunStep(ctx, f.db, f.atomic, func(conn db.DB) error {
		if _, err := conn.Exec(ctx, truncateFactOrderItemsSQL); err != nil {
			return fmt.Errorf("failed to truncate fact_order_items: %w", err)
		}
		tag, err := conn.Exec(ctx, insertFactOrderItemsSQL)
		if err != nil {
			return fmt.Errorf("failed to load fact_order_items: %w", err)
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	logging.Info().Int64("rows", n).Msg("Loaded fact_order_items")
	return n, nil
}

// LoadAll loads fact_orders and then fact_order_items. Items are not
// attempted when the order load fails.
func (f *Facts) LoadAll(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, 2)

	n, err := f.LoadFactOrders(ctx)
	if err != nil {
		return counts, fmt.Errorf("fact_orders: %w", err)
	}
	counts["fact_orders"] = n

	n, err = f.LoadFactOrderItems(ctx)
	if err != nil {
		return counts, fmt.Errorf("fact_order_items: %w", err)
	}
	counts["fact_order_items"] = n

	return counts, nil
}
