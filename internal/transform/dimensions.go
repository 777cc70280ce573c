//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package transform builds the dimension and fact tables of the marts
// schema from staging. Every load truncates its target and rebuilds it with
// one set-based INSERT ... SELECT.
package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/pgEdge/pgedge-dwload/internal/config"
	"github.com/pgEdge/pgedge-dwload/internal/db"
	"github.com/pgEdge/pgedge-dwload/internal/logging"
)

// Customer segments.
const (
	SegmentNew     = "New"
	SegmentRegular = "Regular"
	SegmentLoyal   = "Loyal"
)

// Truncating a dimension cascades to the fact tables that reference it.
const (
	truncateDimCustomersSQL = `TRUNCATE TABLE marts.dim_customers RESTART IDENTITY CASCADE`
	truncateDimProductsSQL  = `TRUNCATE TABLE marts.dim_products RESTART IDENTITY CASCADE`
	truncateDimDateSQL      = `TRUNCATE TABLE marts.dim_date CASCADE`
)

// Source queries pick one staging row per natural key: the most recently
// loaded one, with load order breaking timestamp ties.
const latestCustomersSQL = `
    SELECT DISTINCT ON (customer_id)
        customer_id, first_name, last_name, email, country, registration_date
    FROM staging.customers
    WHERE customer_id IS NOT NULL
    ORDER BY customer_id, load_timestamp DESC, load_seq DESC`

const latestProductsSQL = `
    SELECT DISTINCT ON (product_id)
        product_id, product_name, category, price, cost
    FROM staging.products
    WHERE product_id IS NOT NULL
    ORDER BY product_id, load_timestamp DESC, load_seq DESC`

// $1 loyal cutoff, $2 regular cutoff, $3 load time.
const insertDimCustomersSQL = `
WITH src AS (` + latestCustomersSQL + `
)
INSERT INTO marts.dim_customers (
    customer_id, first_name, last_name, full_name, email, country,
    registration_date, customer_segment, is_active, valid_from, is_current
)
SELECT
    customer_id,
    first_name,
    last_name,
    first_name || ' ' || last_name,
    email,
    country,
    registration_date,
    CASE
        WHEN registration_date < $1::date THEN 'Loyal'
        WHEN registration_date < $2::date THEN 'Regular'
        ELSE 'New'
    END,
    TRUE,
    $3::timestamp,
    TRUE
FROM src
ORDER BY customer_id`

// $1 load time.
const insertDimProductsSQL = `
WITH src AS (` + latestProductsSQL + `
)
INSERT INTO marts.dim_products (
    product_id, product_name, category, price, cost, margin_percent,
    valid_from, is_current
)
SELECT
    product_id,
    product_name,
    category,
    price,
    cost,
    ROUND((((price - cost) / NULLIF(price, 0)) * 100)::numeric, 2),
    $1::timestamp,
    TRUE
FROM src
ORDER BY product_id`

const insertDimDateSQL = `
INSERT INTO marts.dim_date (
    date_key, date, year, quarter, month, month_name, week,
    day_of_month, day_of_week, day_name, is_weekend, is_holiday
)
SELECT
    TO_CHAR(d, 'YYYYMMDD')::integer,
    d,
    EXTRACT(YEAR FROM d)::integer,
    EXTRACT(QUARTER FROM d)::integer,
    EXTRACT(MONTH FROM d)::integer,
    TRIM(TO_CHAR(d, 'Month')),
    EXTRACT(WEEK FROM d)::integer,
    EXTRACT(DAY FROM d)::integer,
    EXTRACT(DOW FROM d)::integer,
    TRIM(TO_CHAR(d, 'Day')),
    EXTRACT(DOW FROM d) IN (0, 6),
    FALSE
FROM (
    SELECT DISTINCT order_date::date AS d
    FROM staging.orders
    WHERE order_date IS NOT NULL
) dates
ORDER BY d`

// Conflict queries find natural keys whose staged rows disagree on any
// non-key column. Exact repeats of the same row are not conflicts.
const customerConflictsSQL = `
    SELECT customer_id
    FROM (
        SELECT DISTINCT customer_id, first_name, last_name, email, country, registration_date
        FROM staging.customers
        WHERE customer_id IS NOT NULL
    ) d
    GROUP BY customer_id
    HAVING COUNT(*) > 1
    ORDER BY customer_id
    LIMIT 20`

const productConflictsSQL = `
    SELECT product_id
    FROM (
        SELECT DISTINCT product_id, product_name, category, price, cost
        FROM staging.products
        WHERE product_id IS NOT NULL
    ) d
    GROUP BY product_id
    HAVING COUNT(*) > 1
    ORDER BY product_id
    LIMIT 20`

// Dimensions loads the customer, product and date dimensions.
type Dimensions struct {
	db              db.DB
	duplicatePolicy string
	atomic          bool
	now             func() time.Time
}

// NewDimensions creates a dimension transformer.
func NewDimensions(database db.DB, cfg config.ETLConfig) *Dimensions {
	return &Dimensions{
		db:              database,
		duplicatePolicy: cfg.DuplicatePolicy,
		atomic:          cfg.AtomicSteps,
		now:             time.Now,
	}
}

// WithClock replaces the clock used for segmentation and valid_from.
func (d *Dimensions) WithClock(now func() time.Time) *Dimensions {
	d.now = now
	return d
}

// LoadDimCustomers rebuilds marts.dim_customers and returns its row count.
func (d *Dimensions) LoadDimCustomers(ctx context.Context) (int64, error) {
	now := d.now()
	loyal, regular := SegmentCutoffs(now)

	n, err := d.reload(ctx, "dim_customers", customerConflictsSQL, truncateDimCustomersSQL,
		insertDimCustomersSQL, loyal, regular, now.UTC())
	if err != nil {
		return 0, err
	}

	logging.Info().
		Int64("rows", n).
		Str("loyal_before", loyal.Format(time.DateOnly)).
		Str("regular_before", regular.Format(time.DateOnly)).
		Msg("Loaded dim_customers")
	return n, nil
}

// LoadDimProducts rebuilds marts.dim_products and returns its row count.
func (d *Dimensions) LoadDimProducts(ctx context.Context) (int64, error) {
	n, err := d.reload(ctx, "dim_products", productConflictsSQL, truncateDimProductsSQL,
		insertDimProductsSQL, d.now().UTC())
	if err != nil {
		return 0, err
	}

	logging.Info().Int64("rows", n).Msg("Loaded dim_products")
	return n, nil
}

// LoadDimDate rebuilds marts.dim_date from the distinct staged order dates.
func (d *Dimensions) LoadDimDate(ctx context.Context) (int64, error) {
	n, err := d.reload(ctx, "dim_date", "", truncateDimDateSQL, insertDimDateSQL)
	if err != nil {
		return 0, err
	}

	logging.Info().Int64("rows", n).Msg("Loaded dim_date")
	return n, nil
}

// LoadAll loads every dimension in order and returns the row count per table.
func (d *Dimensions) LoadAll(ctx context.Context) (map[string]int64, error) {
	steps := []struct {
		table string
		load  func(context.Context) (int64, error)
	}{
		{"dim_customers", d.LoadDimCustomers},
		{"dim_products", d.LoadDimProducts},
		{"dim_date", d.LoadDimDate},
	}

	counts := make(map[string]int64, len(steps))
	for _, s := range steps {
		n, err := s.load(ctx)
		if err != nil {
			return counts, fmt.Errorf("%s: %w", s.table, err)
		}
		counts[s.table] = n
	}
	return counts, nil
}

// reload checks for conflicting duplicates when the policy asks for it, then
// truncates and inserts as one step.
func (d *Dimensions) reload(ctx context.Context, table, conflictsSQL, truncateSQL, insertSQL string, args ...any) (int64, error) {
	if conflictsSQL != "" && d.duplicatePolicy == config.DuplicateReject {
		keys, err := conflictingKeys(ctx, d.db, conflictsSQL)
		if err != nil {
			return 0, fmt.Errorf("failed to check duplicates for %s: %w", table, err)
		}
		if len(keys) > 0 {
			return 0, &DuplicateKeyError{Table: table, Keys: keys}
		}
	}

	var n int64
	err := db.RunStep(ctx, d.db, d.atomic, func(conn db.DB) error {
		if _, err := conn.Exec(ctx, truncateSQL); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
		tag, err := conn.Exec(ctx, insertSQL, args...)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", table, err)
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

func conflictingKeys(ctx context.Context, conn db.DB, sql string) ([]int32, error) {
	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []int32
	for rows.Next() {
		var k int32
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// SegmentCutoffs returns the registration dates before which a customer is
// Loyal and Regular respectively, relative to the calendar day of now.
// Month arithmetic clamps to the end of the month, so six months before
// August 31 is February 28 (or 29).
func SegmentCutoffs(now time.Time) (loyalBefore, regularBefore time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return addMonths(today, -12), addMonths(today, -6)
}

// Segment classifies a registration date against the cutoffs for now.
// NULL registration dates are New.
func Segment(registered *time.Time, now time.Time) string {
	if registered == nil {
		return SegmentNew
	}
	loyal, regular := SegmentCutoffs(now)
	day := time.Date(registered.Year(), registered.Month(), registered.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case day.Before(loyal):
		return SegmentLoyal
	case day.Before(regular):
		return SegmentRegular
	default:
		return SegmentNew
	}
}

func addMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	lastDay := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(t.Day(), lastDay)-1)
}
