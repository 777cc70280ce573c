//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-dwload/internal/db"
)

// KPIs are the headline figures for completed orders.
type KPIs struct {
	TotalOrders    int64           `json:"total_orders"`
	TotalCustomers int64           `json:"total_customers"`
	Revenue        decimal.Decimal `json:"revenue"`
	AvgOrderValue  decimal.Decimal `json:"avg_order_value"`
	Profit         decimal.Decimal `json:"profit"`
}

// TrendPoint is one day of the revenue trend.
type TrendPoint struct {
	Date    time.Time       `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
	Profit  decimal.Decimal `json:"profit"`
	Orders  int64           `json:"orders"`
}

// ProductRevenue is a product's revenue from completed orders.
type ProductRevenue struct {
	ProductName string          `json:"product_name"`
	Category    string          `json:"category"`
	Revenue     decimal.Decimal `json:"revenue"`
	UnitsSold   int64           `json:"units_sold"`
}

// CategoryRevenue is a category's revenue from completed orders.
type CategoryRevenue struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
	Orders   int64           `json:"orders"`
}

// SegmentRevenue is the revenue of one customer segment.
type SegmentRevenue struct {
	Segment   string          `json:"customer_segment"`
	Customers int64           `json:"customers"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// CountryRevenue is the revenue from customers in one country.
type CountryRevenue struct {
	Country string          `json:"country"`
	Revenue decimal.Decimal `json:"revenue"`
}

// RecentOrder is a row of the recent orders table. Orders of any status
// are listed.
type RecentOrder struct {
	OrderID     int32           `json:"order_id"`
	Customer    string          `json:"customer"`
	Country     string          `json:"country"`
	OrderDate   *time.Time      `json:"order_date,omitempty"`
	Status      string          `json:"status"`
	TotalItems  int32           `json:"total_items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Profit      decimal.Decimal `json:"profit"`
}

// Querier runs the dashboard reports.
type Querier interface {
	KPIs(ctx context.Context, w Window) (*KPIs, error)
	RevenueTrend(ctx context.Context, w Window) ([]TrendPoint, error)
	TopProducts(ctx context.Context, w Window, limit int) ([]ProductRevenue, error)
	Categories(ctx context.Context, w Window) ([]CategoryRevenue, error)
	Segments(ctx context.Context, w Window) ([]SegmentRevenue, error)
	TopCountries(ctx context.Context, w Window, limit int) ([]CountryRevenue, error)
	RecentOrders(ctx context.Context, w Window, limit int) ([]RecentOrder, error)
}

// Every query takes the window in days as $1; NULL selects all time.
const (
	kpiSQL = `
        SELECT
            COUNT(DISTINCT order_id),
            COUNT(DISTINCT customer_key),
            COALESCE(SUM(total_amount), 0),
            COALESCE(ROUND(AVG(total_amount), 2), 0),
            COALESCE(SUM(profit), 0)
        FROM marts.fact_orders
        WHERE status = 'completed'
          AND ($1::int IS NULL OR order_date >= CURRENT_DATE - make_interval(days => $1::int))`

	trendSQL = `
        SELECT
            d.date,
            COALESCE(SUM(f.total_amount), 0),
            COALESCE(SUM(f.profit), 0),
            COUNT(DISTINCT f.order_id)
        FROM marts.dim_date d
        LEFT JOIN marts.fact_orders f
               ON f.order_date_key = d.date_key
              AND f.status = 'completed'
        WHERE ($1::int IS NULL OR d.date >= CURRENT_DATE - make_interval(days => $1::int))
        GROUP BY d.date
        ORDER BY d.date`

	topProductsSQL = `
        SELECT
            COALESCE(p.product_name, ''),
            COALESCE(p.category, ''),
            COALESCE(SUM(fi.total_price), 0) AS revenue,
            SUM(fi.quantity)
        FROM marts.dim_products p
        JOIN marts.fact_order_items fi ON fi.product_key = p.product_key
        JOIN marts.fact_orders fo ON fo.order_key = fi.order_key
        WHERE fo.status = 'completed'
          AND ($1::int IS NULL OR fo.order_date >= CURRENT_DATE - make_interval(days => $1::int))
        GROUP BY p.product_key, p.product_name, p.category
        ORDER BY revenue DESC, p.product_key
        LIMIT $2`

	categoriesSQL = `
        SELECT
            COALESCE(p.category, ''),
            COALESCE(SUM(fi.total_price), 0) AS revenue,
            COUNT(DISTINCT fi.order_key)
        FROM marts.dim_products p
        JOIN marts.fact_order_items fi ON fi.product_key = p.product_key
        JOIN marts.fact_orders fo ON fo.order_key = fi.order_key
        WHERE fo.status = 'completed'
          AND ($1::int IS NULL OR fo.order_date >= CURRENT_DATE - make_interval(days => $1::int))
        GROUP BY p.category
        ORDER BY revenue DESC, 1`

	// The order filters sit in the join so every segment is listed.
	segmentsSQL = `
        SELECT
            c.customer_segment,
            COUNT(DISTINCT f.customer_key),
            COALESCE(SUM(f.total_amount), 0) AS revenue
        FROM marts.dim_customers c
        LEFT JOIN marts.fact_orders f
               ON f.customer_key = c.customer_key
              AND f.status = 'completed'
              AND ($1::int IS NULL OR f.order_date >= CURRENT_DATE - make_interval(days => $1::int))
        GROUP BY c.customer_segment
        ORDER BY revenue DESC, 1`

	topCountriesSQL = `
        SELECT
            COALESCE(c.country, ''),
            COALESCE(SUM(f.total_amount), 0) AS revenue
        FROM marts.dim_customers c
        JOIN marts.fact_orders f ON f.customer_key = c.customer_key
        WHERE f.status = 'completed'
          AND ($1::int IS NULL OR f.order_date >= CURRENT_DATE - make_interval(days => $1::int))
        GROUP BY c.country
        ORDER BY revenue DESC, 1
        LIMIT $2`

	recentOrdersSQL = `
        SELECT
            fo.order_id,
            COALESCE(dc.full_name, ''),
            COALESCE(dc.country, ''),
            fo.order_date,
            COALESCE(fo.status, ''),
            fo.total_items,
            fo.total_amount,
            fo.profit
        FROM marts.fact_orders fo
        LEFT JOIN marts.dim_customers dc ON dc.customer_key = fo.customer_key
        WHERE ($1::int IS NULL OR fo.order_date >= CURRENT_DATE - make_interval(days => $1::int))
        ORDER BY fo.order_date DESC NULLS LAST, fo.order_id DESC
        LIMIT $2`
)

// Store runs the reports against the marts schema.
type Store struct {
	db db.DB
}

// NewStore creates a Store.
func NewStore(database db.DB) *Store {
	return &Store{db: database}
}

// KPIs returns order count, distinct customers, revenue, average order
// value and profit over completed orders in the window.
func (s *Store) KPIs(ctx context.Context, w Window) (*KPIs, error) {
	var k KPIs
	var revenue, avg, profit pgtype.Numeric
	err := s.db.QueryRow(ctx, kpiSQL, w.arg()).
		Scan(&k.TotalOrders, &k.TotalCustomers, &revenue, &avg, &profit)
	if err != nil {
		return nil, fmt.Errorf("kpi query failed: %w", err)
	}
	k.Revenue = toDecimal(revenue)
	k.AvgOrderValue = toDecimal(avg)
	k.Profit = toDecimal(profit)
	return &k, nil
}

// RevenueTrend returns daily revenue for every date in the date dimension
// inside the window. Days without completed orders are zero.
func (s *Store) RevenueTrend(ctx context.Context, w Window) ([]TrendPoint, error) {
	return collect(ctx, s.db, "revenue trend", trendSQL, []any{w.arg()},
		func(row pgx.CollectableRow) (TrendPoint, error) {
			var p TrendPoint
			var revenue, profit pgtype.Numeric
			err := row.Scan(&p.Date, &revenue, &profit, &p.Orders)
			p.Revenue = toDecimal(revenue)
			p.Profit = toDecimal(profit)
			return p, err
		})
}

// TopProducts returns the highest-revenue products.
func (s *Store) TopProducts(ctx context.Context, w Window, limit int) ([]ProductRevenue, error) {
	return collect(ctx, s.db, "top products", topProductsSQL, []any{w.arg(), clampLimit(limit, 10)},
		func(row pgx.CollectableRow) (ProductRevenue, error) {
			var p ProductRevenue
			var revenue pgtype.Numeric
			err := row.Scan(&p.ProductName, &p.Category, &revenue, &p.UnitsSold)
			p.Revenue = toDecimal(revenue)
			return p, err
		})
}

// Categories returns revenue per product category.
func (s *Store) Categories(ctx context.Context, w Window) ([]CategoryRevenue, error) {
	return collect(ctx, s.db, "categories", categoriesSQL, []any{w.arg()},
		func(row pgx.CollectableRow) (CategoryRevenue, error) {
			var c CategoryRevenue
			var revenue pgtype.Numeric
			err := row.Scan(&c.Category, &revenue, &c.Orders)
			c.Revenue = toDecimal(revenue)
			return c, err
		})
}

// Segments returns buying customers and revenue per customer segment.
func (s *Store) Segments(ctx context.Context, w Window) ([]SegmentRevenue, error) {
	return collect(ctx, s.db, "segments", segmentsSQL, []any{w.arg()},
		func(row pgx.CollectableRow) (SegmentRevenue, error) {
			var seg SegmentRevenue
			var revenue pgtype.Numeric
			err := row.Scan(&seg.Segment, &seg.Customers, &revenue)
			seg.Revenue = toDecimal(revenue)
			return seg, err
		})
}

// TopCountries returns the highest-revenue customer countries.
func (s *Store) TopCountries(ctx context.Context, w Window, limit int) ([]CountryRevenue, error) {
	return collect(ctx, s.db, "top countries", topCountriesSQL, []any{w.arg(), clampLimit(limit, 10)},
		func(row pgx.CollectableRow) (CountryRevenue, error) {
			var c CountryRevenue
			var revenue pgtype.Numeric
			err := row.Scan(&c.Country, &revenue)
			c.Revenue = toDecimal(revenue)
			return c, err
		})
}

// RecentOrders returns the newest orders of any status.
func (s *Store) RecentOrders(ctx context.Context, w Window, limit int) ([]RecentOrder, error) {
	return collect(ctx, s.db, "recent orders", recentOrdersSQL, []any{w.arg(), clampLimit(limit, 100)},
		func(row pgx.CollectableRow) (RecentOrder, error) {
			var o RecentOrder
			var amount, profit pgtype.Numeric
			err := row.Scan(&o.OrderID, &o.Customer, &o.Country, &o.OrderDate,
				&o.Status, &o.TotalItems, &amount, &profit)
			o.TotalAmount = toDecimal(amount)
			o.Profit = toDecimal(profit)
			return o, err
		})
}

func collect[T any](ctx context.Context, conn db.DB, name, sql string, args []any, fn pgx.RowToFunc[T]) ([]T, error) {
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", name, err)
	}
	out, err := pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", name, err)
	}
	return out, nil
}

// toDecimal converts a scanned NUMERIC. NULL and NaN become zero.
func toDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
