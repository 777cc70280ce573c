//go:build integration

package transform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-dwload/internal/config"
	"github.com/pgEdge/pgedge-dwload/internal/staging"
	"github.com/pgEdge/pgedge-dwload/internal/testutil"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type extracts struct {
	customers, products, orders, items [][]string
}

func baseExtracts() extracts {
	return extracts{
		customers: [][]string{
			{"customer_id", "first_name", "last_name", "email", "registration_date", "country"},
			{"1", "Ada", "Lovelace", "ada@example.com", "2024-06-14", "UK"},
			{"2", "Alan", "Turing", "alan@example.com", "2024-06-15", "UK"},
			{"3", "Grace", "Hopper", "grace@example.com", "2024-12-15", "USA"},
		},
		products: [][]string{
			{"product_id", "product_name", "category", "price", "cost"},
			{"10", "Mug", "Home", "10.00", "3.00"},
			{"20", "Lamp", "Home", "20.00", "15.00"},
			{"30", "Pen", "Office", "5.00", "3.00"},
			{"40", "Sample", "Office", "0", "1.00"},
		},
		orders: [][]string{
			{"order_id", "customer_id", "order_date", "status"},
			{"100", "1", "2025-06-01 09:30:00", "completed"},
			{"101", "2", "2025-06-02 12:00:00", "completed"},
			{"102", "99", "2025-06-02 13:00:00", "pending"},
		},
		items: [][]string{
			{"order_item_id", "order_id", "product_id", "quantity", "unit_price"},
			{"1", "100", "10", "2", "10.00"},
			{"2", "100", "20", "1", "20.00"},
			{"3", "100", "30", "4", "5.00"},
			{"4", "102", "10", "1", "10.00"},
			{"5", "102", "999", "3", "7.00"},
		},
	}
}

func stage(t *testing.T, pool *pgxpool.Pool, e extracts) {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteCSV(t, dir, "customers.csv", e.customers)
	testutil.WriteCSV(t, dir, "products.csv", e.products)
	testutil.WriteCSV(t, dir, "orders.csv", e.orders)
	testutil.WriteCSV(t, dir, "order_items.csv", e.items)

	cfg := config.DefaultConfig()
	for k := range cfg.Staging.Policies {
		cfg.Staging.Policies[k] = config.PolicyReplace
	}
	_, err := staging.NewLoader(pool, cfg.Staging, true, "test-run").LoadAll(context.Background(), dir)
	require.NoError(t, err)
}

func transformAll(t *testing.T, pool *pgxpool.Pool, etl config.ETLConfig) error {
	t.Helper()
	ctx := context.Background()
	if _, err := NewDimensions(pool, etl).WithClock(func() time.Time { return testNow }).LoadAll(ctx); err != nil {
		return err
	}
	_, err := NewFacts(pool, etl).LoadAll(ctx)
	return err
}

func scanText(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) *string {
	t.Helper()
	var s *string
	require.NoError(t, pool.QueryRow(context.Background(), sql, args...).Scan(&s))
	return s
}

func TestIntegrationOrderAggregation(t *testing.T) {
	pool := testutil.NewWarehouse(t, "transform")
	stage(t, pool, baseExtracts())
	require.NoError(t, transformAll(t, pool, config.DefaultConfig().ETL))

	ctx := context.Background()
	var items int
	var amount, cost, profit string
	err := pool.QueryRow(ctx, `
        SELECT total_items, total_amount::text, total_cost::text, profit::text
        FROM marts.fact_orders WHERE order_id = 100`).Scan(&items, &amount, &cost, &profit)
	require.NoError(t, err)
	assert.Equal(t, 7, items)
	assert.Equal(t, "60.00", amount)
	assert.Equal(t, "39.00", cost)
	assert.Equal(t, "21.00", profit)

	var lineSum string
	err = pool.QueryRow(ctx, `
        SELECT SUM(total_price)::text FROM marts.fact_order_items WHERE order_id = 100`).Scan(&lineSum)
	require.NoError(t, err)
	assert.Equal(t, amount, lineSum)
}

func TestIntegrationOrderWithoutItems(t *testing.T) {
	pool := testutil.NewWarehouse(t, "transform")
	stage(t, pool, baseExtracts())
	require.NoError(t, transformAll(t, pool, config.DefaultConfig().ETL))

	var items int
	var amount string
	err := pool.QueryRow(context.Background(), `
        SELECT total_items, total_amount::text FROM marts.fact_orders WHERE order_id = 101`).Scan(&items, &amount)
	require.NoError(t, err)
	assert.Equal(t, 0, items)
	assert.Equal(t, "0.00", amount)
}

func TestIntegrationUnknownProductExcluded(t *testing.T) {
	pool := testutil.NewWarehouse(t, "transform")
	stage(t, pool, baseExtracts())
	require.NoError(t, transformAll(t, pool, config.DefaultConfig().ETL))

	ctx := context.Background()
	var items int
	var amount string
	err := pool.QueryRow(ctx, `
        SELECT total_items, total_amount::text FROM marts.fact_orders WHERE order_id = 102`).Scan(&items, &amount)
	require.NoError(t, err)
	assert.Equal(t, 1, items)
	assert.Equal(t, "10.00", amount)

	var lines int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM marts.fact_order_items WHERE order_id = 102`).Scan(&lines))
	assert.Equal(t, 1, lines)
}

func TestIntegrationUnmatchedCustomerPolicy(t *testing.T) {
	pool := testutil.NewWarehouse(t, "transform")
	stage(t, pool, baseExtracts())
	ctx := context.Background()

	etl := config.DefaultConfig().ETL
	require.NoError(t, transformAll(t, pool, etl))
	var n int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM marts.fact_orders WHERE customer_key IS NULL`).Scan(&n))
	assert.Equal(t, 1, n)

	etl.UnmatchedCustomer = config.UnmatchedReject
	require.NoError(t, transformAll(t, pool, etl))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM marts.fact_orders`).Scan(&n))
	assert.Equal(t, 2, n)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM marts.fact_order_items WHERE order_id = 102`).Scan(&n))
	assert.Zero(t, n)
}

func TestIntegrationMargin(t *testing.T) {
	pool := testutil.NewWarehouse(t, "transform")
	stage(t, pool, baseExtracts())
	require.NoError(t, transformAll(t, pool, config.DefaultConfig().ETL))

	lamp := scanText(t, pool, `SELECT margin_percent::text FROM marts.dim_products WHERE product_id = 20`)
	require.NotNil(t, lamp)
	assert.Equal(t, "25.00", *lamp)

	free := scanText(t, pool, `SELECT margin_percent::text FROM marts.dim_products WHERE product_id = 40`)
	assert.Nil(t, free, "zero price has no margin")
}

func TestIntegrationSegments(t *testing.T) {
	pool := testutil.NewWarehouse(t, "transform")
	stage(t, pool, baseExtracts())
	require.NoError(t, transformAll(t, pool, config.DefaultConfig().ETL))

	want := map[int32]string{1: SegmentLoyal, 2: SegmentRegular, 3: SegmentNew}
	for id, segment := range want {
		got := scanText(t, pool, `SELECT customer_segment FROM marts.dim_customers WHERE customer_id = $1`, id)
		require.NotNil(t, got)
		assert.Equal(t, segment, *got, "customer %d", id)
	}
}

func TestIntegrationIdempotent(t *testing.T) {
	pool := testutil.NewWarehouse(t, "transform")
	stage(t, pool, baseExtracts())
	etl := config.DefaultConfig().ETL

	snapshot := func() string {
		s := scanText(t, pool, `
            SELECT string_agg(order_id || ':' || total_amount || ':' || COALESCE(customer_key::text, '-'), ',' ORDER BY order_id)
            FROM marts.fact_orders`)
		require.NotNil(t, s)
		return *s
	}

	require.NoError(t, transformAll(t, pool, etl))
	first := snapshot()
	require.NoError(t, transformAll(t, pool, etl))
	assert.Equal(t, first, snapshot())

	var n int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT MIN(customer_key) FROM marts.dim_customers`).Scan(&n))
	assert.Equal(t, 1, n, "surrogate keys restart on every load")
}

func TestIntegrationDuplicatePolicies(t *testing.T) {
	pool := testutil.NewWarehouse(t, "transform")
	e := baseExtracts()
	e.customers = append(e.customers,
		[]string{"1", "Ada", "King", "ada@example.com", "2024-06-14", "UK"})
	stage(t, pool, e)

	etl := config.DefaultConfig().ETL
	require.NoError(t, transformAll(t, pool, etl))
	last := scanText(t, pool, `SELECT last_name FROM marts.dim_customers WHERE customer_id = 1`)
	require.NotNil(t, last)
	assert.Equal(t, "King", *last, "the later staged row wins")

	etl.DuplicatePolicy = config.DuplicateReject
	err := transformAll(t, pool, etl)
	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup), "got %v", err)
	assert.Equal(t, "dim_customers", dup.Table)
	assert.Equal(t, []int32{1}, dup.Keys)
}
