package validate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB answers COUNT queries. Table counts are looked up by quoted
// identifier; every other query by a substring of its SQL.
type fakeDB struct {
	tables map[string]int64
	checks map[string]int64
	fail   string
}

type fakeRow struct {
	n   int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.n
	return nil
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not supported")
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not supported")
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.fail != "" && strings.Contains(sql, f.fail) {
		return fakeRow{err: errors.New("relation does not exist")}
	}
	for table, n := range f.tables {
		if strings.HasSuffix(sql, table) {
			return fakeRow{n: n}
		}
	}
	for frag, n := range f.checks {
		if strings.Contains(sql, frag) {
			return fakeRow{n: n}
		}
	}
	return fakeRow{}
}

func (f *fakeDB) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not supported")
}

func loadedTables() map[string]int64 {
	return map[string]int64{
		`"staging"."customers"`:      3,
		`"staging"."products"`:       2,
		`"staging"."orders"`:         5,
		`"staging"."order_items"`:    8,
		`"marts"."dim_customers"`:    3,
		`"marts"."dim_products"`:     2,
		`"marts"."dim_date"`:         4,
		`"marts"."fact_orders"`:      5,
		`"marts"."fact_order_items"`: 8,
	}
}

func TestValidateHealthyWarehouse(t *testing.T) {
	v := NewValidator(&fakeDB{tables: loadedTables()})

	report, err := v.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Empty(t, report.Issues)
	assert.Len(t, report.Counts, 9)
	assert.Equal(t, int64(5), report.Counts["marts.fact_orders"])
	assert.Equal(t, int64(8), report.Counts["staging.order_items"])
}

func TestValidateIssues(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*fakeDB)
		wantCheck  string
		wantPassed bool
	}{
		{
			name: "empty fact_orders",
			mutate: func(f *fakeDB) {
				f.tables[`"marts"."fact_orders"`] = 0
			},
			wantCheck:  "fact_orders_empty",
			wantPassed: false,
		},
		{
			name: "empty dim_customers",
			mutate: func(f *fakeDB) {
				f.tables[`"marts"."dim_customers"`] = 0
			},
			wantCheck:  "dim_customers_empty",
			wantPassed: false,
		},
		{
			name: "negative totals",
			mutate: func(f *fakeDB) {
				f.checks["total_amount < 0"] = 2
			},
			wantCheck:  "fact_orders_negative_totals",
			wantPassed: false,
		},
		{
			name: "line mismatch",
			mutate: func(f *fakeDB) {
				f.checks["lines_total"] = 1
			},
			wantCheck:  "fact_orders_line_mismatch",
			wantPassed: false,
		},
		{
			name: "orders without customer only warn",
			mutate: func(f *fakeDB) {
				f.checks["customer_key IS NULL"] = 4
			},
			wantCheck:  "fact_orders_unknown_customer",
			wantPassed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeDB{tables: loadedTables(), checks: map[string]int64{}}
			tt.mutate(f)

			report, err := NewValidator(f).Validate(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantPassed, report.Passed)
			require.Len(t, report.Issues, 1)
			assert.Equal(t, tt.wantCheck, report.Issues[0].Check)
		})
	}
}

func TestValidateQueryFailure(t *testing.T) {
	f := &fakeDB{tables: loadedTables(), fail: `"marts"."dim_date"`}

	_, err := NewValidator(f).Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marts.dim_date")
}

func TestReportPrint(t *testing.T) {
	report := &Report{
		Counts: map[string]int64{"marts.fact_orders": 5},
		Issues: []Issue{
			{Check: "dim_customers_empty", Severity: SeverityError, Message: "dim_customers is empty"},
			{Check: "fact_orders_unknown_customer", Severity: SeverityWarning, Message: "orders with no matching customer", Count: 2},
		},
		Passed: false,
	}

	var buf bytes.Buffer
	report.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "marts.fact_orders")
	assert.Contains(t, out, "[error] dim_customers is empty")
	assert.Contains(t, out, "[warning] orders with no matching customer (2 rows)")
	assert.Contains(t, out, "Validation: FAILED")
}
