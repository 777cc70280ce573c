package transform

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-dwload/internal/config"
)

// fakeDB records executed statements. Inserts report insertRows affected
// rows and scalar queries return scalar.
type fakeDB struct {
	execs      []string
	args       [][]any
	insertRows int64
	scalar     int64
	failOn     string
}

type fakeRow struct{ n int64 }

func (r fakeRow) Scan(dest ...any) error {
	*dest[0].(*int64) = r.n
	return nil
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("transactions not supported by fakeDB")
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	if strings.Contains(sql, "INSERT INTO") {
		return pgconn.NewCommandTag("INSERT 0 " + strconv.FormatInt(f.insertRows, 10)), nil
	}
	return pgconn.NewCommandTag("TRUNCATE TABLE"), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported by fakeDB")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{n: f.scalar}
}

func (f *fakeDB) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("copy not supported by fakeDB")
}

func etlConfig() config.ETLConfig {
	return config.ETLConfig{
		DuplicatePolicy:   config.DuplicateLatest,
		UnmatchedCustomer: config.UnmatchedNull,
		AtomicSteps:       false,
	}
}

func TestSegmentCutoffs(t *testing.T) {
	tests := []struct {
		name        string
		now         time.Time
		wantLoyal   string
		wantRegular string
	}{
		{
			name:        "mid month",
			now:         time.Date(2025, 6, 15, 13, 45, 0, 0, time.UTC),
			wantLoyal:   "2024-06-15",
			wantRegular: "2024-12-15",
		},
		{
			name:        "end of month clamps",
			now:         time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC),
			wantLoyal:   "2024-08-31",
			wantRegular: "2025-02-28",
		},
		{
			name:        "leap day",
			now:         time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC),
			wantLoyal:   "2023-02-28",
			wantRegular: "2023-08-29",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loyal, regular := SegmentCutoffs(tt.now)
			assert.Equal(t, tt.wantLoyal, loyal.Format(time.DateOnly))
			assert.Equal(t, tt.wantRegular, regular.Format(time.DateOnly))
		})
	}
}

func TestSegmentBoundaries(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	day := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &t
	}

	tests := []struct {
		name       string
		registered *time.Time
		want       string
	}{
		{"one year and a day", day(2024, 6, 14), SegmentLoyal},
		{"exactly one year", day(2024, 6, 15), SegmentRegular},
		{"six months and a day", day(2024, 12, 14), SegmentRegular},
		{"exactly six months", day(2024, 12, 15), SegmentNew},
		{"today", day(2025, 6, 15), SegmentNew},
		{"unknown", nil, SegmentNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Segment(tt.registered, now))
		})
	}
}

func TestDimensionsLoadAll(t *testing.T) {
	fdb := &fakeDB{insertRows: 4}
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	d := NewDimensions(fdb, etlConfig()).WithClock(func() time.Time { return now })

	counts, err := d.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"dim_customers": 4,
		"dim_products":  4,
		"dim_date":      4,
	}, counts)

	require.Len(t, fdb.execs, 6)
	assert.Contains(t, fdb.execs[0], "TRUNCATE TABLE marts.dim_customers")
	assert.Contains(t, fdb.execs[1], "INSERT INTO marts.dim_customers")
	assert.Contains(t, fdb.execs[2], "TRUNCATE TABLE marts.dim_products")
	assert.Contains(t, fdb.execs[3], "INSERT INTO marts.dim_products")
	assert.Contains(t, fdb.execs[4], "TRUNCATE TABLE marts.dim_date")
	assert.Contains(t, fdb.execs[5], "INSERT INTO marts.dim_date")

	// Segment cutoffs are bound parameters.
	loyal, regular := SegmentCutoffs(now)
	require.Len(t, fdb.args[1], 3)
	assert.Equal(t, loyal, fdb.args[1][0])
	assert.Equal(t, regular, fdb.args[1][1])
}

func TestDimensionsStopOnFailure(t *testing.T) {
	fdb := &fakeDB{insertRows: 2, failOn: "INSERT INTO marts.dim_products"}
	d := NewDimensions(fdb, etlConfig())

	counts, err := d.LoadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dim_products")
	assert.Equal(t, int64(2), counts["dim_customers"])
	_, ok := counts["dim_date"]
	assert.False(t, ok)
	for _, sql := range fdb.execs {
		assert.NotContains(t, sql, "dim_date")
	}
}

func TestFactOrdersJoinFollowsPolicy(t *testing.T) {
	assert.Contains(t, factOrdersSQL(config.UnmatchedNull),
		"LEFT JOIN marts.dim_customers dc")
	assert.Contains(t, factOrdersSQL(config.UnmatchedReject),
		"INNER JOIN marts.dim_customers dc")
	assert.NotContains(t, factOrdersSQL(config.UnmatchedNull), "%!")
}

func TestFactsLoadAllOrdersBeforeItems(t *testing.T) {
	fdb := &fakeDB{insertRows: 3, scalar: 1}
	f := NewFacts(fdb, etlConfig())

	counts, err := f.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts["fact_orders"])
	assert.Equal(t, int64(3), counts["fact_order_items"])

	require.Len(t, fdb.execs, 4)
	assert.Contains(t, fdb.execs[0], "TRUNCATE TABLE marts.fact_orders")
	assert.Contains(t, fdb.execs[1], "INSERT INTO marts.fact_orders")
	assert.Contains(t, fdb.execs[2], "TRUNCATE TABLE marts.fact_order_items")
	assert.Contains(t, fdb.execs[3], "INSERT INTO marts.fact_order_items")
}

func TestFactsSkipItemsWhenOrdersFail(t *testing.T) {
	fdb := &fakeDB{failOn: "INSERT INTO marts.fact_orders"}
	f := NewFacts(fdb, etlConfig())

	_, err := f.LoadAll(context.Background())
	require.Error(t, err)
	for _, sql := range fdb.execs {
		assert.NotContains(t, sql, "fact_order_items (")
	}
}

func TestDuplicateKeyError(t *testing.T) {
	err := &DuplicateKeyError{Table: "dim_customers", Keys: []int32{3, 17}}
	assert.Equal(t, "dim_customers: conflicting staged rows for natural keys 3, 17", err.Error())

	var target *DuplicateKeyError
	wrapped := errors.Join(errors.New("load failed"), err)
	assert.True(t, errors.As(wrapped, &target))
}
