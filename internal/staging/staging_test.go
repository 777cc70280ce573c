package staging

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-dwload/internal/config"
)

type copyCall struct {
	table pgx.Identifier
	cols  []string
	rows  [][]any
}

// fakeDB records statements and COPY calls.
type fakeDB struct {
	execs  []string
	copies []copyCall
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("transactions not supported by fakeDB")
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("TRUNCATE TABLE"), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported by fakeDB")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("QueryRow not supported by fakeDB")
}

func (f *fakeDB) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	call := copyCall{table: table, cols: cols}
	for src.Next() {
		v, err := src.Values()
		if err != nil {
			return 0, err
		}
		call.rows = append(call.rows, v)
	}
	f.copies = append(f.copies, call)
	return int64(len(call.rows)), src.Err()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadCustomersByHeader(t *testing.T) {
	// Columns out of order plus one the loader does not know about.
	input := "country,customer_id,email,first_name,last_name,registration_date,phone\n" +
		"USA,1,ann@example.com,Ann,Lee,2023-04-01,555-0100\n"

	rows, err := read(Customers, strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, int32(1), row[0])
	assert.Equal(t, "Ann", row[1])
	assert.Equal(t, "Lee", row[2])
	assert.Equal(t, "ann@example.com", row[3])
	assert.Equal(t, time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), row[4])
	assert.Equal(t, "USA", row[5])
}

func TestReadOrderItemsIgnoresItemID(t *testing.T) {
	input := "order_item_id,order_id,product_id,quantity,unit_price\n" +
		"99,10,3,2,19.99\n"

	rows, err := read(OrderItems, strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 4)
	assert.Equal(t, int32(10), rows[0][0])
	assert.Equal(t, int32(3), rows[0][1])
	assert.Equal(t, int32(2), rows[0][2])
}

func TestReadEmptyFieldsAreNull(t *testing.T) {
	input := "order_id,customer_id,order_date,status\n" +
		"5,,2024-03-01 10:15:00,\n"

	rows, err := read(Orders, strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0][1])
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), rows[0][2])
	assert.Nil(t, rows[0][3])
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		input   string
		wantErr string
	}{
		{
			name:    "empty file",
			kind:    Products,
			input:   "",
			wantErr: "missing header row",
		},
		{
			name:    "missing column",
			kind:    Products,
			input:   "product_id,product_name,category,price\n1,Mug,Home,9.50\n",
			wantErr: `missing column "cost"`,
		},
		{
			name: "bad integer reports line",
			kind: Orders,
			input: "order_id,customer_id,order_date,status\n" +
				"1,1,2024-01-01,completed\n" +
				"x,1,2024-01-01,completed\n",
			wantErr: "line 3: column order_id",
		},
		{
			name: "bad amount",
			kind: Products,
			input: "product_id,product_name,category,price,cost\n" +
				"1,Mug,Home,ten,5\n",
			wantErr: "line 2: column price",
		},
		{
			name: "bad date",
			kind: Customers,
			input: "customer_id,first_name,last_name,email,registration_date,country\n" +
				"1,A,B,a@b.c,01/02/2023,USA\n",
			wantErr: "column registration_date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := read(tt.kind, strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadFileNamesPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "orders.csv", "order_id\n1\n")

	_, err := ReadFile(Orders, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)

	_, err = ReadFile(Orders, filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
}

func TestParseMoneyKeepsExactValue(t *testing.T) {
	tests := []struct {
		in      string
		wantInt int64
		wantExp int32
	}{
		{"19.99", 1999, -2},
		{"0", 0, 0},
		{"-3.5", -35, -1},
		{"120", 120, 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := parseMoney(tt.in)
			require.NoError(t, err)
			n := v.(pgtype.Numeric)
			assert.True(t, n.Valid)
			assert.Equal(t, 0, n.Int.Cmp(big.NewInt(tt.wantInt)))
			assert.Equal(t, tt.wantExp, n.Exp)
		})
	}
}

func TestParseDateTruncatesTime(t *testing.T) {
	v, err := parseDate("2024-02-29 23:59:59")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), v)
}

func TestPolicyFor(t *testing.T) {
	policies := map[string]string{
		"customers": config.PolicyAppend,
		"products":  config.PolicyReplace,
		"orders":    "merge",
	}

	tests := []struct {
		kind      Kind
		want      string
		wantError bool
	}{
		{Customers, config.PolicyAppend, false},
		{Products, config.PolicyReplace, false},
		{Orders, "", true},
		{OrderItems, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := PolicyFor(policies, tt.kind)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("order_items")
	require.NoError(t, err)
	assert.Equal(t, OrderItems, k)
	assert.Equal(t, "order_items.csv", k.File())

	_, err = ParseKind("returns")
	assert.Error(t, err)
}

func newTestLoader(fdb *fakeDB, policies map[string]string, batch int) *Loader {
	l := NewLoader(fdb, config.StagingConfig{Policies: policies, BatchSize: batch}, false, "run-1")
	l.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l
}

func TestLoaderReplaceCopiesInChunks(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "products.csv",
		"product_id,product_name,category,price,cost\n"+
			"1,A,X,10,5\n2,B,X,10,5\n3,C,Y,10,5\n4,D,Y,10,5\n5,E,Z,0,5\n")

	fdb := &fakeDB{}
	l := newTestLoader(fdb, map[string]string{"products": config.PolicyReplace}, 2)

	n, err := l.Load(context.Background(), Products, path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	require.Len(t, fdb.execs, 1)
	assert.Equal(t, `TRUNCATE TABLE "staging"."products" RESTART IDENTITY`, fdb.execs[0])

	require.Len(t, fdb.copies, 3)
	assert.Len(t, fdb.copies[0].rows, 2)
	assert.Len(t, fdb.copies[1].rows, 2)
	assert.Len(t, fdb.copies[2].rows, 1)
	assert.Equal(t, pgx.Identifier{"staging", "products"}, fdb.copies[0].table)
	assert.Equal(t,
		[]string{"product_id", "product_name", "category", "price", "cost",
			"load_timestamp", "source_file", "load_run_id"},
		fdb.copies[0].cols)

	last := fdb.copies[2].rows[0]
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), last[5])
	assert.Equal(t, "products.csv", last[6])
	assert.Equal(t, "run-1", last[7])
}

func TestLoaderAppendDoesNotTruncate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "customers.csv",
		"customer_id,first_name,last_name,email,registration_date,country\n"+
			"1,Ann,Lee,ann@example.com,2023-01-01,USA\n")

	fdb := &fakeDB{}
	l := newTestLoader(fdb, map[string]string{"customers": config.PolicyAppend}, 1000)

	n, err := l.Load(context.Background(), Customers, path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, fdb.execs)
	assert.Len(t, fdb.copies, 1)
}

func TestLoaderParseErrorWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "orders.csv",
		"order_id,customer_id,order_date,status\n1,1,not-a-date,completed\n")

	fdb := &fakeDB{}
	l := newTestLoader(fdb, map[string]string{"orders": config.PolicyReplace}, 1000)

	_, err := l.Load(context.Background(), Orders, path)
	require.Error(t, err)
	assert.Empty(t, fdb.execs)
	assert.Empty(t, fdb.copies)
}

func TestLoadAllStopsAtFirstFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "customers.csv",
		"customer_id,first_name,last_name,email,registration_date,country\n"+
			"1,Ann,Lee,ann@example.com,2023-01-01,USA\n")
	// products.csv is missing

	fdb := &fakeDB{}
	l := newTestLoader(fdb, config.DefaultConfig().Staging.Policies, 1000)

	counts, err := l.LoadAll(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging products")
	assert.Equal(t, int64(1), counts[Customers])
	_, ok := counts[Orders]
	assert.False(t, ok)
}
