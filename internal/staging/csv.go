package staging

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// column describes one input column and how to convert its text.
// A parse function returns nil for an empty field, which is stored as NULL.
type column struct {
	name  string
	parse func(string) (any, error)
}

// layouts lists the input columns for each kind in staging table order.
// Input files may carry extra columns; they are ignored.
var layouts = map[Kind][]column{
	Customers: {
		{"customer_id", parseInt},
		{"first_name", parseText},
		{"last_name", parseText},
		{"email", parseText},
		{"registration_date", parseDate},
		{"country", parseText},
	},
	Products: {
		{"product_id", parseInt},
		{"product_name", parseText},
		{"category", parseText},
		{"price", parseMoney},
		{"cost", parseMoney},
	},
	Orders: {
		{"order_id", parseInt},
		{"customer_id", parseInt},
		{"order_date", parseTimestamp},
		{"status", parseText},
	},
	OrderItems: {
		{"order_id", parseInt},
		{"product_id", parseInt},
		{"quantity", parseInt},
		{"unit_price", parseMoney},
	},
}

// provenanceColumns are appended to every staged row.
var provenanceColumns = []string{"load_timestamp", "source_file", "load_run_id"}

// Columns returns the staging columns written for kind, provenance included.
func Columns(kind Kind) []string {
	cols := make([]string, 0, len(layouts[kind])+len(provenanceColumns))
	for _, c := range layouts[kind] {
		cols = append(cols, c.name)
	}
	return append(cols, provenanceColumns...)
}

// ReadFile parses the input file for kind. Columns are matched by header
// name. Each returned row holds the values for the kind's columns in
// order, without provenance.
func ReadFile(kind Kind, path string) ([][]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := read(kind, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

func read(kind Kind, r io.Reader) ([][]any, error) {
	layout, ok := layouts[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind: %s", kind)
	}

	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("missing header row")
	}
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	positions := make([]int, len(layout))
	for i, c := range layout {
		pos, ok := index[c.name]
		if !ok {
			return nil, fmt.Errorf("missing column %q", c.name)
		}
		positions[i] = pos
	}

	var rows [][]any
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		row := make([]any, len(layout))
		for i, c := range layout {
			v, err := c.parse(strings.TrimSpace(rec[positions[i]]))
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", line, c.name, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseText(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	return s, nil
}

func parseInt(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return int32(n), nil
}

// parseMoney keeps the exact decimal text; values are never rounded or
// clamped on the way in.
func parseMoney(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}, nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

func parseTimestamp(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("invalid timestamp %q", s)
}

func parseDate(s string) (any, error) {
	v, err := parseTimestamp(s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", s)
	}
	if v == nil {
		return nil, nil
	}
	t := v.(time.Time)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
