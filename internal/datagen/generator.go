//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-dwload/internal/logging"
)

// Order statuses and how often each occurs.
var (
	orderStatuses = []string{"completed", "cancelled", "pending", "shipped"}
	statusWeights = []int{80, 10, 5, 5}
)

var productCategories = []string{
	"Electronics", "Clothing", "Home & Garden", "Books",
	"Sports", "Toys", "Food & Beverage", "Health & Beauty",
}

// Counts sets how many rows of each entity to generate. Order items are
// derived: every order gets one to five distinct products.
type Counts struct {
	Customers int
	Products  int
	Orders    int
}

// Result reports what was written.
type Result struct {
	Files map[string]int64 // rows per file
	Bytes int64
}

// Generator writes a consistent set of sample input files.
type Generator struct {
	f   *Faker
	now time.Time
}

// NewGenerator creates a generator. Dates are spread backwards from now.
func NewGenerator(seed uint64, now time.Time) *Generator {
	return &Generator{f: NewFakerWithSeed(seed), now: now}
}

type product struct {
	id    int
	price decimal.Decimal
}

// WriteAll writes customers.csv, products.csv, orders.csv and
// order_items.csv into dir, creating it if needed.
func (g *Generator) WriteAll(dir string, counts Counts) (*Result, error) {
	if counts.Customers < 1 || counts.Products < 1 || counts.Orders < 0 {
		return nil, fmt.Errorf("need at least one customer and one product")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	res := &Result{Files: make(map[string]int64)}

	write := func(name string, header []string, total int64, fill func(emit func([]string) error) error) error {
		path := filepath.Join(dir, name)
		fh, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer fh.Close()

		w := csv.NewWriter(fh)
		if err := w.Write(header); err != nil {
			return err
		}
		progress := NewProgressReporter(name, total, 10000)
		var rows int64
		err = fill(func(rec []string) error {
			rows++
			progress.Update(1)
			return w.Write(rec)
		})
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		progress.Done()

		if info, err := fh.Stat(); err == nil {
			res.Bytes += info.Size()
		}
		res.Files[name] = rows
		return nil
	}

	// Customers registered within the last two years.
	err := write("customers.csv",
		[]string{"customer_id", "first_name", "last_name", "email", "registration_date", "country"},
		int64(counts.Customers),
		func(emit func([]string) error) error {
			for id := 1; id <= counts.Customers; id++ {
				reg := g.f.DateRange(g.now.AddDate(-2, 0, 0), g.now)
				if err := emit([]string{
					strconv.Itoa(id),
					g.f.FirstName(),
					g.f.LastName(),
					g.f.Email(),
					reg.Format(time.DateOnly),
					g.f.Country(),
				}); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	// Products are priced at 1.3 to 2.5 times cost.
	products := make([]product, 0, counts.Products)
	err = write("products.csv",
		[]string{"product_id", "product_name", "category", "price", "cost"},
		int64(counts.Products),
		func(emit func([]string) error) error {
			for id := 1; id <= counts.Products; id++ {
				cost := g.f.Money(5, 250)
				price := cost.Mul(decimal.NewFromFloat(g.f.Float64(1.3, 2.5))).Round(2)
				products = append(products, product{id: id, price: price})
				if err := emit([]string{
					strconv.Itoa(id),
					g.f.Title(),
					Choose(g.f, productCategories),
					price.StringFixed(2),
					cost.StringFixed(2),
				}); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	// Orders placed over the last year.
	start := g.now.AddDate(0, 0, -365)
	err = write("orders.csv",
		[]string{"order_id", "customer_id", "order_date", "status"},
		int64(counts.Orders),
		func(emit func([]string) error) error {
			for id := 1; id <= counts.Orders; id++ {
				placed := start.
					AddDate(0, 0, g.f.Int(0, 365)).
					Add(time.Duration(g.f.Int(0, 23)) * time.Hour).
					Add(time.Duration(g.f.Int(0, 59)) * time.Minute)
				if err := emit([]string{
					strconv.Itoa(id),
					strconv.Itoa(g.f.Int(1, counts.Customers)),
					placed.Format(time.DateTime),
					ChooseWeighted(g.f, orderStatuses, statusWeights),
				}); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	// Each order gets one to five distinct products at list price.
	err = write("order_items.csv",
		[]string{"order_item_id", "order_id", "product_id", "quantity", "unit_price"},
		int64(counts.Orders)*3,
		func(emit func([]string) error) error {
			itemID := 1
			for orderID := 1; orderID <= counts.Orders; orderID++ {
				for _, p := range Sample(g.f, products, g.f.Int(1, 5)) {
					if err := emit([]string{
						strconv.Itoa(itemID),
						strconv.Itoa(orderID),
						strconv.Itoa(p.id),
						strconv.Itoa(g.f.Int(1, 5)),
						p.price.StringFixed(2),
					}); err != nil {
						return err
					}
					itemID++
				}
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	logging.Info().
		Str("dir", dir).
		Str("size", FormatSize(res.Bytes)).
		Msg("Sample data written")

	return res, nil
}

// ProgressReporter tracks and reports data generation progress.
type ProgressReporter struct {
	name             string
	totalRows        int64
	currentRow       int64
	progressInterval int64
}

// NewProgressReporter creates a new progress reporter.
func NewProgressReporter(name string, totalRows int64, interval int64) *ProgressReporter {
	return &ProgressReporter{
		name:             name,
		totalRows:        totalRows,
		progressInterval: max(1, interval),
	}
}

// Update updates the progress and logs if necessary.
func (p *ProgressReporter) Update(rows int64) {
	oldRow := p.currentRow
	p.currentRow += rows

	// Check if we crossed a progress interval
	if p.currentRow/p.progressInterval > oldRow/p.progressInterval {
		logging.Debug().
			Str("file", p.name).
			Int64("rows", p.currentRow).
			Int64("estimated_total", p.totalRows).
			Msg("Generating data")
	}
}

// Done logs completion.
func (p *ProgressReporter) Done() {
	logging.Info().
		Str("file", p.name).
		Int64("rows", p.currentRow).
		Msg("File complete")
}

// FormatSize formats a byte count as a human-readable string.
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
