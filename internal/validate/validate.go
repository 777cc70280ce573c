//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package validate checks the loaded warehouse for emptiness and internal
// consistency. Problems are reported, never repaired.
package validate

import (
	"context"
	"fmt"
	"io"

	"github.com/pgEdge/pgedge-dwload/internal/db"
	"github.com/pgEdge/pgedge-dwload/internal/logging"
)

// Severity of a validation issue.
type Severity string

// Severities. Only errors make a report fail.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one failed check.
type Issue struct {
	Check    string
	Severity Severity
	Message  string
	Count    int64
}

// Report is the outcome of a validation pass.
type Report struct {
	// Counts is keyed by schema-qualified table name.
	Counts map[string]int64
	Issues []Issue
	Passed bool
}

// check is a consistency query returning the number of offending rows.
type check struct {
	name     string
	severity Severity
	message  string
	sql      string
}

var checks = []check{
	{
		name:     "dim_customers_null_key",
		severity: SeverityError,
		message:  "customers without a natural key",
		sql:      `SELECT COUNT(*) FROM marts.dim_customers WHERE customer_id IS NULL`,
	},
	{
		name:     "dim_products_null_key",
		severity: SeverityError,
		message:  "products without a natural key",
		sql:      `SELECT COUNT(*) FROM marts.dim_products WHERE product_id IS NULL`,
	},
	{
		name:     "fact_orders_negative_totals",
		severity: SeverityError,
		message:  "orders with negative item count or amount",
		sql:      `SELECT COUNT(*) FROM marts.fact_orders WHERE total_items < 0 OR total_amount < 0`,
	},
	{
		name:     "fact_orders_line_mismatch",
		severity: SeverityError,
		message:  "orders whose total_amount differs from the sum of their lines",
		sql: `
            SELECT COUNT(*)
            FROM marts.fact_orders fo
            LEFT JOIN (
                SELECT order_key, SUM(total_price) AS lines_total
                FROM marts.fact_order_items
                GROUP BY order_key
            ) i ON i.order_key = fo.order_key
            WHERE fo.total_amount <> COALESCE(i.lines_total, 0)`,
	},
	{
		name:     "fact_orders_unknown_customer",
		severity: SeverityWarning,
		message:  "orders with no matching customer",
		sql:      `SELECT COUNT(*) FROM marts.fact_orders WHERE customer_key IS NULL`,
	},
}

// requiredTables must not be empty after a load.
var requiredTables = []string{"fact_orders", "dim_customers"}

// Validator runs the validation pass.
type Validator struct {
	db db.DB
}

// NewValidator creates a Validator.
func NewValidator(database db.DB) *Validator {
	return &Validator{db: database}
}

// Validate counts every warehouse table and runs the consistency checks.
// An error is returned only when a query fails; failed checks are recorded
// in the report and logged as warnings.
func (v *Validator) Validate(ctx context.Context) (*Report, error) {
	report := &Report{Counts: make(map[string]int64)}

	for _, t := range db.StagingTables {
		if err := v.count(ctx, report, db.StagingSchema, t); err != nil {
			return nil, err
		}
	}
	for _, t := range db.MartTables {
		if err := v.count(ctx, report, db.MartsSchema, t); err != nil {
			return nil, err
		}
	}

	for _, t := range requiredTables {
		if report.Counts[db.MartsSchema+"."+t] == 0 {
			report.Issues = append(report.Issues, Issue{
				Check:    t + "_empty",
				Severity: SeverityError,
				Message:  fmt.Sprintf("%s is empty", t),
			})
		}
	}

	for _, c := range checks {
		var n int64
		if err := v.db.QueryRow(ctx, c.sql).Scan(&n); err != nil {
			return nil, fmt.Errorf("validation check %s failed: %w", c.name, err)
		}
		if n > 0 {
			report.Issues = append(report.Issues, Issue{
				Check:    c.name,
				Severity: c.severity,
				Message:  c.message,
				Count:    n,
			})
		}
	}

	report.Passed = true
	for _, issue := range report.Issues {
		if issue.Severity == SeverityError {
			report.Passed = false
		}
		logging.Warn().
			Str("check", issue.Check).
			Str("severity", string(issue.Severity)).
			Int64("rows", issue.Count).
			Msg(issue.Message)
	}

	logging.Info().
		Bool("passed", report.Passed).
		Int("issues", len(report.Issues)).
		Msg("Validation complete")

	return report, nil
}

func (v *Validator) count(ctx context.Context, report *Report, schema, table string) error {
	n, err := db.TableCount(ctx, v.db, schema, table)
	if err != nil {
		return err
	}
	report.Counts[schema+"."+table] = n
	return nil
}

// Print writes the table counts and issues in a fixed layout.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "Table counts:")
	for _, schema := range []struct {
		name   string
		tables []string
	}{
		{db.StagingSchema, db.StagingTables},
		{db.MartsSchema, db.MartTables},
	} {
		for _, t := range schema.tables {
			key := schema.name + "." + t
			fmt.Fprintf(w, "  %-28s %10d\n", key, r.Counts[key])
		}
	}

	if len(r.Issues) == 0 {
		fmt.Fprintln(w, "No issues found")
	} else {
		fmt.Fprintln(w, "Issues:")
		for _, issue := range r.Issues {
			if issue.Count > 0 {
				fmt.Fprintf(w, "  [%s] %s (%d rows)\n", issue.Severity, issue.Message, issue.Count)
			} else {
				fmt.Fprintf(w, "  [%s] %s\n", issue.Severity, issue.Message)
			}
		}
	}

	status := "PASSED"
	if !r.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(w, "Validation: %s\n", status)
}
