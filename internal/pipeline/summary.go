package pipeline

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pgEdge/pgedge-dwload/internal/db"
	"github.com/pgEdge/pgedge-dwload/internal/logging"
	"github.com/pgEdge/pgedge-dwload/internal/staging"
	"github.com/pgEdge/pgedge-dwload/internal/validate"
)

// Summary describes a pipeline run.
type Summary struct {
	RunID    string
	DataDir  string
	Start    time.Time
	End      time.Time
	Duration time.Duration

	// Stage is the last stage entered. On failure it is the stage that failed.
	Stage Stage

	Staged     map[staging.Kind]int64
	Dimensions map[string]int64
	Facts      map[string]int64
	Validation *validate.Report
}

func (s *Summary) finish(end time.Time) {
	s.End = end
	s.Duration = end.Sub(s.Start)
}

// Log writes the summary through the structured logger.
func (s *Summary) Log() {
	logging.Info().
		Str("run_id", s.RunID).
		Dur("duration", s.Duration).
		Msg("Final summary")

	for _, kind := range staging.Kinds {
		logging.Info().
			Str("table", db.StagingSchema+"."+kind.Table()).
			Int64("rows", s.Staged[kind]).
			Msg("")
	}
	for _, table := range db.MartTables {
		n, ok := s.Dimensions[table]
		if !ok {
			n = s.Facts[table]
		}
		logging.Info().
			Str("table", db.MartsSchema+"."+table).
			Int64("rows", n).
			Msg("")
	}
	if s.Validation != nil {
		logging.Info().
			Bool("passed", s.Validation.Passed).
			Int("issues", len(s.Validation.Issues)).
			Msg("Validation")
	}
}

// Print writes a human-readable summary.
func (s *Summary) Print(w io.Writer) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "PIPELINE SUMMARY")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Run ID:    %s\n", s.RunID)
	fmt.Fprintf(w, "Started:   %s\n", s.Start.Format(time.DateTime))
	fmt.Fprintf(w, "Finished:  %s\n", s.End.Format(time.DateTime))
	fmt.Fprintf(w, "Duration:  %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Staged rows:")
	for _, kind := range staging.Kinds {
		fmt.Fprintf(w, "  %-20s %10d\n", kind, s.Staged[kind])
	}
	fmt.Fprintln(w, "Dimensions:")
	for _, table := range []string{"dim_customers", "dim_products", "dim_date"} {
		fmt.Fprintf(w, "  %-20s %10d\n", table, s.Dimensions[table])
	}
	fmt.Fprintln(w, "Facts:")
	for _, table := range []string{"fact_orders", "fact_order_items"} {
		fmt.Fprintf(w, "  %-20s %10d\n", table, s.Facts[table])
	}

	if s.Validation != nil {
		status := "PASSED"
		if !s.Validation.Passed {
			status = "FAILED"
		}
		fmt.Fprintf(w, "Validation: %s (%d issues)\n", status, len(s.Validation.Issues))
	}
	fmt.Fprintln(w, line)
}
