package dashboard

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// PrintReport writes the sales overview, top products, category and
// customer segment breakdowns for the window.
func PrintReport(ctx context.Context, q Querier, win Window, out io.Writer) error {
	k, err := q.KPIs(ctx, win)
	if err != nil {
		return err
	}
	products, err := q.TopProducts(ctx, win, 10)
	if err != nil {
		return err
	}
	categories, err := q.Categories(ctx, win)
	if err != nil {
		return err
	}
	segments, err := q.Segments(ctx, win)
	if err != nil {
		return err
	}

	rule := strings.Repeat("=", 60)

	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "SALES OVERVIEW (%s, completed orders)\n", win.Label())
	fmt.Fprintln(out, rule)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total orders\t%d\n", k.TotalOrders)
	fmt.Fprintf(tw, "Customers\t%d\n", k.TotalCustomers)
	fmt.Fprintf(tw, "Revenue\t%s\n", k.Revenue.StringFixed(2))
	fmt.Fprintf(tw, "Avg order value\t%s\n", k.AvgOrderValue.StringFixed(2))
	fmt.Fprintf(tw, "Profit\t%s\n", k.Profit.StringFixed(2))
	tw.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, "TOP 10 PRODUCTS BY REVENUE")
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Product\tCategory\tUnits\tRevenue\t")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t\n", p.ProductName, p.Category, p.UnitsSold, p.Revenue.StringFixed(2))
	}
	tw.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, "REVENUE BY CATEGORY")
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Category\tOrders\tRevenue\t")
	for _, c := range categories {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", c.Category, c.Orders, c.Revenue.StringFixed(2))
	}
	tw.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, "CUSTOMER SEGMENTATION")
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Segment\tCustomers\tRevenue\t")
	for _, s := range segments {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", s.Segment, s.Customers, s.Revenue.StringFixed(2))
	}
	tw.Flush()
	fmt.Fprintln(out, rule)

	return nil
}
