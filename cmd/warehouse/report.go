package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/tbourn/go-clickstream-warehouse/internal/analytics"
	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
	"github.com/tbourn/go-clickstream-warehouse/internal/repo"
	"github.com/tbourn/go-clickstream-warehouse/internal/services"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print every metric of the latest warehouse build",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		ctx := cmd.Context()
		defer setupTracing(ctx)()

		db, closeDB, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB()

		rep, run, err := services.NewReportService(db, repo.Store{}).Report(ctx)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), rep, run, format)
	},
}

func init() {
	reportCmd.Flags().String("format", "text", "Output format: json, yaml or text")
}

type reportDoc struct {
	RunID  string            `json:"run_id" yaml:"run_id"`
	Report *analytics.Report `json:"report" yaml:"report"`
}

// writeReport renders rep in the requested format.
func writeReport(w io.Writer, rep *analytics.Report, run *domain.ETLRun, format string) error {
	doc := reportDoc{RunID: run.ID, Report: rep}
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		writeText(w, rep, run)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want json, yaml or text)", format)
	}
}

// writeText prints a human summary with English digit grouping.
func writeText(w io.Writer, rep *analytics.Report, run *domain.ETLRun) {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "Run %s (%s)\n\n", run.ID, run.Source)

	p.Fprintf(w, "Revenue\n")
	p.Fprintf(w, "  total               %.2f\n", rep.TotalRevenue.InexactFloat64())
	p.Fprintf(w, "  purchasing users    %d\n", rep.PurchasingUsers)
	if rep.AverageOrderValue != nil {
		p.Fprintf(w, "  average order value %.2f\n", rep.AverageOrderValue.InexactFloat64())
	}
	if rep.TopCategory != nil {
		p.Fprintf(w, "  top category        %s (%.2f)\n", rep.TopCategory.CategoryCode, rep.TopCategory.Revenue.InexactFloat64())
	}
	p.Fprintf(w, "  weekday / weekend   %.2f / %.2f\n",
		rep.WeekendSplit.Weekday.InexactFloat64(), rep.WeekendSplit.Weekend.InexactFloat64())
	for _, m := range rep.MonthlyRevenue {
		p.Fprintf(w, "  %s             %.2f\n", m.Month, m.Revenue.InexactFloat64())
	}

	p.Fprintf(w, "\nTop brands\n")
	for i, b := range rep.TopBrands {
		p.Fprintf(w, "  %d. %-16s %d\n", i+1, b.Brand, b.Purchases)
	}
	if rep.HighestAvgPriceProduct != nil {
		hp := rep.HighestAvgPriceProduct
		p.Fprintf(w, "  highest avg price   %s %s (%.2f over %d purchases)\n", hp.ProductID, hp.Brand, hp.AvgPrice.InexactFloat64(), hp.Purchases)
	}

	p.Fprintf(w, "\nCustomers\n")
	p.Fprintf(w, "  repeat purchase     %.2f%%\n", rep.RepeatPurchaseRate)
	if rep.AvgDaysBetweenPurchases != nil {
		p.Fprintf(w, "  days between        %.2f\n", *rep.AvgDaysBetweenPurchases)
	}
	for _, seg := range sortedKeys(rep.Segments) {
		p.Fprintf(w, "  %-19s %d\n", seg, rep.Segments[seg])
	}

	p.Fprintf(w, "\nFunnel\n")
	p.Fprintf(w, "  viewers             %d\n", rep.Funnel.Viewers)
	p.Fprintf(w, "  carters             %d (%s)\n", rep.Funnel.Carters, rep.Funnel.ViewToCart)
	p.Fprintf(w, "  purchasers          %d (%s)\n", rep.Funnel.Purchasers, rep.Funnel.CartToPurchase)
	p.Fprintf(w, "  conversion          %s\n", rep.ConversionRate)

	p.Fprintf(w, "\nReturns\n")
	p.Fprintf(w, "  return rate         %s\n", rep.ReturnRate)
	for _, c := range rep.TopReturnedCategories {
		p.Fprintf(w, "  %-19s %d\n", c.CategoryCode, c.Returns)
	}

	if names := rep.UndefinedMetrics(); len(names) > 0 {
		p.Fprintf(w, "\nUndefined\n")
		for _, n := range names {
			p.Fprintf(w, "  %-28s %s\n", n, rep.Undefined[n])
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
