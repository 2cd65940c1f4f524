package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/analyze"
	"github.com/agentic-research/catalyst/internal/catalog"
	"github.com/agentic-research/catalyst/internal/lifecycle"
	"github.com/spf13/cobra"
)

var (
	queryX        string
	queryY        string
	queryColor    string
	queryAgg      string
	queryFilters  string
	queryRows     bool
	queryLimit    int
	querySelector string
)

func init() {
	f := queryCmd.Flags()
	f.StringVarP(&queryX, "x", "x", "", "x axis column (default: recommended chart)")
	f.StringVarP(&queryY, "y", "y", "", "y axis column (default: recommended chart)")
	f.StringVar(&queryColor, "color", "", "Column to split series by")
	f.StringVarP(&queryAgg, "agg", "a", "SUM", "Aggregation (SUM, AVG, COUNT, MIN, MAX, MEDIAN, STDDEV, P25, P75, P90)")
	f.StringVarP(&queryFilters, "filters", "f", "", `Filter state as JSON, e.g. '{"year":{"min":2010,"max":2020}}'`)
	f.BoolVar(&queryRows, "rows", false, "Print filtered rows instead of chart data")
	f.IntVar(&queryLimit, "limit", 0, "Row limit for --rows")
	f.StringVar(&querySelector, "selector", "", "JSONPath locating rows in the file (default $.data[*])")

	analyzeCmd.Flags().StringVar(&querySelector, "selector", "", "JSONPath locating rows in the file (default $.data[*])")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(analyzeCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query [file|dataset-id]",
	Short: "Load a dataset and print chart data or filtered rows as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var filters api.FilterState
		if queryFilters != "" {
			if err := json.Unmarshal([]byte(queryFilters), &filters); err != nil {
				return fmt.Errorf("--filters: %w", err)
			}
		}

		rt, err := newRuntime(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }() // safe to ignore
		defer rt.ctrl.Close(context.Background())

		if err := openTarget(ctx, rt.ctrl, args[0]); err != nil {
			return err
		}

		if queryRows {
			rows, err := rt.ctrl.Rows(ctx, filters, queryLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		}

		spec := api.ChartSpec{ChartType: "bar", Aggregation: queryAgg}
		if queryX == "" && queryY == "" {
			if rec := rt.ctrl.Status().Recommended; rec != nil {
				spec = rec.ChartSpec()
				if cmd.Flags().Changed("agg") {
					spec.Aggregation = queryAgg
				}
			}
		} else {
			spec.XAxis, spec.YAxis = api.Axis{queryX}, api.Axis{queryY}
		}
		if queryColor != "" {
			spec.ColorBy = api.Axis{queryColor}
		}

		rows, err := rt.ctrl.ChartData(ctx, spec, filters)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"spec": spec, "data": rows})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Print column types, filter configs and chart suggestions for a dataset file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		analysis := analyze.DefaultConfig()
		analysis.SampleSize = cfg.Catalog.SampleSize

		p, err := catalog.ReadFile(cmd.Context(), args[0], querySelector, analysis)
		if err != nil {
			return err
		}
		a := analyze.Analyze(p.Rows, analysis)
		a.DatasetID = p.DatasetID
		return printJSON(cmd, a)
	},
}

// openTarget loads target as a file when one exists at that path, and through
// the configured catalog otherwise.
func openTarget(ctx context.Context, ctrl *lifecycle.Controller, target string) error {
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		analysis := analyze.DefaultConfig()
		analysis.SampleSize = cfg.Catalog.SampleSize
		selector := querySelector
		if selector == "" {
			selector = cfg.Catalog.RowsSelector
		}
		p, err := catalog.ReadFile(ctx, target, selector, analysis)
		if err != nil {
			return err
		}
		_, err = ctrl.Load(ctx, p)
		return err
	}
	_, err := ctrl.Open(ctx, target)
	return err
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
