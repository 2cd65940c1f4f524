// Package mcpserver exposes the lifecycle controller as MCP tools so an agent
// can open a dataset and ask for chart data over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/lifecycle"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

const (
	serverName    = "catalyst"
	serverVersion = "0.1.0"
)

// Tools implements the tool handlers over one controller.
type Tools struct {
	ctrl *lifecycle.Controller
	log  zerolog.Logger
}

// NewTools returns tool handlers for ctrl.
func NewTools(ctrl *lifecycle.Controller, logger zerolog.Logger) *Tools {
	return &Tools{ctrl: ctrl, log: logger.With().Str("component", "mcp").Logger()}
}

// New builds an MCP server with every tool registered.
func New(ctrl *lifecycle.Controller, logger zerolog.Logger) *server.MCPServer {
	t := NewTools(ctrl, logger)
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("open_dataset",
		mcp.WithDescription("Load a dataset from the catalog into the query engine, replacing the current one."),
		mcp.WithString("dataset_id", mcp.Required(), mcp.Description("Catalog id of the dataset")),
	), t.OpenDataset)

	s.AddTool(mcp.NewTool("dataset_state",
		mcp.WithDescription("Report the loaded dataset, its columns, filters and recommended chart."),
	), t.DatasetState)

	s.AddTool(mcp.NewTool("chart_data",
		mcp.WithDescription("Aggregate the loaded dataset for a chart. Without x_axis and y_axis the recommended chart is used."),
		mcp.WithString("chart_type", mcp.Description("line, bar, pie, scatter or map (default bar)")),
		mcp.WithString("x_axis", mcp.Description("Column grouped on the x axis")),
		mcp.WithString("y_axis", mcp.Description("Column aggregated on the y axis")),
		mcp.WithString("color_by", mcp.Description("Optional second grouping column")),
		mcp.WithString("aggregation", mcp.Description("SUM, AVG, COUNT, MIN, MAX, MEDIAN, STDDEV, P25, P75, P90 or an expression using {column}")),
		mcp.WithObject("filters", mcp.Description("Filter state keyed by column, e.g. {\"year\": {\"min\": 2010, \"max\": 2020}, \"country\": [\"USA\"]}")),
	), t.ChartData)

	s.AddTool(mcp.NewTool("distinct_values",
		mcp.WithDescription("List the distinct non-null values of a column."),
		mcp.WithString("column", mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum values returned (default 1000)")),
	), t.DistinctValues)

	s.AddTool(mcp.NewTool("column_stats",
		mcp.WithDescription("Min, max, distinct and non-null counts of a column."),
		mcp.WithString("column", mcp.Required()),
	), t.ColumnStats)

	s.AddTool(mcp.NewTool("row_count",
		mcp.WithDescription("Count the rows of the loaded dataset."),
	), t.RowCount)

	return s
}

func (t *Tools) OpenDataset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("dataset_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.ctrl.Open(ctx, id)
	if err != nil {
		return t.toolError("open_dataset", err), nil
	}
	return jsonResult(map[string]any{"load": res, "status": t.ctrl.Status()})
}

func (t *Tools) DatasetState(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.ctrl.Status())
}

func (t *Tools) ChartData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	spec := api.ChartSpec{
		ChartType:   req.GetString("chart_type", "bar"),
		Aggregation: req.GetString("aggregation", ""),
	}
	if x := req.GetString("x_axis", ""); x != "" {
		spec.XAxis = api.Axis{x}
	}
	if y := req.GetString("y_axis", ""); y != "" {
		spec.YAxis = api.Axis{y}
	}
	if cb := req.GetString("color_by", ""); cb != "" {
		spec.ColorBy = api.Axis{cb}
	}
	if spec.XAxis == nil && spec.YAxis == nil {
		if rec := t.ctrl.Status().Recommended; rec != nil {
			spec = rec.ChartSpec()
		}
	}

	var filters api.FilterState
	if raw, ok := req.GetArguments()["filters"].(map[string]any); ok {
		filters = api.FilterState(raw)
	}

	rows, err := t.ctrl.ChartData(ctx, spec, filters)
	if err != nil {
		return t.toolError("chart_data", err), nil
	}
	return jsonResult(map[string]any{"spec": spec, "data": rows})
}

func (t *Tools) DistinctValues(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	col, err := req.RequireString("column")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	values, err := t.ctrl.DistinctValues(ctx, col, req.GetInt("limit", 0))
	if err != nil {
		return t.toolError("distinct_values", err), nil
	}
	return jsonResult(map[string]any{"column": col, "values": values})
}

func (t *Tools) ColumnStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	col, err := req.RequireString("column")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := t.ctrl.ColumnStats(ctx, col)
	if err != nil {
		return t.toolError("column_stats", err), nil
	}
	return jsonResult(st)
}

func (t *Tools) RowCount(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := t.ctrl.RowCount(ctx)
	if err != nil {
		return t.toolError("row_count", err), nil
	}
	return jsonResult(map[string]int{"count": n})
}

// toolError reports err to the agent as a tool failure. The call id ties the
// agent-visible message to the log line.
func (t *Tools) toolError(tool string, err error) *mcp.CallToolResult {
	id := uuid.NewString()
	t.log.Warn().Err(err).Str("tool", tool).Str("call", id).Msg("tool failed")
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v (call %s)", tool, err, id))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
