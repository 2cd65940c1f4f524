// Package server exposes the lifecycle controller over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/catalog"
	"github.com/agentic-research/catalyst/internal/engine"
	"github.com/agentic-research/catalyst/internal/ingest"
	"github.com/agentic-research/catalyst/internal/lifecycle"
	"github.com/agentic-research/catalyst/internal/sqlbuild"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Lister enumerates the datasets a source can open.
type Lister interface {
	List(ctx context.Context) ([]api.Dataset, error)
}

// Handler serves the dataset API.
type Handler struct {
	ctrl     *lifecycle.Controller
	datasets Lister
	log      zerolog.Logger
}

// NewHandler returns a handler over ctrl. datasets may be nil, in which case
// the listing endpoint reports that no catalog is configured.
func NewHandler(ctrl *lifecycle.Controller, datasets Lister, logger zerolog.Logger) *Handler {
	return &Handler{ctrl: ctrl, datasets: datasets, log: logger.With().Str("component", "server").Logger()}
}

// RegisterRoutes mounts the API under /api.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/datasets", h.ListDatasets)
	g.POST("/datasets/:id/open", h.OpenDataset)
	g.POST("/datasets/reload", h.ReloadDataset)
	g.DELETE("/datasets/current", h.CloseDataset)
	g.GET("/state", h.GetState)
	g.GET("/schema", h.GetSchema)
	g.GET("/count", h.GetCount)
	g.GET("/preview", h.GetPreview)
	g.POST("/chart", h.PostChart)
	g.POST("/rows", h.PostRows)
	g.GET("/columns/:column/distinct", h.GetDistinct)
	g.GET("/columns/:column/stats", h.GetStats)
}

// New builds the echo instance with middleware, error mapping and routes.
func New(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = h.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			ev := h.log.Debug()
			if v.Error != nil {
				ev = h.log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("took", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))

	h.RegisterRoutes(e)
	return e
}

// Serve runs e on addr until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, e *echo.Echo, addr string) error {
	errc := make(chan error, 1)
	go func() { errc <- e.Start(addr) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type chartRequest struct {
	Spec    *api.ChartSpec  `json:"spec"`
	Filters api.FilterState `json:"filters"`
}

type chartResponse struct {
	Spec api.ChartSpec `json:"spec"`
	Data []api.Row     `json:"data"`
}

type rowsRequest struct {
	Filters api.FilterState `json:"filters"`
	Limit   int             `json:"limit"`
}

type rowsResponse struct {
	Data []api.Row `json:"data"`
}

type openResponse struct {
	Load   ingest.LoadResult `json:"load"`
	Status lifecycle.Status  `json:"status"`
}

func (h *Handler) ListDatasets(c echo.Context) error {
	if h.datasets == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no dataset catalog configured")
	}
	list, err := h.datasets.List(c.Request().Context())
	if err != nil {
		return err
	}
	if list == nil {
		list = []api.Dataset{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) OpenDataset(c echo.Context) error {
	res, err := h.ctrl.Open(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, openResponse{Load: res, Status: h.ctrl.Status()})
}

func (h *Handler) ReloadDataset(c echo.Context) error {
	res, err := h.ctrl.Reload(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, openResponse{Load: res, Status: h.ctrl.Status()})
}

func (h *Handler) CloseDataset(c echo.Context) error {
	h.ctrl.Close(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ctrl.Status())
}

func (h *Handler) GetSchema(c echo.Context) error {
	cols, err := h.ctrl.Schema(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cols)
}

func (h *Handler) GetCount(c echo.Context) error {
	n, err := h.ctrl.RowCount(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) GetPreview(c echo.Context) error {
	rows, err := h.ctrl.Preview(c.Request().Context(), queryInt(c, "limit"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rowsResponse{Data: rows})
}

// PostChart runs a chart query. Without a spec in the body, the dataset's
// recommended chart is used.
func (h *Handler) PostChart(c echo.Context) error {
	var req chartRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	var spec api.ChartSpec
	switch {
	case req.Spec != nil:
		spec = *req.Spec
	default:
		if rec := h.ctrl.Status().Recommended; rec != nil {
			spec = rec.ChartSpec()
		}
	}
	rows, err := h.ctrl.ChartData(c.Request().Context(), spec, req.Filters)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, chartResponse{Spec: spec, Data: rows})
}

func (h *Handler) PostRows(c echo.Context) error {
	var req rowsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	rows, err := h.ctrl.Rows(c.Request().Context(), req.Filters, req.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rowsResponse{Data: rows})
}

func (h *Handler) GetDistinct(c echo.Context) error {
	values, err := h.ctrl.DistinctValues(c.Request().Context(), c.Param("column"), queryInt(c, "limit"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"column": c.Param("column"), "values": values})
}

func (h *Handler) GetStats(c echo.Context) error {
	st, err := h.ctrl.ColumnStats(c.Request().Context(), c.Param("column"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func queryInt(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// StatusCode maps controller, compiler and engine errors onto HTTP statuses.
func StatusCode(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, sqlbuild.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrEmptyDataset):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lifecycle.ErrNotReady),
		errors.Is(err, lifecycle.ErrStale),
		errors.Is(err, lifecycle.ErrNoDataset):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNoSuchTable), errors.Is(err, lifecycle.ErrNoSource):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}

func (h *Handler) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := StatusCode(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if s, ok := he.Message.(string); ok {
			msg = s
		} else {
			msg = http.StatusText(he.Code)
		}
	}
	if code >= 500 {
		h.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]string{"error": msg})
	}
	if err != nil {
		h.log.Warn().Err(err).Msg("write error response")
	}
}
