// handlers_plot.go - Chart data and image handlers
package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/plot-visualizer/backend/internal/instrument"
	"github.com/plot-visualizer/backend/internal/layout"
	"github.com/plot-visualizer/backend/internal/models"
	"github.com/plot-visualizer/backend/internal/msgpath"
	"github.com/plot-visualizer/backend/internal/plot"
	"github.com/plot-visualizer/backend/internal/render"
)

// chartBuilder turns a plot request into chart data for one session. It is
// shared by the request handlers and the live feed.
type chartBuilder struct {
	sessions SessionManager
	history  HistoryProvider
	layouts  LayoutStore
	sink     instrument.Sink
}

func newChartBuilder(sessions SessionManager, history HistoryProvider, layouts LayoutStore, sink instrument.Sink) *chartBuilder {
	if sink == nil {
		sink = instrument.Nop{}
	}
	return &chartBuilder{sessions: sessions, history: history, layouts: layouts, sink: sink}
}

// resolve fills request gaps from the referenced layout.
func (b *chartBuilder) resolve(req plotRequest) (plotRequest, error) {
	if req.LayoutID != "" {
		if b.layouts == nil {
			return req, NewNotFoundError("layout", req.LayoutID)
		}
		l, err := b.layouts.Get(req.LayoutID)
		if err != nil {
			return req, NewNotFoundError("layout", req.LayoutID)
		}
		if len(req.Paths) == 0 {
			req.Paths = l.Paths
		}
		if req.MinYValue == nil {
			req.MinYValue = l.MinYValue
		}
		if req.MaxYValue == nil {
			req.MaxYValue = l.MaxYValue
		}
		if req.Title == "" {
			req.Title = l.Name
		}
	}
	if len(req.Paths) == 0 {
		return req, NewValidationError("paths")
	}
	return req, nil
}

func (b *chartBuilder) build(ctx context.Context, sessionID string, req plotRequest) (*plotResponse, error) {
	req, err := b.resolve(req)
	if err != nil {
		return nil, err
	}

	start, err := b.sessions.StartTime(sessionID)
	if err != nil {
		return nil, sessionError(sessionID, err)
	}
	count, err := b.sessions.MessageCount(sessionID)
	if err != nil {
		return nil, sessionError(sessionID, err)
	}

	paths := msgpath.ParsePlotPaths(req.Paths)
	lookup, err := b.history.Lookup(ctx, sessionID, paths)
	if err != nil {
		return nil, sessionError(sessionID, err)
	}

	chart := plot.BuildChart(paths, lookup, start, plot.Bound(req.MinYValue), plot.Bound(req.MaxYValue))
	b.sink.Inc(instrument.EventPanelRender)
	b.sessions.TouchSession(sessionID)

	return &plotResponse{
		SessionID:    sessionID,
		Title:        req.Title,
		StartTime:    start,
		MessageCount: count,
		Chart:        chart,
	}, nil
}

// PlotHandlerImpl implements the PlotHandler interface
type PlotHandlerImpl struct {
	charts   *chartBuilder
	renderer ChartRenderer
}

// NewPlotHandler creates a new plot handler instance. layouts may be nil when
// requests never reference a saved layout.
func NewPlotHandler(sessions SessionManager, history HistoryProvider, layouts LayoutStore, renderer ChartRenderer, sink instrument.Sink) PlotHandler {
	return &PlotHandlerImpl{
		charts:   newChartBuilder(sessions, history, layouts, sink),
		renderer: renderer,
	}
}

// HandlePlotData returns chart data for the requested paths as JSON, or as
// MessagePack when the client accepts it.
func (h *PlotHandlerImpl) HandlePlotData(c echo.Context) error {
	req, err := bindPlotRequest(c)
	if err != nil {
		return err
	}
	resp, err := h.charts.build(c.Request().Context(), c.Param("sessionId"), req)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, resp)
}

// HandlePlotPNG renders the requested chart as a PNG image
func (h *PlotHandlerImpl) HandlePlotPNG(c echo.Context) error {
	req, err := bindPlotRequest(c)
	if err != nil {
		return err
	}
	resp, err := h.charts.build(c.Request().Context(), c.Param("sessionId"), req)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	opts := render.Options{Width: req.Width, Height: req.Height, Title: resp.Title}
	if err := h.renderer.Render(&buf, resp.Chart, opts); err != nil {
		if errors.Is(err, render.ErrNoData) {
			return NewUnprocessableError("nothing to plot", err)
		}
		return NewInternalError("failed to render chart", err)
	}
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

func bindPlotRequest(c echo.Context) (plotRequest, error) {
	var req plotRequest
	if err := c.Bind(&req); err != nil {
		return req, NewBadRequestError("invalid request body", err)
	}
	if err := c.Validate(&req); err != nil {
		return req, err
	}
	return req, nil
}

// Request/Response types

type plotRequest struct {
	LayoutID  string                  `json:"layoutId,omitempty"`
	Paths     []models.PlotPathConfig `json:"paths" validate:"dive"`
	MinYValue *float64                `json:"minYValue,omitempty"`
	MaxYValue *float64                `json:"maxYValue,omitempty"`
	Title     string                  `json:"title,omitempty" validate:"max=200"`
	Width     int                     `json:"width,omitempty" validate:"omitempty,min=64,max=8192"`
	Height    int                     `json:"height,omitempty" validate:"omitempty,min=64,max=8192"`
}

type plotResponse struct {
	SessionID    string           `json:"sessionId"`
	Title        string           `json:"title,omitempty"`
	StartTime    models.Time      `json:"startTime"`
	MessageCount int              `json:"messageCount"`
	Chart        models.ChartData `json:"chart"`
}

var _ LayoutStore = (*layout.Store)(nil)
