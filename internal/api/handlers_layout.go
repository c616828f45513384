// handlers_layout.go - Saved plot layout handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/plot-visualizer/backend/internal/layout"
	"github.com/plot-visualizer/backend/internal/models"
)

// LayoutHandlerImpl implements the LayoutHandler interface
type LayoutHandlerImpl struct {
	store LayoutStore
}

// NewLayoutHandler creates a new layout handler instance
func NewLayoutHandler(store LayoutStore) LayoutHandler {
	return &LayoutHandlerImpl{store: store}
}

// HandleListLayouts returns every saved layout, most recent first
func (h *LayoutHandlerImpl) HandleListLayouts(c echo.Context) error {
	layouts, err := h.store.List()
	if err != nil {
		return NewInternalError("failed to list layouts", err)
	}
	if layouts == nil {
		layouts = []*models.PlotLayout{}
	}
	return c.JSON(http.StatusOK, layouts)
}

// HandleCreateLayout saves a new layout
func (h *LayoutHandlerImpl) HandleCreateLayout(c echo.Context) error {
	var req models.PlotLayout
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	req.ID = ""
	saved, err := h.store.Save(req)
	if err != nil {
		return NewInternalError("failed to save layout", err)
	}
	return c.JSON(http.StatusCreated, saved)
}

// HandleGetLayout returns one layout
func (h *LayoutHandlerImpl) HandleGetLayout(c echo.Context) error {
	id := c.Param("id")
	l, err := h.store.Get(id)
	if err != nil {
		return layoutError(id, err)
	}
	return c.JSON(http.StatusOK, l)
}

// HandleUpdateLayout replaces an existing layout
func (h *LayoutHandlerImpl) HandleUpdateLayout(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.store.Get(id); err != nil {
		return layoutError(id, err)
	}

	var req models.PlotLayout
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	req.ID = id
	saved, err := h.store.Save(req)
	if err != nil {
		return NewInternalError("failed to save layout", err)
	}
	return c.JSON(http.StatusOK, saved)
}

// HandleDeleteLayout removes a layout
func (h *LayoutHandlerImpl) HandleDeleteLayout(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		return layoutError(id, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSaveCurrentYs stores the y range a renderer reported as visible.
// Null or non-finite bounds clear the saved value.
func (h *LayoutHandlerImpl) HandleSaveCurrentYs(c echo.Context) error {
	id := c.Param("id")
	var req yRangeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	l, err := h.store.SaveCurrentYs(id, req.MinY, req.MaxY)
	if err != nil {
		return layoutError(id, err)
	}
	return c.JSON(http.StatusOK, l)
}

func layoutError(id string, err error) *APIError {
	if errors.Is(err, layout.ErrNotFound) {
		return NewNotFoundError("layout", id)
	}
	return NewInternalError("layout store failed", err)
}

type yRangeRequest struct {
	MinY *float64 `json:"minY"`
	MaxY *float64 `json:"maxY"`
}
