package ingestion

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/claimsync/claimsync/internal/domain/claims"
	"github.com/claimsync/claimsync/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/imports", h.RunImport)
	api.POST("/imports/bulk", h.BulkImport)
	api.POST("/imports/test", h.TestConnection)
	api.GET("/imports", h.ListRuns)
	api.GET("/imports/:id", h.GetRun)
	api.POST("/imports/:id/cancel", h.CancelRun)
	api.GET("/adapters", h.ListAdapters)
}

type importRequest struct {
	SourceType string       `json:"source_type"`
	Config     Config       `json:"config"`
	Options    FetchOptions `json:"options"`
}

// RunImport executes one ingestion run and blocks until it finishes.
// Record failures surface in the result body, not as an HTTP error.
func (h *Handler) RunImport(c echo.Context) error {
	var req importRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := h.svc.RunImport(c.Request().Context(), req.SourceType, req.Config, req.Options)
	if err != nil {
		if errors.Is(err, ErrUnknownSourceType) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// BulkImport launches the requested runs in the background and returns
// their ids for polling.
func (h *Handler) BulkImport(c echo.Context) error {
	var req struct {
		Imports []ImportRequest `json:"imports"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Imports) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "imports must not be empty")
	}
	ids, err := h.svc.StartBulkImport(req.Imports)
	if err != nil {
		if errors.Is(err, ErrUnknownSourceType) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"run_ids": ids})
}

func (h *Handler) TestConnection(c echo.Context) error {
	var req importRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := h.svc.TestConnection(c.Request().Context(), req.SourceType, req.Config)
	if err != nil {
		if errors.Is(err, ErrUnknownSourceType) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListRuns(c echo.Context) error {
	p := pagination.FromContext(c)
	f := RunFilter{
		SourceType: c.QueryParam("source_type"),
		Status:     RunStatus(c.QueryParam("status")),
	}
	items, total, err := h.svc.ListRuns(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) GetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}
	run, err := h.svc.GetRun(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, claims.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "import run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) CancelRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}
	if err := h.svc.CancelRun(id); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}

func (h *Handler) ListAdapters(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"adapters": h.svc.AdapterTypes()})
}
