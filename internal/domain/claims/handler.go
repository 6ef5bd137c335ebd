package claims

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/claimsync/claimsync/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/claims", h.ListClaims)
	api.GET("/claims/summary", h.StatusSummary)
	api.GET("/claims/:id", h.GetClaim)
	api.GET("/claims/:id/appeals", h.ListAppeals)
}

func (h *Handler) ListClaims(c echo.Context) error {
	p := pagination.FromContext(c)
	f := ListFilter{
		Status:      Status(c.QueryParam("status")),
		ProviderID:  c.QueryParam("provider"),
		PatientKey:  c.QueryParam("patient"),
		ServiceFrom: c.QueryParam("from"),
		ServiceTo:   c.QueryParam("to"),
	}
	items, total, err := h.svc.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

// claimDetail is the claim detail payload: the claim plus its open
// appeal, when one exists.
type claimDetail struct {
	*Claim
	OpenAppeal *Appeal `json:"open_appeal,omitempty"`
}

func (h *Handler) GetClaim(c echo.Context) error {
	claim, open, err := h.svc.GetDetail(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "claim not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, claimDetail{Claim: claim, OpenAppeal: open})
}

func (h *Handler) StatusSummary(c echo.Context) error {
	summary, err := h.svc.StatusSummary(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"by_status": summary})
}

func (h *Handler) ListAppeals(c echo.Context) error {
	appeals, err := h.svc.ListAppeals(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, appeals)
}
