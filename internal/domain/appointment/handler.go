package appointment

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cinportal/cinportal/internal/platform/auth"
	"github.com/cinportal/cinportal/pkg/pagination"
)

// Handler exposes the staff appointment surface. Every route requires a
// staff token.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("/appointments", auth.RequireRole("admin", "staff"))
	staff.GET("", h.List)
	staff.GET("/:id", h.Get)
	staff.GET("/:id/history", h.History)
	staff.PUT("/:id/status", h.UpdateStatus)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		Date:     c.QueryParam("date"),
		Identity: c.QueryParam("identity"),
		Limit:    pg.Limit,
		Offset:   pg.Offset,
	}
	if raw := c.QueryParam("location_id"); raw != "" {
		locID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid location_id")
		}
		f.LocationID = &locID
	}
	if raw := c.QueryParam("status"); raw != "" {
		status := Status(raw)
		if !status.IsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		f.Status = status
	}

	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	history, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if history == nil {
		history = []StatusChange{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"history": history})
}

type statusRequest struct {
	Status Status  `json:"status"`
	Note   *string `json:"note,omitempty"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor, _ := c.Get(auth.ContextSubject).(string)
	a, err := h.svc.Transition(c.Request().Context(), id, req.Status, actor, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
		case errors.Is(err, ErrStatusConflict):
			return echo.NewHTTPError(http.StatusConflict, "appointment changed concurrently, reload and retry")
		default:
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
	}
	return c.JSON(http.StatusOK, a)
}
