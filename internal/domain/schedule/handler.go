package schedule

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cinportal/cinportal/internal/platform/auth"
	"github.com/cinportal/cinportal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Public availability views.
	api.GET("/locations/:id/dates", h.Dates)
	api.GET("/locations/:id/slots", h.Slots)

	staff := api.Group("", auth.RequireRole("admin", "staff"))
	staff.GET("/locations/:id/schedule", h.GetConfig)
	staff.PUT("/locations/:id/schedule", h.SaveConfig)
	staff.GET("/blocked-dates", h.ListBlocks)
	staff.POST("/blocked-dates", h.CreateBlock)
	staff.DELETE("/blocked-dates/:id", h.DeleteBlock)
}

func (h *Handler) Dates(c echo.Context) error {
	locationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid location id")
	}
	dates, err := h.svc.Dates(c.Request().Context(), locationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if dates == nil {
		dates = []CandidateDate{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"dates": dates})
}

func (h *Handler) Slots(c echo.Context) error {
	locationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid location id")
	}
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date query parameter is required")
	}
	slots, err := h.svc.Slots(c.Request().Context(), locationID, date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, DaySlots{Date: date, Slots: slots})
}

func (h *Handler) GetConfig(c echo.Context) error {
	locationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid location id")
	}
	cfg, err := h.svc.GetConfig(c.Request().Context(), locationID)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "schedule config not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *Handler) SaveConfig(c echo.Context) error {
	locationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid location id")
	}
	var cfg Config
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cfg.LocationID = locationID
	if err := h.svc.SaveConfig(c.Request().Context(), &cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *Handler) ListBlocks(c echo.Context) error {
	pg := pagination.FromContext(c)
	blocks, total, err := h.svc.ListBlocks(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(blocks, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateBlock(c echo.Context) error {
	var b BlockedDate
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateBlock(c.Request().Context(), &b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) DeleteBlock(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteBlock(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrBlockNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "blocked date not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
