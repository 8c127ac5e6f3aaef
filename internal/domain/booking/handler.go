package booking

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cinportal/cinportal/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Citizen surface: no authentication, anti-abuse policy instead.
	api.POST("/bookings", h.Commit)
	api.GET("/bookings/lockout", h.Lockout)
	api.POST("/cancellations/request", h.RequestCancellation)
	api.POST("/cancellations/confirm", h.ConfirmCancellation)

	staff := api.Group("", auth.RequireRole("admin", "staff"))
	staff.POST("/bookings/reschedule", h.Reschedule)
}

// mapError translates the booking error taxonomy to HTTP statuses.
func mapError(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, ve)
	}

	var pe *PolicyError
	if errors.As(err, &pe) {
		switch pe.Decision.Kind {
		case DecisionBlockedTemporarily:
			return echo.NewHTTPError(http.StatusForbidden, pe.Decision)
		case DecisionRescheduleLimit:
			return echo.NewHTTPError(http.StatusForbidden, pe.Decision)
		default:
			return echo.NewHTTPError(http.StatusConflict, pe.Decision)
		}
	}

	switch {
	case errors.Is(err, ErrSlotUnavailable):
		return echo.NewHTTPError(http.StatusConflict, "slot no longer available")
	case errors.Is(err, ErrInvalidOrExpiredCode):
		return echo.NewHTTPError(http.StatusGone, "invalid or expired confirmation code")
	case errors.Is(err, ErrNoActiveAppointment):
		return echo.NewHTTPError(http.StatusNotFound, "no active appointment for this identity")
	case errors.Is(err, ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "temporarily unavailable, try again")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) Commit(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Commit(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

type lockoutResponse struct {
	Blocked   bool       `json:"blocked"`
	Reason    string     `json:"reason,omitempty"`
	UnblockAt *time.Time `json:"unblock_at,omitempty"`
}

func (h *Handler) Lockout(c echo.Context) error {
	identity := c.QueryParam("identity")
	if identity == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identity query parameter is required")
	}
	d, err := h.svc.LockoutStatus(c.Request().Context(), identity)
	if err != nil {
		return mapError(err)
	}

	resp := lockoutResponse{Blocked: d.Kind == DecisionBlockedTemporarily}
	if resp.Blocked {
		resp.Reason = d.Reason
		resp.UnblockAt = d.UnblockAt
	}
	return c.JSON(http.StatusOK, resp)
}

// cancellationRequest addresses an appointment by id, or by identity for
// citizens who only have their document number at hand.
type cancellationRequest struct {
	AppointmentID  uuid.UUID `json:"appointment_id,omitempty"`
	IdentityNumber string    `json:"identity_number,omitempty"`
	Code           string    `json:"code,omitempty"`
}

func (h *Handler) RequestCancellation(c echo.Context) error {
	var req cancellationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AppointmentID == uuid.Nil && req.IdentityNumber == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "appointment_id or identity_number is required")
	}
	if err := h.svc.RequestCancellation(c.Request().Context(), req.AppointmentID, req.IdentityNumber); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "code sent"})
}

func (h *Handler) ConfirmCancellation(c echo.Context) error {
	var req cancellationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AppointmentID == uuid.Nil && req.IdentityNumber == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "appointment_id or identity_number is required")
	}
	if req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}
	a, err := h.svc.ConfirmCancellation(c.Request().Context(), req.AppointmentID, req.IdentityNumber, req.Code)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type rescheduleRequest struct {
	IdentityNumber string     `json:"identity_number"`
	NewSlot        SlotChange `json:"new_slot"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.IdentityNumber == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identity_number is required")
	}
	actor, _ := c.Get(auth.ContextSubject).(string)
	a, err := h.svc.Reschedule(c.Request().Context(), req.IdentityNumber, req.NewSlot, actor)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, a)
}
