package appointment

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/apollo/booking/internal/platform/middleware"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts /appointments on api. mw applies to every appointment
// route, typically the per-request database session.
func (h *Handler) RegisterRoutes(api *echo.Group, mw ...echo.MiddlewareFunc) {
	g := api.Group("/appointments", mw...)

	// Fixed and multi-segment paths go before /:id.
	g.GET("/availability", h.Availability)
	g.GET("/booking-details", h.BookingDetails)
	g.GET("/details", h.DetailsByPhone)
	g.GET("/:id/reschedule", h.RescheduleEligibility)
	g.GET("/:id/cancellation", h.CancellationStatus)

	for _, p := range []string{"", "/"} {
		g.GET(p, h.List)
		g.POST(p, h.Create)
	}

	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.PATCH("/:id", h.Patch)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return h.fail(c, "list", err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Create(c echo.Context) error {
	var in AppointmentInput
	if err := h.bindAndValidate(c, &in); err != nil {
		return err
	}
	a, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, "create", err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	a, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get", err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Update(c echo.Context) error {
	var in AppointmentInput
	if err := h.bindAndValidate(c, &in); err != nil {
		return err
	}
	a, err := h.svc.Update(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return h.fail(c, "update", err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Patch(c echo.Context) error {
	var in PatchInput
	if err := h.bindAndValidate(c, &in); err != nil {
		return err
	}
	a, err := h.svc.Patch(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return h.fail(c, "patch", err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Availability(c echo.Context) error {
	av, err := h.svc.Availability(c.Request().Context(), c.QueryParam("appointmentDate"))
	if err != nil {
		return h.fail(c, "availability", err)
	}
	return c.JSON(http.StatusOK, av)
}

func (h *Handler) BookingDetails(c echo.Context) error {
	d, err := h.svc.BookingDetails(c.Request().Context(), c.QueryParam("appointmentNumber"))
	if err != nil {
		return h.fail(c, "booking-details", err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DetailsByPhone(c echo.Context) error {
	d, err := h.svc.DetailsByPhone(c.Request().Context(), c.QueryParam("userPhoneNumber"))
	if err != nil {
		return h.fail(c, "details", err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) RescheduleEligibility(c echo.Context) error {
	validated, err := userValidated(c)
	if err != nil {
		return h.fail(c, "reschedule", err)
	}
	st, err := h.svc.RescheduleEligibility(c.Request().Context(), c.Param("id"), validated)
	if err != nil {
		return h.fail(c, "reschedule", err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) CancellationStatus(c echo.Context) error {
	validated, err := userValidated(c)
	if err != nil {
		return h.fail(c, "cancellation", err)
	}
	st, err := h.svc.CancellationStatus(c.Request().Context(), c.Param("id"), validated)
	if err != nil {
		return h.fail(c, "cancellation", err)
	}
	return c.JSON(http.StatusOK, st)
}

func userValidated(c echo.Context) (bool, error) {
	raw := c.QueryParam("userValidated")
	if raw == "" {
		return false, &ValidationError{Field: "userValidated", Msg: "is required"}
	}
	v, ok := parseFlag(raw)
	if !ok {
		return false, &ValidationError{Field: "userValidated", Msg: "must be a boolean"}
	}
	return v, nil
}

// parseFlag accepts the spellings strconv.ParseBool does plus yes/no, y/n and
// on/off, in any case.
func parseFlag(raw string) (bool, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "yes", "y", "on":
		return true, true
	case "no", "n", "off":
		return false, true
	}
	v, err := strconv.ParseBool(s)
	return v, err == nil
}

func (h *Handler) bindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		if he, ok := middleware.BodyTooLarge(err); ok {
			return he
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}
	if err := c.Validate(dst); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}

// fail maps domain errors to HTTP errors. Anything unrecognised is logged in
// full and reported as a bare 500.
func (h *Handler) fail(c echo.Context, op string, err error) error {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Appointment not found")
	case errors.Is(err, ErrUserNotValidated):
		return echo.NewHTTPError(http.StatusBadRequest, "User is not validated")
	case errors.Is(err, ErrInvalidAppointmentNumber):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, verr.Error())
	}

	rid, _ := c.Get("request_id").(string)
	h.logger.Error().Err(err).
		Str("request_id", rid).
		Str("op", op).
		Msg("appointment operation failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
