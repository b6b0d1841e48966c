package notification

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/apollo/booking/internal/platform/middleware"
)

// Handler exposes the SMS notification stubs over HTTP.
type Handler struct {
	sender SMSSender
	tpl    *TemplateEngine
	logger zerolog.Logger
}

func NewHandler(sender SMSSender, tpl *TemplateEngine, logger zerolog.Logger) *Handler {
	return &Handler{sender: sender, tpl: tpl, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/notifications/sms/booking", h.SendBooking)
	g.POST("/notifications/sms/cancellation", h.SendCancellation)
	g.POST("/notifications/sms/reschedule", h.SendReschedule)
}

// SMSDetails is shared by all three notification kinds.
type SMSDetails struct {
	AppointmentNumber string `json:"appointmentNumber"`
	AppointmentDate   string `json:"appointmentDate"`
	AppointmentTime   string `json:"appointmentTime"`
	UserPhoneNumber   string `json:"userPhoneNumber"`
	Name              string `json:"name"`
}

func (d SMSDetails) data() map[string]string {
	return map[string]string{
		"appointmentNumber": d.AppointmentNumber,
		"appointmentDate":   d.AppointmentDate,
		"appointmentTime":   d.AppointmentTime,
		"userPhoneNumber":   d.UserPhoneNumber,
		"name":              d.Name,
	}
}

type BookingSMSRequest struct {
	SMSDetails
	Department string `json:"department"`
	DoctorName string `json:"doctorName"`
}

type CancellationSMSRequest struct {
	SMSDetails
}

type RescheduleSMSRequest struct {
	SMSDetails
	NewAppointmentDate string `json:"newAppointmentDate"`
	NewAppointmentTime string `json:"newAppointmentTime"`
}

type SMSResponse struct {
	SMSSent bool `json:"smsSent"`
}

func (h *Handler) SendBooking(c echo.Context) error {
	var req BookingSMSRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	data := req.data()
	data["department"] = req.Department
	data["doctorName"] = req.DoctorName
	return h.send(c, KindBooking, req.UserPhoneNumber, data)
}

func (h *Handler) SendCancellation(c echo.Context) error {
	var req CancellationSMSRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	return h.send(c, KindCancellation, req.UserPhoneNumber, req.data())
}

func (h *Handler) SendReschedule(c echo.Context) error {
	var req RescheduleSMSRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	data := req.data()
	data["newAppointmentDate"] = req.NewAppointmentDate
	data["newAppointmentTime"] = req.NewAppointmentTime
	return h.send(c, KindReschedule, req.UserPhoneNumber, data)
}

func bindError(err error) error {
	if he, ok := middleware.BodyTooLarge(err); ok {
		return he
	}
	return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
}

func (h *Handler) send(c echo.Context, kind Kind, to string, data map[string]string) error {
	body, err := h.tpl.Render(string(kind), data)
	if err != nil {
		h.logger.Error().Err(err).Str("kind", string(kind)).Msg("render sms template")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	if err := h.sender.SendSMS(c.Request().Context(), to, body); err != nil {
		h.logger.Error().Err(err).Str("kind", string(kind)).Str("to", MaskPhone(to)).Msg("send sms")
		return echo.NewHTTPError(http.StatusBadGateway, "sms delivery failed")
	}

	return c.JSON(http.StatusOK, SMSResponse{SMSSent: true})
}
