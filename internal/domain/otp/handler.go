package otp

import (
	"net/http"

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/send-otp", h.SendOTP)
}

type SendOTPRequest struct {
	UserPhoneNumber string `json:"userPhoneNumber" validate:"required"`
}

type SendOTPResponse struct {
	SentOTP string `json:"sentOtp"`
}

func (h *Handler) SendOTP(c echo.Context) error {
	var req SendOTPRequest
	if err := c.Bind(&req); err != nil {
		if he, ok := middleware.BodyTooLarge(err); ok {
			return he
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	code, err := h.svc.Send(c.Request().Context(), req.UserPhoneNumber)
	if err != nil {
		rid, _ := c.Get("request_id").(string)
		h.logger.Error().Err(err).Str("request_id", rid).Msg("send otp")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	return c.JSON(http.StatusOK, SendOTPResponse{SentOTP: code})
}
