package otp

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/apollo/booking/internal/platform/idgen"
	"github.com/apollo/booking/internal/platform/notification"
)

// Service issues one-time passcodes. Codes are returned to the caller only;
// nothing is stored, sent or verified.
type Service struct {
	generate func() (string, error)
	logger   zerolog.Logger
}

func NewService(logger zerolog.Logger) *Service {
	return &Service{generate: idgen.Six, logger: logger}
}

// Send returns a fresh 6-digit code. The phone number does not influence it.
func (s *Service) Send(_ context.Context, phone string) (string, error) {
	code, err := s.generate()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	s.logger.Debug().Str("phone", notification.MaskPhone(phone)).Msg("otp issued")
	return code, nil
}
