package appointment

import "errors"

var (
	ErrNotFound                 = errors.New("appointment not found")
	ErrInvalidAppointmentNumber = errors.New("appointmentNumber must be exactly 6 digits")
	ErrUserNotValidated         = errors.New("user is not validated")
	ErrDuplicateID              = errors.New("appointment id already exists")
)

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + " " + e.Msg
}
