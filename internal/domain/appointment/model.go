package appointment

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Appointment is one patient's booking. AppointmentID is the public 6-digit
// appointment number.
type Appointment struct {
	AppointmentID   string     `json:"appointmentId"`
	PatientID       string     `json:"patientId"`
	Name            string     `json:"name"`
	Date            civil.Date `json:"date"`
	Time            civil.Time `json:"time"`
	Department      string     `json:"department"`
	DoctorName      string     `json:"doctorName"`
	UserPhoneNumber string     `json:"userPhoneNumber"`
	IsCancelled     bool       `json:"isCancelled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AppointmentInput is the body of create and full update. Every scheduling
// field is mandatory; userPhoneNumber is optional.
type AppointmentInput struct {
	PatientID       string `json:"patientId" validate:"required"`
	Name            string `json:"name" validate:"required"`
	Date            string `json:"date" validate:"required"`
	Time            string `json:"time" validate:"required"`
	Department      string `json:"department" validate:"required"`
	DoctorName      string `json:"doctorName" validate:"required"`
	UserPhoneNumber string `json:"userPhoneNumber"`
}

func (in AppointmentInput) toAppointment() (*Appointment, error) {
	required := []struct{ field, value string }{
		{"patientId", in.PatientID},
		{"name", in.Name},
		{"date", in.Date},
		{"time", in.Time},
		{"department", in.Department},
		{"doctorName", in.DoctorName},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, &ValidationError{Field: r.field, Msg: "is required"}
		}
	}

	d, err := parseDate("date", in.Date)
	if err != nil {
		return nil, err
	}
	t, err := parseTime("time", in.Time)
	if err != nil {
		return nil, err
	}

	return &Appointment{
		PatientID:       in.PatientID,
		Name:            in.Name,
		Date:            d,
		Time:            t,
		Department:      in.Department,
		DoctorName:      in.DoctorName,
		UserPhoneNumber: in.UserPhoneNumber,
	}, nil
}

// PatchInput is the body of a partial update. Nil fields, whether absent or
// JSON null, leave the stored value alone.
type PatchInput struct {
	PatientID       *string `json:"patientId"`
	Name            *string `json:"name"`
	Date            *string `json:"date"`
	Time            *string `json:"time"`
	Department      *string `json:"department"`
	DoctorName      *string `json:"doctorName"`
	UserPhoneNumber *string `json:"userPhoneNumber"`
}

func (p PatchInput) apply(a *Appointment) error {
	if p.Date != nil {
		d, err := parseDate("date", *p.Date)
		if err != nil {
			return err
		}
		a.Date = d
	}
	if p.Time != nil {
		t, err := parseTime("time", *p.Time)
		if err != nil {
			return err
		}
		a.Time = t
	}
	if p.PatientID != nil {
		a.PatientID = *p.PatientID
	}
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Department != nil {
		a.Department = *p.Department
	}
	if p.DoctorName != nil {
		a.DoctorName = *p.DoctorName
	}
	if p.UserPhoneNumber != nil {
		a.UserPhoneNumber = *p.UserPhoneNumber
	}
	return nil
}

// Availability is the result of the slot heuristic.
type Availability struct {
	SlotAvailable     bool   `json:"slotAvailable"`
	NextAvailableSlot string `json:"nextAvailableSlot"`
	DoctorName        string `json:"doctorName"`
}

type BookingDetails struct {
	AppointmentNumber string     `json:"appointmentNumber"`
	AppointmentDate   civil.Date `json:"appointmentDate"`
	AppointmentTime   civil.Time `json:"appointmentTime"`
	UserPhoneNumber   string     `json:"userPhoneNumber"`
	Name              string     `json:"name"`
}

// PhoneDetails is {available:false} when the phone has no active booking.
type PhoneDetails struct {
	Available         bool        `json:"available"`
	AppointmentNumber string      `json:"appointmentNumber,omitempty"`
	AppointmentDate   *civil.Date `json:"appointmentDate,omitempty"`
	AppointmentTime   *civil.Time `json:"appointmentTime,omitempty"`
	Name              string      `json:"name,omitempty"`
	Department        string      `json:"department,omitempty"`
	DoctorName        string      `json:"doctorName,omitempty"`
}

type RescheduleStatus struct {
	RescheduleAvailable bool `json:"rescheduleAvailable"`
}

type CancellationStatus struct {
	AppointmentCancelled bool `json:"appointmentCancelled"`
}

func parseDate(field, s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, &ValidationError{Field: field, Msg: "must be a date in YYYY-MM-DD format"}
	}
	return d, nil
}

// parseTime accepts HH:MM:SS with optional fraction, or HH:MM.
func parseTime(field, s string) (civil.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := civil.ParseTime(s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("15:04", s); err == nil {
		return civil.TimeOf(t), nil
	}
	return civil.Time{}, &ValidationError{Field: field, Msg: "must be a time in HH:MM:SS format"}
}
