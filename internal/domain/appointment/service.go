package appointment

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apollo/booking/internal/platform/idgen"
)

// Options are the booking rules the service is constructed with.
type Options struct {
	// AtomicCreate runs the purge and the insert of Create in one
	// transaction. When false the purge commits on its own first.
	AtomicCreate bool
	// IDMaxAttempts bounds appointment-number draws on collision.
	IDMaxAttempts int
	SlotCapacity  int
	SlotStartHour int
	DoctorName    string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		AtomicCreate:  true,
		IDMaxAttempts: 5,
		SlotCapacity:  10,
		SlotStartHour: 9,
		DoctorName:    "Dr. Priya Sharma",
	}
}

type Service struct {
	repo   Repository
	opts   Options
	newID  func() (string, error)
	tracer trace.Tracer
}

func NewService(repo Repository, opts Options) *Service {
	if opts.IDMaxAttempts < 1 {
		opts.IDMaxAttempts = 1
	}
	return &Service{
		repo:   repo,
		opts:   opts,
		newID:  idgen.Six,
		tracer: otel.Tracer("github.com/apollo/booking/internal/domain/appointment"),
	}
}

var appointmentNumber = regexp.MustCompile(`^\d{6}$`)

func (s *Service) List(ctx context.Context) ([]*Appointment, error) {
	return s.repo.List(ctx)
}

// Create books an appointment and removes every earlier appointment of the
// same patient.
func (s *Service) Create(ctx context.Context, in AppointmentInput) (*Appointment, error) {
	a, err := in.toAppointment()
	if err != nil {
		return nil, err
	}

	mode := "legacy"
	if s.opts.AtomicCreate {
		mode = "atomic"
	}
	ctx, span := s.tracer.Start(ctx, "appointment.create",
		trace.WithAttributes(attribute.String("appointment.create_mode", mode)))
	defer span.End()

	if s.opts.AtomicCreate {
		err = s.repo.WithinTx(ctx, func(tx Repository) error {
			return s.replace(ctx, tx, a)
		})
	} else {
		// Each statement commits on its own. An insert failure after the
		// purge leaves the patient with no appointment.
		err = s.replace(ctx, s.repo, a)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create appointment")
		return nil, err
	}

	span.SetAttributes(attribute.String("appointment.id", a.AppointmentID))
	return a, nil
}

func (s *Service) replace(ctx context.Context, repo Repository, a *Appointment) error {
	if _, err := repo.DeleteByPatient(ctx, a.PatientID); err != nil {
		return err
	}
	return s.insertWithNewID(ctx, repo, a)
}

func (s *Service) insertWithNewID(ctx context.Context, repo Repository, a *Appointment) error {
	for attempt := 1; attempt <= s.opts.IDMaxAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return fmt.Errorf("generate appointment number: %w", err)
		}
		a.AppointmentID = id

		err = repo.Insert(ctx, a)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateID) {
			return err
		}
		trace.SpanFromContext(ctx).AddEvent("appointment number collision",
			trace.WithAttributes(attribute.Int("attempt", attempt)))
	}
	return fmt.Errorf("no free appointment number after %d attempts: %w", s.opts.IDMaxAttempts, ErrDuplicateID)
}

func (s *Service) Get(ctx context.Context, id string) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// Update replaces every client-writable field of an existing appointment.
func (s *Service) Update(ctx context.Context, id string, in AppointmentInput) (*Appointment, error) {
	a, err := in.toAppointment()
	if err != nil {
		return nil, err
	}
	a.AppointmentID = id
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Patch overwrites only the fields present in p.
func (s *Service) Patch(ctx context.Context, id string, p PatchInput) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.apply(a); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Availability offers the next hourly slot on date while fewer than
// SlotCapacity appointments exist for it, and the first slot of the next day
// otherwise. Cancelled rows count towards capacity.
func (s *Service) Availability(ctx context.Context, date string) (*Availability, error) {
	d, err := parseDate("appointmentDate", date)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.CountByDate(ctx, d)
	if err != nil {
		return nil, err
	}
	return s.availability(d, n), nil
}

func (s *Service) availability(d civil.Date, booked int) *Availability {
	if booked < s.opts.SlotCapacity {
		slot := civil.DateTime{Date: d, Time: civil.Time{Hour: s.opts.SlotStartHour + booked}}
		return &Availability{SlotAvailable: true, NextAvailableSlot: slot.String(), DoctorName: s.opts.DoctorName}
	}
	slot := civil.DateTime{Date: d.AddDays(1), Time: civil.Time{Hour: s.opts.SlotStartHour}}
	return &Availability{SlotAvailable: false, NextAvailableSlot: slot.String(), DoctorName: s.opts.DoctorName}
}

func (s *Service) BookingDetails(ctx context.Context, number string) (*BookingDetails, error) {
	if !appointmentNumber.MatchString(number) {
		return nil, ErrInvalidAppointmentNumber
	}
	a, err := s.repo.GetByID(ctx, number)
	if err != nil {
		return nil, err
	}
	return &BookingDetails{
		AppointmentNumber: a.AppointmentID,
		AppointmentDate:   a.Date,
		AppointmentTime:   a.Time,
		UserPhoneNumber:   a.UserPhoneNumber,
		Name:              a.Name,
	}, nil
}

// DetailsByPhone never reports Not-Found; a phone without an active
// appointment yields {available:false}.
func (s *Service) DetailsByPhone(ctx context.Context, phone string) (*PhoneDetails, error) {
	if phone == "" {
		return nil, &ValidationError{Field: "userPhoneNumber", Msg: "is required"}
	}
	a, err := s.repo.FirstActiveByPhone(ctx, phone)
	if errors.Is(err, ErrNotFound) {
		return &PhoneDetails{Available: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &PhoneDetails{
		Available:         true,
		AppointmentNumber: a.AppointmentID,
		AppointmentDate:   &a.Date,
		AppointmentTime:   &a.Time,
		Name:              a.Name,
		Department:        a.Department,
		DoctorName:        a.DoctorName,
	}, nil
}

func (s *Service) RescheduleEligibility(ctx context.Context, id string, userValidated bool) (*RescheduleStatus, error) {
	if !userValidated {
		return nil, ErrUserNotValidated
	}
	if _, err := s.repo.GetActiveByID(ctx, id); err != nil {
		return nil, err
	}
	return &RescheduleStatus{RescheduleAvailable: true}, nil
}

func (s *Service) CancellationStatus(ctx context.Context, id string, userValidated bool) (*CancellationStatus, error) {
	if !userValidated {
		return nil, ErrUserNotValidated
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CancellationStatus{AppointmentCancelled: a.IsCancelled}, nil
}
