package appointment

import (
	"context"

	"cloud.google.com/go/civil"
)

type Repository interface {
	List(ctx context.Context) ([]*Appointment, error)
	GetByID(ctx context.Context, id string) (*Appointment, error)
	// GetActiveByID ignores cancelled appointments.
	GetActiveByID(ctx context.Context, id string) (*Appointment, error)
	FirstActiveByPhone(ctx context.Context, phone string) (*Appointment, error)
	CountByDate(ctx context.Context, d civil.Date) (int, error)
	// Insert fills CreatedAt and UpdatedAt. It returns ErrDuplicateID when
	// the appointment number is taken.
	Insert(ctx context.Context, a *Appointment) error
	// Update overwrites the mutable fields of the row keyed by
	// a.AppointmentID and reloads a from the stored row.
	Update(ctx context.Context, a *Appointment) error
	DeleteByPatient(ctx context.Context, patientID string) (int64, error)
	// WithinTx runs fn against a repository bound to one transaction.
	WithinTx(ctx context.Context, fn func(Repository) error) error
}
