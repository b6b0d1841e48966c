package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apollo/booking/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type repoPG struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

// conn prefers the open transaction, then the request-scoped connection, then
// the pool.
func (r *repoPG) conn(ctx context.Context) queryable {
	if r.tx != nil {
		return r.tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `appointment_id, patient_id, name, date, time, department,
	doctor_name, user_phone_number, is_cancelled, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var d pgtype.Date
	var t pgtype.Time
	err := row.Scan(&a.AppointmentID, &a.PatientID, &a.Name, &d, &t, &a.Department,
		&a.DoctorName, &a.UserPhoneNumber, &a.IsCancelled, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Date = civil.DateOf(d.Time)
	a.Time = civilTime(t)
	return &a, nil
}

func (r *repoPG) List(ctx context.Context) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointments ORDER BY created_at, appointment_id`)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	items := make([]*Appointment, 0)
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Appointment, error) {
	return r.get(ctx, `SELECT `+apptCols+` FROM appointments WHERE appointment_id = $1`, id)
}

func (r *repoPG) GetActiveByID(ctx context.Context, id string) (*Appointment, error) {
	return r.get(ctx, `SELECT `+apptCols+` FROM appointments WHERE appointment_id = $1 AND NOT is_cancelled`, id)
}

func (r *repoPG) FirstActiveByPhone(ctx context.Context, phone string) (*Appointment, error) {
	return r.get(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE user_phone_number = $1 AND NOT is_cancelled
		ORDER BY created_at, appointment_id LIMIT 1`, phone)
}

func (r *repoPG) get(ctx context.Context, sql string, arg string) (*Appointment, error) {
	a, err := scanAppt(r.conn(ctx).QueryRow(ctx, sql, arg))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, err
}

func (r *repoPG) CountByDate(ctx context.Context, d civil.Date) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE date = $1`, pgDate(d)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count appointments by date: %w", err)
	}
	return n, nil
}

func (r *repoPG) Insert(ctx context.Context, a *Appointment) error {
	// ON CONFLICT keeps an enclosing transaction usable so the caller can
	// retry with a fresh number.
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (appointment_id, patient_id, name, date, time,
			department, doctor_name, user_phone_number, is_cancelled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,FALSE)
		ON CONFLICT (appointment_id) DO NOTHING
		RETURNING created_at, updated_at`,
		a.AppointmentID, a.PatientID, a.Name, pgDate(a.Date), pgTime(a.Time),
		a.Department, a.DoctorName, a.UserPhoneNumber).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	a.IsCancelled = false
	return nil
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	got, err := scanAppt(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET patient_id=$2, name=$3, date=$4, time=$5,
			department=$6, doctor_name=$7, user_phone_number=$8, updated_at=NOW()
		WHERE appointment_id = $1
		RETURNING `+apptCols,
		a.AppointmentID, a.PatientID, a.Name, pgDate(a.Date), pgTime(a.Time),
		a.Department, a.DoctorName, a.UserPhoneNumber))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	*a = *got
	return nil
}

func (r *repoPG) DeleteByPatient(ctx context.Context, patientID string) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, fmt.Errorf("delete appointments for patient: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) WithinTx(ctx context.Context, fn func(Repository) error) error {
	return db.WithTx(ctx, r.conn(ctx), func(tx pgx.Tx) error {
		return fn(&repoPG{pool: r.pool, tx: tx})
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func pgDate(d civil.Date) pgtype.Date {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func pgTime(t civil.Time) pgtype.Time {
	us := int64(t.Hour)*int64(time.Hour/time.Microsecond) +
		int64(t.Minute)*int64(time.Minute/time.Microsecond) +
		int64(t.Second)*int64(time.Second/time.Microsecond) +
		int64(t.Nanosecond)/int64(time.Microsecond/time.Nanosecond)
	return pgtype.Time{Microseconds: us, Valid: true}
}

func civilTime(t pgtype.Time) civil.Time {
	d := time.Duration(t.Microseconds) * time.Microsecond
	return civil.Time{
		Hour:       int(d / time.Hour),
		Minute:     int(d % time.Hour / time.Minute),
		Second:     int(d % time.Minute / time.Second),
		Nanosecond: int(d % time.Second),
	}
}
