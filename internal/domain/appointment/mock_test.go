package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
)

// mockApptRepo is a map-backed Repository. WithinTx snapshots the map and
// restores it when fn fails, which is what a rolled-back transaction does.
type mockApptRepo struct {
	mu    sync.Mutex
	appts map[string]*Appointment
	seq   int

	insertErr error
	listErr   error
	countErr  error
	inserts   int
	txCount   int
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{appts: make(map[string]*Appointment)}
}

func (m *mockApptRepo) seed(a *Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	cp := *a
	cp.CreatedAt = time.Unix(int64(m.seq), 0)
	cp.UpdatedAt = cp.CreatedAt
	m.appts[a.AppointmentID] = &cp
}

func (m *mockApptRepo) sorted() []*Appointment {
	out := make([]*Appointment, 0, len(m.appts))
	for _, a := range m.appts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].AppointmentID < out[j].AppointmentID
	})
	return out
}

func (m *mockApptRepo) List(_ context.Context) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sorted(), nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) GetActiveByID(ctx context.Context, id string) (*Appointment, error) {
	a, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsCancelled {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *mockApptRepo) FirstActiveByPhone(_ context.Context, phone string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.sorted() {
		if a.UserPhoneNumber == phone && !a.IsCancelled {
			return a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockApptRepo) CountByDate(_ context.Context, d civil.Date) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, a := range m.appts {
		if a.Date == d {
			n++
		}
	}
	return n, nil
}

func (m *mockApptRepo) Insert(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.appts[a.AppointmentID]; ok {
		return ErrDuplicateID
	}
	m.seq++
	a.IsCancelled = false
	a.CreatedAt = time.Unix(int64(m.seq), 0)
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.AppointmentID] = &cp
	return nil
}

func (m *mockApptRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appts[a.AppointmentID]
	if !ok {
		return ErrNotFound
	}
	next := *a
	next.IsCancelled = cur.IsCancelled
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = cur.UpdatedAt.Add(time.Second)
	m.appts[a.AppointmentID] = &next
	*a = next
	return nil
}

func (m *mockApptRepo) DeleteByPatient(_ context.Context, patientID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.appts {
		if a.PatientID == patientID {
			delete(m.appts, id)
			n++
		}
	}
	return n, nil
}

func (m *mockApptRepo) WithinTx(_ context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	m.txCount++
	snapshot := make(map[string]*Appointment, len(m.appts))
	for k, v := range m.appts {
		cp := *v
		snapshot[k] = &cp
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.appts = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *mockApptRepo) forPatient(patientID string) []*Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.sorted() {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out
}

var errStore = errors.New("connection reset by peer")

// fixedIDs hands out ids in order, then fails.
func fixedIDs(ids ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		if i >= len(ids) {
			return "", errors.New("out of ids")
		}
		id := ids[i]
		i++
		return id, nil
	}
}
