package appointment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"cloud.google.com/go/civil"
)

func newTestService(opts Options) (*Service, *mockApptRepo) {
	repo := newMockApptRepo()
	return NewService(repo, opts), repo
}

func legacyOptions() Options {
	o := DefaultOptions()
	o.AtomicCreate = false
	return o
}

func input(patientID, date string) AppointmentInput {
	return AppointmentInput{
		PatientID:       patientID,
		Name:            "Asha Raman",
		Date:            date,
		Time:            "09:00:00",
		Department:      "Cardiology",
		DoctorName:      "Dr. Priya Sharma",
		UserPhoneNumber: "9876543210",
	}
}

func strPtr(s string) *string { return &s }

func TestCreate_ReplacesPriorAppointment(t *testing.T) {
	for name, opts := range map[string]Options{"atomic": DefaultOptions(), "legacy": legacyOptions()} {
		t.Run(name, func(t *testing.T) {
			svc, repo := newTestService(opts)
			svc.newID = fixedIDs("111111", "222222")
			ctx := context.Background()

			first, err := svc.Create(ctx, input("P1", "2025-01-10"))
			if err != nil {
				t.Fatalf("first create: %v", err)
			}
			second, err := svc.Create(ctx, input("P1", "2025-01-11"))
			if err != nil {
				t.Fatalf("second create: %v", err)
			}

			all, _ := svc.List(ctx)
			if len(all) != 1 {
				t.Fatalf("expected exactly 1 appointment, got %d", len(all))
			}
			if all[0].AppointmentID != second.AppointmentID {
				t.Errorf("expected surviving appointment %s, got %s", second.AppointmentID, all[0].AppointmentID)
			}
			if all[0].Date != (civil.Date{Year: 2025, Month: 1, Day: 11}) {
				t.Errorf("expected date 2025-01-11, got %s", all[0].Date)
			}
			if _, err := svc.Get(ctx, first.AppointmentID); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected first appointment to be gone, got %v", err)
			}
			if len(repo.forPatient("P1")) != 1 {
				t.Errorf("expected one row for P1")
			}
		})
	}
}

func TestCreate_LeavesOtherPatientsAlone(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	ctx := context.Background()

	if _, err := svc.Create(ctx, input("P1", "2025-01-10")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, input("P2", "2025-01-10")); err != nil {
		t.Fatal(err)
	}
	if len(repo.forPatient("P1")) != 1 || len(repo.forPatient("P2")) != 1 {
		t.Error("expected one appointment per patient")
	}
}

func TestCreate_SetsDefaults(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	a, err := svc.Create(context.Background(), input("P1", "2025-01-10"))
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(a.AppointmentID) {
		t.Errorf("expected 6-digit id, got %q", a.AppointmentID)
	}
	if a.IsCancelled {
		t.Error("expected isCancelled false on create")
	}
	if a.Time != (civil.Time{Hour: 9}) {
		t.Errorf("expected 09:00:00, got %s", a.Time)
	}
	if a.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestCreate_InsertFailure_LegacyLosesAppointment(t *testing.T) {
	svc, repo := newTestService(legacyOptions())
	ctx := context.Background()
	if _, err := svc.Create(ctx, input("P1", "2025-01-10")); err != nil {
		t.Fatal(err)
	}

	repo.insertErr = errStore
	if _, err := svc.Create(ctx, input("P1", "2025-01-11")); !errors.Is(err, errStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	if n := len(repo.forPatient("P1")); n != 0 {
		t.Errorf("legacy mode: expected the purge to stick and leave 0 rows, got %d", n)
	}
	if repo.txCount != 0 {
		t.Errorf("legacy mode should not open a transaction, opened %d", repo.txCount)
	}
}

func TestCreate_InsertFailure_AtomicKeepsAppointment(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	ctx := context.Background()
	orig, err := svc.Create(ctx, input("P1", "2025-01-10"))
	if err != nil {
		t.Fatal(err)
	}

	repo.insertErr = errStore
	if _, err := svc.Create(ctx, input("P1", "2025-01-11")); !errors.Is(err, errStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	rows := repo.forPatient("P1")
	if len(rows) != 1 || rows[0].AppointmentID != orig.AppointmentID {
		t.Errorf("atomic mode: expected original appointment to survive, got %+v", rows)
	}
}

func TestCreate_RetriesOnDuplicateID(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	repo.seed(&Appointment{AppointmentID: "111111", PatientID: "OTHER"})
	repo.seed(&Appointment{AppointmentID: "222222", PatientID: "OTHER2"})
	svc.newID = fixedIDs("111111", "222222", "333333")

	a, err := svc.Create(context.Background(), input("P1", "2025-01-10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.AppointmentID != "333333" {
		t.Errorf("expected third id, got %s", a.AppointmentID)
	}
	if repo.inserts != 3 {
		t.Errorf("expected 3 insert attempts, got %d", repo.inserts)
	}
}

func TestCreate_GivesUpAfterMaxAttempts(t *testing.T) {
	opts := DefaultOptions()
	opts.IDMaxAttempts = 2
	svc, repo := newTestService(opts)
	repo.seed(&Appointment{AppointmentID: "111111", PatientID: "OTHER"})
	svc.newID = fixedIDs("111111", "111111", "444444")

	_, err := svc.Create(context.Background(), input("P1", "2025-01-10"))
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if repo.inserts != 2 {
		t.Errorf("expected 2 attempts, got %d", repo.inserts)
	}
}

func TestCreate_SingleAttemptSurfacesCollision(t *testing.T) {
	opts := DefaultOptions()
	opts.IDMaxAttempts = 1
	svc, repo := newTestService(opts)
	repo.seed(&Appointment{AppointmentID: "111111", PatientID: "OTHER"})
	svc.newID = fixedIDs("111111")

	if _, err := svc.Create(context.Background(), input("P1", "2025-01-10")); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	tests := []struct {
		name   string
		mutate func(in *AppointmentInput)
		field  string
	}{
		{"missing patient", func(in *AppointmentInput) { in.PatientID = "" }, "patientId"},
		{"missing doctor", func(in *AppointmentInput) { in.DoctorName = " " }, "doctorName"},
		{"bad date", func(in *AppointmentInput) { in.Date = "10/01/2025" }, "date"},
		{"bad time", func(in *AppointmentInput) { in.Time = "9am" }, "time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := input("P1", "2025-01-10")
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, verr.Field)
			}
		})
	}
	if repo.inserts != 0 {
		t.Error("invalid input must not reach the store")
	}
}

func TestCreate_AcceptsShortTime(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	in := input("P1", "2025-01-10")
	in.Time = "14:30"
	a, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if a.Time != (civil.Time{Hour: 14, Minute: 30}) {
		t.Errorf("expected 14:30:00, got %s", a.Time)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	for _, id := range []string{"000000", "999999", "abc", ""} {
		if _, err := svc.Get(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q): expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestList_Empty(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	items, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil list, got %v", items)
	}
}

func TestUpdate_ReplacesAllFields(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	ctx := context.Background()
	a, _ := svc.Create(ctx, input("P1", "2025-01-10"))

	in := AppointmentInput{
		PatientID:  "P1",
		Name:       "Asha R",
		Date:       "2025-02-01",
		Time:       "10:15:00",
		Department: "Neurology",
		DoctorName: "Dr. Karthik Iyer",
	}
	got, err := svc.Update(ctx, a.AppointmentID, in)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Asha R" || got.Department != "Neurology" || got.DoctorName != "Dr. Karthik Iyer" {
		t.Errorf("fields not replaced: %+v", got)
	}
	if got.Date != (civil.Date{Year: 2025, Month: 2, Day: 1}) || got.Time != (civil.Time{Hour: 10, Minute: 15}) {
		t.Errorf("date/time not replaced: %s %s", got.Date, got.Time)
	}
	if got.UserPhoneNumber != "" {
		t.Errorf("expected omitted phone to be cleared, got %q", got.UserPhoneNumber)
	}
	if got.AppointmentID != a.AppointmentID {
		t.Errorf("id changed: %s", got.AppointmentID)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	if _, err := svc.Update(context.Background(), "123456", input("P1", "2025-01-10")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_RequiresAllFields(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	ctx := context.Background()
	a, _ := svc.Create(ctx, input("P1", "2025-01-10"))

	_, err := svc.Update(ctx, a.AppointmentID, AppointmentInput{Name: "only name"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPatch_ChangesOnlyName(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	ctx := context.Background()
	before, _ := svc.Create(ctx, input("P1", "2025-01-10"))

	after, err := svc.Patch(ctx, before.AppointmentID, PatchInput{Name: strPtr("Asha Krishnan")})
	if err != nil {
		t.Fatal(err)
	}
	if after.Name != "Asha Krishnan" {
		t.Errorf("expected name changed, got %s", after.Name)
	}

	want := *before
	want.Name = "Asha Krishnan"
	want.UpdatedAt = after.UpdatedAt
	if *after != want {
		t.Errorf("patch changed more than name:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestPatch_DateAndTime(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	ctx := context.Background()
	a, _ := svc.Create(ctx, input("P1", "2025-01-10"))

	got, err := svc.Patch(ctx, a.AppointmentID, PatchInput{Date: strPtr("2025-03-05"), Time: strPtr("16:00:00")})
	if err != nil {
		t.Fatal(err)
	}
	if got.Date.String() != "2025-03-05" || got.Time.String() != "16:00:00" {
		t.Errorf("unexpected date/time %s %s", got.Date, got.Time)
	}
	if got.Department != "Cardiology" {
		t.Errorf("department should be untouched, got %s", got.Department)
	}
}

func TestPatch_InvalidDate(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	ctx := context.Background()
	a, _ := svc.Create(ctx, input("P1", "2025-01-10"))

	_, err := svc.Patch(ctx, a.AppointmentID, PatchInput{Date: strPtr("not-a-date")})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPatch_NotFound(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	if _, err := svc.Patch(context.Background(), "123456", PatchInput{Name: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func seedDate(repo *mockApptRepo, date civil.Date, n int) {
	for i := 0; i < n; i++ {
		repo.seed(&Appointment{
			AppointmentID: fmt.Sprintf("%06d", i),
			PatientID:     fmt.Sprintf("P%d", i),
			Date:          date,
		})
	}
}

func TestAvailability_BelowCapacity(t *testing.T) {
	date := civil.Date{Year: 2025, Month: 1, Day: 10}
	for n := 0; n < 10; n++ {
		svc, repo := newTestService(DefaultOptions())
		seedDate(repo, date, n)

		av, err := svc.Availability(context.Background(), "2025-01-10")
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		want := fmt.Sprintf("2025-01-10T%02d:00:00", 9+n)
		if !av.SlotAvailable || av.NextAvailableSlot != want {
			t.Errorf("n=%d: expected {true %s}, got {%v %s}", n, want, av.SlotAvailable, av.NextAvailableSlot)
		}
	}
}

func TestAvailability_AtCapacity(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	seedDate(repo, civil.Date{Year: 2025, Month: 1, Day: 10}, 10)

	av, err := svc.Availability(context.Background(), "2025-01-10")
	if err != nil {
		t.Fatal(err)
	}
	want := Availability{SlotAvailable: false, NextAvailableSlot: "2025-01-11T09:00:00", DoctorName: "Dr. Priya Sharma"}
	if *av != want {
		t.Errorf("expected %+v, got %+v", want, *av)
	}
}

func TestAvailability_OverCapacityCrossesMonth(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	seedDate(repo, civil.Date{Year: 2025, Month: 1, Day: 31}, 12)

	av, _ := svc.Availability(context.Background(), "2025-01-31")
	if av.SlotAvailable || av.NextAvailableSlot != "2025-02-01T09:00:00" {
		t.Errorf("unexpected %+v", av)
	}
}

func TestAvailability_CountsOnlyThatDate(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	seedDate(repo, civil.Date{Year: 2025, Month: 1, Day: 9}, 10)

	av, _ := svc.Availability(context.Background(), "2025-01-10")
	if !av.SlotAvailable || av.NextAvailableSlot != "2025-01-10T09:00:00" {
		t.Errorf("unexpected %+v", av)
	}
}

func TestAvailability_CustomRules(t *testing.T) {
	opts := DefaultOptions()
	opts.SlotCapacity = 2
	opts.SlotStartHour = 14
	opts.DoctorName = "Dr. Meera Nair"
	svc, repo := newTestService(opts)
	seedDate(repo, civil.Date{Year: 2025, Month: 1, Day: 10}, 1)

	av, _ := svc.Availability(context.Background(), "2025-01-10")
	if av.NextAvailableSlot != "2025-01-10T15:00:00" || av.DoctorName != "Dr. Meera Nair" {
		t.Errorf("unexpected %+v", av)
	}
}

func TestAvailability_InvalidDate(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	_, err := svc.Availability(context.Background(), "")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "appointmentDate" {
		t.Fatalf("expected appointmentDate ValidationError, got %v", err)
	}
}

func TestAvailability_StoreError(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	repo.countErr = errStore
	if _, err := svc.Availability(context.Background(), "2025-01-10"); !errors.Is(err, errStore) {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestBookingDetails(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	ctx := context.Background()
	a, _ := svc.Create(ctx, input("P1", "2025-01-10"))

	d, err := svc.BookingDetails(ctx, a.AppointmentID)
	if err != nil {
		t.Fatal(err)
	}
	if d.AppointmentNumber != a.AppointmentID || d.UserPhoneNumber != "9876543210" || d.Name != "Asha Raman" {
		t.Errorf("unexpected details %+v", d)
	}
	if d.AppointmentDate.String() != "2025-01-10" || d.AppointmentTime.String() != "09:00:00" {
		t.Errorf("unexpected slot %s %s", d.AppointmentDate, d.AppointmentTime)
	}
}

func TestBookingDetails_MalformedNumber(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	repo.seed(&Appointment{AppointmentID: "12345", PatientID: "P1"})
	for _, n := range []string{"", "12345", "1234567", "12a456", " 123456", "١٢٣٤٥٦"} {
		if _, err := svc.BookingDetails(context.Background(), n); !errors.Is(err, ErrInvalidAppointmentNumber) {
			t.Errorf("BookingDetails(%q): expected ErrInvalidAppointmentNumber, got %v", n, err)
		}
	}
}

func TestBookingDetails_NotFound(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	if _, err := svc.BookingDetails(context.Background(), "654321"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDetailsByPhone(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	d := civil.Date{Year: 2025, Month: 1, Day: 10}
	repo.seed(&Appointment{AppointmentID: "100000", PatientID: "P1", UserPhoneNumber: "555", IsCancelled: true, Date: d})
	repo.seed(&Appointment{AppointmentID: "200000", PatientID: "P2", UserPhoneNumber: "555", Name: "Ravi", Department: "ENT", DoctorName: "Dr. Rao", Date: d})
	repo.seed(&Appointment{AppointmentID: "300000", PatientID: "P3", UserPhoneNumber: "555", Date: d})

	got, err := svc.DetailsByPhone(context.Background(), "555")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Available || got.AppointmentNumber != "200000" {
		t.Errorf("expected first non-cancelled appointment 200000, got %+v", got)
	}
	if got.Name != "Ravi" || got.Department != "ENT" || got.DoctorName != "Dr. Rao" {
		t.Errorf("unexpected details %+v", got)
	}
}

func TestDetailsByPhone_NotAvailable(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	repo.seed(&Appointment{AppointmentID: "100000", PatientID: "P1", UserPhoneNumber: "555", IsCancelled: true})

	got, err := svc.DetailsByPhone(context.Background(), "555")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Available {
		t.Errorf("expected available=false, got %+v", got)
	}
}

func TestDetailsByPhone_Missing(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	var verr *ValidationError
	if _, err := svc.DetailsByPhone(context.Background(), ""); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestFlagQueries_NotValidatedAlwaysFails(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	repo.seed(&Appointment{AppointmentID: "123456", PatientID: "P1"})
	ctx := context.Background()

	for _, id := range []string{"123456", "000000"} {
		if _, err := svc.RescheduleEligibility(ctx, id, false); !errors.Is(err, ErrUserNotValidated) {
			t.Errorf("reschedule %s: expected ErrUserNotValidated, got %v", id, err)
		}
		if _, err := svc.CancellationStatus(ctx, id, false); !errors.Is(err, ErrUserNotValidated) {
			t.Errorf("cancellation %s: expected ErrUserNotValidated, got %v", id, err)
		}
	}
}

func TestRescheduleEligibility(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	repo.seed(&Appointment{AppointmentID: "123456", PatientID: "P1"})
	repo.seed(&Appointment{AppointmentID: "654321", PatientID: "P2", IsCancelled: true})
	ctx := context.Background()

	st, err := svc.RescheduleEligibility(ctx, "123456", true)
	if err != nil || !st.RescheduleAvailable {
		t.Errorf("expected reschedule available, got %+v %v", st, err)
	}
	if _, err := svc.RescheduleEligibility(ctx, "654321", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("cancelled appointment: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.RescheduleEligibility(ctx, "999999", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing appointment: expected ErrNotFound, got %v", err)
	}
}

func TestCancellationStatus(t *testing.T) {
	svc, repo := newTestService(DefaultOptions())
	repo.seed(&Appointment{AppointmentID: "123456", PatientID: "P1"})
	repo.seed(&Appointment{AppointmentID: "654321", PatientID: "P2", IsCancelled: true})
	ctx := context.Background()

	st, err := svc.CancellationStatus(ctx, "123456", true)
	if err != nil || st.AppointmentCancelled {
		t.Errorf("expected not cancelled, got %+v %v", st, err)
	}
	st, err = svc.CancellationStatus(ctx, "654321", true)
	if err != nil || !st.AppointmentCancelled {
		t.Errorf("expected cancelled row to be reported, got %+v %v", st, err)
	}
	if _, err := svc.CancellationStatus(ctx, "999999", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreatedAppointmentsAreNeverCancelled(t *testing.T) {
	svc, _ := newTestService(DefaultOptions())
	ctx := context.Background()
	a, _ := svc.Create(ctx, input("P1", "2025-01-10"))
	a, _ = svc.Patch(ctx, a.AppointmentID, PatchInput{Department: strPtr("ENT")})
	a, _ = svc.Update(ctx, a.AppointmentID, input("P1", "2025-01-12"))

	st, err := svc.CancellationStatus(ctx, a.AppointmentID, true)
	if err != nil {
		t.Fatal(err)
	}
	if st.AppointmentCancelled {
		t.Error("no operation should set isCancelled")
	}
}
