package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
)

// DemoOptions size a demo data set. Seed 0 picks a random seed.
type DemoOptions struct {
	Doctors      int
	Patients     int
	Appointments int
	Seed         uint64
	Start        time.Time
}

func DefaultDemoOptions() DemoOptions {
	return DemoOptions{Doctors: 3, Patients: 25, Appointments: 40}
}

// DemoResult counts what SeedDemo created. Skipped counts generated
// appointments that clashed with an existing one.
type DemoResult struct {
	Doctors      int
	Patients     int
	Appointments int
	Skipped      int
}

type DemoServices struct {
	Users        *identity.Service
	Patients     *patient.Service
	Appointments *scheduling.Service
}

var specialties = []string{
	"General Practice", "Cardiology", "Dermatology", "Pediatrics",
	"Orthopedics", "Neurology", "Endocrinology", "Psychiatry",
}

var visitTitles = []string{
	"Annual check-up", "Follow-up", "Lab results review", "Vaccination",
	"Blood pressure control", "Back pain", "Skin rash", "Prescription renewal",
}

// SeedDemo fills tenantID with fake doctors, patients and appointments
// through the regular services, so every business rule applies.
func SeedDemo(ctx context.Context, svc DemoServices, tenantID string, opts DemoOptions, logger zerolog.Logger) (*DemoResult, error) {
	f := gofakeit.New(opts.Seed)
	start := opts.Start
	if start.IsZero() {
		start = time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
	res := &DemoResult{}

	doctors := make([]uuid.UUID, 0, opts.Doctors)
	for i := 0; i < opts.Doctors; i++ {
		u, err := svc.Users.RegisterUser(ctx, tenantID, identity.UserInput{
			FirstName: f.FirstName(),
			LastName:  f.LastName(),
			Email:     fmt.Sprintf("doctor%d.%s", i+1, f.Email()),
			Phone:     f.Phone(),
			RoleID:    identity.DoctorRoleID,
			Specialty: f.RandomString(specialties),
		})
		if apperr.HasCode(err, apperr.EmailAlreadyExists) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed doctor: %w", err)
		}
		doctors = append(doctors, u.ID)
		res.Doctors++
	}

	patients := make([]uuid.UUID, 0, opts.Patients)
	for i := 0; i < opts.Patients; i++ {
		dob := f.DateRange(time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
		p, err := svc.Patients.CreatePatient(ctx, tenantID, patient.Input{
			FirstName:   f.FirstName(),
			LastName:    f.LastName(),
			DateOfBirth: &dob,
			Gender:      f.RandomString([]string{patient.GenderMale, patient.GenderFemale}),
			Email:       f.Email(),
			Phone:       f.Phone(),
			Address:     f.Street(),
			City:        f.City(),
			Country:     f.Country(),
		})
		if err != nil {
			return res, fmt.Errorf("seed patient: %w", err)
		}
		patients = append(patients, p.ID)
		res.Patients++
	}

	if len(doctors) == 0 || len(patients) == 0 {
		return res, nil
	}
	for i := 0; i < opts.Appointments; i++ {
		doctor := doctors[f.Number(0, len(doctors)-1)]
		pat := patients[f.Number(0, len(patients)-1)]
		// Half-hour slots between 09:00 and 17:00 over two weeks.
		at := start.AddDate(0, 0, f.Number(0, 13)).Add(9*time.Hour + time.Duration(f.Number(0, 15))*30*time.Minute)
		_, err := svc.Appointments.ScheduleAppointment(ctx, tenantID, scheduling.Input{
			PatientID: &pat,
			DoctorID:  &doctor,
			Title:     f.RandomString(visitTitles),
			StartAt:   at,
			EndAt:     at.Add(30 * time.Minute),
			Fee:       float64(f.Number(4, 30) * 5),
		})
		if apperr.HasCode(err, apperr.DoctorUnavailable) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed appointment: %w", err)
		}
		res.Appointments++
	}

	logger.Info().Str("tenant_id", tenantID).Int("doctors", res.Doctors).Int("patients", res.Patients).
		Int("appointments", res.Appointments).Int("skipped", res.Skipped).Msg("demo data seeded")
	return res, nil
}
