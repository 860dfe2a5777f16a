package billing

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
)

type names struct {
	code apperr.Code
	byID map[uuid.UUID]string
	tent map[uuid.UUID]string
}

func newNames(code apperr.Code) *names {
	return &names{code: code, byID: map[uuid.UUID]string{}, tent: map[uuid.UUID]string{}}
}

func (n *names) add(tenant, name string) uuid.UUID {
	id := uuid.New()
	n.byID[id], n.tent[id] = name, tenant
	return id
}

func (n *names) get(tenant string, id uuid.UUID) (string, error) {
	if n.tent[id] != tenant {
		return "", apperr.Newf(n.code, "%s not found", id)
	}
	return n.byID[id], nil
}

func (n *names) PatientName(_ context.Context, tenant string, id uuid.UUID) (string, error) {
	return n.get(tenant, id)
}

func (n *names) DoctorName(_ context.Context, tenant string, id uuid.UUID) (string, error) {
	return n.get(tenant, id)
}

type fixture struct {
	svc     *Service
	sched   *scheduling.Service
	patient uuid.UUID
	doctor  uuid.UUID
	slot    int
}

func newFixture() *fixture {
	pats, docs := newNames(apperr.PatientNotFound), newNames(apperr.DoctorNotFound)
	f := &fixture{patient: pats.add("north", "Ana Souza"), doctor: docs.add("north", "Greg House")}
	f.sched = scheduling.NewService(scheduling.NewRepoMem(), pats, docs, nil, zerolog.Nop())
	f.svc = NewService(NewRepoMem(), NewProviderRepoMem(), pats, docs, f.sched, nil, zerolog.Nop())
	return f
}

// appointment books the next free hour for the fixture's doctor.
func (f *fixture) appointment(t *testing.T, tenant string, fee float64) uuid.UUID {
	t.Helper()
	f.slot++
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC).Add(time.Duration(f.slot) * time.Hour)
	in := scheduling.Input{
		PatientID: &f.patient,
		DoctorID:  &f.doctor,
		StartAt:   start,
		EndAt:     start.Add(time.Hour),
		Fee:       fee,
	}
	if tenant != "north" {
		in.PatientID, in.DoctorID, in.ProspectName = nil, nil, "Walk In"
	}
	a, err := f.sched.ScheduleAppointment(context.Background(), tenant, in)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	return a.ID
}

func (f *fixture) provider(t *testing.T, active bool) uuid.UUID {
	t.Helper()
	p, err := f.svc.CreateProvider(context.Background(), "north", ProviderInput{Name: "Acme Health", Code: "acme", IsActive: &active})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	return p.ID
}

func expectCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	if !apperr.HasCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestService_CreateBilling_DefaultsFromAppointment(t *testing.T) {
	f := newFixture()
	appt := f.appointment(t, "north", 150)
	b, err := f.svc.CreateBilling(context.Background(), "north", Input{AppointmentID: appt, PaymentMethod: MethodCash})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != StatusPending || b.Amount != 150 || b.CopayAmount != 150 || b.Currency != "USD" {
		t.Errorf("unexpected billing %+v", b)
	}
	if b.PatientID == nil || *b.PatientID != f.patient || b.PatientName != "Ana Souza" || b.DoctorName != "Greg House" {
		t.Errorf("participants not copied from appointment: %+v", b)
	}
}

func TestService_CreateBilling_OnePerAppointment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	appt := f.appointment(t, "north", 80)
	first, err := f.svc.CreateBilling(ctx, "north", Input{AppointmentID: appt, PaymentMethod: MethodCard})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.CreateBilling(ctx, "north", Input{AppointmentID: appt, PaymentMethod: MethodCard})
	expectCode(t, err, apperr.BillingAlreadyExists)

	if _, err := f.svc.CancelBilling(ctx, "north", first.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CreateBilling(ctx, "north", Input{AppointmentID: appt, PaymentMethod: MethodCard}); err != nil {
		t.Errorf("re-billing after cancel: %v", err)
	}
}

func TestService_CreateBilling_Concurrent(t *testing.T) {
	f := newFixture()
	appt := f.appointment(t, "north", 60)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateBilling(context.Background(), "north", Input{AppointmentID: appt, PaymentMethod: MethodCash})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Errorf("expected exactly one billing, got %d", created)
	}
}

func TestService_CreateBilling_References(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateBilling(ctx, "north", Input{PaymentMethod: MethodCash})
	expectCode(t, err, apperr.ValidationFailed)

	_, err = f.svc.CreateBilling(ctx, "north", Input{AppointmentID: uuid.New(), PaymentMethod: MethodCash})
	expectCode(t, err, apperr.AppointmentNotFound)

	south := f.appointment(t, "south", 40)
	_, err = f.svc.CreateBilling(ctx, "north", Input{AppointmentID: south, PaymentMethod: MethodCash})
	expectCode(t, err, apperr.CrossTenantReference)

	other := uuid.New()
	appt := f.appointment(t, "north", 40)
	_, err = f.svc.CreateBilling(ctx, "north", Input{AppointmentID: appt, PatientID: &other, PaymentMethod: MethodCash})
	expectCode(t, err, apperr.ValidationFailed)
}

func TestService_CreateBilling_Insurance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	active := f.provider(t, true)
	inactive := f.provider(t, false)

	tests := []struct {
		name string
		in   Input
		code apperr.Code
	}{
		{"missing provider", Input{UsesInsurance: true, CoverageAmount: 70, CopayAmount: 30}, apperr.ValidationFailed},
		{"split mismatch", Input{UsesInsurance: true, InsuranceProviderID: &active, CoverageAmount: 70, CopayAmount: 20}, apperr.ValidationFailed},
		{"unknown provider", Input{UsesInsurance: true, InsuranceProviderID: ptr(uuid.New()), CoverageAmount: 70, CopayAmount: 30}, apperr.InsuranceProviderNotFound},
		{"inactive provider", Input{UsesInsurance: true, InsuranceProviderID: &inactive, CoverageAmount: 70, CopayAmount: 30}, apperr.ValidationFailed},
		{"coverage without insurance", Input{CoverageAmount: 10, CopayAmount: 90}, apperr.ValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.AppointmentID = f.appointment(t, "north", 100)
			tt.in.PaymentMethod = MethodInsurance
			_, err := f.svc.CreateBilling(ctx, "north", tt.in)
			expectCode(t, err, tt.code)
		})
	}

	in := Input{
		AppointmentID:       f.appointment(t, "north", 100),
		PaymentMethod:       MethodInsurance,
		UsesInsurance:       true,
		InsuranceProviderID: &active,
		CoverageAmount:      70.10,
		CopayAmount:         29.90,
	}
	b, err := f.svc.CreateBilling(ctx, "north", in)
	if err != nil {
		t.Fatalf("valid insurance split rejected: %v", err)
	}
	if b.InsuranceProviderID == nil || *b.InsuranceProviderID != active {
		t.Errorf("provider not stored: %+v", b)
	}
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestService_RecordPayment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b, err := f.svc.CreateBilling(ctx, "north", Input{AppointmentID: f.appointment(t, "north", 100), PaymentMethod: MethodCash})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.RecordPayment(ctx, "north", b.ID, PaymentInput{Amount: 0})
	expectCode(t, err, apperr.ValidationFailed)

	b, err = f.svc.RecordPayment(ctx, "north", b.ID, PaymentInput{Amount: 40.10})
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != StatusPartiallyPaid || b.Balance() != 59.90 {
		t.Errorf("after partial payment: %+v", b)
	}

	_, err = f.svc.RecordPayment(ctx, "north", b.ID, PaymentInput{Amount: 60})
	expectCode(t, err, apperr.ValidationFailed)

	b, err = f.svc.RecordPayment(ctx, "north", b.ID, PaymentInput{Amount: 59.90, PaymentMethod: MethodCard})
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != StatusPaid || b.PaidAt == nil || b.PaymentMethod != MethodCard {
		t.Errorf("after settling: %+v", b)
	}

	_, err = f.svc.RecordPayment(ctx, "north", b.ID, PaymentInput{Amount: 1})
	expectCode(t, err, apperr.InvalidStatusTransition)
	_, err = f.svc.CancelBilling(ctx, "north", b.ID)
	expectCode(t, err, apperr.InvalidStatusTransition)
}

func TestService_RecordPayment_OtherTenant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b, err := f.svc.CreateBilling(ctx, "north", Input{AppointmentID: f.appointment(t, "north", 100), PaymentMethod: MethodCash})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.RecordPayment(ctx, "south", b.ID, PaymentInput{Amount: 10})
	expectCode(t, err, apperr.BillingNotFound)
}

func TestService_UpdateBilling_PendingOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	appt := f.appointment(t, "north", 100)
	b, err := f.svc.CreateBilling(ctx, "north", Input{AppointmentID: appt, PaymentMethod: MethodCash})
	if err != nil {
		t.Fatal(err)
	}

	b, err = f.svc.UpdateBilling(ctx, "north", b.ID, Input{PaymentMethod: MethodBankTransfer, Amount: 120, Notes: "extra test"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if b.Amount != 120 || b.CopayAmount != 120 || b.PaymentMethod != MethodBankTransfer {
		t.Errorf("unexpected update result %+v", b)
	}

	_, err = f.svc.UpdateBilling(ctx, "north", b.ID, Input{AppointmentID: f.appointment(t, "north", 5), PaymentMethod: MethodCash})
	expectCode(t, err, apperr.ValidationFailed)

	if _, err := f.svc.RecordPayment(ctx, "north", b.ID, PaymentInput{Amount: 20}); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.UpdateBilling(ctx, "north", b.ID, Input{PaymentMethod: MethodCash})
	expectCode(t, err, apperr.InvalidStatusTransition)
}

func TestService_SearchBillings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := f.svc.CreateBilling(ctx, "north", Input{AppointmentID: f.appointment(t, "north", 50), PaymentMethod: MethodCash}); err != nil {
			t.Fatal(err)
		}
	}
	card, err := f.svc.CreateBilling(ctx, "north", Input{AppointmentID: f.appointment(t, "north", 50), PaymentMethod: MethodCard})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RecordPayment(ctx, "north", card.ID, PaymentInput{Amount: 50}); err != nil {
		t.Fatal(err)
	}

	items, total, err := f.svc.SearchBillings(ctx, "north", Filter{PaymentMethod: MethodCash})
	if err != nil || total != 3 || len(items) != 3 {
		t.Fatalf("method filter: total=%d err=%v", total, err)
	}
	_, total, _ = f.svc.SearchBillings(ctx, "north", Filter{Status: StatusPaid})
	if total != 1 {
		t.Errorf("status filter: expected 1, got %d", total)
	}
	_, total, _ = f.svc.SearchBillings(ctx, "north", Filter{PatientID: &f.patient})
	if total != 4 {
		t.Errorf("patient filter: expected 4, got %d", total)
	}
	_, _, err = f.svc.SearchBillings(ctx, "north", Filter{Status: "Refunded"})
	expectCode(t, err, apperr.InvalidStatus)

	if err := f.svc.DeleteBilling(ctx, "north", card.ID); err != nil {
		t.Fatal(err)
	}
	if n, _ := f.svc.CountBillings(ctx, "north", Filter{}); n != 3 {
		t.Errorf("expected 3 after delete, got %d", n)
	}
	expectCode(t, f.svc.DeleteBilling(ctx, "north", card.ID), apperr.BillingNotFound)
}

func TestService_ExportBillings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.CreateBilling(ctx, "north", Input{AppointmentID: f.appointment(t, "north", 75.5), PaymentMethod: MethodCash}); err != nil {
		t.Fatal(err)
	}
	data, err := f.svc.ExportBillings(ctx, "north", Filter{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(exportSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d rows", len(rows))
	}
	if rows[0][0] != "Billing ID" || rows[1][3] != "Ana Souza" {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestService_Providers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.CreateProvider(ctx, "north", ProviderInput{Name: " "})
	expectCode(t, err, apperr.ValidationFailed)

	p, err := f.svc.CreateProvider(ctx, "north", ProviderInput{Name: "Blue Cross", Code: "bc", Email: "Claims@BlueCross.example"})
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsActive || p.Code != "BC" || p.Email != "claims@bluecross.example" {
		t.Errorf("unexpected provider %+v", p)
	}

	off := false
	p, err = f.svc.UpdateProvider(ctx, "north", p.ID, ProviderInput{Name: "Blue Cross", IsActive: &off})
	if err != nil || p.IsActive {
		t.Fatalf("deactivate: %+v %v", p, err)
	}
	_, total, _ := f.svc.SearchProviders(ctx, "north", ProviderFilter{Active: &off})
	if total != 1 {
		t.Errorf("expected 1 inactive provider, got %d", total)
	}
	_, err = f.svc.GetProvider(ctx, "south", p.ID)
	expectCode(t, err, apperr.InsuranceProviderNotFound)

	if err := f.svc.DeleteProvider(ctx, "north", p.ID); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.GetProvider(ctx, "north", p.ID)
	expectCode(t, err, apperr.InsuranceProviderNotFound)
}

func TestService_RestoreBilling(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	appt := f.appointment(t, "north", 90)
	b, err := f.svc.CreateBilling(ctx, "north", Input{AppointmentID: appt, PaymentMethod: MethodCash})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.RestoreBilling(ctx, "north", b.ID)
	expectCode(t, err, apperr.BillingNotFound)

	if err := f.svc.DeleteBilling(ctx, "north", b.ID); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.RestoreBilling(ctx, "south", b.ID)
	expectCode(t, err, apperr.BillingNotFound)

	r, err := f.svc.RestoreBilling(ctx, "north", b.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if r.IsDeleted() || r.Status != StatusPending || r.Amount != 90 {
		t.Errorf("unexpected restored billing %+v", r)
	}
}

func TestService_RestoreBilling_AppointmentRebilled(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	appt := f.appointment(t, "north", 90)
	first, _ := f.svc.CreateBilling(ctx, "north", Input{AppointmentID: appt, PaymentMethod: MethodCash})
	if err := f.svc.DeleteBilling(ctx, "north", first.ID); err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.CreateBilling(ctx, "north", Input{AppointmentID: appt, PaymentMethod: MethodCard})
	if err != nil {
		t.Fatalf("deleted billing should free the appointment: %v", err)
	}

	_, err = f.svc.RestoreBilling(ctx, "north", first.ID)
	expectCode(t, err, apperr.BillingAlreadyExists)
	_, err = f.svc.GetBilling(ctx, "north", first.ID)
	expectCode(t, err, apperr.BillingNotFound)

	// A cancelled billing never competes for the appointment.
	if _, err := f.svc.CancelBilling(ctx, "north", second.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.DeleteBilling(ctx, "north", second.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RestoreBilling(ctx, "north", first.ID); err != nil {
		t.Fatalf("restore after the rival was cancelled: %v", err)
	}
	if r, err := f.svc.RestoreBilling(ctx, "north", second.ID); err != nil || r.Status != StatusCancelled {
		t.Errorf("cancelled billing restore: %+v %v", r, err)
	}
}

func TestService_RestoreProvider(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.provider(t, true)

	_, err := f.svc.RestoreProvider(ctx, "north", id)
	expectCode(t, err, apperr.InsuranceProviderNotFound)

	if err := f.svc.DeleteProvider(ctx, "north", id); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.RestoreProvider(ctx, "south", id)
	expectCode(t, err, apperr.InsuranceProviderNotFound)

	p, err := f.svc.RestoreProvider(ctx, "north", id)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if p.Name != "Acme Health" || !p.IsActive {
		t.Errorf("unexpected restored provider %+v", p)
	}
}
