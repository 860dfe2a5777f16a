package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/record"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const billingCols = `id, tenant_id, appointment_id, patient_id, doctor_id, patient_name, doctor_name,
	payment_method, amount, currency, uses_insurance, insurance_provider_id, coverage_amount,
	copay_amount, paid_amount, status, notes, paid_at, created_at, updated_at, deleted_at`

func scanBilling(row pgx.Row) (*Billing, error) {
	var b Billing
	var deletedAt *time.Time
	err := row.Scan(&b.ID, &b.TenantID, &b.AppointmentID, &b.PatientID, &b.DoctorID, &b.PatientName, &b.DoctorName,
		&b.PaymentMethod, &b.Amount, &b.Currency, &b.UsesInsurance, &b.InsuranceProviderID, &b.CoverageAmount,
		&b.CopayAmount, &b.PaidAmount, &b.Status, &b.Notes, &b.PaidAt, &b.CreatedAt, &b.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	b.Lifecycle = record.FromColumn(deletedAt)
	return &b, nil
}

func (r *repoPG) getOne(ctx context.Context, sql string, args ...interface{}) (*Billing, error) {
	b, err := scanBilling(r.conn(ctx).QueryRow(ctx, sql, args...))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get billing: %w", err)
	}
	return b, nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Billing, error) {
	return r.getOne(ctx, `SELECT `+billingCols+` FROM billings
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Billing, error) {
	return r.getOne(ctx, `SELECT `+billingCols+` FROM billings WHERE id = $1 FOR UPDATE`, id)
}

func (r *repoPG) GetOpenByAppointment(ctx context.Context, tenantID string, appointmentID uuid.UUID) (*Billing, error) {
	return r.getOne(ctx, `SELECT `+billingCols+` FROM billings
		WHERE tenant_id = $1 AND appointment_id = $2 AND deleted_at IS NULL AND status <> 'Cancelled'
		LIMIT 1`, tenantID, appointmentID)
}

func timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func (r *repoPG) buildQuery(tenantID string, f Filter) *db.SearchQuery {
	qb := db.NewSearchQuery("billings", billingCols, tenantID, f.IncludeDeleted)
	qb.AddTerm(f.Term, "patient_name", "doctor_name", "notes")
	if f.Status != "" {
		qb.AddEq("status", string(f.Status))
	}
	if f.PaymentMethod != "" {
		qb.AddEq("payment_method", string(f.PaymentMethod))
	}
	if f.PatientID != nil {
		qb.AddEq("patient_id", *f.PatientID)
	}
	qb.AddRange("created_at", timeArg(f.From), timeArg(f.To))
	qb.ApplySort(f.Sort, f.Desc, "created_at DESC, id", sortColumns)
	return qb
}

func (r *repoPG) Search(ctx context.Context, tenantID string, f Filter) ([]*Billing, error) {
	qb := r.buildQuery(tenantID, f)
	skip, take := f.Window()
	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(skip, take), qb.DataArgs(skip, take)...)
	if err != nil {
		return nil, fmt.Errorf("search billings: %w", err)
	}
	defer rows.Close()

	var out []*Billing
	for rows.Next() {
		b, err := scanBilling(rows)
		if err != nil {
			return nil, fmt.Errorf("scan billing: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repoPG) Count(ctx context.Context, tenantID string, f Filter) (int, error) {
	qb := r.buildQuery(tenantID, f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count billings: %w", err)
	}
	return total, nil
}

func (r *repoPG) Add(ctx context.Context, tenantID string, b *Billing) error {
	b.StampCreated(tenantID, record.Now())
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO billings (id, tenant_id, appointment_id, patient_id, doctor_id, patient_name, doctor_name,
			payment_method, amount, currency, uses_insurance, insurance_provider_id, coverage_amount,
			copay_amount, paid_amount, status, notes, paid_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		b.ID, b.TenantID, b.AppointmentID, b.PatientID, b.DoctorID, b.PatientName, b.DoctorName,
		b.PaymentMethod, b.Amount, b.Currency, b.UsesInsurance, b.InsuranceProviderID, b.CoverageAmount,
		b.CopayAmount, b.PaidAmount, b.Status, b.Notes, b.PaidAt, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert billing: %w", err)
	}
	return nil
}

func (r *repoPG) Update(ctx context.Context, tenantID string, b *Billing) (bool, error) {
	b.StampUpdated(record.Now())
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE billings SET patient_id=$3, doctor_id=$4, patient_name=$5, doctor_name=$6,
			payment_method=$7, amount=$8, currency=$9, uses_insurance=$10, insurance_provider_id=$11,
			coverage_amount=$12, copay_amount=$13, paid_amount=$14, status=$15, notes=$16, paid_at=$17,
			updated_at=$18
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, b.ID, b.PatientID, b.DoctorID, b.PatientName, b.DoctorName,
		b.PaymentMethod, b.Amount, b.Currency, b.UsesInsurance, b.InsuranceProviderID,
		b.CoverageAmount, b.CopayAmount, b.PaidAmount, b.Status, b.Notes, b.PaidAt, b.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update billing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE billings SET deleted_at = $3, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("delete billing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE billings SET deleted_at = NULL, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NOT NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("restore billing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

type providerRepoPG struct{ pool *pgxpool.Pool }

func NewProviderRepoPG(pool *pgxpool.Pool) ProviderRepository { return &providerRepoPG{pool: pool} }

func (r *providerRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const providerCols = `id, tenant_id, name, code, phone, email, website, is_active, created_at, updated_at, deleted_at`

func scanProvider(row pgx.Row) (*InsuranceProvider, error) {
	var p InsuranceProvider
	var deletedAt *time.Time
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Code, &p.Phone, &p.Email, &p.Website, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	p.Lifecycle = record.FromColumn(deletedAt)
	return &p, nil
}

func (r *providerRepoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*InsuranceProvider, error) {
	p, err := scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM insurance_providers
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get insurance provider: %w", err)
	}
	return p, nil
}

func (r *providerRepoPG) buildQuery(tenantID string, f ProviderFilter) *db.SearchQuery {
	qb := db.NewSearchQuery("insurance_providers", providerCols, tenantID, f.IncludeDeleted)
	qb.AddTerm(f.Term, "name", "code")
	if f.Active != nil {
		qb.AddEq("is_active", *f.Active)
	}
	qb.ApplySort(f.Sort, f.Desc, "name, id", providerSortColumns)
	return qb
}

func (r *providerRepoPG) Search(ctx context.Context, tenantID string, f ProviderFilter) ([]*InsuranceProvider, error) {
	qb := r.buildQuery(tenantID, f)
	skip, take := f.Window()
	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(skip, take), qb.DataArgs(skip, take)...)
	if err != nil {
		return nil, fmt.Errorf("search insurance providers: %w", err)
	}
	defer rows.Close()

	var out []*InsuranceProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan insurance provider: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *providerRepoPG) Count(ctx context.Context, tenantID string, f ProviderFilter) (int, error) {
	qb := r.buildQuery(tenantID, f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count insurance providers: %w", err)
	}
	return total, nil
}

func (r *providerRepoPG) Add(ctx context.Context, tenantID string, p *InsuranceProvider) error {
	p.StampCreated(tenantID, record.Now())
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO insurance_providers (id, tenant_id, name, code, phone, email, website, is_active,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.TenantID, p.Name, p.Code, p.Phone, p.Email, p.Website, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert insurance provider: %w", err)
	}
	return nil
}

func (r *providerRepoPG) Update(ctx context.Context, tenantID string, p *InsuranceProvider) (bool, error) {
	p.StampUpdated(record.Now())
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE insurance_providers SET name=$3, code=$4, phone=$5, email=$6, website=$7, is_active=$8,
			updated_at=$9
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, p.ID, p.Name, p.Code, p.Phone, p.Email, p.Website, p.IsActive, p.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update insurance provider: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *providerRepoPG) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE insurance_providers SET deleted_at = $3, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("delete insurance provider: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *providerRepoPG) Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE insurance_providers SET deleted_at = NULL, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NOT NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("restore insurance provider: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
