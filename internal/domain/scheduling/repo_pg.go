package scheduling

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

const appointmentCols = `id, tenant_id, patient_id, prospect_name, prospect_phone, prospect_email,
	doctor_id, patient_name, doctor_name, title, description, location, notes,
	start_at, end_at, status, fee, currency, created_at, updated_at, deleted_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var deletedAt *time.Time
	err := row.Scan(&a.ID, &a.TenantID, &a.PatientID, &a.ProspectName, &a.ProspectPhone, &a.ProspectEmail,
		&a.DoctorID, &a.PatientName, &a.DoctorName, &a.Title, &a.Description, &a.Location, &a.Notes,
		&a.StartAt, &a.EndAt, &a.Status, &a.Fee, &a.Currency, &a.CreatedAt, &a.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	a.Lifecycle = record.FromColumn(deletedAt)
	return &a, nil
}

func (r *repoPG) getOne(ctx context.Context, sql string, args ...interface{}) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, sql, args...))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *repoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	return r.getOne(ctx, `SELECT `+appointmentCols+` FROM appointments
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.getOne(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
}

func (r *repoPG) buildQuery(tenantID string, f Filter) *db.SearchQuery {
	qb := db.NewSearchQuery("appointments", appointmentCols, tenantID, f.IncludeDeleted)
	qb.AddTerm(f.Term, "title", "patient_name", "prospect_name", "doctor_name")
	if f.Status != "" {
		qb.AddEq("status", string(f.Status))
	}
	if f.DoctorID != nil {
		qb.AddEq("doctor_id", *f.DoctorID)
	}
	if f.PatientID != nil {
		qb.AddEq("patient_id", *f.PatientID)
	}
	// Window intersection: ends after From, starts before To.
	if f.From != nil {
		qb.Add(fmt.Sprintf("end_at > $%d", qb.Idx()), *f.From)
	}
	if f.To != nil {
		qb.Add(fmt.Sprintf("start_at < $%d", qb.Idx()), *f.To)
	}
	qb.ApplySort(f.Sort, f.Desc, "start_at, id", sortColumns)
	return qb
}

func (r *repoPG) Search(ctx context.Context, tenantID string, f Filter) ([]*Appointment, error) {
	qb := r.buildQuery(tenantID, f)
	skip, take := f.Window()
	return r.list(ctx, qb.DataSQL(skip, take), qb.DataArgs(skip, take)...)
}

func (r *repoPG) Count(ctx context.Context, tenantID string, f Filter) (int, error) {
	qb := r.buildQuery(tenantID, f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return total, nil
}

func (r *repoPG) Conflicting(ctx context.Context, tenantID string, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]*Appointment, error) {
	return r.list(ctx, `SELECT `+appointmentCols+` FROM appointments
		WHERE tenant_id = $1 AND doctor_id = $2 AND deleted_at IS NULL
			AND status <> 'Cancelled' AND start_at < $4 AND end_at > $3 AND id <> $5
		ORDER BY start_at, id`, tenantID, doctorID, start, end, exclude)
}

func (r *repoPG) Add(ctx context.Context, tenantID string, a *Appointment) error {
	a.StampCreated(tenantID, record.Now())
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, tenant_id, patient_id, prospect_name, prospect_phone, prospect_email,
			doctor_id, patient_name, doctor_name, title, description, location, notes,
			start_at, end_at, status, fee, currency, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		a.ID, a.TenantID, a.PatientID, a.ProspectName, a.ProspectPhone, a.ProspectEmail,
		a.DoctorID, a.PatientName, a.DoctorName, a.Title, a.Description, a.Location, a.Notes,
		a.StartAt, a.EndAt, a.Status, a.Fee, a.Currency, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *repoPG) Update(ctx context.Context, tenantID string, a *Appointment) (bool, error) {
	a.StampUpdated(record.Now())
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET patient_id=$3, prospect_name=$4, prospect_phone=$5, prospect_email=$6,
			doctor_id=$7, patient_name=$8, doctor_name=$9, title=$10, description=$11, location=$12,
			notes=$13, start_at=$14, end_at=$15, status=$16, fee=$17, currency=$18, updated_at=$19
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, a.ID, a.PatientID, a.ProspectName, a.ProspectPhone, a.ProspectEmail,
		a.DoctorID, a.PatientName, a.DoctorName, a.Title, a.Description, a.Location,
		a.Notes, a.StartAt, a.EndAt, a.Status, a.Fee, a.Currency, a.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update appointment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET deleted_at = $3, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("delete appointment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET deleted_at = NULL, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NOT NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("restore appointment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
