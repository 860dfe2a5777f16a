package clinical

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

// Sub-records live in jsonb columns; pgx marshals them with encoding/json.
const consultationCols = `id, tenant_id, patient_id, doctor_id, appointment_id, patient_name, doctor_name,
	visit_reason, notes, diagnosis, symptoms, lab_requisition, prescription,
	created_at, updated_at, deleted_at`

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	var deletedAt *time.Time
	err := row.Scan(&c.ID, &c.TenantID, &c.PatientID, &c.DoctorID, &c.AppointmentID, &c.PatientName,
		&c.DoctorName, &c.VisitReason, &c.Notes, &c.Diagnosis, &c.Symptoms, &c.LabRequisition,
		&c.Prescription, &c.CreatedAt, &c.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if c.Symptoms == nil {
		c.Symptoms = []Symptom{}
	}
	c.Lifecycle = record.FromColumn(deletedAt)
	return &c, nil
}

func (r *repoPG) getOne(ctx context.Context, sql string, args ...interface{}) (*Consultation, error) {
	c, err := scanConsultation(r.conn(ctx).QueryRow(ctx, sql, args...))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get consultation: %w", err)
	}
	return c, nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Consultation, error) {
	return r.getOne(ctx, `SELECT `+consultationCols+` FROM consultations
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return r.getOne(ctx, `SELECT `+consultationCols+` FROM consultations WHERE id = $1 FOR UPDATE`, id)
}

func timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func (r *repoPG) buildQuery(tenantID string, f Filter) *db.SearchQuery {
	qb := db.NewSearchQuery("consultations", consultationCols, tenantID, f.IncludeDeleted)
	qb.AddTerm(f.Term, "visit_reason", "diagnosis", "patient_name", "doctor_name")
	if f.PatientID != nil {
		qb.AddEq("patient_id", *f.PatientID)
	}
	if f.DoctorID != nil {
		qb.AddEq("doctor_id", *f.DoctorID)
	}
	qb.AddRange("created_at", timeArg(f.From), timeArg(f.To))
	qb.ApplySort(f.Sort, f.Desc, "created_at DESC, id", sortColumns)
	return qb
}

func (r *repoPG) Search(ctx context.Context, tenantID string, f Filter) ([]*Consultation, error) {
	qb := r.buildQuery(tenantID, f)
	skip, take := f.Window()
	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(skip, take), qb.DataArgs(skip, take)...)
	if err != nil {
		return nil, fmt.Errorf("search consultations: %w", err)
	}
	defer rows.Close()

	var out []*Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consultation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repoPG) Count(ctx context.Context, tenantID string, f Filter) (int, error) {
	qb := r.buildQuery(tenantID, f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count consultations: %w", err)
	}
	return total, nil
}

func (r *repoPG) Add(ctx context.Context, tenantID string, c *Consultation) error {
	c.StampCreated(tenantID, record.Now())
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consultations (id, tenant_id, patient_id, doctor_id, appointment_id, patient_name,
			doctor_name, visit_reason, notes, diagnosis, symptoms, lab_requisition, prescription,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.TenantID, c.PatientID, c.DoctorID, c.AppointmentID, c.PatientName,
		c.DoctorName, c.VisitReason, c.Notes, c.Diagnosis, c.Symptoms, c.LabRequisition, c.Prescription,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert consultation: %w", err)
	}
	return nil
}

func (r *repoPG) Update(ctx context.Context, tenantID string, c *Consultation) (bool, error) {
	c.StampUpdated(record.Now())
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultations SET patient_id=$3, doctor_id=$4, appointment_id=$5, patient_name=$6,
			doctor_name=$7, visit_reason=$8, notes=$9, diagnosis=$10, symptoms=$11,
			lab_requisition=$12, prescription=$13, updated_at=$14
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, c.ID, c.PatientID, c.DoctorID, c.AppointmentID, c.PatientName,
		c.DoctorName, c.VisitReason, c.Notes, c.Diagnosis, c.Symptoms,
		c.LabRequisition, c.Prescription, c.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update consultation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultations SET deleted_at = $3, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("delete consultation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultations SET deleted_at = NULL, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NOT NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("restore consultation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
