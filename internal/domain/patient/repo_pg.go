package patient

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

const patientCols = `id, tenant_id, first_name, last_name, date_of_birth, gender, email, phone,
	document_number, address, city, country, emergency_contact_name, emergency_contact_phone,
	notes, created_at, updated_at, deleted_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var deletedAt *time.Time
	err := row.Scan(&p.ID, &p.TenantID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Email, &p.Phone, &p.DocumentNumber, &p.Address, &p.City, &p.Country,
		&p.EmergencyContactName, &p.EmergencyContactPhone, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	p.Lifecycle = record.FromColumn(deletedAt)
	return &p, nil
}

func (r *repoPG) getOne(ctx context.Context, sql string, args ...interface{}) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, sql, args...))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patients
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1 FOR UPDATE`, id)
}

func (r *repoPG) buildQuery(tenantID string, f Filter) *db.SearchQuery {
	qb := db.NewSearchQuery("patients", patientCols, tenantID, f.IncludeDeleted)
	qb.AddTerm(f.Term, "first_name", "last_name", "email", "phone", "document_number")
	if f.Gender != "" {
		qb.AddEq("gender", f.Gender)
	}
	qb.AddRange("date_of_birth", timeArg(f.BornFrom), timeArg(f.BornTo))
	qb.AddRange("created_at", timeArg(f.CreatedFrom), timeArg(f.CreatedTo))
	qb.ApplySort(f.Sort, f.Desc, "last_name, first_name, id", sortColumns)
	return qb
}

func (r *repoPG) Search(ctx context.Context, tenantID string, f Filter) ([]*Patient, error) {
	qb := r.buildQuery(tenantID, f)
	skip, take := f.Window()
	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(skip, take), qb.DataArgs(skip, take)...)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repoPG) Count(ctx context.Context, tenantID string, f Filter) (int, error) {
	qb := r.buildQuery(tenantID, f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return total, nil
}

func (r *repoPG) Add(ctx context.Context, tenantID string, p *Patient) error {
	p.StampCreated(tenantID, record.Now())
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, tenant_id, first_name, last_name, date_of_birth, gender, email, phone,
			document_number, address, city, country, emergency_contact_name, emergency_contact_phone,
			notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		p.ID, p.TenantID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Email, p.Phone,
		p.DocumentNumber, p.Address, p.City, p.Country, p.EmergencyContactName, p.EmergencyContactPhone,
		p.Notes, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoPG) Update(ctx context.Context, tenantID string, p *Patient) (bool, error) {
	p.StampUpdated(record.Now())
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET first_name=$3, last_name=$4, date_of_birth=$5, gender=$6, email=$7,
			phone=$8, document_number=$9, address=$10, city=$11, country=$12,
			emergency_contact_name=$13, emergency_contact_phone=$14, notes=$15, updated_at=$16
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Email,
		p.Phone, p.DocumentNumber, p.Address, p.City, p.Country,
		p.EmergencyContactName, p.EmergencyContactPhone, p.Notes, p.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update patient: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	now := record.Now()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET deleted_at = $3, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id, now)
	if err != nil {
		return false, fmt.Errorf("delete patient: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET deleted_at = NULL, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NOT NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("restore patient: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// timeArg keeps a nil *time.Time an untyped nil so AddRange skips it.
func timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
