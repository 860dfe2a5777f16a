package identity

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

// -- User Repository --

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const userCols = `id, tenant_id, first_name, last_name, email, phone, role_id,
	COALESCE((SELECT name FROM roles WHERE roles.id = users.role_id), '') AS role_name,
	specialty, license_number, is_active, password_confirmed, last_login_at,
	password_hash, setup_token_digest, setup_token_expires_at,
	created_at, updated_at, deleted_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var digest *string
	var deletedAt *time.Time
	err := row.Scan(&u.ID, &u.TenantID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.RoleID,
		&u.RoleName, &u.Specialty, &u.LicenseNumber, &u.IsActive, &u.PasswordConfirmed, &u.LastLoginAt,
		&u.PasswordHash, &digest, &u.SetupTokenExpiresAt,
		&u.CreatedAt, &u.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if digest != nil {
		u.SetupTokenDigest = *digest
	}
	u.Lifecycle = record.FromColumn(deletedAt)
	return &u, nil
}

func (r *userRepoPG) getOne(ctx context.Context, sql string, args ...interface{}) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, sql, args...))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *userRepoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, `SELECT `+userCols+` FROM users
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id)
}

func (r *userRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, `SELECT `+userCols+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *userRepoPG) GetByEmail(ctx context.Context, tenantID, email string) (*User, error) {
	return r.getOne(ctx, `SELECT `+userCols+` FROM users
		WHERE tenant_id = $1 AND lower(email) = lower($2) AND deleted_at IS NULL`, tenantID, email)
}

func (r *userRepoPG) GetBySetupDigest(ctx context.Context, tenantID, digest string) (*User, error) {
	return r.getOne(ctx, `SELECT `+userCols+` FROM users
		WHERE tenant_id = $1 AND setup_token_digest = $2 AND deleted_at IS NULL`, tenantID, digest)
}

func (r *userRepoPG) buildQuery(tenantID string, f UserFilter) *db.SearchQuery {
	qb := db.NewSearchQuery("users", userCols, tenantID, f.IncludeDeleted)
	qb.AddTerm(f.Term, "first_name", "last_name", "email")
	if f.RoleID != nil {
		qb.AddEq("role_id", *f.RoleID)
	}
	if f.Active != nil {
		qb.AddEq("is_active", *f.Active)
	}
	qb.ApplySort(f.Sort, f.Desc, "email, id", userSortColumns)
	return qb
}

func (r *userRepoPG) Search(ctx context.Context, tenantID string, f UserFilter) ([]*User, error) {
	qb := r.buildQuery(tenantID, f)
	skip, take := f.Window()
	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(skip, take), qb.DataArgs(skip, take)...)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *userRepoPG) Count(ctx context.Context, tenantID string, f UserFilter) (int, error) {
	qb := r.buildQuery(tenantID, f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return total, nil
}

func (r *userRepoPG) CountAll(ctx context.Context) (int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count all users: %w", err)
	}
	return total, nil
}

func (r *userRepoPG) Add(ctx context.Context, tenantID string, u *User) error {
	u.StampCreated(tenantID, record.Now())
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO users (id, tenant_id, first_name, last_name, email, phone, role_id,
			specialty, license_number, is_active, password_confirmed, last_login_at,
			password_hash, setup_token_digest, setup_token_expires_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		u.ID, u.TenantID, u.FirstName, u.LastName, u.Email, u.Phone, u.RoleID,
		u.Specialty, u.LicenseNumber, u.IsActive, u.PasswordConfirmed, u.LastLoginAt,
		u.PasswordHash, u.SetupTokenDigest, u.SetupTokenExpiresAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepoPG) Update(ctx context.Context, tenantID string, u *User) (bool, error) {
	u.StampUpdated(record.Now())
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET first_name=$3, last_name=$4, email=$5, phone=$6, role_id=$7,
			specialty=$8, license_number=$9, is_active=$10, password_confirmed=$11, last_login_at=$12,
			password_hash=$13, setup_token_digest=$14, setup_token_expires_at=$15, updated_at=$16
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, u.ID, u.FirstName, u.LastName, u.Email, u.Phone, u.RoleID,
		u.Specialty, u.LicenseNumber, u.IsActive, u.PasswordConfirmed, u.LastLoginAt,
		u.PasswordHash, u.SetupTokenDigest, u.SetupTokenExpiresAt, u.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *userRepoPG) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET deleted_at = $3, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *userRepoPG) Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET deleted_at = NULL, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NOT NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("restore user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// -- Role Repository --

type roleRepoPG struct{ pool *pgxpool.Pool }

func NewRoleRepoPG(pool *pgxpool.Pool) RoleRepository { return &roleRepoPG{pool: pool} }

func (r *roleRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const roleCols = `id, tenant_id, name, description, is_global, created_at, updated_at, deleted_at`

func scanRole(row pgx.Row) (*Role, error) {
	var ro Role
	var deletedAt *time.Time
	if err := row.Scan(&ro.ID, &ro.TenantID, &ro.Name, &ro.Description, &ro.IsGlobal,
		&ro.CreatedAt, &ro.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	ro.Lifecycle = record.FromColumn(deletedAt)
	return &ro, nil
}

func (r *roleRepoPG) getOne(ctx context.Context, sql string, args ...interface{}) (*Role, error) {
	ro, err := scanRole(r.conn(ctx).QueryRow(ctx, sql, args...))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}
	return ro, nil
}

func (r *roleRepoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Role, error) {
	return r.getOne(ctx, `SELECT `+roleCols+` FROM roles
		WHERE (tenant_id = $1 OR is_global) AND id = $2 AND deleted_at IS NULL`, tenantID, id)
}

func (r *roleRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Role, error) {
	return r.getOne(ctx, `SELECT `+roleCols+` FROM roles WHERE id = $1 FOR UPDATE`, id)
}

func (r *roleRepoPG) GetByName(ctx context.Context, tenantID, name string) (*Role, error) {
	return r.getOne(ctx, `SELECT `+roleCols+` FROM roles
		WHERE (tenant_id = $1 OR is_global) AND lower(name) = lower($2) AND deleted_at IS NULL
		ORDER BY is_global DESC LIMIT 1`, tenantID, name)
}

func (r *roleRepoPG) buildQuery(tenantID string, f RoleFilter) *db.SearchQuery {
	qb := db.NewSharedSearchQuery("roles", roleCols, tenantID, "is_global", f.IncludeDeleted)
	qb.AddTerm(f.Term, "name", "description")
	qb.ApplySort(f.Sort, f.Desc, "name, id", roleSortColumns)
	return qb
}

func (r *roleRepoPG) Search(ctx context.Context, tenantID string, f RoleFilter) ([]*Role, error) {
	qb := r.buildQuery(tenantID, f)
	skip, take := f.Window()
	return r.list(ctx, qb.DataSQL(skip, take), qb.DataArgs(skip, take)...)
}

func (r *roleRepoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Role, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []*Role
	for rows.Next() {
		ro, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, ro)
	}
	return out, rows.Err()
}

func (r *roleRepoPG) Count(ctx context.Context, tenantID string, f RoleFilter) (int, error) {
	qb := r.buildQuery(tenantID, f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count roles: %w", err)
	}
	return total, nil
}

func (r *roleRepoPG) Add(ctx context.Context, tenantID string, ro *Role) error {
	ro.StampCreated(tenantID, record.Now())
	return r.insert(ctx, ro)
}

func (r *roleRepoPG) InsertRaw(ctx context.Context, ro *Role) error {
	return r.insert(ctx, ro)
}

func (r *roleRepoPG) insert(ctx context.Context, ro *Role) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO roles (id, tenant_id, name, description, is_global, created_at, updated_at, deleted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ro.ID, ro.TenantID, ro.Name, ro.Description, ro.IsGlobal, ro.CreatedAt, ro.UpdatedAt, ro.Lifecycle.Column())
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (r *roleRepoPG) Update(ctx context.Context, tenantID string, ro *Role) (bool, error) {
	ro.StampUpdated(record.Now())
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE roles SET name=$3, description=$4, updated_at=$5
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, ro.ID, ro.Name, ro.Description, ro.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update role: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *roleRepoPG) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE roles SET deleted_at = $3, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("delete role: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *roleRepoPG) Restore(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE roles SET deleted_at = NULL, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NOT NULL`, tenantID, id, record.Now())
	if err != nil {
		return false, fmt.Errorf("restore role: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *roleRepoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Role, error) {
	return r.list(ctx, `SELECT `+roleCols+` FROM roles WHERE id = ANY($1) ORDER BY id`, ids)
}

func (r *roleRepoPG) HardDelete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM roles WHERE id = $1`, id); err != nil {
		return fmt.Errorf("hard delete role: %w", err)
	}
	return nil
}
