package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/memstore"
	"github.com/clinic/clinic/internal/platform/record"
)

// -- User Repository --

type userRepoMem struct {
	table *memstore.Table[*User]
	roles *memstore.Table[*Role]
}

// NewUserRepoMem stores users in process. roles, when given, fills RoleName
// the way the Postgres repository does.
func NewUserRepoMem(roles RoleRepository) UserRepository {
	t := memstore.NewTable(cloneUser)
	t.Unique = func(a, b *User) bool { return strings.EqualFold(a.Email, b.Email) }
	r := &userRepoMem{table: t}
	if rm, ok := roles.(*roleRepoMem); ok {
		r.roles = rm.table
	}
	return r
}

func (r *userRepoMem) withRole(u *User) *User {
	if u != nil && r.roles != nil {
		if ro, ok := r.roles.GetAny(u.RoleID); ok {
			u.RoleName = ro.Name
		} else {
			u.RoleName = ""
		}
	}
	return u
}

func (r *userRepoMem) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*User, error) {
	u, ok := r.table.Get(tenantID, id)
	if !ok {
		return nil, nil
	}
	return r.withRole(u), nil
}

func (r *userRepoMem) GetForUpdate(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := r.table.GetAny(id)
	if !ok {
		return nil, nil
	}
	return r.withRole(u), nil
}

func (r *userRepoMem) first(tenantID string, keep func(*User) bool) *User {
	items := r.table.Select(tenantID, false, keep)
	if len(items) == 0 {
		return nil
	}
	return r.withRole(items[0])
}

func (r *userRepoMem) GetByEmail(_ context.Context, tenantID, email string) (*User, error) {
	return r.first(tenantID, func(u *User) bool { return strings.EqualFold(u.Email, email) }), nil
}

func (r *userRepoMem) GetBySetupDigest(_ context.Context, tenantID, digest string) (*User, error) {
	if digest == "" {
		return nil, nil
	}
	return r.first(tenantID, func(u *User) bool { return u.SetupTokenDigest == digest }), nil
}

func (r *userRepoMem) Search(_ context.Context, tenantID string, f UserFilter) ([]*User, error) {
	items := r.table.Select(tenantID, f.IncludeDeleted, f.matches)
	skip, take := f.Window()
	items = memstore.SortPage(items, userLess(f.Sort, f.Desc), skip, take)
	for _, u := range items {
		r.withRole(u)
	}
	return items, nil
}

func (r *userRepoMem) Count(_ context.Context, tenantID string, f UserFilter) (int, error) {
	return len(r.table.Select(tenantID, f.IncludeDeleted, f.matches)), nil
}

func (r *userRepoMem) CountAll(context.Context) (int, error) {
	return r.table.Len(), nil
}

func (r *userRepoMem) Add(_ context.Context, tenantID string, u *User) error {
	return r.table.Insert(tenantID, u)
}

func (r *userRepoMem) Update(_ context.Context, tenantID string, u *User) (bool, error) {
	return r.table.Update(tenantID, u)
}

func (r *userRepoMem) SoftDelete(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.SoftDelete(tenantID, id), nil
}

func (r *userRepoMem) Restore(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.Restore(tenantID, id)
}

func (f UserFilter) matches(u *User) bool {
	if term := strings.ToLower(strings.TrimSpace(f.Term)); term != "" {
		if !containsAny(term, u.FirstName, u.LastName, u.Email) {
			return false
		}
	}
	if f.RoleID != nil && u.RoleID != *f.RoleID {
		return false
	}
	if f.Active != nil && u.IsActive != *f.Active {
		return false
	}
	return true
}

func containsAny(term string, values ...string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

func userLess(sortKey string, desc bool) func(a, b *User) bool {
	var less func(a, b *User) bool
	switch sortKey {
	case "name":
		less = func(a, b *User) bool { return a.LastName < b.LastName }
	case "created":
		less = func(a, b *User) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "email":
		less = func(a, b *User) bool { return a.Email < b.Email }
	default:
		return func(a, b *User) bool { return a.Email < b.Email }
	}
	if desc {
		return func(a, b *User) bool { return less(b, a) }
	}
	return less
}

// -- Role Repository --

type roleRepoMem struct {
	table *memstore.Table[*Role]
}

func NewRoleRepoMem() RoleRepository {
	t := memstore.NewTable(cloneRole)
	t.Unique = func(a, b *Role) bool { return strings.EqualFold(a.Name, b.Name) }
	return &roleRepoMem{table: t}
}

func visibleTo(tenantID string, ro *Role) bool {
	return ro.TenantID == tenantID || ro.IsGlobal
}

func (r *roleRepoMem) visible(tenantID string, includeDeleted bool, keep func(*Role) bool) []*Role {
	return r.table.SelectAll(func(ro *Role) bool {
		if !visibleTo(tenantID, ro) || (ro.IsDeleted() && !includeDeleted) {
			return false
		}
		return keep == nil || keep(ro)
	})
}

func (r *roleRepoMem) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*Role, error) {
	ro, ok := r.table.GetAny(id)
	if !ok || ro.IsDeleted() || !visibleTo(tenantID, ro) {
		return nil, nil
	}
	return ro, nil
}

func (r *roleRepoMem) GetForUpdate(_ context.Context, id uuid.UUID) (*Role, error) {
	ro, ok := r.table.GetAny(id)
	if !ok {
		return nil, nil
	}
	return ro, nil
}

func (r *roleRepoMem) GetByName(_ context.Context, tenantID, name string) (*Role, error) {
	items := r.visible(tenantID, false, func(ro *Role) bool { return strings.EqualFold(ro.Name, name) })
	if len(items) == 0 {
		return nil, nil
	}
	memstore.SortPage(items, func(a, b *Role) bool { return a.IsGlobal && !b.IsGlobal }, 0, 0)
	return items[0], nil
}

func (f RoleFilter) matches(ro *Role) bool {
	term := strings.ToLower(strings.TrimSpace(f.Term))
	return term == "" || containsAny(term, ro.Name, ro.Description)
}

func (r *roleRepoMem) Search(_ context.Context, tenantID string, f RoleFilter) ([]*Role, error) {
	items := r.visible(tenantID, f.IncludeDeleted, f.matches)
	skip, take := f.Window()
	less := func(a, b *Role) bool { return a.Name < b.Name }
	if f.Sort == "created" {
		less = func(a, b *Role) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
	if f.Desc && (f.Sort == "name" || f.Sort == "created") {
		asc := less
		less = func(a, b *Role) bool { return asc(b, a) }
	}
	return memstore.SortPage(items, less, skip, take), nil
}

func (r *roleRepoMem) Count(_ context.Context, tenantID string, f RoleFilter) (int, error) {
	return len(r.visible(tenantID, f.IncludeDeleted, f.matches)), nil
}

func (r *roleRepoMem) Add(_ context.Context, tenantID string, ro *Role) error {
	return r.table.Insert(tenantID, ro)
}

func (r *roleRepoMem) Update(_ context.Context, tenantID string, ro *Role) (bool, error) {
	return r.table.Update(tenantID, ro)
}

func (r *roleRepoMem) SoftDelete(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.SoftDelete(tenantID, id), nil
}

func (r *roleRepoMem) Restore(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return r.table.Restore(tenantID, id)
}

func (r *roleRepoMem) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*Role, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	items := r.table.SelectAll(func(ro *Role) bool { return want[ro.ID] })
	return memstore.SortPage(items, nil, 0, 0), nil
}

func (r *roleRepoMem) InsertRaw(_ context.Context, ro *Role) error {
	if ro.CreatedAt.IsZero() {
		now := record.Now()
		ro.CreatedAt, ro.UpdatedAt = now, now
	}
	return r.table.InsertRaw(ro)
}

func (r *roleRepoMem) HardDelete(_ context.Context, id uuid.UUID) error {
	r.table.Remove(id)
	return nil
}
