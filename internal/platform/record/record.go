// Package record holds the tenant-scoped base that every persisted entity
// embeds: identity, owning tenant, audit timestamps and the soft-delete
// lifecycle.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Now is the clock used for audit stamps. Tests may replace it.
var Now = func() time.Time { return time.Now().UTC() }

// Lifecycle is either active or deleted at a point in time. The zero value is
// active; a deleted lifecycle always carries its timestamp.
type Lifecycle struct {
	deletedAt *time.Time
}

// Active returns the active lifecycle.
func Active() Lifecycle { return Lifecycle{} }

// DeletedAt returns a deleted lifecycle stamped with t.
func DeletedAt(t time.Time) Lifecycle {
	at := t.UTC()
	return Lifecycle{deletedAt: &at}
}

// FromColumn rebuilds the lifecycle from the nullable deleted_at column.
func FromColumn(deletedAt *time.Time) Lifecycle {
	if deletedAt == nil {
		return Active()
	}
	return DeletedAt(*deletedAt)
}

func (l Lifecycle) IsDeleted() bool { return l.deletedAt != nil }

// DeletedTime returns the deletion time and whether the record is deleted.
func (l Lifecycle) DeletedTime() (time.Time, bool) {
	if l.deletedAt == nil {
		return time.Time{}, false
	}
	return *l.deletedAt, true
}

type lifecycleJSON struct {
	State     string     `json:"state"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

const (
	stateActive  = "active"
	stateDeleted = "deleted"
)

func (l Lifecycle) MarshalJSON() ([]byte, error) {
	if l.deletedAt == nil {
		return json.Marshal(lifecycleJSON{State: stateActive})
	}
	return json.Marshal(lifecycleJSON{State: stateDeleted, DeletedAt: l.deletedAt})
}

// UnmarshalJSON rejects a deleted state without its timestamp.
func (l *Lifecycle) UnmarshalJSON(data []byte) error {
	var raw lifecycleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.State {
	case stateActive, "":
		*l = Active()
	case stateDeleted:
		if raw.DeletedAt == nil {
			return fmt.Errorf("deleted lifecycle requires deleted_at")
		}
		*l = DeletedAt(*raw.DeletedAt)
	default:
		return fmt.Errorf("unknown lifecycle state %q", raw.State)
	}
	return nil
}

// Column returns the value stored in deleted_at.
func (l Lifecycle) Column() *time.Time {
	if l.deletedAt == nil {
		return nil
	}
	at := *l.deletedAt
	return &at
}

// Record is embedded by every tenant-scoped entity.
type Record struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Lifecycle Lifecycle `json:"lifecycle"`
}

// Base gives generic stores access to the embedded record.
func (r *Record) Base() *Record { return r }

// StampCreated prepares a new record for insertion into tenantID.
func (r *Record) StampCreated(tenantID string, now time.Time) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.TenantID = tenantID
	r.CreatedAt = now.UTC()
	r.UpdatedAt = r.CreatedAt
	r.Lifecycle = Active()
}

// StampUpdated bumps UpdatedAt. Every write path calls it.
func (r *Record) StampUpdated(now time.Time) {
	r.UpdatedAt = now.UTC()
}

// MarkDeleted moves the record to the deleted state.
func (r *Record) MarkDeleted(now time.Time) {
	r.Lifecycle = DeletedAt(now)
	r.StampUpdated(now)
}

// Restore moves a deleted record back to active.
func (r *Record) Restore(now time.Time) {
	r.Lifecycle = Active()
	r.StampUpdated(now)
}

func (r *Record) IsDeleted() bool { return r.Lifecycle.IsDeleted() }

// Entity is implemented by every struct embedding Record.
type Entity interface {
	Base() *Record
}

// Query carries the options shared by every repository search. Entity
// filters embed it. Count ignores Skip and Take.
type Query struct {
	Term           string
	IncludeDeleted bool
	Sort           string
	Desc           bool
	Skip           int
	Take           int
}

// Window returns the normalized skip/take pair; a non-positive take means
// "no limit".
func (q Query) Window() (skip, take int) {
	skip = q.Skip
	if skip < 0 {
		skip = 0
	}
	return skip, q.Take
}

// ErrDuplicate is returned by stores that enforce uniqueness without a SQL
// constraint. db.IsUniqueViolation recognizes it alongside Postgres errors.
var ErrDuplicate = errors.New("duplicate key")
