// Package memstore is the in-memory storage backend used by STORAGE_BACKEND=memory
// and by tests. A Table enforces the same tenant filter and soft-delete rules
// as the Postgres repositories.
package memstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/record"
)

// Table stores copies of entities keyed by id. Values handed in and out are
// cloned so callers never alias stored state.
type Table[T record.Entity] struct {
	mu    sync.RWMutex
	rows  map[uuid.UUID]T
	clone func(T) T

	// Unique, when set, reports whether two active rows of the same tenant
	// collide on a unique key.
	Unique func(a, b T) bool
}

func NewTable[T record.Entity](clone func(T) T) *Table[T] {
	return &Table[T]{rows: make(map[uuid.UUID]T), clone: clone}
}

func (t *Table[T]) conflicts(v T) bool {
	if t.Unique == nil {
		return false
	}
	b := v.Base()
	for id, row := range t.rows {
		rb := row.Base()
		if id == b.ID || rb.TenantID != b.TenantID || rb.IsDeleted() {
			continue
		}
		if t.Unique(row, v) {
			return true
		}
	}
	return false
}

// Insert stamps v as created in tenantID and stores a copy.
func (t *Table[T]) Insert(tenantID string, v T) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	v.Base().StampCreated(tenantID, record.Now())
	if _, exists := t.rows[v.Base().ID]; exists {
		return fmt.Errorf("insert %s: %w", v.Base().ID, record.ErrDuplicate)
	}
	if t.conflicts(v) {
		return fmt.Errorf("insert: %w", record.ErrDuplicate)
	}
	t.rows[v.Base().ID] = t.clone(v)
	return nil
}

// InsertRaw stores v exactly as given. Seeding paths use it to write rows
// with fixed identifiers and tenants.
func (t *Table[T]) InsertRaw(v T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.rows[v.Base().ID]; exists {
		return fmt.Errorf("insert %s: %w", v.Base().ID, record.ErrDuplicate)
	}
	t.rows[v.Base().ID] = t.clone(v)
	return nil
}

// Get returns the active row with id in tenantID.
func (t *Table[T]) Get(tenantID string, id uuid.UUID) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var zero T
	row, ok := t.rows[id]
	if !ok || row.Base().TenantID != tenantID || row.Base().IsDeleted() {
		return zero, false
	}
	return t.clone(row), true
}

// GetAny returns the row with id regardless of tenant or lifecycle.
func (t *Table[T]) GetAny(id uuid.UUID) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var zero T
	row, ok := t.rows[id]
	if !ok {
		return zero, false
	}
	return t.clone(row), true
}

// Update replaces an active row of tenantID. Identity, tenant and creation
// time are kept from the stored row. It reports whether a row was updated.
func (t *Table[T]) Update(tenantID string, v T) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := v.Base()
	row, ok := t.rows[b.ID]
	if !ok || row.Base().TenantID != tenantID || row.Base().IsDeleted() {
		return false, nil
	}
	b.TenantID = row.Base().TenantID
	b.CreatedAt = row.Base().CreatedAt
	b.Lifecycle = row.Base().Lifecycle
	b.StampUpdated(record.Now())
	if t.conflicts(v) {
		return false, fmt.Errorf("update %s: %w", b.ID, record.ErrDuplicate)
	}
	t.rows[b.ID] = t.clone(v)
	return true, nil
}

// SoftDelete marks an active row of tenantID as deleted.
func (t *Table[T]) SoftDelete(tenantID string, id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[id]
	if !ok || row.Base().TenantID != tenantID || row.Base().IsDeleted() {
		return false
	}
	row.Base().MarkDeleted(record.Now())
	return true
}

// Restore reactivates a deleted row of tenantID.
func (t *Table[T]) Restore(tenantID string, id uuid.UUID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[id]
	if !ok || row.Base().TenantID != tenantID || !row.Base().IsDeleted() {
		return false, nil
	}
	if t.conflicts(row) {
		return false, fmt.Errorf("restore %s: %w", id, record.ErrDuplicate)
	}
	row.Base().Restore(record.Now())
	return true, nil
}

// Remove hard-deletes a row. Only seeding reconciliation uses it.
func (t *Table[T]) Remove(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	return true
}

// Select returns copies of the rows of tenantID accepted by keep. Deleted rows
// are skipped unless includeDeleted is set. An empty tenantID is never a
// wildcard; use SelectAll for cross-tenant reads.
func (t *Table[T]) Select(tenantID string, includeDeleted bool, keep func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []T
	for _, row := range t.rows {
		b := row.Base()
		if b.TenantID != tenantID {
			continue
		}
		if b.IsDeleted() && !includeDeleted {
			continue
		}
		if keep != nil && !keep(row) {
			continue
		}
		out = append(out, t.clone(row))
	}
	return out
}

// SelectAll returns copies of every row accepted by keep, across tenants and
// lifecycles.
func (t *Table[T]) SelectAll(keep func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []T
	for _, row := range t.rows {
		if keep != nil && !keep(row) {
			continue
		}
		out = append(out, t.clone(row))
	}
	return out
}

// Len returns the number of stored rows, deleted ones included.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// SortPage sorts items with less (ties broken by id for stable paging) and
// applies the skip/take window.
func SortPage[T record.Entity](items []T, less func(a, b T) bool, skip, take int) []T {
	sort.SliceStable(items, func(i, j int) bool {
		if less != nil {
			if less(items[i], items[j]) {
				return true
			}
			if less(items[j], items[i]) {
				return false
			}
		}
		return items[i].Base().ID.String() < items[j].Base().ID.String()
	})
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if take > 0 && take < len(items) {
		items = items[:take]
	}
	return items
}
