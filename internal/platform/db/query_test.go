package db

import (
	"reflect"
	"testing"
)

func TestSearchQuery_TenantAndDeleted(t *testing.T) {
	q := NewSearchQuery("patients", "id", "north", false)
	want := "SELECT COUNT(*) FROM patients WHERE tenant_id = $1 AND deleted_at IS NULL"
	if got := q.CountSQL(); got != want {
		t.Errorf("CountSQL = %q, want %q", got, want)
	}

	all := NewSearchQuery("patients", "id", "north", true)
	if got := all.CountSQL(); got != "SELECT COUNT(*) FROM patients WHERE tenant_id = $1" {
		t.Errorf("CountSQL with deleted = %q", got)
	}
}

func TestSearchQuery_TermAndPaging(t *testing.T) {
	q := NewSearchQuery("patients", "id, first_name", "north", false)
	q.AddTerm(" 50%_off ", "first_name", "last_name")
	q.AddEq("gender", "female")
	q.OrderBy("last_name")

	wantData := "SELECT id, first_name FROM patients WHERE tenant_id = $1 AND deleted_at IS NULL" +
		" AND (first_name ILIKE $2 OR last_name ILIKE $2) AND gender = $3 ORDER BY last_name LIMIT $4 OFFSET $5"
	if got := q.DataSQL(40, 20); got != wantData {
		t.Errorf("DataSQL =\n%q\nwant\n%q", got, wantData)
	}
	wantArgs := []interface{}{"north", `%50\%\_off%`, "female", 20, 40}
	if got := q.DataArgs(40, 20); !reflect.DeepEqual(got, wantArgs) {
		t.Errorf("DataArgs = %#v, want %#v", got, wantArgs)
	}
	if got := q.CountArgs(); len(got) != 3 {
		t.Errorf("count args should not carry paging, got %#v", got)
	}
}

func TestSearchQuery_NoLimit(t *testing.T) {
	q := NewSearchQuery("roles", "id", "t", false)
	if got := q.DataSQL(0, 0); got != "SELECT id FROM roles WHERE tenant_id = $1 AND deleted_at IS NULL OFFSET $2" {
		t.Errorf("DataSQL = %q", got)
	}
	if got := q.DataArgs(0, 0); !reflect.DeepEqual(got, []interface{}{"t", 0}) {
		t.Errorf("DataArgs = %#v", got)
	}
}

func TestSearchQuery_BlankTermIgnored(t *testing.T) {
	q := NewSearchQuery("users", "id", "t", false)
	q.AddTerm("   ", "email")
	if q.Idx() != 2 {
		t.Errorf("blank term must not consume a parameter, idx = %d", q.Idx())
	}
}

func TestSearchQuery_RangeAndSort(t *testing.T) {
	q := NewSearchQuery("appointments", "id", "t", false)
	q.AddRange("start_at", "a", nil)
	q.AddRange("end_at", nil, "b")
	q.ApplySort("start", true, "start_at ASC", map[string]string{"start": "start_at"})
	want := "SELECT id FROM appointments WHERE tenant_id = $1 AND deleted_at IS NULL AND start_at >= $2 AND end_at < $3 ORDER BY start_at DESC, id ASC OFFSET $4"
	if got := q.DataSQL(0, 0); got != want {
		t.Errorf("DataSQL =\n%q\nwant\n%q", got, want)
	}

	q.ApplySort("password_hash", false, "start_at ASC", map[string]string{"start": "start_at"})
	if q.orderBy != "start_at ASC" {
		t.Errorf("unknown sort key must fall back, got %q", q.orderBy)
	}
}

func TestSharedSearchQuery(t *testing.T) {
	q := NewSharedSearchQuery("roles", "id", "north", "is_global", false)
	q.AddTerm("doc", "name")
	want := "SELECT COUNT(*) FROM roles WHERE (tenant_id = $1 OR is_global) AND deleted_at IS NULL AND (name ILIKE $2)"
	if got := q.CountSQL(); got != want {
		t.Errorf("CountSQL = %q, want %q", got, want)
	}
}
