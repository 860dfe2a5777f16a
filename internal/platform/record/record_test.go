package record

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLifecycle_ZeroValueIsActive(t *testing.T) {
	var l Lifecycle
	if l.IsDeleted() {
		t.Error("zero lifecycle should be active")
	}
	if _, ok := l.DeletedTime(); ok {
		t.Error("active lifecycle should not report a deletion time")
	}
	if l.Column() != nil {
		t.Error("active lifecycle should persist NULL")
	}
}

func TestLifecycle_FromColumn(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l := FromColumn(&at)
	got, ok := l.DeletedTime()
	if !ok || !got.Equal(at) {
		t.Errorf("expected deleted at %v, got %v (%v)", at, got, ok)
	}
	if FromColumn(nil).IsDeleted() {
		t.Error("NULL column should be active")
	}
}

func TestRecord_Stamps(t *testing.T) {
	created := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	var r Record
	r.StampCreated("tenant_a", created)
	if r.ID == uuid.Nil {
		t.Fatal("expected id to be assigned")
	}
	if r.TenantID != "tenant_a" || !r.CreatedAt.Equal(created) || !r.UpdatedAt.Equal(created) {
		t.Errorf("unexpected stamps: %+v", r)
	}

	deleted := created.Add(time.Hour)
	r.MarkDeleted(deleted)
	if !r.IsDeleted() || !r.UpdatedAt.Equal(deleted) {
		t.Errorf("expected deleted record with bumped updated_at, got %+v", r)
	}

	restored := deleted.Add(time.Hour)
	r.Restore(restored)
	if r.IsDeleted() || !r.UpdatedAt.Equal(restored) {
		t.Errorf("expected restored record with bumped updated_at, got %+v", r)
	}
	if !r.CreatedAt.Equal(created) {
		t.Error("created_at must not change")
	}
}

func TestRecord_StampCreatedKeepsExistingID(t *testing.T) {
	id := uuid.New()
	r := Record{ID: id}
	r.StampCreated("t", time.Now())
	if r.ID != id {
		t.Errorf("expected id %s to be kept, got %s", id, r.ID)
	}
}

func TestLifecycle_JSON(t *testing.T) {
	at := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	data, err := json.Marshal(DeletedAt(at))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"state":"deleted"`) {
		t.Errorf("unexpected json: %s", data)
	}

	var l Lifecycle
	if err := json.Unmarshal(data, &l); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got, ok := l.DeletedTime(); !ok || !got.Equal(at) {
		t.Errorf("expected round trip of deletion time, got %v", got)
	}

	if err := json.Unmarshal([]byte(`{"state":"deleted"}`), &l); err == nil {
		t.Error("expected error for deleted state without timestamp")
	}
	if err := json.Unmarshal([]byte(`{"state":"archived"}`), &l); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestQuery_Window(t *testing.T) {
	skip, take := Query{Skip: -5, Take: 10}.Window()
	if skip != 0 || take != 10 {
		t.Errorf("expected (0, 10), got (%d, %d)", skip, take)
	}
}
