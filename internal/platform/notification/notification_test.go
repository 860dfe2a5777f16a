package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.Register(Template{
		ID:      "test-tpl",
		Subject: "Hello {{name}}",
		Body:    "Dear {{name}}, your code is {{code}}.",
	})

	subject, body, err := eng.Render("test-tpl", map[string]string{"name": "Alice", "code": "1234"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Alice" {
		t.Errorf("subject = %q, want %q", subject, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q", body)
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	if _, _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template")
	}
}

func TestTemplateEngine_BuiltInTemplates(t *testing.T) {
	eng := NewTemplateEngine()
	for _, id := range []string{TemplatePasswordSetup, TemplatePasswordReset} {
		_, body, err := eng.Render(id, map[string]string{"setup_link": "https://x/setup?token=abc"})
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if !strings.Contains(body, "https://x/setup?token=abc") {
			t.Errorf("%s body missing link: %q", id, body)
		}
	}
}

func TestNotifier_Notify(t *testing.T) {
	rec := &RecordingSender{}
	n := NewNotifier(rec, nil)

	msg, err := n.Notify(context.Background(), "north", TemplatePasswordSetup, "ana@north.test",
		map[string]string{"name": "Ana", "setup_link": "L", "expires_at": "tomorrow"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID == "" || msg.TenantID != "north" {
		t.Errorf("unexpected message: %+v", msg)
	}
	last, ok := rec.Last()
	if !ok || last.Recipient != "ana@north.test" {
		t.Fatalf("expected recorded message, got %+v", last)
	}
	if !strings.Contains(last.Body, "Hello Ana") {
		t.Errorf("body = %q", last.Body)
	}
}

func TestNotifier_SendFailure(t *testing.T) {
	boom := errors.New("down")
	n := NewNotifier(&RecordingSender{Fail: boom}, nil)
	_, err := n.Notify(context.Background(), "t", TemplatePasswordReset, "x@y.z", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

func TestWebhookSender_Posts(t *testing.T) {
	var got Notification
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Notification-Id")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, time.Second)
	err := s.Send(context.Background(), &Notification{ID: "n-1", Recipient: "a@b.c", Body: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header != "n-1" {
		t.Errorf("X-Notification-Id = %q", header)
	}
	if got.Recipient != "a@b.c" || got.Body != "hi" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestWebhookSender_Rejected(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, time.Second)
	err := s.Send(context.Background(), &Notification{ID: "n-2"})
	if !errors.Is(err, ErrWebhookRejected) {
		t.Fatalf("expected ErrWebhookRejected, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("client errors are not retried, got %d calls", calls)
	}
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(zerolog.New(&buf))
	if err := s.Send(context.Background(), &Notification{ID: "n-3", Recipient: "r@x.y", Body: "link"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`"recipient":"r@x.y"`, `"message":"link"`, `"component":"notification"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}
