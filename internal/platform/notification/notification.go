// Package notification delivers account messages (password setup links) over
// a webhook or, when none is configured, to the log.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Template ids.
const (
	TemplatePasswordSetup = "password-setup"
	TemplatePasswordReset = "password-reset"
)

// Notification is one outbound message.
type Notification struct {
	ID         string            `json:"id"`
	TemplateID string            `json:"template_id"`
	TenantID   string            `json:"tenant_id"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Sender delivers a rendered notification.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// Template is a message with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine renders registered templates.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine returns an engine with the account templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.Register(Template{
		ID:      TemplatePasswordSetup,
		Subject: "Set up your clinic account password",
		Body:    "Hello {{name}}, an account was created for you. Choose your password here: {{setup_link}} (valid until {{expires_at}}).",
	})
	e.Register(Template{
		ID:      TemplatePasswordReset,
		Subject: "Your clinic account password was reset",
		Body:    "Hello {{name}}, an administrator reset your password. Choose a new one here: {{setup_link}} (valid until {{expires_at}}).",
	})
	return e
}

func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render substitutes data into the template. Unknown placeholders are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Notifier renders templates and hands them to a Sender.
type Notifier struct {
	sender    Sender
	templates *TemplateEngine
}

func NewNotifier(sender Sender, templates *TemplateEngine) *Notifier {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &Notifier{sender: sender, templates: templates}
}

// Notify renders templateID with data and sends it to recipient.
func (n *Notifier) Notify(ctx context.Context, tenantID, templateID, recipient string, data map[string]string) (*Notification, error) {
	subject, body, err := n.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	msg := &Notification{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		TenantID:   tenantID,
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		Data:       data,
		CreatedAt:  time.Now().UTC(),
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return msg, fmt.Errorf("send %s to %s: %w", templateID, recipient, err)
	}
	return msg, nil
}

// WebhookSender posts notifications as JSON to an external delivery service.
type WebhookSender struct {
	client *resty.Client
	url    string
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &WebhookSender{client: client, url: url}
}

var ErrWebhookRejected = errors.New("webhook rejected notification")

func (s *WebhookSender) Send(ctx context.Context, n *Notification) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("X-Notification-Id", n.ID).
		SetBody(n).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: status %d", ErrWebhookRejected, resp.StatusCode())
	}
	return nil
}

// LogSender writes notifications to the log. Used when no webhook is set.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification").Logger()}
}

func (s *LogSender) Send(_ context.Context, n *Notification) error {
	s.logger.Info().
		Str("notification_id", n.ID).
		Str("template", n.TemplateID).
		Str("tenant_id", n.TenantID).
		Str("recipient", n.Recipient).
		Str("subject", n.Subject).
		Msg(n.Body)
	return nil
}

// RecordingSender keeps every notification in memory.
type RecordingSender struct {
	mu   sync.Mutex
	sent []Notification
	Fail error
}

func (r *RecordingSender) Send(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, *n)
	return r.Fail
}

// Sent returns a copy of the recorded notifications.
func (r *RecordingSender) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Last returns the most recent notification.
func (r *RecordingSender) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Notification{}, false
	}
	return r.sent[len(r.sent)-1], true
}
