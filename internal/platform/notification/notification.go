// Package notification renders and dispatches citizen-facing messages:
// booking confirmations, cancellation codes, and status updates. Delivery
// transports (SMTP relay, WhatsApp Business API) are external collaborators
// behind the sender interfaces; development mode wires no-op senders.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery channel for a notification.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Built-in template IDs.
const (
	TemplateBookingConfirmed = "booking-confirmed"
	TemplateCancelCode       = "cancellation-code"
	TemplateCancelled        = "appointment-cancelled"
	TemplateRescheduled      = "appointment-rescheduled"
	TemplateDocumentReady    = "document-ready"
)

// Notification is a single outbound message.
type Notification struct {
	ID           string            `json:"id"`
	Channel      Channel           `json:"channel"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	Attempts     int               `json:"attempts"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// EmailSender delivers email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// WhatsAppSender delivers WhatsApp messages.
type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, to, body string) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateBookingConfirmed,
			Name:    "Booking Confirmed",
			Subject: "Appointment booked for {{date}}",
			Body:    "Your national ID appointment is booked at {{location}} on {{date}} at {{time}}. Bring your reference number {{reference}}.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplateCancelCode,
			Name:    "Cancellation Code",
			Subject: "Your cancellation confirmation code",
			Body:    "Use code {{code}} to confirm the cancellation of your appointment on {{date}}. The code expires in {{ttl_minutes}} minutes.",
			Channel: ChannelWhatsApp,
		},
		{
			ID:      TemplateCancelled,
			Name:    "Appointment Cancelled",
			Subject: "Appointment cancelled",
			Body:    "Your appointment at {{location}} on {{date}} at {{time}} has been cancelled.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplateRescheduled,
			Name:    "Appointment Rescheduled",
			Subject: "Appointment rescheduled to {{date}}",
			Body:    "Your appointment has been moved to {{location}} on {{date}} at {{time}}.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplateDocumentReady,
			Name:    "Document Ready",
			Subject: "Your national ID card is ready",
			Body:    "Your national ID card is ready for collection at {{location}}. Present your receipt at the counter.",
			Channel: ChannelWhatsApp,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

func (e *TemplateEngine) channelOf(templateID string) Channel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.templates[templateID]; ok {
		return t.Channel
	}
	return ChannelEmail
}

// Dispatcher orchestrates rendering, sending with retry, and in-memory
// retention of outcomes.
type Dispatcher struct {
	email      EmailSender
	whatsapp   WhatsAppSender
	templates  *TemplateEngine
	maxRetries int

	mu   sync.RWMutex
	sent map[string]*Notification
}

// NewDispatcher constructs a Dispatcher. maxRetries counts retries after the
// first attempt.
func NewDispatcher(email EmailSender, whatsapp WhatsAppSender, tpl *TemplateEngine, maxRetries int) *Dispatcher {
	return &Dispatcher{
		email:      email,
		whatsapp:   whatsapp,
		templates:  tpl,
		maxRetries: maxRetries,
		sent:       make(map[string]*Notification),
	}
}

// Send dispatches a notification through its channel, retrying transient
// failures. The outcome is retained for inspection via Get.
func (d *Dispatcher) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	var sendErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		n.Attempts = attempt + 1
		sendErr = d.deliver(ctx, n)
		if sendErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	d.mu.Lock()
	d.sent[n.ID] = n
	d.mu.Unlock()

	return sendErr
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification) error {
	switch n.Channel {
	case ChannelEmail:
		return d.email.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case ChannelWhatsApp:
		return d.whatsapp.SendWhatsApp(ctx, n.Recipient, n.Body)
	default:
		return fmt.Errorf("unsupported channel: %s", n.Channel)
	}
}

// SendFromTemplate renders a template and sends the resulting notification.
func (d *Dispatcher) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := d.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Channel:      d.templates.channelOf(templateID),
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}

	if err := d.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Get returns a previously dispatched notification by ID.
func (d *Dispatcher) Get(id string) (*Notification, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.sent[id]
	return n, ok
}

// NoopEmailSender discards email. Development mode.
type NoopEmailSender struct{}

func (NoopEmailSender) SendEmail(context.Context, string, string, string) error { return nil }

// NoopWhatsAppSender discards WhatsApp messages. Development mode.
type NoopWhatsAppSender struct{}

func (NoopWhatsAppSender) SendWhatsApp(context.Context, string, string) error { return nil }

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// WhatsAppCall records a single call to SendWhatsApp.
type WhatsAppCall struct {
	To   string
	Body string
}

// MockWhatsAppSender is a test double for WhatsAppSender.
type MockWhatsAppSender struct {
	mu         sync.Mutex
	calls      []WhatsAppCall
	ShouldFail bool
	FailError  string
}

// SendWhatsApp records the call and optionally returns an error.
func (m *MockWhatsAppSender) SendWhatsApp(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, WhatsAppCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded WhatsApp calls.
func (m *MockWhatsAppSender) Calls() []WhatsAppCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WhatsAppCall, len(m.calls))
	copy(out, m.calls)
	return out
}
