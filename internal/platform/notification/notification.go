// Package notification renders appointment SMS messages from templates and
// hands them to an SMSSender. The sender wired in production is a stub that
// only logs; no message leaves the process.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind identifies which appointment event a message is about.
type Kind string

const (
	KindBooking      Kind = "booking"
	KindCancellation Kind = "cancellation"
	KindReschedule   Kind = "reschedule"
)

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template is an SMS body with {{key}} placeholders.
type Template struct {
	ID   string
	Body string
}

// TemplateEngine holds the SMS templates, keyed by ID. The set is fixed at
// construction, so Render is safe for concurrent use.
type TemplateEngine struct {
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with one template per Kind.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:   string(KindBooking),
			Body: "Dear {{name}}, your appointment {{appointmentNumber}} with {{doctorName}} ({{department}}) is confirmed for {{appointmentDate}} at {{appointmentTime}}.",
		},
		{
			ID:   string(KindCancellation),
			Body: "Dear {{name}}, your appointment {{appointmentNumber}} on {{appointmentDate}} at {{appointmentTime}} has been cancelled.",
		},
		{
			ID:   string(KindReschedule),
			Body: "Dear {{name}}, your appointment {{appointmentNumber}} has moved from {{appointmentDate}} {{appointmentTime}} to {{newAppointmentDate}} {{newAppointmentTime}}.",
		},
	}
	for _, t := range builtIn {
		e.register(t)
	}
}

// register adds or replaces a template. Only the constructor calls it.
func (e *TemplateEngine) register(t Template) {
	e.templates[t.ID] = &t
}

// Render replaces {{key}} placeholders with data. Placeholders without a
// value are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (string, error) {
	t, ok := e.templates[templateID]
	if !ok {
		return "", fmt.Errorf("template %q not found", templateID)
	}

	body := t.Body
	for k, v := range data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body, nil
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// LogSender logs the message instead of delivering it. It never fails.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "sms").Logger()}
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().
		Str("message_id", uuid.NewString()).
		Str("to", MaskPhone(to)).
		Int("length", len(body)).
		Msg("sms accepted (not delivered)")
	return nil
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// MaskPhone keeps the last four digits of a phone number for logging.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
