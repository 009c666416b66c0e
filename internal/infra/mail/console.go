package mail

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Printer is the logging surface the console sender writes to.
type Printer interface {
	Info(msg string, args ...interface{})
}

// ConsoleSender logs messages instead of delivering them and keeps them for inspection.
// It is used when no SendGrid key is configured, and in tests.
type ConsoleSender struct {
	out Printer

	mu   sync.Mutex
	sent []Message
}

var _ Sender = (*ConsoleSender)(nil)

// NewConsoleSender logs to out; a nil out only records.
func NewConsoleSender(out Printer) *ConsoleSender {
	return &ConsoleSender{out: out}
}

func (s *ConsoleSender) Send(_ context.Context, m Message) error {
	if !m.HasContent() {
		return fmt.Errorf("message %q has no content", m.Subject)
	}
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
	if s.out != nil {
		s.out.Info("email", "to", m.To.String(), "subject", m.Subject, "body", strings.TrimSpace(m.TextContent))
	}
	return nil
}

// Sent returns the messages sent so far.
func (s *ConsoleSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
