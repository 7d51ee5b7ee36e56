// Package contact accepts messages from the storefront contact form.
package contact

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Field limits, in runes.
const (
	MaxNameLength    = 100
	MinMessageLength = 10
	MaxMessageLength = 5000
)

// Message is a submitted contact form.
type Message struct {
	ID        string
	Name      string
	Email     string
	Body      string
	CreatedAt time.Time
}

// FieldError reports an invalid form field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Repository persists contact messages.
type Repository interface {
	Create(ctx context.Context, m *Message) error
}

// Service validates and stores contact messages.
type Service struct {
	messages Repository
	now      func() time.Time
}

// NewService creates a contact Service.
func NewService(messages Repository) *Service {
	return &Service{messages: messages, now: time.Now}
}

// Submit validates the form and persists it.
func (s *Service) Submit(ctx context.Context, name, email, body string) (*Message, error) {
	m := &Message{
		Name:  strings.TrimSpace(name),
		Email: strings.TrimSpace(email),
		Body:  strings.TrimSpace(body),
	}
	if err := validate(m); err != nil {
		return nil, err
	}

	m.ID = uuid.NewString()
	m.CreatedAt = s.now().UTC()
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, errors.Wrap(err, "create contact message")
	}
	return m, nil
}

func validate(m *Message) error {
	switch n := utf8.RuneCountInString(m.Name); {
	case n == 0:
		return &FieldError{Field: "name", Reason: "is required"}
	case n > MaxNameLength:
		return &FieldError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", MaxNameLength)}
	}

	if m.Email == "" {
		return &FieldError{Field: "email", Reason: "is required"}
	}
	if addr, err := mail.ParseAddress(m.Email); err != nil || addr.Address != m.Email {
		return &FieldError{Field: "email", Reason: "is invalid"}
	}

	switch n := utf8.RuneCountInString(m.Body); {
	case n < MinMessageLength:
		return &FieldError{Field: "message", Reason: fmt.Sprintf("must be at least %d characters", MinMessageLength)}
	case n > MaxMessageLength:
		return &FieldError{Field: "message", Reason: fmt.Sprintf("must be at most %d characters", MaxMessageLength)}
	}
	return nil
}
