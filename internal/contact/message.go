package contact

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrEmptyMessage = errors.New("please provide a name or a project description")
	ErrFieldTooLong = errors.New("field is too long")
)

// Message is a contact form entry. JSON names follow the portfolio frontend.
type Message struct {
	ID          int64     `json:"id,omitempty"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Email       string    `json:"email"`
	Company     string    `json:"company"`
	ProjectType string    `json:"projectType"`
	Description string    `json:"description"`
	Timeline    string    `json:"timeline"`
	CreatedAt   time.Time `json:"-"`
	Notified    bool      `json:"-"`
	Attempts    int       `json:"-"`
}

var fieldLimits = []struct {
	name  string
	limit int
	get   func(*Message) *string
}{
	{"firstName", 100, func(m *Message) *string { return &m.FirstName }},
	{"lastName", 100, func(m *Message) *string { return &m.LastName }},
	{"email", 320, func(m *Message) *string { return &m.Email }},
	{"company", 200, func(m *Message) *string { return &m.Company }},
	{"projectType", 100, func(m *Message) *string { return &m.ProjectType }},
	{"description", 5000, func(m *Message) *string { return &m.Description }},
	{"timeline", 100, func(m *Message) *string { return &m.Timeline }},
}

// Normalize trims every field and checks the limits.
func (m *Message) Normalize() error {
	for _, f := range fieldLimits {
		v := f.get(m)
		*v = strings.TrimSpace(*v)
		if utf8.RuneCountInString(*v) > f.limit {
			return fmt.Errorf("%s: %w (max %d characters)", f.name, ErrFieldTooLong, f.limit)
		}
	}
	if m.FirstName == "" && m.Description == "" {
		return ErrEmptyMessage
	}
	return nil
}

// CanConfirm reports whether the sender left an address a confirmation can
// be mailed to.
func (m Message) CanConfirm() bool {
	return strings.Contains(m.Email, "@")
}

func (m Message) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

func (m Message) fingerprint() string {
	return strings.Join([]string{
		strings.ToLower(m.Email), m.FirstName, m.LastName, m.Company,
		m.ProjectType, m.Description, m.Timeline,
	}, "\x1f")
}
