package storage

import "time"

// ContactMessage is a stored contact form entry. EncEmail and EncDescription
// hold sealed envelopes, never plaintext.
type ContactMessage struct {
	ID             int64
	FirstName      string
	LastName       string
	EncEmail       string
	Company        string
	ProjectType    string
	EncDescription string
	Timeline       string
	CreatedAt      time.Time
	NotifiedAt     *time.Time
	NotifyAttempts int
	LastAttemptAt  *time.Time
}
