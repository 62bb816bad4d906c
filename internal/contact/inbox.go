package contact

import (
	"context"
	"fmt"
	"time"

	"mindweave/internal/crypto"
	"mindweave/internal/storage"
)

const (
	fieldEmail       = "contact.email"
	fieldDescription = "contact.description"
)

type Store interface {
	InsertContactMessage(ctx context.Context, m storage.ContactMessage) (int64, error)
	GetContactMessage(ctx context.Context, id int64) (storage.ContactMessage, error)
	MarkContactNotified(ctx context.Context, id int64, at time.Time) error
	RecordContactAttempt(ctx context.Context, id int64, at time.Time) error
	UpdateContactSealed(ctx context.Context, id int64, encEmail, encDescription string) error
	ListPendingContactIDs(ctx context.Context, cutoff time.Time, maxAttempts int, limit uint64) ([]int64, error)
}

// Inbox stores contact messages with the email address and description
// sealed.
type Inbox struct {
	store  Store
	sealer *crypto.Sealer
}

func NewInbox(store Store, sealer *crypto.Sealer) *Inbox {
	return &Inbox{store: store, sealer: sealer}
}

func (i *Inbox) Save(ctx context.Context, m Message) (int64, error) {
	encEmail, err := i.sealer.Seal(fieldEmail, m.Email)
	if err != nil {
		return 0, fmt.Errorf("seal email: %w", err)
	}
	encDescription, err := i.sealer.Seal(fieldDescription, m.Description)
	if err != nil {
		return 0, fmt.Errorf("seal description: %w", err)
	}
	return i.store.InsertContactMessage(ctx, storage.ContactMessage{
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		EncEmail:       encEmail,
		Company:        m.Company,
		ProjectType:    m.ProjectType,
		EncDescription: encDescription,
		Timeline:       m.Timeline,
		CreatedAt:      m.CreatedAt,
	})
}

func (i *Inbox) Load(ctx context.Context, id int64) (Message, error) {
	row, err := i.store.GetContactMessage(ctx, id)
	if err != nil {
		return Message{}, err
	}
	email, err := i.sealer.Open(fieldEmail, row.EncEmail)
	if err != nil {
		return Message{}, fmt.Errorf("open email of message %d: %w", id, err)
	}
	description, err := i.sealer.Open(fieldDescription, row.EncDescription)
	if err != nil {
		return Message{}, fmt.Errorf("open description of message %d: %w", id, err)
	}
	if i.sealer.Stale(row.EncEmail) || i.sealer.Stale(row.EncDescription) {
		if err := i.reseal(ctx, row); err != nil {
			return Message{}, err
		}
	}
	return Message{
		ID:          row.ID,
		FirstName:   row.FirstName,
		LastName:    row.LastName,
		Email:       email,
		Company:     row.Company,
		ProjectType: row.ProjectType,
		Description: description,
		Timeline:    row.Timeline,
		CreatedAt:   row.CreatedAt,
		Notified:    row.NotifiedAt != nil,
		Attempts:    row.NotifyAttempts,
	}, nil
}

// reseal rewrites both sealed fields under the current key, so rows sealed
// before a rotation move off the retired key as they are read.
func (i *Inbox) reseal(ctx context.Context, row storage.ContactMessage) error {
	encEmail, err := i.sealer.Reseal(fieldEmail, row.EncEmail)
	if err != nil {
		return fmt.Errorf("reseal email of message %d: %w", row.ID, err)
	}
	encDescription, err := i.sealer.Reseal(fieldDescription, row.EncDescription)
	if err != nil {
		return fmt.Errorf("reseal description of message %d: %w", row.ID, err)
	}
	if err := i.store.UpdateContactSealed(ctx, row.ID, encEmail, encDescription); err != nil {
		return fmt.Errorf("reseal message %d: %w", row.ID, err)
	}
	return nil
}

func (i *Inbox) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	return i.store.MarkContactNotified(ctx, id, at)
}

// RecordAttempt counts a notification attempt before it is made.
func (i *Inbox) RecordAttempt(ctx context.Context, id int64) error {
	return i.store.RecordContactAttempt(ctx, id, time.Now())
}

// PendingIDs lists messages older than minAge that were never notified, have
// fewer than maxAttempts attempts and were not attempted within minAge.
func (i *Inbox) PendingIDs(ctx context.Context, minAge time.Duration, maxAttempts int, limit uint64) ([]int64, error) {
	return i.store.ListPendingContactIDs(ctx, time.Now().Add(-minAge), maxAttempts, limit)
}
