// Package notify tells the portfolio owner about new contact messages and
// confirms receipt to the sender.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"mindweave/internal/contact"
)

type Notifier interface {
	Notify(ctx context.Context, m contact.Message) error
}

// Multi calls every notifier and joins their errors.
type Multi []Notifier

func (mn Multi) Notify(ctx context.Context, m contact.Message) error {
	var errs []error
	for _, n := range mn {
		if err := n.Notify(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log records that a message arrived. With no other channel configured it is
// what lets the inbox drain.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Notify(_ context.Context, m contact.Message) error {
	l.Logger.Info().
		Int64("message_id", m.ID).
		Str("name", m.FullName()).
		Msg("contact message received")
	return nil
}
