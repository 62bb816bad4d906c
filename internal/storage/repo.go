package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("not found")

var contactColumns = []string{
	"id", "first_name", "last_name", "enc_email", "company",
	"project_type", "enc_description", "timeline", "created_at", "notified_at",
	"notify_attempts", "last_attempt_at",
}

func (s *Store) InsertContactMessage(ctx context.Context, m ContactMessage) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	q := s.sql.Insert("contact_messages").
		Columns("first_name", "last_name", "enc_email", "company", "project_type", "enc_description", "timeline", "created_at").
		Values(m.FirstName, m.LastName, m.EncEmail, m.Company, m.ProjectType, m.EncDescription, m.Timeline, m.CreatedAt).
		Suffix("RETURNING id")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert contact message query: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert contact message: %w", err)
	}
	return id, nil
}

func (s *Store) GetContactMessage(ctx context.Context, id int64) (ContactMessage, error) {
	q := s.sql.Select(contactColumns...).
		From("contact_messages").
		Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return ContactMessage{}, fmt.Errorf("build get contact message query: %w", err)
	}

	var (
		m             ContactMessage
		notifiedAt    sql.NullTime
		lastAttemptAt sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&m.ID, &m.FirstName, &m.LastName, &m.EncEmail, &m.Company,
		&m.ProjectType, &m.EncDescription, &m.Timeline, &m.CreatedAt, &notifiedAt,
		&m.NotifyAttempts, &lastAttemptAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ContactMessage{}, ErrNotFound
		}
		return ContactMessage{}, fmt.Errorf("get contact message: %w", err)
	}
	if notifiedAt.Valid {
		t := notifiedAt.Time
		m.NotifiedAt = &t
	}
	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		m.LastAttemptAt = &t
	}
	return m, nil
}

func (s *Store) MarkContactNotified(ctx context.Context, id int64, at time.Time) error {
	return s.updateContact(ctx, id, "mark contact notified", map[string]any{
		"notified_at": at.UTC(),
	})
}

// RecordContactAttempt counts one notification attempt for the message.
func (s *Store) RecordContactAttempt(ctx context.Context, id int64, at time.Time) error {
	return s.updateContact(ctx, id, "record contact attempt", map[string]any{
		"notify_attempts": sq.Expr("notify_attempts + 1"),
		"last_attempt_at": at.UTC(),
	})
}

// UpdateContactSealed replaces the sealed fields, used after a key rotation.
func (s *Store) UpdateContactSealed(ctx context.Context, id int64, encEmail, encDescription string) error {
	return s.updateContact(ctx, id, "update sealed contact fields", map[string]any{
		"enc_email":       encEmail,
		"enc_description": encDescription,
	})
}

func (s *Store) updateContact(ctx context.Context, id int64, op string, set map[string]any) error {
	sqlStr, args, err := s.sql.Update("contact_messages").
		SetMap(set).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingContactIDs returns messages stored before cutoff that were never
// notified, oldest first. Messages attempted after cutoff are still in flight
// and messages with maxAttempts attempts are given up on; both are skipped.
func (s *Store) ListPendingContactIDs(ctx context.Context, cutoff time.Time, maxAttempts int, limit uint64) ([]int64, error) {
	q := s.sql.Select("id").
		From("contact_messages").
		Where(sq.Eq{"notified_at": nil}).
		Where(sq.Lt{"created_at": cutoff.UTC()}).
		Where(sq.Lt{"notify_attempts": maxAttempts}).
		Where(sq.Or{sq.Eq{"last_attempt_at": nil}, sq.Lt{"last_attempt_at": cutoff.UTC()}}).
		OrderBy("created_at ASC").
		Limit(limit)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list pending query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending contact messages: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
