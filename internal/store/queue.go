package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PendingItem is one undelivered payload. An item exists iff it has
// never been successfully delivered; Remove is the only exit.
type PendingItem struct {
	ID         int64
	Payload    []byte
	RetryCount int
	LastError  string
	EnqueuedAt time.Time
}

// Enqueue stores an undelivered payload and returns its id. IDs are
// monotonic in enqueue order.
func (s *Store) Enqueue(ctx context.Context, payload []byte, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_queue (payload, enqueued_at) VALUES (?, ?)`,
		payload, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("enqueue payload: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue payload: %w", err)
	}
	return id, nil
}

// OldestPending returns up to limit items in enqueue order.
func (s *Store) OldestPending(ctx context.Context, limit int) ([]PendingItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, retry_count, last_error, enqueued_at
		 FROM sync_queue ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var items []PendingItem
	for rows.Next() {
		var (
			it       PendingItem
			lastErr  sql.NullString
			enqueued int64
		)
		if err := rows.Scan(&it.ID, &it.Payload, &it.RetryCount, &lastErr, &enqueued); err != nil {
			return nil, fmt.Errorf("scan pending item: %w", err)
		}
		it.LastError = lastErr.String
		it.EnqueuedAt = time.Unix(enqueued, 0).UTC()
		items = append(items, it)
	}
	return items, rows.Err()
}

// Remove deletes a delivered item. Called only after confirmed
// delivery.
func (s *Store) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove item %d: %w", id, err)
	}
	return nil
}

// RecordFailure increments the retry counter and records the failure
// reason in a single statement, leaving the payload untouched.
func (s *Store) RecordFailure(ctx context.Context, id int64, reason string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sync_queue SET retry_count = retry_count + 1, last_error = ? WHERE id = ?`,
		reason, id); err != nil {
		return fmt.Errorf("record failure for item %d: %w", id, err)
	}
	return nil
}

// PendingCount returns the number of undelivered items.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}
