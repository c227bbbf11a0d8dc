package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type Collection string

const (
	CollectionEmails         Collection = "emails"
	CollectionBatchSummary   Collection = "batch_summary"
	CollectionAnalyzedEmails Collection = "analyzed_emails"
	CollectionCalendarEvents Collection = "calendar_events"
)

var ErrUnknownCollection = errors.New("unknown collection")

// Collections lists every collection in the database.
func Collections() []Collection {
	return []Collection{
		CollectionEmails,
		CollectionBatchSummary,
		CollectionAnalyzedEmails,
		CollectionCalendarEvents,
	}
}

func ParseCollection(name string) (Collection, error) {
	c := Collection(name)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return c, nil
}

func (c Collection) Valid() bool {
	switch c {
	case CollectionEmails, CollectionBatchSummary, CollectionAnalyzedEmails, CollectionCalendarEvents:
		return true
	}
	return false
}

// Row is one stored value. Data holds the JSON document written by the caller.
type Row struct {
	Key       string
	Data      json.RawMessage
	Timestamp int64
	CachedAt  string
}

func (c *Client) table(coll Collection) (string, error) {
	if !coll.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, string(coll))
	}
	return string(coll), nil
}

const upsertSQL = `
	INSERT INTO %s (id, data, timestamp, cached_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		data = excluded.data,
		timestamp = excluded.timestamp,
		cached_at = excluded.cached_at
`

// Upsert writes row, replacing any existing row with the same key.
func (c *Client) Upsert(ctx context.Context, coll Collection, row Row) error {
	table, err := c.table(coll)
	if err != nil {
		return err
	}
	if row.Key == "" {
		return fmt.Errorf("failed to upsert into %s: empty key", table)
	}

	_, err = c.db.ExecContext(ctx, fmt.Sprintf(upsertSQL, table), row.Key, string(row.Data), row.Timestamp, row.CachedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return nil
}

// UpsertMany writes rows in one transaction.
func (c *Client) UpsertMany(ctx context.Context, coll Collection, rows []Row) error {
	table, err := c.table(coll)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(upsertSQL, table))
	if err != nil {
		return fmt.Errorf("failed to prepare upsert into %s: %w", table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if row.Key == "" {
			return fmt.Errorf("failed to upsert into %s: empty key", table)
		}
		if _, err := stmt.ExecContext(ctx, row.Key, string(row.Data), row.Timestamp, row.CachedAt); err != nil {
			return fmt.Errorf("failed to upsert %s into %s: %w", row.Key, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert into %s: %w", table, err)
	}
	return nil
}

// GetAll returns every row in insertion order. Callers apply their own ordering.
func (c *Client) GetAll(ctx context.Context, coll Collection) ([]Row, error) {
	table, err := c.table(coll)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT id, data, timestamp, cached_at FROM %s ORDER BY rowid", table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var (
			r    Row
			data string
		)
		if err := rows.Scan(&r.Key, &data, &r.Timestamp, &r.CachedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		r.Data = json.RawMessage(data)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", table, err)
	}
	return result, nil
}

// GetOne returns the row for key. A missing key yields found=false and no error.
func (c *Client) GetOne(ctx context.Context, coll Collection, key string) (Row, bool, error) {
	table, err := c.table(coll)
	if err != nil {
		return Row{}, false, err
	}

	var (
		r    Row
		data string
	)
	err = c.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id, data, timestamp, cached_at FROM %s WHERE id = ?", table), key,
	).Scan(&r.Key, &data, &r.Timestamp, &r.CachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("failed to get %s from %s: %w", key, table, err)
	}
	r.Data = json.RawMessage(data)
	return r, true, nil
}

// Clear removes every row of one collection.
func (c *Client) Clear(ctx context.Context, coll Collection) error {
	table, err := c.table(coll)
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

func (c *Client) Count(ctx context.Context, coll Collection) (int, error) {
	table, err := c.table(coll)
	if err != nil {
		return 0, err
	}
	var n int
	if err := c.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
