package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/internal/storage/sqlite"
)

type EmailCache struct {
	c collection[models.Email]
}

func NewEmailCache(store Store, opts ...Option) *EmailCache {
	return &EmailCache{c: collection[models.Email]{store: store, name: sqlite.CollectionEmails, settings: newSettings(opts)}}
}

// SaveEmails upserts every email by ID, stamping each with the write time.
func (e *EmailCache) SaveEmails(ctx context.Context, emails []models.Email) error {
	if len(emails) == 0 {
		return nil
	}
	st := e.c.stamp()
	keys := make([]string, len(emails))
	stamped := make([]models.Email, len(emails))
	for i, m := range emails {
		if m.ID == "" {
			return fmt.Errorf("failed to cache email %d: missing id", i)
		}
		m.Timestamp, m.CachedAt = st.Timestamp, st.CachedAt
		keys[i], stamped[i] = m.ID, m
	}
	if err := e.c.putMany(ctx, keys, stamped, st); err != nil {
		return fmt.Errorf("failed to cache emails: %w", err)
	}
	e.c.log.Info("Cached emails", zap.Int("count", len(emails)))
	return nil
}

func (e *EmailCache) GetEmails(ctx context.Context) []models.Email {
	return e.c.list(ctx)
}

func (e *EmailCache) GetEmail(ctx context.Context, id string) (models.Email, bool) {
	return e.c.one(ctx, id)
}

func (e *EmailCache) ClearEmails(ctx context.Context) error {
	return e.c.clear(ctx)
}

func (e *EmailCache) HasCache(ctx context.Context) bool {
	return len(e.GetEmails(ctx)) > 0
}

type AnalyzedEmailsCache struct {
	c collection[models.AnalyzedEmail]
}

func NewAnalyzedEmailsCache(store Store, opts ...Option) *AnalyzedEmailsCache {
	return &AnalyzedEmailsCache{c: collection[models.AnalyzedEmail]{store: store, name: sqlite.CollectionAnalyzedEmails, settings: newSettings(opts)}}
}

func (a *AnalyzedEmailsCache) SaveAnalyzedEmails(ctx context.Context, analyzed []models.AnalyzedEmail) error {
	if len(analyzed) == 0 {
		return nil
	}
	st := a.c.stamp()
	keys := make([]string, len(analyzed))
	stamped := make([]models.AnalyzedEmail, len(analyzed))
	for i, m := range analyzed {
		if m.ID == "" {
			return fmt.Errorf("failed to cache analysis %d: missing id", i)
		}
		m.Timestamp, m.CachedAt = st.Timestamp, st.CachedAt
		keys[i], stamped[i] = m.ID, m
	}
	if err := a.c.putMany(ctx, keys, stamped, st); err != nil {
		return fmt.Errorf("failed to cache analyzed emails: %w", err)
	}
	a.c.log.Info("Cached analyzed emails", zap.Int("count", len(analyzed)))
	return nil
}

func (a *AnalyzedEmailsCache) GetAnalyzedEmails(ctx context.Context) []models.AnalyzedEmail {
	return a.c.list(ctx)
}

func (a *AnalyzedEmailsCache) GetAnalyzedEmail(ctx context.Context, id string) (models.AnalyzedEmail, bool) {
	return a.c.one(ctx, id)
}

func (a *AnalyzedEmailsCache) ClearAnalyzedEmails(ctx context.Context) error {
	return a.c.clear(ctx)
}

func (a *AnalyzedEmailsCache) HasCache(ctx context.Context) bool {
	return len(a.GetAnalyzedEmails(ctx)) > 0
}

// BatchSummaryCache holds the latest batch report under LatestKey.
type BatchSummaryCache struct {
	c collection[models.BatchReport]
}

func NewBatchSummaryCache(store Store, opts ...Option) *BatchSummaryCache {
	return &BatchSummaryCache{c: collection[models.BatchReport]{store: store, name: sqlite.CollectionBatchSummary, settings: newSettings(opts)}}
}

// SaveBatchSummary replaces the stored report wholesale.
func (b *BatchSummaryCache) SaveBatchSummary(ctx context.Context, report *models.BatchReport) error {
	if report == nil {
		return fmt.Errorf("failed to cache batch summary: nil report")
	}
	st := b.c.stamp()
	stamped := *report
	stamped.Timestamp, stamped.CachedAt = st.Timestamp, st.CachedAt
	if err := b.c.putOne(ctx, LatestKey, stamped, st); err != nil {
		return fmt.Errorf("failed to cache batch summary: %w", err)
	}
	b.c.log.Info("Cached batch summary", zap.Int("categories", len(report.Categories)))
	return nil
}

// GetBatchSummary returns nil when no report is cached or the store is unavailable.
func (b *BatchSummaryCache) GetBatchSummary(ctx context.Context) *models.BatchReport {
	report, found := b.c.one(ctx, LatestKey)
	if !found {
		return nil
	}
	return &report
}

func (b *BatchSummaryCache) ClearBatchSummary(ctx context.Context) error {
	return b.c.clear(ctx)
}

func (b *BatchSummaryCache) HasCache(ctx context.Context) bool {
	return b.GetBatchSummary(ctx) != nil
}

type calendarEventsRow struct {
	ID        string                 `json:"id"`
	Events    []models.CalendarEvent `json:"events"`
	Timestamp int64                  `json:"timestamp"`
	CachedAt  string                 `json:"cachedAt"`
}

// CalendarEventsCache holds the latest deduplicated event list under LatestKey.
type CalendarEventsCache struct {
	c collection[calendarEventsRow]
}

func NewCalendarEventsCache(store Store, opts ...Option) *CalendarEventsCache {
	return &CalendarEventsCache{c: collection[calendarEventsRow]{store: store, name: sqlite.CollectionCalendarEvents, settings: newSettings(opts)}}
}

func (ce *CalendarEventsCache) SaveCalendarEvents(ctx context.Context, events []models.CalendarEvent) error {
	st := ce.c.stamp()
	if events == nil {
		events = []models.CalendarEvent{}
	}
	row := calendarEventsRow{ID: LatestKey, Events: events, Timestamp: st.Timestamp, CachedAt: st.CachedAt}
	if err := ce.c.putOne(ctx, LatestKey, row, st); err != nil {
		return fmt.Errorf("failed to cache calendar events: %w", err)
	}
	ce.c.log.Info("Cached calendar events", zap.Int("count", len(events)))
	return nil
}

func (ce *CalendarEventsCache) GetCalendarEvents(ctx context.Context) []models.CalendarEvent {
	row, found := ce.c.one(ctx, LatestKey)
	if !found {
		return nil
	}
	return row.Events
}

func (ce *CalendarEventsCache) ClearCalendarEvents(ctx context.Context) error {
	return ce.c.clear(ctx)
}

// HasCache reports whether an event list has been stored, even an empty one.
func (ce *CalendarEventsCache) HasCache(ctx context.Context) bool {
	_, found := ce.c.one(ctx, LatestKey)
	return found
}
