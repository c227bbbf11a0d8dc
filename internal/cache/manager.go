package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrisx599/ChatEmail/internal/storage/sqlite"
)

// Manager groups the four collection adapters over one store.
type Manager struct {
	Emails         *EmailCache
	AnalyzedEmails *AnalyzedEmailsCache
	BatchSummary   *BatchSummaryCache
	CalendarEvents *CalendarEventsCache
}

func NewManager(store Store, opts ...Option) *Manager {
	return &Manager{
		Emails:         NewEmailCache(store, opts...),
		AnalyzedEmails: NewAnalyzedEmailsCache(store, opts...),
		BatchSummary:   NewBatchSummaryCache(store, opts...),
		CalendarEvents: NewCalendarEventsCache(store, opts...),
	}
}

type Status struct {
	HasEmails         bool `json:"hasEmails"`
	HasBatchSummary   bool `json:"hasBatchSummary"`
	HasAnalyzedEmails bool `json:"hasAnalyzedEmails"`
	HasCalendarEvents bool `json:"hasCalendarEvents"`
}

func (m *Manager) Status(ctx context.Context) Status {
	return Status{
		HasEmails:         m.Emails.HasCache(ctx),
		HasBatchSummary:   m.BatchSummary.HasCache(ctx),
		HasAnalyzedEmails: m.AnalyzedEmails.HasCache(ctx),
		HasCalendarEvents: m.CalendarEvents.HasCache(ctx),
	}
}

// Clear empties one collection.
func (m *Manager) Clear(ctx context.Context, coll sqlite.Collection) error {
	switch coll {
	case sqlite.CollectionEmails:
		return m.Emails.ClearEmails(ctx)
	case sqlite.CollectionAnalyzedEmails:
		return m.AnalyzedEmails.ClearAnalyzedEmails(ctx)
	case sqlite.CollectionBatchSummary:
		return m.BatchSummary.ClearBatchSummary(ctx)
	case sqlite.CollectionCalendarEvents:
		return m.CalendarEvents.ClearCalendarEvents(ctx)
	}
	return fmt.Errorf("%w: %q", sqlite.ErrUnknownCollection, string(coll))
}

// ClearAll empties every collection. A failure on one does not stop the others.
func (m *Manager) ClearAll(ctx context.Context) error {
	var errs []error
	for _, coll := range sqlite.Collections() {
		if err := m.Clear(ctx, coll); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
