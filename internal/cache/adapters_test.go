package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/internal/storage/sqlite"
)

// tickingClock advances one second on every call.
func tickingClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func newTestStore(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// brokenStore fails every operation.
type brokenStore struct{ err error }

func (b brokenStore) Upsert(context.Context, sqlite.Collection, sqlite.Row) error { return b.err }
func (b brokenStore) UpsertMany(context.Context, sqlite.Collection, []sqlite.Row) error {
	return b.err
}
func (b brokenStore) GetAll(context.Context, sqlite.Collection) ([]sqlite.Row, error) {
	return nil, b.err
}
func (b brokenStore) GetOne(context.Context, sqlite.Collection, string) (sqlite.Row, bool, error) {
	return sqlite.Row{}, false, b.err
}
func (b brokenStore) Clear(context.Context, sqlite.Collection) error { return b.err }

func TestEmailCache_SaveStampsAndOrdersNewestFirst(t *testing.T) {
	start := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	emails := NewEmailCache(newTestStore(t), WithClock(tickingClock(start)))
	ctx := context.Background()

	require.NoError(t, emails.SaveEmails(ctx, []models.Email{{ID: "old", Subject: "first"}}))
	require.NoError(t, emails.SaveEmails(ctx, []models.Email{{ID: "new", Subject: "second"}}))

	got := emails.GetEmails(ctx)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[1].ID)
	assert.Equal(t, start.Add(2*time.Second).UnixMilli(), got[0].Timestamp)
	assert.Equal(t, "2024-01-10T09:00:02.000Z", got[0].CachedAt)
	assert.True(t, emails.HasCache(ctx))
}

func TestEmailCache_SameInstantKeepsStoredOrder(t *testing.T) {
	fixed := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	emails := NewEmailCache(newTestStore(t), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	require.NoError(t, emails.SaveEmails(ctx, []models.Email{{ID: "a"}, {ID: "b"}, {ID: "c"}}))

	var ids []string
	for _, m := range emails.GetEmails(ctx) {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestAnalyzedEmailsCache_UpsertIsIdempotent(t *testing.T) {
	analyzed := NewAnalyzedEmailsCache(newTestStore(t))
	ctx := context.Background()

	v1 := models.AnalyzedEmail{Email: models.Email{ID: "k"}, Analysis: models.Analysis{Summary: "v1"}}
	v2 := models.AnalyzedEmail{Email: models.Email{ID: "k"}, Analysis: models.Analysis{Summary: "v2"}}
	require.NoError(t, analyzed.SaveAnalyzedEmails(ctx, []models.AnalyzedEmail{v1}))
	require.NoError(t, analyzed.SaveAnalyzedEmails(ctx, []models.AnalyzedEmail{v2}))

	all := analyzed.GetAnalyzedEmails(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "v2", all[0].Summary)

	one, found := analyzed.GetAnalyzedEmail(ctx, "k")
	require.True(t, found)
	assert.Equal(t, "v2", one.Summary)
}

func TestAnalyzedEmailsCache_RejectsMissingID(t *testing.T) {
	analyzed := NewAnalyzedEmailsCache(newTestStore(t))
	err := analyzed.SaveAnalyzedEmails(context.Background(), []models.AnalyzedEmail{{}})
	require.Error(t, err)
}

func TestBatchSummaryCache_ReplacesLatest(t *testing.T) {
	store := newTestStore(t)
	summary := NewBatchSummaryCache(store)
	ctx := context.Background()

	assert.Nil(t, summary.GetBatchSummary(ctx))
	assert.False(t, summary.HasCache(ctx))

	require.NoError(t, summary.SaveBatchSummary(ctx, &models.BatchReport{
		Categories: []models.Category{{Name: "Work"}, {Name: "Personal"}},
	}))
	require.NoError(t, summary.SaveBatchSummary(ctx, &models.BatchReport{
		Categories: []models.Category{{Name: "Finance"}},
	}))

	got := summary.GetBatchSummary(ctx)
	require.NotNil(t, got)
	require.Len(t, got.Categories, 1)
	assert.Equal(t, "Finance", got.Categories[0].Name)
	assert.NotZero(t, got.Timestamp)
	assert.NotEmpty(t, got.CachedAt)

	rows, err := store.GetAll(ctx, sqlite.CollectionBatchSummary)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, LatestKey, rows[0].Key)
}

func TestCalendarEventsCache_RoundTrip(t *testing.T) {
	events := NewCalendarEventsCache(newTestStore(t))
	ctx := context.Background()

	assert.False(t, events.HasCache(ctx))

	in := []models.CalendarEvent{
		{Title: "Sync", Date: "2024-01-10", Attendees: []string{"a@example.com"}, EmailID: "B"},
	}
	require.NoError(t, events.SaveCalendarEvents(ctx, in))
	assert.Equal(t, in, events.GetCalendarEvents(ctx))

	require.NoError(t, events.SaveCalendarEvents(ctx, nil))
	assert.Empty(t, events.GetCalendarEvents(ctx))
	assert.True(t, events.HasCache(ctx))
}

func TestAdapters_StoreFailureDegradesToEmpty(t *testing.T) {
	m := NewManager(brokenStore{err: errors.New("disk I/O error")})
	ctx := context.Background()

	assert.Empty(t, m.Emails.GetEmails(ctx))
	assert.Empty(t, m.AnalyzedEmails.GetAnalyzedEmails(ctx))
	assert.Nil(t, m.BatchSummary.GetBatchSummary(ctx))
	assert.Nil(t, m.CalendarEvents.GetCalendarEvents(ctx))
	assert.Equal(t, Status{}, m.Status(ctx))

	err := m.Emails.SaveEmails(ctx, []models.Email{{ID: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestManager_StatusAndClear(t *testing.T) {
	m := NewManager(newTestStore(t))
	ctx := context.Background()

	require.NoError(t, m.Emails.SaveEmails(ctx, []models.Email{{ID: "m1"}}))
	require.NoError(t, m.AnalyzedEmails.SaveAnalyzedEmails(ctx, []models.AnalyzedEmail{{Email: models.Email{ID: "m1"}}}))
	require.NoError(t, m.BatchSummary.SaveBatchSummary(ctx, &models.BatchReport{}))
	require.NoError(t, m.CalendarEvents.SaveCalendarEvents(ctx, []models.CalendarEvent{{Title: "t", Date: "d"}}))

	assert.Equal(t, Status{true, true, true, true}, m.Status(ctx))

	require.NoError(t, m.Clear(ctx, sqlite.CollectionEmails))
	assert.Equal(t, Status{HasEmails: false, HasBatchSummary: true, HasAnalyzedEmails: true, HasCalendarEvents: true}, m.Status(ctx))

	require.NoError(t, m.ClearAll(ctx))
	assert.Equal(t, Status{}, m.Status(ctx))

	require.ErrorIs(t, m.Clear(ctx, sqlite.Collection("bogus")), sqlite.ErrUnknownCollection)
}

func TestManager_ClearAllContinuesPastFailures(t *testing.T) {
	m := NewManager(brokenStore{err: errors.New("locked")})
	err := m.ClearAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, countJoined(err))
}

func countJoined(err error) int {
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		return len(u.Unwrap())
	}
	return 1
}
