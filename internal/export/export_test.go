package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisx599/ChatEmail/internal/storage/models"
)

var generated = time.Date(2024, 1, 9, 14, 30, 5, 0, time.UTC)

func email(id, subject, from string, score int, urgency, summary string, events ...models.CalendarEvent) models.AnalyzedEmail {
	return models.AnalyzedEmail{
		Email: models.Email{ID: id, Subject: subject, From: from},
		Analysis: models.Analysis{
			Priority:       models.Priority{Score: score, UrgencyLevel: urgency, Reasoning: "because " + id},
			CalendarEvents: models.CalendarEvents{HasEvents: len(events) > 0, Events: events},
			Summary:        summary,
		},
	}
}

func testSnapshot() *models.Snapshot {
	sync := models.CalendarEvent{Title: "Sync", EventType: "meeting", Date: "2024-01-10", Time: "10:00"}
	synced := sync
	synced.EmailID, synced.EmailSubject, synced.EmailFrom = "B", "Sync", "boss@example.com"

	return &models.Snapshot{
		BatchID: "batch-1",
		AnalyzedEmails: []models.AnalyzedEmail{
			email("B", "Sync", "boss@example.com", 9, "High", "sync tomorrow", sync),
			email("C", "Sync reminder", "pm@example.com", 7, "Medium", "reminder", sync),
			email("A", "Newsletter", "news@example.com", 3, "Low", "weekly digest"),
		},
		CalendarEvents: []models.CalendarEvent{synced},
		Report: &models.BatchReport{Categories: []models.Category{
			{Name: "Meetings", Emails: []models.CategoryEmail{
				{ID: "B", Subject: "Sync", From: "boss@example.com", Summary: "sync tomorrow"},
				{ID: "C", Subject: "Sync reminder", From: "pm@example.com", Summary: "reminder"},
			}},
		}},
	}
}

// readSections parses CSV output into records grouped by section marker.
func readSections(t *testing.T, data []byte) map[string][][]string {
	t.Helper()
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)

	sections := make(map[string][][]string)
	var current string
	for _, rec := range records {
		if len(rec) == 1 && strings.HasPrefix(rec[0], "=== ") {
			current = rec[0]
			continue
		}
		sections[current] = append(sections[current], rec)
	}
	return sections
}

func TestExport_CSVSections(t *testing.T) {
	a, err := Export(FormatCSV, testSnapshot(), Options{GeneratedAt: generated})
	require.NoError(t, err)

	sections := readSections(t, a.Data)

	emails := sections[sectionEmails]
	require.Len(t, emails, 4)
	assert.Equal(t, emailHeader, emails[0])
	assert.Equal(t, []string{"1", "B", "Sync", "boss@example.com", "9", "High", "because B", "sync tomorrow", "Yes"}, emails[1])
	assert.Equal(t, "A", emails[3][1])
	assert.Equal(t, "No", emails[3][8])

	events := sections[sectionEvents]
	require.Len(t, events, 2)
	assert.Equal(t, eventHeader, events[0])
	assert.Equal(t, []string{"Sync", "meeting", "2024-01-10", "10:00", "", "", "", "", "Sync", "boss@example.com"}, events[1])

	cats := sections[sectionCategories]
	require.Len(t, cats, 3)
	assert.Equal(t, categoryHeader, cats[0])
	assert.Equal(t, []string{"Meetings", "C", "Sync reminder", "pm@example.com", "reminder"}, cats[2])
}

func TestExport_CSVOmitsEmptySections(t *testing.T) {
	snap := testSnapshot()
	snap.CalendarEvents = nil
	snap.Report = nil

	a, err := Export(FormatCSV, snap, Options{GeneratedAt: generated})
	require.NoError(t, err)

	out := string(a.Data)
	assert.Contains(t, out, sectionEmails)
	assert.NotContains(t, out, sectionEvents)
	assert.NotContains(t, out, sectionCategories)
}

func TestExport_CSVEscapingRoundTrips(t *testing.T) {
	tricky := `He said "hi", then left` + "\nsecond line"
	snap := &models.Snapshot{
		AnalyzedEmails: []models.AnalyzedEmail{
			email("x", tricky, `"Quoted, Name" <q@example.com>`, 8, "High", tricky),
		},
		CalendarEvents: []models.CalendarEvent{{
			Title: tricky, Date: "2024-03-01", Attendees: []string{`a "b"`, "c, d"},
			EmailSubject: tricky, EmailFrom: "q@example.com",
		}},
	}

	a, err := Export(FormatCSV, snap, Options{GeneratedAt: generated})
	require.NoError(t, err)

	sections := readSections(t, a.Data)
	row := sections[sectionEmails][1]
	assert.Equal(t, tricky, row[2])
	assert.Equal(t, `"Quoted, Name" <q@example.com>`, row[3])
	assert.Equal(t, tricky, row[7])

	ev := sections[sectionEvents][1]
	assert.Equal(t, tricky, ev[0])
	assert.Equal(t, `a "b"; c, d`, ev[7])
}

func TestExport_JSONDocument(t *testing.T) {
	a, err := Export(FormatJSON, testSnapshot(), Options{GeneratedAt: generated})
	require.NoError(t, err)
	assert.Equal(t, "application/json", a.ContentType)

	var doc jsonDocument
	require.NoError(t, json.Unmarshal(a.Data, &doc))

	assert.Equal(t, jsonExportInfo{Timestamp: "2024-01-09T14:30:05Z", Format: "JSON", Version: "1.0"}, doc.ExportInfo)
	assert.Equal(t, jsonSummary{TotalEmails: 3, TotalCalendarEvents: 1, CategoriesCount: 1}, doc.Summary)

	require.Len(t, doc.PriorityEmails, 3)
	first := doc.PriorityEmails[0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, jsonPriority{Score: 9, Urgency: "High", Reasoning: "because B"}, first.Priority)
	assert.True(t, first.HasCalendarEvents)
	assert.Equal(t, 1, first.CalendarEventsCount)
	require.Len(t, first.Events, 1)

	want := jsonEvent{
		Title: "Sync", Type: "meeting", Date: "2024-01-10", Time: "10:00",
		SourceEmail: &jsonSourceEmail{ID: "B", Subject: "Sync", From: "boss@example.com"},
	}
	if diff := cmp.Diff([]jsonEvent{want}, doc.CalendarEvents); diff != "" {
		t.Errorf("calendar events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, doc.Categories[0].EmailCount)
}

// snapshotFromJSON rebuilds a snapshot from an exported document.
func snapshotFromJSON(doc jsonDocument) *models.Snapshot {
	events := func(in []jsonEvent) []models.CalendarEvent {
		if len(in) == 0 {
			return nil
		}
		out := make([]models.CalendarEvent, 0, len(in))
		for _, e := range in {
			ce := models.CalendarEvent{
				Title: e.Title, EventType: e.Type, Date: e.Date, Time: e.Time,
				Location: e.Location, Description: e.Description, MeetingLink: e.MeetingLink,
				Attendees: e.Attendees,
			}
			if e.SourceEmail != nil {
				ce.EmailID, ce.EmailSubject, ce.EmailFrom = e.SourceEmail.ID, e.SourceEmail.Subject, e.SourceEmail.From
			}
			out = append(out, ce)
		}
		return out
	}

	snap := &models.Snapshot{BatchID: doc.BatchID, CalendarEvents: events(doc.CalendarEvents)}
	for _, e := range doc.PriorityEmails {
		snap.AnalyzedEmails = append(snap.AnalyzedEmails, models.AnalyzedEmail{
			Email: models.Email{ID: e.ID, Subject: e.Subject, From: e.From, Date: e.Date, Body: e.Body, HTMLBody: e.HTMLBody},
			Analysis: models.Analysis{
				Priority: models.Priority{
					Score: e.Priority.Score, UrgencyLevel: e.Priority.Urgency,
					Reasoning: e.Priority.Reasoning, SuggestedAction: e.Priority.SuggestedAction,
				},
				CalendarEvents: models.CalendarEvents{HasEvents: e.HasCalendarEvents, Events: events(e.Events)},
				Summary:        e.Summary,
			},
		})
	}
	if len(doc.Categories) > 0 || doc.CalendarSummary != nil {
		snap.Report = &models.BatchReport{}
		for _, c := range doc.Categories {
			snap.Report.Categories = append(snap.Report.Categories, models.Category{Name: c.Name, Emails: c.Emails})
		}
		if doc.CalendarSummary != nil {
			snap.Report.CalendarSummary = &models.CalendarSummary{
				Overview: doc.CalendarSummary.Overview,
				Events:   events(doc.CalendarSummary.Events),
			}
		}
	}
	return snap
}

func TestExport_JSONRoundTripsSnapshot(t *testing.T) {
	snap := testSnapshot()
	snap.AnalyzedEmails[0].Body = "Can we sync tomorrow at 10?"
	snap.AnalyzedEmails[0].HTMLBody = "<p>Can we sync tomorrow at 10?</p>"
	snap.AnalyzedEmails[0].Date = time.Date(2024, 1, 2, 8, 15, 0, 0, time.UTC)
	snap.AnalyzedEmails[0].Priority.SuggestedAction = "Accept the invite"
	snap.AnalyzedEmails[0].CalendarEvents.Events[0].Attendees = []string{"boss@example.com", "me@example.com"}
	// Raw values that the readable formats would replace with defaults.
	snap.AnalyzedEmails[2].Priority = models.Priority{}
	snap.AnalyzedEmails[1].CalendarEvents.Events = []models.CalendarEvent{{Title: "Sync", Date: "2024-01-10"}}
	snap.Report.CalendarSummary = &models.CalendarSummary{
		Overview: "One sync this week.",
		Events:   []models.CalendarEvent{{Title: "Planning", EventType: "deadline", Date: "2024-01-12"}},
	}

	a, err := Export(FormatJSON, snap, Options{GeneratedAt: generated})
	require.NoError(t, err)

	var doc jsonDocument
	require.NoError(t, json.Unmarshal(a.Data, &doc))

	if diff := cmp.Diff(snap, snapshotFromJSON(doc)); diff != "" {
		t.Errorf("snapshot changed through JSON export (-want +got):\n%s", diff)
	}
}

func TestExport_TextGroupsEventsByDate(t *testing.T) {
	snap := testSnapshot()
	snap.CalendarEvents = []models.CalendarEvent{
		{Title: "Later", EventType: "deadline", Date: "2024-02-01"},
		{Title: "Undated", EventType: "appointment"},
		{Title: "Sooner", Date: "2024-01-15"},
	}

	a, err := Export(FormatTXT, snap, Options{GeneratedAt: generated})
	require.NoError(t, err)
	out := string(a.Data)

	assert.True(t, strings.HasPrefix(out, strings.Repeat("=", 80)+"\n"))
	assert.Contains(t, out, "EMAIL BATCH SUMMARY REPORT")
	assert.Contains(t, out, "Generated: 2024-01-09 14:30:05 UTC\n")
	assert.Contains(t, out, "🔴 #1 [Priority: 9/10 - High]")
	assert.Contains(t, out, "🟡 #2 [Priority: 7/10 - Medium]")
	assert.Contains(t, out, "🟢 #3 [Priority: 3/10 - Low]")
	assert.Contains(t, out, "🤝 Sooner")
	assert.Contains(t, out, "⏰ Later")
	assert.Contains(t, out, "📋 Undated")
	assert.True(t, strings.HasSuffix(out, "END OF REPORT\n"+strings.Repeat("=", 80)+"\n"))

	i1 := strings.Index(out, "📅 2024-01-15")
	i2 := strings.Index(out, "📅 2024-02-01")
	i3 := strings.Index(out, "📅 Unknown Date")
	require.True(t, i1 > 0 && i2 > 0 && i3 > 0)
	assert.Less(t, i1, i2)
	assert.Less(t, i2, i3)
}

func TestExport_HTMLEscapesContent(t *testing.T) {
	snap := testSnapshot()
	snap.AnalyzedEmails[0].Subject = `<script>alert("x")</script>`

	a, err := Export(FormatHTML, snap, Options{GeneratedAt: generated})
	require.NoError(t, err)
	out := string(a.Data)

	assert.NotContains(t, out, "<script>alert")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, `class="priority-badge priority-high"`)
	assert.Contains(t, out, `data-generated="2024-01-09T14:30:05Z"`)
	assert.Contains(t, out, "Extracted Calendar Events")
}

func TestExport_PDFFallsBackToHTML(t *testing.T) {
	a, err := Export(FormatPDF, testSnapshot(), Options{GeneratedAt: generated})
	require.NoError(t, err)

	assert.True(t, a.Fallback)
	assert.Equal(t, "email_report_2024-01-09_14_30_05.html", a.Filename)

	html, err := Export(FormatHTML, testSnapshot(), Options{GeneratedAt: generated})
	require.NoError(t, err)
	assert.Equal(t, html.Data, a.Data)
}

func TestExport_Deterministic(t *testing.T) {
	for _, f := range Formats() {
		t.Run(string(f), func(t *testing.T) {
			a1, err := Export(f, testSnapshot(), Options{GeneratedAt: generated})
			require.NoError(t, err)
			a2, err := Export(f, testSnapshot(), Options{GeneratedAt: generated})
			require.NoError(t, err)
			assert.Equal(t, a1.Data, a2.Data)
			if f == FormatCSV {
				return
			}

			later, err := Export(f, testSnapshot(), Options{GeneratedAt: generated.Add(time.Hour)})
			require.NoError(t, err)
			assert.NotEqual(t, a1.Data, later.Data, "timestamp appears in the output")
		})
	}
}

func TestExport_Errors(t *testing.T) {
	_, err := Export(FormatJSON, nil, Options{})
	assert.ErrorIs(t, err, ErrEmptySnapshot)

	_, err = Export(FormatJSON, &models.Snapshot{}, Options{})
	assert.ErrorIs(t, err, ErrEmptySnapshot)

	bad := testSnapshot()
	bad.AnalyzedEmails[1].ID = ""
	_, err = Export(FormatJSON, bad, Options{})
	assert.ErrorIs(t, err, ErrInvalidSnapshot)

	_, err = Export(Format("docx"), testSnapshot(), Options{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFilename(t *testing.T) {
	at := time.Date(2024, 1, 9, 14, 30, 5, 999, time.FixedZone("CET", 3600))
	assert.Equal(t, "email_report_2024-01-09_13_30_05.csv", Filename("", "csv", at))
	assert.Equal(t, "weekly_2024-01-09_13_30_05.json", Filename("weekly", "json", at))
}

func TestArtifact_WriteTo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	a, err := Export(FormatTXT, testSnapshot(), Options{GeneratedAt: generated})
	require.NoError(t, err)

	path, err := a.WriteTo(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "email_report_2024-01-09_14_30_05.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, a.Data, data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
