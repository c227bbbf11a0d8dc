package export

import (
	"encoding/json"
	"time"

	"github.com/chrisx599/ChatEmail/internal/storage/models"
)

const jsonVersion = "1.0"

// jsonDocument carries the snapshot without display defaults so it can be
// read back with no loss.
type jsonDocument struct {
	ExportInfo      jsonExportInfo       `json:"exportInfo"`
	BatchID         string               `json:"batchId,omitempty"`
	Summary         jsonSummary          `json:"summary"`
	PriorityEmails  []jsonEmail          `json:"priorityEmails"`
	CalendarEvents  []jsonEvent          `json:"calendarEvents"`
	Categories      []jsonCategory       `json:"categories"`
	CalendarSummary *jsonCalendarSummary `json:"calendarSummary,omitempty"`
}

type jsonExportInfo struct {
	Timestamp string `json:"timestamp"`
	Format    string `json:"format"`
	Version   string `json:"version"`
}

type jsonSummary struct {
	TotalEmails         int `json:"totalEmails"`
	TotalCalendarEvents int `json:"totalCalendarEvents"`
	CategoriesCount     int `json:"categoriesCount"`
}

type jsonEmail struct {
	Rank                int          `json:"rank"`
	ID                  string       `json:"id"`
	Subject             string       `json:"subject"`
	From                string       `json:"from"`
	Date                time.Time    `json:"date"`
	Body                string       `json:"body"`
	HTMLBody            string       `json:"htmlBody,omitempty"`
	Priority            jsonPriority `json:"priority"`
	Summary             string       `json:"summary"`
	HasCalendarEvents   bool         `json:"hasCalendarEvents"`
	CalendarEventsCount int          `json:"calendarEventsCount"`
	Events              []jsonEvent  `json:"events"`
}

type jsonPriority struct {
	Score           int    `json:"score"`
	Urgency         string `json:"urgency"`
	Reasoning       string `json:"reasoning"`
	SuggestedAction string `json:"suggestedAction,omitempty"`
}

type jsonEvent struct {
	Title       string           `json:"title"`
	Type        string           `json:"type"`
	Date        string           `json:"date"`
	Time        string           `json:"time"`
	Location    string           `json:"location"`
	Description string           `json:"description"`
	MeetingLink string           `json:"meetingLink"`
	Attendees   []string         `json:"attendees"`
	SourceEmail *jsonSourceEmail `json:"sourceEmail,omitempty"`
}

type jsonSourceEmail struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
}

type jsonCategory struct {
	Name       string                 `json:"name"`
	EmailCount int                    `json:"emailCount"`
	Emails     []models.CategoryEmail `json:"emails"`
}

type jsonCalendarSummary struct {
	Overview string      `json:"overview"`
	Events   []jsonEvent `json:"events"`
}

func renderJSON(snap *models.Snapshot, generated time.Time) ([]byte, error) {
	var categories []models.Category
	if snap.Report != nil {
		categories = snap.Report.Categories
	}

	doc := jsonDocument{
		ExportInfo: jsonExportInfo{
			Timestamp: generated.Format(time.RFC3339),
			Format:    "JSON",
			Version:   jsonVersion,
		},
		BatchID: snap.BatchID,
		Summary: jsonSummary{
			TotalEmails:         len(snap.AnalyzedEmails),
			TotalCalendarEvents: len(snap.CalendarEvents),
			CategoriesCount:     len(categories),
		},
		PriorityEmails: make([]jsonEmail, 0, len(snap.AnalyzedEmails)),
		CalendarEvents: toJSONEvents(snap.CalendarEvents),
		Categories:     make([]jsonCategory, 0, len(categories)),
	}

	for i, e := range snap.AnalyzedEmails {
		doc.PriorityEmails = append(doc.PriorityEmails, jsonEmail{
			Rank:     i + 1,
			ID:       e.ID,
			Subject:  e.Subject,
			From:     e.From,
			Date:     e.Date,
			Body:     e.Body,
			HTMLBody: e.HTMLBody,
			Priority: jsonPriority{
				Score:           e.Priority.Score,
				Urgency:         e.Priority.UrgencyLevel,
				Reasoning:       e.Priority.Reasoning,
				SuggestedAction: e.Priority.SuggestedAction,
			},
			Summary:             e.Summary,
			HasCalendarEvents:   e.CalendarEvents.HasEvents,
			CalendarEventsCount: len(e.CalendarEvents.Events),
			Events:              toJSONEvents(e.CalendarEvents.Events),
		})
	}

	for _, c := range categories {
		emails := c.Emails
		if emails == nil {
			emails = []models.CategoryEmail{}
		}
		doc.Categories = append(doc.Categories, jsonCategory{Name: c.Name, EmailCount: len(emails), Emails: emails})
	}

	if snap.Report != nil && snap.Report.CalendarSummary != nil {
		doc.CalendarSummary = &jsonCalendarSummary{
			Overview: snap.Report.CalendarSummary.Overview,
			Events:   toJSONEvents(snap.Report.CalendarSummary.Events),
		}
	}

	return json.MarshalIndent(doc, "", "  ")
}

func toJSONEvents(events []models.CalendarEvent) []jsonEvent {
	out := make([]jsonEvent, 0, len(events))
	for _, ev := range events {
		je := jsonEvent{
			Title:       ev.Title,
			Type:        ev.EventType,
			Date:        ev.Date,
			Time:        ev.Time,
			Location:    ev.Location,
			Description: ev.Description,
			MeetingLink: ev.MeetingLink,
			Attendees:   ev.Attendees,
		}
		if ev.EmailID != "" || ev.EmailSubject != "" || ev.EmailFrom != "" {
			je.SourceEmail = &jsonSourceEmail{ID: ev.EmailID, Subject: ev.EmailSubject, From: ev.EmailFrom}
		}
		out = append(out, je)
	}
	return out
}
