package export

import (
	"strings"
	"time"

	"github.com/chrisx599/ChatEmail/internal/storage/models"
)

const (
	defaultScore     = 5
	defaultUrgency   = "Medium"
	defaultReasoning = "No reasoning available"
	defaultEventType = "meeting"
	unknownDate      = "Unknown Date"
)

// view is the snapshot with display defaults applied, shared by the
// csv, text and html renderers.
type view struct {
	GeneratedAt time.Time
	Emails      []emailView
	Events      []eventView
	Categories  []categoryView
}

type emailView struct {
	Rank            int
	ID              string
	Subject         string
	From            string
	Score           int
	Urgency         string
	Reasoning       string
	SuggestedAction string
	Summary         string
	HasEvents       bool
	Events          []eventView
}

type eventView struct {
	Title        string
	Type         string
	Date         string
	Time         string
	Location     string
	Description  string
	MeetingLink  string
	Attendees    []string
	EmailID      string
	EmailSubject string
	EmailFrom    string
}

type categoryView struct {
	Name   string
	Emails []models.CategoryEmail
}

func newView(snap *models.Snapshot, generated time.Time) view {
	v := view{GeneratedAt: generated}

	for i, e := range snap.AnalyzedEmails {
		ev := emailView{
			Rank:            i + 1,
			ID:              e.ID,
			Subject:         e.Subject,
			From:            e.From,
			Score:           e.Priority.Score,
			Urgency:         e.Priority.UrgencyLevel,
			Reasoning:       e.Priority.Reasoning,
			SuggestedAction: e.Priority.SuggestedAction,
			Summary:         e.Summary,
			HasEvents:       e.CalendarEvents.HasEvents,
			Events:          make([]eventView, 0, len(e.CalendarEvents.Events)),
		}
		if ev.Score == 0 {
			ev.Score = defaultScore
		}
		if ev.Urgency == "" {
			ev.Urgency = defaultUrgency
		}
		if ev.Reasoning == "" {
			ev.Reasoning = defaultReasoning
		}
		for _, ce := range e.CalendarEvents.Events {
			ev.Events = append(ev.Events, newEventView(ce))
		}
		v.Emails = append(v.Emails, ev)
	}

	v.Events = make([]eventView, 0, len(snap.CalendarEvents))
	for _, ce := range snap.CalendarEvents {
		v.Events = append(v.Events, newEventView(ce))
	}

	if snap.Report != nil {
		for _, c := range snap.Report.Categories {
			v.Categories = append(v.Categories, categoryView{Name: c.Name, Emails: c.Emails})
		}
	}
	return v
}

func newEventView(e models.CalendarEvent) eventView {
	ev := eventView{
		Title:        e.Title,
		Type:         e.EventType,
		Date:         e.Date,
		Time:         e.Time,
		Location:     e.Location,
		Description:  e.Description,
		MeetingLink:  e.MeetingLink,
		Attendees:    e.Attendees,
		EmailID:      e.EmailID,
		EmailSubject: e.EmailSubject,
		EmailFrom:    e.EmailFrom,
	}
	if ev.Type == "" {
		ev.Type = defaultEventType
	}
	if ev.Attendees == nil {
		ev.Attendees = []string{}
	}
	return ev
}

// glyph marks an email by score band.
func glyph(score int) string {
	switch {
	case score >= 8:
		return "🔴"
	case score >= 6:
		return "🟡"
	default:
		return "🟢"
	}
}

func eventIcon(eventType string) string {
	switch eventType {
	case "meeting":
		return "🤝"
	case "appointment":
		return "📋"
	default:
		return "⏰"
	}
}

func badgeClass(urgency string) string {
	return "priority-" + strings.ToLower(urgency)
}
