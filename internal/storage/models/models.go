package models

import (
	"time"
)

// Email is a fetched message. The cache holds a copy keyed by ID that is
// replaced on every fetch.
type Email struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	From      string    `json:"from"`
	Body      string    `json:"body"`
	HTMLBody  string    `json:"html_body,omitempty"`
	Date      time.Time `json:"date"`
	Timestamp int64     `json:"timestamp,omitempty"`
	CachedAt  string    `json:"cachedAt,omitempty"`
}

type Priority struct {
	Score           int    `json:"priority_score"`
	UrgencyLevel    string `json:"urgency_level"`
	Reasoning       string `json:"reasoning"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// CalendarEvent is an event extracted from one email's analysis. The Email*
// fields record which message it came from.
type CalendarEvent struct {
	Title        string   `json:"title"`
	EventType    string   `json:"type,omitempty"`
	Date         string   `json:"date"`
	Time         string   `json:"time,omitempty"`
	Location     string   `json:"location,omitempty"`
	Description  string   `json:"description,omitempty"`
	MeetingLink  string   `json:"meeting_link,omitempty"`
	Attendees    []string `json:"attendees,omitempty"`
	EmailID      string   `json:"email_id,omitempty"`
	EmailSubject string   `json:"email_subject,omitempty"`
	EmailFrom    string   `json:"email_from,omitempty"`
}

// DedupKey identifies events that describe the same occurrence. Matching is
// exact and case-sensitive.
func (e CalendarEvent) DedupKey() string {
	return e.Title + "\x00" + e.Date
}

type CalendarEvents struct {
	HasEvents bool            `json:"has_events"`
	Events    []CalendarEvent `json:"events"`
}

// Analysis is what the reasoning service returns for one email.
type Analysis struct {
	Priority       Priority       `json:"priority"`
	CalendarEvents CalendarEvents `json:"calendar_events"`
	Summary        string         `json:"summary"`
}

type AnalyzedEmail struct {
	Email
	Analysis
}

type CategoryEmail struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Summary string `json:"summary"`
}

type Category struct {
	Name   string          `json:"name"`
	Emails []CategoryEmail `json:"emails"`
}

type CalendarSummary struct {
	Overview string          `json:"overview,omitempty"`
	Events   []CalendarEvent `json:"events"`
}

// BatchReport is the batch-level synthesis. It is stored as a single row and
// replaced wholesale on every run.
type BatchReport struct {
	Categories      []Category       `json:"categories"`
	CalendarSummary *CalendarSummary `json:"calendar_summary,omitempty"`
	// BatchID and EmailIDs record the batch the report was built from, in
	// rank order, so a restored snapshot covers the same emails.
	BatchID   string   `json:"batch_id,omitempty"`
	EmailIDs  []string `json:"email_ids,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
	CachedAt  string   `json:"cachedAt,omitempty"`
}

// Snapshot is the in-memory result of one batch: ranked analyses, the
// deduplicated events and the report. Exports render from it.
type Snapshot struct {
	BatchID        string          `json:"batch_id"`
	AnalyzedEmails []AnalyzedEmail `json:"analyzed_emails"`
	CalendarEvents []CalendarEvent `json:"calendar_events"`
	Report         *BatchReport    `json:"report,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
	FromCache      bool            `json:"from_cache"`
	Superseded     bool            `json:"superseded,omitempty"`
}
