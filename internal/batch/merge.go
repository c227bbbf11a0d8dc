package batch

import (
	"sort"

	"github.com/chrisx599/ChatEmail/internal/storage/models"
)

const (
	FallbackScore   = 5
	FallbackUrgency = "Medium"
	FallbackSummary = "Analysis failed"
)

// Fallback is the analysis recorded for an email whose enrichment failed.
func Fallback(reason string) models.Analysis {
	return models.Analysis{
		Priority: models.Priority{
			Score:        FallbackScore,
			UrgencyLevel: FallbackUrgency,
			Reasoning:    reason,
		},
		CalendarEvents: models.CalendarEvents{HasEvents: false, Events: []models.CalendarEvent{}},
		Summary:        FallbackSummary,
	}
}

// Rank returns a copy of analyzed sorted by descending score. Equal scores
// keep their input order.
func Rank(analyzed []models.AnalyzedEmail) []models.AnalyzedEmail {
	ranked := make([]models.AnalyzedEmail, len(analyzed))
	copy(ranked, analyzed)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority.Score > ranked[j].Priority.Score
	})
	return ranked
}

// ExtractEvents flattens the events of ranked emails in order, tagging each
// with the email it came from.
func ExtractEvents(ranked []models.AnalyzedEmail) []models.CalendarEvent {
	var events []models.CalendarEvent
	for _, e := range ranked {
		for _, ev := range e.CalendarEvents.Events {
			ev.EmailID = e.ID
			ev.EmailSubject = e.Subject
			ev.EmailFrom = e.From
			events = append(events, ev)
		}
	}
	return events
}

// DedupEvents concatenates lists and drops every event whose title and date
// were already seen. The first occurrence wins.
func DedupEvents(lists ...[]models.CalendarEvent) []models.CalendarEvent {
	seen := make(map[string]struct{})
	out := []models.CalendarEvent{}
	for _, list := range lists {
		for _, ev := range list {
			key := ev.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, ev)
		}
	}
	return out
}

// GroupByUrgency builds categories from urgency labels, in order of first
// appearance. Used when no synthesized grouping is available.
func GroupByUrgency(ranked []models.AnalyzedEmail) *models.BatchReport {
	index := make(map[string]int)
	report := &models.BatchReport{Categories: []models.Category{}}
	for _, e := range ranked {
		name := e.Priority.UrgencyLevel
		if name == "" {
			name = FallbackUrgency
		}
		name += " Priority"
		i, ok := index[name]
		if !ok {
			i = len(report.Categories)
			index[name] = i
			report.Categories = append(report.Categories, models.Category{Name: name})
		}
		report.Categories[i].Emails = append(report.Categories[i].Emails, member(e))
	}
	return report
}

// normalizeReport rewrites category members as (id, subject, from, summary)
// taken from the analyzed batch. Members that are not part of the batch are dropped.
func normalizeReport(report *models.BatchReport, ranked []models.AnalyzedEmail) *models.BatchReport {
	byID := make(map[string]models.AnalyzedEmail, len(ranked))
	for _, e := range ranked {
		byID[e.ID] = e
	}

	out := &models.BatchReport{Categories: make([]models.Category, 0, len(report.Categories))}
	for _, c := range report.Categories {
		cat := models.Category{Name: c.Name, Emails: []models.CategoryEmail{}}
		for _, m := range c.Emails {
			e, ok := byID[m.ID]
			if !ok {
				continue
			}
			cat.Emails = append(cat.Emails, member(e))
		}
		out.Categories = append(out.Categories, cat)
	}

	if report.CalendarSummary != nil {
		summary := &models.CalendarSummary{Overview: report.CalendarSummary.Overview}
		for _, ev := range report.CalendarSummary.Events {
			if e, ok := byID[ev.EmailID]; ok {
				ev.EmailSubject = e.Subject
				ev.EmailFrom = e.From
			}
			summary.Events = append(summary.Events, ev)
		}
		out.CalendarSummary = summary
	}
	return out
}

func member(e models.AnalyzedEmail) models.CategoryEmail {
	return models.CategoryEmail{ID: e.ID, Subject: e.Subject, From: e.From, Summary: e.Summary}
}

// eventsForBatch keeps prior events whose source email is in ids.
func eventsForBatch(prior []models.CalendarEvent, ids map[string]struct{}) []models.CalendarEvent {
	var kept []models.CalendarEvent
	for _, ev := range prior {
		if _, ok := ids[ev.EmailID]; ok {
			kept = append(kept, ev)
		}
	}
	return kept
}
