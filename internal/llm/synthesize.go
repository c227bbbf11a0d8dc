package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

const synthesizeSystemPrompt = `You are an email assistant preparing a digest of a batch of already analyzed emails.
Group the emails into a small number of meaningful categories and summarize the upcoming schedule.
Answer with a single JSON object:
{
  "categories": [{"name": "<category>", "email_ids": ["<id>", "..."]}],
  "calendar_summary": {
    "overview": "<one paragraph>",
    "events": [{"title": "", "type": "", "date": "YYYY-MM-DD", "time": "", "location": "", "email_id": "<id>"}]
  }
}
Every email id must appear in exactly one category. Write names and the overview in %s.`

type synthesisEmail struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	From     string `json:"from"`
	Summary  string `json:"summary"`
	Score    int    `json:"priority_score"`
	Urgency  string `json:"urgency_level"`
	HasEvent bool   `json:"has_events"`
}

// SynthesizeReport groups the ranked batch into categories. The returned
// category members carry IDs; callers fill in the remaining fields.
func (c *Client) SynthesizeReport(ctx context.Context, emails []models.AnalyzedEmail) (*models.BatchReport, error) {
	digest := make([]synthesisEmail, len(emails))
	for i, e := range emails {
		digest[i] = synthesisEmail{
			ID:       e.ID,
			Subject:  e.Subject,
			From:     e.From,
			Summary:  e.Summary,
			Score:    e.Priority.Score,
			Urgency:  e.Priority.UrgencyLevel,
			HasEvent: e.CalendarEvents.HasEvents,
		}
	}
	payload, err := json.Marshal(digest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: fmt.Sprintf(synthesizeSystemPrompt, c.opts.OutputLanguage),
		UserPrompt:   "Emails:\n" + string(payload),
		JSON:         true,
		MaxTokens:    c.opts.MaxTokens * 2,
		Operation:    "synthesize_report",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize report: %w", err)
	}

	report, err := ParseReport(resp.Content)
	if err != nil {
		return nil, err
	}

	logger.Info("Batch report synthesized",
		zap.Int("emails", len(emails)),
		zap.Int("categories", len(report.Categories)),
	)

	return report, nil
}

type rawCategory struct {
	Name     string                 `json:"name"`
	EmailIDs []string               `json:"email_ids"`
	Emails   []models.CategoryEmail `json:"emails"`
}

type rawCalendarSummary struct {
	Overview string `json:"overview"`
	Events   []struct {
		rawEvent
		EmailID string `json:"email_id"`
	} `json:"events"`
}

type rawReport struct {
	Categories      json.RawMessage     `json:"categories"`
	CalendarSummary *rawCalendarSummary `json:"calendar_summary"`
}

// ParseReport decodes a synthesis reply. Categories may be a list of
// {name, email_ids|emails} objects or an object keyed by category name.
func ParseReport(content string) (*models.BatchReport, error) {
	var raw rawReport
	if err := decodeJSONObject(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	categories, err := parseCategories(raw.Categories)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report categories: %w", err)
	}

	report := &models.BatchReport{Categories: categories}

	if raw.CalendarSummary != nil {
		summary := &models.CalendarSummary{Overview: raw.CalendarSummary.Overview}
		for _, e := range raw.CalendarSummary.Events {
			ev := e.event()
			if ev.Title == "" {
				continue
			}
			ev.EmailID = e.EmailID
			summary.Events = append(summary.Events, ev)
		}
		report.CalendarSummary = summary
	}

	return report, nil
}

func parseCategories(data json.RawMessage) ([]models.Category, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var byName map[string]json.RawMessage
		if err := json.Unmarshal(data, &byName); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)

		categories := make([]models.Category, 0, len(names))
		for _, name := range names {
			members, err := parseMembers(byName[name])
			if err != nil {
				return nil, fmt.Errorf("category %q: %w", name, err)
			}
			categories = append(categories, models.Category{Name: name, Emails: members})
		}
		return categories, nil
	}

	var list []rawCategory
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	categories := make([]models.Category, 0, len(list))
	for _, rc := range list {
		members := rc.Emails
		for _, id := range rc.EmailIDs {
			members = append(members, models.CategoryEmail{ID: id})
		}
		categories = append(categories, models.Category{Name: rc.Name, Emails: members})
	}
	return categories, nil
}

// parseMembers accepts a list of ids or a list of member objects.
func parseMembers(data json.RawMessage) ([]models.CategoryEmail, error) {
	var members []models.CategoryEmail
	if err := json.Unmarshal(data, &members); err == nil {
		return members, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	members = make([]models.CategoryEmail, len(ids))
	for i, id := range ids {
		members[i] = models.CategoryEmail{ID: id}
	}
	return members, nil
}
