package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

const analyzeSystemPrompt = `You are an email assistant. Analyze one email and answer with a single JSON object:
{
  "priority": {
    "priority_score": <integer 1-10, 10 is most urgent>,
    "urgency_level": "High" | "Medium" | "Low",
    "reasoning": "<one or two sentences>",
    "suggested_action": "<what the reader should do next>"
  },
  "calendar_events": {
    "has_events": <true|false>,
    "events": [
      {"title": "", "type": "meeting|appointment|deadline|reminder", "date": "YYYY-MM-DD", "time": "HH:MM",
       "location": "", "description": "", "meeting_link": "", "attendees": [""]}
    ]
  },
  "summary": "<two or three sentence summary>"
}
Only include events that have a concrete date. Write reasoning, summary and suggested_action in %s.`

// AnalyzeEmail asks the reasoning service for the priority, calendar events
// and summary of one email.
func (c *Client) AnalyzeEmail(ctx context.Context, subject, body, from string) (*models.Analysis, error) {
	body = TruncateBody(body, c.opts.MaxBodyChars)

	userPrompt := fmt.Sprintf("From: %s\nSubject: %s\n\n%s", from, subject, body)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: fmt.Sprintf(analyzeSystemPrompt, c.opts.OutputLanguage),
		UserPrompt:   userPrompt,
		JSON:         true,
		Operation:    "analyze_email",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze email: %w", err)
	}

	analysis, err := ParseAnalysis(resp.Content)
	if err != nil {
		return nil, err
	}

	logger.Debug("Email analyzed",
		zap.String("subject", subject),
		zap.Int("priority_score", analysis.Priority.Score),
		zap.Int("events", len(analysis.CalendarEvents.Events)),
	)

	return analysis, nil
}

// rawAnalysis tolerates the shape variations the service produces: scores as
// strings, "event_type" instead of "type", attendees as one string.
type rawAnalysis struct {
	Priority struct {
		Score           flexInt `json:"priority_score"`
		UrgencyLevel    string  `json:"urgency_level"`
		Reasoning       string  `json:"reasoning"`
		SuggestedAction string  `json:"suggested_action"`
	} `json:"priority"`
	CalendarEvents struct {
		HasEvents bool       `json:"has_events"`
		Events    []rawEvent `json:"events"`
	} `json:"calendar_events"`
	Summary string `json:"summary"`
}

type rawEvent struct {
	Title       string      `json:"title"`
	Type        string      `json:"type"`
	EventType   string      `json:"event_type"`
	Date        string      `json:"date"`
	Time        string      `json:"time"`
	Location    string      `json:"location"`
	Description string      `json:"description"`
	MeetingLink string      `json:"meeting_link"`
	Attendees   flexStrings `json:"attendees"`
}

func (r rawEvent) event() models.CalendarEvent {
	eventType := r.Type
	if eventType == "" {
		eventType = r.EventType
	}
	return models.CalendarEvent{
		Title:       strings.TrimSpace(r.Title),
		EventType:   eventType,
		Date:        strings.TrimSpace(r.Date),
		Time:        r.Time,
		Location:    r.Location,
		Description: r.Description,
		MeetingLink: r.MeetingLink,
		Attendees:   []string(r.Attendees),
	}
}

// ParseAnalysis decodes a service reply into an Analysis. Replies without a
// usable priority score are rejected.
func ParseAnalysis(content string) (*models.Analysis, error) {
	var raw rawAnalysis
	if err := decodeJSONObject(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	if raw.Priority.Score == 0 {
		return nil, fmt.Errorf("failed to parse analysis: missing priority_score")
	}

	analysis := &models.Analysis{
		Priority: models.Priority{
			Score:           clampScore(int(raw.Priority.Score)),
			UrgencyLevel:    normalizeUrgency(raw.Priority.UrgencyLevel),
			Reasoning:       raw.Priority.Reasoning,
			SuggestedAction: raw.Priority.SuggestedAction,
		},
		Summary: raw.Summary,
	}

	for _, e := range raw.CalendarEvents.Events {
		ev := e.event()
		if ev.Title == "" {
			continue
		}
		analysis.CalendarEvents.Events = append(analysis.CalendarEvents.Events, ev)
	}
	analysis.CalendarEvents.HasEvents = len(analysis.CalendarEvents.Events) > 0

	return analysis, nil
}

func clampScore(s int) int {
	switch {
	case s < 1:
		return 1
	case s > 10:
		return 10
	}
	return s
}

func normalizeUrgency(level string) string {
	level = strings.TrimSpace(level)
	if level == "" {
		return "Medium"
	}
	r := []rune(strings.ToLower(level))
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
