package export

import (
	"fmt"
	"sort"
	"strings"
)

func renderText(v view) []byte {
	var b strings.Builder
	rule := strings.Repeat("=", 80)
	thin := strings.Repeat("-", 80)

	b.WriteString(rule + "\n")
	b.WriteString("                    EMAIL BATCH SUMMARY REPORT\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Generated: %s\n", v.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Total Emails: %d\n", len(v.Emails))
	fmt.Fprintf(&b, "Calendar Events: %d\n", len(v.Events))
	fmt.Fprintf(&b, "Categories: %d\n\n", len(v.Categories))

	b.WriteString("📊 PRIORITY SORTED EMAILS\n")
	b.WriteString(thin + "\n")
	for _, e := range v.Emails {
		fmt.Fprintf(&b, "\n%s #%d [Priority: %d/10 - %s]\n", glyph(e.Score), e.Rank, e.Score, e.Urgency)
		fmt.Fprintf(&b, "Subject: %s\n", e.Subject)
		fmt.Fprintf(&b, "From: %s\n", e.From)
		fmt.Fprintf(&b, "Priority Reasoning: %s\n", e.Reasoning)
		if e.SuggestedAction != "" {
			fmt.Fprintf(&b, "Suggested Action: %s\n", e.SuggestedAction)
		}
		fmt.Fprintf(&b, "Summary: %s\n", e.Summary)
		if e.HasEvents {
			fmt.Fprintf(&b, "📅 Contains %d calendar event(s)\n", len(e.Events))
		}
		b.WriteString(thin + "\n")
	}

	if len(v.Events) > 0 {
		b.WriteString("\n\n📅 EXTRACTED CALENDAR EVENTS\n")
		b.WriteString(thin + "\n")
		writeEventsByDate(&b, v.Events)
	}

	if len(v.Categories) > 0 {
		b.WriteString("\n\n📋 CATEGORY REPORT\n")
		b.WriteString(thin + "\n")
		for i, c := range v.Categories {
			fmt.Fprintf(&b, "\n📁 %d. %s (%d emails)\n", i+1, c.Name, len(c.Emails))
			b.WriteString(strings.Repeat("=", 60) + "\n")
			if len(c.Emails) == 0 {
				b.WriteString("   📭 No emails in this category.\n")
			}
			for j, m := range c.Emails {
				fmt.Fprintf(&b, "\n   📧 %d. %s\n", j+1, m.Subject)
				fmt.Fprintf(&b, "      From: %s\n", m.From)
				fmt.Fprintf(&b, "      ID: %s\n", m.ID)
				fmt.Fprintf(&b, "      Summary: %s\n", m.Summary)
				if j < len(c.Emails)-1 {
					b.WriteString("      " + strings.Repeat(".", 50) + "\n")
				}
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n" + rule + "\n")
	b.WriteString("                    END OF REPORT\n")
	b.WriteString(rule + "\n")
	return []byte(b.String())
}

// writeEventsByDate groups events under their date, dates ascending and
// events in their original order within a date.
func writeEventsByDate(b *strings.Builder, events []eventView) {
	byDate := make(map[string][]eventView)
	var dates []string
	for _, ev := range events {
		date := ev.Date
		if date == "" {
			date = unknownDate
		}
		if _, ok := byDate[date]; !ok {
			dates = append(dates, date)
		}
		byDate[date] = append(byDate[date], ev)
	}
	sort.Strings(dates)

	for _, date := range dates {
		group := byDate[date]
		fmt.Fprintf(b, "\n📅 %s\n", date)
		b.WriteString(strings.Repeat("~", 40) + "\n")
		for i, ev := range group {
			fmt.Fprintf(b, "\n%s %s\n", eventIcon(ev.Type), ev.Title)
			fmt.Fprintf(b, "   Type: %s\n", ev.Type)
			fmt.Fprintf(b, "   Time: %s\n", ev.Time)
			if ev.Location != "" {
				fmt.Fprintf(b, "   Location: %s\n", ev.Location)
			}
			if ev.Description != "" {
				fmt.Fprintf(b, "   Description: %s\n", ev.Description)
			}
			if ev.MeetingLink != "" {
				fmt.Fprintf(b, "   Meeting Link: %s\n", ev.MeetingLink)
			}
			if len(ev.Attendees) > 0 {
				fmt.Fprintf(b, "   Attendees: %s\n", strings.Join(ev.Attendees, ", "))
			}
			fmt.Fprintf(b, "   Source: %s (from %s)\n", ev.EmailSubject, ev.EmailFrom)
			if i < len(group)-1 {
				b.WriteString("   " + strings.Repeat(".", 35) + "\n")
			}
		}
		b.WriteString(strings.Repeat("~", 40) + "\n")
	}
}
