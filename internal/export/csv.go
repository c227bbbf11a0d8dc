package export

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
)

const (
	sectionEmails     = "=== PRIORITY EMAILS ==="
	sectionEvents     = "=== CALENDAR EVENTS ==="
	sectionCategories = "=== CATEGORIES ==="
)

var (
	emailHeader    = []string{"Rank", "Email ID", "Subject", "From", "Priority Score", "Urgency Level", "Reasoning", "Summary", "Has Calendar Events"}
	eventHeader    = []string{"Title", "Type", "Date", "Time", "Location", "Description", "Meeting Link", "Attendees", "Source Email Subject", "Source Email From"}
	categoryHeader = []string{"Category", "Email ID", "Subject", "From", "Summary"}
)

// renderCSV writes up to three sections separated by a blank line. Readers
// must allow a variable number of fields per record.
func renderCSV(v view) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	records := [][]string{{sectionEmails}, emailHeader}
	for _, e := range v.Emails {
		records = append(records, []string{
			strconv.Itoa(e.Rank),
			e.ID,
			e.Subject,
			e.From,
			strconv.Itoa(e.Score),
			e.Urgency,
			e.Reasoning,
			e.Summary,
			yesNo(e.HasEvents),
		})
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}

	if len(v.Events) > 0 {
		buf.WriteString("\n")
		records = [][]string{{sectionEvents}, eventHeader}
		for _, ev := range v.Events {
			records = append(records, []string{
				ev.Title,
				ev.Type,
				ev.Date,
				ev.Time,
				ev.Location,
				ev.Description,
				ev.MeetingLink,
				strings.Join(ev.Attendees, "; "),
				ev.EmailSubject,
				ev.EmailFrom,
			})
		}
		if err := w.WriteAll(records); err != nil {
			return nil, err
		}
	}

	if len(v.Categories) > 0 {
		buf.WriteString("\n")
		records = [][]string{{sectionCategories}, categoryHeader}
		for _, c := range v.Categories {
			for _, m := range c.Emails {
				records = append(records, []string{c.Name, m.ID, m.Subject, m.From, m.Summary})
			}
		}
		if err := w.WriteAll(records); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
