package mail

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"

	"github.com/chrisx599/ChatEmail/internal/storage/models"
)

var (
	htmlPolicy = bluemonday.UGCPolicy()
	blankLines = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)
	spaceRuns  = regexp.MustCompile(`[ \t\f\r]+`)
)

// ParseMessage reads one RFC 5322 message. fallbackID is used when the
// message carries no Message-Id. The first inline text/plain part is the
// body; an HTML-only message is converted to text.
func ParseMessage(r io.Reader, fallbackID string) (models.Email, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return models.Email{}, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	email := models.Email{ID: fallbackID}
	h := mr.Header

	if id, err := h.MessageID(); err == nil && id != "" {
		email.ID = id
	}
	if subject, err := h.Subject(); err == nil {
		email.Subject = subject
	} else {
		email.Subject = h.Get("Subject")
	}
	email.From = formatFrom(h)
	if date, err := h.Date(); err == nil {
		email.Date = date.UTC()
	}

	var plain, html string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return email, fmt.Errorf("failed to read message part: %w", err)
		}

		inline, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		ctype, _, _ := inline.ContentType()
		switch ctype {
		case "text/plain":
			if plain != "" {
				continue
			}
			b, err := io.ReadAll(part.Body)
			if err != nil {
				return email, fmt.Errorf("failed to read text part: %w", err)
			}
			plain = string(b)
		case "text/html":
			if html != "" {
				continue
			}
			b, err := io.ReadAll(part.Body)
			if err != nil {
				return email, fmt.Errorf("failed to read html part: %w", err)
			}
			html = string(b)
		}
	}

	if html != "" {
		email.HTMLBody = htmlPolicy.Sanitize(html)
	}
	switch {
	case strings.TrimSpace(plain) != "":
		email.Body = strings.TrimSpace(plain)
	case html != "":
		email.Body = HTMLToText(html)
	}

	if email.ID == "" {
		return email, errors.New("message has no id")
	}
	return email, nil
}

func formatFrom(h gomail.Header) string {
	addrs, err := h.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return strings.TrimSpace(h.Get("From"))
	}
	a := addrs[0]
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}

// HTMLToText extracts readable text from an HTML document, dropping
// scripts and styles and collapsing blank runs.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := spaceRuns.ReplaceAllString(doc.Text(), " ")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

// sinceFor returns the earliest date a fetch covers, or the zero time when
// days is not positive.
func sinceFor(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	y, m, d := now.AddDate(0, 0, -days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
