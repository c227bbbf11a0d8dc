package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/chrisx599/ChatEmail/pkg/utils"
)

var errNoJSONObject = errors.New("no JSON object in response")

// decodeJSONObject unmarshals the first JSON object in content. Markdown code
// fences and surrounding prose are ignored.
func decodeJSONObject(content string, v any) error {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return errNoJSONObject
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(content[start : end+1])))
	dec.UseNumber()
	return dec.Decode(v)
}

// flexInt accepts 7, 7.0 and "7".
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*f = flexInt(n)
		return nil
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = flexInt(int(x + 0.5))
	return nil
}

// flexStrings accepts ["a", "b"] and "a, b".
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = nil
		return nil
	}
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*f = out
	return nil
}

// TruncateBody limits body to max characters, cutting at a sentence boundary
// when one is available.
func TruncateBody(body string, max int) string {
	if max <= 0 || len([]rune(body)) <= max {
		return body
	}

	doc, err := prose.NewDocument(body,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithTokenization(false),
	)
	if err != nil {
		return utils.TruncateRunes(body, max)
	}

	var b strings.Builder
	n := 0
	for _, sent := range doc.Sentences() {
		l := len([]rune(sent.Text))
		sep := 0
		if b.Len() > 0 {
			sep = 1
		}
		if n+sep+l > max {
			break
		}
		if sep == 1 {
			b.WriteByte(' ')
		}
		b.WriteString(sent.Text)
		n += sep + l
	}
	if b.Len() == 0 {
		return utils.TruncateRunes(body, max)
	}
	return b.String()
}
