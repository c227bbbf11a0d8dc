package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(
	template.New("report.html.tmpl").
		Funcs(template.FuncMap{
			"badge": badgeClass,
			"join":  strings.Join,
		}).
		ParseFS(templateFS, "templates/report.html.tmpl"),
)

func renderHTML(v view) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
