package notify

import (
	"bytes"
	"errors"
	"sort"
	"text/template"
)

// DefaultTemplate renders the alert body.
const DefaultTemplate = `[Exchange Reconciliation]
Asset: {{.Asset}}
Findings: {{.Findings}}
{{- range .Checks}}
  {{.Name}}: {{.Count}}
{{- end}}
{{- if .ReportPath}}
Report: {{.ReportPath}}
{{- end}}
{{- if .RecommendedAction}}
Suggested: {{.RecommendedAction}}
{{- end}}`

// Template renders alert content.
type Template struct {
	tpl *template.Template
}

type checkCount struct {
	Name  string
	Count int
}

type templateData struct {
	AlertMessage
	Checks []checkCount
}

var defaultTemplate = template.Must(template.New("reconcile-alert").Parse(DefaultTemplate))

// NewTemplate parses an alert template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		return &Template{tpl: defaultTemplate}, nil
	}
	parsed, err := template.New("reconcile-alert").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies t, or the default template when t is nil, to msg. The
// report id and check time are left out so repeated drift renders the same.
func Render(t *Template, msg AlertMessage) (string, error) {
	tpl := defaultTemplate
	if t != nil {
		if t.tpl == nil {
			return "", errors.New("reconcile template: nil")
		}
		tpl = t.tpl
	}
	data := templateData{AlertMessage: msg}
	for name, count := range msg.ByCheck {
		if count > 0 {
			data.Checks = append(data.Checks, checkCount{Name: name, Count: count})
		}
	}
	sort.Slice(data.Checks, func(i, j int) bool { return data.Checks[i].Name < data.Checks[j].Name })

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
