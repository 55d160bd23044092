package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// StageEmailData is what every stage template can reference.
type StageEmailData struct {
	FirstName  string
	StageName  string
	SenderName string
}

// Greeting falls back to a neutral salutation when the name is unknown.
func (d StageEmailData) Greeting() string {
	if name := strings.TrimSpace(d.FirstName); name != "" {
		return "Hi " + name
	}
	return "Hello"
}

type stageTemplate struct {
	file    string
	subject string
}

var stageTemplates = map[string]stageTemplate{
	"invitation":     {file: "invitation.html", subject: subjectInvitation},
	"follow_up":      {file: "follow_up.html", subject: subjectFollowUp},
	"welcome":        {file: "welcome.html", subject: subjectWelcome},
	"listing_live":   {file: "listing_live.html", subject: subjectListingLive},
	"welcome_aboard": {file: "welcome_aboard.html", subject: subjectWelcomeAboard},
}

// TemplateNames lists the stage templates that can be rendered.
func TemplateNames() []string {
	names := make([]string, 0, len(stageTemplates))
	for name := range stageTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTemplate reports whether name is a known stage template.
func HasTemplate(name string) bool {
	_, ok := stageTemplates[name]
	return ok
}

// RenderStageEmail returns the subject and HTML body for a stage template.
func RenderStageEmail(name string, data StageEmailData) (string, string, error) {
	st, ok := stageTemplates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}
	body, err := renderEmailTemplate(st.file, data)
	if err != nil {
		return "", "", err
	}
	return st.subject, body, nil
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
