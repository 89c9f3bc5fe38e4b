package alerting

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	texttemplate "text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/stackalert/stackalert/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// excerptLimit bounds the "what happened" excerpt length.
const excerptLimit = 400

// Message is a fully rendered outbound alert. Both renderings come from
// the same input; the plain-text body is the transport and accessibility
// fallback, not an afterthought.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// ComposeInput contains everything needed to render one alert.
type ComposeInput struct {
	Event domain.DetectedEvent
	// Live supplies the affected-components block and the latest incident
	// update excerpt. May be nil for recap-only composition in tests.
	Live *domain.LiveServiceStatus
	// Recap lists events deferred by the rate limiter since the last
	// successful send to this (user, service) pair, oldest first.
	Recap []domain.PendingEvent
	Now   time.Time
}

// Composer renders subject, HTML and text bodies for detected events.
type Composer struct {
	html map[string]*template.Template
	text map[string]*texttemplate.Template
}

// NewComposer creates a composer and parses all embedded templates.
func NewComposer() (*Composer, error) {
	htmlFuncs := template.FuncMap{
		"title":       titleCase,
		"statusLabel": statusLabel,
		"eventLabel":  eventLabel,
		"formatTime":  formatTime,
	}
	textFuncs := texttemplate.FuncMap{
		"title":       titleCase,
		"statusLabel": statusLabel,
		"eventLabel":  eventLabel,
		"formatTime":  formatTime,
	}

	c := &Composer{
		html: make(map[string]*template.Template),
		text: make(map[string]*texttemplate.Template),
	}

	for _, branch := range []string{"status", "incident"} {
		htmlName := fmt.Sprintf("templates/%s_html.tmpl", branch)
		content, err := templatesFS.ReadFile(htmlName)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", htmlName, err)
		}
		htmlTmpl, err := template.New(branch).Funcs(htmlFuncs).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", htmlName, err)
		}
		c.html[branch] = htmlTmpl

		textName := fmt.Sprintf("templates/%s_text.tmpl", branch)
		content, err = templatesFS.ReadFile(textName)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", textName, err)
		}
		textTmpl, err := texttemplate.New(branch).Funcs(textFuncs).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", textName, err)
		}
		c.text[branch] = textTmpl
	}

	return c, nil
}

type composeData struct {
	Event       domain.DetectedEvent
	Accent      string
	Components  []domain.Component
	Excerpt     string
	Recap       []recapItem
	GeneratedAt time.Time
}

type recapItem struct {
	Label  string
	Detail string
	At     time.Time
}

// Compose renders the message for one event plus any recap of deferred
// events. It has no side effects and uses only the passed-in now.
func (c *Composer) Compose(input ComposeInput) (*Message, error) {
	branch := "incident"
	if input.Event.IsStatusLevel() {
		branch = "status"
	}

	data := composeData{
		Event:       input.Event,
		Accent:      accentColor(input.Event),
		GeneratedAt: input.Now.UTC(),
	}

	if input.Live != nil {
		for _, comp := range input.Live.Components {
			if comp.Status != domain.StatusOperational && comp.Status != domain.StatusUnknown {
				data.Components = append(data.Components, comp)
			}
		}
		data.Excerpt = latestExcerpt(input.Event, input.Live)
	}

	for _, pending := range input.Recap {
		data.Recap = append(data.Recap, recapItem{
			Label:  eventLabel(pending.Event.Type),
			Detail: recapDetail(pending.Event),
			At:     pending.CreatedAt.UTC(),
		})
	}

	var htmlBuf bytes.Buffer
	if err := c.html[branch].Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	var textBuf bytes.Buffer
	if err := c.text[branch].Execute(&textBuf, data); err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}

	return &Message{
		Subject: subject(input.Event),
		HTML:    htmlBuf.String(),
		Text:    strings.TrimSpace(textBuf.String()),
	}, nil
}

func subject(event domain.DetectedEvent) string {
	if event.IsStatusLevel() {
		return fmt.Sprintf("[%s] %s", eventLabel(event.Type), event.ServiceName)
	}
	return fmt.Sprintf("[%s] %s: %s", eventLabel(event.Type), event.ServiceName, event.IncidentTitle)
}

// latestExcerpt extracts the latest update body of the incident the event
// refers to, stripped of markup and truncated.
func latestExcerpt(event domain.DetectedEvent, live *domain.LiveServiceStatus) string {
	if event.IncidentID == "" {
		return ""
	}
	for _, inc := range live.Incidents {
		if inc.ID == event.IncidentID {
			return truncate(stripMarkup(inc.LatestBody), excerptLimit)
		}
	}
	return ""
}

var markupPattern = regexp.MustCompile(`<[^>]*>`)
var whitespacePattern = regexp.MustCompile(`\s+`)

func stripMarkup(s string) string {
	s = markupPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

func recapDetail(event domain.DetectedEvent) string {
	if event.IsStatusLevel() {
		return fmt.Sprintf("%s → %s", statusLabel(string(event.OldStatus)), statusLabel(string(event.NewStatus)))
	}
	if event.Type == domain.EventIncidentEscalated || event.Type == domain.EventIncidentDeEscalated {
		return fmt.Sprintf("%s (%s → %s)", event.IncidentTitle, event.OldImpact, event.IncidentImpact)
	}
	return event.IncidentTitle
}

// accentColor picks the color accent from the event's severity.
func accentColor(event domain.DetectedEvent) string {
	switch event.Type {
	case domain.EventMajorOutage:
		return "#d93025"
	case domain.EventPartialOutage, domain.EventIncidentEscalated:
		return "#e8710a"
	case domain.EventDegraded, domain.EventNewIncident, domain.EventIncidentUpdate:
		return "#f4b400"
	case domain.EventRecovery, domain.EventMaintenanceCompleted, domain.EventIncidentResolved, domain.EventIncidentDeEscalated:
		return "#188038"
	case domain.EventMaintenance:
		return "#1a73e8"
	}
	return "#5f6368"
}

// Template functions

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func statusLabel(s string) string {
	return titleCase(strings.ReplaceAll(s, "_", " "))
}

func eventLabel(t domain.EventType) string {
	switch t {
	case domain.EventDegraded:
		return "Degraded Performance"
	case domain.EventPartialOutage:
		return "Partial Outage"
	case domain.EventMajorOutage:
		return "Major Outage"
	case domain.EventMaintenance:
		return "Maintenance"
	case domain.EventRecovery:
		return "Recovered"
	case domain.EventMaintenanceCompleted:
		return "Maintenance Completed"
	case domain.EventNewIncident:
		return "New Incident"
	case domain.EventIncidentUpdate:
		return "Incident Update"
	case domain.EventIncidentResolved:
		return "Incident Resolved"
	case domain.EventIncidentEscalated:
		return "Incident Escalated"
	case domain.EventIncidentDeEscalated:
		return "Incident De-escalated"
	}
	return "Status Change"
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}
