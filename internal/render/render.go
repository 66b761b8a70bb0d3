// Package render produces the HTML document for a parsed vehicle report.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"

	"car-report/internal/reportparse"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFS embed.FS

const placeholder = "—"

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"dash":   orPlaceholder,
	"status": statusClass,
	"date":   func(t time.Time) string { return t.Format("2006-01-02 15:04") },
}).ParseFS(templateFS, "templates/*.html"))

// Branding is the per-deployment decoration of a report.
type Branding struct {
	LogoURL     string
	GeneratedAt time.Time
}

type reportView struct {
	Branding
	Report   *reportparse.VehicleReport
	Summary  reportparse.Summary
	Degraded bool
	RawText  string
	Reason   string
}

// HTML renders the report body for rec. Absent sections are skipped and
// absent values shown as a dash. A degraded record renders a warning banner
// with the raw model output.
func HTML(rec reportparse.Record, branding Branding) (string, error) {
	if branding.GeneratedAt.IsZero() {
		branding.GeneratedAt = time.Now()
	}

	report, err := reportparse.Decode(rec)
	if err != nil {
		log.Warn().Err(err).Msg("Rendering report with partially decoded sections")
	}

	view := reportView{
		Branding: branding,
		Report:   report,
		Summary:  reportparse.SummaryOf(rec),
		Degraded: rec.Degraded(),
		RawText:  rec.RawText(),
		Reason:   rec.String(reportparse.KeyParseError),
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "report.html", view); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

// Document wraps a rendered body into a standalone HTML page.
func Document(body, title string) (string, error) {
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "document.html", struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body)})
	if err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ExportFileName is report_<VIN>_<YYYY-MM-DD>.html.
func ExportFileName(vin string, createdAt time.Time) string {
	vin = unsafeFileChars.ReplaceAllString(strings.TrimSpace(vin), "")
	if vin == "" {
		vin = reportparse.UnknownVIN
	}
	return fmt.Sprintf("report_%s_%s.html", vin, createdAt.Format("2006-01-02"))
}

func orPlaceholder(v any) string {
	var s string
	switch t := v.(type) {
	case reportparse.Text:
		s = t.String()
	case string:
		s = t
	case nil:
	default:
		s = fmt.Sprint(t)
	}
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}

var negativeAnswers = map[string]bool{
	"no": true, "none": true, "not found": true, "normal": true, "ok": true, "0": true,
	"нет": true, "не обнаружено": true, "норма": true, "в норме": true,
}

// statusClass maps a check result to a CSS class: "no accidents" is good.
func statusClass(v reportparse.Text) string {
	s := strings.ToLower(strings.TrimSpace(v.String()))
	switch {
	case s == "":
		return "status-unknown"
	case negativeAnswers[s]:
		return "status-ok"
	default:
		return "status-problem"
	}
}
