package report

import (
	"strings"
	"time"
)

type Kind string

const (
	KindBug        Kind = "bug"
	KindSuggestion Kind = "suggestion"
)

// App identifies the submitting application.
type App struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
	Build   string `json:"build,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// Logs carries an optional log artifact, base64 encoded by the client.
type Logs struct {
	FileName      string `json:"fileName,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	Encoding      string `json:"encoding,omitempty"`
	DataBase64    string `json:"dataBase64,omitempty"`
	Truncated     bool   `json:"truncated,omitempty"`
	OriginalBytes int64  `json:"originalBytes,omitempty"`
}

// Report is the canonical in-memory shape of one submission. It is built
// once by ParseReport from untrusted JSON and not mutated afterwards.
type Report struct {
	App         App                    `json:"app"`
	Kind        Kind                   `json:"kind"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Email       string                 `json:"email,omitempty"`
	Diagnostics map[string]interface{} `json:"diagnostics,omitempty"`
	Logs        *Logs                  `json:"logs,omitempty"`
}

// Envelope is the Report plus its server-assigned identity; serialized
// verbatim as the canonical intake artifact.
type Envelope struct {
	ReportID   string `json:"reportId"`
	ReceivedAt string `json:"receivedAt"`
	Report
}

// NewEnvelope stamps a report with its id and UTC receive time.
func NewEnvelope(r Report, reportID string, receivedAt time.Time) Envelope {
	return Envelope{
		ReportID:   reportID,
		ReceivedAt: receivedAt.UTC().Format(time.RFC3339),
		Report:     r,
	}
}

// FormatAppLine renders the one-line app summary used in issue bodies and
// chat notifications, e.g. "demo-app v1.2 build 34 (beta)".
func FormatAppLine(app App) string {
	parts := []string{app.ID}
	if app.Version != "" {
		parts = append(parts, "v"+app.Version)
	}
	if app.Build != "" {
		parts = append(parts, "build "+app.Build)
	}
	if app.Channel != "" {
		parts = append(parts, "("+app.Channel+")")
	}
	return strings.Join(parts, " ")
}
