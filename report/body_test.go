package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEnvelope() Envelope {
	return NewEnvelope(Report{
		App:         App{ID: "demo-app", Version: "1.2", Build: "34", Channel: "beta"},
		Kind:        KindBug,
		Title:       "Crash on launch",
		Description: "It crashed hard.",
		Email:       "user@example.com",
		Diagnostics: map[string]interface{}{"os": "linux"},
		Logs:        &Logs{FileName: "app.log.gz", Truncated: true, DataBase64: "aGk="},
	}, "rid-123", time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC))
}

func TestNewEnvelopeStampsIDAndUTCTime(t *testing.T) {
	env := sampleEnvelope()
	assert.Equal(t, "rid-123", env.ReportID)
	assert.Equal(t, "2026-08-29T10:30:00Z", env.ReceivedAt)
}

func TestFormatAppLine(t *testing.T) {
	assert.Equal(t, "demo-app v1.2 build 34 (beta)", FormatAppLine(sampleEnvelope().App))
	assert.Equal(t, "demo-app", FormatAppLine(App{ID: "demo-app"}))
}

func TestRenderIssueBodyWithLog(t *testing.T) {
	env := sampleEnvelope()
	ref := IntakeRef{
		Owner:          "acme",
		Repo:           "intake",
		Branch:         "main",
		ReportJSONPath: "reports/demo-app/2026-08/rid-123.json",
		LogPath:        "reports/demo-app/2026-08/rid-123--app.log.gz",
	}
	body := RenderIssueBody(env, ref)

	assert.Contains(t, body, "## App report")
	assert.Contains(t, body, "- App: demo-app v1.2 build 34 (beta)")
	assert.Contains(t, body, "- Kind: bug")
	assert.Contains(t, body, "- Email (public): user@example.com")
	assert.Contains(t, body, "- Report ID: rid-123")
	assert.Contains(t, body, "- Received: 2026-08-29T10:30:00Z")
	assert.Contains(t, body, "https://github.com/acme/intake/blob/main/reports/demo-app/2026-08/rid-123.json")
	assert.Contains(t, body, "https://github.com/acme/intake/blob/main/reports/demo-app/2026-08/rid-123--app.log.gz")
	assert.Contains(t, body, "_(log truncated)_")
	assert.Contains(t, body, "## Description\n\nIt crashed hard.")
	assert.Contains(t, body, "```json")
	assert.Contains(t, body, "\"os\": \"linux\"")
	assert.NotContains(t, body, "- Log: none")
}

func TestRenderIssueBodyWithoutLogOrExtras(t *testing.T) {
	env := NewEnvelope(Report{
		App:         App{ID: "demo-app"},
		Kind:        KindSuggestion,
		Title:       "Idea",
		Description: "Make it better.",
	}, "rid-9", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	ref := IntakeRef{
		Owner:          "acme",
		Repo:           "intake",
		Branch:         "main",
		ReportJSONPath: "reports/demo-app/2026-01/rid-9.json",
	}
	body := RenderIssueBody(env, ref)

	assert.Contains(t, body, "- Log: none")
	assert.NotContains(t, body, "Email")
	assert.NotContains(t, body, "truncated")
	assert.Contains(t, body, "```json\n{}\n```")
}

func TestRenderIssueBodyEscapesBranchInURL(t *testing.T) {
	env := sampleEnvelope()
	ref := IntakeRef{
		Owner:          "acme",
		Repo:           "intake",
		Branch:         "release/2026",
		ReportJSONPath: "reports/demo-app/2026-08/rid-123.json",
	}
	body := RenderIssueBody(env, ref)
	require.Contains(t, body, "blob/release%2F2026/")
}
