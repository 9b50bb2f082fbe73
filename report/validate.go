package report

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	maxTitleLen       = 180
	maxDescriptionLen = 50000
	maxEmailLen       = 254
	maxFileNameLen    = 80

	// FallbackLogName is used when a submitted log filename sanitizes
	// down to nothing.
	FallbackLogName = "app.log.gz"
)

var (
	appIDPattern    = regexp.MustCompile(`(?i)^[a-z0-9][a-z0-9._-]{0,63}$`)
	fileNamePattern = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	whitespace      = regexp.MustCompile(`\s+`)
)

// ValidationError describes why a submission was rejected. The message is
// safe to return to the caller.
type ValidationError struct {
	Message string
	Details map[string]interface{}
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) (Report, *ValidationError) {
	return Report{}, &ValidationError{Message: msg}
}

// ParseReport builds a Report from an untrusted JSON body. Structural
// problems (missing app.id, bad kind, missing title/description) are
// rejected; over-length title/description/email are clamped, not rejected.
// Optional fields of the wrong type are dropped rather than rejected.
func ParseReport(raw []byte) (Report, *ValidationError) {
	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return invalid("Invalid JSON")
	}
	body, ok := parsed.(map[string]interface{})
	if !ok {
		return invalid("Body must be a JSON object")
	}

	app, ok := body["app"].(map[string]interface{})
	if !ok {
		return invalid("Missing or invalid app")
	}
	appID, ok := app["id"].(string)
	if !ok || appID == "" {
		return invalid("Missing app.id")
	}
	if !appIDPattern.MatchString(appID) {
		return Report{}, &ValidationError{
			Message: "Invalid app.id format",
			Details: map[string]interface{}{"appId": appID},
		}
	}

	kind, _ := body["kind"].(string)
	if kind != string(KindBug) && kind != string(KindSuggestion) {
		return invalid("Invalid kind (expected 'bug' or 'suggestion')")
	}

	title, _ := body["title"].(string)
	if title == "" {
		return invalid("Missing title")
	}
	description, _ := body["description"].(string)
	if description == "" {
		return invalid("Missing description")
	}

	r := Report{
		App: App{
			ID:      appID,
			Version: optionalString(app["version"]),
			Build:   optionalString(app["build"]),
			Channel: optionalString(app["channel"]),
		},
		Kind:        Kind(kind),
		Title:       clampString(title, maxTitleLen),
		Description: clampString(description, maxDescriptionLen),
		Email:       clampString(optionalString(body["email"]), maxEmailLen),
	}

	if diag, ok := body["diagnostics"].(map[string]interface{}); ok {
		r.Diagnostics = diag
	}

	if rawLogs, present := body["logs"]; present {
		logsMap, ok := rawLogs.(map[string]interface{})
		if !ok {
			return invalid("Invalid logs (expected object)")
		}
		logs := &Logs{
			FileName:    optionalString(logsMap["fileName"]),
			ContentType: optionalString(logsMap["contentType"]),
			DataBase64:  whitespace.ReplaceAllString(optionalString(logsMap["dataBase64"]), ""),
		}
		if enc, ok := logsMap["encoding"].(string); ok && enc == "base64" {
			logs.Encoding = enc
		}
		if trunc, ok := logsMap["truncated"].(bool); ok {
			logs.Truncated = trunc
		}
		if ob, ok := logsMap["originalBytes"].(float64); ok {
			logs.OriginalBytes = int64(ob)
		}
		r.Logs = logs
	}

	return r, nil
}

func optionalString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func clampString(v string, maxLen int) string {
	if len(v) <= maxLen {
		return v
	}
	runes := []rune(v)
	if len(runes) <= maxLen {
		return v
	}
	return string(runes[:maxLen])
}

// SanitizeFileName reduces an untrusted filename to its final path segment
// with every character outside [A-Za-z0-9._-] replaced by an underscore,
// clamped to 80 characters. An empty result becomes FallbackLogName.
func SanitizeFileName(name string) string {
	cleaned := strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(cleaned, "/"); idx >= 0 {
		cleaned = cleaned[idx+1:]
	}
	cleaned = clampString(fileNamePattern.ReplaceAllString(cleaned, "_"), maxFileNameLen)
	if cleaned == "" {
		return FallbackLogName
	}
	return cleaned
}

// PrettyDiagnostics renders diagnostics as indented JSON for the issue
// body; a missing or unserializable map renders as "{}".
func PrettyDiagnostics(diag map[string]interface{}) string {
	if diag == nil {
		return "{}"
	}
	b, err := json.MarshalIndent(diag, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Labels returns the issue label set for a report kind.
func Labels(kind Kind) []string {
	switch kind {
	case KindBug:
		return []string{"bug", "from-app"}
	case KindSuggestion:
		return []string{"enhancement", "from-app"}
	default:
		return []string{"from-app"}
	}
}
