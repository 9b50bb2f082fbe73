package report

import (
	"fmt"
	"net/url"
	"strings"
)

// IntakeRef locates the uploaded artifacts inside the intake repository.
type IntakeRef struct {
	Owner          string
	Repo           string
	Branch         string
	ReportJSONPath string
	LogPath        string // empty when no log artifact was uploaded
}

func (ref IntakeRef) blobURL(path string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s",
		ref.Owner, ref.Repo, url.PathEscape(ref.Branch), path)
}

// RenderIssueBody builds the human-readable issue body: report metadata,
// links to the intake artifacts, the free-text description and the
// pretty-printed diagnostics block.
func RenderIssueBody(env Envelope, ref IntakeRef) string {
	var b strings.Builder

	b.WriteString("## App report\n\n")
	fmt.Fprintf(&b, "- App: %s\n", FormatAppLine(env.App))
	fmt.Fprintf(&b, "- Kind: %s\n", env.Kind)
	if env.Email != "" {
		fmt.Fprintf(&b, "- Email (public): %s\n", env.Email)
	}
	fmt.Fprintf(&b, "- Report ID: %s\n", env.ReportID)
	fmt.Fprintf(&b, "- Received: %s\n", env.ReceivedAt)
	fmt.Fprintf(&b, "- Details (intake repo): %s\n", ref.blobURL(ref.ReportJSONPath))
	if ref.LogPath != "" {
		line := fmt.Sprintf("- Log (intake repo): %s", ref.blobURL(ref.LogPath))
		if env.Logs != nil && env.Logs.Truncated {
			line += " _(log truncated)_"
		}
		b.WriteString(line + "\n")
	} else {
		b.WriteString("- Log: none\n")
	}

	b.WriteString("\n## Description\n\n")
	b.WriteString(env.Description + "\n")

	b.WriteString("\n## Diagnostics\n\n")
	b.WriteString("```json\n")
	b.WriteString(PrettyDiagnostics(env.Diagnostics) + "\n")
	b.WriteString("```\n")

	return b.String()
}
