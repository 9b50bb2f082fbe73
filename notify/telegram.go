// Package notify relays created-issue events to Telegram chats. The relay
// is strictly best-effort: the intake pipeline's success contract never
// depends on it.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/michaldziwisz/sygnalista/gh"
	"github.com/michaldziwisz/sygnalista/report"
)

// Event describes one created issue for fan-out.
type Event struct {
	AppRepo    gh.Repo
	ReportID   string
	ReceivedAt string
	Report     report.Report
	Issue      gh.Issue
}

// Telegram sends one message per configured chat via the Bot API.
type Telegram struct {
	token   string
	chatIDs []string
	baseURL string
	client  *http.Client
	log     *log.Logger
}

var chatListSep = regexp.MustCompile(`[,\s]+`)

// SplitChatIDs parses the comma/whitespace-delimited destination list.
func SplitChatIDs(raw string) []string {
	var out []string
	for _, id := range chatListSep.Split(raw, -1) {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// NewTelegram builds the sink. With an empty token or chat list the sink
// is a configured no-op.
func NewTelegram(token, chatIDsRaw string, logger *log.Logger) *Telegram {
	return &Telegram{
		token:   token,
		chatIDs: SplitChatIDs(chatIDsRaw),
		baseURL: "https://api.telegram.org",
		client:  http.DefaultClient,
		log:     logger,
	}
}

// WithBaseURL redirects Bot API traffic; used by tests.
func (t *Telegram) WithBaseURL(base string) *Telegram {
	t.baseURL = strings.TrimSuffix(base, "/")
	return t
}

// Notify sends the event text to every configured chat. The text is
// precomputed once; a failing destination does not cancel the remaining
// sends. The combined error is for the caller's log only.
func (t *Telegram) Notify(ev Event) error {
	if t.token == "" || len(t.chatIDs) == 0 {
		return nil
	}
	text := FormatIssueText(ev)

	var failed []string
	for _, chatID := range t.chatIDs {
		if err := t.sendMessage(chatID, text); err != nil {
			if t.log != nil {
				t.log.Printf("telegram send to chat %v failed: %v", chatID, err)
			}
			failed = append(failed, chatID)
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("telegram delivery failed for chats: %v", strings.Join(failed, ", "))
	}
	return nil
}

// FormatIssueText renders the fixed notification message.
func FormatIssueText(ev Event) string {
	kind := "BUG"
	if ev.Report.Kind == report.KindSuggestion {
		kind = "SUGGESTION"
	}
	return strings.Join([]string{
		fmt.Sprintf("Sygnalista: new report (%s)", kind),
		"App: " + report.FormatAppLine(ev.Report.App),
		"Repo: " + ev.AppRepo.String(),
		fmt.Sprintf("Issue: #%d %s", ev.Issue.Number, ev.Report.Title),
		ev.Issue.HTMLURL,
		"Report ID: " + ev.ReportID,
		"Received: " + ev.ReceivedAt,
	}, "\n")
}

func (t *Telegram) sendMessage(chatID, text string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return errors.Wrap(err, "encode sendMessage payload")
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	resp, err := t.client.Post(url, "application/json; charset=utf-8", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "post sendMessage")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return errors.Errorf("telegram sendMessage failed: %d %s: %s",
		resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(body)))
}
