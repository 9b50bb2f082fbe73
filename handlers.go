package main

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/michaldziwisz/sygnalista/failure"
	"github.com/michaldziwisz/sygnalista/gh"
	"github.com/michaldziwisz/sygnalista/notify"
	"github.com/michaldziwisz/sygnalista/ratelimit"
	"github.com/michaldziwisz/sygnalista/report"
)

// AppTokenHeader carries the per-app shared secret.
const AppTokenHeader = "x-sygnalista-app-token"

// Notifier is the created-issue fan-out; its error is logged, never
// returned to the caller.
type Notifier interface {
	Notify(ev notify.Event) error
}

// Intake bundles the orchestrator's collaborators. runTask decouples the
// notification from the response path; tests may swap it for an inline
// runner, and newID/now for fixed values.
type Intake struct {
	Cfg     *Config
	Limiter *ratelimit.Limiter
	GHS     *gh.Service
	Sink    Notifier
	Log     *log.Logger

	runTask func(func())
	newID   func() string
	now     func() time.Time
}

func NewIntake(cfg *Config, limiter *ratelimit.Limiter, ghs *gh.Service, sink Notifier, logger *log.Logger) *Intake {
	return &Intake{
		Cfg:     cfg,
		Limiter: limiter,
		GHS:     ghs,
		Sink:    sink,
		Log:     logger,
		runTask: func(f func()) { go f() },
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
}

func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// PostReportHandler runs the ingestion pipeline: content-type check,
// validation, routing, per-app authorization, size policy, credential
// acquisition, the two artifact writes, issue creation, then the
// fire-and-forget notification. Each gate short-circuits with a typed
// error response. The rate gate runs earlier, as router middleware.
func (in *Intake) PostReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); !strings.Contains(strings.ToLower(ct), "application/json") {
			failure.Fail(w, failure.BadRequest("Expected content-type: application/json", nil))
			return
		}

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			failure.Fail(w, failure.BadRequest("Could not read request body", nil))
			return
		}
		rpt, verr := report.ParseReport(raw)
		if verr != nil {
			failure.Fail(w, failure.BadRequest(verr.Message, verr.Details))
			return
		}

		repoMap, err := in.Cfg.ParseAppRepoMap()
		if err != nil {
			failure.Fail(w, failure.Internal(err))
			return
		}
		repoRef, ok := repoMap[rpt.App.ID]
		if !ok {
			failure.Fail(w, failure.BadRequest("Unknown app.id: "+rpt.App.ID, nil))
			return
		}
		appRepo, err := gh.ParseRepoRef(repoRef)
		if err != nil {
			failure.Fail(w, failure.Internal(errors.Wrap(err, "appRepoMap entry for "+rpt.App.ID)))
			return
		}

		tokenMap, err := in.Cfg.ParseAppTokenMap()
		if err != nil {
			failure.Fail(w, failure.Internal(err))
			return
		}
		if want := tokenMap[rpt.App.ID]; want != "" {
			got := r.Header.Get(AppTokenHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				failure.Fail(w, failure.Unauthorized("Invalid "+AppTokenHeader+" for this app.id"))
				return
			}
		}

		if rpt.Logs != nil && len(rpt.Logs.DataBase64) > in.Cfg.MaxLogBase64Length {
			failure.Fail(w, failure.BadRequest("logs.dataBase64 is too large", map[string]interface{}{
				"maxLogBase64Length": in.Cfg.MaxLogBase64Length,
				"actual":             len(rpt.Logs.DataBase64),
			}))
			return
		}
		var logBlob []byte
		if rpt.Logs != nil && rpt.Logs.DataBase64 != "" {
			logBlob, err = base64.StdEncoding.DecodeString(rpt.Logs.DataBase64)
			if err != nil {
				failure.Fail(w, failure.BadRequest("Invalid logs.dataBase64 (expected base64)", nil))
				return
			}
		}

		intakeRepo, err := in.Cfg.IntakeTarget()
		if err != nil {
			failure.Fail(w, failure.Internal(err))
			return
		}

		client, err := in.GHS.NewClient(r.Context())
		if err != nil {
			// Covers both missing credentials and a failed token
			// exchange; either way it is not the client's fault.
			failure.Fail(w, failure.Internal(err))
			return
		}

		env := report.NewEnvelope(rpt, in.newID(), in.now())
		issue, rf := in.persistAndFile(r, client, env, logBlob, appRepo, intakeRepo)
		if rf != nil {
			failure.Fail(w, rf)
			return
		}

		ev := notify.Event{
			AppRepo:    appRepo,
			ReportID:   env.ReportID,
			ReceivedAt: env.ReceivedAt,
			Report:     rpt,
			Issue:      issue,
		}
		in.runTask(func() {
			if err := in.Sink.Notify(ev); err != nil {
				in.Log.Printf("issue notification failed (reportId=%v): %v", env.ReportID, err)
			}
		})

		sendJSON(w, http.StatusCreated, map[string]interface{}{
			"ok":       true,
			"reportId": env.ReportID,
			"issue":    issue,
		})
	}
}

// persistAndFile performs the sequenced remote writes: canonical JSON
// envelope, optional log blob, then the issue. The first failure aborts
// the remainder.
func (in *Intake) persistAndFile(r *http.Request, client *gh.Client, env report.Envelope, logBlob []byte, appRepo, intakeRepo gh.Repo) (gh.Issue, *failure.RequestFailure) {
	ctx := r.Context()

	baseDir := fmt.Sprintf("reports/%s/%s", env.App.ID, env.ReceivedAt[:7])
	ref := report.IntakeRef{
		Owner:          intakeRepo.Owner,
		Repo:           intakeRepo.Name,
		Branch:         in.Cfg.IntakeBranch,
		ReportJSONPath: fmt.Sprintf("%s/%s.json", baseDir, env.ReportID),
	}

	blob, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return gh.Issue{}, failure.Internal(errors.Wrap(err, "encode report envelope"))
	}
	if err := client.PutFile(ctx, gh.PutFileInput{
		Repo:    intakeRepo,
		Branch:  in.Cfg.IntakeBranch,
		Path:    ref.ReportJSONPath,
		Message: fmt.Sprintf("report(%s): %s", env.App.ID, env.ReportID),
		Content: append(blob, '\n'),
	}); err != nil {
		return gh.Issue{}, failure.Internal(err)
	}

	if logBlob != nil {
		safeName := report.SanitizeFileName(env.Logs.FileName)
		ref.LogPath = fmt.Sprintf("%s/%s--%s", baseDir, env.ReportID, safeName)
		if err := client.PutFile(ctx, gh.PutFileInput{
			Repo:    intakeRepo,
			Branch:  in.Cfg.IntakeBranch,
			Path:    ref.LogPath,
			Message: fmt.Sprintf("report(%s): %s log", env.App.ID, env.ReportID),
			Content: logBlob,
		}); err != nil {
			return gh.Issue{}, failure.Internal(err)
		}
	}

	issue, err := client.CreateIssue(ctx, gh.CreateIssueInput{
		Repo:   appRepo,
		Title:  env.Title,
		Body:   report.RenderIssueBody(env, ref),
		Labels: report.Labels(env.Kind),
	})
	if err != nil {
		return gh.Issue{}, failure.Internal(err)
	}
	return issue, nil
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
