package failure

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	Init(log.New(io.Discard, "", 0))
	m.Run()
}

type envelope struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestSendErrorEnvelopeShape(t *testing.T) {
	rec := httptest.NewRecorder()
	SendError(rec, http.StatusBadRequest, "nope", map[string]interface{}{"k": "v"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "bad_request", env.Error.Code)
	assert.Equal(t, "nope", env.Error.Message)
	assert.Equal(t, "v", env.Error.Details["k"])
}

func TestSendErrorOmitsEmptyDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	SendError(rec, http.StatusUnauthorized, "denied", nil)
	assert.NotContains(t, rec.Body.String(), "details")
}

func TestFailRequestFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, NewWithDetails(errors.New("internal detail"), http.StatusTooManyRequests, "slow down", map[string]interface{}{"limit": 6}))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "too_many_requests", env.Error.Code)
	assert.Equal(t, "slow down", env.Error.Message)
	assert.EqualValues(t, 6, env.Error.Details["limit"])
}

func TestFailWrappedRequestFailureKeepsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rf := Unauthorized("bad app token")
	Fail(rec, errors.Wrap(rf, "gate"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "unauthorized", env.Error.Code)
	assert.Equal(t, "bad app token", env.Error.Message)
}

func TestFailJSONErrorsBecomeBadRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	var dst struct{ N int }
	err := json.Unmarshal([]byte(`{"N": "notanumber"}`), &dst)
	require.Error(t, err)

	Fail(rec, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "JSON format error", env.Error.Message)
}

func TestFailUnknownErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "internal_error", env.Error.Code)
	// internals are not leaked by the default branch
	assert.NotContains(t, env.Error.Message, "boom")
}

func TestInternalSurfacesErrorMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, Internal(errors.New("create issue: 502 Bad Gateway")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "create issue: 502 Bad Gateway", env.Error.Message)
}

func TestCodeForStatus(t *testing.T) {
	assert.Equal(t, "bad_request", CodeForStatus(400))
	assert.Equal(t, "not_found", CodeForStatus(404))
	assert.Equal(t, "method_not_allowed", CodeForStatus(405))
	assert.Equal(t, "error", CodeForStatus(418))
}
