package failure

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/pkg/errors"
)

// Endpoint related sync + instance
var (
	initOnce sync.Once
	ep       *Endpoint
)

type Endpoint struct {
	*log.Logger
}

func Init(logger *log.Logger) {
	initOnce.Do(func() {
		ep = &Endpoint{
			Logger: logger,
		}
	})
}

// Fail resolves err to a client-facing JSON error response.
// RequestFailures keep their status/message/details; raw json decoding
// errors become a 400; anything else is a generic 500.
func Fail(w http.ResponseWriter, err error) {
	switch e := errors.Cause(err).(type) {
	case *json.UnsupportedValueError, *json.UnsupportedTypeError, *json.SyntaxError, *json.UnmarshalTypeError:
		ep.Printf("request failed - json format error: %v", err.Error())
		SendError(w, http.StatusBadRequest, "JSON format error", nil)
	case *RequestFailure:
		ep.Println("request failed: ", err.Error())
		SendError(w, e.Code, e.Msg, e.Details)
	case RequestFailure:
		ep.Println("request failed: ", err.Error())
		SendError(w, e.Code, e.Msg, e.Details)
	default:
		ep.Println("request failed (internal server error): ", err.Error())
		SendError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), nil)
	}
}

// SendError writes the error envelope: {"error":{"code","message","details?"}}.
func SendError(w http.ResponseWriter, statusCode int, message string, details interface{}) {
	type errorBody struct {
		Code    string      `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}
	type errorMessage struct {
		Error errorBody `json:"error"`
	}
	em := errorMessage{
		Error: errorBody{
			Code:    CodeForStatus(statusCode),
			Message: message,
			Details: details,
		},
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(&em); err != nil {
		ep.Printf("error response not sent: %v", err.Error())
	}
}

// CodeForStatus maps an http status to the envelope's string code.
func CodeForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return "error"
	}
}
