package failure

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type RequestFailure struct {
	err     error       // developer level error for logging
	Code    int         // http status
	Msg     string      // public facing message to send
	Details interface{} // optional structured details for the envelope
}

func New(err error, statusCode int, userMsg string) *RequestFailure {
	if userMsg == "" {
		userMsg = http.StatusText(statusCode)
	}
	return &RequestFailure{
		err:  err,
		Code: statusCode,
		Msg:  userMsg,
	}
}

// NewWithDetails is New plus structured details echoed back to the caller.
func NewWithDetails(err error, statusCode int, userMsg string, details interface{}) *RequestFailure {
	rf := New(err, statusCode, userMsg)
	rf.Details = details
	return rf
}

func (rf RequestFailure) Error() string {
	return fmt.Sprintf("%v - %v", http.StatusText(rf.Code), rf.Msg)
}

func (rf RequestFailure) Err() error {
	return rf.err
}

// BadRequest is a 400 whose public message doubles as the logged error.
func BadRequest(msg string, details interface{}) *RequestFailure {
	return NewWithDetails(errors.New(msg), http.StatusBadRequest, msg, details)
}

// Unauthorized is a 401 with a public message.
func Unauthorized(msg string) *RequestFailure {
	return New(errors.New(msg), http.StatusUnauthorized, msg)
}

// Internal wraps a configuration or upstream error as a 500 whose public
// message is the error's own message. Credential values never appear in
// those messages, so surfacing them is safe.
func Internal(err error) *RequestFailure {
	return New(err, http.StatusInternalServerError, err.Error())
}
