package query

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRemoteRequestFailed matches every failure returned by a Query.
	ErrRemoteRequestFailed = errors.New("remote request failed")
	// ErrNotFound indicates a single-row operation matched no row.
	ErrNotFound = errors.New("row not found")
	// ErrInvalidSpec indicates a Spec could not be turned into a Plan.
	ErrInvalidSpec = errors.New("invalid query spec")
)

// Error codes used when the store does not supply its own.
const (
	CodeInvalidSpec = "invalid_spec"
	CodeNotFound    = "not_found"
	CodeDecode      = "decode"
	CodeUnsupported = "unsupported"
	CodeTransport   = "transport"
)

// RequestError is the typed failure of a remote operation.
type RequestError struct {
	Op      string
	Table   string
	Code    string
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("query: %s %s: %s (%s)", e.Op, e.Table, msg, e.Code)
	}
	return fmt.Sprintf("query: %s %s: %s", e.Op, e.Table, msg)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Is makes every RequestError match ErrRemoteRequestFailed.
func (e *RequestError) Is(target error) bool {
	return target == ErrRemoteRequestFailed
}

// Status maps the failure to an HTTP status code. SQLSTATE codes from
// PostgreSQL are grouped by class.
func (e *RequestError) Status() int {
	switch e.Code {
	case CodeInvalidSpec, CodeUnsupported, CodeDecode:
		return http.StatusBadRequest
	case CodeNotFound, "42P01", "42703":
		return http.StatusNotFound
	case "42501":
		return http.StatusForbidden
	case "23505", "23503":
		return http.StatusConflict
	}
	if len(e.Code) == 5 && (e.Code[:2] == "22" || e.Code[:2] == "23") {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// Normalize converts err into a *RequestError for op on table. Existing
// RequestErrors keep their code and gain missing context.
func Normalize(op, table string, err error) *RequestError {
	if err == nil {
		return nil
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		out := *reqErr
		if out.Op == "" {
			out.Op = op
		}
		if out.Table == "" {
			out.Table = table
		}
		return &out
	}
	code := CodeTransport
	switch {
	case errors.Is(err, ErrInvalidSpec):
		code = CodeInvalidSpec
	case errors.Is(err, ErrNotFound):
		code = CodeNotFound
	}
	return &RequestError{Op: op, Table: table, Code: code, Err: err}
}
