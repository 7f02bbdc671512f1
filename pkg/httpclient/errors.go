package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StatusError describes a non-2xx answer from a peer service.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// errorEnvelope matches the {"error":{"code","message"}} body written by
// httputil.WriteError.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError drains and closes a non-2xx response body and returns a
// *StatusError carrying the peer's code and message when the body uses the
// standard error envelope, or the raw body otherwise.
func ParseResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &StatusError{Status: resp.StatusCode, Message: fmt.Sprintf("read body: %v", err)}
	}

	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		return &StatusError{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
	}
	return &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
