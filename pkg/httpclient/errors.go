package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/ViddeM/accounts/pkg/errors"
)

const maxErrorBody = 1 << 20

// downstreamError is the error shape providers respond with. Both a flat
// {"code","message"} body and one nested under "error" are accepted.
type downstreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Nested  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (d *downstreamError) fields() (code, message string, ok bool) {
	if d.Nested != nil && d.Nested.Message != "" {
		return d.Nested.Code, d.Nested.Message, true
	}
	if d.Message != "" {
		return d.Code, d.Message, true
	}
	return "", "", false
}

// ParseResponseError consumes the body of a non-2xx response and translates
// it into an AppError carrying the provider's code and message when the body
// is structured, or a plain error quoting the raw body when it is not. The
// body is always closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var parsed downstreamError
	if json.Unmarshal(body, &parsed) == nil {
		if code, message, ok := parsed.fields(); ok {
			return mapDownstreamError(resp.StatusCode, code, message, serviceName)
		}
	}
	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, string(body))
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	qualified := fmt.Sprintf("%s: %s", serviceName, message)

	switch status {
	case http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case http.StatusConflict:
		return apperrors.Conflict(qualified)
	case http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case http.StatusServiceUnavailable:
		return &apperrors.AppError{
			Code:    code,
			Message: qualified,
			Status:  http.StatusServiceUnavailable,
			Err:     apperrors.ErrServiceUnavail,
		}
	}
	if status >= 500 {
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, message)
	}
	return &apperrors.AppError{Code: code, Message: qualified, Status: status}
}
