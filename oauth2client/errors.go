package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// errTooManyRedirects is returned by CheckRedirect and surfaces as a RedirectError.
var errTooManyRedirects = errors.New("too many redirects")

// TransportError means no HTTP response was received: the connection could not be
// established, TLS failed, or the request timed out or was cancelled.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport error: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or network timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// AuthExchangeError means the token endpoint rejected the credentials or returned a body
// that is not a usable token.
type AuthExchangeError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthExchangeError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode == 0 {
		return "token exchange failed: " + msg
	}
	return fmt.Sprintf("token exchange failed (status %d): %s", e.StatusCode, msg)
}

func (e *AuthExchangeError) Unwrap() error { return e.Err }

// HTTPError carries the upstream status and the message extracted from the error body.
// Code is the API's own error code when the body provides one.
type HTTPError struct {
	StatusCode int
	Code       int
	Message    string
	Body       []byte
}

// ClientError is a 4xx response. A 401 only surfaces here when the retry with a fresh
// token was rejected as well.
type ClientError struct{ HTTPError }

func (e *ClientError) Error() string {
	return fmt.Sprintf("client error (status %d): %s", e.StatusCode, e.Message)
}

// ServerError is a 5xx response.
type ServerError struct{ HTTPError }

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (status %d): %s", e.StatusCode, e.Message)
}

// RedirectError means the redirect chain exceeded Limit or a 3xx could not be followed.
type RedirectError struct {
	URL        string
	Limit      int
	StatusCode int
}

func (e *RedirectError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("unfollowed redirect (status %d) for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("stopped after %d redirects for %s", e.Limit, e.URL)
}

// BodyError is a 2xx response whose body does not match its declared Content-Type, such
// as invalid JSON or malformed XML.
type BodyError struct {
	StatusCode  int
	ContentType string
	Err         error
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("unreadable response body (status %d, %s): %v", e.StatusCode, e.ContentType, e.Err)
}

func (e *BodyError) Unwrap() error { return e.Err }

// authRejectedError is a 401 on the first attempt. It never leaves the package.
type authRejectedError struct{ HTTPError }

func (e *authRejectedError) Error() string {
	return fmt.Sprintf("access token rejected (status %d): %s", e.StatusCode, e.Message)
}

// StatusCode returns the upstream HTTP status of a classified error, or 0 when the
// failure happened before a response was received.
func StatusCode(err error) int {
	var ce *ClientError
	var se *ServerError
	var ae *AuthExchangeError
	var re *RedirectError
	var be *BodyError
	switch {
	case errors.As(err, &ce):
		return ce.StatusCode
	case errors.As(err, &se):
		return se.StatusCode
	case errors.As(err, &ae):
		return ae.StatusCode
	case errors.As(err, &re):
		return re.StatusCode
	case errors.As(err, &be):
		return be.StatusCode
	}
	return 0
}

// classifyDoError maps an error returned by http.Client.Do.
func classifyDoError(op, rawURL string, limit int, err error) error {
	if errors.Is(err, errTooManyRedirects) {
		return &RedirectError{URL: rawURL, Limit: limit}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return &TransportError{Op: op, URL: rawURL, Err: err}
}

// classifyStatus turns a non-2xx response into its error kind.
func classifyStatus(resp *http.Response, body []byte) error {
	httpErr := newHTTPError(resp.StatusCode, body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &authRejectedError{httpErr}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ClientError{httpErr}
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return &ServerError{httpErr}
	}
	return &RedirectError{URL: resp.Request.URL.String(), StatusCode: resp.StatusCode}
}

func newHTTPError(status int, body []byte) HTTPError {
	code, msg := serverMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return HTTPError{StatusCode: status, Code: code, Message: msg, Body: body}
}

// serverMessage extracts the upstream explanation from an error body. HAPI errors look
// like {"code":205,"message":"..."}; OAuth errors use error / error_description.
func serverMessage(body []byte) (int, string) {
	trimmed := strings.TrimSpace(string(body))
	if !gjson.Valid(trimmed) {
		return 0, trimmed
	}
	res := gjson.GetMany(trimmed, "code", "message", "error_description", "error")
	code := 0
	if res[0].Type == gjson.Number {
		code = int(res[0].Int())
	}
	for _, r := range res[1:] {
		if r.Type == gjson.String && r.Str != "" {
			return code, r.Str
		}
	}
	return code, trimmed
}
