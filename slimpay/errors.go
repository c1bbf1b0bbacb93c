package slimpay

import (
	"errors"

	"github.com/swiftsoftwaregroup/swift-slimpay-client-go/oauth2client"
)

// ErrorInfo is a presentation-ready summary of a failed call.
type ErrorInfo struct {
	Kind     string `json:"kind"`
	HTTPCode int    `json:"http_code"`
	Code     int    `json:"slimpay_code"`
	Message  string `json:"slimpay_message"`
}

// Describe summarises err for display. Unclassified errors get Kind "internal".
func Describe(err error) ErrorInfo {
	var (
		transportErr *oauth2client.TransportError
		exchangeErr  *oauth2client.AuthExchangeError
		clientErr    *oauth2client.ClientError
		serverErr    *oauth2client.ServerError
		redirectErr  *oauth2client.RedirectError
		bodyErr      *oauth2client.BodyError
	)
	switch {
	case err == nil:
		return ErrorInfo{}
	case errors.As(err, &clientErr):
		return ErrorInfo{Kind: "client", HTTPCode: clientErr.StatusCode, Code: clientErr.Code, Message: clientErr.Message}
	case errors.As(err, &serverErr):
		return ErrorInfo{Kind: "server", HTTPCode: serverErr.StatusCode, Code: serverErr.Code, Message: serverErr.Message}
	case errors.As(err, &exchangeErr):
		return ErrorInfo{Kind: "auth", HTTPCode: exchangeErr.StatusCode, Message: exchangeErr.Message}
	case errors.As(err, &redirectErr):
		return ErrorInfo{Kind: "redirect", HTTPCode: redirectErr.StatusCode, Message: redirectErr.Error()}
	case errors.As(err, &bodyErr):
		return ErrorInfo{Kind: "response", HTTPCode: bodyErr.StatusCode, Message: bodyErr.Err.Error()}
	case errors.As(err, &transportErr):
		return ErrorInfo{Kind: "transport", Message: transportErr.Err.Error()}
	}
	return ErrorInfo{Kind: "internal", Message: err.Error()}
}
