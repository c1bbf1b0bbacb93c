package slimpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	log "github.com/sirupsen/logrus"
)

const maxNotificationSize = 1 << 20

// ErrNotJSON is returned when a notification does not declare a JSON body.
var ErrNotJSON = errors.New("content-type must be application/json")

// Notification is the decoded JSON object SlimPay posts to the notify URL.
type Notification map[string]interface{}

// Reference returns the notified resource's reference, when present.
func (n Notification) Reference() string {
	s, _ := n["reference"].(string)
	return s
}

// ReadNotification validates and decodes an incoming notification request.
func ReadNotification(r *http.Request) (Notification, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil, ErrNotJSON
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read notification: %w", err)
	}
	if len(body) > maxNotificationSize {
		return nil, fmt.Errorf("notification exceeds %d bytes", maxNotificationSize)
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil || n == nil {
		return nil, fmt.Errorf("failed to decode JSON object")
	}
	return n, nil
}

// NotificationHandler decodes notifications and passes them to fn. Malformed requests get
// 400, a failing fn 500, everything else 200.
func NotificationHandler(fn func(ctx context.Context, n Notification) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		n, err := ReadNotification(r)
		if err != nil {
			log.WithField("remote", r.RemoteAddr).Warnf("rejected notification: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := fn(r.Context(), n); err != nil {
			log.WithField("reference", n.Reference()).Errorf("notification handler failed: %v", err)
			http.Error(w, "notification not processed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}
