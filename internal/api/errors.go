package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrCancelled reports a request evicted from the priority queue or
	// abandoned by its caller. A distinct outcome, not a failure.
	ErrCancelled = errors.New("api: request cancelled")
	// ErrSessionExpired reports a failed token refresh; stored credentials
	// have been purged and the UI should route to re-authentication.
	ErrSessionExpired = errors.New("api: session expired")
)

// Error is the normalized failure shape for network-layer failures and HTTP
// error responses. Status is zero for pure network failures.
type Error struct {
	Status  int
	Message string
	Body    json.RawMessage
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "api: " + e.Message
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// serverMessage digs a human-readable message out of an error payload.
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
