package realtime

import (
	"encoding/json"

	"github.com/yanun0323/errors"
)

// Control events exchanged with the realtime gateway. Everything else on the
// wire is an application event fanned out to listeners.
const (
	wireEstablished = "amora:connection_established"
	wirePing        = "amora:ping"
	wirePong        = "amora:pong"
	wireSubscribe   = "amora:subscribe"
	wireUnsubscribe = "amora:unsubscribe"
	wireError       = "amora:error"
)

// envelope is the wire frame: an event name, an optional channel and an
// opaque payload.
type envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event, channel string, data any) ([]byte, error) {
	env := envelope{Event: event, Channel: channel}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s payload", event)
		}
		env.Data = raw
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s frame", event)
	}
	return payload, nil
}

func decodeFrame(payload []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return envelope{}, errors.Wrap(err, "decode frame")
	}
	if env.Event == "" {
		return envelope{}, errors.New("frame missing event name")
	}
	return env, nil
}

// decodeData parses an envelope payload into the map handed to listeners.
// Malformed payloads degrade to the raw text rather than dropping the event.
func decodeData(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return data
}
