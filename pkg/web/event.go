// Package web serves the dashboard: catalog API, websocket command/event channel,
// opt-in SSE observer feed and metrics.
package web

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tmaxmax/go-sse"

	"github.com/se302/webtest/pkg/runner"
)

// inbound commands.
const (
	CommandRunTests  = "run:tests"
	CommandStopTests = "stop:tests"
)

// EventCatalogUpdated is pushed to all clients when the catalog changes on disk.
const EventCatalogUpdated = "catalog:updated"

// Event is an outbound message, encoded as {"event": name, "data": payload}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// NewEvent creates an event with the given payload.
func NewEvent(name string, data any) Event {
	return Event{Name: name, Data: data}
}

// Terminal reports whether the event ends a run for the client receiving it.
func (e Event) Terminal() bool {
	switch e.Name {
	case runner.EventCompleted, runner.EventError, runner.EventStopped:
		return true
	default:
		return false
	}
}

// JSON returns the event envelope as JSON bytes.
func (e Event) JSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.Name, err)
	}
	return data, nil
}

// ToSSEMessage converts the event to an SSE message. the SSE event type is the
// event name and the data is the full JSON envelope.
func (e Event) ToSSEMessage() (*sse.Message, error) {
	typ, err := sse.NewType(e.Name)
	if err != nil {
		return nil, fmt.Errorf("sse type %q: %w", e.Name, err)
	}
	data, err := e.JSON()
	if err != nil {
		return nil, err
	}
	msg := &sse.Message{Type: typ}
	msg.AppendData(string(data))
	return msg, nil
}

// Command is an inbound message from a client. Data is decoded per command.
type Command struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ParseCommand decodes a client message envelope.
func ParseCommand(msg []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(msg, &c); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if c.Name == "" {
		return Command{}, errors.New("decode command: missing event name")
	}
	return c, nil
}
