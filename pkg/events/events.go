package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventTypePrompt          EventType = "prompt"
	EventTypeResponse        EventType = "response"
	EventTypeEvicted         EventType = "evicted"
	EventTypeCompletionError EventType = "completion-error"
	EventTypePersona         EventType = "persona"
	EventTypeReset           EventType = "reset"
	EventTypeLoadError       EventType = "load-error"
	EventTypeSaveError       EventType = "save-error"
)

// Event describes a change of the conversation state.
type Event struct {
	Type    EventType `json:"type"`
	Persona string    `json:"persona,omitempty"`
	Role    string    `json:"role,omitempty"`
	Content string    `json:"content,omitempty"`
	// Evicted is the number of messages dropped to satisfy the token budget.
	Evicted int    `json:"evicted,omitempty"`
	Tokens  int    `json:"tokens,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Sink receives conversation events.
type Sink interface {
	Publish(e Event) error
}

type NullSink struct{}

var _ Sink = NullSink{}

func (NullSink) Publish(Event) error { return nil }

// PublishBlind publishes e and only logs failures.
func PublishBlind(s Sink, e Event) {
	if s == nil {
		return
	}
	if err := s.Publish(e); err != nil {
		log.Warn().Err(err).Str("event_type", string(e.Type)).Msg("Could not publish conversation event")
	}
}

const DefaultTopic = "conversation"

// WatermillSink sends JSON encoded events to a watermill publisher.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

var _ Sink = (*WatermillSink)(nil)

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) Publish(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "could not encode event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(e.Type))
	return w.publisher.Publish(w.topic, msg)
}

// NewEventFromMessage decodes an event published by WatermillSink.
func NewEventFromMessage(msg *message.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return Event{}, errors.Wrap(err, "could not decode event")
	}
	return e, nil
}
