// Package events publishes client lifecycle events (new chat, chunks, availability checks,
// errors) on a watermill topic so that UI layers and other processes can follow a chat
// without wiring callbacks.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const DefaultTopic = "chatbot.lifecycle"

type Type string

const (
	TypeChatCreated          Type = "chat.created"
	TypeChatChunk            Type = "chat.chunk"
	TypeChatDone             Type = "chat.done"
	TypeChatError            Type = "chat.error"
	TypeAvailabilityChecking Type = "availability.checking"
	TypeAvailabilityDone     Type = "availability.done"
	TypeConfigLoaded         Type = "config.loaded"
	TypeIdentityChanged      Type = "identity.changed"
)

// Event is the JSON payload of every published message.
type Event struct {
	Type        Type      `json:"type"`
	ChatbotSlug string    `json:"chatbotSlug"`
	UserID      string    `json:"userId,omitempty"`
	Content     string    `json:"content,omitempty"`
	At          time.Time `json:"at"`
}

// Emitter publishes events for one tenant. A nil *Emitter is valid and publishes nothing.
type Emitter struct {
	pub    message.Publisher
	topic  string
	slug   string
	logger zerolog.Logger
}

func NewEmitter(pub message.Publisher, topic string, chatbotSlug string, logger zerolog.Logger) *Emitter {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Emitter{
		pub:    pub,
		topic:  topic,
		slug:   chatbotSlug,
		logger: logger.With().Str("component", "events").Str("topic", topic).Logger(),
	}
}

// Emit publishes one event. Failures are logged and otherwise ignored; chat operations never
// fail because an observer is unavailable.
func (e *Emitter) Emit(ctx context.Context, t Type, userID string, content string) {
	if e == nil || e.pub == nil {
		return
	}
	ev := Event{Type: t, ChatbotSlug: e.slug, UserID: userID, Content: content, At: time.Now().UTC()}
	if err := e.publish(ctx, ev); err != nil {
		e.logger.Warn().Err(err).Str("event", string(t)).Msg("could not publish lifecycle event")
	}
}

func (e *Emitter) publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(ev.Type))
	msg.Metadata.Set("chatbotSlug", ev.ChatbotSlug)
	msg.SetContext(ctx)
	return e.pub.Publish(e.topic, msg)
}

// Decode parses a published message back into an Event.
func Decode(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	return ev, nil
}
