package source

import (
	"encoding/json"

	"github.com/chanvault/chanvault/archiver"
	"github.com/chanvault/chanvault/model"
)

const (
	EnvelopeTypeURLVerification = "url_verification"
	EnvelopeTypeEventCallback   = "event_callback"
)

// Envelope is the outer shape of a Slack Events API delivery. Only the
// fields the pipeline cares about are decoded.
type Envelope struct {
	Token     string          `json:"token"`
	Type      string          `json:"type"`
	Challenge string          `json:"challenge"`
	Event     json.RawMessage `json:"event"`
}

func (e *Envelope) IsURLVerification() bool {
	return e.Type == EnvelopeTypeURLVerification
}

type inboundFile struct {
	Name       string `json:"name"`
	URLPrivate string `json:"url_private"`
}

type inboundReaction struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type inboundMessageEvent struct {
	Type      string            `json:"type"`
	SubType   string            `json:"subtype"`
	Channel   string            `json:"channel"`
	User      string            `json:"user"`
	BotId     string            `json:"bot_id"`
	Text      string            `json:"text"`
	Ts        string            `json:"ts"`
	ThreadTs  string            `json:"thread_ts"`
	Files     []inboundFile     `json:"files"`
	Reactions []inboundReaction `json:"reactions"`
}

// DecodeEnvelope parses the raw webhook body. A body that is not valid JSON
// or misses the envelope type is a ValidationError, never a crash.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, &archiver.ValidationError{Field: "body", Reason: "is not valid JSON"}
	}
	if envelope.Type == "" {
		return nil, &archiver.ValidationError{Field: "type", Reason: "is missing"}
	}
	return &envelope, nil
}

// ParseInboundEvent is the push variant of the message source: it validates
// a single event_callback payload and yields zero or one RawMessage.
// Filtered non-content events return (nil, nil).
func ParseInboundEvent(payload []byte) (*model.RawMessage, error) {
	envelope, err := DecodeEnvelope(payload)
	if err != nil {
		return nil, err
	}
	if envelope.Type != EnvelopeTypeEventCallback {
		return nil, &archiver.ValidationError{Field: "type", Reason: "is not event_callback"}
	}
	return ParseMessageEvent(envelope.Event)
}

// ParseMessageEvent validates the inner message event and normalizes it.
func ParseMessageEvent(raw json.RawMessage) (*model.RawMessage, error) {
	if len(raw) == 0 {
		return nil, &archiver.ValidationError{Field: "event", Reason: "is missing"}
	}
	var event inboundMessageEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, &archiver.ValidationError{Field: "event", Reason: "is not valid JSON"}
	}

	if event.Type != "message" {
		// Other event families (reaction_added, member_joined_channel, ...)
		// are not archive content.
		return nil, nil
	}
	if !isContentSubType(event.SubType) {
		return nil, nil
	}
	if event.Channel == "" {
		return nil, &archiver.ValidationError{Field: "event.channel", Reason: "is missing"}
	}
	if event.Ts == "" {
		return nil, &archiver.ValidationError{Field: "event.ts", Reason: "is missing"}
	}
	author := event.User
	if author == "" {
		author = event.BotId
	}
	if author == "" {
		return nil, &archiver.ValidationError{Field: "event.user", Reason: "is missing"}
	}
	if event.Text == "" && len(event.Files) == 0 {
		return nil, &archiver.ValidationError{Field: "event.text", Reason: "is missing and no files attached"}
	}

	msg := &model.RawMessage{
		SourceChannelId: event.Channel,
		AuthorId:        author,
		Text:            event.Text,
		SentAt:          event.Ts,
	}
	if event.ThreadTs != "" && event.ThreadTs != event.Ts {
		msg.ThreadRootId = event.ThreadTs
	}
	for _, f := range event.Files {
		msg.Attachments = append(msg.Attachments, model.Attachment{Name: f.Name, Url: f.URLPrivate})
	}
	for _, r := range event.Reactions {
		msg.Reactions = append(msg.Reactions, model.Reaction{Label: r.Name, Count: r.Count})
	}
	return msg, nil
}
