// Package events turns LINE webhook deliveries into flat Event values the
// router can dispatch without touching the SDK's interface hierarchy.
package events

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/m3rciful/linephoto/core/logger"
)

// Kind is the message kind carried by a message event.
type Kind string

const (
	KindImage    Kind = "image"
	KindLocation Kind = "location"
	KindText     Kind = "text"
	// KindOther covers stickers, video, audio and files.
	KindOther Kind = "other"
)

// Source types as reported by LINE.
const (
	SourceUser    = "user"
	SourceGroup   = "group"
	SourceRoom    = "room"
	SourceUnknown = "unknown"
)

// TypeMessage is the only event type the bot acts on.
const TypeMessage = "message"

var (
	// ErrInvalidSignature means X-Line-Signature did not match the body.
	ErrInvalidSignature = errors.New("events: invalid signature")
	// ErrMalformed means the body could not be decoded as a webhook payload.
	ErrMalformed = errors.New("events: malformed payload")
)

// Location is the payload of a location message.
type Location struct {
	Latitude  float64
	Longitude float64
	Title     string
	Address   string
}

// Event is one normalized webhook event.
type Event struct {
	ID         string
	Index      int
	Type       string
	Timestamp  int64
	Redelivery bool
	ReplyToken string
	SourceType string
	UserID     string
	Kind       Kind
	MessageID  string
	Text       string
	Location   *Location
}

// RID returns the correlation id used in logs.
func (e Event) RID() string {
	return logger.BuildRID(e.ID, e.Timestamp, e.Index)
}

// IsMessage reports whether e is a message event.
func (e Event) IsMessage() bool { return e.Type == TypeMessage }

// Parse verifies the signature of body and normalizes its events.
func Parse(channelSecret, signature string, body []byte) ([]Event, error) {
	req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("events: build request: %w", err)
	}
	req.Header.Set("X-Line-Signature", signature)

	cb, err := webhook.ParseRequest(channelSecret, req)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Normalize(cb), nil
}

// Normalize flattens the SDK callback into Events, keeping delivery order.
func Normalize(cb *webhook.CallbackRequest) []Event {
	if cb == nil {
		return nil
	}
	out := make([]Event, 0, len(cb.Events))
	for i, raw := range cb.Events {
		out = append(out, normalizeOne(i, raw))
	}
	return out
}

func normalizeOne(index int, raw webhook.EventInterface) Event {
	ev := Event{Index: index, SourceType: SourceUnknown}
	switch e := raw.(type) {
	case webhook.MessageEvent:
		ev.Type = TypeMessage
		ev.ID = e.WebhookEventId
		ev.Timestamp = e.Timestamp
		ev.ReplyToken = e.ReplyToken
		if e.DeliveryContext != nil {
			ev.Redelivery = e.DeliveryContext.IsRedelivery
		}
		ev.SourceType, ev.UserID = source(e.Source)
		fillMessage(&ev, e.Message)
	case webhook.FollowEvent:
		ev.Type = "follow"
		ev.ID = e.WebhookEventId
		ev.Timestamp = e.Timestamp
		ev.SourceType, ev.UserID = source(e.Source)
	case webhook.UnfollowEvent:
		ev.Type = "unfollow"
		ev.ID = e.WebhookEventId
		ev.Timestamp = e.Timestamp
		ev.SourceType, ev.UserID = source(e.Source)
	case webhook.PostbackEvent:
		ev.Type = "postback"
		ev.ID = e.WebhookEventId
		ev.Timestamp = e.Timestamp
		ev.SourceType, ev.UserID = source(e.Source)
	default:
		ev.Type = typeName(raw)
	}
	return ev
}

func fillMessage(ev *Event, msg webhook.MessageContentInterface) {
	switch m := msg.(type) {
	case webhook.ImageMessageContent:
		ev.Kind = KindImage
		ev.MessageID = m.Id
	case webhook.LocationMessageContent:
		ev.Kind = KindLocation
		ev.MessageID = m.Id
		ev.Location = &Location{
			Latitude:  m.Latitude,
			Longitude: m.Longitude,
			Title:     m.Title,
			Address:   m.Address,
		}
	case webhook.TextMessageContent:
		ev.Kind = KindText
		ev.MessageID = m.Id
		ev.Text = m.Text
	default:
		ev.Kind = KindOther
	}
}

func source(src webhook.SourceInterface) (string, string) {
	switch s := src.(type) {
	case webhook.UserSource:
		return SourceUser, s.UserId
	case webhook.GroupSource:
		return SourceGroup, s.UserId
	case webhook.RoomSource:
		return SourceRoom, s.UserId
	}
	return SourceUnknown, ""
}

func typeName(raw webhook.EventInterface) string {
	if raw == nil {
		return "unknown"
	}
	name := fmt.Sprintf("%T", raw)
	name = name[strings.LastIndex(name, ".")+1:]
	name = strings.TrimPrefix(strings.TrimSuffix(name, "Event"), "*")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(name)
}
