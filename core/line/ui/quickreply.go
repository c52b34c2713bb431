package ui

import "github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

// QuickBtn describes one quick reply button.
type QuickBtn struct {
	Label string
	// Text is sent as the user's message for message buttons.
	Text string
	Kind QuickKind
}

// QuickKind selects the quick reply action.
type QuickKind int

const (
	// QuickMessage sends Text as a message from the user.
	QuickMessage QuickKind = iota
	// QuickCamera opens the camera.
	QuickCamera
	// QuickCameraRoll opens the photo picker.
	QuickCameraRoll
	// QuickLocation opens the location picker.
	QuickLocation
)

// MessageBtn returns a button that posts text on behalf of the user.
func MessageBtn(label, text string) QuickBtn {
	return QuickBtn{Label: label, Text: text, Kind: QuickMessage}
}

// CameraBtn returns a camera button.
func CameraBtn(label string) QuickBtn { return QuickBtn{Label: label, Kind: QuickCamera} }

// CameraRollBtn returns a photo picker button.
func CameraRollBtn(label string) QuickBtn { return QuickBtn{Label: label, Kind: QuickCameraRoll} }

// LocationBtn returns a location picker button.
func LocationBtn(label string) QuickBtn { return QuickBtn{Label: label, Kind: QuickLocation} }

// QuickReply builds a quick reply bar, one item per button in order.
// It returns nil for no buttons so the field is omitted from the payload.
func QuickReply(buttons ...QuickBtn) *messaging_api.QuickReply {
	if len(buttons) == 0 {
		return nil
	}
	items := make([]messaging_api.QuickReplyItem, 0, len(buttons))
	for _, b := range buttons {
		items = append(items, messaging_api.QuickReplyItem{Action: b.action()})
	}
	return &messaging_api.QuickReply{Items: items}
}

func (b QuickBtn) action() messaging_api.ActionInterface {
	switch b.Kind {
	case QuickCamera:
		return &messaging_api.CameraAction{Label: b.Label}
	case QuickCameraRoll:
		return &messaging_api.CameraRollAction{Label: b.Label}
	case QuickLocation:
		return &messaging_api.LocationAction{Label: b.Label}
	default:
		text := b.Text
		if text == "" {
			text = b.Label
		}
		return &messaging_api.MessageAction{Label: b.Label, Text: text}
	}
}

// Text builds a text message with an optional quick reply bar.
func Text(text string, buttons ...QuickBtn) messaging_api.TextMessage {
	return messaging_api.TextMessage{Text: text, QuickReply: QuickReply(buttons...)}
}
