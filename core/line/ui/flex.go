// Package ui holds small builders for LINE message payloads: quick reply
// bars and the flex components the bot's cards are made of.
package ui

import "github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

// Flex wraps a bubble into a flex message with an optional quick reply bar.
func Flex(altText string, bubble *messaging_api.FlexBubble, buttons ...QuickBtn) messaging_api.FlexMessage {
	return messaging_api.FlexMessage{
		AltText:    altText,
		Contents:   bubble,
		QuickReply: QuickReply(buttons...),
	}
}

// Bubble builds a bubble whose body is a vertical box of the given components.
func Bubble(hero messaging_api.FlexComponentInterface, body ...messaging_api.FlexComponentInterface) *messaging_api.FlexBubble {
	return &messaging_api.FlexBubble{
		Hero: hero,
		Body: VBox("md", body...),
	}
}

// VBox stacks components vertically with the given spacing.
func VBox(spacing string, contents ...messaging_api.FlexComponentInterface) *messaging_api.FlexBox {
	return &messaging_api.FlexBox{
		Layout:   messaging_api.FlexBoxLAYOUT_VERTICAL,
		Spacing:  spacing,
		Contents: contents,
	}
}

// Section is a vertical box with a top margin, used to group a label and its value.
func Section(contents ...messaging_api.FlexComponentInterface) *messaging_api.FlexBox {
	box := VBox("sm", contents...)
	box.Margin = "lg"
	return box
}

// Title renders a large bold centered heading.
func Title(text, color string) *messaging_api.FlexText {
	return &messaging_api.FlexText{
		Text:   text,
		Size:   "xl",
		Weight: messaging_api.FlexTextWEIGHT_BOLD,
		Align:  messaging_api.FlexTextALIGN_CENTER,
		Color:  color,
		Wrap:   true,
	}
}

// Caption renders small grey wrapped text.
func Caption(text string) *messaging_api.FlexText {
	return &messaging_api.FlexText{
		Text:  text,
		Size:  "sm",
		Color: "#666666",
		Wrap:  true,
		Align: messaging_api.FlexTextALIGN_CENTER,
	}
}

// Label renders a bold medium-size line.
func Label(text string) *messaging_api.FlexText {
	return &messaging_api.FlexText{
		Text:   text,
		Size:   "md",
		Weight: messaging_api.FlexTextWEIGHT_BOLD,
		Wrap:   true,
	}
}

// Body renders regular wrapped text.
func Body(text string) *messaging_api.FlexText {
	return &messaging_api.FlexText{
		Text:  text,
		Size:  "sm",
		Color: "#333333",
		Wrap:  true,
	}
}

// Separator draws a horizontal rule.
func Separator() *messaging_api.FlexSeparator {
	return &messaging_api.FlexSeparator{Margin: "lg"}
}

// Hero renders a full-width cover image.
func Hero(url string) *messaging_api.FlexImage {
	return &messaging_api.FlexImage{
		Url:         url,
		Size:        "full",
		AspectRatio: "1:1",
		AspectMode:  messaging_api.FlexImageASPECT_MODE_COVER,
	}
}
