package ui

import (
	"encoding/json"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuickReplyKeepsOrderAndKinds(t *testing.T) {
	qr := QuickReply(CameraBtn("📷 カメラ"), CameraRollBtn("🖼️ 写真選択"), LocationBtn("📍 位置情報"), MessageBtn("❌ キャンセル", "キャンセル"))
	require.NotNil(t, qr)
	require.Len(t, qr.Items, 4)

	assert.IsType(t, &messaging_api.CameraAction{}, qr.Items[0].Action)
	assert.IsType(t, &messaging_api.CameraRollAction{}, qr.Items[1].Action)
	assert.IsType(t, &messaging_api.LocationAction{}, qr.Items[2].Action)
	msg, ok := qr.Items[3].Action.(*messaging_api.MessageAction)
	require.True(t, ok)
	assert.Equal(t, "キャンセル", msg.Text)
}

func TestQuickReplyEmpty(t *testing.T) {
	assert.Nil(t, QuickReply())
	assert.Nil(t, Text("hello").QuickReply)
}

func TestMessageBtnDefaultsTextToLabel(t *testing.T) {
	action, ok := MessageBtn("yes", "").action().(*messaging_api.MessageAction)
	require.True(t, ok)
	assert.Equal(t, "yes", action.Text)
}

func TestFlexMarshalsBubble(t *testing.T) {
	msg := Flex("alt", Bubble(Hero("https://img"), Title("✅", "#1DB446"), Separator(), Caption("c")), CameraBtn("cam"))
	raw, err := json.Marshal(&messaging_api.ReplyMessageRequest{
		ReplyToken: "rt",
		Messages:   []messaging_api.MessageInterface{msg},
	})
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, `"type":"flex"`)
	assert.Contains(t, s, `"altText":"alt"`)
	assert.Contains(t, s, `"type":"bubble"`)
	assert.Contains(t, s, `"https://img"`)
	assert.Contains(t, s, `"quickReply"`)
}
