package bot

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/m3rciful/linephoto/core/line/ui"
	"github.com/m3rciful/linephoto/internal/post"
	"github.com/m3rciful/linephoto/internal/session"
)

const (
	textCreateFailed       = "投稿セッションの作成に失敗しました。もう一度やり直してください。"
	textUploadFailed       = "画像のアップロードに失敗しました。もう一度やり直してください。"
	textSaveFailed         = "投稿の保存に失敗しました。もう一度やり直してください。"
	textUpdateFailed       = "処理に失敗しました。もう一度やり直してください。"
	textNotAcceptingPhotos = "現在は写真を受け付けていません。"
	textNotAcceptingGPS    = "現在は位置情報を受け付けていません。"
	textNeedPhoto          = "投稿を開始するには写真を送信してください。"
	textNothingToCancel    = "現在進行中の投稿はありません。新しい投稿を開始したい場合は、下のボタンをタップしてください。"
)

const completedColor = "#1DB446"

var (
	quickCameraRoll = []ui.QuickBtn{
		ui.CameraBtn("📷 カメラ"),
		ui.CameraRollBtn("🖼️ 写真選択"),
	}
	quickLocationCancel = []ui.QuickBtn{
		ui.LocationBtn("📍 位置情報"),
		ui.MessageBtn("❌ キャンセル", "キャンセル"),
	}
	quickCommentSkipCancel = []ui.QuickBtn{
		ui.MessageBtn("💬 コメントなし", session.SkipCommentKeyword),
		ui.MessageBtn("❌ キャンセル", "キャンセル"),
	}
)

// quickFor picks the shortcut bar that fits what the user can do next.
func quickFor(st session.State) []ui.QuickBtn {
	switch st.Phase {
	case session.PhaseAwaitingLocation:
		return quickLocationCancel
	case session.PhaseAwaitingComment:
		return quickCommentSkipCancel
	}
	return quickCameraRoll
}

func photoReceived() messaging_api.FlexMessage {
	return ui.Flex("位置情報を送信してください", ui.Bubble(nil,
		ui.Title("✅\n写真を受信しました", ""),
		ui.Caption("次に位置情報を送信してください"),
	), quickLocationCancel...)
}

func locationReceived() messaging_api.FlexMessage {
	return ui.Flex("位置情報を受信しました", ui.Bubble(nil,
		ui.Title("✅\n位置情報を受信しました", ""),
		ui.Caption("最後にコメントを入力してください（任意）"),
	), quickCommentSkipCancel...)
}

func postCancelled() messaging_api.FlexMessage {
	return ui.Flex("投稿をキャンセルしました", ui.Bubble(nil,
		ui.Title("❌ 投稿をキャンセルしました", ""),
	), quickCameraRoll...)
}

func requestLocation() messaging_api.FlexMessage {
	return ui.Flex("位置情報を送信してください", ui.Bubble(nil,
		ui.Title("📍\n位置情報を送信", ""),
		ui.Caption("写真を撮影した場所の位置情報を送信してください"),
	), quickLocationCancel...)
}

func startGuide() messaging_api.FlexMessage {
	return ui.Flex("写真投稿ガイド", ui.Bubble(nil,
		ui.Title("📸\n写真投稿ガイド", ""),
		ui.Section(ui.Label("1️⃣ 写真を送信"), ui.Caption("カメラで撮影するか、写真を選択してください")),
		ui.Section(ui.Label("2️⃣ 位置情報を共有"), ui.Caption("写真を撮影した場所の位置情報を送信します")),
		ui.Section(ui.Label("3️⃣ コメントを入力"), ui.Caption("写真についてのコメントを入力できます")),
	), quickCameraRoll...)
}

func postCompleted(p *post.Post) messaging_api.FlexMessage {
	comment := "なし"
	if p.Comment.Valid {
		comment = p.Comment.String
	}
	body := []messaging_api.FlexComponentInterface{
		ui.Title("🎉 投稿が完了しました！", completedColor),
		ui.Separator(),
		ui.Label("📝 コメント"),
		ui.Body(comment),
	}
	if p.Address.Valid && p.Address.String != "" {
		body = append(body,
			ui.Separator(),
			ui.Label("📍 場所"),
			ui.Body(p.Address.String),
		)
	}
	return ui.Flex("投稿が完了しました 🎉", ui.Bubble(ui.Hero(p.ImageURL), body...), quickCameraRoll...)
}
