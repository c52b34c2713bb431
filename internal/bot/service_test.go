package bot

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/linephoto/core/line/events"
	"github.com/m3rciful/linephoto/core/line/router"
	"github.com/m3rciful/linephoto/internal/session"
)

type harness struct {
	svc       *Service
	sessions  *memSessions
	finalizer *memFinalizer
	messenger *recordingMessenger
	user      string
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		sessions:  newMemSessions(),
		messenger: &recordingMessenger{},
		user:      "U" + gofakeit.LetterN(32),
	}
	h.finalizer = &memFinalizer{sessions: h.sessions}
	opts := Options{
		Sessions:       h.sessions,
		Finalizer:      h.finalizer,
		Images:         fakeImages{},
		Messenger:      h.messenger,
		Jobs:           inlineJobs{},
		OptimisticLock: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.svc = New(opts)
	return h
}

func (h *harness) send(t *testing.T, ev events.Event) error {
	t.Helper()
	ev.Type = events.TypeMessage
	ev.UserID = h.user
	ev.ReplyToken = "rt-" + gofakeit.LetterN(8)
	req := &router.Request{Event: ev, AccountID: "acc-1"}

	handlers := h.svc.Handlers()
	switch ev.Kind {
	case events.KindImage:
		return handlers.Image(context.Background(), req)
	case events.KindLocation:
		return handlers.Location(context.Background(), req)
	default:
		return handlers.Text(context.Background(), req)
	}
}

func image(id string) events.Event {
	return events.Event{Kind: events.KindImage, MessageID: id}
}

func location(lat, lon float64, address string) events.Event {
	return events.Event{Kind: events.KindLocation, Location: &events.Location{Latitude: lat, Longitude: lon, Address: address}}
}

func text(s string) events.Event {
	return events.Event{Kind: events.KindText, Text: s}
}

func (h *harness) active(t *testing.T) *session.Session {
	t.Helper()
	s, err := h.sessions.Active(context.Background(), h.user)
	require.NoError(t, err)
	return s
}

func TestFullFlowCreatesPost(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.send(t, image("m1")))
	assert.Equal(t, "位置情報を送信してください", headline(h.messenger.last()))
	require.NoError(t, h.send(t, location(35.0, 139.0, "Tokyo")))
	assert.Equal(t, "位置情報を受信しました", headline(h.messenger.last()))

	sessID := h.active(t).ID
	require.NoError(t, h.send(t, text("Nice view")))
	assert.Equal(t, "投稿が完了しました 🎉", headline(h.messenger.last()))

	require.Len(t, h.finalizer.posts, 1)
	p := h.finalizer.posts[0]
	assert.Equal(t, 35.0, p.Latitude)
	assert.Equal(t, 139.0, p.Longitude)
	assert.Equal(t, "Tokyo", p.Address.String)
	assert.Equal(t, "Nice view", p.Comment.String)
	assert.Equal(t, "https://storage.example/"+h.user+"/m1.jpg?sig", p.ImageURL)
	assert.Equal(t, session.StatusCompleted, h.sessions.get(sessID).Status)
	assert.Nil(t, h.active(t))
}

func TestSkipCommentStoresNull(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.send(t, image("m1")))
	require.NoError(t, h.send(t, location(35.0, 139.0, "")))
	require.NoError(t, h.send(t, text(session.SkipCommentKeyword)))

	require.Len(t, h.finalizer.posts, 1)
	assert.False(t, h.finalizer.posts[0].Comment.Valid)
	assert.False(t, h.finalizer.posts[0].Address.Valid)
}

func TestCancelFromEveryActiveState(t *testing.T) {
	steps := [][]events.Event{
		{},
		{image("m1")},
		{image("m1"), location(1, 2, "")},
	}
	for i, prefix := range steps {
		h := newHarness(t, nil)
		if len(prefix) == 0 {
			// photo_pending is reached when staging the first photo fails.
			h.svc.opts.Images = fakeImages{err: errBoom}
			_ = h.send(t, image("m0"))
			h.svc.opts.Images = fakeImages{}
			require.Equal(t, session.StatusPhotoPending, h.active(t).Status)
		}
		for _, ev := range prefix {
			require.NoError(t, h.send(t, ev))
		}
		id := h.active(t).ID

		require.NoError(t, h.send(t, text("キャンセル")), "step %d", i)
		assert.Equal(t, "投稿をキャンセルしました", headline(h.messenger.last()))
		assert.Equal(t, session.StatusCancelled, h.sessions.get(id).Status)
		assert.Nil(t, h.active(t))
	}
}

func TestCancelWithoutSession(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.send(t, text("cancel")))
	assert.Equal(t, textNothingToCancel, headline(h.messenger.last()))
}

func TestLocationBeforePhoto(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.send(t, location(35, 139, "Tokyo")))

	assert.Equal(t, textNeedPhoto, headline(h.messenger.last()))
	assert.Nil(t, h.active(t))
	assert.Empty(t, h.finalizer.posts)
}

func TestFinalizeFailureKeepsCommentPending(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.send(t, image("m1")))
	require.NoError(t, h.send(t, location(35, 139, "")))

	h.finalizer.err = errBoom
	assert.Error(t, h.send(t, text("first try")))
	assert.Equal(t, textSaveFailed, headline(h.messenger.last()))
	assert.Equal(t, session.StatusCommentPending, h.active(t).Status)

	h.finalizer.err = nil
	require.NoError(t, h.send(t, text("second try")))
	require.Len(t, h.finalizer.posts, 1)
	assert.Equal(t, "second try", h.finalizer.posts[0].Comment.String)
}

func TestSecondPhotoRestagesWhenEnabled(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Policy.RestagePhoto = true })
	require.NoError(t, h.send(t, image("m1")))
	require.NoError(t, h.send(t, image("m2")))

	s := h.active(t)
	assert.Equal(t, session.StatusGPSPending, s.Status)
	assert.Equal(t, h.user+"/m2.jpg", s.TempImagePath.String)
	assert.Equal(t, 1, h.sessions.nonTerminal(h.user))
}

func TestSecondPhotoRejectedByDefault(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.send(t, image("m1")))
	require.NoError(t, h.send(t, image("m2")))

	assert.Equal(t, textNotAcceptingPhotos, headline(h.messenger.last()))
	assert.Equal(t, h.user+"/m1.jpg", h.active(t).TempImagePath.String)
}

func TestPhotoAfterCompletionStartsFresh(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.send(t, image("m1")))
	require.NoError(t, h.send(t, location(1, 2, "")))
	require.NoError(t, h.send(t, text("done")))
	require.NoError(t, h.send(t, image("m2")))

	s := h.active(t)
	require.NotNil(t, s)
	assert.Equal(t, session.StatusGPSPending, s.Status)
	assert.Equal(t, 1, h.sessions.nonTerminal(h.user))
}

func TestCreateFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.sessions.createErr = errBoom

	assert.Error(t, h.send(t, image("m1")))
	assert.Equal(t, textCreateFailed, headline(h.messenger.last()))
	assert.Nil(t, h.active(t))
}

func TestUploadFailureLeavesPhotoPending(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Images = fakeImages{err: errBoom} })

	assert.Error(t, h.send(t, image("m1")))
	assert.Equal(t, textUploadFailed, headline(h.messenger.last()))
	assert.Equal(t, session.StatusPhotoPending, h.active(t).Status)
}

func TestStaleUpdateReportsFailure(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.send(t, image("m1")))

	h.sessions.bump = true
	err := h.send(t, location(1, 2, ""))
	assert.ErrorIs(t, err, session.ErrStale)
	assert.Equal(t, textUpdateFailed, headline(h.messenger.last()))
	assert.Equal(t, session.StatusGPSPending, h.active(t).Status)
}

func TestGuidanceTexts(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.send(t, text("hello")))
	assert.Equal(t, "写真投稿ガイド", headline(h.messenger.last()))

	require.NoError(t, h.send(t, image("m1")))
	require.NoError(t, h.send(t, text("where?")))
	assert.Equal(t, "位置情報を送信してください", headline(h.messenger.last()))

	require.NoError(t, h.send(t, location(1, 2, "")))
	require.NoError(t, h.send(t, location(3, 4, "")))
	assert.Equal(t, textNotAcceptingGPS, headline(h.messenger.last()))
}

func TestReplyFailureFallsBackToPush(t *testing.T) {
	h := newHarness(t, nil)
	h.messenger.replyErr = errBoom

	require.NoError(t, h.send(t, text("hello")))
	require.Len(t, h.messenger.pushes, 1)
	assert.Equal(t, "写真投稿ガイド", headline(h.messenger.pushes[0][0]))
}

func TestReplyFailureWithoutJobs(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Jobs = nil })
	h.messenger.replyErr = errBoom

	require.NoError(t, h.send(t, text("hello")))
	assert.Empty(t, h.messenger.pushes)
}

func TestHasQuickReply(t *testing.T) {
	assert.True(t, hasQuickReply([]messaging_api.MessageInterface{startGuide()}))
	assert.False(t, hasQuickReply([]messaging_api.MessageInterface{messaging_api.TextMessage{Text: "x"}}))
}

func TestExpiredSessionIsIgnored(t *testing.T) {
	t.Run("location asks for a photo", func(t *testing.T) {
		h := newHarness(t, nil)
		require.NoError(t, h.send(t, image("m1")))
		h.sessions.expire(h.user)
		require.Nil(t, h.active(t))

		require.NoError(t, h.send(t, location(35.0, 139.0, "Tokyo")))
		assert.Equal(t, textNeedPhoto, headline(h.messenger.last()))
		assert.Nil(t, h.active(t))
		assert.Empty(t, h.finalizer.posts)
	})

	t.Run("comment does not finalize", func(t *testing.T) {
		h := newHarness(t, nil)
		require.NoError(t, h.send(t, image("m1")))
		require.NoError(t, h.send(t, location(35.0, 139.0, "")))
		h.sessions.expire(h.user)

		require.NoError(t, h.send(t, text("late comment")))
		assert.Empty(t, h.finalizer.posts)
		assert.Nil(t, h.active(t))
	})

	t.Run("photo starts a fresh session", func(t *testing.T) {
		h := newHarness(t, nil)
		require.NoError(t, h.send(t, image("m1")))
		old := h.active(t).ID
		h.sessions.expire(h.user)

		require.NoError(t, h.send(t, image("m2")))
		fresh := h.active(t)
		require.NotNil(t, fresh)
		assert.NotEqual(t, old, fresh.ID)
		assert.Equal(t, session.StatusGPSPending, fresh.Status)
		assert.Equal(t, "https://storage.example/"+h.user+"/m2.jpg?sig", fresh.TempImageURL.String)
		assert.Equal(t, session.StatusCancelled, h.sessions.get(old).Status)
		assert.Equal(t, 1, h.sessions.nonTerminal(h.user))
	})
}
