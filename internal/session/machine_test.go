package session

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	sess := &Session{ID: "s1"}
	photo := State{Phase: PhaseAwaitingPhoto, Session: sess}
	location := State{Phase: PhaseAwaitingLocation, Session: sess}
	comment := State{Phase: PhaseAwaitingComment, Session: sess}

	cases := []struct {
		name   string
		policy Policy
		from   State
		ev     Event
		phase  Phase
		effect EffectKind
		notice Notice
	}{
		{"idle photo starts", Policy{}, Idle, PhotoReceived(), PhaseAwaitingLocation, EffectStartSession, NoticeNone},
		{"idle location", Policy{}, Idle, LocationReceived(), PhaseIdle, EffectReply, NoticeNeedPhoto},
		{"idle cancel", Policy{}, Idle, TextReceived("キャンセル"), PhaseIdle, EffectReply, NoticeNothingToCancel},
		{"idle text", Policy{}, Idle, TextReceived("hello"), PhaseIdle, EffectReply, NoticeStartGuide},
		{"photo pending photo", Policy{}, photo, PhotoReceived(), PhaseAwaitingLocation, EffectStagePhoto, NoticeNone},
		{"photo pending location", Policy{}, photo, LocationReceived(), PhaseAwaitingPhoto, EffectReply, NoticeNotAcceptingLocation},
		{"photo pending text", Policy{}, photo, TextReceived("hi"), PhaseAwaitingPhoto, EffectReply, NoticeStartGuide},
		{"photo pending cancel", Policy{}, photo, TextReceived("Cancel please"), PhaseCancelled, EffectCancel, NoticeNone},
		{"gps pending photo", Policy{}, location, PhotoReceived(), PhaseAwaitingLocation, EffectReply, NoticeNotAcceptingPhotos},
		{"gps pending photo restage", Policy{RestagePhoto: true}, location, PhotoReceived(), PhaseAwaitingLocation, EffectStagePhoto, NoticeNone},
		{"gps pending location", Policy{}, location, LocationReceived(), PhaseAwaitingComment, EffectStageLocation, NoticeNone},
		{"gps pending text", Policy{}, location, TextReceived("where"), PhaseAwaitingLocation, EffectReply, NoticeRequestLocation},
		{"gps pending cancel", Policy{}, location, TextReceived("CANCEL"), PhaseCancelled, EffectCancel, NoticeNone},
		{"comment pending photo", Policy{}, comment, PhotoReceived(), PhaseAwaitingComment, EffectReply, NoticeNotAcceptingPhotos},
		{"comment pending location", Policy{}, comment, LocationReceived(), PhaseAwaitingComment, EffectReply, NoticeNotAcceptingLocation},
		{"comment pending text", Policy{}, comment, TextReceived("nice view"), PhaseCompleted, EffectFinalize, NoticeNone},
		{"comment pending cancel", Policy{}, comment, TextReceived("やっぱりキャンセル"), PhaseCancelled, EffectCancel, NoticeNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, eff := Transition(tc.policy, tc.from, tc.ev)
			assert.Equal(t, tc.phase, next.Phase)
			assert.Equal(t, tc.effect, eff.Kind)
			assert.Equal(t, tc.notice, eff.Notice)
			if tc.from.Session != nil && next.Phase != PhaseIdle {
				assert.Same(t, tc.from.Session, next.Session)
			}
		})
	}
}

func TestTransitionComment(t *testing.T) {
	st := State{Phase: PhaseAwaitingComment, Session: &Session{ID: "s1"}}

	_, eff := Transition(Policy{}, st, TextReceived("sunset"))
	assert.Equal(t, sql.NullString{String: "sunset", Valid: true}, eff.Comment)

	_, eff = Transition(Policy{}, st, TextReceived(SkipCommentKeyword))
	assert.False(t, eff.Comment.Valid)

	// Only the exact quick reply text skips; anything else is the comment.
	_, eff = Transition(Policy{}, st, TextReceived(" "+SkipCommentKeyword))
	assert.Equal(t, sql.NullString{String: " " + SkipCommentKeyword, Valid: true}, eff.Comment)
}

func TestTransitionTerminalTreatedAsIdle(t *testing.T) {
	done := State{Phase: PhaseCompleted, Session: &Session{ID: "old"}}
	next, eff := Transition(Policy{}, done, PhotoReceived())
	assert.Equal(t, EffectStartSession, eff.Kind)
	assert.Nil(t, next.Session)
}

func TestIsCancel(t *testing.T) {
	for _, s := range []string{"キャンセル", "cancel", "CANCEL", "please Cancel it", "投稿をキャンセルします"} {
		assert.True(t, IsCancel(s), s)
	}
	for _, s := range []string{"", "コメントなし", "cancle", "きゃんせる"} {
		assert.False(t, IsCancel(s), s)
	}
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, Idle, StateOf(nil))
	assert.Equal(t, PhaseAwaitingPhoto, StateOf(&Session{Status: StatusPhotoPending}).Phase)
	assert.Equal(t, PhaseAwaitingLocation, StateOf(&Session{Status: StatusGPSPending}).Phase)
	assert.Equal(t, PhaseAwaitingComment, StateOf(&Session{Status: StatusCommentPending}).Phase)
	assert.Equal(t, PhaseIdle, StateOf(&Session{Status: StatusCompleted}).Phase)
	assert.Equal(t, "awaiting_location", PhaseAwaitingLocation.String())
	assert.Equal(t, "finalize", EffectFinalize.String())
}
