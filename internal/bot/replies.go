package bot

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/m3rciful/linephoto/core/line/ui"
	"github.com/m3rciful/linephoto/internal/post"
	"github.com/m3rciful/linephoto/internal/session"
)

// OutcomeKind classifies how handling an event ended.
type OutcomeKind int

const (
	// OutcomeOK means the effect was applied.
	OutcomeOK OutcomeKind = iota
	// OutcomeGuided means only guidance was sent; nothing changed.
	OutcomeGuided
	OutcomeCreateFailed
	OutcomeUploadFailed
	OutcomeSaveFailed
	OutcomeUpdateFailed
)

// Failed reports whether the effect could not be applied.
func (k OutcomeKind) Failed() bool {
	return k >= OutcomeCreateFailed
}

// Outcome is the result of one handled event.
type Outcome struct {
	Kind   OutcomeKind
	Notice session.Notice
	// Post is set when a session was finalized.
	Post *post.Post
}

// Label is the outcome name used in logs and metrics.
func (o Outcome) Label(next session.State) string {
	switch {
	case o.Kind.Failed():
		return "fail"
	case o.Kind == OutcomeGuided:
		return "guided"
	case next.Phase == session.PhaseCompleted:
		return "completed"
	case next.Phase == session.PhaseCancelled:
		return "cancelled"
	}
	return "ok"
}

// Compose builds the reply for an outcome. next is the state after the
// event: the transition target on success, the unchanged state on failure.
func Compose(o Outcome, next session.State) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{compose(o, next)}
}

func compose(o Outcome, next session.State) messaging_api.MessageInterface {
	quick := quickFor(next)
	switch o.Kind {
	case OutcomeCreateFailed:
		return ui.Text(textCreateFailed, quickCameraRoll...)
	case OutcomeUploadFailed:
		return ui.Text(textUploadFailed, quick...)
	case OutcomeSaveFailed:
		return ui.Text(textSaveFailed, quick...)
	case OutcomeUpdateFailed:
		return ui.Text(textUpdateFailed, quick...)
	case OutcomeGuided:
		return guidance(o.Notice, quick)
	}

	switch next.Phase {
	case session.PhaseAwaitingLocation:
		return photoReceived()
	case session.PhaseAwaitingComment:
		return locationReceived()
	case session.PhaseCompleted:
		if o.Post != nil {
			return postCompleted(o.Post)
		}
	case session.PhaseCancelled:
		return postCancelled()
	}
	return startGuide()
}

func guidance(n session.Notice, quick []ui.QuickBtn) messaging_api.MessageInterface {
	switch n {
	case session.NoticeNotAcceptingPhotos:
		return ui.Text(textNotAcceptingPhotos, quick...)
	case session.NoticeNotAcceptingLocation:
		return ui.Text(textNotAcceptingGPS, quick...)
	case session.NoticeNeedPhoto:
		return ui.Text(textNeedPhoto, quickCameraRoll...)
	case session.NoticeNothingToCancel:
		return ui.Text(textNothingToCancel, quickCameraRoll...)
	case session.NoticeRequestLocation:
		return requestLocation()
	}
	return startGuide()
}
