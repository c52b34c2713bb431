package session

import (
	"database/sql"
	"strings"
)

// Phase tags the conversation state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingPhoto
	PhaseAwaitingLocation
	PhaseAwaitingComment
	PhaseCompleted
	PhaseCancelled
)

var phaseNames = [...]string{"idle", "awaiting_photo", "awaiting_location", "awaiting_comment", "completed", "cancelled"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// State is the conversation state of one user. Session is nil for PhaseIdle.
type State struct {
	Phase   Phase
	Session *Session
}

// Idle is the state of a user without an active session.
var Idle = State{Phase: PhaseIdle}

// StateOf maps an active session (or nil) to its State.
func StateOf(s *Session) State {
	if s == nil {
		return Idle
	}
	switch s.Status {
	case StatusPhotoPending:
		return State{Phase: PhaseAwaitingPhoto, Session: s}
	case StatusGPSPending:
		return State{Phase: PhaseAwaitingLocation, Session: s}
	case StatusCommentPending:
		return State{Phase: PhaseAwaitingComment, Session: s}
	}
	return Idle
}

// Active reports whether the state holds an in-progress session.
func (st State) Active() bool {
	switch st.Phase {
	case PhaseAwaitingPhoto, PhaseAwaitingLocation, PhaseAwaitingComment:
		return true
	}
	return false
}

// EventKind tags user input.
type EventKind int

const (
	EventPhoto EventKind = iota + 1
	EventLocation
	EventText
)

// Event is one piece of user input.
type Event struct {
	Kind EventKind
	Text string
}

// PhotoReceived is a photo message.
func PhotoReceived() Event { return Event{Kind: EventPhoto} }

// LocationReceived is a location message.
func LocationReceived() Event { return Event{Kind: EventLocation} }

// TextReceived is a text message.
func TextReceived(text string) Event { return Event{Kind: EventText, Text: text} }

// EffectKind tags the side effect a transition asks for.
type EffectKind int

const (
	// EffectReply sends guidance only; state does not change.
	EffectReply EffectKind = iota + 1
	// EffectStartSession creates a session and stages the photo into it.
	EffectStartSession
	EffectStagePhoto
	EffectStageLocation
	EffectFinalize
	EffectCancel
)

var effectNames = map[EffectKind]string{
	EffectReply:         "reply",
	EffectStartSession:  "start_session",
	EffectStagePhoto:    "stage_photo",
	EffectStageLocation: "stage_location",
	EffectFinalize:      "finalize",
	EffectCancel:        "cancel",
}

func (k EffectKind) String() string {
	if n, ok := effectNames[k]; ok {
		return n
	}
	return "none"
}

// Notice selects the guidance text of an EffectReply.
type Notice int

const (
	NoticeNone Notice = iota
	// NoticeNotAcceptingPhotos: a photo arrived after the photo step.
	NoticeNotAcceptingPhotos
	// NoticeNeedPhoto: a location arrived without a session.
	NoticeNeedPhoto
	// NoticeNotAcceptingLocation: a location arrived outside the location step.
	NoticeNotAcceptingLocation
	// NoticeNothingToCancel: cancel keyword without a session.
	NoticeNothingToCancel
	// NoticeStartGuide: free text before a photo.
	NoticeStartGuide
	// NoticeRequestLocation: free text while a location is expected.
	NoticeRequestLocation
)

// Effect is what the executor has to do for a transition.
type Effect struct {
	Kind    EffectKind
	Notice  Notice
	Comment sql.NullString
}

// Policy carries the configurable parts of the transition table.
type Policy struct {
	// RestagePhoto lets a new photo replace the staged one while a location is expected.
	RestagePhoto bool
}

// IsCancel reports whether text asks to cancel: it contains "cancel" in any
// case or "キャンセル".
func IsCancel(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "cancel") || strings.Contains(text, "キャンセル")
}

// Transition computes the next state and the effect to perform. It is pure;
// the returned state assumes the effect succeeds.
func Transition(p Policy, st State, ev Event) (State, Effect) {
	if !st.Active() {
		st = Idle
	}
	switch ev.Kind {
	case EventPhoto:
		return onPhoto(p, st)
	case EventLocation:
		return onLocation(st)
	case EventText:
		return onText(st, ev.Text)
	}
	return st, Effect{Kind: EffectReply, Notice: NoticeNone}
}

func onPhoto(p Policy, st State) (State, Effect) {
	switch st.Phase {
	case PhaseIdle:
		return State{Phase: PhaseAwaitingLocation}, Effect{Kind: EffectStartSession}
	case PhaseAwaitingPhoto:
		return State{Phase: PhaseAwaitingLocation, Session: st.Session}, Effect{Kind: EffectStagePhoto}
	case PhaseAwaitingLocation:
		if p.RestagePhoto {
			return st, Effect{Kind: EffectStagePhoto}
		}
	}
	return st, Effect{Kind: EffectReply, Notice: NoticeNotAcceptingPhotos}
}

func onLocation(st State) (State, Effect) {
	switch st.Phase {
	case PhaseIdle:
		return st, Effect{Kind: EffectReply, Notice: NoticeNeedPhoto}
	case PhaseAwaitingLocation:
		return State{Phase: PhaseAwaitingComment, Session: st.Session}, Effect{Kind: EffectStageLocation}
	}
	return st, Effect{Kind: EffectReply, Notice: NoticeNotAcceptingLocation}
}

func onText(st State, text string) (State, Effect) {
	if IsCancel(text) {
		if st.Phase == PhaseIdle {
			return st, Effect{Kind: EffectReply, Notice: NoticeNothingToCancel}
		}
		return State{Phase: PhaseCancelled, Session: st.Session}, Effect{Kind: EffectCancel}
	}
	switch st.Phase {
	case PhaseAwaitingComment:
		comment := sql.NullString{String: text, Valid: true}
		if text == SkipCommentKeyword {
			comment = sql.NullString{}
		}
		return State{Phase: PhaseCompleted, Session: st.Session}, Effect{Kind: EffectFinalize, Comment: comment}
	case PhaseAwaitingLocation:
		return st, Effect{Kind: EffectReply, Notice: NoticeRequestLocation}
	}
	return st, Effect{Kind: EffectReply, Notice: NoticeStartGuide}
}
