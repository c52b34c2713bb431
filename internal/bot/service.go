// Package bot runs the photo-post conversation: it reads the user's session,
// steps the state machine, applies the resulting effect and replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/m3rciful/linephoto/core/line/events"
	"github.com/m3rciful/linephoto/core/line/router"
	"github.com/m3rciful/linephoto/core/logger"
	"github.com/m3rciful/linephoto/internal/metrics"
	"github.com/m3rciful/linephoto/internal/post"
	"github.com/m3rciful/linephoto/internal/session"
	"github.com/m3rciful/linephoto/internal/storage"
)

// Sessions is the session store the conversation runs on.
type Sessions interface {
	Active(ctx context.Context, lineUserID string) (*session.Session, error)
	Create(ctx context.Context, lineUserID, accountID string) (*session.Session, error)
	Update(ctx context.Context, id string, p session.Patch) (*session.Session, error)
}

// Finalizer turns a session awaiting its comment into a post.
type Finalizer interface {
	Finalize(ctx context.Context, s *session.Session) (*post.Post, error)
}

// Images stores photo messages.
type Images interface {
	Upload(ctx context.Context, lineUserID, messageID string) (storage.Image, error)
}

// Messenger sends messages back to users.
type Messenger interface {
	Reply(ctx context.Context, replyToken string, msgs []messaging_api.MessageInterface) error
	Push(ctx context.Context, to string, msgs []messaging_api.MessageInterface) error
}

// Enqueuer runs push fallbacks in the background.
type Enqueuer interface {
	Enqueue(ctx context.Context, action, endpoint string, run func(ctx context.Context) error) error
}

// Options wires a Service.
type Options struct {
	Sessions  Sessions
	Finalizer Finalizer
	Images    Images
	Messenger Messenger
	// Jobs carries push fallbacks; nil disables them.
	Jobs   Enqueuer
	Policy session.Policy
	// OptimisticLock makes every session update conditional on the version read.
	OptimisticLock bool
}

// Service handles image, location and text messages.
type Service struct {
	opts Options
}

// New builds a Service.
func New(opts Options) *Service {
	return &Service{opts: opts}
}

// Handlers returns the router bindings of the Service.
func (s *Service) Handlers() router.Handlers {
	return router.Handlers{
		Image: func(ctx context.Context, req *router.Request) error {
			return s.Handle(ctx, req, session.PhotoReceived())
		},
		Location: func(ctx context.Context, req *router.Request) error {
			return s.Handle(ctx, req, session.LocationReceived())
		},
		Text: func(ctx context.Context, req *router.Request) error {
			return s.Handle(ctx, req, session.TextReceived(req.Event.Text))
		},
	}
}

// Handle runs one step of the conversation for req. The reply is always
// sent; the returned error reports an effect that could not be applied.
func (s *Service) Handle(ctx context.Context, req *router.Request, ev session.Event) error {
	active, _ := s.opts.Sessions.Active(ctx, req.Event.UserID)
	cur := session.StateOf(active)
	target, eff := session.Transition(s.opts.Policy, cur, ev)
	metrics.Transitions.WithLabelValues(cur.Phase.String(), eff.Kind.String()).Inc()

	if logger.ShouldSampleDebug() {
		logger.LogEvent(ctx, logger.SVCSessions, slog.LevelDebug, "session.transition",
			slog.String("from", cur.Phase.String()),
			slog.String("to", target.Phase.String()),
			slog.String("effect", eff.Kind.String()),
		)
	}

	out, next, err := s.apply(ctx, req, cur, target, eff)
	label := out.Label(next)
	s.reply(ctx, req.Event, Compose(out, next))
	router.RecordOutcome(ctx, label)
	metrics.Outcomes.WithLabelValues(label).Inc()
	return err
}

func (s *Service) apply(ctx context.Context, req *router.Request, cur, target session.State, eff session.Effect) (Outcome, session.State, error) {
	switch eff.Kind {
	case session.EffectStartSession:
		created, err := s.opts.Sessions.Create(ctx, req.Event.UserID, req.AccountID)
		if err != nil {
			return Outcome{Kind: OutcomeCreateFailed}, cur, fmt.Errorf("start session: %w", err)
		}
		return s.stagePhoto(ctx, req, created)
	case session.EffectStagePhoto:
		return s.stagePhoto(ctx, req, cur.Session)
	case session.EffectStageLocation:
		return s.stageLocation(ctx, req, cur.Session)
	case session.EffectCancel:
		updated, err := s.update(ctx, cur.Session, session.Patch{Status: session.StatusPtr(session.StatusCancelled)})
		if err != nil {
			return Outcome{Kind: OutcomeUpdateFailed}, cur, fmt.Errorf("cancel: %w", err)
		}
		metrics.SessionsCancelled.Inc()
		return Outcome{Kind: OutcomeOK}, session.State{Phase: session.PhaseCancelled, Session: updated}, nil
	case session.EffectFinalize:
		return s.finalize(ctx, cur.Session, eff)
	}
	return Outcome{Kind: OutcomeGuided, Notice: eff.Notice}, target, nil
}

func (s *Service) stagePhoto(ctx context.Context, req *router.Request, sess *session.Session) (Outcome, session.State, error) {
	cur := session.StateOf(sess)
	img, err := s.opts.Images.Upload(ctx, req.Event.UserID, req.Event.MessageID)
	if err != nil {
		return Outcome{Kind: OutcomeUploadFailed}, cur, fmt.Errorf("stage photo: %w", err)
	}
	updated, err := s.update(ctx, sess, session.Patch{
		Status:        session.StatusPtr(session.StatusGPSPending),
		TempImageURL:  &img.URL,
		TempImagePath: &img.Path,
	})
	if err != nil {
		return Outcome{Kind: OutcomeUpdateFailed}, cur, fmt.Errorf("stage photo: %w", err)
	}
	return Outcome{Kind: OutcomeOK}, session.StateOf(updated), nil
}

func (s *Service) stageLocation(ctx context.Context, req *router.Request, sess *session.Session) (Outcome, session.State, error) {
	cur := session.StateOf(sess)
	loc := req.Event.Location
	if loc == nil {
		return Outcome{Kind: OutcomeUpdateFailed}, cur, errors.New("stage location: event without location")
	}
	address := session.Null()
	if loc.Address != "" {
		address = session.Str(loc.Address)
	}
	updated, err := s.update(ctx, sess, session.Patch{
		Status:        session.StatusPtr(session.StatusCommentPending),
		TempLatitude:  &loc.Latitude,
		TempLongitude: &loc.Longitude,
		TempAddress:   address,
	})
	if err != nil {
		return Outcome{Kind: OutcomeUpdateFailed}, cur, fmt.Errorf("stage location: %w", err)
	}
	return Outcome{Kind: OutcomeOK}, session.StateOf(updated), nil
}

func (s *Service) finalize(ctx context.Context, sess *session.Session, eff session.Effect) (Outcome, session.State, error) {
	cur := session.StateOf(sess)
	comment := eff.Comment
	staged, err := s.update(ctx, sess, session.Patch{TempComment: &comment})
	if err != nil {
		return Outcome{Kind: OutcomeSaveFailed}, cur, fmt.Errorf("finalize: stage comment: %w", err)
	}
	p, err := s.opts.Finalizer.Finalize(ctx, staged)
	if err != nil {
		return Outcome{Kind: OutcomeSaveFailed}, session.StateOf(staged), fmt.Errorf("finalize: %w", err)
	}
	metrics.PostsCompleted.Inc()
	return Outcome{Kind: OutcomeOK, Post: p}, session.State{Phase: session.PhaseCompleted, Session: staged}, nil
}

var errSessionGone = errors.New("session no longer exists")

// update applies p to sess, conditional on its version when locking is on.
func (s *Service) update(ctx context.Context, sess *session.Session, p session.Patch) (*session.Session, error) {
	if sess == nil {
		return nil, errSessionGone
	}
	if s.opts.OptimisticLock {
		p.ExpectedVersion = sess.Version
	}
	updated, err := s.opts.Sessions.Update(ctx, sess.ID, p)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, errSessionGone
	}
	return updated, nil
}

// reply answers through the reply token and falls back to a queued push.
func (s *Service) reply(ctx context.Context, ev events.Event, msgs []messaging_api.MessageInterface) {
	quick := hasQuickReply(msgs)
	err := s.opts.Messenger.Reply(ctx, ev.ReplyToken, msgs)
	if err == nil {
		router.RecordReply(ctx, len(msgs), quick, false)
		return
	}
	logger.LogEvent(ctx, logger.LINE, slog.LevelWarn, "reply.failed",
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
	if s.opts.Jobs == nil {
		return
	}
	to := ev.UserID
	err = s.opts.Jobs.Enqueue(ctx, "push", "message/push", func(ctx context.Context) error {
		return s.opts.Messenger.Push(ctx, to, msgs)
	})
	if err != nil {
		metrics.ReplyFallbacks.WithLabelValues("dropped").Inc()
		logger.LogEvent(ctx, logger.LINE, slog.LevelWarn, "push.enqueue",
			slog.String("status", "skip"),
			slog.String("err", err.Error()),
		)
		return
	}
	metrics.ReplyFallbacks.WithLabelValues("queued").Inc()
	router.RecordReply(ctx, len(msgs), quick, true)
}

func hasQuickReply(msgs []messaging_api.MessageInterface) bool {
	for _, m := range msgs {
		switch v := m.(type) {
		case messaging_api.TextMessage:
			if v.QuickReply != nil {
				return true
			}
		case messaging_api.FlexMessage:
			if v.QuickReply != nil {
				return true
			}
		}
	}
	return false
}
