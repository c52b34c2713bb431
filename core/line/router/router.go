package router

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/m3rciful/linephoto/core/line/events"
	"github.com/m3rciful/linephoto/core/logger"
)

// Request is what a handler sees for one message event.
type Request struct {
	Event events.Event
	// AccountID is the internal user id; empty until the identity is resolved.
	AccountID string
}

// HandlerFunc handles one message event.
type HandlerFunc func(ctx context.Context, req *Request) error

// Middleware wraps a HandlerFunc.
type Middleware struct {
	Name string
	Use  func(next HandlerFunc) HandlerFunc
}

// IdentityResolver maps a LINE user id to an internal account id, creating it when needed.
type IdentityResolver interface {
	Ensure(ctx context.Context, lineUserID string) (string, error)
}

// Handlers binds one handler per message kind.
type Handlers struct {
	Image    HandlerFunc
	Location HandlerFunc
	Text     HandlerFunc
}

// Router fans a delivery out to per-kind handlers.
type Router struct {
	resolver IdentityResolver
	handlers Handlers
	chain    HandlerFunc
}

// New builds a Router. Middlewares run in the given order around identity
// resolution and the kind handler.
func New(resolver IdentityResolver, handlers Handlers, mws ...Middleware) *Router {
	r := &Router{resolver: resolver, handlers: handlers}
	h := r.route
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i].Use != nil {
			h = mws[i].Use(h)
		}
	}
	r.chain = h
	return r
}

// Dispatch handles every event of one delivery concurrently and returns when
// all of them are done. A failure in one event never affects the others.
func (r *Router) Dispatch(ctx context.Context, evs []events.Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	var wg sync.WaitGroup
	for _, ev := range evs {
		wg.Add(1)
		go func(ev events.Event) {
			defer wg.Done()
			r.handleEvent(ctx, ev)
		}(ev)
	}
	wg.Wait()
}

func (r *Router) handleEvent(parent context.Context, ev events.Event) {
	ctx := logger.WithRID(parent, ev.RID())
	ctx = logger.WithEventMeta(ctx, ev.ID, ev.UserID, ev.SourceType)
	ctx = logger.WithLogger(ctx, logger.LINE)
	ctx = withCounters(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			logger.LogEvent(ctx, nil, slog.LevelError, "event.panic",
				slog.String("status", "fail"),
				slog.String("err", fmt.Sprint(rec)),
				slog.String("err_code", "PANIC"),
				slog.String("cause", string(debug.Stack())),
			)
		}
	}()

	if !ev.IsMessage() {
		logger.LogEvent(ctx, nil, slog.LevelDebug, "event.ignored",
			slog.String("status", "skip"),
			slog.String("kind", ev.Type),
		)
		return
	}
	if ev.UserID == "" {
		logger.LogEvent(ctx, nil, slog.LevelDebug, "event.dropped",
			slog.String("status", "skip"),
			slog.String("kind", string(ev.Kind)),
			slog.String("cause", "no_sender"),
		)
		return
	}

	req := &Request{Event: ev}
	_ = r.chain(ctx, req)
}

// route resolves the account and invokes exactly one kind handler.
func (r *Router) route(ctx context.Context, req *Request) error {
	start := time.Now()
	ev := req.Event

	if r.resolver != nil && req.AccountID == "" {
		accountID, err := r.resolver.Ensure(ctx, ev.UserID)
		if err != nil || accountID == "" {
			if err == nil {
				err = fmt.Errorf("router: empty account id for %s", ev.UserID)
			}
			logHandlerSummary(ctx, "ensure_user", start, "skip", "fail", err)
			return nil
		}
		req.AccountID = accountID
		ctx = logger.WithAccount(ctx, accountID)
	}

	var (
		name string
		h    HandlerFunc
	)
	switch ev.Kind {
	case events.KindImage:
		name, h = "image", r.handlers.Image
	case events.KindLocation:
		name, h = "location", r.handlers.Location
	case events.KindText:
		name, h = "text", r.handlers.Text
	}
	if h == nil {
		logHandlerSummary(ctx, "unsupported_"+normalizeHandlerName(string(ev.Kind)), start, "skip", "ok", nil,
			slog.String("kind", string(ev.Kind)),
		)
		return nil
	}

	return handleWithSummary(ctx, name, start, func(ctx context.Context) error {
		return h(ctx, req)
	}, slog.String("kind", string(ev.Kind)))
}
