package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/linephoto/core/line/events"
)

type resolverFunc func(ctx context.Context, lineUserID string) (string, error)

func (f resolverFunc) Ensure(ctx context.Context, lineUserID string) (string, error) {
	return f(ctx, lineUserID)
}

func accountFor(_ context.Context, id string) (string, error) { return "acc-" + id, nil }

type recorder struct {
	mu   sync.Mutex
	seen map[string]string
}

func (r *recorder) handler(kind string) HandlerFunc {
	return func(_ context.Context, req *Request) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.seen == nil {
			r.seen = map[string]string{}
		}
		r.seen[req.Event.UserID] = kind + ":" + req.AccountID
		return nil
	}
}

func msg(user string, kind events.Kind) events.Event {
	return events.Event{Type: events.TypeMessage, UserID: user, Kind: kind, SourceType: events.SourceUser}
}

func TestDispatchRoutesByKind(t *testing.T) {
	rec := &recorder{}
	r := New(resolverFunc(accountFor), Handlers{
		Image:    rec.handler("image"),
		Location: rec.handler("location"),
		Text:     rec.handler("text"),
	})

	r.Dispatch(context.Background(), []events.Event{
		msg("U1", events.KindImage),
		msg("U2", events.KindLocation),
		msg("U3", events.KindText),
		msg("U4", events.KindOther),
		{Type: "follow", UserID: "U5"},
		msg("", events.KindText),
	})

	assert.Equal(t, map[string]string{
		"U1": "image:acc-U1",
		"U2": "location:acc-U2",
		"U3": "text:acc-U3",
	}, rec.seen)
}

func TestDispatchDropsUnresolvedIdentity(t *testing.T) {
	rec := &recorder{}
	resolver := resolverFunc(func(_ context.Context, id string) (string, error) {
		if id == "Ubad" {
			return "", errors.New("users table unavailable")
		}
		return "acc-" + id, nil
	})
	r := New(resolver, Handlers{Text: rec.handler("text")})

	r.Dispatch(context.Background(), []events.Event{msg("Ubad", events.KindText), msg("Ugood", events.KindText)})

	assert.Equal(t, map[string]string{"Ugood": "text:acc-Ugood"}, rec.seen)
}

func TestDispatchIsolatesPanicsAndErrors(t *testing.T) {
	var handled atomic.Int32
	h := func(_ context.Context, req *Request) error {
		switch req.Event.UserID {
		case "Upanic":
			panic("boom")
		case "Uerr":
			return errors.New("upstream down")
		}
		handled.Add(1)
		return nil
	}
	r := New(resolverFunc(accountFor), Handlers{Text: h})

	r.Dispatch(context.Background(), []events.Event{
		msg("Upanic", events.KindText),
		msg("Uerr", events.KindText),
		msg("Uok1", events.KindText),
		msg("Uok2", events.KindText),
	})

	assert.Equal(t, int32(2), handled.Load())
}

func TestDispatchRunsEventsConcurrently(t *testing.T) {
	gate := make(chan struct{})
	var arrived atomic.Int32
	h := func(context.Context, *Request) error {
		if arrived.Add(1) == 2 {
			close(gate)
		}
		select {
		case <-gate:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("events were serialized")
		}
	}
	var failed atomic.Bool
	mw := Middleware{Name: "tag", Use: func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if err := next(ctx, req); err != nil {
				failed.Store(true)
			}
			return nil
		}
	}}
	r := New(resolverFunc(accountFor), Handlers{Image: h}, mw)

	r.Dispatch(context.Background(), []events.Event{msg("U1", events.KindImage), msg("U2", events.KindImage)})
	assert.False(t, failed.Load())
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	mk := func(name string) Middleware {
		return Middleware{Name: name, Use: func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return next(ctx, req)
			}
		}}
	}
	r := New(resolverFunc(accountFor), Handlers{Text: func(context.Context, *Request) error { return nil }}, mk("a"), mk("b"))
	r.Dispatch(context.Background(), []events.Event{msg("U1", events.KindText)})
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestCountersSnapshot(t *testing.T) {
	ctx := withCounters(context.Background())
	RecordReply(ctx, 1, true, false)
	RecordReply(ctx, 1, false, true)
	RecordOutcome(ctx, "completed")

	replies, quick, fallback, outcome := CountersFrom(ctx).Snapshot()
	require.Equal(t, 2, replies)
	assert.True(t, quick)
	assert.True(t, fallback)
	assert.Equal(t, "completed", outcome)

	RecordReply(context.Background(), 1, true, true)
	n, _, _, _ := CountersFrom(context.Background()).Snapshot()
	assert.Zero(t, n)
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "session stale" }

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "SESSION_STALE", deriveErrorCode(codedErr{}))
	assert.Equal(t, "ERRORSTRING", deriveErrorCode(errors.New("x")))
	assert.Equal(t, "", deriveErrorCode(nil))
}
