package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/m3rciful/linephoto/internal/post"
	"github.com/m3rciful/linephoto/internal/session"
	"github.com/m3rciful/linephoto/internal/storage"
)

// memSessions mirrors the Postgres store semantics in memory.
type memSessions struct {
	mu        sync.Mutex
	rows      map[string]*session.Session
	seq       int
	createErr error
	updateErr error
	// bump simulates a concurrent writer before the next update.
	bump bool
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[string]*session.Session{}}
}

func (m *memSessions) Active(_ context.Context, lineUserID string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*session.Session
	for _, s := range m.rows {
		if s.LineUserID == lineUserID && s.Active(time.Now()) {
			found = append(found, s)
		}
	}
	if len(found) == 0 {
		return nil, nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	cp := *found[0]
	return &cp, nil
}

func (m *memSessions) Create(_ context.Context, lineUserID, accountID string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, s := range m.rows {
		if s.LineUserID == lineUserID && !s.Status.Terminal() {
			s.Status = session.StatusCancelled
			s.Version++
		}
	}
	m.seq++
	now := time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	s := &session.Session{
		ID:         fmt.Sprintf("sess-%d", m.seq),
		UserID:     accountID,
		LineUserID: lineUserID,
		Status:     session.StatusPhotoPending,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
	m.rows[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *memSessions) Update(_ context.Context, id string, p session.Patch) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	s, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	if m.bump {
		s.Version++
		m.bump = false
	}
	if p.ExpectedVersion > 0 && p.ExpectedVersion != s.Version {
		return nil, session.ErrStale
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.TempImageURL != nil {
		s.TempImageURL.String, s.TempImageURL.Valid = *p.TempImageURL, true
	}
	if p.TempImagePath != nil {
		s.TempImagePath.String, s.TempImagePath.Valid = *p.TempImagePath, true
	}
	if p.TempLatitude != nil {
		s.TempLatitude.Float64, s.TempLatitude.Valid = *p.TempLatitude, true
	}
	if p.TempLongitude != nil {
		s.TempLongitude.Float64, s.TempLongitude.Valid = *p.TempLongitude, true
	}
	if p.TempComment != nil {
		s.TempComment = *p.TempComment
	}
	if p.TempAddress != nil {
		s.TempAddress = *p.TempAddress
	}
	s.Version++
	cp := *s
	return &cp, nil
}

func (m *memSessions) get(id string) session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memSessions) nonTerminal(lineUserID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.rows {
		if s.LineUserID == lineUserID && !s.Status.Terminal() {
			n++
		}
	}
	return n
}

// expire moves the expiry of every open session of lineUserID into the past.
func (m *memSessions) expire(lineUserID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.LineUserID == lineUserID && !s.Status.Terminal() {
			s.ExpiresAt = time.Now().Add(-time.Minute)
		}
	}
}

// memFinalizer completes sessions held by memSessions.
type memFinalizer struct {
	sessions *memSessions
	posts    []*post.Post
	err      error
}

func (f *memFinalizer) Finalize(_ context.Context, s *session.Session) (*post.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !s.HasImage() || !s.HasLocation() {
		return nil, session.ErrIncomplete
	}
	f.sessions.mu.Lock()
	defer f.sessions.mu.Unlock()
	row := f.sessions.rows[s.ID]
	if row == nil || row.Status != session.StatusCommentPending {
		return nil, session.ErrNotPending
	}
	p := &post.Post{
		ID:        fmt.Sprintf("post-%d", len(f.posts)+1),
		UserID:    s.UserID,
		ImageURL:  s.TempImageURL.String,
		ImagePath: s.TempImagePath,
		Latitude:  s.TempLatitude.Float64,
		Longitude: s.TempLongitude.Float64,
		Comment:   s.TempComment,
		Address:   s.TempAddress,
	}
	f.posts = append(f.posts, p)
	row.Status = session.StatusCompleted
	row.Version++
	return p, nil
}

type fakeImages struct {
	err error
}

func (f fakeImages) Upload(_ context.Context, lineUserID, messageID string) (storage.Image, error) {
	if f.err != nil {
		return storage.Image{}, f.err
	}
	path := storage.ObjectPath(lineUserID, messageID, "jpg")
	return storage.Image{Path: path, URL: "https://storage.example/" + path + "?sig"}, nil
}

type recordingMessenger struct {
	mu       sync.Mutex
	replies  [][]messaging_api.MessageInterface
	pushes   [][]messaging_api.MessageInterface
	replyErr error
}

func (r *recordingMessenger) Reply(_ context.Context, _ string, msgs []messaging_api.MessageInterface) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replyErr != nil {
		return r.replyErr
	}
	r.replies = append(r.replies, msgs)
	return nil
}

func (r *recordingMessenger) Push(_ context.Context, _ string, msgs []messaging_api.MessageInterface) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, msgs)
	return nil
}

func (r *recordingMessenger) last() messaging_api.MessageInterface {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return nil
	}
	msgs := r.replies[len(r.replies)-1]
	return msgs[len(msgs)-1]
}

type inlineJobs struct {
	err error
}

func (j inlineJobs) Enqueue(ctx context.Context, _, _ string, run func(ctx context.Context) error) error {
	if j.err != nil {
		return j.err
	}
	return run(ctx)
}

// headline returns the text of a text message or the alt text of a flex message.
func headline(m messaging_api.MessageInterface) string {
	switch v := m.(type) {
	case messaging_api.TextMessage:
		return v.Text
	case messaging_api.FlexMessage:
		return v.AltText
	}
	return ""
}

var errBoom = errors.New("boom")
