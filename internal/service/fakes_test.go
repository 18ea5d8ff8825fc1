package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/course-stream/internal/clock"
	pkgcrypto "github.com/and161185/course-stream/internal/crypto"
	"github.com/and161185/course-stream/internal/errs"
	"github.com/and161185/course-stream/internal/limiter"
	"github.com/and161185/course-stream/internal/model"
	"github.com/and161185/course-stream/internal/repository"
)

var testStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeModules struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*model.Module
	getErr error
	setErr error
	sets   int
	clears int
}

var _ repository.ModuleRepository = (*fakeModules)(nil)

func newFakeModules(mods ...*model.Module) *fakeModules {
	f := &fakeModules{byID: map[uuid.UUID]*model.Module{}}
	for _, m := range mods {
		f.byID[m.ID] = m
	}
	return f
}

func (f *fakeModules) GetModule(_ context.Context, id uuid.UUID) (*model.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	m, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *m
	if m.Video != nil {
		v := *m.Video
		c.Video = &v
	}
	return &c, nil
}

func (f *fakeModules) SetVideo(_ context.Context, id uuid.UUID, v model.VideoLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	m, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	f.sets++
	m.Video = &v
	return nil
}

func (f *fakeModules) ClearVideo(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.byID[id]; ok {
		m.Video = nil
	}
	f.clears++
	return nil
}

type fakeOracle struct {
	mu       sync.Mutex
	entitled map[uuid.UUID]bool // by user
	managers map[uuid.UUID]bool
	err      error
}

var _ EnrollmentOracle = (*fakeOracle)(nil)

func newFakeOracle() *fakeOracle {
	return &fakeOracle{entitled: map[uuid.UUID]bool{}, managers: map[uuid.UUID]bool{}}
}

func (f *fakeOracle) IsEntitled(_ context.Context, userID, _ uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entitled[userID] || f.managers[userID], f.err
}

func (f *fakeOracle) CanManage(_ context.Context, userID, _ uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.managers[userID], f.err
}

func (f *fakeOracle) setEntitled(userID uuid.UUID, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entitled[userID] = ok
}

type fakeValidator struct {
	err   error
	calls int
}

var _ URLValidator = (*fakeValidator)(nil)

func (f *fakeValidator) Validate(context.Context, string) error {
	f.calls++
	return f.err
}

type fakeUsers struct {
	byID map[uuid.UUID]*model.User
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

type fakeLimiter struct {
	mu       sync.Mutex
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error
	successErr  error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

func newID() uuid.UUID { return uuid.Must(uuid.NewV4()) }

func testKeys(t *testing.T) pkgcrypto.Keys {
	t.Helper()
	k, err := pkgcrypto.DeriveKeys([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return k
}

func testCodec(t *testing.T) *pkgcrypto.Codec {
	t.Helper()
	c, err := pkgcrypto.NewCodec(testKeys(t).URL)
	require.NoError(t, err)
	return c
}

// fixture is a course with one module that carries an encrypted video.
type fixture struct {
	clk        *clock.Fake
	codec      *pkgcrypto.Codec
	modules    *fakeModules
	oracle     *fakeOracle
	course     uuid.UUID
	module     uuid.UUID
	instructor uuid.UUID
	student    uuid.UUID
	url        string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clk:        clock.NewFake(testStart),
		codec:      testCodec(t),
		oracle:     newFakeOracle(),
		course:     newID(),
		module:     newID(),
		instructor: newID(),
		student:    newID(),
		url:        "https://cdn.example.com/v1.mp4",
	}
	ct, err := f.codec.Encrypt(f.url)
	require.NoError(t, err)
	f.modules = newFakeModules(&model.Module{
		ID: f.module, CourseID: f.course, Title: "Module 1",
		Video: &model.VideoLink{CiphertextURL: ct, Title: "Lecture 1", DurationSeconds: 600, Source: "external"},
	})
	f.oracle.managers[f.instructor] = true
	f.oracle.entitled[f.student] = true
	return f
}
