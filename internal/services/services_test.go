package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/auth"
	"github.com/diewo77/bloodboard/internal/apperrors"
	"github.com/diewo77/bloodboard/internal/cache"
	"github.com/diewo77/bloodboard/internal/db"
	"github.com/diewo77/bloodboard/internal/identity"
	"github.com/diewo77/bloodboard/internal/models"
	"github.com/diewo77/bloodboard/internal/policy"
)

// fakeProvider records calls and answers with canned results.
type fakeProvider struct {
	mu sync.Mutex

	signUp    *identity.SignUpResult
	signUpErr error
	session   *identity.Session
	signInErr error
	deleteErr error
	users     map[string]*identity.User

	calls     int
	deleted   []string
	signedOut []string
}

func (f *fakeProvider) hit() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeProvider) SignInWithPassword(context.Context, string, string) (*identity.Session, error) {
	f.hit()
	return f.session, f.signInErr
}

func (f *fakeProvider) SignUp(context.Context, string, string) (*identity.SignUpResult, error) {
	f.hit()
	return f.signUp, f.signUpErr
}

func (f *fakeProvider) SignOut(_ context.Context, token string) error {
	f.hit()
	f.mu.Lock()
	f.signedOut = append(f.signedOut, token)
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) SendOTP(context.Context, string) error { f.hit(); return nil }

func (f *fakeProvider) VerifyOTP(context.Context, string, string) (*identity.Session, error) {
	f.hit()
	return f.session, f.signInErr
}

func (f *fakeProvider) GetUser(_ context.Context, id string) (*identity.User, error) {
	f.hit()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, &identity.Error{Status: 404, Message: identity.MsgUserNotFound}
}

func (f *fakeProvider) DeleteUser(_ context.Context, id string) error {
	f.hit()
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	f.mu.Unlock()
	return f.deleteErr
}

func (f *fakeProvider) Refresh(context.Context, string) (*auth.Tokens, error) {
	f.hit()
	return nil, errors.New("not supported")
}

var _ identity.Provider = (*fakeProvider)(nil)

type testEnv struct {
	db       *gorm.DB
	gate     *policy.AuthGate
	cache    *cache.Memory
	provider *fakeProvider

	auth      *AuthService
	shortages *ShortageService
	centers   *CenterService
	audit     *AuditService
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb, false, zap.NewNop()))
	require.NoError(t, db.Install(gdb, nil, zap.NewNop()))

	g := policy.NewAuthGate(gdb, time.Minute)
	store := cache.NewMemory(64, time.Minute)
	p := &fakeProvider{users: map[string]*identity.User{}}
	log := zap.NewNop()
	return &testEnv{
		db: gdb, gate: g, cache: store, provider: p,
		auth:      NewAuthService(gdb, p, g, store, log),
		shortages: NewShortageService(gdb, g, store, log),
		centers:   NewCenterService(gdb, g, p, store, log),
		audit:     NewAuditService(gdb, g, log),
	}
}

func asUser(userID string) context.Context {
	return auth.WithPrincipal(context.Background(), &auth.Principal{UserID: userID})
}

func (e *testEnv) seedCenter(t *testing.T, name, district string) *models.Center {
	t.Helper()
	c := &models.Center{Name: name, District: district}
	require.NoError(t, e.db.Create(c).Error)
	return c
}

func (e *testEnv) seedMember(t *testing.T, userID string, c *models.Center, role models.Role) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.UserCenter{UserID: userID, CenterID: c.ID, Role: role}).Error)
}

func (e *testEnv) count(t *testing.T, model any, where ...any) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(model)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func requireAppError(t *testing.T, err error, kind apperrors.Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, msg, apperrors.Message(err))
	require.Equal(t, kind, apperrors.KindOf(err))
}

func newUser(id, email string, confirmed bool) *identity.User {
	u := &identity.User{ID: id, Email: email, Identities: 1}
	if confirmed {
		now := time.Now()
		u.EmailConfirmedAt = &now
	}
	return u
}
