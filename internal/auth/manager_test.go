package auth

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/architsalriwal/todo-app/internal/storage"
)

type failingUserStore struct {
	storage.UserStore
	err error
}

func (s *failingUserStore) FindUserByID(ctx context.Context, id string) (*storage.User, error) {
	return nil, s.err
}

func newTestManager(users storage.UserStore) *Manager {
	return NewManager(users, log.New(io.Discard, "", 0))
}

// newSessionRouter は任意のセッション値を書き込んでから RequireLogin を通すルーターを作成します。
func newSessionRouter(m *Manager, seed func(sessions.Session)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(sessions.Sessions(SessionCookieName, cookie.NewStore([]byte("0123456789abcdef0123456789abcdef"))))
	router.GET("/private",
		func(c *gin.Context) {
			seed(sessions.Default(c))
			c.Next()
		},
		m.RequireLogin(),
		func(c *gin.Context) {
			c.String(http.StatusOK, CurrentUser(c).Username)
		},
	)
	return router
}

func TestLoadUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := storage.NewMemoryStore()
	alice, err := store.CreateUser(context.Background(), "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	cases := []struct {
		name  string
		users storage.UserStore
		id    any
		want  string
	}{
		{name: "known user", users: store, id: alice.ID, want: "alice"},
		{name: "no id", users: store, id: nil},
		{name: "non string id", users: store, id: 42},
		{name: "malformed id", users: store, id: "not-a-uuid"},
		{name: "unknown id", users: store, id: "00000000-0000-0000-0000-000000000000"},
		{name: "store unavailable", users: &failingUserStore{err: errors.New("connection refused")}, id: alice.ID},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(tc.users)
			var got *storage.User
			router := gin.New()
			router.Use(sessions.Sessions(SessionCookieName, cookie.NewStore([]byte("0123456789abcdef0123456789abcdef"))))
			router.GET("/", func(c *gin.Context) {
				session := sessions.Default(c)
				if tc.id != nil {
					session.Set(sessionKeyUserID, tc.id)
				}
				got = m.LoadUser(c.Request.Context(), session)
				c.Status(http.StatusNoContent)
			})

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			if tc.want == "" {
				if got != nil {
					t.Fatalf("expected no identity, got %#v", got)
				}
				return
			}
			if got == nil || got.Username != tc.want {
				t.Fatalf("unexpected user: %#v", got)
			}
		})
	}
}

func TestRequireLogin(t *testing.T) {
	store := storage.NewMemoryStore()
	alice, err := store.CreateUser(context.Background(), "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		issuedAt   time.Time
		lastActive time.Time
		wantStatus int
	}{
		{name: "fresh session", issuedAt: now.Add(-time.Hour), lastActive: now.Add(-time.Minute), wantStatus: http.StatusOK},
		{name: "idle timeout", issuedAt: now.Add(-time.Hour), lastActive: now.Add(-31 * time.Minute), wantStatus: http.StatusFound},
		{name: "lifetime exceeded", issuedAt: now.Add(-13 * time.Hour), lastActive: now.Add(-time.Minute), wantStatus: http.StatusFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(store)
			m.now = func() time.Time { return now }
			router := newSessionRouter(m, func(s sessions.Session) {
				s.Set(sessionKeyUserID, alice.ID)
				s.Set(sessionKeyIssuedAt, tc.issuedAt.Unix())
				s.Set(sessionKeyLastActive, tc.lastActive.Unix())
			})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))

			if rec.Code != tc.wantStatus {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			if tc.wantStatus == http.StatusOK && rec.Body.String() != "alice" {
				t.Fatalf("unexpected body: %s", rec.Body.String())
			}
			if tc.wantStatus == http.StatusFound && rec.Header().Get("Location") != "/login" {
				t.Fatalf("unexpected location: %s", rec.Header().Get("Location"))
			}
		})
	}
}

func TestRequireLoginWithoutSession(t *testing.T) {
	m := newTestManager(storage.NewMemoryStore())
	router := newSessionRouter(m, func(sessions.Session) {})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestRecordFailureLocksAfterMaxAttempts(t *testing.T) {
	m := newTestManager(storage.NewMemoryStore())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 1; i < maxLoginAttempts; i++ {
		if remaining := m.recordFailure("10.0.0.1"); remaining != maxLoginAttempts-i {
			t.Fatalf("attempt %d: remaining = %d", i, remaining)
		}
		if m.checkLock("10.0.0.1") != 0 {
			t.Fatalf("attempt %d: locked too early", i)
		}
	}
	if remaining := m.recordFailure("10.0.0.1"); remaining != 0 {
		t.Fatalf("expected no attempts left, got %d", remaining)
	}
	if got := m.checkLock("10.0.0.1"); got != lockDuration {
		t.Fatalf("unexpected lock duration: %v", got)
	}
	if m.checkLock("10.0.0.2") != 0 {
		t.Fatal("other IPs must not be locked")
	}

	now = now.Add(lockDuration + time.Second)
	if m.checkLock("10.0.0.1") != 0 {
		t.Fatal("lock should expire")
	}
}

func TestRecordFailureWindowResets(t *testing.T) {
	m := newTestManager(storage.NewMemoryStore())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.recordFailure("10.0.0.1")
	m.recordFailure("10.0.0.1")
	now = now.Add(loginWindow + time.Minute)

	if remaining := m.recordFailure("10.0.0.1"); remaining != maxLoginAttempts-1 {
		t.Fatalf("expected window to reset, remaining = %d", remaining)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("s3cret")
	if err != nil {
		t.Fatalf("hashPassword returned error: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("hash must differ from the password")
	}
	if !verifyPassword(hash, "s3cret") {
		t.Fatal("expected password to verify")
	}
	if verifyPassword(hash, "other") {
		t.Fatal("wrong password must not verify")
	}
}

func TestCheckCredentialsUnknownUser(t *testing.T) {
	if checkCredentials(nil, "anything") {
		t.Fatal("unknown user must not verify")
	}
	cost, err := bcrypt.Cost(dummyHash())
	if err != nil {
		t.Fatalf("dummy hash is not a bcrypt hash: %v", err)
	}
	if cost != passwordCost {
		t.Fatalf("dummy hash cost = %d, want %d", cost, passwordCost)
	}

	hash, err := hashPassword("s3cret")
	if err != nil {
		t.Fatalf("hashPassword returned error: %v", err)
	}
	user := &storage.User{ID: "u1", Username: "alice", PasswordHash: hash}
	if !checkCredentials(user, "s3cret") {
		t.Fatal("expected known user with correct password to verify")
	}
	if checkCredentials(user, "wrong") {
		t.Fatal("wrong password must not verify")
	}
}
