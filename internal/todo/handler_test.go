package todo

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/architsalriwal/todo-app/internal/auth"
	"github.com/architsalriwal/todo-app/internal/storage"
	"github.com/architsalriwal/todo-app/internal/web"
)

type stubTaskStore struct {
	tasks     []storage.Task
	listErr   error
	createErr error
	deleteErr error

	createdOwner   string
	createdContent string
	deletedID      string
	deletedOwner   string
}

func (s *stubTaskStore) ListTasks(ctx context.Context, owner string) ([]storage.Task, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []storage.Task
	for _, task := range s.tasks {
		if task.User == owner {
			out = append(out, task)
		}
	}
	return out, nil
}

func (s *stubTaskStore) CreateTask(ctx context.Context, owner, content string) (*storage.Task, error) {
	s.createdOwner, s.createdContent = owner, content
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &storage.Task{ID: "new", Content: content, User: owner}, nil
}

func (s *stubTaskStore) DeleteTask(ctx context.Context, id, owner string) error {
	s.deletedID, s.deletedOwner = id, owner
	return s.deleteErr
}

// newTestRouter は RequireLogin の代わりに固定ユーザーを設定するルーターを作成します。
func newTestRouter(t *testing.T, store storage.TaskStore, username string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if err := web.Install(router, log.New(io.Discard, "", 0)); err != nil {
		t.Fatalf("Install returned error: %v", err)
	}
	router.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("0123456789abcdef0123456789abcdef"))))
	router.Use(func(c *gin.Context) {
		if username != "" {
			c.Set(auth.ContextUserKey, &storage.User{ID: "u1", Username: username})
		}
		c.Next()
	})

	h := NewHandler(store, log.New(io.Discard, "", 0))
	router.GET("/todo", h.List)
	router.POST("/todo", h.Create)
	router.GET("/delete/:id", h.Delete)
	return router
}

func TestListShowsOnlyOwnTasks(t *testing.T) {
	store := &stubTaskStore{tasks: []storage.Task{
		{ID: "t1", Content: "alice task", User: "alice"},
		{ID: "t2", Content: "bob task", User: "bob"},
	}}
	router := newTestRouter(t, store, "alice")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/todo", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "alice task") || !strings.Contains(body, `href="/delete/t1"`) {
		t.Fatalf("expected alice's task in body: %s", body)
	}
	if strings.Contains(body, "bob task") {
		t.Fatalf("bob's task leaked into alice's list: %s", body)
	}
}

func TestListStoreError(t *testing.T) {
	router := newTestRouter(t, &stubTaskStore{listErr: errors.New("connection refused")}, "alice")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/todo", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestListWithoutUserRedirects(t *testing.T) {
	router := newTestRouter(t, &stubTaskStore{}, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/todo", nil))

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestCreateTagsTaskWithSessionUser(t *testing.T) {
	store := &stubTaskStore{}
	router := newTestRouter(t, store, "alice")

	form := url.Values{"content": {"water the plants"}, "user": {"bob"}}
	req := httptest.NewRequest(http.MethodPost, "/todo", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/todo" {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Header().Get("Location"))
	}
	if store.createdOwner != "alice" || store.createdContent != "water the plants" {
		t.Fatalf("unexpected created task: owner=%q content=%q", store.createdOwner, store.createdContent)
	}
}

func TestCreateMissingContent(t *testing.T) {
	store := &stubTaskStore{}
	router := newTestRouter(t, store, "alice")

	req := httptest.NewRequest(http.MethodPost, "/todo", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if store.createdOwner != "" {
		t.Fatal("store must not be called without content")
	}
}

func TestDelete(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantFlash  bool
	}{
		{name: "deleted", wantStatus: http.StatusFound},
		{name: "not found", err: storage.ErrNotFound, wantStatus: http.StatusFound, wantFlash: true},
		{name: "invalid id", err: storage.ErrInvalidID, wantStatus: http.StatusFound, wantFlash: true},
		{name: "store error", err: errors.New("connection refused"), wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &stubTaskStore{deleteErr: tc.err}
			router := newTestRouter(t, store, "alice")

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/delete/t1", nil))

			if rec.Code != tc.wantStatus {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			if store.deletedID != "t1" || store.deletedOwner != "alice" {
				t.Fatalf("unexpected delete call: id=%q owner=%q", store.deletedID, store.deletedOwner)
			}
			if tc.wantStatus == http.StatusFound && rec.Header().Get("Location") != "/todo" {
				t.Fatalf("unexpected location: %s", rec.Header().Get("Location"))
			}
			if tc.wantFlash && len(rec.Result().Cookies()) == 0 {
				t.Fatal("expected flash to be stored in the session cookie")
			}
		})
	}
}
