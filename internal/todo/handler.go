// Package todo はログイン中のユーザーに紐づくタスクの一覧・作成・削除を提供します。
package todo

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/architsalriwal/todo-app/internal/auth"
	"github.com/architsalriwal/todo-app/internal/storage"
	"github.com/architsalriwal/todo-app/internal/web"
)

const msgTaskNotFound = "指定されたタスクは見つかりませんでした。"

// Handler はタスク関連のハンドラーをまとめた構造体です。
type Handler struct {
	tasks  storage.TaskStore
	logger *log.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(tasks storage.TaskStore, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{tasks: tasks, logger: logger}
}

// List は GET /todo のハンドラーです。
func (h *Handler) List(c *gin.Context) {
	user := auth.CurrentUser(c)
	if user == nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	tasks, err := h.tasks.ListTasks(c.Request.Context(), user.Username)
	if err != nil {
		h.logger.Printf("failed to list tasks for %q: %v", user.Username, err)
		web.RenderError(c, http.StatusInternalServerError, "タスクの取得に失敗しました。")
		return
	}

	web.Render(c, http.StatusOK, "todo.html", gin.H{
		"Title":     "To-Do",
		"Username":  user.Username,
		"Tasks":     tasks,
		"CSRFToken": auth.CSRFToken(c),
	})
}

// Create は POST /todo のハンドラーです。
func (h *Handler) Create(c *gin.Context) {
	user := auth.CurrentUser(c)
	if user == nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	content, ok := c.GetPostForm("content")
	if !ok {
		web.RenderError(c, http.StatusBadRequest, "content を送信してください。")
		return
	}

	if _, err := h.tasks.CreateTask(c.Request.Context(), user.Username, content); err != nil {
		h.logger.Printf("failed to create task for %q: %v", user.Username, err)
		web.RenderError(c, http.StatusInternalServerError, "タスクの作成に失敗しました。")
		return
	}

	c.Redirect(http.StatusFound, "/todo")
}

// Delete は GET /delete/:id のハンドラーです。
// 他のユーザーのタスクは存在しないものとして扱います。
func (h *Handler) Delete(c *gin.Context) {
	user := auth.CurrentUser(c)
	if user == nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	err := h.tasks.DeleteTask(c.Request.Context(), c.Param("id"), user.Username)
	switch {
	case err == nil:
		c.Redirect(http.StatusFound, "/todo")
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidID):
		web.RedirectWithFlash(c, "/todo", web.FlashWarning, msgTaskNotFound)
	default:
		h.logger.Printf("failed to delete task %s for %q: %v", c.Param("id"), user.Username, err)
		web.RenderError(c, http.StatusInternalServerError, "タスクの削除に失敗しました。")
	}
}
