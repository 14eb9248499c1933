package auth

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/architsalriwal/todo-app/internal/storage"
	"github.com/architsalriwal/todo-app/internal/web"
)

const (
	msgInvalidCredentials = "ユーザー名またはパスワードが正しくありません。アカウントをお持ちでない場合は登録してください。"
	msgUsernameTaken      = "このユーザー名は既に使われています。"
	msgRegistered         = "登録が完了しました。ログインしてください。"
	msgTooManyAttempts    = "ログイン試行回数が上限に達しました。しばらくしてから再度お試しください。"
	msgLoggedOut          = "ログアウトしました。"
	msgMissingFields      = "username と password を送信してください。"
)

// RegisterPage は GET /register のハンドラーです。
func (m *Manager) RegisterPage(c *gin.Context) {
	web.Render(c, http.StatusOK, "register.html", gin.H{"Title": "Register"})
}

// Register は POST /register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	username, password, ok := credentialsFromForm(c)
	if !ok {
		web.RenderError(c, http.StatusBadRequest, msgMissingFields)
		return
	}

	hashed, err := hashPassword(password)
	if err != nil {
		m.logger.Printf("failed to hash password: %v", err)
		web.RenderError(c, http.StatusInternalServerError, "パスワードの処理に失敗しました。")
		return
	}

	if _, err := m.users.CreateUser(c.Request.Context(), username, hashed); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			web.RedirectWithFlash(c, "/register", web.FlashWarning, msgUsernameTaken)
			return
		}
		m.logger.Printf("failed to create user %q: %v", username, err)
		web.RenderError(c, http.StatusInternalServerError, "ユーザーの登録に失敗しました。")
		return
	}

	web.RedirectWithFlash(c, "/login", web.FlashSuccess, msgRegistered)
}

// LoginPage は GET /login のハンドラーです。
func (m *Manager) LoginPage(c *gin.Context) {
	web.Render(c, http.StatusOK, "login.html", gin.H{"Title": "Login"})
}

// Login は POST /login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	username, password, ok := credentialsFromForm(c)
	if !ok {
		web.RenderError(c, http.StatusBadRequest, msgMissingFields)
		return
	}

	ip := c.ClientIP()
	if retryAfter := m.checkLock(ip); retryAfter > 0 {
		// Retry-After は秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		web.RedirectWithFlash(c, "/login", web.FlashWarning, msgTooManyAttempts)
		return
	}

	user, err := m.users.FindUserByUsername(c.Request.Context(), username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.logger.Printf("failed to find user %q: %v", username, err)
		web.RenderError(c, http.StatusInternalServerError, "ユーザー情報の取得に失敗しました。")
		return
	}

	if !checkCredentials(user, password) {
		m.recordFailure(ip)
		web.RedirectWithFlash(c, "/register", web.FlashWarning, msgInvalidCredentials)
		return
	}

	m.resetAttempts(ip)

	if err := m.establishSession(sessions.Default(c), user); err != nil {
		m.logger.Printf("failed to establish session for %q: %v", username, err)
		web.RenderError(c, http.StatusInternalServerError, "セッションの保存に失敗しました。")
		return
	}

	c.Redirect(http.StatusFound, "/todo")
}

// Logout は GET /logout のハンドラーです。RequireLogin の後ろに置きます。
func (m *Manager) Logout(c *gin.Context) {
	sessions.Default(c).Clear()
	web.RedirectWithFlash(c, "/login", web.FlashSuccess, msgLoggedOut)
}

// CurrentUser は RequireLogin が設定したユーザーを返します。
func CurrentUser(c *gin.Context) *storage.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*storage.User)
	return user
}

// CSRFToken はフォームに埋め込む CSRF トークンを返します。
func CSRFToken(c *gin.Context) string {
	token, _ := sessions.Default(c).Get(sessionKeyCSRF).(string)
	return token
}

// credentialsFromForm はフォーム値の有無だけを確認します（空文字は許容）。
func credentialsFromForm(c *gin.Context) (string, string, bool) {
	username, hasUser := c.GetPostForm("username")
	password, hasPass := c.GetPostForm("password")
	return username, password, hasUser && hasPass
}
