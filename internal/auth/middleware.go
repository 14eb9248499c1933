package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/architsalriwal/todo-app/internal/web"
)

const (
	msgLoginRequired  = "このページを表示するにはログインしてください。"
	msgSessionExpired = "セッションの有効期限が切れました。再度ログインしてください。"
	msgCSRFInvalid    = "フォームの有効期限が切れました。ページを再読み込みしてください。"
)

// RequireLogin はセッションを検証するミドルウェアを返します。
// 未認証のリクエストは /login へリダイレクトされます。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		if _, ok := session.Get(sessionKeyUserID).(string); ok && m.sessionExpired(session) {
			session.Clear()
			web.RedirectWithFlash(c, "/login", web.FlashWarning, msgSessionExpired)
			c.Abort()
			return
		}

		user := m.LoadUser(c.Request.Context(), session)
		if user == nil {
			session.Clear()
			web.RedirectWithFlash(c, "/login", web.FlashWarning, msgLoginRequired)
			c.Abort()
			return
		}

		session.Set(sessionKeyLastActive, m.now().Unix())
		if err := session.Save(); err != nil {
			m.logger.Printf("failed to refresh session: %v", err)
		}
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// VerifyCSRF はフォームの csrf_token または X-CSRF-Token ヘッダーを検証するミドルウェアです。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		expected := CSRFToken(c)
		received := c.GetHeader(csrfHeader)
		if received == "" {
			received = c.PostForm(csrfFormField)
		}
		if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			web.RenderError(c, http.StatusForbidden, msgCSRFInvalid)
			c.Abort()
			return
		}

		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
