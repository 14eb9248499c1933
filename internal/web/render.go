// Package web は HTML テンプレートの描画とフラッシュメッセージを扱います。
package web

import (
	"embed"
	"html/template"
	"log"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

// フラッシュメッセージの種別
const (
	FlashWarning = "warning"
	FlashSuccess = "success"
)

var flashCategories = []string{FlashWarning, FlashSuccess}

const loggerKey = "web.logger"

// Flash はテンプレートに渡すフラッシュメッセージです。
type Flash struct {
	Category string
	Message  string
}

// Templates は埋め込みテンプレートを解析して返します。
func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

// Install はルーターに HTML テンプレートを登録し、描画時に使うロガーを各リクエストへ渡します。
func Install(router *gin.Engine, logger *log.Logger) error {
	tmpl, err := Templates()
	if err != nil {
		return err
	}
	router.SetHTMLTemplate(tmpl)
	if logger == nil {
		logger = log.Default()
	}
	router.Use(func(c *gin.Context) {
		c.Set(loggerKey, logger)
		c.Next()
	})
	return nil
}

// AddFlash は次のリクエストで表示するメッセージをセッションに積みます。
// 同じ種別の未表示メッセージは置き換えます。
func AddFlash(c *gin.Context, category, message string) {
	session := sessions.Default(c)
	session.Flashes(category)
	session.AddFlash(message, category)
}

// RedirectWithFlash はフラッシュを保存してから 302 でリダイレクトします。
func RedirectWithFlash(c *gin.Context, location, category, message string) {
	AddFlash(c, category, message)
	Redirect(c, location)
}

// Redirect はセッションを保存してから 302 でリダイレクトします。
func Redirect(c *gin.Context, location string) {
	if err := sessions.Default(c).Save(); err != nil {
		loggerFrom(c).Printf("failed to save session: %v", err)
	}
	c.Redirect(http.StatusFound, location)
}

// Render は溜まっているフラッシュを取り出してテンプレートを描画します。
func Render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Flashes"] = popFlashes(c)
	c.HTML(status, name, data)
}

// RenderError はエラーページを描画します。
func RenderError(c *gin.Context, status int, message string) {
	Render(c, status, "error.html", gin.H{
		"Title":   http.StatusText(status),
		"Message": message,
	})
}

func popFlashes(c *gin.Context) []Flash {
	session := sessions.Default(c)
	var flashes []Flash
	for _, category := range flashCategories {
		for _, v := range session.Flashes(category) {
			if msg, ok := v.(string); ok {
				flashes = append(flashes, Flash{Category: category, Message: msg})
			}
		}
	}
	if len(flashes) > 0 {
		if err := session.Save(); err != nil {
			loggerFrom(c).Printf("failed to save session: %v", err)
		}
	}
	return flashes
}

func loggerFrom(c *gin.Context) *log.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if logger, ok := v.(*log.Logger); ok {
			return logger
		}
	}
	return log.Default()
}
