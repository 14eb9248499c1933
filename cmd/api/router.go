package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/architsalriwal/todo-app/internal/auth"
	"github.com/architsalriwal/todo-app/internal/config"
	"github.com/architsalriwal/todo-app/internal/storage"
	"github.com/architsalriwal/todo-app/internal/todo"
	"github.com/architsalriwal/todo-app/internal/web"
)

const healthPingTimeout = 2 * time.Second

// newRouter はミドルウェアとルーティングを配線した Gin エンジンを返します。
func newRouter(cfg *config.Config, store storage.Store, logger *log.Logger) (*gin.Engine, error) {
	// デフォルトミドルウェア: Logger, Recovery
	router := gin.Default()

	// ログイン試行の制限は ClientIP 単位なので、未設定なら転送ヘッダーを一切信頼しない
	if err := router.SetTrustedProxies(cfg.TrustedProxies()); err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	if err := web.Install(router, logger); err != nil {
		return nil, err
	}

	// セッションストアの設定（クッキー署名鍵は必須）
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.IsRelease(),
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, sessionStore))

	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{
			"Origin",
			"Content-Type",
			"Accept",
			"X-CSRF-Token",
		}
		router.Use(cors.New(corsConfig))
	}

	setupRoutes(router, store, logger)
	return router, nil
}

// setupRoutes は認証とタスクのルートを登録します。
func setupRoutes(router *gin.Engine, store storage.Store, logger *log.Logger) {
	router.GET("/health", healthHandler(store))
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/todo")
	})

	authManager := auth.NewManager(store, logger)
	todoHandler := todo.NewHandler(store, logger)

	// ログイン前に叩けるルート
	router.GET("/register", authManager.RegisterPage)
	router.POST("/register", authManager.Register)
	router.GET("/login", authManager.LoginPage)
	router.POST("/login", authManager.Login)

	protected := router.Group("")
	protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
	{
		protected.GET("/logout", authManager.Logout)
		protected.GET("/todo", todoHandler.List)
		protected.POST("/todo", todoHandler.Create)
		protected.GET("/delete/:id", todoHandler.Delete)
	}
}

// healthHandler はストアへの疎通も含めたヘルスチェックを返します。
func healthHandler(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := store.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"service": "todo-app",
			"version": "0.1.0",
		})
	}
}
