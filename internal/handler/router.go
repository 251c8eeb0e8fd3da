package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"rag-qa-go/internal/middleware"
	"rag-qa-go/internal/repository"
	"rag-qa-go/internal/service"
	"rag-qa-go/pkg/token"
)

// RouterDeps 是注册路由所需的全部依赖。
type RouterDeps struct {
	UserService     service.UserService
	DocumentService service.DocumentService
	QAService       service.QAService
	AdminService    service.AdminService
	JWTManager      *token.JWTManager
	Blacklist       repository.TokenBlacklist
	CORSOrigins     []string
	RequestTimeout  time.Duration
	MaxUploadMB     int64
}

// NewRouter 创建 Gin 引擎并注册全部路由。
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(d.CORSOrigins))

	authHandler := NewAuthHandler(d.UserService)
	userHandler := NewUserHandler(d.UserService)
	documentHandler := NewDocumentHandler(d.DocumentService, d.MaxUploadMB)
	qaHandler := NewQAHandler(d.QAService)
	streamHandler := NewStreamHandler(d.QAService, d.UserService, d.Blacklist, d.JWTManager)
	adminHandler := NewAdminHandler(d.AdminService)

	authRequired := middleware.AuthMiddleware(d.JWTManager, d.Blacklist, d.UserService)
	timeout := middleware.Timeout(d.RequestTimeout)

	apiV1 := r.Group("/api/v1")
	{
		// 无需认证的路由
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/token", authHandler.Token)
		}

		users := apiV1.Group("/users")
		users.Use(authRequired)
		{
			users.GET("/me", userHandler.GetProfile)
			users.POST("/logout", userHandler.Logout)
		}

		documents := apiV1.Group("/documents")
		documents.Use(authRequired, timeout)
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/:id", documentHandler.Get)
			documents.GET("/:id/download", documentHandler.Download)
			documents.DELETE("/:id", documentHandler.Delete)
			documents.POST("/:id/reindex", documentHandler.Reindex)
		}

		qa := apiV1.Group("/qa")
		{
			qa.POST("/query", authRequired, timeout, qaHandler.Query)
			// WebSocket 连接是长连接，不套用请求超时；token 在路径中校验
			qa.GET("/stream/:token", streamHandler.Handle)
		}

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(authRequired, middleware.AdminAuthMiddleware(), timeout)
		{
			admin.GET("/users", adminHandler.ListUsers)
			admin.POST("/index/ensure", adminHandler.EnsureIndex)
			admin.POST("/reindex", adminHandler.ReindexAll)
		}
	}
	return r
}
