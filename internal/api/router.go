// internal/api/router.go
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Corphon/HealthScriptMCP/internal/config"
	"github.com/Corphon/HealthScriptMCP/internal/di"
	"github.com/Corphon/HealthScriptMCP/internal/services"
	"github.com/Corphon/HealthScriptMCP/internal/utils"
)

// RouterOptions 路由中间件参数
type RouterOptions struct {
	DebugMode      bool
	AllowedOrigins []string
	RateLimit      float64 // 每个客户端每秒请求数，<=0 不限流
	RateBurst      int
}

// NewRouter 注册全部路由
func NewRouter(handler *Handler, opts RouterOptions) *gin.Engine {
	if !opts.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(RequestID())
	r.Use(AccessLog(utils.GetLogger().Named("http")))
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	limiter := NewRateLimiter(opts.RateLimit, opts.RateBurst)

	r.GET("/health", handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket 支持
	r.GET("/ws/sessions/:id", handler.SessionWebSocket)

	api := r.Group("/api")
	api.Use(limiter.Middleware(handler.Response))
	{
		api.GET("/quick-actions", handler.ListQuickActions)

		// ===============================
		// 会话与生成流程
		// ===============================
		sessions := api.Group("/sessions")
		{
			sessions.POST("", handler.CreateSession)
			sessions.GET("", handler.ListSessions)
			sessions.GET("/:id", handler.GetSession)
			sessions.DELETE("/:id", handler.DeleteSession)

			sessions.POST("/:id/topic", handler.SubmitTopic)
			sessions.POST("/:id/topic/upload", handler.UploadTopicFile)
			sessions.POST("/:id/outline/select", handler.SelectOutline)
			sessions.POST("/:id/direction/select", handler.SelectDirection)
			sessions.POST("/:id/script/modify", handler.ModifyScript)
			sessions.POST("/:id/script/quick-action", handler.QuickAction)
			sessions.POST("/:id/retry", handler.Retry)
			sessions.POST("/:id/reset", handler.ResetSession)

			// 版本
			sessions.GET("/:id/versions", handler.ListVersions)
			sessions.POST("/:id/versions/:index/load", handler.LoadVersion)

			// 关键词
			sessions.POST("/:id/keywords", handler.AddKeyword)
			sessions.DELETE("/:id/keywords/:keyword", handler.RemoveKeyword)
			sessions.POST("/:id/keywords/reference", handler.AddReference)

			// 分析
			sessions.POST("/:id/analysis", handler.AnalyzeScript)
			sessions.GET("/:id/analysis", handler.GetAnalysis)

			// 导出
			exports := sessions.Group("/:id/export")
			{
				exports.GET("/script", handler.ExportScript)
				exports.GET("/versions/:index", handler.ExportVersion)
				exports.GET("/flowchart", handler.ExportFlowchart)
				exports.GET("/terminology", handler.ExportTerminology)
			}
		}

		// ===============================
		// 分析进度
		// ===============================
		api.GET("/progress/:taskID", handler.SubscribeProgress)
		api.GET("/tasks/:taskID", handler.GetTaskProgress)

		// ===============================
		// 模型配置
		// ===============================
		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.GET("/providers", handler.GetLLMProviders)
			llmGroup.PUT("/config", handler.UpdateLLMConfig)
		}

		api.GET("/ws/status", handler.GetWebSocketStatus)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	corsConfig := cors.DefaultConfig()
	if len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", requestIDHeader}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", requestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour
	return corsConfig
}

// SetupRouter 从容器获取服务并配置HTTP路由
func SetupRouter(base *config.Config) (*gin.Engine, error) {
	container := di.GetContainer()

	sessions, err := di.Resolve[*services.SessionService](container, "session")
	if err != nil {
		return nil, err
	}
	generation, err := di.Resolve[*services.GenerationService](container, "generation")
	if err != nil {
		return nil, err
	}
	analyzer, err := di.Resolve[*services.AnalyzerService](container, "analyzer")
	if err != nil {
		return nil, err
	}
	export, err := di.Resolve[*services.ExportService](container, "export")
	if err != nil {
		return nil, err
	}
	llmService, err := di.Resolve[*services.LLMService](container, "llm")
	if err != nil {
		return nil, err
	}
	progress, err := di.Resolve[*services.ProgressService](container, "progress")
	if err != nil {
		return nil, err
	}
	ws, err := di.Resolve[*WebSocketManager](container, "websocket")
	if err != nil {
		return nil, err
	}

	handler := NewHandler(sessions, generation, analyzer, export, llmService, progress, ws)
	return NewRouter(handler, RouterOptions{
		DebugMode:      base.DebugMode,
		AllowedOrigins: base.CORSOrigins,
		RateLimit:      base.APIRateLimit,
		RateBurst:      base.APIRateBurst,
	}), nil
}
