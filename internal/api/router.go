// internal/api/router.go
package api

import (
	"fmt"

	"github.com/Corphon/VogueVault/internal/config"
	"github.com/Corphon/VogueVault/internal/di"
	"github.com/Corphon/VogueVault/internal/services"
	"github.com/Corphon/VogueVault/internal/session"
	"github.com/Corphon/VogueVault/internal/utils"
	"github.com/gin-gonic/gin"
)

// 每个会话每分钟允许的远程分析请求数
const (
	analysisPerMinute       = 30
	clientAnalysisPerMinute = 120
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 获取依赖注入容器
	container := di.GetContainer()

	sessionService, err := di.Resolve[*services.SessionService](container, "sessions")
	if err != nil {
		return nil, fmt.Errorf("会话服务未正确初始化: %w", err)
	}
	screenService, err := di.Resolve[*services.ScreenService](container, "screens")
	if err != nil {
		return nil, fmt.Errorf("屏幕服务未正确初始化: %w", err)
	}
	llmService, err := di.Resolve[*services.LLMService](container, "llm")
	if err != nil {
		return nil, fmt.Errorf("LLM服务未正确初始化: %w", err)
	}
	configService, err := di.Resolve[*services.ConfigService](container, "config")
	if err != nil {
		return nil, fmt.Errorf("配置服务未正确初始化: %w", err)
	}
	signer, err := di.Resolve[*session.Signer](container, "signer")
	if err != nil {
		return nil, fmt.Errorf("会话签名器未正确初始化: %w", err)
	}

	metrics, ok := container.Get("metrics").(*utils.APIMetrics)
	if !ok {
		metrics = utils.NewAPIMetrics(utils.GetMetricsCollector(), utils.GetLogger())
	}

	// WebSocket 管理器与限流器随路由创建，由容器负责关闭
	manager, ok := container.Get("websocket").(*WebSocketManager)
	if !ok {
		manager = NewWebSocketManager()
		container.Register("websocket", manager)
	}
	limiter, ok := container.Get("ratelimiter").(*RateLimiter)
	if !ok {
		limiter = NewRateLimiter()
		container.Register("ratelimiter", limiter)
	}

	handler := NewHandler(sessionService, screenService, llmService, configService, metrics, manager)
	wsHandler := NewWebSocketHandler(screenService, manager)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(corsMiddleware())
	r.MaxMultipartMemory = 16 << 20

	withSession := SessionMiddleware(signer, sessionService)
	clientLimit := ClientRateLimit(limiter, clientAnalysisPerMinute)
	aiLimit := AnalysisRateLimit(limiter, analysisPerMinute)

	// WebSocket 状态推送
	r.GET("/ws/session", withSession, wsHandler.SessionWebSocket)

	api := r.Group("/api")
	{
		// 无会话的全局接口
		api.GET("/health", handler.Health)
		api.GET("/metrics", handler.GetMetrics)
		api.GET("/catalog", handler.GetCategories)
		api.GET("/design/aspect-ratios", handler.GetAspectRatios)
		api.GET("/ws/status", func(c *gin.Context) {
			handler.Response.Success(c, manager.GetStatus())
		})

		// 设置
		settings := api.Group("/settings")
		{
			settings.GET("/status", handler.GetSettingsStatus)
			settings.GET("/history", handler.GetSettingsHistory)
			settings.PUT("/credential", handler.UpdateCredential)
		}

		s := api.Group("", withSession)
		{
			s.GET("/state", handler.GetState)
			s.DELETE("/session", handler.DeleteSession)
			s.POST("/navigate", handler.Navigate)
			s.POST("/screens/:screen/reset", handler.ResetScreen)

			s.GET("/dashboard", handler.GetDashboard)
			s.GET("/impact", handler.GetImpact)

			vault := s.Group("/vault")
			{
				vault.GET("", handler.GetVault)
				vault.POST("/upload", clientLimit, aiLimit, handler.UploadItem)
				vault.PUT("/items/:item_id/brand", handler.UpdateBrand)
				vault.POST("/items/:item_id/stage", handler.StageItem)
			}

			orchestrator := s.Group("/orchestrator")
			{
				orchestrator.POST("/toggle/:item_id", handler.ToggleOutfit)
				orchestrator.POST("/suggest-missing", handler.SuggestMissingPiece)
				orchestrator.POST("/clear", handler.ClearOutfit)
				orchestrator.POST("/ask", clientLimit, aiLimit, handler.AskStylist)
			}

			gatekeeper := s.Group("/gatekeeper")
			{
				gatekeeper.POST("/scan", clientLimit, aiLimit, handler.ScanPurchase)
				gatekeeper.POST("/discard", handler.DiscardPurchase)
			}

			mixer := s.Group("/mixer")
			{
				mixer.POST("/images", handler.AddMixerImages)
				mixer.DELETE("/images/:image_id", handler.RemoveMixerImage)
				mixer.POST("/mix", clientLimit, aiLimit, handler.Mix)
				mixer.POST("/save", handler.SaveMix)
			}

			design := s.Group("/design")
			{
				design.POST("/generate", clientLimit, aiLimit, handler.GenerateDesign)
				design.POST("/save", handler.SaveDesign)
			}

			s.POST("/eco-lab/generate", clientLimit, aiLimit, handler.GeneratePrototype)
		}
	}

	return r, nil
}

// ShutdownRouter 停止路由创建的后台组件
func ShutdownRouter() {
	container := di.GetContainer()
	if manager, ok := container.Get("websocket").(*WebSocketManager); ok {
		manager.Shutdown()
	}
	if limiter, ok := container.Get("ratelimiter").(*RateLimiter); ok {
		limiter.Stop()
	}
}
