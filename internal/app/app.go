// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/VogueVault/internal/api"
	"github.com/Corphon/VogueVault/internal/catalog"
	"github.com/Corphon/VogueVault/internal/config"
	"github.com/Corphon/VogueVault/internal/di"
	"github.com/Corphon/VogueVault/internal/models"
	"github.com/Corphon/VogueVault/internal/services"
	"github.com/Corphon/VogueVault/internal/session"
	"github.com/Corphon/VogueVault/internal/storage"
	"github.com/Corphon/VogueVault/internal/utils"
	"github.com/Corphon/VogueVault/internal/weather"

	// 注册 google 提供者
	_ "github.com/Corphon/VogueVault/internal/llm/providers/google"
)

const (
	sessionCleanupInterval = 10 * time.Minute
	weatherLookupTimeout   = 10 * time.Second
	shutdownTimeout        = 30 * time.Second
)

// Server HTTP 服务器的最小接口，便于测试替换
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用程序实例
type App struct {
	config   *config.AppConfig
	base     *config.Config
	router   http.Handler
	server   Server
	stopChan chan os.Signal
}

var (
	instance *App
	mu       sync.Mutex
)

// GetApp 获取应用实例（单例）
func GetApp() *App {
	mu.Lock()
	defer mu.Unlock()

	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// IsDebugMode 是否处于调试模式
func IsDebugMode() bool {
	if instance == nil || instance.config == nil {
		return false
	}
	return instance.config.DebugMode
}

// Initialize 初始化服务与路由
func Initialize(base *config.Config) error {
	a := GetApp()
	a.base = base

	if err := InitServices(base); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}
	a.config = config.GetCurrentConfig()

	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	a.router = router
	a.server = &http.Server{
		Addr:              ":" + base.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// InitServices 按依赖顺序创建所有服务并注册到容器
func InitServices(base *config.Config) error {
	container := di.GetContainer()
	logger := utils.GetLogger()

	metrics := utils.NewAPIMetrics(utils.GetMetricsCollector(), logger)
	container.Register("metrics", metrics)

	// 1. LLM 服务；凭据缺失时以演示模式运行
	llmService := services.NewLLMService(services.ModelSet{
		Text:     base.GeminiTextModel,
		Image:    base.GeminiImageModel,
		ProImage: base.GeminiProImageModel,
	})
	container.Register("llm", llmService)
	if !llmService.IsReady() {
		logger.Warn("service credential missing, analysis runs in demo mode", utils.Fields{
			"state": llmService.GetReadyState(),
		})
	}

	// 2. 配置服务：凭据变更时重建提供者
	configService := services.NewConfigService()
	configService.SubscribeToChanges(llmService)
	container.Register("config", configService)

	// 3. 分析服务
	analysisService := services.NewAnalysisService(llmService, base.MockDelayScale, metrics)
	container.Register("analysis", analysisService)

	// 4. 会话快照存储（可选）
	var snapshots storage.SnapshotStore
	if base.StateDB != "" {
		store, err := storage.NewSQLiteStore(base.StateDB)
		if err != nil {
			return fmt.Errorf("打开会话数据库失败: %w", err)
		}
		snapshots = store
		container.Register("snapshots", store)
		logger.Info("session snapshots enabled", utils.Fields{"path": base.StateDB})
	}

	sessionService := services.NewSessionService(snapshots, metrics)
	sessionService.StartCleanup(sessionCleanupInterval)
	container.Register("sessions", sessionService)

	// 5. 屏幕控制器，天气在启动时只获取一次
	screenService := services.NewScreenService(sessionService, analysisService, loadWeather(base), metrics)
	container.Register("screens", screenService)

	signer, err := session.NewSigner(base.SessionSecret)
	if err != nil {
		return err
	}
	if base.SessionSecret == "" {
		logger.Warn("SESSION_SECRET not set, sessions will not survive a restart", nil)
	}
	container.Register("signer", signer)

	return nil
}

// loadWeather 配置了坐标时查询一次当前天气，否则或失败时使用演示天气
func loadWeather(base *config.Config) models.WeatherData {
	if !base.HasCoordinates {
		return catalog.MockWeather()
	}

	ctx, cancel := context.WithTimeout(context.Background(), weatherLookupTimeout)
	defer cancel()

	client := weather.NewClient(base.WeatherBaseURL, base.HTTPTimeout)
	current, err := client.Current(ctx, base.WeatherLatitude, base.WeatherLongitude)
	if err != nil {
		utils.GetLogger().Warn("weather lookup failed, using mock weather", utils.Fields{"error": err})
		return catalog.MockWeather()
	}
	return current
}

// Run 启动服务器并等待退出信号
func Run() error {
	a := GetApp()
	if a.server == nil {
		return fmt.Errorf("应用未初始化")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	signal.Notify(a.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(a.stopChan)

	select {
	case err := <-errCh:
		a.cleanup()
		return fmt.Errorf("启动服务器失败: %w", err)
	case <-a.stopChan:
	}

	utils.GetLogger().Info("shutting down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(ctx)
	a.cleanup()
	if err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}
	return nil
}

// cleanup 释放后台协程和存储
func (a *App) cleanup() {
	container := di.GetContainer()

	api.ShutdownRouter()

	if sessions, ok := container.Get("sessions").(*services.SessionService); ok {
		sessions.Stop()
	}
	if store, ok := container.Get("snapshots").(*storage.SQLiteStore); ok {
		if err := store.Close(); err != nil {
			utils.GetLogger().Warn("closing snapshot store failed", utils.Fields{"error": err})
		}
	}
	utils.GetLogger().Close()
}
