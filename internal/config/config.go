// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Corphon/VogueVault/internal/utils"
	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
	// 持久化凭据的加密口令，为空时明文保存
	secretKey string
)

// AppConfig 包含应用程序的所有配置（可持久化部分写入 DATA_DIR/config.json）
type AppConfig struct {
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// LLM相关配置
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`
}

// APIKey 返回当前配置的服务凭据
func (c *AppConfig) APIKey() string {
	if c == nil || c.LLMConfig == nil {
		return ""
	}
	return c.LLMConfig["api_key"]
}

// Config 存储从环境变量读取的启动配置
type Config struct {
	Port      string
	APIKey    string
	DataDir   string
	LogDir    string
	DebugMode bool

	GeminiBaseURL       string
	GeminiTextModel     string
	GeminiImageModel    string
	GeminiProImageModel string
	HTTPTimeout         time.Duration
	MockDelayScale      float64

	WeatherBaseURL   string
	WeatherLatitude  float64
	WeatherLongitude float64
	HasCoordinates   bool

	SessionSecret string
	StateDB       string
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	apiKey := getEnv("GEMINI_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("API_KEY", "")
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		APIKey:    apiKey,
		DataDir:   getEnv("DATA_DIR", "data"),
		LogDir:    getEnv("LOG_DIR", "logs"),
		DebugMode: getEnvBool("DEBUG_MODE", true),

		GeminiBaseURL:       getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiTextModel:     getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiImageModel:    getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiProImageModel: getEnv("GEMINI_PRO_IMAGE_MODEL", "gemini-3-pro-image-preview"),
		HTTPTimeout:         time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 60)) * time.Second,
		MockDelayScale:      getEnvFloat("MOCK_DELAY_SCALE", 1.0),

		WeatherBaseURL: getEnv("WEATHER_BASE_URL", "https://api.open-meteo.com"),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		StateDB:       getEnv("STATE_DB", ""),
	}

	lat, latErr := strconv.ParseFloat(os.Getenv("WEATHER_LATITUDE"), 64)
	lon, lonErr := strconv.ParseFloat(os.Getenv("WEATHER_LONGITUDE"), 64)
	if latErr == nil && lonErr == nil {
		cfg.WeatherLatitude = lat
		cfg.WeatherLongitude = lon
		cfg.HasCoordinates = true
	}

	if cfg.MockDelayScale < 0 {
		return nil, fmt.Errorf("MOCK_DELAY_SCALE 不能为负数: %v", cfg.MockDelayScale)
	}
	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("HTTP_TIMEOUT_SECONDS 必须大于0")
	}

	return cfg, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// InitConfig 初始化配置管理器
func InitConfig(base *Config) error {
	configFile = filepath.Join(base.DataDir, "config.json")
	secretKey = base.SessionSecret

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:        base.Port,
		DataDir:     base.DataDir,
		LogDir:      base.LogDir,
		DebugMode:   base.DebugMode,
		LLMProvider: "google",
		LLMConfig: map[string]string{
			"api_key":         base.APIKey,
			"base_url":        base.GeminiBaseURL,
			"default_model":   base.GeminiTextModel,
			"timeout_seconds": strconv.Itoa(int(base.HTTPTimeout.Seconds())),
		},
	}

	// 尝试从文件加载已保存的配置（运行时设置的凭据）
	if data, err := os.ReadFile(configFile); err == nil {
		var saved AppConfig
		if json.Unmarshal(data, &saved) == nil && saved.LLMConfig != nil {
			// 环境变量优先；文件只补充缺失的凭据
			if base.APIKey == "" && saved.LLMConfig["api_key"] != "" {
				key, err := utils.OpenSecret(saved.LLMConfig["api_key"], secretKey)
				if err != nil {
					utils.GetLogger().Warn("saved credential could not be decrypted, ignoring it", utils.Fields{"error": err})
				} else {
					currentConfig.LLMConfig["api_key"] = key
				}
			}
		}
	}

	return saveConfigLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		return &AppConfig{LLMProvider: "google", LLMConfig: map[string]string{}}
	}

	configCopy := *currentConfig
	configCopy.LLMConfig = make(map[string]string, len(currentConfig.LLMConfig))
	for k, v := range currentConfig.LLMConfig {
		configCopy.LLMConfig[k] = v
	}
	return &configCopy
}

// UpdateAPIKey 更新服务凭据并持久化
func UpdateAPIKey(apiKey string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}
	if currentConfig.LLMConfig == nil {
		currentConfig.LLMConfig = map[string]string{}
	}
	currentConfig.LLMConfig["api_key"] = apiKey

	return saveConfigLocked()
}

// saveConfigLocked 保存当前配置到文件，调用方持有锁
func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	onDisk := *currentConfig
	onDisk.LLMConfig = make(map[string]string, len(currentConfig.LLMConfig))
	for k, v := range currentConfig.LLMConfig {
		onDisk.LLMConfig[k] = v
	}
	sealed, err := utils.SealSecret(onDisk.LLMConfig["api_key"], secretKey)
	if err != nil {
		return fmt.Errorf("加密凭据失败: %w", err)
	}
	if sealed != "" {
		onDisk.LLMConfig["api_key"] = sealed
	}

	data, err := json.MarshalIndent(&onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0600)
}
