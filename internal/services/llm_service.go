// internal/services/llm_service.go
package services

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/VogueVault/internal/config"
	apperrors "github.com/Corphon/VogueVault/internal/errors"
	"github.com/Corphon/VogueVault/internal/llm"
)

// ErrLLMNotReady 未配置凭据或提供者初始化失败
var ErrLLMNotReady = errors.New("llm service not ready")

// ModelSet 各类请求使用的模型
type ModelSet struct {
	Text     string
	Image    string
	ProImage string
}

// DefaultModels 默认模型
func DefaultModels() ModelSet {
	return ModelSet{
		Text:     "gemini-2.5-flash",
		Image:    "gemini-2.5-flash-image",
		ProImage: "gemini-3-pro-image-preview",
	}
}

// LLMService 提供统一的生成式模型调用接口
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	isReady       bool
	readyState    string

	models ModelSet
	cache  *LLMCache
}

// LLMCache 结构化输出的短期缓存
type LLMCache struct {
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	expiration time.Duration
	maxEntries int
}

// CacheEntry 缓存条目
type CacheEntry struct {
	Response  string
	CreatedAt time.Time
}

// NewLLMService 根据当前配置创建服务；凭据缺失时返回未就绪的服务而不是错误
func NewLLMService(models ModelSet) *LLMService {
	service := createBaseLLMService(models)

	cfg := config.GetCurrentConfig()
	if cfg.LLMProvider == "" || cfg.APIKey() == "" {
		service.readyState = "API key not configured"
		return service
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		service.readyState = fmt.Sprintf("Initialization failed: %v", err)
		return service
	}

	service.provider = provider
	service.providerName = cfg.LLMProvider
	service.isReady = true
	service.readyState = "Ready"
	return service
}

// NewEmptyLLMService 创建一个空的LLM服务实例作为后备方案
func NewEmptyLLMService() *LLMService {
	service := createBaseLLMService(DefaultModels())
	service.providerName = "empty"
	service.readyState = "Standby Service Mode – Please configure the API key in settings"
	return service
}

// NewLLMServiceWithProvider 直接使用给定提供者（测试与嵌入场景）
func NewLLMServiceWithProvider(provider llm.Provider, models ModelSet) *LLMService {
	service := createBaseLLMService(models)
	service.provider = provider
	service.providerName = provider.GetName()
	service.isReady = true
	service.readyState = "Ready"
	return service
}

func createBaseLLMService(models ModelSet) *LLMService {
	defaults := DefaultModels()
	if models.Text == "" {
		models.Text = defaults.Text
	}
	if models.Image == "" {
		models.Image = defaults.Image
	}
	if models.ProImage == "" {
		models.ProImage = defaults.ProImage
	}
	return &LLMService{
		readyState: "Uninitialized",
		models:     models,
		cache: &LLMCache{
			cache:      make(map[string]*CacheEntry),
			expiration: 30 * time.Minute,
			maxEntries: 200,
		},
	}
}

// IsReady 返回服务是否已就绪
func (s *LLMService) IsReady() bool {
	if s == nil {
		return false
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady
}

// GetReadyState 返回服务就绪状态描述
func (s *LLMService) GetReadyState() string {
	if s == nil {
		return "LLM service not initialized"
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.readyState
}

// GetProviderName 当前提供者
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// Models 当前模型设置
func (s *LLMService) Models() ModelSet {
	return s.models
}

// UpdateProvider 更新LLM服务的提供商
func (s *LLMService) UpdateProvider(providerName string, cfg map[string]string) error {
	provider, err := llm.GetProvider(providerName, cfg)
	if err != nil {
		s.providerMutex.Lock()
		s.provider = nil
		s.isReady = false
		s.readyState = fmt.Sprintf("Configuration failed: %v", err)
		s.providerMutex.Unlock()
		return err
	}

	s.providerMutex.Lock()
	s.provider = provider
	s.providerName = providerName
	s.isReady = true
	s.readyState = "Ready"
	s.providerMutex.Unlock()

	s.cache.clear()
	return nil
}

// OnConfigChanged 配置变更时重新初始化提供者
func (s *LLMService) OnConfigChanged(oldConfig, newConfig *config.AppConfig) {
	if newConfig.APIKey() == "" {
		s.providerMutex.Lock()
		s.provider = nil
		s.isReady = false
		s.readyState = "API key not configured"
		s.providerMutex.Unlock()
		return
	}
	s.UpdateProvider(newConfig.LLMProvider, newConfig.LLMConfig)
}

// Generate 发送一次生成请求
func (s *LLMService) Generate(ctx context.Context, req llm.ContentRequest) (*llm.ContentResponse, error) {
	s.providerMutex.RLock()
	provider := s.provider
	ready := s.isReady
	s.providerMutex.RUnlock()

	if provider == nil || !ready {
		return nil, ErrLLMNotReady
	}
	if req.Model == "" {
		req.Model = s.models.Text
	}
	resp, err := provider.GenerateContent(ctx, req)
	if err != nil {
		return nil, apperrors.NewUpstreamError(fmt.Sprintf("%s request failed", provider.GetName()), err)
	}
	return resp, nil
}

// GenerateJSON 请求结构化输出并解析到 out
func (s *LLMService) GenerateJSON(ctx context.Context, req llm.ContentRequest, out interface{}) error {
	if req.ResponseMIMEType == "" {
		req.ResponseMIMEType = "application/json"
	}
	if req.Model == "" {
		req.Model = s.models.Text
	}

	key := s.generateCacheKey(req)
	if cached, ok := s.cache.get(key); ok {
		return json.Unmarshal([]byte(cached), out)
	}

	resp, err := s.Generate(ctx, req)
	if err != nil {
		return err
	}

	cleaned := CleanLLMJSONResponse(resp.Text)
	if cleaned == "" {
		return errors.New("模型未返回结构化内容")
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("解析结构化输出失败: %w", err)
	}

	s.cache.put(key, cleaned)
	return nil
}

// generateCacheKey 生成缓存键
func (s *LLMService) generateCacheKey(req llm.ContentRequest) string {
	h := md5.New()
	fmt.Fprintf(h, "%s:::%s:::%s:::", s.GetProviderName(), req.Model, req.ResponseMIMEType)
	for _, p := range req.Parts {
		if p.InlineData != nil {
			h.Write([]byte(p.InlineData.MIMEType))
			h.Write(p.InlineData.Data)
			continue
		}
		h.Write([]byte(p.Text))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (c *LLMCache) get(key string) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.cache[key]
	if !exists || time.Since(entry.CreatedAt) > c.expiration {
		return "", false
	}
	return entry.Response, true
}

func (c *LLMCache) put(key, response string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.cache) >= c.maxEntries {
		c.cleanupOldest(len(c.cache) - c.maxEntries + 1)
	}
	c.cache[key] = &CacheEntry{Response: response, CreatedAt: time.Now()}
}

// cleanupOldest 删除最旧的 count 个条目，调用方持有锁
func (c *LLMCache) cleanupOldest(count int) {
	for ; count > 0; count-- {
		var oldestKey string
		var oldest time.Time
		for k, v := range c.cache {
			if oldestKey == "" || v.CreatedAt.Before(oldest) {
				oldestKey, oldest = k, v.CreatedAt
			}
		}
		if oldestKey == "" {
			return
		}
		delete(c.cache, oldestKey)
	}
}

func (c *LLMCache) clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache = make(map[string]*CacheEntry)
}

var jsonNoiseReplacer = strings.NewReplacer(
	"```json", "",
	"```JSON", "",
	"```", "",
)

// CleanLLMJSONResponse 去掉Markdown围栏等噪声，截取第一个完整的JSON对象或数组
func CleanLLMJSONResponse(raw string) string {
	s := strings.TrimSpace(jsonNoiseReplacer.Replace(raw))
	s = strings.TrimPrefix(s, "\ufeff")

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return ""
	}
	s = s[start:]

	open, close := byte('{'), byte('}')
	if s[0] == '[' {
		open, close = '[', ']'
	}

	balance := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		char := s[i]
		if escaped {
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if char == open {
			balance++
		} else if char == close {
			balance--
			if balance == 0 {
				return strings.TrimSpace(s[:i+1])
			}
		}
	}

	// 没有找到匹配的结束符
	return strings.TrimSpace(s)
}
