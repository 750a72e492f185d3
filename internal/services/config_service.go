// internal/services/config_service.go
package services

import (
	"strings"
	"sync"
	"time"

	"github.com/Corphon/VogueVault/internal/config"
	apperrors "github.com/Corphon/VogueVault/internal/errors"
	"github.com/Corphon/VogueVault/internal/llm"
	"github.com/Corphon/VogueVault/internal/utils"
)

// ConfigService 管理运行时可修改的配置（服务凭据）
type ConfigService struct {
	// 配置变更事件订阅者
	subscribers []ConfigChangeSubscriber

	// 配置历史记录
	changeHistory []ConfigChangeRecord

	mu     sync.RWMutex
	logger *utils.Logger
}

// ConfigChangeSubscriber 配置变更订阅者接口
type ConfigChangeSubscriber interface {
	OnConfigChanged(oldConfig, newConfig *config.AppConfig)
}

// ConfigChangeRecord 配置变更记录（不记录凭据本身）
type ConfigChangeRecord struct {
	Timestamp time.Time `json:"timestamp"`
	ChangedBy string    `json:"changed_by"`
	Section   string    `json:"section"`
	Action    string    `json:"action"`
}

// CredentialStatus 凭据状态
type CredentialStatus struct {
	NeedsKey   bool     `json:"needs_key"`
	Provider   string   `json:"provider"`
	ReadyState string   `json:"ready_state"`
	KeyHint    string   `json:"key_hint,omitempty"`
	Providers  []string `json:"providers"`
}

const maxChangeHistory = 100

// NewConfigService 创建配置服务实例
func NewConfigService() *ConfigService {
	return &ConfigService{
		subscribers:   make([]ConfigChangeSubscriber, 0),
		changeHistory: make([]ConfigChangeRecord, 0, maxChangeHistory),
		logger:        utils.GetLogger(),
	}
}

// SubscribeToChanges 订阅配置变更
func (s *ConfigService) SubscribeToChanges(subscriber ConfigChangeSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, subscriber)
}

// UpdateCredential 设置或清除服务凭据并通知订阅者
func (s *ConfigService) UpdateCredential(apiKey, changedBy string) error {
	apiKey = strings.TrimSpace(apiKey)
	if strings.ContainsAny(apiKey, " \t\r\n") {
		return apperrors.NewValidationError("api key must not contain whitespace", nil)
	}

	oldConfig := config.GetCurrentConfig()
	if err := config.UpdateAPIKey(apiKey); err != nil {
		return apperrors.WrapError(err, "saving credential", apperrors.ErrorTypeError)
	}
	newConfig := config.GetCurrentConfig()

	action := "set"
	if apiKey == "" {
		action = "cleared"
	}
	s.recordChange("credential", action, changedBy)
	s.logger.Info("service credential updated", utils.Fields{"action": action, "by": changedBy})

	s.notifySubscribers(oldConfig, newConfig)
	return nil
}

// Status 返回当前凭据状态
func (s *ConfigService) Status(llmService *LLMService) CredentialStatus {
	cfg := config.GetCurrentConfig()
	status := CredentialStatus{
		NeedsKey:   cfg.APIKey() == "",
		Provider:   cfg.LLMProvider,
		ReadyState: llmService.GetReadyState(),
		Providers:  llm.ListProviders(),
	}
	if key := cfg.APIKey(); len(key) > 4 {
		status.KeyHint = "…" + key[len(key)-4:]
	}
	return status
}

// GetChangeHistory 返回最近的变更记录
func (s *ConfigService) GetChangeHistory(limit int) []ConfigChangeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.changeHistory) {
		limit = len(s.changeHistory)
	}
	start := len(s.changeHistory) - limit
	out := make([]ConfigChangeRecord, limit)
	copy(out, s.changeHistory[start:])
	return out
}

func (s *ConfigService) notifySubscribers(oldConfig, newConfig *config.AppConfig) {
	s.mu.RLock()
	subscribers := make([]ConfigChangeSubscriber, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.RUnlock()

	for _, sub := range subscribers {
		sub.OnConfigChanged(oldConfig, newConfig)
	}
}

func (s *ConfigService) recordChange(section, action, changedBy string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.changeHistory) >= maxChangeHistory {
		s.changeHistory = s.changeHistory[1:]
	}
	s.changeHistory = append(s.changeHistory, ConfigChangeRecord{
		Timestamp: time.Now(),
		ChangedBy: changedBy,
		Section:   section,
		Action:    action,
	})
}
