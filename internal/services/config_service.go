// internal/services/config_service.go
package services

import (
	"sync"
	"time"

	"github.com/Corphon/VideoScriptStudio/internal/config"
	apperrors "github.com/Corphon/VideoScriptStudio/internal/errors"
)

// ConfigChangeRecord 配置变更记录
type ConfigChangeRecord struct {
	Timestamp time.Time   `json:"timestamp"`
	Section   string      `json:"section"`
	OldValue  interface{} `json:"old_value"`
	NewValue  interface{} `json:"new_value"`
}

// ConfigService 提供运行时配置的读取与更新
type ConfigService struct {
	mu            sync.RWMutex
	cachedConfig  *config.AppConfig
	lastUpdated   time.Time
	changeHistory []ConfigChangeRecord
}

// NewConfigService 创建配置服务实例
func NewConfigService() *ConfigService {
	return &ConfigService{
		cachedConfig: config.GetCurrentConfig(),
		lastUpdated:  time.Now(),
	}
}

// GetCurrentConfig 获取当前配置副本
func (s *ConfigService) GetCurrentConfig() *config.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configCopy := *s.cachedConfig
	return &configCopy
}

// UpdateLLMConfig 更新提供者配置并刷新缓存
func (s *ConfigService) UpdateLLMConfig(provider string, llmConfig map[string]string) error {
	if provider == "" {
		return apperrors.NewInvalidInputError("提供者名称不能为空", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldProvider := s.cachedConfig.LLMProvider
	if err := config.UpdateLLMConfig(provider, llmConfig); err != nil {
		return err
	}

	s.cachedConfig = config.GetCurrentConfig()
	s.recordChangeLocked("llm", oldProvider, provider)
	return nil
}

// UpdateGenerationConfig 更新生成配置并刷新缓存
func (s *ConfigService) UpdateGenerationConfig(gen config.GenerationConfig) error {
	if gen.ScriptModel == "" || gen.ImagePromptModel == "" {
		return apperrors.NewInvalidInputError("模型名称不能为空", nil)
	}
	if gen.ImagePromptWorkers < 1 {
		return apperrors.NewInvalidInputError("并发工作数必须大于0", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldGen := s.cachedConfig.Generation
	if err := config.UpdateGenerationConfig(gen); err != nil {
		return err
	}

	s.cachedConfig = config.GetCurrentConfig()
	s.recordChangeLocked("generation", oldGen, s.cachedConfig.Generation)
	return nil
}

func (s *ConfigService) recordChangeLocked(section string, oldValue, newValue interface{}) {
	s.lastUpdated = time.Now()
	s.changeHistory = append(s.changeHistory, ConfigChangeRecord{
		Timestamp: s.lastUpdated,
		Section:   section,
		OldValue:  oldValue,
		NewValue:  newValue,
	})
}

// ChangeHistory 返回配置变更历史的副本
func (s *ConfigService) ChangeHistory() []ConfigChangeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]ConfigChangeRecord, len(s.changeHistory))
	copy(history, s.changeHistory)
	return history
}
