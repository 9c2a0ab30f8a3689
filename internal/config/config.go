// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// 图像提示词批量生成的失败策略
const (
	ImagePromptPolicyFailFast   = "fail_fast"
	ImagePromptPolicyBestEffort = "best_effort"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// GenerationConfig 生成调用相关配置
type GenerationConfig struct {
	ScriptModel        string  `json:"script_model"`
	ImagePromptModel   string  `json:"image_prompt_model"`
	ScriptTemperature  float32 `json:"script_temperature"`
	ImageTemperature   float32 `json:"image_temperature"`
	RequestTimeoutSec  int     `json:"request_timeout_sec"`
	ImagePromptPolicy  string  `json:"image_prompt_policy"`
	ImagePromptWorkers int     `json:"image_prompt_workers"`
}

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	ExportDir string `json:"export_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// LLM相关配置
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`

	// 生成相关配置
	Generation GenerationConfig `json:"generation"`
}

// Config 存储从环境变量加载的基础配置
type Config struct {
	Port      string
	DataDir   string
	ExportDir string
	LogDir    string
	DebugMode bool
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:      getEnv("PORT", "8080"),
		DataDir:   getEnvPath("DATA_DIR", "data"),
		ExportDir: getEnvPath("EXPORT_DIR", filepath.Join("data", "exports")),
		LogDir:    getEnvPath("LOG_DIR", "logs"),
		DebugMode: getEnvBool("DEBUG_MODE", true),
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return defaultValue
}

// defaultGeneration 生成配置的默认值（模型与温度沿用线上行为）
func defaultGeneration() GenerationConfig {
	return GenerationConfig{
		ScriptModel:        getEnv("SCRIPT_MODEL", "gemini-1.5-pro"),
		ImagePromptModel:   getEnv("IMAGE_PROMPT_MODEL", "gemini-1.5-flash"),
		ScriptTemperature:  0.8,
		ImageTemperature:   0.7,
		RequestTimeoutSec:  getEnvInt("REQUEST_TIMEOUT_SEC", 120),
		ImagePromptPolicy:  getEnv("IMAGE_PROMPT_POLICY", ImagePromptPolicyFailFast),
		ImagePromptWorkers: getEnvInt("IMAGE_PROMPT_WORKERS", 8),
	}
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:        baseConfig.Port,
		DataDir:     baseConfig.DataDir,
		ExportDir:   baseConfig.ExportDir,
		LogDir:      baseConfig.LogDir,
		DebugMode:   baseConfig.DebugMode,
		LLMProvider: getEnv("LLM_PROVIDER", "google"),
		LLMConfig:   map[string]string{},
		Generation:  defaultGeneration(),
	}

	// 尝试从文件加载已保存的配置
	if _, err := os.Stat(configFile); !os.IsNotExist(err) {
		data, err := os.ReadFile(configFile)
		if err == nil {
			var savedConfig AppConfig
			if json.Unmarshal(data, &savedConfig) == nil {
				// 合并配置：保留文件中的LLM与生成设置，但使用最新的基础配置
				savedConfig.Port = baseConfig.Port
				savedConfig.DataDir = baseConfig.DataDir
				savedConfig.ExportDir = baseConfig.ExportDir
				savedConfig.LogDir = baseConfig.LogDir
				savedConfig.DebugMode = baseConfig.DebugMode
				if savedConfig.LLMProvider == "" {
					savedConfig.LLMProvider = currentConfig.LLMProvider
				}
				if savedConfig.LLMConfig == nil {
					savedConfig.LLMConfig = map[string]string{}
				}
				if savedConfig.Generation.ScriptModel == "" {
					savedConfig.Generation = defaultGeneration()
				}

				currentConfig = &savedConfig
			}
		}
	}

	if currentConfig.Generation.ImagePromptPolicy != ImagePromptPolicyBestEffort {
		currentConfig.Generation.ImagePromptPolicy = ImagePromptPolicyFailFast
	}

	// 保存初始配置到文件
	return saveConfigLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		baseConfig, _ := Load()
		return &AppConfig{
			Port:        baseConfig.Port,
			DataDir:     baseConfig.DataDir,
			ExportDir:   baseConfig.ExportDir,
			LogDir:      baseConfig.LogDir,
			DebugMode:   baseConfig.DebugMode,
			LLMProvider: "google",
			LLMConfig:   map[string]string{},
			Generation:  defaultGeneration(),
		}
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateLLMConfig 更新LLM配置
func UpdateLLMConfig(provider string, llmConfig map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = llmConfig

	return saveConfigLocked()
}

// UpdateGenerationConfig 更新生成配置
func UpdateGenerationConfig(gen GenerationConfig) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}
	if gen.ImagePromptPolicy != ImagePromptPolicyBestEffort {
		gen.ImagePromptPolicy = ImagePromptPolicyFailFast
	}

	currentConfig.Generation = gen
	return saveConfigLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.Lock()
	defer configMutex.Unlock()
	return saveConfigLocked()
}

func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0644); err != nil {
		log.Printf("警告: 保存配置文件失败: %v", err)
		return err
	}
	return nil
}
