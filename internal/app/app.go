// internal/app/app.go
package app

import (
	"fmt"

	"github.com/Corphon/VideoScriptStudio/internal/config"
	"github.com/Corphon/VideoScriptStudio/internal/credential"
	"github.com/Corphon/VideoScriptStudio/internal/di"
	"github.com/Corphon/VideoScriptStudio/internal/services"
	"github.com/Corphon/VideoScriptStudio/internal/storage"

	// 注册LLM提供者
	_ "github.com/Corphon/VideoScriptStudio/internal/llm/providers/google"
	_ "github.com/Corphon/VideoScriptStudio/internal/llm/providers/openai"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// 1. 文件存储（密钥池、统计数据、导出产物的底层存储）
	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("storage", fileStorage)

	// 2. 密钥管理器
	credentials, err := credential.NewManager(credential.NewFileStore(fileStorage))
	if err != nil {
		return fmt.Errorf("初始化密钥管理器失败: %w", err)
	}
	container.Register("credentials", credentials)

	// 3. 进度与统计
	progressService := services.NewProgressService()
	container.Register("progress", progressService)

	statsService := services.NewStatsService(fileStorage)
	container.Register("stats", statsService)

	// 4. 配置服务
	configService := services.NewConfigService()
	container.Register("config", configService)

	// 5. 业务服务
	scriptService := services.NewScriptService(credentials, progressService, statsService)
	container.Register("script", scriptService)

	characterService := services.NewCharacterService()
	container.Register("character", characterService)

	exportService := services.NewExportService(fileStorage)
	container.Register("export", exportService)

	return nil
}
