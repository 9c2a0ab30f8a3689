// internal/api/router.go
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/VideoScriptStudio/internal/config"
	"github.com/Corphon/VideoScriptStudio/internal/credential"
	"github.com/Corphon/VideoScriptStudio/internal/di"
	"github.com/Corphon/VideoScriptStudio/internal/services"
)

// SetupRouter 配置HTTP路由
// 所有服务从容器获取，不在此处创建新实例
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	container := di.GetContainer()

	scriptService, ok := container.Get("script").(*services.ScriptService)
	if !ok {
		return nil, fmt.Errorf("脚本服务未正确初始化")
	}

	characterService, ok := container.Get("character").(*services.CharacterService)
	if !ok {
		return nil, fmt.Errorf("角色服务未正确初始化")
	}

	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("导出服务未正确初始化")
	}

	progressService, ok := container.Get("progress").(*services.ProgressService)
	if !ok {
		return nil, fmt.Errorf("进度服务未正确初始化")
	}

	configService, ok := container.Get("config").(*services.ConfigService)
	if !ok {
		return nil, fmt.Errorf("配置服务未正确初始化")
	}

	statsService, ok := container.Get("stats").(*services.StatsService)
	if !ok {
		return nil, fmt.Errorf("统计服务未正确初始化")
	}

	credentials, ok := container.Get("credentials").(*credential.Manager)
	if !ok {
		return nil, fmt.Errorf("密钥管理器未正确初始化")
	}

	handler := NewHandler(
		scriptService,
		characterService,
		exportService,
		progressService,
		configService,
		statsService,
		credentials,
	)

	r := gin.Default()
	r.Use(CORSMiddleware())

	api := r.Group("/api")
	{
		scripts := api.Group("/scripts")
		{
			scripts.POST("/generate", handler.GenerateScript)
			scripts.PUT("/characters/rename", handler.RenameCharacter)

			export := scripts.Group("/export")
			{
				export.POST("/prompts", handler.ExportPrompts)
				export.POST("/dialogue", handler.ExportScriptLines)
				export.POST("/project", handler.ExportProject)
				export.POST("/all", handler.ExportAll)
			}
		}

		keys := api.Group("/keys")
		{
			keys.GET("", handler.GetKeys)
			keys.POST("", handler.AddKey)
			keys.DELETE("", handler.DeleteKey)
		}

		llm := api.Group("/llm")
		{
			llm.GET("/status", handler.GetLLMStatus)
			llm.PUT("/config", handler.UpdateLLMConfig)
			llm.PUT("/generation", handler.UpdateGenerationConfig)
		}

		api.GET("/stats", handler.GetStats)
	}

	r.GET("/ws/progress/:task_id", handler.ProgressWebSocket)

	return r, nil
}
