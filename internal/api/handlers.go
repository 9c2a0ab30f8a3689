// internal/api/handlers.go
package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Corphon/VideoScriptStudio/internal/config"
	"github.com/Corphon/VideoScriptStudio/internal/credential"
	"github.com/Corphon/VideoScriptStudio/internal/models"
	"github.com/Corphon/VideoScriptStudio/internal/services"
)

// Handler 处理API请求
type Handler struct {
	ScriptService    *services.ScriptService
	CharacterService *services.CharacterService
	ExportService    *services.ExportService
	ProgressService  *services.ProgressService
	ConfigService    *services.ConfigService
	StatsService     *services.StatsService
	Credentials      *credential.Manager

	helper *ResponseHelper
}

// NewHandler 创建API处理器
func NewHandler(
	scriptService *services.ScriptService,
	characterService *services.CharacterService,
	exportService *services.ExportService,
	progressService *services.ProgressService,
	configService *services.ConfigService,
	statsService *services.StatsService,
	credentials *credential.Manager,
) *Handler {
	return &Handler{
		ScriptService:    scriptService,
		CharacterService: characterService,
		ExportService:    exportService,
		ProgressService:  progressService,
		ConfigService:    configService,
		StatsService:     statsService,
		Credentials:      credentials,
		helper:           NewResponseHelper(),
	}
}

// GenerateRequest 脚本生成请求
// TaskID 可选：客户端可预先生成任务ID以便在请求期间订阅进度
type GenerateRequest struct {
	models.FormData
	TaskID string `json:"task_id"`
}

// GenerateScript 生成完整脚本（含角色形象提示词）
func (h *Handler) GenerateScript(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.helper.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if strings.TrimSpace(req.Idea) == "" {
		h.helper.BadRequest(c, "视频创意不能为空")
		return
	}
	if req.Duration < 1 {
		h.helper.BadRequest(c, "视频时长必须大于0分钟")
		return
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = uuid.New().String()
	}

	result, err := h.ScriptService.GenerateComplete(c.Request.Context(), &req.FormData, taskID)
	if err != nil {
		h.helper.AppError(c, err)
		return
	}

	h.helper.Success(c, result, "脚本生成完成")
}

// RenameRequest 角色重命名请求
type RenameRequest struct {
	Script  *models.GeneratedScript `json:"script" binding:"required"`
	Index   int                     `json:"index"`
	NewName string                  `json:"new_name"`
}

// RenameCharacter 重命名角色并传播到所有引用处
func (h *Handler) RenameCharacter(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.helper.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if err := h.CharacterService.RenameCharacter(req.Script, req.Index, req.NewName); err != nil {
		h.helper.AppError(c, err)
		return
	}

	h.helper.Success(c, req.Script, "角色已重命名")
}

// ExportRequest 导出请求
type ExportRequest struct {
	Script *models.GeneratedScript `json:"script" binding:"required"`
	Form   *models.FormData        `json:"form" binding:"required"`
	TaskID string                  `json:"task_id"`
}

// ExportPrompts 导出所有场景的视频提示词文本
func (h *Handler) ExportPrompts(c *gin.Context) {
	req, ok := h.bindExportRequest(c)
	if !ok {
		return
	}

	content := services.ExportFlatPrompts(req.Script, req.Form.Mode())
	h.helper.DownloadResponse(c, []byte(content), services.ExportFilePrompts, "text/plain;charset=utf-8")
}

// ExportScriptLines 导出台词或旁白全文，文件名随叙述模式变化
func (h *Handler) ExportScriptLines(c *gin.Context) {
	req, ok := h.bindExportRequest(c)
	if !ok {
		return
	}

	filename, content := services.ExportFlatScriptLines(req.Script, req.Form.Mode())
	h.helper.DownloadResponse(c, []byte(content), filename, "text/plain;charset=utf-8")
}

// ExportProject 导出项目文档
// 默认作为文件下载；format=json 时返回结构化结果（含转换告警）
func (h *Handler) ExportProject(c *gin.Context) {
	req, ok := h.bindExportRequest(c)
	if !ok {
		return
	}

	project, warnings := h.ExportService.TransformToProject(req.Script, req.Form)

	if c.Query("format") == "json" {
		h.helper.Success(c, gin.H{
			"project":  project,
			"warnings": warnings,
		})
		return
	}

	content, err := services.RenderProjectJSON(project)
	if err != nil {
		h.helper.AppError(c, err)
		return
	}
	h.helper.DownloadResponse(c, content, services.ExportFileProject, "application/json;charset=utf-8")
}

// ExportAll 生成全部导出产物并写入导出目录
func (h *Handler) ExportAll(c *gin.Context) {
	req, ok := h.bindExportRequest(c)
	if !ok {
		return
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = uuid.New().String()
	}

	result, err := h.ExportService.ExportAll(taskID, req.Script, req.Form)
	if err != nil {
		h.helper.AppError(c, err)
		return
	}

	h.helper.Success(c, result, "导出完成")
}

func (h *Handler) bindExportRequest(c *gin.Context) (*ExportRequest, bool) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.helper.BadRequest(c, "请求格式错误", err.Error())
		return nil, false
	}
	if len(req.Script.Scenes) == 0 {
		h.helper.BadRequest(c, "脚本中没有场景")
		return nil, false
	}
	return &req, true
}

// KeyRequest 密钥管理请求
type KeyRequest struct {
	Key string `json:"key" binding:"required"`
}

// GetKeys 列出密钥池（脱敏）
func (h *Handler) GetKeys(c *gin.Context) {
	h.helper.Success(c, gin.H{
		"keys":  h.Credentials.MaskedKeys(),
		"count": h.Credentials.Len(),
	})
}

// AddKey 向池中添加密钥
func (h *Handler) AddKey(c *gin.Context) {
	var req KeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.helper.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if !h.Credentials.Add(strings.TrimSpace(req.Key)) {
		h.helper.BadRequest(c, "密钥为空或已存在")
		return
	}

	h.helper.Created(c, gin.H{"count": h.Credentials.Len()}, "密钥已添加")
}

// DeleteKey 从池中移除密钥（需提供完整密钥值）
func (h *Handler) DeleteKey(c *gin.Context) {
	var req KeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.helper.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if !h.Credentials.Remove(req.Key) {
		h.helper.NotFound(c, "密钥")
		return
	}

	h.helper.Success(c, gin.H{"count": h.Credentials.Len()}, "密钥已移除")
}

// GetLLMStatus 返回当前提供者与生成配置状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	cfg := h.ConfigService.GetCurrentConfig()

	h.helper.Success(c, gin.H{
		"provider":   cfg.LLMProvider,
		"generation": cfg.Generation,
		"key_count":  h.Credentials.Len(),
	})
}

// LLMConfigRequest 提供者配置更新请求
type LLMConfigRequest struct {
	Provider string            `json:"provider" binding:"required"`
	Config   map[string]string `json:"config"`
}

// UpdateLLMConfig 更新提供者配置
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req LLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.helper.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if req.Config == nil {
		req.Config = map[string]string{}
	}
	if err := h.ConfigService.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		h.helper.AppError(c, err)
		return
	}

	h.helper.Success(c, gin.H{"provider": req.Provider}, "提供者配置已更新")
}

// UpdateGenerationConfig 更新生成配置
func (h *Handler) UpdateGenerationConfig(c *gin.Context) {
	var req config.GenerationConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		h.helper.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if err := h.ConfigService.UpdateGenerationConfig(req); err != nil {
		h.helper.AppError(c, err)
		return
	}

	h.helper.Success(c, req, "生成配置已更新")
}

// GetStats 返回使用统计
func (h *Handler) GetStats(c *gin.Context) {
	h.helper.Success(c, h.StatsService.GetStats())
}
