// internal/services/script_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Corphon/VideoScriptStudio/internal/config"
	"github.com/Corphon/VideoScriptStudio/internal/credential"
	apperrors "github.com/Corphon/VideoScriptStudio/internal/errors"
	"github.com/Corphon/VideoScriptStudio/internal/llm"
	"github.com/Corphon/VideoScriptStudio/internal/models"
	"github.com/Corphon/VideoScriptStudio/internal/utils"
)

// 角色形象提示词统一追加的背景约束
const imagePromptSuffix = " Solid white background."

// ScriptService 负责脚本生成的完整流程：
// 构建结构化请求、调用外部生成服务、解析响应、
// 以及为每个角色批量生成形象提示词
type ScriptService struct {
	credentials *credential.Manager
	progress    *ProgressService
	stats       *StatsService

	// 测试注入点：默认通过提供者注册表创建
	newProvider func(name string, cfg map[string]string) (llm.Provider, error)
}

// NewScriptService 创建脚本服务实例
func NewScriptService(creds *credential.Manager, progress *ProgressService, stats *StatsService) *ScriptService {
	return &ScriptService{
		credentials: creds,
		progress:    progress,
		stats:       stats,
		newProvider: llm.GetProvider,
	}
}

// provider 使用指定密钥创建当前配置的提供者实例
func (s *ScriptService) provider(apiKey string) (llm.Provider, error) {
	appCfg := config.GetCurrentConfig()

	cfg := make(map[string]string, len(appCfg.LLMConfig)+1)
	for k, v := range appCfg.LLMConfig {
		cfg[k] = v
	}
	cfg["api_key"] = apiKey

	return s.newProvider(appCfg.LLMProvider, cfg)
}

// buildScriptPrompt 构建脚本生成提示词
func buildScriptPrompt(form *models.FormData, numberOfScenes int) string {
	return fmt.Sprintf(`
Act as a professional video scriptwriter. Your task is to generate a complete video script based on the following specifications. The output MUST be a valid JSON object that adheres to the provided schema.

**Specifications:**
- **Video Idea:** %s
- **Cinematic Style:** %s
- **Number of Main Characters:** %d
- **Number of Side Characters:** %d
- **Total Scenes:** %d (Each scene should represent an 8-second video prompt)
- **Language:** %s
- **Script Type:** %s

**Instructions:**
1.  **Create Characters:** First, create compelling characters based on the video idea and the specified numbers. Provide a name and a brief description for each character in the requested language. Classify each character's type as either 'Main' or 'Side'.
2.  **Write the Script:** Write a script divided into exactly %d scenes.
3.  **Scene Characters:** For each scene, you MUST specify which characters are present in a list of their names. The names must exactly match the character names created in step 1. A maximum of 3 characters are allowed per scene.
4.  **Scene Prompts:** For each scene, create a descriptive prompt suitable for a video generation AI. This prompt should describe the visual elements, character actions, and setting, consistent with the cinematic style.
5.  **Dialogue/Narration:**
    - If the Script Type is "Lời thoại" (Dialogue), include dialogue for the characters in each relevant scene.
    - If the Script Type is "Lời dẫn" (Narration), include a narrator's voice-over for each relevant scene.
6.  **JSON Output:** Format the entire output as a single JSON object. Do not include any text, markdown, or code block fences before or after the JSON object.

The language of all generated text content (character descriptions, prompts, dialogue, narration) MUST be in %s.
`,
		form.Idea, form.Style, form.MainCharacters, form.SideCharacters,
		numberOfScenes, form.Language, form.ScriptType,
		numberOfScenes, form.Language)
}

// scriptResponseSchema 构建脚本响应的JSON Schema
// 台词与旁白只声明其一，与表单选择的叙述模式一致
func scriptResponseSchema(mode models.ScriptMode, numberOfScenes int) map[string]interface{} {
	sceneProperties := map[string]interface{}{
		"scene": map[string]interface{}{
			"type":        "integer",
			"description": "Scene number.",
		},
		"prompt": map[string]interface{}{
			"type":        "string",
			"description": "A descriptive prompt for an AI video generator for this 8-second scene.",
		},
		"characters": map[string]interface{}{
			"type":        "array",
			"description": "Names of the characters present in this scene. Must match names from the 'characters' list.",
			"items":       map[string]interface{}{"type": "string"},
		},
	}

	lineField := "narration"
	lineDescription := "Narration for the scene in the specified language. Can be empty."
	if mode == models.ScriptModeDialogue {
		lineField = "dialogue"
		lineDescription = "Dialogue for the scene in the specified language. Can be empty."
	}
	sceneProperties[lineField] = map[string]interface{}{
		"type":        "string",
		"description": lineDescription,
	}

	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"characters": map[string]interface{}{
				"type":        "array",
				"description": "List of characters in the story.",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name": map[string]interface{}{
							"type":        "string",
							"description": "Character's name.",
						},
						"description": map[string]interface{}{
							"type":        "string",
							"description": "Brief description of the character.",
						},
						"type": map[string]interface{}{
							"type":        "string",
							"description": "Character type. Must be either 'Main' or 'Side'.",
						},
					},
					"required": []string{"name", "description", "type"},
				},
			},
			"scenes": map[string]interface{}{
				"type":        "array",
				"description": fmt.Sprintf("List of %d scenes for the video script.", numberOfScenes),
				"items": map[string]interface{}{
					"type":       "object",
					"properties": sceneProperties,
					"required":   []string{"scene", "prompt", "characters", lineField},
				},
			},
		},
		"required": []string{"characters", "scenes"},
	}
}

// RequestScript 请求生成完整脚本
// 输入无法产生任何场景时在发起网络请求之前返回 InvalidInput 错误
func (s *ScriptService) RequestScript(ctx context.Context, form *models.FormData, apiKey string) (*models.GeneratedScript, error) {
	numberOfScenes := form.NumberOfScenes()
	if numberOfScenes < 1 {
		return nil, apperrors.NewInvalidInputError("视频时长不足以生成任何场景", nil)
	}

	provider, err := s.provider(apiKey)
	if err != nil {
		return nil, err
	}

	gen := config.GetCurrentConfig().Generation
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(gen.RequestTimeoutSec)*time.Second)
	defer cancel()

	resp, err := provider.CompleteText(reqCtx, llm.CompletionRequest{
		Prompt:           buildScriptPrompt(form, numberOfScenes),
		Temperature:      gen.ScriptTemperature,
		Model:            gen.ScriptModel,
		ResponseMIMEType: "application/json",
		ResponseSchema:   scriptResponseSchema(form.Mode(), numberOfScenes),
	})
	if err != nil {
		return nil, err
	}

	script, err := parseGeneratedScript(resp.Text)
	if err != nil {
		return nil, err
	}

	if s.stats != nil {
		s.stats.RecordScriptRequest(resp.TokensUsed)
	}
	return script, nil
}

// parseGeneratedScript 将响应文本解析为类型化脚本
func parseGeneratedScript(raw string) (*models.GeneratedScript, error) {
	cleaned := SanitizeJSONResponse(raw)

	var script models.GeneratedScript
	if err := json.Unmarshal([]byte(cleaned), &script); err != nil {
		// 退而求其次，尝试从文本中提取JSON对象
		extracted, ok := extractJSONObject(cleaned)
		if !ok {
			return nil, apperrors.NewResponseFormatError("响应无法解析为JSON脚本", err)
		}
		if err := json.Unmarshal([]byte(extracted), &script); err != nil {
			return nil, apperrors.NewResponseFormatError("响应无法解析为JSON脚本", err)
		}
	}

	if len(script.Scenes) == 0 {
		return nil, apperrors.NewResponseFormatError("脚本响应中没有场景", nil)
	}
	if len(script.Characters) == 0 {
		return nil, apperrors.NewResponseFormatError("脚本响应中没有角色", nil)
	}
	return &script, nil
}

// SanitizeJSONResponse 移除响应中的Markdown代码块或反引号，确保可以解析为JSON
func SanitizeJSONResponse(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return cleaned
	}

	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
		lower := strings.ToLower(cleaned)
		if strings.HasPrefix(lower, "json") {
			cleaned = strings.TrimSpace(cleaned[4:])
		}
		if idx := strings.LastIndex(cleaned, "```"); idx != -1 {
			cleaned = cleaned[:idx]
		}
	}

	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.Trim(cleaned, "`")
	return strings.TrimSpace(cleaned)
}

// extractJSONObject 从文本中提取首个完整的JSON对象
func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// buildImagePromptRequest 构建单个角色的形象提示词请求文本
func buildImagePromptRequest(ch *models.Character, form *models.FormData) string {
	return fmt.Sprintf(`
Based on the following video idea, cinematic style, and character description, generate a detailed and descriptive image prompt in English for an AI image generator. The prompt should capture the character's appearance, clothing, mood, and key attributes.

- Video Idea: "%s"
- Cinematic Style: "%s"
- Character Name: "%s"
- Character Description (in %s): "%s"

The prompt MUST be in English.
The prompt should be suitable for a realistic or stylized image generation model, matching the cinematic style.
Do not include the character's name in the prompt itself.
The final output must be only the prompt text, without any introductory phrases, explanations, or markdown formatting.
`,
		form.Idea, form.Style, ch.Name, form.Language, ch.Description)
}

// RequestCharacterImagePrompt 为单个角色生成形象提示词
// 结果统一追加纯白背景约束，保证角色图可用于后续抠像合成
func (s *ScriptService) RequestCharacterImagePrompt(ctx context.Context, ch *models.Character, form *models.FormData, apiKey string) (string, error) {
	provider, err := s.provider(apiKey)
	if err != nil {
		return "", err
	}

	gen := config.GetCurrentConfig().Generation
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(gen.RequestTimeoutSec)*time.Second)
	defer cancel()

	resp, err := provider.CompleteText(reqCtx, llm.CompletionRequest{
		Prompt:      buildImagePromptRequest(ch, form),
		Temperature: gen.ImageTemperature,
		Model:       gen.ImagePromptModel,
	})
	if err != nil {
		return "", err
	}

	if s.stats != nil {
		s.stats.RecordPromptRequest(resp.TokensUsed)
	}
	return strings.TrimSpace(resp.Text) + imagePromptSuffix, nil
}

// GenerateComplete 执行一次完整的生成流程：
// 取一个密钥用于整个提交（脚本请求与全部形象提示词请求），
// 外部服务返回鉴权失败时将该密钥从池中永久剔除
func (s *ScriptService) GenerateComplete(ctx context.Context, form *models.FormData, taskID string) (*models.GenerationResult, error) {
	tracker := s.progress.CreateTracker(taskID)

	if form.NumberOfScenes() < 1 {
		err := apperrors.NewInvalidInputError("视频时长不足以生成任何场景", nil)
		tracker.Fail(err.Error())
		return nil, err
	}

	apiKey, err := s.credentials.Next()
	if err != nil {
		tracker.Fail(err.Error())
		return nil, err
	}

	tracker.UpdateProgress(10, "正在请求脚本生成...")

	script, err := s.RequestScript(ctx, form, apiKey)
	if err != nil {
		err = s.handleRequestError(err, apiKey)
		tracker.Fail(err.Error())
		return nil, err
	}

	tracker.UpdateProgress(40, fmt.Sprintf("脚本已生成（%d个场景），正在生成角色形象提示词...", len(script.Scenes)))

	statuses, err := s.generateImagePrompts(ctx, script, form, apiKey, tracker)
	if err != nil {
		tracker.Fail(err.Error())
		return nil, err
	}

	tracker.Complete("生成完成")
	return &models.GenerationResult{
		TaskID:          taskID,
		Script:          script,
		CharacterStatus: statuses,
	}, nil
}

// generateImagePrompts 并发生成所有角色的形象提示词
// fail_fast 策略下首个失败取消其余任务并返回错误；
// best_effort 策略下逐角色记录结果，脚本整体仍然可用
func (s *ScriptService) generateImagePrompts(ctx context.Context, script *models.GeneratedScript, form *models.FormData, apiKey string, tracker *ProgressTracker) ([]models.CharacterPromptStatus, error) {
	total := len(script.Characters)
	if total == 0 {
		return nil, nil
	}

	gen := config.GetCurrentConfig().Generation
	workers := gen.ImagePromptWorkers
	if workers < 1 {
		workers = 1
	}
	failFast := gen.ImagePromptPolicy != config.ImagePromptPolicyBestEffort

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, apperrors.NewProcessingError("创建工作池失败", err)
	}
	defer pool.Release()

	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		completed int32
		firstErr  error
		errOnce   sync.Once
		evictOnce sync.Once
	)
	statuses := make([]models.CharacterPromptStatus, total)

	for i := range script.Characters {
		idx := i
		ch := &script.Characters[idx]
		wg.Add(1)

		task := func() {
			defer wg.Done()

			if fanCtx.Err() != nil {
				statuses[idx] = models.CharacterPromptStatus{
					Name:  ch.Name,
					Error: "已取消",
				}
				return
			}

			prompt, promptErr := s.RequestCharacterImagePrompt(fanCtx, ch, form, apiKey)
			if promptErr != nil {
				if apperrors.IsAuthenticationError(promptErr) {
					evictOnce.Do(func() { s.evictKey(apiKey) })
					promptErr = s.maskedAuthError(promptErr, apiKey)
				}
				statuses[idx] = models.CharacterPromptStatus{
					Name:  ch.Name,
					Error: promptErr.Error(),
				}
				if failFast {
					errOnce.Do(func() {
						firstErr = promptErr
						cancel()
					})
				}
				return
			}

			ch.ImagePrompt = prompt
			statuses[idx] = models.CharacterPromptStatus{Name: ch.Name, OK: true}

			done := atomic.AddInt32(&completed, 1)
			if tracker != nil {
				tracker.UpdateProgress(40+int(55*done/int32(total)),
					fmt.Sprintf("角色形象提示词 %d/%d", done, total))
			}
		}

		if submitErr := pool.Submit(task); submitErr != nil {
			// 池已关闭时直接内联执行，保证每个角色都有结果
			task()
		}
	}

	wg.Wait()

	if failFast && firstErr != nil {
		return statuses, firstErr
	}
	return statuses, nil
}

// handleRequestError 对脚本请求错误做密钥剔除与脱敏处理
func (s *ScriptService) handleRequestError(err error, apiKey string) error {
	if apperrors.IsAuthenticationError(err) {
		s.evictKey(apiKey)
		return s.maskedAuthError(err, apiKey)
	}
	return err
}

// evictKey 从池中剔除鉴权失败的密钥并记录
func (s *ScriptService) evictKey(apiKey string) {
	if s.credentials.Evict(apiKey) {
		if s.stats != nil {
			s.stats.RecordKeyEviction()
		}
		utils.GetLogger().Warn("密钥鉴权失败，已从池中剔除", map[string]interface{}{
			"key": credential.Mask(apiKey),
		})
	}
}

// maskedAuthError 在错误消息中标注被剔除的密钥（脱敏形式）
func (s *ScriptService) maskedAuthError(err error, apiKey string) error {
	return apperrors.NewAuthenticationError(
		fmt.Sprintf("密钥 %s 鉴权失败，已从池中剔除", credential.Mask(apiKey)), err)
}
