// internal/services/export_service.go
package services

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/Corphon/VideoScriptStudio/internal/errors"
	"github.com/Corphon/VideoScriptStudio/internal/models"
	"github.com/Corphon/VideoScriptStudio/internal/storage"
)

// 导出文件名
const (
	ExportFilePrompts   = "video_prompts.txt"
	ExportFileDialogue  = "dialogue.txt"
	ExportFileNarration = "narration.txt"
	ExportFileProject   = "project_script.json"
)

const exportBaseDir = "exports"

// 随机种子的取值区间 [0, 100000)
const seedRange = 100000

var (
	idWhitespace = regexp.MustCompile(`\s+`)
	idInvalid    = regexp.MustCompile(`[^\w]`)
)

// ExportService 将生成的脚本转换为下游视频管线的项目文档与纯文本导出
// 转换本身是纯函数式的：时钟与种子源可注入，便于结果可复现
type ExportService struct {
	fs *storage.FileStorage

	now  func() time.Time
	seed func() int
}

// NewExportService 创建导出服务实例
func NewExportService(fs *storage.FileStorage) *ExportService {
	return &ExportService{
		fs:   fs,
		now:  time.Now,
		seed: func() int { return rand.Intn(seedRange) },
	}
}

// truncateRunes 按字符截断字符串
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// characterVisualDescription 取角色的视觉描述：
// 优先使用形象提示词（去掉统一追加的纯白背景约束），否则回退到原始描述
func characterVisualDescription(ch *models.Character) string {
	if ch.ImagePrompt != "" {
		stripped := strings.TrimSpace(strings.Replace(ch.ImagePrompt, imagePromptSuffix, "", 1))
		if stripped != "" {
			return stripped
		}
	}
	return ch.Description
}

// BuildVideoPrompt 组装单个场景的视频生成提示词
// 角色描述按场景出场顺序排列，最多取前3个，
// 其后依次拼接场景提示词与当前叙述模式的台词/旁白，空段落跳过
func BuildVideoPrompt(scene *models.Scene, script *models.GeneratedScript, mode models.ScriptMode) string {
	parts := make([]string, 0, 3)

	characterParts := make([]string, 0, 3)
	for _, name := range scene.Characters {
		if len(characterParts) >= 3 {
			break
		}
		ch, found := script.CharacterByName(name)
		if !found {
			continue
		}
		characterParts = append(characterParts, fmt.Sprintf("%s: %s", ch.Name, characterVisualDescription(ch)))
	}

	if joined := strings.Join(characterParts, ". "); joined != "" {
		parts = append(parts, joined)
	}
	if scene.Prompt != "" {
		parts = append(parts, scene.Prompt)
	}
	if line := scene.ScriptLine(mode); line != "" {
		parts = append(parts, line)
	}

	return strings.Join(parts, ". ")
}

// sanitizeID 将任意文本规整为标识符：小写、空白转下划线、去除其余符号
func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = idWhitespace.ReplaceAllString(s, "_")
	return idInvalid.ReplaceAllString(s, "")
}

// characterID 派生角色的稳定标识符
func characterID(name string) string {
	return "char_" + sanitizeID(name)
}

// parseDialogueLines 从场景台词文本解析出逐行台词
// 仅保留含冒号的行，按首个冒号拆分说话人与内容，两侧为空的行丢弃
func parseDialogueLines(dialogue string) []models.DialogueLine {
	var lines []models.DialogueLine
	for _, raw := range strings.Split(dialogue, "\n") {
		line := strings.TrimSpace(raw)
		if !strings.Contains(line, ":") {
			continue
		}
		speaker, text, _ := strings.Cut(line, ":")
		speaker = strings.TrimSpace(speaker)
		text = strings.TrimSpace(text)
		if speaker == "" || text == "" {
			continue
		}
		lines = append(lines, models.DialogueLine{Character: speaker, Line: text})
	}
	return lines
}

// TransformToProject 将脚本转换为完整的项目文档
// 无法解析的引用沿用既定行为静默丢弃，但通过告警列表显式上报
func (s *ExportService) TransformToProject(script *models.GeneratedScript, form *models.FormData) (*models.ExportProject, []models.TransformWarning) {
	var warnings []models.TransformWarning
	mode := form.Mode()
	language := exportLanguage(form.Language)
	generatedAt := s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")

	// 派生角色ID，冲突时追加序号后缀保证唯一
	usedIDs := make(map[string]bool, len(script.Characters))
	ids := make(map[string]string, len(script.Characters))
	seeds := make(map[string]int, len(script.Characters))
	characterSeeds := make(map[string]int, len(script.Characters))

	for i := range script.Characters {
		ch := &script.Characters[i]
		id := characterID(ch.Name)
		if usedIDs[id] {
			warnings = append(warnings, models.TransformWarning{
				Kind: models.WarningCharacterIDCollision,
				Name: ch.Name,
			})
			base := id
			for n := 2; ; n++ {
				id = fmt.Sprintf("%s_%d", base, n)
				if !usedIDs[id] {
					break
				}
			}
		}
		usedIDs[id] = true
		ids[ch.Name] = id
		seeds[ch.Name] = s.seed()
		characterSeeds[id] = seeds[ch.Name]
	}

	characterDescriptions := make([]models.CharacterDescription, 0, len(script.Characters))
	for i := range script.Characters {
		ch := &script.Characters[i]
		characterDescriptions = append(characterDescriptions, models.CharacterDescription{
			ID:                 ids[ch.Name],
			Name:               ch.Name,
			PhysicalAppearance: characterVisualDescription(ch),
			Clothing:           "Described in physical appearance prompt.",
			CharacterTraits:    "Described in physical appearance prompt.",
			VoiceType:          "N/A",
			Seed:               seeds[ch.Name],
		})
	}

	scenes := make([]models.ExportScene, 0, len(script.Scenes))
	for index := range script.Scenes {
		scene := &script.Scenes[index]
		sceneNumber := index + 1

		participating := make([]string, 0, len(scene.Characters))
		for _, name := range scene.Characters {
			id, known := ids[name]
			if !known {
				warnings = append(warnings, models.TransformWarning{
					Kind:        models.WarningUnresolvedSceneCharacter,
					SceneNumber: sceneNumber,
					Name:        name,
				})
				continue
			}
			participating = append(participating, id)
		}

		videoPrompt := BuildVideoPrompt(scene, script, mode)

		var dialogues []models.DialogueLine
		if mode == models.ScriptModeDialogue && scene.Dialogue != "" {
			dialogues = parseDialogueLines(scene.Dialogue)
			for _, d := range dialogues {
				if _, known := ids[d.Character]; !known {
					warnings = append(warnings, models.TransformWarning{
						Kind:        models.WarningUnknownDialogueSpeaker,
						SceneNumber: sceneNumber,
						Name:        d.Character,
					})
				}
			}
		}
		if dialogues == nil {
			dialogues = []models.DialogueLine{}
		}

		// 标题与机位描述无条件截断并追加省略号
		titlePreview := truncateRunes(scene.Prompt, 50) + "..."

		scenes = append(scenes, models.ExportScene{
			Type:        "scene",
			Inherit:     "project",
			SceneID:     fmt.Sprintf("scene_%03d", sceneNumber),
			SceneNumber: sceneNumber,
			SceneTitle:  titlePreview,
			DurationSec: models.SceneDurationSeconds,
			Setting: models.SceneSetting{
				Place:      "Varies",
				TimeOfDay:  "day",
				LocationID: "loc_generic",
			},
			ParticipatingCharacters: participating,
			Prompt:                  videoPrompt,
			Visual: models.SceneVisual{
				Lighting:     "Natural",
				ColorPalette: []string{"cold", "desaturated", "warm_firelight_accents"},
				Pace:         "normal",
				Shots: []models.Shot{{
					ID:           fmt.Sprintf("s%03d", sceneNumber),
					Template:     "medium",
					Camera:       titlePreview,
					DurationHint: 4,
					Seed:         s.seed(),
					ShotPrompt:   videoPrompt,
				}},
			},
			Audio: models.SceneAudio{
				Dialogues: dialogues,
				Music:     models.SceneMusic{Style: "orchestral", Mood: "epic and emotional"},
				SFX:       []string{},
			},
			Meta: models.SceneMeta{
				Order:       sceneNumber,
				Notes:       "Generated from video script generator app.",
				GeneratedAt: generatedAt,
			},
		})
	}

	title := truncateRunes(form.Idea, 50)
	if title == "" {
		title = "Generated Project"
	}

	project := &models.ExportProject{
		Version:   "3.0.0",
		Type:      "project",
		ProjectID: "project_" + sanitizeID(truncateRunes(form.Idea, 20)),
		Metadata: models.ProjectMetadata{
			Title:       title,
			Genre:       "adventure",
			Style:       "Điện ảnh sinh tồn (Epic)",
			Mood:        []string{"epic", "emotional"},
			Audience:    "Teen+",
			AspectRatio: "16:9",
			Language:    language,
		},
		Continuity: models.ProjectContinuity{
			StyleFingerprint: "generated_style_v1",
			GlobalSeed:       54776,
			Locks: models.ContinuityLocks{
				CharacterLock: true,
				LightingLock:  true,
				PaletteLock:   true,
				AssetLock:     true,
				ScaleLock:     true,
			},
			CharacterSeeds: characterSeeds,
		},
		Defaults: models.ProjectDefaults{
			Lighting:        "Natural",
			ColorPalette:    []string{"cold", "desaturated", "warm_firelight_accents"},
			Pace:            "normal",
			SeedStrategy:    "inherit_per_scene_then_offset_per_shot",
			StyleStrength:   0.9,
			DenoiseStrength: 0.35,
			NegativePrompts: []string{"flicker", "model drift", "face/hand deformation"},
			CameraRules: models.CameraRules{
				MoveSpeed:  "slow_to_medium",
				NoHandheld: true,
				Avoid:      []string{"whip pans", "unmotivated angle flips"},
			},
		},
		CharacterDescriptions: characterDescriptions,
		Assets: models.ProjectAssets{
			Props:     map[string]interface{}{},
			Locations: map[string]interface{}{},
		},
		ShotTemplates: map[string]models.ShotTemplate{
			"establishing_wide": {Lens: "35mm eq.", Move: "slow pan or slow dolly-in", DurationHint: 4},
			"medium":            {Lens: "50mm eq.", Move: "gentle static with micro parallax", DurationHint: 4},
			"close_up":          {Lens: "75mm eq.", Move: "subtle push-in", DurationHint: 3},
		},
		Veo3Settings: models.Veo3Settings{
			Resolution:         "1080p",
			FPS:                24,
			Motion:             "medium",
			ContinuityPriority: true,
			SeedRespect:        "strict",
		},
		GlobalContext: models.GlobalContext{
			Logline: form.Idea,
			Themes:  []string{"survival", "friendship", "adventure"},
			VisualPalette: models.VisualPalette{
				Lighting:     "Natural",
				ColorPalette: []string{"cold_blues", "white_snow", "warm_orange_firelight"},
			},
		},
		AudioVoSettings: models.AudioVoSettings{
			VoiceGender:  "male",
			Language:     language,
			PaceBpm:      80,
			Style:        "dramatic narration",
			Microphone:   "studio condenser cinematic",
			FX:           []string{"slight reverb 12%", "EQ warm low-mids"},
			MusicDucking: "-10dB during narration",
			ExportFormat: "wav, mono 48kHz",
		},
		Scenes: scenes,
		Export: models.ExportSettings{
			Container:     "mp4",
			Codec:         "h264",
			BitrateTarget: "12Mbps",
			GeneratedAt:   generatedAt,
		},
	}

	return project, warnings
}

// exportLanguage 将表单语言映射为BCP-47风格标签
func exportLanguage(formLanguage string) string {
	if formLanguage == "Tiếng Việt" {
		return "vi-VN"
	}
	return "en-US"
}

// ExportFlatPrompts 导出所有场景的视频提示词，场景之间空行分隔
func ExportFlatPrompts(script *models.GeneratedScript, mode models.ScriptMode) string {
	prompts := make([]string, 0, len(script.Scenes))
	for i := range script.Scenes {
		prompts = append(prompts, BuildVideoPrompt(&script.Scenes[i], script, mode))
	}
	return strings.Join(prompts, "\n\n")
}

// ExportFlatScriptLines 导出台词或旁白全文，空场景跳过
// 返回的文件名随叙述模式变化
func ExportFlatScriptLines(script *models.GeneratedScript, mode models.ScriptMode) (filename, content string) {
	lines := make([]string, 0, len(script.Scenes))
	for i := range script.Scenes {
		line := script.Scenes[i].ScriptLine(mode)
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}

	filename = ExportFileNarration
	if mode == models.ScriptModeDialogue {
		filename = ExportFileDialogue
	}
	return filename, strings.Join(lines, "\n\n")
}

// ExportResult 一次落盘导出的产物清单
type ExportResult struct {
	TaskID   string                    `json:"task_id"`
	Files    []string                  `json:"files"`
	Warnings []models.TransformWarning `json:"warnings,omitempty"`
}

// ExportAll 生成全部导出产物并写入任务对应的导出目录
func (s *ExportService) ExportAll(taskID string, script *models.GeneratedScript, form *models.FormData) (*ExportResult, error) {
	if s.fs == nil {
		return nil, apperrors.NewProcessingError("导出存储未初始化", nil)
	}
	if script == nil || len(script.Scenes) == 0 {
		return nil, apperrors.NewInvalidInputError("没有可导出的脚本", nil)
	}

	mode := form.Mode()
	dir := filepath.Join(exportBaseDir, taskID)

	project, warnings := s.TransformToProject(script, form)
	projectJSON, err := RenderProjectJSON(project)
	if err != nil {
		return nil, err
	}

	lineFile, lineContent := ExportFlatScriptLines(script, mode)

	type artifact struct {
		name    string
		content string
	}
	artifacts := []artifact{
		{ExportFilePrompts, ExportFlatPrompts(script, mode)},
		{lineFile, lineContent},
		{ExportFileProject, string(projectJSON)},
	}

	result := &ExportResult{TaskID: taskID, Warnings: warnings}
	for _, a := range artifacts {
		if err := s.fs.SaveTextFile(dir, a.name, []byte(a.content)); err != nil {
			return nil, apperrors.NewProcessingError(fmt.Sprintf("保存导出文件失败: %s", a.name), err)
		}
		result.Files = append(result.Files, a.name)
	}

	return result, nil
}

// RenderProjectJSON 按两空格缩进渲染项目文档
func RenderProjectJSON(project *models.ExportProject) ([]byte, error) {
	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return nil, apperrors.NewProcessingError("序列化项目文档失败", err)
	}
	return data, nil
}
