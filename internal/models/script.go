// internal/models/script.go
package models

// 脚本类型的表单标签（与前端表单保持一致）
const (
	ScriptTypeDialogueLabel  = "Lời thoại"
	ScriptTypeNarrationLabel = "Lời dẫn"
)

// 角色类型
const (
	CharacterTypeMain = "Main"
	CharacterTypeSide = "Side"
)

// 每个场景对应约8秒的视频片段
const SceneDurationSeconds = 8

// ScriptMode 表示脚本的叙述模式（台词或旁白）
// 在表单解析时确定一次，之后在请求构建与导出转换中统一使用，
// 避免在各处重复比较表单标签字符串
type ScriptMode string

const (
	ScriptModeDialogue  ScriptMode = "dialogue"
	ScriptModeNarration ScriptMode = "narration"
)

// ScriptModeFromLabel 根据表单脚本类型标签解析叙述模式
func ScriptModeFromLabel(label string) ScriptMode {
	if label == ScriptTypeDialogueLabel {
		return ScriptModeDialogue
	}
	return ScriptModeNarration
}

// FormData 用户提交的生成参数
type FormData struct {
	Idea           string `json:"idea"`
	Duration       int    `json:"duration"` // 视频总时长（分钟）
	MainCharacters int    `json:"mainCharacters"`
	SideCharacters int    `json:"sideCharacters"`
	Style          string `json:"style"`
	Language       string `json:"language"`
	ScriptType     string `json:"scriptType"`
}

// NumberOfScenes 由时长推导的场景数量（每场景8秒，向下取整）
func (f *FormData) NumberOfScenes() int {
	return f.Duration * 60 / SceneDurationSeconds
}

// Mode 返回表单选择的叙述模式
func (f *FormData) Mode() ScriptMode {
	return ScriptModeFromLabel(f.ScriptType)
}

// Character 生成脚本中的一个角色
// Name 在同一脚本内唯一，用户可在定制步骤中重命名；
// ImagePrompt 在第二轮生成调用后填充
type Character struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"` // Main 或 Side
	ImagePrompt string `json:"imagePrompt,omitempty"`
}

// Scene 生成脚本中的一个场景
// Characters 引用 Character.Name；Dialogue 与 Narration 只会填充其一，
// 取决于生成时选择的叙述模式
type Scene struct {
	Scene      int      `json:"scene"` // 1起始的场景编号
	Prompt     string   `json:"prompt"`
	Characters []string `json:"characters"`
	Dialogue   string   `json:"dialogue,omitempty"`
	Narration  string   `json:"narration,omitempty"`
}

// ScriptLine 返回与指定模式匹配的台词/旁白文本
func (s *Scene) ScriptLine(mode ScriptMode) string {
	if mode == ScriptModeDialogue {
		return s.Dialogue
	}
	return s.Narration
}

// GeneratedScript 生成调用返回的完整脚本，
// 是流程第2、3步的唯一数据来源
type GeneratedScript struct {
	Characters []Character `json:"characters"`
	Scenes     []Scene     `json:"scenes"`
}

// CharacterByName 按名称查找角色
func (g *GeneratedScript) CharacterByName(name string) (*Character, bool) {
	for i := range g.Characters {
		if g.Characters[i].Name == name {
			return &g.Characters[i], true
		}
	}
	return nil, false
}

// CharacterPromptStatus 单个角色形象提示词生成的结果状态
// （best_effort 策略下用于标记失败的角色）
type CharacterPromptStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// GenerationResult 一次完整生成的返回载荷
type GenerationResult struct {
	TaskID          string                  `json:"task_id"`
	Script          *GeneratedScript        `json:"script"`
	CharacterStatus []CharacterPromptStatus `json:"character_status,omitempty"`
}
