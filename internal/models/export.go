// internal/models/export.go
package models

// ExportProject 下游视频生成管线消费的项目文档
// 字段顺序即输出 JSON 的字段顺序，不要调整
type ExportProject struct {
	Version               string                  `json:"version"`
	Type                  string                  `json:"type"`
	ProjectID             string                  `json:"projectId"`
	Metadata              ProjectMetadata         `json:"metadata"`
	Continuity            ProjectContinuity       `json:"continuity"`
	Defaults              ProjectDefaults         `json:"defaults"`
	CharacterDescriptions []CharacterDescription  `json:"characterDescriptions"`
	Assets                ProjectAssets           `json:"assets"`
	ShotTemplates         map[string]ShotTemplate `json:"shotTemplates"`
	Veo3Settings          Veo3Settings            `json:"veo3Settings"`
	GlobalContext         GlobalContext           `json:"globalContext"`
	AudioVoSettings       AudioVoSettings         `json:"audioVoSettings"`
	Scenes                []ExportScene           `json:"scenes"`
	Export                ExportSettings          `json:"export"`
}

// ProjectMetadata 项目元数据
type ProjectMetadata struct {
	Title       string   `json:"title"`
	Genre       string   `json:"genre"`
	Style       string   `json:"style"`
	Mood        []string `json:"mood"`
	Audience    string   `json:"audience"`
	AspectRatio string   `json:"aspectRatio"`
	Language    string   `json:"language"` // BCP-47风格标签，如 vi-VN / en-US
}

// ProjectContinuity 连续性与种子锁定设置
type ProjectContinuity struct {
	StyleFingerprint string          `json:"styleFingerprint"`
	GlobalSeed       int             `json:"globalSeed"`
	Locks            ContinuityLocks `json:"locks"`
	CharacterSeeds   map[string]int  `json:"characterSeeds"`
}

type ContinuityLocks struct {
	CharacterLock bool `json:"characterLock"`
	LightingLock  bool `json:"lightingLock"`
	PaletteLock   bool `json:"paletteLock"`
	AssetLock     bool `json:"assetLock"`
	ScaleLock     bool `json:"scaleLock"`
}

// ProjectDefaults 全局默认参数
type ProjectDefaults struct {
	Lighting        string      `json:"lighting"`
	ColorPalette    []string    `json:"colorPalette"`
	Pace            string      `json:"pace"`
	SeedStrategy    string      `json:"seedStrategy"`
	StyleStrength   float64     `json:"styleStrength"`
	DenoiseStrength float64     `json:"denoiseStrength"`
	NegativePrompts []string    `json:"negativePrompts"`
	CameraRules     CameraRules `json:"cameraRules"`
}

type CameraRules struct {
	MoveSpeed  string   `json:"moveSpeed"`
	NoHandheld bool     `json:"noHandheld"`
	Avoid      []string `json:"avoid"`
}

// CharacterDescription 单个角色的描述记录，带派生ID与随机种子
type CharacterDescription struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	PhysicalAppearance string `json:"physicalAppearance"`
	Clothing           string `json:"clothing"`
	CharacterTraits    string `json:"characterTraits"`
	VoiceType          string `json:"voiceType"`
	Seed               int    `json:"seed"`
}

// ProjectAssets 道具与地点资产（当前均为空占位）
type ProjectAssets struct {
	Props     map[string]interface{} `json:"props"`
	Locations map[string]interface{} `json:"locations"`
}

// ShotTemplate 镜头模板
type ShotTemplate struct {
	Lens         string `json:"lens"`
	Move         string `json:"move"`
	DurationHint int    `json:"durationHint"`
}

// Veo3Settings 视频生成设置
type Veo3Settings struct {
	Resolution         string `json:"resolution"`
	FPS                int    `json:"fps"`
	Motion             string `json:"motion"`
	ContinuityPriority bool   `json:"continuityPriority"`
	SeedRespect        string `json:"seedRespect"`
}

// GlobalContext 全局叙事上下文
type GlobalContext struct {
	Logline       string        `json:"logline"`
	Themes        []string      `json:"themes"`
	VisualPalette VisualPalette `json:"visualPalette"`
}

type VisualPalette struct {
	Lighting     string   `json:"lighting"`
	ColorPalette []string `json:"colorPalette"`
}

// AudioVoSettings 旁白配音设置
type AudioVoSettings struct {
	VoiceGender  string   `json:"voiceGender"`
	Language     string   `json:"language"`
	PaceBpm      int      `json:"paceBpm"`
	Style        string   `json:"style"`
	Microphone   string   `json:"microphone"`
	FX           []string `json:"fx"`
	MusicDucking string   `json:"musicDucking"`
	ExportFormat string   `json:"exportFormat"`
}

// ExportScene 导出文档中的单个场景记录
type ExportScene struct {
	Type                    string       `json:"type"`
	Inherit                 string       `json:"inherit"`
	SceneID                 string       `json:"sceneId"`
	SceneNumber             int          `json:"sceneNumber"`
	SceneTitle              string       `json:"sceneTitle"`
	DurationSec             int          `json:"durationSec"`
	Setting                 SceneSetting `json:"setting"`
	ParticipatingCharacters []string     `json:"participatingCharacters"`
	Prompt                  string       `json:"prompt"`
	Visual                  SceneVisual  `json:"visual"`
	Audio                   SceneAudio   `json:"audio"`
	Meta                    SceneMeta    `json:"meta"`
}

type SceneSetting struct {
	Place      string `json:"place"`
	TimeOfDay  string `json:"timeOfDay"`
	LocationID string `json:"locationId"`
}

type SceneVisual struct {
	Lighting     string   `json:"lighting"`
	ColorPalette []string `json:"colorPalette"`
	Pace         string   `json:"pace"`
	Shots        []Shot   `json:"shots"`
}

type Shot struct {
	ID           string `json:"id"`
	Template     string `json:"template"`
	Camera       string `json:"camera"`
	DurationHint int    `json:"durationHint"`
	Seed         int    `json:"seed"`
	ShotPrompt   string `json:"shotPrompt"`
}

type SceneAudio struct {
	Dialogues []DialogueLine `json:"dialogues"`
	Music     SceneMusic     `json:"music"`
	SFX       []string       `json:"sfx"`
}

// DialogueLine 从场景台词文本解析出的一行台词
type DialogueLine struct {
	Character string `json:"character"`
	Line      string `json:"line"`
}

type SceneMusic struct {
	Style string `json:"style"`
	Mood  string `json:"mood"`
}

type SceneMeta struct {
	Order       int    `json:"order"`
	Notes       string `json:"notes"`
	GeneratedAt string `json:"generatedAt"`
}

// ExportSettings 导出容器设置
type ExportSettings struct {
	Container     string `json:"container"`
	Codec         string `json:"codec"`
	BitrateTarget string `json:"bitrateTarget"`
	GeneratedAt   string `json:"generatedAt"`
}

// 转换告警类型
const (
	WarningUnresolvedSceneCharacter = "unresolved_scene_character"
	WarningUnknownDialogueSpeaker   = "unknown_dialogue_speaker"
	WarningCharacterIDCollision     = "character_id_collision"
)

// TransformWarning 导出转换过程中的非致命问题
// （转换结果仍按既定行为静默丢弃无法解析的引用，这里只是显式上报）
type TransformWarning struct {
	Kind        string `json:"kind"`
	SceneNumber int    `json:"scene_number,omitempty"`
	Name        string `json:"name"`
}
