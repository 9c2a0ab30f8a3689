// internal/services/export_service_test.go
package services

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/VideoScriptStudio/internal/models"
	"github.com/Corphon/VideoScriptStudio/internal/storage"
)

// 固定时钟与种子序列的导出服务，保证结果可复现
func fixedExportService() *ExportService {
	seed := 0
	return &ExportService{
		now: func() time.Time {
			return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
		},
		seed: func() int {
			seed++
			return seed * 1000
		},
	}
}

func exportFixture() (*models.GeneratedScript, *models.FormData) {
	script := &models.GeneratedScript{
		Characters: []models.Character{
			{
				Name:        "An",
				Description: "Một chàng trai trẻ",
				Type:        models.CharacterTypeMain,
				ImagePrompt: "A young man with dark hair. Solid white background.",
			},
			{
				Name:        "Binh",
				Description: "Người bạn đồng hành",
				Type:        models.CharacterTypeSide,
			},
		},
		Scenes: []models.Scene{
			{
				Scene:      1,
				Prompt:     "Bình minh trên biển, sóng vỗ nhẹ",
				Characters: []string{"Binh", "An"},
				Dialogue:   "An: Chào buổi sáng!\nBinh: Đi thôi.",
			},
			{
				Scene:      2,
				Prompt:     "Khu rừng rậm rạp",
				Characters: []string{"An"},
				Dialogue:   "An: Cẩn thận.",
			},
		},
	}

	form := &models.FormData{
		Idea:       "Cuộc phiêu lưu của hai người bạn trên đảo hoang",
		Duration:   1,
		Style:      "Cinematic",
		Language:   "Tiếng Việt",
		ScriptType: models.ScriptTypeDialogueLabel,
	}
	return script, form
}

func TestBuildVideoPrompt_SceneOrderAndSuffixStrip(t *testing.T) {
	script, form := exportFixture()
	scene := &script.Scenes[0]

	got := BuildVideoPrompt(scene, script, form.Mode())

	// 角色按场景出场顺序排列：Binh 在前
	want := "Binh: Người bạn đồng hành. An: A young man with dark hair." +
		". Bình minh trên biển, sóng vỗ nhẹ" +
		". An: Chào buổi sáng!\nBinh: Đi thôi."
	if got != want {
		t.Fatalf("视频提示词不正确:\n期望: %q\n实际: %q", want, got)
	}
}

func TestBuildVideoPrompt_CapsAtThreeCharacters(t *testing.T) {
	script := &models.GeneratedScript{
		Characters: []models.Character{
			{Name: "A", Description: "a"},
			{Name: "B", Description: "b"},
			{Name: "C", Description: "c"},
			{Name: "D", Description: "d"},
		},
		Scenes: []models.Scene{{
			Scene:      1,
			Prompt:     "p",
			Characters: []string{"A", "B", "C", "D"},
		}},
	}

	got := BuildVideoPrompt(&script.Scenes[0], script, models.ScriptModeNarration)
	if strings.Contains(got, "D: d") {
		t.Fatalf("最多只取前3个角色，实际: %q", got)
	}
	if !strings.Contains(got, "C: c") {
		t.Fatalf("前3个角色应该全部包含，实际: %q", got)
	}
}

func TestBuildVideoPrompt_SkipsUnknownAndEmpty(t *testing.T) {
	script := &models.GeneratedScript{
		Characters: []models.Character{{Name: "A", Description: "a"}},
		Scenes: []models.Scene{{
			Scene:      1,
			Prompt:     "",
			Characters: []string{"Ghost", "A"},
			Narration:  "lời dẫn",
		}},
	}

	got := BuildVideoPrompt(&script.Scenes[0], script, models.ScriptModeNarration)
	want := "A: a. lời dẫn"
	if got != want {
		t.Fatalf("未知角色与空段落应该跳过:\n期望: %q\n实际: %q", want, got)
	}
}

// 所有导出面共享同一个提示词实现
func TestExportFlatPrompts_MatchesProjectScenes(t *testing.T) {
	script, form := exportFixture()
	svc := fixedExportService()

	flat := ExportFlatPrompts(script, form.Mode())
	project, _ := svc.TransformToProject(script, form)

	prompts := strings.Split(flat, "\n\n")
	if len(prompts) != len(project.Scenes) {
		t.Fatalf("提示词数量不一致: 文本%d个，项目%d个", len(prompts), len(project.Scenes))
	}
	for i, scene := range project.Scenes {
		if prompts[i] != scene.Prompt {
			t.Fatalf("第%d个场景的提示词不一致:\n文本: %q\n项目: %q", i+1, prompts[i], scene.Prompt)
		}
		if scene.Visual.Shots[0].ShotPrompt != scene.Prompt {
			t.Fatalf("第%d个场景的镜头提示词应该与场景提示词一致", i+1)
		}
	}
}

func TestTransformToProject_Deterministic(t *testing.T) {
	script, form := exportFixture()

	first, _ := fixedExportService().TransformToProject(script, form)
	second, _ := fixedExportService().TransformToProject(script, form)

	firstJSON, err := RenderProjectJSON(first)
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	secondJSON, err := RenderProjectJSON(second)
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}

	if !bytes.Equal(firstJSON, secondJSON) {
		t.Fatal("固定时钟与种子源下，相同输入应该产生完全一致的文档")
	}
}

func TestTransformToProject_DialogueParsing(t *testing.T) {
	script := &models.GeneratedScript{
		Characters: []models.Character{{Name: "An", Description: "a"}},
		Scenes: []models.Scene{{
			Scene:      1,
			Prompt:     "p",
			Characters: []string{"An"},
			Dialogue:   "An: Xin chào: mọi người\nkhông có dấu hai chấm\n  An :  \nAn: dòng thứ hai",
		}},
	}
	form := &models.FormData{Idea: "x", Duration: 1, ScriptType: models.ScriptTypeDialogueLabel}

	project, _ := fixedExportService().TransformToProject(script, form)

	dialogues := project.Scenes[0].Audio.Dialogues
	if len(dialogues) != 2 {
		t.Fatalf("应该解析出2行台词，实际 %d: %v", len(dialogues), dialogues)
	}
	if dialogues[0].Character != "An" || dialogues[0].Line != "Xin chào: mọi người" {
		t.Fatalf("首个冒号之后的内容应该整体作为台词: %+v", dialogues[0])
	}
	if dialogues[1].Line != "dòng thứ hai" {
		t.Fatalf("第二行台词解析不正确: %+v", dialogues[1])
	}
}

func TestTransformToProject_NarrationModeHasNoDialogues(t *testing.T) {
	script := &models.GeneratedScript{
		Characters: []models.Character{{Name: "An", Description: "a"}},
		Scenes: []models.Scene{{
			Scene:      1,
			Prompt:     "p",
			Characters: []string{"An"},
			Dialogue:   "An: không nên xuất hiện",
			Narration:  "lời dẫn",
		}},
	}
	form := &models.FormData{Idea: "x", Duration: 1, ScriptType: models.ScriptTypeNarrationLabel}

	project, _ := fixedExportService().TransformToProject(script, form)
	if len(project.Scenes[0].Audio.Dialogues) != 0 {
		t.Fatalf("旁白模式下不应该解析台词: %v", project.Scenes[0].Audio.Dialogues)
	}
}

func TestTransformToProject_TitleTruncation(t *testing.T) {
	longPrompt := strings.Repeat("cảnh ", 20) // 100字符，含组合变音符号的越南语字符
	script := &models.GeneratedScript{
		Characters: []models.Character{{Name: "An", Description: "a"}},
		Scenes: []models.Scene{
			{Scene: 1, Prompt: "ngắn", Characters: []string{"An"}},
			{Scene: 2, Prompt: longPrompt, Characters: []string{"An"}},
		},
	}
	form := &models.FormData{Idea: "x", Duration: 1, ScriptType: models.ScriptTypeNarrationLabel}

	project, _ := fixedExportService().TransformToProject(script, form)

	// 省略号无条件追加，即使提示词不足50字符
	if project.Scenes[0].SceneTitle != "ngắn..." {
		t.Fatalf("短标题也应该追加省略号: %q", project.Scenes[0].SceneTitle)
	}

	title := project.Scenes[1].SceneTitle
	if !strings.HasSuffix(title, "...") {
		t.Fatalf("长标题应该以省略号结尾: %q", title)
	}
	if got := len([]rune(strings.TrimSuffix(title, "..."))); got != 50 {
		t.Fatalf("长标题应该按字符截断到50，实际 %d", got)
	}
	if project.Scenes[1].Visual.Shots[0].Camera != title {
		t.Fatal("镜头描述应该与场景标题一致")
	}
}

func TestTransformToProject_CharacterIDs(t *testing.T) {
	script := &models.GeneratedScript{
		Characters: []models.Character{
			{Name: "Nam A", Description: "a"},
			{Name: "Nam_A", Description: "b"},
			{Name: "Cô Ba!", Description: "c"},
		},
		Scenes: []models.Scene{{Scene: 1, Prompt: "p", Characters: []string{"Nam A"}}},
	}
	form := &models.FormData{Idea: "x", Duration: 1, ScriptType: models.ScriptTypeNarrationLabel}

	project, warnings := fixedExportService().TransformToProject(script, form)

	ids := make([]string, len(project.CharacterDescriptions))
	for i, cd := range project.CharacterDescriptions {
		ids[i] = cd.ID
	}

	if ids[0] != "char_nam_a" {
		t.Fatalf("首个角色应该保留原始ID，实际 %q", ids[0])
	}
	if ids[1] != "char_nam_a_2" {
		t.Fatalf("冲突的ID应该追加序号后缀，实际 %q", ids[1])
	}

	collision := 0
	for _, w := range warnings {
		if w.Kind == models.WarningCharacterIDCollision {
			collision++
			if w.Name != "Nam_A" {
				t.Fatalf("冲突告警应该指向第二个角色: %+v", w)
			}
		}
	}
	if collision != 1 {
		t.Fatalf("应该产生1条ID冲突告警，实际 %d", collision)
	}

	// 种子表以最终ID为键
	if _, ok := project.Continuity.CharacterSeeds["char_nam_a_2"]; !ok {
		t.Fatalf("种子表应该包含后缀ID: %v", project.Continuity.CharacterSeeds)
	}
}

func TestTransformToProject_UnresolvedWarnings(t *testing.T) {
	script := &models.GeneratedScript{
		Characters: []models.Character{{Name: "An", Description: "a"}},
		Scenes: []models.Scene{{
			Scene:      1,
			Prompt:     "p",
			Characters: []string{"An", "Ghost"},
			Dialogue:   "An: chào\nNgười lạ: ai đó",
		}},
	}
	form := &models.FormData{Idea: "x", Duration: 1, ScriptType: models.ScriptTypeDialogueLabel}

	project, warnings := fixedExportService().TransformToProject(script, form)

	// 无法解析的出场角色按既定行为静默丢弃
	participating := project.Scenes[0].ParticipatingCharacters
	if len(participating) != 1 || participating[0] != "char_an" {
		t.Fatalf("未知角色应该从出场列表丢弃: %v", participating)
	}

	// 未知说话人的台词保留，但产生告警
	if len(project.Scenes[0].Audio.Dialogues) != 2 {
		t.Fatalf("台词行不应该被丢弃: %v", project.Scenes[0].Audio.Dialogues)
	}

	var unresolved, unknownSpeaker bool
	for _, w := range warnings {
		switch w.Kind {
		case models.WarningUnresolvedSceneCharacter:
			if w.Name == "Ghost" && w.SceneNumber == 1 {
				unresolved = true
			}
		case models.WarningUnknownDialogueSpeaker:
			if w.Name == "Người lạ" && w.SceneNumber == 1 {
				unknownSpeaker = true
			}
		}
	}
	if !unresolved {
		t.Fatalf("应该产生未解析出场角色告警: %v", warnings)
	}
	if !unknownSpeaker {
		t.Fatalf("应该产生未知说话人告警: %v", warnings)
	}
}

func TestTransformToProject_MetadataAndConstants(t *testing.T) {
	script, form := exportFixture()
	project, _ := fixedExportService().TransformToProject(script, form)

	if project.Version != "3.0.0" || project.Type != "project" {
		t.Fatalf("文档版本信息不正确: %s %s", project.Version, project.Type)
	}
	if project.Continuity.GlobalSeed != 54776 {
		t.Fatalf("全局种子应该是54776，实际 %d", project.Continuity.GlobalSeed)
	}
	if project.Metadata.Language != "vi-VN" {
		t.Fatalf("越南语表单应该映射为vi-VN，实际 %s", project.Metadata.Language)
	}
	if project.AudioVoSettings.Language != "vi-VN" {
		t.Fatalf("配音语言应该与元数据一致，实际 %s", project.AudioVoSettings.Language)
	}

	// projectId 由创意前20个字符派生，ASCII之外的字母被标识符规整去除
	if project.ProjectID != "project_cuc_phiu_lu_ca_h" {
		t.Fatalf("项目ID派生不正确: %q", project.ProjectID)
	}

	form.Language = "English"
	project, _ = fixedExportService().TransformToProject(script, form)
	if project.Metadata.Language != "en-US" {
		t.Fatalf("其他语言应该映射为en-US，实际 %s", project.Metadata.Language)
	}
}

func TestExportFlatScriptLines(t *testing.T) {
	script := &models.GeneratedScript{
		Characters: []models.Character{{Name: "An"}},
		Scenes: []models.Scene{
			{Scene: 1, Dialogue: "An: chào", Narration: "mở đầu"},
			{Scene: 2, Dialogue: "", Narration: "  "},
			{Scene: 3, Dialogue: "An: tạm biệt", Narration: "kết thúc"},
		},
	}

	filename, content := ExportFlatScriptLines(script, models.ScriptModeDialogue)
	if filename != ExportFileDialogue {
		t.Fatalf("台词模式的文件名应该是 %s，实际 %s", ExportFileDialogue, filename)
	}
	if content != "An: chào\n\nAn: tạm biệt" {
		t.Fatalf("台词内容不正确: %q", content)
	}

	filename, content = ExportFlatScriptLines(script, models.ScriptModeNarration)
	if filename != ExportFileNarration {
		t.Fatalf("旁白模式的文件名应该是 %s，实际 %s", ExportFileNarration, filename)
	}
	if content != "mở đầu\n\nkết thúc" {
		t.Fatalf("旁白内容不正确: %q", content)
	}
}

func TestExportAll_WritesArtifacts(t *testing.T) {
	tempDir := t.TempDir()
	fs, err := storage.NewFileStorage(tempDir)
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	svc := fixedExportService()
	svc.fs = fs

	script, form := exportFixture()
	result, err := svc.ExportAll("task-1", script, form)
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}

	if len(result.Files) != 3 {
		t.Fatalf("应该产生3个文件，实际 %v", result.Files)
	}

	for _, name := range []string{ExportFilePrompts, ExportFileDialogue, ExportFileProject} {
		path := filepath.Join(tempDir, "exports", "task-1", name)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("导出文件不存在: %s", path)
		}
	}

	// 项目JSON与直接渲染结果一致
	data, err := os.ReadFile(filepath.Join(tempDir, "exports", "task-1", ExportFileProject))
	if err != nil {
		t.Fatalf("读取项目文件失败: %v", err)
	}
	project, _ := fixedExportService().TransformToProject(script, form)
	want, _ := RenderProjectJSON(project)
	if !bytes.Equal(data, want) {
		t.Fatal("落盘的项目JSON应该与渲染结果一致")
	}
}
