// internal/api/handlers_test.go
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/VideoScriptStudio/internal/credential"
	"github.com/Corphon/VideoScriptStudio/internal/models"
	"github.com/Corphon/VideoScriptStudio/internal/services"
)

func newTestRouter(handler *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.PUT("/api/scripts/characters/rename", handler.RenameCharacter)
	r.POST("/api/scripts/export/prompts", handler.ExportPrompts)
	r.POST("/api/scripts/export/dialogue", handler.ExportScriptLines)
	r.POST("/api/scripts/export/project", handler.ExportProject)
	r.GET("/api/keys", handler.GetKeys)
	r.POST("/api/keys", handler.AddKey)
	r.DELETE("/api/keys", handler.DeleteKey)

	return r
}

func newTestHandler() *Handler {
	return NewHandler(
		nil,
		services.NewCharacterService(),
		services.NewExportService(nil),
		services.NewProgressService(),
		nil,
		nil,
		credential.NewManagerWithKeys([]string{"key-aaaa"}),
	)
}

func testScript() *models.GeneratedScript {
	return &models.GeneratedScript{
		Characters: []models.Character{
			{Name: "An", Description: "chàng trai", Type: models.CharacterTypeMain},
		},
		Scenes: []models.Scene{
			{Scene: 1, Prompt: "bình minh", Characters: []string{"An"}, Dialogue: "An: chào"},
		},
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("序列化请求失败: %v", err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRenameCharacterEndpoint(t *testing.T) {
	r := newTestRouter(newTestHandler())

	w := doJSON(t, r, http.MethodPut, "/api/scripts/characters/rename", gin.H{
		"script":   testScript(),
		"index":    0,
		"new_name": "Minh",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("应该返回200，实际 %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool                    `json:"success"`
		Data    *models.GeneratedScript `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if !resp.Success {
		t.Fatal("响应应该标记成功")
	}
	if resp.Data.Characters[0].Name != "Minh" {
		t.Fatalf("角色应该已重命名: %s", resp.Data.Characters[0].Name)
	}
	if resp.Data.Scenes[0].Dialogue != "Minh: chào" {
		t.Fatalf("台词前缀应该已更新: %q", resp.Data.Scenes[0].Dialogue)
	}
}

func TestRenameCharacterEndpoint_InvalidIndex(t *testing.T) {
	r := newTestRouter(newTestHandler())

	w := doJSON(t, r, http.MethodPut, "/api/scripts/characters/rename", gin.H{
		"script":   testScript(),
		"index":    9,
		"new_name": "Minh",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("索引越界应该返回400，实际 %d", w.Code)
	}

	var resp APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != "INVALID_INPUT" {
		t.Fatalf("错误代码应该是INVALID_INPUT: %+v", resp.Error)
	}
}

func TestExportPromptsEndpoint(t *testing.T) {
	r := newTestRouter(newTestHandler())

	w := doJSON(t, r, http.MethodPost, "/api/scripts/export/prompts", gin.H{
		"script": testScript(),
		"form": &models.FormData{
			Idea:       "đảo hoang",
			Duration:   1,
			ScriptType: models.ScriptTypeDialogueLabel,
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("应该返回200，实际 %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "video_prompts.txt") {
		t.Fatalf("应该作为video_prompts.txt下载，实际 %q", cd)
	}

	want := "An: chàng trai. bình minh. An: chào"
	if w.Body.String() != want {
		t.Fatalf("提示词内容不正确:\n期望: %q\n实际: %q", want, w.Body.String())
	}
}

func TestExportScriptLinesEndpoint_NarrationFilename(t *testing.T) {
	r := newTestRouter(newTestHandler())

	script := testScript()
	script.Scenes[0].Dialogue = ""
	script.Scenes[0].Narration = "lời dẫn mở đầu"

	w := doJSON(t, r, http.MethodPost, "/api/scripts/export/dialogue", gin.H{
		"script": script,
		"form": &models.FormData{
			Idea:       "đảo hoang",
			Duration:   1,
			ScriptType: models.ScriptTypeNarrationLabel,
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("应该返回200，实际 %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "narration.txt") {
		t.Fatalf("旁白模式应该下载narration.txt，实际 %q", cd)
	}
	if w.Body.String() != "lời dẫn mở đầu" {
		t.Fatalf("旁白内容不正确: %q", w.Body.String())
	}
}

func TestExportProjectEndpoint_JSONFormat(t *testing.T) {
	r := newTestRouter(newTestHandler())

	script := testScript()
	script.Scenes[0].Characters = append(script.Scenes[0].Characters, "Ghost")

	w := doJSON(t, r, http.MethodPost, "/api/scripts/export/project?format=json", gin.H{
		"script": script,
		"form": &models.FormData{
			Idea:       "đảo hoang",
			Duration:   1,
			ScriptType: models.ScriptTypeDialogueLabel,
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("应该返回200，实际 %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Project  *models.ExportProject     `json:"project"`
			Warnings []models.TransformWarning `json:"warnings"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}

	if resp.Data.Project.Version != "3.0.0" {
		t.Fatalf("项目版本不正确: %s", resp.Data.Project.Version)
	}
	if len(resp.Data.Warnings) == 0 {
		t.Fatal("未知出场角色应该产生告警")
	}
}

func TestKeyEndpoints(t *testing.T) {
	r := newTestRouter(newTestHandler())

	// 添加
	w := doJSON(t, r, http.MethodPost, "/api/keys", gin.H{"key": "key-bbbb"})
	if w.Code != http.StatusCreated {
		t.Fatalf("添加密钥应该返回201，实际 %d", w.Code)
	}

	// 重复添加
	w = doJSON(t, r, http.MethodPost, "/api/keys", gin.H{"key": "key-bbbb"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("重复密钥应该返回400，实际 %d", w.Code)
	}

	// 列表只返回脱敏密钥
	req := httptest.NewRequest(http.MethodGet, "/api/keys", nil)
	lw := httptest.NewRecorder()
	r.ServeHTTP(lw, req)
	if lw.Code != http.StatusOK {
		t.Fatalf("列表应该返回200，实际 %d", lw.Code)
	}
	if strings.Contains(lw.Body.String(), "key-bbbb") {
		t.Fatal("密钥列表不应该暴露完整密钥")
	}
	if !strings.Contains(lw.Body.String(), "****bbbb") {
		t.Fatalf("密钥列表应该包含脱敏形式: %s", lw.Body.String())
	}

	// 删除
	w = doJSON(t, r, http.MethodDelete, "/api/keys", gin.H{"key": "key-bbbb"})
	if w.Code != http.StatusOK {
		t.Fatalf("删除密钥应该返回200，实际 %d", w.Code)
	}

	// 删除不存在的密钥
	w = doJSON(t, r, http.MethodDelete, "/api/keys", gin.H{"key": "key-zzzz"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("删除不存在的密钥应该返回404，实际 %d", w.Code)
	}
}
