// internal/services/character_service.go
package services

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/Corphon/VideoScriptStudio/internal/errors"
	"github.com/Corphon/VideoScriptStudio/internal/models"
)

// CharacterService 负责定制步骤中的角色操作
type CharacterService struct{}

// NewCharacterService 创建角色服务实例
func NewCharacterService() *CharacterService {
	return &CharacterService{}
}

// RenameCharacter 将指定角色重命名，并把新名称传播到所有引用处：
// 角色列表、各场景的出场角色列表、以及台词文本中以旧名开头的说话人前缀。
// 校验失败时脚本保持原样不变
func (cs *CharacterService) RenameCharacter(script *models.GeneratedScript, index int, newName string) error {
	if script == nil {
		return apperrors.NewInvalidInputError("脚本为空", nil)
	}
	if index < 0 || index >= len(script.Characters) {
		return apperrors.NewInvalidInputError(fmt.Sprintf("角色索引越界: %d", index), nil)
	}

	newName = strings.TrimSpace(newName)
	if newName == "" {
		return apperrors.NewInvalidInputError("角色名称不能为空", nil)
	}

	oldName := script.Characters[index].Name
	if newName == oldName {
		return nil
	}

	for i, ch := range script.Characters {
		if i != index && ch.Name == newName {
			return apperrors.NewInvalidInputError(fmt.Sprintf("角色名称已存在: %s", newName), nil)
		}
	}

	script.Characters[index].Name = newName

	// 台词中的说话人前缀形如 "旧名: 台词内容"，逐行匹配替换
	prefixPattern := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(oldName) + `:`)

	for i := range script.Scenes {
		scene := &script.Scenes[i]

		for j, name := range scene.Characters {
			if name == oldName {
				scene.Characters[j] = newName
			}
		}

		if scene.Dialogue != "" {
			scene.Dialogue = prefixPattern.ReplaceAllString(scene.Dialogue, newName+":")
		}
	}

	return nil
}
