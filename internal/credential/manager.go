// internal/credential/manager.go
package credential

import (
	"sync"

	apperrors "github.com/Corphon/VideoScriptStudio/internal/errors"
	"github.com/Corphon/VideoScriptStudio/internal/utils"
)

// Store 密钥池的持久化接口
type Store interface {
	Load() ([]string, error)
	Save(keys []string) error
}

// Manager 管理外部生成服务的API密钥池
// 密钥按池内顺序轮换使用；鉴权失败的密钥被永久剔除。
// 游标读取与推进在锁内完成，并发提交下仍保持轮换公平
type Manager struct {
	mu     sync.Mutex
	keys   []string
	cursor int
	store  Store
}

// NewManager 创建密钥管理器并从存储加载密钥池
func NewManager(store Store) (*Manager, error) {
	m := &Manager{store: store}

	if store != nil {
		keys, err := store.Load()
		if err != nil {
			return nil, err
		}
		m.keys = keys
	}

	return m, nil
}

// NewManagerWithKeys 使用内存密钥列表创建管理器（测试用）
func NewManagerWithKeys(keys []string) *Manager {
	return &Manager{keys: append([]string(nil), keys...)}
}

// Next 返回当前游标指向的密钥并推进游标
// 池为空时返回 MissingCredential 错误，调用方应提示用户录入密钥
func (m *Manager) Next() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) == 0 {
		return "", apperrors.NewMissingCredentialError("API密钥池为空，请先添加密钥")
	}

	if m.cursor >= len(m.keys) {
		m.cursor = 0
	}
	key := m.keys[m.cursor]
	m.cursor = (m.cursor + 1) % len(m.keys)
	return key, nil
}

// Evict 从池中永久移除指定密钥，保持其余密钥的相对顺序
// 游标调整后仍指向被移除条目原位置之后的密钥
func (m *Manager) Evict(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, k := range m.keys {
		if k == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	m.keys = append(m.keys[:idx], m.keys[idx+1:]...)
	if m.cursor > idx {
		m.cursor--
	}
	if len(m.keys) == 0 {
		m.cursor = 0
	} else {
		m.cursor %= len(m.keys)
	}

	m.persistLocked()
	return true
}

// Add 向池尾追加一个密钥，重复密钥忽略
func (m *Manager) Add(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key == "" {
		return false
	}
	for _, k := range m.keys {
		if k == key {
			return false
		}
	}

	m.keys = append(m.keys, key)
	m.persistLocked()
	return true
}

// Remove 按完整密钥值从池中移除（用户管理操作，与 Evict 的游标语义一致）
func (m *Manager) Remove(key string) bool {
	return m.Evict(key)
}

// Len 返回池中密钥数量
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// MaskedKeys 返回脱敏后的密钥列表（仅保留尾部4位）
func (m *Manager) MaskedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	masked := make([]string, 0, len(m.keys))
	for _, k := range m.keys {
		masked = append(masked, Mask(k))
	}
	return masked
}

// Mask 脱敏密钥，仅保留尾部4位用于识别
func Mask(key string) string {
	const visible = 4
	if len(key) <= visible {
		return "****"
	}
	return "****" + key[len(key)-visible:]
}

func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(append([]string(nil), m.keys...)); err != nil {
		utils.GetLogger().Warn("保存密钥池失败", map[string]interface{}{
			"err": err.Error(),
		})
	}
}
