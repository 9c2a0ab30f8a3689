// internal/credential/file_store.go
package credential

import (
	"os"

	"github.com/Corphon/VideoScriptStudio/internal/storage"
)

const (
	credentialDir  = "credentials"
	credentialFile = "api_keys.json"
)

// FileStore 基于文件存储的密钥池持久化实现
type FileStore struct {
	fs *storage.FileStorage
}

// NewFileStore 创建基于 FileStorage 的密钥存储
func NewFileStore(fs *storage.FileStorage) *FileStore {
	return &FileStore{fs: fs}
}

// Load 加载密钥列表，文件不存在时返回空池
func (s *FileStore) Load() ([]string, error) {
	var keys []string
	err := s.fs.LoadJSONFile(credentialDir, credentialFile, &keys)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// Save 保存密钥列表
func (s *FileStore) Save(keys []string) error {
	return s.fs.SaveJSONFile(credentialDir, credentialFile, keys)
}
