// internal/storage/file_storage_test.go
package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestSaveAndLoadJSONFile(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := fs.SaveJSONFile("sub", "data.json", &payload{Name: "an", Count: 3}); err != nil {
		t.Fatalf("保存JSON失败: %v", err)
	}

	var loaded payload
	if err := fs.LoadJSONFile("sub", "data.json", &loaded); err != nil {
		t.Fatalf("加载JSON失败: %v", err)
	}
	if loaded.Name != "an" || loaded.Count != 3 {
		t.Fatalf("加载的数据不正确: %+v", loaded)
	}
}

func TestSaveTextFile_NoTempFileLeft(t *testing.T) {
	baseDir := t.TempDir()
	fs, err := NewFileStorage(baseDir)
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	if err := fs.SaveTextFile("exports", "a.txt", []byte("nội dung")); err != nil {
		t.Fatalf("保存文本失败: %v", err)
	}

	if _, err := os.Stat(filepath.Join(baseDir, "exports", "a.txt.tmp")); !os.IsNotExist(err) {
		t.Fatal("写入完成后不应该残留临时文件")
	}

	data, err := os.ReadFile(filepath.Join(baseDir, "exports", "a.txt"))
	if err != nil {
		t.Fatalf("读取文件失败: %v", err)
	}
	if string(data) != "nội dung" {
		t.Fatalf("文件内容不正确: %q", data)
	}
}

func TestFileExists(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	if fs.FileExists("sub", "missing.json") {
		t.Fatal("不存在的文件应该返回false")
	}

	fs.SaveTextFile("sub", "present.txt", []byte("x"))
	if !fs.FileExists("sub", "present.txt") {
		t.Fatal("已保存的文件应该返回true")
	}
}

func TestConcurrentWritesSameFile(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fs.SaveTextFile("sub", "shared.txt", []byte("nội dung dài hơn một chút")); err != nil {
				t.Errorf("并发写入失败: %v", err)
			}
		}()
	}
	wg.Wait()

	var loaded string
	data, err := os.ReadFile(filepath.Join(fs.BaseDir, "sub", "shared.txt"))
	if err != nil {
		t.Fatalf("读取文件失败: %v", err)
	}
	loaded = string(data)
	if loaded != "nội dung dài hơn một chút" {
		t.Fatalf("并发写入后内容不完整: %q", loaded)
	}
}
