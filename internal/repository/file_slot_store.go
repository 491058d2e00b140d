package repository

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSlotStore はキーごとに1ファイルとして値を保存するSlotStore。
// 書き込みは一時ファイル経由のリネームで行い、途中状態のファイルを残さない。
type FileSlotStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileSlotStore はFileSlotStoreを生成する。ディレクトリが存在しない場合は作成する。
func NewFileSlotStore(dir string) (*FileSlotStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create slot directory %s: %w", dir, err)
	}
	return &FileSlotStore{dir: dir}, nil
}

// path はキーをファイル名に安全な形式へ変換したパスを返す。
func (s *FileSlotStore) path(key string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(key))+".slot")
}

// Get は指定キーのファイル内容を返す。ファイルが存在しない場合はnilを返す。
func (s *FileSlotStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot %q: %w", key, err)
	}
	return data, nil
}

// Put は値をアトミックに書き込む。
func (s *FileSlotStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "slot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write slot %q: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync slot %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close slot %q: %w", key, err)
	}

	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit slot %q: %w", key, err)
	}
	return nil
}

// Delete は指定キーのファイルを削除する。
func (s *FileSlotStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete slot %q: %w", key, err)
	}
	return nil
}

// Close は何もしない。
func (s *FileSlotStore) Close() error {
	return nil
}
