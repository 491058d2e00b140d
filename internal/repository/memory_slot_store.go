package repository

import (
	"context"
	"sync"
)

// MemorySlotStore はプロセス内メモリのみを使用するSlotStore。
// テストおよびSTORAGE_BACKEND=memory（永続化なし）で使用する。
type MemorySlotStore struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// NewMemorySlotStore はMemorySlotStoreを生成する。
func NewMemorySlotStore() *MemorySlotStore {
	return &MemorySlotStore{slots: make(map[string][]byte)}
}

// Get は指定キーの値のコピーを返す。未設定の場合はnilを返す。
func (s *MemorySlotStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.slots[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put は値のコピーを保存する。
func (s *MemorySlotStore) Put(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	s.slots[key] = v
	s.mu.Unlock()
	return nil
}

// Delete は指定キーを削除する。
func (s *MemorySlotStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.slots, key)
	s.mu.Unlock()
	return nil
}

// Close は何もしない。
func (s *MemorySlotStore) Close() error {
	return nil
}
