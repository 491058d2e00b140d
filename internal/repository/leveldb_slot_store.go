package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// slotKeyPrefix はLevelDB/Badger上でスロットキーに付与する接頭辞。
const slotKeyPrefix = "slot_"

// LevelDBSlotStore はLevelDBを使用したSlotStore。
type LevelDBSlotStore struct {
	db *leveldb.DB
}

// NewLevelDBSlotStore はLevelDBSlotStoreを生成する。
// dbの所有権はストアに移り、Closeで閉じられる。
func NewLevelDBSlotStore(db *leveldb.DB) *LevelDBSlotStore {
	return &LevelDBSlotStore{db: db}
}

// Get は指定キーの値を取得する。未設定の場合はnilを返す。
func (s *LevelDBSlotStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err := s.db.Get([]byte(slotKeyPrefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot %q: %w", key, err)
	}
	return v, nil
}

// Put は指定キーに値を書き込む。
func (s *LevelDBSlotStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Put([]byte(slotKeyPrefix+key), value, nil); err != nil {
		return fmt.Errorf("failed to put slot %q: %w", key, err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (s *LevelDBSlotStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Delete([]byte(slotKeyPrefix+key), nil); err != nil {
		return fmt.Errorf("failed to delete slot %q: %w", key, err)
	}
	return nil
}

// Close はLevelDBを閉じる。
func (s *LevelDBSlotStore) Close() error {
	return s.db.Close()
}
