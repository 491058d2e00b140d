package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerSlotStore はBadgerDBを使用したSlotStore。
type BadgerSlotStore struct {
	db *badger.DB
}

// NewBadgerSlotStore はBadgerSlotStoreを生成する。
// dbの所有権はストアに移り、Closeで閉じられる。
func NewBadgerSlotStore(db *badger.DB) *BadgerSlotStore {
	return &BadgerSlotStore{db: db}
}

// Get は指定キーの値を取得する。未設定の場合はnilを返す。
func (s *BadgerSlotStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(slotKeyPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot %q: %w", key, err)
	}
	return value, nil
}

// Put は指定キーに値を書き込む。
func (s *BadgerSlotStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(slotKeyPrefix+key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to put slot %q: %w", key, err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (s *BadgerSlotStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(slotKeyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete slot %q: %w", key, err)
	}
	return nil
}

// Close はBadgerDBを閉じる。
func (s *BadgerSlotStore) Close() error {
	return s.db.Close()
}
