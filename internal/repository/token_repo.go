package repository

import (
	"context"
	"fmt"
)

// TokenSlotKey は認証トークンを保存するスロットキー。
const TokenSlotKey = "authToken"

// SlotTokenRepository はSlotStoreの専用キーにトークンを保存するTokenRepository。
type SlotTokenRepository struct {
	slots SlotStore
}

// NewSlotTokenRepository はSlotTokenRepositoryを生成する。
func NewSlotTokenRepository(slots SlotStore) *SlotTokenRepository {
	return &SlotTokenRepository{slots: slots}
}

// Load は永続化済みトークンを取得する。未設定の場合は空文字を返す。
func (r *SlotTokenRepository) Load(ctx context.Context) (string, error) {
	v, err := r.slots.Get(ctx, TokenSlotKey)
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return string(v), nil
}

// Save はトークンを永続化する。
func (r *SlotTokenRepository) Save(ctx context.Context, token string) error {
	if err := r.slots.Put(ctx, TokenSlotKey, []byte(token)); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Clear は永続化済みトークンを削除する。
func (r *SlotTokenRepository) Clear(ctx context.Context) error {
	if err := r.slots.Delete(ctx, TokenSlotKey); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
