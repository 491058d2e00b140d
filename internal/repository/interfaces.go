// Package repository はデータ永続化のインターフェースを定義する。
package repository

import "context"

// SlotStore はキー単位でバイト列を永続化するストアのインターフェース。
// ブラウザのlocalStorageに相当し、トークンと診断記録キャッシュがそれぞれ専用キーを持つ。
type SlotStore interface {
	// Get は指定キーの値を取得する。未設定の場合はnilを返す。
	Get(ctx context.Context, key string) ([]byte, error)

	// Put は指定キーに値を書き込む。既存の値は置き換える。
	Put(ctx context.Context, key string, value []byte) error

	// Delete は指定キーを削除する。未設定のキーを指定してもエラーにしない。
	Delete(ctx context.Context, key string) error

	// Close はストアを閉じる。
	Close() error
}

// TokenRepository は認証トークンの永続化インターフェース。
type TokenRepository interface {
	// Load は永続化済みトークンを取得する。未設定の場合は空文字を返す。
	Load(ctx context.Context) (string, error)

	// Save はトークンを永続化する。
	Save(ctx context.Context, token string) error

	// Clear は永続化済みトークンを削除する。
	Clear(ctx context.Context) error
}
