package repository

import (
	"bytes"
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// --- compile-time interface checks ---
var _ SlotStore = (*MemorySlotStore)(nil)
var _ SlotStore = (*FileSlotStore)(nil)
var _ SlotStore = (*LevelDBSlotStore)(nil)
var _ SlotStore = (*BadgerSlotStore)(nil)
var _ TokenRepository = (*SlotTokenRepository)(nil)

// slotStoreFactories は全バックエンドに同じ契約テストを適用するためのファクトリ一覧。
func slotStoreFactories(t *testing.T) map[string]func() SlotStore {
	t.Helper()
	return map[string]func() SlotStore{
		"memory": func() SlotStore { return NewMemorySlotStore() },
		"file": func() SlotStore {
			s, err := NewFileSlotStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewFileSlotStore: %v", err)
			}
			return s
		},
		"leveldb": func() SlotStore {
			db, err := leveldb.Open(storage.NewMemStorage(), nil)
			if err != nil {
				t.Fatalf("leveldb.Open: %v", err)
			}
			return NewLevelDBSlotStore(db)
		},
		"badger": func() SlotStore {
			db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
			if err != nil {
				t.Fatalf("badger.Open: %v", err)
			}
			return NewBadgerSlotStore(db)
		},
	}
}

func TestSlotStore_GetMissingKey_ReturnsNil(t *testing.T) {
	for name, newStore := range slotStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			defer s.Close()

			v, err := s.Get(context.Background(), "missing")
			if err != nil {
				t.Fatalf("Get returned error: %v", err)
			}
			if v != nil {
				t.Errorf("Get = %q, want nil", v)
			}
		})
	}
}

func TestSlotStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range slotStoreFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			defer s.Close()

			if err := s.Put(ctx, "dermadash.diagnostics", []byte(`{"schema_version":2}`)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := s.Put(ctx, "dermadash.diagnostics", []byte(`{"schema_version":3}`)); err != nil {
				t.Fatalf("Put (overwrite): %v", err)
			}

			v, err := s.Get(ctx, "dermadash.diagnostics")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(v, []byte(`{"schema_version":3}`)) {
				t.Errorf("Get = %q, want overwritten value", v)
			}

			if err := s.Delete(ctx, "dermadash.diagnostics"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			v, err = s.Get(ctx, "dermadash.diagnostics")
			if err != nil {
				t.Fatalf("Get after delete: %v", err)
			}
			if v != nil {
				t.Errorf("Get after delete = %q, want nil", v)
			}

			// 未設定キーの削除はエラーにならない
			if err := s.Delete(ctx, "never-set"); err != nil {
				t.Errorf("Delete of missing key returned error: %v", err)
			}
		})
	}
}

func TestFileSlotStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := NewFileSlotStore(dir)
	if err != nil {
		t.Fatalf("NewFileSlotStore: %v", err)
	}
	if err := s1.Put(ctx, "authToken", []byte("tok-123")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	s2, err := NewFileSlotStore(dir)
	if err != nil {
		t.Fatalf("NewFileSlotStore: %v", err)
	}
	v, err := s2.Get(ctx, "authToken")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "tok-123" {
		t.Errorf("Get = %q, want %q", v, "tok-123")
	}
}

func TestMemorySlotStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySlotStore()

	in := []byte("abc")
	s.Put(ctx, "k", in)
	in[0] = 'x'

	out, _ := s.Get(ctx, "k")
	if string(out) != "abc" {
		t.Errorf("stored value was mutated through caller slice: %q", out)
	}
}

func TestSlotStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := NewFileSlotStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSlotStore: %v", err)
	}
	if err := s.Put(ctx, "k", []byte("v")); err == nil {
		t.Error("Put with canceled context should fail")
	}
}

func TestSlotTokenRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	slots := NewMemorySlotStore()
	repo := NewSlotTokenRepository(slots)

	tok, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok != "" {
		t.Errorf("Load on empty store = %q, want empty", tok)
	}

	if err := repo.Save(ctx, "bearer-abc"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _ := slots.Get(ctx, TokenSlotKey)
	if string(raw) != "bearer-abc" {
		t.Errorf("token slot = %q, want %q", raw, "bearer-abc")
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	tok, _ = repo.Load(ctx)
	if tok != "" {
		t.Errorf("Load after Clear = %q, want empty", tok)
	}
}
