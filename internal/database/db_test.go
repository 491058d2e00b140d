package database

import (
	"context"
	"testing"

	"github.com/hitoshi/dermadash/internal/config"
	"github.com/hitoshi/dermadash/internal/logger"
)

func TestOpen_AllBackends_RoundTrip(t *testing.T) {
	backends := []string{
		config.StorageMemory,
		config.StorageFile,
		config.StorageLevelDB,
		config.StorageBadger,
	}

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			store, err := Open(backend, t.TempDir(), logger.Discard())
			if err != nil {
				t.Fatalf("Open(%q) returned error: %v", backend, err)
			}
			defer store.Close()

			ctx := context.Background()
			if err := store.Put(ctx, "k", []byte("v")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			v, err := store.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(v) != "v" {
				t.Errorf("Get = %q, want %q", v, "v")
			}
		})
	}
}

func TestOpen_LevelDB_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := Open(config.StorageLevelDB, dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.Put(ctx, "authToken", []byte("tok")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s1.Close()

	s2, err := Open(config.StorageLevelDB, dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	v, err := s2.Get(ctx, "authToken")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "tok" {
		t.Errorf("Get = %q, want %q", v, "tok")
	}
}

func TestOpen_UnknownBackend_ReturnsError(t *testing.T) {
	if _, err := Open("postgres", t.TempDir(), nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	if _, err := OpenBadger(BadgerConfig{}); err == nil {
		t.Fatal("expected error when path is empty and InMemory is false")
	}
}

func TestOpenBadger_InMemory(t *testing.T) {
	db, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	db.Close()
}
