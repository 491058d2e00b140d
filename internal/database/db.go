// Package database はローカル永続化バックエンドの生成を提供する。
package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/hitoshi/dermadash/internal/config"
	"github.com/hitoshi/dermadash/internal/repository"
)

// Open は設定されたバックエンドでSlotStoreを開く。
// 呼び出し元は使用後にCloseを呼ぶこと。
func Open(backend, dataDir string, logger *slog.Logger) (repository.SlotStore, error) {
	switch backend {
	case config.StorageMemory:
		return repository.NewMemorySlotStore(), nil

	case config.StorageFile:
		store, err := repository.NewFileSlotStore(filepath.Join(dataDir, "slots"))
		if err != nil {
			return nil, fmt.Errorf("failed to open file store: %w", err)
		}
		return store, nil

	case config.StorageLevelDB:
		db, err := OpenLevelDB(filepath.Join(dataDir, "leveldb"))
		if err != nil {
			return nil, err
		}
		return repository.NewLevelDBSlotStore(db), nil

	case config.StorageBadger:
		db, err := OpenBadger(BadgerConfig{
			Path:       filepath.Join(dataDir, "badger"),
			SyncWrites: true,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return repository.NewBadgerSlotStore(db), nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", backend)
	}
}

// OpenLevelDB は指定パスのLevelDBを開く。ディレクトリが存在しない場合は作成する。
func OpenLevelDB(path string) (*leveldb.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create leveldb directory: %w", err)
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return db, nil
}

// BadgerConfig はBadgerDBの設定。
type BadgerConfig struct {
	// Path はデータディレクトリ。InMemoryの場合は無視される。
	Path string
	// InMemory はディスクに書き込まないモード。テスト用。
	InMemory bool
	// SyncWrites は書き込みごとにfsyncするかどうか。
	SyncWrites bool
	// Logger はBadgerDB内部ログの出力先。nilの場合は内部ログを無効化する。
	Logger *slog.Logger
}

// badgerLogger はslog.LoggerをBadgerDBのLoggerインターフェースに適合させる。
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger は設定に従ってBadgerDBを開く。
func OpenBadger(cfg BadgerConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger path is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return db, nil
}
