package store

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Engine selects which Store backend Open constructs.
type Engine string

const (
	EngineLevelDB Engine = "leveldb"
	EngineBadger  Engine = "badger"
	EngineMemory  Engine = "memory"
)

// Options mirrors the handful of knobs klaytn's ServiceContext.OpenDatabase
// exposes (cache size, file handles), generalized over two engines plus an
// ephemeral in-memory one for tests and dev_mode.
type Options struct {
	Engine        Engine
	DataDir       string
	CacheSizeMB   int
	OpenFileLimit int
}

// Open constructs the configured Store backend.
func Open(opts Options, log *zap.Logger) (Store, error) {
	switch opts.Engine {
	case EngineLevelDB, "":
		return OpenLevelDB(opts.DataDir, opts.CacheSizeMB, opts.OpenFileLimit, log)
	case EngineBadger:
		return OpenBadgerDB(opts.DataDir, log)
	case EngineMemory:
		return NewMemDatabase(), nil
	default:
		return nil, errors.Errorf("store: unknown engine %q", opts.Engine)
	}
}
