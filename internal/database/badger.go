package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jordansalagala21/GymTribe/internal/logging"
)

// BadgerConfig controls the embedded document store.
type BadgerConfig struct {
	// Path is ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *logging.Logger

	// GCInterval of zero disables value log GC.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

type badgerLogger struct {
	logger *logging.Logger
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

var openBadger = badger.Open

// BadgerDB wraps an open Badger database and its GC loop.
type BadgerDB struct {
	DB     *badger.DB
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBadgerDB(cfg BadgerConfig) (*BadgerDB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := openBadger(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &BadgerDB{DB: db, cancel: cancel, done: make(chan struct{})}
	if !cfg.InMemory && cfg.GCInterval > 0 {
		go b.runGC(ctx, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	} else {
		close(b.done)
	}
	return b, nil
}

func (b *BadgerDB) runGC(ctx context.Context, interval time.Duration, ratio float64, logger *logging.Logger) {
	defer close(b.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				err := b.DB.RunValueLogGC(ratio)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
					logger.Warn("Badger value log GC failed", map[string]interface{}{"error": err.Error()})
				}
				break
			}
		}
	}
}

// Close stops GC. The database itself is closed by the store that owns it.
func (b *BadgerDB) Close() {
	b.cancel()
	<-b.done
}
