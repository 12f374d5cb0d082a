// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists sampling runs in an embedded BadgerDB.
//
// Samples are stored one key per draw under sample/<chainID>/<index>, with
// the index zero-padded so that key order is emission order. Values are
// JSON-encoded kernel.Sample records.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the sample database.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in memory. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every committed transaction.
	SyncWrites bool

	// Logger receives BadgerDB's internal log lines. Nil silences them.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable fraction before GC rewrites
	// a value log file.
	GCDiscardRatio float64
}

// DefaultConfig returns a persistent configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     false,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration that never touches disk.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
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

// DB is a BadgerDB handle with an optional background GC loop.
//
// Thread Safety: Safe for concurrent use.
type DB struct {
	*badger.DB
	gc *gcRunner
}

// Open opens the database described by cfg.
//
// Description:
//
//	Creates the directory for persistent databases and starts value log GC
//	when GCInterval is positive.
//
// Outputs:
//
//	*DB - The opened database. Caller must call Close() when done.
//	error - Non-nil if the path is missing or the database cannot be opened.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	if cfg.GCDiscardRatio < 0 || cfg.GCDiscardRatio > 1 {
		return nil, fmt.Errorf("gc discard ratio must lie in [0, 1], got %g", cfg.GCDiscardRatio)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
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
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	out := &DB{DB: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		out.gc = startGC(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return out, nil
}

// OpenInMemory opens an in-memory database. Data is lost when closed.
func OpenInMemory() (*DB, error) {
	return Open(InMemoryConfig())
}

// Close stops garbage collection and closes the database.
func (d *DB) Close() error {
	if d.gc != nil {
		d.gc.stop()
	}
	return d.DB.Close()
}

// WithTxn runs fn in a read-write transaction and commits if fn succeeds.
//
// Thread Safety: Safe for concurrent use.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// WithReadTxn runs fn in a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

type gcRunner struct {
	db       *badger.DB
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func startGC(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	r := &gcRunner{
		db:     db,
		ratio:  ratio,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go r.run(interval)
	return r
}

func (r *gcRunner) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

func (r *gcRunner) run(interval time.Duration) {
	defer close(r.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing was worth collecting.
			if err := r.db.RunValueLogGC(r.ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) && r.logger != nil {
				r.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}
