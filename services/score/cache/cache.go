// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache persists per-file analysis results in BadgerDB so unchanged
// files are not re-parsed.
//
// Key format: "file:{path}"
// Value format: [4-byte CRC32][gob-encoded record]
//
// The record carries the catalog version, content hash and mtime it was
// computed for; a lookup whose key does not match all three is a miss.
package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/crabscore/services/score/safety"
)

// DefaultTTL bounds how long an entry survives without being rewritten.
const DefaultTTL = 30 * 24 * time.Hour

// ErrCorrupted indicates a stored value failed its checksum.
var ErrCorrupted = errors.New("cache entry corrupted")

var (
	// lookups counts cache lookups by result
	lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crabscore_cache_lookups_total",
		Help: "Total finding cache lookups by result",
	}, []string{"result"}) // "hit", "miss", "stale" or "error"

	// writes counts cache writes by result
	writes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crabscore_cache_writes_total",
		Help: "Total finding cache writes by result",
	}, []string{"result"})
)

// Key identifies the exact input a cached result was computed from.
type Key struct {
	CatalogVersion string
	Path           string
	SHA256         string
	ModTime        int64
}

// Entry is the cached analysis of one file.
type Entry struct {
	Lines       int
	ParseFailed bool
	Findings    []safety.Finding

	Functions     int
	TestFunctions int
	Modules       int
	DocLines      int
}

// record is the stored value: the key it was computed for plus the entry.
type record struct {
	Key   Key
	Entry Entry
}

// FindingCache stores per-file results keyed by path.
//
// Description:
//
//	One record is kept per path. A changed file, a new mtime or a new
//	catalog version makes the stored record stale: Get reports a miss and
//	the next Put replaces it.
//
// Thread Safety:
//
//	FindingCache is safe for concurrent use.
type FindingCache struct {
	store *store
	ttl   time.Duration
}

// Option configures a FindingCache.
type Option func(*FindingCache)

// WithTTL sets the entry lifetime. Non-positive values disable expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *FindingCache) {
		c.ttl = ttl
	}
}

// Open opens or creates a cache.
//
// Outputs:
//   - *FindingCache: Ready to use. Caller must Close it.
//   - error: Non-nil if the directory cannot be created or badger fails to open.
func Open(cfg StoreConfig, opts ...Option) (*FindingCache, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	c := &FindingCache{store: s, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OpenInMemory opens a cache that lives only as long as the process.
func OpenInMemory(opts ...Option) (*FindingCache, error) {
	return Open(StoreConfig{InMemory: true}, opts...)
}

// Close releases the database. Safe to call multiple times.
func (c *FindingCache) Close() error {
	return c.store.close()
}

func storageKey(path string) []byte {
	return []byte("file:" + path)
}

// Get returns the cached entry for k.
//
// Errors are logged and reported as a miss: the cache never fails a run.
func (c *FindingCache) Get(ctx context.Context, k Key) (*Entry, bool) {
	var rec record
	err := c.store.withReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(storageKey(k.Path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return decodeRecord(val, &rec)
		})
	})

	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		lookups.WithLabelValues("miss").Inc()
		return nil, false
	case err != nil:
		lookups.WithLabelValues("error").Inc()
		slog.Debug("finding cache lookup failed",
			slog.String("path", k.Path),
			slog.String("error", err.Error()))
		return nil, false
	case rec.Key != k:
		lookups.WithLabelValues("stale").Inc()
		return nil, false
	}

	lookups.WithLabelValues("hit").Inc()
	return &rec.Entry, true
}

// Put stores e as the result for k, replacing any record for k.Path.
func (c *FindingCache) Put(ctx context.Context, k Key, e *Entry) error {
	val, err := encodeRecord(record{Key: k, Entry: *e})
	if err != nil {
		writes.WithLabelValues("error").Inc()
		return err
	}

	err = c.store.withTxn(ctx, func(txn *badger.Txn) error {
		entry := badger.NewEntry(storageKey(k.Path), val)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		writes.WithLabelValues("error").Inc()
		return fmt.Errorf("cache put %s: %w", k.Path, err)
	}
	writes.WithLabelValues("ok").Inc()
	return nil
}

// Purge removes every entry.
func (c *FindingCache) Purge() error {
	return c.store.db.DropAll()
}

// encodeRecord gob-encodes rec and prepends its CRC32.
func encodeRecord(rec record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}

	out := make([]byte, 4+buf.Len())
	binary.BigEndian.PutUint32(out[:4], crc32.ChecksumIEEE(buf.Bytes()))
	copy(out[4:], buf.Bytes())
	return out, nil
}

// decodeRecord verifies the checksum and decodes into rec.
func decodeRecord(data []byte, rec *record) error {
	if len(data) < 5 {
		return fmt.Errorf("%w: entry too short", ErrCorrupted)
	}

	stored := binary.BigEndian.Uint32(data[:4])
	payload := data[4:]
	if computed := crc32.ChecksumIEEE(payload); stored != computed {
		return fmt.Errorf("%w: stored=%08x computed=%08x", ErrCorrupted, stored, computed)
	}

	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(rec); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}
