// Package store adapts the dedup coordinator's Store interface to real
// SQL backends. Each backend issues Claim as a single round trip using an
// INSERT-wins-or-return-existing CTE, the SQL equivalent of a KV store's
// if_not_exists(...) conditional update with ReturnValues=ALL_OLD.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/onceguard/internal/dedup"
)

// Sweepable is an optional capability a backend can implement to let the
// sweeper reclaim storage for completed records past their TTL, for
// backends with no native expiry mechanism.
type Sweepable interface {
	Sweep(ctx context.Context, before time.Time) (int64, error)
}

// Config configures a store backend by a type-discriminated shape.
type Config struct {
	Type      string // "sqlite" or "postgres"
	DSN       string
	TableName string
}

// Builder constructs a dedup.Store from Config. Every registered backend
// keys its records by dedup.StringKey: the SQL backends this registry
// serves only ever see the opaque ids and processor names that arrive
// over the HTTP API or a TOML-configured processor_id.
type Builder func(Config) (dedup.Store[dedup.StringKey], error)

type registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

var global = &registry{builders: make(map[string]Builder)}

// Register adds a backend builder under storeType (e.g. "sqlite").
func Register(storeType string, b Builder) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.builders[storeType] = b
}

// New builds a dedup.Store from cfg using the registered builder for
// cfg.Type.
func New(cfg Config) (dedup.Store[dedup.StringKey], error) {
	global.mu.RLock()
	b, ok := global.builders[cfg.Type]
	global.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: unsupported type %q (supported: %v)", cfg.Type, SupportedTypes())
	}
	if cfg.TableName == "" {
		cfg.TableName = "dedup_process"
	}
	return b(cfg)
}

// SupportedTypes lists registered backend type names.
func SupportedTypes() []string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	out := make([]string, 0, len(global.builders))
	for t := range global.builders {
		out = append(out, t)
	}
	return out
}
