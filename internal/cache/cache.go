// package cache provides the reconciliation result cache and its key scheme
//
// Two backends implement [Store]: a Redis store for deployments and an
// in-process memory store for tests and single-node runs.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tonearm/internal/models"
)

// Store defines the cache operations used by the reconciliation pipeline.
// All values are opaque bytes; typed helpers live alongside the interface.
type Store interface {
	// Get retrieves a value. The boolean reports whether the key was
	// present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores a value with a TTL. A non-positive TTL stores without
	// expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate removes a key. Removing an absent key is not an error.
	Invalidate(ctx context.Context, key string) error

	// AcquireLease takes a short-lived exclusive lease on a key,
	// returning false when another holder has it. Leases bound
	// concurrent reconciliations across processes.
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// ReleaseLease drops a lease taken with AcquireLease.
	ReleaseLease(ctx context.Context, key string) error

	// Close releases backend resources. Safe to call multiple times.
	Close() error
}

// Key prefixes group cache entries by role so they can be invalidated
// independently.
const (
	resultKeyPrefix  = "result:"
	errorKeyPrefix   = "error:"
	searchKeyPrefix  = "search:"
	releaseKeyPrefix = "release:"
	leaseKeyPrefix   = "lease:"
)

// ResultKey returns the canonical-record key for a query fingerprint.
func ResultKey(fingerprint string) string {
	return resultKeyPrefix + fingerprint
}

// ErrorKey returns the negative-result key for a query fingerprint.
func ErrorKey(fingerprint string) string {
	return errorKeyPrefix + fingerprint
}

// SearchKey returns the per-source search candidates key for a fingerprint.
func SearchKey(source models.Source, fingerprint string) string {
	return searchKeyPrefix + string(source) + ":" + fingerprint
}

// ReleaseKey returns the per-source release details key for a fingerprint.
func ReleaseKey(source models.Source, fingerprint string) string {
	return releaseKeyPrefix + string(source) + ":" + fingerprint
}

// LeaseKey returns the single-flight lease key for a query fingerprint.
func LeaseKey(fingerprint string) string {
	return leaseKeyPrefix + fingerprint
}

// GetRecord retrieves and decodes a cached canonical record.
func GetRecord(ctx context.Context, store Store, fingerprint string) (*models.CanonicalRecord, bool, error) {
	data, ok, err := store.Get(ctx, ResultKey(fingerprint))
	if err != nil || !ok {
		return nil, false, err
	}

	var record models.CanonicalRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached record: %w", err)
	}
	return &record, true, nil
}

// PutRecord encodes and stores a canonical record under the fingerprint.
func PutRecord(ctx context.Context, store Store, fingerprint string, record *models.CanonicalRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return store.Put(ctx, ResultKey(fingerprint), data, ttl)
}

// InvalidateQuery removes every cache entry derived from a fingerprint.
func InvalidateQuery(ctx context.Context, store Store, fingerprint string) error {
	keys := []string{ResultKey(fingerprint), ErrorKey(fingerprint)}
	for _, source := range []models.Source{models.SourcePrimary, models.SourceCommunity, models.SourceFallback} {
		keys = append(keys, SearchKey(source, fingerprint), ReleaseKey(source, fingerprint))
	}

	for _, key := range keys {
		if err := store.Invalidate(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
