package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/booklet/internal/clock"
	"github.com/roach88/booklet/internal/store"
)

const (
	// KeyPrefix prefixes every namespace payload key.
	KeyPrefix = "@booklet_"

	// ReservedNamespace is the name whose entry key would be SyncKey.
	ReservedNamespace = "last_sync"

	// SyncKey holds the namespace -> last sync time map.
	SyncKey = KeyPrefix + ReservedNamespace

	// DefaultMaxAge is the staleness window used when callers have no
	// namespace-specific preference.
	DefaultMaxAge = 30 * time.Minute
)

// Well-known namespaces.
const (
	NamespaceRestaurants      = "restaurants"
	NamespaceBookingsUpcoming = "bookings:upcoming"
	NamespaceBookingsPast     = "bookings:past"
	NamespaceFavorites        = "favorites"
	NamespaceProfile          = "profile"
)

// ScheduleNamespace returns the namespace holding a restaurant's schedule
// authorities.
func ScheduleNamespace(restaurantID string) string {
	return "schedule:" + restaurantID
}

// Entry is one namespace's cached payload.
type Entry struct {
	Namespace string          `json:"namespace"`
	Payload   json.RawMessage `json:"payload"`
	StoredAt  time.Time       `json:"stored_at"`
}

// Decode unmarshals the payload into v.
func (e *Entry) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %q: %w", e.Namespace, err)
	}
	return nil
}

// Store is the Cache Store. Construct one per process and share it.
//
// Thread-safety: safe for concurrent use. Writes that touch the shared sync
// map are serialized by an internal mutex.
type Store struct {
	kv     store.KV
	clock  clock.Clock
	logger *slog.Logger

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for storedAt and staleness.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a Cache Store over kv.
func New(kv store.KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		clock:  clock.System{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.OrSystem(s.clock)
	return s
}

func entryKey(namespace string) string {
	return KeyPrefix + namespace
}

func checkNamespace(op, namespace string) error {
	if namespace == "" || namespace == ReservedNamespace {
		return fmt.Errorf("%s %q: %w", op, namespace, ErrInvalidNamespace)
	}
	return nil
}

// Get returns the entry for namespace, or nil if none has been written.
func (s *Store) Get(ctx context.Context, namespace string) (*Entry, error) {
	if err := checkNamespace("get", namespace); err != nil {
		return nil, err
	}
	raw, ok, err := s.kv.Get(ctx, entryKey(namespace))
	if err != nil {
		return nil, &StorageError{Op: "get", Namespace: namespace, Err: err}
	}
	if !ok {
		return nil, nil
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, &StorageError{Op: "decode", Namespace: namespace, Err: err}
	}
	return &e, nil
}

// Put replaces the namespace payload and records its sync time.
//
// storedAt never moves backwards: if the clock reads earlier than the
// existing entry's storedAt, the existing storedAt is kept.
//
// The empty namespace and ReservedNamespace are rejected with
// ErrInvalidNamespace.
func (s *Store) Put(ctx context.Context, namespace string, payload any) error {
	if err := checkNamespace("put", namespace); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("put %q: marshal payload: %w", namespace, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	prev, err := s.Get(ctx, namespace)
	if err != nil {
		return err
	}
	if prev != nil && prev.StoredAt.After(now) {
		now = prev.StoredAt
	}

	entry := Entry{Namespace: namespace, Payload: data, StoredAt: now}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("put %q: marshal entry: %w", namespace, err)
	}
	if err := s.kv.Set(ctx, entryKey(namespace), string(encoded)); err != nil {
		return &StorageError{Op: "put", Namespace: namespace, Err: err}
	}

	syncs, err := s.readSyncLocked(ctx)
	if err != nil {
		return err
	}
	syncs[namespace] = now
	if err := s.writeSyncLocked(ctx, syncs); err != nil {
		return err
	}

	s.logger.Debug("cache put", "namespace", namespace, "bytes", len(data))
	return nil
}

// IsStale reports whether namespace must be revalidated: true when it has no
// sync record or now - lastSync > maxAge.
func (s *Store) IsStale(ctx context.Context, namespace string, maxAge time.Duration) (bool, error) {
	last, ok, err := s.LastSync(ctx, namespace)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return s.clock.Now().Sub(last) > maxAge, nil
}

// LastSync returns the namespace's last sync time.
func (s *Store) LastSync(ctx context.Context, namespace string) (time.Time, bool, error) {
	syncs, err := s.SyncTimes(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	t, ok := syncs[namespace]
	return t, ok, nil
}

// SyncTimes returns every namespace's last sync time.
func (s *Store) SyncTimes(ctx context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSyncLocked(ctx)
}

// Invalidate forgets the namespace's sync time so the next IsStale returns
// true. The payload stays readable.
func (s *Store) Invalidate(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	syncs, err := s.readSyncLocked(ctx)
	if err != nil {
		return err
	}
	if _, ok := syncs[namespace]; !ok {
		return nil
	}
	delete(syncs, namespace)
	if err := s.writeSyncLocked(ctx, syncs); err != nil {
		return err
	}
	s.logger.Debug("cache invalidated", "namespace", namespace)
	return nil
}

// Namespaces lists every namespace with a stored payload, sorted.
func (s *Store) Namespaces(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == SyncKey {
			continue
		}
		out = append(out, strings.TrimPrefix(k, KeyPrefix))
	}
	sort.Strings(out)
	return out, nil
}

// Clear removes every namespace payload and the sync map.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.kv.Keys(ctx, KeyPrefix)
	if err != nil {
		return &StorageError{Op: "clear", Err: err}
	}
	if err := s.kv.MultiRemove(ctx, keys); err != nil {
		return &StorageError{Op: "clear", Err: err}
	}
	s.logger.Info("cache cleared", "keys", len(keys))
	return nil
}

// Size returns the total payload size in bytes across namespaces.
func (s *Store) Size(ctx context.Context) (int, error) {
	names, err := s.Namespaces(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, ns := range names {
		e, err := s.Get(ctx, ns)
		if err != nil {
			return 0, err
		}
		if e != nil {
			total += len(e.Payload)
		}
	}
	return total, nil
}

func (s *Store) readSyncLocked(ctx context.Context) (map[string]time.Time, error) {
	raw, ok, err := s.kv.Get(ctx, SyncKey)
	if err != nil {
		return nil, &StorageError{Op: "sync", Err: err}
	}
	syncs := make(map[string]time.Time)
	if !ok {
		return syncs, nil
	}
	if err := json.Unmarshal([]byte(raw), &syncs); err != nil {
		return nil, &StorageError{Op: "sync", Err: err}
	}
	return syncs, nil
}

func (s *Store) writeSyncLocked(ctx context.Context, syncs map[string]time.Time) error {
	data, err := json.Marshal(syncs)
	if err != nil {
		return fmt.Errorf("marshal sync map: %w", err)
	}
	if err := s.kv.Set(ctx, SyncKey, string(data)); err != nil {
		return &StorageError{Op: "sync", Err: err}
	}
	return nil
}

// GetAs reads namespace and decodes its payload into T.
// ok is false when the namespace has never been written.
func GetAs[T any](ctx context.Context, s *Store, namespace string) (T, bool, error) {
	var zero T
	e, err := s.Get(ctx, namespace)
	if err != nil || e == nil {
		return zero, false, err
	}
	var v T
	if err := e.Decode(&v); err != nil {
		return zero, false, &StorageError{Op: "decode", Namespace: namespace, Err: err}
	}
	return v, true, nil
}
