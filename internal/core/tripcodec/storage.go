package tripcodec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf16"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/ports"
)

// DefaultStorageKey is the key used when none is configured.
const DefaultStorageKey = "trip_planner_stops"

// Store reads and writes the PersistedTripRecord under one key. Every storage
// failure is logged, reported to the error hook and swallowed.
type Store struct {
	kv     ports.KeyValueStore
	key    string
	ttl    int
	schema *Schema
	now    func() time.Time
	log    *slog.Logger
	onErr  func(op string, err *domain.TripError)
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets an expiry in seconds on written records.
func WithTTL(seconds int) Option { return func(s *Store) { s.ttl = seconds } }

// WithSchema sets the schema used to validate stored shapes.
func WithSchema(schema *Schema) Option { return func(s *Store) { s.schema = schema } }

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

// WithErrorHook is called for every swallowed storage error.
func WithErrorHook(fn func(op string, err *domain.TripError)) Option {
	return func(s *Store) { s.onErr = fn }
}

// NewStore creates a Store over kv. An empty key selects DefaultStorageKey.
func NewStore(kv ports.KeyValueStore, key string, opts ...Option) *Store {
	if key == "" {
		key = DefaultStorageKey
	}
	s := &Store{
		kv:     kv,
		key:    key,
		schema: NewSchema(nil),
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key returns the storage key.
func (s *Store) Key() string { return s.key }

// Load returns the stored record, migrating and rewriting older shapes.
// Unreadable data yields ok=false; corrupt or schema-invalid data is deleted.
func (s *Store) Load(ctx context.Context) (rec domain.PersistedTripRecord, ok bool) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ports.ErrNotFound) {
		return rec, false
	}
	if err != nil {
		s.report(ctx, "read", domain.NewStorageError(domain.CodeStorageRead, err))
		return rec, false
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		s.discard(ctx, domain.NewStorageError(domain.CodeStorageCorrupt, err))
		return rec, false
	}

	switch v := parsed.(type) {
	case []any:
		return s.migrateLegacy(ctx, v)
	case map[string]any:
		return s.loadVersioned(ctx, v, raw)
	default:
		s.discard(ctx, domain.NewStorageError(domain.CodeStorageInvalid,
			fmt.Errorf("stored value is %T", parsed)))
		return rec, false
	}
}

func (s *Store) migrateLegacy(ctx context.Context, entries []any) (domain.PersistedTripRecord, bool) {
	seen := make(map[string]struct{}, len(entries))
	slugs := make([]string, 0, len(entries))
	for i, e := range entries {
		slug, res := s.schema.ValidateLegacyEntry(e)
		if !res.Valid {
			s.log.DebugContext(ctx, "dropping legacy trip entry", "key", s.key, "index", i, "problems", res.Problems)
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		slugs = append(slugs, slug)
	}

	if len(slugs) == 0 {
		s.discard(ctx, domain.NewStorageError(domain.CodeStorageInvalid,
			errors.New("legacy trip has no valid entries")))
		return domain.PersistedTripRecord{}, false
	}

	rec := s.stamp(slugs, false)
	s.write(ctx, rec)
	s.log.InfoContext(ctx, "migrated legacy trip record", "key", s.key, "stops", len(slugs))
	return rec, true
}

func (s *Store) loadVersioned(ctx context.Context, obj map[string]any, raw []byte) (domain.PersistedTripRecord, bool) {
	var rec domain.PersistedTripRecord
	if _, versioned := obj["version"]; !versioned {
		s.discard(ctx, domain.NewStorageError(domain.CodeStorageInvalid,
			errors.New("record has no version")))
		return rec, false
	}

	if res := s.schema.ValidateRecord(obj); !res.Valid {
		s.discard(ctx, domain.NewStorageError(domain.CodeStorageInvalid,
			fmt.Errorf("schema: %v", res.Problems)))
		return rec, false
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.discard(ctx, domain.NewStorageError(domain.CodeStorageCorrupt, err))
		return rec, false
	}

	switch {
	case rec.Version > domain.CurrentRecordVersion:
		s.report(ctx, "read", domain.NewStorageError(domain.CodeStorageUnsupported,
			fmt.Errorf("record version %d is newer than %d", rec.Version, domain.CurrentRecordVersion)))
		return domain.PersistedTripRecord{}, false
	case rec.Version < domain.CurrentRecordVersion:
		rec = s.migrate(rec)
		s.write(ctx, rec)
	}
	return rec, true
}

// migrate upgrades a versioned record to the current version. No field
// changes exist between the versions defined so far.
func (s *Store) migrate(rec domain.PersistedTripRecord) domain.PersistedTripRecord {
	return s.stamp(rec.StopSlugs, rec.IsOptimizedRoute)
}

// Save writes the trip. An empty trip removes the record instead.
func (s *Store) Save(ctx context.Context, slugs []string, optimized bool) {
	clean := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		if slug != "" {
			clean = append(clean, slug)
		}
	}
	if len(clean) == 0 {
		s.Remove(ctx)
		return
	}
	s.write(ctx, s.stamp(clean, optimized))
}

// SaveLocations writes the ids of the structurally valid locations.
func (s *Store) SaveLocations(ctx context.Context, locs []domain.Location, optimized bool) {
	slugs := make([]string, 0, len(locs))
	for _, l := range locs {
		if res := s.schema.ValidateLocation(l); !res.Valid {
			s.log.WarnContext(ctx, "not persisting invalid stop", "id", l.ID, "problems", res.Problems)
			continue
		}
		slugs = append(slugs, l.ID)
	}
	s.Save(ctx, slugs, optimized)
}

// Remove deletes the record.
func (s *Store) Remove(ctx context.Context) {
	if err := s.kv.Delete(ctx, s.key); err != nil && !errors.Is(err, ports.ErrNotFound) {
		s.report(ctx, "delete", domain.NewStorageError(domain.CodeStorageWrite, err))
	}
}

// Size estimates the stored JSON size in bytes at two bytes per UTF-16 code
// unit. A missing or unreadable key reports 0.
func (s *Store) Size(ctx context.Context) int {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return 0
	}
	return len(utf16.Encode([]rune(string(raw)))) * 2
}

func (s *Store) stamp(slugs []string, optimized bool) domain.PersistedTripRecord {
	return domain.PersistedTripRecord{
		Version:          domain.CurrentRecordVersion,
		Timestamp:        s.now().UnixMilli(),
		StopSlugs:        append([]string(nil), slugs...),
		IsOptimizedRoute: optimized,
	}
}

func (s *Store) write(ctx context.Context, rec domain.PersistedTripRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		s.report(ctx, "write", domain.NewStorageError(domain.CodeStorageWrite, err))
		return
	}
	if err := s.kv.Set(ctx, s.key, data, s.ttl); err != nil {
		s.report(ctx, "write", domain.NewStorageError(domain.CodeStorageWrite, err))
	}
}

func (s *Store) discard(ctx context.Context, err *domain.TripError) {
	s.report(ctx, "read", err)
	s.Remove(ctx)
}

func (s *Store) report(ctx context.Context, op string, err *domain.TripError) {
	s.log.WarnContext(ctx, "trip storage error", "key", s.key, "op", op, "code", err.Code, "error", err.Err)
	if s.onErr != nil {
		s.onErr(op, err)
	}
}
