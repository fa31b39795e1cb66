package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Remote is the authority the store synchronizes with.
type Remote interface {
	List(ctx context.Context) ([]Record, error)
	Create(ctx context.Context, draft Record) (Record, error)
	Update(ctx context.Context, remoteID string, rec Record) (Record, error)
	Delete(ctx context.Context, remoteID string) error
}

// Reader is the read-only capability handed to consumers of the collection.
type Reader interface {
	Snapshot() Snapshot
	ForUser(userID string) []Record
	Find(localID string) (Record, bool)
}

// Writer is the capability that mutates the collection through the authority.
type Writer interface {
	FetchAll(ctx context.Context) error
	Create(ctx context.Context, draft Record) error
	Update(ctx context.Context, rec Record) error
	Delete(ctx context.Context, localID string) error
}

var (
	_ Reader = (*Store)(nil)
	_ Writer = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report failed operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithObserver registers fn to be called after every snapshot change.
// Observers see versions in increasing order and are never handed a snapshot
// older than one they already saw. They must not mutate the store.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Store) { s.observers = append(s.observers, fn) }
}

// Store owns the local mirror of the authority's records. Every mutation is
// sent to the authority first and the mirror is then rebuilt from a full read.
type Store struct {
	remote    Remote
	log       *slog.Logger
	observers []func(Snapshot)

	mu   sync.RWMutex
	snap Snapshot

	deliverMu sync.Mutex
	delivered uint64
}

// NewStore creates an empty store backed by remote.
func NewStore(remote Remote, opts ...Option) *Store {
	s := &Store{remote: remote, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current collection.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// ForUser returns the current records owned by userID.
func (s *Store) ForUser(userID string) []Record {
	return s.Snapshot().ForUser(userID)
}

// Find looks a record up by local identity.
func (s *Store) Find(localID string) (Record, bool) {
	return s.Snapshot().Find(localID)
}

// FetchAll replaces the collection with the authority's full record set.
// On failure the previous collection is kept.
func (s *Store) FetchAll(ctx context.Context) error {
	records, err := s.remote.List(ctx)
	if err != nil {
		if !errors.Is(err, ErrSyncUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSyncUnavailable, err)
		}
		s.log.Warn("fetch absents failed", slog.String("error", err.Error()))
		return fmt.Errorf("fetch absents: %w", err)
	}
	s.publish(func(cur Snapshot) Snapshot { return cur.replaced(records) })
	return nil
}

// Create sends draft to the authority and resynchronizes.
func (s *Store) Create(ctx context.Context, draft Record) error {
	if err := draft.Validate(); err != nil {
		return fmt.Errorf("create absent: %w: %w", ErrWriteRejected, err)
	}
	if _, err := s.remote.Create(ctx, draft); err != nil {
		err = classify(err, ErrWriteRejected)
		s.log.Warn("create absent failed", slog.String("id", draft.ID), slog.String("error", err.Error()))
		return fmt.Errorf("create absent %s: %w", draft.ID, err)
	}
	return s.FetchAll(ctx)
}

// Update merges the editable fields of rec onto the stored record with the
// same local identity, sends it to the authority and resynchronizes.
func (s *Store) Update(ctx context.Context, rec Record) error {
	base, ok := s.Find(rec.ID)
	if !ok || base.RemoteID == "" {
		return fmt.Errorf("update absent %s: %w", rec.ID, ErrNotFound)
	}
	merged := base.withEditable(rec)
	if err := merged.Validate(); err != nil {
		return fmt.Errorf("update absent %s: %w: %w", rec.ID, ErrWriteRejected, err)
	}
	if _, err := s.remote.Update(ctx, base.RemoteID, merged); err != nil {
		err = classify(err, ErrWriteRejected)
		s.log.Warn("update absent failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
		return fmt.Errorf("update absent %s: %w", rec.ID, err)
	}
	return s.FetchAll(ctx)
}

// Delete removes the record with the given local identity from the authority
// and prunes it from the collection.
func (s *Store) Delete(ctx context.Context, localID string) error {
	base, ok := s.Find(localID)
	if !ok || base.RemoteID == "" {
		return fmt.Errorf("delete absent %s: %w", localID, ErrNotFound)
	}
	if err := s.remote.Delete(ctx, base.RemoteID); err != nil {
		err = classify(err, ErrWriteRejected)
		s.log.Warn("delete absent failed", slog.String("id", localID), slog.String("error", err.Error()))
		return fmt.Errorf("delete absent %s: %w", localID, err)
	}
	s.publish(func(cur Snapshot) Snapshot { return cur.without(base.RemoteID) })
	return nil
}

func (s *Store) publish(next func(Snapshot) Snapshot) {
	s.mu.Lock()
	s.snap = next(s.snap)
	s.mu.Unlock()

	// Another publish may have landed since; deliver whatever is newest, once.
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	snap := s.Snapshot()
	if snap.Version() <= s.delivered {
		return
	}
	s.delivered = snap.Version()
	for _, fn := range s.observers {
		fn(snap)
	}
}

// classify makes sure err carries one of the store's error kinds, using
// fallback when the remote did not say.
func classify(err, fallback error) error {
	for _, kind := range []error{ErrSyncUnavailable, ErrWriteRejected, ErrNotFound} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
