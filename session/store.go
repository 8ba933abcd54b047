package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultTTL is the idle time after which a session is discarded.
const DefaultTTL = 30 * time.Minute

var (
	// ErrInvalidID is returned for an empty session identifier.
	ErrInvalidID = errors.New("session: id must not be empty")

	// ErrClosed is returned once the Store has been closed.
	ErrClosed = errors.New("session: store closed")
)

// Options configures a Store.
type Options struct {
	// TTL is the idle lifetime of a session. Every access extends it.
	// Defaults to DefaultTTL.
	TTL time.Duration

	// MaxSessions bounds the number of live sessions. When the bound is
	// reached the least recently used session is discarded. Zero means
	// unbounded.
	MaxSessions uint64
}

// Store holds sessions in memory, keyed by session ID.
type Store struct {
	cache   *ttlcache.Cache[string, *Session]
	started atomic.Bool
	closed  atomic.Bool
	stop    func()
}

// New returns a Store. Call Start to enable idle expiry and Close to tear
// every session down.
func New(opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	cacheOpts := []ttlcache.Option[string, *Session]{
		ttlcache.WithTTL[string, *Session](ttl),
	}

	if opts.MaxSessions > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, *Session](opts.MaxSessions))
	}

	cache := ttlcache.New[string, *Session](cacheOpts...)

	s := &Store{cache: cache}
	s.stop = cache.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[string, *Session]) {
		item.Value().ClearAll()
	})

	return s
}

// Start runs idle expiry in the background until Close is called.
func (s *Store) Start() {
	if s.closed.Load() || s.started.Swap(true) {
		return
	}

	go s.cache.Start()
}

// Session returns the session for id, creating it when absent.
func (s *Store) Session(id string) (*Session, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	if id == "" {
		return nil, ErrInvalidID
	}

	item, _ := s.cache.GetOrSet(id, newSession(id))

	return item.Value(), nil
}

// Lookup returns the session for id without creating one.
func (s *Store) Lookup(id string) (*Session, bool) {
	if s.closed.Load() || id == "" {
		return nil, false
	}

	item := s.cache.Get(id)
	if item == nil {
		return nil, false
	}

	return item.Value(), true
}

// Drop clears and removes the session for id.
func (s *Store) Drop(id string) {
	if item := s.cache.Get(id, ttlcache.WithDisableTouchOnHit[string, *Session]()); item != nil {
		item.Value().ClearAll()
	}

	s.cache.Delete(id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Close clears every session and stops expiry. It is the teardown hook for
// process or server shutdown and is safe to call more than once.
func (s *Store) Close() {
	if s.closed.Swap(true) {
		return
	}

	for _, item := range s.cache.Items() {
		item.Value().ClearAll()
	}

	s.cache.DeleteAll()
	s.stop()

	if s.started.Load() {
		s.cache.Stop()
	}
}
