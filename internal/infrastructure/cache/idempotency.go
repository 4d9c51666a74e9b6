package cache

import (
	"time"

	"github.com/erni27/imcache"

	"fieldsettings/internal/core/apperror"
)

// DefaultIdempotencyTTL is how long a completed response is replayed.
const DefaultIdempotencyTTL = 10 * time.Minute

// Replay is a stored response returned for a repeated request.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type idempotencyEntry struct {
	requestHash string
	done        bool
	replay      Replay
}

// IdempotencyStore remembers responses of mutating requests by
// user and client key, for the lifetime of the process.
type IdempotencyStore struct {
	entries *imcache.Cache[string, idempotencyEntry]
	ttl     time.Duration
}

// NewIdempotencyStore creates a store keeping entries for ttl.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyStore{
		entries: imcache.New[string, idempotencyEntry](
			imcache.WithCleanerOption[string, idempotencyEntry](ttl),
		),
		ttl: ttl,
	}
}

func idempotencyKey(key, userID, operation string) string {
	return userID + "\x00" + operation + "\x00" + key
}

// AcquireKey claims key for a request. It returns the stored response when
// the same request already completed, and a conflict when the key is in
// flight or was used for a different request.
func (s *IdempotencyStore) AcquireKey(key, userID, operation, requestHash string) (*Replay, error) {
	k := idempotencyKey(key, userID, operation)
	e, present := s.entries.GetOrSet(k, idempotencyEntry{requestHash: requestHash}, imcache.WithExpiration(s.ttl))
	if !present {
		return nil, nil
	}
	if e.requestHash != requestHash {
		return nil, apperror.NewConflict("idempotency key reused with a different request").
			WithDetail("key", key)
	}
	if !e.done {
		return nil, apperror.NewConflict("request with this idempotency key is in progress").
			WithDetail("key", key)
	}
	r := e.replay
	return &r, nil
}

// CompleteKey stores the response to replay for key.
func (s *IdempotencyStore) CompleteKey(key, userID, operation string, replay Replay) {
	k := idempotencyKey(key, userID, operation)
	e, ok := s.entries.Get(k)
	if !ok {
		return
	}
	e.done = true
	e.replay = replay
	s.entries.Replace(k, e, imcache.WithExpiration(s.ttl))
}

// ReleaseKey forgets key so the request can be retried.
func (s *IdempotencyStore) ReleaseKey(key, userID, operation string) {
	s.entries.Remove(idempotencyKey(key, userID, operation))
}

// Close stops the background cleaner.
func (s *IdempotencyStore) Close() {
	s.entries.Close()
}
