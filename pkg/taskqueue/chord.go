package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrChordNotFound is returned when completing a chord that was never initialised or already expired.
var ErrChordNotFound = errors.New("chord not found")

// ChordStore tracks the completion of chord members. Complete returns the body only to the caller
// whose completion brought the remaining count to zero with no failed member.
type ChordStore interface {
	Init(ctx context.Context, chordID string, size int, body Signature) error
	Complete(ctx context.Context, chordID string, failed bool) (*Signature, error)
	Pending(ctx context.Context) (int, error)
}

type memoryChord struct {
	remaining int
	failures  int
	body      Signature
}

// MemoryChordStore keeps chord counters in process memory. It is only correct with a single worker.
type MemoryChordStore struct {
	mu     sync.Mutex
	chords map[string]*memoryChord
}

func NewMemoryChordStore() *MemoryChordStore {
	return &MemoryChordStore{chords: make(map[string]*memoryChord)}
}

func (s *MemoryChordStore) Init(_ context.Context, chordID string, size int, body Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chords[chordID] = &memoryChord{remaining: size, body: body}

	return nil
}

func (s *MemoryChordStore) Complete(_ context.Context, chordID string, failed bool) (*Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chord, ok := s.chords[chordID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChordNotFound, chordID)
	}

	if failed {
		chord.failures++
	}

	chord.remaining--
	if chord.remaining > 0 {
		return nil, nil
	}

	delete(s.chords, chordID)

	if chord.failures > 0 {
		return nil, nil
	}

	body := chord.body

	return &body, nil
}

func (s *MemoryChordStore) Pending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.chords), nil
}

const (
	redisChordPrefix = "geoimporter:chord:"
	redisChordIndex  = "geoimporter:chords"
	redisChordTTL    = 24 * time.Hour
)

// RedisChordStore keeps chord counters in a Redis hash so that any worker may complete a member.
type RedisChordStore struct {
	client redis.UniversalClient
}

func NewRedisChordStore(client redis.UniversalClient) *RedisChordStore {
	return &RedisChordStore{client: client}
}

func (s *RedisChordStore) Init(ctx context.Context, chordID string, size int, body Signature) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal chord body: %w", err)
	}

	key := redisChordPrefix + chordID

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "remaining", size, "failures", 0, "body", payload)
		pipe.Expire(ctx, key, redisChordTTL)
		pipe.SAdd(ctx, redisChordIndex, chordID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to initialise chord %s: %w", chordID, err)
	}

	return nil
}

func (s *RedisChordStore) Complete(ctx context.Context, chordID string, failed bool) (*Signature, error) {
	key := redisChordPrefix + chordID

	failureDelta := int64(0)
	if failed {
		failureDelta = 1
	}

	var (
		failures  *redis.IntCmd
		remaining *redis.IntCmd
	)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		failures = pipe.HIncrBy(ctx, key, "failures", failureDelta)
		remaining = pipe.HIncrBy(ctx, key, "remaining", -1)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete chord %s: %w", chordID, err)
	}

	left := remaining.Val()

	switch {
	case left > 0:
		return nil, nil
	case left < 0:
		// HINCRBY on a missing key starts from zero.
		s.cleanup(ctx, chordID)

		return nil, fmt.Errorf("%w: %s", ErrChordNotFound, chordID)
	}

	payload, err := s.client.HGet(ctx, key, "body").Bytes()

	s.cleanup(ctx, chordID)

	if err != nil {
		return nil, fmt.Errorf("failed to load chord body %s: %w", chordID, err)
	}

	if failures.Val() > 0 {
		return nil, nil
	}

	var body Signature

	err = json.Unmarshal(payload, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal chord body %s: %w", chordID, err)
	}

	return &body, nil
}

func (s *RedisChordStore) Pending(ctx context.Context) (int, error) {
	count, err := s.client.SCard(ctx, redisChordIndex).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count chords: %w", err)
	}

	return int(count), nil
}

func (s *RedisChordStore) cleanup(ctx context.Context, chordID string) {
	s.client.Del(ctx, redisChordPrefix+chordID)
	s.client.SRem(ctx, redisChordIndex, chordID)
}
