package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InFlightSet marca operaciones en curso: un envio del Composer por usuario y un meme por item.
// Acquire devuelve ok=false si la clave ya esta tomada; release solo libera la toma propia.
type InFlightSet interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool)
}

type memoryInFlightSet struct {
	mu   sync.Mutex
	seq  uint64
	busy map[string]uint64
}

func NewMemoryInFlightSet() InFlightSet {
	return &memoryInFlightSet{busy: make(map[string]uint64)}
}

func (s *memoryInFlightSet) Acquire(_ context.Context, key string) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.busy[key]; taken {
		return nil, false
	}
	s.seq++
	owner := s.seq
	s.busy[key] = owner

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.busy[key] == owner {
				delete(s.busy, key)
			}
		})
	}, true
}

const redisUnlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const redisExtendLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

type redisLocker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisInFlightSet struct {
	client redisLocker
	ttl    time.Duration
	prefix string
	// fallback cuando Redis no responde
	local InFlightSet
}

// NewRedisInFlightSet usa SET NX con un token propio y TTL para que un proceso caido no
// deje la clave tomada. Mientras el lock esta tomado se renueva cada ttl/3.
func NewRedisInFlightSet(client *redis.Client, ttl time.Duration) InFlightSet {
	if client == nil {
		return NewMemoryInFlightSet()
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &redisInFlightSet{
		client: client,
		ttl:    ttl,
		prefix: "libertax:inflight:",
		local:  NewMemoryInFlightSet(),
	}
}

func (s *redisInFlightSet) Acquire(ctx context.Context, key string) (func(), bool) {
	token := uuid.NewString()
	callCtx, cancel := redisCallContext(ctx)
	ok, err := s.client.SetNX(callCtx, s.prefix+key, token, s.ttl).Result()
	cancel()
	if err != nil {
		return s.local.Acquire(ctx, key)
	}
	if !ok {
		return nil, false
	}

	done := make(chan struct{})
	go s.keepAlive(s.prefix+key, token, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			callCtx, cancel := redisCallContext(ctx)
			defer cancel()
			_ = s.client.Eval(callCtx, redisUnlockScript, []string{s.prefix + key}, token).Err()
		})
	}, true
}

// keepAlive extiende el TTL mientras el token siga siendo el duenio de la clave.
func (s *redisInFlightSet) keepAlive(key, token string, done <-chan struct{}) {
	ticker := time.NewTicker(s.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := redisCallContext(context.Background())
			n, err := s.client.Eval(ctx, redisExtendLockScript, []string{key}, token, s.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}

func composerKey(userID string) string { return "composer:" + userID }

func memeKey(responseID string) string { return "meme:" + responseID }
