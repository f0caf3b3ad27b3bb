package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionClosed indica una sesion cerrada, vencida o cuyo refresh ya fue canjeado.
var ErrSessionClosed = errors.New("session closed")

// SessionRecord es una sesion abierta: el usuario y el jti del unico refresh canjeable.
type SessionRecord struct {
	ID         string
	UserID     string
	RefreshJTI string
}

// SessionStore registra las sesiones abiertas por usuario. Una sesion sin registro esta
// cerrada y sus access tokens dejan de valer aunque no hayan vencido.
type SessionStore interface {
	Open(ctx context.Context, rec SessionRecord, ttl time.Duration) error
	Active(ctx context.Context, sessionID string) (bool, error)
	// Rotate cambia fromJTI por toJTI. Si fromJTI ya no es el vigente (refresh reusado)
	// la sesion entera se cierra y devuelve ErrSessionClosed.
	Rotate(ctx context.Context, sessionID, fromJTI, toJTI string, ttl time.Duration) error
	Close(ctx context.Context, userID, sessionID string) error
	// Count devuelve cuantas sesiones siguen abiertas para el usuario.
	Count(ctx context.Context, userID string) (int, error)
}

type memorySession struct {
	rec       SessionRecord
	expiresAt time.Time
}

type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	byUser   map[string]map[string]struct{}
}

func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		sessions: make(map[string]memorySession),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (s *memorySessionStore) Open(_ context.Context, rec SessionRecord, ttl time.Duration) error {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.UserID) == "" {
		return ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = memorySession{rec: rec, expiresAt: time.Now().UTC().Add(ttl)}
	if s.byUser[rec.UserID] == nil {
		s.byUser[rec.UserID] = make(map[string]struct{})
	}
	s.byUser[rec.UserID][rec.ID] = struct{}{}
	return nil
}

func (s *memorySessionStore) Active(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(sessionID)
	return ok, nil
}

func (s *memorySessionStore) Rotate(_ context.Context, sessionID, fromJTI, toJTI string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.lookup(sessionID)
	if !ok {
		return ErrSessionClosed
	}
	if sess.rec.RefreshJTI != fromJTI {
		s.drop(sess.rec.UserID, sessionID)
		return ErrSessionClosed
	}
	sess.rec.RefreshJTI = toJTI
	sess.expiresAt = time.Now().UTC().Add(ttl)
	s.sessions[sessionID] = sess
	return nil
}

func (s *memorySessionStore) Close(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop(userID, sessionID)
	return nil
}

func (s *memorySessionStore) Count(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id := range s.byUser[userID] {
		if _, ok := s.lookup(id); ok {
			n++
		}
	}
	return n, nil
}

// lookup purga la sesion si vencio. Requiere mu tomado.
func (s *memorySessionStore) lookup(sessionID string) (memorySession, bool) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return memorySession{}, false
	}
	if time.Now().UTC().After(sess.expiresAt) {
		s.drop(sess.rec.UserID, sessionID)
		return memorySession{}, false
	}
	return sess, true
}

func (s *memorySessionStore) drop(userID, sessionID string) {
	delete(s.sessions, sessionID)
	if ids := s.byUser[userID]; ids != nil {
		delete(ids, sessionID)
		if len(ids) == 0 {
			delete(s.byUser, userID)
		}
	}
}

// KEYS[1]=sesion KEYS[2]=indice del usuario; ARGV: user, jti, ttl ms, sid
const redisSessionOpenScript = `
redis.call("HSET", KEYS[1], "user", ARGV[1], "jti", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
redis.call("SADD", KEYS[2], ARGV[4])
redis.call("PEXPIRE", KEYS[2], ARGV[3])
return 1
`

// 1 rotado, 0 sesion inexistente, -1 refresh reusado (la sesion se borra)
const redisSessionRotateScript = `
local current = redis.call("HGET", KEYS[1], "jti")
if not current then
  return 0
end
if current ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  return -1
end
redis.call("HSET", KEYS[1], "jti", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`

const redisSessionCloseScript = `
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return 1
`

type redisSessionClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

type redisSessionStore struct {
	client     redisSessionClient
	prefix     string
	userPrefix string
}

// NewRedisSessionStore comparte las sesiones entre instancias; los access tokens de una
// sesion cerrada en otra instancia se rechazan aqui tambien.
func NewRedisSessionStore(client *redis.Client) SessionStore {
	if client == nil {
		return nil
	}
	return &redisSessionStore{
		client:     client,
		prefix:     "libertax:session:",
		userPrefix: "libertax:user_sessions:",
	}
}

func (s *redisSessionStore) Open(ctx context.Context, rec SessionRecord, ttl time.Duration) error {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.UserID) == "" {
		return ErrSessionClosed
	}
	ctx, cancel := redisCallContext(ctx)
	defer cancel()
	keys := []string{s.prefix + rec.ID, s.userPrefix + rec.UserID}
	return s.client.Eval(ctx, redisSessionOpenScript, keys, rec.UserID, rec.RefreshJTI, ttl.Milliseconds(), rec.ID).Err()
}

func (s *redisSessionStore) Active(ctx context.Context, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, nil
	}
	ctx, cancel := redisCallContext(ctx)
	defer cancel()
	n, err := s.client.Exists(ctx, s.prefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisSessionStore) Rotate(ctx context.Context, sessionID, fromJTI, toJTI string, ttl time.Duration) error {
	ctx, cancel := redisCallContext(ctx)
	defer cancel()
	res, err := s.client.Eval(ctx, redisSessionRotateScript, []string{s.prefix + sessionID}, fromJTI, toJTI, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if res != 1 {
		return ErrSessionClosed
	}
	return nil
}

func (s *redisSessionStore) Close(ctx context.Context, userID, sessionID string) error {
	ctx, cancel := redisCallContext(ctx)
	defer cancel()
	keys := []string{s.prefix + sessionID, s.userPrefix + userID}
	return s.client.Eval(ctx, redisSessionCloseScript, keys, sessionID).Err()
}

// Count limpia del indice las sesiones que vencieron por TTL.
func (s *redisSessionStore) Count(ctx context.Context, userID string) (int, error) {
	ctx, cancel := redisCallContext(ctx)
	defer cancel()
	ids, err := s.client.SMembers(ctx, s.userPrefix+userID).Result()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		exists, err := s.client.Exists(ctx, s.prefix+id).Result()
		if err != nil {
			return 0, err
		}
		if exists > 0 {
			n++
			continue
		}
		_ = s.client.SRem(ctx, s.userPrefix+userID, id).Err()
	}
	return n, nil
}

func redisCallContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 500*time.Millisecond)
}
