package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	dom "tasktracker/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	sessionTTL       = 24 * time.Hour

	fieldUserID = "user_id"
	fieldRole   = "role"
)

// ErrNoSession is returned for unknown, expired or malformed sessions.
var ErrNoSession = errors.New("no session")

// Store manages sessions in Redis. A session is an opaque token bound
// to the actor (user id and role) that logged in.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore returns a new session store.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = sessionTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// TTL returns how long a session lives.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create stores a new session for actor and returns its ID.
func (s *Store) Create(ctx context.Context, actor dom.Actor) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", err
	}
	key := sessionKeyPrefix + id
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, fieldUserID, actor.UserID, fieldRole, string(actor.Role))
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return id, nil
}

// Actor returns the actor bound to session id.
func (s *Store) Actor(ctx context.Context, id string) (dom.Actor, error) {
	if id == "" {
		return dom.Actor{}, ErrNoSession
	}
	vals, err := s.rdb.HGetAll(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		return dom.Actor{}, err
	}
	userID := vals[fieldUserID]
	role, err := dom.ParseRole(vals[fieldRole])
	if userID == "" || err != nil {
		return dom.Actor{}, ErrNoSession
	}
	return dom.Actor{UserID: userID, Role: role}, nil
}

// Delete removes a session by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, sessionKeyPrefix+id).Err()
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}
