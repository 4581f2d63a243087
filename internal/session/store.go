package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// redisClient is the subset of *redis.Client the store uses.
// Narrowing the dependency keeps the store testable without a live server.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// Store persists session records in Redis with a TTL. Mutations are
// read-modify-write; concurrent writers race and last write wins, which is
// acceptable because session data is advisory routing state.
type Store struct {
	client        redisClient
	ttl           time.Duration
	workspaceBase string
}

// NewStore creates a session store. workspaceBase is the container-side
// directory under which each session's workspace root is allocated.
func NewStore(client *redis.Client, ttl time.Duration, workspaceBase string) *Store {
	return newStore(client, ttl, workspaceBase)
}

func newStore(client redisClient, ttl time.Duration, workspaceBase string) *Store {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Store{client: client, ttl: ttl, workspaceBase: workspaceBase}
}

// Create allocates a new session for the owner with a fresh workspace root
// and the default TTL.
func (s *Store) Create(ctx context.Context, ownerID string) (*Session, error) {
	id := ulid.Make().String()
	sess := &Session{
		ID:            id,
		OwnerID:       ownerID,
		WorkspaceRoot: path.Join(s.workspaceBase, id),
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.write(ctx, sess, s.ttl); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session, or ErrNotFound if it does not exist or expired.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session get: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	sess.ID = sessionID
	return &sess, nil
}

// Renew resets the session's TTL to the default. It fails with ErrForbidden
// if the caller is not the owner; the TTL is not extended in that case.
func (s *Store) Renew(ctx context.Context, sessionID, ownerID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.OwnerID != ownerID {
		return ErrForbidden
	}

	if err := s.client.Expire(ctx, keyPrefix+sessionID, s.ttl).Err(); err != nil {
		return fmt.Errorf("session renew: %w", err)
	}
	return nil
}

// BindContainer lazily attaches a container ID once the interactive sandbox
// starts. The remaining TTL is preserved.
func (s *Store) BindContainer(ctx context.Context, sessionID, containerID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.ContainerID = containerID

	return s.writeKeepTTL(ctx, sess)
}

// Touch records activity and extends the TTL to the default.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	sess.LastActivityAt = &now

	return s.write(ctx, sess, s.ttl)
}

// RecordUpload appends a file name to the session's uploaded set. Repeat
// names are idempotent. An upload is activity, so the TTL is extended to the
// default either way.
func (s *Store) RecordUpload(ctx context.Context, sessionID, ownerID, fileName string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.OwnerID != ownerID {
		return ErrForbidden
	}

	if !sess.HasFile(fileName) {
		sess.UploadedFiles = append(sess.UploadedFiles, fileName)
	}
	now := time.Now().UTC()
	sess.LastActivityAt = &now

	return s.write(ctx, sess, s.ttl)
}

func (s *Store) write(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+sess.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("session write: %w", err)
	}
	return nil
}

// writeKeepTTL rewrites the record with whatever TTL remains. If the record
// expired between read and write, the mutation is dropped.
func (s *Store) writeKeepTTL(ctx context.Context, sess *Session) error {
	ttl, err := s.client.TTL(ctx, keyPrefix+sess.ID).Result()
	if err != nil {
		return fmt.Errorf("session ttl: %w", err)
	}
	if ttl <= 0 {
		return ErrNotFound
	}
	return s.write(ctx, sess, ttl)
}
