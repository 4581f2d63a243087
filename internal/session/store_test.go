package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements redisClient with an in-memory map. TTLs are tracked
// as values, not wall-clock timers.
type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if _, ok := f.values[key]; !ok {
		return redis.NewBoolResult(false, nil)
	}
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) TTL(ctx context.Context, key string) *redis.DurationCmd {
	if _, ok := f.values[key]; !ok {
		return redis.NewDurationResult(-2, nil)
	}
	return redis.NewDurationResult(f.ttls[key], nil)
}

func newTestStore() (*Store, *fakeRedis) {
	f := newFakeRedis()
	return newStore(f, 60*time.Second, "/lsp-files"), f
}

func TestCreateAllocatesWorkspaceRoot(t *testing.T) {
	s, f := newTestStore()
	ctx := context.Background()

	sess, err := s.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if sess.OwnerID != "user-1" {
		t.Errorf("expected owner user-1, got %s", sess.OwnerID)
	}
	if !strings.HasPrefix(sess.WorkspaceRoot, "/lsp-files/") {
		t.Errorf("unexpected workspace root %s", sess.WorkspaceRoot)
	}
	if f.ttls["session:"+sess.ID] != 60*time.Second {
		t.Errorf("expected default TTL, got %v", f.ttls["session:"+sess.ID])
	}
}

func TestGetMissingSession(t *testing.T) {
	s, _ := newTestStore()

	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRenewWrongOwnerDoesNotExtendTTL(t *testing.T) {
	s, f := newTestStore()
	ctx := context.Background()

	sess, err := s.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	key := "session:" + sess.ID
	f.ttls[key] = 5 * time.Second

	if err := s.Renew(ctx, sess.ID, "user-2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if f.ttls[key] != 5*time.Second {
		t.Errorf("TTL must not change on ownership failure, got %v", f.ttls[key])
	}
}

func TestRenewResetsTTL(t *testing.T) {
	s, f := newTestStore()
	ctx := context.Background()

	sess, _ := s.Create(ctx, "user-1")
	key := "session:" + sess.ID
	f.ttls[key] = 5 * time.Second

	if err := s.Renew(ctx, sess.ID, "user-1"); err != nil {
		t.Fatalf("Renew failed: %v", err)
	}
	if f.ttls[key] != 60*time.Second {
		t.Errorf("expected TTL reset to 60s, got %v", f.ttls[key])
	}
}

func TestBindContainerPreservesTTL(t *testing.T) {
	s, f := newTestStore()
	ctx := context.Background()

	sess, _ := s.Create(ctx, "user-1")
	key := "session:" + sess.ID
	f.ttls[key] = 42 * time.Second

	if err := s.BindContainer(ctx, sess.ID, "container-1"); err != nil {
		t.Fatalf("BindContainer failed: %v", err)
	}

	got, err := s.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ContainerID != "container-1" {
		t.Errorf("expected container-1, got %s", got.ContainerID)
	}
	if f.ttls[key] != 42*time.Second {
		t.Errorf("expected preserved TTL 42s, got %v", f.ttls[key])
	}
}

func TestTouchSetsActivityAndExtendsTTL(t *testing.T) {
	s, f := newTestStore()
	ctx := context.Background()

	sess, _ := s.Create(ctx, "user-1")
	key := "session:" + sess.ID
	f.ttls[key] = 5 * time.Second

	if err := s.Touch(ctx, sess.ID); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	got, _ := s.Get(ctx, sess.ID)
	if got.LastActivityAt == nil {
		t.Error("expected lastActivityAt to be set")
	}
	if f.ttls[key] != 60*time.Second {
		t.Errorf("expected TTL extended to 60s, got %v", f.ttls[key])
	}
}

func TestRecordUploadIdempotent(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	sess, _ := s.Create(ctx, "user-1")

	if err := s.RecordUpload(ctx, sess.ID, "user-1", "main.dart"); err != nil {
		t.Fatalf("RecordUpload failed: %v", err)
	}
	if err := s.RecordUpload(ctx, sess.ID, "user-1", "main.dart"); err != nil {
		t.Fatalf("repeat RecordUpload failed: %v", err)
	}

	got, _ := s.Get(ctx, sess.ID)
	if len(got.UploadedFiles) != 1 {
		t.Errorf("expected 1 file, got %v", got.UploadedFiles)
	}
}

func TestRecordUploadExtendsTTL(t *testing.T) {
	s, f := newTestStore()
	ctx := context.Background()

	sess, _ := s.Create(ctx, "user-1")
	key := "session:" + sess.ID
	f.ttls[key] = 5 * time.Second

	if err := s.RecordUpload(ctx, sess.ID, "user-1", "main.dart"); err != nil {
		t.Fatalf("RecordUpload failed: %v", err)
	}
	if f.ttls[key] != 60*time.Second {
		t.Errorf("expected TTL extended to 60s, got %v", f.ttls[key])
	}

	got, _ := s.Get(ctx, sess.ID)
	if got.LastActivityAt == nil {
		t.Error("expected lastActivityAt to be set")
	}

	// A repeat upload of the same name is still activity.
	f.ttls[key] = 5 * time.Second
	if err := s.RecordUpload(ctx, sess.ID, "user-1", "main.dart"); err != nil {
		t.Fatalf("repeat RecordUpload failed: %v", err)
	}
	if f.ttls[key] != 60*time.Second {
		t.Errorf("expected repeat upload to extend TTL to 60s, got %v", f.ttls[key])
	}
}

func TestRecordUploadWrongOwner(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	sess, _ := s.Create(ctx, "user-1")

	if err := s.RecordUpload(ctx, sess.ID, "user-2", "main.dart"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}
