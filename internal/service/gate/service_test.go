package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"nova_chat_server/internal/model"
	"nova_chat_server/pkg/errorx"
	"nova_chat_server/pkg/util/jwt"
)

func init() {
	jwt.Init("unit-test-secret-key-of-enough-len", 30, 168)
}

// memCache 内存缓存假实现，down 模拟缓存整体不可用
type memCache struct {
	mu   sync.Mutex
	data map[string]string
	down bool
	gets int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]string)}
}

func (c *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errorx.New(errorx.CodeCacheError, "cache down")
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.down {
		return "", errorx.New(errorx.CodeCacheError, "cache down")
	}
	return c.data[key], nil
}

func (c *memCache) GetOrError(ctx context.Context, key string) (string, error) {
	v, err := c.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", errorx.New(errorx.CodeNotFound, "record not found")
	}
	return v, nil
}

func (c *memCache) MGet(_ context.Context, keys ...string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	values := make([]string, len(keys))
	for i, key := range keys {
		values[i] = c.data[key]
	}
	return values, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) SubmitTask(action func()) { action() }

func (c *memCache) value(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key]
}

// memSessionRepo 会话表假实现，lookups 统计回源次数
type memSessionRepo struct {
	mu       sync.Mutex
	byAccess map[string]*model.UserSession
	lookups  int
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{byAccess: make(map[string]*model.UserSession)}
}

func (r *memSessionRepo) Create(session *model.UserSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAccess[session.AccessHash] = session
	return nil
}

func (r *memSessionRepo) FindActiveByAccessHash(hash string, now time.Time) (*model.UserSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	session, ok := r.byAccess[hash]
	if !ok || !session.ExpiresAt.After(now) {
		return nil, errorx.New(errorx.CodeNotFound, "record not found")
	}
	return session, nil
}

func (r *memSessionRepo) FindActiveByRefreshHash(string, time.Time) (*model.UserSession, error) {
	return nil, errorx.New(errorx.CodeNotFound, "record not found")
}
func (r *memSessionRepo) FindByUser(string) ([]model.UserSession, error) { return nil, nil }
func (r *memSessionRepo) FindByUserAndDevice(string, string) ([]model.UserSession, error) {
	return nil, nil
}
func (r *memSessionRepo) DeleteByUserAndDevice(string, string) error { return nil }
func (r *memSessionRepo) DeleteByUser(string) error                  { return nil }
func (r *memSessionRepo) TouchLastUsed(string, time.Time) error      { return nil }

func (r *memSessionRepo) delete(hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byAccess, hash)
}

func (r *memSessionRepo) lookupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups
}

// newGateEnv 组装闸门和一个已登录会话
func newGateEnv(t *testing.T) (*Service, *memCache, *memSessionRepo, string) {
	t.Helper()
	cache := newMemCache()
	sessions := newMemSessionRepo()
	svc := NewService(sessions, cache, 5)

	token, err := jwt.GenerateAccessToken("U1", "D1")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	_ = sessions.Create(&model.UserSession{
		UserUuid:   "U1",
		DeviceUuid: "D1",
		AccessHash: HashCredential(token),
		ExpiresAt:  time.Now().Add(30 * time.Minute),
	})
	return svc, cache, sessions, token
}

func TestValidateMalformedTokenTouchesNothing(t *testing.T) {
	svc, cache, sessions, _ := newGateEnv(t)

	_, _, err := svc.Validate(context.Background(), "not-a-jwt")
	if errorx.GetCode(err) != errorx.CodeUnauthorized {
		t.Fatalf("malformed credential should be unauthorized, got %v", err)
	}
	if cache.gets != 0 || sessions.lookupCount() != 0 {
		t.Fatal("malformed credential must be rejected before cache and store")
	}
}

func TestValidateMissFallsBackToStoreThenCaches(t *testing.T) {
	svc, cache, sessions, token := newGateEnv(t)

	userID, deviceID, err := svc.Validate(context.Background(), token)
	if err != nil || userID != "U1" || deviceID != "D1" {
		t.Fatalf("expected accept with U1/D1, got %q/%q err=%v", userID, deviceID, err)
	}
	if sessions.lookupCount() != 1 {
		t.Fatalf("cache miss should hit the store once, got %d", sessions.lookupCount())
	}
	if cache.value("auth_token:"+HashCredential(token)) != "valid" {
		t.Fatal("verdict should be cached as valid")
	}

	// 第二次走缓存快路径，不再回源
	if _, _, err := svc.Validate(context.Background(), token); err != nil {
		t.Fatalf("warm-cache validate failed: %v", err)
	}
	if sessions.lookupCount() != 1 {
		t.Fatalf("warm cache must not hit the store again, got %d", sessions.lookupCount())
	}
}

func TestValidateCachedInvalidSkipsStore(t *testing.T) {
	svc, cache, sessions, token := newGateEnv(t)
	_ = cache.Set(context.Background(), "auth_token:"+HashCredential(token), "invalid", time.Minute)

	_, _, err := svc.Validate(context.Background(), token)
	if errorx.GetCode(err) != errorx.CodeUnauthorized {
		t.Fatalf("cached-invalid credential should be rejected, got %v", err)
	}
	if sessions.lookupCount() != 0 {
		t.Fatal("cached-invalid verdict must not consult the store")
	}
}

func TestValidateCacheDownDegradesToStore(t *testing.T) {
	svc, cache, sessions, token := newGateEnv(t)
	cache.down = true

	userID, _, err := svc.Validate(context.Background(), token)
	if err != nil || userID != "U1" {
		t.Fatalf("store fallback should accept, got %v", err)
	}
	if sessions.lookupCount() != 1 {
		t.Fatal("cache outage should fall back to the store")
	}

	// 缓存故障期间每次都回源，但决策不受影响
	if _, _, err := svc.Validate(context.Background(), token); err != nil {
		t.Fatalf("second validate during outage failed: %v", err)
	}
	if sessions.lookupCount() != 2 {
		t.Fatal("every validate during the outage goes to the store")
	}
}

func TestValidateRevokedSessionGetsNegativeCache(t *testing.T) {
	svc, cache, sessions, token := newGateEnv(t)
	sessions.delete(HashCredential(token))

	_, _, err := svc.Validate(context.Background(), token)
	if errorx.GetCode(err) != errorx.CodeUnauthorized {
		t.Fatalf("revoked session should be rejected, got %v", err)
	}
	if cache.value("auth_token:"+HashCredential(token)) != "invalid" {
		t.Fatal("revoked verdict should be negatively cached")
	}
	// 后续请求不再打到数据库
	before := sessions.lookupCount()
	_, _, _ = svc.Validate(context.Background(), token)
	if sessions.lookupCount() != before {
		t.Fatal("negative cache should absorb repeated attempts")
	}
}

func TestRevokeDefeatsWarmCache(t *testing.T) {
	svc, _, sessions, token := newGateEnv(t)

	// 预热：凭证在缓存中为 valid
	if _, _, err := svc.Validate(context.Background(), token); err != nil {
		t.Fatalf("warm-up validate failed: %v", err)
	}

	hash := HashCredential(token)
	sessions.delete(hash)
	svc.Revoke(context.Background(), hash)

	if _, _, err := svc.Validate(context.Background(), token); errorx.GetCode(err) != errorx.CodeUnauthorized {
		t.Fatalf("revoked credential must fail immediately, got %v", err)
	}
}

func TestValidateClaimsMismatchRejected(t *testing.T) {
	svc, _, sessions, token := newGateEnv(t)

	// 会话行被换绑到别的用户（不应该发生，但闸门必须兜底）
	sessions.mu.Lock()
	sessions.byAccess[HashCredential(token)].UserUuid = "U999"
	sessions.mu.Unlock()

	if _, _, err := svc.Validate(context.Background(), token); errorx.GetCode(err) != errorx.CodeUnauthorized {
		t.Fatalf("claims/session mismatch must be rejected, got %v", err)
	}
}

func TestHashCredentialStableAndFullLength(t *testing.T) {
	h1 := HashCredential("credential-a")
	h2 := HashCredential("credential-a")
	h3 := HashCredential("credential-b")
	if h1 != h2 {
		t.Fatal("hash must be deterministic")
	}
	if h1 == h3 {
		t.Fatal("different credentials must hash differently")
	}
	if len(h1) != 64 {
		t.Fatalf("expected full sha256 hex (64 chars), got %d", len(h1))
	}
}
