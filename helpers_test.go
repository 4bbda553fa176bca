package authcore

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/store/memory"
)

const testPassword = "Pwd123!"

type testEnv struct {
	engine   *Engine
	accounts *memory.Store
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	mail     chan Message
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.OTP.Pepper = []byte("test-pepper-0123456789")
	cfg.RateLimit.OTPIssue = RateLimitRule{Limit: 100, Window: time.Minute}
	cfg.Store.RetryBackoff = time.Millisecond
	return cfg
}

func newMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func redisClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, memory.New(), nil, mutate)
}

// newTestEnvWithStore builds an engine over store, or over mem when store is
// nil. Seeding always goes to mem.
func newTestEnvWithStore(t *testing.T, mem *memory.Store, store account.Store, mutate func(*Config)) *testEnv {
	t.Helper()
	mr := newMiniredis(t)
	rdb := redisClient(t, mr)

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	if store == nil {
		store = mem
	}

	mail := make(chan Message, 32)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithMetricsEnabled(true).
		WithNotifier(NotifierFunc(func(_ context.Context, msg Message) error {
			mail <- msg
			return nil
		})).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, accounts: mem, mr: mr, rdb: rdb, mail: mail}
}

// nextMessage waits for the background notifier.
func (env *testEnv) nextMessage(t *testing.T) Message {
	t.Helper()
	select {
	case msg := <-env.mail:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
		return Message{}
	}
}

// seed stores an account with testPassword directly, bypassing registration.
func (env *testEnv) seed(t *testing.T, email string, role permission.Role, status account.Status) account.Account {
	t.Helper()
	hash, err := env.engine.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	acct, err := env.accounts.Create(context.Background(), account.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       status,
		TokenVersion: 1,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", email, err)
	}
	return acct
}

// login seeds an active account and returns its principal and tokens.
func (env *testEnv) login(t *testing.T, email string, role permission.Role) (*Principal, TokenPair) {
	t.Helper()
	env.seed(t, email, role, account.StatusActive)
	pair, err := env.engine.Login(context.Background(), email, testPassword, "device")
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	p, err := env.engine.VerifyAccessToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("verify %s: %v", email, err)
	}
	return p, pair
}

// flakyStore fails reads with account.ErrUnavailable while failReads > 0.
type flakyStore struct {
	*memory.Store
	failReads atomic.Int32
	reads     atomic.Int32
}

func (f *flakyStore) GetByID(ctx context.Context, id string) (account.Account, error) {
	f.reads.Add(1)
	if f.failReads.Add(-1) >= 0 {
		return account.Account{}, fmt.Errorf("%w: connection refused", account.ErrUnavailable)
	}
	return f.Store.GetByID(ctx, id)
}

func (f *flakyStore) GetByEmail(ctx context.Context, email string) (account.Account, error) {
	f.reads.Add(1)
	if f.failReads.Add(-1) >= 0 {
		return account.Account{}, account.ErrUnavailable
	}
	return f.Store.GetByEmail(ctx, email)
}
