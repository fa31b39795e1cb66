package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// TokenKey is the fixed name the raw credential is persisted under.
const TokenKey = "myToken"

// ErrNoToken is returned by TokenStore.Load when nothing is persisted.
var ErrNoToken = errors.New("session: no persisted token")

// TokenStore is durable storage for the raw credential.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// MemoryTokenStore keeps tokens in process memory, keyed by name.
type MemoryTokenStore struct {
	Key string

	mu      sync.Mutex
	entries map[string]string
}

// NewMemoryTokenStore creates an empty store using TokenKey.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{Key: TokenKey, entries: map[string]string{}}
}

func (m *MemoryTokenStore) Load(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.entries[m.Key]
	if !ok {
		return "", ErrNoToken
	}
	return token, nil
}

func (m *MemoryTokenStore) Save(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.Key] = token
	return nil
}

func (m *MemoryTokenStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, m.Key)
	return nil
}

// FileTokenStore persists the token as a file named Key inside Dir.
type FileTokenStore struct {
	Dir string
	Key string
}

// NewFileTokenStore stores the token under dir/TokenKey.
func NewFileTokenStore(dir string) *FileTokenStore {
	return &FileTokenStore{Dir: dir, Key: TokenKey}
}

func (f *FileTokenStore) path() string { return filepath.Join(f.Dir, f.Key) }

func (f *FileTokenStore) Load(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.path())
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (f *FileTokenStore) Save(ctx context.Context, token string) error {
	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp := f.path() + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	if err := os.Rename(tmp, f.path()); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func (f *FileTokenStore) Clear(ctx context.Context) error {
	if err := os.Remove(f.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// RedisTokenStore persists the token under a Redis key.
type RedisTokenStore struct {
	client *redis.Client
	key    string
}

// NewRedisTokenStore stores the token under key, defaulting to TokenKey.
func NewRedisTokenStore(client *redis.Client, key string) *RedisTokenStore {
	if key == "" {
		key = TokenKey
	}
	return &RedisTokenStore{client: client, key: key}
}

func (r *RedisTokenStore) Load(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return token, nil
}

func (r *RedisTokenStore) Save(ctx context.Context, token string) error {
	return r.client.Set(ctx, r.key, token, 0).Err()
}

func (r *RedisTokenStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
