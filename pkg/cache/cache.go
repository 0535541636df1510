package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the cache contract used for computed score panels.
// Values are JSON-encoded; Get decodes into dest.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	// DeleteByPattern removes keys matching a glob such as "scores:XR:*".
	DeleteByPattern(ctx context.Context, pattern string) error
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

// Key joins parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// HashParams returns a short stable digest of any JSON-encodable value.
func HashParams(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash params: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:12]), nil
}

func encode(value interface{}) ([]byte, error) {
	if s, ok := value.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(value)
}

func decode(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = string(data)
		return nil
	case *json.RawMessage:
		*d = append((*d)[:0], data...)
		return nil
	}
	return json.Unmarshal(data, dest)
}
