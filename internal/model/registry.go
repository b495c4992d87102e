package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Registry is the versioned model store consulted before local artifacts.
type Registry interface {
	Fetch(ctx context.Context, name, stage string) (*Manifest, error)
}

// KVStore abstracts the key-value operations the registry needs (e.g., Redis).
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// RedisKV implements KVStore using Redis. A missing key is reported as ErrNotFound.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (s *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return val, err
}

func (s *RedisKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return s.client.Set(ctx, key, value, expiration).Err()
}

// RedisRegistry stores manifests as JSON under
//
//	model:{name}:version:{version} -> manifest
//	model:{name}:stage:{stage}     -> version
type RedisRegistry struct {
	kv KVStore
}

func NewRedisRegistry(kv KVStore) *RedisRegistry {
	return &RedisRegistry{kv: kv}
}

func versionKey(name, version string) string {
	return "model:" + name + ":version:" + version
}

func stageKey(name, stage string) string {
	return "model:" + name + ":stage:" + stage
}

// Fetch resolves stage to a version and loads that version's manifest.
func (r *RedisRegistry) Fetch(ctx context.Context, name, stage string) (*Manifest, error) {
	version, err := r.kv.Get(ctx, stageKey(name, stage))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stage %s/%s: %w", name, stage, err)
	}
	m, err := r.FetchVersion(ctx, name, version)
	if err != nil {
		return nil, err
	}
	m.Stage = stage
	return m, nil
}

// FetchVersion loads one exact version.
func (r *RedisRegistry) FetchVersion(ctx context.Context, name, version string) (*Manifest, error) {
	payload, err := r.kv.Get(ctx, versionKey(name, version))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s@%s: %w", name, version, err)
	}
	var m Manifest
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, fmt.Errorf("%w: %s@%s: %v", ErrMalformedArtifact, name, version, err)
	}
	if m.Name != name || m.Version != version {
		return nil, fmt.Errorf("%w: key %s@%s holds %s@%s", ErrMalformedArtifact, name, version, m.Name, m.Version)
	}
	return &m, nil
}

// Publish stores a manifest under its version key. It does not move any stage.
func (r *RedisRegistry) Publish(ctx context.Context, m *Manifest) error {
	if m.Name == "" || m.Version == "" {
		return fmt.Errorf("%w: name and version are required", ErrMalformedArtifact)
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return r.kv.Set(ctx, versionKey(m.Name, m.Version), payload, 0)
}

// Promote points stage at an already published version.
func (r *RedisRegistry) Promote(ctx context.Context, name, version, stage string) error {
	if _, err := r.FetchVersion(ctx, name, version); err != nil {
		return fmt.Errorf("cannot promote: %w", err)
	}
	return r.kv.Set(ctx, stageKey(name, stage), version, 0)
}
