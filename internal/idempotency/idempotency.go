// Package idempotency guards non-repeatable requests with a client supplied
// key. The first request claims the key; later requests with the same key
// get the stored response replayed.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
)

// ErrInFlight is returned when another request holding the same key has not
// finished yet.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

// ErrKeyReused is returned when a key is replayed with a different request body.
var ErrKeyReused = errors.New("idempotency key was used with a different request")

// Record is a stored response.
type Record struct {
	Status int
	Body   []byte
	// Fingerprint identifies the request that produced the response.
	Fingerprint string
}

// Matches reports whether the record was produced by a request with the
// given fingerprint. Records stored without one match anything.
func (r *Record) Matches(fingerprint string) bool {
	return r.Fingerprint == "" || r.Fingerprint == fingerprint
}

// Fingerprint returns the hex SHA-256 of a request body.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Store claims keys and keeps finished responses.
type Store interface {
	// Begin claims key. It returns (nil, nil) when the caller now owns the
	// key, a Record when a finished response exists, or ErrInFlight.
	Begin(ctx context.Context, key string) (*Record, error)
	// Complete stores the response for a claimed key.
	Complete(ctx context.Context, key string, rec Record) error
	// Release drops a claim so the request can be retried.
	Release(ctx context.Context, key string) error
}

const pending = "pending"

var _ Store = (*RedisStore)(nil)

// RedisStore keeps idempotency records in Redis.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
	lockTTL   time.Duration
	ttl       time.Duration
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// Namespace prefixes every key, e.g. the service name.
	Namespace string
	// LockTTL bounds how long an unfinished claim blocks retries.
	LockTTL time.Duration
	// TTL is how long finished responses are replayed.
	TTL time.Duration
}

// NewRedisStore creates a store on top of an existing client.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	if cfg.Namespace == "" {
		cfg.Namespace = "orders"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &RedisStore{
		client:    client,
		namespace: cfg.Namespace,
		lockTTL:   cfg.LockTTL,
		ttl:       cfg.TTL,
	}
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:idempotency:%s", s.namespace, key)
}

// Begin implements Store.
func (s *RedisStore) Begin(ctx context.Context, key string) (*Record, error) {
	k := s.key(key)
	claimed, err := s.client.SetNX(ctx, k, pending, s.lockTTL).Result()
	if err != nil {
		return nil, errors.Wrap(err, "claim key")
	}
	if claimed {
		return nil, nil
	}

	val, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; claim again.
		return s.Begin(ctx, key)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get record")
	}
	if val == pending {
		return nil, ErrInFlight
	}

	rec, err := decodeRecord([]byte(val))
	if err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	return rec, nil
}

// Complete implements Store.
func (s *RedisStore) Complete(ctx context.Context, key string, rec Record) error {
	if err := s.client.Set(ctx, s.key(key), encodeRecord(rec), s.ttl).Err(); err != nil {
		return errors.Wrap(err, "store record")
	}
	return nil
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrap(err, "release key")
	}
	return nil
}

// ClaimTTL returns how long an unfinished claim is held.
func (s *RedisStore) ClaimTTL() time.Duration {
	return s.lockTTL
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func encodeRecord(rec Record) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Int(rec.Status)
	e.FieldStart("body")
	e.Base64(rec.Body)
	if rec.Fingerprint != "" {
		e.FieldStart("fingerprint")
		e.Str(rec.Fingerprint)
	}
	e.ObjEnd()
	return e.Bytes()
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Int()
			rec.Status = v
			return err
		case "body":
			v, err := d.Base64()
			rec.Body = v
			return err
		case "fingerprint":
			v, err := d.Str()
			rec.Fingerprint = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if rec.Status == 0 {
		return nil, errors.New("missing status")
	}
	return &rec, nil
}
