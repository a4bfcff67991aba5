package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/edgeview/internal/logger"
)

// KeyPrefix namespaces every key the registry writes.
const KeyPrefix = "edgeview:sessions:"

const defaultTTL = 30 * time.Second

var registerScript = redis.NewScript(`
	local key = KEYS[1]
	local active_key = KEYS[2]
	local data = ARGV[1]
	local ttl = tonumber(ARGV[2])
	local id = ARGV[3]
	local ok = redis.call('SET', key, data, 'PX', ttl, 'NX')
	if not ok then
		return 0
	end
	redis.call('SADD', active_key, id)
	return 1
`)

var listScript = redis.NewScript(`
	local active_key = KEYS[1]
	local prefix = ARGV[1]
	local active = redis.call('SMEMBERS', active_key)
	local result = {}
	local stale = {}

	for i, id in ipairs(active) do
		local data = redis.call('GET', prefix .. id)
		if data then
			table.insert(result, data)
		else
			table.insert(stale, id)
		end
	end

	for i, id in ipairs(stale) do
		redis.call('SREM', active_key, id)
	end

	return result
`)

var heartbeatScript = redis.NewScript(`
	local key = KEYS[1]
	local ttl = tonumber(ARGV[1])
	local now = ARGV[2]
	local data = redis.call('GET', key)
	if not data then
		return redis.error_reply("session not found")
	end
	local s = cjson.decode(data)
	s.last_heartbeat = now
	redis.call('SET', key, cjson.encode(s), 'PX', ttl)
	return "OK"
`)

var statsScript = redis.NewScript(`
	local key = KEYS[1]
	local ttl = tonumber(ARGV[1])
	local stats = cjson.decode(ARGV[2])
	local now = ARGV[3]
	local data = redis.call('GET', key)
	if not data then
		return redis.error_reply("session not found")
	end
	local s = cjson.decode(data)
	s.frames_processed = stats.frames_processed
	s.frames_failed = stats.frames_failed
	s.frames_dropped = stats.frames_dropped
	s.bytes_in = stats.bytes_in
	s.bytes_out = stats.bytes_out
	s.last_width = stats.last_width
	s.last_height = stats.last_height
	s.last_heartbeat = now
	redis.call('SET', key, cjson.encode(s), 'PX', ttl)
	return "OK"
`)

// RedisRegistry implements Registry on Redis. Each session is a JSON value
// under KeyPrefix+id with a TTL refreshed by heartbeats; KeyPrefix+"active"
// is the set of ids, pruned lazily by List.
type RedisRegistry struct {
	client redis.UniversalClient
	logger logger.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisRegistry creates a Redis-backed registry.
func NewRedisRegistry(client redis.UniversalClient, log logger.Logger, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &RedisRegistry{
		client: client,
		logger: log,
		prefix: KeyPrefix,
		ttl:    ttl,
	}
}

func (r *RedisRegistry) activeKey() string { return r.prefix + "active" }

// Register stores a new session. Registering a live id again fails with
// ErrSessionExists.
func (r *RedisRegistry) Register(ctx context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.LastHeartbeat = time.Now()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	result, err := registerScript.Run(ctx, r.client,
		[]string{r.prefix + s.ID, r.activeKey()},
		data, r.ttl.Milliseconds(), s.ID).Int()
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	if result == 0 {
		return fmt.Errorf("%w: %s", ErrSessionExists, s.ID)
	}

	r.logger.WithFields(map[string]interface{}{
		"session_id":  s.ID,
		"remote_addr": s.RemoteAddr,
		"compression": s.Compression,
	}).Info("Session registered")
	return nil
}

// Unregister removes a session and its active-set entry.
func (r *RedisRegistry) Unregister(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, r.prefix+id).Result()
	if err != nil {
		return fmt.Errorf("failed to unregister session: %w", err)
	}

	if err := r.client.SRem(ctx, r.activeKey(), id).Err(); err != nil {
		r.logger.WithError(err).Warnf("Failed to remove session %s from active set", id)
	}

	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	r.logger.WithField("session_id", id).Info("Session unregistered")
	return nil
}

// Get retrieves a session by ID.
func (r *RedisRegistry) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// List returns every live session, oldest first. Ids whose key has expired
// are dropped from the active set in the same script.
func (r *RedisRegistry) List(ctx context.Context) ([]*Session, error) {
	res, err := listScript.Run(ctx, r.client, []string{r.activeKey()}, r.prefix).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T from list script", res)
	}

	sessions := make([]*Session, 0, len(values))
	for _, val := range values {
		data, ok := val.(string)
		if !ok {
			r.logger.Warn("Invalid data type in session list")
			continue
		}

		var s Session
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			r.logger.WithError(err).Warn("Failed to unmarshal session")
			continue
		}
		sessions = append(sessions, &s)
	}

	sortSessions(sessions)
	return sessions, nil
}

// UpdateHeartbeat refreshes the heartbeat timestamp and the key TTL.
func (r *RedisRegistry) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().Format(time.RFC3339Nano)
	err := heartbeatScript.Run(ctx, r.client, []string{r.prefix + id}, r.ttl.Milliseconds(), now).Err()
	return r.scriptError(id, "heartbeat", err)
}

// UpdateStats replaces the session counters atomically.
func (r *RedisRegistry) UpdateStats(ctx context.Context, id string, stats Stats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	now := time.Now().Format(time.RFC3339Nano)
	err = statsScript.Run(ctx, r.client, []string{r.prefix + id}, r.ttl.Milliseconds(), string(statsJSON), now).Err()
	return r.scriptError(id, "stats", err)
}

func (r *RedisRegistry) scriptError(id, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil), strings.Contains(err.Error(), "session not found"):
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	default:
		return fmt.Errorf("failed to update %s: %w", op, err)
	}
}

// Close closes the Redis client connection.
func (r *RedisRegistry) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
