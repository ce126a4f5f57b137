package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/choreo/pkg/domain"
)

const (
	defaultPrefix = "choreo:"
	slotField     = "slot:"

	fieldRunID     = "runId"
	fieldStateID   = "stateId"
	fieldEnteredAt = "enteredAt"
	fieldExitedAt  = "exitedAt"
)

// appendScript claims the run's open pointer (for open visits) and writes the
// run state hash in one step.
var appendScript = backend.NewScript(`
if ARGV[2] == "1" then
	if not redis.call("SET", KEYS[1], ARGV[1], "NX") then
		return 0
	end
end
redis.call("HSET", KEYS[2], "runId", ARGV[3], "stateId", ARGV[4], "enteredAt", ARGV[5])
if ARGV[6] ~= "" then
	redis.call("HSET", KEYS[2], "exitedAt", ARGV[6])
end
for i = 8, #ARGV, 2 do
	redis.call("HSET", KEYS[2], ARGV[i], ARGV[i + 1])
end
redis.call("RPUSH", KEYS[3], ARGV[1])
local ttl = tonumber(ARGV[7])
if ttl > 0 then
	for _, key in ipairs(KEYS) do
		redis.call("PEXPIRE", key, ttl)
	end
end
return 1
`)

// closeScript sets exitedAt and releases the open pointer.
// Returns -1 when the visit does not exist, -2 when it is already closed.
var closeScript = backend.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if redis.call("HEXISTS", KEYS[1], "exitedAt") == 1 then
	return -2
end
redis.call("HSET", KEYS[1], "exitedAt", ARGV[1])
local runId = redis.call("HGET", KEYS[1], "runId")
local openKey = ARGV[2] .. runId
if redis.call("GET", openKey) == ARGV[3] then
	redis.call("DEL", openKey)
end
return 1
`)

// putSlotScript writes a single slot field of an open visit.
var putSlotScript = backend.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if redis.call("HEXISTS", KEYS[1], "exitedAt") == 1 then
	return -2
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// Store implements ports.Repository using Redis.
//
// Run states live in one hash each, with every slot in its own field, so
// concurrent writers to different slots never overwrite each other.
type Store struct {
	client *backend.Client
	ttl    time.Duration
	prefix string
}

// Option configures the Redis Store.
type Option func(*Store)

// WithTTL sets the expiration time for every key the store writes.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets a custom key prefix (default: "choreo:").
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store connected to addr.
func New(addr, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client exposes the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) templateKey(id string) string { return s.prefix + "template:" + id }
func (s *Store) runKey(id string) string      { return s.prefix + "run:" + id }
func (s *Store) runIndexKey() string          { return s.prefix + "runs" }
func (s *Store) stateKey(id string) string    { return s.prefix + "runstate:" + id }
func (s *Store) openKeyPrefix() string        { return s.prefix + "open:" }
func (s *Store) visitsKey(runID string) string {
	return s.prefix + "runstates:" + runID
}

// SaveTemplate stores the canonical JSON of t.
func (s *Store) SaveTemplate(ctx context.Context, t *domain.Template) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}
	if err := s.client.Set(ctx, s.templateKey(t.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis error saving template: %w", err)
	}
	return nil
}

// LoadTemplate retrieves a template.
func (s *Store) LoadTemplate(ctx context.Context, id string) (*domain.Template, error) {
	data, err := s.client.Get(ctx, s.templateKey(id)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis error loading template: %w", err)
	}
	var t domain.Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", id, err)
	}
	return &t, nil
}

// SaveRun persists the run and indexes it for ListRuns.
func (s *Store) SaveRun(ctx context.Context, run *domain.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.runKey(run.ID), data, s.ttl)
	// Score is the expiry time so ListRuns can drop expired entries lazily.
	score := float64(0)
	if s.ttl > 0 {
		score = float64(time.Now().Add(s.ttl).Unix())
	}
	pipe.ZAdd(ctx, s.runIndexKey(), backend.Z{Score: score, Member: run.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis error saving run: %w", err)
	}
	return nil
}

// LoadRun retrieves a run.
func (s *Store) LoadRun(ctx context.Context, id string) (*domain.Run, error) {
	data, err := s.client.Get(ctx, s.runKey(id)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis error loading run: %w", err)
	}
	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the IDs of stored runs.
func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	if s.ttl > 0 {
		// Entries scored 0 never expire.
		max := strconv.FormatInt(time.Now().Unix(), 10)
		if err := s.client.ZRemRangeByScore(ctx, s.runIndexKey(), "1", max).Err(); err != nil {
			return nil, fmt.Errorf("redis error pruning runs: %w", err)
		}
	}
	ids, err := s.client.ZRange(ctx, s.runIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error listing runs: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// AppendRunState stores a new visit.
func (s *Store) AppendRunState(ctx context.Context, rs *domain.RunState) error {
	open := "0"
	if rs.Open() {
		open = "1"
	}
	exited := ""
	if rs.ExitedAt != nil {
		exited = formatTime(*rs.ExitedAt)
	}
	args := []any{rs.ID, open, rs.RunID, rs.StateID, formatTime(rs.EnteredAt), exited, s.ttl.Milliseconds()}
	for name, value := range rs.SlotData {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode slot %q: %w", name, err)
		}
		args = append(args, slotField+name, string(data))
	}

	keys := []string{s.openKeyPrefix() + rs.RunID, s.stateKey(rs.ID), s.visitsKey(rs.RunID)}
	res, err := appendScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("redis error appending run state: %w", err)
	}
	if res == 0 {
		return fmt.Errorf("run %s already has an open state: %w", rs.RunID, domain.ErrStaleRun)
	}
	return nil
}

// CloseRunState sets exitedAt on an open visit.
func (s *Store) CloseRunState(ctx context.Context, id string, exitedAt time.Time) error {
	res, err := closeScript.Run(ctx, s.client, []string{s.stateKey(id)}, formatTime(exitedAt), s.openKeyPrefix(), id).Int()
	if err != nil {
		return fmt.Errorf("redis error closing run state: %w", err)
	}
	return scriptResult(res, id)
}

// PutSlot writes one slot field of an open visit.
func (s *Store) PutSlot(ctx context.Context, runStateID, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode slot %q: %w", name, err)
	}
	res, err := putSlotScript.Run(ctx, s.client, []string{s.stateKey(runStateID)}, slotField+name, string(data)).Int()
	if err != nil {
		return fmt.Errorf("redis error writing slot: %w", err)
	}
	return scriptResult(res, runStateID)
}

// LoadRunState retrieves a visit.
func (s *Store) LoadRunState(ctx context.Context, id string) (*domain.RunState, error) {
	fields, err := s.client.HGetAll(ctx, s.stateKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error loading run state: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrRunStateNotFound
	}
	return decodeRunState(id, fields)
}

// ListRunStates returns the visits of a run in append order.
func (s *Store) ListRunStates(ctx context.Context, runID string) ([]*domain.RunState, error) {
	ids, err := s.client.LRange(ctx, s.visitsKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error listing run states: %w", err)
	}
	out := make([]*domain.RunState, 0, len(ids))
	for _, id := range ids {
		rs, err := s.LoadRunState(ctx, id)
		if errors.Is(err, domain.ErrRunStateNotFound) {
			continue // expired
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, nil
}

func scriptResult(res int, id string) error {
	switch res {
	case -1:
		return domain.ErrRunStateNotFound
	case -2:
		return fmt.Errorf("run state %s is closed: %w", id, domain.ErrStaleRun)
	}
	return nil
}

func decodeRunState(id string, fields map[string]string) (*domain.RunState, error) {
	rs := &domain.RunState{
		ID:       id,
		RunID:    fields[fieldRunID],
		StateID:  fields[fieldStateID],
		SlotData: make(map[string]any),
	}
	var err error
	if rs.EnteredAt, err = time.Parse(time.RFC3339Nano, fields[fieldEnteredAt]); err != nil {
		return nil, fmt.Errorf("run state %s: bad enteredAt: %w", id, err)
	}
	if raw, ok := fields[fieldExitedAt]; ok {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("run state %s: bad exitedAt: %w", id, err)
		}
		rs.ExitedAt = &at
	}
	for field, raw := range fields {
		name, ok := strings.CutPrefix(field, slotField)
		if !ok {
			continue
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("run state %s: bad slot %q: %w", id, name, err)
		}
		rs.SlotData[name] = value
	}
	return rs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
