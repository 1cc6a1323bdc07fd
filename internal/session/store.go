// Package session holds per-device identity between requests. It is the
// sole authorization gate: dashboard handlers re-check the identity on
// every request and answer 401 when it is gone.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pickupdesk/internal/pickup"
)

// Parent is a parent session: the login register number plus the cached
// student snapshot.
type Parent struct {
	RegNo   string               `json:"regNo"`
	Student pickup.StudentRecord `json:"studentData"`
}

// Staff is a staff session.
type Staff struct {
	FacultyName string `json:"facultyName"`
	LoggedIn    bool   `json:"staffLogged"`
}

// Store persists session identity by session id. Clear removes every
// key of a session atomically; a concurrent reader sees the session
// either whole or gone.
type Store interface {
	PutParent(ctx context.Context, sid string, p Parent) error
	Parent(ctx context.Context, sid string) (Parent, bool, error)
	PutStaff(ctx context.Context, sid string, s Staff) error
	Staff(ctx context.Context, sid string) (Staff, bool, error)
	Clear(ctx context.Context, sid string) error
}

type memoryEntry struct {
	parent  *Parent
	staff   *Staff
	expires time.Time
}

// Memory is a mutex-guarded in-process store for dev and tests.
type Memory struct {
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]*memoryEntry
}

// NewMemory creates an in-memory store; ttl <= 0 disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, sessions: make(map[string]*memoryEntry)}
}

func (m *Memory) entry(sid string) *memoryEntry {
	e, ok := m.sessions[sid]
	if !ok || (m.ttl > 0 && time.Now().After(e.expires)) {
		e = &memoryEntry{}
		m.sessions[sid] = e
	}
	e.expires = time.Now().Add(m.ttl)
	return e
}

func (m *Memory) PutParent(_ context.Context, sid string, p Parent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(sid).parent = &p
	return nil
}

func (m *Memory) Parent(_ context.Context, sid string) (Parent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sid]
	if !ok || e.parent == nil || (m.ttl > 0 && time.Now().After(e.expires)) {
		return Parent{}, false, nil
	}
	return *e.parent, true, nil
}

func (m *Memory) PutStaff(_ context.Context, sid string, s Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(sid).staff = &s
	return nil
}

func (m *Memory) Staff(_ context.Context, sid string) (Staff, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sid]
	if !ok || e.staff == nil || (m.ttl > 0 && time.Now().After(e.expires)) {
		return Staff{}, false, nil
	}
	return *e.staff, true, nil
}

func (m *Memory) Clear(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	return nil
}

// Redis stores sessions as TTL'd JSON values so identity survives
// gateway restarts and is shared across replicas.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a redis-backed store.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Redis{client: client, ttl: ttl}
}

func parentKey(sid string) string { return "session:" + sid + ":parent" }
func staffKey(sid string) string  { return "session:" + sid + ":staff" }

func (r *Redis) PutParent(ctx context.Context, sid string, p Parent) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, parentKey(sid), data, r.ttl).Err()
}

func (r *Redis) Parent(ctx context.Context, sid string) (Parent, bool, error) {
	data, err := r.client.Get(ctx, parentKey(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Parent{}, false, nil
	}
	if err != nil {
		return Parent{}, false, err
	}
	var p Parent
	if err := json.Unmarshal(data, &p); err != nil {
		return Parent{}, false, err
	}
	return p, true, nil
}

func (r *Redis) PutStaff(ctx context.Context, sid string, s Staff) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, staffKey(sid), data, r.ttl).Err()
}

func (r *Redis) Staff(ctx context.Context, sid string) (Staff, bool, error) {
	data, err := r.client.Get(ctx, staffKey(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Staff{}, false, nil
	}
	if err != nil {
		return Staff{}, false, err
	}
	var s Staff
	if err := json.Unmarshal(data, &s); err != nil {
		return Staff{}, false, err
	}
	return s, true, nil
}

// Clear deletes both session keys in one DEL so no reader observes a
// half-cleared session.
func (r *Redis) Clear(ctx context.Context, sid string) error {
	return r.client.Del(ctx, parentKey(sid), staffKey(sid)).Err()
}
