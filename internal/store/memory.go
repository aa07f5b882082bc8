package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/desertthunder/tunegate/internal/models"
	gocache "github.com/patrickmn/go-cache"
)

const stripes = 64

// MemoryStore keeps records in a go-cache instance. Records never expire; pending states do.
type MemoryStore struct {
	c     *gocache.Cache
	locks [stripes]sync.Mutex
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func tokenKey(session string) string { return "token:" + session }
func stateKey(session string) string { return "state:" + session }

func (m *MemoryStore) lock(session string) func() {
	h := fnv.New32a()
	h.Write([]byte(session))
	mu := &m.locks[h.Sum32()%stripes]
	mu.Lock()
	return mu.Unlock
}

func (m *MemoryStore) Get(_ context.Context, session string) (*models.TokenRecord, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	defer m.lock(session)()

	v, ok := m.c.Get(tokenKey(session))
	if !ok {
		return nil, nil
	}
	rec, _ := v.(*models.TokenRecord)
	return rec.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, session string, rec *models.TokenRecord) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	defer m.lock(session)()

	m.c.Set(tokenKey(session), rec.Clone(), gocache.NoExpiration)
	return nil
}

func (m *MemoryStore) Replace(_ context.Context, session string, prev, next *models.TokenRecord) (bool, error) {
	if err := requireSession(session); err != nil {
		return false, err
	}
	if err := next.Validate(); err != nil {
		return false, err
	}
	defer m.lock(session)()

	v, ok := m.c.Get(tokenKey(session))
	if !ok {
		return false, nil
	}
	if cur, _ := v.(*models.TokenRecord); cur == nil || prev == nil || cur.AccessToken != prev.AccessToken {
		return false, nil
	}
	m.c.Set(tokenKey(session), next.Clone(), gocache.NoExpiration)
	return true, nil
}

func (m *MemoryStore) Authorize(_ context.Context, session, state string, rec *models.TokenRecord) (bool, error) {
	if err := requireSession(session); err != nil {
		return false, err
	}
	if err := rec.Validate(); err != nil {
		return false, err
	}
	defer m.lock(session)()

	v, ok := m.c.Get(stateKey(session))
	if !ok {
		return false, nil
	}
	if s, _ := v.(string); s == "" || s != state {
		return false, nil
	}
	m.c.Set(tokenKey(session), rec.Clone(), gocache.NoExpiration)
	m.c.Delete(stateKey(session))
	return true, nil
}

func (m *MemoryStore) Delete(_ context.Context, session string) error {
	if err := requireSession(session); err != nil {
		return err
	}
	defer m.lock(session)()

	m.c.Delete(tokenKey(session))
	m.c.Delete(stateKey(session))
	return nil
}

func (m *MemoryStore) PendingState(_ context.Context, session string) (string, bool, error) {
	if err := requireSession(session); err != nil {
		return "", false, err
	}
	defer m.lock(session)()

	v, ok := m.c.Get(stateKey(session))
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, s != "", nil
}

func (m *MemoryStore) PutPendingState(_ context.Context, session, state string, ttl time.Duration) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	defer m.lock(session)()

	m.c.Set(stateKey(session), state, ttl)
	return nil
}

func (m *MemoryStore) ClearPendingState(_ context.Context, session string) error {
	if err := requireSession(session); err != nil {
		return err
	}
	defer m.lock(session)()

	m.c.Delete(stateKey(session))
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close drops every entry.
func (m *MemoryStore) Close() error {
	m.c.Flush()
	return nil
}
