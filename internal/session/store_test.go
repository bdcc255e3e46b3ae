package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"cacviun/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	mu      sync.Mutex
	slots   map[string]models.Session
	loads   int
	saveErr error
}

func newMemPersister() *memPersister {
	return &memPersister{slots: make(map[string]models.Session)}
}

func (p *memPersister) Load(ctx context.Context, sid string) (models.Session, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
	s, ok := p.slots[sid]
	return s, ok, nil
}

func (p *memPersister) Save(ctx context.Context, sid string, s models.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.slots[sid] = s
	return nil
}

func (p *memPersister) Delete(ctx context.Context, sid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.slots, sid)
	return nil
}

var ana = models.Session{Name: "Ana", Email: "ana@unal.edu.co", Role: models.RoleUser}

func TestStore_SetGet(t *testing.T) {
	p := newMemPersister()
	store := NewStore(p)
	ctx := context.Background()

	assert.True(t, store.Get(ctx, "sid").IsZero())

	require.NoError(t, store.Set(ctx, "sid", ana))
	assert.Equal(t, ana, store.Get(ctx, "sid"))
	assert.Equal(t, ana, p.slots["sid"], "set persists synchronously")
}

func TestStore_Clear(t *testing.T) {
	p := newMemPersister()
	store := NewStore(p)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "sid", ana))
	require.NoError(t, store.Clear(ctx, "sid"))

	assert.True(t, store.Get(ctx, "sid").IsZero())
	_, ok := p.slots["sid"]
	assert.False(t, ok)
}

func TestStore_LazyRehydrate(t *testing.T) {
	p := newMemPersister()
	p.slots["sid"] = ana

	store := NewStore(p)
	ctx := context.Background()

	assert.Equal(t, ana, store.Get(ctx, "sid"))
	assert.Equal(t, ana, store.Get(ctx, "sid"))
	assert.Equal(t, 1, p.loads, "persister is read once per sid")

	assert.True(t, store.Get(ctx, "").IsZero())
}

func TestStore_SubscribersSeeEveryChange(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	var got []models.Session
	store.Subscribe(func(sid string, s models.Session) {
		assert.Equal(t, "sid", sid)
		got = append(got, s)
	})

	require.NoError(t, store.Set(ctx, "sid", ana))
	require.NoError(t, store.Clear(ctx, "sid"))

	require.Len(t, got, 2)
	assert.Equal(t, ana, got[0])
	assert.True(t, got[1].IsZero())
}

func TestStore_PersistFailure(t *testing.T) {
	p := newMemPersister()
	p.saveErr = errors.New("disk full")
	store := NewStore(p)
	ctx := context.Background()

	err := store.Set(ctx, "sid", ana)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, ana, store.Get(ctx, "sid"))
}

func TestStore_NoRoleValidation(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	odd := models.Session{Email: "x@unal.edu.co", Role: "9"}
	require.NoError(t, store.Set(ctx, "sid", odd))
	assert.Equal(t, odd, store.Get(ctx, "sid"))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore(newMemPersister())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, "sid", ana)
		}()
		go func() {
			defer wg.Done()
			s := store.Get(ctx, "sid")
			assert.True(t, s.IsZero() || s == ana, "never a partial session")
		}()
	}
	wg.Wait()
}

func TestMiddleware(t *testing.T) {
	store := NewStore(nil)
	var seen models.Session
	var seenSID string
	h := Middleware(store, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		seenSID = IDFromContext(r.Context())
	}))

	t.Run("mints a cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, CookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, cookies[0].Value, seenSID)
		assert.True(t, seen.IsZero())
	})

	t.Run("resolves an existing session", func(t *testing.T) {
		sid := uuid.NewString()
		require.NoError(t, store.Set(context.Background(), sid, ana))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: sid})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Result().Cookies())
		assert.Equal(t, sid, seenSID)
		assert.Equal(t, ana, seen)
	})

	t.Run("replaces a malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: "../../etc"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.NotEqual(t, "../../etc", seenSID)
		assert.Len(t, rec.Result().Cookies(), 1)
	})
}

func TestStore_Forget(t *testing.T) {
	p := newMemPersister()
	store := NewStore(p)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "sid", ana))

	store.Forget("sid")
	assert.Zero(t, store.Len())
	assert.Equal(t, ana, store.Get(ctx, "sid"), "a kept slot rehydrates")

	require.NoError(t, p.Delete(ctx, "sid"))
	store.Forget("sid")
	assert.True(t, store.Get(ctx, "sid").IsZero(), "a removed slot reads as signed out")
}
