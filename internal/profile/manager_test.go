package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat-assistant/internal/common/database"
	"finchat-assistant/internal/common/logger"
)

func setupRedis(t *testing.T) *database.RedisClient {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return &database.RedisClient{Client: redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})}
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// memStore keeps profiles in a map for manager-level tests.
type memStore struct {
	profiles map[string]*Profile
	loads    int
}

func newMemStore() *memStore {
	return &memStore{profiles: make(map[string]*Profile)}
}

func (s *memStore) Load(_ context.Context, userID string) (*Profile, error) {
	s.loads++
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *memStore) Save(_ context.Context, p *Profile) error {
	clone := *p
	s.profiles[p.UserID] = &clone
	return nil
}

func TestPostgresStoreLoad(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)

	t.Run("found", func(t *testing.T) {
		p := &Profile{UserID: "ravi", Profile: Details{Age: 32, Income: 1500000, RiskAppetite: "moderate"}}
		raw, _ := json.Marshal(p)

		mock.ExpectQuery(`SELECT data FROM user_profiles WHERE user_id = \$1`).
			WithArgs("ravi").
			WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(raw))

		got, err := store.Load(context.Background(), "ravi")
		require.NoError(t, err)
		assert.Equal(t, "ravi", got.UserID)
		assert.Equal(t, 32, got.Profile.Age)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT data FROM user_profiles WHERE user_id = \$1`).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"data"}))

		_, err := store.Load(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSave(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db)

	mock.ExpectExec(`INSERT INTO user_profiles`).
		WithArgs("ravi", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(context.Background(), &Profile{UserID: "ravi"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerReadThroughCache(t *testing.T) {
	store := newMemStore()
	cache := setupRedis(t)
	mgr := NewManager(store, cache, 30*time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	_, err := mgr.Create(ctx, "ravi", Details{Age: 32, Income: 1500000, MonthlyIncome: 125000, RiskAppetite: "moderate"})
	require.NoError(t, err)

	// Create primes the cache, so subsequent loads never hit the store.
	loadsAfterCreate := store.loads
	for i := 0; i < 3; i++ {
		p, err := mgr.Load(ctx, "ravi")
		require.NoError(t, err)
		require.NotNil(t, p)
	}
	assert.Equal(t, loadsAfterCreate, store.loads)
}

func TestManagerCacheMissFallsBack(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Save(context.Background(), &Profile{
		UserID:  "meera",
		Profile: Details{Age: 28, RiskAppetite: "aggressive"},
	}))

	mgr := NewManager(store, setupRedis(t), 30*time.Minute, logger.NewTestLogger(t))

	p, err := mgr.Load(context.Background(), "meera")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, store.loads)

	// Second load is served from the cache populated on miss.
	_, err = mgr.Load(context.Background(), "meera")
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads)
}

func TestManagerLoadUnknownUser(t *testing.T) {
	mgr := NewManager(newMemStore(), setupRedis(t), time.Minute, logger.NewTestLogger(t))

	p, err := mgr.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, p)

	snap := mgr.Snapshot(context.Background(), "nobody")
	assert.Equal(t, Snapshot{}, snap)
}

func TestManagerAddConversationCapsHistory(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, setupRedis(t), time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	_, err := mgr.Create(ctx, "ravi", Details{Age: 32})
	require.NoError(t, err)

	for i := 0; i < 55; i++ {
		require.NoError(t, mgr.AddConversation(ctx, "ravi", fmt.Sprintf("q%d", i), "a"))
	}

	p, err := mgr.Load(ctx, "ravi")
	require.NoError(t, err)
	require.Len(t, p.ConversationHistory, 50)
	assert.Equal(t, "q5", p.ConversationHistory[0].Question)
	assert.Equal(t, "q54", p.ConversationHistory[49].Question)
}

func TestGetContextSummary(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, setupRedis(t), time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	t.Run("new user", func(t *testing.T) {
		assert.Equal(t, "New user, no previous context.", mgr.GetContextSummary(ctx, "stranger"))
	})

	t.Run("existing user", func(t *testing.T) {
		_, err := mgr.Create(ctx, "ravi", Details{Age: 32, Income: 1500000, RiskAppetite: "moderate"})
		require.NoError(t, err)

		summary := mgr.GetContextSummary(ctx, "ravi")
		assert.Contains(t, summary, "Age: 32 years old")
		assert.Contains(t, summary, "Risk Appetite: Moderate")
		assert.Contains(t, summary, "Suggested Monthly SIP: ₹25000")
		assert.Contains(t, summary, "Medium-term (15-30 years)")
	})

	t.Run("young user horizon", func(t *testing.T) {
		_, err := mgr.Create(ctx, "arjun", Details{Age: 24, Income: 600000, RiskAppetite: "aggressive"})
		require.NoError(t, err)
		assert.Contains(t, mgr.GetContextSummary(ctx, "arjun"), "Long-term (30+ years)")
	})
}

func TestSnapshot(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, setupRedis(t), time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	_, err := mgr.Create(ctx, "ravi", Details{Age: 32, MonthlyIncome: 125000, RiskAppetite: "moderate"})
	require.NoError(t, err)

	snap := mgr.Snapshot(ctx, "ravi")
	assert.Equal(t, 32, snap.Age)
	assert.Equal(t, 125000.0, snap.MonthlyIncome)
	assert.Equal(t, "moderate", snap.RiskAppetite)
}
