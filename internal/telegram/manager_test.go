package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/celestix/gotgproto"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/studyplan/tg-media-sync/internal/config"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	db.Exec("CREATE TABLE sessions (version integer primary key, data blob)")
	return db
}

func TestManager_Init_EmptyDB_Unauthorized(t *testing.T) {
	db := openTestDB(t)
	m := NewManager(&config.Config{TGApiID: 12345, TGApiHash: "test_hash"}, db)

	factoryCalled := false
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
		factoryCalled = true
		return nil, nil
	})

	err := m.Init(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, StatusUnauthorized, m.GetStatus())
	assert.False(t, factoryCalled, "factory must not run without a stored session")
}

func TestManager_Init_EmptyDB_SeedsFromSessionString(t *testing.T) {
	db := openTestDB(t)
	m := NewManager(&config.Config{
		TGApiID:      12345,
		TGApiHash:    "test_hash",
		TGSessionStr: "exported_session_string",
	}, db)

	persistentCalled := false
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
		persistentCalled = true
		return nil, nil
	})

	var seededWith string
	m.SetSeedFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
		seededWith = cfg.TGSessionStr
		return nil, nil
	})

	err := m.Init(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, StatusReady, m.GetStatus())
	assert.Equal(t, "exported_session_string", seededWith)
	assert.False(t, persistentCalled, "persistent factory must not run without a stored session")
}

func TestManager_Init_BadSessionString_Unauthorized(t *testing.T) {
	db := openTestDB(t)
	m := NewManager(&config.Config{
		TGApiID:      12345,
		TGApiHash:    "test_hash",
		TGSessionStr: "garbage",
	}, db)
	m.SetSeedFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
		return nil, errors.New("invalid session string")
	})

	err := m.Init(context.Background())

	assert.NoError(t, err, "Init should not return error even if the seed fails")
	assert.Equal(t, StatusUnauthorized, m.GetStatus())
}

func TestManager_Init_StoredSessionWins(t *testing.T) {
	db := openTestDB(t)
	db.Exec("INSERT INTO sessions (version, data) VALUES (1, ?)", []byte(`{"mock":"data"}`))

	m := NewManager(&config.Config{
		TGApiID:      12345,
		TGApiHash:    "test_hash",
		TGSessionStr: "exported_session_string",
	}, db)
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
		return nil, nil
	})

	seedCalled := false
	m.SetSeedFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
		seedCalled = true
		return nil, nil
	})

	err := m.Init(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, StatusReady, m.GetStatus())
	assert.False(t, seedCalled, "session string must not override a stored session")
}

func TestManager_Init_FactoryError_Unauthorized(t *testing.T) {
	db := openTestDB(t)
	// seed a session so the factory is called
	db.Exec("INSERT INTO sessions (version, data) VALUES (1, ?)", []byte(`{"mock":"data"}`))

	m := NewManager(&config.Config{TGApiID: 12345, TGApiHash: "test_hash"}, db)
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
		return nil, errors.New("factory failure")
	})

	err := m.Init(context.Background())

	assert.NoError(t, err, "Init should not return error even if factory fails")
	assert.Equal(t, StatusUnauthorized, m.GetStatus())
}

func TestManager_GetStatus_Concurrent(t *testing.T) {
	db, _ := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	m := NewManager(&config.Config{}, db)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			m.GetStatus()
		}()
	}

	close(start)
	wg.Wait()
}

func TestManager_Stop_Graceful(t *testing.T) {
	db, _ := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	m := NewManager(&config.Config{}, db)

	assert.NotPanics(t, func() {
		m.Stop()
	})
}
