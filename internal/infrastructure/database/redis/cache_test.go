package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

func newMockClient(t *testing.T) (*Client, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	c := newWithBackend(db, config.RedisConfig{KeyPrefix: "shortcut:"}, logging.NewNopLogger())
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return c, mock
}

func TestCache_GetHit(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectGet("shortcut:selfrag:expansion:abc").SetVal(`{"hypothetical_claim":"청구항"}`)

	cache := NewCache(c, time.Hour, logging.NewNopLogger())
	val, ok, err := cache.Get(context.Background(), "selfrag:expansion:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, val, "청구항")
}

func TestCache_GetMissIsNotError(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectGet("shortcut:selfrag:expansion:missing").RedisNil()

	cache := NewCache(c, time.Hour, logging.NewNopLogger())
	_, ok, err := cache.Get(context.Background(), "selfrag:expansion:missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_GetBackendError(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectGet("shortcut:k").SetErr(errors.New("connection reset"))

	cache := NewCache(c, time.Hour, logging.NewNopLogger())
	_, _, err := cache.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCacheError, apperrors.GetCode(err))
}

func TestCache_SetUsesDefaultTTLWhenZero(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectSet("shortcut:k", "v", 30*time.Minute).SetVal("OK")

	cache := NewCache(c, 30*time.Minute, logging.NewNopLogger())
	require.NoError(t, cache.Set(context.Background(), "k", "v", 0))
}

func TestCache_SetExplicitTTL(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectSet("shortcut:k", "v", 5*time.Minute).SetVal("OK")

	cache := NewCache(c, time.Hour, logging.NewNopLogger())
	require.NoError(t, cache.Set(context.Background(), "k", "v", 5*time.Minute))
}

func TestCache_Delete(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectDel("shortcut:a", "shortcut:b").SetVal(2)

	cache := NewCache(c, time.Hour, logging.NewNopLogger())
	require.NoError(t, cache.Delete(context.Background(), "a", "b"))
}

func TestCache_ClosedClient(t *testing.T) {
	db, _ := redismock.NewClientMock()
	c := newWithBackend(db, config.RedisConfig{}, logging.NewNopLogger())
	require.NoError(t, c.Close())

	cache := NewCache(c, time.Hour, logging.NewNopLogger())
	_, _, err := cache.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_KeyPrefixing(t *testing.T) {
	c, _ := newMockClient(t)
	assert.Equal(t, "shortcut:ratelimit:ip:1.2.3.4", c.Key("ratelimit", "ip", "1.2.3.4"))
	assert.Equal(t, "shortcut:plain", c.Key("plain"))
}
