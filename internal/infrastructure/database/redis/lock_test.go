package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
)

func TestMutex_TryLock(t *testing.T) {
	c, mock := newMockClient(t)
	m := NewMutex(c, "ingest", time.Minute, logging.NewNopLogger())

	mock.ExpectSetNX("shortcut:lock:ingest", m.value, time.Minute).SetVal(true)
	ok, err := m.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMutex_TryLockContended(t *testing.T) {
	c, mock := newMockClient(t)
	m := NewMutex(c, "ingest", time.Minute, logging.NewNopLogger())

	mock.ExpectSetNX("shortcut:lock:ingest", m.value, time.Minute).SetVal(false)
	ok, err := m.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMutex_UnlockOnlyByOwner(t *testing.T) {
	c, mock := newMockClient(t)
	m := NewMutex(c, "ingest", time.Minute, logging.NewNopLogger())

	mock.ExpectEval(unlockScript, []string{"shortcut:lock:ingest"}, m.value).SetVal(int64(1))
	require.NoError(t, m.Unlock(context.Background()))
}

func TestMutex_UnlockLostOwnership(t *testing.T) {
	c, mock := newMockClient(t)
	m := NewMutex(c, "ingest", time.Minute, logging.NewNopLogger())

	mock.ExpectEval(unlockScript, []string{"shortcut:lock:ingest"}, m.value).SetVal(int64(0))
	assert.ErrorIs(t, m.Unlock(context.Background()), ErrLockNotHeld)
}

func TestMutex_Extend(t *testing.T) {
	c, mock := newMockClient(t)
	m := NewMutex(c, "ingest", time.Minute, logging.NewNopLogger())

	mock.ExpectEval(extendScript, []string{"shortcut:lock:ingest"}, m.value, int64(60000)).SetVal(int64(1))
	require.NoError(t, m.Extend(context.Background()))
}

func TestMutex_TTLMissingKeyIsZero(t *testing.T) {
	c, mock := newMockClient(t)
	m := NewMutex(c, "ingest", time.Minute, logging.NewNopLogger())

	mock.ExpectTTL("shortcut:lock:ingest").SetVal(-2 * time.Nanosecond)
	ttl, err := m.TTL(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ttl)
}
