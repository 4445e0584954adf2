package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_SaveState(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &RedisStore{client: db, prefix: "mapcrawl:"}
	ctx := context.TODO()

	mock.ExpectSet("mapcrawl:STATS", []byte(`{"ok":3}`), 0).SetVal("OK")
	assert.NoError(t, store.SaveState(ctx, "STATS", map[string]int{"ok": 3}))

	mock.ExpectSet("mapcrawl:STATS", []byte(`{"ok":4}`), 0).SetErr(errors.New("redis error"))
	err := store.SaveState(ctx, "STATS", map[string]int{"ok": 4})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis set failure")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRedisStore_LoadState(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &RedisStore{client: db, prefix: "mapcrawl:"}
	ctx := context.TODO()

	mock.ExpectGet("mapcrawl:STATS").SetVal(`{"ok":3}`)
	var got map[string]int
	ok, err := store.LoadState(ctx, "STATS", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]int{"ok": 3}, got)

	mock.ExpectGet("mapcrawl:MISSING").RedisNil()
	ok, err = store.LoadState(ctx, "MISSING", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectGet("mapcrawl:BROKEN").SetVal(`{`)
	_, err = store.LoadState(ctx, "BROKEN", &got)
	assert.True(t, errors.Is(err, ErrCorruptState))

	mock.ExpectGet("mapcrawl:DOWN").SetErr(errors.New("connection refused"))
	_, err = store.LoadState(ctx, "DOWN", &got)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, redis.Nil))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
