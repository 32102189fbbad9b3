package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeboLoop/chat-go-sdk/conversation"
)

func sampleMessages(n int) []conversation.Message {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ms := make([]conversation.Message, n)
	for i := range ms {
		ms[i] = conversation.Message{
			ID:           fmt.Sprintf("m%03d", i),
			SenderID:     "u1",
			RecipientID:  "u2",
			Content:      strings.Repeat("hello ", 10),
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
			IsFromServer: true,
		}
	}
	return ms
}

func TestBlobRoundTripSmall(t *testing.T) {
	ms := sampleMessages(1)
	blob, err := encodeBlob(ms)
	require.NoError(t, err)
	assert.Equal(t, formatJSON, blob[0])

	got, err := decodeBlob(blob)
	require.NoError(t, err)
	assert.Equal(t, ms, got)
}

func TestBlobRoundTripCompressed(t *testing.T) {
	ms := sampleMessages(100)
	blob, err := encodeBlob(ms)
	require.NoError(t, err)
	assert.Equal(t, formatZstd, blob[0])

	got, err := decodeBlob(blob)
	require.NoError(t, err)
	assert.Equal(t, ms, got)
}

func TestBlobUnknownFormat(t *testing.T) {
	_, err := decodeBlob([]byte("x[]"))
	assert.ErrorIs(t, err, errBadBlob)
}

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteLoadMissing(t *testing.T) {
	s := openTestSQLite(t)
	got, err := s.Load(context.Background(), conversation.DirectKey("nobody"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteUpdateAndLoad(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	key := conversation.DirectKey("u2")
	ms := sampleMessages(50)

	require.NoError(t, s.Update(ctx, key, func(cur []conversation.Message) ([]conversation.Message, error) {
		assert.Empty(t, cur)
		return ms, nil
	}))
	require.NoError(t, s.Update(ctx, key, func(cur []conversation.Message) ([]conversation.Message, error) {
		assert.Len(t, cur, 50)
		return cur[:10], nil
	}))

	got, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ms[:10], got)
}

func TestSQLiteUpdateErrorWritesNothing(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	key := conversation.GroupKey("g1")
	boom := errors.New("boom")

	err := s.Update(ctx, key, func([]conversation.Message) ([]conversation.Message, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSQLiteKeysAndDelete(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	write := func([]conversation.Message) ([]conversation.Message, error) { return sampleMessages(1), nil }

	require.NoError(t, s.Update(ctx, conversation.DirectKey("u2"), write))
	require.NoError(t, s.Update(ctx, conversation.GroupKey("g1"), write))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []conversation.Key{"direct:u2", "group:g1"}, keys)

	require.NoError(t, s.Delete(ctx, conversation.DirectKey("u2")))
	keys, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []conversation.Key{"group:g1"}, keys)
}

func TestSQLiteBacksReconcilerMerge(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	key := conversation.DirectKey("u2")
	server := sampleMessages(3)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Update(ctx, key, func(cur []conversation.Message) ([]conversation.Message, error) {
			return conversation.Merge(cur, server), nil
		}))
	}
	got, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

// Runs only against a real server: CHAT_REDIS_ADDR=localhost:6379 go test ./store
func TestRedisUpdateAndLoad(t *testing.T) {
	addr := os.Getenv("CHAT_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHAT_REDIS_ADDR not set")
	}
	ctx := context.Background()
	s, err := OpenRedis(ctx, RedisConfig{Addr: addr, Prefix: fmt.Sprintf("chat:test:%d:", time.Now().UnixNano()), TTL: time.Minute})
	require.NoError(t, err)
	defer s.Close()

	key := conversation.DirectKey("u2")
	ms := sampleMessages(40)
	require.NoError(t, s.Update(ctx, key, func([]conversation.Message) ([]conversation.Message, error) {
		return ms, nil
	}))
	got, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ms, got)
}
