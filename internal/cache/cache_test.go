package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestMemory() (*Memory, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory()
	m.now = clock.now
	return m, clock
}

func TestMemoryGetSetExpire(t *testing.T) {
	m, clock := newTestMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	clock.t = clock.t.Add(time.Minute)
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry must expire at its deadline")
	assert.Equal(t, 0, m.Len())
}

func TestMemoryZeroTTLIsNotStored(t *testing.T) {
	m, _ := newTestMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	_, ok, _ := m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryDeleteAndSweep(t *testing.T) {
	m, clock := newTestMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, m.Set(ctx, "long", []byte("2"), time.Hour))
	require.NoError(t, m.Set(ctx, "gone", []byte("3"), time.Hour))
	require.NoError(t, m.Delete(ctx, "gone"))

	clock.t = clock.t.Add(time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())

	_, ok, _ := m.Get(ctx, "long")
	assert.True(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	m, _ := newTestMemory()
	ctx := context.Background()

	type pick struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}

	var got pick
	ok, err := GetJSON(ctx, m, "daily", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, m, "daily", pick{ID: "m1", Text: "te quiero"}, time.Hour))
	ok, err = GetJSON(ctx, m, "daily", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pick{ID: "m1", Text: "te quiero"}, got)

	require.NoError(t, m.Set(ctx, "bad", []byte("{"), time.Hour))
	_, err = GetJSON(ctx, m, "bad", &got)
	assert.Error(t, err)
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url", "ll:")
	assert.Error(t, err)
}

func TestRedisPrefixesKeys(t *testing.T) {
	r := &Redis{prefix: "luckylove:"}
	assert.Equal(t, "luckylove:identity:abc", r.key("identity:abc"))
}
