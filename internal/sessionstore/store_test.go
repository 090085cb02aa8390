package sessionstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGetDelete(t *testing.T) {
	s := NewMemory()

	s.Set("k", []byte("v"), time.Minute)
	got, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	s.Delete("k")
	_, ok = s.Get("k")
	assert.False(t, ok)
}

func TestMemory_ExpiryIsLazy(t *testing.T) {
	s := NewMemory()

	s.Set("k", []byte("v"), 50*time.Millisecond)
	_, ok := s.Get("k")
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	_, ok = s.Get("k")
	assert.False(t, ok, "expired entry behaves as absent at read time")
}

func TestMemory_OverwriteRefreshesTTL(t *testing.T) {
	s := NewMemory()

	s.Set("k", []byte("old"), 50*time.Millisecond)
	s.Set("k", []byte("new"), time.Minute)

	time.Sleep(80 * time.Millisecond)

	got, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

func TestMemory_TakeConsumesExactlyOnce(t *testing.T) {
	s := NewMemory()

	s.Set("k", []byte("v"), time.Minute)

	got, ok := s.Take("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	// Two interleaved consumers must not both obtain the entry; the
	// second take comes back empty.
	_, ok = s.Take("k")
	assert.False(t, ok)
	_, ok = s.Get("k")
	assert.False(t, ok)
}

func TestMemory_TakeExpiredEntry(t *testing.T) {
	s := NewMemory()

	s.Set("k", []byte("v"), -time.Second)

	_, ok := s.Take("k")
	assert.False(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemory()

	type pending struct {
		UserID string `json:"user_id"`
		Secret string `json:"secret"`
	}

	require.NoError(t, SetJSON(s, "p", pending{UserID: "u1", Secret: "s1"}, time.Minute))

	var out pending
	require.True(t, GetJSON(s, "p", &out))
	assert.Equal(t, "u1", out.UserID)
	assert.Equal(t, "s1", out.Secret)

	assert.False(t, GetJSON(s, "missing", &out))

	require.True(t, TakeJSON(s, "p", &out))
	assert.False(t, TakeJSON(s, "p", &out))
}
