package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClientRevoke(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &memoryClient{revoked: map[string]time.Time{}, now: func() time.Time { return now }}

	revoked, err := c.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, c.Revoke(ctx, "abc", now.Add(time.Minute)))
	revoked, err = c.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = c.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryClientPrune(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := NewMemoryClient()

	require.NoError(t, c.Revoke(ctx, "old", now.Add(-time.Second)))
	require.NoError(t, c.Revoke(ctx, "fresh", now.Add(time.Hour)))

	n, err := c.Prune(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	revoked, err := c.IsRevoked(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestNewPrunerRejectsBadSpec(t *testing.T) {
	_, err := NewPruner(NewMemoryClient(), "every now and then", log.NewNopLogger())
	assert.Error(t, err)

	p, err := NewPruner(NewMemoryClient(), "@every 1h", log.NewNopLogger())
	require.NoError(t, err)
	p.Start()
	p.Stop()
}

func TestParseUntil(t *testing.T) {
	until, err := parseUntil([]byte("1700000000"))
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), until.Unix())

	_, err = parseUntil([]byte("soon"))
	assert.Error(t, err)
}
