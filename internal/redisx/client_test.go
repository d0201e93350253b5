package redisx

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimAndExists(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	defer rdb.Close()
	ctx := context.Background()

	ok, err := Exists(ctx, rdb, "dedup:test:1")
	require.NoError(t, err)
	assert.False(t, ok)

	won, err := Claim(ctx, rdb, "dedup:test:1", TTLDedup)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = Claim(ctx, rdb, "dedup:test:1", TTLDedup)
	require.NoError(t, err)
	assert.False(t, won)

	ok, err = Exists(ctx, rdb, "dedup:test:1")
	require.NoError(t, err)
	assert.True(t, ok)
}
