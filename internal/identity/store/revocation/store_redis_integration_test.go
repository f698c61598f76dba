//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"correspondence/internal/identity/store/revocation"
	"correspondence/pkg/testutil/containers"
)

func TestRedisStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.Reset(ctx))
	store := revocation.NewRedis(rc.Client)

	require.NoError(t, store.RevokeToken(ctx, "jti-live", time.Second))
	revoked, err := store.IsRevoked(ctx, "jti-live")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsRevoked(ctx, "jti-other")
	require.NoError(t, err)
	assert.False(t, revoked)

	assert.Eventually(t, func() bool {
		revoked, err := store.IsRevoked(ctx, "jti-live")
		return err == nil && !revoked
	}, 5*time.Second, 100*time.Millisecond, "entry expires with the token")
}
