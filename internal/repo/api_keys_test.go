package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"devhub/internal/dbctx"
	"devhub/internal/domain"
	"devhub/internal/testutil"
)

func TestAPIKeyLifecycle(t *testing.T) {
	r := Repo{DB: testutil.DB(t)}
	ctx := context.Background()

	require.Error(t, r.InsertAPIKey(dbctx.New(ctx), domain.APIKey{ID: "k1"}))
	require.NoError(t, r.InsertAPIKey(dbctx.New(ctx), domain.APIKey{
		ID:          "k1",
		ActorID:     "ci-bot",
		Name:        "ci",
		KeyHash:     HashAPIKey(" secret "),
		Permissions: "project:list, project:statistics,",
	}))

	key, err := r.GetAPIKeyByHash(ctx, HashAPIKey("secret"))
	require.NoError(t, err)
	require.Equal(t, "ci-bot", key.ActorID)
	require.Equal(t, []string{"project:list", "project:statistics"}, PermissionList(key))

	_, err = r.GetAPIKeyByHash(ctx, HashAPIKey("other"))
	require.ErrorIs(t, err, ErrNotFound)

	keys, err := r.ListAPIKeys(ctx, "ci-bot")
	require.NoError(t, err)
	require.Len(t, keys, 1)

	require.NoError(t, r.DeleteAPIKey(ctx, "k1"))
	keys, err = r.ListAPIKeys(ctx, "")
	require.NoError(t, err)
	require.Empty(t, keys)
}
