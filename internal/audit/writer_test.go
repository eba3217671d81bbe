package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"devhub/internal/dbctx"
	"devhub/internal/testutil"
)

func TestAppendAndList(t *testing.T) {
	gdb := testutil.DB(t)
	w := Writer{DB: gdb, Now: testutil.SteppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}
	dbc := dbctx.New(context.Background())

	require.NoError(t, w.Append(dbc, "create", "staff", "s1", "alice", nil))
	require.NoError(t, w.Append(dbc, "update", "staff", "s1", "bob", EventPayload{"status": 2}))
	require.NoError(t, w.Append(dbc, "create", "project", "p1", "alice", nil))

	rows, total, err := w.List(dbc, Filter{Module: "staff"}, 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Equal(t, "update", rows[0].Action)
	require.Equal(t, json.Number("2"), rows[0].Payload["status"])

	rows, total, err = w.List(dbc, Filter{ActorID: "alice"}, 1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, rows, 1)
	require.Equal(t, "project", rows[0].Module)
}

func TestAppendJoinsTransaction(t *testing.T) {
	gdb := testutil.DB(t)
	w := Writer{DB: gdb}
	boom := errors.New("boom")
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if err := w.Append(dbctx.Context{Ctx: context.Background(), Tx: tx}, "delete", "app", "a1", "alice", nil); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, total, err := w.List(dbctx.New(context.Background()), Filter{}, 0, 0)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestAfterAndLatestID(t *testing.T) {
	w := Writer{DB: testutil.DB(t)}
	dbc := dbctx.New(context.Background())

	latest, err := w.LatestID(dbc)
	require.NoError(t, err)
	require.Zero(t, latest)

	for _, action := range []string{"create", "update", "delete"} {
		require.NoError(t, w.Append(dbc, action, "app", "a1", "alice", nil))
	}
	latest, err = w.LatestID(dbc)
	require.NoError(t, err)
	require.EqualValues(t, 3, latest)

	rows, err := w.After(dbc, 1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "update", rows[0].Action)
	require.Equal(t, "delete", rows[1].Action)

	rows, err = w.After(dbc, 1, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
