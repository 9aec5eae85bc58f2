package mapper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/loom/pkg/types"
)

// rowFetcher serves entities that are plain rows.
var rowFetcher = types.FetchFunc(func(entity any) (types.Row, error) {
	row, ok := entity.(types.Row)
	if !ok {
		return nil, errors.New("entity is not a row")
	}
	return row.Clone(), nil
})

func userSource() types.TableSource {
	return types.TableSource{DB: "main", Name: "users"}
}

func newMapper(t *testing.T, keys types.KeyGenerator) *Mapper {
	t.Helper()
	m, err := New(types.MapperConfig{
		Source:     userSource(),
		PrimaryKey: "id",
		Fetcher:    rowFetcher,
		Keys:       keys,
	})
	require.NoError(t, err)
	return m
}

func TestNewConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     types.MapperConfig
		wantErr error
	}{
		{
			name:    "no source",
			cfg:     types.MapperConfig{Fetcher: rowFetcher},
			wantErr: types.ErrNoSource,
		},
		{
			name:    "no fetcher",
			cfg:     types.MapperConfig{Source: userSource()},
			wantErr: types.ErrNoFetcher,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewDefaultsPrimaryKey(t *testing.T) {
	m, err := New(types.MapperConfig{Source: userSource(), Fetcher: rowFetcher})
	require.NoError(t, err)
	assert.Equal(t, "id", m.PrimaryKey())
}

func TestQueueStoreNewEntityAutoincrement(t *testing.T) {
	m := newMapper(t, nil)
	state := types.NewEntityState()
	entity := types.Row{"name": "ada", "email": "ada@example.com"}

	cmd, err := m.QueueStore(entity, state)
	require.NoError(t, err)

	assert.Equal(t, types.OpInsert, cmd.Op)
	assert.Equal(t, "main", cmd.Database)
	assert.Equal(t, "users", cmd.Table)
	assert.NotContains(t, cmd.Payload, "id", "payload excludes the primary key when no generator supplies one")
	assert.Equal(t, "ada", cmd.Payload["name"])

	assert.Equal(t, types.StatusScheduledInsert, state.Status)
	assert.Same(t, cmd, state.Command)
	assert.Equal(t, types.Row{"name": "ada", "email": "ada@example.com"}, state.Data)

	// Simulated execution delivers the generated id into the state.
	require.NoError(t, cmd.Complete(int64(41)))
	assert.Equal(t, int64(41), state.Data["id"])
}

func TestQueueStoreNewEntityGeneratedKey(t *testing.T) {
	m := newMapper(t, types.KeyFunc(func() (any, bool) { return "u-7", true }))
	state := types.NewEntityState()

	cmd, err := m.QueueStore(types.Row{"name": "ada"}, state)
	require.NoError(t, err)

	assert.Equal(t, "u-7", cmd.Payload["id"], "explicit key is included in the payload")

	require.NoError(t, cmd.Complete(nil))
	assert.Equal(t, "u-7", state.Data["id"], "explicit key forwarded into the state")
}

func TestQueueStoreKeyGeneratorDeclines(t *testing.T) {
	m := newMapper(t, types.KeyFunc(func() (any, bool) { return nil, false }))
	state := types.NewEntityState()

	cmd, err := m.QueueStore(types.Row{"id": 99, "name": "ada"}, state)
	require.NoError(t, err)
	assert.NotContains(t, cmd.Payload, "id", "declining generator defers to autoincrement")
}

func TestQueueStoreSyncedEntityDiffs(t *testing.T) {
	m := newMapper(t, nil)
	state := types.LoadedEntityState(types.Row{
		"id": int64(7), "name": "ada", "email": "ada@example.com", "age": 36,
	})
	entity := types.Row{
		"id": int64(7), "name": "ada", "email": "countess@example.com", "age": 36,
	}

	cmd, err := m.QueueStore(entity, state)
	require.NoError(t, err)

	assert.Equal(t, types.OpUpdate, cmd.Op)
	assert.Equal(t, types.Row{"email": "countess@example.com"}, cmd.Payload,
		"payload is exactly the changed non-key columns")
	assert.Equal(t, types.StatusScheduledUpdate, state.Status)
	assert.True(t, cmd.Ready(), "known primary key fills the scope at once")
	assert.Equal(t, int64(7), cmd.Scope["id"])
}

func TestQueueStoreUnchangedEntityEmptyUpdate(t *testing.T) {
	m := newMapper(t, nil)
	baseline := types.Row{"id": int64(7), "name": "ada", "email": "ada@example.com"}
	state := types.LoadedEntityState(baseline)

	cmd, err := m.QueueStore(baseline.Clone(), state)
	require.NoError(t, err)

	assert.Equal(t, types.OpUpdate, cmd.Op, "an update is still issued; skipping is the caller's concern")
	assert.Empty(t, cmd.Payload)
}

func TestQueueStoreRoundTripEmptyDiff(t *testing.T) {
	// Entity stored via insert, reloaded into a fresh state; diffing the
	// freshly loaded columns against themselves yields no changes.
	m := newMapper(t, nil)
	state := types.NewEntityState()
	cmd, err := m.QueueStore(types.Row{"name": "ada"}, state)
	require.NoError(t, err)
	require.NoError(t, cmd.Complete(int64(1)))

	loaded := types.Row{"id": int64(1), "name": "ada"}
	fresh := types.LoadedEntityState(loaded)
	update, err := m.QueueStore(loaded.Clone(), fresh)
	require.NoError(t, err)
	assert.Empty(t, update.Payload)
}

func TestQueueStoreIdempotentUpdate(t *testing.T) {
	m := newMapper(t, nil)
	state := types.LoadedEntityState(types.Row{"id": int64(7), "name": "ada"})
	entity := types.Row{"id": int64(7), "name": "lovelace"}

	first, err := m.QueueStore(entity, state)
	require.NoError(t, err)
	second, err := m.QueueStore(entity, state)
	require.NoError(t, err)

	assert.Same(t, first, second, "repeated store returns the identical update")
}

func TestQueueStorePendingInsertYieldsSplit(t *testing.T) {
	m := newMapper(t, nil)
	state := types.NewEntityState()

	insert, err := m.QueueStore(types.Row{"name": "ada"}, state)
	require.NoError(t, err)
	require.Equal(t, types.OpInsert, insert.Op)

	split, err := m.QueueStore(types.Row{"name": "lovelace"}, state)
	require.NoError(t, err)
	assert.Equal(t, types.OpSplit, split.Op)
	assert.Same(t, insert, split.First)
	assert.Equal(t, types.OpUpdate, split.Second.Op)
	assert.Same(t, split, state.Command)

	third, err := m.QueueStore(types.Row{"name": "byron"}, state)
	require.NoError(t, err)
	assert.Same(t, split, third, "a third store returns the same split unchanged")
}

func TestSplitUpdateWaitsForInsertKey(t *testing.T) {
	m := newMapper(t, nil)
	state := types.NewEntityState()

	insert, err := m.QueueStore(types.Row{"name": "ada"}, state)
	require.NoError(t, err)
	split, err := m.QueueStore(types.Row{"name": "lovelace"}, state)
	require.NoError(t, err)

	update := split.Second
	assert.False(t, update.Ready(), "update blocked until the insert's key arrives")
	assert.Equal(t, types.Row{"name": "lovelace"}, update.Payload)

	require.NoError(t, insert.Complete(int64(12)))
	assert.True(t, update.Ready())
	assert.Equal(t, int64(12), update.Scope["id"])
}

func TestSplitUpdateReadyWithGeneratedKey(t *testing.T) {
	m := newMapper(t, types.KeyFunc(func() (any, bool) { return "u-3", true }))
	state := types.NewEntityState()

	_, err := m.QueueStore(types.Row{"name": "ada"}, state)
	require.NoError(t, err)
	split, err := m.QueueStore(types.Row{"name": "lovelace"}, state)
	require.NoError(t, err)

	// The key was assigned up front, so the update's scope is already
	// known; ordering is still carried by the split.
	assert.True(t, split.Second.Ready())
	assert.Equal(t, "u-3", split.Second.Scope["id"])
}

func TestQueueUpdateNarrowsBaseline(t *testing.T) {
	// The baseline deliberately narrows to the changed subset (plus the
	// primary key); columns dropped from it re-qualify as changes on the
	// next diff.
	m := newMapper(t, nil)
	state := types.LoadedEntityState(types.Row{
		"id": int64(7), "name": "ada", "email": "ada@example.com",
	})
	entity := types.Row{"id": int64(7), "name": "lovelace", "email": "ada@example.com"}

	_, err := m.QueueStore(entity, state)
	require.NoError(t, err)

	assert.Equal(t, types.Row{"id": int64(7), "name": "lovelace"}, state.Data)
	assert.NotContains(t, state.Data, "email", "unchanged columns drop out of the baseline")
}

func TestQueueStoreFetchErrorLeavesStateUntouched(t *testing.T) {
	boom := errors.New("malformed entity")
	m, err := New(types.MapperConfig{
		Source:  userSource(),
		Fetcher: types.FetchFunc(func(any) (types.Row, error) { return nil, boom }),
	})
	require.NoError(t, err)

	state := types.NewEntityState()
	_, err = m.QueueStore(types.Row{}, state)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, types.StatusNew, state.Status)
	assert.Nil(t, state.Command)
}

func TestQueueStoreAppliesTypecast(t *testing.T) {
	m, err := New(types.MapperConfig{
		Source:  userSource(),
		Fetcher: rowFetcher,
		Cast: castFunc(func(columns types.Row, database string) (types.Row, error) {
			out := columns.Clone()
			if active, ok := out["active"].(bool); ok {
				out["active"] = boolToInt(active)
			}
			return out, nil
		}),
	})
	require.NoError(t, err)

	state := types.NewEntityState()
	cmd, err := m.QueueStore(types.Row{"name": "ada", "active": true}, state)
	require.NoError(t, err)
	assert.Equal(t, 1, cmd.Payload["active"], "cast applies before the command is built")
}

func TestQueueDelete(t *testing.T) {
	m := newMapper(t, nil)
	state := types.LoadedEntityState(types.Row{"id": int64(7), "name": "ada"})
	state.IncClaim()
	state.IncClaim()

	cmd, err := m.QueueDelete(types.Row{"id": int64(7)}, state)
	require.NoError(t, err)

	assert.Equal(t, types.OpDelete, cmd.Op)
	assert.Empty(t, cmd.Payload, "deletes carry no payload")
	assert.Equal(t, types.StatusScheduledDelete, state.Status)
	assert.Equal(t, 1, state.Claims)
	assert.True(t, cmd.Ready())
	assert.Equal(t, int64(7), cmd.Scope["id"])
}

func TestQueueDeletePendingKeyBlocks(t *testing.T) {
	m := newMapper(t, nil)
	state := types.NewEntityState()

	insert, err := m.QueueStore(types.Row{"name": "ada"}, state)
	require.NoError(t, err)
	del, err := m.QueueDelete(types.Row{"name": "ada"}, state)
	require.NoError(t, err)

	assert.False(t, del.Ready(), "delete stays blocked until the forward-linked key arrives")

	require.NoError(t, insert.Complete(int64(5)))
	assert.True(t, del.Ready())
	assert.Equal(t, int64(5), del.Scope["id"])
}

func TestEqualValueSemantics(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{name: "equal strings", a: "ada", b: "ada", want: true},
		{name: "equal ints", a: 7, b: 7, want: true},
		{name: "different ints", a: 7, b: 8, want: false},
		{name: "equal slices by value", a: []string{"x"}, b: []string{"x"}, want: true},
		{name: "nil vs zero", a: nil, b: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, equalValue(tt.a, tt.b))
		})
	}
}

// castFunc adapts a function to types.Typecast for tests.
type castFunc func(types.Row, string) (types.Row, error)

func (f castFunc) Cast(columns types.Row, database string) (types.Row, error) {
	return f(columns, database)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
