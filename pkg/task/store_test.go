package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordermesh/ordermesh/pkg/a2a"
)

// storeUnderTest runs the same contract suite against every Store
// implementation.
func storeUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	sqlStore, err := NewSQLStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlStore,
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			created, err := store.Create(ctx, "ctx-1")
			require.NoError(t, err)
			assert.NotEmpty(t, created.ID)
			assert.Equal(t, a2a.TaskStateSubmitted, created.Status.State)
			assert.Equal(t, "ctx-1", created.ContextID)

			got, err := store.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
		})
	}
}

func TestStoreGetUnknown(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreTransitionEnforcesStateMachine(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			created, err := store.Create(ctx, "")
			require.NoError(t, err)

			// submitted -> completed is illegal.
			_, err = store.Transition(ctx, created.ID, a2a.TaskStateCompleted, "", nil)
			assert.ErrorIs(t, err, ErrTerminal)

			working, err := store.Transition(ctx, created.ID, a2a.TaskStateWorking, "", nil)
			require.NoError(t, err)
			assert.Equal(t, a2a.TaskStateWorking, working.Status.State)

			done, err := store.Transition(ctx, created.ID, a2a.TaskStateCompleted, "", nil)
			require.NoError(t, err)
			assert.Equal(t, a2a.TaskStateCompleted, done.Status.State)

			// Terminal states admit nothing further.
			_, err = store.Transition(ctx, created.ID, a2a.TaskStateWorking, "", nil)
			assert.ErrorIs(t, err, ErrTerminal)
		})
	}
}

func TestStoreTransitionAppliesMutation(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			created, err := store.Create(ctx, "")
			require.NoError(t, err)

			got, err := store.Transition(ctx, created.ID, a2a.TaskStateWorking, "", func(tk *a2a.Task) {
				tk.History = append(tk.History, a2a.NewUserMessage("hi"))
			})
			require.NoError(t, err)
			require.Len(t, got.History, 1)
			assert.Equal(t, "hi", a2a.ExtractText(got.History[0]))
		})
	}
}

func TestStoreHistoryAndArtifacts(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			created, err := store.Create(ctx, "")
			require.NoError(t, err)

			require.NoError(t, store.AppendMessage(ctx, created.ID, a2a.NewUserMessage("one")))
			require.NoError(t, store.AppendMessage(ctx, created.ID, a2a.NewUserMessage("two")))

			require.NoError(t, store.AppendArtifact(ctx, created.ID, a2a.Artifact{
				Name:  "result",
				Parts: []a2a.Part{a2a.TextPart("x")},
			}))
			require.NoError(t, store.AppendArtifact(ctx, created.ID, a2a.Artifact{
				Name:  "result2",
				Parts: []a2a.Part{a2a.TextPart("y")},
			}))

			got, err := store.Get(ctx, created.ID)
			require.NoError(t, err)
			require.Len(t, got.History, 2)
			assert.Equal(t, "one", a2a.ExtractText(got.History[0]))
			require.Len(t, got.Artifacts, 2)
			assert.Equal(t, 0, got.Artifacts[0].Index)
			assert.Equal(t, 1, got.Artifacts[1].Index)
		})
	}
}

func TestStoreListByContext(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Create(ctx, "ctx-a")
			require.NoError(t, err)
			_, err = store.Create(ctx, "ctx-a")
			require.NoError(t, err)
			_, err = store.Create(ctx, "ctx-b")
			require.NoError(t, err)

			got, err := store.List(ctx, "ctx-a")
			require.NoError(t, err)
			assert.Len(t, got, 2)
		})
	}
}

func TestMemoryStoreSnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.Create(ctx, "")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, created.ID, a2a.NewUserMessage("hi")))

	snap, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	snap.History[0] = a2a.NewUserMessage("mutated")
	snap.History = append(snap.History, a2a.NewUserMessage("extra"))
	snap.Status.State = a2a.TaskStateFailed

	again, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, again.History, 1)
	assert.Equal(t, "hi", a2a.ExtractText(again.History[0]))
	assert.Equal(t, a2a.TaskStateSubmitted, again.Status.State)
}
