package task

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".task_history.json")
	r := NewRegistry(path, nil)
	t.Cleanup(r.Close)
	return r, path
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r, _ := newTestRegistry(t)

	created, err := r.Create(Source{Kind: SourceURL, Value: "https://example.com/v"}, "req-1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)
	require.Equal(t, 0, created.Progress)
	require.NotEmpty(t, created.ID)

	fetched, ok := r.Get(created.ID)
	require.True(t, ok)
	require.Equal(t, created.ID, fetched.ID)
}

func TestRegistry_UpdateIsMonotonicClamped(t *testing.T) {
	r, _ := newTestRegistry(t)
	created, err := r.Create(Source{Kind: SourceURL, Value: "https://example.com/v"}, "")
	require.NoError(t, err)

	updated, err := r.Update(created.ID, func(tk *Task) {
		tk.Progress = 150
		tk.Status = StatusProcessing
	})
	require.NoError(t, err)
	require.Equal(t, 100, updated.Progress)
	require.Equal(t, StatusProcessing, updated.Status)
}

func TestRegistry_UpdateUnknownID(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Update("does-not-exist", func(tk *Task) {})
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRegistry_GetReturnsIndependentClone(t *testing.T) {
	r, _ := newTestRegistry(t)
	created, err := r.Create(Source{Kind: SourceURL, Value: "https://example.com"}, "")
	require.NoError(t, err)

	snap, _ := r.Get(created.ID)
	snap.Status = StatusFailed // mutating the snapshot must not affect the registry

	again, _ := r.Get(created.ID)
	require.Equal(t, StatusPending, again.Status)
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	r, _ := newTestRegistry(t)
	first, err := r.Create(Source{Kind: SourceURL, Value: "a"}, "")
	require.NoError(t, err)
	second, err := r.Create(Source{Kind: SourceURL, Value: "b"}, "")
	require.NoError(t, err)
	// force distinguishable timestamps since CreatedAt granularity may tie
	_, err = r.Update(second.ID, func(tk *Task) { tk.CreatedAt = tk.CreatedAt.Add(1) })
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, first.ID, list[1].ID)
}

func TestRegistry_DeleteRemovesRecord(t *testing.T) {
	r, _ := newTestRegistry(t)
	created, err := r.Create(Source{Kind: SourceURL, Value: "a"}, "")
	require.NoError(t, err)

	deleted, found, err := r.Delete(created.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, created.ID, deleted.ID)

	_, found = r.Get(created.ID)
	require.False(t, found)
}

func TestRegistry_PersistsAtomicSnapshot(t *testing.T) {
	r, path := newTestRegistry(t)
	created, err := r.Create(Source{Kind: SourceURL, Value: "a"}, "")
	require.NoError(t, err)
	r.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var list []*Task
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 1)
	require.Equal(t, created.ID, list[0].ID)
}

func TestRegistry_RecoverOnBoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".task_history.json")
	r1 := NewRegistry(path, nil)
	_, err := r1.Create(Source{Kind: SourceURL, Value: "a"}, "")
	require.NoError(t, err)
	pending, err := r1.Create(Source{Kind: SourceURL, Value: "b"}, "")
	require.NoError(t, err)
	_, err = r1.Update(pending.ID, func(tk *Task) { tk.Status = StatusProcessing })
	require.NoError(t, err)
	r1.Close()

	r2 := NewRegistry(path, nil)
	defer r2.Close()
	n, err := r2.RecoverOnBoot()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, s := range r2.List() {
		require.NotEqual(t, StatusPending, s.Status)
		require.NotEqual(t, StatusProcessing, s.Status)
	}
}

func TestRegistry_ActiveIDsExcludesTerminal(t *testing.T) {
	r, _ := newTestRegistry(t)
	active, err := r.Create(Source{Kind: SourceURL, Value: "a"}, "")
	require.NoError(t, err)
	done, err := r.Create(Source{Kind: SourceURL, Value: "b"}, "")
	require.NoError(t, err)
	_, err = r.Update(done.ID, func(tk *Task) { tk.Status = StatusCompleted })
	require.NoError(t, err)

	ids := r.ActiveIDs()
	require.Contains(t, ids, active.ID)
	require.NotContains(t, ids, done.ID)
}
