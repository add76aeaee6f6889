package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/mmrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParents(t *testing.T) *ParentRepository {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return NewParentRepository(backend)
}

func TestParentRepository_MergeAndGet(t *testing.T) {
	repo := newTestParents(t)
	ctx := context.Background()

	table := core.ContentElement{Type: core.ElementTable, TableHTML: "<table><tr><td>1</td></tr></table>", PageNumber: core.PageRef(2)}
	image := core.ContentElement{Type: core.ElementImage, Image: []byte{1, 2, 3}, ImageMIME: "image/png"}

	require.NoError(t, repo.MergeParents(ctx, "doc", map[string]core.ContentElement{"c1": table}))
	require.NoError(t, repo.MergeParents(ctx, "doc", map[string]core.ContentElement{"c2": image}))

	got, err := repo.GetParent(ctx, "doc", "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, table, *got)

	got, err = repo.GetParent(ctx, "doc", "c2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte{1, 2, 3}, got.Image)

	all, err := repo.LoadParents(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestParentRepository_MissingReturnsNil(t *testing.T) {
	repo := newTestParents(t)
	ctx := context.Background()

	got, err := repo.GetParent(ctx, "nowhere", "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.MergeParents(ctx, "doc", map[string]core.ContentElement{"c1": {Type: core.ElementText, Text: "x"}}))
	got, err = repo.GetParent(ctx, "doc", "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := repo.LoadParents(ctx, "nowhere")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestParentRepository_Delete(t *testing.T) {
	repo := newTestParents(t)
	ctx := context.Background()

	require.NoError(t, repo.MergeParents(ctx, "doc", map[string]core.ContentElement{"c1": {Type: core.ElementText, Text: "x"}}))
	require.NoError(t, repo.DeleteParents(ctx, "doc"))
	require.NoError(t, repo.DeleteParents(ctx, "doc"))

	got, err := repo.GetParent(ctx, "doc", "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParentRepository_ConcurrentMergesKeepAllEntries(t *testing.T) {
	repo := newTestParents(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			err := repo.MergeParents(ctx, "doc", map[string]core.ContentElement{id: {Type: core.ElementText, Text: id}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := repo.LoadParents(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
