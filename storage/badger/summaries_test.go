package badger

import (
	"context"
	"testing"

	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryRepository(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	repo := NewSummaryRepository(backend)
	ctx := context.Background()

	_, err = repo.LoadSummaries(ctx, "doc")
	require.ErrorIs(t, err, storage.ErrNotFound)

	set := &core.SummarySet{DocID: "doc", Texts: []string{"a", "b"}, Tables: []string{"t"}, Images: []string{}}
	require.NoError(t, repo.SaveSummaries(ctx, set))
	assert.False(t, set.CreatedAt.IsZero())

	got, err := repo.LoadSummaries(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Texts)
	assert.Equal(t, []string{"t"}, got.Tables)

	require.NoError(t, repo.DeleteSummaries(ctx, "doc"))
	_, err = repo.LoadSummaries(ctx, "doc")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, repo.SaveSummaries(ctx, &core.SummarySet{}), core.ErrEmptyID)
}
