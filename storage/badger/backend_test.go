package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mmrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := t.TempDir() + "/nested/db"
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.View(context.Background(), func(tx *badger.Txn) error { return nil })
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestUpdate(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		err := backend.Update(ctx, func(tx *badger.Txn) error {
			return tx.Set([]byte("k"), []byte("v"))
		})
		require.NoError(t, err)

		err = backend.View(ctx, func(tx *badger.Txn) error {
			_, err := tx.Get([]byte("k"))
			return err
		})
		require.NoError(t, err)
	})

	t.Run("discards on error", func(t *testing.T) {
		err := backend.Update(ctx, func(tx *badger.Txn) error {
			if err := tx.Set([]byte("gone"), []byte("v")); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.Equal(t, assert.AnError, err)

		err = backend.View(ctx, func(tx *badger.Txn) error {
			_, err := tx.Get([]byte("gone"))
			return err
		})
		assert.ErrorIs(t, err, badger.ErrKeyNotFound)
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := backend.Update(cctx, func(tx *badger.Txn) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDeletePrefix(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	err = backend.Update(ctx, func(tx *badger.Txn) error {
		for i := range 25 {
			if err := tx.Set([]byte(fmt.Sprintf("a:%02d", i)), []byte("x")); err != nil {
				return err
			}
		}
		return tx.Set([]byte("b:keep"), []byte("x"))
	})
	require.NoError(t, err)

	n, err := backend.DeletePrefix(ctx, []byte("a:"))
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	n, err = backend.DeletePrefix(ctx, []byte("a:"))
	require.NoError(t, err)
	assert.Zero(t, n)

	err = backend.View(ctx, func(tx *badger.Txn) error {
		_, err := tx.Get([]byte("b:keep"))
		return err
	})
	require.NoError(t, err)
}

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected []float32
	}{
		{"unit vector remains unchanged", []float32{1, 0, 0}, []float32{1, 0, 0}},
		{"scale non-unit vector", []float32{3, 4}, []float32{0.6, 0.8}},
		{"zero vector stays zero", []float32{0, 0, 0}, []float32{0, 0, 0}},
		{"empty vector", []float32{}, []float32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizeVector(tt.input)
			require.Len(t, result, len(tt.expected))
			for i := range result {
				assert.InDelta(t, tt.expected[i], result[i], 1e-6, "element %d", i)
			}
		})
	}
}

func TestDotProduct(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float32
	}{
		{"identical vectors", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal vectors", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite vectors", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1},
		{"general case", []float32{0.6, 0.8}, []float32{0.8, 0.6}, 0.96},
		{"different lengths - use min", []float32{1, 2, 3}, []float32{1, 2}, 5},
		{"empty vectors", []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, dotProduct(tt.a, tt.b), 0.0001)
		})
	}
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, cosineDistance([]float32{1, 0}, []float32{1, 0}), 1e-6)
	assert.InDelta(t, 1.0, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, 2.0, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-6)
}
