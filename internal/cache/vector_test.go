package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexNearest(t *testing.T) {
	t.Parallel()

	t.Run("empty index", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex()
		_, _, ok := ix.Nearest([]float32{1, 0})
		assert.False(t, ok)
	})

	t.Run("exact cosine from 3-4-5 triangle", func(t *testing.T) {
		t.Parallel()
		// dot([1,0],[3,4]) = 3, |a| = 1, |b| = 5: similarity is exactly 3/5.
		ix := NewIndex()
		ix.Upsert("fp-a", []float32{3, 4})

		fp, sim, ok := ix.Nearest([]float32{1, 0})
		require.True(t, ok)
		assert.Equal(t, "fp-a", fp)
		assert.Equal(t, 0.6, sim)
		assert.GreaterOrEqual(t, sim, 0.6)
	})

	t.Run("picks highest similarity", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex()
		ix.Upsert("far", []float32{0, 1})
		ix.Upsert("near", []float32{1, 0.01})
		ix.Upsert("mid", []float32{1, 1})

		fp, sim, ok := ix.Nearest([]float32{1, 0})
		require.True(t, ok)
		assert.Equal(t, "near", fp)
		assert.Greater(t, sim, 0.99)
	})

	t.Run("dimension mismatch skipped", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex()
		ix.Upsert("threedim", []float32{1, 0, 0})
		_, _, ok := ix.Nearest([]float32{1, 0})
		assert.False(t, ok)
	})

	t.Run("zero vectors skipped", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex()
		ix.Upsert("zero", []float32{0, 0})
		_, _, ok := ix.Nearest([]float32{1, 0})
		assert.False(t, ok)
	})
}

func TestIndexMutation(t *testing.T) {
	t.Parallel()

	t.Run("upsert replaces", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex()
		ix.Upsert("fp", []float32{0, 1})
		ix.Upsert("fp", []float32{1, 0})
		assert.Equal(t, 1, ix.Len())

		fp, sim, ok := ix.Nearest([]float32{1, 0})
		require.True(t, ok)
		assert.Equal(t, "fp", fp)
		assert.Greater(t, sim, 0.999)
	})

	t.Run("remove", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex()
		ix.Upsert("fp", []float32{1, 0})
		ix.Remove("fp")
		assert.Equal(t, 0, ix.Len())
		_, _, ok := ix.Nearest([]float32{1, 0})
		assert.False(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex()
		ix.Upsert("a", []float32{1, 0})
		ix.Upsert("b", []float32{0, 1})
		ix.Clear()
		assert.Equal(t, 0, ix.Len())
	})

	t.Run("insert copies the vector", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex()
		vec := []float32{1, 0}
		ix.Upsert("fp", vec)
		vec[0] = 0
		vec[1] = 1

		_, sim, ok := ix.Nearest([]float32{1, 0})
		require.True(t, ok)
		assert.Greater(t, sim, 0.999)
	})

	t.Run("empty vector ignored", func(t *testing.T) {
		t.Parallel()
		ix := NewIndex()
		ix.Upsert("fp", nil)
		assert.Equal(t, 0, ix.Len())
	})
}
