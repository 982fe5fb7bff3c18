package idlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_Apply(t *testing.T) {
	t.Parallel()

	t.Run("Should add and remove ids", func(t *testing.T) {
		list := NewList("employees", "https://lists.example/employees", "file-1", 100)

		err := list.Apply([]byte("+c6c289e4\n+d92b69cf\n"))
		require.NoError(t, err)
		assert.True(t, list.Contains("c6c289e4"))
		assert.True(t, list.Contains("d92b69cf"))
		assert.Equal(t, 2, list.Size())

		err = list.Apply([]byte("-c6c289e4\n"))
		require.NoError(t, err)
		assert.False(t, list.Contains("c6c289e4"))
		assert.Equal(t, 1, list.Size())
	})

	t.Run("Should tolerate a missing trailing newline", func(t *testing.T) {
		list := NewList("l", "u", "f", 0)

		require.NoError(t, list.Apply([]byte("+2bd806c9")))
		assert.True(t, list.Contains("2bd806c9"))
	})

	t.Run("Should reject a line without an op prefix", func(t *testing.T) {
		list := NewList("l", "u", "f", 0)

		err := list.Apply([]byte("?c6c289e4\n"))
		assert.ErrorContains(t, err, "does not start with")
	})

	t.Run("Should reject a line of unexpected length", func(t *testing.T) {
		list := NewList("l", "u", "f", 0)

		err := list.Apply([]byte("+c6c2\n"))
		assert.ErrorContains(t, err, "unexpected line length")
	})

	t.Run("Removing an absent id is a no-op", func(t *testing.T) {
		list := NewList("l", "u", "f", 0)

		require.NoError(t, list.Apply([]byte("-81b637d8\n")))
		assert.Equal(t, 0, list.Size())
	})
}

func TestList_ReadBytes(t *testing.T) {
	t.Parallel()

	list := NewList("l", "u", "f", 0)
	list.AdvanceReadBytes(10)
	list.AdvanceReadBytes(5)

	_, _, _, readBytes := list.Meta()
	assert.Equal(t, int64(15), readBytes)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	assert.Nil(t, registry.Get("missing"))

	first := registry.Reset("employees", "url-1", "file-1", 100)
	require.NoError(t, first.Apply([]byte("+c6c289e4\n")))
	first.AdvanceReadBytes(10)

	// A generation change replaces the list: empty set, zero offset.
	second := registry.Reset("employees", "url-2", "file-2", 200)
	assert.NotSame(t, first, second)
	assert.Equal(t, 0, second.Size())

	url, fileID, creationTime, readBytes := second.Meta()
	assert.Equal(t, "url-2", url)
	assert.Equal(t, "file-2", fileID)
	assert.Equal(t, int64(200), creationTime)
	assert.Equal(t, int64(0), readBytes)

	registry.Remove("employees")
	assert.Nil(t, registry.Get("employees"))
	assert.Equal(t, 0, registry.Len())
}
