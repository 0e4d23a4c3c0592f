package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepApply(t *testing.T) {
	doc := &Doc{Text: "hello world"}

	t.Run("insert", func(t *testing.T) {
		out, err := Step{From: 5, To: 5, Text: ","}.Apply(doc)
		require.NoError(t, err)
		assert.Equal(t, "hello, world", out.Text)
		assert.Equal(t, "hello world", doc.Text, "input document must not change")
	})

	t.Run("delete", func(t *testing.T) {
		out, err := Step{From: 5, To: 11}.Apply(doc)
		require.NoError(t, err)
		assert.Equal(t, "hello", out.Text)
	})

	t.Run("replace", func(t *testing.T) {
		out, err := Step{From: 6, To: 11, Text: "there"}.Apply(doc)
		require.NoError(t, err)
		assert.Equal(t, "hello there", out.Text)
	})

	t.Run("multibyte runes", func(t *testing.T) {
		out, err := Step{From: 1, To: 2, Text: "ö"}.Apply(&Doc{Text: "héllo"})
		require.NoError(t, err)
		assert.Equal(t, "höllo", out.Text)
	})

	t.Run("out of bounds", func(t *testing.T) {
		_, err := Step{From: 5, To: 20}.Apply(doc)
		assert.Error(t, err)
		_, err = Step{From: -1, To: 0}.Apply(doc)
		assert.Error(t, err)
		_, err = Step{From: 4, To: 2}.Apply(doc)
		assert.Error(t, err)
	})
}

func TestStepMapBias(t *testing.T) {
	// Insert three runes at position 5.
	m := Step{From: 5, To: 5, Text: "abc"}.Map()

	assert.Equal(t, 3, m.Map(3, 1), "positions before the range are untouched")
	assert.Equal(t, 13, m.Map(10, 1), "positions after the range shift by inserted length")
	assert.Equal(t, 23, m.Map(20, -1))

	// Exactly on the insertion point the bias decides the side.
	assert.Equal(t, 5, m.Map(5, -1))
	assert.Equal(t, 8, m.Map(5, 1))
}

func TestStepMapDeletion(t *testing.T) {
	// Delete [4,9).
	m := Step{From: 4, To: 9}.Map()

	assert.Equal(t, 2, m.Map(2, 1))
	assert.Equal(t, 7, m.Map(12, 1), "positions after the deletion shrink")
	assert.Equal(t, 4, m.Map(6, -1), "positions inside collapse to the range start")
	assert.Equal(t, 4, m.Map(6, 1))
}

func TestMappingComposition(t *testing.T) {
	steps := []Step{
		{From: 0, To: 0, Text: "ab"}, // everything shifts by 2
		{From: 10, To: 12},           // delete two runes at 10
	}
	m := NewMapping(steps)
	require.Equal(t, 2, m.Len())

	// 5 -> 7 (insert) -> 7 (before deletion).
	assert.Equal(t, 7, m.Map(5, 1))
	// 12 -> 14 (insert) -> 12 (after deletion).
	assert.Equal(t, 12, m.Map(12, 1))
}

func TestMappingAppend(t *testing.T) {
	var m Mapping
	m.Append(Step{From: 0, To: 0, Text: "x"}.Map())
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 4, m.Map(3, 1))
}
