package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocID(t *testing.T) {
	ns, lesson, comp, err := ParseDocID("ns1-l1-comp1")
	require.NoError(t, err)
	assert.Equal(t, "ns1", ns)
	assert.Equal(t, "l1", lesson)
	assert.Equal(t, "comp1", comp)
}

func TestParseDocIDComponentKeepsDashes(t *testing.T) {
	ns, lesson, comp, err := ParseDocID("ns1-l1-editor-main-2")
	require.NoError(t, err)
	assert.Equal(t, "ns1", ns)
	assert.Equal(t, "l1", lesson)
	assert.Equal(t, "editor-main-2", comp)
}

func TestParseDocIDRoundTrip(t *testing.T) {
	id := DocID("a", "b", "c-d-e")
	ns, lesson, comp, err := ParseDocID(id)
	require.NoError(t, err)
	assert.Equal(t, "a", ns)
	assert.Equal(t, "b", lesson)
	assert.Equal(t, "c-d-e", comp)
}

func TestParseDocIDMalformed(t *testing.T) {
	for _, id := range []string{"", "ns1", "ns1-l1", "ns1-l1-", "-l1-comp", "ns1--comp"} {
		_, _, _, err := ParseDocID(id)
		assert.Error(t, err, "id %q", id)
	}
}
