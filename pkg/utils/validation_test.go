package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	for _, email := range []string{"a@b.io", "first.last@example.co.uk", "x+tag@sub.domain.org"} {
		assert.NoError(t, ValidateEmail(email), email)
	}
	for _, email := range []string{"", "plain", "a@b", "a b@c.io", "@x.io", "a@.io "} {
		assert.Error(t, ValidateEmail(email), email)
	}
}

func TestValidateTitlePart(t *testing.T) {
	assert.NoError(t, ValidateTitlePart("physics"))
	assert.NoError(t, ValidateTitlePart("Week 3 - Optics"))
	assert.NoError(t, ValidateTitlePart("  padded  "))

	assert.Error(t, ValidateTitlePart(""))
	assert.Error(t, ValidateTitlePart("   "))
	assert.Error(t, ValidateTitlePart("a/b"))
	assert.Error(t, ValidateTitlePart(strings.Repeat("x", 256)))
}

func TestValidateChatName(t *testing.T) {
	assert.NoError(t, ValidateChatName("general"))
	assert.NoError(t, ValidateChatName("group 1"))

	assert.Error(t, ValidateChatName(""))
	assert.Error(t, ValidateChatName("room:chat"))
	assert.Error(t, ValidateChatName(strings.Repeat("x", 256)))
}
