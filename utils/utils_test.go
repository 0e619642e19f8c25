package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code1, err := GenerateCode(4)
	require.NoError(t, err)
	code2, err := GenerateCode(4)
	require.NoError(t, err)

	// Should generate different codes
	assert.NotEqual(t, code1, code2)

	// 4 random bytes encode to 8 hex characters
	assert.Len(t, code1, 8)

	// Hex encoding is uppercased for readability
	assert.Equal(t, strings.ToUpper(code1), code1)
}

func TestGenerateCode_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateCode(8)
		require.NoError(t, err)
		assert.False(t, seen[code], "duplicate code generated: %s", code)
		seen[code] = true
	}
}
