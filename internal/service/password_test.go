package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPasswordGenerator(t *testing.T) {
	gen := NewPasswordGenerator(DefaultPasswordLength)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		pw, err := gen()
		require.NoError(t, err)
		assert.Len(t, pw, DefaultPasswordLength)
		assert.True(t, strings.ContainsAny(pw, passwordDigits), "no digit in %q", pw)
		assert.Empty(t, strings.Trim(pw, passwordLetters+passwordDigits), "unexpected characters in %q", pw)
		seen[pw] = true
	}
	assert.Greater(t, len(seen), 190)

	t.Run("长度过小时使用默认值", func(t *testing.T) {
		pw, err := NewPasswordGenerator(1)()
		require.NoError(t, err)
		assert.Len(t, pw, DefaultPasswordLength)
	})
}
