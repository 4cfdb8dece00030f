package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestManager(t *testing.T) {
	m := NewManager(testSecret, "mailgov", time.Hour)

	t.Run("签发并验证", func(t *testing.T) {
		tok, err := m.Issue("ops")
		require.NoError(t, err)
		assert.Equal(t, "Bearer", tok.TokenType)

		claims, err := m.ValidateToken(tok.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "ops", claims.Operator)
		assert.Equal(t, "mailgov", claims.Issuer)
	})

	t.Run("空操作员", func(t *testing.T) {
		_, err := m.Issue("")
		assert.Error(t, err)
	})

	t.Run("过期", func(t *testing.T) {
		past := NewManager(testSecret, "mailgov", time.Minute)
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		tok, err := past.Issue("ops")
		require.NoError(t, err)

		_, err = m.ValidateToken(tok.AccessToken)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("错误的密钥或签发者", func(t *testing.T) {
		other := NewManager("another-secret-another-secret-xx", "mailgov", time.Hour)
		tok, err := other.Issue("ops")
		require.NoError(t, err)
		_, err = m.ValidateToken(tok.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)

		foreign := NewManager(testSecret, "someone-else", time.Hour)
		tok, err = foreign.Issue("ops")
		require.NoError(t, err)
		_, err = m.ValidateToken(tok.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("格式错误", func(t *testing.T) {
		_, err := m.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
