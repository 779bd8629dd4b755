// internal/auth/sessions_test.go
package auth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot-metrics-service/internal/model"
)

func TestSessions(t *testing.T) {
	identity := model.Identity{Login: "smith", Email: "smith@example.com"}
	user := json.RawMessage(`{"login": "smith"}`)

	t.Run("create and look up", func(t *testing.T) {
		s := NewSessions(time.Hour)

		id, err := s.Create("token-1", identity, user)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		sess, ok := s.Get(id)
		require.True(t, ok)
		assert.Equal(t, "token-1", sess.Token)
		assert.Equal(t, identity, sess.Identity)
	})

	t.Run("unknown id", func(t *testing.T) {
		s := NewSessions(time.Hour)
		_, ok := s.Get("missing")
		assert.False(t, ok)
	})

	t.Run("expired sessions are dropped", func(t *testing.T) {
		s := NewSessions(time.Millisecond)

		id, err := s.Create("token-1", identity, user)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		_, ok := s.Get(id)
		assert.False(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		s := NewSessions(time.Hour)

		id, err := s.Create("token-1", identity, user)
		require.NoError(t, err)
		s.Delete(id)

		_, ok := s.Get(id)
		assert.False(t, ok)
	})

	t.Run("ids are unique", func(t *testing.T) {
		s := NewSessions(time.Hour)
		a, err := s.Create("t", identity, user)
		require.NoError(t, err)
		b, err := s.Create("t", identity, user)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestRandomID(t *testing.T) {
	a, err := RandomID()
	require.NoError(t, err)
	assert.Len(t, a, 32)

	b, err := RandomID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOAuth_AuthCodeURL(t *testing.T) {
	o := NewOAuth("client-id", "secret", "http://localhost:3000/auth/callback")

	url := o.AuthCodeURL("state-123")

	assert.Contains(t, url, "github.com/login/oauth/authorize")
	assert.Contains(t, url, "client_id=client-id")
	assert.Contains(t, url, "state=state-123")
	assert.Contains(t, url, "repo")
}
