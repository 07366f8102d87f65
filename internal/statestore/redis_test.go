package statestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-signage/internal/fleet"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "signage:announce:UK07-1234", Key("UK07-1234"))
}

func TestDecode(t *testing.T) {
	t.Run("missing hash", func(t *testing.T) {
		_, ok, err := decode([]interface{}{nil, nil, nil})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("stored state", func(t *testing.T) {
		st, ok, err := decode([]interface{}{[]byte("ISBT"), []byte("REACHED"), []byte("1772355600000")})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fleet.AnnouncementState{Name: "ISBT", Stage: fleet.StageReached, Timestamp: 1772355600000}, st)
	})

	t.Run("corrupt timestamp", func(t *testing.T) {
		_, _, err := decode([]interface{}{[]byte("ISBT"), []byte("REACHED"), []byte("soon")})
		assert.Error(t, err)
	})
}
