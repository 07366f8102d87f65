package db

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullFloat(t *testing.T) {
	assert.Nil(t, nullFloat(sql.NullFloat64{}))
	v := nullFloat(sql.NullFloat64{Float64: 30.3153, Valid: true})
	require.NotNil(t, v)
	assert.Equal(t, 30.3153, *v)
}

// TestStoreLive runs against a real database when SIGNAGE_TEST_DSN is set.
func TestStoreLive(t *testing.T) {
	dsn := os.Getenv("SIGNAGE_TEST_DSN")
	if dsn == "" {
		t.Skip("SIGNAGE_TEST_DSN not set")
	}
	conn, err := Open(dsn)
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()
	require.NoError(t, Ping(ctx, conn))

	store := NewStore(conn)
	wps, err := store.ActiveWaypoints(ctx, "no-such-bus")
	require.NoError(t, err)
	assert.Empty(t, wps)

	bus, err := store.Bus(ctx, "no-such-bus")
	require.NoError(t, err)
	assert.Nil(t, bus)
}
