package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	ctx := context.Background()
	auth := newFakeAuthority(Granted)
	auth.statuses[Height] = Denied
	gw := New(newFakeStore(), auth)

	st, err := gw.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Available)
	assert.False(t, st.Initialized)
	assert.Equal(t, "fake", st.Store)
	assert.Equal(t, NotDetermined, st.Permissions[Steps])
	assert.False(t, gw.IsReady(ctx))

	_, _ = gw.Initialize(ctx)
	auth.statuses[Height] = Granted

	st, err = gw.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Initialized)
	assert.True(t, gw.IsReady(ctx))
}

func TestStatus_Unavailable(t *testing.T) {
	auth := newFakeAuthority(Granted)
	for _, k := range Kinds() {
		auth.statuses[k] = Granted
	}
	gw := New(nil, auth)

	st, err := gw.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Available)
	assert.False(t, st.Initialized)
	assert.Empty(t, st.Store)
}

func TestStatus_AuthorityFailure(t *testing.T) {
	auth := newFakeAuthority(Granted)
	auth.err = errors.New("offline")
	gw := New(newFakeStore(), auth)

	_, err := gw.Status(context.Background())
	assert.Error(t, err)
	assert.False(t, gw.IsReady(context.Background()))
}
