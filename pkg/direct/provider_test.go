package direct

import (
	"context"
	"errors"
	"testing"

	"github.com/Sternrassler/kvpool/internal/testutil"
	"github.com/Sternrassler/kvpool/pkg/kverr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilDialer(t *testing.T) {
	_, err := New(nil, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, kverr.IsStage(err, kverr.StageClientConstruction))
}

func TestProvider_FreshConnectionPerAcquire(t *testing.T) {
	store := testutil.NewMockStore()
	p, err := New(store.Dialer(), zerolog.Nop())
	require.NoError(t, err)

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(first)

	second, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(second)

	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 2, store.DialCount())
	assert.Equal(t, 0, store.OpenConns(), "release must close the session")
}

func TestProvider_DialFailure(t *testing.T) {
	store := testutil.NewMockStore()
	dialErr := errors.New("connection refused")
	store.SetDialErr(dialErr)

	p, err := New(store.Dialer(), zerolog.Nop())
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dialErr)
	assert.True(t, kverr.IsStage(err, kverr.StageClientConstruction))
	assert.Equal(t, 0, store.DialCount())
}

func TestProvider_ReleaseNil(t *testing.T) {
	p, err := New(testutil.NewMockStore().Dialer(), zerolog.Nop())
	require.NoError(t, err)
	p.Release(nil)
}
