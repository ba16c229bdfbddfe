package conc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/hardware"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

func TestPool(t *testing.T) {
	pool := NewDefaultPool[int]()
	defer pool.Release()
	assert.Equal(t, hardware.GetCPUNum(), pool.Cap())

	futures := make([]*Future[int], 0, 16)
	for i := 0; i < 16; i++ {
		futures = append(futures, pool.Submit(func() (int, error) { return i * i, nil }))
	}
	require.NoError(t, AwaitAll(futures...))
	for i, f := range futures {
		assert.Equal(t, i*i, f.Value())
	}

	errBoom := errors.New("boom")
	f := pool.Submit(func() (int, error) { return 0, errBoom })
	_, err := f.Await()
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, f.OK())
	assert.ErrorIs(t, AwaitAll(futures[0], f), errBoom)

	require.NoError(t, pool.Resize(2))
	assert.Equal(t, 2, pool.Cap())
	assert.ErrorIs(t, pool.Resize(0), merr.ErrParameterInvalid)
}

func TestPoolOptions(t *testing.T) {
	called := 0
	pool := NewPool[string](1, WithPreAlloc(true), WithPreHandler(func() { called++ }), WithExpiryDuration(0))
	defer pool.Release()

	v, err := pool.Submit(func() (string, error) { return "ok", nil }).Await()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, called)
	assert.ErrorIs(t, pool.Resize(4), merr.ErrServiceInternal)
}

func TestGo(t *testing.T) {
	f := Go(func() (int, error) { return 7, nil })
	<-f.Done()
	assert.Equal(t, 7, f.Value())
	assert.NoError(t, f.Err())
}

func TestPoolConcealPanic(t *testing.T) {
	pool := NewPool[int](1, WithConcealPanic(true))
	defer pool.Release()

	_, err := pool.Submit(func() (int, error) { panic("bad task") }).Await()
	assert.ErrorIs(t, err, merr.ErrServiceInternal)

	v, err := pool.Submit(func() (int, error) { return 1, nil }).Await()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
