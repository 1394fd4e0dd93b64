package pwm

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAsyncChannel_MissingChip(t *testing.T) {
	k := newFakeKernel(t)

	_, err := NewAsyncChannel(context.Background(), 4, 0, k.opts()...)
	assert.True(t, IsNotFound(err), "err=%v", err)
}

func TestAsyncChip_CountAndExport(t *testing.T) {
	ctx := context.Background()
	k := newFakeKernel(t)
	k.addChip(t, 0, 2)

	c, err := NewAsyncChip(ctx, 0, k.opts()...)
	require.NoError(t, err)
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)

	require.NoError(t, c.Export(ctx, 1))
	require.NoError(t, c.Export(ctx, 1))
	ok, err := c.Exported(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Unexport(ctx, 1))
	require.NoError(t, c.Unexport(ctx, 1))
	assert.False(t, k.exported(0, 1))
}

func TestAsyncChannel_Accessors(t *testing.T) {
	ctx := context.Background()
	k := newFakeKernel(t)
	k.addChip(t, 0, 2)
	ch, err := NewAsyncChannel(ctx, 0, 0, k.opts()...)
	require.NoError(t, err)

	err = ch.RunWhileExported(ctx, func(ctx context.Context) error {
		require.NoError(t, ch.SetPeriodNS(ctx, 20000))
		require.NoError(t, ch.SetDutyCycleFraction(ctx, 0.25))
		duty, err := ch.DutyCycleNS(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(5000), duty)

		f, err := ch.DutyCycleFraction(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 0.25, f, 1e-6)

		require.NoError(t, ch.SetPolarity(ctx, Inverse))
		p, err := ch.Polarity(ctx)
		require.NoError(t, err)
		assert.Equal(t, Inverse, p)

		require.NoError(t, ch.Enable(ctx, true))
		on, err := ch.IsEnabled(ctx)
		require.NoError(t, err)
		assert.True(t, on)

		k.setAttr(t, 0, 0, "capture", "1000 500\n")
		capt, err := ch.Capture(ctx)
		require.NoError(t, err)
		assert.Equal(t, Capture{PeriodNS: 1000, DutyCycleNS: 500}, capt)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, k.exported(0, 0))
}

func TestAsyncChannel_CanceledContextSkipsIO(t *testing.T) {
	k := newFakeKernel(t)
	k.addChip(t, 0, 2)
	ch, err := NewAsyncChannel(context.Background(), 0, 0, k.opts()...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	before := len(k.touchedFiles())

	assert.ErrorIs(t, ch.Export(ctx), context.Canceled)
	_, err = ch.PeriodNS(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, k.touchedFiles(), before)
	assert.False(t, k.exported(0, 0))
}

func TestAsyncRunWhileExported_ReleasesAfterCancel(t *testing.T) {
	k := newFakeKernel(t)
	k.addChip(t, 0, 2)
	ch, err := NewAsyncChannel(context.Background(), 0, 0, k.opts()...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = ch.RunWhileExported(ctx, func(ctx context.Context) error {
		assert.True(t, k.exported(0, 0))
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, k.exported(0, 0), "channel must be released after cancellation")
}

func TestAsyncRunWhileExported_DoubleFailureIsCompound(t *testing.T) {
	k := newFakeKernel(t)
	k.addChip(t, 0, 2)
	k.failUnexport = syscall.EIO
	ch, err := NewAsyncChannel(context.Background(), 0, 0, k.opts()...)
	require.NoError(t, err)
	workErr := errors.New("work failed")

	err = ch.RunWhileExported(context.Background(), func(context.Context) error { return workErr })

	var cerr *CompoundError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, workErr)
	assert.ErrorIs(t, err, syscall.EIO)
}

func TestAsyncRunWhileExported_WorkErrorPropagated(t *testing.T) {
	k := newFakeKernel(t)
	k.addChip(t, 0, 2)
	ch, err := NewAsyncChannel(context.Background(), 0, 0, k.opts()...)
	require.NoError(t, err)
	workErr := errors.New("work failed")

	err = ch.RunWhileExported(context.Background(), func(context.Context) error { return workErr })
	assert.Same(t, workErr, err)
	assert.False(t, k.exported(0, 0))
}

func TestAsyncRunWhileExported_CanceledBeforeStart(t *testing.T) {
	k := newFakeKernel(t)
	k.addChip(t, 0, 2)
	ch, err := NewAsyncChannel(context.Background(), 0, 0, k.opts()...)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err = ch.RunWhileExported(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Empty(t, k.writeLog())
}

func TestWithExportedContext_ReturnsValue(t *testing.T) {
	k := newFakeKernel(t)
	k.addChip(t, 0, 2)
	ch, err := NewAsyncChannel(context.Background(), 0, 1, k.opts()...)
	require.NoError(t, err)

	on, err := WithExportedContext(context.Background(), ch, func(ctx context.Context) (bool, error) {
		if err := ch.SetPeriodNS(ctx, 1000); err != nil {
			return false, err
		}
		if err := ch.Enable(ctx, true); err != nil {
			return false, err
		}
		return ch.IsEnabled(ctx)
	})
	require.NoError(t, err)
	assert.True(t, on)
	assert.False(t, k.exported(0, 1))
}

func TestAsyncChannel_PanicReachesCaller(t *testing.T) {
	k := newFakeKernel(t)
	k.addChip(t, 0, 2)
	ch, err := NewAsyncChannel(context.Background(), 0, 0, k.opts()...)
	require.NoError(t, err)
	require.NoError(t, ch.Export(context.Background()))
	k.setAttr(t, 0, 0, "enable", "3\n")

	assert.Panics(t, func() { _, _ = ch.IsEnabled(context.Background()) })
}

func TestAsyncChips(t *testing.T) {
	k := newFakeKernel(t)
	k.addChip(t, 1, 1)
	k.addChip(t, 0, 2)

	chips, err := AsyncChips(context.Background(), k.opts()...)
	require.NoError(t, err)
	require.Len(t, chips, 2)
	assert.Equal(t, uint32(0), chips[0].Index())
	assert.Equal(t, "pwmchip1", chips[1].String())
}

func TestAsync_SyncRoundTrip(t *testing.T) {
	ctx := context.Background()
	k := newFakeKernel(t)
	k.addChip(t, 0, 2)
	c, err := NewAsyncChip(ctx, 0, k.opts()...)
	require.NoError(t, err)

	chip := c.Sync()
	assert.Equal(t, "pwmchip0", chip.String())
	assert.Equal(t, c.Index(), chip.Index())

	ch := c.Channel(1)
	sync := ch.Sync()
	assert.Equal(t, "pwmchip0/pwm1", sync.String())
	assert.Equal(t, ch, sync.Async())

	// Work done through the blocking form is visible to the async one.
	require.NoError(t, sync.Export())
	ok, err := ch.Exported(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, ch.Unexport(ctx))
	assert.False(t, sync.Exported())
}
