package pwm

import (
	"context"
)

// AsyncChip is the context-aware form of Chip. Obtain it from NewAsyncChip,
// AsyncChips or Chip.Async.
type AsyncChip struct {
	chip Chip
}

// AsyncChannel is the context-aware form of Channel. Obtain it from
// NewAsyncChannel, AsyncChip.Channel or Channel.Async.
type AsyncChannel struct {
	ch Channel
}

type result[T any] struct {
	v   T
	err error
	// panicked carries a panic from op back to the waiting goroutine.
	panicked any
}

func await[T any](ctx context.Context, op func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result[T]{panicked: p}
			}
		}()
		v, err := op()
		done <- result[T]{v: v, err: err}
	}()
	select {
	case r := <-done:
		if r.panicked != nil {
			panic(r.panicked)
		}
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func await0(ctx context.Context, op func() error) error {
	_, err := await(ctx, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

func NewAsyncChip(ctx context.Context, index uint32, opts ...Option) (AsyncChip, error) {
	sys := newSysfs(opts)
	c, err := await(ctx, func() (Chip, error) { return newChip(sys, index) })
	if err != nil {
		return AsyncChip{}, err
	}
	return AsyncChip{chip: c}, nil
}

func NewAsyncChannel(ctx context.Context, chip, channel uint32, opts ...Option) (AsyncChannel, error) {
	c, err := NewAsyncChip(ctx, chip, opts...)
	if err != nil {
		return AsyncChannel{}, err
	}
	return c.Channel(channel), nil
}

// Async wraps an existing Chip.
func (c Chip) Async() AsyncChip { return AsyncChip{chip: c} }

// Async wraps an existing Channel.
func (c Channel) Async() AsyncChannel { return AsyncChannel{ch: c} }

// Sync returns the blocking form of the chip.
func (c AsyncChip) Sync() Chip     { return c.chip }
func (c AsyncChip) Index() uint32  { return c.chip.index }
func (c AsyncChip) String() string { return c.chip.String() }

func (c AsyncChip) Channel(channel uint32) AsyncChannel {
	return AsyncChannel{ch: c.chip.Channel(channel)}
}

func (c AsyncChip) Count(ctx context.Context) (uint32, error) {
	return await(ctx, c.chip.Count)
}

func (c AsyncChip) Exported(ctx context.Context, channel uint32) (bool, error) {
	return await(ctx, func() (bool, error) { return c.chip.Exported(channel), nil })
}

func (c AsyncChip) Export(ctx context.Context, channel uint32) error {
	return await0(ctx, func() error { return c.chip.Export(channel) })
}

func (c AsyncChip) Unexport(ctx context.Context, channel uint32) error {
	return await0(ctx, func() error { return c.chip.Unexport(channel) })
}

// Sync returns the blocking form of the channel.
func (c AsyncChannel) Sync() Channel  { return c.ch }
func (c AsyncChannel) Index() uint32  { return c.ch.index }
func (c AsyncChannel) String() string { return c.ch.String() }

func (c AsyncChannel) Export(ctx context.Context) error {
	return await0(ctx, c.ch.Export)
}

func (c AsyncChannel) Unexport(ctx context.Context) error {
	return await0(ctx, c.ch.Unexport)
}

func (c AsyncChannel) Exported(ctx context.Context) (bool, error) {
	return await(ctx, func() (bool, error) { return c.ch.Exported(), nil })
}

// RunWhileExported exports the channel, runs body and unexports the channel
// once body has returned. The unexport ignores cancellation of ctx, so the
// line is released even when body stopped because ctx was canceled.
func (c AsyncChannel) RunWhileExported(ctx context.Context, body func(context.Context) error) error {
	_, err := WithExportedContext(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, body(ctx)
	})
	return err
}

// WithExportedContext is the context-aware form of WithExported.
//
// Export and unexport both run to completion once started: a cancellation
// that arrived mid-export would otherwise leave a line exported with nobody
// left to release it.
func WithExportedContext[T any](ctx context.Context, c AsyncChannel, body func(context.Context) (T, error)) (v T, err error) {
	if err := ctx.Err(); err != nil {
		return v, err
	}
	keep := context.WithoutCancel(ctx)
	if err := c.Export(keep); err != nil {
		return v, err
	}
	release := func() error {
		return c.Unexport(keep)
	}
	log := c.ch.chip.sys.log
	released := false
	defer func() {
		if released {
			return
		}
		if uerr := release(); uerr != nil {
			log.Warn("pwm unexport after panic failed", "channel", c.String(), "err", uerr)
		}
	}()

	v, err = body(ctx)
	released = true
	uerr := release()
	if uerr != nil {
		log.Warn("pwm unexport failed", "channel", c.String(), "err", uerr)
	}
	return v, releaseResult(err, uerr)
}

func (c AsyncChannel) Enable(ctx context.Context, enable bool) error {
	return await0(ctx, func() error { return c.ch.Enable(enable) })
}

func (c AsyncChannel) IsEnabled(ctx context.Context) (bool, error) {
	return await(ctx, c.ch.IsEnabled)
}

func (c AsyncChannel) PeriodNS(ctx context.Context) (uint64, error) {
	return await(ctx, c.ch.PeriodNS)
}

func (c AsyncChannel) SetPeriodNS(ctx context.Context, v uint64) error {
	return await0(ctx, func() error { return c.ch.SetPeriodNS(v) })
}

func (c AsyncChannel) DutyCycleNS(ctx context.Context) (uint64, error) {
	return await(ctx, c.ch.DutyCycleNS)
}

func (c AsyncChannel) SetDutyCycleNS(ctx context.Context, v uint64) error {
	return await0(ctx, func() error { return c.ch.SetDutyCycleNS(v) })
}

// DutyCycleFraction reads duty cycle and period one after the other, each
// read being its own suspension point.
func (c AsyncChannel) DutyCycleFraction(ctx context.Context) (float32, error) {
	duty, err := c.DutyCycleNS(ctx)
	if err != nil {
		return 0, err
	}
	period, err := c.PeriodNS(ctx)
	if err != nil {
		return 0, err
	}
	return dutyFraction(duty, period)
}

func (c AsyncChannel) SetDutyCycleFraction(ctx context.Context, fraction float32) error {
	if err := checkFraction(fraction); err != nil {
		return err
	}
	period, err := c.PeriodNS(ctx)
	if err != nil {
		return err
	}
	return c.SetDutyCycleNS(ctx, fractionToNS(fraction, period))
}

func (c AsyncChannel) Polarity(ctx context.Context) (Polarity, error) {
	return await(ctx, c.ch.Polarity)
}

func (c AsyncChannel) SetPolarity(ctx context.Context, p Polarity) error {
	return await0(ctx, func() error { return c.ch.SetPolarity(p) })
}

func (c AsyncChannel) Capture(ctx context.Context) (Capture, error) {
	return await(ctx, c.ch.Capture)
}

func (c AsyncChannel) Apply(ctx context.Context, s Settings) error {
	return await0(ctx, func() error { return c.ch.Apply(s) })
}

// AsyncChips is the context-aware form of Chips.
func AsyncChips(ctx context.Context, opts ...Option) ([]AsyncChip, error) {
	chips, err := await(ctx, func() ([]Chip, error) { return Chips(opts...) })
	if err != nil {
		return nil, err
	}
	out := make([]AsyncChip, len(chips))
	for i, c := range chips {
		out[i] = c.Async()
	}
	return out, nil
}
