package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDevice struct {
	openErr error
	reads   atomic.Int64
	closes  atomic.Int64
}

func (d *failingDevice) Open(context.Context) error { return d.openErr }

func (d *failingDevice) Read() (*image.RGBA, error) {
	d.reads.Add(1)
	return nil, errors.New("no signal")
}

func (d *failingDevice) Close() error {
	d.closes.Add(1)
	return nil
}

type countingObserver struct {
	captured atomic.Int64
	failed   atomic.Int64
}

func (o *countingObserver) FrameCaptured() { o.captured.Add(1) }
func (o *countingObserver) CaptureFailed() { o.failed.Add(1) }

func fastOptions() Options {
	return Options{Name: "test", RetryDelay: time.Millisecond, StopTimeout: time.Second}
}

func TestLatestIsNilBeforeStart(t *testing.T) {
	src := NewSource(NewPatternDevice(8, 8, color.RGBA{A: 255}), fastOptions(), nil)
	assert.Nil(t, src.Latest())
}

func TestStartPublishesFrames(t *testing.T) {
	dev := NewPatternDevice(16, 12, color.RGBA{G: 200, A: 255})
	dev.Interval = time.Millisecond
	obs := &countingObserver{}
	opts := fastOptions()
	opts.Observer = obs

	src := NewSource(dev, opts, nil)
	require.NoError(t, src.Start(context.Background()))
	t.Cleanup(func() { _ = src.Stop() })

	require.Eventually(t, func() bool { return src.Latest() != nil }, time.Second, time.Millisecond)

	frame := src.Latest()
	assert.Equal(t, 16, frame.Width())
	assert.Equal(t, 12, frame.Height())
	assert.Positive(t, obs.captured.Load())
}

func TestLatestNeverGoesBackwards(t *testing.T) {
	dev := NewPatternDevice(4, 4, color.RGBA{A: 255})
	dev.Interval = 0

	src := NewSource(dev, fastOptions(), nil)
	require.NoError(t, src.Start(context.Background()))
	t.Cleanup(func() { _ = src.Stop() })

	require.Eventually(t, func() bool { return src.Latest() != nil }, time.Second, time.Millisecond)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for i := 0; i < 500; i++ {
				f := src.Latest()
				if !assert.NotNil(t, f) {
					return
				}
				assert.GreaterOrEqual(t, f.Seq, last)
				assert.Equal(t, 4*4*4, len(f.Image.Pix))
				last = f.Seq
			}
		}()
	}
	wg.Wait()
}

func TestLatestDoesNotBlockWhileDeviceStalls(t *testing.T) {
	src := NewSource(&failingDevice{}, fastOptions(), nil)
	require.NoError(t, src.Start(context.Background()))
	t.Cleanup(func() { _ = src.Stop() })

	start := time.Now()
	for i := 0; i < 1000; i++ {
		assert.Nil(t, src.Latest())
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestStartReportsDeviceError(t *testing.T) {
	cause := errors.New("no such device")
	src := NewSource(&failingDevice{openErr: cause}, fastOptions(), nil)

	err := src.Start(context.Background())
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "test", devErr.Device)
	assert.False(t, src.Running())
}

func TestStartIsIdempotent(t *testing.T) {
	dev := NewPatternDevice(4, 4, color.RGBA{A: 255})
	src := NewSource(dev, fastOptions(), nil)

	require.NoError(t, src.Start(context.Background()))
	require.NoError(t, src.Start(context.Background()))
	t.Cleanup(func() { _ = src.Stop() })

	dev.mu.Lock()
	opens := dev.opens
	dev.mu.Unlock()
	assert.Equal(t, 1, opens)
}

func TestStopTwiceReleasesOnce(t *testing.T) {
	dev := &failingDevice{}
	src := NewSource(dev, fastOptions(), nil)
	require.NoError(t, src.Start(context.Background()))

	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())
	assert.Equal(t, int64(1), dev.closes.Load())
	assert.False(t, src.Running())
}

func TestStopWithoutStart(t *testing.T) {
	dev := NewPatternDevice(4, 4, color.RGBA{A: 255})
	src := NewSource(dev, fastOptions(), nil)
	require.NoError(t, src.Stop())
	assert.Zero(t, dev.Closes())
}

func TestEscalatesOncePerFailureStreak(t *testing.T) {
	var calls atomic.Int64
	obs := &countingObserver{}
	opts := fastOptions()
	opts.EscalateAfter = 3
	opts.Observer = obs
	opts.OnEscalate = func(err error, failures int) {
		calls.Add(1)
		assert.Equal(t, 3, failures)
	}

	dev := &failingDevice{}
	src := NewSource(dev, opts, nil)
	require.NoError(t, src.Start(context.Background()))

	require.Eventually(t, func() bool { return dev.reads.Load() > 10 }, time.Second, time.Millisecond)
	require.NoError(t, src.Stop())

	assert.Equal(t, int64(1), calls.Load())
	assert.Positive(t, obs.failed.Load())
	assert.Nil(t, src.Latest())
}
