// Package camera owns the capture device and publishes the most recent frame.
//
// The capture goroutine overwrites a single latest-frame slot (last frame wins).
// Readers never wait and never queue: a reader sees either nil (nothing captured
// yet) or the newest complete frame. Staleness is bounded by one capture
// interval plus whatever time the reader spends on the frame.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
)

// Device is the capture backend capability.
type Device interface {
	Open(ctx context.Context) error
	// Read blocks until the next frame is decoded. The returned image must not be
	// reused by the device: it is published to readers as-is.
	Read() (*image.RGBA, error)
	Close() error
}

// DeviceError reports that the capture device could not be opened.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture device %s unavailable: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// ErrEmptyFrame is returned by devices that read a zero-sized image.
var ErrEmptyFrame = errors.New("empty frame")

// Observer receives capture events, typically a metrics recorder.
type Observer interface {
	FrameCaptured()
	CaptureFailed()
}

// Options tune the capture loop.
type Options struct {
	Name string
	// RetryDelay is the pause after a failed read.
	RetryDelay time.Duration
	// StopTimeout bounds how long Stop waits for the capture goroutine.
	StopTimeout time.Duration
	// EscalateAfter consecutive failures trigger OnEscalate once per failure streak.
	// Zero disables escalation.
	EscalateAfter int
	OnEscalate    func(err error, failures int)
	Observer      Observer
}

// DefaultOptions mirrors the capture cadence of a USB webcam.
func DefaultOptions() Options {
	return Options{
		Name:          "camera",
		RetryDelay:    100 * time.Millisecond,
		StopTimeout:   3 * time.Second,
		EscalateAfter: 50,
	}
}

// Source runs the continuous capture task.
type Source struct {
	device Device
	opts   Options
	logger *zap.Logger

	latest atomic.Pointer[models.Frame]
	seq    atomic.Uint64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	opened  bool
}

// NewSource wires a capture source around a device.
func NewSource(device Device, opts Options, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultOptions()
	if opts.Name == "" {
		opts.Name = defaults.Name
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaults.RetryDelay
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaults.StopTimeout
	}
	return &Source{
		device: device,
		opts:   opts,
		logger: logger.With(zap.String("device", opts.Name)),
	}
}

// Start opens the device and spawns the capture goroutine.
// Calling Start on a running source is a no-op.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := s.device.Open(ctx); err != nil {
		return &DeviceError{Device: s.opts.Name, Err: err}
	}
	s.opened = true

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.captureLoop(loopCtx, s.done)

	s.logger.Info("frame capture started")
	return nil
}

// Latest returns the most recently published frame, or nil when none exists yet.
func (s *Source) Latest() *models.Frame {
	return s.latest.Load()
}

// Running reports whether the capture goroutine is active.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop signals the capture goroutine, waits up to StopTimeout and releases the device.
// Safe to call multiple times; the device is closed at most once per Start.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()

	var waitErr error
	select {
	case <-s.done:
	case <-time.After(s.opts.StopTimeout):
		waitErr = fmt.Errorf("capture loop did not exit within %s", s.opts.StopTimeout)
		s.logger.Warn("frame capture stop timed out", zap.Duration("timeout", s.opts.StopTimeout))
	}

	if s.opened {
		s.opened = false
		if err := s.device.Close(); err != nil {
			return errors.Join(waitErr, fmt.Errorf("release capture device: %w", err))
		}
	}

	s.logger.Info("frame capture stopped", zap.Uint64("frames", s.seq.Load()))
	return waitErr
}

func (s *Source) captureLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	failures := 0
	escalated := false

	for {
		if ctx.Err() != nil {
			return
		}

		img, err := s.device.Read()
		if err == nil && (img == nil || img.Bounds().Empty()) {
			err = ErrEmptyFrame
		}
		if err != nil {
			failures++
			if s.opts.Observer != nil {
				s.opts.Observer.CaptureFailed()
			}
			s.logger.Warn("failed to capture frame, retrying", zap.Error(err), zap.Int("consecutive_failures", failures))

			if s.opts.EscalateAfter > 0 && failures >= s.opts.EscalateAfter && !escalated {
				escalated = true
				s.logger.Error("capture device keeps failing", zap.Error(err), zap.Int("consecutive_failures", failures))
				if s.opts.OnEscalate != nil {
					s.opts.OnEscalate(err, failures)
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.opts.RetryDelay):
			}
			continue
		}

		failures = 0
		escalated = false
		s.publish(img)
	}
}

func (s *Source) publish(img *image.RGBA) {
	frame := &models.Frame{
		Image:      img,
		Seq:        s.seq.Add(1),
		CapturedAt: time.Now(),
	}
	s.latest.Store(frame)
	if s.opts.Observer != nil {
		s.opts.Observer.FrameCaptured()
	}
}
