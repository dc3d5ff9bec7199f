// Package portaudio captures microphone input through PortAudio.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/lexiqai/vocab-recognizer/internal/audio"
	"github.com/lexiqai/vocab-recognizer/internal/resilience"
)

// Device describes an input-capable device
type Device struct {
	Index             int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	Default           bool
}

// ListDevices enumerates input devices
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initialize portaudio: %v", audio.ErrDeviceFailure, err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate devices: %v", audio.ErrDeviceFailure, err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var devices []Device
	for i, info := range infos {
		if info.MaxInputChannels < 1 {
			continue
		}
		devices = append(devices, Device{
			Index:             i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			Default:           def != nil && info.Name == def.Name,
		})
	}
	return devices, nil
}

// Opener opens mono 16-bit capture streams
type Opener struct {
	Logger zerolog.Logger
}

// Open starts a blocking input stream on the configured device
func (o Opener) Open(ctx context.Context, cfg audio.CaptureConfig) (audio.Source, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("%w: invalid capture config %+v", audio.ErrDeviceFailure, cfg)
	}
	// Host API and stream failures are retryable; config and device lookup errors are not
	if err := portaudio.Initialize(); err != nil {
		return nil, resilience.NewRetryableError(fmt.Errorf("%w: initialize portaudio: %v", audio.ErrDeviceFailure, err))
	}

	device, err := o.selectDevice(cfg.Device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FrameSize
	if cfg.BufferSize > 0 {
		params.FramesPerBuffer = cfg.BufferSize
	}

	c := &Capture{
		buffer:    make([]int16, params.FramesPerBuffer),
		frameSize: cfg.FrameSize,
		logger:    o.Logger,
	}

	stream, err := portaudio.OpenStream(params, c.buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, resilience.NewRetryableError(fmt.Errorf("%w: open stream on %q: %v", audio.ErrDeviceFailure, device.Name, err))
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, resilience.NewRetryableError(fmt.Errorf("%w: start stream on %q: %v", audio.ErrDeviceFailure, device.Name, err))
	}
	c.stream = stream

	o.Logger.Info().
		Str("device", device.Name).
		Int("sample_rate", cfg.SampleRate).
		Int("frames_per_buffer", params.FramesPerBuffer).
		Msg("Audio capture started")
	return c, nil
}

func (o Opener) selectDevice(name string) (*portaudio.DeviceInfo, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate devices: %v", audio.ErrDeviceFailure, err)
	}
	def, err := portaudio.DefaultInputDevice()
	if err != nil && name == "" {
		return nil, fmt.Errorf("%w: no default input device: %v", audio.ErrDeviceFailure, err)
	}

	defName := ""
	if def != nil {
		defName = def.Name
	}
	o.Logger.Debug().Int("devices", len(infos)).Str("default", defName).Msg("Enumerated audio devices")

	if name == "" {
		return def, nil
	}
	for _, info := range infos {
		if info.MaxInputChannels > 0 && strings.Contains(info.Name, name) {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: no input device matches %q", audio.ErrDeviceFailure, name)
}

// Capture is a running input stream. ReadFrame is not safe for concurrent use.
type Capture struct {
	stream    *portaudio.Stream
	buffer    []int16
	frameSize int
	pending   []int16
	logger    zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// ReadFrame blocks until frameSize samples are available
func (c *Capture) ReadFrame(ctx context.Context) ([]byte, error) {
	for len(c.pending) < c.frameSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				c.pending = c.pending[:0]
				return nil, audio.ErrOverflow
			}
			return nil, fmt.Errorf("%w: read stream: %v", audio.ErrDeviceFailure, err)
		}
		c.pending = append(c.pending, c.buffer...)
	}

	frame := audio.SamplesToBytes(c.pending[:c.frameSize])
	c.pending = append(c.pending[:0], c.pending[c.frameSize:]...)
	return frame, nil
}

// Close stops the stream and releases PortAudio
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		if err := c.stream.Stop(); err != nil {
			c.closeErr = err
		}
		if err := c.stream.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
		if err := portaudio.Terminate(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
		c.logger.Info().Msg("Audio capture stopped")
	})
	return c.closeErr
}
