// Package audio provides the PCM frame sources a recognition session reads from.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrDeviceFailure is returned when an input device cannot be opened or read
	ErrDeviceFailure = errors.New("audio device failure")

	// ErrOverflow signals that input was lost before it could be read. The frame
	// returned alongside it may be short or empty; it is not fatal.
	ErrOverflow = errors.New("audio input overflow")
)

// CaptureConfig describes the stream to open
type CaptureConfig struct {
	SampleRate int    // Hz
	FrameSize  int    // samples per frame
	BufferSize int    // device buffer in samples; zero lets the backend choose
	Device     string // device name substring; empty selects the default input
}

// Source yields 16-bit little-endian mono PCM frames in order. ReadFrame returns
// io.EOF once a finite source is exhausted.
type Source interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Opener opens sources
type Opener interface {
	Open(ctx context.Context, cfg CaptureConfig) (Source, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(ctx context.Context, cfg CaptureConfig) (Source, error)

// Open calls f
func (f OpenerFunc) Open(ctx context.Context, cfg CaptureConfig) (Source, error) {
	return f(ctx, cfg)
}
