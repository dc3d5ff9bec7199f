package stt

import (
	"context"
	"errors"

	"github.com/lexiqai/vocab-recognizer/internal/constraint"
)

var (
	// ErrModelLoad is returned when the model handle cannot be resolved or loaded
	ErrModelLoad = errors.New("model load failure")

	// ErrDecoderConfiguration is returned when the decoder rejects the grammar or bias payload
	ErrDecoderConfiguration = errors.New("decoder configuration failure")

	// ErrDecoderRuntime is returned when decoding a frame fails mid-stream
	ErrDecoderRuntime = errors.New("decoder runtime failure")
)

// Config describes the decoder to construct
type Config struct {
	// ModelPath is the model handle: a directory for local models, a model name for cloud ones
	ModelPath string

	// SampleRate of the PCM frames that will be fed, in Hz
	SampleRate int

	// Constraint is applied once at setup and never changed
	Constraint constraint.Constraint
}

// Decoder is a streaming speech decoder fed one frame at a time
type Decoder interface {
	// AcceptWaveform feeds one frame of 16-bit little-endian mono PCM and reports
	// whether the current utterance is complete
	AcceptWaveform(frame []byte) (bool, error)

	// Partial returns the hypothesis for the utterance in progress
	Partial() (string, error)

	// Final returns the text of the utterance just completed
	Final() (string, error)

	// Close releases the decoder and its model
	Close() error
}

// Factory constructs configured decoders
type Factory interface {
	Open(ctx context.Context, cfg Config) (Decoder, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(ctx context.Context, cfg Config) (Decoder, error)

// Open calls f
func (f FactoryFunc) Open(ctx context.Context, cfg Config) (Decoder, error) {
	return f(ctx, cfg)
}
