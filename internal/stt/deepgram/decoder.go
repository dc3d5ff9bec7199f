// Package deepgram adapts Deepgram's streaming websocket API to the stt.Decoder
// interface. Deepgram takes bias lists as keywords and cannot enforce a grammar.
package deepgram

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/vocab-recognizer/internal/constraint"
	"github.com/lexiqai/vocab-recognizer/internal/observability"
	"github.com/lexiqai/vocab-recognizer/internal/resilience"
	"github.com/lexiqai/vocab-recognizer/internal/stt"
)

const serviceName = "deepgram"

// Factory opens Deepgram streaming decoders
type Factory struct {
	APIKey   string
	Language string

	// Endpointing is the silence, in milliseconds, after which Deepgram finalises a segment
	Endpointing string

	CircuitBreakerMaxFailures  int
	CircuitBreakerResetTimeout time.Duration

	Logger zerolog.Logger
}

// messageCallbackHandler embeds the default handler and overrides only Message and Error
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	decoder *Decoder
}

func (m *messageCallbackHandler) Message(msg *msginterfaces.MessageResponse) error {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return nil
	}
	m.decoder.onTranscript(msg.Channel.Alternatives[0].Transcript, msg.IsFinal)
	return nil
}

func (m *messageCallbackHandler) Error(er *msginterfaces.ErrorResponse) error {
	m.decoder.onError(fmt.Errorf("deepgram error: %+v", er))
	return nil
}

// Open connects a live transcription stream. cfg.ModelPath names the Deepgram model.
func (f Factory) Open(ctx context.Context, cfg stt.Config) (stt.Decoder, error) {
	if f.APIKey == "" {
		return nil, fmt.Errorf("%w: deepgram API key is not set", stt.ErrModelLoad)
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          cfg.ModelPath,
		Language:       f.Language,
		Punctuate:      false,
		InterimResults: true,
		Endpointing:    f.Endpointing,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     cfg.SampleRate,
	}

	switch c := cfg.Constraint.(type) {
	case constraint.None:
	case constraint.BiasConstraint:
		tOptions.Keywords = append([]string(nil), c.List...)
	case constraint.GrammarConstraint:
		return nil, fmt.Errorf("%w: deepgram does not support grammar constraints", stt.ErrDecoderConfiguration)
	default:
		return nil, fmt.Errorf("%w: unsupported constraint %T", stt.ErrDecoderConfiguration, cfg.Constraint)
	}

	d := newDecoder(f.Logger, resilience.NewCircuitBreaker(serviceName, f.CircuitBreakerMaxFailures, f.CircuitBreakerResetTimeout))
	d.ctx, d.cancel = context.WithCancel(ctx)

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		decoder:                d,
	}

	client, err := listenClient.NewWSUsingCallback(d.ctx, f.APIKey, nil, tOptions, callback)
	if err != nil {
		d.cancel()
		return nil, fmt.Errorf("%w: failed to create Deepgram client: %v", stt.ErrModelLoad, err)
	}
	if !client.Connect() {
		d.cancel()
		return nil, fmt.Errorf("%w: failed to connect to Deepgram", stt.ErrModelLoad)
	}
	d.client = client

	f.Logger.Info().
		Str("model", cfg.ModelPath).
		Str("language", f.Language).
		Int("keywords", len(tOptions.Keywords)).
		Msg("Deepgram streaming decoder started")
	return d, nil
}

// Decoder turns Deepgram's asynchronous transcripts into per-frame results.
// Transcripts arriving between frames are queued; a queued final completes the
// utterance on the next AcceptWaveform call.
type Decoder struct {
	client  *listenClient.WSCallback
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	partial string
	finals  []string
	current string
	err     error
	closed  bool
}

func newDecoder(logger zerolog.Logger, breaker *resilience.CircuitBreaker) *Decoder {
	return &Decoder{
		logger:  logger,
		breaker: breaker,
		cancel:  func() {},
	}
}

func (d *Decoder) onTranscript(text string, final bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if final {
		if text != "" {
			d.finals = append(d.finals, text)
		}
		d.partial = ""
		return
	}
	d.partial = text
}

func (d *Decoder) onError(err error) {
	d.breaker.RecordResult(false)
	observability.UpdateCircuitBreakerState(serviceName, int(d.breaker.GetState()))
	observability.IncrementCircuitBreakerFailures(serviceName)

	d.mu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.mu.Unlock()

	d.logger.Error().Err(err).Msg("Deepgram stream error")
}

// AcceptWaveform sends a frame and reports whether a final transcript is pending
func (d *Decoder) AcceptWaveform(frame []byte) (bool, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false, fmt.Errorf("%w: decoder is closed", stt.ErrDecoderRuntime)
	}
	if d.err != nil {
		err := d.err
		d.mu.Unlock()
		return false, fmt.Errorf("%w: %v", stt.ErrDecoderRuntime, err)
	}
	d.mu.Unlock()

	if d.client != nil {
		err := d.breaker.Call(func() error {
			_, err := d.client.Write(frame)
			return err
		})
		observability.UpdateCircuitBreakerState(serviceName, int(d.breaker.GetState()))
		if err != nil {
			observability.IncrementCircuitBreakerFailures(serviceName)
			return false, fmt.Errorf("%w: failed to send audio to Deepgram: %v", stt.ErrDecoderRuntime, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.finals) == 0 {
		return false, nil
	}
	d.current, d.finals = d.finals[0], d.finals[1:]
	return true, nil
}

// Partial returns the latest interim transcript
func (d *Decoder) Partial() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.partial, nil
}

// Final returns the transcript that completed the last utterance
func (d *Decoder) Final() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text := d.current
	d.current = ""
	return text, nil
}

// Close finishes the stream and cancels the client context
func (d *Decoder) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.client != nil {
		d.client.Finish()
	}
	d.cancel()
	d.logger.Info().Msg("Deepgram streaming decoder stopped")
	return nil
}
