// Package session runs a recognition session: it owns one decoder and one audio
// source, feeds frames in order and surfaces partial and final hypotheses, each
// final cross-referenced against the vocabulary.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/vocab-recognizer/internal/audio"
	"github.com/lexiqai/vocab-recognizer/internal/constraint"
	"github.com/lexiqai/vocab-recognizer/internal/observability"
	"github.com/lexiqai/vocab-recognizer/internal/resilience"
	"github.com/lexiqai/vocab-recognizer/internal/stt"
	"github.com/lexiqai/vocab-recognizer/internal/vocab"
)

var (
	// ErrInvalidOptions is returned by New for unusable options
	ErrInvalidOptions = errors.New("invalid session options")

	// ErrAlreadyRunning is yielded when a session is iterated twice
	ErrAlreadyRunning = errors.New("session is already running")
)

// Options configures a session
type Options struct {
	VocabularyPath    string
	VocabularyOptions []vocab.Option
	ModelPath         string

	SampleRate int // Hz
	FrameSize  int // samples per frame
	BufferSize int // device buffer in samples
	Device     string

	Mode        constraint.Mode
	Synthesizer *constraint.Synthesizer // nil uses the default lexicon and caps

	// AudioRetry bounds attempts to open the audio source; nil uses the default policy
	AudioRetry *resilience.RetryConfig
}

func (o Options) validate() error {
	if o.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidOptions)
	}
	if o.FrameSize <= 0 {
		return fmt.Errorf("%w: frame size must be positive", ErrInvalidOptions)
	}
	switch o.Mode {
	case constraint.ModeNone, constraint.ModeBias, constraint.ModeGrammar:
	default:
		return fmt.Errorf("%w: unknown constraint mode %q", ErrInvalidOptions, o.Mode)
	}
	return nil
}

// Session is a single recognition run. It exclusively owns its decoder and audio
// source; both are released when iteration ends or Close is called.
type Session struct {
	id         string
	vocabulary []string
	constraint constraint.Constraint

	decoder stt.Decoder
	source  audio.Source

	state     stateMachine
	stopping  atomic.Bool
	iterating atomic.Bool

	lastPartial string
	utterance   int

	logger  zerolog.Logger
	metrics *observability.SessionMetrics

	closeOnce sync.Once
	closeErr  error
}

// New sets a session up: vocabulary, constraint, decoder, then audio source.
// Vocabulary errors surface before the decoder or audio is touched; a later
// failure releases whatever was already acquired.
func New(ctx context.Context, opts Options, decoders stt.Factory, sources audio.Opener, logger zerolog.Logger) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	logger = observability.WithSession(logger, id)

	terms, err := vocab.Load(opts.VocabularyPath, opts.VocabularyOptions...)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("terms", len(terms)).Str("path", opts.VocabularyPath).Msg("Vocabulary loaded")

	c, err := constraint.Build(opts.Mode, terms, opts.Synthesizer)
	if err != nil {
		return nil, err
	}
	logConstraint(logger, c)

	decoder, err := decoders.Open(ctx, stt.Config{
		ModelPath:  opts.ModelPath,
		SampleRate: opts.SampleRate,
		Constraint: c,
	})
	if err != nil {
		return nil, err
	}

	var source audio.Source
	open := func() error {
		src, err := sources.Open(ctx, audio.CaptureConfig{
			SampleRate: opts.SampleRate,
			FrameSize:  opts.FrameSize,
			BufferSize: opts.BufferSize,
			Device:     opts.Device,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to open audio source")
			return err
		}
		source = src
		return nil
	}
	if err := resilience.Retry(ctx, open, opts.AudioRetry, isRetryableAudioError); err != nil {
		if cerr := decoder.Close(); cerr != nil {
			logger.Error().Err(cerr).Msg("Failed to release decoder after audio setup failure")
		}
		if !errors.Is(err, audio.ErrDeviceFailure) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", audio.ErrDeviceFailure, err)
		}
		return nil, err
	}

	s := &Session{
		id:         id,
		vocabulary: terms,
		constraint: c,
		decoder:    decoder,
		source:     source,
		logger:     logger,
		metrics:    observability.NewSessionMetrics(id),
	}
	s.metrics.RecordSessionStart()
	logger.Info().Str("mode", string(c.Mode())).Int("sample_rate", opts.SampleRate).Msg("Session ready")
	return s, nil
}

// isRetryableAudioError retries only failures the opener marked as transient
func isRetryableAudioError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return resilience.IsRetryable(err)
}

func logConstraint(logger zerolog.Logger, c constraint.Constraint) {
	switch c := c.(type) {
	case constraint.GrammarConstraint:
		counts := make(map[string]int)
		ev := logger.Info().Int("shapes", len(c.Grammar.Command)).Bool("fallback", c.Grammar.Fallback)
		for cat, n := range c.Grammar.Counts() {
			counts[cat.RuleName()] = n
			ev = ev.Int(cat.RuleName(), n)
		}
		ev.Msg("Grammar synthesized")
		observability.SetGrammarAlternatives(counts)
	case constraint.BiasConstraint:
		logger.Info().Int("terms", len(c.List)).Msg("Bias list built")
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return s.state.load()
}

// Vocabulary returns a copy of the loaded terms
func (s *Session) Vocabulary() []string {
	return append([]string(nil), s.vocabulary...)
}

// Constraint returns the decoder constraint built at setup
func (s *Session) Constraint() constraint.Constraint {
	return s.constraint
}

// Stop asks the frame loop to end. It takes effect between frames; resources are
// released by the loop on its way out.
func (s *Session) Stop() {
	if s.stopping.CompareAndSwap(false, true) {
		s.logger.Info().Msg("Stop requested")
	}
	s.state.transition(StateStopped)
}

// Hypotheses returns the session's hypothesis sequence. Iterating it consumes
// audio until the source ends, Stop is called, ctx is done or an error occurs;
// errors are yielded once and end the sequence. Breaking out of the loop stops
// the session. The sequence can be iterated once.
//
// A partial is yielded only when its text differs from the previous partial of
// the same utterance; an unchanged partial reported on a later frame is skipped.
func (s *Session) Hypotheses(ctx context.Context) iter.Seq2[Hypothesis, error] {
	return func(yield func(Hypothesis, error) bool) {
		if !s.iterating.CompareAndSwap(false, true) {
			yield(Hypothesis{}, ErrAlreadyRunning)
			return
		}
		defer s.Close()

		s.logger.Info().Msg("Recognition started")
		for {
			if s.halted(ctx) {
				return
			}

			frame, err := s.source.ReadFrame(ctx)
			if err != nil {
				switch {
				case errors.Is(err, audio.ErrOverflow):
					s.metrics.RecordSkippedFrame("overflow")
					s.logger.Debug().Msg("Audio overflow, frame skipped")
					continue
				case errors.Is(err, io.EOF):
					s.logger.Info().Msg("Audio source exhausted")
					s.state.transition(StateStopped)
					return
				case ctx.Err() != nil:
					s.state.transition(StateStopped)
					return
				}
				s.fail(yield, err, "audio_read_error", "audio")
				return
			}
			if len(frame) == 0 {
				s.metrics.RecordSkippedFrame("empty")
				continue
			}
			if s.State() == StateIdle {
				s.state.transition(StateAwaitingMoreAudio)
			}

			if !s.decodeFrame(yield, frame) {
				return
			}
		}
	}
}

// decodeFrame feeds one frame and emits what it produced. It returns false when
// iteration must end.
func (s *Session) decodeFrame(yield func(Hypothesis, error) bool, frame []byte) bool {
	start := time.Now()
	complete, err := s.decoder.AcceptWaveform(frame)
	s.metrics.RecordFrame(len(frame), time.Since(start))
	if err != nil {
		s.fail(yield, runtimeError(err), "decode_error", "decoder")
		return false
	}

	if !complete {
		text, err := s.decoder.Partial()
		if err != nil {
			s.fail(yield, runtimeError(err), "partial_error", "decoder")
			return false
		}
		if text == "" || text == s.lastPartial {
			return true
		}
		s.lastPartial = text
		return s.emit(yield, Hypothesis{
			Kind:      KindPartial,
			Text:      text,
			Utterance: s.utterance + 1,
			At:        time.Now(),
		})
	}

	text, err := s.decoder.Final()
	if err != nil {
		s.fail(yield, runtimeError(err), "final_error", "decoder")
		return false
	}
	s.lastPartial = ""
	if !s.state.transition(StateEmittedFinal) {
		return false
	}

	if text != "" {
		s.utterance++
		matched := MatchTerms(s.vocabulary, text)
		s.logger.Debug().Str("text", text).Strs("matched_terms", matched).Msg("Final hypothesis")
		if !s.emit(yield, Hypothesis{
			Kind:         KindFinal,
			Text:         text,
			MatchedTerms: matched,
			Utterance:    s.utterance,
			At:           time.Now(),
		}) {
			return false
		}
	}
	return s.state.transition(StateAwaitingMoreAudio)
}

// halted reports whether the loop must end before reading another frame
func (s *Session) halted(ctx context.Context) bool {
	if s.stopping.Load() || ctx.Err() != nil {
		s.state.transition(StateStopped)
		return true
	}
	return s.State() == StateStopped
}

// emit yields h unless the session stopped in the meantime. A consumer that stops
// iterating stops the session.
func (s *Session) emit(yield func(Hypothesis, error) bool, h Hypothesis) bool {
	if s.stopping.Load() || s.State() == StateStopped {
		return false
	}
	s.metrics.RecordHypothesis(h.Kind.String(), len(h.MatchedTerms))
	if !yield(h, nil) {
		s.Stop()
		return false
	}
	return true
}

func (s *Session) fail(yield func(Hypothesis, error) bool, err error, errType, component string) {
	s.state.transition(StateStopped)
	s.metrics.RecordError(errType, component)
	s.logger.Error().Err(err).Str("component", component).Msg("Session ended by error")
	yield(Hypothesis{}, err)
}

func runtimeError(err error) error {
	if errors.Is(err, stt.ErrDecoderRuntime) {
		return err
	}
	return fmt.Errorf("%w: %v", stt.ErrDecoderRuntime, err)
}

// Run iterates the session, passing each hypothesis to handle. A handler error
// stops the session and is returned, joined with any error from releasing the
// audio source or the decoder.
func (s *Session) Run(ctx context.Context, handle func(Hypothesis) error) error {
	for h, err := range s.Hypotheses(ctx) {
		if errors.Is(err, ErrAlreadyRunning) {
			return err
		}
		if err != nil {
			return errors.Join(err, s.Close())
		}
		if err := handle(h); err != nil {
			return errors.Join(err, s.Close())
		}
	}
	return s.Close()
}

// Close stops the session and releases the audio source and the decoder. It is
// safe to call more than once and from any goroutine, but not while a frame is
// being decoded by a different goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.stopping.Store(true)
		s.state.transition(StateStopped)

		var errs []error
		if err := s.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audio source: %w", err))
		}
		if err := s.decoder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close decoder: %w", err))
		}
		s.closeErr = errors.Join(errs...)
		s.metrics.RecordSessionEnd()

		if s.closeErr != nil {
			s.logger.Error().Err(s.closeErr).Msg("Session closed with errors")
		} else {
			s.logger.Info().Int("utterances", s.utterance).Msg("Session closed")
		}
	})
	return s.closeErr
}
