// Package vosk adapts the offline Vosk/Kaldi recognizer to the stt.Decoder interface.
package vosk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/rs/zerolog"

	"github.com/lexiqai/vocab-recognizer/internal/stt"
)

// DefaultExpansionLimit bounds the phrase list generated from a grammar
const DefaultExpansionLimit = 5000

type result struct {
	Text    string `json:"text"`
	Partial string `json:"partial"`
}

// Factory opens Vosk decoders
type Factory struct {
	// ModelsDir is searched when the model handle is empty
	ModelsDir string

	// ExpansionLimit caps the number of phrases expanded from a grammar
	ExpansionLimit int

	// LogLevel is passed to the Vosk library (-1 silences it)
	LogLevel int

	Logger zerolog.Logger
}

// Open loads the model and creates a recognizer configured with cfg.Constraint
func (f Factory) Open(ctx context.Context, cfg stt.Config) (stt.Decoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := stt.ResolveModelPath(cfg.ModelPath, f.ModelsDir)
	if err != nil {
		return nil, err
	}

	limit := f.ExpansionLimit
	if limit == 0 {
		limit = DefaultExpansionLimit
	}
	phrases, constrained, err := stt.PhraseList(cfg.Constraint, limit)
	if err != nil {
		return nil, err
	}

	vosk.SetLogLevel(f.LogLevel)

	f.Logger.Info().Str("model", path).Msg("Loading Vosk model")
	model, err := vosk.NewModel(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", stt.ErrModelLoad, path, err)
	}

	var rec *vosk.VoskRecognizer
	if constrained {
		grammar, encErr := stt.EncodePhrases(phrases)
		if encErr != nil {
			model.Free()
			return nil, fmt.Errorf("%w: %v", stt.ErrDecoderConfiguration, encErr)
		}
		rec, err = vosk.NewRecognizerGrm(model, float64(cfg.SampleRate), grammar)
	} else {
		rec, err = vosk.NewRecognizer(model, float64(cfg.SampleRate))
	}
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("%w: %v", stt.ErrDecoderConfiguration, err)
	}

	rec.SetWords(1)
	rec.SetPartialWords(1)

	f.Logger.Info().
		Str("mode", string(cfg.Constraint.Mode())).
		Int("phrases", len(phrases)).
		Int("sample_rate", cfg.SampleRate).
		Msg("Vosk recognizer ready")

	return &Decoder{model: model, recognizer: rec}, nil
}

// Decoder wraps a Vosk model and recognizer it owns exclusively
type Decoder struct {
	mu         sync.Mutex
	model      *vosk.VoskModel
	recognizer *vosk.VoskRecognizer
}

// AcceptWaveform feeds one PCM frame
func (d *Decoder) AcceptWaveform(frame []byte) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.recognizer == nil {
		return false, fmt.Errorf("%w: decoder is closed", stt.ErrDecoderRuntime)
	}

	switch d.recognizer.AcceptWaveform(frame) {
	case 1:
		return true, nil
	case 0:
		return false, nil
	}
	return false, fmt.Errorf("%w: vosk rejected waveform", stt.ErrDecoderRuntime)
}

// Partial returns the in-progress hypothesis
func (d *Decoder) Partial() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.recognizer == nil {
		return "", fmt.Errorf("%w: decoder is closed", stt.ErrDecoderRuntime)
	}
	r, err := parseResult(d.recognizer.PartialResult())
	return r.Partial, err
}

// Final returns the completed utterance text
func (d *Decoder) Final() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.recognizer == nil {
		return "", fmt.Errorf("%w: decoder is closed", stt.ErrDecoderRuntime)
	}
	r, err := parseResult(d.recognizer.Result())
	return r.Text, err
}

// Close frees the recognizer and model. It is safe to call more than once.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.recognizer != nil {
		d.recognizer.Free()
		d.recognizer = nil
	}
	if d.model != nil {
		d.model.Free()
		d.model = nil
	}
	return nil
}

func parseResult(raw string) (result, error) {
	var r result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return r, fmt.Errorf("%w: invalid vosk result: %v", stt.ErrDecoderRuntime, err)
	}
	return r, nil
}
