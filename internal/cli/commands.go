package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/lexiqai/vocab-recognizer/internal/config"
	"github.com/lexiqai/vocab-recognizer/internal/constraint"
	"github.com/lexiqai/vocab-recognizer/internal/session"
	"github.com/lexiqai/vocab-recognizer/internal/stt"
	"github.com/lexiqai/vocab-recognizer/internal/vocab"
)

// NewSynthesizer builds the grammar synthesizer for cfg's caps
func NewSynthesizer(cfg *config.Config) *constraint.Synthesizer {
	return constraint.NewSynthesizer(constraint.NewClassifier(constraint.DefaultLexicon()), cfg.Caps())
}

// Grammar prints the decoder payload the configured mode would produce
func Grammar(w io.Writer, cfg *config.Config) error {
	mode, err := cfg.Mode()
	if err != nil {
		return err
	}
	terms, err := vocab.Load(cfg.VocabPath, cfg.VocabOptions()...)
	if err != nil {
		return err
	}
	c, err := constraint.Build(mode, terms, NewSynthesizer(cfg))
	if err != nil {
		return err
	}
	payload, err := constraint.Payload(c)
	if err != nil {
		return err
	}
	if payload == nil {
		_, err = fmt.Fprintln(w, "# no constraint")
		return err
	}
	_, err = fmt.Fprintln(w, strings.TrimRight(string(payload), "\n"))
	return err
}

// Match prints which vocabulary terms occur in text
func Match(w io.Writer, cfg *config.Config, text string) error {
	terms, err := vocab.Load(cfg.VocabPath, cfg.VocabOptions()...)
	if err != nil {
		return err
	}
	printMatch(w, text, session.MatchTerms(terms, text))
	return nil
}

// Models prints the model directories found under MODELS_DIR
func Models(w io.Writer, cfg *config.Config) error {
	models, err := stt.ListModels(cfg.ModelsDir)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Fprintf(w, "no models found in %s\n", cfg.ModelsDir)
		return nil
	}
	for i, m := range models {
		fmt.Fprintf(w, "%d. %s\n", i+1, m)
	}
	return nil
}
