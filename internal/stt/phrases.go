package stt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/lexiqai/vocab-recognizer/internal/constraint"
)

// UnknownWord is the catch-all token phrase-list decoders use for out-of-vocabulary speech
const UnknownWord = "[unk]"

// PhraseList converts a constraint into the phrase list accepted by phrase-list
// decoders. Grammars are read back from their JSGF wire form and expanded; bias lists
// keep every term and add UnknownWord so any utterance stays admissible. The second
// result is false for None.
func PhraseList(c constraint.Constraint, limit int) ([]string, bool, error) {
	payload, err := constraint.Payload(c)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrDecoderConfiguration, err)
	}

	switch c.(type) {
	case constraint.None:
		return nil, false, nil

	case constraint.BiasConstraint:
		list, err := constraint.ParseBiasList(payload)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrDecoderConfiguration, err)
		}
		return append([]string(list), UnknownWord), true, nil

	case constraint.GrammarConstraint:
		doc, err := constraint.ParseJSGF(string(payload))
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrDecoderConfiguration, err)
		}
		phrases, err := doc.Expand(limit)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrDecoderConfiguration, err)
		}
		return phrases, true, nil
	}

	return nil, false, fmt.Errorf("%w: unsupported constraint %T", ErrDecoderConfiguration, c)
}

// EncodePhrases renders phrases as the JSON array phrase-list decoders consume
func EncodePhrases(phrases []string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(phrases); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
