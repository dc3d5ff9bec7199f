// Package constraint compiles a domain vocabulary into a decoder constraint: either a
// JSGF command grammar that the decoder must match exactly, or a bias list that only
// skews word scoring toward the vocabulary.
package constraint

import "fmt"

// Mode names a constraint variant
type Mode string

const (
	ModeNone    Mode = "none"
	ModeBias    Mode = "bias"
	ModeGrammar Mode = "grammar"
)

// ModeFromFlag converts the grammar/bias boolean switch into a Mode
func ModeFromFlag(grammar bool) Mode {
	if grammar {
		return ModeGrammar
	}
	return ModeBias
}

// ParseMode parses a mode name
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeNone, ModeBias, ModeGrammar:
		return m, nil
	}
	return "", fmt.Errorf("unknown constraint mode %q", s)
}

// Constraint is the decoder configuration chosen at setup. Exactly one variant is
// active: None, BiasConstraint or GrammarConstraint.
type Constraint interface {
	Mode() Mode
	sealed()
}

// None leaves the decoder unconstrained
type None struct{}

// BiasConstraint skews scoring toward List
type BiasConstraint struct {
	List BiasList
}

// GrammarConstraint restricts recognition to Grammar
type GrammarConstraint struct {
	Grammar Grammar
}

func (None) Mode() Mode              { return ModeNone }
func (BiasConstraint) Mode() Mode    { return ModeBias }
func (GrammarConstraint) Mode() Mode { return ModeGrammar }

func (None) sealed()              {}
func (BiasConstraint) sealed()    {}
func (GrammarConstraint) sealed() {}

// Build compiles terms into the constraint for mode
func Build(mode Mode, terms []string, synth *Synthesizer) (Constraint, error) {
	switch mode {
	case ModeNone:
		return None{}, nil
	case ModeBias:
		return BiasConstraint{List: BuildBiasList(terms)}, nil
	case ModeGrammar:
		if synth == nil {
			synth = NewSynthesizer(nil, DefaultCaps())
		}
		return GrammarConstraint{Grammar: synth.Synthesize(terms)}, nil
	}
	return nil, fmt.Errorf("unknown constraint mode %q", mode)
}

// Payload returns the wire form of c: the JSGF document for grammars, the JSON array
// for bias lists, and nil for None.
func Payload(c Constraint) ([]byte, error) {
	switch v := c.(type) {
	case None:
		return nil, nil
	case BiasConstraint:
		return v.List.MarshalJSON()
	case GrammarConstraint:
		return []byte(v.Grammar.MarshalJSGF()), nil
	}
	return nil, fmt.Errorf("unsupported constraint %T", c)
}
