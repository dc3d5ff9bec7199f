package constraint

const (
	// DefaultGrammarName is the grammar declaration name
	DefaultGrammarName = "commands"

	// DefaultLanguage is the language tag written into the grammar header
	DefaultLanguage = "zh"

	// CommandRuleName is the name of the public top-level rule
	CommandRuleName = "command"
)

// Caps bounds the number of alternatives per rule. Zero means unbounded.
type Caps struct {
	LongFunctionPhrase int
	ActionWord         int
	TemperaturePhrase  int
	ShortWord          int
	Fallback           int // flat alternation used when no command shape applies
}

// DefaultCaps returns the caps tuned for grammar-mode decoding
func DefaultCaps() Caps {
	return Caps{
		LongFunctionPhrase: 50,
		ActionWord:         0,
		TemperaturePhrase:  30,
		ShortWord:          50,
		Fallback:           100,
	}
}

// For returns the cap for category c
func (c Caps) For(cat Category) int {
	switch cat {
	case LongFunctionPhrase:
		return c.LongFunctionPhrase
	case ActionWord:
		return c.ActionWord
	case TemperaturePhrase:
		return c.TemperaturePhrase
	case ShortWord:
		return c.ShortWord
	}
	return 0
}

// CategoryRule is one category's alternation
type CategoryRule struct {
	Category     Category
	Alternatives []string
}

// Element is one token of a command shape: a literal word or a rule reference.
// An empty Literal means the element references Category's rule.
type Element struct {
	Literal  string
	Category Category
}

// Ref returns an element referencing the rule of category c
func Ref(c Category) Element {
	return Element{Category: c}
}

// IsRef reports whether the element references a rule
func (e Element) IsRef() bool {
	return e.Literal == ""
}

// Shape is one valid command form, a sequence of elements
type Shape []Element

// Grammar is the compiled constraint grammar. It is built once per session and
// never mutated afterwards.
type Grammar struct {
	Name     string
	Language string
	Rules    []CategoryRule
	Command  []Shape
	Fallback bool // Command is the flat vocabulary alternation
}

// Rule returns the rule for category c, if present
func (g Grammar) Rule(c Category) (CategoryRule, bool) {
	for _, r := range g.Rules {
		if r.Category == c {
			return r, true
		}
	}
	return CategoryRule{}, false
}

// Counts returns the number of alternatives per category rule
func (g Grammar) Counts() map[Category]int {
	counts := make(map[Category]int, len(g.Rules))
	for _, r := range g.Rules {
		counts[r.Category] = len(r.Alternatives)
	}
	return counts
}

// Synthesizer compiles a vocabulary into a Grammar
type Synthesizer struct {
	classifier *Classifier
	caps       Caps
	name       string
	language   string
}

// SynthesizerOption customises a Synthesizer
type SynthesizerOption func(*Synthesizer)

// WithGrammarName overrides the grammar declaration name
func WithGrammarName(name string) SynthesizerOption {
	return func(s *Synthesizer) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLanguage overrides the header language tag
func WithLanguage(lang string) SynthesizerOption {
	return func(s *Synthesizer) {
		if lang != "" {
			s.language = lang
		}
	}
}

// NewSynthesizer creates a synthesizer. A nil classifier uses the default lexicon.
func NewSynthesizer(classifier *Classifier, caps Caps, opts ...SynthesizerOption) *Synthesizer {
	if classifier == nil {
		classifier = NewClassifier(DefaultLexicon())
	}
	s := &Synthesizer{
		classifier: classifier,
		caps:       caps,
		name:       DefaultGrammarName,
		language:   DefaultLanguage,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classifier returns the classifier used for synthesis
func (s *Synthesizer) Classifier() *Classifier {
	return s.classifier
}

// Synthesize classifies terms and builds the grammar
func (s *Synthesizer) Synthesize(terms []string) Grammar {
	return s.SynthesizePartition(s.classifier.Partition(terms), terms)
}

// SynthesizePartition builds the grammar from an existing partition. terms is the raw
// vocabulary, used only for the flat fallback alternation.
func (s *Synthesizer) SynthesizePartition(p Partition, terms []string) Grammar {
	g := Grammar{Name: s.name, Language: s.language}

	for _, cat := range Categories {
		if p.Count(cat) == 0 {
			continue
		}
		g.Rules = append(g.Rules, CategoryRule{
			Category:     cat,
			Alternatives: truncate(p[cat], s.caps.For(cat)),
		})
	}

	for _, shape := range s.shapes() {
		if shapeAvailable(shape, p) {
			g.Command = append(g.Command, shape)
		}
	}

	// No command shape applies: accept any single vocabulary term.
	if len(g.Command) == 0 {
		g.Fallback = true
		for _, term := range truncate(terms, s.caps.Fallback) {
			g.Command = append(g.Command, Shape{{Literal: term}})
		}
	}

	return g
}

// shapes lists the permitted command forms in priority order
func (s *Synthesizer) shapes() []Shape {
	shapes := []Shape{
		{Ref(LongFunctionPhrase)},
		{Ref(ActionWord), Ref(LongFunctionPhrase)},
		{Ref(ActionWord), Ref(ShortWord)},
		{Ref(TemperaturePhrase)},
	}
	if setTo := s.classifier.Lexicon().SetToWord; setTo != "" {
		shapes = append(shapes, Shape{{Literal: setTo}, Ref(TemperaturePhrase)})
	}
	return shapes
}

func shapeAvailable(shape Shape, p Partition) bool {
	for _, e := range shape {
		if e.IsRef() && p.Count(e.Category) == 0 {
			return false
		}
	}
	return true
}

func truncate(terms []string, limit int) []string {
	if limit > 0 && len(terms) > limit {
		terms = terms[:limit]
	}
	out := make([]string, len(terms))
	copy(out, terms)
	return out
}
