package constraint

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// Category is the syntactic bucket a vocabulary term is assigned to
type Category int

const (
	LongFunctionPhrase Category = iota // multi-character function/mode names
	ActionWord                         // closed set of verbs
	TemperaturePhrase                  // terms carrying the degree marker
	ShortWord                          // everything else
)

// Categories lists every category in synthesis order
var Categories = []Category{LongFunctionPhrase, ActionWord, TemperaturePhrase, ShortWord}

// String returns the category name used in logs
func (c Category) String() string {
	switch c {
	case LongFunctionPhrase:
		return "LongFunctionPhrase"
	case ActionWord:
		return "ActionWord"
	case TemperaturePhrase:
		return "TemperaturePhrase"
	case ShortWord:
		return "ShortWord"
	}
	return "Unknown"
}

// RuleName returns the grammar rule name for the category
func (c Category) RuleName() string {
	switch c {
	case LongFunctionPhrase:
		return "long_function"
	case ActionWord:
		return "action"
	case TemperaturePhrase:
		return "temperature"
	case ShortWord:
		return "short_word"
	}
	return ""
}

// CategoryForRule maps a grammar rule name back to its category
func CategoryForRule(name string) (Category, bool) {
	for _, c := range Categories {
		if c.RuleName() == name {
			return c, true
		}
	}
	return 0, false
}

// Lexicon holds the marker and verb sets the classifier matches against
type Lexicon struct {
	FunctionMarkers   []string // substrings marking a long function phrase
	MinFunctionLength int      // minimum rune count for a long function phrase
	ActionWords       []string // exact-match verbs
	DegreeMarker      string   // substring marking a temperature phrase
	SetToWord         string   // literal verb preceding a temperature in command shapes
}

// DefaultLexicon returns the water-heater command lexicon
func DefaultLexicon() Lexicon {
	return Lexicon{
		FunctionMarkers:   []string{"功能", "模式", "预热", "零冷水", "增压"},
		MinFunctionLength: 3,
		ActionWords:       []string{"开", "关", "启动", "停止", "设置", "调到", "开启", "关闭"},
		DegreeMarker:      "度",
		SetToWord:         "调到",
	}
}

// rule pairs a predicate with the category it assigns
type rule struct {
	category Category
	match    func(term string) bool
}

// Classifier partitions terms into categories. Rules are checked in order and
// the first match wins; terms matching no rule fall into ShortWord.
type Classifier struct {
	lexicon Lexicon
	rules   []rule
}

// NewClassifier builds the ordered rule list for lex
func NewClassifier(lex Lexicon) *Classifier {
	markers := slices.Clone(lex.FunctionMarkers)
	actions := slices.Clone(lex.ActionWords)
	lex.FunctionMarkers, lex.ActionWords = markers, actions

	return &Classifier{
		lexicon: lex,
		rules: []rule{
			{LongFunctionPhrase, func(term string) bool {
				if utf8.RuneCountInString(term) < lex.MinFunctionLength {
					return false
				}
				for _, m := range markers {
					if strings.Contains(term, m) {
						return true
					}
				}
				return false
			}},
			{ActionWord, func(term string) bool {
				return slices.Contains(actions, term)
			}},
			{TemperaturePhrase, func(term string) bool {
				return lex.DegreeMarker != "" && strings.Contains(term, lex.DegreeMarker)
			}},
		},
	}
}

// Lexicon returns the lexicon the classifier was built from
func (c *Classifier) Lexicon() Lexicon {
	return c.lexicon
}

// Classify returns the category of a single term
func (c *Classifier) Classify(term string) Category {
	for _, r := range c.rules {
		if r.match(term) {
			return r.category
		}
	}
	return ShortWord
}

// Partition maps each category to its terms in input order
type Partition map[Category][]string

// Count returns the number of terms in category c
func (p Partition) Count(c Category) int {
	return len(p[c])
}

// Partition classifies every term. Categories with no terms are absent from the result.
func (c *Classifier) Partition(terms []string) Partition {
	p := make(Partition)
	for _, term := range terms {
		cat := c.Classify(term)
		p[cat] = append(p[cat], term)
	}
	return p
}
