package constraint

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestSynthesize_AllCategories(t *testing.T) {
	s := NewSynthesizer(nil, DefaultCaps())
	g := s.Synthesize([]string{"开关模式预热", "开", "三十五度", "随便"})

	if g.Fallback {
		t.Fatal("Expected category shapes, got fallback")
	}
	if len(g.Rules) != 4 {
		t.Fatalf("Expected 4 rules, got %d", len(g.Rules))
	}
	for i, cat := range Categories {
		if g.Rules[i].Category != cat {
			t.Errorf("Expected rule %d to be %s, got %s", i, cat, g.Rules[i].Category)
		}
	}

	expected := []Shape{
		{Ref(LongFunctionPhrase)},
		{Ref(ActionWord), Ref(LongFunctionPhrase)},
		{Ref(ActionWord), Ref(ShortWord)},
		{Ref(TemperaturePhrase)},
		{{Literal: "调到"}, Ref(TemperaturePhrase)},
	}
	if !reflect.DeepEqual(g.Command, expected) {
		t.Errorf("Expected shapes %v, got %v", expected, g.Command)
	}
}

func TestSynthesize_OmitsEmptyCategories(t *testing.T) {
	s := NewSynthesizer(nil, DefaultCaps())
	g := s.Synthesize([]string{"关", "随便"})

	if _, ok := g.Rule(LongFunctionPhrase); ok {
		t.Error("Expected no long_function rule")
	}
	if _, ok := g.Rule(TemperaturePhrase); ok {
		t.Error("Expected no temperature rule")
	}

	expected := []Shape{{Ref(ActionWord), Ref(ShortWord)}}
	if !reflect.DeepEqual(g.Command, expected) {
		t.Errorf("Expected shapes %v, got %v", expected, g.Command)
	}
}

func TestSynthesize_TemperatureOnly(t *testing.T) {
	s := NewSynthesizer(nil, DefaultCaps())
	g := s.Synthesize([]string{"三十度", "四十度"})

	if len(g.Command) != 2 {
		t.Fatalf("Expected temperature and set-to shapes, got %v", g.Command)
	}
	if g.Command[1][0].Literal != "调到" {
		t.Errorf("Expected set-to literal, got %v", g.Command[1])
	}
}

func TestSynthesize_Truncation(t *testing.T) {
	terms := make([]string, 60)
	for i := range terms {
		terms[i] = fmt.Sprintf("词%02d", i)
	}

	s := NewSynthesizer(nil, DefaultCaps())
	g := s.Synthesize(append([]string{"开"}, terms...))

	r, ok := g.Rule(ShortWord)
	if !ok {
		t.Fatal("Expected short_word rule")
	}
	if len(r.Alternatives) != 50 {
		t.Fatalf("Expected 50 alternatives, got %d", len(r.Alternatives))
	}
	if !reflect.DeepEqual(r.Alternatives, terms[:50]) {
		t.Errorf("Expected the first 50 terms in order, got %v", r.Alternatives)
	}
	for _, dropped := range terms[50:] {
		if strings.Contains(g.MarshalJSGF(), dropped) {
			t.Errorf("Expected %q to be truncated", dropped)
		}
	}
}

func TestSynthesize_ActionWordsUnbounded(t *testing.T) {
	caps := DefaultCaps()
	lex := DefaultLexicon()
	s := NewSynthesizer(NewClassifier(lex), caps)
	g := s.Synthesize(lex.ActionWords)

	r, _ := g.Rule(ActionWord)
	if len(r.Alternatives) != len(lex.ActionWords) {
		t.Errorf("Expected %d action words, got %d", len(lex.ActionWords), len(r.Alternatives))
	}
}

func TestSynthesize_Fallback(t *testing.T) {
	// short words alone admit no command shape
	terms := make([]string, 120)
	for i := range terms {
		terms[i] = fmt.Sprintf("词%03d", i)
	}

	s := NewSynthesizer(nil, DefaultCaps())
	g := s.Synthesize(terms)

	if !g.Fallback {
		t.Fatal("Expected fallback grammar")
	}
	if len(g.Command) != 100 {
		t.Fatalf("Expected 100 fallback alternatives, got %d", len(g.Command))
	}
	for i, shape := range g.Command {
		if len(shape) != 1 || shape[0].Literal != terms[i] {
			t.Errorf("Expected fallback %d to be %q, got %v", i, terms[i], shape)
		}
	}
}

func TestSynthesize_NeverEmptyCommand(t *testing.T) {
	vocabularies := [][]string{
		{"随便"},
		{"开"},
		{"开", "关"},
		{"三十五度"},
		{"儿童浴功能"},
		{"开", "三十五度"},
	}

	s := NewSynthesizer(nil, DefaultCaps())
	for _, v := range vocabularies {
		g := s.Synthesize(v)
		if len(g.Command) == 0 {
			t.Errorf("Expected non-empty command rule for %v", v)
		}
		doc, err := ParseJSGF(g.MarshalJSGF())
		if err != nil {
			t.Fatalf("ParseJSGF() failed for %v: %v", v, err)
		}
		if len(doc.Public.Alternatives) == 0 {
			t.Errorf("Expected serialized public rule to have alternatives for %v", v)
		}
	}
}

func TestSynthesize_Options(t *testing.T) {
	s := NewSynthesizer(nil, DefaultCaps(), WithGrammarName("heater"), WithLanguage("en"))
	g := s.Synthesize([]string{"开"})

	jsgf := g.MarshalJSGF()
	if !strings.HasPrefix(jsgf, "#JSGF V1.0 UTF-8 en;\ngrammar heater;\n") {
		t.Errorf("Unexpected header: %q", jsgf)
	}
}

func TestMarshalJSGF(t *testing.T) {
	s := NewSynthesizer(nil, DefaultCaps())
	g := s.Synthesize([]string{"开关模式预热", "开", "三十五度", "随便"})

	expected := "#JSGF V1.0 UTF-8 zh;\n" +
		"grammar commands;\n" +
		"\n" +
		"<long_function> = 开关模式预热;\n" +
		"<action> = 开;\n" +
		"<temperature> = 三十五度;\n" +
		"<short_word> = 随便;\n" +
		"public <command> = <long_function> | <action> <long_function> | <action> <short_word> | <temperature> | 调到 <temperature>;\n"

	if got := g.MarshalJSGF(); got != expected {
		t.Errorf("Expected:\n%s\ngot:\n%s", expected, got)
	}
}

func TestJSGF_RoundTripCounts(t *testing.T) {
	terms := []string{"开", "关", "启动"}
	for i := 0; i < 40; i++ {
		terms = append(terms, fmt.Sprintf("%d度", i))
	}
	for i := 0; i < 55; i++ {
		terms = append(terms, fmt.Sprintf("节能%d", i))
	}
	terms = append(terms, "儿童浴功能", "点动预热")

	g := NewSynthesizer(nil, DefaultCaps()).Synthesize(terms)
	doc, err := ParseJSGF(g.MarshalJSGF())
	if err != nil {
		t.Fatalf("ParseJSGF() failed: %v", err)
	}

	recovered := map[Category]int{}
	for name, n := range doc.Counts() {
		cat, ok := CategoryForRule(name)
		if !ok {
			t.Fatalf("Unexpected rule %q", name)
		}
		recovered[cat] = n
	}

	if !reflect.DeepEqual(recovered, g.Counts()) {
		t.Errorf("Expected counts %v, got %v", g.Counts(), recovered)
	}
	if recovered[TemperaturePhrase] != 30 || recovered[ShortWord] != 50 {
		t.Errorf("Expected capped counts, got %v", recovered)
	}
	if doc.Name != "commands" || doc.Public.Name != "command" {
		t.Errorf("Unexpected names: grammar %q, public %q", doc.Name, doc.Public.Name)
	}
}

func TestJSGF_QuotedTerms(t *testing.T) {
	g := NewSynthesizer(nil, DefaultCaps()).Synthesize([]string{"a|b", `say "hi"`, "x;y"})
	doc, err := ParseJSGF(g.MarshalJSGF())
	if err != nil {
		t.Fatalf("ParseJSGF() failed: %v", err)
	}

	phrases, err := doc.Expand(0)
	if err != nil {
		t.Fatalf("Expand() failed: %v", err)
	}
	expected := []string{"a|b", `say "hi"`, "x;y"}
	if !reflect.DeepEqual(phrases, expected) {
		t.Errorf("Expected %v, got %v", expected, phrases)
	}
}

func TestDocument_Expand(t *testing.T) {
	g := NewSynthesizer(nil, DefaultCaps()).Synthesize([]string{"开", "关", "节能", "三十度"})
	doc, err := ParseJSGF(g.MarshalJSGF())
	if err != nil {
		t.Fatalf("ParseJSGF() failed: %v", err)
	}

	phrases, err := doc.Expand(0)
	if err != nil {
		t.Fatalf("Expand() failed: %v", err)
	}
	expected := []string{"开 节能", "关 节能", "三十度", "调到 三十度"}
	if !reflect.DeepEqual(phrases, expected) {
		t.Errorf("Expected %v, got %v", expected, phrases)
	}
}

func TestDocument_ExpandLimit(t *testing.T) {
	g := NewSynthesizer(nil, DefaultCaps()).Synthesize([]string{"开", "关", "节能", "舒适", "三十度"})
	doc, err := ParseJSGF(g.MarshalJSGF())
	if err != nil {
		t.Fatalf("ParseJSGF() failed: %v", err)
	}

	if _, err := doc.Expand(3); !errors.Is(err, ErrGrammarTooLarge) {
		t.Errorf("Expected ErrGrammarTooLarge, got %v", err)
	}
}

func TestParseJSGF_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"missing header", "grammar g;\npublic <c> = a;\n"},
		{"missing grammar", "#JSGF V1.0;\npublic <c> = a;\n"},
		{"missing public", "#JSGF V1.0;\ngrammar g;\n<a> = x;\n"},
		{"two public", "#JSGF V1.0;\ngrammar g;\npublic <a> = x;\npublic <b> = y;\n"},
		{"bad rule name", "#JSGF V1.0;\ngrammar g;\npublic c = a;\n"},
		{"unterminated quote", "#JSGF V1.0;\ngrammar g;\npublic <c> = \"a;\n"},
		{"empty alternative", "#JSGF V1.0;\ngrammar g;\npublic <c> = a | | b;\n"},
		{"grouping", "#JSGF V1.0;\ngrammar g;\npublic <c> = (a b);\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJSGF(tt.text); !errors.Is(err, ErrMalformedGrammar) {
				t.Errorf("Expected ErrMalformedGrammar, got %v", err)
			}
		})
	}
}

func TestDocument_ExpandUndefinedRule(t *testing.T) {
	doc, err := ParseJSGF("#JSGF V1.0;\ngrammar g;\npublic <c> = <missing>;\n")
	if err != nil {
		t.Fatalf("ParseJSGF() failed: %v", err)
	}
	if _, err := doc.Expand(0); !errors.Is(err, ErrMalformedGrammar) {
		t.Errorf("Expected ErrMalformedGrammar, got %v", err)
	}
}

func TestDocument_ExpandRecursive(t *testing.T) {
	doc, err := ParseJSGF("#JSGF V1.0;\ngrammar g;\n<a> = x <a>;\npublic <c> = <a>;\n")
	if err != nil {
		t.Fatalf("ParseJSGF() failed: %v", err)
	}
	if _, err := doc.Expand(0); !errors.Is(err, ErrMalformedGrammar) {
		t.Errorf("Expected ErrMalformedGrammar, got %v", err)
	}
}
