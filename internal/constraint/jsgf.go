package constraint

import (
	"errors"
	"fmt"
	"strings"
)

const jsgfHeaderPrefix = "#JSGF"

// jsgfMeta are characters that force an alternative to be quoted
const jsgfMeta = "|;<>=()[]{}*+\"\\/"

var (
	// ErrMalformedGrammar is returned when a grammar document cannot be parsed
	ErrMalformedGrammar = errors.New("malformed grammar")

	// ErrGrammarTooLarge is returned when expansion exceeds the phrase limit
	ErrGrammarTooLarge = errors.New("grammar expansion exceeds limit")
)

// MarshalJSGF serialises the grammar as a JSGF document
func (g Grammar) MarshalJSGF() string {
	var b strings.Builder

	lang := g.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	name := g.Name
	if name == "" {
		name = DefaultGrammarName
	}

	fmt.Fprintf(&b, "%s V1.0 UTF-8 %s;\n", jsgfHeaderPrefix, lang)
	fmt.Fprintf(&b, "grammar %s;\n\n", name)

	for _, r := range g.Rules {
		alts := make([]string, len(r.Alternatives))
		for i, a := range r.Alternatives {
			alts[i] = quoteTerm(a)
		}
		fmt.Fprintf(&b, "<%s> = %s;\n", r.Category.RuleName(), strings.Join(alts, " | "))
	}

	shapes := make([]string, len(g.Command))
	for i, shape := range g.Command {
		parts := make([]string, len(shape))
		for j, e := range shape {
			if e.IsRef() {
				parts[j] = "<" + e.Category.RuleName() + ">"
			} else {
				parts[j] = quoteTerm(e.Literal)
			}
		}
		shapes[i] = strings.Join(parts, " ")
	}
	fmt.Fprintf(&b, "public <%s> = %s;\n", CommandRuleName, strings.Join(shapes, " | "))

	return b.String()
}

func quoteTerm(term string) string {
	if !strings.ContainsAny(term, jsgfMeta) {
		return term
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(term)
	return `"` + escaped + `"`
}

// Token is one item of a parsed alternative
type Token struct {
	Text string
	Ref  bool // Text names a rule
}

// Alternative is a sequence of tokens
type Alternative []Token

// DocRule is a parsed rule definition
type DocRule struct {
	Name         string
	Public       bool
	Alternatives []Alternative
}

// Document is a parsed JSGF grammar
type Document struct {
	Header string
	Name   string
	Rules  []DocRule // private rules in declaration order
	Public DocRule
}

// Rule looks up a private rule by name
func (d *Document) Rule(name string) (DocRule, bool) {
	for _, r := range d.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return DocRule{}, false
}

// Counts returns the number of alternatives per private rule name
func (d *Document) Counts() map[string]int {
	counts := make(map[string]int, len(d.Rules))
	for _, r := range d.Rules {
		counts[r.Name] = len(r.Alternatives)
	}
	return counts
}

// ParseJSGF parses the subset of JSGF produced by MarshalJSGF: a header, a grammar
// declaration, plain rule definitions and exactly one public rule.
func ParseJSGF(text string) (*Document, error) {
	text = strings.TrimLeft(text, "\ufeff \t\r\n")
	headerLine, rest, _ := strings.Cut(text, "\n")
	headerLine = strings.TrimSpace(headerLine)
	if !strings.HasPrefix(headerLine, jsgfHeaderPrefix) || !strings.HasSuffix(headerLine, ";") {
		return nil, fmt.Errorf("%w: missing JSGF header", ErrMalformedGrammar)
	}

	doc := &Document{Header: strings.TrimSuffix(headerLine, ";")}
	statements, err := splitOutsideQuotes(rest, ';')
	if err != nil {
		return nil, err
	}

	publicSeen := false
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if name, ok := strings.CutPrefix(stmt, "grammar "); ok {
			if doc.Name != "" {
				return nil, fmt.Errorf("%w: duplicate grammar declaration", ErrMalformedGrammar)
			}
			doc.Name = strings.TrimSpace(name)
			continue
		}

		r, err := parseRule(stmt)
		if err != nil {
			return nil, err
		}
		if r.Public {
			if publicSeen {
				return nil, fmt.Errorf("%w: more than one public rule", ErrMalformedGrammar)
			}
			publicSeen = true
			doc.Public = r
			continue
		}
		if _, dup := doc.Rule(r.Name); dup {
			return nil, fmt.Errorf("%w: duplicate rule <%s>", ErrMalformedGrammar, r.Name)
		}
		doc.Rules = append(doc.Rules, r)
	}

	if doc.Name == "" {
		return nil, fmt.Errorf("%w: missing grammar declaration", ErrMalformedGrammar)
	}
	if !publicSeen {
		return nil, fmt.Errorf("%w: missing public rule", ErrMalformedGrammar)
	}
	return doc, nil
}

func parseRule(stmt string) (DocRule, error) {
	var r DocRule
	if rest, ok := strings.CutPrefix(stmt, "public "); ok {
		r.Public = true
		stmt = strings.TrimSpace(rest)
	}

	lhs, rhs, ok := strings.Cut(stmt, "=")
	if !ok {
		return r, fmt.Errorf("%w: expected rule definition, got %q", ErrMalformedGrammar, stmt)
	}
	lhs = strings.TrimSpace(lhs)
	if !strings.HasPrefix(lhs, "<") || !strings.HasSuffix(lhs, ">") || len(lhs) < 3 {
		return r, fmt.Errorf("%w: invalid rule name %q", ErrMalformedGrammar, lhs)
	}
	r.Name = lhs[1 : len(lhs)-1]

	alts, err := splitOutsideQuotes(rhs, '|')
	if err != nil {
		return r, err
	}
	for _, alt := range alts {
		tokens, err := tokenize(alt)
		if err != nil {
			return r, fmt.Errorf("rule <%s>: %w", r.Name, err)
		}
		if len(tokens) == 0 {
			return r, fmt.Errorf("%w: empty alternative in rule <%s>", ErrMalformedGrammar, r.Name)
		}
		r.Alternatives = append(r.Alternatives, tokens)
	}
	return r, nil
}

// splitOutsideQuotes splits s on sep, ignoring separators inside double quotes
func splitOutsideQuotes(s string, sep rune) ([]string, error) {
	var parts []string
	var cur strings.Builder
	inQuote, escaped := false, false

	for _, ch := range s {
		switch {
		case escaped:
			escaped = false
		case inQuote && ch == '\\':
			escaped = true
		case ch == '"':
			inQuote = !inQuote
		case !inQuote && ch == sep:
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(ch)
	}
	if inQuote {
		return nil, fmt.Errorf("%w: unterminated quote", ErrMalformedGrammar)
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		parts = append(parts, cur.String())
	}
	return parts, nil
}

func tokenize(alt string) (Alternative, error) {
	var tokens Alternative
	runes := []rune(alt)

	for i := 0; i < len(runes); {
		ch := runes[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			i++

		case ch == '<':
			end := indexRune(runes, i+1, '>')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated rule reference", ErrMalformedGrammar)
			}
			tokens = append(tokens, Token{Text: string(runes[i+1 : end]), Ref: true})
			i = end + 1

		case ch == '"':
			var b strings.Builder
			i++
			closed := false
			for i < len(runes) {
				if runes[i] == '\\' && i+1 < len(runes) {
					b.WriteRune(runes[i+1])
					i += 2
					continue
				}
				if runes[i] == '"' {
					closed = true
					i++
					break
				}
				b.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated quote", ErrMalformedGrammar)
			}
			tokens = append(tokens, Token{Text: b.String()})

		case strings.ContainsRune("()[]{}*+/=", ch):
			return nil, fmt.Errorf("%w: unsupported construct %q", ErrMalformedGrammar, ch)

		default:
			start := i
			for i < len(runes) && !strings.ContainsRune(" \t\r\n<\"()[]{}*+/=", runes[i]) {
				i++
			}
			tokens = append(tokens, Token{Text: string(runes[start:i])})
		}
	}
	return tokens, nil
}

func indexRune(runes []rune, from int, r rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// Expand enumerates the phrases accepted by the public rule, in rule order without
// duplicates. It fails with ErrGrammarTooLarge once more than limit phrases would be
// produced; limit <= 0 disables the check.
func (d *Document) Expand(limit int) ([]string, error) {
	phrases, err := d.expandRule(d.Public, limit, map[string]bool{})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(phrases))
	out := phrases[:0]
	for _, p := range phrases {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func (d *Document) expandRule(r DocRule, limit int, active map[string]bool) ([]string, error) {
	if active[r.Name] {
		return nil, fmt.Errorf("%w: recursive rule <%s>", ErrMalformedGrammar, r.Name)
	}
	active[r.Name] = true
	defer delete(active, r.Name)

	var phrases []string
	for _, alt := range r.Alternatives {
		partial := []string{""}
		for _, tok := range alt {
			options := []string{tok.Text}
			if tok.Ref {
				ref, ok := d.Rule(tok.Text)
				if !ok {
					return nil, fmt.Errorf("%w: undefined rule <%s>", ErrMalformedGrammar, tok.Text)
				}
				var err error
				if options, err = d.expandRule(ref, limit, active); err != nil {
					return nil, err
				}
			}

			if limit > 0 && len(partial)*len(options) > limit {
				return nil, fmt.Errorf("%w: rule <%s> exceeds %d phrases", ErrGrammarTooLarge, r.Name, limit)
			}
			next := make([]string, 0, len(partial)*len(options))
			for _, prefix := range partial {
				for _, opt := range options {
					if prefix == "" {
						next = append(next, opt)
					} else {
						next = append(next, prefix+" "+opt)
					}
				}
			}
			partial = next
		}

		phrases = append(phrases, partial...)
		if limit > 0 && len(phrases) > limit {
			return nil, fmt.Errorf("%w: rule <%s> exceeds %d phrases", ErrGrammarTooLarge, r.Name, limit)
		}
	}
	return phrases, nil
}
