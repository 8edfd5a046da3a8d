// Package glob compiles simplified path globs into anchored matchers.
//
// Supported tokens are `**` (any run of characters, separators included),
// `*` (any run of characters except '/') and `?` (exactly one character
// other than '/'). A `**` immediately followed by '/' also absorbs that
// slash, so "/**/health" matches "/health" as well as "/a/b/health".
//
// Lists, ranges, negated ranges and extended patterns ({a,b}, [abc],
// [!abc], !(a|b), ...) are not supported; their characters are matched
// literally.
package glob

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies a glob token.
type Kind int

const (
	// Literal is a run of characters matched verbatim.
	Literal Kind = iota
	// Globstar is `**`, optionally followed by a separator.
	Globstar
	// Star is a lone `*`.
	Star
	// Question is `?`.
	Question
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Globstar:
		return "globstar"
	case Star:
		return "star"
	case Question:
		return "question"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Token is one lexical element of a glob pattern.
type Token struct {
	Kind  Kind
	Value string
}

// Tokens splits a pattern into tokens. Adjacent literal characters are
// merged into a single Literal token.
func Tokens(pattern string) []Token {
	var (
		tokens  []Token
		literal strings.Builder
	)
	flush := func() {
		if literal.Len() > 0 {
			tokens = append(tokens, Token{Kind: Literal, Value: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			flush()
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				// collapse runs like *** into a single globstar
				j := i + 2
				for j < len(pattern) && pattern[j] == '*' {
					j++
				}
				value := pattern[i:j]
				if j < len(pattern) && pattern[j] == '/' {
					value += "/"
					j++
				}
				tokens = append(tokens, Token{Kind: Globstar, Value: value})
				i = j - 1
				continue
			}
			tokens = append(tokens, Token{Kind: Star, Value: "*"})
		case '?':
			flush()
			tokens = append(tokens, Token{Kind: Question, Value: "?"})
		default:
			literal.WriteByte(c)
		}
	}
	flush()
	return tokens
}

// Matcher is a compiled, anchored glob.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// Compile translates pattern into an anchored matcher.
func Compile(pattern string) (*Matcher, error) {
	expr := Translate(pattern)
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile glob %q: %w", pattern, err)
	}
	return &Matcher{pattern: pattern, re: re}, nil
}

// Translate returns the anchored regular expression for pattern.
func Translate(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, tok := range Tokens(pattern) {
		switch tok.Kind {
		case Globstar:
			if strings.HasSuffix(tok.Value, "/") {
				b.WriteString("(?:.*/)?")
			} else {
				b.WriteString(".*")
			}
		case Star:
			b.WriteString("[^/]*")
		case Question:
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(tok.Value))
		}
	}
	b.WriteString("$")
	return b.String()
}

// Match reports whether s matches the whole pattern.
func (m *Matcher) Match(s string) bool {
	return m.re.MatchString(s)
}

// String returns the source pattern.
func (m *Matcher) String() string {
	return m.pattern
}
