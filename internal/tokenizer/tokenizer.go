// Package tokenizer splits a raw request line into its prefix, modifier,
// scope and body parts. It performs no validation beyond bracket syntax.
package tokenizer

import (
	"strings"

	"github.com/sokinpui/pfx.go/model"
)

// Token is the syntactic breakdown of a request line.
type Token struct {
	Prefix    string
	Modifiers []string
	// Scope is the text between '<' and '>' with the brackets removed.
	Scope    string
	HasScope bool
	Body     string
}

// Tokenize splits line of the form `[prefix{:modifier}*]{<scope>} body`.
func Tokenize(line string) (Token, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return Token{}, model.Reject(model.CodeMalformedCommand, "empty request")
	}
	if s[0] != '[' {
		return Token{}, model.Reject(model.CodeMalformedCommand, "request must start with a bracketed prefix, e.g. [fix]")
	}

	closeIdx := -1
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '[':
			return Token{}, model.Reject(model.CodeMalformedCommand, "unbalanced brackets: nested '[' at column %d", i+1)
		case ']':
			closeIdx = i
		}
		if closeIdx >= 0 {
			break
		}
	}
	if closeIdx < 0 {
		return Token{}, model.Reject(model.CodeMalformedCommand, "unbalanced brackets: missing ']'")
	}

	head := strings.TrimSpace(s[1:closeIdx])
	parts := strings.Split(head, ":")
	tok := Token{Prefix: strings.ToLower(strings.TrimSpace(parts[0]))}
	if tok.Prefix == "" {
		return Token{}, model.Reject(model.CodeMalformedCommand, "empty prefix")
	}
	if strings.ContainsAny(tok.Prefix, " \t") {
		return Token{}, model.Reject(model.CodeMalformedCommand, "prefix %q contains whitespace", tok.Prefix)
	}
	for _, p := range parts[1:] {
		mod := strings.ToLower(strings.TrimSpace(p))
		if mod == "" {
			return Token{}, model.Reject(model.CodeMalformedCommand, "empty modifier in %q", s[:closeIdx+1])
		}
		tok.Modifiers = append(tok.Modifiers, mod)
	}

	rest := s[closeIdx+1:]
	if strings.HasPrefix(rest, "<") {
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return Token{}, model.Reject(model.CodeMalformedCommand, "unterminated scope clause: missing '>'")
		}
		inner := rest[1:end]
		if strings.ContainsRune(inner, '<') {
			return Token{}, model.Reject(model.CodeMalformedCommand, "nested '<' in scope clause")
		}
		tok.Scope = strings.TrimSpace(inner)
		tok.HasScope = true
		rest = rest[end+1:]
	}
	tok.Body = strings.TrimSpace(rest)
	return tok, nil
}
