package expr

import (
	"strings"

	"github.com/pkg/errors"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenInt
	TokenFloat
	TokenIdent
	TokenPunct
)

// Token is a lexical unit of expression text.
type Token struct {
	Type     TokenType
	Value    string
	Position int
}

// Lexer scans expression text and produces tokens.
type Lexer struct {
	input    string
	position int
	tokens   []Token
}

// NewLexer returns a new Lexer with the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		tokens: make([]Token, 0),
	}
}

var twoCharPuncts = []string{"==", "!=", "<=", ">=", "&&", "||"}

// Tokenize processes the entire input and produces the list of tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	for l.position < len(l.input) {
		start := l.position
		c := l.input[l.position]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.position++

		case isDigit(c):
			l.lexNumber(start)

		case isIdentStart(c):
			for l.position < len(l.input) && isIdentChar(l.input[l.position]) {
				l.position++
			}
			l.addToken(TokenIdent, l.input[start:l.position], start)

		default:
			if l.matchTwoChar(start) {
				continue
			}
			if !strings.ContainsRune("+-*/%<>!()[],?:", rune(c)) {
				return nil, errors.Errorf("unexpected character %q at %d", c, start)
			}
			l.addToken(TokenPunct, string(c), start)
			l.position++
		}
	}
	l.addToken(TokenEOF, "", l.position)
	return l.tokens, nil
}

func (l *Lexer) matchTwoChar(start int) bool {
	if start+2 > len(l.input) {
		return false
	}
	for _, p := range twoCharPuncts {
		if l.input[start:start+2] == p {
			l.addToken(TokenPunct, p, start)
			l.position += 2
			return true
		}
	}
	return false
}

func (l *Lexer) lexNumber(start int) {
	typ := TokenInt
	for l.position < len(l.input) {
		c := l.input[l.position]
		switch {
		case isDigit(c):
		case c == '.' && typ == TokenInt:
			typ = TokenFloat
		case (c == 'e' || c == 'E') && l.position > start:
			typ = TokenFloat
			if l.position+1 < len(l.input) && (l.input[l.position+1] == '-' || l.input[l.position+1] == '+') {
				l.position++
			}
		default:
			l.addToken(typ, l.input[start:l.position], start)
			return
		}
		l.position++
	}
	l.addToken(typ, l.input[start:l.position], start)
}

func (l *Lexer) addToken(typ TokenType, value string, pos int) {
	l.tokens = append(l.tokens, Token{Type: typ, Value: value, Position: pos})
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}
