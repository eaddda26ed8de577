package expr

import (
	"fmt"
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/literal"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// Lexer tokenizes OData expression text. It always holds a valid current
// token; Next advances and Peek looks one token ahead without moving.
type Lexer struct {
	input     string
	pos       int // scan position: the byte after the current token
	tok       Token
	semicolon bool
}

// Snapshot is a saved lexer cursor.
type Snapshot struct {
	pos int
	tok Token
}

// LexerOption configures a Lexer.
type LexerOption func(*Lexer)

// WithSemicolonDelimiter makes ';' a token. It is used for the option lists
// of $expand items.
func WithSemicolonDelimiter() LexerOption {
	return func(l *Lexer) { l.semicolon = true }
}

// NewLexer creates a lexer positioned on the first token of input.
func NewLexer(input string, opts ...LexerOption) (*Lexer, error) {
	l := &Lexer{input: input}
	for _, opt := range opts {
		opt(l)
	}
	if _, err := l.Next(); err != nil {
		return nil, err
	}
	return l, nil
}

// Text returns the complete input.
func (l *Lexer) Text() string { return l.input }

// Current returns the current token.
func (l *Lexer) Current() Token { return l.tok }

// Snapshot saves the cursor.
func (l *Lexer) Snapshot() Snapshot { return Snapshot{pos: l.pos, tok: l.tok} }

// Restore moves the cursor back to a saved snapshot.
func (l *Lexer) Restore(s Snapshot) {
	l.pos = s.pos
	l.tok = s.tok
}

// Next advances to the next token and returns it.
func (l *Lexer) Next() (Token, error) {
	tok, err := l.scan()
	if err != nil {
		return l.tok, err
	}
	l.tok = tok
	return tok, nil
}

// Peek returns the token after the current one without consuming anything.
func (l *Lexer) Peek() (Token, error) {
	saved := l.Snapshot()
	defer l.Restore(saved)
	return l.Next()
}

func (l *Lexer) syntaxError(pos int, format string, args ...any) *types.ParseError {
	return types.NewSyntaxError(fmt.Sprintf(format, args...), pos, l.input)
}

// scan reads the token starting at l.pos.
func (l *Lexer) scan() (Token, error) {
	l.skipWhitespace()
	start := l.pos
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}, nil
	}
	ch := l.input[l.pos]

	switch {
	case ch == '\'':
		end, err := l.quotedEnd(l.pos)
		if err != nil {
			return Token{}, err
		}
		return l.literal(start, end)
	case ch == '[' || ch == '{':
		return l.readBracketed()
	case ch == '@':
		l.pos++
		if l.pos >= len(l.input) || !isIdentStart(l.input[l.pos]) {
			return Token{}, l.syntaxError(start, "parameter alias has no name").WithCause(types.ErrUnexpectedToken)
		}
		l.scanIdent()
		return Token{Type: TokenParameterAlias, Text: l.input[start:l.pos], Pos: start}, nil
	case ch == '-':
		if l.pos+1 < len(l.input) && (isDigit(l.input[l.pos+1]) || strings.HasPrefix(l.input[l.pos+1:], "INF")) {
			l.pos++
			tok, err := l.readNumeric(start)
			if err == nil {
				return tok, nil
			}
			l.pos = start + 1
			return Token{Type: TokenMinus, Text: "-", Pos: start}, nil
		}
		l.pos++
		return Token{Type: TokenMinus, Text: "-", Pos: start}, nil
	case isDigit(ch) || isHex(ch):
		if end, ok := l.guidEnd(l.pos); ok {
			return l.literal(start, end)
		}
		if isDigit(ch) {
			return l.readNumeric(start)
		}
	}

	if isIdentStart(ch) || ch == '$' {
		return l.readIdentifier()
	}

	l.pos++
	switch ch {
	case '.':
		return Token{Type: TokenDot, Text: ".", Pos: start}, nil
	case ',':
		return Token{Type: TokenComma, Text: ",", Pos: start}, nil
	case '(':
		return Token{Type: TokenLParen, Text: "(", Pos: start}, nil
	case ')':
		return Token{Type: TokenRParen, Text: ")", Pos: start}, nil
	case '/':
		return Token{Type: TokenSlash, Text: "/", Pos: start}, nil
	case ':':
		return Token{Type: TokenColon, Text: ":", Pos: start}, nil
	case '=':
		return Token{Type: TokenEqual, Text: "=", Pos: start}, nil
	case '*':
		return Token{Type: TokenStar, Text: "*", Pos: start}, nil
	case ';':
		if l.semicolon {
			return Token{Type: TokenSemicolon, Text: ";", Pos: start}, nil
		}
	}
	l.pos = start
	return Token{}, l.syntaxError(start, "unexpected character %q", string(ch)).WithCause(types.ErrUnexpectedToken)
}

// literal converts input[start:end] with the literal package.
func (l *Lexer) literal(start, end int) (Token, error) {
	text := l.input[start:end]
	v, err := literal.Parse(text)
	if err != nil {
		if pe, ok := err.(*types.ParseError); ok {
			pe.Position = start
			pe.Text = l.input
		}
		return Token{}, err
	}
	l.pos = end
	return Token{Type: literalTokenType(v), Text: text, Value: v, Pos: start}, nil
}

// quotedEnd returns the offset just past the quoted string starting at i.
// Doubled quotes are part of the string.
func (l *Lexer) quotedEnd(i int) (int, error) {
	start := i
	i++
	for i < len(l.input) {
		if l.input[i] == '\'' {
			if i+1 < len(l.input) && l.input[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, l.syntaxError(start, "unterminated string literal").WithCause(types.ErrUnterminatedLiteral)
}

// guidEnd recognizes an unquoted guid at i.
func (l *Lexer) guidEnd(i int) (int, bool) {
	const n = 36
	if i+n > len(l.input) {
		return 0, false
	}
	for j := 0; j < n; j++ {
		c := l.input[i+j]
		switch j {
		case 8, 13, 18, 23:
			if c != '-' {
				return 0, false
			}
		default:
			if !isHex(c) {
				return 0, false
			}
		}
	}
	if i+n < len(l.input) && isIdentPart(l.input[i+n]) {
		return 0, false
	}
	return i + n, true
}

// readNumeric reads numbers, dates, times and date-time-offsets. l.pos is
// past an optional leading '-'.
func (l *Lexer) readNumeric(start int) (Token, error) {
	if strings.HasPrefix(l.input[l.pos:], "INF") {
		l.pos += 3
		if l.pos < len(l.input) && (l.input[l.pos] == 'f' || l.input[l.pos] == 'F' || l.input[l.pos] == 'd' || l.input[l.pos] == 'D') {
			l.pos++
		}
		if l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
			return Token{}, l.syntaxError(start, "invalid numeric literal").WithCause(types.ErrInvalidLiteral)
		}
		return l.literal(start, l.pos)
	}
	digits := l.pos
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	n := l.pos - digits
	if l.pos < len(l.input) && start == digits {
		c := l.input[l.pos]
		if (n == 4 && c == '-') || (n == 2 && c == ':') {
			for l.pos < len(l.input) && isTemporalPart(l.input[l.pos]) {
				l.pos++
			}
			return l.literal(start, l.pos)
		}
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]) {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		j := l.pos + 1
		if j < len(l.input) && (l.input[j] == '+' || l.input[j] == '-') {
			j++
		}
		if j < len(l.input) && isDigit(l.input[j]) {
			l.pos = j
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.pos++
			}
		}
	}
	if l.pos < len(l.input) {
		switch l.input[l.pos] {
		case 'L', 'l', 'f', 'F', 'd', 'D', 'm', 'M':
			if l.pos+1 >= len(l.input) || !isIdentPart(l.input[l.pos+1]) {
				l.pos++
			}
		}
	}
	if l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		return Token{}, l.syntaxError(start, "invalid numeric literal %q", l.input[start:l.pos+1]).WithCause(types.ErrInvalidLiteral)
	}
	return l.literal(start, l.pos)
}

// readIdentifier reads an identifier, recognizing the identifier-prefixed
// literal forms: typed literals (binary'..', duration'..'), qualified quoted
// literals (Ns.Color'Red'), INF, NaN, true, false and null.
func (l *Lexer) readIdentifier() (Token, error) {
	start := l.pos
	if l.input[l.pos] == '$' {
		l.pos++
	}
	l.scanIdent()
	word := l.input[start:l.pos]

	switch word {
	case "true", "false", "null", "INF", "NaN":
		return l.literal(start, l.pos)
	case "INFf", "INFd", "NaNf", "NaNd":
		return l.literal(start, l.pos)
	}

	if l.pos < len(l.input) && l.input[l.pos] == '\'' {
		if isTypedPrefix(word) {
			end, err := l.quotedEnd(l.pos)
			if err != nil {
				return Token{}, err
			}
			return l.literal(start, end)
		}
	}

	// A dotted name directly followed by a quote is a qualified literal.
	j := l.pos
	for j+1 < len(l.input) && l.input[j] == '.' && isIdentStart(l.input[j+1]) {
		j += 2
		for j < len(l.input) && isIdentPart(l.input[j]) {
			j++
		}
	}
	if j > l.pos && j < len(l.input) && l.input[j] == '\'' {
		end, err := l.quotedEnd(j)
		if err != nil {
			return Token{}, err
		}
		return l.literal(start, end)
	}
	return Token{Type: TokenIdent, Text: word, Pos: start}, nil
}

func (l *Lexer) scanIdent() {
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
}

// readBracketed reads a JSON array or object literal as raw text.
func (l *Lexer) readBracketed() (Token, error) {
	start := l.pos
	end, err := balancedEnd(l.input, start)
	if err != nil {
		return Token{}, l.syntaxError(start, "%v", err).WithCause(types.ErrUnbalancedParens)
	}
	l.pos = end
	return Token{Type: TokenBracketed, Text: l.input[start:end], Pos: start}, nil
}

// ReadBalanced consumes the parenthesized group that starts at the current
// '(' token and returns the text between the parentheses. Parentheses
// inside string literals do not count.
func (l *Lexer) ReadBalanced() (string, error) {
	if l.tok.Type != TokenLParen {
		return "", l.syntaxError(l.tok.Pos, "expected '(', got %s", l.tok.Type).WithCause(types.ErrUnexpectedToken)
	}
	start := l.tok.Pos
	end, err := balancedEnd(l.input, start)
	if err != nil {
		return "", l.syntaxError(start, "%v", err).WithCause(types.ErrUnbalancedParens)
	}
	l.pos = end
	if _, err := l.Next(); err != nil {
		return "", err
	}
	return l.input[start+1 : end-1], nil
}

// ReadOptionText consumes the raw text that follows the current token up
// to, but not including, the next top-level ';' or unmatched ')', and
// positions the lexer on that delimiter. The text itself is not lexed.
func (l *Lexer) ReadOptionText() (string, error) {
	start := l.pos
	i, err := delimiterIndex(l.input, start)
	if err != nil {
		return "", l.syntaxError(start, "%v", err).WithCause(types.ErrUnbalancedParens)
	}
	l.pos = i
	if _, err := l.Next(); err != nil {
		return "", err
	}
	return strings.TrimSpace(l.input[start:i]), nil
}

// AdvanceTo positions the lexer on the token starting at offset pos.
func (l *Lexer) AdvanceTo(pos int) error {
	l.pos = pos
	_, err := l.Next()
	return err
}

// balancedEnd returns the offset past the bracket group opening at s[start].
// Both quote styles are skipped so that JSON strings may contain brackets.
func balancedEnd(s string, start int) (int, error) {
	var stack []byte
	for i := start; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'', '"':
			j := i + 1
			for j < len(s) {
				if s[j] == c {
					if c == '\'' && j+1 < len(s) && s[j+1] == '\'' {
						j += 2
						continue
					}
					break
				}
				if c == '"' && s[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(s) {
				return 0, fmt.Errorf("unterminated string inside brackets")
			}
			i = j
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != opening(c) {
				return 0, fmt.Errorf("unbalanced %q", string(c))
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced brackets: missing closing bracket")
}

// delimiterIndex finds the first top-level ';' or unmatched ')' at or after start.
func delimiterIndex(s string, start int) (int, error) {
	depth := 0
	for i := start; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'':
			j := i + 1
			for j < len(s) {
				if s[j] == '\'' {
					if j+1 < len(s) && s[j+1] == '\'' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if j >= len(s) {
				return 0, fmt.Errorf("unterminated string literal")
			}
			i = j
		case '(', '[', '{':
			depth++
		case ']', '}':
			depth--
		case ')':
			if depth == 0 {
				return i, nil
			}
			depth--
		case ';':
			if depth == 0 {
				return i, nil
			}
		}
	}
	if depth > 0 {
		return 0, fmt.Errorf("unbalanced parentheses")
	}
	return len(s), nil
}

func opening(c byte) byte {
	switch c {
	case ')':
		return '('
	case ']':
		return '['
	}
	return '{'
}

func isTypedPrefix(word string) bool {
	switch strings.ToLower(word) {
	case "binary", "x", "duration", "geography", "geometry":
		return true
	}
	return false
}

func isTemporalPart(ch byte) bool {
	return isDigit(ch) || ch == '-' || ch == ':' || ch == '.' || ch == 'T' || ch == 'Z' || ch == '+'
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && (l.input[l.pos] == ' ' || l.input[l.pos] == '\t' || l.input[l.pos] == '\n' || l.input[l.pos] == '\r') {
		l.pos++
	}
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isHex(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// Bytes >= 0x80 belong to multi-byte UTF-8 letters.
func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch >= 0x80
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
