package expr

import (
	"fmt"
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/literal"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// DefaultSearchDepth is the default recursion budget of a $search clause.
const DefaultSearchDepth = 100

type searchKind int

const (
	searchTerm searchKind = iota
	searchPhrase
	searchAnd
	searchOr
	searchNot
	searchLParen
	searchRParen
	searchEOF
)

type searchToken struct {
	kind searchKind
	text string
	pos  int
}

// searchParser parses the $search grammar:
//
//	or   = and *( "OR" and )
//	and  = not *( ["AND"] not )
//	not  = "NOT" not / primary
//	primary = term / "phrase" / "(" or ")"
//
// Terms become string LiteralTokens; AND, OR and NOT become operator tokens.
type searchParser struct {
	text     string
	toks     []searchToken
	pos      int
	depth    int
	maxDepth int
}

// ParseSearch parses a $search expression. Only WithMaxDepth and
// WithLogger are meaningful; keywords are always upper case.
func ParseSearch(text string, opts ...Option) (QueryToken, error) {
	cfg := NewLexerParser(nil, append([]Option{WithMaxDepth(DefaultSearchDepth)}, opts...)...)
	cfg.logger.Debug("parse start", "clause", "$search", "length", len(text))
	toks, err := scanSearch(text)
	if err != nil {
		return nil, err
	}
	sp := &searchParser{text: text, toks: toks, maxDepth: cfg.maxDepth}
	tok, err := sp.parseOr()
	if err != nil {
		return nil, err
	}
	if cur := sp.current(); cur.kind != searchEOF {
		return nil, sp.errorf(cur, "unexpected %q in $search", cur.text).WithCause(types.ErrUnexpectedToken)
	}
	return tok, nil
}

func scanSearch(text string) ([]searchToken, error) {
	var toks []searchToken
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, searchToken{kind: searchLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, searchToken{kind: searchRParen, text: ")", pos: i})
			i++
		case c == '"':
			var b strings.Builder
			j := i + 1
			for ; j < len(text) && text[j] != '"'; j++ {
				if text[j] == '\\' && j+1 < len(text) {
					j++
				}
				b.WriteByte(text[j])
			}
			if j >= len(text) {
				return nil, types.NewSyntaxError("unterminated phrase in $search", i, text).WithCause(types.ErrUnterminatedLiteral)
			}
			toks = append(toks, searchToken{kind: searchPhrase, text: b.String(), pos: i})
			i = j + 1
		default:
			j := i
			for j < len(text) && !strings.ContainsRune(" \t()\"", rune(text[j])) {
				j++
			}
			word := text[i:j]
			kind := searchTerm
			switch word {
			case "AND":
				kind = searchAnd
			case "OR":
				kind = searchOr
			case "NOT":
				kind = searchNot
			}
			toks = append(toks, searchToken{kind: kind, text: word, pos: i})
			i = j
		}
	}
	return append(toks, searchToken{kind: searchEOF, pos: len(text)}), nil
}

func (sp *searchParser) current() searchToken { return sp.toks[sp.pos] }

func (sp *searchParser) advance() { sp.pos++ }

func (sp *searchParser) errorf(tok searchToken, format string, args ...any) *types.ParseError {
	return types.NewSyntaxError(fmt.Sprintf(format, args...), tok.pos, sp.text)
}

func (sp *searchParser) enter() error {
	sp.depth++
	if sp.depth > sp.maxDepth {
		return types.NewRecursionError(sp.maxDepth)
	}
	return nil
}

func (sp *searchParser) parseOr() (QueryToken, error) {
	if err := sp.enter(); err != nil {
		return nil, err
	}
	defer func() { sp.depth-- }()
	left, err := sp.parseAnd()
	if err != nil {
		return nil, err
	}
	for sp.current().kind == searchOr {
		sp.advance()
		right, err := sp.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOperatorToken{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (sp *searchParser) parseAnd() (QueryToken, error) {
	left, err := sp.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		switch sp.current().kind {
		case searchAnd:
			sp.advance()
		case searchTerm, searchPhrase, searchNot, searchLParen:
			// implicit AND
		default:
			return left, nil
		}
		right, err := sp.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryOperatorToken{Op: OpAnd, Left: left, Right: right}
	}
}

func (sp *searchParser) parseNot() (QueryToken, error) {
	if sp.current().kind != searchNot {
		return sp.parsePrimary()
	}
	sp.advance()
	if err := sp.enter(); err != nil {
		return nil, err
	}
	defer func() { sp.depth-- }()
	operand, err := sp.parseNot()
	if err != nil {
		return nil, err
	}
	return &UnaryOperatorToken{Op: OpNot, Operand: operand}, nil
}

func (sp *searchParser) parsePrimary() (QueryToken, error) {
	tok := sp.current()
	switch tok.kind {
	case searchTerm:
		sp.advance()
		return &LiteralToken{Value: literal.NewString(tok.text), Text: tok.text}, nil
	case searchPhrase:
		sp.advance()
		return &LiteralToken{Value: literal.NewString(tok.text), Text: `"` + tok.text + `"`}, nil
	case searchLParen:
		sp.advance()
		inner, err := sp.parseOr()
		if err != nil {
			return nil, err
		}
		if sp.current().kind != searchRParen {
			return nil, sp.errorf(sp.current(), "expected ')' in $search").WithCause(types.ErrUnbalancedParens)
		}
		sp.advance()
		return inner, nil
	case searchEOF:
		return nil, sp.errorf(tok, "unexpected end of $search expression").WithCause(types.ErrUnexpectedToken)
	}
	return nil, sp.errorf(tok, "unexpected %q in $search", tok.text).WithCause(types.ErrUnexpectedToken)
}
