package expr

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/literal"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// DefaultMaxDepth is the default recursion budget of a clause.
const DefaultMaxDepth = 800

// Option configures a Parser.
type Option func(*Parser)

// WithMaxDepth sets the recursion budget.
func WithMaxDepth(n int) Option {
	return func(p *Parser) { p.maxDepth = n }
}

// WithCaseInsensitive enables case-insensitive keyword matching.
func WithCaseInsensitive(enabled bool) Option {
	return func(p *Parser) { p.caseInsensitive = enabled }
}

// WithLogger sets the logger used for debug records.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Parser is a precedence-climbing parser over a Lexer. It is not safe for
// concurrent use; create one per clause.
type Parser struct {
	lex             *Lexer
	maxDepth        int
	depth           int
	caseInsensitive bool
	logger          *slog.Logger
	rangeVars       []string // declared lambda variables, innermost last
}

// NewParser creates a parser over text.
func NewParser(text string, opts ...Option) (*Parser, error) {
	lex, err := NewLexer(text)
	if err != nil {
		return nil, err
	}
	return NewLexerParser(lex, opts...), nil
}

// NewLexerParser creates a parser that reads from an existing lexer.
func NewLexerParser(lex *Lexer, opts ...Option) *Parser {
	p := &Parser{
		lex:      lex,
		maxDepth: DefaultMaxDepth,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "expr")
	return p
}

// Lexer returns the underlying lexer.
func (p *Parser) Lexer() *Lexer { return p.lex }

// child returns a parser over lex that shares this parser's settings,
// recursion budget and range variables.
func (p *Parser) child(lex *Lexer) *Parser {
	return &Parser{
		lex:             lex,
		maxDepth:        p.maxDepth,
		depth:           p.depth,
		caseInsensitive: p.caseInsensitive,
		logger:          p.logger,
		rangeVars:       p.rangeVars,
	}
}

// ParseFilter parses a complete $filter expression.
func ParseFilter(text string, opts ...Option) (QueryToken, error) {
	p, err := NewParser(text, opts...)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("parse start", "clause", "$filter", "length", len(text))
	tok, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return tok, nil
}

// ParseOrderBy parses a comma-separated $orderby clause.
func ParseOrderBy(text string, opts ...Option) ([]*OrderByToken, error) {
	p, err := NewParser(text, opts...)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("parse start", "clause", "$orderby", "length", len(text))
	items, err := p.ParseOrderByItems()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return items, nil
}

// ParseCompute parses a comma-separated $compute clause.
func ParseCompute(text string, opts ...Option) (*ComputeToken, error) {
	p, err := NewParser(text, opts...)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("parse start", "clause", "$compute", "length", len(text))
	c, err := p.parseComputeItems()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseOrderByItems parses "expr [asc|desc]" items up to the first token
// that cannot continue the list.
func (p *Parser) ParseOrderByItems() ([]*OrderByToken, error) {
	var items []*OrderByToken
	for {
		e, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		item := &OrderByToken{Expression: e, Direction: Ascending}
		switch {
		case p.isWord("desc"):
			item.Direction = Descending
			if err := p.advance(); err != nil {
				return nil, err
			}
		case p.isWord("asc"):
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
		if p.current().Type != TokenComma {
			return items, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseComputeItems() (*ComputeToken, error) {
	c := &ComputeToken{}
	for {
		e, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		alias, err := p.parseAlias()
		if err != nil {
			return nil, err
		}
		c.Expressions = append(c.Expressions, &ComputeExpressionToken{Expression: e, Alias: alias})
		if p.current().Type != TokenComma {
			return c, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}

// parseAlias reads "as Identifier".
func (p *Parser) parseAlias() (string, error) {
	if !p.isWord("as") {
		return "", p.errorf(p.current(), "expected 'as', got %s", p.describeCurrent()).WithCause(types.ErrUnexpectedToken)
	}
	if err := p.advance(); err != nil {
		return "", err
	}
	tok, err := p.expect(TokenIdent)
	if err != nil {
		return "", err
	}
	return tok.Text, nil
}

// current returns the current token.
func (p *Parser) current() Token { return p.lex.Current() }

// advance consumes the current token.
func (p *Parser) advance() error {
	_, err := p.lex.Next()
	return err
}

// expect consumes a token of the expected type or returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.current()
	if tok.Type != tt {
		cause := types.ErrUnexpectedToken
		if tt == TokenRParen && tok.Type == TokenEOF {
			cause = types.ErrUnbalancedParens
		}
		return tok, p.errorf(tok, "expected %s, got %s", tt, p.describeCurrent()).WithCause(cause)
	}
	return tok, p.advance()
}

func (p *Parser) expectEOF() error {
	if tok := p.current(); tok.Type != TokenEOF {
		return p.errorf(tok, "unexpected %s after end of expression", p.describeCurrent()).WithCause(types.ErrUnexpectedToken)
	}
	return nil
}

func (p *Parser) errorf(tok Token, format string, args ...any) *types.ParseError {
	return types.NewSyntaxError(fmt.Sprintf(format, args...), tok.Pos, p.lex.Text())
}

func (p *Parser) describeCurrent() string {
	tok := p.current()
	if tok.Type == TokenEOF {
		return "end of text"
	}
	return fmt.Sprintf("%s %q", tok.Type, tok.Text)
}

// isWord reports whether the current token is the keyword word.
func (p *Parser) isWord(word string) bool {
	return p.current().Is(word, p.caseInsensitive)
}

// enter charges one level of the recursion budget.
func (p *Parser) enter() error {
	p.depth++
	if p.depth > p.maxDepth {
		return types.NewRecursionError(p.maxDepth)
	}
	return nil
}

func (p *Parser) leave() { p.depth-- }

// ParseExpression parses one expression starting at the current token and
// stops at the first token that cannot continue it.
// Precedence (low to high):
//
//	or
//	and
//	eq, ne, gt, ge, lt, le
//	add, sub
//	mul, div, divby, mod
//	-, not
//	in, has
//	primary: literal, path, function call, lambda, parentheses
func (p *Parser) ParseExpression() (QueryToken, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.parseOr()
}

func (p *Parser) parseOr() (QueryToken, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isWord("or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOperatorToken{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (QueryToken, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.isWord("and") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryOperatorToken{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

var comparisonOps = []struct {
	word string
	op   BinaryOp
}{
	{"eq", OpEqual}, {"ne", OpNotEqual},
	{"gt", OpGreaterThan}, {"ge", OpGreaterThanOrEqual},
	{"lt", OpLessThan}, {"le", OpLessThanOrEqual},
}

var additiveOps = []struct {
	word string
	op   BinaryOp
}{
	{"add", OpAdd}, {"sub", OpSubtract},
}

var multiplicativeOps = []struct {
	word string
	op   BinaryOp
}{
	{"mul", OpMultiply}, {"div", OpDivide}, {"divby", OpDivideBy}, {"mod", OpModulo},
}

// matchOp returns the operator of the current keyword token, if it is one
// of ops.
func (p *Parser) matchOp(ops []struct {
	word string
	op   BinaryOp
}) (BinaryOp, bool) {
	for _, o := range ops {
		if p.isWord(o.word) {
			return o.op, true
		}
	}
	return 0, false
}

func (p *Parser) parseComparison() (QueryToken, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.matchOp(comparisonOps)
		if !ok {
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryOperatorToken{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseAdditive() (QueryToken, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.matchOp(additiveOps)
		if !ok {
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryOperatorToken{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseMultiplicative() (QueryToken, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.matchOp(multiplicativeOps)
		if !ok {
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOperatorToken{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (QueryToken, error) {
	var op UnaryOp
	switch {
	case p.current().Type == TokenMinus:
		op = OpNegate
	case p.isWord("not"):
		op = OpNot
	default:
		return p.parseInHas()
	}
	minus := p.current()
	if err := p.advance(); err != nil {
		return nil, err
	}
	if op == OpNegate && p.current().Type.IsNumeric() {
		// The sign becomes part of the literal.
		tok := p.current()
		text := "-" + tok.Text
		v, err := literal.Parse(text)
		if err != nil {
			return nil, p.errorf(minus, "invalid numeric literal %q", text).WithCause(types.ErrInvalidLiteral)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseInHasFrom(&LiteralToken{Value: v, Text: text})
	}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &UnaryOperatorToken{Op: op, Operand: operand}, nil
}

func (p *Parser) parseInHas() (QueryToken, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parseInHasFrom(left)
}

func (p *Parser) parseInHasFrom(left QueryToken) (QueryToken, error) {
	for {
		switch {
		case p.isWord("has"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			left = &BinaryOperatorToken{Op: OpHas, Left: left, Right: right}
		case p.isWord("in"):
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseInRight()
			if err != nil {
				return nil, err
			}
			left = &InToken{Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

// parseInRight reads the right operand of 'in': a parenthesized list, a
// JSON array, or a collection-valued path.
func (p *Parser) parseInRight() (QueryToken, error) {
	switch tok := p.current(); tok.Type {
	case TokenLParen:
		inner, err := p.lex.ReadBalanced()
		if err != nil {
			return nil, err
		}
		return &LiteralToken{Text: "(" + inner + ")", Form: FormList}, nil
	case TokenBracketed:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &LiteralToken{Text: tok.Text, Form: FormJSON}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (QueryToken, error) {
	node, err := p.parsePrimaryStart()
	if err != nil {
		return nil, err
	}
	for p.current().Type == TokenSlash {
		if err := p.advance(); err != nil {
			return nil, err
		}
		node, err = p.parseMemberAccess(node)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

func (p *Parser) parsePrimaryStart() (QueryToken, error) {
	tok := p.current()
	switch {
	case tok.Type == TokenBracketed:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &LiteralToken{Text: tok.Text, Form: FormJSON}, nil
	case tok.Type.IsLiteral():
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &LiteralToken{Value: tok.Value, Text: tok.Text}, nil
	case tok.Type == TokenParameterAlias:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ParameterAliasToken{Alias: tok.Text}, nil
	case tok.Type == TokenLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return e, nil
	case tok.Type == TokenStar:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &StarToken{}, nil
	case tok.Type == TokenIdent:
		if tok.Text == "$it" || tok.Text == "$this" || p.isRangeVariable(tok.Text) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &RangeVariableToken{Name: tok.Text}, nil
		}
		return p.parseSegment(nil)
	}
	return nil, p.errorf(tok, "unexpected %s", p.describeCurrent()).WithCause(types.ErrUnexpectedToken)
}

func (p *Parser) isRangeVariable(name string) bool {
	for _, v := range p.rangeVars {
		if v == name {
			return true
		}
	}
	return false
}

// parseMemberAccess parses the segment after a '/'.
func (p *Parser) parseMemberAccess(parent QueryToken) (QueryToken, error) {
	tok := p.current()
	switch tok.Type {
	case TokenStar:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &StarToken{NextToken: parent}, nil
	case TokenIdent:
	default:
		return nil, p.errorf(tok, "expected a member name after '/', got %s", p.describeCurrent()).WithCause(types.ErrUnexpectedToken)
	}
	if tok.Text == "$count" {
		return p.parseCountSegment(parent)
	}
	if p.isWord("any") || p.isWord("all") {
		next, err := p.lex.Peek()
		if err != nil {
			return nil, err
		}
		if next.Type == TokenLParen {
			return p.parseLambda(parent)
		}
	}
	return p.parseSegment(parent)
}

// parseSegment reads an identifier (possibly qualified) and what follows
// it: a function call, a key, or nothing.
func (p *Parser) parseSegment(parent QueryToken) (QueryToken, error) {
	first, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString(first.Text)
	dotted := false
	for p.current().Type == TokenDot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.current().Type == TokenStar {
			if err := p.advance(); err != nil {
				return nil, err
			}
			return &StarToken{Namespace: b.String(), NextToken: parent}, nil
		}
		part, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		b.WriteByte('.')
		b.WriteString(part.Text)
		dotted = true
	}
	name := b.String()

	if p.current().Type == TokenLParen {
		args, ok, err := p.ParseArgumentList(true)
		if err != nil {
			return nil, err
		}
		if ok {
			return &FunctionCallToken{Name: name, Arguments: args, Source: parent}, nil
		}
		inner, err := p.lex.ReadBalanced()
		if err != nil {
			return nil, err
		}
		keys, err := ParseKeyValues(inner)
		if err != nil {
			return nil, err
		}
		return &InnerPathToken{Identifier: name, NextToken: parent, NamedValues: keys}, nil
	}
	if dotted {
		return &DottedIdentifierToken{Identifier: name, NextToken: parent}, nil
	}
	if p.current().Type == TokenSlash {
		return &InnerPathToken{Identifier: name, NextToken: parent}, nil
	}
	return &EndPathToken{Identifier: name, NextToken: parent}, nil
}

// parseLambda parses any(v:expr), all(v:expr) or any().
func (p *Parser) parseLambda(parent QueryToken) (QueryToken, error) {
	lambda := &LambdaToken{All: p.isWord("all"), Parent: parent}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	if !lambda.All && p.current().Type == TokenRParen {
		return lambda, p.advance()
	}
	v, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if v.Text == "$it" || v.Text == "$this" || p.isRangeVariable(v.Text) {
		return nil, types.NewBindingError(fmt.Sprintf("range variable '%s' is already declared", v.Text)).
			WithCause(types.ErrRangeVariableInUse)
	}
	if _, err := p.expect(TokenColon); err != nil {
		return nil, err
	}
	lambda.Parameter = v.Text
	saved := p.rangeVars
	p.rangeVars = append(append([]string(nil), saved...), v.Text)
	body, err := p.ParseExpression()
	p.rangeVars = saved
	if err != nil {
		return nil, err
	}
	lambda.Expression = body
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return lambda, nil
}

// parseCountSegment parses $count with optional ($filter=...;$search=...).
func (p *Parser) parseCountSegment(parent QueryToken) (QueryToken, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	count := &CountSegmentToken{NextToken: parent}
	if p.current().Type != TokenLParen {
		return count, nil
	}
	inner, err := p.lex.ReadBalanced()
	if err != nil {
		return nil, err
	}
	for _, opt := range splitOptions(inner) {
		name, value, ok := strings.Cut(opt, "=")
		if !ok {
			return nil, types.NewSyntaxError(fmt.Sprintf("invalid $count option '%s'", opt), -1, inner).WithCause(types.ErrInvalidOption)
		}
		name = strings.TrimSpace(name)
		switch {
		case p.keywordEqual(name, "$filter"):
			lex, err := NewLexer(value)
			if err != nil {
				return nil, err
			}
			sub := p.child(lex)
			e, err := sub.ParseExpression()
			if err != nil {
				return nil, err
			}
			if err := sub.expectEOF(); err != nil {
				return nil, err
			}
			count.Filter = e
		case p.keywordEqual(name, "$search"):
			e, err := ParseSearch(value, WithMaxDepth(p.maxDepth-p.depth), WithCaseInsensitive(p.caseInsensitive))
			if err != nil {
				return nil, err
			}
			count.Search = e
		default:
			return nil, types.NewSyntaxError(fmt.Sprintf("query option '%s' is not allowed on $count", name), -1, inner).WithCause(types.ErrInvalidOption)
		}
	}
	return count, nil
}

func (p *Parser) keywordEqual(a, b string) bool {
	if p.caseInsensitive {
		return equalFold(a, b)
	}
	return a == b
}

// splitOptions splits text on top-level semicolons.
func splitOptions(text string) []string {
	var parts []string
	for start := 0; start < len(text); {
		i, err := delimiterIndex(text, start)
		if err != nil {
			i = len(text)
		}
		if part := strings.TrimSpace(text[start:i]); part != "" {
			parts = append(parts, part)
		}
		start = i + 1
	}
	return parts
}
