// Package selectexpand parses $select and $expand clauses into SelectToken
// and ExpandToken trees. Each comma-separated term is a path followed by an
// optional parenthesized, semicolon-delimited option list; nested $select
// and $expand options recurse with a reduced expansion budget.
package selectexpand

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/expr"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// Settings bound the work done for one clause.
type Settings struct {
	MaxPathDepth         int // segments in one term path
	MaxExpansionDepth    int // nesting of $select/$expand options
	MaxFilterDepth       int
	MaxOrderByDepth      int
	MaxSearchDepth       int
	CaseInsensitive      bool
	NoDollarQueryOptions bool // option names may omit the '$'
}

// DefaultSettings returns the default limits.
func DefaultSettings() Settings {
	return Settings{
		MaxPathDepth:      100,
		MaxExpansionDepth: 100,
		MaxFilterDepth:    expr.DefaultMaxDepth,
		MaxOrderByDepth:   expr.DefaultMaxDepth,
		MaxSearchDepth:    expr.DefaultSearchDepth,
	}
}

// Option configures a Parser.
type Option func(*Parser)

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(p *Parser) { p.settings = s }
}

// WithResolver lets the parser look up type casts and navigation targets,
// which star expansion needs below the top level.
func WithResolver(r edm.Resolver) Option {
	return func(p *Parser) { p.resolver = r }
}

// WithLogger sets the logger used for debug records.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Parser parses $select and $expand text. A Parser holds no per-call state
// and may be shared.
type Parser struct {
	settings Settings
	resolver edm.Resolver
	logger   *slog.Logger
}

// NewParser creates a Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{settings: DefaultSettings(), logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "selectexpand")
	return p
}

// ParseSelect parses a $select clause. parent is the type the clause applies
// to; it may be nil.
func (p *Parser) ParseSelect(text string, parent *edm.StructuredType) (*expr.SelectToken, error) {
	p.logger.Debug("parse start", "clause", "$select", "length", len(text))
	return p.parseSelect(text, parent, p.settings.MaxExpansionDepth)
}

// ParseExpand parses a $expand clause. Star terms are replaced by one term
// per navigation property of parent when parent is known.
func (p *Parser) ParseExpand(text string, parent *edm.StructuredType) (*expr.ExpandToken, error) {
	p.logger.Debug("parse start", "clause", "$expand", "length", len(text))
	return p.parseExpand(text, parent, p.settings.MaxExpansionDepth)
}

func (p *Parser) exprOptions(depth int) []expr.Option {
	return []expr.Option{
		expr.WithMaxDepth(depth),
		expr.WithCaseInsensitive(p.settings.CaseInsensitive),
		expr.WithLogger(p.logger),
	}
}

func (p *Parser) parseSelect(text string, parent *edm.StructuredType, budget int) (*expr.SelectToken, error) {
	if budget <= 0 {
		return nil, types.NewRecursionError(p.settings.MaxExpansionDepth)
	}
	sel := &expr.SelectToken{}
	err := p.parseTerms(text, func(tp *termParser) error {
		path, err := tp.readPath()
		if err != nil {
			return err
		}
		if _, ok := path.(*expr.SystemToken); ok {
			return tp.errorf("'%s' cannot be selected", path.Identifier()).WithCause(types.ErrUnexpectedToken)
		}
		opts, err := tp.readOptions(p.pathType(parent, path), budget, selectOptions)
		if err != nil {
			return err
		}
		if isStar(path) {
			if opts.any() {
				return tp.errorf("options are not allowed on '%s'", expr.PathString(path)).WithCause(types.ErrStarOption)
			}
			if tp.sawStar {
				return tp.errorf("'*' may appear only once").WithCause(types.ErrDuplicateStar)
			}
			tp.sawStar = true
		}
		sel.Terms = append(sel.Terms, opts.selectTerm(path))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sel, nil
}

func (p *Parser) parseExpand(text string, parent *edm.StructuredType, budget int) (*expr.ExpandToken, error) {
	if budget <= 0 {
		return nil, types.NewRecursionError(p.settings.MaxExpansionDepth)
	}
	exp := &expr.ExpandToken{}
	err := p.parseTerms(text, func(tp *termParser) error {
		path, err := tp.readPath()
		if err != nil {
			return err
		}
		allowed := expandOptions
		star := isStar(path)
		if star {
			if tp.sawStar {
				return tp.errorf("'*' may appear only once").WithCause(types.ErrDuplicateStar)
			}
			tp.sawStar = true
			allowed = starOptions
			if _, ref := expr.Last(path).(*expr.SystemToken); ref {
				allowed = nil
			}
		}
		opts, err := tp.readOptions(p.pathType(parent, path), budget, allowed)
		if err != nil {
			return err
		}
		exp.Terms = append(exp.Terms, opts.expandTerm(path))
		return nil
	})
	if err != nil {
		return nil, err
	}
	exp.Terms = p.expandStar(exp.Terms, parent)
	return exp, nil
}

// parseTerms lexes text and calls term once per comma-separated item.
func (p *Parser) parseTerms(text string, term func(tp *termParser) error) error {
	if strings.TrimSpace(text) == "" {
		return types.NewSyntaxError("empty clause", 0, text).WithCause(types.ErrUnexpectedToken)
	}
	lex, err := expr.NewLexer(text, expr.WithSemicolonDelimiter())
	if err != nil {
		return err
	}
	tp := &termParser{p: p, lex: lex}
	for {
		if err := term(tp); err != nil {
			return err
		}
		switch tok := lex.Current(); tok.Type {
		case expr.TokenEOF:
			return nil
		case expr.TokenComma:
			if _, err := lex.Next(); err != nil {
				return err
			}
		default:
			return tp.errorf("expected ',' or end of clause, got %s %q", tok.Type, tok.Text).WithCause(types.ErrUnexpectedToken)
		}
	}
}

// pathType returns the type a term path ends on, or nil when it cannot be
// determined.
func (p *Parser) pathType(parent *edm.StructuredType, path expr.PathSegmentToken) *edm.StructuredType {
	cur := parent
	ci := p.settings.CaseInsensitive
	for seg := path; seg != nil && cur != nil; seg = seg.Next() {
		if _, ok := seg.(*expr.SystemToken); ok {
			continue
		}
		name := seg.Identifier()
		switch {
		case name == "*" || strings.HasSuffix(name, ".*"):
			return nil
		case seg.IsNamespaceOrContainerQualified():
			if p.resolver == nil {
				return nil
			}
			cast, _ := p.resolver.ResolveType(name).(*edm.StructuredType)
			if cast == nil || !cast.IsOrDerivesFrom(cur) {
				return nil
			}
			cur = cast
		default:
			if nav := cur.FindNavigation(name, ci); nav != nil {
				cur = nav.Target
			} else if prop := cur.FindProperty(name, ci); prop != nil {
				cur = prop.Type.Structured()
			} else {
				return nil
			}
		}
	}
	return cur
}

func isStar(path expr.PathSegmentToken) bool {
	return path != nil && path.Identifier() == "*"
}

// termParser holds the per-clause cursor.
type termParser struct {
	p       *Parser
	lex     *expr.Lexer
	sawStar bool
}

func (tp *termParser) errorf(format string, args ...any) *types.ParseError {
	return types.NewSyntaxError(fmt.Sprintf(format, args...), tp.lex.Current().Pos, tp.lex.Text())
}

func (tp *termParser) next() error {
	_, err := tp.lex.Next()
	return err
}

// readPath reads '/'-separated segments. The chain is built last segment
// first and reversed once complete.
func (tp *termParser) readPath() (expr.PathSegmentToken, error) {
	var reversed expr.PathSegmentToken
	count := 0
	for {
		count++
		if count > tp.p.settings.MaxPathDepth {
			return nil, types.NewPathTooLongError(tp.p.settings.MaxPathDepth)
		}
		seg, err := tp.readSegment(reversed)
		if err != nil {
			return nil, err
		}
		reversed = seg
		if tp.lex.Current().Type != expr.TokenSlash {
			break
		}
		if err := tp.next(); err != nil {
			return nil, err
		}
	}
	return expr.Reverse(reversed), nil
}

func (tp *termParser) readSegment(prev expr.PathSegmentToken) (expr.PathSegmentToken, error) {
	tok := tp.lex.Current()
	switch tok.Type {
	case expr.TokenStar:
		if err := tp.next(); err != nil {
			return nil, err
		}
		return &expr.NonSystemToken{Name: "*", NextToken: prev}, nil
	case expr.TokenIdent:
	default:
		return nil, tp.errorf("expected a path segment, got %s %q", tok.Type, tok.Text).WithCause(types.ErrUnexpectedToken)
	}
	if strings.HasPrefix(tok.Text, "$") {
		switch tok.Text {
		case "$ref", "$count", "$value":
		default:
			return nil, tp.errorf("unknown system segment '%s'", tok.Text).WithCause(types.ErrUnexpectedToken)
		}
		if err := tp.next(); err != nil {
			return nil, err
		}
		return &expr.SystemToken{Name: tok.Text, NextToken: prev}, nil
	}
	name := tok.Text
	if err := tp.next(); err != nil {
		return nil, err
	}
	for tp.lex.Current().Type == expr.TokenDot {
		if err := tp.next(); err != nil {
			return nil, err
		}
		part := tp.lex.Current()
		switch part.Type {
		case expr.TokenStar:
			name += ".*"
		case expr.TokenIdent:
			name += "." + part.Text
		default:
			return nil, tp.errorf("expected a name after '.'").WithCause(types.ErrUnexpectedToken)
		}
		if err := tp.next(); err != nil {
			return nil, err
		}
		if part.Type == expr.TokenStar {
			break
		}
	}
	return &expr.NonSystemToken{Name: name, NextToken: prev}, nil
}
