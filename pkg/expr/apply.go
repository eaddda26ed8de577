package expr

import (
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// ParseApply parses a $apply clause: transformations separated by '/'.
func ParseApply(text string, opts ...Option) ([]QueryToken, error) {
	p, err := NewParser(text, opts...)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("parse start", "clause", "$apply", "length", len(text))
	ts, err := p.ParseTransformations()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return ts, nil
}

// ParseTransformations parses a '/'-separated transformation sequence.
func (p *Parser) ParseTransformations() ([]QueryToken, error) {
	var ts []QueryToken
	for {
		t, err := p.parseTransformation()
		if err != nil {
			return nil, err
		}
		ts = append(ts, t)
		if p.current().Type != TokenSlash {
			return ts, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseTransformation() (QueryToken, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	tok := p.current()
	switch {
	case p.isWord("identity"):
		return &IdentityToken{}, p.advance()
	case p.isWord("aggregate"):
		if err := p.openTransformation(); err != nil {
			return nil, err
		}
		exprs, err := p.parseAggregateList()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return &AggregateToken{Expressions: exprs}, nil
	case p.isWord("groupby"):
		return p.parseGroupBy()
	case p.isWord("filter"):
		if err := p.openTransformation(); err != nil {
			return nil, err
		}
		e, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return &ApplyFilterToken{Expression: e}, nil
	case p.isWord("compute"):
		if err := p.openTransformation(); err != nil {
			return nil, err
		}
		c, err := p.parseComputeItems()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return c, nil
	case p.isWord("expand"):
		if err := p.openTransformation(); err != nil {
			return nil, err
		}
		return p.parseApplyExpand()
	}
	return nil, p.errorf(tok, "unknown transformation %s", p.describeCurrent()).WithCause(types.ErrUnexpectedToken)
}

// openTransformation consumes the transformation name and its '('.
func (p *Parser) openTransformation() error {
	if err := p.advance(); err != nil {
		return err
	}
	_, err := p.expect(TokenLParen)
	return err
}

func (p *Parser) parseAggregateList() ([]QueryToken, error) {
	var exprs []QueryToken
	for {
		e, err := p.parseAggregateExpression()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if p.current().Type != TokenComma {
			return exprs, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}

// parseAggregateExpression parses one of
//
//	$count as Alias
//	Expression with method as Alias [from Property ...]
//	Expression as Alias
//	NavigationPath(aggregate-expression, ...)
func (p *Parser) parseAggregateExpression() (QueryToken, error) {
	if p.current().Type == TokenIdent && p.current().Text == "$count" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		alias, err := p.parseAlias()
		if err != nil {
			return nil, err
		}
		return &AggregateExpressionToken{Method: AggregateCount, Alias: alias}, nil
	}
	if agg, ok, err := p.tryEntitySetAggregate(); err != nil || ok {
		return agg, err
	}

	e, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	a := &AggregateExpressionToken{Expression: e, Method: AggregateVirtual}
	if p.isWord("with") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.parseAggregationMethod(a); err != nil {
			return nil, err
		}
	}
	if a.Alias, err = p.parseAlias(); err != nil {
		return nil, err
	}
	for p.isWord("from") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		prop, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		a.From = append(a.From, prop)
	}
	return a, nil
}

func (p *Parser) parseAggregationMethod(a *AggregateExpressionToken) error {
	methods := []struct {
		word   string
		method AggregationMethod
	}{
		{"sum", AggregateSum}, {"min", AggregateMin}, {"max", AggregateMax},
		{"average", AggregateAverage}, {"countdistinct", AggregateCountDistinct},
	}
	for _, m := range methods {
		if p.isWord(m.word) {
			a.Method = m.method
			return p.advance()
		}
	}
	name, err := p.expect(TokenIdent)
	if err != nil {
		return err
	}
	qualified := name.Text
	for p.current().Type == TokenDot {
		if err := p.advance(); err != nil {
			return err
		}
		part, err := p.expect(TokenIdent)
		if err != nil {
			return err
		}
		qualified += "." + part.Text
	}
	if qualified == name.Text {
		return p.errorf(name, "unknown aggregation method '%s'", name.Text).WithCause(types.ErrUnexpectedToken)
	}
	a.Method = AggregateCustom
	a.MethodName = qualified
	return nil
}

// tryEntitySetAggregate probes for Nav(aggregate-list). Each nesting level
// charges one level of the recursion budget. On no match the lexer and the
// depth are left where they started.
func (p *Parser) tryEntitySetAggregate() (QueryToken, bool, error) {
	if p.current().Type != TokenIdent {
		return nil, false, nil
	}
	saved := p.lex.Snapshot()
	savedDepth := p.depth
	restore := func() (QueryToken, bool, error) {
		p.lex.Restore(saved)
		p.depth = savedDepth
		return nil, false, nil
	}

	var path QueryToken
	for {
		name, err := p.expect(TokenIdent)
		if err != nil {
			return restore()
		}
		if p.current().Type == TokenLParen {
			if err := p.enter(); err != nil {
				return nil, false, err
			}
			inner, err := p.lex.ReadBalanced()
			if err != nil {
				return restore()
			}
			next := p.current().Type
			if next != TokenComma && next != TokenRParen && next != TokenEOF {
				return restore()
			}
			lex, err := NewLexer(inner)
			if err != nil {
				return restore()
			}
			sub := p.child(lex)
			exprs, err := sub.parseAggregateList()
			if err != nil {
				if isHardError(err) {
					return nil, false, err
				}
				return restore()
			}
			if sub.current().Type != TokenEOF {
				return restore()
			}
			p.depth = savedDepth
			return &EntitySetAggregateToken{
				EntitySet:   &EndPathToken{Identifier: name.Text, NextToken: path},
				Expressions: exprs,
			}, true, nil
		}
		if p.current().Type != TokenSlash {
			return restore()
		}
		path = &InnerPathToken{Identifier: name.Text, NextToken: path}
		if err := p.advance(); err != nil {
			return restore()
		}
	}
}

// parseGroupBy parses groupby((p1,p2,...)[,transformation]).
func (p *Parser) parseGroupBy() (QueryToken, error) {
	if err := p.openTransformation(); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	g := &GroupByToken{}
	for {
		prop, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		g.Properties = append(g.Properties, prop)
		if p.current().Type != TokenComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	if p.current().Type == TokenComma {
		if err := p.advance(); err != nil {
			return nil, err
		}
		child, err := p.parseTransformation()
		if err != nil {
			return nil, err
		}
		g.Child = child
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return g, nil
}

// parseApplyExpand parses the body of expand(Path[, filter(...)][, expand(...)]...).
func (p *Parser) parseApplyExpand() (QueryToken, error) {
	path, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	ex := &ApplyExpandToken{Path: path}
	for p.current().Type == TokenComma {
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch {
		case p.isWord("filter"):
			if ex.Filter != nil {
				return nil, p.errorf(p.current(), "expand() accepts a single filter").WithCause(types.ErrInvalidOption)
			}
			if err := p.openTransformation(); err != nil {
				return nil, err
			}
			if ex.Filter, err = p.ParseExpression(); err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRParen); err != nil {
				return nil, err
			}
		case p.isWord("expand"):
			if err := p.enter(); err != nil {
				return nil, err
			}
			if err := p.openTransformation(); err != nil {
				return nil, err
			}
			child, err := p.parseApplyExpand()
			p.leave()
			if err != nil {
				return nil, err
			}
			ex.Children = append(ex.Children, child.(*ApplyExpandToken))
		default:
			return nil, p.errorf(p.current(), "expected filter() or expand(), got %s", p.describeCurrent()).WithCause(types.ErrUnexpectedToken)
		}
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return ex, nil
}
