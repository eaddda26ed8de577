package expr

import (
	"fmt"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// ParseArgumentList parses a parenthesized argument list starting at the
// current '(' token. Arguments are either all named (name=value) or all
// positional.
//
// When tolerate is set, a list that does not parse as arguments is not an
// error: the lexer is restored to the '(' and ok is false, so the caller can
// read the text another way (as a key, for instance). Mixed or duplicate
// argument names and exhausted limits are errors in both modes.
func (p *Parser) ParseArgumentList(tolerate bool) (args []*FunctionParameterToken, ok bool, err error) {
	saved := p.lex.Snapshot()
	savedDepth := p.depth
	fail := func(e error) ([]*FunctionParameterToken, bool, error) {
		if tolerate && !isHardError(e) {
			p.lex.Restore(saved)
			p.depth = savedDepth
			return nil, false, nil
		}
		return nil, false, e
	}

	if _, err := p.expect(TokenLParen); err != nil {
		return fail(err)
	}
	args = []*FunctionParameterToken{}
	if p.current().Type == TokenRParen {
		if err := p.advance(); err != nil {
			return fail(err)
		}
		return args, true, nil
	}

	named, err := p.atNamedArgument()
	if err != nil {
		return fail(err)
	}
	seen := map[string]bool{}
	for {
		isNamed, err := p.atNamedArgument()
		if err != nil {
			return fail(err)
		}
		if isNamed != named {
			return nil, false, p.errorf(p.current(), "named and positional arguments cannot be mixed").WithCause(types.ErrMixedArguments)
		}
		arg := &FunctionParameterToken{}
		if named {
			name := p.current()
			if seen[name.Text] {
				return nil, false, p.errorf(name, "duplicate argument name '%s'", name.Text).WithCause(types.ErrDuplicateName)
			}
			seen[name.Text] = true
			arg.Name = name.Text
			if err := p.advance(); err != nil {
				return fail(err)
			}
			if err := p.advance(); err != nil {
				return fail(err)
			}
		}
		value, err := p.ParseExpression()
		if err != nil {
			return fail(err)
		}
		arg.Value = value
		args = append(args, arg)

		switch p.current().Type {
		case TokenComma:
			if err := p.advance(); err != nil {
				return fail(err)
			}
		case TokenRParen:
			if err := p.advance(); err != nil {
				return fail(err)
			}
			return args, true, nil
		default:
			return fail(p.errorf(p.current(), "expected ',' or ')' in argument list, got %s", p.describeCurrent()).WithCause(types.ErrUnexpectedToken))
		}
	}
}

// atNamedArgument reports whether the lexer is at "identifier '='".
func (p *Parser) atNamedArgument() (bool, error) {
	if p.current().Type != TokenIdent {
		return false, nil
	}
	next, err := p.lex.Peek()
	if err != nil {
		return false, err
	}
	return next.Type == TokenEqual, nil
}

// isHardError reports whether err must propagate even from a tolerant probe.
func isHardError(err error) bool {
	return types.IsKind(err, types.KindRecursionLimit) ||
		types.IsKind(err, types.KindPathTooLong) ||
		types.IsKind(err, types.KindSegmentCount)
}

// ParseFunctionParameters parses the text between the parentheses of a
// function call in a resource path.
func ParseFunctionParameters(text string, opts ...Option) ([]*FunctionParameterToken, error) {
	p, err := NewParser("("+text+")", opts...)
	if err != nil {
		return nil, err
	}
	args, _, err := p.ParseArgumentList(false)
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return args, nil
}

// ParseKeyValues parses the text between the parentheses of a key: either a
// single positional value or a list of name=value pairs. Values must be
// literals, parameter aliases or URI templates.
func ParseKeyValues(text string) ([]NamedValue, error) {
	lex, err := NewLexer(text)
	if err != nil {
		return nil, err
	}
	p := NewLexerParser(lex)
	var values []NamedValue
	seen := map[string]bool{}
	for p.current().Type != TokenEOF {
		named, err := p.atNamedArgument()
		if err != nil {
			return nil, err
		}
		var nv NamedValue
		if named {
			nv.Name = p.current().Text
			if seen[nv.Name] {
				return nil, p.errorf(p.current(), "duplicate key name '%s'", nv.Name).WithCause(types.ErrDuplicateName)
			}
			seen[nv.Name] = true
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if len(values) > 0 && (values[0].Name == "") != (nv.Name == "") {
			return nil, p.errorf(p.current(), "named and positional key values cannot be mixed").WithCause(types.ErrMixedArguments)
		}
		v, err := p.keyValue()
		if err != nil {
			return nil, err
		}
		nv.Value = v
		values = append(values, nv)
		if p.current().Type == TokenComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.current().Type == TokenEOF {
				return nil, p.errorf(p.current(), "missing key value after ','").WithCause(types.ErrUnexpectedToken)
			}
			continue
		}
		if err := p.expectEOF(); err != nil {
			return nil, err
		}
	}
	if len(values) > 1 && values[0].Name == "" {
		return nil, types.NewBindingError(fmt.Sprintf("positional key values are allowed only for a single key, got %d", len(values))).
			WithCause(types.ErrKeyMismatch)
	}
	return values, nil
}

func (p *Parser) keyValue() (*LiteralToken, error) {
	tok := p.current()
	var lit *LiteralToken
	switch {
	case tok.Type == TokenParameterAlias:
		lit = &LiteralToken{Text: tok.Text, Form: FormAlias}
	case tok.Type == TokenBracketed && IsTemplate(tok.Text):
		lit = &LiteralToken{Text: tok.Text, Form: FormTemplate}
	case tok.Type == TokenBracketed:
		lit = &LiteralToken{Text: tok.Text, Form: FormJSON}
	case tok.Type.IsLiteral():
		lit = &LiteralToken{Value: tok.Value, Text: tok.Text}
	default:
		return nil, p.errorf(tok, "expected a key value, got %s", p.describeCurrent()).WithCause(types.ErrUnexpectedToken)
	}
	return lit, p.advance()
}

// IsTemplate reports whether text is a URI template such as {id}.
func IsTemplate(text string) bool {
	if len(text) < 3 || text[0] != '{' || text[len(text)-1] != '}' {
		return false
	}
	for i := 1; i < len(text)-1; i++ {
		if !isIdentPart(text[i]) {
			return false
		}
	}
	return true
}
