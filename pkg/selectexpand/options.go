package selectexpand

import (
	"strconv"
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/expr"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

type optionSet map[string]bool

var (
	selectOptions = optionSet{
		"$filter": true, "$orderby": true, "$top": true, "$skip": true, "$count": true,
		"$search": true, "$select": true, "$compute": true,
	}
	expandOptions = optionSet{
		"$filter": true, "$orderby": true, "$top": true, "$skip": true, "$count": true,
		"$search": true, "$select": true, "$compute": true, "$levels": true, "$expand": true, "$apply": true,
	}
	starOptions = optionSet{"$levels": true}
)

// termOptions collects the options of one term.
type termOptions struct {
	seen    map[string]bool
	filter  expr.QueryToken
	orderBy []*expr.OrderByToken
	top     expr.Int64Option
	skip    expr.Int64Option
	count   expr.BoolOption
	levels  expr.Levels
	search  expr.QueryToken
	sel     *expr.SelectToken
	exp     *expr.ExpandToken
	compute *expr.ComputeToken
	apply   []expr.QueryToken
}

func (o *termOptions) any() bool { return len(o.seen) > 0 }

func (o *termOptions) selectTerm(path expr.PathSegmentToken) *expr.SelectTermToken {
	return &expr.SelectTermToken{
		Path: path, Filter: o.filter, OrderBy: o.orderBy, Top: o.top, Skip: o.skip,
		Count: o.count, Search: o.search, Select: o.sel, Compute: o.compute,
	}
}

func (o *termOptions) expandTerm(path expr.PathSegmentToken) *expr.ExpandTermToken {
	return &expr.ExpandTermToken{
		Path: path, Filter: o.filter, OrderBy: o.orderBy, Top: o.top, Skip: o.skip,
		Count: o.count, Levels: o.levels, Search: o.search, Select: o.sel, Expand: o.exp,
		Compute: o.compute, Apply: o.apply,
	}
}

// readOptions reads an optional "(name=value;...)" list. target is the type
// the term path ends on; nested $select and $expand apply to it.
func (tp *termParser) readOptions(target *edm.StructuredType, budget int, allowed optionSet) (*termOptions, error) {
	opts := &termOptions{seen: map[string]bool{}}
	if tp.lex.Current().Type != expr.TokenLParen {
		return opts, nil
	}
	if err := tp.next(); err != nil {
		return nil, err
	}
	for {
		nameTok := tp.lex.Current()
		if nameTok.Type != expr.TokenIdent {
			return nil, tp.errorf("expected a query option name, got %s %q", nameTok.Type, nameTok.Text).WithCause(types.ErrInvalidOption)
		}
		name := tp.optionName(nameTok.Text)
		if err := tp.next(); err != nil {
			return nil, err
		}
		if tp.lex.Current().Type != expr.TokenEqual {
			return nil, tp.errorf("expected '=' after '%s'", nameTok.Text).WithCause(types.ErrInvalidOption)
		}
		text, err := tp.lex.ReadOptionText()
		if err != nil {
			return nil, err
		}
		if !allowed[name] {
			return nil, tp.optionError(name, allowed)
		}
		if opts.seen[name] {
			return nil, tp.errorf("duplicate query option '%s'", name).WithCause(types.ErrInvalidOption)
		}
		opts.seen[name] = true
		if err := tp.applyOption(opts, name, text, target, budget); err != nil {
			return nil, err
		}

		switch tp.lex.Current().Type {
		case expr.TokenSemicolon:
			if err := tp.next(); err != nil {
				return nil, err
			}
		case expr.TokenRParen:
			return opts, tp.next()
		default:
			return nil, tp.errorf("missing ')' after query options").WithCause(types.ErrUnbalancedParens)
		}
	}
}

func (tp *termParser) optionName(text string) string {
	name := text
	if tp.p.settings.NoDollarQueryOptions && !strings.HasPrefix(name, "$") {
		name = "$" + name
	}
	if tp.p.settings.CaseInsensitive {
		name = strings.ToLower(name)
	}
	return name
}

func (tp *termParser) optionError(name string, allowed optionSet) *types.ParseError {
	if len(allowed) <= len(starOptions) {
		return tp.errorf("query option '%s' is not allowed on '*'", name).WithCause(types.ErrStarOption)
	}
	return tp.errorf("unknown or unsupported query option '%s'", name).WithCause(types.ErrInvalidOption)
}

func (tp *termParser) applyOption(opts *termOptions, name, text string, target *edm.StructuredType, budget int) error {
	s := tp.p.settings
	var err error
	switch name {
	case "$filter":
		opts.filter, err = expr.ParseFilter(text, tp.p.exprOptions(s.MaxFilterDepth)...)
	case "$orderby":
		opts.orderBy, err = expr.ParseOrderBy(text, tp.p.exprOptions(s.MaxOrderByDepth)...)
	case "$search":
		opts.search, err = expr.ParseSearch(text, tp.p.exprOptions(s.MaxSearchDepth)...)
	case "$compute":
		opts.compute, err = expr.ParseCompute(text, tp.p.exprOptions(s.MaxFilterDepth)...)
	case "$apply":
		opts.apply, err = expr.ParseApply(text, tp.p.exprOptions(s.MaxFilterDepth)...)
	case "$top":
		opts.top, err = tp.nonNegative(name, text)
	case "$skip":
		opts.skip, err = tp.nonNegative(name, text)
	case "$count":
		switch text {
		case "true":
			opts.count = expr.BoolOption{Set: true, Value: true}
		case "false":
			opts.count = expr.BoolOption{Set: true}
		default:
			err = tp.errorf("$count must be true or false, got '%s'", text).WithCause(types.ErrInvalidOption)
		}
	case "$levels":
		opts.levels, err = tp.levels(text)
	case "$select":
		opts.sel, err = tp.p.parseSelect(text, target, budget-1)
	case "$expand":
		opts.exp, err = tp.p.parseExpand(text, target, budget-1)
	}
	return err
}

func (tp *termParser) nonNegative(name, text string) (expr.Int64Option, error) {
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil || n < 0 {
		return expr.Int64Option{}, tp.errorf("%s must be a non-negative integer, got '%s'", name, text).WithCause(types.ErrInvalidOption)
	}
	return expr.Int64Option{Set: true, Value: n}, nil
}

func (tp *termParser) levels(text string) (expr.Levels, error) {
	if text == "max" || (tp.p.settings.CaseInsensitive && strings.EqualFold(text, "max")) {
		return expr.Levels{Kind: expr.LevelsMax}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil || n < 0 {
		return expr.Levels{}, tp.errorf("$levels must be 'max' or a non-negative integer, got '%s'", text).WithCause(types.ErrInvalidOption)
	}
	return expr.Levels{Kind: expr.LevelsValue, Value: n}, nil
}
