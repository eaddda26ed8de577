package expr

import (
	"strconv"
	"strings"
)

// Describe renders a token tree as deterministic text. Binary and unary
// operations are fully parenthesized so that the shape of the tree is
// visible, e.g. "((Age gt 1) and (Name eq 'x'))".
func Describe(t QueryToken) string {
	var b strings.Builder
	describe(&b, t)
	return b.String()
}

func describe(b *strings.Builder, t QueryToken) {
	switch t := t.(type) {
	case nil:
		b.WriteString("<nil>")
	case *BinaryOperatorToken:
		b.WriteByte('(')
		describe(b, t.Left)
		b.WriteString(" " + t.Op.String() + " ")
		describe(b, t.Right)
		b.WriteByte(')')
	case *UnaryOperatorToken:
		if t.Op == OpNot {
			b.WriteString("(not ")
		} else {
			b.WriteString("(-")
		}
		describe(b, t.Operand)
		b.WriteByte(')')
	case *LiteralToken:
		b.WriteString(t.Text)
	case *EndPathToken:
		parent(b, t.NextToken)
		b.WriteString(t.Identifier)
	case *InnerPathToken:
		parent(b, t.NextToken)
		b.WriteString(t.Identifier)
		if len(t.NamedValues) > 0 {
			b.WriteString(DescribeNamedValues(t.NamedValues))
		}
	case *DottedIdentifierToken:
		parent(b, t.NextToken)
		b.WriteString(t.Identifier)
	case *RangeVariableToken:
		b.WriteString(t.Name)
	case *FunctionCallToken:
		parent(b, t.Source)
		b.WriteString(t.Name)
		b.WriteByte('(')
		for i, a := range t.Arguments {
			if i > 0 {
				b.WriteByte(',')
			}
			describe(b, a)
		}
		b.WriteByte(')')
	case *FunctionParameterToken:
		if t.Name != "" {
			b.WriteString(t.Name + "=")
		}
		describe(b, t.Value)
	case *ParameterAliasToken:
		b.WriteString(t.Alias)
	case *LambdaToken:
		parent(b, t.Parent)
		if t.All {
			b.WriteString("all(")
		} else {
			b.WriteString("any(")
		}
		if t.Parameter != "" {
			b.WriteString(t.Parameter + ":")
			describe(b, t.Expression)
		}
		b.WriteByte(')')
	case *StarToken:
		parent(b, t.NextToken)
		if t.Namespace != "" {
			b.WriteString(t.Namespace + ".")
		}
		b.WriteByte('*')
	case *CountSegmentToken:
		parent(b, t.NextToken)
		b.WriteString("$count")
		var opts []string
		if t.Filter != nil {
			opts = append(opts, "$filter="+Describe(t.Filter))
		}
		if t.Search != nil {
			opts = append(opts, "$search="+Describe(t.Search))
		}
		if len(opts) > 0 {
			b.WriteString("(" + strings.Join(opts, ";") + ")")
		}
	case *InToken:
		b.WriteByte('(')
		describe(b, t.Left)
		b.WriteString(" in ")
		describe(b, t.Right)
		b.WriteByte(')')
	case *OrderByToken:
		describe(b, t.Expression)
		b.WriteString(" " + t.Direction.String())
	case *ComputeToken:
		b.WriteString("compute(")
		for i, e := range t.Expressions {
			if i > 0 {
				b.WriteByte(',')
			}
			describe(b, e)
		}
		b.WriteByte(')')
	case *ComputeExpressionToken:
		describe(b, t.Expression)
		b.WriteString(" as " + t.Alias)
	case *AggregateToken:
		b.WriteString("aggregate(")
		list(b, t.Expressions)
		b.WriteByte(')')
	case *AggregateExpressionToken:
		switch t.Method {
		case AggregateCount:
			b.WriteString("$count")
		case AggregateVirtual:
			describe(b, t.Expression)
		case AggregateCustom:
			describe(b, t.Expression)
			b.WriteString(" with " + t.MethodName)
		default:
			describe(b, t.Expression)
			b.WriteString(" with " + t.Method.String())
		}
		b.WriteString(" as " + t.Alias)
		for _, f := range t.From {
			b.WriteString(" from ")
			describe(b, f)
		}
	case *EntitySetAggregateToken:
		describe(b, t.EntitySet)
		b.WriteByte('(')
		list(b, t.Expressions)
		b.WriteByte(')')
	case *GroupByToken:
		b.WriteString("groupby((")
		list(b, t.Properties)
		b.WriteByte(')')
		if t.Child != nil {
			b.WriteByte(',')
			describe(b, t.Child)
		}
		b.WriteByte(')')
	case *ApplyFilterToken:
		b.WriteString("filter(")
		describe(b, t.Expression)
		b.WriteByte(')')
	case *ApplyExpandToken:
		b.WriteString("expand(")
		describe(b, t.Path)
		if t.Filter != nil {
			b.WriteString(",filter(")
			describe(b, t.Filter)
			b.WriteByte(')')
		}
		for _, c := range t.Children {
			b.WriteByte(',')
			describe(b, c)
		}
		b.WriteByte(')')
	case *IdentityToken:
		b.WriteString("identity")
	case *SelectToken:
		for i, term := range t.Terms {
			if i > 0 {
				b.WriteByte(',')
			}
			describe(b, term)
		}
	case *SelectTermToken:
		b.WriteString(PathString(t.Path))
		var opts []string
		opts = appendCommonOptions(opts, t.Filter, t.OrderBy, t.Top, t.Skip, t.Count, t.Search, t.Compute)
		if t.Select != nil {
			opts = append(opts, "$select="+Describe(t.Select))
		}
		options(b, opts)
	case *ExpandToken:
		for i, term := range t.Terms {
			if i > 0 {
				b.WriteByte(',')
			}
			describe(b, term)
		}
	case *ExpandTermToken:
		b.WriteString(PathString(t.Path))
		var opts []string
		opts = appendCommonOptions(opts, t.Filter, t.OrderBy, t.Top, t.Skip, t.Count, t.Search, t.Compute)
		if t.Levels.IsSet() {
			opts = append(opts, "$levels="+t.Levels.String())
		}
		if t.Select != nil {
			opts = append(opts, "$select="+Describe(t.Select))
		}
		if t.Expand != nil {
			opts = append(opts, "$expand="+Describe(t.Expand))
		}
		if len(t.Apply) > 0 {
			parts := make([]string, len(t.Apply))
			for i, a := range t.Apply {
				parts[i] = Describe(a)
			}
			opts = append(opts, "$apply="+strings.Join(parts, "/"))
		}
		options(b, opts)
	default:
		b.WriteString("<unknown>")
	}
}

func parent(b *strings.Builder, t QueryToken) {
	if t == nil {
		return
	}
	describe(b, t)
	b.WriteByte('/')
}

func list(b *strings.Builder, ts []QueryToken) {
	for i, t := range ts {
		if i > 0 {
			b.WriteByte(',')
		}
		describe(b, t)
	}
}

func options(b *strings.Builder, opts []string) {
	if len(opts) > 0 {
		b.WriteString("(" + strings.Join(opts, ";") + ")")
	}
}

func appendCommonOptions(opts []string, filter QueryToken, orderBy []*OrderByToken, top, skip Int64Option,
	count BoolOption, search QueryToken, compute *ComputeToken) []string {
	if filter != nil {
		opts = append(opts, "$filter="+Describe(filter))
	}
	if len(orderBy) > 0 {
		parts := make([]string, len(orderBy))
		for i, o := range orderBy {
			parts[i] = Describe(o)
		}
		opts = append(opts, "$orderby="+strings.Join(parts, ","))
	}
	if top.Set {
		opts = append(opts, "$top="+itoa(top.Value))
	}
	if skip.Set {
		opts = append(opts, "$skip="+itoa(skip.Value))
	}
	if count.Set {
		if count.Value {
			opts = append(opts, "$count=true")
		} else {
			opts = append(opts, "$count=false")
		}
	}
	if search != nil {
		opts = append(opts, "$search="+Describe(search))
	}
	if compute != nil {
		parts := make([]string, len(compute.Expressions))
		for i, e := range compute.Expressions {
			parts[i] = Describe(e)
		}
		opts = append(opts, "$compute="+strings.Join(parts, ","))
	}
	return opts
}

// DescribeNamedValues renders key values as "(1)" or "(a=1,b='x')".
func DescribeNamedValues(values []NamedValue) string {
	parts := make([]string, len(values))
	for i, nv := range values {
		if nv.Name != "" {
			parts[i] = nv.Name + "=" + nv.Value.Text
		} else {
			parts[i] = nv.Value.Text
		}
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
