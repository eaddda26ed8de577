package expr

import (
	"strconv"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/literal"
)

// QueryKind identifies the concrete type of a QueryToken.
type QueryKind int

const (
	KindBinaryOperator QueryKind = iota
	KindUnaryOperator
	KindLiteral
	KindEndPath
	KindInnerPath
	KindDottedIdentifier
	KindRangeVariable
	KindFunctionCall
	KindFunctionParameter
	KindParameterAlias
	KindAny
	KindAll
	KindStar
	KindCountSegment
	KindIn
	KindOrderBy
	KindSelect
	KindSelectTerm
	KindExpand
	KindExpandTerm
	KindCompute
	KindComputeExpression
	KindAggregate
	KindAggregateExpression
	KindEntitySetAggregate
	KindGroupBy
	KindApplyFilter
	KindApplyExpand
	KindIdentity
)

// QueryToken is a node of the untyped syntax tree produced for a query
// clause. The set of implementations is closed.
type QueryToken interface {
	QueryKind() QueryKind
	queryToken()
}

// BinaryOp is a binary operator.
type BinaryOp int

const (
	OpOr BinaryOp = iota
	OpAnd
	OpEqual
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpDivideBy // divby: decimal division
	OpModulo
	OpHas
)

var binaryOpNames = []string{
	OpOr: "or", OpAnd: "and", OpEqual: "eq", OpNotEqual: "ne",
	OpGreaterThan: "gt", OpGreaterThanOrEqual: "ge", OpLessThan: "lt", OpLessThanOrEqual: "le",
	OpAdd: "add", OpSubtract: "sub", OpMultiply: "mul", OpDivide: "div", OpDivideBy: "divby",
	OpModulo: "mod", OpHas: "has",
}

// String returns the URL keyword of the operator.
func (op BinaryOp) String() string { return binaryOpNames[op] }

// UnaryOp is a unary operator.
type UnaryOp int

const (
	OpNegate UnaryOp = iota
	OpNot
)

func (op UnaryOp) String() string {
	if op == OpNot {
		return "not"
	}
	return "negate"
}

// BinaryOperatorToken is a binary operation; chains are left-deep.
type BinaryOperatorToken struct {
	Op    BinaryOp
	Left  QueryToken
	Right QueryToken
}

// UnaryOperatorToken is a negation or a logical not.
type UnaryOperatorToken struct {
	Op      UnaryOp
	Operand QueryToken
}

// LiteralForm tells how a LiteralToken is represented.
type LiteralForm int

const (
	FormValue LiteralForm = iota // Value holds the parsed literal
	FormJSON                     // Text holds a JSON array or object
	FormList                     // Text holds a parenthesized list, e.g. ('a','b')
	FormAlias                    // Text holds a parameter alias, e.g. @p
	FormTemplate                 // Text holds a URI template, e.g. {id}
)

// LiteralToken is a constant. Text is the literal as written.
type LiteralToken struct {
	Value literal.Value
	Text  string
	Form  LiteralForm
}

// EndPathToken is the last segment of a member-access path. NextToken is
// the path it is accessed on, or nil for the implicit range variable.
type EndPathToken struct {
	Identifier string
	NextToken  QueryToken
}

// NamedValue is a name=value pair; Name is empty for positional values.
type NamedValue struct {
	Name  string
	Value *LiteralToken
}

// InnerPathToken is a non-final segment of a member-access path.
type InnerPathToken struct {
	Identifier  string
	NextToken   QueryToken
	NamedValues []NamedValue
}

// DottedIdentifierToken is a qualified name in a path, usually a type cast.
type DottedIdentifierToken struct {
	Identifier string
	NextToken  QueryToken
}

// RangeVariableToken references $it, $this or a lambda variable.
type RangeVariableToken struct {
	Name string
}

// FunctionCallToken is a built-in or model function call. Source is the
// path the function is bound to, or nil.
type FunctionCallToken struct {
	Name      string
	Arguments []*FunctionParameterToken
	Source    QueryToken
}

// FunctionParameterToken is one argument; Name is empty when positional.
type FunctionParameterToken struct {
	Name  string
	Value QueryToken
}

// ParameterAliasToken references an @alias.
type ParameterAliasToken struct {
	Alias string
}

// LambdaToken is an any or all expression over Parent. Parameter is empty
// for the argument-less any().
type LambdaToken struct {
	All        bool
	Parameter  string
	Expression QueryToken
	Parent     QueryToken
}

// StarToken is '*' or 'Namespace.*'.
type StarToken struct {
	Namespace string
	NextToken QueryToken
}

// CountSegmentToken is a $count path segment with optional nested options.
type CountSegmentToken struct {
	NextToken QueryToken
	Filter    QueryToken
	Search    QueryToken
}

// InToken is "Left in Right".
type InToken struct {
	Left  QueryToken
	Right QueryToken
}

// OrderByDirection is the sort direction.
type OrderByDirection int

const (
	Ascending OrderByDirection = iota
	Descending
)

func (d OrderByDirection) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// OrderByToken is one $orderby item.
type OrderByToken struct {
	Expression QueryToken
	Direction  OrderByDirection
}

// ComputeExpressionToken is "Expression as Alias".
type ComputeExpressionToken struct {
	Expression QueryToken
	Alias      string
}

// ComputeToken is a $compute clause or a compute() transformation.
type ComputeToken struct {
	Expressions []*ComputeExpressionToken
}

// AggregationMethod is a standard aggregation method.
type AggregationMethod int

const (
	AggregateSum AggregationMethod = iota
	AggregateMin
	AggregateMax
	AggregateAverage
	AggregateCountDistinct
	AggregateCount   // $count as Alias
	AggregateCustom  // a qualified method name
	AggregateVirtual // no method: aggregating an aggregatable property
)

var aggregationNames = []string{
	AggregateSum: "sum", AggregateMin: "min", AggregateMax: "max", AggregateAverage: "average",
	AggregateCountDistinct: "countdistinct", AggregateCount: "$count", AggregateCustom: "custom",
	AggregateVirtual: "",
}

func (m AggregationMethod) String() string { return aggregationNames[m] }

// AggregateExpressionToken is "Expression with Method as Alias".
type AggregateExpressionToken struct {
	Expression QueryToken
	Method     AggregationMethod
	MethodName string // qualified name for AggregateCustom
	Alias      string
	From       []QueryToken // optional "from" grouping properties
}

// EntitySetAggregateToken aggregates over a navigation path: Nav(expr with m as a).
type EntitySetAggregateToken struct {
	EntitySet   QueryToken
	Expressions []QueryToken // AggregateExpressionToken or nested EntitySetAggregateToken
}

// AggregateToken is an aggregate() transformation.
type AggregateToken struct {
	Expressions []QueryToken // AggregateExpressionToken or EntitySetAggregateToken
}

// GroupByToken is a groupby() transformation with an optional child aggregation.
type GroupByToken struct {
	Properties []QueryToken
	Child      QueryToken
}

// ApplyFilterToken is a filter() transformation.
type ApplyFilterToken struct {
	Expression QueryToken
}

// ApplyExpandToken is an expand() transformation.
type ApplyExpandToken struct {
	Path     QueryToken
	Filter   QueryToken
	Children []*ApplyExpandToken
}

// IdentityToken is the identity transformation.
type IdentityToken struct{}

// Levels is the $levels option.
type Levels struct {
	Kind  LevelsKind
	Value int64
}

// LevelsKind tells whether $levels was given and how.
type LevelsKind int

const (
	LevelsUnset LevelsKind = iota
	LevelsMax
	LevelsValue
)

// IsSet reports whether $levels was specified.
func (l Levels) IsSet() bool { return l.Kind != LevelsUnset }

func (l Levels) String() string {
	switch l.Kind {
	case LevelsMax:
		return "max"
	case LevelsValue:
		return strconv.FormatInt(l.Value, 10)
	}
	return ""
}

// Int64Option is an optional integer query option.
type Int64Option struct {
	Set   bool
	Value int64
}

// BoolOption is an optional boolean query option.
type BoolOption struct {
	Set   bool
	Value bool
}

// SelectTermToken is one $select item.
type SelectTermToken struct {
	Path    PathSegmentToken
	Filter  QueryToken
	OrderBy []*OrderByToken
	Top     Int64Option
	Skip    Int64Option
	Count   BoolOption
	Search  QueryToken
	Select  *SelectToken
	Compute *ComputeToken
}

// SelectToken is a $select clause.
type SelectToken struct {
	Terms []*SelectTermToken
}

// ExpandTermToken is one $expand item. Star terms are expanded to one term
// per navigation property when the parent type is known.
type ExpandTermToken struct {
	Path    PathSegmentToken
	Filter  QueryToken
	OrderBy []*OrderByToken
	Top     Int64Option
	Skip    Int64Option
	Count   BoolOption
	Levels  Levels
	Search  QueryToken
	Select  *SelectToken
	Expand  *ExpandToken
	Compute *ComputeToken
	Apply   []QueryToken
}

// ExpandToken is a $expand clause.
type ExpandToken struct {
	Terms []*ExpandTermToken
}

func (*BinaryOperatorToken) QueryKind() QueryKind      { return KindBinaryOperator }
func (*UnaryOperatorToken) QueryKind() QueryKind       { return KindUnaryOperator }
func (*LiteralToken) QueryKind() QueryKind             { return KindLiteral }
func (*EndPathToken) QueryKind() QueryKind             { return KindEndPath }
func (*InnerPathToken) QueryKind() QueryKind           { return KindInnerPath }
func (*DottedIdentifierToken) QueryKind() QueryKind    { return KindDottedIdentifier }
func (*RangeVariableToken) QueryKind() QueryKind       { return KindRangeVariable }
func (*FunctionCallToken) QueryKind() QueryKind        { return KindFunctionCall }
func (*FunctionParameterToken) QueryKind() QueryKind   { return KindFunctionParameter }
func (*ParameterAliasToken) QueryKind() QueryKind      { return KindParameterAlias }
func (*StarToken) QueryKind() QueryKind                { return KindStar }
func (*CountSegmentToken) QueryKind() QueryKind        { return KindCountSegment }
func (*InToken) QueryKind() QueryKind                  { return KindIn }
func (*OrderByToken) QueryKind() QueryKind             { return KindOrderBy }
func (*SelectToken) QueryKind() QueryKind              { return KindSelect }
func (*SelectTermToken) QueryKind() QueryKind          { return KindSelectTerm }
func (*ExpandToken) QueryKind() QueryKind              { return KindExpand }
func (*ExpandTermToken) QueryKind() QueryKind          { return KindExpandTerm }
func (*ComputeToken) QueryKind() QueryKind             { return KindCompute }
func (*ComputeExpressionToken) QueryKind() QueryKind   { return KindComputeExpression }
func (*AggregateToken) QueryKind() QueryKind           { return KindAggregate }
func (*AggregateExpressionToken) QueryKind() QueryKind { return KindAggregateExpression }
func (*EntitySetAggregateToken) QueryKind() QueryKind  { return KindEntitySetAggregate }
func (*GroupByToken) QueryKind() QueryKind             { return KindGroupBy }
func (*ApplyFilterToken) QueryKind() QueryKind         { return KindApplyFilter }
func (*ApplyExpandToken) QueryKind() QueryKind         { return KindApplyExpand }
func (*IdentityToken) QueryKind() QueryKind            { return KindIdentity }

func (t *LambdaToken) QueryKind() QueryKind {
	if t.All {
		return KindAll
	}
	return KindAny
}

func (*BinaryOperatorToken) queryToken()      {}
func (*UnaryOperatorToken) queryToken()       {}
func (*LiteralToken) queryToken()             {}
func (*EndPathToken) queryToken()             {}
func (*InnerPathToken) queryToken()           {}
func (*DottedIdentifierToken) queryToken()    {}
func (*RangeVariableToken) queryToken()       {}
func (*FunctionCallToken) queryToken()        {}
func (*FunctionParameterToken) queryToken()   {}
func (*ParameterAliasToken) queryToken()      {}
func (*LambdaToken) queryToken()              {}
func (*StarToken) queryToken()                {}
func (*CountSegmentToken) queryToken()        {}
func (*InToken) queryToken()                  {}
func (*OrderByToken) queryToken()             {}
func (*SelectToken) queryToken()              {}
func (*SelectTermToken) queryToken()          {}
func (*ExpandToken) queryToken()              {}
func (*ExpandTermToken) queryToken()          {}
func (*ComputeToken) queryToken()             {}
func (*ComputeExpressionToken) queryToken()   {}
func (*AggregateToken) queryToken()           {}
func (*AggregateExpressionToken) queryToken() {}
func (*EntitySetAggregateToken) queryToken()  {}
func (*GroupByToken) queryToken()             {}
func (*ApplyFilterToken) queryToken()         {}
func (*ApplyExpandToken) queryToken()         {}
func (*IdentityToken) queryToken()            {}
