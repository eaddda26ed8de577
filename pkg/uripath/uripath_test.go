package uripath

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm/edmtest"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/literal"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

func split(path string) []string {
	return strings.Split(path, "/")
}

func newParser(opts ...Option) *Parser {
	return NewParser(edm.NewResolver(edmtest.New()), opts...)
}

func parse(t *testing.T, p *Parser, path string) *Path {
	t.Helper()
	got, err := p.Parse(split(path))
	require.NoError(t, err)
	return got
}

func TestParsePaths(t *testing.T) {
	p := newParser()
	tests := []struct {
		path  string
		want  string
		kinds []Kind
	}{
		{"People", "People", []Kind{KindEntitySet}},
		{"People(1)", "People(1)", []Kind{KindEntitySet, KindKey}},
		{"People(1)/Name", "People(1)/Name", []Kind{KindEntitySet, KindKey, KindProperty}},
		{"People(1)/Name/$value", "People(1)/Name/$value", []Kind{KindEntitySet, KindKey, KindProperty, KindValue}},
		{"People/$count", "People/$count", []Kind{KindEntitySet, KindCount}},
		{"People(1)/Friends(2)", "People(1)/Friends(2)", []Kind{KindEntitySet, KindKey, KindNavigationProperty, KindKey}},
		{"People(1)/Friends/$ref", "People(1)/Friends/$ref", []Kind{KindEntitySet, KindKey, KindNavigationPropertyLink}},
		{"People(1)/$ref", "People(1)/$ref", []Kind{KindEntitySet, KindKey, KindReference}},
		{"Me/Address/City", "Me/Address/City", []Kind{KindSingleton, KindProperty, KindProperty}},
		{"Me/Address/Demo.HomeAddress/Floor", "Me/Address/Demo.HomeAddress/Floor", []Kind{KindSingleton, KindProperty, KindType, KindProperty}},
		{"Me/Emails/$count", "Me/Emails/$count", []Kind{KindSingleton, KindProperty, KindCount}},
		{"People/Demo.Employee(1)/Salary", "People/Demo.Employee(1)/Salary", []Kind{KindEntitySet, KindType, KindKey, KindProperty}},
		{"People/$filter(Age gt 1)/$count", "People/$filter((Age gt 1))/$count", []Kind{KindEntitySet, KindFilter, KindCount}},
		{"People/$each", "People/$each", []Kind{KindEntitySet, KindEach}},
		{"Documents(1)/$value", "Documents(1L)/$value", []Kind{KindEntitySet, KindKey, KindValue}},
		{"OrderLines(OrderId=1,LineNo=2)", "OrderLines(OrderId=1,LineNo=2)", []Kind{KindEntitySet, KindKey}},
		{"$metadata", "$metadata", []Kind{KindMetadata}},
		{"$batch", "$batch", []Kind{KindBatch}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := parse(t, p, tt.path)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, tt.kinds, got.Kinds())
		})
	}
}

func TestNavigationTargets(t *testing.T) {
	p := newParser()

	got := parse(t, p, "People(1)/Friends")
	require.NotNil(t, got.Last().Source)
	assert.Equal(t, "People", got.Last().Source.Name)
	assert.True(t, got.Last().Collection)

	got = parse(t, p, "Employees(1)/Demo.Manager/DirectReports")
	require.NotNil(t, got.Last().Source)
	assert.Equal(t, "Employees", got.Last().Source.Name)

	got = parse(t, p, "Drives('d')/Root/Children")
	src := got.Last().Source
	require.NotNil(t, src)
	assert.Equal(t, edm.SourceContained, src.Kind)
}

func TestValueTargets(t *testing.T) {
	p := newParser()
	tests := []struct {
		path string
		want TargetKind
	}{
		{"People(1)/Name/$value", TargetPrimitiveValue},
		{"People(1)/Photo/$value", TargetMediaResource},
		{"Documents(1)/$value", TargetMediaResource},
		{"Events(01234567-89ab-cdef-0123-456789abcdef)/Color/$value", TargetOpenPropertyValue},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, parse(t, p, tt.path).Last().Target)
		})
	}

	_, err := p.Parse(split("People(1)/$value"))
	assert.ErrorIs(t, err, types.ErrUnknownSegment)
}

func TestOpenTypeDynamicSegments(t *testing.T) {
	p := newParser()
	got := parse(t, p, "Events(01234567-89ab-cdef-0123-456789abcdef)/Color")
	assert.Equal(t, KindDynamicPath, got.Last().Kind)
	assert.Equal(t, TargetOpenProperty, got.Last().Target)

	_, err := p.Parse(split("People(1)/Color"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnknownSegment)
	assert.Equal(t, types.CodeNotFound, types.StatusOf(err))
}

func TestDynamicHandler(t *testing.T) {
	p := newParser(WithDynamicHandler(func(prev *Segment, raw string) (*Segment, bool) {
		if prev == nil && raw == "Reports" {
			return &Segment{Kind: KindDynamicPath, Identifier: raw, Target: TargetResource}, true
		}
		return nil, false
	}))
	got := parse(t, p, "Reports")
	assert.Equal(t, []Kind{KindDynamicPath}, got.Kinds())

	_, err := p.Parse(split("Unknown"))
	assert.ErrorIs(t, err, types.ErrUnknownSegment)
}

func TestLeafSegments(t *testing.T) {
	p := newParser()
	for _, path := range []string{
		"$metadata/Foo",
		"$batch/Foo",
		"Employees(1)/Demo.Promote/Foo",
		"ResetData/Foo",
		"People/$count/Foo",
		"People(1)/Name/$value/Foo",
		"People(1)/Friends/$ref/Foo",
	} {
		t.Run(path, func(t *testing.T) {
			_, err := p.Parse(split(path))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrLeafSegment)
			assert.Equal(t, types.CodeNotFound, types.StatusOf(err))
		})
	}
}

func TestCountErrors(t *testing.T) {
	p := newParser()

	_, err := p.Parse(split("$count"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCountOnRoot)
	assert.False(t, errors.Is(err, types.ErrCountNotCollection))

	_, err = p.Parse(split("People(1)/$count"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCountNotCollection)
	assert.False(t, errors.Is(err, types.ErrCountOnRoot))
}

func TestKeyErrors(t *testing.T) {
	p := newParser()
	tests := []struct {
		path  string
		cause error
	}{
		{"OrderLines(2)", types.ErrKeyMismatch},
		{"People(1,2)", types.ErrKeyMismatch},
		{"People(Id=1,Id=2)", types.ErrDuplicateName},
		{"People(Id=1,2)", types.ErrMixedArguments},
		{"Me(1)", types.ErrKeyMismatch},
		{"People/Name", types.ErrKeyMismatch},
		{"People('x')", types.ErrInvalidLiteral},
		{"People({id})", types.ErrInvalidLiteral},
		{"People(@k)", types.ErrKeyMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := p.Parse(split(tt.path))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.cause), "got %v", err)
		})
	}
}

func TestKeyBackfillFromReferentialConstraint(t *testing.T) {
	p := newParser()
	for _, path := range []string{
		"Orders(1)/Lines(2)",
		"Orders(1)/Lines(LineNo=2)",
		"Orders(1)/Lines(OrderId=1,LineNo=2)",
	} {
		t.Run(path, func(t *testing.T) {
			got := parse(t, p, path)
			assert.Equal(t, "Orders(1)/Lines(OrderId=1,LineNo=2)", got.String())
			key := got.Last()
			require.Equal(t, KindKey, key.Kind)
			require.Len(t, key.Keys, 2)
			assert.Equal(t, "OrderId", key.Keys[0].Name)
			assert.True(t, literal.NewInt32(1).Equal(key.Keys[0].Value.(literal.Value)))
			assert.True(t, literal.NewInt32(2).Equal(key.Keys[1].Value.(literal.Value)))
		})
	}

	_, err := p.Parse(split("Orders(1)/Lines(2,3)"))
	assert.Error(t, err)
}

func TestKeyAsSegment(t *testing.T) {
	s := DefaultSettings()
	s.KeyAsSegment = true
	p := newParser(WithSettings(s))

	got := parse(t, p, "People/1/Friends/2/Name")
	assert.Equal(t, "People(1)/Friends(2)/Name", got.String())

	got = parse(t, p, "Orders/1/Lines/2")
	assert.Equal(t, "Orders(1)/Lines(OrderId=1,LineNo=2)", got.String())

	got = parse(t, p, "Drives/$$root")
	assert.True(t, literal.NewString("$root").Equal(got.Last().Keys[0].Value.(literal.Value)))
}

func TestTypeCastConstraints(t *testing.T) {
	p := newParser()

	got := parse(t, p, "Employees/Demo.Manager")
	assert.Equal(t, KindType, got.Last().Kind)
	assert.Equal(t, "Demo.Manager", got.Last().Type.FullName())

	parse(t, p, "Employees(1)/Demo.Manager")
	parse(t, p, "People/Demo.Employee")
	parse(t, p, "People/Demo.Intern")

	for _, path := range []string{"Employees/Demo.Intern", "Employees(1)/Demo.Intern"} {
		_, err := p.Parse(split(path))
		require.Error(t, err, path)
		assert.ErrorIs(t, err, types.ErrTypeConstraint)
	}

	_, err := p.Parse(split("People(1)/Demo.Order"))
	assert.ErrorIs(t, err, types.ErrUnknownSegment)
}

func TestBoundOperationOverloads(t *testing.T) {
	p := newParser()

	got := parse(t, p, "Employees(1)/Demo.GetTopFriends(count=2)")
	op := got.Last().Operation
	require.NotNil(t, op)
	assert.Equal(t, "employee", op.BindingParameter().Name)
	assert.Equal(t, "Employees(1)/Demo.GetTopFriends(count=2)", got.String())

	got = parse(t, p, "People(1)/Demo.GetTopFriends(count=2)")
	assert.Equal(t, "person", got.Last().Operation.BindingParameter().Name)

	got = parse(t, p, "People(1)/Demo.GetBestFriend()/Name")
	assert.Equal(t, []Kind{KindEntitySet, KindKey, KindOperation, KindProperty}, got.Kinds())

	got = parse(t, p, "People/Demo.ResetAll")
	assert.Equal(t, TargetVoidOperation, got.Last().Target)

	tests := []struct {
		path  string
		cause error
	}{
		{"People(1)/Demo.Touch", types.ErrActionFunctionMix},
		{"People(1)/Demo.GetTopFriends(top=2)", types.ErrNoOverload},
		{"People(1)/Demo.GetTopFriends(2)", types.ErrNoOverload},
		{"People(1)/Demo.Promote", types.ErrUnknownSegment},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := p.Parse(split(tt.path))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.cause), "got %v", err)
		})
	}
}

func TestOperationImports(t *testing.T) {
	p := newParser()

	got := parse(t, p, "PeopleByAge(minAge=1)")
	seg := got.Last()
	assert.Equal(t, KindOperationImport, seg.Kind)
	assert.Len(t, seg.Operation.Parameters, 1)
	require.NotNil(t, seg.Source)
	assert.Equal(t, "People", seg.Source.Name)

	got = parse(t, p, "PeopleByAge(minAge=1,maxAge=5)/$count")
	assert.Len(t, got.Segments[0].Operation.Parameters, 2)

	got = parse(t, p, "ServerTime()")
	assert.Equal(t, TargetPrimitive, got.Last().Target)

	_, err := p.Parse(split("ServerTime()/Foo"))
	assert.ErrorIs(t, err, types.ErrLeafSegment)

	_, err = p.Parse(split("PeopleByAge(x=1)"))
	assert.ErrorIs(t, err, types.ErrNoOverload)
}

func TestMostSpecificAmbiguity(t *testing.T) {
	m, ts := edmtest.NewWithTypes()
	for _, name := range []string{"a", "b"} {
		m.AddOperation(&edm.Operation{Namespace: "Demo", Name: "Twin", IsBound: true, Composable: true,
			Parameters: []*edm.Parameter{{Name: name, Type: edm.SingleOf(ts.Employee)}},
			ReturnType: &edm.TypeRef{Type: edm.Primitive(edm.Int32)}})
	}
	p := NewParser(edm.NewResolver(m))

	_, err := p.Parse(split("Employees(1)/Demo.Twin"))
	assert.ErrorIs(t, err, types.ErrAmbiguousOverload)
}

func TestOverloadOrdering(t *testing.T) {
	m, ts := edmtest.NewWithTypes()
	i32 := edm.PrimitiveRef(edm.Int32)
	m.AddOperation(&edm.Operation{Name: "Rank", IsBound: true,
		Parameters: []*edm.Parameter{{Name: "person", Type: edm.SingleOf(ts.Person)}, {Name: "n", Type: i32}},
		ReturnType: &i32})
	m.AddOperation(&edm.Operation{Name: "Rank", IsBound: true,
		Parameters: []*edm.Parameter{{Name: "employee", Type: edm.SingleOf(ts.Employee)}, {Name: "n", Type: i32},
			{Name: "x", Type: i32, Optional: true}},
		ReturnType: &i32})
	m.AddOperation(&edm.Operation{Name: "Score", IsBound: true,
		Parameters: []*edm.Parameter{{Name: "employee", Type: edm.SingleOf(ts.Employee)}, {Name: "n", Type: i32}},
		ReturnType: &i32})
	m.AddOperation(&edm.Operation{Name: "Score", IsBound: true,
		Parameters: []*edm.Parameter{{Name: "worker", Type: edm.SingleOf(ts.Employee)}, {Name: "n", Type: i32},
			{Name: "x", Type: i32, Optional: true}},
		ReturnType: &i32})
	p := NewParser(edm.NewResolver(m))

	tests := []struct {
		path    string
		binding string
	}{
		{"Employees(1)/Demo.Rank(n=1)", "employee"},
		{"Employees(1)/Demo.Rank(n=1,x=2)", "employee"},
		{"People(1)/Demo.Rank(n=1)", "person"},
		{"Employees(1)/Demo.Score(n=1)", "employee"},
		{"Employees(1)/Demo.Score(n=1,x=2)", "worker"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := parse(t, p, tt.path)
			op := got.Last().Operation
			require.NotNil(t, op)
			assert.Equal(t, tt.binding, op.BindingParameter().Name)
		})
	}
}

func TestBoundOperationOnPrimitive(t *testing.T) {
	m, _ := edmtest.NewWithTypes()
	str := edm.PrimitiveRef(edm.String)
	strs := edm.TypeRef{Type: edm.Primitive(edm.String), Collection: true}
	m.AddOperation(&edm.Operation{Name: "Normalize", IsBound: true, Composable: true,
		Parameters: []*edm.Parameter{{Name: "values", Type: strs}}, ReturnType: &strs})
	m.AddOperation(&edm.Operation{Name: "Trimmed", IsBound: true,
		Parameters: []*edm.Parameter{{Name: "value", Type: str}}, ReturnType: &str})
	p := NewParser(edm.NewResolver(m))

	got := parse(t, p, "People(1)/Emails/Demo.Normalize()")
	assert.Equal(t, []Kind{KindEntitySet, KindKey, KindProperty, KindOperation}, got.Kinds())
	assert.Equal(t, "Demo.Normalize", got.Last().Operation.FullName())
	assert.True(t, got.Last().Collection)

	got = parse(t, p, "People(1)/Name/Demo.Trimmed()")
	assert.Equal(t, "Demo.Trimmed", got.Last().Operation.FullName())

	_, err := p.Parse(split("People(1)/Name/Demo.Normalize()"))
	assert.ErrorIs(t, err, types.ErrUnknownSegment)
}

func TestEscapeFunctions(t *testing.T) {
	p := newParser()

	got := parse(t, p, "Drives('d')/Root:/folder/file.txt:")
	last := got.Last()
	require.Equal(t, KindOperation, last.Kind)
	assert.Equal(t, "Demo.GetContent", last.Operation.FullName())
	require.Len(t, last.Parameters, 1)
	assert.Equal(t, "Drives('d')/Root/Demo.GetContent(path='folder/file.txt')", got.String())

	got = parse(t, p, "Drives('d')/Root:/folder/sub:/Children")
	assert.Equal(t, []Kind{KindEntitySet, KindKey, KindNavigationProperty, KindOperation, KindNavigationProperty}, got.Kinds())
	assert.Equal(t, "Demo.GetByPath", got.Segments[3].Operation.FullName())

	got = parse(t, p, "Drives('d')/Root:/a::/b:")
	assert.Equal(t, []Kind{KindEntitySet, KindKey, KindNavigationProperty, KindOperation, KindOperation}, got.Kinds())
	assert.Equal(t, "Demo.GetByPath", got.Segments[3].Operation.FullName())
	assert.Equal(t, "Demo.GetContent", got.Segments[4].Operation.FullName())
}

func TestEscapeFunctionRollback(t *testing.T) {
	s := DefaultSettings()
	s.KeyAsSegment = true
	p := newParser(WithSettings(s))

	got := parse(t, p, "Drives/x:")
	require.Len(t, got.Segments, 2)
	assert.Equal(t, "Drives('x:')", got.String())

	_, err := p.Parse(split("Drives/x:/y:"))
	require.Error(t, err)
	var pe *types.ParseError
	require.ErrorAs(t, err, &pe)
	require.NotNil(t, pe.Path)
	assert.Equal(t, []string{"Drives", "('x:')"}, pe.Path.Parsed)
	assert.Equal(t, "y:", pe.Path.Segment)
}

func TestPathContextOnError(t *testing.T) {
	p := newParser()
	_, err := p.Parse(split("People(1)/Nope/Name"))
	require.Error(t, err)

	var pe *types.ParseError
	require.ErrorAs(t, err, &pe)
	require.NotNil(t, pe.Path)
	assert.Equal(t, []string{"People", "(1)"}, pe.Path.Parsed)
	assert.Equal(t, "Nope", pe.Path.Segment)
	assert.Equal(t, []string{"Name"}, pe.Path.Remaining)
	assert.Equal(t, types.CodeNotFound, pe.Code)
}

func TestSegmentCountLimit(t *testing.T) {
	s := DefaultSettings()
	s.MaxSegments = 3
	p := newParser(WithSettings(s))

	parse(t, p, "People(1)/Friends/$count")
	_, err := p.Parse(split("People(1)/Friends(2)/Friends/$count"))
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSegmentCount))

	var pe *types.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Nil(t, pe.Path)
}

func TestFilterSegmentDepth(t *testing.T) {
	s := DefaultSettings()
	s.MaxFilterDepth = 2
	p := newParser(WithSettings(s))

	_, err := p.Parse(split("People/$filter((((Age gt 1))))"))
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindRecursionLimit))
}

func TestTemplatesAliasesAndBatchReferences(t *testing.T) {
	s := DefaultSettings()
	s.URITemplateParsing = true
	p := newParser(WithSettings(s))

	got := parse(t, p, "People({id})")
	assert.Equal(t, KeyTemplate("{id}"), got.Last().Keys[0].Value)
	assert.Equal(t, "People({id})", got.String())

	got = parse(t, p, "People/{id}")
	assert.Equal(t, KindPathTemplate, got.Last().Kind)

	p = newParser(WithParameterAliases(map[string]string{"@k": "7"}))
	got = parse(t, p, "People(@k)")
	assert.Equal(t, "People(7)", got.String())

	m, ts := edmtest.NewWithTypes()
	people := m.Container.FindSource("People")
	p = NewParser(edm.NewResolver(m), WithBatchReferences(map[string]*Segment{
		"1": {Kind: KindKey, Type: ts.Person, Source: people, Target: TargetResource},
	}))
	got = parse(t, p, "$1/Friends")
	assert.Equal(t, []Kind{KindBatchReference, KindNavigationProperty}, got.Kinds())
	assert.Equal(t, "People", got.Last().Source.Name)

	_, err := p.Parse(split("$2/Friends"))
	assert.ErrorIs(t, err, types.ErrUnknownSegment)
}

func TestCaseInsensitiveResolution(t *testing.T) {
	r := edm.NewResolver(edmtest.New())
	r.EnableCaseInsensitive = true
	p := NewParser(r)

	got, err := p.Parse(split("people(1)/NAME/$VALUE"))
	require.NoError(t, err)
	assert.Equal(t, "People(1)/Name/$value", got.String())
}
