package uriparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/config"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm/edmtest"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/expr"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/uripath"
)

const root = "https://example.com/odata/"

func newParser(t *testing.T, uri string, opts ...Option) *Parser {
	t.Helper()
	p, err := New(edmtest.New(), root, uri, opts...)
	require.NoError(t, err)
	return p
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		uri  string
		want []string
	}{
		{root, nil},
		{"https://example.com/odata", nil},
		{root + "People(1)/Friends", []string{"People(1)", "Friends"}},
		{root + "People('a%2Fb')/Name", []string{"People('a/b')", "Name"}},
		{root + "People/", []string{"People"}},
		{"https://EXAMPLE.com/odata/People", []string{"People"}},
		{"/odata/People", []string{"People"}},
		{"People(1)", []string{"People(1)"}},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, newParser(t, tt.uri).Segments())
		})
	}
}

func TestSplitPathOutsideRoot(t *testing.T) {
	for _, uri := range []string{
		"https://other.com/odata/People",
		"http://example.com/odata/People",
		"https://example.com/odatax/People",
		"/People",
	} {
		t.Run(uri, func(t *testing.T) {
			_, err := New(edmtest.New(), root, uri)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotUnderRoot)
			assert.Equal(t, types.CodeNotFound, types.StatusOf(err))
		})
	}
}

func TestRelativeRequest(t *testing.T) {
	p, err := New(edmtest.New(), "", "People(1)/Name?$format=json")
	require.NoError(t, err)
	path, err := p.ParsePath()
	require.NoError(t, err)
	assert.Equal(t, "People(1)/Name", path.String())
	format, ok := p.Format()
	assert.True(t, ok)
	assert.Equal(t, "json", format)
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	p, err := New(edmtest.New(), "", "People(1)/Name?$top=3", WithLogger(nil), WithSettings(nil))
	require.NoError(t, err)
	u, err := p.Parse()
	require.NoError(t, err)
	assert.Equal(t, "People(1)/Name", u.Path.String())
	assert.Equal(t, expr.Int64Option{Set: true, Value: 3}, u.Top)
}

func TestParseFullURI(t *testing.T) {
	p := newParser(t, root+"People?$filter=Age%20gt%2030&$orderby=Name%20desc,Age"+
		"&$select=Name,Age&$expand=Friends($top=2)&$top=10&$skip=5&$count=true"+
		"&$skiptoken=abc&$deltatoken=d1&$schemaversion=2&@p=1&trace=on")
	u, err := p.Parse()
	require.NoError(t, err)

	assert.Equal(t, "People", u.Path.String())
	assert.Equal(t, "(Age gt 30)", expr.Describe(u.Filter))
	require.Len(t, u.OrderBy, 2)
	assert.Equal(t, "Name desc", expr.Describe(u.OrderBy[0]))
	assert.Equal(t, "Age asc", expr.Describe(u.OrderBy[1]))
	assert.Equal(t, "Name,Age", expr.Describe(u.Select))
	assert.Equal(t, "Friends($top=2)", expr.Describe(u.Expand))
	assert.Equal(t, expr.Int64Option{Set: true, Value: 10}, u.Top)
	assert.Equal(t, expr.Int64Option{Set: true, Value: 5}, u.Skip)
	assert.False(t, u.Index.Set)
	assert.Equal(t, expr.BoolOption{Set: true, Value: true}, u.Count)
	assert.Equal(t, "abc", u.SkipToken)
	assert.Equal(t, "d1", u.DeltaToken)
	assert.Equal(t, "2", u.SchemaVersion)
	assert.Equal(t, map[string]string{"@p": "1"}, u.ParameterAliases)
	assert.Equal(t, []QueryOption{{Name: "trace", Value: "on"}}, u.CustomQueryOptions)

	clauses := u.Clauses()
	require.NotEmpty(t, clauses)
	assert.Equal(t, Clause{Name: "path", Text: "People"}, clauses[0])
	assert.Contains(t, clauses, Clause{Name: OptionTop, Text: "10"})
	assert.Contains(t, clauses, Clause{Name: "@p", Text: "1"})
}

func TestAbsentClauses(t *testing.T) {
	p := newParser(t, root+"People")
	f, err := p.ParseFilter()
	require.NoError(t, err)
	assert.Nil(t, f)
	sel, err := p.ParseSelect()
	require.NoError(t, err)
	assert.Nil(t, sel)
	top, err := p.ParseTop()
	require.NoError(t, err)
	assert.False(t, top.Set)
	_, ok := p.SkipToken()
	assert.False(t, ok)
}

func TestExpandStarUsesPathType(t *testing.T) {
	p := newParser(t, root+"Employees(1)?$expand=*")
	exp, err := p.ParseExpand()
	require.NoError(t, err)
	assert.Equal(t, "Friends,BestFriend,Orders,Manager", expr.Describe(exp))

	p = newParser(t, root+"?$expand=*")
	exp, err = p.ParseExpand()
	require.NoError(t, err)
	assert.Equal(t, "*", expr.Describe(exp))
}

func TestParameterAliasesReachKeys(t *testing.T) {
	p := newParser(t, root+"People(@id)?@id=4")
	path, err := p.ParsePath()
	require.NoError(t, err)
	assert.Equal(t, "People(4)", path.String())
}

func TestQueryOptionErrors(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		run  func(*Parser) error
	}{
		{"negative top", "People?$top=-1", func(p *Parser) error { _, err := p.ParseTop(); return err }},
		{"bad skip", "People?$skip=x", func(p *Parser) error { _, err := p.ParseSkip(); return err }},
		{"bad count", "People?$count=yes", func(p *Parser) error { _, err := p.ParseCount(); return err }},
		{"bad filter", "People?$filter=Age%20gt", func(p *Parser) error { _, err := p.ParseFilter(); return err }},
		{"bad path", "Nope?$top=1", func(p *Parser) error { _, err := p.Parse(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.run(newParser(t, root+tt.uri)))
		})
	}

	idx, err := newParser(t, root+"People?$index=-2").ParseIndex()
	require.NoError(t, err)
	assert.Equal(t, int64(-2), idx.Value)
}

func TestDuplicateSystemOption(t *testing.T) {
	_, err := New(edmtest.New(), root, root+"People?$top=1&$top=2")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidOption)
}

func TestOptionNameSettings(t *testing.T) {
	p := newParser(t, root+"People?$Top=1&top=2")
	top, err := p.ParseTop()
	require.NoError(t, err)
	assert.False(t, top.Set)
	assert.Len(t, p.CustomQueryOptions(), 2)

	s := config.Default()
	s.CaseInsensitive = true
	p = newParser(t, root+"people?$TOP=3&$Count=TRUE", WithSettings(s))
	top, err = p.ParseTop()
	require.NoError(t, err)
	assert.Equal(t, int64(3), top.Value)
	count, err := p.ParseCount()
	require.NoError(t, err)
	assert.True(t, count.Value)
	path, err := p.ParsePath()
	require.NoError(t, err)
	assert.Equal(t, "People", path.String())

	s = config.Default()
	s.NoDollarQueryOptions = true
	p = newParser(t, root+"People?top=4", WithSettings(s))
	top, err = p.ParseTop()
	require.NoError(t, err)
	assert.Equal(t, int64(4), top.Value)
}

func TestSettingsReachPathParser(t *testing.T) {
	s := config.Default()
	s.KeyDelimiter = config.KeySlash
	p := newParser(t, root+"People/1/Name", WithSettings(s))
	path, err := p.ParsePath()
	require.NoError(t, err)
	assert.Equal(t, "People(1)/Name", path.String())

	s = config.Default()
	s.PathLimit = 1
	p = newParser(t, root+"People/$count", WithSettings(s))
	_, err = p.ParsePath()
	assert.True(t, types.IsKind(err, types.KindSegmentCount))

	s = config.Default()
	s.FilterLimit = 2
	p = newParser(t, root+"People?$filter=((((Age%20gt%201))))", WithSettings(s))
	_, err = p.ParseFilter()
	assert.True(t, types.IsKind(err, types.KindRecursionLimit))

	s = config.Default()
	s.PathLimit = 0
	_, err = New(edmtest.New(), root, root+"People", WithSettings(s))
	assert.ErrorIs(t, err, config.ErrInvalidSettings)
}

func TestBatchReferencesAndDynamicHandler(t *testing.T) {
	p := newParser(t, root+"$1/Name", WithBatchReferences(map[string]*uripath.Segment{"1": {
		Kind: uripath.KindKey, Type: edmtest.New().FindType("Demo.Person"), Target: uripath.TargetResource,
	}}))
	path, err := p.ParsePath()
	require.NoError(t, err)
	assert.Equal(t, []uripath.Kind{uripath.KindBatchReference, uripath.KindProperty}, path.Kinds())

	p = newParser(t, root+"Reports", WithDynamicHandler(func(prev *uripath.Segment, raw string) (*uripath.Segment, bool) {
		return &uripath.Segment{Kind: uripath.KindDynamicPath, Identifier: raw}, prev == nil
	}))
	path, err = p.ParsePath()
	require.NoError(t, err)
	assert.Equal(t, "Reports", path.String())
}

func TestApplyComputeAndSearch(t *testing.T) {
	p := newParser(t, root+"Orders?$apply=filter(Amount%20gt%201)&$compute=Amount%20mul%202%20as%20Double&$search=blue%20OR%20green")
	u, err := p.Parse()
	require.NoError(t, err)
	require.Len(t, u.Apply, 1)
	require.NotNil(t, u.Compute)
	require.Len(t, u.Compute.Expressions, 1)
	assert.Equal(t, "Double", u.Compute.Expressions[0].Alias)
	assert.NotNil(t, u.Search)
}
