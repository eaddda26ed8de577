package uriparser

import (
	"sort"
	"strconv"
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/expr"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/uripath"
)

// URI is a fully parsed request URI.
type URI struct {
	Path          *uripath.Path
	Filter        expr.QueryToken
	OrderBy       []*expr.OrderByToken
	Select        *expr.SelectToken
	Expand        *expr.ExpandToken
	Search        expr.QueryToken
	Apply         []expr.QueryToken
	Compute       *expr.ComputeToken
	Top           expr.Int64Option
	Skip          expr.Int64Option
	Index         expr.Int64Option
	Count         expr.BoolOption
	SkipToken     string
	DeltaToken    string
	Format        string
	SchemaVersion string

	ParameterAliases   map[string]string
	CustomQueryOptions []QueryOption
}

// Parse parses the path and every query option, stopping at the first error.
func (p *Parser) Parse() (*URI, error) {
	u := &URI{ParameterAliases: p.ParameterAliases(), CustomQueryOptions: p.CustomQueryOptions()}
	var err error
	if u.Path, err = p.ParsePath(); err != nil {
		return nil, err
	}
	steps := []func() error{
		func() (err error) { u.Filter, err = p.ParseFilter(); return },
		func() (err error) { u.OrderBy, err = p.ParseOrderBy(); return },
		func() (err error) { u.Select, err = p.ParseSelect(); return },
		func() (err error) { u.Expand, err = p.ParseExpand(); return },
		func() (err error) { u.Search, err = p.ParseSearch(); return },
		func() (err error) { u.Apply, err = p.ParseApply(); return },
		func() (err error) { u.Compute, err = p.ParseCompute(); return },
		func() (err error) { u.Top, err = p.ParseTop(); return },
		func() (err error) { u.Skip, err = p.ParseSkip(); return },
		func() (err error) { u.Index, err = p.ParseIndex(); return },
		func() (err error) { u.Count, err = p.ParseCount(); return },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	u.SkipToken, _ = p.SkipToken()
	u.DeltaToken, _ = p.DeltaToken()
	u.Format, _ = p.Format()
	u.SchemaVersion, _ = p.SchemaVersion()
	return u, nil
}

// Clause is one rendered part of a parsed URI.
type Clause struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Clauses renders the parts that are present, path first.
func (u *URI) Clauses() []Clause {
	var out []Clause
	add := func(name, text string) { out = append(out, Clause{Name: name, Text: text}) }

	if u.Path != nil {
		add("path", u.Path.String())
	}
	if u.Filter != nil {
		add(OptionFilter, expr.Describe(u.Filter))
	}
	if len(u.OrderBy) > 0 {
		parts := make([]string, len(u.OrderBy))
		for i, o := range u.OrderBy {
			parts[i] = expr.Describe(o)
		}
		add(OptionOrderBy, strings.Join(parts, ","))
	}
	if u.Select != nil {
		add(OptionSelect, expr.Describe(u.Select))
	}
	if u.Expand != nil {
		add(OptionExpand, expr.Describe(u.Expand))
	}
	if u.Search != nil {
		add(OptionSearch, expr.Describe(u.Search))
	}
	if len(u.Apply) > 0 {
		parts := make([]string, len(u.Apply))
		for i, t := range u.Apply {
			parts[i] = expr.Describe(t)
		}
		add(OptionApply, strings.Join(parts, "/"))
	}
	if u.Compute != nil {
		add(OptionCompute, expr.Describe(u.Compute))
	}
	for _, o := range []struct {
		name string
		opt  expr.Int64Option
	}{{OptionTop, u.Top}, {OptionSkip, u.Skip}, {OptionIndex, u.Index}} {
		if o.opt.Set {
			add(o.name, strconv.FormatInt(o.opt.Value, 10))
		}
	}
	if u.Count.Set {
		add(OptionCount, strconv.FormatBool(u.Count.Value))
	}
	for _, o := range []struct{ name, value string }{
		{OptionSkipToken, u.SkipToken}, {OptionDeltaToken, u.DeltaToken},
		{OptionFormat, u.Format}, {OptionSchemaVersion, u.SchemaVersion},
	} {
		if o.value != "" {
			add(o.name, o.value)
		}
	}

	aliases := make([]string, 0, len(u.ParameterAliases))
	for name := range u.ParameterAliases {
		aliases = append(aliases, name)
	}
	sort.Strings(aliases)
	for _, name := range aliases {
		add(name, u.ParameterAliases[name])
	}
	for _, o := range u.CustomQueryOptions {
		add(o.Name, o.Value)
	}
	return out
}
