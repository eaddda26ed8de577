// Package uriparser is the entry point for parsing a complete request URI:
// it splits the URI into path segments and query options and hands each
// clause to the matching parser.
package uriparser

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/config"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/expr"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/selectexpand"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/uripath"
)

// Option configures a Parser.
type Option func(*Parser)

// WithSettings replaces the default settings.
func WithSettings(s *config.Settings) Option {
	return func(p *Parser) {
		if s != nil {
			p.settings = s
		}
	}
}

// WithResolver replaces the resolver built from the model.
func WithResolver(r edm.Resolver) Option {
	return func(p *Parser) { p.resolver = r }
}

// WithLogger sets the logger passed down to every clause parser.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithBatchReferences supplies the segments that $<content-id> references
// resolve to inside a batch request.
func WithBatchReferences(refs map[string]*uripath.Segment) Option {
	return func(p *Parser) { p.batch = refs }
}

// WithDynamicHandler sets the fallback for segments the model cannot resolve.
func WithDynamicHandler(h uripath.DynamicHandler) Option {
	return func(p *Parser) { p.dynamic = h }
}

// Parser parses one request URI. Clause methods parse lazily and return a
// zero value when the clause is absent.
type Parser struct {
	model    *edm.Model
	resolver edm.Resolver
	settings *config.Settings
	logger   *slog.Logger
	batch    map[string]*uripath.Segment
	dynamic  uripath.DynamicHandler

	segments []string
	query    *queryOptions
	path     *uripath.Path
}

// New prepares a parser for requestURI. With a non-empty serviceRoot the
// request must lie under it; otherwise requestURI is taken as relative to the
// service root.
func New(model *edm.Model, serviceRoot, requestURI string, opts ...Option) (*Parser, error) {
	p := &Parser{model: model, settings: config.Default(), logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "uriparser")
	if err := p.settings.Validate(); err != nil {
		return nil, err
	}
	if p.resolver == nil {
		r := edm.NewResolver(model)
		r.EnableCaseInsensitive = p.settings.CaseInsensitive
		r.Unqualified = p.settings.UnqualifiedOperationCall
		p.resolver = r
	}

	request, err := url.Parse(requestURI)
	if err != nil {
		return nil, types.NewSyntaxError(fmt.Sprintf("invalid request URI: %v", err), 0, requestURI).
			WithCause(types.ErrUnexpectedToken)
	}
	var root *url.URL
	if serviceRoot != "" {
		if root, err = url.Parse(serviceRoot); err != nil {
			return nil, types.NewSyntaxError(fmt.Sprintf("invalid service root: %v", err), 0, serviceRoot).
				WithCause(types.ErrUnexpectedToken)
		}
	}
	if p.segments, err = splitPath(root, request); err != nil {
		return nil, err
	}
	raw, err := splitQuery(request.RawQuery)
	if err != nil {
		return nil, err
	}
	if p.query, err = classify(raw, p.settings.CaseInsensitive, p.settings.NoDollarQueryOptions); err != nil {
		return nil, err
	}
	p.logger.Debug("request split", "segments", len(p.segments), "options", len(raw))
	return p, nil
}

// Segments returns the decoded path segments.
func (p *Parser) Segments() []string { return p.segments }

// ParameterAliases returns the @name=value options of the query string.
func (p *Parser) ParameterAliases() map[string]string { return p.query.aliases }

// CustomQueryOptions returns the options that are neither system options
// nor parameter aliases, in query string order.
func (p *Parser) CustomQueryOptions() []QueryOption { return p.query.custom }

func (p *Parser) option(name string) (string, bool) {
	v, ok := p.query.system[name]
	return v, ok
}

func (p *Parser) exprOptions(depth int) []expr.Option {
	return []expr.Option{
		expr.WithMaxDepth(depth),
		expr.WithCaseInsensitive(p.settings.CaseInsensitive),
		expr.WithLogger(p.logger),
	}
}

// ParsePath resolves the path segments. The result is cached.
func (p *Parser) ParsePath() (*uripath.Path, error) {
	if p.path != nil {
		return p.path, nil
	}
	opts := []uripath.Option{
		uripath.WithSettings(uripath.Settings{
			MaxSegments:        p.settings.PathLimit,
			MaxFilterDepth:     p.settings.FilterLimit,
			KeyAsSegment:       p.settings.KeyAsSegment(),
			URITemplateParsing: p.settings.URITemplateParsing,
			CaseInsensitive:    p.settings.CaseInsensitive,
		}),
		uripath.WithLogger(p.logger),
		uripath.WithParameterAliases(p.query.aliases),
	}
	if p.batch != nil {
		opts = append(opts, uripath.WithBatchReferences(p.batch))
	}
	if p.dynamic != nil {
		opts = append(opts, uripath.WithDynamicHandler(p.dynamic))
	}
	path, err := uripath.NewParser(p.resolver, opts...).Parse(p.segments)
	if err != nil {
		return nil, err
	}
	p.path = path
	return path, nil
}

// ParseFilter parses $filter.
func (p *Parser) ParseFilter() (expr.QueryToken, error) {
	text, ok := p.option(OptionFilter)
	if !ok {
		return nil, nil
	}
	return expr.ParseFilter(text, p.exprOptions(p.settings.FilterLimit)...)
}

// ParseOrderBy parses $orderby.
func (p *Parser) ParseOrderBy() ([]*expr.OrderByToken, error) {
	text, ok := p.option(OptionOrderBy)
	if !ok {
		return nil, nil
	}
	return expr.ParseOrderBy(text, p.exprOptions(p.settings.OrderByLimit)...)
}

// ParseSearch parses $search.
func (p *Parser) ParseSearch() (expr.QueryToken, error) {
	text, ok := p.option(OptionSearch)
	if !ok {
		return nil, nil
	}
	return expr.ParseSearch(text, p.exprOptions(p.settings.SearchLimit)...)
}

// ParseApply parses $apply.
func (p *Parser) ParseApply() ([]expr.QueryToken, error) {
	text, ok := p.option(OptionApply)
	if !ok {
		return nil, nil
	}
	return expr.ParseApply(text, p.exprOptions(p.settings.FilterLimit)...)
}

// ParseCompute parses $compute.
func (p *Parser) ParseCompute() (*expr.ComputeToken, error) {
	text, ok := p.option(OptionCompute)
	if !ok {
		return nil, nil
	}
	return expr.ParseCompute(text, p.exprOptions(p.settings.FilterLimit)...)
}

func (p *Parser) selectExpand() (*selectexpand.Parser, *edm.StructuredType, error) {
	var parent *edm.StructuredType
	if len(p.segments) > 0 {
		path, err := p.ParsePath()
		if err != nil {
			return nil, nil, err
		}
		if last := path.Last(); last != nil {
			parent = last.Structured()
		}
	}
	se := selectexpand.NewParser(
		selectexpand.WithSettings(selectexpand.Settings{
			MaxPathDepth:         p.settings.MaxPathDepth,
			MaxExpansionDepth:    p.settings.MaximumExpansionDepth,
			MaxFilterDepth:       p.settings.SelectExpandLimit,
			MaxOrderByDepth:      p.settings.SelectExpandLimit,
			MaxSearchDepth:       p.settings.SearchLimit,
			CaseInsensitive:      p.settings.CaseInsensitive,
			NoDollarQueryOptions: p.settings.NoDollarQueryOptions,
		}),
		selectexpand.WithResolver(p.resolver),
		selectexpand.WithLogger(p.logger),
	)
	return se, parent, nil
}

// ParseSelect parses $select against the type addressed by the path.
func (p *Parser) ParseSelect() (*expr.SelectToken, error) {
	text, ok := p.option(OptionSelect)
	if !ok {
		return nil, nil
	}
	se, parent, err := p.selectExpand()
	if err != nil {
		return nil, err
	}
	return se.ParseSelect(text, parent)
}

// ParseExpand parses $expand against the type addressed by the path. A star
// is expanded to the navigation properties of that type.
func (p *Parser) ParseExpand() (*expr.ExpandToken, error) {
	text, ok := p.option(OptionExpand)
	if !ok {
		return nil, nil
	}
	se, parent, err := p.selectExpand()
	if err != nil {
		return nil, err
	}
	return se.ParseExpand(text, parent)
}

// ParseTop parses $top.
func (p *Parser) ParseTop() (expr.Int64Option, error) {
	return p.integer(OptionTop, false)
}

// ParseSkip parses $skip.
func (p *Parser) ParseSkip() (expr.Int64Option, error) {
	return p.integer(OptionSkip, false)
}

// ParseIndex parses $index, which may be negative.
func (p *Parser) ParseIndex() (expr.Int64Option, error) {
	return p.integer(OptionIndex, true)
}

func (p *Parser) integer(name string, signed bool) (expr.Int64Option, error) {
	text, ok := p.option(name)
	if !ok {
		return expr.Int64Option{}, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || (!signed && n < 0) {
		kind := "a non-negative integer"
		if signed {
			kind = "an integer"
		}
		return expr.Int64Option{}, types.NewSyntaxError(fmt.Sprintf("%s must be %s, got '%s'", name, kind, text), 0, text).
			WithCause(types.ErrInvalidOption)
	}
	return expr.Int64Option{Set: true, Value: n}, nil
}

// ParseCount parses $count.
func (p *Parser) ParseCount() (expr.BoolOption, error) {
	text, ok := p.option(OptionCount)
	if !ok {
		return expr.BoolOption{}, nil
	}
	v := strings.TrimSpace(text)
	if p.settings.CaseInsensitive {
		v = strings.ToLower(v)
	}
	switch v {
	case "true":
		return expr.BoolOption{Set: true, Value: true}, nil
	case "false":
		return expr.BoolOption{Set: true}, nil
	}
	return expr.BoolOption{}, types.NewSyntaxError(fmt.Sprintf("$count must be true or false, got '%s'", text), 0, text).
		WithCause(types.ErrInvalidOption)
}

// SkipToken returns $skiptoken verbatim.
func (p *Parser) SkipToken() (string, bool) { return p.option(OptionSkipToken) }

// DeltaToken returns $deltatoken verbatim.
func (p *Parser) DeltaToken() (string, bool) { return p.option(OptionDeltaToken) }

// Format returns $format verbatim.
func (p *Parser) Format() (string, bool) { return p.option(OptionFormat) }

// SchemaVersion returns $schemaversion verbatim.
func (p *Parser) SchemaVersion() (string, bool) { return p.option(OptionSchemaVersion) }
