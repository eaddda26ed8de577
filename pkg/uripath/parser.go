package uripath

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/expr"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/literal"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// DefaultMaxSegments bounds the number of raw segments in one path.
const DefaultMaxSegments = 100

// Settings configures path resolution.
type Settings struct {
	MaxSegments        int
	MaxFilterDepth     int // for $filter(...) segments and function arguments
	KeyAsSegment       bool
	URITemplateParsing bool
	CaseInsensitive    bool // applies to $-prefixed segment names
}

// DefaultSettings returns the default settings.
func DefaultSettings() Settings {
	return Settings{MaxSegments: DefaultMaxSegments, MaxFilterDepth: expr.DefaultMaxDepth}
}

// DynamicHandler may resolve a segment that matches nothing in the model.
// previous is nil for the first segment.
type DynamicHandler func(previous *Segment, raw string) (*Segment, bool)

// Option configures a Parser.
type Option func(*Parser)

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(p *Parser) { p.settings = s }
}

// WithLogger sets the logger used for debug records.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithParameterAliases supplies the values of @name aliases used in keys.
func WithParameterAliases(aliases map[string]string) Option {
	return func(p *Parser) { p.aliases = aliases }
}

// WithBatchReferences supplies the segments that $<content-id> references
// in a batch request resolve to.
func WithBatchReferences(refs map[string]*Segment) Option {
	return func(p *Parser) { p.batch = refs }
}

// WithDynamicHandler sets the fallback for segments the model cannot resolve.
func WithDynamicHandler(h DynamicHandler) Option {
	return func(p *Parser) { p.dynamic = h }
}

// Parser resolves raw path segments. It holds no per-call state.
type Parser struct {
	resolver edm.Resolver
	settings Settings
	logger   *slog.Logger
	aliases  map[string]string
	batch    map[string]*Segment
	dynamic  DynamicHandler
}

// NewParser creates a Parser that resolves names through resolver.
func NewParser(resolver edm.Resolver, opts ...Option) *Parser {
	p := &Parser{resolver: resolver, settings: DefaultSettings(), logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "uripath")
	return p
}

// Parse resolves the raw segments of a resource path, which must already be
// percent-decoded.
func (p *Parser) Parse(raw []string) (*Path, error) {
	if len(raw) > p.settings.MaxSegments {
		return nil, types.NewSegmentCountError(p.settings.MaxSegments)
	}
	p.logger.Debug("parse start", "clause", "path", "segments", len(raw))
	st := &state{p: p, raw: raw}
	for st.pos < len(st.raw) {
		seg := st.raw[st.pos]
		st.pos++
		if err := st.step(seg); err != nil {
			return nil, st.fail(err, seg)
		}
	}
	return &Path{Segments: st.segments}, nil
}

func (p *Parser) exprOptions() []expr.Option {
	return []expr.Option{
		expr.WithMaxDepth(p.settings.MaxFilterDepth),
		expr.WithCaseInsensitive(p.caseInsensitive()),
		expr.WithLogger(p.logger),
	}
}

func (p *Parser) caseInsensitive() bool {
	return p.settings.CaseInsensitive || p.resolver.CaseInsensitive()
}

func (p *Parser) registries() []*literal.Registry {
	if m := p.resolver.Model(); m != nil {
		return []*literal.Registry{literal.ForModel(m), literal.Global}
	}
	return []*literal.Registry{literal.Global}
}

// state is the cursor of one Parse call.
type state struct {
	p        *Parser
	raw      []string
	pos      int // next raw segment
	segments []*Segment
}

func (st *state) last() *Segment {
	if len(st.segments) == 0 {
		return nil
	}
	return st.segments[len(st.segments)-1]
}

func (st *state) push(seg *Segment) {
	st.p.logger.Debug("segment resolved", "kind", seg.Kind.String(), "identifier", seg.Identifier)
	st.segments = append(st.segments, seg)
}

func (st *state) identifiers() []string {
	out := make([]string, len(st.segments))
	for i, s := range st.segments {
		out[i] = s.String()
	}
	return out
}

// fail attaches where resolution stopped. Limit errors stay generic.
func (st *state) fail(err error, raw string) error {
	var pe *types.ParseError
	if !errors.As(err, &pe) || pe.Path != nil {
		return err
	}
	switch pe.Kind {
	case types.KindRecursionLimit, types.KindPathTooLong, types.KindSegmentCount:
		return err
	}
	pe.WithPath(&types.PathContext{
		Parsed:    st.identifiers(),
		Segment:   raw,
		Remaining: append([]string(nil), st.raw[st.pos:]...),
	})
	return err
}

func (st *state) isSystem(text, name string) bool {
	return text == name || (st.p.caseInsensitive() && strings.EqualFold(text, name))
}

func notFound(format string, args ...any) *types.ParseError {
	return types.NewBindingError(fmt.Sprintf(format, args...)).WithCause(types.ErrUnknownSegment).WithNotFound()
}

func (st *state) step(raw string) error {
	if raw == "" {
		return types.NewSyntaxError("empty path segment", 0, raw).WithCause(types.ErrUnexpectedToken)
	}
	prev := st.last()
	if prev != nil && prev.IsLeaf() {
		return types.NewBindingError(fmt.Sprintf("no segment may follow '%s'", prev.String())).
			WithCause(types.ErrLeafSegment).WithNotFound()
	}
	if prev != nil && len(raw) > 1 && strings.HasSuffix(raw, ":") {
		ok, err := st.escape(raw)
		if err != nil || ok {
			return err
		}
	}
	return st.bind(raw)
}

// bind resolves one ordinary segment.
func (st *state) bind(raw string) error {
	prev := st.last()
	if prev == nil {
		return st.first(raw)
	}
	id, args, hasArgs := splitSegment(raw)
	switch {
	case st.isSystem(id, "$value"):
		return st.noArgs(raw, hasArgs, st.value)
	case st.isSystem(id, "$ref"):
		return st.noArgs(raw, hasArgs, st.ref)
	case st.isSystem(id, "$count"):
		return st.noArgs(raw, hasArgs, st.count)
	case st.isSystem(id, "$filter"):
		return st.filter(args, hasArgs)
	case st.isSystem(id, "$each"):
		return st.noArgs(raw, hasArgs, st.each)
	}

	resolver := st.p.resolver
	if bt := prev.Structured(); bt != nil {
		if !prev.Collection {
			if prop := resolver.ResolveProperty(bt, id); prop != nil {
				return st.withKey(st.property(prop), args, hasArgs)
			}
			if nav := resolver.ResolveNavigationProperty(bt, id); nav != nil {
				return st.withKey(st.navigation(nav), args, hasArgs)
			}
		}
		if ok, err := st.typeCast(id, args, hasArgs); ok || err != nil {
			return err
		}
		if ok, err := st.boundOperation(id, args, hasArgs); ok || err != nil {
			return err
		}
		if prev.Collection && (resolver.ResolveProperty(bt, id) != nil || resolver.ResolveNavigationProperty(bt, id) != nil) && !st.p.settings.KeyAsSegment {
			return types.NewBindingError(fmt.Sprintf("'%s' cannot be applied to a collection; a key is required", id)).
				WithCause(types.ErrKeyMismatch)
		}
	} else {
		if ok, err := st.typeCast(id, args, hasArgs); ok || err != nil {
			return err
		}
		if ok, err := st.boundOperation(id, args, hasArgs); ok || err != nil {
			return err
		}
	}

	if st.p.settings.KeyAsSegment && prev.IsEntityCollection() && (!strings.HasPrefix(raw, "$") || strings.HasPrefix(raw, "$$")) {
		key, err := st.keySegment(prev, &SegmentArguments{Positional: []string{raw}}, literal.ModeKeyAsSegment)
		if err != nil {
			return err
		}
		st.push(key)
		return nil
	}
	if st.p.settings.URITemplateParsing && expr.IsTemplate(raw) {
		st.push(&Segment{Kind: KindPathTemplate, Identifier: raw, Type: prev.Type, Collection: prev.Collection, Target: prev.Target})
		return nil
	}
	if st.isOpen(prev) {
		st.push(&Segment{Kind: KindDynamicPath, Identifier: raw, Type: edm.Untyped, Target: TargetOpenProperty})
		return nil
	}
	if st.p.dynamic != nil {
		if seg, ok := st.p.dynamic(prev, raw); ok {
			st.push(seg)
			return nil
		}
	}
	return notFound("segment '%s' cannot be resolved after '%s'", raw, prev.String())
}

func (st *state) isOpen(prev *Segment) bool {
	if prev.Target == TargetOpenProperty {
		return true
	}
	bt := prev.Structured()
	return bt != nil && bt.Open && !prev.Collection
}

func (st *state) noArgs(raw string, hasArgs bool, fn func() error) error {
	if hasArgs {
		return types.NewSyntaxError(fmt.Sprintf("segment '%s' takes no arguments", raw), 0, raw).WithCause(types.ErrUnexpectedToken)
	}
	return fn()
}

// first resolves the segment that starts a path.
func (st *state) first(raw string) error {
	id, args, hasArgs := splitSegment(raw)
	switch {
	case st.isSystem(id, "$metadata"):
		return st.noArgs(raw, hasArgs, func() error {
			st.push(&Segment{Kind: KindMetadata, Identifier: "$metadata", Target: TargetMetadata})
			return nil
		})
	case st.isSystem(id, "$batch"):
		return st.noArgs(raw, hasArgs, func() error {
			st.push(&Segment{Kind: KindBatch, Identifier: "$batch", Target: TargetBatch})
			return nil
		})
	case st.isSystem(id, "$count"):
		return types.NewBindingError("$count cannot be applied to the service root").WithCause(types.ErrCountOnRoot)
	case strings.HasPrefix(raw, "$") && isContentID(raw[1:]):
		ref, ok := st.p.batch[raw[1:]]
		if !ok {
			return notFound("batch content id '%s' is not defined", raw)
		}
		st.push(&Segment{Kind: KindBatchReference, Identifier: raw, Type: ref.Type, Collection: ref.Collection,
			Source: ref.Source, Target: ref.Target})
		return nil
	}

	resolver := st.p.resolver
	if src := resolver.ResolveNavigationSource(id); src != nil {
		seg := &Segment{Kind: KindEntitySet, Identifier: src.Name, Type: src.EntityType, Collection: true,
			Source: src, Target: TargetResource}
		if src.Kind == edm.SourceSingleton {
			seg.Kind, seg.Collection = KindSingleton, false
		}
		return st.withKey(seg, args, hasArgs)
	}
	if imports := resolver.ResolveOperationImports(id); len(imports) > 0 {
		return st.operationImport(imports, args, hasArgs)
	}
	if st.p.settings.URITemplateParsing && expr.IsTemplate(raw) {
		st.push(&Segment{Kind: KindPathTemplate, Identifier: raw, Target: TargetResource})
		return nil
	}
	if st.p.dynamic != nil {
		if seg, ok := st.p.dynamic(nil, raw); ok {
			st.push(seg)
			return nil
		}
	}
	return notFound("resource '%s' is not defined by the model", id)
}

// withKey pushes seg and, when the segment text carried parentheses, the
// key segment they denote.
func (st *state) withKey(seg *Segment, args string, hasArgs bool) error {
	if hasArgs && !seg.IsEntityCollection() {
		return types.NewBindingError(fmt.Sprintf("'%s' is not a collection of entities and cannot take a key", seg.Identifier)).
			WithCause(types.ErrKeyMismatch)
	}
	st.push(seg)
	if !hasArgs {
		return nil
	}
	parsed, err := ParseSegmentArguments(args)
	if err != nil {
		return err
	}
	key, err := st.keySegment(seg, parsed, literal.ModeDefault)
	if err != nil {
		return err
	}
	st.push(key)
	return nil
}

func targetOf(t edm.Type) TargetKind {
	switch t := t.(type) {
	case *edm.StructuredType:
		if t.IsEntity {
			return TargetResource
		}
		return TargetComplexObject
	case *edm.EnumType:
		return TargetEnum
	case *edm.PrimitiveType:
		return TargetPrimitive
	case *edm.UntypedType:
		return TargetOpenProperty
	}
	return TargetNothing
}

func (st *state) property(prop *edm.Property) *Segment {
	return &Segment{Kind: KindProperty, Identifier: prop.Name, Type: prop.Type.Type, Collection: prop.Type.Collection,
		Target: targetOf(prop.Type.Type), Property: prop}
}

func (st *state) navigation(nav *edm.NavigationProperty) *Segment {
	var target *edm.NavigationSource
	if src, bindingPath := st.bindingContext(); src != nil {
		target = src.FindNavigationTarget(nav, strings.Join(append(bindingPath, nav.Name), "/"))
	}
	return &Segment{Kind: KindNavigationProperty, Identifier: nav.Name, Type: nav.Target, Collection: nav.Collection,
		Source: target, Target: TargetResource, Navigation: nav}
}

// bindingContext returns the navigation source that the path currently
// binds against and the type casts and complex properties traversed since.
func (st *state) bindingContext() (*edm.NavigationSource, []string) {
	var parts []string
	for i := len(st.segments) - 1; i >= 0; i-- {
		s := st.segments[i]
		switch s.Kind {
		case KindKey:
			continue
		case KindType, KindProperty:
			parts = append([]string{s.Identifier}, parts...)
			continue
		}
		return s.Source, parts
	}
	return nil, parts
}

func (st *state) value() error {
	prev := st.last()
	seg := &Segment{Kind: KindValue, Identifier: "$value", Type: prev.Type}
	switch {
	case prev.Collection:
		return types.NewBindingError("$value cannot follow a collection").WithCause(types.ErrUnknownSegment)
	case prev.Target == TargetOpenProperty:
		seg.Target = TargetOpenPropertyValue
	case prev.Target == TargetPrimitive || prev.Target == TargetEnum:
		seg.Target = TargetPrimitiveValue
		if pt, ok := prev.Type.(*edm.PrimitiveType); ok && pt.Kind == edm.Stream {
			seg.Target = TargetMediaResource
		}
	case prev.Structured() != nil && prev.Structured().IsEntity && prev.Structured().HasStream:
		seg.Target, seg.Source = TargetMediaResource, prev.Source
	default:
		return types.NewBindingError(fmt.Sprintf("$value cannot follow '%s'", prev.String())).WithCause(types.ErrUnknownSegment)
	}
	st.push(seg)
	return nil
}

func (st *state) ref() error {
	prev := st.last()
	if prev.Kind == KindNavigationProperty {
		link := *prev
		link.Kind = KindNavigationPropertyLink
		st.segments[len(st.segments)-1] = &link
		st.p.logger.Debug("segment resolved", "kind", link.Kind.String(), "identifier", link.Identifier)
		return nil
	}
	if bt := prev.Structured(); bt != nil && bt.IsEntity {
		st.push(&Segment{Kind: KindReference, Identifier: "$ref", Type: prev.Type, Collection: prev.Collection,
			Source: prev.Source, Target: TargetResource})
		return nil
	}
	return types.NewBindingError(fmt.Sprintf("$ref cannot follow '%s'", prev.String())).WithCause(types.ErrUnknownSegment)
}

func (st *state) count() error {
	prev := st.last()
	if !prev.Collection {
		return types.NewBindingError(fmt.Sprintf("$count cannot follow '%s', which is not a collection", prev.String())).
			WithCause(types.ErrCountNotCollection)
	}
	st.push(&Segment{Kind: KindCount, Identifier: "$count", Type: edm.Primitive(edm.Int32), Target: TargetPrimitiveValue})
	return nil
}

func (st *state) filter(args string, hasArgs bool) error {
	prev := st.last()
	if !hasArgs {
		return types.NewSyntaxError("$filter segment requires a parenthesized expression", 0, "$filter").WithCause(types.ErrUnexpectedToken)
	}
	if !prev.Collection {
		return types.NewBindingError(fmt.Sprintf("$filter cannot follow '%s', which is not a collection", prev.String())).
			WithCause(types.ErrUnknownSegment)
	}
	tok, err := expr.ParseFilter(args, st.p.exprOptions()...)
	if err != nil {
		return err
	}
	st.push(&Segment{Kind: KindFilter, Identifier: "$filter", Type: prev.Type, Collection: true,
		Source: prev.Source, Target: prev.Target, Filter: tok})
	return nil
}

func (st *state) each() error {
	prev := st.last()
	if !prev.Collection {
		return types.NewBindingError(fmt.Sprintf("$each cannot follow '%s', which is not a collection", prev.String())).
			WithCause(types.ErrUnknownSegment)
	}
	st.push(&Segment{Kind: KindEach, Identifier: "$each", Type: prev.Type, Source: prev.Source, Target: prev.Target})
	return nil
}

// typeCast binds a qualified type name. ok is false when id names no type.
func (st *state) typeCast(id, args string, hasArgs bool) (bool, error) {
	if !strings.Contains(id, ".") {
		return false, nil
	}
	prev := st.last()
	switch cast := st.p.resolver.ResolveType(id).(type) {
	case *edm.StructuredType:
		bt := prev.Structured()
		if bt == nil || !cast.IsRelatedTo(bt) {
			return true, types.NewBindingError(fmt.Sprintf("type '%s' is not related to '%s'", cast.FullName(), typeName(prev.Type))).
				WithCause(types.ErrUnknownSegment)
		}
		if err := st.checkConstraints(bt, cast); err != nil {
			return true, err
		}
		seg := &Segment{Kind: KindType, Identifier: cast.FullName(), Type: cast, Collection: prev.Collection,
			Source: prev.Source, Target: prev.Target}
		return true, st.withKey(seg, args, hasArgs)
	case *edm.PrimitiveType:
		if prev.Target != TargetOpenProperty && prev.Target != TargetPrimitive {
			return true, types.NewBindingError(fmt.Sprintf("cannot cast '%s' to '%s'", prev.String(), cast.FullName())).
				WithCause(types.ErrUnknownSegment)
		}
		if hasArgs {
			return true, types.NewBindingError(fmt.Sprintf("type cast '%s' cannot take a key", id)).WithCause(types.ErrKeyMismatch)
		}
		st.push(&Segment{Kind: KindType, Identifier: cast.FullName(), Type: cast, Collection: prev.Collection, Target: TargetPrimitive})
		return true, nil
	}
	return false, nil
}

func typeName(t edm.Type) string {
	if t == nil {
		return "?"
	}
	return t.FullName()
}

// checkConstraints enforces the derived type constraints declared on the
// element that introduced the current type.
func (st *state) checkConstraints(declared, cast *edm.StructuredType) error {
	constraints := st.derivedTypeConstraints()
	if len(constraints) == 0 || cast == declared || declared.IsOrDerivesFrom(cast) {
		return nil
	}
	for _, c := range constraints {
		if c == cast.FullName() || (st.p.caseInsensitive() && strings.EqualFold(c, cast.FullName())) {
			return nil
		}
	}
	return types.NewBindingError(fmt.Sprintf("type '%s' is not allowed by the derived type constraints [%s]",
		cast.FullName(), strings.Join(constraints, ", "))).WithCause(types.ErrTypeConstraint)
}

func (st *state) derivedTypeConstraints() []string {
	for i := len(st.segments) - 1; i >= 0; i-- {
		s := st.segments[i]
		switch s.Kind {
		case KindKey, KindType, KindFilter, KindEach:
			continue
		case KindEntitySet, KindSingleton:
			return s.Source.DerivedTypeConstraints
		case KindNavigationProperty:
			return s.Navigation.DerivedTypeConstraints
		case KindProperty:
			return s.Property.DerivedTypeConstraints
		}
		return nil
	}
	return nil
}

func (st *state) boundOperation(id, args string, hasArgs bool) (bool, error) {
	prev := st.last()
	ops := st.p.resolver.ResolveBoundOperations(id, prev.TypeRef())
	if len(ops) == 0 {
		return false, nil
	}
	params, err := st.parameters(args, hasArgs)
	if err != nil {
		return true, err
	}
	op, err := resolveOverload(id, ops, params, st.p.caseInsensitive())
	if err != nil {
		return true, err
	}
	st.push(st.operationSegment(KindOperation, op.FullName(), op, params, st.entitySetPath(op)))
	return true, nil
}

func (st *state) operationImport(imports []*edm.OperationImport, args string, hasArgs bool) error {
	params, err := st.parameters(args, hasArgs)
	if err != nil {
		return err
	}
	ops := make([]*edm.Operation, len(imports))
	for i, imp := range imports {
		ops[i] = imp.Operation
	}
	op, err := resolveOverload(imports[0].Name, ops, params, st.p.caseInsensitive())
	if err != nil {
		return err
	}
	imp := imports[0]
	for _, candidate := range imports {
		if candidate.Operation == op {
			imp = candidate
		}
	}
	var source *edm.NavigationSource
	if imp.EntitySet != "" {
		source = st.p.resolver.ResolveNavigationSource(imp.EntitySet)
	}
	seg := st.operationSegment(KindOperationImport, imp.Name, op, params, source)
	seg.Import = imp
	st.push(seg)
	return nil
}

func (st *state) parameters(args string, hasArgs bool) ([]*expr.FunctionParameterToken, error) {
	if !hasArgs {
		return nil, nil
	}
	return expr.ParseFunctionParameters(args, st.p.exprOptions()...)
}

func (st *state) operationSegment(kind Kind, id string, op *edm.Operation, params []*expr.FunctionParameterToken, source *edm.NavigationSource) *Segment {
	seg := &Segment{Kind: kind, Identifier: id, Operation: op, Parameters: params}
	if op.ReturnsVoid() {
		seg.Target = TargetVoidOperation
		return seg
	}
	rt := *op.ReturnType
	seg.Type, seg.Collection, seg.Target = rt.Type, rt.Collection, targetOf(rt.Type)
	if et, ok := rt.Type.(*edm.StructuredType); ok && et.IsEntity {
		seg.Source = source
	}
	return seg
}

// entitySetPath follows the entity set path of a bound operation, whose first
// part names the binding parameter.
func (st *state) entitySetPath(op *edm.Operation) *edm.NavigationSource {
	if op.EntitySetPath == "" {
		return nil
	}
	parts := strings.Split(op.EntitySetPath, "/")
	src := st.last().Source
	cur := st.last().Structured()
	for _, name := range parts[1:] {
		if src == nil || cur == nil {
			return nil
		}
		nav := cur.FindNavigation(name, st.p.caseInsensitive())
		if nav == nil {
			return nil
		}
		src, cur = src.FindNavigationTarget(nav, ""), nav.Target
	}
	return src
}

// splitSegment separates "Name(args)" into its identifier and the text
// between the outer parentheses.
func splitSegment(raw string) (id, args string, hasArgs bool) {
	i := strings.IndexByte(raw, '(')
	if i <= 0 || !strings.HasSuffix(raw, ")") || !isIdentifier(raw[:i]) {
		return raw, "", false
	}
	return raw[:i], raw[i+1 : len(raw)-1], true
}

func isIdentifier(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_', c == '.', c == '$':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}

func isContentID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
