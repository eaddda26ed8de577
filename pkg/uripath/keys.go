package uripath

import (
	"fmt"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/expr"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/literal"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// SegmentArguments holds the raw values written between the parentheses of a
// key: either named or positional, never both.
type SegmentArguments struct {
	Named      map[string]string
	Positional []string
}

// ParseSegmentArguments splits key text such as "1" or "OrderId=1,LineNo=2".
func ParseSegmentArguments(text string) (*SegmentArguments, error) {
	values, err := expr.ParseKeyValues(text)
	if err != nil {
		return nil, err
	}
	args := &SegmentArguments{}
	for _, nv := range values {
		if nv.Name == "" {
			args.Positional = append(args.Positional, nv.Value.Text)
			continue
		}
		if args.Named == nil {
			args.Named = make(map[string]string, len(values))
		}
		args.Named[nv.Name] = nv.Value.Text
	}
	return args, nil
}

// Len returns the number of values.
func (a *SegmentArguments) Len() int { return len(a.Named) + len(a.Positional) }

// IsNamed reports whether the values are name=value pairs.
func (a *SegmentArguments) IsNamed() bool { return len(a.Named) > 0 }

// keySegment resolves args against the key of the entity type of prev.
func (st *state) keySegment(prev *Segment, args *SegmentArguments, mode literal.Mode) (*Segment, error) {
	et := prev.Structured()
	if et == nil || !et.IsEntity {
		return nil, types.NewBindingError(fmt.Sprintf("'%s' does not address entities and cannot take a key", prev.String())).
			WithCause(types.ErrKeyMismatch)
	}
	if err := st.substituteAliases(args); err != nil {
		return nil, err
	}

	keys := et.KeyProperties()
	if args.Len() < len(keys) {
		inherited := st.inheritedKeys(et)
		if len(inherited) > 0 {
			var err error
			if args, err = backfill(et, args, inherited, mode); err != nil {
				return nil, err
			}
		}
	}

	values, err := st.p.resolver.ResolveKeys(et, args.Named, args.Positional, st.keyConverter(mode))
	if err != nil {
		return nil, err
	}
	return &Segment{Kind: KindKey, Identifier: formatKeys(values), Type: prev.Type, Source: prev.Source,
		Target: TargetResource, Keys: values}, nil
}

// backfill completes args with the key values implied by referential
// constraints. A single positional value is assigned to the one key property
// left over.
func backfill(et *edm.StructuredType, args *SegmentArguments, inherited map[string]literal.Value, mode literal.Mode) (*SegmentArguments, error) {
	named := make(map[string]string, len(inherited)+args.Len())
	for name, v := range inherited {
		named[name] = literal.Format(v, mode)
	}
	for name, raw := range args.Named {
		named[name] = raw
	}
	if len(args.Positional) > 0 {
		var unassigned []string
		for _, k := range et.KeyProperties() {
			if _, ok := named[k.Name]; !ok {
				unassigned = append(unassigned, k.Name)
			}
		}
		if len(unassigned) != 1 || len(args.Positional) != 1 {
			return nil, types.NewBindingError(fmt.Sprintf(
				"type '%s' has %d key properties not implied by the parent key but %d positional values were given",
				et.FullName(), len(unassigned), len(args.Positional))).WithCause(types.ErrKeyMismatch)
		}
		named[unassigned[0]] = args.Positional[0]
	}
	return &SegmentArguments{Named: named}, nil
}

// inheritedKeys returns key values of et implied by the key of the parent
// entity through the referential constraints of the navigation property that
// leads to et, or of its partner.
func (st *state) inheritedKeys(et *edm.StructuredType) map[string]literal.Value {
	var nav *edm.NavigationProperty
	i := len(st.segments) - 1
	for ; i >= 0; i-- {
		s := st.segments[i]
		if s.Kind == KindType {
			continue
		}
		if s.Kind == KindNavigationProperty {
			nav = s.Navigation
		}
		break
	}
	if nav == nil {
		return nil
	}
	var parentKey *Segment
	for i--; i >= 0; i-- {
		s := st.segments[i]
		if s.Kind == KindType {
			continue
		}
		if s.Kind == KindKey {
			parentKey = s
		}
		break
	}
	if parentKey == nil {
		return nil
	}

	parent := make(map[string]literal.Value, len(parentKey.Keys))
	for _, kv := range parentKey.Keys {
		if v, ok := kv.Value.(literal.Value); ok {
			parent[kv.Name] = v
		}
	}
	isKey := make(map[string]bool)
	for _, k := range et.KeyProperties() {
		isKey[k.Name] = true
	}

	out := make(map[string]literal.Value)
	for _, c := range nav.Constraints {
		if v, ok := parent[c.Property]; ok && isKey[c.ReferencedProperty] {
			out[c.ReferencedProperty] = v
		}
	}
	if nav.Partner != nil {
		for _, c := range nav.Partner.Constraints {
			if v, ok := parent[c.ReferencedProperty]; ok && isKey[c.Property] {
				out[c.Property] = v
			}
		}
	}
	return out
}

func (st *state) substituteAliases(args *SegmentArguments) error {
	resolve := func(raw string) (string, error) {
		if len(raw) < 2 || raw[0] != '@' {
			return raw, nil
		}
		v, ok := st.p.aliases[raw]
		if !ok {
			return "", types.NewBindingError(fmt.Sprintf("parameter alias '%s' has no value", raw)).WithCause(types.ErrKeyMismatch)
		}
		return v, nil
	}
	for name, raw := range args.Named {
		v, err := resolve(raw)
		if err != nil {
			return err
		}
		args.Named[name] = v
	}
	for i, raw := range args.Positional {
		v, err := resolve(raw)
		if err != nil {
			return err
		}
		args.Positional[i] = v
	}
	return nil
}

func (st *state) keyConverter(mode literal.Mode) edm.KeyConverter {
	return func(raw string, prop *edm.Property) (any, error) {
		if expr.IsTemplate(raw) {
			if !st.p.settings.URITemplateParsing {
				return nil, types.NewBindingError(fmt.Sprintf("key template '%s' requires URI template parsing", raw)).
					WithCause(types.ErrInvalidLiteral)
			}
			return KeyTemplate(raw), nil
		}
		return literal.Convert(raw, prop.Type, mode, st.p.registries()...)
	}
}
