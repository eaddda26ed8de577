// Package uripath resolves the segments of a resource path against a
// metadata model, producing a validated Path of typed segments.
package uripath

import (
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/expr"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/literal"
)

// Kind identifies the kind of a path segment.
type Kind int

const (
	KindEntitySet Kind = iota
	KindSingleton
	KindKey
	KindNavigationProperty
	KindNavigationPropertyLink // Nav/$ref
	KindReference              // $ref on an entity or collection not reached by navigation
	KindProperty
	KindType
	KindOperation
	KindOperationImport
	KindCount
	KindFilter
	KindEach
	KindValue
	KindDynamicPath
	KindPathTemplate
	KindBatchReference
	KindMetadata
	KindBatch
)

var kindNames = [...]string{
	KindEntitySet:              "EntitySet",
	KindSingleton:              "Singleton",
	KindKey:                    "Key",
	KindNavigationProperty:     "NavigationProperty",
	KindNavigationPropertyLink: "NavigationPropertyLink",
	KindReference:              "Reference",
	KindProperty:               "Property",
	KindType:                   "Type",
	KindOperation:              "Operation",
	KindOperationImport:        "OperationImport",
	KindCount:                  "Count",
	KindFilter:                 "Filter",
	KindEach:                   "Each",
	KindValue:                  "Value",
	KindDynamicPath:            "DynamicPath",
	KindPathTemplate:           "PathTemplate",
	KindBatchReference:         "BatchReference",
	KindMetadata:               "Metadata",
	KindBatch:                  "Batch",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// TargetKind classifies what a segment addresses. It decides which segments
// may follow.
type TargetKind int

const (
	TargetNothing TargetKind = iota
	TargetResource
	TargetComplexObject
	TargetPrimitive
	TargetPrimitiveValue
	TargetEnum
	TargetMediaResource
	TargetOpenProperty
	TargetOpenPropertyValue
	TargetVoidOperation
	TargetMetadata
	TargetBatch
)

var targetNames = [...]string{
	TargetNothing:           "Nothing",
	TargetResource:          "Resource",
	TargetComplexObject:     "ComplexObject",
	TargetPrimitive:         "Primitive",
	TargetPrimitiveValue:    "PrimitiveValue",
	TargetEnum:              "Enum",
	TargetMediaResource:     "MediaResource",
	TargetOpenProperty:      "OpenProperty",
	TargetOpenPropertyValue: "OpenPropertyValue",
	TargetVoidOperation:     "VoidOperation",
	TargetMetadata:          "Metadata",
	TargetBatch:             "Batch",
}

func (k TargetKind) String() string {
	if int(k) < len(targetNames) {
		return targetNames[k]
	}
	return "Unknown"
}

// KeyTemplate is the value of a key given as a URI template, e.g. {id}.
type KeyTemplate string

// Segment is one resolved path segment.
type Segment struct {
	Kind       Kind
	Identifier string
	Type       edm.Type // element type for collections
	Collection bool
	Source     *edm.NavigationSource
	Target     TargetKind

	Property   *edm.Property
	Navigation *edm.NavigationProperty
	Operation  *edm.Operation
	Import     *edm.OperationImport
	Parameters []*expr.FunctionParameterToken
	Keys       []edm.KeyValue
	Filter     expr.QueryToken
}

// TypeRef returns the segment type with its cardinality.
func (s *Segment) TypeRef() edm.TypeRef {
	return edm.TypeRef{Type: s.Type, Collection: s.Collection}
}

// Structured returns the structured element type, or nil.
func (s *Segment) Structured() *edm.StructuredType {
	st, _ := s.Type.(*edm.StructuredType)
	return st
}

// IsEntityCollection reports whether the segment addresses a collection of
// entities that a key may follow.
func (s *Segment) IsEntityCollection() bool {
	st := s.Structured()
	return s.Collection && st != nil && st.IsEntity
}

// IsLeaf reports whether no segment may follow s.
func (s *Segment) IsLeaf() bool {
	switch s.Kind {
	case KindMetadata, KindBatch, KindValue, KindCount, KindNavigationPropertyLink, KindReference:
		return true
	case KindOperation, KindOperationImport:
		return s.Operation.IsAction || !s.Operation.Composable || s.Operation.ReturnsVoid()
	}
	return s.Target == TargetVoidOperation
}

// String renders the segment as it would appear in a canonical URL.
func (s *Segment) String() string {
	switch s.Kind {
	case KindKey:
		return formatKeys(s.Keys)
	case KindOperation, KindOperationImport:
		var b strings.Builder
		b.WriteString(s.Identifier)
		b.WriteByte('(')
		for i, p := range s.Parameters {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(expr.Describe(p))
		}
		b.WriteByte(')')
		return b.String()
	case KindFilter:
		return "$filter(" + expr.Describe(s.Filter) + ")"
	case KindNavigationPropertyLink:
		return s.Identifier + "/$ref"
	}
	return s.Identifier
}

func formatKeys(keys []edm.KeyValue) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		var text string
		switch v := k.Value.(type) {
		case literal.Value:
			text = literal.Format(v, literal.ModeDefault)
		case KeyTemplate:
			text = string(v)
		default:
			text = "?"
		}
		if len(keys) == 1 {
			parts[i] = text
		} else {
			parts[i] = k.Name + "=" + text
		}
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Path is a resolved resource path.
type Path struct {
	Segments []*Segment
}

// Last returns the final segment, or nil for an empty path.
func (p *Path) Last() *Segment {
	if len(p.Segments) == 0 {
		return nil
	}
	return p.Segments[len(p.Segments)-1]
}

// Kinds lists the kind of every segment.
func (p *Path) Kinds() []Kind {
	out := make([]Kind, len(p.Segments))
	for i, s := range p.Segments {
		out[i] = s.Kind
	}
	return out
}

// NavigationSource returns the source addressed by the path, if any.
func (p *Path) NavigationSource() *edm.NavigationSource {
	for i := len(p.Segments) - 1; i >= 0; i-- {
		if s := p.Segments[i].Source; s != nil {
			return s
		}
	}
	return nil
}

// String renders the path with key segments attached to the preceding
// segment, e.g. "People(1)/Friends/$count".
func (p *Path) String() string {
	var b strings.Builder
	for i, s := range p.Segments {
		if i > 0 && s.Kind != KindKey {
			b.WriteByte('/')
		}
		b.WriteString(s.String())
	}
	return b.String()
}
