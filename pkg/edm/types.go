// Package edm implements the metadata model the URI parsers resolve against:
// primitive, structured and enum types, navigation sources, operations and
// the resolver that looks them up by name.
package edm

import (
	"strings"
)

// TypeKind classifies a Type.
type TypeKind int

const (
	KindPrimitive TypeKind = iota
	KindEntity
	KindComplex
	KindEnum
	KindUntyped
)

// Type is implemented by every EDM type.
type Type interface {
	TypeKind() TypeKind
	FullName() string
}

// PrimitiveKind enumerates the EDM primitive types.
type PrimitiveKind int

const (
	PrimitiveNone PrimitiveKind = iota
	Binary
	Boolean
	Byte
	Date
	DateTimeOffset
	Decimal
	Double
	Duration
	Guid
	Int16
	Int32
	Int64
	SByte
	Single
	Stream
	String
	TimeOfDay
	Geography
	Geometry
)

var primitiveNames = map[PrimitiveKind]string{
	Binary:         "Edm.Binary",
	Boolean:        "Edm.Boolean",
	Byte:           "Edm.Byte",
	Date:           "Edm.Date",
	DateTimeOffset: "Edm.DateTimeOffset",
	Decimal:        "Edm.Decimal",
	Double:         "Edm.Double",
	Duration:       "Edm.Duration",
	Guid:           "Edm.Guid",
	Int16:          "Edm.Int16",
	Int32:          "Edm.Int32",
	Int64:          "Edm.Int64",
	SByte:          "Edm.SByte",
	Single:         "Edm.Single",
	Stream:         "Edm.Stream",
	String:         "Edm.String",
	TimeOfDay:      "Edm.TimeOfDay",
	Geography:      "Edm.Geography",
	Geometry:       "Edm.Geometry",
}

// String returns the qualified EDM name, e.g. "Edm.Int32".
func (k PrimitiveKind) String() string {
	if n, ok := primitiveNames[k]; ok {
		return n
	}
	return "Edm.Untyped"
}

// IsIntegral reports whether k is one of the integer kinds.
func (k PrimitiveKind) IsIntegral() bool {
	switch k {
	case Byte, SByte, Int16, Int32, Int64:
		return true
	}
	return false
}

// IsNumeric reports whether k is an integer or floating/decimal kind.
func (k PrimitiveKind) IsNumeric() bool {
	return k.IsIntegral() || k == Single || k == Double || k == Decimal
}

// PrimitiveKindByName maps "Edm.X" to its kind. Spatial sub-types such as
// Edm.GeographyPoint map to their family.
func PrimitiveKindByName(name string) (PrimitiveKind, bool) {
	for k, n := range primitiveNames {
		if n == name {
			return k, true
		}
	}
	switch {
	case strings.HasPrefix(name, "Edm.Geography"):
		return Geography, true
	case strings.HasPrefix(name, "Edm.Geometry"):
		return Geometry, true
	}
	return PrimitiveNone, false
}

// PrimitiveType is a Type wrapping a PrimitiveKind.
type PrimitiveType struct {
	Kind PrimitiveKind
}

var primitiveTypes = func() map[PrimitiveKind]*PrimitiveType {
	m := make(map[PrimitiveKind]*PrimitiveType, len(primitiveNames))
	for k := range primitiveNames {
		m[k] = &PrimitiveType{Kind: k}
	}
	return m
}()

// Primitive returns the shared PrimitiveType for k.
func Primitive(k PrimitiveKind) *PrimitiveType {
	if t, ok := primitiveTypes[k]; ok {
		return t
	}
	return &PrimitiveType{Kind: k}
}

func (t *PrimitiveType) TypeKind() TypeKind { return KindPrimitive }
func (t *PrimitiveType) FullName() string   { return t.Kind.String() }

// UntypedType stands for values whose type is not declared (open properties).
type UntypedType struct{}

// Untyped is the shared UntypedType.
var Untyped = &UntypedType{}

func (t *UntypedType) TypeKind() TypeKind { return KindUntyped }
func (t *UntypedType) FullName() string   { return "Edm.Untyped" }

// StructuredType is an entity or complex type.
type StructuredType struct {
	Namespace            string
	Name                 string
	IsEntity             bool
	BaseType             *StructuredType
	Abstract             bool
	Open                 bool
	HasStream            bool
	Key                  []string
	Properties           []*Property
	NavigationProperties []*NavigationProperty
}

func (t *StructuredType) TypeKind() TypeKind {
	if t.IsEntity {
		return KindEntity
	}
	return KindComplex
}

func (t *StructuredType) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// AddProperty declares a structural property on t.
func (t *StructuredType) AddProperty(name string, typ TypeRef) *Property {
	p := &Property{Name: name, Type: typ, DeclaringType: t}
	t.Properties = append(t.Properties, p)
	return p
}

// AddNavigation declares a navigation property on t.
func (t *StructuredType) AddNavigation(name string, target *StructuredType, collection bool) *NavigationProperty {
	n := &NavigationProperty{Name: name, Target: target, Collection: collection, DeclaringType: t}
	t.NavigationProperties = append(t.NavigationProperties, n)
	return n
}

// KeyProperties returns the key properties, inherited from the first base type
// that declares a key.
func (t *StructuredType) KeyProperties() []*Property {
	for cur := t; cur != nil; cur = cur.BaseType {
		if len(cur.Key) == 0 {
			continue
		}
		props := make([]*Property, 0, len(cur.Key))
		for _, name := range cur.Key {
			if p := t.FindProperty(name, false); p != nil {
				props = append(props, p)
			}
		}
		return props
	}
	return nil
}

// FindProperty looks up a structural property declared on t or a base type.
func (t *StructuredType) FindProperty(name string, caseInsensitive bool) *Property {
	var folded *Property
	for cur := t; cur != nil; cur = cur.BaseType {
		for _, p := range cur.Properties {
			if p.Name == name {
				return p
			}
			if caseInsensitive && folded == nil && strings.EqualFold(p.Name, name) {
				folded = p
			}
		}
	}
	return folded
}

// FindNavigation looks up a navigation property declared on t or a base type.
func (t *StructuredType) FindNavigation(name string, caseInsensitive bool) *NavigationProperty {
	var folded *NavigationProperty
	for cur := t; cur != nil; cur = cur.BaseType {
		for _, n := range cur.NavigationProperties {
			if n.Name == name {
				return n
			}
			if caseInsensitive && folded == nil && strings.EqualFold(n.Name, name) {
				folded = n
			}
		}
	}
	return folded
}

// AllNavigations returns the navigation properties of t, base types first.
func (t *StructuredType) AllNavigations() []*NavigationProperty {
	var chain []*StructuredType
	for cur := t; cur != nil; cur = cur.BaseType {
		chain = append(chain, cur)
	}
	var out []*NavigationProperty
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].NavigationProperties...)
	}
	return out
}

// IsOrDerivesFrom reports whether t equals base or has it in its base chain.
func (t *StructuredType) IsOrDerivesFrom(base *StructuredType) bool {
	for cur := t; cur != nil; cur = cur.BaseType {
		if cur == base {
			return true
		}
	}
	return false
}

// IsRelatedTo reports whether one of t and other derives from the other.
func (t *StructuredType) IsRelatedTo(other *StructuredType) bool {
	return t.IsOrDerivesFrom(other) || other.IsOrDerivesFrom(t)
}

// Depth returns the number of base types above t.
func (t *StructuredType) Depth() int {
	d := 0
	for cur := t.BaseType; cur != nil; cur = cur.BaseType {
		d++
	}
	return d
}

// Property is a structural property.
type Property struct {
	Name                   string
	Type                   TypeRef
	DeclaringType          *StructuredType
	DerivedTypeConstraints []string
}

// ReferentialConstraint maps a property of the declaring type to a property of
// the navigation target.
type ReferentialConstraint struct {
	Property           string
	ReferencedProperty string
}

// NavigationProperty is a relationship to another entity type.
type NavigationProperty struct {
	Name                   string
	Target                 *StructuredType
	Collection             bool
	Nullable               bool
	ContainsTarget         bool
	PartnerName            string
	Partner                *NavigationProperty
	Constraints            []ReferentialConstraint
	DeclaringType          *StructuredType
	DerivedTypeConstraints []string
}

// Type returns the reference to the navigation target type.
func (n *NavigationProperty) Type() TypeRef {
	return TypeRef{Type: n.Target, Collection: n.Collection, Nullable: n.Nullable}
}

// EnumMember is a named enum value.
type EnumMember struct {
	Name  string
	Value int64
}

// EnumType is an enumeration type.
type EnumType struct {
	Namespace  string
	Name       string
	Flags      bool
	Underlying PrimitiveKind
	Members    []EnumMember
}

func (t *EnumType) TypeKind() TypeKind { return KindEnum }

func (t *EnumType) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// Member finds a member by name or by its numeric value text.
func (t *EnumType) Member(name string) (EnumMember, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return EnumMember{}, false
}

// TypeRef references a type together with cardinality and nullability.
type TypeRef struct {
	Type       Type
	Collection bool
	Nullable   bool
}

// PrimitiveRef returns a single-valued reference to a primitive kind.
func PrimitiveRef(k PrimitiveKind) TypeRef {
	return TypeRef{Type: Primitive(k), Nullable: true}
}

// CollectionOf returns a collection reference to t.
func CollectionOf(t Type) TypeRef {
	return TypeRef{Type: t, Collection: true}
}

// SingleOf returns a single-valued reference to t.
func SingleOf(t Type) TypeRef {
	return TypeRef{Type: t, Nullable: true}
}

// IsNil reports whether the reference carries no type.
func (r TypeRef) IsNil() bool {
	return r.Type == nil
}

// Structured returns the structured element type, or nil.
func (r TypeRef) Structured() *StructuredType {
	st, _ := r.Type.(*StructuredType)
	return st
}

// Primitive returns the primitive element kind.
func (r TypeRef) Primitive() (PrimitiveKind, bool) {
	if pt, ok := r.Type.(*PrimitiveType); ok {
		return pt.Kind, true
	}
	return PrimitiveNone, false
}

// Enum returns the enum element type, or nil.
func (r TypeRef) Enum() *EnumType {
	et, _ := r.Type.(*EnumType)
	return et
}

// IsEntity reports whether the element type is an entity type.
func (r TypeRef) IsEntity() bool {
	return r.Type != nil && r.Type.TypeKind() == KindEntity
}

// String renders the reference as "Collection(NS.T)" or "NS.T".
func (r TypeRef) String() string {
	if r.Type == nil {
		return "<none>"
	}
	if r.Collection {
		return "Collection(" + r.Type.FullName() + ")"
	}
	return r.Type.FullName()
}

// ParseTypeName splits "Collection(X)" into X and true.
func ParseTypeName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "Collection(") && strings.HasSuffix(name, ")") {
		return strings.TrimSpace(name[len("Collection(") : len(name)-1]), true
	}
	return name, false
}
