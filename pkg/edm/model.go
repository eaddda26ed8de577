package edm

import (
	"fmt"
	"sort"
	"strings"
)

// Parameter is an operation parameter. The first parameter of a bound
// operation is its binding parameter.
type Parameter struct {
	Name                   string
	Type                   TypeRef
	Optional               bool
	DerivedTypeConstraints []string
}

// Operation is a function or an action.
type Operation struct {
	Namespace     string
	Name          string
	IsAction      bool
	IsBound       bool
	Composable    bool
	URLEscape     bool // annotated as a URL escape function
	Parameters    []*Parameter
	ReturnType    *TypeRef
	EntitySetPath string
}

// FullName returns the namespace-qualified name.
func (o *Operation) FullName() string {
	if o.Namespace == "" {
		return o.Name
	}
	return o.Namespace + "." + o.Name
}

// BindingParameter returns the binding parameter of a bound operation.
func (o *Operation) BindingParameter() *Parameter {
	if !o.IsBound || len(o.Parameters) == 0 {
		return nil
	}
	return o.Parameters[0]
}

// NonBindingParameters returns the parameters a caller supplies in the URL.
func (o *Operation) NonBindingParameters() []*Parameter {
	if o.IsBound && len(o.Parameters) > 0 {
		return o.Parameters[1:]
	}
	return o.Parameters
}

// FindParameter looks up a non-binding parameter by name.
func (o *Operation) FindParameter(name string, caseInsensitive bool) *Parameter {
	for _, p := range o.NonBindingParameters() {
		if p.Name == name || (caseInsensitive && strings.EqualFold(p.Name, name)) {
			return p
		}
	}
	return nil
}

// ReturnsVoid reports whether the operation has no return type.
func (o *Operation) ReturnsVoid() bool {
	return o.ReturnType == nil || o.ReturnType.Type == nil
}

// OperationImport exposes an unbound operation in the entity container.
type OperationImport struct {
	Name      string
	Operation *Operation
	EntitySet string
}

// SourceKind classifies a NavigationSource.
type SourceKind int

const (
	SourceEntitySet SourceKind = iota
	SourceSingleton
	SourceContained
)

func (k SourceKind) String() string {
	switch k {
	case SourceEntitySet:
		return "EntitySet"
	case SourceSingleton:
		return "Singleton"
	case SourceContained:
		return "ContainedEntitySet"
	default:
		return "Unknown"
	}
}

// NavigationSource is an entity set, a singleton or a contained entity set.
type NavigationSource struct {
	Kind                   SourceKind
	Name                   string
	EntityType             *StructuredType
	Bindings               map[string]string // binding path -> target set/singleton name
	DerivedTypeConstraints []string
	Parent                 *NavigationSource // containing source for SourceContained

	container *Container
}

// IsCollection reports whether the source addresses more than one entity.
func (s *NavigationSource) IsCollection() bool {
	return s.Kind != SourceSingleton
}

// AddBinding records that navigating path from s lands in target.
func (s *NavigationSource) AddBinding(path, target string) {
	if s.Bindings == nil {
		s.Bindings = make(map[string]string)
	}
	s.Bindings[path] = target
}

// FindNavigationTarget returns the source reached by following nav from s.
// bindingPath is the type-cast qualified path ("NS.Derived/Nav"); an empty
// path uses the navigation name. A nil result means the target is unbound.
func (s *NavigationSource) FindNavigationTarget(nav *NavigationProperty, bindingPath string) *NavigationSource {
	if nav == nil {
		return nil
	}
	if nav.ContainsTarget {
		kind := SourceContained
		if !nav.Collection {
			kind = SourceSingleton
		}
		return &NavigationSource{Kind: kind, Name: nav.Name, EntityType: nav.Target, Parent: s,
			DerivedTypeConstraints: nav.DerivedTypeConstraints, container: s.container}
	}
	if bindingPath == "" {
		bindingPath = nav.Name
	}
	target, ok := s.Bindings[bindingPath]
	if !ok {
		target, ok = s.Bindings[nav.Name]
	}
	if !ok || s.container == nil {
		return nil
	}
	return s.container.FindSource(target)
}

// Container is the entity container of a model.
type Container struct {
	Name             string
	EntitySets       []*NavigationSource
	Singletons       []*NavigationSource
	OperationImports []*OperationImport
}

// FindSource looks up an entity set or singleton by exact name.
func (c *Container) FindSource(name string) *NavigationSource {
	for _, s := range c.EntitySets {
		if s.Name == name {
			return s
		}
	}
	for _, s := range c.Singletons {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Model is an in-memory EDM model.
type Model struct {
	Namespace  string
	Container  *Container
	Operations []*Operation

	types map[string]Type
	order []string
}

// NewModel creates an empty model with a default container.
func NewModel(namespace string) *Model {
	return &Model{
		Namespace: namespace,
		Container: &Container{Name: "Container"},
		types:     make(map[string]Type),
	}
}

// NewEntityType declares an entity type in the model namespace.
func (m *Model) NewEntityType(name string, base *StructuredType, key ...string) *StructuredType {
	t := &StructuredType{Namespace: m.Namespace, Name: name, IsEntity: true, BaseType: base, Key: key}
	m.AddType(t)
	return t
}

// NewComplexType declares a complex type in the model namespace.
func (m *Model) NewComplexType(name string, base *StructuredType) *StructuredType {
	t := &StructuredType{Namespace: m.Namespace, Name: name, BaseType: base}
	m.AddType(t)
	return t
}

// NewEnumType declares an enum type with members numbered from zero.
func (m *Model) NewEnumType(name string, members ...string) *EnumType {
	t := &EnumType{Namespace: m.Namespace, Name: name, Underlying: Int32}
	for i, name := range members {
		t.Members = append(t.Members, EnumMember{Name: name, Value: int64(i)})
	}
	m.AddType(t)
	return t
}

// AddType registers t under its full name.
func (m *Model) AddType(t Type) {
	name := t.FullName()
	if _, exists := m.types[name]; !exists {
		m.order = append(m.order, name)
	}
	m.types[name] = t
}

// FindType looks up a declared or primitive type by full name.
func (m *Model) FindType(name string) Type {
	if t, ok := m.types[name]; ok {
		return t
	}
	if k, ok := PrimitiveKindByName(name); ok {
		return Primitive(k)
	}
	if name == "Edm.Untyped" {
		return Untyped
	}
	return nil
}

// Types returns the declared types in declaration order.
func (m *Model) Types() []Type {
	out := make([]Type, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, m.types[n])
	}
	return out
}

// DerivedTypes returns every structured type deriving (directly or not) from base.
func (m *Model) DerivedTypes(base *StructuredType) []*StructuredType {
	var out []*StructuredType
	for _, t := range m.Types() {
		st, ok := t.(*StructuredType)
		if ok && st != base && st.IsOrDerivesFrom(base) {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Depth() < out[j].Depth() })
	return out
}

// AddOperation registers an operation.
func (m *Model) AddOperation(op *Operation) *Operation {
	if op.Namespace == "" {
		op.Namespace = m.Namespace
	}
	m.Operations = append(m.Operations, op)
	return op
}

// AddEntitySet adds an entity set to the container.
func (m *Model) AddEntitySet(name string, t *StructuredType) *NavigationSource {
	s := &NavigationSource{Kind: SourceEntitySet, Name: name, EntityType: t, container: m.Container}
	m.Container.EntitySets = append(m.Container.EntitySets, s)
	return s
}

// AddSingleton adds a singleton to the container.
func (m *Model) AddSingleton(name string, t *StructuredType) *NavigationSource {
	s := &NavigationSource{Kind: SourceSingleton, Name: name, EntityType: t, container: m.Container}
	m.Container.Singletons = append(m.Container.Singletons, s)
	return s
}

// AddOperationImport exposes op in the container.
func (m *Model) AddOperationImport(name string, op *Operation, entitySet string) (*OperationImport, error) {
	if op.IsBound {
		return nil, fmt.Errorf("operation import %s: operation %s is bound", name, op.FullName())
	}
	imp := &OperationImport{Name: name, Operation: op, EntitySet: entitySet}
	m.Container.OperationImports = append(m.Container.OperationImports, imp)
	return imp, nil
}

// ResolvePartners links navigation partners by name once all types exist.
func (m *Model) ResolvePartners() error {
	for _, t := range m.Types() {
		st, ok := t.(*StructuredType)
		if !ok {
			continue
		}
		for _, n := range st.NavigationProperties {
			if n.PartnerName == "" || n.Partner != nil {
				continue
			}
			p := n.Target.FindNavigation(n.PartnerName, false)
			if p == nil {
				return fmt.Errorf("navigation %s.%s: partner %q not found on %s",
					st.FullName(), n.Name, n.PartnerName, n.Target.FullName())
			}
			n.Partner = p
		}
	}
	return nil
}
