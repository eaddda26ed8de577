package edm

import (
	"fmt"
	"strings"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

// KeyValue is one resolved key property value.
type KeyValue struct {
	Name  string
	Value any
}

// KeyConverter turns raw key text into a typed value for prop.
type KeyConverter func(raw string, prop *Property) (any, error)

// Resolver looks up model elements by the names found in a URI.
type Resolver interface {
	Model() *Model
	ResolveNavigationSource(name string) *NavigationSource
	ResolveProperty(t *StructuredType, name string) *Property
	ResolveNavigationProperty(t *StructuredType, name string) *NavigationProperty
	ResolveType(name string) Type
	ResolveBoundOperations(name string, binding TypeRef) []*Operation
	ResolveUnboundOperations(name string) []*Operation
	ResolveOperationImports(name string) []*OperationImport
	ResolveKeys(t *StructuredType, named map[string]string, positional []string, convert KeyConverter) ([]KeyValue, error)
	CaseInsensitive() bool
}

// DefaultResolver resolves names against a Model.
type DefaultResolver struct {
	model *Model

	// EnableCaseInsensitive makes identifiers match ignoring case when no exact match exists.
	EnableCaseInsensitive bool

	// Unqualified lets operations be named without their namespace.
	Unqualified bool
}

// NewResolver creates a resolver over m.
func NewResolver(m *Model) *DefaultResolver {
	return &DefaultResolver{model: m}
}

var _ Resolver = (*DefaultResolver)(nil)

func (r *DefaultResolver) Model() *Model { return r.model }

func (r *DefaultResolver) CaseInsensitive() bool { return r.EnableCaseInsensitive }

func (r *DefaultResolver) match(candidate, name string) bool {
	return candidate == name || (r.EnableCaseInsensitive && strings.EqualFold(candidate, name))
}

// ResolveNavigationSource finds an entity set or singleton.
func (r *DefaultResolver) ResolveNavigationSource(name string) *NavigationSource {
	c := r.model.Container
	if s := c.FindSource(name); s != nil {
		return s
	}
	if !r.EnableCaseInsensitive {
		return nil
	}
	for _, s := range append(append([]*NavigationSource{}, c.EntitySets...), c.Singletons...) {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

func (r *DefaultResolver) ResolveProperty(t *StructuredType, name string) *Property {
	if t == nil {
		return nil
	}
	return t.FindProperty(name, r.EnableCaseInsensitive)
}

func (r *DefaultResolver) ResolveNavigationProperty(t *StructuredType, name string) *NavigationProperty {
	if t == nil {
		return nil
	}
	return t.FindNavigation(name, r.EnableCaseInsensitive)
}

// ResolveType finds a declared or primitive type by qualified name.
func (r *DefaultResolver) ResolveType(name string) Type {
	if t := r.model.FindType(name); t != nil {
		return t
	}
	if !r.EnableCaseInsensitive {
		return nil
	}
	for _, t := range r.model.Types() {
		if strings.EqualFold(t.FullName(), name) {
			return t
		}
	}
	return nil
}

func (r *DefaultResolver) operationNamed(op *Operation, name string) bool {
	if r.match(op.FullName(), name) {
		return true
	}
	return r.Unqualified && !strings.Contains(name, ".") && r.match(op.Name, name)
}

// ResolveBoundOperations returns operations named name whose binding
// parameter accepts binding.
func (r *DefaultResolver) ResolveBoundOperations(name string, binding TypeRef) []*Operation {
	var out []*Operation
	for _, op := range r.model.Operations {
		if !op.IsBound || !r.operationNamed(op, name) {
			continue
		}
		if BindingAccepts(op.BindingParameter().Type, binding) {
			out = append(out, op)
		}
	}
	return out
}

// ResolveUnboundOperations returns unbound operations named name.
func (r *DefaultResolver) ResolveUnboundOperations(name string) []*Operation {
	var out []*Operation
	for _, op := range r.model.Operations {
		if !op.IsBound && r.operationNamed(op, name) {
			out = append(out, op)
		}
	}
	return out
}

// ResolveOperationImports returns the container imports named name.
func (r *DefaultResolver) ResolveOperationImports(name string) []*OperationImport {
	var out []*OperationImport
	for _, imp := range r.model.Container.OperationImports {
		if r.match(imp.Name, name) {
			out = append(out, imp)
		}
	}
	return out
}

// ResolveKeys matches raw key values against the key properties of t. Exactly
// one of named and positional is expected to be populated.
func (r *DefaultResolver) ResolveKeys(t *StructuredType, named map[string]string, positional []string, convert KeyConverter) ([]KeyValue, error) {
	keys := t.KeyProperties()
	if len(keys) == 0 {
		return nil, types.NewBindingError(fmt.Sprintf("type '%s' declares no key", t.FullName())).WithCause(types.ErrKeyMismatch)
	}
	if len(positional) > 0 {
		if len(positional) != 1 || len(keys) != 1 {
			return nil, types.NewBindingError(fmt.Sprintf(
				"type '%s' has %d key properties but %d positional key values were given",
				t.FullName(), len(keys), len(positional))).WithCause(types.ErrKeyMismatch)
		}
		v, err := convert(positional[0], keys[0])
		if err != nil {
			return nil, err
		}
		return []KeyValue{{Name: keys[0].Name, Value: v}}, nil
	}
	if len(named) != len(keys) {
		return nil, types.NewBindingError(fmt.Sprintf(
			"type '%s' has %d key properties but %d key values were given",
			t.FullName(), len(keys), len(named))).WithCause(types.ErrKeyMismatch)
	}
	out := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		raw, ok := named[k.Name]
		if !ok && r.EnableCaseInsensitive {
			for n, v := range named {
				if strings.EqualFold(n, k.Name) {
					raw, ok = v, true
					break
				}
			}
		}
		if !ok {
			return nil, types.NewBindingError(fmt.Sprintf(
				"key property '%s' of type '%s' has no value", k.Name, t.FullName())).WithCause(types.ErrKeyMismatch)
		}
		v, err := convert(raw, k)
		if err != nil {
			return nil, err
		}
		out = append(out, KeyValue{Name: k.Name, Value: v})
	}
	return out, nil
}

// BindingAccepts reports whether a binding parameter of type param accepts
// an argument of type arg: cardinality must match and structured arguments
// may be of a derived type.
func BindingAccepts(param, arg TypeRef) bool {
	if param.Type == nil || arg.Type == nil || param.Collection != arg.Collection {
		return false
	}
	if pt, ok := param.Type.(*StructuredType); ok {
		at := arg.Structured()
		return at != nil && at.IsOrDerivesFrom(pt)
	}
	return param.Type.FullName() == arg.Type.FullName()
}
