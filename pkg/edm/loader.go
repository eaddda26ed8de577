package edm

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MaxModelSize is the maximum accepted size of a YAML model document (1 MB).
const MaxModelSize = 1 << 20

// LoadError reports a problem in a model document.
type LoadError struct {
	Message  string
	Location string // e.g. "entity type 'Person'"
}

func (e *LoadError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("model error at %s: %s", e.Location, e.Message)
	}
	return fmt.Sprintf("model error: %s", e.Message)
}

type yamlDoc struct {
	Namespace    string           `yaml:"namespace"`
	EntityTypes  []yamlStructured `yaml:"entityTypes"`
	ComplexTypes []yamlStructured `yaml:"complexTypes"`
	EnumTypes    []yamlEnum       `yaml:"enumTypes"`
	Functions    []yamlOperation  `yaml:"functions"`
	Actions      []yamlOperation  `yaml:"actions"`
	Container    yamlContainer    `yaml:"container"`
}

type yamlStructured struct {
	Name                 string           `yaml:"name"`
	BaseType             string           `yaml:"baseType"`
	Abstract             bool             `yaml:"abstract"`
	Open                 bool             `yaml:"open"`
	HasStream            bool             `yaml:"hasStream"`
	Key                  []string         `yaml:"key"`
	Properties           []yamlProperty   `yaml:"properties"`
	NavigationProperties []yamlNavigation `yaml:"navigationProperties"`
}

type yamlProperty struct {
	Name                   string   `yaml:"name"`
	Type                   string   `yaml:"type"`
	Nullable               *bool    `yaml:"nullable"`
	DerivedTypeConstraints []string `yaml:"derivedTypeConstraints"`
}

type yamlNavigation struct {
	Name                   string           `yaml:"name"`
	Type                   string           `yaml:"type"`
	Partner                string           `yaml:"partner"`
	ContainsTarget         bool             `yaml:"containsTarget"`
	Nullable               *bool            `yaml:"nullable"`
	ReferentialConstraints []yamlConstraint `yaml:"referentialConstraints"`
	DerivedTypeConstraints []string         `yaml:"derivedTypeConstraints"`
}

type yamlConstraint struct {
	Property           string `yaml:"property"`
	ReferencedProperty string `yaml:"referencedProperty"`
}

type yamlEnum struct {
	Name    string `yaml:"name"`
	Flags   bool   `yaml:"flags"`
	Members []struct {
		Name  string `yaml:"name"`
		Value *int64 `yaml:"value"`
	} `yaml:"members"`
}

type yamlOperation struct {
	Name          string          `yaml:"name"`
	Bound         bool            `yaml:"bound"`
	Composable    bool            `yaml:"composable"`
	URLEscape     bool            `yaml:"urlEscape"`
	Parameters    []yamlParameter `yaml:"parameters"`
	ReturnType    string          `yaml:"returnType"`
	EntitySetPath string          `yaml:"entitySetPath"`
}

type yamlParameter struct {
	Name                   string   `yaml:"name"`
	Type                   string   `yaml:"type"`
	Optional               bool     `yaml:"optional"`
	DerivedTypeConstraints []string `yaml:"derivedTypeConstraints"`
}

type yamlContainer struct {
	Name            string         `yaml:"name"`
	EntitySets      []yamlSource   `yaml:"entitySets"`
	Singletons      []yamlSource   `yaml:"singletons"`
	FunctionImports []yamlOpImport `yaml:"functionImports"`
	ActionImports   []yamlOpImport `yaml:"actionImports"`
}

type yamlSource struct {
	Name               string `yaml:"name"`
	EntityType         string `yaml:"entityType"`
	Type               string `yaml:"type"`
	NavigationBindings []struct {
		Path   string `yaml:"path"`
		Target string `yaml:"target"`
	} `yaml:"navigationBindings"`
	DerivedTypeConstraints []string `yaml:"derivedTypeConstraints"`
}

type yamlOpImport struct {
	Name      string `yaml:"name"`
	Function  string `yaml:"function"`
	Action    string `yaml:"action"`
	EntitySet string `yaml:"entitySet"`
}

// LoadYAML builds a Model from a YAML model document.
func LoadYAML(source []byte) (*Model, error) {
	if len(source) > MaxModelSize {
		return nil, &LoadError{Message: fmt.Sprintf("model size %d exceeds maximum %d bytes", len(source), MaxModelSize)}
	}
	var doc yamlDoc
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if doc.Namespace == "" {
		return nil, &LoadError{Message: "namespace is required"}
	}

	m := NewModel(doc.Namespace)
	if doc.Container.Name != "" {
		m.Container.Name = doc.Container.Name
	}

	// Declare every named type before resolving references between them.
	structured := make(map[*StructuredType]yamlStructured)
	for _, y := range doc.EntityTypes {
		t := &StructuredType{Namespace: m.Namespace, Name: y.Name, IsEntity: true,
			Abstract: y.Abstract, Open: y.Open, HasStream: y.HasStream, Key: y.Key}
		m.AddType(t)
		structured[t] = y
	}
	for _, y := range doc.ComplexTypes {
		t := &StructuredType{Namespace: m.Namespace, Name: y.Name, Abstract: y.Abstract, Open: y.Open}
		m.AddType(t)
		structured[t] = y
	}
	for _, y := range doc.EnumTypes {
		t := &EnumType{Namespace: m.Namespace, Name: y.Name, Flags: y.Flags, Underlying: Int32}
		next := int64(0)
		for _, mem := range y.Members {
			if mem.Value != nil {
				next = *mem.Value
			}
			t.Members = append(t.Members, EnumMember{Name: mem.Name, Value: next})
			next++
		}
		m.AddType(t)
	}

	for _, t := range m.Types() {
		st, ok := t.(*StructuredType)
		if !ok {
			continue
		}
		if err := resolveStructured(m, st, structured[st]); err != nil {
			return nil, err
		}
	}
	if err := m.ResolvePartners(); err != nil {
		return nil, &LoadError{Message: err.Error()}
	}

	for _, y := range doc.Functions {
		if err := addOperation(m, y, false); err != nil {
			return nil, err
		}
	}
	for _, y := range doc.Actions {
		if err := addOperation(m, y, true); err != nil {
			return nil, err
		}
	}
	if err := loadContainer(m, doc.Container); err != nil {
		return nil, err
	}
	return m, nil
}

func resolveStructured(m *Model, st *StructuredType, y yamlStructured) error {
	loc := fmt.Sprintf("type '%s'", st.Name)
	if y.BaseType != "" {
		base, ok := m.FindType(qualify(m, y.BaseType)).(*StructuredType)
		if !ok {
			return &LoadError{Message: fmt.Sprintf("base type %q not found", y.BaseType), Location: loc}
		}
		st.BaseType = base
	}
	for _, yp := range y.Properties {
		ref, err := typeRef(m, yp.Type)
		if err != nil {
			return &LoadError{Message: err.Error(), Location: fmt.Sprintf("property '%s.%s'", st.Name, yp.Name)}
		}
		if yp.Nullable != nil {
			ref.Nullable = *yp.Nullable
		}
		p := st.AddProperty(yp.Name, ref)
		p.DerivedTypeConstraints = yp.DerivedTypeConstraints
	}
	for _, yn := range y.NavigationProperties {
		name, coll := ParseTypeName(yn.Type)
		target, ok := m.FindType(qualify(m, name)).(*StructuredType)
		if !ok || !target.IsEntity {
			return &LoadError{Message: fmt.Sprintf("navigation target %q is not an entity type", yn.Type),
				Location: fmt.Sprintf("navigation '%s.%s'", st.Name, yn.Name)}
		}
		n := st.AddNavigation(yn.Name, target, coll)
		n.PartnerName = yn.Partner
		n.ContainsTarget = yn.ContainsTarget
		n.Nullable = yn.Nullable == nil || *yn.Nullable
		n.DerivedTypeConstraints = yn.DerivedTypeConstraints
		for _, c := range yn.ReferentialConstraints {
			n.Constraints = append(n.Constraints, ReferentialConstraint{Property: c.Property, ReferencedProperty: c.ReferencedProperty})
		}
	}
	if st.IsEntity && st.BaseType == nil && len(st.Key) == 0 && !st.Abstract {
		return &LoadError{Message: "entity type without base type must declare a key", Location: loc}
	}
	return nil
}

func addOperation(m *Model, y yamlOperation, isAction bool) error {
	loc := fmt.Sprintf("operation '%s'", y.Name)
	op := &Operation{Name: y.Name, IsAction: isAction, IsBound: y.Bound, Composable: y.Composable,
		URLEscape: y.URLEscape, EntitySetPath: y.EntitySetPath}
	for _, yp := range y.Parameters {
		ref, err := typeRef(m, yp.Type)
		if err != nil {
			return &LoadError{Message: err.Error(), Location: loc}
		}
		op.Parameters = append(op.Parameters, &Parameter{Name: yp.Name, Type: ref, Optional: yp.Optional,
			DerivedTypeConstraints: yp.DerivedTypeConstraints})
	}
	if op.IsBound && len(op.Parameters) == 0 {
		return &LoadError{Message: "bound operation needs a binding parameter", Location: loc}
	}
	if y.ReturnType != "" {
		ref, err := typeRef(m, y.ReturnType)
		if err != nil {
			return &LoadError{Message: err.Error(), Location: loc}
		}
		op.ReturnType = &ref
	}
	m.AddOperation(op)
	return nil
}

func loadContainer(m *Model, y yamlContainer) error {
	addSource := func(ys yamlSource, singleton bool) error {
		name := ys.EntityType
		if name == "" {
			name = ys.Type
		}
		t, ok := m.FindType(qualify(m, name)).(*StructuredType)
		if !ok || !t.IsEntity {
			return &LoadError{Message: fmt.Sprintf("entity type %q not found", name), Location: fmt.Sprintf("source '%s'", ys.Name)}
		}
		var s *NavigationSource
		if singleton {
			s = m.AddSingleton(ys.Name, t)
		} else {
			s = m.AddEntitySet(ys.Name, t)
		}
		s.DerivedTypeConstraints = ys.DerivedTypeConstraints
		for _, b := range ys.NavigationBindings {
			s.AddBinding(b.Path, b.Target)
		}
		return nil
	}
	for _, ys := range y.EntitySets {
		if err := addSource(ys, false); err != nil {
			return err
		}
	}
	for _, ys := range y.Singletons {
		if err := addSource(ys, true); err != nil {
			return err
		}
	}
	addImport := func(yi yamlOpImport, opName string, isAction bool) error {
		for _, op := range m.Operations {
			if op.FullName() == qualify(m, opName) && op.IsAction == isAction && !op.IsBound {
				if _, err := m.AddOperationImport(yi.Name, op, yi.EntitySet); err != nil {
					return &LoadError{Message: err.Error()}
				}
			}
		}
		return nil
	}
	for _, yi := range y.FunctionImports {
		if err := addImport(yi, yi.Function, false); err != nil {
			return err
		}
	}
	for _, yi := range y.ActionImports {
		if err := addImport(yi, yi.Action, true); err != nil {
			return err
		}
	}
	return nil
}

func typeRef(m *Model, name string) (TypeRef, error) {
	elem, coll := ParseTypeName(name)
	t := m.FindType(qualify(m, elem))
	if t == nil {
		return TypeRef{}, fmt.Errorf("type %q not found", name)
	}
	return TypeRef{Type: t, Collection: coll, Nullable: true}, nil
}

// qualify prefixes unqualified names with the model namespace.
func qualify(m *Model, name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name
		}
	}
	return m.Namespace + "." + name
}
