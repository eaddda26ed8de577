package edm_test

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm/edmtest"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
)

func rawConverter(raw string, _ *edm.Property) (any, error) { return raw, nil }

func TestStructuredTypeLookup(t *testing.T) {
	_, ty := edmtest.NewWithTypes()

	assert.NotNil(t, ty.Manager.FindProperty("Name", false), "inherited property")
	assert.Nil(t, ty.Manager.FindProperty("name", false))
	assert.NotNil(t, ty.Manager.FindProperty("name", true))
	assert.NotNil(t, ty.Manager.FindNavigation("Friends", false))

	keys := ty.Manager.KeyProperties()
	require.Len(t, keys, 1)
	assert.Equal(t, "Id", keys[0].Name)

	assert.True(t, ty.Manager.IsOrDerivesFrom(ty.Person))
	assert.False(t, ty.Person.IsOrDerivesFrom(ty.Manager))
	assert.True(t, ty.Person.IsRelatedTo(ty.Manager))
	assert.False(t, ty.Employee.IsRelatedTo(ty.VipPerson))
	assert.Equal(t, 2, ty.Manager.Depth())

	navs := ty.Manager.AllNavigations()
	require.NotEmpty(t, navs)
	assert.Equal(t, "Friends", navs[0].Name, "base type navigations come first")
	assert.Equal(t, "DirectReports", navs[len(navs)-1].Name)
}

func TestDerivedTypes(t *testing.T) {
	m, ty := edmtest.NewWithTypes()
	derived := m.DerivedTypes(ty.Person)
	var names []string
	for _, d := range derived {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Employee", "VipPerson", "Manager", "Intern"}, names)
}

func TestFindType(t *testing.T) {
	m := edmtest.New()
	tests := []struct {
		name string
		kind edm.TypeKind
	}{
		{"Demo.Person", edm.KindEntity},
		{"Demo.Address", edm.KindComplex},
		{"Demo.Color", edm.KindEnum},
		{"Edm.Int32", edm.KindPrimitive},
		{"Edm.GeographyPoint", edm.KindPrimitive},
		{"Edm.Untyped", edm.KindUntyped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ := m.FindType(tt.name)
			require.NotNil(t, typ)
			assert.Equal(t, tt.kind, typ.TypeKind())
		})
	}
	assert.Nil(t, m.FindType("Demo.Missing"))
}

func TestFindNavigationTarget(t *testing.T) {
	m, ty := edmtest.NewWithTypes()
	people := m.Container.FindSource("People")
	require.NotNil(t, people)

	target := people.FindNavigationTarget(ty.Person.FindNavigation("Orders", false), "")
	require.NotNil(t, target)
	assert.Equal(t, "Orders", target.Name)

	employees := m.Container.FindSource("Employees")
	reports := employees.FindNavigationTarget(ty.Manager.FindNavigation("DirectReports", false), "Demo.Manager/DirectReports")
	require.NotNil(t, reports)
	assert.Equal(t, "Employees", reports.Name)

	drives := m.Container.FindSource("Drives")
	root := drives.FindNavigationTarget(ty.Drive.FindNavigation("Root", false), "")
	require.NotNil(t, root)
	assert.Equal(t, edm.SourceSingleton, root.Kind)
	assert.Same(t, drives, root.Parent)

	assert.Nil(t, people.FindNavigationTarget(ty.Person.FindNavigation("Orders", false).Partner, ""))
}

func TestResolverCaseInsensitive(t *testing.T) {
	r := edm.NewResolver(edmtest.New())
	assert.Nil(t, r.ResolveNavigationSource("people"))
	r.EnableCaseInsensitive = true
	s := r.ResolveNavigationSource("people")
	require.NotNil(t, s)
	assert.Equal(t, "People", s.Name)
	assert.NotNil(t, r.ResolveType("demo.person"))
}

func TestResolveBoundOperations(t *testing.T) {
	m, ty := edmtest.NewWithTypes()
	r := edm.NewResolver(m)

	ops := r.ResolveBoundOperations("Demo.GetTopFriends", edm.SingleOf(ty.Manager))
	assert.Len(t, ops, 2, "both the Person and Employee overloads accept a Manager")

	ops = r.ResolveBoundOperations("Demo.GetTopFriends", edm.SingleOf(ty.VipPerson))
	assert.Len(t, ops, 1)

	assert.Empty(t, r.ResolveBoundOperations("Demo.GetTopFriends", edm.CollectionOf(ty.Person)))
	assert.Empty(t, r.ResolveBoundOperations("GetTopFriends", edm.SingleOf(ty.Person)))

	r.Unqualified = true
	assert.Len(t, r.ResolveBoundOperations("GetTopFriends", edm.SingleOf(ty.Person)), 1)
}

func TestResolveKeys(t *testing.T) {
	_, ty := edmtest.NewWithTypes()
	r := edm.NewResolver(edmtest.New())

	tests := []struct {
		name       string
		typ        *edm.StructuredType
		named      map[string]string
		positional []string
		want       []edm.KeyValue
		wantErr    bool
	}{
		{name: "positional single key", typ: ty.Person, positional: []string{"1"},
			want: []edm.KeyValue{{Name: "Id", Value: "1"}}},
		{name: "named single key", typ: ty.Person, named: map[string]string{"Id": "1"},
			want: []edm.KeyValue{{Name: "Id", Value: "1"}}},
		{name: "named composite key in key order", typ: ty.OrderLine,
			named: map[string]string{"LineNo": "2", "OrderId": "1"},
			want:  []edm.KeyValue{{Name: "OrderId", Value: "1"}, {Name: "LineNo", Value: "2"}}},
		{name: "positional composite key", typ: ty.OrderLine, positional: []string{"1"}, wantErr: true},
		{name: "too many positional values", typ: ty.Person, positional: []string{"1", "2"}, wantErr: true},
		{name: "missing named value", typ: ty.OrderLine, named: map[string]string{"OrderId": "1"}, wantErr: true},
		{name: "unknown named value", typ: ty.Person, named: map[string]string{"Name": "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveKeys(tt.typ, tt.named, tt.positional, rawConverter)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrKeyMismatch))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	src, err := os.ReadFile("testdata/shop.yaml")
	require.NoError(t, err)

	m, err := edm.LoadYAML(src)
	require.NoError(t, err)
	assert.Equal(t, "Shop", m.Namespace)
	assert.Equal(t, "ShopService", m.Container.Name)

	vip, ok := m.FindType("Shop.VipCustomer").(*edm.StructuredType)
	require.True(t, ok)
	assert.Equal(t, "Shop.Customer", vip.BaseType.FullName())
	assert.Len(t, vip.KeyProperties(), 1)

	customer := m.FindType("Shop.Customer").(*edm.StructuredType)
	tags := customer.FindProperty("Tags", false)
	require.NotNil(t, tags)
	assert.Equal(t, "Collection(Edm.String)", tags.Type.String())

	orders := customer.FindNavigation("Orders", false)
	require.NotNil(t, orders)
	require.NotNil(t, orders.Partner)
	assert.Equal(t, "Customer", orders.Partner.Name)
	assert.False(t, orders.Partner.Nullable)
	assert.Equal(t, []edm.ReferentialConstraint{{Property: "CustomerId", ReferencedProperty: "Id"}}, orders.Partner.Constraints)

	tier := m.FindType("Shop.Tier").(*edm.EnumType)
	gold, ok := tier.Member("Gold")
	require.True(t, ok)
	assert.Equal(t, int64(10), gold.Value)

	require.Len(t, m.Operations, 3)
	assert.True(t, m.Operations[2].IsAction)
	require.Len(t, m.Container.OperationImports, 1)
	assert.Equal(t, "Customers", m.Container.OperationImports[0].EntitySet)

	owner := m.Container.FindSource("Owner")
	require.NotNil(t, owner)
	assert.False(t, owner.IsCollection())
	assert.Equal(t, "Orders", m.Container.FindSource("Customers").Bindings["Orders"])
}

func TestLoadYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"invalid yaml", "namespace: [unclosed"},
		{"missing namespace", "entityTypes: []"},
		{"unknown base type", "namespace: X\nentityTypes:\n  - name: A\n    baseType: Missing\n"},
		{"missing key", "namespace: X\nentityTypes:\n  - name: A\n"},
		{"unknown property type", "namespace: X\nentityTypes:\n  - name: A\n    key: [Id]\n    properties:\n      - name: Id\n        type: Edm.Nope\n"},
		{"bound without parameters", "namespace: X\nfunctions:\n  - name: F\n    bound: true\n"},
		{"unknown set type", "namespace: X\ncontainer:\n  entitySets:\n    - name: S\n      entityType: Missing\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := edm.LoadYAML([]byte(tt.src))
			require.Error(t, err)
			var le *edm.LoadError
			assert.True(t, errors.As(err, &le))
		})
	}
}

func TestParseTypeName(t *testing.T) {
	name, coll := edm.ParseTypeName("Collection(Demo.Person)")
	assert.Equal(t, "Demo.Person", name)
	assert.True(t, coll)
	name, coll = edm.ParseTypeName("Edm.String")
	assert.Equal(t, "Edm.String", name)
	assert.False(t, coll)
}
