// Package edmtest builds the Demo model shared by the parser tests.
package edmtest

import "github.com/lemonberrylabs/odata-uri-parser/pkg/edm"

// Types gives tests direct access to the declared types of the Demo model.
type Types struct {
	Person, Employee, Manager, Intern, VipPerson *edm.StructuredType
	Order, OrderLine, Event, Document          *edm.StructuredType
	Drive, Item                                *edm.StructuredType
	Address, HomeAddress                       *edm.StructuredType
	Color                                      *edm.EnumType
}

// New returns a fresh Demo model.
func New() *edm.Model {
	m, _ := NewWithTypes()
	return m
}

// NewWithTypes returns a fresh Demo model and its types.
func NewWithTypes() (*edm.Model, *Types) {
	m := edm.NewModel("Demo")
	t := &Types{}

	str := edm.PrimitiveRef(edm.String)
	i32 := edm.PrimitiveRef(edm.Int32)

	t.Color = m.NewEnumType("Color", "Red", "Green", "Blue")

	t.Address = m.NewComplexType("Address", nil)
	t.Address.AddProperty("Street", str)
	t.Address.AddProperty("City", str)
	t.Address.AddProperty("ZipCode", str)
	t.HomeAddress = m.NewComplexType("HomeAddress", t.Address)
	t.HomeAddress.AddProperty("Floor", i32)

	t.Person = m.NewEntityType("Person", nil, "Id")
	t.Person.AddProperty("Id", edm.TypeRef{Type: edm.Primitive(edm.Int32)})
	t.Person.AddProperty("Name", str)
	t.Person.AddProperty("Age", i32)
	t.Person.AddProperty("Address", edm.SingleOf(t.Address))
	t.Person.AddProperty("Addresses", edm.CollectionOf(t.Address))
	t.Person.AddProperty("Emails", edm.CollectionOf(edm.Primitive(edm.String)))
	t.Person.AddProperty("FavoriteColor", edm.SingleOf(t.Color))
	t.Person.AddProperty("Photo", edm.PrimitiveRef(edm.Stream))
	t.Person.AddNavigation("Friends", t.Person, true)
	t.Person.AddNavigation("BestFriend", t.Person, false)

	t.Employee = m.NewEntityType("Employee", t.Person)
	t.Employee.AddProperty("Salary", edm.PrimitiveRef(edm.Decimal))
	t.Manager = m.NewEntityType("Manager", t.Employee)
	t.Manager.AddNavigation("DirectReports", t.Employee, true)
	t.Employee.AddNavigation("Manager", t.Manager, false)
	t.Intern = m.NewEntityType("Intern", t.Employee)
	t.VipPerson = m.NewEntityType("VipPerson", t.Person)
	t.VipPerson.AddProperty("Level", i32)

	t.Order = m.NewEntityType("Order", nil, "Id")
	t.Order.AddProperty("Id", edm.TypeRef{Type: edm.Primitive(edm.Int32)})
	t.Order.AddProperty("Amount", edm.PrimitiveRef(edm.Decimal))
	t.Order.AddProperty("CustomerId", i32)
	t.Order.AddProperty("Created", edm.PrimitiveRef(edm.DateTimeOffset))
	t.OrderLine = m.NewEntityType("OrderLine", nil, "OrderId", "LineNo")
	t.OrderLine.AddProperty("OrderId", edm.TypeRef{Type: edm.Primitive(edm.Int32)})
	t.OrderLine.AddProperty("LineNo", edm.TypeRef{Type: edm.Primitive(edm.Int32)})
	t.OrderLine.AddProperty("Product", str)
	t.OrderLine.AddProperty("Quantity", i32)

	orders := t.Person.AddNavigation("Orders", t.Order, true)
	orders.PartnerName = "Customer"
	customer := t.Order.AddNavigation("Customer", t.Person, false)
	customer.PartnerName = "Orders"
	customer.Constraints = []edm.ReferentialConstraint{{Property: "CustomerId", ReferencedProperty: "Id"}}
	lines := t.Order.AddNavigation("Lines", t.OrderLine, true)
	lines.PartnerName = "Order"
	order := t.OrderLine.AddNavigation("Order", t.Order, false)
	order.PartnerName = "Lines"
	order.Constraints = []edm.ReferentialConstraint{{Property: "OrderId", ReferencedProperty: "Id"}}

	t.Event = m.NewEntityType("Event", nil, "Id")
	t.Event.Open = true
	t.Event.AddProperty("Id", edm.TypeRef{Type: edm.Primitive(edm.Guid)})
	t.Event.AddProperty("Title", str)

	t.Document = m.NewEntityType("Document", nil, "Id")
	t.Document.HasStream = true
	t.Document.AddProperty("Id", edm.TypeRef{Type: edm.Primitive(edm.Int64)})
	t.Document.AddProperty("Title", str)

	t.Drive = m.NewEntityType("Drive", nil, "Id")
	t.Drive.AddProperty("Id", edm.TypeRef{Type: edm.Primitive(edm.String)})
	t.Item = m.NewEntityType("Item", nil, "Id")
	t.Item.AddProperty("Id", edm.TypeRef{Type: edm.Primitive(edm.String)})
	t.Item.AddProperty("Name", str)
	root := t.Drive.AddNavigation("Root", t.Item, false)
	root.ContainsTarget = true
	children := t.Item.AddNavigation("Children", t.Item, true)
	children.ContainsTarget = true

	if err := m.ResolvePartners(); err != nil {
		panic(err)
	}

	person := edm.SingleOf(t.Person)
	people := edm.CollectionOf(t.Person)
	employee := edm.SingleOf(t.Employee)
	item := edm.SingleOf(t.Item)

	m.AddOperation(&edm.Operation{Name: "GetTopFriends", IsBound: true, Composable: true,
		Parameters: []*edm.Parameter{{Name: "person", Type: person}, {Name: "count", Type: i32}},
		ReturnType: &people})
	m.AddOperation(&edm.Operation{Name: "GetTopFriends", IsBound: true, Composable: true,
		Parameters: []*edm.Parameter{{Name: "employee", Type: employee}, {Name: "count", Type: i32}},
		ReturnType: &people})
	m.AddOperation(&edm.Operation{Name: "GetAge", IsBound: true,
		Parameters: []*edm.Parameter{{Name: "person", Type: person}},
		ReturnType: &i32})
	m.AddOperation(&edm.Operation{Name: "GetBestFriend", IsBound: true, Composable: true,
		Parameters: []*edm.Parameter{{Name: "person", Type: person}},
		ReturnType: &person})
	m.AddOperation(&edm.Operation{Name: "Promote", IsAction: true, IsBound: true,
		Parameters: []*edm.Parameter{{Name: "employee", Type: employee}}})
	m.AddOperation(&edm.Operation{Name: "ResetAll", IsAction: true, IsBound: true,
		Parameters: []*edm.Parameter{{Name: "people", Type: people}}})
	boolean := edm.PrimitiveRef(edm.Boolean)
	m.AddOperation(&edm.Operation{Name: "Touch", IsAction: true, IsBound: true,
		Parameters: []*edm.Parameter{{Name: "person", Type: person}}})
	m.AddOperation(&edm.Operation{Name: "Touch", IsBound: true,
		Parameters: []*edm.Parameter{{Name: "person", Type: person}}, ReturnType: &boolean})

	m.AddOperation(&edm.Operation{Name: "GetByPath", IsBound: true, Composable: true, URLEscape: true,
		Parameters: []*edm.Parameter{{Name: "item", Type: item}, {Name: "path", Type: str}},
		ReturnType: &item})
	stream := edm.PrimitiveRef(edm.Stream)
	m.AddOperation(&edm.Operation{Name: "GetContent", IsBound: true, URLEscape: true,
		Parameters: []*edm.Parameter{{Name: "item", Type: item}, {Name: "path", Type: str}},
		ReturnType: &stream})

	byAge := m.AddOperation(&edm.Operation{Name: "GetPeopleByAge", Composable: true,
		Parameters: []*edm.Parameter{{Name: "minAge", Type: i32}},
		ReturnType: &people})
	byAgeRange := m.AddOperation(&edm.Operation{Name: "GetPeopleByAge", Composable: true,
		Parameters: []*edm.Parameter{{Name: "minAge", Type: i32}, {Name: "maxAge", Type: i32, Optional: true}},
		ReturnType: &people})
	dto := edm.PrimitiveRef(edm.DateTimeOffset)
	serverTime := m.AddOperation(&edm.Operation{Name: "GetServerTime", ReturnType: &dto})
	reset := m.AddOperation(&edm.Operation{Name: "ResetData", IsAction: true})

	peopleSet := m.AddEntitySet("People", t.Person)
	peopleSet.AddBinding("Friends", "People")
	peopleSet.AddBinding("BestFriend", "People")
	peopleSet.AddBinding("Orders", "Orders")
	employees := m.AddEntitySet("Employees", t.Employee)
	employees.DerivedTypeConstraints = []string{"Demo.Manager"}
	employees.AddBinding("Manager", "Employees")
	employees.AddBinding("Demo.Manager/DirectReports", "Employees")
	employees.AddBinding("Friends", "People")
	employees.AddBinding("Orders", "Orders")
	ordersSet := m.AddEntitySet("Orders", t.Order)
	ordersSet.AddBinding("Customer", "People")
	ordersSet.AddBinding("Lines", "OrderLines")
	lineSet := m.AddEntitySet("OrderLines", t.OrderLine)
	lineSet.AddBinding("Order", "Orders")
	m.AddEntitySet("Events", t.Event)
	m.AddEntitySet("Documents", t.Document)
	m.AddEntitySet("Drives", t.Drive)
	me := m.AddSingleton("Me", t.Person)
	me.AddBinding("Friends", "People")
	me.AddBinding("BestFriend", "People")
	me.AddBinding("Orders", "Orders")

	for _, op := range []*edm.Operation{byAge, byAgeRange} {
		if _, err := m.AddOperationImport("PeopleByAge", op, "People"); err != nil {
			panic(err)
		}
	}
	if _, err := m.AddOperationImport("ServerTime", serverTime, ""); err != nil {
		panic(err)
	}
	if _, err := m.AddOperationImport("ResetData", reset, ""); err != nil {
		panic(err)
	}
	return m, t
}
