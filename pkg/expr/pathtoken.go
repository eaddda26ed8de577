package expr

import "strings"

// PathSegmentToken is one segment of a $select or $expand path. Segments
// form a singly-linked chain through Next.
type PathSegmentToken interface {
	Identifier() string
	Next() PathSegmentToken
	setNext(PathSegmentToken)
	// IsNamespaceOrContainerQualified reports whether the identifier is a
	// qualified name (a type cast or an operation).
	IsNamespaceOrContainerQualified() bool
}

// NonSystemToken is a property, navigation, type or operation segment.
type NonSystemToken struct {
	Name        string
	NamedValues []NamedValue
	NextToken   PathSegmentToken
}

// SystemToken is a $-prefixed segment such as $ref, $count or $value.
type SystemToken struct {
	Name      string
	NextToken PathSegmentToken
}

func (t *NonSystemToken) Identifier() string                 { return t.Name }
func (t *NonSystemToken) Next() PathSegmentToken             { return t.NextToken }
func (t *NonSystemToken) setNext(n PathSegmentToken)         { t.NextToken = n }
func (t *SystemToken) Identifier() string                    { return t.Name }
func (t *SystemToken) Next() PathSegmentToken                { return t.NextToken }
func (t *SystemToken) setNext(n PathSegmentToken)            { t.NextToken = n }
func (t *SystemToken) IsNamespaceOrContainerQualified() bool { return false }

func (t *NonSystemToken) IsNamespaceOrContainerQualified() bool {
	return strings.Contains(t.Name, ".")
}

// Reverse returns a new chain with the segments of head in reverse order.
// head is not modified.
func Reverse(head PathSegmentToken) PathSegmentToken {
	var out PathSegmentToken
	for cur := head; cur != nil; cur = cur.Next() {
		var n PathSegmentToken
		switch t := cur.(type) {
		case *NonSystemToken:
			n = &NonSystemToken{Name: t.Name, NamedValues: t.NamedValues}
		case *SystemToken:
			n = &SystemToken{Name: t.Name}
		}
		n.setNext(out)
		out = n
	}
	return out
}

// Identifiers returns the identifiers of the chain in order.
func Identifiers(head PathSegmentToken) []string {
	var ids []string
	for cur := head; cur != nil; cur = cur.Next() {
		ids = append(ids, cur.Identifier())
	}
	return ids
}

// Last returns the final segment of the chain.
func Last(head PathSegmentToken) PathSegmentToken {
	if head == nil {
		return nil
	}
	cur := head
	for cur.Next() != nil {
		cur = cur.Next()
	}
	return cur
}

// PathString renders the chain as "a/b/c".
func PathString(head PathSegmentToken) string {
	return strings.Join(Identifiers(head), "/")
}
