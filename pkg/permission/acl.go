package permission

// HasACL is implemented by resources that expose an access control list.
type HasACL interface {
	ACL() ACL
}

// ACLFunc adapts a zero-argument producer into HasACL, for ACLs that are
// assembled lazily at check time. It is invoked on every normalization.
type ACLFunc func() ACL

// ACL calls the wrapped producer.
func (f ACLFunc) ACL() ACL { return f() }

// NormalizeACL extracts the access control list from a resource. Three
// resource shapes are supported, checked in order: the HasACL capability
// (ACLFunc covers the lazy case), a raw ACL or entry slice passed directly
// where a resource is expected, and anything else, which degrades to an
// empty ACL that denies everything. Entry order is preserved end to end.
func NormalizeACL(resource any) ACL {
	switch r := resource.(type) {
	case HasACL:
		return r.ACL()
	case ACL:
		return r
	case []Entry:
		return ACL(r)
	}
	return nil
}
