// Package permission implements row-level (object-level) access control:
// given a user and a single resource instance, it decides whether the user
// holds a named permission on that instance. Decisions are made against an
// ordered access control list attached to the resource, evaluated with
// first-match-wins semantics. The package holds no state and performs no
// I/O; ACLs and principal lists come from the caller's domain objects.
package permission

// Action is the outcome an ACL entry produces when it matches.
type Action string

const (
	// Allow grants the requested permission.
	Allow Action = "Allow"
	// Deny refuses the requested permission.
	Deny Action = "Deny"
)

// Entry is a single access control rule: if the user holds Principal and
// Permissions contains the requested permission, the entry's Action decides
// the check.
type Entry struct {
	Action      Action
	Principal   Principal
	Permissions PermissionSet
}

// ACL is an ordered list of entries. Order is significant: the first entry
// whose principal and permission both match wins, so it must never be
// sorted, deduplicated or reordered.
type ACL []Entry

// Shorthand entries for the common "blanket" rules.
var (
	// DenyAll matches every permission for every user.
	DenyAll = Entry{Action: Deny, Principal: Everyone, Permissions: AllPermissions}
	// AllowAll grants every permission to every user.
	AllowAll = Entry{Action: Allow, Principal: Everyone, Permissions: AllPermissions}
)

// AllPermissionsName is the literal name the universal permission set
// reports when enumerated.
const AllPermissionsName = "permissions:*"

// PermissionSet is the set of permission names an ACL entry covers. It is
// either an explicit set of names or the universal set, which contains
// every name.
type PermissionSet struct {
	all   bool
	names map[string]struct{}
}

// AllPermissions is the universal permission set: Contains reports true for
// any name. When enumerated it contributes the single literal name
// "permissions:*" rather than expanding to every known permission.
var AllPermissions = PermissionSet{all: true}

// NewPermissionSet builds an explicit permission set from one or more
// names. Duplicates collapse.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return PermissionSet{names: set}
}

// Contains reports whether the set covers the given permission name.
func (s PermissionSet) Contains(name string) bool {
	if s.all {
		return true
	}
	_, ok := s.names[name]
	return ok
}

// Names returns the individual permission names in the set. The universal
// set yields its literal representation instead of every possible name.
func (s PermissionSet) Names() []string {
	if s.all {
		return []string{AllPermissionsName}
	}
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	return names
}

// IsAll reports whether the set is the universal set.
func (s PermissionSet) IsAll() bool {
	return s.all
}

func (s PermissionSet) String() string {
	if s.all {
		return AllPermissionsName
	}
	names := s.Names()
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	out := names[0]
	for _, name := range names[1:] {
		out += "," + name
	}
	return out
}

// Grant is the artifact produced by a successful permission check at the
// service boundary: the evaluated user paired with the evaluated resource.
// It is a transient result value, not persisted anywhere.
type Grant struct {
	User     any
	Resource any
}
