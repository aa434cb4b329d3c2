package permission

// HasPermission reports whether the user holds the requested permission on
// the resource. The resource's ACL is scanned in order and the first entry
// whose permission set contains the request and whose principal is held by
// the user decides the outcome. No entry matching means denial.
//
// The check is a pure function of its inputs: principals and ACL are
// re-normalized on every call and nothing is cached or mutated.
func HasPermission(user any, requested string, resource any) bool {
	principals := NormalizePrincipals(user)
	for _, entry := range NormalizeACL(resource) {
		if entry.Permissions.Contains(requested) && principals.Has(entry.Principal) {
			return entry.Action == Allow
		}
	}
	return false
}

// ListPermissions evaluates every permission name mentioned in the
// resource's ACL for the given user. The result maps each distinct name to
// the outcome HasPermission would independently return; names absent from
// every entry are absent from the map. An AllPermissions entry contributes
// its literal name rather than expanding to every permission in use.
func ListPermissions(user any, resource any) map[string]bool {
	acl := NormalizeACL(resource)

	available := make(map[string]struct{})
	for _, entry := range acl {
		for _, name := range entry.Permissions.Names() {
			available[name] = struct{}{}
		}
	}

	result := make(map[string]bool, len(available))
	for name := range available {
		result[name] = HasPermission(user, name, acl)
	}
	return result
}
