package permission

// Principal is an opaque identity tag a user can hold: a role, a group, or
// one of the two system-wide tags below. Only equality matters.
type Principal string

const (
	// Everyone is held by every actor, authenticated or not.
	Everyone Principal = "system:everyone"
	// Authenticated is held only by actors recognized as logged in.
	Authenticated Principal = "system:authenticated"
)

// HasPrincipals is implemented by user values that expose their identity
// tags. Users that do not implement it are treated as anonymous.
type HasPrincipals interface {
	Principals() []Principal
}

// PrincipalsFunc adapts a zero-argument producer into HasPrincipals,
// for principals that are computed lazily at check time (for example
// session-derived ones). It is invoked on every normalization.
type PrincipalsFunc func() []Principal

// Principals calls the wrapped producer.
func (f PrincipalsFunc) Principals() []Principal { return f() }

// StaticPrincipals adapts a fixed principal list into HasPrincipals.
type StaticPrincipals []Principal

// Principals returns the fixed list.
func (p StaticPrincipals) Principals() []Principal { return p }

// PrincipalSet is a deduplicated set of principals.
type PrincipalSet map[Principal]struct{}

// Has reports whether the set contains p.
func (s PrincipalSet) Has(p Principal) bool {
	_, ok := s[p]
	return ok
}

// NormalizePrincipals derives the complete set of identity tags for a user.
// Anonymous actors (nil users, users without the HasPrincipals capability,
// or users whose principal collection is empty) hold exactly {Everyone}.
// Everyone else holds Everyone, Authenticated and their own principals.
// Missing capabilities are never an error.
func NormalizePrincipals(user any) PrincipalSet {
	hp, ok := user.(HasPrincipals)
	if !ok {
		return PrincipalSet{Everyone: {}}
	}
	principals := hp.Principals()
	if len(principals) == 0 {
		return PrincipalSet{Everyone: {}}
	}
	set := make(PrincipalSet, len(principals)+2)
	set[Everyone] = struct{}{}
	set[Authenticated] = struct{}{}
	for _, p := range principals {
		set[p] = struct{}{}
	}
	return set
}
