package match

// Predicate compares two views. Implementations must be pure.
type Predicate func(a, b View) bool

// Predicates is an AND-list: it holds only if every member holds
type Predicates []Predicate

// Match evaluates every predicate against the pair. An empty list matches.
func (ps Predicates) Match(a, b View) bool {
	for _, p := range ps {
		if !p(a, b) {
			return false
		}
	}
	return true
}

// Or holds if any of the given predicates holds
func Or(preds ...Predicate) Predicate {
	return func(a, b View) bool {
		for _, p := range preds {
			if p(a, b) {
				return true
			}
		}
		return false
	}
}

// And holds if all of the given predicates hold
func And(preds ...Predicate) Predicate {
	return func(a, b View) bool {
		return Predicates(preds).Match(a, b)
	}
}

// MACsOverlap holds iff the MAC sets share at least one address
func MACsOverlap(a, b View) bool {
	return intersects(a.MACs, b.MACs)
}

// HostnameEquals holds iff both hostnames are present and equal
func HostnameEquals(a, b View) bool {
	return a.Hostname != "" && a.Hostname == b.Hostname
}

// DifferentSourceKind holds iff the records come from different source kinds
func DifferentSourceKind(a, b View) bool {
	return a.SourceKind != b.SourceKind
}

// SameSourceInstance holds iff both records come from the same source instance
func SameSourceInstance(a, b View) bool {
	return a.SourceInstanceID == b.SourceInstanceID
}

// MACDoesNotContradict holds unless both sides report MACs and none are shared
func MACDoesNotContradict(a, b View) bool {
	if len(a.MACs) == 0 || len(b.MACs) == 0 {
		return true
	}
	return intersects(a.MACs, b.MACs)
}

// HostnameDoesNotContradict holds unless both sides report different hostnames
func HostnameDoesNotContradict(a, b View) bool {
	if a.Hostname == "" || b.Hostname == "" {
		return true
	}
	return a.Hostname == b.Hostname
}

// IPDoesNotContradict holds unless both sides report IPs and none are shared
func IPDoesNotContradict(a, b View) bool {
	if len(a.IPs) == 0 || len(b.IPs) == 0 {
		return true
	}
	return intersects(a.IPs, b.IPs)
}

func intersects(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
