package event

// RelayFilters restricts which events pass through a relay or replay. Each
// dimension is optional: a nil slice means no constraint on that dimension.
// Dimensions combine with AND; values within one dimension combine with OR.
// The same Matches is used for live dispatch and historical replay.
type RelayFilters struct {
	Types     []string
	Sources   []string
	Urgencies []Urgency
	IDs       []string
}

// NoFilters matches every event.
var NoFilters = RelayFilters{}

// Matches reports whether e passes every non-empty dimension of f.
func (f RelayFilters) Matches(e Event) bool {
	if !containsString(f.Types, e.Type) {
		return false
	}
	if !containsString(f.Sources, e.Source) {
		return false
	}
	if f.Urgencies != nil {
		found := false
		for _, u := range f.Urgencies {
			if u == e.Urgency {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return containsString(f.IDs, e.ID)
}

// containsString returns true when set is unconstrained (nil/empty) or
// contains v.
func containsString(set []string, v string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
