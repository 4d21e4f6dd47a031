package revision

// FindCommonAncestor returns the generation of the first entry in rev's
// history that also appears in candidates (the remote's possible_ancestors),
// or 0 if none match. Ties break in favor of more recent generations, which
// falls out naturally because History() walks from rev backwards.
func FindCommonAncestor(rev Revision, candidates []string) int {
	if len(candidates) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		set[c] = struct{}{}
	}
	for _, h := range rev.History() {
		if _, ok := set[h]; ok {
			gen, _ := splitRevID(h)
			return gen
		}
	}
	return 0
}
