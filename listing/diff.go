package listing

// Changes partitions two listings of the same directory.
type Changes struct {
	// Added holds entries present only in the new listing.
	Added []Entry
	// Unchanged holds entries present in both.
	Unchanged []Entry
	// Removed holds entries present only in the old listing.
	Removed []Entry
}

// Diff compares an old and a new listing by full structural equality. A
// renamed or resized file shows up as one removal plus one addition.
func Diff(old, updated []Entry) Changes {
	inOld := make(map[Entry]struct{}, len(old))
	for _, e := range old {
		inOld[e] = struct{}{}
	}
	inNew := make(map[Entry]struct{}, len(updated))
	for _, e := range updated {
		inNew[e] = struct{}{}
	}

	var c Changes
	for _, e := range updated {
		if _, ok := inOld[e]; !ok {
			c.Added = append(c.Added, e)
		}
	}
	for _, e := range old {
		if _, ok := inNew[e]; ok {
			c.Unchanged = append(c.Unchanged, e)
		} else {
			c.Removed = append(c.Removed, e)
		}
	}
	return c
}
