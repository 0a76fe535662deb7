package witness

// Capture returns the witness set for a post created now in a scene whose
// current roster is roster.
//
// A hidden post gets an empty set whatever the roster holds. Otherwise the
// result is a copy of the roster, so later roster changes never reach it. The
// author's character is not added on its own account: if it is absent from the
// roster it is absent from the result.
func Capture(roster Set, hidden bool) Set {
	if hidden {
		return Set{}
	}
	return roster.Clone()
}
