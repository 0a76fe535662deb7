package witness

// UnhideRequest carries everything needed to decide an unhide.
type UnhideRequest struct {
	Actor  Viewer
	Post   Record
	Roster Set // current roster of the post's scene
	// Selection narrows the reveal to a subset of the roster. Nil means the
	// whole roster.
	Selection []string
}

// PlanUnhide validates an unhide and returns the witness set to store.
//
// Checks run in a fixed order: GM role, then hidden state, then the selection.
// The result is built from the roster as it is now; nobody who has left the
// scene is included, and anyone present now may be.
func PlanUnhide(req UnhideRequest) (Set, error) {
	if !req.Actor.IsGMOf(req.Post.CampaignID) {
		return nil, ErrNotGM
	}
	if !req.Post.Hidden() {
		return nil, ErrPostAlreadyVisible
	}

	next := req.Roster.Clone()
	if req.Selection != nil {
		next = NewSet(req.Selection...)
		if !next.IsSubsetOf(req.Roster) {
			return nil, ErrWitnessNotInScene
		}
	}
	if next.Empty() {
		return nil, ErrNoWitnessesSelected
	}
	return next, nil
}

// CheckTransition verifies that replacing prev with next is a legal witness
// change: either nothing changes, or an empty set becomes a non-empty one.
func CheckTransition(prev, next Set) error {
	if prev.Equal(next) {
		return nil
	}
	if !prev.Empty() {
		return ErrPostAlreadyVisible
	}
	if next.Empty() {
		return ErrNoWitnessesSelected
	}
	return nil
}
