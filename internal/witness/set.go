// Package witness implements the visibility rules for posts: which characters
// witnessed a post, who may see it, and how a hidden post is revealed.
//
// Everything in this package is pure. Storage packages call into it inside
// their transactions so that the same rules apply whatever backs the data.
package witness

import (
	"encoding/json"
	"sort"
)

// Set is a set of character IDs.
// The zero value is an empty set ready for reads; use NewSet to build one.
type Set map[string]struct{}

// NewSet builds a set from ids, dropping duplicates and empty strings.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Has reports whether id is in the set.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int { return len(s) }

// Empty reports whether the set has no members.
func (s Set) Empty() bool { return len(s) == 0 }

// Clone returns an independent copy. Cloning a nil set yields an empty, non-nil set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// IsSubsetOf reports whether every member of s is in other.
func (s Set) IsSubsetOf(other Set) bool {
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold the same members.
func (s Set) Equal(other Set) bool {
	return len(s) == len(other) && s.IsSubsetOf(other)
}

// Slice returns the members sorted, for storage and stable JSON output.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes an array of IDs.
func (s *Set) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewSet(ids...)
	return nil
}
