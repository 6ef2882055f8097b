package domain

// MutationStatus tags how an optimistic mutation settled.
type MutationStatus int

const (
	// MutationApplied means the network call succeeded and the
	// optimistic value stands until the settle-time reconciliation.
	MutationApplied MutationStatus = iota
	// MutationRolledBack means the call failed and the pre-mutation
	// snapshot was restored verbatim.
	MutationRolledBack
)

// String returns the tag name for logs.
func (s MutationStatus) String() string {
	if s == MutationRolledBack {
		return "rolled_back"
	}
	return "applied"
}

// MutationResult is the settled outcome of an optimistic mutation.
type MutationResult struct {
	Status MutationStatus
	Err    error
}

// ApplyContribution is the pure optimistic reducer for a payment: it
// returns a new enrollment list with the amount added to the matching
// enrollment's contributed total. The input slice is never mutated.
// ok is false when the enrollment is not in the list.
func ApplyContribution(enrollments []Enrollment, enrollmentID string, amount int64) (next []Enrollment, ok bool) {
	next = make([]Enrollment, len(enrollments))
	copy(next, enrollments)
	for i := range next {
		if next[i].ID == enrollmentID {
			next[i].TotalContributed += amount
			return next, true
		}
	}
	return next, false
}
