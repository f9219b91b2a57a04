package bankfeed

// Partition splits candidates into those not yet imported and those whose
// external id already exists among the budget's expenses. The in-memory check
// is an early exit: the database uniqueness constraint on the external id
// remains the authoritative guard against concurrent syncs.
func Partition(candidates []Candidate, existing map[string]struct{}) (fresh, duplicates []Candidate) {
	for _, c := range candidates {
		if _, ok := existing[c.ExternalID]; ok {
			duplicates = append(duplicates, c)
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, duplicates
}
