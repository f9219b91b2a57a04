package bankfeed

import "testing"

func TestPartition(t *testing.T) {
	candidates := []Candidate{
		{ExternalID: "a"},
		{ExternalID: "b"},
		{ExternalID: "c"},
	}
	existing := map[string]struct{}{"b": {}}

	fresh, dupes := Partition(candidates, existing)

	if len(fresh) != 2 {
		t.Fatalf("expected 2 fresh candidates, got %d", len(fresh))
	}
	if fresh[0].ExternalID != "a" || fresh[1].ExternalID != "c" {
		t.Errorf("unexpected fresh set: %v", fresh)
	}
	if len(dupes) != 1 || dupes[0].ExternalID != "b" {
		t.Errorf("unexpected duplicate set: %v", dupes)
	}
}

func TestPartition_Idempotent(t *testing.T) {
	candidates := []Candidate{{ExternalID: "x"}, {ExternalID: "y"}}

	fresh, _ := Partition(candidates, map[string]struct{}{})
	if len(fresh) != 2 {
		t.Fatalf("first run should import everything, got %d", len(fresh))
	}

	// Simulate the first run having been imported, then re-run over the
	// same window: nothing may come back a second time.
	imported := map[string]struct{}{}
	for _, c := range fresh {
		imported[c.ExternalID] = struct{}{}
	}

	fresh2, dupes2 := Partition(candidates, imported)
	if len(fresh2) != 0 {
		t.Errorf("re-run produced %d candidates, want 0", len(fresh2))
	}
	if len(dupes2) != 2 {
		t.Errorf("re-run reported %d duplicates, want 2", len(dupes2))
	}
}

func TestPartition_Empty(t *testing.T) {
	fresh, dupes := Partition(nil, map[string]struct{}{"a": {}})
	if fresh != nil || dupes != nil {
		t.Errorf("expected nil slices for empty input, got %v / %v", fresh, dupes)
	}
}
