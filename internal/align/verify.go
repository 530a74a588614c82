package align

import (
	"fmt"
	"sort"
	"strings"
)

// InconsistencyError reports a violated partition invariant. It signals
// a programming fault and must be surfaced, never corrected.
type InconsistencyError struct {
	// Duplicated ids appear in more than one partition, or twice in one.
	Duplicated []string
	// Missing ids are in the inputs but in no partition.
	Missing []string
	// Unexpected ids are in a partition but in none of the inputs.
	Unexpected []string
}

func (e *InconsistencyError) Error() string {
	var parts []string
	if len(e.Duplicated) > 0 {
		parts = append(parts, "duplicated "+strings.Join(e.Duplicated, ","))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ","))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Unexpected, ","))
	}
	return fmt.Sprintf("alignment partition violated: %s", strings.Join(parts, "; "))
}

// Verify checks that the partitions of r are pairwise disjoint and that
// their union equals the canonical ids of in. It returns
// *InconsistencyError on violation.
func Verify(r Result, in Inputs) error {
	seen := make(map[string]int)
	for _, part := range [][]Entry{r.Correct, r.Missed, r.Misinterpreted} {
		for _, e := range part {
			seen[e.Finding.CanonicalID]++
		}
	}

	want := make(map[string]bool)
	for _, f := range in.GroundTruth {
		want[f.CanonicalID] = true
	}
	for _, p := range in.Image {
		want[p.CanonicalID] = true
	}
	for _, f := range in.Extracted {
		if f.Classified() {
			want[f.CanonicalID] = true
		}
	}

	var ie InconsistencyError
	for id, n := range seen {
		if n > 1 {
			ie.Duplicated = append(ie.Duplicated, id)
		}
		if !want[id] {
			ie.Unexpected = append(ie.Unexpected, id)
		}
	}
	for id := range want {
		if seen[id] == 0 {
			ie.Missing = append(ie.Missing, id)
		}
	}
	if len(ie.Duplicated)+len(ie.Missing)+len(ie.Unexpected) == 0 {
		return nil
	}
	sort.Strings(ie.Duplicated)
	sort.Strings(ie.Missing)
	sort.Strings(ie.Unexpected)
	return &ie
}
