package clinical

import "testing"

func TestParsePolarity(t *testing.T) {
	tests := []struct {
		in      string
		want    Polarity
		wantErr bool
	}{
		{"present", PolarityPresent, false},
		{"", PolarityPresent, false},
		{"negative", PolarityAbsent, false},
		{"possible", PolarityUncertain, false},
		{"maybe", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolarity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolarity(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolarity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSpanRelations(t *testing.T) {
	outer := Span{Start: 0, End: 10}
	inner := Span{Start: 2, End: 5}
	apart := Span{Start: 10, End: 12}

	if !outer.Contains(inner) {
		t.Error("outer should contain inner")
	}
	if inner.Contains(outer) {
		t.Error("inner should not contain outer")
	}
	if outer.Overlaps(apart) {
		t.Error("adjacent spans should not overlap")
	}
	if inner.Len() != 3 {
		t.Errorf("got len %d, want 3", inner.Len())
	}
}

func TestCaseCloneDoesNotAlias(t *testing.T) {
	c := Case{ID: "c1", GroundTruthFindings: []Finding{{CanonicalID: "effusion", Polarity: PolarityPresent}}}
	cp := c.Clone()
	cp.GroundTruthFindings[0].CanonicalID = "edema"
	if c.GroundTruthFindings[0].CanonicalID != "effusion" {
		t.Error("clone mutated the original case")
	}
}
