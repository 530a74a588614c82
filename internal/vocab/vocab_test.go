package vocab

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault_ResolvesSynonyms(t *testing.T) {
	v := Default()

	tests := []struct {
		phrase string
		want   string
	}{
		{"pneumothorax", "pneumothorax"},
		{"Enlarged Heart", "cardiomegaly"},
		{"pleural effusion", "pleural_effusion"},
		{"Pleural_Effusion", "pleural_effusion"},
		{"nodule", "lung_lesion"},
		{"opacification", "lung_opacity"},
		{"infiltrate", "pneumonia"},
	}
	for _, tt := range tests {
		got, ok := v.Resolve(tt.phrase)
		if !ok {
			t.Errorf("Resolve(%q) not found", tt.phrase)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.phrase, got, tt.want)
		}
	}
}

func TestDefault_EntriesSortedAndCritical(t *testing.T) {
	v := Default()
	entries := v.Entries()
	require.NotEmpty(t, entries)

	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].ID, entries[i].ID)
	}

	e, ok := v.Lookup("pneumothorax")
	require.True(t, ok)
	assert.Equal(t, CriticalityCritical, e.Criticality)
	assert.Equal(t, 4.0, e.Criticality.Weight())
}

func TestTerms_LongestFirst(t *testing.T) {
	terms := Default().Terms()
	for i := 1; i < len(terms); i++ {
		prev := strings.Count(terms[i-1].Phrase, " ")
		cur := strings.Count(terms[i].Phrase, " ")
		if cur > prev {
			t.Fatalf("term %q (%d words) after %q (%d words)", terms[i].Phrase, cur+1, terms[i-1].Phrase, prev+1)
		}
	}
}

func TestNew_RejectsDuplicates(t *testing.T) {
	_, err := New("1.0.0", []Entry{
		{ID: "a", Criticality: CriticalityLow},
		{ID: "a", Criticality: CriticalityLow},
	})
	assert.ErrorContains(t, err, "duplicate canonical id")

	_, err = New("1.0.0", []Entry{
		{ID: "a", Synonyms: []string{"shadow"}, Criticality: CriticalityLow},
		{ID: "b", Synonyms: []string{"Shadow"}, Criticality: CriticalityLow},
	})
	assert.ErrorContains(t, err, "maps to both")
}

func TestNew_RejectsBadVersion(t *testing.T) {
	_, err := New("latest", []Entry{{ID: "a", Criticality: CriticalityLow}})
	assert.Error(t, err)
}

func TestValidVersion(t *testing.T) {
	assert.True(t, ValidVersion("1.2.0"))
	assert.True(t, ValidVersion("v2.0.1"))
	assert.False(t, ValidVersion(""))
	assert.False(t, ValidVersion("one"))
}

func TestParse_DefaultCriticality(t *testing.T) {
	doc := `
version: 2.0.0
entries:
  pneumothorax:
    synonyms: [ptx]
    bodyRegion: pleura
    criticality: critical
  granuloma:
    synonyms: [calcified granuloma]
    bodyRegion: lung
`
	v, err := Parse([]byte(doc), CriticalityModerate)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", v.Version())
	assert.Equal(t, 2, v.Len())

	g, ok := v.Lookup("granuloma")
	require.True(t, ok)
	assert.Equal(t, CriticalityModerate, g.Criticality)

	id, ok := v.Resolve("PTX")
	require.True(t, ok)
	assert.Equal(t, "pneumothorax", id)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing version", "entries:\n  a:\n    bodyRegion: lung\n"},
		{"unknown criticality", "version: 1.0.0\nentries:\n  a:\n    criticality: severe\n"},
		{"unknown field", "version: 1.0.0\nentries:\n  a:\n    colour: red\n"},
		{"no entries", "version: 1.0.0\nentries: {}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), CriticalityModerate)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_RoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Default())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o644))

	v, err := LoadFile(path, CriticalityModerate)
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), v.Len())
	assert.Equal(t, DefaultVersion, v.Version())
}
