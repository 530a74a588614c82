package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abhisek/radgrade/internal/clinical"
	"github.com/abhisek/radgrade/internal/vocab"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestCaseRepo_PutGet(t *testing.T) {
	s := openTestStore(t)
	repo := s.CaseRepo()
	ctx := context.Background()

	c := clinical.Case{
		ID:       "00013118_005",
		ImageRef: "00013118_005.png",
		GroundTruthFindings: []clinical.Finding{
			{CanonicalID: "pneumothorax", BodyRegion: "pleura", Polarity: clinical.PolarityPresent},
		},
	}
	if err := repo.Put(ctx, c); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := repo.Get(ctx, "00013118_005.png")
	if err != nil {
		t.Fatalf("get by image name: %v", err)
	}
	if got.ID != c.ID || got.ImageRef != c.ImageRef {
		t.Errorf("got %+v, want %+v", got, c)
	}
	if len(got.GroundTruthFindings) != 1 || got.GroundTruthFindings[0].CanonicalID != "pneumothorax" {
		t.Errorf("findings = %+v", got.GroundTruthFindings)
	}

	// Upsert replaces findings.
	c.GroundTruthFindings = nil
	if err := repo.Put(ctx, c); err != nil {
		t.Fatalf("re-put: %v", err)
	}
	got, _ = repo.Get(ctx, c.ID)
	if len(got.GroundTruthFindings) != 0 {
		t.Errorf("expected findings cleared, got %+v", got.GroundTruthFindings)
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("count = %d, %v; want 1", n, err)
	}
}

func TestCaseRepo_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CaseRepo().Get(context.Background(), "missing")
	if !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("got %v, want ErrCaseNotFound", err)
	}
}

func TestCaseRepo_ListOrdered(t *testing.T) {
	s := openTestStore(t)
	repo := s.CaseRepo()
	ctx := context.Background()

	for _, id := range []string{"c3", "c1", "c2"} {
		if err := repo.Put(ctx, clinical.Case{ID: id}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	cases, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, c := range cases {
		ids = append(ids, c.ID)
	}
	if strings.Join(ids, ",") != "c1,c2,c3" {
		t.Errorf("got %v, want [c1 c2 c3]", ids)
	}
}

func TestNormalizeCaseID(t *testing.T) {
	tests := map[string]string{
		"00013118_005.png": "00013118_005",
		"00013118_005":     "00013118_005",
		" case.JPG ":       "case",
		"study.v2":         "study.v2",
	}
	for in, want := range tests {
		if got := NormalizeCaseID(in); got != want {
			t.Errorf("NormalizeCaseID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestImportNIH(t *testing.T) {
	s := openTestStore(t)
	repo := s.CaseRepo()
	ctx := context.Background()

	csvData := strings.Join([]string{
		"Image Index,Finding Labels,Follow-up #,Patient ID,Patient Age,Patient Gender",
		"00000001_000.png,Cardiomegaly|Effusion,0,1,058,M",
		"00000002_000.png,No Finding,0,2,081,F",
		"00000003_000.png,Mass|Nodule|Unicorn,0,3,074,F",
		"00000004_000.png,Pneumothorax,0,4,040,M",
	}, "\n")
	selected, err := ReadSelected(strings.NewReader("00000001_000.png\n\n00000002_000.png\n00000003_000.png\n"))
	if err != nil {
		t.Fatalf("read selected: %v", err)
	}

	res, err := ImportNIH(ctx, repo, strings.NewReader(csvData), selected, vocab.Default())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 3 {
		t.Errorf("imported %d, want 3", res.Imported)
	}
	if res.UnknownLabels["unicorn"] != 1 {
		t.Errorf("unknown labels = %v", res.UnknownLabels)
	}

	c1, err := repo.Get(ctx, "00000001_000")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(c1.GroundTruthFindings) != 2 {
		t.Fatalf("got %d findings, want 2", len(c1.GroundTruthFindings))
	}
	if c1.GroundTruthFindings[1].CanonicalID != "pleural_effusion" {
		t.Errorf("got %q, want pleural_effusion", c1.GroundTruthFindings[1].CanonicalID)
	}
	if c1.PatientInfo != "58 year old M" {
		t.Errorf("patient info = %q", c1.PatientInfo)
	}

	c2, _ := repo.Get(ctx, "00000002_000")
	if len(c2.GroundTruthFindings) != 0 {
		t.Errorf("No Finding should yield no findings, got %+v", c2.GroundTruthFindings)
	}

	c3, _ := repo.Get(ctx, "00000003_000")
	if len(c3.GroundTruthFindings) != 1 || c3.GroundTruthFindings[0].CanonicalID != "lung_lesion" {
		t.Errorf("mass and nodule should collapse to lung_lesion, got %+v", c3.GroundTruthFindings)
	}

	if _, err := repo.Get(ctx, "00000004_000"); !errors.Is(err, ErrCaseNotFound) {
		t.Errorf("unselected row imported: %v", err)
	}
}

func TestEventRepo_AppendAndQuery(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := repo.AppendModelCall(ctx, ModelEventData{
			Model:     "densenet121-chexpert",
			Kind:      "image",
			LatencyMs: int64(10 * (i + 1)),
			Success:   i != 1,
		})
		if err != nil {
			t.Fatalf("append model call: %v", err)
		}
	}
	if err := repo.AppendSubmission(ctx, SubmissionEventData{
		SubmissionID: "sub-1",
		CaseID:       "c1",
		Outcome:      "Delivered",
		Degraded:     true,
		Score:        80,
	}); err != nil {
		t.Fatalf("append submission: %v", err)
	}

	events, err := repo.QueryModelEvents(ctx, QueryOpts{Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Sequence <= events[1].Sequence {
		t.Errorf("expected newest first, got sequences %d, %d", events[0].Sequence, events[1].Sequence)
	}
	if events[0].LatencyMs != 30 {
		t.Errorf("latest latency = %d, want 30", events[0].LatencyMs)
	}

	subs, err := repo.QuerySubmissionEvents(ctx, QueryOpts{After: events[0].Sequence})
	if err != nil {
		t.Fatalf("query submissions: %v", err)
	}
	if len(subs) != 1 || !subs[0].Degraded || subs[0].Score != 80 {
		t.Errorf("submissions = %+v", subs)
	}
}
