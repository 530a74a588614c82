package store

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/abhisek/radgrade/internal/clinical"
	"github.com/abhisek/radgrade/internal/vocab"
)

// NIH ChestX-ray14 metadata columns.
const (
	colImageIndex    = "Image Index"
	colFindingLabels = "Finding Labels"
	colPatientAge    = "Patient Age"
	colPatientGender = "Patient Gender"

	noFindingLabel = "No Finding"
)

// ImportResult summarizes an NIH import.
type ImportResult struct {
	Imported      int
	UnknownLabels map[string]int
}

// ReadSelected parses a newline-delimited list of image file names.
// Blank lines are ignored.
func ReadSelected(r io.Reader) (map[string]bool, error) {
	out := make(map[string]bool)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out[line] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read selection: %w", err)
	}
	return out, nil
}

// ImportNIH reads Data_Entry_2017.csv rows into the case library. When
// selected is non-empty only rows whose image index is listed are kept.
// Labels are mapped through v; labels the vocabulary does not know are
// counted in the result and otherwise skipped.
func ImportNIH(ctx context.Context, repo CaseRepo, r io.Reader, selected map[string]bool, v *vocab.Vocabulary) (ImportResult, error) {
	res := ImportResult{UnknownLabels: make(map[string]int)}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{colImageIndex, colFindingLabels} {
		if _, ok := cols[required]; !ok {
			return res, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read row: %w", err)
		}

		image := field(rec, colImageIndex)
		if image == "" || (len(selected) > 0 && !selected[image]) {
			continue
		}

		c := clinical.Case{
			ID:                  NormalizeCaseID(image),
			ImageRef:            image,
			PatientInfo:         patientInfo(field(rec, colPatientAge), field(rec, colPatientGender)),
			GroundTruthFindings: labelsToFindings(field(rec, colFindingLabels), v, res.UnknownLabels),
		}
		if err := repo.Put(ctx, c); err != nil {
			return res, err
		}
		res.Imported++
	}

	return res, nil
}

func labelsToFindings(labels string, v *vocab.Vocabulary, unknown map[string]int) []clinical.Finding {
	findings := []clinical.Finding{}
	if labels == "" || labels == noFindingLabel {
		return findings
	}

	seen := make(map[string]bool)
	for _, label := range strings.Split(labels, "|") {
		label = strings.TrimSpace(label)
		if label == "" || label == noFindingLabel {
			continue
		}
		id, ok := v.Resolve(label)
		if !ok {
			unknown[strings.ToLower(label)]++
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		e, _ := v.Lookup(id)
		findings = append(findings, clinical.Finding{
			CanonicalID:   id,
			BodyRegion:    e.BodyRegion,
			PathologyType: e.PathologyType,
			Polarity:      clinical.PolarityPresent,
		})
	}
	return findings
}

func patientInfo(age, gender string) string {
	switch {
	case age != "" && gender != "":
		return fmt.Sprintf("%s year old %s", strings.TrimLeft(age, "0"), gender)
	case age != "":
		return fmt.Sprintf("%s year old", strings.TrimLeft(age, "0"))
	default:
		return gender
	}
}
