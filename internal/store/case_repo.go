package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/abhisek/radgrade/internal/clinical"
)

type caseRepo struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NormalizeCaseID strips a trailing image extension so that image file
// names ("00013118_005.png") resolve to their case ("00013118_005").
func NormalizeCaseID(id string) string {
	id = strings.TrimSpace(id)
	if ext := path.Ext(id); ext != "" {
		switch strings.ToLower(ext) {
		case ".png", ".jpg", ".jpeg", ".dcm":
			return strings.TrimSuffix(id, ext)
		}
	}
	return id
}

func (r *caseRepo) Get(ctx context.Context, id string) (clinical.Case, error) {
	query, args, err := r.sb.
		Select("id", "image_ref", "patient_info", "findings").
		From("cases").
		Where(sq.Eq{"id": NormalizeCaseID(id)}).
		ToSql()
	if err != nil {
		return clinical.Case{}, fmt.Errorf("build case query: %w", err)
	}

	c, err := scanCase(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return clinical.Case{}, fmt.Errorf("%w: %s", ErrCaseNotFound, id)
	}
	if err != nil {
		return clinical.Case{}, fmt.Errorf("get case %s: %w", id, err)
	}
	return c, nil
}

func (r *caseRepo) List(ctx context.Context) ([]clinical.Case, error) {
	query, args, err := r.sb.
		Select("id", "image_ref", "patient_info", "findings").
		From("cases").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var out []clinical.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *caseRepo) Put(ctx context.Context, c clinical.Case) error {
	if c.ID == "" {
		return errors.New("case id is required")
	}
	findings, err := json.Marshal(c.GroundTruthFindings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}

	query, args, err := r.sb.
		Insert("cases").
		Columns("id", "image_ref", "patient_info", "findings", "updated_at").
		Values(NormalizeCaseID(c.ID), c.ImageRef, c.PatientInfo, string(findings), time.Now().UTC()).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			image_ref = excluded.image_ref,
			patient_info = excluded.patient_info,
			findings = excluded.findings,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save case %s: %w", c.ID, err)
	}
	return nil
}

func (r *caseRepo) Count(ctx context.Context) (int, error) {
	query, args, err := r.sb.Select("COUNT(*)").From("cases").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (clinical.Case, error) {
	var (
		c        clinical.Case
		findings string
	)
	if err := row.Scan(&c.ID, &c.ImageRef, &c.PatientInfo, &findings); err != nil {
		return clinical.Case{}, err
	}
	if err := json.Unmarshal([]byte(findings), &c.GroundTruthFindings); err != nil {
		return clinical.Case{}, fmt.Errorf("decode findings for %s: %w", c.ID, err)
	}
	return c, nil
}
