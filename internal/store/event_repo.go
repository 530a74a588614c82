package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// eventRepo implements EventRepo backed by raw tables and the global
// sequence counter.
type eventRepo struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	seq *sequencer
}

func (r *eventRepo) AppendModelCall(ctx context.Context, data ModelEventData) error {
	seqNum, err := r.seq.next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	query, args, err := r.sb.
		Insert("model_events").
		Columns("sequence", "timestamp", "model", "kind", "version", "purpose",
			"input_tokens", "output_tokens", "latency_ms", "success", "error_message").
		Values(seqNum, time.Now().UTC(), data.Model, data.Kind, data.Version, data.Purpose,
			data.InputTokens, data.OutputTokens, data.LatencyMs, data.Success, data.ErrorMessage).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save model event: %w", err)
	}
	return nil
}

func (r *eventRepo) AppendSubmission(ctx context.Context, data SubmissionEventData) error {
	seqNum, err := r.seq.next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	query, args, err := r.sb.
		Insert("submission_events").
		Columns("sequence", "timestamp", "submission_id", "case_id", "outcome",
			"latency_ms", "degraded", "partial", "score").
		Values(seqNum, time.Now().UTC(), data.SubmissionID, data.CaseID, data.Outcome,
			data.LatencyMs, data.Degraded, data.Partial, data.Score).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save submission event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryModelEvents(ctx context.Context, opts QueryOpts) ([]ModelEvent, error) {
	b := applyOpts(r.sb.Select("id", "sequence", "timestamp", "model", "kind", "version", "purpose",
		"input_tokens", "output_tokens", "latency_ms", "success", "error_message").
		From("model_events"), opts)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query model events: %w", err)
	}
	defer rows.Close()

	var out []ModelEvent
	for rows.Next() {
		var e ModelEvent
		if err := rows.Scan(&e.ID, &e.Sequence, &e.Timestamp, &e.Model, &e.Kind, &e.Version, &e.Purpose,
			&e.InputTokens, &e.OutputTokens, &e.LatencyMs, &e.Success, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan model event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *eventRepo) QuerySubmissionEvents(ctx context.Context, opts QueryOpts) ([]SubmissionEvent, error) {
	b := applyOpts(r.sb.Select("id", "sequence", "timestamp", "submission_id", "case_id", "outcome",
		"latency_ms", "degraded", "partial", "score").
		From("submission_events"), opts)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submission events: %w", err)
	}
	defer rows.Close()

	var out []SubmissionEvent
	for rows.Next() {
		var e SubmissionEvent
		if err := rows.Scan(&e.ID, &e.Sequence, &e.Timestamp, &e.SubmissionID, &e.CaseID, &e.Outcome,
			&e.LatencyMs, &e.Degraded, &e.Partial, &e.Score); err != nil {
			return nil, fmt.Errorf("scan submission event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// applyOpts adds filtering and pagination. Results come back newest first.
func applyOpts(b sq.SelectBuilder, opts QueryOpts) sq.SelectBuilder {
	if opts.After > 0 {
		b = b.Where(sq.Gt{"sequence": opts.After})
	}
	if opts.Before > 0 {
		b = b.Where(sq.Lt{"sequence": opts.Before})
	}
	if !opts.From.IsZero() {
		b = b.Where(sq.GtOrEq{"timestamp": opts.From.UTC()})
	}
	if !opts.To.IsZero() {
		b = b.Where(sq.LtOrEq{"timestamp": opts.To.UTC()})
	}
	b = b.OrderBy("sequence DESC")
	if opts.Limit > 0 {
		b = b.Limit(uint64(opts.Limit))
	}
	return b
}
