package store

import (
	"context"
	"fmt"
)

// Problem is one integrity violation found by Check.
type Problem struct {
	ElementID string
	Err       error
}

// Report summarizes a Check run.
type Report struct {
	Elements     int
	LastRevision int64
	Problems     []Problem
}

// OK reports whether Check found no problem.
func (r Report) OK() bool {
	return len(r.Problems) == 0
}

// Check replays every stored element through the chain invariants: each
// chain must have exactly one head and every forward pointer must name a
// later version. It also checks that the element's revision was recorded
// in table_modifications. Problems are collected, not returned as errors;
// the error result is reserved for failures to read the store.
func (s *Store) Check(ctx context.Context) (Report, error) {
	var report Report

	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(revision), 0) FROM table_modifications`).
		Scan(&report.LastRevision); err != nil {
		return report, fmt.Errorf("check: read last revision: %w", err)
	}

	ids, err := s.queryIDs(ctx, `SELECT id FROM elements ORDER BY id COLLATE BINARY ASC`, nil)
	if err != nil {
		return report, fmt.Errorf("check: %w", err)
	}
	report.Elements = len(ids)

	recorded, err := s.recordedRevisions(ctx)
	if err != nil {
		return report, fmt.Errorf("check: %w", err)
	}

	for start := 0; start < len(ids); start += hydrateBatch {
		batch := ids[start:min(start+hydrateBatch, len(ids))]
		recs, err := loadRecords(ctx, s.db, batch)
		if err != nil {
			return report, fmt.Errorf("check: %w", err)
		}
		for _, id := range batch {
			rec := recs[id]
			if err := rec.Verify(); err != nil {
				report.Problems = append(report.Problems, Problem{ElementID: id, Err: err})
				continue
			}
			if !recorded[revisionOf{id, rec.Revision}] {
				report.Problems = append(report.Problems, Problem{
					ElementID: id,
					Err:       fmt.Errorf("revision %d has no modification record", rec.Revision),
				})
			}
		}
	}

	if !report.OK() {
		s.logger.Error("integrity check failed", "problems", len(report.Problems))
	}
	return report, nil
}

type revisionOf struct {
	id  string
	rev int64
}

func (s *Store) recordedRevisions(ctx context.Context) (map[revisionOf]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT element_id, revision FROM table_modifications`)
	if err != nil {
		return nil, fmt.Errorf("query modifications: %w", err)
	}
	defer rows.Close()

	out := map[revisionOf]bool{}
	for rows.Next() {
		var r revisionOf
		if err := rows.Scan(&r.id, &r.rev); err != nil {
			return nil, fmt.Errorf("scan modification: %w", err)
		}
		out[r] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modifications: %w", err)
	}
	return out, nil
}
