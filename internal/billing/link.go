package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billing-sync/internal/db"
	"github.com/sells-group/billing-sync/internal/model"
)

// Link methods, strongest first.
const (
	LinkExactCM       = "exact_cm"
	LinkClientAndName = "client_prefix_name"
	LinkFuzzyName     = "fuzzy_name"
)

// DefaultFuzzyThreshold is the minimum pg_trgm similarity for a name match.
const DefaultFuzzyThreshold = 0.45

// Linker connects new billing matters to the staffing system's projects
// table. The projects table is owned by the staffing system.
type Linker struct {
	q         db.Querier
	threshold float64
}

// NewLinker creates a staffing linker on q.
func NewLinker(q db.Querier, threshold float64) *Linker {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	return &Linker{q: q, threshold: threshold}
}

type staffingCandidate struct {
	id         int64
	name       string
	method     string
	confidence float64
}

// Link runs a three-pass cascade and records the first hit:
//  1. Exact C/M number, confidence 1.0
//  2. Same client number prefix, best name similarity, confidence 0.8
//  3. Fuzzy project name (pg_trgm) above the threshold
//
// Each pass runs under its own savepoint when q can begin one, so a failed
// pass leaves the enclosing transaction usable. Pass failures are logged and
// skipped. A nil link means no match.
func (l *Linker) Link(ctx context.Context, projectID int64, cmNo, projectName string) (*model.StaffingLink, error) {
	log := zap.L().With(zap.String("component", "billing.link"), zap.String("cm_no", cmNo))

	passes := []func(context.Context, string, string) (*staffingCandidate, error){
		l.matchExactCM,
		l.matchClientPrefix,
		l.matchFuzzyName,
	}

	var cand *staffingCandidate
	for _, pass := range passes {
		c, err := pass(ctx, cmNo, projectName)
		if err != nil {
			log.Warn("link: pass failed", zap.Error(err))
			continue
		}
		if c != nil {
			cand = c
			break
		}
	}
	if cand == nil {
		log.Debug("link: no staffing match")
		return nil, nil
	}

	link := &model.StaffingLink{
		ProjectID:         projectID,
		StaffingProjectID: cand.id,
		StaffingName:      cand.name,
		Method:            cand.method,
		Confidence:        cand.confidence,
	}
	if err := l.record(ctx, link, cmNo); err != nil {
		return nil, err
	}

	log.Info("link: staffing project linked",
		zap.Int64("staffing_project_id", cand.id),
		zap.String("method", cand.method),
		zap.Float64("confidence", cand.confidence),
		zap.Bool("back_filled", link.BackFilled),
	)
	return link, nil
}

// scoped runs fn in a savepoint on l.q, or directly when l.q cannot begin one.
func (l *Linker) scoped(ctx context.Context, fn func(context.Context, db.Querier) (*staffingCandidate, error)) (*staffingCandidate, error) {
	b, ok := l.q.(db.TxBeginner)
	if !ok {
		return fn(ctx, l.q)
	}
	var c *staffingCandidate
	err := db.WithTx(ctx, b, 0, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		c, err = fn(ctx, tx)
		return err
	})
	return c, err
}

func (l *Linker) matchExactCM(ctx context.Context, cmNo, _ string) (*staffingCandidate, error) {
	return l.scoped(ctx, func(ctx context.Context, q db.Querier) (*staffingCandidate, error) {
		c := &staffingCandidate{method: LinkExactCM, confidence: 1.0}
		err := q.QueryRow(ctx,
			`SELECT id, name FROM projects WHERE cm_number = $1 ORDER BY id LIMIT 1`, cmNo,
		).Scan(&c.id, &c.name)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, eris.Wrap(err, "link: query projects by cm")
		}
		return c, nil
	})
}

// matchClientPrefix ranks projects under the same client number by name
// similarity. Without pg_trgm it accepts only an equal normalized name.
func (l *Linker) matchClientPrefix(ctx context.Context, cmNo, projectName string) (*staffingCandidate, error) {
	prefix, _, ok := strings.Cut(cmNo, "-")
	norm := NormalizeName(projectName)
	if !ok || prefix == "" || norm == "" {
		return nil, nil
	}

	c, err := l.scoped(ctx, func(ctx context.Context, q db.Querier) (*staffingCandidate, error) {
		c := &staffingCandidate{method: LinkClientAndName}
		var sim float64
		err := q.QueryRow(ctx,
			`SELECT id, name, similarity(UPPER(name), $2) AS sim FROM projects
			 WHERE split_part(cm_number, '-', 1) = $1
			 ORDER BY sim DESC LIMIT 1`, prefix, norm,
		).Scan(&c.id, &c.name, &sim)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, eris.Wrap(err, "link: query projects by client prefix")
		}
		if sim < l.threshold {
			return nil, nil
		}
		c.confidence = 0.8
		return c, nil
	})
	if err == nil {
		return c, nil
	}

	zap.L().Debug("link: similarity unavailable, matching client prefix by name", zap.Error(err))
	return l.scoped(ctx, func(ctx context.Context, q db.Querier) (*staffingCandidate, error) {
		rows, err := q.Query(ctx,
			`SELECT id, name FROM projects
			 WHERE split_part(cm_number, '-', 1) = $1 ORDER BY id`, prefix)
		if err != nil {
			return nil, eris.Wrap(err, "link: query projects by client prefix")
		}
		defer rows.Close()
		for rows.Next() {
			c := &staffingCandidate{method: LinkClientAndName, confidence: 0.8}
			if err := rows.Scan(&c.id, &c.name); err != nil {
				return nil, eris.Wrap(err, "link: scan project")
			}
			if NormalizeName(c.name) == norm {
				return c, nil
			}
		}
		return nil, eris.Wrap(rows.Err(), "link: iterate projects")
	})
}

func (l *Linker) matchFuzzyName(ctx context.Context, _, projectName string) (*staffingCandidate, error) {
	norm := NormalizeName(projectName)
	if norm == "" {
		return nil, nil
	}

	return l.scoped(ctx, func(ctx context.Context, q db.Querier) (*staffingCandidate, error) {
		c := &staffingCandidate{method: LinkFuzzyName}
		err := q.QueryRow(ctx,
			`SELECT id, name, similarity(UPPER(name), $1) AS sim FROM projects
			 WHERE similarity(UPPER(name), $1) >= $2
			 ORDER BY sim DESC LIMIT 1`, norm, l.threshold,
		).Scan(&c.id, &c.name, &c.confidence)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, eris.Wrap(err, "link: fuzzy query projects")
		}
		return c, nil
	})
}

// record stores the link and back-fills the staffing project's C/M number
// when it is blank.
func (l *Linker) record(ctx context.Context, link *model.StaffingLink, cmNo string) error {
	if _, err := l.q.Exec(ctx,
		`INSERT INTO billing_staffing_link (project_id, staffing_project_id, match_method, confidence)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (project_id) DO UPDATE SET
		   staffing_project_id = EXCLUDED.staffing_project_id,
		   match_method = EXCLUDED.match_method,
		   confidence = EXCLUDED.confidence,
		   linked_at = now()`,
		link.ProjectID, link.StaffingProjectID, link.Method, link.Confidence,
	); err != nil {
		return eris.Wrapf(err, "link: record link for project %d", link.ProjectID)
	}

	tag, err := l.q.Exec(ctx,
		`UPDATE projects SET cm_number = $2
		 WHERE id = $1 AND (cm_number IS NULL OR cm_number = '')`,
		link.StaffingProjectID, cmNo,
	)
	if err != nil {
		return eris.Wrapf(err, "link: back-fill cm for staffing project %d", link.StaffingProjectID)
	}
	link.BackFilled = tag.RowsAffected() > 0
	return nil
}
