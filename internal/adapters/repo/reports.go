package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/metrics"
)

const flagColumns = `key, entity_key, entity_kind, post_key, created`

// CreateFlag реализует domain.ReportRepo.
func (p *Postgres) CreateFlag(ctx context.Context, f domain.Flag) (domain.Flag, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO flags (`+flagColumns+`)
VALUES ($1, $2, $3, $4, $5)
`, f.Key, f.EntityKey, f.EntityKind, f.PostKey, f.Created)
	metrics.ObserveNetworkRequest("postgres", "flags_insert", "flags", start, err)
	return f, err
}

// ListFlags реализует domain.ReportRepo.
func (p *Postgres) ListFlags(ctx context.Context, entityKey string) ([]domain.Flag, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+flagColumns+` FROM flags
WHERE entity_key=$1
ORDER BY created DESC, key DESC
`, entityKey)
	metrics.ObserveNetworkRequest("postgres", "flags_list", "flags", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Flag, error) {
		var f domain.Flag
		err := row.Scan(&f.Key, &f.EntityKey, &f.EntityKind, &f.PostKey, &f.Created)
		f.Created = f.Created.UTC()
		return f, err
	})
}

// DeleteFlagsByPost реализует domain.ReportRepo.
func (p *Postgres) DeleteFlagsByPost(ctx context.Context, postKey string) error {
	return p.execDelete(ctx, "flags", `DELETE FROM flags WHERE post_key=$1`, postKey)
}

// CreateFeedback реализует domain.ReportRepo.
func (p *Postgres) CreateFeedback(ctx context.Context, fb domain.Feedback) (domain.Feedback, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO feedback (key, user_id, content, created)
VALUES ($1, $2, $3, $4)
`, fb.Key, fb.UserID, fb.Content, fb.Created)
	metrics.ObserveNetworkRequest("postgres", "feedback_insert", "feedback", start, err)
	return fb, err
}

// ListFeedback реализует domain.ReportRepo.
func (p *Postgres) ListFeedback(ctx context.Context, limit int) ([]domain.Feedback, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT key, user_id, content, created FROM feedback
ORDER BY created DESC, key DESC
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "feedback_list", "feedback", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Feedback, error) {
		var fb domain.Feedback
		err := row.Scan(&fb.Key, &fb.UserID, &fb.Content, &fb.Created)
		fb.Created = fb.Created.UTC()
		return fb, err
	})
}
