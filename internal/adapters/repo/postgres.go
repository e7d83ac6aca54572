package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.Store = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

const postColumns = `key, author_id, content, theme, background, role, role_text, channels, identity_map, created`

func scanPost(row pgx.Row) (domain.Post, error) {
	var (
		post domain.Post
		ids  []byte
	)
	if err := row.Scan(&post.Key, &post.AuthorID, &post.Content, &post.Theme, &post.Background,
		&post.Role, &post.RoleText, &post.Channels, &ids, &post.Created); err != nil {
		return domain.Post{}, err
	}
	post.IdentityMap = make(map[string]int)
	if len(ids) > 0 {
		if err := json.Unmarshal(ids, &post.IdentityMap); err != nil {
			return domain.Post{}, fmt.Errorf("identity_map поста %s: %w", post.Key, err)
		}
	}
	post.Created = post.Created.UTC()
	return post, nil
}

func identityJSON(ids map[string]int) (string, error) {
	if ids == nil {
		ids = map[string]int{}
	}
	data, err := json.Marshal(ids)
	return string(data), err
}

// CreatePost реализует domain.PostRepo.
func (p *Postgres) CreatePost(ctx context.Context, post domain.Post) (domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	ids, err := identityJSON(post.IdentityMap)
	if err != nil {
		return domain.Post{}, err
	}
	if post.Channels == nil {
		post.Channels = []string{}
	}
	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO posts (`+postColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
`, post.Key, post.AuthorID, post.Content, post.Theme, post.Background, post.Role, post.RoleText, post.Channels, ids, post.Created)
	metrics.ObserveNetworkRequest("postgres", "posts_insert", "posts", start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Post{}, domain.ErrDuplicate
		}
		return domain.Post{}, err
	}
	return post, nil
}

// GetPost реализует domain.PostRepo.
func (p *Postgres) GetPost(ctx context.Context, key string) (domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	post, err := scanPost(p.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE key=$1`, key))
	metrics.ObserveNetworkRequest("postgres", "posts_get", "posts", start, err)
	return post, notFound(err)
}

// GetPosts реализует domain.PostRepo.
func (p *Postgres) GetPosts(ctx context.Context, keys []string) ([]domain.Post, error) {
	if len(keys) == 0 {
		return []domain.Post{}, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+postColumns+` FROM posts WHERE key = ANY($1)`, keys)
	metrics.ObserveNetworkRequest("postgres", "posts_get_many", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPosts(rows)
}

// ListPosts реализует domain.PostRepo.
func (p *Postgres) ListPosts(ctx context.Context, limit int) ([]domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+postColumns+` FROM posts ORDER BY created DESC, key DESC LIMIT $1`, limit)
	metrics.ObserveNetworkRequest("postgres", "posts_list", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPosts(rows)
}

func collectPosts(rows pgx.Rows) ([]domain.Post, error) {
	res := make([]domain.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, post)
	}
	return res, rows.Err()
}

// LockPost реализует domain.PostRepo через SELECT ... FOR UPDATE.
func (p *Postgres) LockPost(ctx context.Context, key string, fn func(post *domain.Post) (bool, error)) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	post, err := scanPost(tx.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE key=$1 FOR UPDATE`, key))
	metrics.ObserveNetworkRequest("postgres", "posts_lock", "posts", start, err)
	if err != nil {
		return notFound(err)
	}

	changed, err := fn(&post)
	if err != nil {
		return err
	}
	if changed {
		ids, err := identityJSON(post.IdentityMap)
		if err != nil {
			return err
		}
		start = time.Now()
		_, err = tx.Exec(ctx, `
UPDATE posts
SET content=$2, theme=$3, background=$4, role=$5, role_text=$6, channels=$7, identity_map=$8::jsonb
WHERE key=$1
`, post.Key, post.Content, post.Theme, post.Background, post.Role, post.RoleText, post.Channels, ids)
		metrics.ObserveNetworkRequest("postgres", "posts_update", "posts", start, err)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// DeletePost реализует domain.PostRepo.
func (p *Postgres) DeletePost(ctx context.Context, key string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM posts WHERE key=$1`, key)
	metrics.ObserveNetworkRequest("postgres", "posts_delete", "posts", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const commentColumns = `key, post_key, pseudonym, content, role, role_text, created`

func scanComment(row pgx.Row) (domain.Comment, error) {
	var c domain.Comment
	err := row.Scan(&c.Key, &c.PostKey, &c.Pseudonym, &c.Content, &c.Role, &c.RoleText, &c.Created)
	c.Created = c.Created.UTC()
	return c, err
}

// CreateComment реализует domain.CommentRepo.
func (p *Postgres) CreateComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO comments (`+commentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, c.Key, c.PostKey, c.Pseudonym, c.Content, c.Role, c.RoleText, c.Created)
	metrics.ObserveNetworkRequest("postgres", "comments_insert", "comments", start, err)
	return c, err
}

// GetComment реализует domain.CommentRepo.
func (p *Postgres) GetComment(ctx context.Context, key string) (domain.Comment, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	c, err := scanComment(p.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE key=$1`, key))
	metrics.ObserveNetworkRequest("postgres", "comments_get", "comments", start, err)
	return c, notFound(err)
}

// ListComments реализует domain.CommentRepo.
func (p *Postgres) ListComments(ctx context.Context, postKey string, until time.Time) ([]domain.Comment, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query := `SELECT ` + commentColumns + ` FROM comments WHERE post_key=$1`
	args := []any{postKey}
	if !until.IsZero() {
		query += ` AND created <= $2`
		args = append(args, until)
	}
	query += ` ORDER BY created DESC, key DESC`

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "comments_list", "comments", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]domain.Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CountComments реализует domain.CommentRepo.
func (p *Postgres) CountComments(ctx context.Context, postKey string, until time.Time) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var n int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT count(*) FROM comments
WHERE post_key=$1 AND ($2::timestamptz IS NULL OR created <= $2)
`, postKey, nullableTime(until)).Scan(&n)
	metrics.ObserveNetworkRequest("postgres", "comments_count", "comments", start, err)
	return n, err
}

// DeleteCommentsByPost реализует domain.CommentRepo.
func (p *Postgres) DeleteCommentsByPost(ctx context.Context, postKey string) error {
	return p.execDelete(ctx, "comments", `DELETE FROM comments WHERE post_key=$1`, postKey)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (p *Postgres) execDelete(ctx context.Context, table, query string, args ...any) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", table+"_delete", table, start, err)
	return err
}

// InsertVote реализует domain.VoteRepo.
func (p *Postgres) InsertVote(ctx context.Context, v domain.Vote) (domain.Vote, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO votes (key, entity_key, post_key, direction, pseudonym, created)
VALUES ($1, $2, $3, $4, $5, $6)
`, v.Key, v.EntityKey, v.PostKey, string(v.Direction), v.Pseudonym, v.Created)
	metrics.ObserveNetworkRequest("postgres", "votes_insert", "votes", start, err)
	return v, err
}

// GetVote реализует domain.VoteRepo.
func (p *Postgres) GetVote(ctx context.Context, key string) (domain.Vote, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		v   domain.Vote
		dir string
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT key, entity_key, post_key, direction, pseudonym, created FROM votes WHERE key=$1
`, key).Scan(&v.Key, &v.EntityKey, &v.PostKey, &dir, &v.Pseudonym, &v.Created)
	metrics.ObserveNetworkRequest("postgres", "votes_get", "votes", start, err)
	if err != nil {
		return domain.Vote{}, notFound(err)
	}
	v.Direction = domain.Direction(dir)
	v.Created = v.Created.UTC()
	return v, nil
}

// DeleteVotes реализует domain.VoteRepo.
func (p *Postgres) DeleteVotes(ctx context.Context, entityKey string, pseudonym int, dir domain.Direction) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
DELETE FROM votes WHERE entity_key=$1 AND pseudonym=$2 AND direction=$3
`, entityKey, pseudonym, string(dir))
	metrics.ObserveNetworkRequest("postgres", "votes_delete", "votes", start, err)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CountVotes реализует domain.VoteRepo.
func (p *Postgres) CountVotes(ctx context.Context, entityKey string, dir domain.Direction) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var n int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM votes WHERE entity_key=$1 AND direction=$2`, entityKey, string(dir)).Scan(&n)
	metrics.ObserveNetworkRequest("postgres", "votes_count", "votes", start, err)
	return n, err
}

// ListVoteKeys реализует domain.VoteRepo.
func (p *Postgres) ListVoteKeys(ctx context.Context, entityKey string, pseudonym int, dir domain.Direction) ([]string, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT key FROM votes WHERE entity_key=$1 AND pseudonym=$2 AND direction=$3 ORDER BY key
`, entityKey, pseudonym, string(dir))
	metrics.ObserveNetworkRequest("postgres", "votes_list_keys", "votes", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// DeleteVoteKeys реализует domain.VoteRepo.
func (p *Postgres) DeleteVoteKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return p.execDelete(ctx, "votes", `DELETE FROM votes WHERE key = ANY($1)`, keys)
}

// DeleteVotesByPost реализует domain.VoteRepo.
func (p *Postgres) DeleteVotesByPost(ctx context.Context, postKey string) error {
	return p.execDelete(ctx, "votes", `DELETE FROM votes WHERE post_key=$1`, postKey)
}

// CreateChannel реализует domain.ChannelRepo.
func (p *Postgres) CreateChannel(ctx context.Context, title string) (domain.Channel, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	ch := domain.Channel{Key: domain.NewKey(), Title: title}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `INSERT INTO channels (key, title) VALUES ($1, $2)`, ch.Key, ch.Title)
	metrics.ObserveNetworkRequest("postgres", "channels_insert", "channels", start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Channel{}, domain.ErrDuplicate
		}
		return domain.Channel{}, err
	}
	return ch, nil
}

// GetChannel реализует domain.ChannelRepo.
func (p *Postgres) GetChannel(ctx context.Context, key string) (domain.Channel, error) {
	return p.getChannel(ctx, "channels_get", `SELECT key, title FROM channels WHERE key=$1`, key)
}

// GetChannelByTitle реализует domain.ChannelRepo.
func (p *Postgres) GetChannelByTitle(ctx context.Context, title string) (domain.Channel, error) {
	return p.getChannel(ctx, "channels_get_by_title", `SELECT key, title FROM channels WHERE title=$1`, title)
}

func (p *Postgres) getChannel(ctx context.Context, op, query string, arg string) (domain.Channel, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var ch domain.Channel
	start := time.Now()
	err := p.pool.QueryRow(ctx, query, arg).Scan(&ch.Key, &ch.Title)
	metrics.ObserveNetworkRequest("postgres", op, "channels", start, err)
	return ch, notFound(err)
}

// ListChannels реализует domain.ChannelRepo.
func (p *Postgres) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT key, title FROM channels ORDER BY title`)
	metrics.ObserveNetworkRequest("postgres", "channels_list", "channels", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Channel, error) {
		var ch domain.Channel
		err := row.Scan(&ch.Key, &ch.Title)
		return ch, err
	})
}

const updateColumns = `key, created, what, what_kind, post_key, channel_key`

func scanUpdate(row pgx.CollectableRow) (domain.Update, error) {
	var (
		u       domain.Update
		postKey *string
	)
	if err := row.Scan(&u.Key, &u.Created, &u.What, &u.WhatKind, &postKey, &u.ChannelKey); err != nil {
		return domain.Update{}, err
	}
	if postKey != nil {
		u.PostKey = *postKey
	}
	u.Created = u.Created.UTC()
	return u, nil
}

// InsertUpdate реализует domain.UpdateRepo.
func (p *Postgres) InsertUpdate(ctx context.Context, u domain.Update) (domain.Update, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var postKey *string
	if u.PostKey != "" {
		postKey = &u.PostKey
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO updates (`+updateColumns+`)
VALUES ($1, $2, $3, $4, $5, $6)
`, u.Key, u.Created, u.What, u.WhatKind, postKey, u.ChannelKey)
	metrics.ObserveNetworkRequest("postgres", "updates_insert", "updates", start, err)
	return u, err
}

// ScanUpdates реализует domain.UpdateRepo. Порядок (created, key), при заданном ключе граница строгая.
func (p *Postgres) ScanUpdates(ctx context.Context, q domain.UpdateQuery) ([]domain.Update, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var b strings.Builder
	b.WriteString(`SELECT ` + updateColumns + ` FROM updates WHERE channel_key=$1 AND created <= $2`)
	args := []any{q.ChannelKey, q.Until, q.Since}
	switch {
	case q.Forward && q.AfterKey != "":
		b.WriteString(` AND (created, key) > ($3, $4)`)
	case q.Forward:
		b.WriteString(` AND created >= $3`)
	case q.AfterKey != "":
		b.WriteString(` AND (created, key) < ($3, $4)`)
	default:
		b.WriteString(` AND created <= $3`)
	}
	if q.AfterKey != "" {
		args = append(args, q.AfterKey)
	}
	if q.Forward {
		b.WriteString(` ORDER BY created, key`)
	} else {
		b.WriteString(` ORDER BY created DESC, key DESC`)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, b.String(), args...)
	metrics.ObserveNetworkRequest("postgres", "updates_scan", "updates", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanUpdate)
}

// UpdatesForPosts реализует domain.UpdateRepo.
func (p *Postgres) UpdatesForPosts(ctx context.Context, postKeys []string, since, until time.Time, kinds []string) ([]domain.Update, error) {
	if len(postKeys) == 0 {
		return []domain.Update{}, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query := `SELECT ` + updateColumns + ` FROM updates WHERE post_key = ANY($1) AND created >= $2 AND created <= $3`
	args := []any{postKeys, since, until}
	if len(kinds) > 0 {
		query += ` AND what_kind = ANY($4)`
		args = append(args, kinds)
	}
	query += ` ORDER BY created DESC, key DESC`

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "updates_for_posts", "updates", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanUpdate)
}

// DeleteUpdatesByPost реализует domain.UpdateRepo.
func (p *Postgres) DeleteUpdatesByPost(ctx context.Context, postKey string) error {
	return p.execDelete(ctx, "updates", `DELETE FROM updates WHERE post_key=$1`, postKey)
}

// DeleteUpdatesBefore реализует domain.UpdateRepo.
func (p *Postgres) DeleteUpdatesBefore(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM updates WHERE created < $1`, before)
	metrics.ObserveNetworkRequest("postgres", "updates_purge", "updates", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const userColumns = `id, pub_key_hash, description, channels, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.PubKeyHash, &u.Description, &u.Channels, &u.CreatedAt)
	return u, notFound(err)
}

// CreateUser реализует domain.UserRepo.
func (p *Postgres) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if u.Channels == nil {
		u.Channels = []string{}
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES ($1, $2, $3, $4, $5)
`, u.ID, u.PubKeyHash, u.Description, u.Channels, u.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_insert", "users", start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrDuplicate
		}
		return domain.User{}, err
	}
	return u, nil
}

// GetUser реализует domain.UserRepo.
func (p *Postgres) GetUser(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	return u, err
}

// GetUserByPubKeyHash реализует domain.UserRepo.
func (p *Postgres) GetUserByPubKeyHash(ctx context.Context, hash string) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE pub_key_hash=$1`, hash))
	metrics.ObserveNetworkRequest("postgres", "users_get_by_pub_key", "users", start, err)
	return u, err
}

// ReplaceToken реализует domain.TokenRepo.
func (p *Postgres) ReplaceToken(ctx context.Context, userID, token string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM tokens WHERE user_id=$1`, userID)
	metrics.ObserveNetworkRequest("postgres", "tokens_delete", "tokens", start, err)
	if err != nil {
		return err
	}
	start = time.Now()
	_, err = tx.Exec(ctx, `INSERT INTO tokens (token, user_id) VALUES ($1, $2)`, token, userID)
	metrics.ObserveNetworkRequest("postgres", "tokens_insert", "tokens", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.ErrNotFound
		}
		return err
	}
	return tx.Commit(ctx)
}

// UserByToken реализует domain.TokenRepo.
func (p *Postgres) UserByToken(ctx context.Context, token string) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `
SELECT u.id, u.pub_key_hash, u.description, u.channels, u.created_at
FROM tokens t JOIN users u ON u.id = t.user_id
WHERE t.token=$1
`, token))
	metrics.ObserveNetworkRequest("postgres", "tokens_user", "tokens", start, err)
	return u, err
}
