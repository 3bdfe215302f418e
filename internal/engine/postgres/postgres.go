// Package postgres implements the index engine on Postgres full-text
// search. Each document kind gets its own table with a GIN index over
// to_tsvector of the content column; ranking uses ts_rank at query time.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lib/pq"

	"github.com/forumkit/searchsync/internal/engine"
	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/internal/normalize"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
	"github.com/forumkit/searchsync/pkg/logger"
	pgclient "github.com/forumkit/searchsync/pkg/postgres"
)

const (
	topicTable = "searchtopic"
	postTable  = "searchpost"
)

// Engine stores index rows in Postgres. The text-search configuration name
// is interpolated into SQL directly; it always comes from the fixed
// language table in the normalize package, never from user input.
type Engine struct {
	client *pgclient.Client
	logger *slog.Logger

	mu     sync.RWMutex
	config string
}

// New returns an Engine on client. The Engine owns the client and closes
// it on Close.
func New(client *pgclient.Client) *Engine {
	return &Engine{client: client, logger: logger.WithComponent("engine.postgres")}
}

// CreateIndices creates both tables and their GIN indices when absent. The
// GIN index is an expression index over the language it was created with;
// if the configured language has drifted since, searches stay correct but
// degrade to sequential scans until ChangeLanguage recreates the index.
func (e *Engine) CreateIndices(ctx context.Context, language string) error {
	cfg := normalize.PostgresConfig(language)
	for _, table := range []string{topicTable, postTable} {
		create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT NOT NULL PRIMARY KEY,
			content TEXT NOT NULL,
			uid BIGINT NOT NULL DEFAULT 0,
			cid BIGINT NOT NULL DEFAULT 0
		)`, table)
		if _, err := e.client.DB.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("creating %s: %w: %w", table, apperrors.ErrIndexEngine, err)
		}
		index := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx__%s__content ON %s USING GIN (to_tsvector('%s'::regconfig, content))`,
			table, table, cfg)
		if _, err := e.client.DB.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("creating %s index: %w: %w", table, apperrors.ErrIndexEngine, err)
		}
	}

	e.mu.Lock()
	e.config = cfg
	e.mu.Unlock()
	e.logger.Info("indices ready", "language", language, "config", cfg)
	return nil
}

// ChangeLanguage drops and recreates both GIN indices with the new
// language's configuration. Rows survive; the recreated expression index
// covers them immediately.
func (e *Engine) ChangeLanguage(ctx context.Context, language string) error {
	cfg := normalize.PostgresConfig(language)
	err := e.client.InTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{topicTable, postTable} {
			drop := fmt.Sprintf(`DROP INDEX IF EXISTS idx__%s__content`, table)
			if _, err := tx.ExecContext(ctx, drop); err != nil {
				return fmt.Errorf("dropping %s index: %w", table, err)
			}
			index := fmt.Sprintf(
				`CREATE INDEX idx__%s__content ON %s USING GIN (to_tsvector('%s'::regconfig, content))`,
				table, table, cfg)
			if _, err := tx.ExecContext(ctx, index); err != nil {
				return fmt.Errorf("recreating %s index: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("changing language to %s: %w: %w", language, apperrors.ErrIndexEngine, err)
	}

	e.mu.Lock()
	e.config = cfg
	e.mu.Unlock()
	e.logger.Info("language changed", "language", language, "config", cfg)
	return nil
}

// Index upserts records in one transaction.
func (e *Engine) Index(ctx context.Context, kind forum.Kind, records []engine.Record) error {
	if len(records) == 0 {
		return nil
	}
	upsert := fmt.Sprintf(`INSERT INTO %s (id, content, uid, cid) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, uid = EXCLUDED.uid, cid = EXCLUDED.cid`,
		tableFor(kind))
	err := e.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsert)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, r.ID, r.Content, r.AuthorID, r.CategoryID); err != nil {
				return fmt.Errorf("upserting %s %d: %w", kind, r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("indexing %d %ss: %w: %w", len(records), kind, apperrors.ErrIndexEngine, err)
	}
	return nil
}

// Remove deletes ids in one statement.
func (e *Engine) Remove(ctx context.Context, kind forum.Kind, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	del := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, tableFor(kind))
	if _, err := e.client.DB.ExecContext(ctx, del, pq.Array(ids)); err != nil {
		return fmt.Errorf("removing %d %ss: %w: %w", len(ids), kind, apperrors.ErrIndexEngine, err)
	}
	return nil
}

// Search matches q against the tsvector of content, ranked by ts_rank.
func (e *Engine) Search(ctx context.Context, kind forum.Kind, q engine.Query) ([]int64, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, nil
	}
	e.mu.RLock()
	cfg := e.config
	e.mu.RUnlock()
	if cfg == "" {
		return nil, fmt.Errorf("%s index not created: %w", kind, apperrors.ErrIndexEngine)
	}

	queryFn := "plainto_tsquery"
	queryArg := text
	if q.Mode == engine.MatchAny {
		words := normalize.Words(text)
		if len(words) == 0 {
			return nil, nil
		}
		queryFn = "to_tsquery"
		queryArg = anyQuery(words)
	}

	args := []interface{}{queryArg}
	tsquery := fmt.Sprintf("%s('%s'::regconfig, $1)", queryFn, cfg)
	conds := []string{fmt.Sprintf("to_tsvector('%s'::regconfig, content) @@ %s", cfg, tsquery)}
	if len(q.CategoryIDs) > 0 {
		args = append(args, pq.Array(q.CategoryIDs))
		conds = append(conds, fmt.Sprintf("cid = ANY($%d)", len(args)))
	}
	if q.AuthorID != 0 {
		args = append(args, q.AuthorID)
		conds = append(conds, fmt.Sprintf("uid = $%d", len(args)))
	}
	args = append(args, q.Limit)

	stmt := fmt.Sprintf(
		`SELECT id FROM %s WHERE %s ORDER BY ts_rank(to_tsvector('%s'::regconfig, content), %s) DESC, id DESC LIMIT $%d`,
		tableFor(kind), strings.Join(conds, " AND "), cfg, tsquery, len(args))

	rows, err := e.client.DB.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("searching %ss: %w: %w", kind, apperrors.ErrIndexEngine, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning %s id: %w: %w", kind, apperrors.ErrIndexEngine, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s results: %w: %w", kind, apperrors.ErrIndexEngine, err)
	}
	return ids, nil
}

// Close releases the underlying connection pool.
func (e *Engine) Close() error {
	return e.client.Close()
}

func tableFor(kind forum.Kind) string {
	if kind == forum.KindTopic {
		return topicTable
	}
	return postTable
}

// anyQuery builds a disjunctive tsquery from segmented words. Each word is
// quoted as a lexeme so characters significant to tsquery syntax cannot
// escape.
func anyQuery(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, "'"+strings.ReplaceAll(w, "'", "''")+"'")
	}
	return strings.Join(quoted, " | ")
}
