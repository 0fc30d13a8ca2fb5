// Package postgres provides the Postgres-backed Store implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citepipe/citepipe/internal/citation"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbPool is the slice of pgxpool.Pool the store needs; pgxmock satisfies
// it for tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store persists URL entities, attempts and links in Postgres.
type Store struct {
	pool dbPool
	sb   sq.StatementBuilderType
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStoreWithPool(pool)
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing with pgxmock).
func NewStoreWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var urlColumns = []string{
	"id", "url", "section_id",
	"processing_status", "user_intent", "processing_attempts", "last_processing_method",
	"external_item_key", "external_processing_method", "created_by_this_system",
	"user_modified_externally", "linked_url_count",
	"citation_validation_status", "citation_validated_at", "missing_fields",
	"created_at", "updated_at",
}

// CreateURL inserts a new URL row. The (section_id, url) pair is unique.
func (s *Store) CreateURL(ctx context.Context, entity citation.URLEntity) error {
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now().UTC()
	}
	entity.UpdatedAt = entity.CreatedAt
	missing, err := json.Marshal(entity.MissingFields)
	if err != nil {
		return fmt.Errorf("marshal missing fields: %w", err)
	}
	query, args, err := s.sb.Insert("urls").
		Columns(urlColumns...).
		Values(
			entity.ID, entity.URL, entity.SectionID,
			entity.ProcessingStatus, entity.UserIntent, entity.ProcessingAttempts, entity.LastProcessingMethod,
			entity.ExternalItemKey, entity.ExternalProcessingMethod, entity.CreatedByThisSystem,
			entity.UserModifiedExternally, entity.LinkedURLCount,
			entity.CitationValidationStatus, entity.CitationValidatedAt, missing,
			entity.CreatedAt, entity.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("url %q in section %q: %w", entity.URL, entity.SectionID, citation.ErrDuplicateURL)
		}
		return fmt.Errorf("insert url: %w", err)
	}
	return nil
}

// GetURL fetches an entity by id.
func (s *Store) GetURL(ctx context.Context, id uuid.UUID) (citation.URLEntity, error) {
	query, args, err := s.sb.Select(urlColumns...).
		From("urls").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return citation.URLEntity{}, fmt.Errorf("build select: %w", err)
	}
	return s.scanURL(s.pool.QueryRow(ctx, query, args...))
}

// GetURLByAddress fetches an entity by (section, url).
func (s *Store) GetURLByAddress(ctx context.Context, sectionID, url string) (citation.URLEntity, error) {
	query, args, err := s.sb.Select(urlColumns...).
		From("urls").
		Where(sq.Eq{"section_id": sectionID, "url": url}).
		ToSql()
	if err != nil {
		return citation.URLEntity{}, fmt.Errorf("build select: %w", err)
	}
	return s.scanURL(s.pool.QueryRow(ctx, query, args...))
}

func (s *Store) scanURL(row pgx.Row) (citation.URLEntity, error) {
	var (
		entity  citation.URLEntity
		missing []byte
	)
	err := row.Scan(
		&entity.ID, &entity.URL, &entity.SectionID,
		&entity.ProcessingStatus, &entity.UserIntent, &entity.ProcessingAttempts, &entity.LastProcessingMethod,
		&entity.ExternalItemKey, &entity.ExternalProcessingMethod, &entity.CreatedByThisSystem,
		&entity.UserModifiedExternally, &entity.LinkedURLCount,
		&entity.CitationValidationStatus, &entity.CitationValidatedAt, &missing,
		&entity.CreatedAt, &entity.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return citation.URLEntity{}, citation.ErrNotFound
	}
	if err != nil {
		return citation.URLEntity{}, fmt.Errorf("scan url: %w", err)
	}
	if len(missing) > 0 {
		if err := json.Unmarshal(missing, &entity.MissingFields); err != nil {
			return citation.URLEntity{}, fmt.Errorf("unmarshal missing fields: %w", err)
		}
	}
	return entity, nil
}

// UpdateURL replaces the mutable columns of a URL row.
func (s *Store) UpdateURL(ctx context.Context, entity citation.URLEntity) error {
	missing, err := json.Marshal(entity.MissingFields)
	if err != nil {
		return fmt.Errorf("marshal missing fields: %w", err)
	}
	query, args, err := s.sb.Update("urls").
		SetMap(map[string]any{
			"processing_status":          entity.ProcessingStatus,
			"user_intent":                entity.UserIntent,
			"processing_attempts":        entity.ProcessingAttempts,
			"last_processing_method":     entity.LastProcessingMethod,
			"external_item_key":          entity.ExternalItemKey,
			"external_processing_method": entity.ExternalProcessingMethod,
			"created_by_this_system":     entity.CreatedByThisSystem,
			"user_modified_externally":   entity.UserModifiedExternally,
			"linked_url_count":           entity.LinkedURLCount,
			"citation_validation_status": entity.CitationValidationStatus,
			"citation_validated_at":      entity.CitationValidatedAt,
			"missing_fields":             missing,
			"updated_at":                 time.Now().UTC(),
		}).
		Where(sq.Eq{"id": entity.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return citation.ErrNotFound
	}
	return nil
}

// AppendAttempt inserts one history row, assigning the next sequence
// number atomically so histories stay gapless under concurrency.
func (s *Store) AppendAttempt(ctx context.Context, attempt citation.ProcessingAttempt) error {
	const query = `
INSERT INTO processing_attempts (
	url_id, seq, stage, success, error_category, error_message, resulting_item_key, ts
)
SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5, $6, $7
FROM processing_attempts WHERE url_id = $1`
	_, err := s.pool.Exec(ctx, query,
		attempt.URLID, attempt.Stage, attempt.Success,
		attempt.ErrorCategory, attempt.ErrorMessage, attempt.ResultingItemKey, attempt.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the ordered history for a URL.
func (s *Store) ListAttempts(ctx context.Context, urlID uuid.UUID) ([]citation.ProcessingAttempt, error) {
	query, args, err := s.sb.Select(
		"url_id", "seq", "stage", "success",
		"error_category", "error_message", "resulting_item_key", "ts",
	).
		From("processing_attempts").
		Where(sq.Eq{"url_id": urlID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []citation.ProcessingAttempt
	for rows.Next() {
		var a citation.ProcessingAttempt
		if err := rows.Scan(
			&a.URLID, &a.Seq, &a.Stage, &a.Success,
			&a.ErrorCategory, &a.ErrorMessage, &a.ResultingItemKey, &a.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

// CreateLink inserts a link row and sets the entity's external item key in
// one transaction, keeping linkage and status consistent.
func (s *Store) CreateLink(ctx context.Context, link citation.ExternalItemLink) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO external_item_links (item_key, url_id, created_by_this_system, user_modified, linked_at)
VALUES ($1, $2, $3, $4, $5)`,
		link.ItemKey, link.URLID, link.CreatedByThisSystem, link.UserModified, link.LinkedAt,
	); err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE urls SET external_item_key = $1, updated_at = $2 WHERE id = $3`,
		link.ItemKey, time.Now().UTC(), link.URLID,
	); err != nil {
		return fmt.Errorf("set item key: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteLink removes a link row and clears the entity's external item key
// in one transaction.
func (s *Store) DeleteLink(ctx context.Context, itemKey string, urlID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
DELETE FROM external_item_links WHERE item_key = $1 AND url_id = $2`, itemKey, urlID)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return citation.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `
UPDATE urls SET external_item_key = NULL, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), urlID,
	); err != nil {
		return fmt.Errorf("clear item key: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetLink returns the link row for a URL.
func (s *Store) GetLink(ctx context.Context, urlID uuid.UUID) (citation.ExternalItemLink, error) {
	query, args, err := s.sb.Select("item_key", "url_id", "created_by_this_system", "user_modified", "linked_at").
		From("external_item_links").
		Where(sq.Eq{"url_id": urlID}).
		ToSql()
	if err != nil {
		return citation.ExternalItemLink{}, fmt.Errorf("build select: %w", err)
	}
	var link citation.ExternalItemLink
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&link.ItemKey, &link.URLID, &link.CreatedByThisSystem, &link.UserModified, &link.LinkedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return citation.ExternalItemLink{}, citation.ErrNotFound
	}
	if err != nil {
		return citation.ExternalItemLink{}, fmt.Errorf("scan link: %w", err)
	}
	return link, nil
}

// CountLinksByItem counts URLs fanning in to one item key.
func (s *Store) CountLinksByItem(ctx context.Context, itemKey string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM external_item_links WHERE item_key = $1`, itemKey,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return count, nil
}

// SaveCandidateIdentifiers replaces the cached candidates for a URL.
func (s *Store) SaveCandidateIdentifiers(ctx context.Context, urlID uuid.UUID, ids []citation.Identifier) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM candidate_identifiers WHERE url_id = $1`, urlID,
	); err != nil {
		return fmt.Errorf("clear candidates: %w", err)
	}
	for i, id := range ids {
		if _, err := tx.Exec(ctx, `
INSERT INTO candidate_identifiers (url_id, position, id_type, id_value, source, confidence)
VALUES ($1, $2, $3, $4, $5, $6)`,
			urlID, i, id.Type, id.Value, id.Source, id.Confidence,
		); err != nil {
			return fmt.Errorf("insert candidate: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListCandidateIdentifiers returns the cached candidates for a URL.
func (s *Store) ListCandidateIdentifiers(ctx context.Context, urlID uuid.UUID) ([]citation.Identifier, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id_type, id_value, source, confidence
FROM candidate_identifiers WHERE url_id = $1 ORDER BY position ASC`, urlID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []citation.Identifier
	for rows.Next() {
		var id citation.Identifier
		if err := rows.Scan(&id.Type, &id.Value, &id.Source, &id.Confidence); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// ListURLs returns entities, optionally filtered by status.
func (s *Store) ListURLs(ctx context.Context, status *citation.ProcessingStatus) ([]citation.URLEntity, error) {
	builder := s.sb.Select(urlColumns...).From("urls").OrderBy("created_at ASC")
	if status != nil {
		builder = builder.Where(sq.Eq{"processing_status": *status})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query urls: %w", err)
	}
	defer rows.Close()

	var out []citation.URLEntity
	for rows.Next() {
		entity, err := s.scanURLRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return out, nil
}

func (s *Store) scanURLRows(rows pgx.Rows) (citation.URLEntity, error) {
	var (
		entity  citation.URLEntity
		missing []byte
	)
	if err := rows.Scan(
		&entity.ID, &entity.URL, &entity.SectionID,
		&entity.ProcessingStatus, &entity.UserIntent, &entity.ProcessingAttempts, &entity.LastProcessingMethod,
		&entity.ExternalItemKey, &entity.ExternalProcessingMethod, &entity.CreatedByThisSystem,
		&entity.UserModifiedExternally, &entity.LinkedURLCount,
		&entity.CitationValidationStatus, &entity.CitationValidatedAt, &missing,
		&entity.CreatedAt, &entity.UpdatedAt,
	); err != nil {
		return citation.URLEntity{}, fmt.Errorf("scan url: %w", err)
	}
	if len(missing) > 0 {
		if err := json.Unmarshal(missing, &entity.MissingFields); err != nil {
			return citation.URLEntity{}, fmt.Errorf("unmarshal missing fields: %w", err)
		}
	}
	return entity, nil
}
