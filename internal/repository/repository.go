package repository

import (
	"CommentThreads/internal/closure"
	"CommentThreads/internal/models"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"go.uber.org/zap"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Repository struct {
	db  *dbpg.DB
	log *zap.Logger
}

const commentColumns = `c.id, c.thread, c.parent, c.rank, c.author, c.body, c.createdon, c.editedon,
	c.approved, c.approvedon, c.approvedby, c.rejected, c.rejectedon, c.rejectedby,
	c.name, c.email, c.website, c.ip, c.deleted, c.deletedon, c.deletedby,
	c.resource, c.idprefix, c.existing_params`

const (
	createQuery = `INSERT INTO comments (thread, parent, rank, author, body, createdon, approved, approvedon, approvedby,
		name, email, website, ip, resource, idprefix, existing_params)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING id`
	lockParentQuery       = `SELECT thread FROM comments WHERE id = $1 FOR SHARE`
	getPathQuery          = `SELECT ancestor, descendant, depth FROM comment_closure WHERE descendant = $1`
	insertClosureQuery    = `INSERT INTO comment_closure (ancestor, descendant, depth) SELECT * FROM unnest($1::bigint[], $2::bigint[], $3::int[])`
	getDescendantsQuery   = `SELECT descendant FROM comment_closure WHERE ancestor = $1`
	getCommentByIDQuery   = `SELECT ` + commentColumns + ` FROM comments c WHERE c.id = $1`
	getCommentsByIDsQuery = `SELECT ` + commentColumns + ` FROM comments c WHERE c.id = ANY($1)`
	lockCommentQuery      = `SELECT ` + commentColumns + ` FROM comments c WHERE c.id = $1 FOR UPDATE`
	getSubtreesQuery      = `SELECT ` + commentColumns + ` FROM comment_closure cc JOIN comments c ON c.id = cc.descendant WHERE cc.ancestor = ANY($1)`
	updateCommentQuery    = `UPDATE comments SET body = $2, editedon = $3,
		approved = $4, approvedon = $5, approvedby = $6,
		rejected = $7, rejectedon = $8, rejectedby = $9,
		deleted = $10, deletedon = $11, deletedby = $12
		WHERE id = $1`
	searchCommentsQuery = `SELECT ` + commentColumns + ` FROM comments c WHERE c.thread = $1 AND strpos(lower(c.body), lower($2)) > 0 ORDER BY c.createdon DESC, c.id DESC LIMIT 50`

	// A root is publicly listed when it or any reply below it is visible;
	// the self row of the closure makes this one EXISTS.
	visibleSubtreeFilter = ` AND EXISTS (SELECT 1 FROM comment_closure cc JOIN comments d ON d.id = cc.descendant
		WHERE cc.ancestor = c.id AND d.approved AND NOT d.deleted)`
	countTopLevelCommentsQuery = `SELECT COUNT(*) FROM comments c WHERE c.thread = $1 AND c.parent = 0`
)

// readRetry covers reads only. Writes run inside explicit transactions and
// are never replayed.
var readRetry = retry.Strategy{
	Attempts: 5,
	Delay:    time.Millisecond,
	Backoff:  2,
}

func NewRepository(masterDSN string, slaveDSNs []string, migratePath string, log *zap.Logger) (*Repository, error) {
	opts := dbpg.Options{
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}
	db, err := dbpg.New(masterDSN, slaveDSNs, &opts)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("Starting database migrations")

	if err := runMigrations(masterDSN, migratePath); err != nil {
		log.Error("Failed to run migrations", zap.Error(err))
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	log.Info("Successfully migrated database")

	return &Repository{db: db, log: log.Named("repository")}, nil
}

// Create stores the comment and its closure rows in one transaction. The
// parent row is share-locked so its closure path cannot change underneath.
func (r *Repository) Create(ctx context.Context, c models.Comment) (models.Comment, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		r.log.Error("Failed to begin transaction", zap.Error(err))
		return c, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var path []closure.Row
	if !c.IsRoot() {
		var parentThread string
		if err := tx.QueryRowContext(ctx, lockParentQuery, c.Parent).Scan(&parentThread); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				r.log.Warn("Parent comment not found on creation attempt", zap.Int64("parent", c.Parent))
				return c, models.Validation(models.KeyParent)
			}
			r.log.Error("Failed to lock parent comment", zap.Error(err), zap.Int64("parent", c.Parent))
			return c, fmt.Errorf("failed to lock parent comment: %w", err)
		}
		if parentThread != c.Thread {
			r.log.Warn("Parent comment belongs to another thread",
				zap.Int64("parent", c.Parent), zap.String("thread", c.Thread), zap.String("parent_thread", parentThread))
			return c, models.Validation(models.KeyParent)
		}
		path, err = r.path(ctx, tx, c.Parent)
		if err != nil {
			return c, err
		}
	}

	// jsonb takes text; lib/pq would send []byte as bytea
	params := string(c.ExistingParams)
	if params == "" {
		params = "[]"
	}
	err = tx.QueryRowContext(ctx, createQuery, c.Thread, c.Parent, c.Rank, c.Author, c.Body, c.CreatedOn,
		c.Approved, c.ApprovedOn, c.ApprovedBy, c.Name, c.Email, c.Website, c.IP, c.Resource, c.IDPrefix, params).Scan(&c.ID)
	if err != nil {
		r.log.Error("Failed to create comment in DB", zap.Error(err))
		return c, fmt.Errorf("failed to create comment: %w", err)
	}

	rows, err := closure.Extend(c.ID, c.Parent, path)
	if err != nil {
		r.log.Error("Failed to extend closure path", zap.Error(err), zap.Int64("id", c.ID))
		return c, models.Consistency(err)
	}
	ancestors := make([]int64, len(rows))
	descendants := make([]int64, len(rows))
	depths := make([]int64, len(rows))
	for i, row := range rows {
		ancestors[i], descendants[i], depths[i] = row.Ancestor, row.Descendant, int64(row.Depth)
	}
	res, err := tx.ExecContext(ctx, insertClosureQuery, pq.Array(ancestors), pq.Array(descendants), pq.Array(depths))
	if err != nil {
		r.log.Error("Failed to insert closure rows", zap.Error(err), zap.Int64("id", c.ID))
		return c, models.Consistency(err)
	}
	if n, err := res.RowsAffected(); err != nil || n != int64(len(rows)) {
		r.log.Error("Closure row count mismatch", zap.Int64("id", c.ID), zap.Int64("inserted", n), zap.Int("expected", len(rows)))
		return c, models.Consistency(fmt.Errorf("inserted %d closure rows, expected %d", n, len(rows)))
	}

	if err := tx.Commit(); err != nil {
		r.log.Error("Failed to commit comment creation", zap.Error(err))
		return c, models.Consistency(err)
	}
	return c, nil
}

func (r *Repository) path(ctx context.Context, tx *sql.Tx, id int64) ([]closure.Row, error) {
	rows, err := tx.QueryContext(ctx, getPathQuery, id)
	if err != nil {
		r.log.Error("Failed to get closure path", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get closure path: %w", err)
	}
	defer rows.Close()
	return scanClosure(rows)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Comment, error) {
	row, err := r.db.QueryRowWithRetry(ctx, readRetry, getCommentByIDQuery, id)
	if err != nil {
		r.log.Error("Failed to get comment by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get comment by ID: %w", err)
	}
	comment, err := scanComment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NotFound(models.KeyNotFound)
		}
		r.log.Error("Failed to scan comment by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get comment by ID: %w", err)
	}
	return comment, nil
}

func (r *Repository) GetByIDs(ctx context.Context, ids []int64) ([]*models.Comment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.query(ctx, "get comments by IDs", getCommentsByIDsQuery, pq.Array(ids))
}

// Modify loads the comment under a row lock, lets fn mutate it and writes the
// mutable columns back. An error from fn rolls the transaction back.
func (r *Repository) Modify(ctx context.Context, id int64, fn func(c *models.Comment) error) (*models.Comment, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		r.log.Error("Failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := scanComment(tx.QueryRowContext(ctx, lockCommentQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NotFound(models.KeyNotFound)
		}
		r.log.Error("Failed to lock comment", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to lock comment: %w", err)
	}
	if err := fn(c); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, updateCommentQuery, c.ID, c.Body, c.EditedOn,
		c.Approved, c.ApprovedOn, c.ApprovedBy,
		c.Rejected, c.RejectedOn, c.RejectedBy,
		c.Deleted, c.DeletedOn, c.DeletedBy)
	if err != nil {
		r.log.Error("Failed to update comment", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		r.log.Error("Failed to commit comment update", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to commit comment update: %w", err)
	}
	return c, nil
}

func (r *Repository) Ancestors(ctx context.Context, id int64) ([]int64, error) {
	rows, err := r.db.QueryWithRetry(ctx, readRetry, getPathQuery, id)
	if err != nil {
		r.log.Error("Failed to get ancestors", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get ancestors: %w", err)
	}
	defer rows.Close()
	path, err := scanClosure(rows)
	if err != nil {
		r.log.Error("Failed to scan ancestors", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get ancestors: %w", err)
	}
	if len(path) == 0 {
		return nil, models.NotFound(models.KeyNotFound)
	}
	return closure.Path(path), nil
}

func (r *Repository) Descendants(ctx context.Context, id int64) ([]int64, error) {
	rows, err := r.db.QueryWithRetry(ctx, readRetry, getDescendantsQuery, id)
	if err != nil {
		r.log.Error("Failed to get descendants", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get descendants: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			r.log.Error("Failed to scan descendant", zap.Int64("id", id), zap.Error(err))
			return nil, fmt.Errorf("failed to get descendants: %w", err)
		}
		ids = append(ids, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get descendants: %w", err)
	}
	if len(ids) == 0 {
		return nil, models.NotFound(models.KeyNotFound)
	}
	return ids, nil
}

// GetSubtrees fetches every comment below the given nodes, the nodes
// included, with one closure join.
func (r *Repository) GetSubtrees(ctx context.Context, ids []int64) ([]*models.Comment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.query(ctx, "get subtrees", getSubtreesQuery, pq.Array(ids))
}

func (r *Repository) GetTopLevelComments(ctx context.Context, thread string, visibleOnly bool, limit, offset int, sortOrder string) ([]*models.Comment, int, error) {
	filter := ""
	if visibleOnly {
		filter = visibleSubtreeFilter
	}

	var total int
	row, err := r.db.QueryRowWithRetry(ctx, readRetry, countTopLevelCommentsQuery+filter, thread)
	if err != nil {
		r.log.Error("Failed to get top level comments", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to get top level comments: %w", err)
	}
	if err := row.Scan(&total); err != nil {
		r.log.Error("Failed to count top level comments", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count top level comments: %w", err)
	}

	sortOrder = strings.ToUpper(sortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM comments c WHERE c.thread = $1 AND c.parent = 0%s
		ORDER BY c.rank %s NULLS LAST, c.createdon %s, c.id %s LIMIT $2 OFFSET $3`,
		commentColumns, filter, sortOrder, sortOrder, sortOrder)

	comments, err := r.query(ctx, "get top level comments", query, thread, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

func (r *Repository) SearchByText(ctx context.Context, thread, query string) ([]*models.Comment, error) {
	// Plain substring match, so % and _ in the query are literal.
	return r.query(ctx, "search comments", searchCommentsQuery, thread, query)
}

func (r *Repository) query(ctx context.Context, op, query string, args ...any) ([]*models.Comment, error) {
	rows, err := r.db.QueryWithRetry(ctx, readRetry, query, args...)
	if err != nil {
		r.log.Error("Query failed", zap.String("op", op), zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			r.log.Error("Failed to scan comment", zap.String("op", op), zap.Error(err))
			return nil, fmt.Errorf("failed to %s: %w", op, err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return comments, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanComment(s scanner) (*models.Comment, error) {
	var c models.Comment
	var params []byte
	err := s.Scan(&c.ID, &c.Thread, &c.Parent, &c.Rank, &c.Author, &c.Body, &c.CreatedOn, &c.EditedOn,
		&c.Approved, &c.ApprovedOn, &c.ApprovedBy, &c.Rejected, &c.RejectedOn, &c.RejectedBy,
		&c.Name, &c.Email, &c.Website, &c.IP, &c.Deleted, &c.DeletedOn, &c.DeletedBy,
		&c.Resource, &c.IDPrefix, &params)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		c.ExistingParams = append([]byte(nil), params...)
	}
	return &c, nil
}

func scanClosure(rows *sql.Rows) ([]closure.Row, error) {
	var path []closure.Row
	for rows.Next() {
		var row closure.Row
		if err := rows.Scan(&row.Ancestor, &row.Descendant, &row.Depth); err != nil {
			return nil, err
		}
		path = append(path, row)
	}
	return path, rows.Err()
}

// runMigrations applies every pending file under migratePath. MIGRATE_PATH in
// the environment wins over the configured directory.
func runMigrations(dsn, migratePath string) (err error) {
	if env := os.Getenv("MIGRATE_PATH"); env != "" {
		migratePath = env
	}
	if migratePath == "" {
		migratePath = "./migrations"
	}
	dir, err := filepath.Abs(migratePath)
	if err != nil {
		return fmt.Errorf("failed to resolve migrations dir %q: %w", migratePath, err)
	}
	m, err := migrate.New("file://"+filepath.ToSlash(dir), dsn)
	if err != nil {
		return fmt.Errorf("failed to open migrations at %s: %w", dir, err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
