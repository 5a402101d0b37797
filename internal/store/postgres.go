package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetBlog(ctx context.Context, id int64) (Blog, error) {
	var (
		item Blog
		refs []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, COALESCE(slug, ''), COALESCE(author, ''), content,
		       COALESCE(summary, ''), COALESCE(thumbnail, ''), category_id,
		       view_count, is_published, "references", created_at, updated_at
		FROM blogs
		WHERE id=$1
	`, id).Scan(
		&item.ID, &item.Title, &item.Slug, &item.Author, &item.Content,
		&item.Summary, &item.Thumbnail, &item.CategoryID,
		&item.ViewCount, &item.IsPublished, &refs, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Blog{}, ErrNotFound
	}
	if err != nil {
		return Blog{}, fmt.Errorf("get blog: %w", err)
	}
	if item.References, err = decodeReferences(refs); err != nil {
		return Blog{}, fmt.Errorf("decode blog references: %w", err)
	}
	if item.TagIDs, err = s.blogTags(ctx, id); err != nil {
		return Blog{}, err
	}
	return item, nil
}

func (s *PostgresStore) blogTags(ctx context.Context, blogID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag_id FROM blog_tags WHERE blog_id=$1 ORDER BY tag_id`, blogID)
	if err != nil {
		return nil, fmt.Errorf("list blog tags: %w", err)
	}
	defer rows.Close()

	tags := make([]int64, 0)
	for rows.Next() {
		var tag int64
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan blog tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blog tags: %w", err)
	}
	return tags, nil
}

// UpdateBlog writes every editable column and, when TagIDs is non-nil,
// replaces the tag set in the same transaction. The row must already exist.
func (s *PostgresStore) UpdateBlog(ctx context.Context, item Blog) error {
	refs, err := encodeReferences(item.References)
	if err != nil {
		return fmt.Errorf("encode blog references: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update blog: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE blogs
		SET title=$2, slug=NULLIF($3, ''), author=NULLIF($4, ''), content=$5,
		    summary=NULLIF($6, ''), thumbnail=NULLIF($7, ''), category_id=$8,
		    is_published=$9, "references"=$10::jsonb, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Title, item.Slug, item.Author, item.Content,
		item.Summary, item.Thumbnail, item.CategoryID, item.IsPublished, string(refs))
	if err != nil {
		return fmt.Errorf("update blog: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if item.TagIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM blog_tags WHERE blog_id=$1`, item.ID); err != nil {
			return fmt.Errorf("clear blog tags: %w", err)
		}
		for _, tag := range item.TagIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO blog_tags (blog_id, tag_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, item.ID, tag); err != nil {
				return fmt.Errorf("insert blog tag: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update blog: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertBlog(ctx context.Context, item Blog) (int64, error) {
	refs, err := encodeReferences(item.References)
	if err != nil {
		return 0, fmt.Errorf("encode blog references: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO blogs (title, slug, author, content, summary, thumbnail, category_id, is_published, "references")
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9::jsonb)
		RETURNING id
	`, item.Title, item.Slug, item.Author, item.Content, item.Summary, item.Thumbnail,
		item.CategoryID, item.IsPublished, string(refs)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert blog: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id int64) (Document, error) {
	var (
		item Document
		refs []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(filename, ''), content, directory_id, sort_order,
		       view_count, "references", created_at, updated_at
		FROM documents
		WHERE id=$1
	`, id).Scan(
		&item.ID, &item.Name, &item.Filename, &item.Content, &item.DirectoryID, &item.SortOrder,
		&item.ViewCount, &refs, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	if item.References, err = decodeReferences(refs); err != nil {
		return Document{}, fmt.Errorf("decode document references: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, item Document) error {
	refs, err := encodeReferences(item.References)
	if err != nil {
		return fmt.Errorf("encode document references: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET name=$2, filename=NULLIF($3, ''), content=$4, directory_id=$5,
		    sort_order=$6, "references"=$7::jsonb, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Filename, item.Content, item.DirectoryID, item.SortOrder, string(refs))
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) (int64, error) {
	refs, err := encodeReferences(item.References)
	if err != nil {
		return 0, fmt.Errorf("encode document references: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO documents (name, filename, content, directory_id, sort_order, "references")
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6::jsonb)
		RETURNING id
	`, item.Name, item.Filename, item.Content, item.DirectoryID, item.SortOrder, string(refs)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) IncrementViews(ctx context.Context, kind Kind, id int64) error {
	var query string
	switch kind {
	case KindBlog:
		query = `UPDATE blogs SET view_count = view_count + 1 WHERE id=$1`
	case KindDocument:
		query = `UPDATE documents SET view_count = view_count + 1 WHERE id=$1`
	default:
		return fmt.Errorf("increment views: unknown kind %q", kind)
	}
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return nil
}

// ListForIndex returns every blog and document in the shape the search
// indexer consumes.
func (s *PostgresStore) ListForIndex(ctx context.Context) ([]IndexItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT 'blog' AS kind, id, title, COALESCE(summary, ''), content, is_published, updated_at FROM blogs
		UNION ALL
		SELECT 'document' AS kind, id, name, '', content, TRUE, updated_at FROM documents
		ORDER BY kind, updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list for index: %w", err)
	}
	defer rows.Close()

	items := make([]IndexItem, 0)
	for rows.Next() {
		var (
			item IndexItem
			kind string
		)
		if err := rows.Scan(&kind, &item.ID, &item.Title, &item.Summary, &item.Content, &item.Published, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan index item: %w", err)
		}
		item.Kind = Kind(kind)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index items: %w", err)
	}
	return items, nil
}
