package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher over the generated search_vector columns.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks blogs and documents with plainto_tsquery and ts_rank and
// builds snippets with ts_headline.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	subQueries := buildSubQueries(q)
	if strings.TrimSpace(q.Text) == "" || len(subQueries) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet
		FROM (%s) sub
		ORDER BY rank DESC, id DESC
		LIMIT %d OFFSET %d`, union, limit, offset)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r   Result
			typ string
		)
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func buildSubQueries(q Query) []string {
	const tsQuery = "plainto_tsquery('simple', $1)"
	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultBlog {
		where := "b.search_vector @@ " + tsQuery
		if !q.IncludeDrafts {
			where += " AND b.is_published"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'blog'::text AS type, b.id, b.title,
				ts_headline('simple', coalesce(b.summary, b.content), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(b.search_vector, %s) AS rank
			FROM blogs b
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultDocument {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS type, d.id, d.name AS title,
				ts_headline('simple', d.content, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(d.search_vector, %s) AS rank
			FROM documents d
			WHERE d.search_vector @@ %s`, tsQuery, tsQuery, tsQuery))
	}
	return subQueries
}
