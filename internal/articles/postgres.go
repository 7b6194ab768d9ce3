package articles

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresSource reads published articles from the editorial database.
type PostgresSource struct {
	db *sql.DB
}

// OpenPostgres connects to the articles database and verifies the
// connection.
func OpenPostgres(dsn string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresSource{db: db}, nil
}

func (p *PostgresSource) Close() error { return p.db.Close() }

func (p *PostgresSource) Published(ctx context.Context, category string, limit int) ([]Article, error) {
	query := `
		SELECT id, title, slug, excerpt, content, category_slug, status, published_at
		FROM articles
		WHERE status = 'published'`
	args := []any{}
	if category != "" {
		query += ` AND category_slug = $1`
		args = append(args, category)
	}
	query += fmt.Sprintf(` ORDER BY published_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Slug, &a.Excerpt, &a.Content, &a.CategorySlug, &a.Status, &a.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}
