package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"newsroom/internal/domain"
)

var (
	// ErrAlreadyExists marks a benign duplicate: the (source_id, source_url)
	// pair is already persisted and the caller should skip, not fail.
	ErrAlreadyExists = errors.New("article already exists")
	// ErrNotFound is returned for lookups that match no row.
	ErrNotFound = errors.New("not found")
)

const uniqueViolation = "23505"

// PostgresStore handles interactions with the PostgreSQL database.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// ActiveSources returns all sources with the active flag set.
func (s *PostgresStore) ActiveSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, url, active, scrape_method, selectors, enrichment
		 FROM sources WHERE active = TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// SourceByID fetches one source regardless of its active flag.
func (s *PostgresStore) SourceByID(ctx context.Context, id int64) (*domain.Source, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, name, url, active, scrape_method, selectors, enrichment
		 FROM sources WHERE id = $1`, id)
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return src, err
}

func scanSource(row pgx.Row) (*domain.Source, error) {
	var src domain.Source
	var selectorsJSON, enrichJSON []byte
	if err := row.Scan(&src.ID, &src.Name, &src.URL, &src.Active,
		&src.ScrapeMethod, &selectorsJSON, &enrichJSON); err != nil {
		return nil, err
	}
	if len(selectorsJSON) > 0 {
		if err := json.Unmarshal(selectorsJSON, &src.Selectors); err != nil {
			return nil, fmt.Errorf("decode selectors for source %d: %w", src.ID, err)
		}
	}
	if len(enrichJSON) > 0 {
		if err := json.Unmarshal(enrichJSON, &src.Enrich); err != nil {
			return nil, fmt.Errorf("decode enrichment for source %d: %w", src.ID, err)
		}
	}
	return &src, nil
}

// ArticleExists checks the dedup key before any enrichment spend occurs.
func (s *PostgresStore) ArticleExists(ctx context.Context, sourceID int64, sourceURL string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE source_id = $1 AND source_url = $2)`,
		sourceID, sourceURL,
	).Scan(&exists)
	return exists, err
}

// InsertArticle creates the base article row. Enrichment stages update this
// same row additively. A unique violation on (source_id, source_url) is
// reported as ErrAlreadyExists.
func (s *PostgresStore) InsertArticle(ctx context.Context, a *domain.Article) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO articles (source_id, source_url, title, content, author, published_at, thumbnail_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		a.SourceID, a.SourceURL, a.Title, a.Content, a.Author, a.PublishedAt, a.ThumbnailURL,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// SetSummary stores the summary produced by the enrichment pipeline.
func (s *PostgresStore) SetSummary(ctx context.Context, articleID int64, summary string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE articles SET summary = $2 WHERE id = $1`, articleID, summary)
	return err
}

// SetImageURL stores the durable object-storage URL of the generated image.
func (s *PostgresStore) SetImageURL(ctx context.Context, articleID int64, url string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE articles SET image_url = $2 WHERE id = $1`, articleID, url)
	return err
}

// SetNarrationTask records the asynchronous synthesis task handle. The audio
// URL arrives later via the narration callback.
func (s *PostgresStore) SetNarrationTask(ctx context.Context, articleID int64, taskID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE articles SET narration_task_id = $2 WHERE id = $1`, articleID, taskID)
	return err
}

// CompleteNarration resolves a pending synthesis task to its audio URL. The
// task may belong to an article or a digest edition.
func (s *PostgresStore) CompleteNarration(ctx context.Context, taskID, audioURL string) error {
	tagA, err := s.db.Exec(ctx,
		`UPDATE articles SET narration_url = $2 WHERE narration_task_id = $1`, taskID, audioURL)
	if err != nil {
		return err
	}
	tagD, err := s.db.Exec(ctx,
		`UPDATE digest_editions SET narration_url = $2, updated_at = NOW() WHERE narration_task_id = $1`,
		taskID, audioURL)
	if err != nil {
		return err
	}
	if tagA.RowsAffected()+tagD.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkTopics resolves-or-creates each topic name and links it to the
// article. Names are matched case-insensitively; re-linking the same pair is
// a no-op, so repeated enrichment runs never produce duplicate links.
func (s *PostgresStore) LinkTopics(ctx context.Context, articleID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, name := range names {
		var topicID int64
		// DO UPDATE instead of DO NOTHING so RETURNING yields the id on
		// conflict as well.
		err := tx.QueryRow(ctx,
			`INSERT INTO topics (name) VALUES ($1)
			 ON CONFLICT ((lower(name))) DO UPDATE SET name = topics.name
			 RETURNING id`, name,
		).Scan(&topicID)
		if err != nil {
			return fmt.Errorf("resolve topic %q: %w", name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO article_topics (article_id, topic_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, articleID, topicID); err != nil {
			return fmt.Errorf("link topic %q: %w", name, err)
		}
	}
	return tx.Commit(ctx)
}

// UpsertTranslation stores one per-locale variant of the article.
func (s *PostgresStore) UpsertTranslation(ctx context.Context, articleID int64, tr domain.Translation) error {
	topicsJSON, err := json.Marshal(tr.Topics)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO article_translations (article_id, locale, title, summary, content, topics)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (article_id, locale) DO UPDATE SET
		   title = EXCLUDED.title, summary = EXCLUDED.summary,
		   content = EXCLUDED.content, topics = EXCLUDED.topics`,
		articleID, tr.Locale, tr.Title, tr.Summary, tr.Content, topicsJSON)
	return err
}

// ArticlesSince returns articles published within the window, most recent
// first. The recency bias in digest summarization is intentional.
func (s *PostgresStore) ArticlesSince(ctx context.Context, since time.Time) ([]domain.Article, error) {
	return articlesSince(ctx, s.db, since)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func articlesSince(ctx context.Context, q queryer, since time.Time) ([]domain.Article, error) {
	rows, err := q.Query(ctx,
		`SELECT id, source_id, source_url, title, content, author, published_at,
		        COALESCE(summary, ''), COALESCE(thumbnail_url, ''), COALESCE(image_url, '')
		 FROM articles
		 WHERE published_at >= $1
		 ORDER BY published_at DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		var a domain.Article
		if err := rows.Scan(&a.ID, &a.SourceID, &a.SourceURL, &a.Title, &a.Content,
			&a.Author, &a.PublishedAt, &a.Summary, &a.ThumbnailURL, &a.ImageURL); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// DigestTx is the transactional view the digest aggregator works in. The
// whole select, generate and upsert sequence commits or rolls back as one.
type DigestTx interface {
	ArticlesSince(ctx context.Context, since time.Time) ([]domain.Article, error)
	UpsertEdition(ctx context.Context, ed *domain.DigestEdition) error
}

type digestTx struct {
	tx pgx.Tx
}

func (d *digestTx) ArticlesSince(ctx context.Context, since time.Time) ([]domain.Article, error) {
	return articlesSince(ctx, d.tx, since)
}

// UpsertEdition inserts or updates the edition keyed by publication day, so a
// second run on the same calendar day updates in place.
func (d *digestTx) UpsertEdition(ctx context.Context, ed *domain.DigestEdition) error {
	return d.tx.QueryRow(ctx,
		`INSERT INTO digest_editions (title, summary, narration_task_id, image_url, published_on)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (published_on) DO UPDATE SET
		   title = EXCLUDED.title, summary = EXCLUDED.summary,
		   narration_task_id = EXCLUDED.narration_task_id,
		   image_url = EXCLUDED.image_url, updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		ed.Title, ed.Summary, ed.NarrationTaskID, ed.ImageURL, ed.PublishedOn,
	).Scan(&ed.ID, &ed.CreatedAt, &ed.UpdatedAt)
}

// WithDigestTx runs fn inside one transaction; a mid-sequence failure leaves
// no partial edition row.
func (s *PostgresStore) WithDigestTx(ctx context.Context, fn func(DigestTx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&digestTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
