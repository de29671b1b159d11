package domain

import "time"

// SourceSelectors holds the CSS selectors used to pull structured fields out
// of a rendered article page. An empty selector means the field is not
// extracted for this source.
type SourceSelectors struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Date      string `json:"date"`
	Author    string `json:"author"`
	Thumbnail string `json:"thumbnail"`
	Topics    string `json:"topics"`
}

// EnrichmentToggles switches individual enrichment stages on or off.
// Narration follows the Summary toggle since it narrates the summary.
type EnrichmentToggles struct {
	Summary      bool `json:"summary"`
	Tags         bool `json:"tags"`
	Image        bool `json:"image"`
	Translations bool `json:"translations"`
}

// Scraping method variants. Render drives a headless browser; static is a
// plain HTTP GET for sites that serve complete documents.
const (
	ScrapeMethodRender = "render"
	ScrapeMethodStatic = "static"
)

// Source is a configured origin site articles are crawled from.
type Source struct {
	ID           int64
	Name         string
	URL          string
	Active       bool
	ScrapeMethod string
	Selectors    SourceSelectors
	Enrich       EnrichmentToggles
}

// Article is one ingested news article. Enrichment stages fill the optional
// fields additively after the base row exists.
type Article struct {
	ID              int64
	SourceID        int64
	SourceURL       string
	Title           string
	Content         string
	Author          string
	PublishedAt     *time.Time
	Summary         string
	ThumbnailURL    string
	ImageURL        string
	Topics          []string
	NarrationTaskID string
	NarrationURL    string
	CreatedAt       time.Time
}

// Translation is a per-locale variant of an article's text fields.
type Translation struct {
	Locale  string
	Title   string
	Summary string
	Content string
	Topics  []string
}

// Extraction is the raw, possibly partial result of applying a source's
// selectors to a rendered page. Whether a partial result is acceptable is
// decided by the persistence gate, not here.
type Extraction struct {
	Title       string
	Content     string
	Author      string
	Thumbnail   string
	PublishedAt *time.Time
	Topics      []string
}

// DigestEdition is the weekly synthesized aggregate over a trailing 7-day
// article window. At most one edition exists per publication day.
type DigestEdition struct {
	ID              int64
	Title           string
	Summary         string
	NarrationTaskID string
	NarrationURL    string
	ImageURL        string
	PublishedOn     time.Time // calendar day, upsert key
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScrapeReport summarizes one per-source run for the trigger caller.
type ScrapeReport struct {
	SourceID   int64  `json:"source_id"`
	SourceName string `json:"source_name"`
	LinksFound int    `json:"links_found"`
	Added      int    `json:"articles_added"`
	Skipped    int    `json:"articles_skipped"`
	Failed     int    `json:"articles_failed"`
}
