package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"newsroom/internal/domain"
	"newsroom/internal/monitoring"
	"newsroom/internal/textutil"
)

// NarrationCharLimit is the synthesis service's hard character limit.
const NarrationCharLimit = 4250

// maxPromptChars bounds how much article text is fed into a completion.
const maxPromptChars = 6000

const maxTags = 5

// ArticleWriter is the additive-update surface the pipeline needs from the
// store. The base article row must exist before any stage runs.
type ArticleWriter interface {
	SetSummary(ctx context.Context, articleID int64, summary string) error
	LinkTopics(ctx context.Context, articleID int64, names []string) error
	SetImageURL(ctx context.Context, articleID int64, url string) error
	SetNarrationTask(ctx context.Context, articleID int64, taskID string) error
	UpsertTranslation(ctx context.Context, articleID int64, tr domain.Translation) error
}

// Options configures the pipeline's fixed inputs.
type Options struct {
	Voice        string
	CallbackURL  string
	Locales      []string
	StageTimeout time.Duration
}

// Enricher runs the independent enrichment stages against one persisted
// article. Stages mutate disjoint fields; a failure in one stage never
// blocks or rolls back another.
type Enricher struct {
	store     ArticleWriter
	text      TextGenerator
	image     ImageGenerator
	speech    SpeechSynthesizer
	objects   ObjectStore
	sanitizer *textutil.Sanitizer
	retry     Policy
	opts      Options
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

func NewEnricher(
	store ArticleWriter,
	text TextGenerator,
	image ImageGenerator,
	speech SpeechSynthesizer,
	objects ObjectStore,
	retry Policy,
	opts Options,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Enricher {
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 2 * time.Minute
	}
	return &Enricher{
		store:     store,
		text:      text,
		image:     image,
		speech:    speech,
		objects:   objects,
		sanitizer: textutil.NewSanitizer(),
		retry:     retry,
		opts:      opts,
		metrics:   metrics,
		logger:    logger,
	}
}

// Enrich runs every toggled-on stage. Each stage is its own failure domain:
// failures are logged with article id and stage name so they can be re-run
// individually, and never fail the overall source run.
func (e *Enricher) Enrich(ctx context.Context, art *domain.Article, toggles domain.EnrichmentToggles) {
	if toggles.Summary {
		e.runStage(ctx, art, "summary", e.summaryStage)
	}
	if toggles.Tags {
		e.runStage(ctx, art, "tags", e.tagsStage)
	}
	if toggles.Translations && len(e.opts.Locales) > 0 {
		e.runStage(ctx, art, "translation", e.translationStage)
	}
	if toggles.Image {
		e.runStage(ctx, art, "image", e.imageStage)
	}
	if toggles.Summary {
		e.runStage(ctx, art, "narration", e.narrationStage)
	}
}

func (e *Enricher) runStage(ctx context.Context, art *domain.Article, name string, stage func(context.Context, *domain.Article) error) {
	stageCtx, cancel := context.WithTimeout(ctx, e.opts.StageTimeout)
	defer cancel()
	if err := stage(stageCtx, art); err != nil {
		e.metrics.IncStageFailure(name)
		e.logger.Warn("enrichment stage failed",
			zap.Int64("article_id", art.ID),
			zap.String("stage", name),
			zap.Error(err))
		return
	}
	e.logger.Info("enrichment stage completed",
		zap.Int64("article_id", art.ID), zap.String("stage", name))
}

func (e *Enricher) summaryStage(ctx context.Context, art *domain.Article) error {
	summary, err := e.Summarize(ctx, art.Content)
	if err != nil {
		return err
	}
	if err := e.store.SetSummary(ctx, art.ID, summary); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	art.Summary = summary
	return nil
}

// Summarize produces a short summary of the given text.
func (e *Enricher) Summarize(ctx context.Context, text string) (string, error) {
	plain := e.promptText(text)
	if plain == "" {
		return "", Permanent(fmt.Errorf("nothing to summarize"))
	}
	var summary string
	err := e.retry.Do(ctx, func() error {
		var err error
		summary, err = e.text.Complete(ctx, summarySystem, plain)
		return err
	})
	return summary, err
}

func (e *Enricher) tagsStage(ctx context.Context, art *domain.Article) error {
	subject := art.Title
	if art.Summary != "" {
		subject += "\n\n" + art.Summary
	} else {
		subject += "\n\n" + e.promptText(art.Content)
	}

	var raw string
	err := e.retry.Do(ctx, func() error {
		var err error
		raw, err = e.text.Complete(ctx, tagsSystem, subject)
		return err
	})
	if err != nil {
		return err
	}

	tags := parseTags(raw)
	if len(tags) == 0 {
		return Permanent(fmt.Errorf("no usable tags in completion %q", raw))
	}
	if err := e.store.LinkTopics(ctx, art.ID, tags); err != nil {
		return fmt.Errorf("link topics: %w", err)
	}
	art.Topics = mergeTopics(art.Topics, tags)
	return nil
}

// translationStage produces one variant per target locale, falling back to
// the original-language text for any locale whose translation fails. A field
// that already has a usable value is never nulled out.
func (e *Enricher) translationStage(ctx context.Context, art *domain.Article) error {
	payload, err := json.Marshal(map[string]any{
		"title":   art.Title,
		"summary": art.Summary,
		"content": e.promptText(art.Content),
		"topics":  art.Topics,
	})
	if err != nil {
		return Permanent(err)
	}

	var firstErr error
	for _, locale := range e.opts.Locales {
		tr, terr := e.translate(ctx, locale, string(payload))
		if terr != nil {
			e.logger.Warn("translation failed, falling back to original text",
				zap.Int64("article_id", art.ID),
				zap.String("locale", locale),
				zap.Error(terr))
			if firstErr == nil {
				firstErr = terr
			}
			tr = domain.Translation{Locale: locale}
		}
		fillTranslationFallbacks(&tr, art)
		if err := e.store.UpsertTranslation(ctx, art.ID, tr); err != nil {
			return fmt.Errorf("store translation %s: %w", locale, err)
		}
	}
	// A failed locale is not a stage failure: the fallback variant was stored.
	_ = firstErr
	return nil
}

func (e *Enricher) translate(ctx context.Context, locale, payload string) (domain.Translation, error) {
	var raw string
	err := e.retry.Do(ctx, func() error {
		var err error
		raw, err = e.text.Complete(ctx, fmt.Sprintf(translateSystem, locale), payload)
		return err
	})
	if err != nil {
		return domain.Translation{}, err
	}

	var out struct {
		Title   string   `json:"title"`
		Summary string   `json:"summary"`
		Content string   `json:"content"`
		Topics  []string `json:"topics"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return domain.Translation{}, fmt.Errorf("decode translation for %s: %w", locale, err)
	}
	return domain.Translation{
		Locale:  locale,
		Title:   out.Title,
		Summary: out.Summary,
		Content: out.Content,
		Topics:  out.Topics,
	}, nil
}

func (e *Enricher) imageStage(ctx context.Context, art *domain.Article) error {
	subject := art.Summary
	if subject == "" {
		subject = art.Title
	}
	url, err := e.GenerateImage(ctx, subject, "articles")
	if err != nil {
		return err
	}
	if err := e.store.SetImageURL(ctx, art.ID, url); err != nil {
		return fmt.Errorf("store image url: %w", err)
	}
	art.ImageURL = url
	return nil
}

// GenerateImage runs the full image protocol: optimize the fixed prompt
// template with the text capability, generate with the fixed negative
// prompts, upload to object storage under a collision-resistant key, and
// return the public URL. Any step's failure yields an error, which callers
// translate to "no image".
func (e *Enricher) GenerateImage(ctx context.Context, subject, keyPrefix string) (string, error) {
	seed, _ := textutil.Truncate(subject, 1000)

	var prompt string
	err := e.retry.Do(ctx, func() error {
		var err error
		prompt, err = e.text.Complete(ctx, imagePromptSystem, fmt.Sprintf(imagePromptTemplate, seed))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("optimize image prompt: %w", err)
	}

	var img []byte
	err = e.retry.Do(ctx, func() error {
		var err error
		img, err = e.image.Generate(ctx, prompt, imageNegativePrompt, imageAspectRatio)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}

	key := fmt.Sprintf("%s/%s.png", keyPrefix, uuid.NewString())
	var url string
	err = e.retry.Do(ctx, func() error {
		var err error
		url, err = e.objects.Put(ctx, key, img, "image/png")
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return url, nil
}

func (e *Enricher) narrationStage(ctx context.Context, art *domain.Article) error {
	text := art.Summary
	if text == "" {
		text = art.Content
	}
	taskID, err := e.SubmitNarration(ctx, text)
	if err != nil {
		return err
	}
	if err := e.store.SetNarrationTask(ctx, art.ID, taskID); err != nil {
		return fmt.Errorf("store narration task: %w", err)
	}
	art.NarrationTaskID = taskID
	return nil
}

// SubmitNarration strips markup, truncates to the synthesis limit, and
// submits an asynchronous synthesis task, returning its handle. The audio
// URL arrives out-of-band via the narration callback.
func (e *Enricher) SubmitNarration(ctx context.Context, text string) (string, error) {
	plain := e.sanitizer.PlainText(text)
	if plain == "" {
		return "", Permanent(fmt.Errorf("nothing to narrate"))
	}
	plain, truncated := textutil.Truncate(plain, NarrationCharLimit)
	if truncated {
		e.logger.Warn("narration text truncated to synthesis limit",
			zap.Int("limit", NarrationCharLimit))
	}

	var taskID string
	err := e.retry.Do(ctx, func() error {
		var err error
		taskID, err = e.speech.Submit(ctx, plain, e.opts.Voice, e.opts.CallbackURL)
		return err
	})
	return taskID, err
}

// SummarizeDigest composes the weekly narrative over the given corpus.
func (e *Enricher) SummarizeDigest(ctx context.Context, corpus string) (string, error) {
	if strings.TrimSpace(corpus) == "" {
		return "", Permanent(fmt.Errorf("empty digest corpus"))
	}
	var digest string
	err := e.retry.Do(ctx, func() error {
		var err error
		digest, err = e.text.Complete(ctx, digestSystem, corpus)
		return err
	})
	return digest, err
}

func (e *Enricher) promptText(html string) string {
	plain := e.sanitizer.PlainText(html)
	plain, _ = textutil.Truncate(plain, maxPromptChars)
	return plain
}

// parseTags splits a comma- or newline-separated completion into clean,
// lowercase tag names.
func parseTags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	var tags []string
	for _, f := range fields {
		tag := strings.ToLower(strings.Trim(strings.TrimSpace(f), ".#"))
		if tag == "" {
			continue
		}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

// fillTranslationFallbacks backfills empty translation fields with the
// article's original-language values so a failed or partial translation
// never publishes a null where content existed.
func fillTranslationFallbacks(tr *domain.Translation, art *domain.Article) {
	if tr.Title == "" {
		tr.Title = art.Title
	}
	if tr.Summary == "" {
		tr.Summary = art.Summary
	}
	if tr.Content == "" {
		tr.Content = art.Content
	}
	if len(tr.Topics) == 0 {
		tr.Topics = art.Topics
	}
}

func mergeTopics(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[strings.ToLower(t)] = true
	}
	merged := existing
	for _, t := range added {
		if !seen[strings.ToLower(t)] {
			seen[strings.ToLower(t)] = true
			merged = append(merged, t)
		}
	}
	return merged
}

// extractJSON trims code fences and surrounding prose some models wrap
// around JSON replies.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
