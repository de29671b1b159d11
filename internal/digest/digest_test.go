package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"newsroom/internal/domain"
	"newsroom/internal/storage"
)

// fakeTx is an in-memory stand-in for the transactional digest view. It
// records upserts keyed by publication day, mirroring the unique index.
type fakeTx struct {
	articles  []domain.Article
	editions  map[string]*domain.DigestEdition
	nextID    int64
	committed bool
}

func (f *fakeTx) ArticlesSince(_ context.Context, since time.Time) ([]domain.Article, error) {
	var out []domain.Article
	for _, a := range f.articles {
		if a.PublishedAt != nil && a.PublishedAt.After(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeTx) UpsertEdition(_ context.Context, ed *domain.DigestEdition) error {
	day := ed.PublishedOn.Format("2006-01-02")
	if existing, ok := f.editions[day]; ok {
		ed.ID = existing.ID
	} else {
		f.nextID++
		ed.ID = f.nextID
	}
	cp := *ed
	f.editions[day] = &cp
	return nil
}

type fakeStore struct {
	tx *fakeTx
}

func (f *fakeStore) WithDigestTx(_ context.Context, fn func(storage.DigestTx) error) error {
	if err := fn(f.tx); err != nil {
		return err
	}
	f.tx.committed = true
	return nil
}

type fakeSynth struct {
	corpus      string
	summary     string
	summaryErr  error
	taskID      string
	narrateErr  error
	imageURL    string
	imageErr    error
	narrateText string
}

func (f *fakeSynth) SummarizeDigest(_ context.Context, corpus string) (string, error) {
	f.corpus = corpus
	return f.summary, f.summaryErr
}

func (f *fakeSynth) SubmitNarration(_ context.Context, text string) (string, error) {
	f.narrateText = text
	return f.taskID, f.narrateErr
}

func (f *fakeSynth) GenerateImage(_ context.Context, _, _ string) (string, error) {
	return f.imageURL, f.imageErr
}

func ptrTime(t time.Time) *time.Time { return &t }

func weekOfArticles(now time.Time) []domain.Article {
	return []domain.Article{
		{ID: 1, Title: "Newest", Summary: "Latest story.", PublishedAt: ptrTime(now.Add(-2 * time.Hour))},
		{ID: 2, Title: "Midweek", Content: "Only body text.", PublishedAt: ptrTime(now.Add(-3 * 24 * time.Hour))},
		{ID: 3, Title: "Stale", Summary: "Too old.", PublishedAt: ptrTime(now.Add(-9 * 24 * time.Hour))},
	}
}

func newGenerator(t *testing.T, store *fakeStore, synth *fakeSynth, now time.Time) *Generator {
	t.Helper()
	g := NewGenerator(store, synth, nil, zap.NewNop())
	g.now = func() time.Time { return now }
	return g
}

func TestGenerate_PublishesEdition(t *testing.T) {
	now := time.Date(2026, time.March, 8, 8, 0, 0, 0, time.UTC)
	tx := &fakeTx{articles: weekOfArticles(now), editions: map[string]*domain.DigestEdition{}}
	synth := &fakeSynth{summary: "The week in review.", taskID: "digest-task", imageURL: "https://cdn.example.com/digests/x.png"}

	ed, err := newGenerator(t, &fakeStore{tx: tx}, synth, now).Generate(context.Background())
	require.NoError(t, err)

	assert.True(t, tx.committed)
	assert.Equal(t, "Sunday Edition - March 8, 2026", ed.Title)
	assert.Equal(t, "The week in review.", ed.Summary)
	assert.Equal(t, "digest-task", ed.NarrationTaskID)
	assert.Equal(t, "https://cdn.example.com/digests/x.png", ed.ImageURL)
	assert.Equal(t, now.Truncate(24*time.Hour), ed.PublishedOn)
	assert.Equal(t, "The week in review.", synth.narrateText)

	// Corpus holds only in-window articles, most recent first, and falls back
	// to body text when an article has no summary.
	assert.NotContains(t, synth.corpus, "Stale")
	assert.Less(t, strings.Index(synth.corpus, "Newest"), strings.Index(synth.corpus, "Midweek"))
	assert.Contains(t, synth.corpus, "Only body text.")
}

func TestGenerate_EmptyWindowWritesNothing(t *testing.T) {
	now := time.Date(2026, time.March, 8, 8, 0, 0, 0, time.UTC)
	tx := &fakeTx{editions: map[string]*domain.DigestEdition{}}

	_, err := newGenerator(t, &fakeStore{tx: tx}, &fakeSynth{}, now).Generate(context.Background())
	require.ErrorIs(t, err, ErrNoArticles)
	assert.False(t, tx.committed)
	assert.Empty(t, tx.editions)
}

func TestGenerate_SummaryFailureAborts(t *testing.T) {
	now := time.Date(2026, time.March, 8, 8, 0, 0, 0, time.UTC)
	tx := &fakeTx{articles: weekOfArticles(now), editions: map[string]*domain.DigestEdition{}}
	synth := &fakeSynth{summaryErr: errors.New("completion backend down")}

	_, err := newGenerator(t, &fakeStore{tx: tx}, synth, now).Generate(context.Background())
	require.Error(t, err)
	assert.False(t, tx.committed)
	assert.Empty(t, tx.editions)
}

func TestGenerate_NarrationFailureAborts(t *testing.T) {
	now := time.Date(2026, time.March, 8, 8, 0, 0, 0, time.UTC)
	tx := &fakeTx{articles: weekOfArticles(now), editions: map[string]*domain.DigestEdition{}}
	synth := &fakeSynth{summary: "ok", narrateErr: errors.New("synthesis rejected")}

	_, err := newGenerator(t, &fakeStore{tx: tx}, synth, now).Generate(context.Background())
	require.Error(t, err)
	assert.Empty(t, tx.editions)
}

func TestGenerate_ImageFailureStillPublishes(t *testing.T) {
	now := time.Date(2026, time.March, 8, 8, 0, 0, 0, time.UTC)
	tx := &fakeTx{articles: weekOfArticles(now), editions: map[string]*domain.DigestEdition{}}
	synth := &fakeSynth{summary: "ok", taskID: "task", imageErr: errors.New("image backend unavailable")}

	ed, err := newGenerator(t, &fakeStore{tx: tx}, synth, now).Generate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ed.ImageURL)
	assert.Len(t, tx.editions, 1)
}

func TestGenerate_SameDayRerunUpserts(t *testing.T) {
	now := time.Date(2026, time.March, 8, 8, 0, 0, 0, time.UTC)
	tx := &fakeTx{articles: weekOfArticles(now), editions: map[string]*domain.DigestEdition{}}
	store := &fakeStore{tx: tx}

	first, err := newGenerator(t, store, &fakeSynth{summary: "morning run", taskID: "t1"}, now).Generate(context.Background())
	require.NoError(t, err)

	second, err := newGenerator(t, store, &fakeSynth{summary: "evening rerun", taskID: "t2"}, now.Add(6*time.Hour)).Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, tx.editions, 1)
	assert.Equal(t, "evening rerun", tx.editions[second.PublishedOn.Format("2006-01-02")].Summary)
}
